package config

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/fretlab/internal/conf"
)

// Command creates the config command printing the effective configuration.
func Command(settings *conf.Settings) *cobra.Command {
	var defaults, reveal bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Long:  "Print the configuration after defaults, config file, environment and flags are applied. Credentials are redacted unless --reveal is set.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			switch {
			case defaults:
				data, err = conf.DefaultConfigYAML()
			case reveal:
				data, err = conf.MarshalYAML(settings)
			default:
				data, err = conf.MarshalYAML(settings.Redacted())
			}
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&defaults, "defaults", false, "Print the built-in default configuration file")
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Include credentials in the output")
	return cmd
}
