package devices

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/fretlab/internal/capture"
	"github.com/tphakala/fretlab/internal/conf"
)

// Command creates the devices command listing capture devices.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio capture devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := capture.ListDevices()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "INDEX\tNAME\tID\t")
			for _, d := range devices {
				marker := ""
				if d.IsDefault {
					marker = "(default)"
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", d.Index, d.Name, d.ID, marker)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\nConfigured device: %s\n", settings.Audio.Device)
			return nil
		},
	}
}
