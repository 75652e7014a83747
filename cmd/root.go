package cmd

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/fretlab/cmd/config"
	"github.com/tphakala/fretlab/cmd/devices"
	"github.com/tphakala/fretlab/cmd/file"
	"github.com/tphakala/fretlab/cmd/info"
	"github.com/tphakala/fretlab/cmd/realtime"
	"github.com/tphakala/fretlab/cmd/tone"
	"github.com/tphakala/fretlab/internal/buildinfo"
	"github.com/tphakala/fretlab/internal/conf"
	"github.com/tphakala/fretlab/internal/errors"
	"github.com/tphakala/fretlab/internal/logger"
)

const sentryFlushTimeout = 2 * time.Second

// RootCommand creates and returns the root command. settings is filled in
// before any subcommand runs.
func RootCommand(build *buildinfo.Context, settings *conf.Settings) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "fretlab",
		Short:         "Real-time guitar tuner",
		Version:       build.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file")
	if err := setupFlags(rootCmd); err != nil {
		panic(err)
	}

	infoCmd := info.Command(build)
	subcommands := []*cobra.Command{
		realtime.Command(settings),
		file.Command(settings),
		devices.Command(settings),
		tone.Command(settings),
		config.Command(settings),
		infoCmd,
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// info needs no configuration
		if cmd.Name() == infoCmd.Name() {
			return nil
		}

		loaded, err := conf.Load(configFile)
		if err != nil {
			return err
		}
		*settings = *loaded
		return initialize(build, settings)
	}

	return rootCmd
}

// initialize sets up logging and error telemetry once settings are loaded.
func initialize(build *buildinfo.Context, settings *conf.Settings) error {
	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)

	if settings.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         settings.Sentry.DSN,
			Environment: settings.Sentry.Environment,
			Release:     build.Release(),
		}); err != nil {
			return errors.New(err).
				Component("telemetry").
				Category(errors.CategoryConfiguration).
				Build()
		}
		errors.SetTelemetryReporter(errors.NewSentryReporter(true))
		central.Module("main").Info("error reporting enabled",
			logger.String("environment", settings.Sentry.Environment))
	}

	return nil
}

// Shutdown flushes pending error reports and closes the log file.
func Shutdown() {
	if errors.GetTelemetryReporter() != nil {
		sentry.Flush(sentryFlushTimeout)
	}
	_ = logger.Global().Close()
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command) error {
	flags := rootCmd.PersistentFlags()
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("source", conf.SourceMalgo, "Audio source: malgo, file or tone")
	flags.String("device", "sysdefault", "Capture device name or id")
	flags.Int("framesize", conf.DefaultFrameSize, "Samples per analysed frame")
	flags.String("estimator", conf.DefaultEstimator, "Pitch estimator: direct or fft")

	bindings := map[string]string{
		"debug":           "debug",
		"audio.source":    "source",
		"audio.device":    "device",
		"tuner.framesize": "framesize",
		"tuner.estimator": "estimator",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}
