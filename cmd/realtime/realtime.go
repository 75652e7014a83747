package realtime

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/fretlab/internal/api"
	"github.com/tphakala/fretlab/internal/capture"
	"github.com/tphakala/fretlab/internal/conf"
	"github.com/tphakala/fretlab/internal/cpuspec"
	"github.com/tphakala/fretlab/internal/errors"
	"github.com/tphakala/fretlab/internal/logger"
	"github.com/tphakala/fretlab/internal/mqtt"
	"github.com/tphakala/fretlab/internal/observability"
	"github.com/tphakala/fretlab/internal/pitch"
	"github.com/tphakala/fretlab/internal/scheduler"
	"github.com/tphakala/fretlab/internal/tuner"
)

// Command creates the realtime command.
func Command(settings *conf.Settings) *cobra.Command {
	var idle, quiet bool

	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Tune from live audio",
		Long: "Capture audio from the configured source and report the nearest note in real time. " +
			"The HTTP API, MQTT publisher and metrics endpoint run alongside when enabled.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out io.Writer = cmd.OutOrStdout()
			if quiet {
				out = io.Discard
			}
			return Run(cmd.Context(), settings, Options{AutoStart: !idle, Output: out})
		},
	}

	cmd.Flags().BoolVar(&idle, "idle", false, "Wait for a start request on the HTTP API instead of listening at launch")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print notes to the terminal")
	cmd.Flags().String("listen", viper.GetString("webserver.listen"), "Listen address of the HTTP API")
	cmd.Flags().Bool("mqtt", false, "Publish notes to the configured MQTT broker")
	cmd.Flags().Bool("telemetry", false, "Enable Prometheus telemetry endpoint")

	// Bind flags to the viper settings
	for key, flag := range map[string]string{
		"webserver.listen":  "listen",
		"mqtt.enabled":      "mqtt",
		"telemetry.enabled": "telemetry",
	} {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			panic(fmt.Sprintf("error binding flag %s: %v", flag, err))
		}
	}

	return cmd
}

// Options controls a realtime run.
type Options struct {
	// AutoStart begins listening as soon as the session is ready.
	AutoStart bool
	// Output receives one line per note change; nil disables it.
	Output io.Writer
}

// Run wires the tuner session to its outputs and blocks until ctx is done or
// a component fails.
func Run(ctx context.Context, settings *conf.Settings, opts Options) error {
	log := logger.Global().Module("realtime")

	cpu := cpuspec.GetCPUSpec()
	log.Info("starting realtime tuner",
		logger.String("source", settings.Audio.Source),
		logger.String("device", settings.Audio.Device),
		logger.String("estimator", settings.Tuner.Estimator),
		logger.Int("frame_size", settings.Tuner.FrameSize),
		logger.Duration("tick", settings.Tuner.TickInterval()),
		logger.String("cpu", cpu.BrandName),
		logger.String("vector", cpu.Vector))

	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	session, err := newSession(settings, m)
	if err != nil {
		return err
	}
	defer session.Close()

	var endpoint *observability.Endpoint
	if settings.Telemetry.Enabled {
		if endpoint, err = observability.NewEndpoint(settings, m); err != nil {
			return err
		}
	}

	var client mqtt.Client
	if settings.MQTT.Enabled {
		if client, err = mqtt.NewClient(settings, m.MQTT); err != nil {
			return err
		}
		if err := client.Connect(ctx); err != nil {
			// Lost connections are retried by the client, a failed first
			// connection is not.
			log.Warn("MQTT connection failed, publishing disabled", logger.Error(err))
			client.Disconnect()
			client = nil
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if settings.WebServer.Enabled {
		server := api.NewServer(settings, session, api.WithMetrics(m.HTTP))
		g.Go(func() error { return server.Run(gctx) })
	}

	if endpoint != nil {
		g.Go(func() error { return endpoint.Run(gctx) })
	}

	if client != nil {
		publisher := mqtt.NewPublisher(client, mqtt.PublisherConfigFromSettings(settings, m.Tuner))
		updates, unsubscribe := session.Subscribe()
		g.Go(func() error {
			defer client.Disconnect()
			defer unsubscribe()
			return publisher.Run(gctx, updates)
		})
	}

	if opts.Output != nil {
		updates, unsubscribe := session.Subscribe()
		g.Go(func() error {
			defer unsubscribe()
			return newConsole(opts.Output).Run(gctx, updates)
		})
	}

	if opts.AutoStart {
		if err := session.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			// The session stays in Error; a start request can retry.
			log.Error("failed to start listening", logger.Error(err))
		}
	}

	<-gctx.Done()
	session.Stop()
	log.Info("shutting down")
	return g.Wait()
}

// newSession builds the capture, estimation and scheduling chain.
func newSession(settings *conf.Settings, m *observability.Metrics) (*tuner.Session, error) {
	capSession, err := capture.NewSessionFromSettings(settings)
	if err != nil {
		return nil, err
	}

	estimator, err := pitch.NewEstimator(settings.Tuner.Estimator, pitch.Options{
		MinLag:        settings.Tuner.MinLag,
		PeakThreshold: settings.Tuner.PeakThreshold,
	})
	if err != nil {
		return nil, err
	}

	sched := scheduler.New(scheduler.Config{
		Interval:  settings.Tuner.TickInterval(),
		Estimator: estimator,
		Recorder:  m.Tuner,
	})

	return tuner.New(tuner.Config{
		Capture:   capSession,
		Scheduler: sched,
		Observer:  m.Tuner,
	})
}
