package observability

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/tphakala/fretlab/internal/conf"
	"github.com/tphakala/fretlab/internal/errors"
	"github.com/tphakala/fretlab/internal/logger"
	"github.com/tphakala/fretlab/internal/observability/metrics"
)

// GetLogger returns the telemetry module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}

// Endpoint serves /metrics on its own listener.
type Endpoint struct {
	listenAddress string
	metrics       *Metrics
	server        *http.Server
}

// NewEndpoint creates the metrics endpoint. It fails when telemetry is
// disabled in settings.
func NewEndpoint(settings *conf.Settings, m *Metrics) (*Endpoint, error) {
	if !settings.Telemetry.Enabled {
		return nil, errors.Newf("telemetry not enabled in settings").
			Component("observability").
			Category(errors.CategoryConfiguration).
			Build()
	}

	mux := http.NewServeMux()
	m.RegisterHandlers(mux)

	return &Endpoint{
		listenAddress: settings.Telemetry.Listen,
		metrics:       m,
		server: &http.Server{
			Addr:              settings.Telemetry.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (e *Endpoint) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return errors.New(err).
			Component("observability").
			Category(errors.CategoryNetwork).
			Context("listen", e.listenAddress).
			Build()
	}
	return e.Serve(ctx, listener)
}

// Serve serves on listener until ctx is cancelled.
func (e *Endpoint) Serve(ctx context.Context, listener net.Listener) error {
	GetLogger().Info("telemetry endpoint starting", logger.String("address", listener.Addr().String()))

	serveErr := make(chan error, 1)
	go func() {
		if err := e.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	GetLogger().Info("stopping telemetry server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), metrics.ShutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(shutdownCtx); err != nil {
		GetLogger().Error("telemetry server shutdown error", logger.Error(err))
		return err
	}
	return <-serveErr
}

// GetMetrics returns the Metrics served by this endpoint.
func (e *Endpoint) GetMetrics() *Metrics {
	return e.metrics
}
