package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/fretlab/internal/conf"
	"github.com/tphakala/fretlab/internal/errors"
	"github.com/tphakala/fretlab/internal/logger"
)

const shutdownTimeout = 5 * time.Second

// Server is the HTTP server of the tuner API.
type Server struct {
	echo       *echo.Echo
	settings   *conf.Settings
	controller *Controller
}

// NewServer builds the echo instance, middleware and routes.
func NewServer(settings *conf.Settings, service TunerService, opts ...Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger = newEchoLogger(GetLogger().Module("echo"))

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	if settings.WebServer.Debug {
		e.Use(requestLogger())
	}

	return &Server{
		echo:       e,
		settings:   settings,
		controller: New(e, settings, service, opts...),
	}
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Run listens on webserver.listen until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.settings.WebServer.Listen)
	if err != nil {
		return errors.New(err).
			Component("api").
			Category(errors.CategoryNetwork).
			Context("listen", s.settings.WebServer.Listen).
			Build()
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.echo.Listener = listener
	// Streams end with ctx instead of holding up Shutdown.
	s.echo.Server.BaseContext = func(net.Listener) context.Context { return ctx }
	GetLogger().Info("HTTP server starting", logger.String("address", listener.Addr().String()))

	serveErr := make(chan error, 1)
	go func() {
		if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		GetLogger().Error("HTTP server shutdown error", logger.Error(err))
		return err
	}
	GetLogger().Info("HTTP server stopped")
	return <-serveErr
}

func requestLogger() echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v echomw.RequestLoggerValues) error {
			GetLogger().Debug("request",
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.Duration("latency", v.Latency))
			return nil
		},
	})
}
