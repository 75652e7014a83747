// Package api serves the tuner over HTTP: JSON snapshots, start and stop
// commands and a server-sent event stream of note updates.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	"github.com/tphakala/fretlab/internal/capture"
	"github.com/tphakala/fretlab/internal/conf"
	"github.com/tphakala/fretlab/internal/logger"
	"github.com/tphakala/fretlab/internal/observability/metrics"
	"github.com/tphakala/fretlab/internal/tuner"
)

// TunerService is the part of tuner.Session used by the API.
type TunerService interface {
	Start(ctx context.Context) error
	Stop()
	Snapshot() tuner.Snapshot
	Subscribe() (<-chan tuner.Snapshot, func())
}

// DeviceLister enumerates capture devices.
type DeviceLister func() ([]capture.DeviceInfo, error)

const (
	deviceCacheKey = "devices"
	deviceCacheTTL = 30 * time.Second
	// heartbeatInterval is the idle time after which a stream sends a heartbeat.
	heartbeatInterval = 15 * time.Second
	// startTimeout bounds POST /tuner/start while the device opens.
	startTimeout = 30 * time.Second
)

// Controller manages the API routes and handlers
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	Settings *conf.Settings
	Tuner    TunerService

	listDevices DeviceLister
	deviceCache *cache.Cache
	metrics     *metrics.HTTPMetrics
	log         logger.Logger
	startTime   time.Time
	heartbeat   time.Duration
}

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithDeviceLister replaces capture.ListDevices.
func WithDeviceLister(lister DeviceLister) Option {
	return func(c *Controller) { c.listDevices = lister }
}

// WithMetrics records request and stream metrics.
func WithMetrics(m *metrics.HTTPMetrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithHeartbeat overrides the stream heartbeat interval.
func WithHeartbeat(interval time.Duration) Option {
	return func(c *Controller) { c.heartbeat = interval }
}

// New creates a controller and registers its routes on e under /api/v1.
func New(e *echo.Echo, settings *conf.Settings, service TunerService, opts ...Option) *Controller {
	c := &Controller{
		Echo:        e,
		Settings:    settings,
		Tuner:       service,
		listDevices: capture.ListDevices,
		deviceCache: cache.New(deviceCacheTTL, 2*deviceCacheTTL),
		log:         GetLogger(),
		startTime:   time.Now(),
		heartbeat:   heartbeatInterval,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.metrics != nil {
		e.Use(c.metricsMiddleware)
	}
	c.Group = e.Group("/api/v1")
	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.HealthCheck)

	c.Group.GET("/tuner", c.GetTuner)
	c.Group.POST("/tuner/start", c.StartTuner)
	c.Group.POST("/tuner/stop", c.StopTuner)
	c.Group.GET("/tuner/stream", c.StreamTuner)

	c.Group.GET("/tuning/standard", c.GetStandardTuning)
	c.Group.GET("/devices", c.GetDevices)
}

// HealthCheck reports liveness and the tuner state.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	snap := c.Tuner.Snapshot()
	return ctx.JSON(http.StatusOK, map[string]any{
		"status":    "healthy",
		"tuner":     snap.State,
		"uptime":    time.Since(c.startTime).Round(time.Second).String(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// GetLogger returns the api module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}
