package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tphakala/fretlab/internal/errors"
	"github.com/tphakala/fretlab/internal/logger"
	"github.com/tphakala/fretlab/internal/observability/metrics"
)

const streamEndpoint = "/api/v1/tuner/stream"

// StreamTuner handles the SSE connection for real-time note streaming.
// Every snapshot is sent as a "note" event; idle streams get a heartbeat.
func (c *Controller) StreamTuner(ctx echo.Context) error {
	ctx.Response().Header().Set("Content-Type", "text/event-stream")
	ctx.Response().Header().Set("Cache-Control", "no-cache")
	ctx.Response().Header().Set("Connection", "keep-alive")
	ctx.Response().WriteHeader(http.StatusOK)

	clientID := uuid.NewString()
	updates, unsubscribe := c.Tuner.Subscribe()
	defer unsubscribe()

	started := time.Now()
	reason := metrics.SSECloseReasonClosed
	if c.metrics != nil {
		c.metrics.SSEConnectionStarted(streamEndpoint)
		defer func() {
			c.metrics.SSEConnectionClosed(streamEndpoint, time.Since(started).Seconds(), reason)
		}()
	}

	log := c.log.With(logger.String("client_id", clientID))
	log.Info("SSE client connected", logger.String("ip", ctx.RealIP()))
	defer log.Info("SSE client disconnected")

	if err := c.sendSSEMessage(ctx, "connected", map[string]string{"clientId": clientID}); err != nil {
		reason = metrics.SSECloseReasonError
		return err
	}

	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				// Session closed.
				return nil
			}
			if err := c.sendSSEMessage(ctx, "note", NewTunerView(snap)); err != nil {
				log.Debug("failed to send SSE note", logger.Error(err))
				reason = metrics.SSECloseReasonError
				return nil
			}
			ticker.Reset(c.heartbeat)

		case <-ticker.C:
			if err := c.sendSSEMessage(ctx, "heartbeat", map[string]any{
				"timestamp": time.Now().Unix(),
			}); err != nil {
				log.Debug("SSE heartbeat failed, client likely disconnected", logger.Error(err))
				reason = metrics.SSECloseReasonError
				return nil
			}

		case <-ctx.Request().Context().Done():
			reason = metrics.SSECloseReasonCanceled
			return nil
		}
	}
}

// sendSSEMessage sends a Server-Sent Event message
func (c *Controller) sendSSEMessage(ctx echo.Context, event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE data: %w", err)
	}

	message := fmt.Sprintf("event: %s\ndata: %s\n\n", event, jsonData)

	rc := http.NewResponseController(ctx.Response().Writer)
	if err := rc.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		c.log.Debug("failed to set write deadline for SSE message", logger.Error(err))
	}

	if _, err := ctx.Response().Write([]byte(message)); err != nil {
		return fmt.Errorf("failed to write SSE message: %w", err)
	}
	ctx.Response().Flush()

	if c.metrics != nil {
		c.metrics.RecordSSEMessageSent(streamEndpoint, event)
	}
	return nil
}
