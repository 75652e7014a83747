package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/fretlab/internal/capture"
	"github.com/tphakala/fretlab/internal/errors"
	"github.com/tphakala/fretlab/internal/logger"
	"github.com/tphakala/fretlab/internal/tuner"
	"github.com/tphakala/fretlab/internal/tuning"
)

// TunerView is the JSON form of a tuner snapshot with display helpers.
type TunerView struct {
	tuner.Snapshot
	Target *tuning.GuitarString `json:"target"`
	Status tuning.Status        `json:"status"`
	Needle float64              `json:"needle"`
}

// NewTunerView decorates snap with its tuning target and status.
func NewTunerView(snap tuner.Snapshot) TunerView {
	reading := tuning.Read(snap.NoteDetails)
	return TunerView{
		Snapshot: snap,
		Target:   reading.Target,
		Status:   reading.Status,
		Needle:   reading.Needle,
	}
}

// GetTuner returns the current tuner snapshot.
func (c *Controller) GetTuner(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, NewTunerView(c.Tuner.Snapshot()))
}

// StartTuner opens the microphone and starts listening. The request waits
// for the device; a failed start answers with the error snapshot.
func (c *Controller) StartTuner(ctx echo.Context) error {
	startCtx, cancel := context.WithTimeout(ctx.Request().Context(), startTimeout)
	defer cancel()

	err := c.Tuner.Start(startCtx)
	view := NewTunerView(c.Tuner.Snapshot())
	if err == nil {
		return ctx.JSON(http.StatusOK, view)
	}

	code := startErrorStatus(err)
	c.log.Warn("tuner start failed",
		logger.Error(err),
		logger.Int("status", code),
		logger.String("ip", ctx.RealIP()))
	return ctx.JSON(code, view)
}

// StopTuner stops listening.
func (c *Controller) StopTuner(ctx echo.Context) error {
	c.Tuner.Stop()
	return ctx.JSON(http.StatusOK, NewTunerView(c.Tuner.Snapshot()))
}

func startErrorStatus(err error) int {
	switch {
	case capture.IsPermissionDenied(err):
		return http.StatusForbidden
	case errors.Is(err, tuner.ErrStartAbandoned):
		return http.StatusConflict
	case errors.Is(err, tuner.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusServiceUnavailable
	}
}

// GetStandardTuning returns the standard tuning table.
func (c *Controller) GetStandardTuning(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, tuning.Standard())
}
