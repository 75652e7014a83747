package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tphakala/fretlab/internal/errors"
	"github.com/tphakala/fretlab/internal/logger"
)

// ErrorResponse represents a standardized error response for the API
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"` // Unique identifier for tracking this error
}

// NewErrorResponse creates a new API error response
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorText := message
	if err != nil {
		errorText = err.Error()
	}
	return &ErrorResponse{
		Error:         errorText,
		Message:       message,
		Code:          code,
		CorrelationID: uuid.NewString()[:8],
	}
}

// HandleError logs err and writes a JSON error response.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code)

	c.log.Error("API Error",
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.String("error", resp.Error),
		logger.Int("code", code),
		logger.String("path", ctx.Request().URL.Path),
		logger.String("ip", ctx.RealIP()))

	return ctx.JSON(code, resp)
}

// metricsMiddleware records every request by route pattern.
func (c *Controller) metricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		start := time.Now()
		err := next(ctx)

		status := ctx.Response().Status
		if err != nil {
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
			} else if status < http.StatusBadRequest {
				status = http.StatusInternalServerError
			}
		}

		path := ctx.Path()
		if path == "" {
			path = "unmatched"
		}
		c.metrics.RecordHTTPRequest(ctx.Request().Method, path, status, time.Since(start).Seconds())
		return err
	}
}
