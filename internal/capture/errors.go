package capture

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tphakala/fretlab/internal/errors"
)

// Acquisition failures. Every error returned by Session.Open matches exactly
// one of these with errors.Is, unless the open was cancelled.
var (
	ErrPermissionDenied  = errors.NewStd("microphone permission denied")
	ErrDeviceUnavailable = errors.NewStd("audio input device unavailable")
)

// classify converts a backend error into one of the acquisition sentinels and
// wraps it in an enhanced error carrying the device name.
func classify(err error, device, operation string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errors.New(err).
			Component("capture").
			Category(errors.CategoryCancellation).
			Context("device", device).
			Context("operation", operation).
			Build()
	}

	sentinel, category := ErrDeviceUnavailable, errors.CategoryDevice
	if errors.Is(err, ErrPermissionDenied) || (!errors.Is(err, ErrDeviceUnavailable) && isPermissionError(err)) {
		sentinel, category = ErrPermissionDenied, errors.CategoryPermission
	}

	wrapped := err
	if !errors.Is(err, sentinel) {
		wrapped = fmt.Errorf("%w: %w", sentinel, err)
	}

	return errors.New(wrapped).
		Component("capture").
		Category(category).
		Priority(errors.PriorityHigh).
		Context("device", device).
		Context("operation", operation).
		Build()
}

func isPermissionError(err error) bool {
	if errors.Is(err, os.ErrPermission) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"permission", "access denied", "not permitted", "not authorized"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsPermissionDenied reports whether err is an acquisition permission failure.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsDeviceUnavailable reports whether err is a missing or failed device.
func IsDeviceUnavailable(err error) bool {
	return errors.Is(err, ErrDeviceUnavailable)
}
