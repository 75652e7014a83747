// Package capture owns audio input devices and the sample window frames are
// read from.
package capture

import (
	"context"
	"time"
)

// Sink receives mono samples from a device. Devices call it from their own
// goroutine or audio thread; it must not block.
type Sink func(samples []float32)

// Device is an acquired audio input.
type Device interface {
	// Name identifies the device in logs and device listings.
	Name() string
	// Start begins delivering samples to sink and returns the sample rate
	// in Hz the samples are produced at. ctx bounds the start request only;
	// delivery continues until Stop.
	Start(ctx context.Context, sink Sink) (sampleRate int, err error)
	// Stop halts sample delivery. No sink call happens after Stop returns.
	Stop() error
	// Close releases the underlying device context.
	Close() error
}

// Opener acquires a device. It may block until the host grants or refuses
// access; ctx cancels the request.
type Opener func(ctx context.Context) (Device, error)

// DeviceInfo describes a capture device available on the host.
type DeviceInfo struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	ID        string `json:"id"`
	IsDefault bool   `json:"isDefault"`
}

// pumpInterval is how often the software devices push samples.
const pumpInterval = 10 * time.Millisecond

// chunkSize returns the samples produced per pumpInterval at rate.
func chunkSize(rate int) int {
	n := int(time.Duration(rate) * pumpInterval / time.Second)
	return max(n, 1)
}
