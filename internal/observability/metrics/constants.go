package metrics

import "time"

// Namespace prefixes every metric name.
const Namespace = "fretlab"

// Operation names passed to Recorder.
const (
	// OpTick is one scheduler tick: frame read, estimate, map, publish.
	OpTick = "tick"
	// OpEstimate is a pitch estimate of one frame.
	OpEstimate = "estimate"
	// OpOpen is a capture acquisition attempt.
	OpOpen = "open"
	// OpPublish is an outbound note publication.
	OpPublish = "publish"
)

// Operation statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusPitch   = "pitch"
	StatusNoPitch = "no_pitch"
	StatusSkipped = "skipped"
)

// ShutdownTimeout bounds graceful shutdown of the metrics endpoint.
const ShutdownTimeout = 5 * time.Second
