package tuner

import (
	"time"

	"github.com/tphakala/fretlab/internal/capture"
	"github.com/tphakala/fretlab/internal/logger"
	"github.com/tphakala/fretlab/internal/pitch"
)

// State is the lifecycle state of a Session.
type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
	StateError     State = "error"
)

// User facing messages for capture failures.
const (
	MessagePermissionDenied  = "Microphone access denied. Please allow microphone access in your system settings."
	MessageDeviceUnavailable = "No audio input device available."
)

// Snapshot is an immutable view of a Session.
type Snapshot struct {
	ID          string             `json:"id"`
	State       State              `json:"state"`
	IsListening bool               `json:"isListening"`
	Starting    bool               `json:"starting"`
	Error       string             `json:"error,omitempty"`
	NoteDetails *pitch.NoteDetails `json:"noteDetails"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// userMessage maps a capture failure to the text shown to the player.
func userMessage(err error) string {
	if capture.IsPermissionDenied(err) {
		return MessagePermissionDenied
	}
	return MessageDeviceUnavailable
}

func errorType(err error) string {
	switch {
	case capture.IsPermissionDenied(err):
		return "permission"
	case capture.IsDeviceUnavailable(err):
		return "device"
	default:
		return "other"
	}
}

// GetLogger returns the tuner module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("tuner")
}
