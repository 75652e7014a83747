package mqtt

import (
	"time"

	"github.com/tphakala/fretlab/internal/pitch"
	"github.com/tphakala/fretlab/internal/tuner"
	"github.com/tphakala/fretlab/internal/tuning"
)

// NoteDTO is the payload published on <topic>/note.
//
// Field names are part of the MQTT contract; add fields, do not rename them.
type NoteDTO struct {
	SessionID   string               `json:"sessionId"`
	IsListening bool                 `json:"isListening"`
	Note        string               `json:"note,omitempty"` // scientific pitch name, e.g. "E2"
	NoteDetails *pitch.NoteDetails   `json:"noteDetails"`
	Target      *tuning.GuitarString `json:"target,omitempty"`
	Status      tuning.Status        `json:"status"`
	Timestamp   time.Time            `json:"timestamp"`
}

// StateDTO is the retained payload published on <topic>/state.
type StateDTO struct {
	SessionID   string      `json:"sessionId"`
	State       tuner.State `json:"state"`
	IsListening bool        `json:"isListening"`
	Error       string      `json:"error,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

func newNoteDTO(snap tuner.Snapshot) NoteDTO {
	dto := NoteDTO{
		SessionID:   snap.ID,
		IsListening: snap.IsListening,
		NoteDetails: snap.NoteDetails,
		Target:      tuning.Target(snap.NoteDetails),
		Status:      tuning.StatusOf(snap.NoteDetails),
		Timestamp:   snap.UpdatedAt,
	}
	if snap.NoteDetails != nil {
		dto.Note = snap.NoteDetails.Name()
	}
	return dto
}

func newStateDTO(snap tuner.Snapshot) StateDTO {
	return StateDTO{
		SessionID:   snap.ID,
		State:       snap.State,
		IsListening: snap.IsListening,
		Error:       snap.Error,
		Timestamp:   snap.UpdatedAt,
	}
}
