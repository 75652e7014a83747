// Package tuning holds the standard guitar tuning and the helpers a tuner
// display uses to present a note against it.
package tuning

import (
	"math"

	"github.com/tphakala/fretlab/internal/pitch"
)

// GuitarString is one open string of a tuning.
type GuitarString struct {
	String    int     `json:"string"` // 6 is the lowest
	Name      string  `json:"name"`
	Frequency float64 `json:"frequency"`
}

var standard = []GuitarString{
	{String: 6, Name: "E2", Frequency: 82.41},
	{String: 5, Name: "A2", Frequency: 110.00},
	{String: 4, Name: "D3", Frequency: 146.83},
	{String: 3, Name: "G3", Frequency: 196.00},
	{String: 2, Name: "B3", Frequency: 246.94},
	{String: 1, Name: "E4", Frequency: 329.63},
}

// Standard returns the standard tuning, lowest string first.
func Standard() []GuitarString {
	return append([]GuitarString(nil), standard...)
}

// Target returns the standard string named exactly like note, or nil.
func Target(note *pitch.NoteDetails) *GuitarString {
	if note == nil {
		return nil
	}
	name := note.Name()
	for i := range standard {
		if standard[i].Name == name {
			s := standard[i]
			return &s
		}
	}
	return nil
}

// Nearest returns the standard string closest to frequency and the distance
// to it in cents. It returns nil for non-positive frequencies.
func Nearest(frequency float64) (*GuitarString, float64) {
	if !(frequency > 0) || math.IsInf(frequency, 0) {
		return nil, 0
	}

	best := -1
	bestCents := math.Inf(1)
	for i, s := range standard {
		cents := Cents(frequency, s.Frequency)
		if math.Abs(cents) < math.Abs(bestCents) {
			best = i
			bestCents = cents
		}
	}

	s := standard[best]
	return &s, bestCents
}

// Cents returns the interval from reference to frequency in cents.
func Cents(frequency, reference float64) float64 {
	return 1200 * math.Log2(frequency/reference)
}
