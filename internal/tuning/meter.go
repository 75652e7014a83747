package tuning

import (
	"math"

	"github.com/tphakala/fretlab/internal/pitch"
)

// Status classifies a detune value.
type Status string

const (
	StatusNone   Status = "none"
	StatusInTune Status = "in_tune"
	StatusSharp  Status = "sharp"
	StatusFlat   Status = "flat"
)

// Meter thresholds in cents.
const (
	InTuneCents  = 5.0
	CloseCents   = 15.0
	BarStepCents = 5.0
	BarCount     = 21
	MaxNeedleDeg = 90.0
	degPerCent   = 1.8
)

// Color of a meter bar.
type Color string

const (
	ColorGreen  Color = "green"
	ColorYellow Color = "yellow"
	ColorRed    Color = "red"
)

// Classify returns InTune when |detune| < 5 cents, otherwise Sharp or Flat.
func Classify(detune float64) Status {
	switch {
	case math.Abs(detune) < InTuneCents:
		return StatusInTune
	case detune > 0:
		return StatusSharp
	default:
		return StatusFlat
	}
}

// StatusOf classifies note, StatusNone when there is no note.
func StatusOf(note *pitch.NoteDetails) Status {
	if note == nil {
		return StatusNone
	}
	return Classify(note.Detune)
}

// NeedleAngle converts detune to a needle rotation in degrees, clamped to
// [-90, 90].
func NeedleAngle(detune float64) float64 {
	return math.Max(-MaxNeedleDeg, math.Min(MaxNeedleDeg, detune*degPerCent))
}

// Bar is one segment of the detune meter.
type Bar struct {
	Cents  float64 `json:"cents"`
	Color  Color   `json:"color"`
	Active bool    `json:"active"`
}

// Bars returns the 21 meter segments from -50 to +50 cents. A bar is active
// when detune lies within half a step of it.
func Bars(detune float64) []Bar {
	bars := make([]Bar, BarCount)
	half := BarStepCents / 2
	for i := range bars {
		c := float64(i-BarCount/2) * BarStepCents
		bars[i] = Bar{
			Cents:  c,
			Color:  barColor(c),
			Active: detune > c-half && detune < c+half,
		}
	}
	return bars
}

func barColor(cents float64) Color {
	switch a := math.Abs(cents); {
	case a < InTuneCents:
		return ColorGreen
	case a < CloseCents:
		return ColorYellow
	default:
		return ColorRed
	}
}

// Reading is everything a display needs to render one note.
type Reading struct {
	Note    *pitch.NoteDetails `json:"note"`
	Target  *GuitarString      `json:"target"`
	Status  Status             `json:"status"`
	Needle  float64            `json:"needle"`
	Bars    []Bar              `json:"bars"`
	Nearest *GuitarString      `json:"nearest,omitempty"`
	// NearestCents is the distance to Nearest.
	NearestCents float64 `json:"nearestCents,omitempty"`
}

// Read builds the display reading of note. A nil note reads as a centred
// needle with no active bar.
func Read(note *pitch.NoteDetails) Reading {
	r := Reading{Note: note, Target: Target(note), Status: StatusOf(note)}
	detune := 0.0
	if note != nil {
		detune = note.Detune
		r.Nearest, r.NearestCents = Nearest(note.Frequency)
	}
	r.Needle = NeedleAngle(detune)
	r.Bars = Bars(detune)
	if note == nil {
		for i := range r.Bars {
			r.Bars[i].Active = false
		}
	}
	return r
}
