package pitch

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tphakala/fretlab/internal/errors"
)

// NoteNames lists the twelve semitones starting at C.
var NoteNames = [semitonesPerOctave]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// c0 is C in octave 0 with A4 = 440 Hz.
var c0 = A4Frequency * math.Pow(2, -4.75)

// NoteDetails is the nearest note to a measured frequency.
type NoteDetails struct {
	NoteName  string  `json:"noteName"`
	Octave    int     `json:"octave"`
	Detune    float64 `json:"detune"` // cents, in (-50, 50]
	Frequency float64 `json:"frequency"`
}

// Name returns the note in scientific pitch notation, e.g. "A#4".
func (n NoteDetails) Name() string {
	return n.NoteName + strconv.Itoa(n.Octave)
}

func (n NoteDetails) String() string {
	return fmt.Sprintf("%s %+.1f cents (%.2f Hz)", n.Name(), n.Detune, n.Frequency)
}

// MapFrequency returns the nearest note to frequency, or nil when frequency
// is not a positive finite number.
func MapFrequency(frequency float64) *NoteDetails {
	if !(frequency > 0) || math.IsInf(frequency, 0) {
		return nil
	}

	n := semitonesPerOctave * math.Log2(frequency/c0)
	// Half-way values round down so the remainder stays in (-0.5, 0.5].
	idx := int(math.Ceil(n - 0.5))
	detune := (n - float64(idx)) * centsPerSemitone

	return &NoteDetails{
		NoteName:  NoteNames[mod(idx, semitonesPerOctave)],
		Octave:    floorDiv(idx, semitonesPerOctave),
		Detune:    detune,
		Frequency: frequency,
	}
}

// ReferenceFrequency returns the equal-tempered frequency of a note.
func ReferenceFrequency(name string, octave int) (float64, error) {
	for i, n := range NoteNames {
		if strings.EqualFold(n, name) {
			idx := octave*semitonesPerOctave + i
			return c0 * math.Pow(2, float64(idx)/semitonesPerOctave), nil
		}
	}
	return 0, errors.Newf("unknown note name %q", name).
		Component("pitch").
		Category(errors.CategoryValidation).
		Build()
}

// ParseNote parses scientific pitch notation such as "E2", "a#4" or "C-1".
func ParseNote(s string) (name string, octave int, err error) {
	s = strings.TrimSpace(s)
	split := strings.IndexFunc(s, func(r rune) bool { return r == '-' || (r >= '0' && r <= '9') })
	if split <= 0 {
		return "", 0, errors.Newf("invalid note %q", s).
			Component("pitch").
			Category(errors.CategoryValidation).
			Build()
	}

	octave, convErr := strconv.Atoi(s[split:])
	if convErr != nil {
		return "", 0, errors.New(fmt.Errorf("invalid octave in note %q: %w", s, convErr)).
			Component("pitch").
			Category(errors.CategoryValidation).
			Build()
	}

	name = strings.ToUpper(s[:1]) + s[1:split]
	if _, err := ReferenceFrequency(name, octave); err != nil {
		return "", 0, err
	}
	return name, octave, nil
}

func mod(a, b int) int {
	return ((a % b) + b) % b
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
