package pitch

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapFrequency(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		freq       float64
		wantName   string
		wantOctave int
		maxCents   float64
	}{
		{"A4", 440.0, "A", 4, 0.01},
		{"A#4", 466.16, "A#", 4, 1},
		{"low E", 82.41, "E", 2, 1},
		{"high E", 329.63, "E", 4, 1},
		{"middle C", 261.63, "C", 4, 1},
		{"C0", 16.3516, "C", 0, 1},
		{"below C0", 9.72, "D#", -1, 1},
		{"B3 sharp", 250.0, "B", 3, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := MapFrequency(tt.freq)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantName, got.NoteName)
			assert.Equal(t, tt.wantOctave, got.Octave)
			assert.LessOrEqual(t, math.Abs(got.Detune), tt.maxCents)
			assert.InDelta(t, tt.freq, got.Frequency, 1e-12)
		})
	}
}

func TestMapFrequencyNoPitch(t *testing.T) {
	t.Parallel()

	for _, f := range []float64{0, -1, -440, math.NaN(), math.Inf(1), math.Inf(-1)} {
		assert.Nil(t, MapFrequency(f), "frequency %v", f)
	}
}

func TestMapFrequencyDetuneRange(t *testing.T) {
	t.Parallel()

	for f := 1.0; f < 5000; f *= 1.0037 {
		got := MapFrequency(f)
		require.NotNil(t, got)
		assert.Greater(t, got.Detune, -50.0, "frequency %v", f)
		assert.LessOrEqual(t, got.Detune, 50.0, "frequency %v", f)
		assert.Contains(t, NoteNames, got.NoteName)
	}

	// Exactly half-way between A4 and A#4.
	quarter := MapFrequency(440 * math.Pow(2, 0.5/12))
	require.NotNil(t, quarter)
	assert.InDelta(t, 50, math.Abs(quarter.Detune), 1e-6)
	assert.Greater(t, quarter.Detune, -50.0)
}

func TestReferenceFrequencyRoundTrip(t *testing.T) {
	t.Parallel()

	f, err := ReferenceFrequency("A", 4)
	require.NoError(t, err)
	assert.InDelta(t, 440.0, f, 1e-9)

	for octave := -1; octave <= 7; octave++ {
		for _, name := range NoteNames {
			f, err := ReferenceFrequency(name, octave)
			require.NoError(t, err)
			got := MapFrequency(f)
			require.NotNil(t, got)
			assert.Equal(t, name, got.NoteName)
			assert.Equal(t, octave, got.Octave)
			assert.InDelta(t, 0, got.Detune, 1e-6)
		}
	}

	_, err = ReferenceFrequency("H", 2)
	assert.Error(t, err)
}

func TestParseNote(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in         string
		wantName   string
		wantOctave int
		wantErr    bool
	}{
		{"E2", "E", 2, false},
		{"a#4", "A#", 4, false},
		{" C-1 ", "C", -1, false},
		{"G", "", 0, true},
		{"X3", "", 0, true},
		{"", "", 0, true},
		{"E2x", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			name, octave, err := ParseNote(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantOctave, octave)
		})
	}
}

func TestNoteDetailsString(t *testing.T) {
	t.Parallel()

	n := NoteDetails{NoteName: "G", Octave: 3, Detune: -3.26, Frequency: 195.6}
	assert.Equal(t, "G3", n.Name())
	assert.Equal(t, "G3 -3.3 cents (195.60 Hz)", n.String())
}
