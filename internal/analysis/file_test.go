package analysis

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/fretlab/internal/capture"
	"github.com/tphakala/fretlab/internal/pitch"
	"github.com/tphakala/fretlab/internal/tuning"
)

const (
	testRate  = 44100
	testFrame = 2048
)

// melody returns A2, silence and E4, each exactly ten frames long.
func melody() []float64 {
	n := 10 * testFrame
	var samples []float64
	samples = append(samples, pitch.SineFrame(110, testRate, n, 0.5, 0).Samples...)
	samples = append(samples, make([]float64, n)...)
	samples = append(samples, pitch.SineFrame(329.63, testRate, n, 0.5, 0).Samples...)
	return samples
}

func toClip(samples []float64) capture.Clip {
	clip := capture.Clip{Samples: make([]float32, len(samples)), SampleRate: testRate}
	for i, v := range samples {
		clip.Samples[i] = float32(v)
	}
	return clip
}

func frameDuration() time.Duration {
	return time.Duration(testFrame) * time.Second / testRate
}

func TestAnalyzeClip(t *testing.T) {
	t.Parallel()

	results, err := AnalyzeClip(t.Context(), toClip(melody()), pitch.NewAutocorrelation(), Config{FrameSize: testFrame, Workers: 3})
	require.NoError(t, err)
	require.Len(t, results, 30)

	for i, r := range results {
		switch {
		case i < 10:
			require.NotNil(t, r.Note, "frame %d", i)
			assert.Equal(t, "A2", r.Note.Name())
			assert.Equal(t, "A2", r.Target)
			assert.Equal(t, tuning.StatusInTune, r.Status)
		case i < 20:
			assert.Nil(t, r.Note, "frame %d", i)
			assert.Equal(t, tuning.StatusNone, r.Status)
		default:
			require.NotNil(t, r.Note, "frame %d", i)
			assert.Equal(t, "E4", r.Note.Name())
		}
	}
	assert.Equal(t, time.Duration(0), results[0].Offset)
	assert.Equal(t, frameDuration(), results[1].Offset)
}

func TestAnalyzeClipWithHop(t *testing.T) {
	t.Parallel()

	clip := toClip(pitch.SineFrame(196, testRate, 3*testFrame, 0.5, 0).Samples)
	results, err := AnalyzeClip(t.Context(), clip, pitch.NewAutocorrelation(), Config{FrameSize: testFrame, Hop: testFrame / 2})
	require.NoError(t, err)
	require.Len(t, results, 5)
	for _, r := range results {
		require.NotNil(t, r.Note)
		assert.Equal(t, "G3", r.Note.Name())
	}
}

func TestAnalyzeClipEdgeCases(t *testing.T) {
	t.Parallel()

	est := pitch.NewAutocorrelation()

	results, err := AnalyzeClip(t.Context(), toClip(make([]float64, testFrame-1)), est, Config{FrameSize: testFrame})
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = AnalyzeClip(t.Context(), toClip(melody()), est, Config{})
	require.Error(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = AnalyzeClip(ctx, toClip(melody()), est, Config{FrameSize: testFrame})
	require.Error(t, err)
}

func TestFileAnalysis(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "melody.wav")
	require.NoError(t, capture.WriteWAV(path, melody(), testRate))

	report, err := FileAnalysis(t.Context(), path, pitch.NewAutocorrelation(), Config{FrameSize: testFrame})
	require.NoError(t, err)
	assert.Equal(t, testRate, report.SampleRate)
	assert.Equal(t, frameDuration(), report.Frame)
	require.Len(t, report.Results, 30)
	require.NotNil(t, report.Results[0].Note)
	assert.Equal(t, "A2", report.Results[0].Note.Name())

	segments := report.Segments()
	require.Len(t, segments, 2)
	assert.Equal(t, "E4", segments[1].Note)

	frames := report.Frames()
	require.Len(t, frames, 20)
	assert.Equal(t, 1, frames[0].Frames)
	assert.Equal(t, frameDuration(), frames[0].End)
}

func TestFileAnalysisRejectsBadPaths(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.wav")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))

	for _, path := range []string{filepath.Join(dir, "missing.wav"), dir, empty} {
		_, err := FileAnalysis(t.Context(), path, pitch.NewAutocorrelation(), Config{FrameSize: testFrame})
		assert.Error(t, err, path)
	}
}

func TestSegments(t *testing.T) {
	t.Parallel()

	results, err := AnalyzeClip(t.Context(), toClip(melody()), pitch.NewAutocorrelation(), Config{FrameSize: testFrame})
	require.NoError(t, err)

	segments := Segments(results, frameDuration())
	require.Len(t, segments, 2)

	a2, e4 := segments[0], segments[1]
	assert.Equal(t, "A2", a2.Note)
	assert.Equal(t, "A2", a2.Target)
	assert.Equal(t, 10, a2.Frames)
	assert.Equal(t, time.Duration(0), a2.Start)
	assert.Equal(t, results[10].Offset, a2.End)
	assert.InDelta(t, 110, a2.Frequency, 0.5)
	assert.Equal(t, tuning.StatusInTune, a2.Status)

	assert.Equal(t, "E4", e4.Note)
	assert.Equal(t, results[20].Offset, e4.Start)
	assert.Equal(t, results[29].Offset+frameDuration(), e4.End)
}

func TestSegmentsEmpty(t *testing.T) {
	t.Parallel()
	assert.Empty(t, Segments(nil, frameDuration()))
}

func TestWriteResults(t *testing.T) {
	t.Parallel()

	segments := []Segment{
		{Start: 0, End: 500 * time.Millisecond, Note: "A2", Frequency: 110.12, Detune: 1.9, Status: tuning.StatusInTune, Target: "A2", Frames: 10},
		{Start: 61 * time.Second, End: 62 * time.Second, Note: "C#3", Frequency: 139.1, Detune: 2.3, Status: tuning.StatusInTune, Frames: 20},
	}

	var table bytes.Buffer
	require.NoError(t, WriteResults(&table, segments, FormatTable))
	lines := strings.Split(strings.TrimSpace(table.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "START"))
	assert.Contains(t, lines[1], "00:00.000")
	assert.Contains(t, lines[1], "+1.9")
	assert.Contains(t, lines[2], "01:01.000")

	var csvOut bytes.Buffer
	require.NoError(t, WriteResults(&csvOut, segments, FormatCSV))
	records, err := csv.NewReader(&csvOut).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"0.000", "0.500", "A2", "110.12", "1.9", "in_tune", "A2", "10"}, records[1])

	var jsonOut bytes.Buffer
	require.NoError(t, WriteResults(&jsonOut, segments, FormatJSON))
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(jsonOut.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "C#3", decoded[1]["note"])

	assert.Error(t, WriteResults(&bytes.Buffer{}, segments, "xml"))
}
