package capture

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/fretlab/internal/conf"
	"github.com/tphakala/fretlab/internal/pitch"
)

// waitForSamples blocks until at least n samples reached the handle.
func waitForSamples(t *testing.T, h *Handle, n uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		written, _ := h.Stats()
		return written >= n
	}, 5*time.Second, 5*time.Millisecond)
}

func TestToneDeviceProducesDetectablePitch(t *testing.T) {
	t.Parallel()

	const frameSize = 1024
	s := NewSession(NewToneOpener(ToneConfig{Frequency: 110, SampleRate: 8000, Amplitude: 0.8}),
		Config{FrameSize: frameSize, BufferSamples: 8000})

	h, err := s.Open(t.Context())
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Close(h)) }()

	assert.Equal(t, 8000, h.SampleRate())
	assert.Equal(t, "tone 110.00 Hz", h.DeviceName())

	waitForSamples(t, h, frameSize)
	frame := s.ReadLatestFrame(h)

	freq := pitch.NewAutocorrelation().Estimate(frame)
	assert.InEpsilon(t, 110.0, freq, 0.02)
}

func TestToneOpenerRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := NewSession(NewToneOpener(ToneConfig{}), Config{FrameSize: 8}).Open(t.Context())
	require.Error(t, err)
	assert.True(t, IsDeviceUnavailable(err))
}

func TestPumpDeviceStopHaltsDelivery(t *testing.T) {
	t.Parallel()

	var calls int
	dev := newPumpDevice("pump", 1000, func(dst []float32) { clear(dst) }, nil)
	dev.interval = time.Millisecond

	rate, err := dev.Start(t.Context(), func([]float32) { calls++ })
	require.NoError(t, err)
	assert.Equal(t, 1000, rate)

	_, err = dev.Start(t.Context(), func([]float32) {})
	require.Error(t, err, "second start must fail")

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, dev.Stop())
	after := calls
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, after, calls)

	require.NoError(t, dev.Stop())
	require.NoError(t, dev.Close())
}

func TestWAVRoundTripAndFileDevice(t *testing.T) {
	t.Parallel()

	const rate = 16000
	frame := pitch.SineFrame(196, rate, rate/2, 0.5, 0)
	path := filepath.Join(t.TempDir(), "g3.wav")
	require.NoError(t, WriteWAV(path, frame.Samples, rate))

	clip, err := DecodeFile(path)
	require.NoError(t, err)
	assert.Equal(t, rate, clip.SampleRate)
	require.Len(t, clip.Samples, len(frame.Samples))
	for i := 0; i < len(clip.Samples); i += 97 {
		assert.InDelta(t, frame.Samples[i], float64(clip.Samples[i]), 1e-3, "sample %d", i)
	}
	assert.InDelta(t, 0.5, clip.Duration(), 1e-9)

	s := NewSession(NewFileOpener(FileConfig{Path: path, Loop: true}), Config{FrameSize: 1024, BufferSamples: rate})
	h, err := s.Open(t.Context())
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Close(h)) }()

	assert.Equal(t, "g3.wav", h.DeviceName())
	waitForSamples(t, h, 1024)
	freq := pitch.NewAutocorrelation().Estimate(s.ReadLatestFrame(h))
	assert.InEpsilon(t, 196.0, freq, 0.02)
}

func TestFileDeviceSilentAfterEnd(t *testing.T) {
	t.Parallel()

	const rate = 8000
	path := filepath.Join(t.TempDir(), "blip.wav")
	require.NoError(t, WriteWAV(path, pitch.SineFrame(440, rate, 100, 0.5, 0).Samples, rate))

	s := NewSession(NewFileOpener(FileConfig{Path: path}), Config{FrameSize: 64, BufferSamples: rate})
	h, err := s.Open(t.Context())
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Close(h)) }()

	waitForSamples(t, h, 400)
	assert.Equal(t, make([]float64, 64), s.ReadLatestFrame(h).Samples)
}

func TestDecodeFileErrors(t *testing.T) {
	t.Parallel()

	_, err := DecodeFile(filepath.Join(t.TempDir(), "missing.wav"))
	require.Error(t, err)

	_, err = NewSession(NewFileOpener(FileConfig{Path: filepath.Join(t.TempDir(), "missing.flac")}), Config{FrameSize: 8}).
		Open(t.Context())
	require.Error(t, err)
	assert.True(t, IsDeviceUnavailable(err))

	path := filepath.Join(t.TempDir(), "clip.mp3")
	require.NoError(t, WriteWAV(path, []float64{0, 0.1}, 8000))
	_, err = DecodeFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported audio file extension")
}

func TestSampleDivisor(t *testing.T) {
	t.Parallel()

	d, err := sampleDivisor(16)
	require.NoError(t, err)
	assert.InDelta(t, 32768.0, float64(d), 0)

	d, err = sampleDivisor(24)
	require.NoError(t, err)
	assert.InDelta(t, math.Pow(2, 23), float64(d), 0)

	_, err = sampleDivisor(8)
	require.Error(t, err)
}

func TestHexToASCII(t *testing.T) {
	t.Parallel()

	id, err := hexToASCII("73797364656661756c74")
	require.NoError(t, err)
	assert.Equal(t, "sysdefault", id)

	id, err = hexToASCII("6877000000")
	require.NoError(t, err)
	assert.Equal(t, "hw", id)

	_, err = hexToASCII("zz")
	require.Error(t, err)
}

func TestOpenerFromSettings(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{
		Tuner: conf.TunerSettings{FrameSize: 1024, MinLag: 80},
		Audio: conf.AudioSettings{
			Source:        conf.SourceTone,
			BufferSeconds: 0.5,
			Tone:          conf.ToneSourceSettings{Note: "A2", SampleRate: 8000, Amplitude: 0.5},
		},
	}

	s, err := NewSessionFromSettings(settings)
	require.NoError(t, err)
	assert.Equal(t, 1024, s.FrameSize())
	minHz, maxHz := s.DetectableRange(8000)
	assert.InDelta(t, 15.625, minHz, 1e-9)
	assert.InDelta(t, 100, maxHz, 1e-9)

	h, err := s.Open(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "tone 110.00 Hz", h.DeviceName())
	require.NoError(t, s.Close(h))

	settings.Audio.Tone.Note = "H9"
	_, err = OpenerFromSettings(settings)
	require.Error(t, err)

	settings.Audio.Source = "rtsp"
	_, err = OpenerFromSettings(settings)
	require.Error(t, err)

	settings.Audio.Source = conf.SourceFile
	opener, err := OpenerFromSettings(settings)
	require.NoError(t, err)
	assert.NotNil(t, opener)
}
