package capture

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tphakala/fretlab/internal/errors"
	"github.com/tphakala/fretlab/internal/logger"
	"github.com/tphakala/fretlab/internal/pitch"
)

// Config sizes the frames a session produces.
type Config struct {
	// FrameSize is the number of samples in every frame.
	FrameSize int
	// BufferSamples is the ring buffer capacity in samples. Values smaller
	// than FrameSize are raised to FrameSize.
	BufferSamples int
	// MinLag is the estimator's shortest lag, used to report the highest
	// detectable frequency. 0 uses pitch.MinLag.
	MinLag int
}

// Handle is a live capture. Its zero value is not usable; handles come from
// Session.Open.
type Handle struct {
	device     Device
	window     *sampleWindow
	sampleRate int
	closed     atomic.Bool
	closeMu    sync.Mutex
}

// SampleRate returns the device sample rate in Hz.
func (h *Handle) SampleRate() int { return h.sampleRate }

// DeviceName returns the name of the captured device.
func (h *Handle) DeviceName() string { return h.device.Name() }

// Closed reports whether the handle has been released.
func (h *Handle) Closed() bool { return h.closed.Load() }

// ReadLatestFrame returns the newest samples as a frame. It never fails; a
// closed handle yields a silent frame.
func (h *Handle) ReadLatestFrame() pitch.AudioFrame {
	return pitch.AudioFrame{Samples: h.window.latest(), SampleRate: h.sampleRate}
}

// Stats returns the number of samples buffered and dropped since open.
func (h *Handle) Stats() (written, dropped uint64) {
	return h.window.stats()
}

// close releases the handle in a fixed order: stop the device, detach the
// sample window, then close the device context.
func (h *Handle) close() error {
	h.closeMu.Lock()
	defer h.closeMu.Unlock()

	if h.closed.Load() {
		return nil
	}
	h.closed.Store(true)

	var errs []error
	if err := h.device.Stop(); err != nil {
		errs = append(errs, err)
	}
	h.window.detach()
	if err := h.device.Close(); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return errors.New(err).
			Component("capture").
			Category(errors.CategoryDevice).
			Context("device", h.device.Name()).
			Context("operation", "close").
			Build()
	}
	return nil
}

// Session owns at most one live capture handle.
type Session struct {
	opener Opener
	config Config

	openMu sync.Mutex // serializes Open
	mu     sync.Mutex
	live   *Handle
}

// NewSession returns a session acquiring devices through opener.
func NewSession(opener Opener, config Config) *Session {
	if config.FrameSize <= 0 {
		config.FrameSize = pitch.DefaultFrameSize
	}
	if config.MinLag <= 0 {
		config.MinLag = pitch.MinLag
	}
	return &Session{opener: opener, config: config}
}

// FrameSize returns the number of samples per frame.
func (s *Session) FrameSize() int { return s.config.FrameSize }

// DetectableRange returns the frequency range the estimator covers at
// sampleRate with this session's frame size and min lag.
func (s *Session) DetectableRange(sampleRate int) (minHz, maxHz float64) {
	return pitch.MinDetectableFrequency(sampleRate, s.config.FrameSize),
		pitch.MaxDetectableFrequency(sampleRate, s.config.MinLag)
}

// Open acquires the device and starts capture. While a handle is live, Open
// returns it unchanged. Errors match ErrPermissionDenied or
// ErrDeviceUnavailable, or the context error if ctx ended first.
func (s *Session) Open(ctx context.Context) (*Handle, error) {
	s.openMu.Lock()
	defer s.openMu.Unlock()

	if h := s.current(); h != nil {
		return h, nil
	}

	if s.opener == nil {
		return nil, classify(errors.NewStd("no capture device configured"), "", "open")
	}

	device, err := s.opener(ctx)
	if err != nil {
		return nil, classify(err, "", "open")
	}
	if device == nil {
		return nil, classify(errors.NewStd("opener returned no device"), "", "open")
	}

	// A device acquired after ctx ended is released straight away.
	if err := ctx.Err(); err != nil {
		_ = device.Close()
		return nil, classify(err, device.Name(), "open")
	}

	window := newSampleWindow(s.config.FrameSize, s.config.BufferSamples)
	rate, err := device.Start(ctx, window.write)
	if err != nil {
		window.detach()
		_ = device.Close()
		return nil, classify(err, device.Name(), "start")
	}
	if rate <= 0 {
		_ = device.Stop()
		window.detach()
		_ = device.Close()
		return nil, classify(errors.Newf("device reported sample rate %d", rate).Build(), device.Name(), "start")
	}

	h := &Handle{device: device, window: window, sampleRate: rate}

	s.mu.Lock()
	s.live = h
	s.mu.Unlock()

	minHz, maxHz := s.DetectableRange(rate)
	GetLogger().Info("capture opened",
		logger.String("device", device.Name()),
		logger.Int("sample_rate", rate),
		logger.Int("frame_size", s.config.FrameSize),
		logger.Float64("min_hz", minHz),
		logger.Float64("max_hz", maxHz))

	return h, nil
}

// ReadLatestFrame returns the newest frame of h. A nil handle yields a silent
// frame of the configured size.
func (s *Session) ReadLatestFrame(h *Handle) pitch.AudioFrame {
	if h == nil {
		return pitch.AudioFrame{Samples: make([]float64, s.config.FrameSize)}
	}
	return h.ReadLatestFrame()
}

// Close releases h. Closing a nil, never-opened or already closed handle is
// a no-op.
func (s *Session) Close(h *Handle) error {
	if h == nil {
		return nil
	}

	s.mu.Lock()
	if s.live == h {
		s.live = nil
	}
	s.mu.Unlock()

	if h.Closed() {
		return nil
	}

	written, dropped := h.Stats()
	err := h.close()
	if err != nil {
		GetLogger().Warn("capture closed with errors", logger.Error(err))
	} else {
		GetLogger().Info("capture closed",
			logger.String("device", h.device.Name()),
			logger.Uint64("samples", written),
			logger.Uint64("dropped", dropped))
	}
	return err
}

// Live returns the open handle, or nil.
func (s *Session) Live() *Handle {
	return s.current()
}

func (s *Session) current() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live != nil && s.live.Closed() {
		s.live = nil
	}
	return s.live
}
