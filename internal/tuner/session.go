// Package tuner exposes the tuner as a single session object.
//
// A Session moves between Idle, Listening and Error. Start acquires the
// capture device and starts a sampling loop; every tick replaces the current
// note. Stop cancels the loop before releasing the device, so no note is
// published once Stop has returned.
package tuner

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/fretlab/internal/capture"
	"github.com/tphakala/fretlab/internal/errors"
	"github.com/tphakala/fretlab/internal/logger"
	"github.com/tphakala/fretlab/internal/observability/metrics"
	"github.com/tphakala/fretlab/internal/pitch"
	"github.com/tphakala/fretlab/internal/scheduler"
)

var (
	// ErrStartAbandoned is returned by Start when Stop or Close ran while
	// the device was being opened.
	ErrStartAbandoned = errors.NewStd("start abandoned by stop")
	// ErrSessionClosed is returned by Start after Close.
	ErrSessionClosed = errors.NewStd("tuner session closed")
)

// Observer receives session level metrics. *metrics.TunerMetrics implements it.
type Observer interface {
	metrics.Recorder
	SetListening(listening bool)
	ObserveNote(frequency, detune float64)
}

type noopObserver struct{ metrics.NoOpRecorder }

func (noopObserver) SetListening(bool)            {}
func (noopObserver) ObserveNote(float64, float64) {}

// Config wires a Session to its collaborators.
type Config struct {
	Capture   *capture.Session
	Scheduler *scheduler.Scheduler
	Observer  Observer // optional
	// SubscriberBuffer is the channel capacity handed out by Subscribe.
	SubscriberBuffer int
}

// Session is the tuner state machine. All methods are safe for concurrent use.
type Session struct {
	id       string
	capture  *capture.Session
	sched    *scheduler.Scheduler
	observer Observer
	log      logger.Logger

	// transition serializes device acquisition and teardown so a new Start
	// never picks up a handle that an earlier attempt is about to release.
	transition sync.Mutex

	mu          sync.Mutex
	state       State
	err         error
	errMessage  string
	notes       *pitch.NoteDetails
	updatedAt   time.Time
	handle      *capture.Handle
	token       scheduler.Token
	generation  uint64 // attempt id of the running loop
	attempt     uint64 // pending open attempt, 0 when none
	lastAttempt uint64
	cancelOpen  context.CancelFunc
	closed      bool

	subs subscribers
}

// New returns an idle session.
func New(config Config) (*Session, error) {
	if config.Capture == nil || config.Scheduler == nil {
		return nil, errors.Newf("tuner session requires capture and scheduler").
			Component("tuner").
			Category(errors.CategoryValidation).
			Build()
	}
	if config.Observer == nil {
		config.Observer = noopObserver{}
	}
	if config.SubscriberBuffer <= 0 {
		config.SubscriberBuffer = defaultSubscriberBuffer
	}

	id := uuid.NewString()
	return &Session{
		id:        id,
		capture:   config.Capture,
		sched:     config.Scheduler,
		observer:  config.Observer,
		log:       GetLogger().With(logger.String("session", id)),
		state:     StateIdle,
		updatedAt: time.Now(),
		subs:      newSubscribers(config.SubscriberBuffer),
	}, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Start opens the capture device and begins sampling. It blocks until the
// device is open or the attempt failed. Calling Start while listening or
// while another Start is pending is a no-op returning nil. On failure the
// session enters the Error state and the error is returned.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.state == StateListening || s.attempt != 0 {
		s.mu.Unlock()
		return nil
	}
	s.lastAttempt++
	attempt := s.lastAttempt
	s.attempt = attempt
	openCtx, cancel := context.WithCancel(ctx)
	s.cancelOpen = cancel
	snap := s.snapshotLocked()
	s.mu.Unlock()
	defer cancel()

	s.subs.broadcast(snap)

	s.transition.Lock()
	defer s.transition.Unlock()

	s.log.Debug("opening capture", logger.Uint64("attempt", attempt))
	handle, err := s.capture.Open(openCtx)

	s.mu.Lock()
	if s.attempt != attempt {
		s.mu.Unlock()
		// Stop ran while the device was opening.
		if handle != nil {
			if closeErr := s.capture.Close(handle); closeErr != nil {
				s.log.Warn("releasing abandoned capture failed", logger.Error(closeErr))
			}
		}
		s.observer.RecordOperation(metrics.OpOpen, metrics.StatusSkipped)
		s.log.Info("start abandoned", logger.Uint64("attempt", attempt))
		return ErrStartAbandoned
	}
	s.attempt = 0
	s.cancelOpen = nil

	if err != nil {
		return s.failLocked(err)
	}

	s.handle = handle
	s.generation = attempt
	s.state = StateListening
	s.err = nil
	s.errMessage = ""
	s.notes = nil
	s.updatedAt = time.Now()
	// The loop cannot publish before mu is released.
	s.token = s.sched.Start(handle, s.publisher(attempt))
	snap = s.snapshotLocked()
	s.mu.Unlock()

	s.observer.RecordOperation(metrics.OpOpen, metrics.StatusSuccess)
	s.observer.SetListening(true)
	s.subs.broadcast(snap)
	s.log.Info("listening",
		logger.String("device", handle.DeviceName()),
		logger.Int("sample_rate", handle.SampleRate()))
	return nil
}

// failLocked records an open failure and unlocks mu.
func (s *Session) failLocked(err error) error {
	if errors.Is(err, context.Canceled) {
		s.updatedAt = time.Now()
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.subs.broadcast(snap)
		s.observer.RecordOperation(metrics.OpOpen, metrics.StatusSkipped)
		return err
	}

	s.state = StateError
	s.err = err
	s.errMessage = userMessage(err)
	s.notes = nil
	s.updatedAt = time.Now()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.observer.RecordOperation(metrics.OpOpen, metrics.StatusError)
	s.observer.RecordError(metrics.OpOpen, errorType(err))
	s.subs.broadcast(snap)
	s.log.Error("capture unavailable", logger.Error(err), logger.String("message", snap.Error))
	return err
}

func (s *Session) publisher(generation uint64) scheduler.Publish {
	return func(details *pitch.NoteDetails) {
		s.mu.Lock()
		if s.generation != generation || s.state != StateListening {
			s.mu.Unlock()
			return
		}
		s.notes = details
		s.updatedAt = time.Now()
		snap := s.snapshotLocked()
		s.mu.Unlock()

		if details != nil {
			s.observer.ObserveNote(details.Frequency, details.Detune)
		} else {
			s.observer.ObserveNote(0, 0)
		}
		s.subs.broadcast(snap)
	}
}

// Stop ends listening and releases the device. When a Start is pending its
// attempt is abandoned and the device it acquires is released as soon as the
// open resolves. Stop while idle or in error is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()

	if s.attempt != 0 {
		attempt := s.attempt
		cancel := s.cancelOpen
		s.attempt = 0
		s.cancelOpen = nil
		s.state = StateIdle
		s.err = nil
		s.errMessage = ""
		s.updatedAt = time.Now()
		snap := s.snapshotLocked()
		s.mu.Unlock()

		cancel()
		s.subs.broadcast(snap)
		s.log.Info("pending start cancelled", logger.Uint64("attempt", attempt))
		return
	}

	if s.state != StateListening {
		s.mu.Unlock()
		return
	}

	token, handle := s.token, s.handle
	s.token = 0
	s.handle = nil
	s.generation = 0
	s.state = StateIdle
	s.notes = nil
	s.updatedAt = time.Now()
	snap := s.snapshotLocked()

	s.transition.Lock()
	s.mu.Unlock()

	s.sched.Cancel(token)
	if err := s.capture.Close(handle); err != nil {
		s.log.Warn("capture close failed", logger.Error(err))
	}
	s.transition.Unlock()

	s.observer.SetListening(false)
	s.subs.broadcast(snap)
	s.log.Info("stopped")
}

// Close stops the session and closes all subscriber channels. Start fails
// afterwards.
func (s *Session) Close() {
	s.Stop()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.subs.closeAll()
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// NoteDetails returns the note of the latest tick, or nil.
func (s *Session) NoteDetails() *pitch.NoteDetails {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyNote(s.notes)
}

// IsListening reports whether a sampling loop is running.
func (s *Session) IsListening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateListening
}

// Err returns the error that put the session into the Error state.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Subscribe returns a channel receiving a snapshot after every change, and a
// function that cancels the subscription. Slow subscribers miss snapshots.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	closed := s.closed
	snap := s.snapshotLocked()
	s.mu.Unlock()

	return s.subs.add(snap, closed)
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		ID:          s.id,
		State:       s.state,
		IsListening: s.state == StateListening,
		Starting:    s.attempt != 0,
		Error:       s.errMessage,
		NoteDetails: copyNote(s.notes),
		UpdatedAt:   s.updatedAt,
	}
}

func copyNote(n *pitch.NoteDetails) *pitch.NoteDetails {
	if n == nil {
		return nil
	}
	c := *n
	return &c
}
