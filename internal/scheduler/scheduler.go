// Package scheduler drives periodic pitch analysis of a capture source.
//
// Every tick runs synchronously on the loop goroutine: read the newest frame,
// estimate its pitch, map the frequency to a note and publish the result.
// Ticks of one loop never overlap.
package scheduler

import (
	"sync"
	"time"

	"github.com/tphakala/fretlab/internal/logger"
	"github.com/tphakala/fretlab/internal/observability/metrics"
	"github.com/tphakala/fretlab/internal/pitch"
)

// DefaultInterval is one tick per display frame at 60 Hz.
const DefaultInterval = time.Second / 60

// FrameSource provides the newest audio frame. capture.Handle implements it.
type FrameSource interface {
	ReadLatestFrame() pitch.AudioFrame
}

// Publish receives the note of one tick, nil when the frame had no pitch.
type Publish func(details *pitch.NoteDetails)

// Token identifies a running loop. The zero Token is never issued.
type Token uint64

// Config configures a Scheduler.
type Config struct {
	Interval  time.Duration
	Estimator pitch.Estimator
	// NewTicker creates the tick source of each loop; nil uses time.Ticker.
	NewTicker TickerFactory
	Recorder  metrics.Recorder
}

// Scheduler runs sampling loops.
type Scheduler struct {
	config Config
	log    logger.Logger

	mu    sync.Mutex
	next  Token
	loops map[Token]*loop
}

type loop struct {
	source  FrameSource
	publish Publish
	ticker  TickSource
	stop    chan struct{}
	done    chan struct{}
}

// New returns a scheduler. Zero config fields fall back to 60 Hz ticks, the
// direct estimator with default options and no metrics.
func New(config Config) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Estimator == nil {
		config.Estimator = pitch.NewAutocorrelation()
	}
	if config.NewTicker == nil {
		config.NewTicker = NewTimeTicker
	}
	if config.Recorder == nil {
		config.Recorder = metrics.NoOpRecorder{}
	}
	return &Scheduler{
		config: config,
		log:    logger.Global().Module("scheduler"),
		loops:  make(map[Token]*loop),
	}
}

// Start begins a loop publishing the note of src every tick until the
// returned token is cancelled.
func (s *Scheduler) Start(src FrameSource, publish Publish) Token {
	l := &loop{
		source:  src,
		publish: publish,
		ticker:  s.config.NewTicker(s.config.Interval),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	s.mu.Lock()
	s.next++
	token := s.next
	s.loops[token] = l
	s.mu.Unlock()

	go s.run(l)

	s.log.Debug("sampling loop started",
		logger.Uint64("token", uint64(token)),
		logger.Duration("interval", s.config.Interval))
	return token
}

// Cancel stops the loop of token and waits for an in-flight tick to finish.
// After Cancel returns publish is not called again for that loop. Unknown
// and already cancelled tokens are ignored. Cancel must not be called from
// within publish.
func (s *Scheduler) Cancel(token Token) {
	s.mu.Lock()
	l, ok := s.loops[token]
	delete(s.loops, token)
	s.mu.Unlock()

	if !ok {
		return
	}

	close(l.stop)
	<-l.done
	s.log.Debug("sampling loop cancelled", logger.Uint64("token", uint64(token)))
}

// CancelAll stops every running loop.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	tokens := make([]Token, 0, len(s.loops))
	for token := range s.loops {
		tokens = append(tokens, token)
	}
	s.mu.Unlock()

	for _, token := range tokens {
		s.Cancel(token)
	}
}

// Running returns the number of active loops.
func (s *Scheduler) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.loops)
}

func (s *Scheduler) run(l *loop) {
	defer close(l.done)
	defer l.ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-l.ticker.C():
		}

		// A tick that became ready together with stop must not publish.
		select {
		case <-l.stop:
			return
		default:
		}

		s.tick(l)
	}
}

func (s *Scheduler) tick(l *loop) {
	rec := s.config.Recorder

	frame := l.source.ReadLatestFrame()

	start := time.Now()
	frequency := s.config.Estimator.Estimate(frame)
	rec.RecordDuration(metrics.OpEstimate, time.Since(start).Seconds())

	details := pitch.MapFrequency(frequency)
	if details != nil {
		rec.RecordOperation(metrics.OpEstimate, metrics.StatusPitch)
	} else {
		rec.RecordOperation(metrics.OpEstimate, metrics.StatusNoPitch)
	}

	l.publish(details)
	rec.RecordOperation(metrics.OpTick, metrics.StatusSuccess)
}
