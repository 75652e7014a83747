package scheduler

import (
	"sync"
	"time"
)

// TickSource delivers ticks to a sampling loop.
type TickSource interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates the tick source for one loop.
type TickerFactory func(interval time.Duration) TickSource

type timeTicker struct{ t *time.Ticker }

// NewTimeTicker returns a TickSource backed by time.Ticker.
func NewTimeTicker(interval time.Duration) TickSource {
	return timeTicker{t: time.NewTicker(interval)}
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// ManualTicker is a TickSource driven by calls to Tick.
type ManualTicker struct {
	c    chan time.Time
	stop chan struct{}
	once sync.Once
}

// NewManualTicker returns a ticker that only ticks when told to.
func NewManualTicker() *ManualTicker {
	return &ManualTicker{c: make(chan time.Time), stop: make(chan struct{})}
}

// Factory returns a TickerFactory that hands out this ticker.
func (m *ManualTicker) Factory() TickerFactory {
	return func(time.Duration) TickSource { return m }
}

func (m *ManualTicker) C() <-chan time.Time { return m.c }

// Stop makes pending and future Tick calls return false.
func (m *ManualTicker) Stop() {
	m.once.Do(func() { close(m.stop) })
}

// Tick hands one tick to the loop. It blocks until the loop takes it, which
// means the previous tick has finished, and reports false once the ticker
// is stopped.
func (m *ManualTicker) Tick() bool {
	select {
	case <-m.stop:
		return false
	default:
	}
	select {
	case m.c <- time.Now():
		return true
	case <-m.stop:
		return false
	}
}
