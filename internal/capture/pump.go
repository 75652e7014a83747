package capture

import (
	"context"
	"sync"
	"time"

	"github.com/tphakala/fretlab/internal/errors"
)

// pumpDevice delivers generated samples at real-time pace from a goroutine.
type pumpDevice struct {
	name     string
	rate     int
	interval time.Duration
	fill     func(dst []float32)
	release  func()

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func newPumpDevice(name string, rate int, fill func(dst []float32), release func()) *pumpDevice {
	return &pumpDevice{
		name:     name,
		rate:     rate,
		interval: pumpInterval,
		fill:     fill,
		release:  release,
	}
}

func (p *pumpDevice) Name() string { return p.name }

func (p *pumpDevice) Start(ctx context.Context, sink Sink) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stop != nil {
		return 0, errors.Newf("capture device %s already started", p.name).
			Component("capture").
			Category(errors.CategoryState).
			Build()
	}

	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.run(sink, p.stop, p.done)

	return p.rate, nil
}

func (p *pumpDevice) run(sink Sink, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	buf := make([]float32, chunkSize(p.rate))
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.fill(buf)
			sink(buf)
		}
	}
}

// Stop waits for the pump goroutine, so the sink is never called after it
// returns.
func (p *pumpDevice) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stop == nil {
		return nil
	}
	close(p.stop)
	<-p.done
	p.stop, p.done = nil, nil
	return nil
}

func (p *pumpDevice) Close() error {
	if err := p.Stop(); err != nil {
		return err
	}
	if p.release != nil {
		p.release()
		p.release = nil
	}
	return nil
}
