package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/fretlab/internal/observability/metrics"
	"github.com/tphakala/fretlab/internal/pitch"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// frameQueue serves queued frames, then silence.
type frameQueue struct {
	mu     sync.Mutex
	frames []pitch.AudioFrame
	reads  atomic.Int32
}

func (q *frameQueue) ReadLatestFrame() pitch.AudioFrame {
	q.reads.Add(1)
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.frames) == 0 {
		return pitch.AudioFrame{Samples: make([]float64, 2048), SampleRate: 44100}
	}
	f := q.frames[0]
	q.frames = q.frames[1:]
	return f
}

type countingRecorder struct {
	mu  sync.Mutex
	ops map[string]int
}

func (r *countingRecorder) RecordOperation(operation, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ops == nil {
		r.ops = make(map[string]int)
	}
	r.ops[operation+"/"+status]++
}

func (r *countingRecorder) RecordDuration(string, float64) {}
func (r *countingRecorder) RecordError(string, string)     {}

func (r *countingRecorder) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ops[key]
}

func TestTicksPublishNotes(t *testing.T) {
	t.Parallel()

	ticker := NewManualTicker()
	rec := &countingRecorder{}
	s := New(Config{NewTicker: ticker.Factory(), Recorder: rec})

	src := &frameQueue{frames: []pitch.AudioFrame{
		pitch.SineFrame(440, 44100, 2048, 0.8, 0),
		{Samples: make([]float64, 2048), SampleRate: 44100},
		pitch.SineFrame(82.41, 44100, 2048, 0.8, 0),
	}}

	published := make(chan *pitch.NoteDetails, 3)
	token := s.Start(src, func(d *pitch.NoteDetails) { published <- d })
	assert.NotZero(t, token)
	assert.Equal(t, 1, s.Running())

	for range 3 {
		require.True(t, ticker.Tick())
	}

	first := <-published
	require.NotNil(t, first)
	assert.Equal(t, "A", first.NoteName)
	assert.Equal(t, 4, first.Octave)

	assert.Nil(t, <-published, "silence publishes nil")

	third := <-published
	require.NotNil(t, third)
	assert.Equal(t, "E2", third.Name())

	s.Cancel(token)
	assert.Equal(t, 0, s.Running())
	assert.Equal(t, 3, rec.count(metrics.OpTick+"/"+metrics.StatusSuccess))
	assert.Equal(t, 2, rec.count(metrics.OpEstimate+"/"+metrics.StatusPitch))
	assert.Equal(t, 1, rec.count(metrics.OpEstimate+"/"+metrics.StatusNoPitch))
}

func TestNoPublishAfterCancel(t *testing.T) {
	t.Parallel()

	ticker := NewManualTicker()
	s := New(Config{NewTicker: ticker.Factory()})

	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	token := s.Start(&frameQueue{}, func(*pitch.NoteDetails) {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
		}
	})

	require.True(t, ticker.Tick())
	<-entered

	cancelled := make(chan struct{})
	go func() {
		s.Cancel(token)
		close(cancelled)
	}()

	select {
	case <-cancelled:
		t.Fatal("Cancel returned while a tick was still publishing")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-cancelled

	assert.False(t, ticker.Tick(), "cancelled loop takes no more ticks")
	assert.Equal(t, int32(1), calls.Load())
}

func TestCancelIsIdempotent(t *testing.T) {
	t.Parallel()

	s := New(Config{NewTicker: NewManualTicker().Factory()})
	s.Cancel(0)
	s.Cancel(42)

	token := s.Start(&frameQueue{}, func(*pitch.NoteDetails) {})
	s.Cancel(token)
	s.Cancel(token)
	assert.Equal(t, 0, s.Running())
}

func TestTokensAreDistinct(t *testing.T) {
	t.Parallel()

	s := New(Config{NewTicker: func(time.Duration) TickSource { return NewManualTicker() }})
	a := s.Start(&frameQueue{}, func(*pitch.NoteDetails) {})
	b := s.Start(&frameQueue{}, func(*pitch.NoteDetails) {})
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, s.Running())

	s.CancelAll()
	assert.Equal(t, 0, s.Running())
}

func TestTimeTickerDrivesLoop(t *testing.T) {
	t.Parallel()

	s := New(Config{Interval: time.Millisecond})
	src := &frameQueue{}
	var published atomic.Int32
	token := s.Start(src, func(*pitch.NoteDetails) { published.Add(1) })

	require.Eventually(t, func() bool { return published.Load() >= 3 }, 2*time.Second, time.Millisecond)
	s.Cancel(token)

	after := published.Load()
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, after, published.Load())
	assert.Equal(t, src.reads.Load(), published.Load())
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	assert.Equal(t, DefaultInterval, s.config.Interval)
	assert.NotNil(t, s.config.Estimator)
	assert.NotNil(t, s.config.Recorder)
}
