package capture

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/smallnest/ringbuffer"
)

const bytesPerSample = 4

// sampleWindow buffers device samples as little-endian float32 bytes in a
// ring buffer and keeps the newest frameSize samples for analysis. When the
// ring is full the oldest samples are dropped.
type sampleWindow struct {
	mu       sync.Mutex
	ring     *ringbuffer.RingBuffer
	frame    []float64
	encode   []byte
	drain    []byte
	discard  []byte
	attached bool
	written  uint64
	dropped  uint64
}

func newSampleWindow(frameSize, capacity int) *sampleWindow {
	capacity = max(capacity, frameSize)
	return &sampleWindow{
		ring:     ringbuffer.New(capacity * bytesPerSample),
		frame:    make([]float64, frameSize),
		attached: true,
	}
}

// write appends samples, dropping the oldest buffered samples if needed.
func (w *sampleWindow) write(samples []float32) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.attached || len(samples) == 0 {
		return
	}

	capSamples := w.ring.Capacity() / bytesPerSample
	if len(samples) > capSamples {
		w.dropped += uint64(len(samples) - capSamples)
		samples = samples[len(samples)-capSamples:]
	}

	need := len(samples) * bytesPerSample
	if free := w.ring.Free(); free < need {
		// Free space is always a whole number of samples because reads and
		// writes are sample aligned.
		over := need - free
		if cap(w.discard) < over {
			w.discard = make([]byte, over)
		}
		n, _ := w.ring.Read(w.discard[:over])
		w.dropped += uint64(n / bytesPerSample)
	}

	if cap(w.encode) < need {
		w.encode = make([]byte, need)
	}
	buf := w.encode[:need]
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*bytesPerSample:], math.Float32bits(s))
	}
	if _, err := w.ring.Write(buf); err == nil {
		w.written += uint64(len(samples))
	}
}

// latest drains buffered samples into the sliding frame and returns a copy of
// it. Before frameSize samples have arrived the head of the frame is zero.
func (w *sampleWindow) latest() []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]float64, len(w.frame))
	if !w.attached {
		return out
	}

	n := w.ring.Length()
	n -= n % bytesPerSample
	if n > 0 {
		if cap(w.drain) < n {
			w.drain = make([]byte, n)
		}
		read, _ := w.ring.Read(w.drain[:n])
		w.shiftIn(w.drain[:read-read%bytesPerSample])
	}

	copy(out, w.frame)
	return out
}

// shiftIn appends decoded samples to the end of the frame.
func (w *sampleWindow) shiftIn(raw []byte) {
	count := len(raw) / bytesPerSample
	size := len(w.frame)
	skip := 0
	if count > size {
		skip = count - size
		count = size
	}
	copy(w.frame, w.frame[count:])
	dst := w.frame[size-count:]
	for i := range dst {
		off := (skip + i) * bytesPerSample
		dst[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[off:])))
	}
}

// detach stops accepting samples and clears buffered audio.
func (w *sampleWindow) detach() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attached = false
	w.ring.Reset()
	clear(w.frame)
}

func (w *sampleWindow) stats() (written, dropped uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written, w.dropped
}
