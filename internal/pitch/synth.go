package pitch

import "math"

// Oscillator generates a sine with optional harmonics and keeps phase
// continuous between calls.
type Oscillator struct {
	Frequency  float64
	SampleRate int
	Amplitude  float64
	// Harmonics maps a harmonic number (2, 3, ...) to its amplitude relative
	// to the fundamental.
	Harmonics map[int]float64

	n int64
}

// Fill writes the next len(dst) samples.
func (o *Oscillator) Fill(dst []float64) {
	if o.SampleRate <= 0 {
		clear(dst)
		return
	}
	w := 2 * math.Pi * o.Frequency / float64(o.SampleRate)
	for i := range dst {
		t := float64(o.n)
		v := math.Sin(w * t)
		for h, a := range o.Harmonics {
			v += a * math.Sin(float64(h)*w*t)
		}
		dst[i] = o.Amplitude * v
		o.n++
	}
}

// SineFrame returns a frame of a pure tone.
func SineFrame(frequency float64, sampleRate, size int, amplitude, phase float64) AudioFrame {
	samples := make([]float64, size)
	w := 2 * math.Pi * frequency / float64(sampleRate)
	for i := range samples {
		samples[i] = amplitude * math.Sin(w*float64(i)+phase)
	}
	return AudioFrame{Samples: samples, SampleRate: sampleRate}
}
