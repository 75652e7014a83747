package capture

import (
	"context"
	"fmt"

	"github.com/tphakala/fretlab/internal/errors"
	"github.com/tphakala/fretlab/internal/pitch"
)

// ToneConfig configures a synthetic input.
type ToneConfig struct {
	Frequency  float64
	SampleRate int
	Amplitude  float64
	// Harmonics maps harmonic numbers to amplitudes relative to the
	// fundamental.
	Harmonics map[int]float64
}

// NewToneOpener returns an Opener producing a steady tone.
func NewToneOpener(config ToneConfig) Opener {
	return func(ctx context.Context) (Device, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if config.Frequency <= 0 || config.SampleRate <= 0 {
			return nil, errors.Newf("%w: tone needs a positive frequency and sample rate, got %v Hz at %d Hz",
				ErrDeviceUnavailable, config.Frequency, config.SampleRate).
				Component("capture").
				Category(errors.CategoryValidation).
				Build()
		}

		amplitude := config.Amplitude
		if amplitude <= 0 {
			amplitude = 0.5
		}
		osc := &pitch.Oscillator{
			Frequency:  config.Frequency,
			SampleRate: config.SampleRate,
			Amplitude:  amplitude,
			Harmonics:  config.Harmonics,
		}

		var scratch []float64
		fill := func(dst []float32) {
			if cap(scratch) < len(dst) {
				scratch = make([]float64, len(dst))
			}
			s := scratch[:len(dst)]
			osc.Fill(s)
			for i, v := range s {
				dst[i] = float32(v)
			}
		}

		name := fmt.Sprintf("tone %.2f Hz", config.Frequency)
		return newPumpDevice(name, config.SampleRate, fill, nil), nil
	}
}
