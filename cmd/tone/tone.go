package tone

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tphakala/fretlab/internal/capture"
	"github.com/tphakala/fretlab/internal/conf"
	"github.com/tphakala/fretlab/internal/errors"
	"github.com/tphakala/fretlab/internal/pitch"
)

// Command creates the tone command writing a reference tone to a WAV file.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		output     string
		seconds    float64
		sampleRate int
		amplitude  float64
	)

	cmd := &cobra.Command{
		Use:   "tone [note|frequency]",
		Short: "Write a reference tone to a WAV file",
		Long:  "Synthesize a sine at a note such as A2 or a frequency in Hz and write it as 16-bit mono WAV.",
		Example: "  fretlab tone E2 -o e2.wav\n" +
			"  fretlab tone 146.83 --seconds 5",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			frequency, err := ParseTarget(args[0])
			if err != nil {
				return err
			}
			if sampleRate <= 0 {
				sampleRate = settings.Audio.Tone.SampleRate
			}

			samples, err := Synthesize(frequency, sampleRate, seconds, amplitude)
			if err != nil {
				return err
			}
			if output == "" {
				output = args[0] + ".wav"
			}
			if err := capture.WriteWAV(output, samples, sampleRate); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %.2f Hz (%s) to %s\n", frequency, pitch.MapFrequency(frequency).Name(), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output WAV file, defaults to <note>.wav")
	cmd.Flags().Float64Var(&seconds, "seconds", 3, "Tone length in seconds")
	cmd.Flags().IntVar(&sampleRate, "samplerate", 0, "Sample rate, defaults to audio.tone.samplerate")
	cmd.Flags().Float64Var(&amplitude, "amplitude", 0.5, "Peak amplitude between 0 and 1")

	return cmd
}

// ParseTarget accepts a note in scientific pitch notation or a frequency in Hz.
func ParseTarget(s string) (float64, error) {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if !(f > 0) {
			return 0, errors.Newf("frequency must be positive, got %v", f).
				Component("tone").
				Category(errors.CategoryValidation).
				Build()
		}
		return f, nil
	}

	name, octave, err := pitch.ParseNote(s)
	if err != nil {
		return 0, err
	}
	return pitch.ReferenceFrequency(name, octave)
}

// Synthesize returns seconds of a sine at frequency.
func Synthesize(frequency float64, sampleRate int, seconds, amplitude float64) ([]float64, error) {
	if sampleRate <= 0 || !(seconds > 0) {
		return nil, errors.Newf("need a positive sample rate and length, got %d Hz for %v s", sampleRate, seconds).
			Component("tone").
			Category(errors.CategoryValidation).
			Build()
	}
	if !(amplitude > 0 && amplitude <= 1) {
		return nil, errors.Newf("amplitude must be in (0, 1], got %v", amplitude).
			Component("tone").
			Category(errors.CategoryValidation).
			Build()
	}

	samples := make([]float64, int(seconds*float64(sampleRate)))
	osc := &pitch.Oscillator{Frequency: frequency, SampleRate: sampleRate, Amplitude: amplitude}
	osc.Fill(samples)
	return samples, nil
}
