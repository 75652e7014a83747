package capture

import (
	"github.com/tphakala/fretlab/internal/conf"
	"github.com/tphakala/fretlab/internal/errors"
	"github.com/tphakala/fretlab/internal/pitch"
)

// fallbackRate sizes the ring buffer before the device rate is known.
const fallbackRate = 48000

// NewSessionFromSettings builds a capture session for the configured source.
func NewSessionFromSettings(settings *conf.Settings) (*Session, error) {
	opener, err := OpenerFromSettings(settings)
	if err != nil {
		return nil, err
	}

	rate := settings.Audio.SampleRate
	if settings.Audio.Source == conf.SourceTone {
		rate = settings.Audio.Tone.SampleRate
	}
	if rate <= 0 {
		rate = fallbackRate
	}

	return NewSession(opener, Config{
		FrameSize:     settings.Tuner.FrameSize,
		BufferSamples: int(settings.Audio.BufferSeconds * float64(rate)),
		MinLag:        settings.Tuner.MinLag,
	}), nil
}

// OpenerFromSettings returns the Opener for settings.Audio.Source.
func OpenerFromSettings(settings *conf.Settings) (Opener, error) {
	audio := settings.Audio

	switch audio.Source {
	case conf.SourceMalgo, "":
		return NewMalgoOpener(MalgoConfig{
			Device:     audio.Device,
			SampleRate: audio.SampleRate,
			Debug:      settings.Debug,
		}), nil

	case conf.SourceFile:
		return NewFileOpener(FileConfig{Path: audio.File.Path, Loop: audio.File.Loop}), nil

	case conf.SourceTone:
		frequency := audio.Tone.Frequency
		if audio.Tone.Note != "" {
			name, octave, err := pitch.ParseNote(audio.Tone.Note)
			if err != nil {
				return nil, errors.New(err).
					Component("capture").
					Category(errors.CategoryConfiguration).
					Context("note", audio.Tone.Note).
					Build()
			}
			if frequency, err = pitch.ReferenceFrequency(name, octave); err != nil {
				return nil, err
			}
		}
		return NewToneOpener(ToneConfig{
			Frequency:  frequency,
			SampleRate: audio.Tone.SampleRate,
			Amplitude:  audio.Tone.Amplitude,
		}), nil

	default:
		return nil, errors.Newf("unknown audio source %q", audio.Source).
			Component("capture").
			Category(errors.CategoryConfiguration).
			Build()
	}
}
