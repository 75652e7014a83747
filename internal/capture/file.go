package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/tphakala/flac"

	"github.com/tphakala/fretlab/internal/errors"
	"github.com/tphakala/fretlab/internal/logger"
)

// FileConfig plays a recording as if it were a microphone.
type FileConfig struct {
	Path string
	Loop bool
}

// Clip is decoded mono audio.
type Clip struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the clip length in seconds.
func (c Clip) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// NewFileOpener returns an Opener that decodes the file and streams it at
// real-time pace. After the end of a non-looping file the device delivers
// silence.
func NewFileOpener(config FileConfig) Opener {
	return func(ctx context.Context) (Device, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		clip, err := DecodeFile(config.Path)
		if err != nil {
			return nil, err
		}

		GetLogger().Info("playing audio file",
			logger.String("path", config.Path),
			logger.Int("sample_rate", clip.SampleRate),
			logger.Float64("seconds", clip.Duration()),
			logger.Bool("loop", config.Loop))

		pos := 0
		fill := func(dst []float32) {
			for i := range dst {
				if pos >= len(clip.Samples) {
					if !config.Loop || len(clip.Samples) == 0 {
						clear(dst[i:])
						return
					}
					pos = 0
				}
				dst[i] = clip.Samples[pos]
				pos++
			}
		}
		release := func() { clip.Samples = nil }

		return newPumpDevice(filepath.Base(config.Path), clip.SampleRate, fill, release), nil
	}
}

// DecodeFile reads the first channel of a WAV or FLAC file.
func DecodeFile(path string) (Clip, error) {
	file, err := os.Open(path)
	if err != nil {
		return Clip{}, errors.New(err).
			Component("capture").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	defer file.Close()

	var clip Clip
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		clip, err = decodeWAV(file)
	case ".flac":
		clip, err = decodeFLAC(file)
	default:
		err = fmt.Errorf("unsupported audio file extension %q", ext)
	}
	if err != nil {
		return Clip{}, errors.New(err).
			Component("capture").
			Category(errors.CategoryFileParsing).
			FileContext(path).
			Build()
	}
	if clip.SampleRate <= 0 {
		return Clip{}, errors.Newf("audio file reports sample rate %d", clip.SampleRate).
			Component("capture").
			Category(errors.CategoryFileParsing).
			FileContext(path).
			Build()
	}
	return clip, nil
}

func sampleDivisor(bitDepth int) (float32, error) {
	switch bitDepth {
	case 16, 24, 32:
		return float32(int64(1) << (bitDepth - 1)), nil
	default:
		return 0, fmt.Errorf("unsupported bit depth: %d", bitDepth)
	}
}

func decodeWAV(file io.ReadSeeker) (Clip, error) {
	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return Clip{}, fmt.Errorf("input is not a valid WAV audio file")
	}

	channels := int(decoder.NumChans)
	if channels < 1 {
		return Clip{}, fmt.Errorf("unsupported number of channels: %d", channels)
	}
	divisor, err := sampleDivisor(int(decoder.BitDepth))
	if err != nil {
		return Clip{}, err
	}

	clip := Clip{SampleRate: int(decoder.SampleRate)}
	buf := &audio.IntBuffer{
		Data:   make([]int, 4096*channels),
		Format: &audio.Format{SampleRate: clip.SampleRate, NumChannels: channels},
	}
	for {
		n, err := decoder.PCMBuffer(buf)
		if err == io.EOF {
			break
		} else if err != nil {
			return Clip{}, err
		}
		if n == 0 {
			break
		}
		for i := 0; i+channels <= n; i += channels {
			clip.Samples = append(clip.Samples, float32(buf.Data[i])/divisor)
		}
	}
	return clip, nil
}

func decodeFLAC(file *os.File) (Clip, error) {
	decoder, err := flac.NewDecoder(file)
	if err != nil {
		return Clip{}, err
	}

	divisor, err := sampleDivisor(decoder.BitsPerSample)
	if err != nil {
		return Clip{}, err
	}
	if decoder.NChannels < 1 {
		return Clip{}, fmt.Errorf("unsupported number of channels: %d", decoder.NChannels)
	}

	clip := Clip{SampleRate: decoder.SampleRate}
	width := decoder.BitsPerSample / 8
	stride := width * decoder.NChannels

	for {
		frame, err := decoder.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return Clip{}, err
		}

		for i := 0; i+stride <= len(frame); i += stride {
			var sample int32
			switch decoder.BitsPerSample {
			case 16:
				sample = int32(int16(binary.LittleEndian.Uint16(frame[i:])))
			case 24:
				sample = int32(uint32(frame[i])|uint32(frame[i+1])<<8|uint32(frame[i+2])<<16) << 8 >> 8
			case 32:
				sample = int32(binary.LittleEndian.Uint32(frame[i:]))
			}
			clip.Samples = append(clip.Samples, float32(sample)/divisor)
		}
	}
	return clip, nil
}

// WriteWAV writes mono samples in [-1, 1] as 16-bit PCM.
func WriteWAV(path string, samples []float64, sampleRate int) error {
	out, err := os.Create(path)
	if err != nil {
		return errors.New(err).
			Component("capture").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}

	encoder := wav.NewEncoder(out, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Data:           make([]int, len(samples)),
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: 1},
		SourceBitDepth: 16,
	}
	for i, s := range samples {
		s = max(-1, min(1, s))
		buf.Data[i] = int(s * 32767)
	}

	if err := encoder.Write(buf); err != nil {
		out.Close()
		return fmt.Errorf("error encoding WAV: %w", err)
	}
	if err := encoder.Close(); err != nil {
		out.Close()
		return fmt.Errorf("error finalizing WAV: %w", err)
	}
	return out.Close()
}
