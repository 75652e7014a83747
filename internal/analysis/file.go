// Package analysis runs the pitch estimator over recorded audio.
package analysis

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/fretlab/internal/capture"
	"github.com/tphakala/fretlab/internal/errors"
	"github.com/tphakala/fretlab/internal/logger"
	"github.com/tphakala/fretlab/internal/pitch"
	"github.com/tphakala/fretlab/internal/tuning"
)

// GetLogger returns the analysis module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("analysis")
}

// Config controls how a clip is split into frames.
type Config struct {
	FrameSize int
	// Hop is the distance between frame starts; 0 uses FrameSize.
	Hop int
	// Workers bounds concurrent estimation; 0 uses the CPU count.
	Workers int
}

// Result is the estimate of one frame.
type Result struct {
	Offset time.Duration      `json:"offset"`
	Note   *pitch.NoteDetails `json:"note"`
	Status tuning.Status      `json:"status"`
	Target string             `json:"target,omitempty"`
}

// Report is the analysis of one file.
type Report struct {
	SampleRate int
	// Frame is the duration of one analysis frame.
	Frame   time.Duration
	Results []Result
}

// Segments merges the results into notes.
func (r *Report) Segments() []Segment {
	return Segments(r.Results, r.Frame)
}

// Frames returns every voiced frame as its own segment.
func (r *Report) Frames() []Segment {
	segments := make([]Segment, 0, len(r.Results))
	for _, res := range r.Results {
		if res.Note == nil {
			continue
		}
		segments = append(segments, Segment{
			Start:     res.Offset,
			End:       res.Offset + r.Frame,
			Note:      res.Note.Name(),
			Frequency: res.Note.Frequency,
			Detune:    res.Note.Detune,
			Status:    res.Status,
			Target:    res.Target,
			Frames:    1,
		})
	}
	return segments
}

// FileAnalysis decodes path and estimates every frame.
func FileAnalysis(ctx context.Context, path string, estimator pitch.Estimator, config Config) (*Report, error) {
	if err := validateAudioFile(path); err != nil {
		return nil, err
	}

	clip, err := capture.DecodeFile(path)
	if err != nil {
		return nil, err
	}

	GetLogger().Info("analysing file",
		logger.String("file", filepath.Base(path)),
		logger.Int("sample_rate", clip.SampleRate),
		logger.Float64("seconds", clip.Duration()))

	results, err := AnalyzeClip(ctx, clip, estimator, config)
	if err != nil {
		return nil, err
	}
	return &Report{
		SampleRate: clip.SampleRate,
		Frame:      samplesToDuration(config.FrameSize, clip.SampleRate),
		Results:    results,
	}, nil
}

func samplesToDuration(samples, sampleRate int) time.Duration {
	return time.Duration(float64(samples) / float64(sampleRate) * float64(time.Second))
}

// validateAudioFile checks that path names a non-empty regular file.
func validateAudioFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.New(err).
			Component("analysis").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	if info.IsDir() {
		return errors.Newf("%s is a directory, not a file", filepath.Base(path)).
			Component("analysis").
			Category(errors.CategoryValidation).
			Build()
	}
	if info.Size() == 0 {
		return errors.Newf("file %s is empty", filepath.Base(path)).
			Component("analysis").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// AnalyzeClip estimates every full frame of clip. Results are in clip order.
func AnalyzeClip(ctx context.Context, clip capture.Clip, estimator pitch.Estimator, config Config) ([]Result, error) {
	if config.FrameSize <= 0 {
		return nil, errors.Newf("frame size must be positive, got %d", config.FrameSize).
			Component("analysis").
			Category(errors.CategoryValidation).
			Build()
	}
	hop := config.Hop
	if hop <= 0 {
		hop = config.FrameSize
	}
	workers := config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	if len(clip.Samples) < config.FrameSize {
		return []Result{}, nil
	}
	total := (len(clip.Samples)-config.FrameSize)/hop + 1
	results := make([]Result, total)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range total {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			offset := i * hop
			results[i] = estimateFrame(clip, offset, config.FrameSize, estimator)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	GetLogger().Debug("analysis complete",
		logger.Int("frames", total),
		logger.Int("workers", workers),
		logger.Duration("elapsed", time.Since(start)))
	return results, nil
}

func estimateFrame(clip capture.Clip, offset, size int, estimator pitch.Estimator) Result {
	samples := make([]float64, size)
	for j, v := range clip.Samples[offset : offset+size] {
		samples[j] = float64(v)
	}

	note := pitch.MapFrequency(estimator.Estimate(pitch.AudioFrame{Samples: samples, SampleRate: clip.SampleRate}))
	r := Result{
		Offset: samplesToDuration(offset, clip.SampleRate),
		Note:   note,
		Status: tuning.StatusOf(note),
	}
	if target := tuning.Target(note); target != nil {
		r.Target = target.Name
	}
	return r
}
