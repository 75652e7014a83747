package pitch

import (
	"math"

	"github.com/tphakala/simd/f64"

	"github.com/tphakala/fretlab/internal/errors"
)

// AudioFrame is one fixed-length window of mono samples.
type AudioFrame struct {
	Samples    []float64
	SampleRate int
}

// Estimator estimates the fundamental frequency of a frame. It returns 0 when
// the frame has no detectable periodicity and never fails.
type Estimator interface {
	Estimate(frame AudioFrame) float64
}

// Estimator kinds accepted by NewEstimator.
const (
	EstimatorDirect = "direct"
	EstimatorFFT    = "fft"
)

// Options tunes the lag search shared by all estimators.
type Options struct {
	MinLag        int
	PeakThreshold float64
}

// DefaultOptions returns the standard search parameters.
func DefaultOptions() Options {
	return Options{MinLag: MinLag, PeakThreshold: DefaultPeakThreshold}
}

func (o Options) validate() error {
	if o.MinLag < 2 {
		return errors.Newf("min lag must be at least 2, got %d", o.MinLag).
			Component("pitch").
			Category(errors.CategoryValidation).
			Build()
	}
	if !(o.PeakThreshold > 0 && o.PeakThreshold <= 1) {
		return errors.Newf("peak threshold must be in (0, 1], got %v", o.PeakThreshold).
			Component("pitch").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// NewEstimator returns the estimator registered under kind.
func NewEstimator(kind string, opts Options) (Estimator, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	switch kind {
	case EstimatorDirect, "":
		return &Autocorrelation{opts: opts}, nil
	case EstimatorFFT:
		return &FFTAutocorrelation{opts: opts}, nil
	default:
		return nil, errors.Newf("unknown estimator %q", kind).
			Component("pitch").
			Category(errors.CategoryValidation).
			Build()
	}
}

// Autocorrelation evaluates corr(L) = sum_{i<N/2} x[i]*x[i+L] for every lag in
// [MinLag, N/2) directly, one dot product per lag.
type Autocorrelation struct {
	opts Options
}

// NewAutocorrelation returns a direct estimator with default options.
func NewAutocorrelation() *Autocorrelation {
	return &Autocorrelation{opts: DefaultOptions()}
}

// Estimate implements Estimator.
func (a *Autocorrelation) Estimate(frame AudioFrame) float64 {
	x, ok := usable(frame, a.opts.MinLag)
	if !ok {
		return 0
	}

	half := len(x) / 2
	head := x[:half]

	// corr[0] holds lag MinLag-1, used only to tell whether MinLag is a peak.
	corr := make([]float64, half-a.opts.MinLag+1)
	for j := range corr {
		lag := a.opts.MinLag - 1 + j
		corr[j] = f64.DotProduct(head, x[lag:lag+half])
	}

	return lagToFrequency(frame.SampleRate, pickLag(corr, a.opts))
}

// usable returns the frame samples when the frame can be analysed at all.
func usable(frame AudioFrame, minLag int) ([]float64, bool) {
	if frame.SampleRate <= 0 || len(frame.Samples)/2 <= minLag {
		return nil, false
	}
	for _, v := range frame.Samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, false
		}
	}
	return frame.Samples, true
}

// pickLag selects the period from corr, where corr[j] is the correlation at
// lag MinLag-1+j. It returns 0 when no lag in the window correlates
// positively.
//
// The chosen lag is the shortest local peak reaching PeakThreshold times the
// window maximum. Multiples of a stationary period correlate almost equally,
// and the threshold keeps the first of them.
func pickLag(corr []float64, opts Options) int {
	best, bestJ := 0.0, -1
	for j := 1; j < len(corr); j++ {
		if corr[j] > best {
			best, bestJ = corr[j], j
		}
	}
	if bestJ < 0 {
		return 0
	}

	threshold := best * opts.PeakThreshold
	for j := 1; j < len(corr); j++ {
		v := corr[j]
		if v < threshold || corr[j-1] >= v {
			continue
		}
		if j+1 < len(corr) && corr[j+1] > v {
			continue
		}
		return opts.MinLag - 1 + j
	}

	// No interior peak: fall back to the plain maximum.
	return opts.MinLag - 1 + bestJ
}

func lagToFrequency(sampleRate, lag int) float64 {
	if lag <= 0 {
		return 0
	}
	return float64(sampleRate) / float64(lag)
}
