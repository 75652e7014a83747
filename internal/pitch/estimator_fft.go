package pitch

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// FFTAutocorrelation computes the same lag correlations as Autocorrelation
// through the cross-spectrum of the first half-frame and the whole frame.
type FFTAutocorrelation struct {
	opts Options
}

// NewFFTAutocorrelation returns an FFT estimator with default options.
func NewFFTAutocorrelation() *FFTAutocorrelation {
	return &FFTAutocorrelation{opts: DefaultOptions()}
}

// Estimate implements Estimator.
func (e *FFTAutocorrelation) Estimate(frame AudioFrame) float64 {
	x, ok := usable(frame, e.opts.MinLag)
	if !ok {
		return 0
	}

	half := len(x) / 2
	// head[i]*x[i+L] never wraps for L < half when size >= len(x).
	size := nextPow2(len(x))

	head := make([]float64, size)
	copy(head, x[:half])
	whole := make([]float64, size)
	copy(whole, x)

	hs := fft.FFTReal(head)
	ws := fft.FFTReal(whole)
	for i := range ws {
		ws[i] *= cmplx.Conj(hs[i])
	}
	r := fft.IFFT(ws)

	corr := make([]float64, half-e.opts.MinLag+1)
	for j := range corr {
		corr[j] = real(r[e.opts.MinLag-1+j])
	}

	return lagToFrequency(frame.SampleRate, pickLag(corr, e.opts))
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
