// Package pitch turns fixed-size audio frames into fundamental frequency
// estimates and maps frequencies onto equal-tempered note names.
package pitch

// Analysis window geometry.
//
// The lag search runs over [MinLag, FrameSize/2). Together with the sample
// rate these bounds fix the detectable range:
//
//	highest frequency = sampleRate / MinLag          (1102.5 Hz at 44.1 kHz)
//	lowest frequency  = sampleRate / (FrameSize / 2) (43.1 Hz at 44.1 kHz, N=2048)
//
// Halving the frame size doubles the lowest detectable frequency, so N and
// MinLag must be changed together. Standard tuning spans 82.41 to 329.63 Hz
// and needs N >= 2*sampleRate/82.41 samples per frame to keep the low E in range.
const (
	// DefaultFrameSize is the number of samples per analysed frame (N).
	DefaultFrameSize = 2048

	// MinLag is the smallest autocorrelation lag considered.
	MinLag = 40

	// DefaultPeakThreshold is the fraction of the strongest correlation a
	// shorter lag must reach to be chosen over it. 1.0 selects the plain
	// maximum over the lag window. On clean sines the correlation at every
	// multiple of the period is nearly as large as at the period itself, so
	// the plain maximum lands on a multiple: at 44.1 kHz with N=2048 both
	// 110 Hz and 440 Hz read 54.99 Hz, and more than half of a 50..1000 Hz
	// sweep misses the 2% tolerance. 0.9 keeps every sweep frequency within it.
	DefaultPeakThreshold = 0.9

	// DefaultSampleRate is used by synthetic sources when none is configured.
	DefaultSampleRate = 44100
)

// A4 reference tuning.
const (
	A4Frequency        = 440.0
	centsPerSemitone   = 100.0
	semitonesPerOctave = 12
)

// MinDetectableFrequency returns the lowest frequency the estimator can report
// for the given geometry.
func MinDetectableFrequency(sampleRate, frameSize int) float64 {
	if frameSize < 2 {
		return 0
	}
	return float64(sampleRate) / float64(frameSize/2)
}

// MaxDetectableFrequency returns the highest frequency the estimator can report.
func MaxDetectableFrequency(sampleRate, minLag int) float64 {
	if minLag <= 0 {
		return 0
	}
	return float64(sampleRate) / float64(minLag)
}
