package multirate

import "math"

// Low-pass FIR coefficient sets for the supported stage ratios. Each set
// is designed once at package initialization with a Hamming-windowed sinc
// and normalized to unity DC gain. The cutoffs sit slightly below the
// ideal Nyquist fraction (1/4 for ratio 2, 1/6 for ratio 3) to leave a
// transition-band guard against aliasing.
var (
	coeffRatio2 = lowpass(64, 0.230)
	coeffRatio3 = lowpass(96, 0.154)
)

// coeffForRatio returns the filter taps for a stage ratio. Only ratios 2
// and 3 occur in the supported rate tiers.
func coeffForRatio(ratio int) []float64 {
	switch ratio {
	case 2:
		return coeffRatio2
	case 3:
		return coeffRatio3
	default:
		return nil
	}
}

// lowpass designs a Hamming-windowed sinc low-pass filter.
//
// Parameters:
//   - taps: filter length
//   - cutoff: cutoff frequency as a fraction of the sample rate (0, 0.5)
//
// The result is normalized so the coefficients sum to exactly 1.
func lowpass(taps int, cutoff float64) []float64 {
	h := make([]float64, taps)
	center := float64(taps-1) / 2.0

	for i := range h {
		t := float64(i) - center
		var s float64
		if t == 0 {
			s = 2.0 * cutoff
		} else {
			s = math.Sin(2.0*math.Pi*cutoff*t) / (math.Pi * t)
		}
		// Hamming window.
		w := 0.54 - 0.46*math.Cos(2.0*math.Pi*float64(i)/float64(taps-1))
		h[i] = s * w
	}

	var sum float64
	for _, c := range h {
		sum += c
	}
	for i := range h {
		h[i] /= sum
	}

	return h
}
