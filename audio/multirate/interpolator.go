package multirate

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/voiceterm/audio"
)

// Interpolator raises the sample rate by a fixed integer ratio.
//
// For every input sample the stage produces ratio output samples through a
// polyphase decomposition of its low-pass filter, with a gain of ratio so
// the signal level is preserved. The input history persists across blocks.
type Interpolator struct {
	mu     sync.Mutex
	ratio  int
	phases [][]float64 // phases[p][k] = taps[k*ratio+p] * ratio
	hist   []float32   // newest input sample first
	outBuf []float32
	sink   audio.Sink
}

// NewInterpolator creates an interpolation stage.
//
// Parameters:
//   - ratio: the integer rate increase factor (>= 2)
//   - taps: low-pass filter coefficients for this ratio
//
// Returns:
//   - *Interpolator: the new stage
//   - error: ErrInvalidStage on bad parameters
func NewInterpolator(ratio int, taps []float64) (*Interpolator, error) {
	if ratio < 2 || len(taps) == 0 || len(taps) < ratio {
		logrus.WithFields(logrus.Fields{
			"function": "NewInterpolator",
			"ratio":    ratio,
			"taps":     len(taps),
			"error":    ErrInvalidStage.Error(),
		}).Error("Interpolator parameter validation failed")
		return nil, ErrInvalidStage
	}

	histLen := (len(taps) + ratio - 1) / ratio
	phases := make([][]float64, ratio)
	for p := 0; p < ratio; p++ {
		phase := make([]float64, histLen)
		for k := 0; k < histLen; k++ {
			idx := k*ratio + p
			if idx < len(taps) {
				phase[k] = taps[idx] * float64(ratio)
			}
		}
		phases[p] = phase
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewInterpolator",
		"ratio":    ratio,
		"taps":     len(taps),
		"history":  histLen,
	}).Debug("Creating interpolator stage")

	return &Interpolator{
		ratio:  ratio,
		phases: phases,
		hist:   make([]float32, histLen),
	}, nil
}

// Ratio returns the rate increase factor of this stage.
func (i *Interpolator) Ratio() int {
	return i.ratio
}

// RegisterSink connects the downstream sink. Passing nil detaches it.
func (i *Interpolator) RegisterSink(sink audio.Sink) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.sink = sink
}

// WriteSamples consumes a block of input samples and forwards the
// interpolated output downstream. The whole input block is always
// accepted; output the sink does not take yet is buffered by the stage.
func (i *Interpolator) WriteSamples(samples []float32) (int, error) {
	i.mu.Lock()
	for _, s := range samples {
		// Shift history: newest sample at index 0.
		copy(i.hist[1:], i.hist)
		i.hist[0] = s

		for _, phase := range i.phases {
			var acc float64
			for k, c := range phase {
				acc += c * float64(i.hist[k])
			}
			i.outBuf = append(i.outBuf, float32(acc))
		}
	}

	err := i.forwardLocked()
	i.mu.Unlock()
	return len(samples), err
}

// FlushSamples pushes any buffered output downstream and propagates the
// end-of-stream signal.
func (i *Interpolator) FlushSamples() {
	i.mu.Lock()
	err := i.forwardLocked()
	sink := i.sink
	i.mu.Unlock()

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Interpolator.FlushSamples",
			"error":    err.Error(),
		}).Error("Interpolator flush forwarding failed")
	}
	if sink != nil {
		sink.FlushSamples()
	}
}

// forwardLocked pushes buffered output to the sink. Caller holds i.mu.
func (i *Interpolator) forwardLocked() error {
	if i.sink == nil {
		return nil
	}
	for len(i.outBuf) > 0 {
		n, err := i.sink.WriteSamples(i.outBuf)
		if n > 0 {
			i.outBuf = i.outBuf[:copy(i.outBuf, i.outBuf[n:])]
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
	return nil
}
