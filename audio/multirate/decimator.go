package multirate

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/voiceterm/audio"
)

// ErrInvalidStage indicates a stage was constructed with an unsupported
// ratio or an empty coefficient set.
var ErrInvalidStage = errors.New("invalid filter stage parameters")

// Decimator reduces the sample rate by a fixed integer ratio.
//
// Input samples slide through a history buffer the length of the filter;
// for every ratio input samples one low-pass filtered output sample is
// produced. The history persists across WriteSamples calls.
type Decimator struct {
	mu      sync.Mutex
	ratio   int
	taps    []float64
	hist    []float32
	pending []float32 // input samples not yet forming a full ratio group
	outBuf  []float32 // produced samples the sink has not accepted yet
	sink    audio.Sink
}

// NewDecimator creates a decimation stage.
//
// Parameters:
//   - ratio: the integer rate reduction factor (>= 2)
//   - taps: low-pass filter coefficients for this ratio
//
// Returns:
//   - *Decimator: the new stage
//   - error: ErrInvalidStage on bad parameters
func NewDecimator(ratio int, taps []float64) (*Decimator, error) {
	if ratio < 2 || len(taps) == 0 || len(taps) < ratio {
		logrus.WithFields(logrus.Fields{
			"function": "NewDecimator",
			"ratio":    ratio,
			"taps":     len(taps),
			"error":    ErrInvalidStage.Error(),
		}).Error("Decimator parameter validation failed")
		return nil, ErrInvalidStage
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewDecimator",
		"ratio":    ratio,
		"taps":     len(taps),
	}).Debug("Creating decimator stage")

	return &Decimator{
		ratio: ratio,
		taps:  taps,
		hist:  make([]float32, len(taps)),
	}, nil
}

// Ratio returns the rate reduction factor of this stage.
func (d *Decimator) Ratio() int {
	return d.ratio
}

// RegisterSink connects the downstream sink. Passing nil detaches it.
func (d *Decimator) RegisterSink(sink audio.Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sink = sink
}

// WriteSamples consumes a block of input samples and forwards the
// decimated output downstream. The whole input block is always accepted;
// output the sink does not take yet is buffered by the stage.
func (d *Decimator) WriteSamples(samples []float32) (int, error) {
	d.mu.Lock()
	d.pending = append(d.pending, samples...)

	for len(d.pending) >= d.ratio {
		// Slide the next ratio input samples into the history.
		copy(d.hist, d.hist[d.ratio:])
		copy(d.hist[len(d.hist)-d.ratio:], d.pending[:d.ratio])
		d.pending = d.pending[:copy(d.pending, d.pending[d.ratio:])]

		var acc float64
		last := len(d.hist) - 1
		for i, c := range d.taps {
			acc += c * float64(d.hist[last-i])
		}
		d.outBuf = append(d.outBuf, float32(acc))
	}

	err := d.forwardLocked()
	d.mu.Unlock()
	return len(samples), err
}

// FlushSamples pushes any buffered output downstream and propagates the
// end-of-stream signal.
func (d *Decimator) FlushSamples() {
	d.mu.Lock()
	err := d.forwardLocked()
	sink := d.sink
	d.mu.Unlock()

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Decimator.FlushSamples",
			"error":    err.Error(),
		}).Error("Decimator flush forwarding failed")
	}
	if sink != nil {
		sink.FlushSamples()
	}
}

// forwardLocked pushes buffered output to the sink. Caller holds d.mu.
func (d *Decimator) forwardLocked() error {
	if d.sink == nil {
		return nil
	}
	for len(d.outBuf) > 0 {
		n, err := d.sink.WriteSamples(d.outBuf)
		if n > 0 {
			d.outBuf = d.outBuf[:copy(d.outBuf, d.outBuf[n:])]
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
