package multirate

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/voiceterm/audio"
)

// ErrUnsupportedRate indicates a rate pair outside the supported tier set.
// This is a construction-time failure: a pipeline must not be built on it.
var ErrUnsupportedRate = errors.New("unsupported sample rate combination")

// supportedRates is the fixed tier set the chain selector knows how to
// bridge with integer-ratio stages.
var supportedRates = map[int]bool{8000: true, 16000: true, 48000: true}

// stage is a single rate-conversion filter inside a chain.
type stage interface {
	audio.Sink
	RegisterSink(sink audio.Sink)
	Ratio() int
}

// SampleChain converts between two sample rates with a cascade of
// integer-ratio filter stages selected once at construction.
//
// A chain between equal rates is empty and passes samples through
// untouched. The chain itself fills both graph roles: it accepts samples
// at the source rate and pushes converted samples to its registered sink.
type SampleChain struct {
	mu       sync.Mutex
	fromRate int
	toRate   int
	stages   []stage
	sink     audio.Sink // used directly when the chain is empty
}

// NewSampleChain selects the stage cascade converting fromRate to toRate.
//
// Both rates must belong to the supported tier set (8000, 16000, 48000 Hz).
// Decimation runs the larger ratio first (48->16 then 16->8); interpolation
// runs the smaller ratio first (8->16 then 16->48).
//
// Returns:
//   - *SampleChain: the immutable chain (possibly empty)
//   - error: ErrUnsupportedRate for any pair outside the tier set
func NewSampleChain(fromRate, toRate int) (*SampleChain, error) {
	logrus.WithFields(logrus.Fields{
		"function":  "NewSampleChain",
		"from_rate": fromRate,
		"to_rate":   toRate,
	}).Info("Building sample rate conversion chain")

	if !supportedRates[fromRate] || !supportedRates[toRate] {
		logrus.WithFields(logrus.Fields{
			"function":  "NewSampleChain",
			"from_rate": fromRate,
			"to_rate":   toRate,
			"error":     ErrUnsupportedRate.Error(),
		}).Error("Sample rate validation failed")
		return nil, ErrUnsupportedRate
	}

	c := &SampleChain{fromRate: fromRate, toRate: toRate}

	if fromRate == toRate {
		logrus.WithFields(logrus.Fields{
			"function": "NewSampleChain",
			"rate":     fromRate,
		}).Debug("Equal rates, chain is pass-through")
		return c, nil
	}

	var ratios []int
	decimate := fromRate > toRate
	if decimate {
		ratios = stageRatios(fromRate / toRate, true)
	} else {
		ratios = stageRatios(toRate / fromRate, false)
	}

	for _, r := range ratios {
		var (
			st  stage
			err error
		)
		if decimate {
			st, err = NewDecimator(r, coeffForRatio(r))
		} else {
			st, err = NewInterpolator(r, coeffForRatio(r))
		}
		if err != nil {
			return nil, err
		}
		if n := len(c.stages); n > 0 {
			c.stages[n-1].RegisterSink(st)
		}
		c.stages = append(c.stages, st)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "NewSampleChain",
		"from_rate": fromRate,
		"to_rate":   toRate,
		"stages":    len(c.stages),
		"decimate":  decimate,
	}).Info("Sample rate conversion chain built")

	return c, nil
}

// stageRatios decomposes an overall integer ratio into stage ratios.
// Within the supported tiers the only composite ratio is 6.
func stageRatios(overall int, decimate bool) []int {
	switch overall {
	case 2:
		return []int{2}
	case 3:
		return []int{3}
	case 6:
		if decimate {
			return []int{3, 2}
		}
		return []int{2, 3}
	default:
		// Unreachable for the validated tier set.
		return nil
	}
}

// Empty reports whether the chain is a pass-through.
func (c *SampleChain) Empty() bool {
	return len(c.stages) == 0
}

// DecimationFactor returns the composed rate reduction of the chain,
// or 1 for pass-through and interpolating chains.
func (c *SampleChain) DecimationFactor() int {
	if c.fromRate <= c.toRate {
		return 1
	}
	return c.fromRate / c.toRate
}

// InterpolationFactor returns the composed rate increase of the chain,
// or 1 for pass-through and decimating chains.
func (c *SampleChain) InterpolationFactor() int {
	if c.toRate <= c.fromRate {
		return 1
	}
	return c.toRate / c.fromRate
}

// RegisterSink connects the sink that receives converted samples.
func (c *SampleChain) RegisterSink(sink audio.Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = sink
	if n := len(c.stages); n > 0 {
		c.stages[n-1].RegisterSink(sink)
	}
}

// WriteSamples feeds a block into the chain at the source rate.
func (c *SampleChain) WriteSamples(samples []float32) (int, error) {
	c.mu.Lock()
	var first audio.Sink
	if len(c.stages) > 0 {
		first = c.stages[0]
	} else {
		first = c.sink
	}
	c.mu.Unlock()

	if first == nil {
		return len(samples), nil
	}
	return first.WriteSamples(samples)
}

// FlushSamples propagates end-of-stream through every stage in order.
func (c *SampleChain) FlushSamples() {
	c.mu.Lock()
	var first audio.Sink
	if len(c.stages) > 0 {
		first = c.stages[0]
	} else {
		first = c.sink
	}
	c.mu.Unlock()

	if first != nil {
		first.FlushSamples()
	}
}
