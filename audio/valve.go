package audio

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Valve is a binary pass/block gate.
//
// While closed, samples are accepted and silently discarded so upstream
// nodes never see backpressure from a muted path. The discard is an
// intentional, documented behavior, not a failure. While open the valve
// forwards transparently to the registered sink.
type Valve struct {
	mu   sync.Mutex
	open bool
	sink Sink
}

// NewValve creates a closed valve.
func NewValve() *Valve {
	return &Valve{}
}

// SetOpen opens or closes the valve.
func (v *Valve) SetOpen(open bool) {
	v.mu.Lock()
	changed := v.open != open
	v.open = open
	v.mu.Unlock()

	if changed {
		logrus.WithFields(logrus.Fields{
			"function": "Valve.SetOpen",
			"open":     open,
		}).Debug("Valve state changed")
	}
}

// IsOpen reports whether the valve currently passes samples.
func (v *Valve) IsOpen() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.open
}

// RegisterSink connects the downstream sink. Passing nil detaches it.
func (v *Valve) RegisterSink(sink Sink) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sink = sink
}

// WriteSamples forwards the block when open, or accepts and drops it when
// closed.
func (v *Valve) WriteSamples(samples []float32) (int, error) {
	v.mu.Lock()
	open := v.open
	sink := v.sink
	v.mu.Unlock()

	if !open || sink == nil {
		return len(samples), nil
	}
	return sink.WriteSamples(samples)
}

// FlushSamples propagates end-of-stream downstream when the valve is open.
func (v *Valve) FlushSamples() {
	v.mu.Lock()
	open := v.open
	sink := v.sink
	v.mu.Unlock()

	if open && sink != nil {
		sink.FlushSamples()
	}
}
