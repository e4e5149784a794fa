package device

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/voiceterm/audio"
)

// Trace records device lifecycle events in order. Tests share one Trace
// between several mock devices to assert open/close choreography, and the
// arbiter's valve wrapper can record into the same trace.
type Trace struct {
	mu     sync.Mutex
	events []string
}

// NewTrace creates an empty event trace.
func NewTrace() *Trace {
	return &Trace{}
}

// Record appends one event.
func (t *Trace) Record(event string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
}

// Events returns a copy of the recorded events.
func (t *Trace) Events() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.events...)
}

// Mock is an in-memory Device for tests and the demo CLI. It records its
// lifecycle into an optional shared Trace, can be told to fail Open, and
// captures everything written to it.
type Mock struct {
	name     string
	rate     int
	trace    *Trace
	mu       sync.Mutex
	open     bool
	mode     Mode
	failOpen bool
	sink     audio.Sink
	written  []float32
	flushed  bool
}

// NewMock creates a mock device with the given name and native rate.
func NewMock(name string, rate int, trace *Trace) *Mock {
	return &Mock{name: name, rate: rate, trace: trace}
}

// SetFailOpen makes subsequent Open calls fail, simulating busy hardware.
func (m *Mock) SetFailOpen(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOpen = fail
}

// Open marks the device open, or fails when SetFailOpen was armed.
func (m *Mock) Open(mode Mode) error {
	m.mu.Lock()
	fail := m.failOpen
	if !fail {
		m.open = true
		m.mode = mode
	}
	m.mu.Unlock()

	if fail {
		if m.trace != nil {
			m.trace.Record(fmt.Sprintf("%s:open-failed:%s", m.name, mode))
		}
		logrus.WithFields(logrus.Fields{
			"function": "Mock.Open",
			"device":   m.name,
			"mode":     mode.String(),
		}).Warn("Mock device open failure injected")
		return fmt.Errorf("device %s: open %s failed", m.name, mode)
	}

	if m.trace != nil {
		m.trace.Record(fmt.Sprintf("%s:open:%s", m.name, mode))
	}
	return nil
}

// Close marks the device closed. Closing a closed device records nothing.
func (m *Mock) Close() {
	m.mu.Lock()
	wasOpen := m.open
	m.open = false
	m.mu.Unlock()

	if wasOpen && m.trace != nil {
		m.trace.Record(m.name + ":close")
	}
}

// IsOpen reports whether the device is open.
func (m *Mock) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// Mode returns the direction the device was last opened for.
func (m *Mock) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// SampleRate returns the configured native rate.
func (m *Mock) SampleRate() int {
	return m.rate
}

// RegisterSink connects the capture sink.
func (m *Mock) RegisterSink(sink audio.Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = sink
}

// PushSamples simulates the hardware delivering a capture block. Blocks
// pushed while the device is closed are dropped, as real hardware would.
func (m *Mock) PushSamples(samples []float32) (int, error) {
	m.mu.Lock()
	open := m.open && m.mode == ModeRead
	sink := m.sink
	m.mu.Unlock()

	if !open || sink == nil {
		return len(samples), nil
	}
	return sink.WriteSamples(samples)
}

// WriteSamples records a playback block. While closed the block is
// accepted and dropped.
func (m *Mock) WriteSamples(samples []float32) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open && m.mode == ModeWrite {
		m.written = append(m.written, samples...)
	}
	return len(samples), nil
}

// Written returns a copy of all samples played back so far.
func (m *Mock) Written() []float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float32(nil), m.written...)
}

// FlushSamples marks the playback stream flushed.
func (m *Mock) FlushSamples() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushed = true
}

// Flushed reports whether a flush was received.
func (m *Mock) Flushed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushed
}
