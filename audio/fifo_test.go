package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureSink records everything written to it and can simulate
// backpressure by limiting how many samples it accepts per call.
type captureSink struct {
	samples  []float32
	maxTake  int // 0 means unlimited
	flushed  bool
	writeErr error
}

func (c *captureSink) WriteSamples(samples []float32) (int, error) {
	n := len(samples)
	if c.maxTake > 0 && n > c.maxTake {
		n = c.maxTake
	}
	c.samples = append(c.samples, samples[:n]...)
	return n, c.writeErr
}

func (c *captureSink) FlushSamples() {
	c.flushed = true
}

func TestNewFifo(t *testing.T) {
	tests := []struct {
		name      string
		capacity  int
		expectErr bool
	}{
		{name: "valid_capacity", capacity: 16, expectErr: false},
		{name: "zero_capacity", capacity: 0, expectErr: true},
		{name: "negative_capacity", capacity: -4, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fifo, err := NewFifo(tt.capacity, false)
			if tt.expectErr {
				assert.ErrorIs(t, err, ErrInvalidCapacity)
				assert.Nil(t, fifo)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, fifo)
			}
		})
	}
}

func TestFifoPrebufferGatesEmission(t *testing.T) {
	fifo, err := NewFifo(64, true)
	require.NoError(t, err)
	fifo.SetPrebufSamples(8)

	sink := &captureSink{}
	fifo.RegisterSink(sink)

	// Below the threshold nothing is emitted.
	n, err := fifo.WriteSamples(make([]float32, 5))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Empty(t, sink.samples)
	assert.Equal(t, 5, fifo.Len())

	// Crossing the threshold drains everything queued so far.
	n, err = fifo.WriteSamples(make([]float32, 5))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Len(t, sink.samples, 10)
	assert.Equal(t, 0, fifo.Len())

	// Once started, emission continues even below the threshold.
	n, err = fifo.WriteSamples(make([]float32, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, sink.samples, 12)
}

func TestFifoOverwriteDropsOldest(t *testing.T) {
	fifo, err := NewFifo(4, true)
	require.NoError(t, err)
	// No sink registered: samples stay queued.
	fifo.SetPrebufSamples(100)

	n, err := fifo.WriteSamples([]float32{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	// Overflow discards the oldest two, not the write.
	n, err = fifo.WriteSamples([]float32{5, 6})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 4, fifo.Len())

	fifo.SetPrebufSamples(0)
	sink := &captureSink{}
	fifo.RegisterSink(sink)
	fifo.FlushSamples()
	assert.Equal(t, []float32{3, 4, 5, 6}, sink.samples)
}

func TestFifoOverwriteHugeBlock(t *testing.T) {
	fifo, err := NewFifo(4, true)
	require.NoError(t, err)
	fifo.SetPrebufSamples(100)

	n, err := fifo.WriteSamples([]float32{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, 4, fifo.Len())
}

func TestFifoBlockingModeRejectsOverflow(t *testing.T) {
	fifo, err := NewFifo(4, false)
	require.NoError(t, err)
	fifo.SetPrebufSamples(100)

	n, err := fifo.WriteSamples([]float32{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Only one slot left: partial acceptance, no drop.
	n, err = fifo.WriteSamples([]float32{4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 4, fifo.Len())
}

func TestFifoBackpressureKeepsRemainder(t *testing.T) {
	fifo, err := NewFifo(64, true)
	require.NoError(t, err)
	sink := &captureSink{maxTake: 3}
	fifo.RegisterSink(sink)

	n, err := fifo.WriteSamples([]float32{1, 2, 3, 4, 5, 6, 7})
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	// Sink takes three per call until the queue is empty.
	assert.Len(t, sink.samples, 7)
	assert.Equal(t, 0, fifo.Len())
}

func TestFifoFlushPropagatesWhenDrained(t *testing.T) {
	fifo, err := NewFifo(64, true)
	require.NoError(t, err)
	fifo.SetPrebufSamples(16)
	sink := &captureSink{}
	fifo.RegisterSink(sink)

	_, err = fifo.WriteSamples([]float32{1, 2, 3})
	require.NoError(t, err)
	assert.False(t, sink.flushed)

	fifo.FlushSamples()
	assert.Equal(t, []float32{1, 2, 3}, sink.samples)
	assert.True(t, sink.flushed)

	// Prebuffer is re-armed after a completed flush.
	_, err = fifo.WriteSamples([]float32{4})
	require.NoError(t, err)
	assert.Len(t, sink.samples, 3)
}

func TestFifoClear(t *testing.T) {
	fifo, err := NewFifo(64, true)
	require.NoError(t, err)
	fifo.SetPrebufSamples(100)

	_, err = fifo.WriteSamples(make([]float32, 10))
	require.NoError(t, err)
	assert.Equal(t, 10, fifo.Len())

	fifo.Clear()
	assert.Equal(t, 0, fifo.Len())
}
