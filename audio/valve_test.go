package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValveClosedDropsSilently(t *testing.T) {
	valve := NewValve()
	sink := &captureSink{}
	valve.RegisterSink(sink)

	require.False(t, valve.IsOpen())

	// Closed: full acceptance, nothing forwarded.
	n, err := valve.WriteSamples([]float32{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Empty(t, sink.samples)

	valve.FlushSamples()
	assert.False(t, sink.flushed)
}

func TestValveOpenForwardsTransparently(t *testing.T) {
	valve := NewValve()
	sink := &captureSink{}
	valve.RegisterSink(sink)
	valve.SetOpen(true)

	assert.True(t, valve.IsOpen())

	n, err := valve.WriteSamples([]float32{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []float32{1, 2, 3}, sink.samples)

	valve.FlushSamples()
	assert.True(t, sink.flushed)
}

func TestValveOpenWithoutSink(t *testing.T) {
	valve := NewValve()
	valve.SetOpen(true)

	n, err := valve.WriteSamples([]float32{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSplitterForwardsToAllEnabledBranches(t *testing.T) {
	splitter := NewSplitter()
	a := &captureSink{}
	b := &captureSink{}
	splitter.AddSink(a)
	splitter.AddSink(b)

	n, err := splitter.WriteSamples([]float32{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []float32{1, 2}, a.samples)
	assert.Equal(t, []float32{1, 2}, b.samples)
}

func TestSplitterMinimumAcceptance(t *testing.T) {
	splitter := NewSplitter()
	fast := &captureSink{}
	slow := &captureSink{maxTake: 1}
	splitter.AddSink(fast)
	splitter.AddSink(slow)

	n, err := splitter.WriteSamples([]float32{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSplitterDisabledBranchSkipped(t *testing.T) {
	splitter := NewSplitter()
	a := &captureSink{}
	b := &captureSink{}
	splitter.AddSink(a)
	splitter.AddSink(b)
	splitter.EnableSink(b, false)

	n, err := splitter.WriteSamples([]float32{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, a.samples, 2)
	assert.Empty(t, b.samples)

	splitter.FlushSamples()
	assert.True(t, a.flushed)
	assert.False(t, b.flushed)

	// Re-enabling resumes delivery without touching the other branch.
	splitter.EnableSink(b, true)
	_, err = splitter.WriteSamples([]float32{3})
	require.NoError(t, err)
	assert.Len(t, a.samples, 3)
	assert.Len(t, b.samples, 1)
}

func TestSplitterRetryDoesNotRedeliverToFasterBranch(t *testing.T) {
	splitter := NewSplitter()
	fast := &captureSink{}
	slow := &captureSink{maxTake: 2}
	splitter.AddSink(fast)
	splitter.AddSink(slow)

	// The slow branch takes 2 of 5; the whole block reaches the fast
	// branch but only 2 samples are reported upstream.
	n, err := splitter.WriteSamples([]float32{1, 2, 3, 4, 5})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	// Upstream resends from the minimum. The fast branch must not see
	// the overlap again.
	slow.maxTake = 0
	n, err = splitter.WriteSamples([]float32{3, 4, 5})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []float32{1, 2, 3, 4, 5}, fast.samples)
	assert.Equal(t, []float32{1, 2, 3, 4, 5}, slow.samples)

	// Caught up: the next block flows to both in full.
	n, err = splitter.WriteSamples([]float32{6, 7})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6, 7}, fast.samples)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6, 7}, slow.samples)
}

func TestSplitterRemoveSink(t *testing.T) {
	splitter := NewSplitter()
	a := &captureSink{}
	splitter.AddSink(a)
	splitter.RemoveSink(a)

	n, err := splitter.WriteSamples([]float32{1})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, a.samples)
}
