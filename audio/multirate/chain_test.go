package multirate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectSink struct {
	samples []float32
	flushed bool
}

func (c *collectSink) WriteSamples(samples []float32) (int, error) {
	c.samples = append(c.samples, samples...)
	return len(samples), nil
}

func (c *collectSink) FlushSamples() {
	c.flushed = true
}

func TestNewSampleChainSelection(t *testing.T) {
	tests := []struct {
		name       string
		fromRate   int
		toRate     int
		expectErr  bool
		stages     int
		decimation int
	}{
		{name: "passthrough_16k", fromRate: 16000, toRate: 16000, stages: 0, decimation: 1},
		{name: "decimate_48k_to_16k", fromRate: 48000, toRate: 16000, stages: 1, decimation: 3},
		{name: "decimate_16k_to_8k", fromRate: 16000, toRate: 8000, stages: 1, decimation: 2},
		{name: "decimate_48k_to_8k", fromRate: 48000, toRate: 8000, stages: 2, decimation: 6},
		{name: "interpolate_16k_to_48k", fromRate: 16000, toRate: 48000, stages: 1, decimation: 1},
		{name: "interpolate_8k_to_48k", fromRate: 8000, toRate: 48000, stages: 2, decimation: 1},
		{name: "unsupported_device_rate", fromRate: 44100, toRate: 16000, expectErr: true},
		{name: "unsupported_internal_rate", fromRate: 48000, toRate: 22050, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, err := NewSampleChain(tt.fromRate, tt.toRate)
			if tt.expectErr {
				assert.ErrorIs(t, err, ErrUnsupportedRate)
				assert.Nil(t, chain)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.stages, len(chain.stages))
			assert.Equal(t, tt.stages == 0, chain.Empty())
			assert.Equal(t, tt.decimation, chain.DecimationFactor())
		})
	}
}

func TestSampleChainComposedRatio48To16(t *testing.T) {
	chain, err := NewSampleChain(48000, 16000)
	require.NoError(t, err)

	composed := 1
	for _, st := range chain.stages {
		composed *= st.Ratio()
	}
	assert.Equal(t, 3, composed)
}

func TestSampleChainPassthrough(t *testing.T) {
	chain, err := NewSampleChain(16000, 16000)
	require.NoError(t, err)

	sink := &collectSink{}
	chain.RegisterSink(sink)

	in := []float32{0.1, -0.2, 0.3}
	n, err := chain.WriteSamples(in)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, in, sink.samples)

	chain.FlushSamples()
	assert.True(t, sink.flushed)
}

func TestDecimatorOutputLengthAndDCGain(t *testing.T) {
	dec, err := NewDecimator(3, coeffForRatio(3))
	require.NoError(t, err)

	sink := &collectSink{}
	dec.RegisterSink(sink)

	// 600 input samples at a constant level: 200 output samples.
	in := make([]float32, 600)
	for i := range in {
		in[i] = 0.5
	}
	n, err := dec.WriteSamples(in)
	require.NoError(t, err)
	assert.Equal(t, 600, n)
	assert.Len(t, sink.samples, 200)

	// After the history fills, unity DC gain must hold.
	for _, s := range sink.samples[100:] {
		assert.InDelta(t, 0.5, s, 0.01)
	}
}

func TestDecimatorStatePersistsAcrossBlocks(t *testing.T) {
	whole, err := NewDecimator(2, coeffForRatio(2))
	require.NoError(t, err)
	split, err := NewDecimator(2, coeffForRatio(2))
	require.NoError(t, err)

	wholeSink := &collectSink{}
	splitSink := &collectSink{}
	whole.RegisterSink(wholeSink)
	split.RegisterSink(splitSink)

	in := make([]float32, 400)
	for i := range in {
		in[i] = float32(math.Sin(2 * math.Pi * float64(i) / 37.0))
	}

	_, err = whole.WriteSamples(in)
	require.NoError(t, err)

	// Same signal delivered in uneven blocks must produce identical output.
	for _, block := range [][]float32{in[:17], in[17:100], in[100:101], in[101:]} {
		_, err = split.WriteSamples(block)
		require.NoError(t, err)
	}

	require.Equal(t, len(wholeSink.samples), len(splitSink.samples))
	for i := range wholeSink.samples {
		assert.InDelta(t, wholeSink.samples[i], splitSink.samples[i], 1e-6)
	}
}

func TestInterpolatorOutputLengthAndLevel(t *testing.T) {
	interp, err := NewInterpolator(3, coeffForRatio(3))
	require.NoError(t, err)

	sink := &collectSink{}
	interp.RegisterSink(sink)

	in := make([]float32, 200)
	for i := range in {
		in[i] = 0.5
	}
	n, err := interp.WriteSamples(in)
	require.NoError(t, err)
	assert.Equal(t, 200, n)
	assert.Len(t, sink.samples, 600)

	// The polyphase gain keeps the signal level within a small ripple.
	for _, s := range sink.samples[300:] {
		assert.InDelta(t, 0.5, s, 0.05)
	}
}

func TestChain48To8ComposesStages(t *testing.T) {
	chain, err := NewSampleChain(48000, 8000)
	require.NoError(t, err)

	sink := &collectSink{}
	chain.RegisterSink(sink)

	in := make([]float32, 1200)
	for i := range in {
		in[i] = 0.25
	}
	_, err = chain.WriteSamples(in)
	require.NoError(t, err)
	assert.Len(t, sink.samples, 200)

	for _, s := range sink.samples[120:] {
		assert.InDelta(t, 0.25, s, 0.01)
	}
}

func TestNewStageValidation(t *testing.T) {
	_, err := NewDecimator(1, coeffRatio2)
	assert.ErrorIs(t, err, ErrInvalidStage)

	_, err = NewDecimator(2, nil)
	assert.ErrorIs(t, err, ErrInvalidStage)

	_, err = NewInterpolator(0, coeffRatio3)
	assert.ErrorIs(t, err, ErrInvalidStage)
}
