package call

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/voiceterm/device"
)

// tracingValve records open/close transitions into a shared device trace
// so tests can assert valve-versus-device ordering.
type tracingValve struct {
	trace *device.Trace
	open  bool
}

func (v *tracingValve) SetOpen(open bool) {
	v.open = open
	if open {
		v.trace.Record("rx-valve:open")
	} else {
		v.trace.Record("rx-valve:close")
	}
}

func TestDuplexArbiterHalfDuplexStart(t *testing.T) {
	trace := device.NewTrace()
	mic := device.NewMock("mic", 48000, trace)
	spkr := device.NewMock("spkr", 48000, trace)
	valve := &tracingValve{trace: trace}

	arb := NewDuplexArbiter(mic, spkr, valve, false)
	arb.Start()

	assert.False(t, mic.IsOpen(), "half duplex starts in receive mode")
	assert.True(t, spkr.IsOpen())
	assert.True(t, valve.open)
	assert.Equal(t, []string{"spkr:open:write", "rx-valve:open"}, trace.Events())
}

func TestDuplexArbiterHalfDuplexSwitchOrdering(t *testing.T) {
	trace := device.NewTrace()
	mic := device.NewMock("mic", 48000, trace)
	spkr := device.NewMock("spkr", 48000, trace)
	valve := &tracingValve{trace: trace}

	arb := NewDuplexArbiter(mic, spkr, valve, false)
	arb.Start()
	arb.SwitchToTransmit()

	events := trace.Events()
	valveClose, micOpen := -1, -1
	for i, e := range events {
		switch e {
		case "rx-valve:close":
			valveClose = i
		case "mic:open:read":
			micOpen = i
		}
	}
	require.GreaterOrEqual(t, valveClose, 0, "receive valve never closed")
	require.GreaterOrEqual(t, micOpen, 0, "capture never opened")
	assert.Less(t, valveClose, micOpen,
		"receive valve must close strictly before capture opens")
	assert.True(t, mic.IsOpen())
	assert.False(t, spkr.IsOpen())

	arb.SwitchToReceive()
	assert.False(t, mic.IsOpen())
	assert.True(t, spkr.IsOpen())
	assert.True(t, valve.open)
}

func TestDuplexArbiterFullDuplexNeverSwitches(t *testing.T) {
	trace := device.NewTrace()
	mic := device.NewMock("mic", 16000, trace)
	spkr := device.NewMock("spkr", 16000, trace)
	valve := &tracingValve{trace: trace}

	arb := NewDuplexArbiter(mic, spkr, valve, true)
	arb.Start()

	setup := trace.Events()
	assert.True(t, mic.IsOpen())
	assert.True(t, spkr.IsOpen())
	assert.True(t, valve.open)

	arb.SwitchToTransmit()
	arb.SwitchToReceive()
	arb.SwitchToTransmit()
	arb.SwitchToReceive()

	assert.Equal(t, setup, trace.Events(),
		"full duplex must not touch devices after call setup")
}

func TestDuplexArbiterOpenFailureIsNonFatal(t *testing.T) {
	trace := device.NewTrace()
	mic := device.NewMock("mic", 16000, trace)
	spkr := device.NewMock("spkr", 16000, trace)
	valve := &tracingValve{trace: trace}

	arb := NewDuplexArbiter(mic, spkr, valve, false)
	var reported []error
	arb.OnError(func(err error) { reported = append(reported, err) })

	mic.SetFailOpen(true)
	arb.Start()
	arb.SwitchToTransmit()

	require.Len(t, reported, 1)
	assert.False(t, mic.IsOpen(), "failed direction stays silent")

	// The next switch cycle retries the open.
	mic.SetFailOpen(false)
	arb.SwitchToReceive()
	arb.SwitchToTransmit()
	assert.True(t, mic.IsOpen())
	assert.Len(t, reported, 1)
}

func TestDuplexArbiterStopClosesDevices(t *testing.T) {
	trace := device.NewTrace()
	mic := device.NewMock("mic", 16000, trace)
	spkr := device.NewMock("spkr", 16000, trace)
	valve := &tracingValve{trace: trace}

	arb := NewDuplexArbiter(mic, spkr, valve, true)
	arb.Start()
	arb.Stop()

	assert.False(t, mic.IsOpen())
	assert.False(t, spkr.IsOpen())
}
