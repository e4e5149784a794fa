package call

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opd-ai/voiceterm/remote"
	"github.com/opd-ai/voiceterm/vox"
)

// fakeValve and fakeSwitcher record what the gate drives them to do.
type fakeValve struct {
	open bool
	log  []string
}

func (v *fakeValve) SetOpen(open bool) {
	v.open = open
	if open {
		v.log = append(v.log, "valve:open")
	} else {
		v.log = append(v.log, "valve:close")
	}
}

type fakeSwitcher struct {
	log []string
}

func (s *fakeSwitcher) SwitchToTransmit() { s.log = append(s.log, "switch:tx") }
func (s *fakeSwitcher) SwitchToReceive()  { s.log = append(s.log, "switch:rx") }

func TestTransmitGatePTTWhileConnected(t *testing.T) {
	valve := &fakeValve{}
	sw := &fakeSwitcher{}
	gate := NewTransmitGate(valve, sw)

	var edges []bool
	gate.OnChange(func(active bool) { edges = append(edges, active) })

	gate.SetConnectionState(remote.StateConnected)
	assert.False(t, gate.Transmitting())

	gate.SetPTT(true)
	assert.True(t, gate.Transmitting())
	assert.True(t, valve.open)

	gate.SetPTT(false)
	assert.False(t, gate.Transmitting())
	assert.False(t, valve.open)

	assert.Equal(t, []bool{true, false}, edges)
}

func TestTransmitGateIgnoresPTTWhenDisconnected(t *testing.T) {
	tests := []struct {
		name  string
		state remote.State
	}{
		{name: "disconnected", state: remote.StateDisconnected},
		{name: "connecting", state: remote.StateConnecting},
		{name: "bye_received", state: remote.StateByeReceived},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valve := &fakeValve{}
			gate := NewTransmitGate(valve, &fakeSwitcher{})

			gate.SetConnectionState(tt.state)
			gate.SetPTT(true)

			assert.False(t, gate.Transmitting())
			assert.False(t, valve.open)
		})
	}
}

func TestTransmitGateVoxDrivesDecision(t *testing.T) {
	valve := &fakeValve{}
	gate := NewTransmitGate(valve, &fakeSwitcher{})
	gate.SetConnectionState(remote.StateConnected)

	gate.SetVoxState(vox.StateActive)
	assert.True(t, gate.Transmitting())

	// HANG still counts as voice present.
	gate.SetVoxState(vox.StateHang)
	assert.True(t, gate.Transmitting())

	gate.SetVoxState(vox.StateIdle)
	assert.False(t, gate.Transmitting())
}

func TestTransmitGateDisconnectMidTransmit(t *testing.T) {
	valve := &fakeValve{}
	sw := &fakeSwitcher{}
	gate := NewTransmitGate(valve, sw)

	gate.SetConnectionState(remote.StateConnected)
	gate.SetPTT(true)
	assert.True(t, gate.Transmitting())

	// Peer drops: a state transition, not a distinct error path.
	gate.SetConnectionState(remote.StateByeReceived)
	assert.False(t, gate.Transmitting())
	assert.False(t, valve.open)

	// PTT still held afterwards must not re-open anything.
	gate.SetPTT(false)
	gate.SetPTT(true)
	assert.False(t, gate.Transmitting())
}

// sharedLogValve and sharedLogSwitcher append to one ordered log so the
// valve-versus-switch interleaving is observable.
type sharedLogValve struct{ log *[]string }

func (v sharedLogValve) SetOpen(open bool) {
	if open {
		*v.log = append(*v.log, "valve:open")
	} else {
		*v.log = append(*v.log, "valve:close")
	}
}

type sharedLogSwitcher struct{ log *[]string }

func (s sharedLogSwitcher) SwitchToTransmit() { *s.log = append(*s.log, "switch:tx") }
func (s sharedLogSwitcher) SwitchToReceive()  { *s.log = append(*s.log, "switch:rx") }

func TestTransmitGateValveClosesBeforeDeviceSwitch(t *testing.T) {
	var log []string
	gate := NewTransmitGate(sharedLogValve{&log}, sharedLogSwitcher{&log})
	gate.SetConnectionState(remote.StateConnected)

	gate.SetPTT(true)
	gate.SetPTT(false)

	assert.Equal(t, []string{
		"valve:open", "switch:tx",
		"valve:close", "switch:rx",
	}, log)
}

func TestTransmitGatePTTAndVoxOverlap(t *testing.T) {
	valve := &fakeValve{}
	gate := NewTransmitGate(valve, &fakeSwitcher{})
	gate.SetConnectionState(remote.StateConnected)

	var edges []bool
	gate.OnChange(func(active bool) { edges = append(edges, active) })

	gate.SetPTT(true)
	gate.SetVoxState(vox.StateActive)
	gate.SetPTT(false)
	assert.True(t, gate.Transmitting(), "VOX keeps transmit alive after PTT release")

	gate.SetVoxState(vox.StateIdle)
	assert.False(t, gate.Transmitting())

	// Exactly one rising and one falling edge despite four inputs.
	assert.Equal(t, []bool{true, false}, edges)
}
