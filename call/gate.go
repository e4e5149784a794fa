package call

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/voiceterm/remote"
	"github.com/opd-ai/voiceterm/vox"
)

// TransmitGate is the single authority over whether the outgoing audio
// path is live. It recomputes the transmit decision
//
//	connected && (ptt || voxState != IDLE)
//
// on every PTT, VOX-state or connection-state input and drives the
// transmit valve and the duplex arbiter on decision edges. The valve
// always closes before any device switching on a falling edge, so no
// audio leaks to the remote sink while devices reconfigure.
//
// Inputs arrive from whatever goroutine produced them: the capture path
// via the VOX detector, the transport's read loop via connection-state
// changes, hang-timer expiry, and PTT from the control surface. The
// gate's mutex serializes them, so edge actions on the valve and
// arbiter are applied in decision order. The change callback fires
// outside the lock.
type TransmitGate struct {
	mu sync.Mutex

	txValve ValveControl
	arbiter DeviceSwitcher

	ptt       bool
	voxState  vox.State
	connState remote.State
	active    bool
	onChange  func(bool)
}

// NewTransmitGate creates a gate with all inputs at rest: PTT released,
// VOX idle, disconnected.
func NewTransmitGate(txValve ValveControl, arbiter DeviceSwitcher) *TransmitGate {
	logrus.WithFields(logrus.Fields{
		"function": "NewTransmitGate",
	}).Info("Creating transmit gate")

	return &TransmitGate{
		txValve:   txValve,
		arbiter:   arbiter,
		voxState:  vox.StateIdle,
		connState: remote.StateDisconnected,
	}
}

// OnChange registers the callback fired on transmit decision edges.
// Register before feeding any inputs.
func (g *TransmitGate) OnChange(fn func(active bool)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onChange = fn
}

// Transmitting reports whether the outgoing path is currently live.
func (g *TransmitGate) Transmitting() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// SetPTT feeds the normalized push-to-talk boolean. Momentary and toggle
// input modes must already be reduced to one pressed signal by the input
// layer.
func (g *TransmitGate) SetPTT(pressed bool) {
	g.mu.Lock()
	if g.ptt == pressed {
		g.mu.Unlock()
		return
	}
	g.ptt = pressed

	logrus.WithFields(logrus.Fields{
		"function": "TransmitGate.SetPTT",
		"pressed":  pressed,
	}).Debug("PTT input changed")

	notify := g.recomputeLocked()
	g.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// SetVoxState feeds a VOX detector state change.
func (g *TransmitGate) SetVoxState(state vox.State) {
	g.mu.Lock()
	if g.voxState == state {
		g.mu.Unlock()
		return
	}
	g.voxState = state
	notify := g.recomputeLocked()
	g.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// SetConnectionState feeds a connection-state change. Any state other
// than CONNECTED forces the decision false regardless of PTT and VOX.
func (g *TransmitGate) SetConnectionState(state remote.State) {
	g.mu.Lock()
	if g.connState == state {
		g.mu.Unlock()
		return
	}
	g.connState = state
	notify := g.recomputeLocked()
	g.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// recomputeLocked evaluates the transmit decision and applies edge
// actions while the mutex is held, keeping valve and arbiter calls in
// decision order. It returns the deferred change notification, or nil
// when the decision did not move.
func (g *TransmitGate) recomputeLocked() func() {
	next := g.connState == remote.StateConnected &&
		(g.ptt || g.voxState != vox.StateIdle)
	if next == g.active {
		return nil
	}
	g.active = next

	logrus.WithFields(logrus.Fields{
		"function":     "TransmitGate.recomputeLocked",
		"transmitting": next,
		"ptt":          g.ptt,
		"vox_state":    g.voxState.String(),
		"conn_state":   g.connState.String(),
	}).Info("Transmit decision changed")

	if next {
		g.txValve.SetOpen(true)
		g.arbiter.SwitchToTransmit()
	} else {
		g.txValve.SetOpen(false)
		g.arbiter.SwitchToReceive()
	}

	if g.onChange == nil {
		return nil
	}
	fn := g.onChange
	return func() { fn(next) }
}
