package call

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/voiceterm/device"
)

// ValveControl is the slice of the receive valve the arbiter toggles.
type ValveControl interface {
	SetOpen(open bool)
}

// DeviceSwitcher is what the transmit gate asks for on transmit edges.
// In full duplex the switches are no-ops.
type DeviceSwitcher interface {
	SwitchToTransmit()
	SwitchToReceive()
}

// DuplexArbiter owns the capture and playback device handles and is the
// only component that opens or closes them.
//
// Full duplex: both devices are opened once at call start and stay open;
// the receive valve stays open for the call's lifetime.
//
// Half duplex: one device role is open at a time, starting in receive
// mode. Switch-to-transmit closes the receive valve before any device
// is touched, then swaps playback for capture; switch-to-receive swaps
// back and reopens the valve. Device-open failures are reported through
// the error callback and leave the affected direction silent until the
// next switch retries.
//
// A mutex serializes Start, Stop and the switches, which arrive from
// whichever goroutine fed the transmit gate. The error callback fires
// outside the lock.
type DuplexArbiter struct {
	mu sync.Mutex

	capture  device.Device
	playback device.Device
	rxValve  ValveControl
	full     bool

	transmitting bool
	onError      func(error)
}

// NewDuplexArbiter creates an arbiter over the given devices.
func NewDuplexArbiter(capture, playback device.Device, rxValve ValveControl, fullDuplex bool) *DuplexArbiter {
	logrus.WithFields(logrus.Fields{
		"function":    "NewDuplexArbiter",
		"full_duplex": fullDuplex,
	}).Info("Creating duplex arbiter")

	return &DuplexArbiter{
		capture:  capture,
		playback: playback,
		rxValve:  rxValve,
		full:     fullDuplex,
	}
}

// OnError registers the callback for non-fatal device failures.
// Register before the arbiter starts.
func (a *DuplexArbiter) OnError(fn func(error)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onError = fn
}

// Start opens the devices for a new call. Full duplex opens both roles;
// half duplex starts in receive mode with only playback open. The
// receive valve opens in either case.
func (a *DuplexArbiter) Start() {
	logrus.WithFields(logrus.Fields{
		"function":    "DuplexArbiter.Start",
		"full_duplex": a.full,
	}).Info("Starting duplex arbiter")

	a.mu.Lock()
	var errs []error
	a.transmitting = false
	if a.full {
		errs = a.openDeviceLocked(errs, a.capture, device.ModeRead)
	}
	errs = a.openDeviceLocked(errs, a.playback, device.ModeWrite)
	a.rxValve.SetOpen(true)
	fn := a.onError
	a.mu.Unlock()

	a.reportErrors(fn, errs)
}

// SwitchToTransmit reconfigures the devices for transmission. No-op in
// full duplex. The receive valve closes strictly before the capture
// device opens.
func (a *DuplexArbiter) SwitchToTransmit() {
	a.mu.Lock()
	if a.full || a.transmitting {
		a.mu.Unlock()
		return
	}
	a.transmitting = true

	logrus.WithFields(logrus.Fields{
		"function": "DuplexArbiter.SwitchToTransmit",
	}).Debug("Switching to transmit configuration")

	a.rxValve.SetOpen(false)
	a.playback.Close()
	if a.capture.IsOpen() {
		a.capture.Close()
	}
	errs := a.openDeviceLocked(nil, a.capture, device.ModeRead)
	fn := a.onError
	a.mu.Unlock()

	a.reportErrors(fn, errs)
}

// SwitchToReceive reconfigures the devices for reception. No-op in full
// duplex.
func (a *DuplexArbiter) SwitchToReceive() {
	a.mu.Lock()
	if a.full || !a.transmitting {
		a.mu.Unlock()
		return
	}
	a.transmitting = false

	logrus.WithFields(logrus.Fields{
		"function": "DuplexArbiter.SwitchToReceive",
	}).Debug("Switching to receive configuration")

	a.capture.Close()
	errs := a.openDeviceLocked(nil, a.playback, device.ModeWrite)
	a.rxValve.SetOpen(true)
	fn := a.onError
	a.mu.Unlock()

	a.reportErrors(fn, errs)
}

// Stop closes both devices at call end.
func (a *DuplexArbiter) Stop() {
	logrus.WithFields(logrus.Fields{
		"function": "DuplexArbiter.Stop",
	}).Info("Stopping duplex arbiter")

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.capture.IsOpen() {
		a.capture.Close()
	}
	if a.playback.IsOpen() {
		a.playback.Close()
	}
	a.transmitting = false
}

// openDeviceLocked opens one device role, collecting failure without
// aborting the call. The affected direction stays silent until a later
// switch tries again.
func (a *DuplexArbiter) openDeviceLocked(errs []error, dev device.Device, mode device.Mode) []error {
	if err := dev.Open(mode); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "DuplexArbiter.openDeviceLocked",
			"mode":     mode.String(),
			"error":    err.Error(),
		}).Error("Device open failed")
		errs = append(errs, err)
	}
	return errs
}

func (a *DuplexArbiter) reportErrors(fn func(error), errs []error) {
	if fn == nil {
		return
	}
	for _, err := range errs {
		fn(err)
	}
}
