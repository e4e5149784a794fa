package vox

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Level scale bounds. The clamp is a correctness requirement: the log of a
// zero or negative level must never be taken.
const (
	LevelFloorDB   = -60
	LevelCeilingDB = 0
)

// Detector defaults, matching the original client's settings.
const (
	DefaultThresholdDB = -30
	DefaultDelay       = 1000 * time.Millisecond
)

// ErrEmptyBlock indicates WriteSamples was called with no samples. A
// non-positive block is a programming-contract violation, not a valid
// zero-level reading.
var ErrEmptyBlock = errors.New("vox block must contain at least one sample")

// State is the VOX activity state.
type State int

const (
	// StateIdle means no voice is detected and the gate is closed.
	StateIdle State = iota
	// StateActive means the level is currently above the threshold.
	StateActive
	// StateHang means the level dropped below the threshold but the
	// release timer has not yet elapsed.
	StateHang
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateActive:
		return "ACTIVE"
	case StateHang:
		return "HANG"
	default:
		return "UNKNOWN"
	}
}

// Detector computes a per-block level estimate and drives the VOX state
// machine. HANG can only be entered from ACTIVE; entering HANG always arms
// the release timer from its full configured delay, and a level above the
// threshold while in HANG cancels the timer and returns to ACTIVE. At most
// one timer is outstanding per detector; re-arming cancels any pending
// firing first, so a stale timer can never force a transition.
type Detector struct {
	mu          sync.Mutex
	enabled     bool
	thresholdDB int
	delay       time.Duration
	state       State
	timer       Timer
	timerGen    uint64
	sched       Scheduler
	onLevel     func(levelDB int)
	onState     func(state State)
}

// NewDetector creates a disabled detector with the default threshold and
// hang delay. A nil scheduler selects the system clock.
func NewDetector(sched Scheduler) *Detector {
	if sched == nil {
		sched = SystemScheduler{}
	}

	logrus.WithFields(logrus.Fields{
		"function":     "NewDetector",
		"threshold_db": DefaultThresholdDB,
		"delay":        DefaultDelay,
	}).Info("Creating VOX detector")

	return &Detector{
		thresholdDB: DefaultThresholdDB,
		delay:       DefaultDelay,
		state:       StateIdle,
		sched:       sched,
	}
}

// OnLevel registers the level-meter callback, invoked once per processed
// block with the dB level in [-60, 0].
func (d *Detector) OnLevel(fn func(levelDB int)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onLevel = fn
}

// OnStateChange registers the activity callback, invoked on every state
// transition.
func (d *Detector) OnStateChange(fn func(state State)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onState = fn
}

// State returns the current activity state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Enabled reports whether detection is active.
func (d *Detector) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// Threshold returns the configured threshold in dB.
func (d *Detector) Threshold() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.thresholdDB
}

// Delay returns the configured hang delay.
func (d *Detector) Delay() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.delay
}

// SetEnabled enables or disables detection. Disabling forces the state to
// IDLE and emits a floor level reading so meters fall back to silence.
func (d *Detector) SetEnabled(enable bool) {
	d.mu.Lock()
	d.enabled = enable
	var levelCb func(int)
	var stateCb func(State)
	if !enable {
		levelCb = d.onLevel
		stateCb = d.setStateLocked(StateIdle)
	}
	d.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Detector.SetEnabled",
		"enabled":  enable,
	}).Info("VOX detection toggled")

	if levelCb != nil {
		levelCb(LevelFloorDB)
	}
	if stateCb != nil {
		stateCb(StateIdle)
	}
}

// SetThreshold sets the activation threshold, clamped to [-60, 0] dB.
func (d *Detector) SetThreshold(thresholdDB int) {
	if thresholdDB < LevelFloorDB {
		thresholdDB = LevelFloorDB
	} else if thresholdDB > LevelCeilingDB {
		thresholdDB = LevelCeilingDB
	}

	d.mu.Lock()
	d.thresholdDB = thresholdDB
	d.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":     "Detector.SetThreshold",
		"threshold_db": thresholdDB,
	}).Debug("VOX threshold updated")
}

// SetDelay sets the hang delay, clamped to non-negative.
func (d *Detector) SetDelay(delay time.Duration) {
	if delay < 0 {
		delay = 0
	}

	d.mu.Lock()
	d.delay = delay
	d.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Detector.SetDelay",
		"delay":    delay,
	}).Debug("VOX hang delay updated")
}

// WriteSamples processes one block of transmit-path audio.
//
// The block's DC offset is removed, the average-rectified level is mapped
// to dB with the floor/ceiling clamp, the level callback fires, and the
// state machine advances. While the detector is disabled the block is
// accepted without any processing.
//
// Returns:
//   - int: the number of samples consumed (always the full block)
//   - error: ErrEmptyBlock on a zero-length block
func (d *Detector) WriteSamples(samples []float32) (int, error) {
	count := len(samples)
	if count <= 0 {
		logrus.WithFields(logrus.Fields{
			"function": "Detector.WriteSamples",
			"count":    count,
			"error":    ErrEmptyBlock.Error(),
		}).Error("VOX block validation failed")
		return 0, ErrEmptyBlock
	}

	d.mu.Lock()
	if !d.enabled {
		d.mu.Unlock()
		return count, nil
	}

	// DC offset as the arithmetic mean of the block.
	var dcOffset float32
	for _, s := range samples {
		dcOffset += s / float32(count)
	}

	// Average-rectified level: mean absolute deviation from the offset.
	var avg float32
	for _, s := range samples {
		dev := (s - dcOffset) / float32(count)
		if dev > 0 {
			avg += dev
		} else {
			avg -= dev
		}
	}

	levelDB := LevelFloorDB
	if avg > 1.0 {
		levelDB = LevelCeilingDB
	} else if avg > 0.001 {
		levelDB = int(20.0 * math.Log10(float64(avg)))
	}

	levelCb := d.onLevel

	var stateCb func(State)
	var newState State
	if levelDB > d.thresholdDB {
		newState = StateActive
		stateCb = d.setStateLocked(StateActive)
	} else if d.state == StateActive {
		newState = StateHang
		stateCb = d.setStateLocked(StateHang)
	}
	d.mu.Unlock()

	if levelCb != nil {
		levelCb(levelDB)
	}
	if stateCb != nil {
		stateCb(newState)
	}

	return count, nil
}

// FlushSamples is a no-op: the detector keeps no sample buffer.
func (d *Detector) FlushSamples() {}

// setStateLocked transitions the state machine and manages the hang timer.
// The caller holds d.mu. It returns the state callback to invoke after the
// lock is released, or nil when the state did not change.
func (d *Detector) setStateLocked(newState State) func(State) {
	if newState == d.state {
		return nil
	}

	d.state = newState

	// Any pending timer belongs to a previous state: cancel it.
	d.timerGen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	if newState == StateHang {
		gen := d.timerGen
		d.timer = d.sched.AfterFunc(d.delay, func() {
			d.hangExpired(gen)
		})
	}

	logrus.WithFields(logrus.Fields{
		"function": "Detector.setState",
		"state":    newState.String(),
	}).Debug("VOX state changed")

	return d.onState
}

// hangExpired completes the HANG to IDLE transition when the release timer
// fires. A stale generation means the timer was superseded and is ignored.
func (d *Detector) hangExpired(gen uint64) {
	d.mu.Lock()
	if gen != d.timerGen || d.state != StateHang {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	stateCb := d.setStateLocked(StateIdle)
	d.mu.Unlock()

	if stateCb != nil {
		stateCb(StateIdle)
	}
}
