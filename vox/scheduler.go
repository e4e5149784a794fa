package vox

import "time"

// Timer is a pending one-shot callback that can be stopped.
type Timer interface {
	// Stop cancels the timer. It reports whether the call prevented the
	// timer from firing.
	Stop() bool
}

// Scheduler abstracts one-shot timer scheduling so the hang delay can be
// driven deterministically in tests. The production scheduler delegates to
// time.AfterFunc.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemScheduler schedules timers on the runtime clock.
type SystemScheduler struct{}

// AfterFunc schedules f to run after d on its own goroutine.
func (SystemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
