package audio

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrInvalidCapacity indicates a Fifo was constructed with a non-positive capacity.
var ErrInvalidCapacity = errors.New("fifo capacity must be positive")

// Fifo is an elastic sample queue between a bursty producer and a steady
// consumer.
//
// Emission to the registered sink only begins once the queued length has
// reached the prebuffer threshold. After that it continues even if the
// queue temporarily drops below the threshold, so playback does not
// start/stop chatter around the boundary. The prebuffer re-arms after a
// flush completes or the queue is cleared.
//
// The overflow policy is fixed at construction: in overwrite mode the
// oldest queued samples are discarded silently; otherwise the write
// reports how many samples actually fit.
type Fifo struct {
	mu        sync.Mutex
	queue     []float32
	capacity  int
	prebuf    int
	overwrite bool
	started   bool
	flushing  bool
	sink      Sink
}

// NewFifo creates a sample queue with the given capacity.
//
// Parameters:
//   - capacity: maximum number of queued samples
//   - overwrite: true to discard oldest samples on overflow, false to
//     reject the part of a write that does not fit
//
// Returns:
//   - *Fifo: the new queue
//   - error: ErrInvalidCapacity if capacity is not positive
func NewFifo(capacity int, overwrite bool) (*Fifo, error) {
	if capacity <= 0 {
		logrus.WithFields(logrus.Fields{
			"function": "NewFifo",
			"capacity": capacity,
			"error":    ErrInvalidCapacity.Error(),
		}).Error("Fifo capacity validation failed")
		return nil, ErrInvalidCapacity
	}

	logrus.WithFields(logrus.Fields{
		"function":  "NewFifo",
		"capacity":  capacity,
		"overwrite": overwrite,
	}).Debug("Creating audio fifo")

	return &Fifo{
		queue:     make([]float32, 0, capacity),
		capacity:  capacity,
		overwrite: overwrite,
	}, nil
}

// SetPrebufSamples sets the minimum number of queued samples required
// before the fifo starts emitting. Negative values are treated as zero.
func (f *Fifo) SetPrebufSamples(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n < 0 {
		n = 0
	}
	f.prebuf = n

	logrus.WithFields(logrus.Fields{
		"function": "Fifo.SetPrebufSamples",
		"prebuf":   n,
	}).Debug("Fifo prebuffer threshold updated")
}

// RegisterSink connects the downstream sink. Passing nil detaches it.
func (f *Fifo) RegisterSink(sink Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sink = sink
}

// Len returns the number of currently queued samples.
func (f *Fifo) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// Clear drops all queued samples and re-arms the prebuffer.
func (f *Fifo) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = f.queue[:0]
	f.started = false
	f.flushing = false

	logrus.WithFields(logrus.Fields{
		"function": "Fifo.Clear",
	}).Debug("Fifo cleared")
}

// WriteSamples queues a block of samples and drains to the sink if the
// prebuffer threshold has been met.
//
// In overwrite mode the whole block is always accepted; if the queue would
// exceed capacity the oldest samples are dropped to make room. Otherwise
// only the samples that fit are accepted and the count is returned.
func (f *Fifo) WriteSamples(samples []float32) (int, error) {
	f.mu.Lock()

	accepted := len(samples)
	free := f.capacity - len(f.queue)

	if len(samples) > free {
		if f.overwrite {
			over := len(samples) - free
			if over >= len(f.queue) {
				// Incoming block alone fills or exceeds capacity.
				f.queue = f.queue[:0]
				if len(samples) > f.capacity {
					samples = samples[len(samples)-f.capacity:]
				}
				logrus.WithFields(logrus.Fields{
					"function": "Fifo.WriteSamples",
					"dropped":  over,
				}).Debug("Fifo overflow, oldest samples discarded")
			} else {
				f.queue = f.queue[:copy(f.queue, f.queue[over:])]
				logrus.WithFields(logrus.Fields{
					"function": "Fifo.WriteSamples",
					"dropped":  over,
				}).Debug("Fifo overflow, oldest samples discarded")
			}
		} else {
			accepted = free
			samples = samples[:free]
		}
	}

	f.queue = append(f.queue, samples...)

	if !f.started && len(f.queue) >= f.prebuf {
		f.started = true
		logrus.WithFields(logrus.Fields{
			"function": "Fifo.WriteSamples",
			"queued":   len(f.queue),
			"prebuf":   f.prebuf,
		}).Debug("Fifo prebuffer threshold reached, emission started")
	}

	err := f.drainLocked()
	f.mu.Unlock()

	return accepted, err
}

// FlushSamples signals end-of-stream: the queue drains regardless of the
// prebuffer threshold and the flush then propagates downstream.
func (f *Fifo) FlushSamples() {
	f.mu.Lock()
	f.flushing = true
	f.started = true
	err := f.drainLocked()
	sink := f.sink
	drained := len(f.queue) == 0
	if drained {
		f.started = false
		f.flushing = false
	}
	f.mu.Unlock()

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Fifo.FlushSamples",
			"error":    err.Error(),
		}).Error("Fifo drain during flush failed")
	}

	if drained && sink != nil {
		sink.FlushSamples()
	}
}

// drainLocked pushes queued samples downstream while the sink accepts them.
// The caller must hold f.mu.
func (f *Fifo) drainLocked() error {
	if !f.started || f.sink == nil {
		return nil
	}
	for len(f.queue) > 0 {
		n, err := f.sink.WriteSamples(f.queue)
		if n > 0 {
			f.queue = f.queue[:copy(f.queue, f.queue[n:])]
		}
		if err != nil {
			return err
		}
		if n == 0 {
			// Downstream backpressure: keep the remainder queued.
			return nil
		}
	}
	return nil
}
