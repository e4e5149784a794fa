package audio

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Splitter fans one sample stream out to several sinks.
//
// Every input block is forwarded to all enabled branches. The return value
// of WriteSamples is the minimum acceptance across the enabled branches so
// the upstream node applies backpressure conservatively: no branch is ever
// pushed past what the slowest one took. Branches can be toggled
// individually without affecting the others.
type Splitter struct {
	mu       sync.Mutex
	branches []*splitterBranch
}

type splitterBranch struct {
	sink    Sink
	enabled bool
	// ahead counts samples this branch accepted beyond the reported
	// minimum. The upstream node resends from the minimum, so the next
	// block skips this many samples for the branch instead of
	// re-delivering them.
	ahead int
}

// NewSplitter creates a splitter with no branches.
func NewSplitter() *Splitter {
	return &Splitter{}
}

// AddSink registers a new enabled branch.
func (s *Splitter) AddSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.branches = append(s.branches, &splitterBranch{sink: sink, enabled: true})

	logrus.WithFields(logrus.Fields{
		"function": "Splitter.AddSink",
		"branches": len(s.branches),
	}).Debug("Splitter branch added")
}

// RemoveSink detaches the branch carrying the given sink, if present.
func (s *Splitter) RemoveSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range s.branches {
		if b.sink == sink {
			s.branches = append(s.branches[:i], s.branches[i+1:]...)
			logrus.WithFields(logrus.Fields{
				"function": "Splitter.RemoveSink",
				"branches": len(s.branches),
			}).Debug("Splitter branch removed")
			return
		}
	}
}

// EnableSink toggles a single branch. A disabled branch receives neither
// samples nor flushes until it is enabled again.
func (s *Splitter) EnableSink(sink Sink, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.branches {
		if b.sink == sink {
			b.enabled = enabled
			b.ahead = 0
			logrus.WithFields(logrus.Fields{
				"function": "Splitter.EnableSink",
				"enabled":  enabled,
			}).Debug("Splitter branch toggled")
			return
		}
	}
}

// WriteSamples forwards the block to every enabled branch and returns the
// minimum acceptance. With no enabled branches the block is accepted and
// dropped.
//
// When branches disagree on acceptance, the upstream node resends from
// the minimum; each branch tracks how far ahead of that minimum it got,
// and the overlap is skipped on the retry so no branch sees a sample
// twice.
func (s *Splitter) WriteSamples(samples []float32) (int, error) {
	s.mu.Lock()
	branches := make([]*splitterBranch, 0, len(s.branches))
	for _, b := range s.branches {
		if b.enabled {
			branches = append(branches, b)
		}
	}
	s.mu.Unlock()

	if len(branches) == 0 {
		return len(samples), nil
	}

	minAccepted := len(samples)
	accepted := make([]int, len(branches))
	var firstErr error
	for i, b := range branches {
		skip := b.ahead
		if skip > len(samples) {
			skip = len(samples)
		}
		n := skip
		if skip < len(samples) {
			m, err := b.sink.WriteSamples(samples[skip:])
			if err != nil && firstErr == nil {
				firstErr = err
			}
			n += m
		}
		accepted[i] = n
		if n < minAccepted {
			minAccepted = n
		}
	}

	s.mu.Lock()
	for i, b := range branches {
		b.ahead = accepted[i] - minAccepted
	}
	s.mu.Unlock()

	if firstErr != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Splitter.WriteSamples",
			"error":    firstErr.Error(),
		}).Error("Splitter branch write failed")
	}

	return minAccepted, firstErr
}

// FlushSamples propagates end-of-stream to every enabled branch.
func (s *Splitter) FlushSamples() {
	s.mu.Lock()
	branches := make([]*splitterBranch, 0, len(s.branches))
	for _, b := range s.branches {
		if b.enabled {
			b.ahead = 0
			branches = append(branches, b)
		}
	}
	s.mu.Unlock()

	for _, b := range branches {
		b.sink.FlushSamples()
	}
}
