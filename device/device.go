// Package device abstracts the local audio hardware used by the call
// pipeline: a capture device that pushes microphone blocks into the graph
// and a playback device that accepts blocks for the speaker.
//
// Open failures are ordinary, distinguishable errors, never panics: duplex
// arbitration treats them as recoverable and leaves the affected direction
// silent until the next switch attempt.
package device

import "github.com/opd-ai/voiceterm/audio"

// Mode selects the direction a device is opened for.
type Mode int

const (
	// ModeRead opens the device for capture.
	ModeRead Mode = iota
	// ModeWrite opens the device for playback.
	ModeWrite
)

// String returns a human-readable mode name.
func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	default:
		return "unknown"
	}
}

// Device is one physical (or simulated) audio endpoint.
//
// SampleRate reports the device's native rate and must be valid before
// Open so the pipeline can resolve its conversion chains from the actual
// rate. A capture device pushes sample blocks to its registered sink while
// open; a playback device accepts blocks through WriteSamples.
type Device interface {
	// Open prepares the device for the given direction. It returns a
	// distinguishable error on failure instead of panicking.
	Open(mode Mode) error

	// Close releases the device. Closing a closed device is a no-op.
	Close()

	// IsOpen reports whether the device is currently open.
	IsOpen() bool

	// SampleRate returns the device's native sample rate in Hz.
	SampleRate() int

	// RegisterSink connects the sink receiving captured audio.
	RegisterSink(sink audio.Sink)

	// WriteSamples plays back a block. A closed playback device accepts
	// and discards the block so upstream never stalls on a silent path.
	WriteSamples(samples []float32) (int, error)

	// FlushSamples signals end-of-stream on the playback path.
	FlushSamples()
}
