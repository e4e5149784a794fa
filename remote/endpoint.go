package remote

import "github.com/opd-ai/voiceterm/audio"

// Endpoint is the narrow interface the call pipeline consumes. A concrete
// endpoint owns its transport and codec details; the pipeline only sees
// audio blocks, connection states and text messages.
type Endpoint interface {
	// Connect initiates an outgoing call.
	Connect() error

	// Accept answers an incoming call request.
	Accept() error

	// Disconnect ends the call (or abandons a pending one).
	Disconnect() error

	// State returns the current connection state.
	State() State

	// SampleRate returns the rate, in Hz, of the audio the endpoint
	// accepts for transmission and produces on receive.
	SampleRate() int

	// WriteSamples accepts locally captured audio for transmission
	// (audio sink role).
	WriteSamples(samples []float32) (int, error)

	// FlushSamples signals end of the local transmit stream.
	FlushSamples()

	// RegisterSink connects the graph sink that receives decoded remote
	// audio (audio source role).
	RegisterSink(sink audio.Sink)

	// OnStateChange registers the connection-state callback.
	OnStateChange(fn func(State))

	// OnChatMessage registers the callback for peer chat text.
	OnChatMessage(fn func(string))

	// OnInfoMessage registers the callback for peer station info text.
	OnInfoMessage(fn func(string))

	// OnReceiving registers the callback reporting whether remote audio
	// is currently arriving.
	OnReceiving(fn func(bool))
}
