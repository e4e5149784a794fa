package call

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/voiceterm/audio"
	"github.com/opd-ai/voiceterm/audio/multirate"
	"github.com/opd-ai/voiceterm/device"
	"github.com/opd-ai/voiceterm/remote"
	"github.com/opd-ai/voiceterm/vox"
)

// InternalSampleRate is the fixed rate, in Hz, all in-pipeline
// processing (VOX, valves, fifos) runs at. Device and endpoint rates
// are converted at the edges.
const InternalSampleRate = 16000

// micFifoCapacity is the elastic buffer between the capture device and
// the transmit-side rate converters, in samples at the capture rate.
const micFifoCapacity = 2048

// rxPrebufBase sizes the receive prebuffer: 1280 samples at 8 kHz,
// scaled to the internal rate.
const rxPrebufBase = 1280

// Params carries everything a pipeline needs at construction. The
// settings are read once; mid-call changes do not propagate.
type Params struct {
	Capture  device.Device
	Playback device.Device
	Endpoint remote.Endpoint

	FullDuplex bool

	VoxEnabled     bool
	VoxThresholdDB int
	VoxDelay       time.Duration

	// Scheduler drives the VOX hang timer. Nil selects the wall clock.
	Scheduler vox.Scheduler
}

// Pipeline is the assembled two-party call audio graph.
//
// Transmit path: capture device -> mic fifo -> rate chain to the
// internal rate -> splitter feeding the VOX detector and, through a
// second chain down to the endpoint rate and the transmit valve, the
// remote endpoint.
//
// Receive path: remote endpoint -> rate chain up to the internal rate
// -> prebuffering fifo -> receive valve -> rate chain to the playback
// rate -> playback device.
//
// The pipeline owns every node; registrations between nodes carry no
// ownership.
//
// Control inputs (SetPTT, connection-state changes, Teardown) may
// arrive from any goroutine; the pipeline and the components below it
// serialize them. Callbacks are registered before the call connects
// and must not call back into the pipeline's control methods.
type Pipeline struct {
	mu sync.Mutex

	capture  device.Device
	playback device.Device
	endpoint remote.Endpoint

	micFifo     *audio.Fifo
	txChain     *multirate.SampleChain
	splitter    *audio.Splitter
	remoteChain *multirate.SampleChain
	txValve     *audio.Valve

	rxUpChain   *multirate.SampleChain
	rxFifo      *audio.Fifo
	rxValve     *audio.Valve
	rxDownChain *multirate.SampleChain

	detector *vox.Detector
	arbiter  *DuplexArbiter
	gate     *TransmitGate

	started  bool
	tornDown bool

	onLevel     func(int)
	onVoxState  func(vox.State)
	onTxActive  func(bool)
	onRxActive  func(bool)
	onChat      func(string)
	onInfo      func(string)
	onPipeError func(error)
}

// NewPipeline probes the device and endpoint sample rates, builds the
// rate-conversion chains and wires the full graph. An unsupported rate
// combination fails construction; the call must not proceed with audio.
func NewPipeline(params Params) (*Pipeline, error) {
	if params.Capture == nil || params.Playback == nil {
		return nil, errors.New("capture and playback devices are required")
	}
	if params.Endpoint == nil {
		return nil, errors.New("remote endpoint is required")
	}

	captureRate := params.Capture.SampleRate()
	playbackRate := params.Playback.SampleRate()
	endpointRate := params.Endpoint.SampleRate()

	logrus.WithFields(logrus.Fields{
		"function":      "NewPipeline",
		"capture_rate":  captureRate,
		"playback_rate": playbackRate,
		"endpoint_rate": endpointRate,
		"internal_rate": InternalSampleRate,
		"full_duplex":   params.FullDuplex,
	}).Info("Building call audio pipeline")

	txChain, err := multirate.NewSampleChain(captureRate, InternalSampleRate)
	if err != nil {
		return nil, fmt.Errorf("capture rate chain: %w", err)
	}
	remoteChain, err := multirate.NewSampleChain(InternalSampleRate, endpointRate)
	if err != nil {
		return nil, fmt.Errorf("endpoint rate chain: %w", err)
	}
	rxUpChain, err := multirate.NewSampleChain(endpointRate, InternalSampleRate)
	if err != nil {
		return nil, fmt.Errorf("receive rate chain: %w", err)
	}
	rxDownChain, err := multirate.NewSampleChain(InternalSampleRate, playbackRate)
	if err != nil {
		return nil, fmt.Errorf("playback rate chain: %w", err)
	}

	micFifo, err := audio.NewFifo(micFifoCapacity, false)
	if err != nil {
		return nil, err
	}
	rxFifo, err := audio.NewFifo(InternalSampleRate, true)
	if err != nil {
		return nil, err
	}
	rxFifo.SetPrebufSamples(rxPrebufBase * InternalSampleRate / 8000)

	detector := vox.NewDetector(params.Scheduler)
	detector.SetThreshold(params.VoxThresholdDB)
	detector.SetDelay(params.VoxDelay)
	detector.SetEnabled(params.VoxEnabled)

	p := &Pipeline{
		capture:     params.Capture,
		playback:    params.Playback,
		endpoint:    params.Endpoint,
		micFifo:     micFifo,
		txChain:     txChain,
		splitter:    audio.NewSplitter(),
		remoteChain: remoteChain,
		txValve:     audio.NewValve(),
		rxUpChain:   rxUpChain,
		rxFifo:      rxFifo,
		rxValve:     audio.NewValve(),
		rxDownChain: rxDownChain,
		detector:    detector,
	}
	p.arbiter = NewDuplexArbiter(params.Capture, params.Playback, p.rxValve, params.FullDuplex)
	p.gate = NewTransmitGate(p.txValve, p.arbiter)

	p.wire()

	return p, nil
}

// wire connects the graph edges and event callbacks.
func (p *Pipeline) wire() {
	// Transmit path.
	p.capture.RegisterSink(p.micFifo)
	p.micFifo.RegisterSink(p.txChain)
	p.txChain.RegisterSink(p.splitter)
	p.splitter.AddSink(p.detector)
	p.splitter.AddSink(p.remoteChain)
	p.remoteChain.RegisterSink(p.txValve)
	p.txValve.RegisterSink(p.endpoint)

	// Receive path.
	p.endpoint.RegisterSink(p.rxUpChain)
	p.rxUpChain.RegisterSink(p.rxFifo)
	p.rxFifo.RegisterSink(p.rxValve)
	p.rxValve.RegisterSink(p.rxDownChain)
	p.rxDownChain.RegisterSink(p.playback)

	// Events.
	p.detector.OnLevel(func(levelDB int) {
		if p.onLevel != nil {
			p.onLevel(levelDB)
		}
	})
	p.detector.OnStateChange(func(state vox.State) {
		p.gate.SetVoxState(state)
		if p.onVoxState != nil {
			p.onVoxState(state)
		}
	})
	p.gate.OnChange(func(active bool) {
		if p.onTxActive != nil {
			p.onTxActive(active)
		}
	})
	p.arbiter.OnError(func(err error) {
		if p.onPipeError != nil {
			p.onPipeError(err)
		}
	})
	p.endpoint.OnStateChange(p.HandleConnectionState)
	p.endpoint.OnReceiving(func(active bool) {
		if p.onRxActive != nil {
			p.onRxActive(active)
		}
	})
	p.endpoint.OnChatMessage(func(text string) {
		if p.onChat != nil {
			p.onChat(text)
		}
	})
	p.endpoint.OnInfoMessage(func(text string) {
		if p.onInfo != nil {
			p.onInfo(text)
		}
	})
}

// OnLevel registers the input level callback (dB, for metering).
func (p *Pipeline) OnLevel(fn func(levelDB int)) { p.onLevel = fn }

// OnVoxState registers the VOX state callback.
func (p *Pipeline) OnVoxState(fn func(vox.State)) { p.onVoxState = fn }

// OnTransmitActive registers the transmit indicator callback.
func (p *Pipeline) OnTransmitActive(fn func(bool)) { p.onTxActive = fn }

// OnReceiveActive registers the receive indicator callback.
func (p *Pipeline) OnReceiveActive(fn func(bool)) { p.onRxActive = fn }

// OnChatMessage registers the peer chat text callback.
func (p *Pipeline) OnChatMessage(fn func(string)) { p.onChat = fn }

// OnInfoMessage registers the peer station info callback.
func (p *Pipeline) OnInfoMessage(fn func(string)) { p.onInfo = fn }

// OnError registers the callback for non-fatal pipeline failures, such
// as a device that would not open.
func (p *Pipeline) OnError(fn func(error)) { p.onPipeError = fn }

// Vox exposes the VOX detector for live threshold and enable changes.
func (p *Pipeline) Vox() *vox.Detector { return p.detector }

// Transmitting reports whether the outgoing path is currently live.
func (p *Pipeline) Transmitting() bool { return p.gate.Transmitting() }

// SetPTT feeds the normalized push-to-talk boolean to the transmit gate.
func (p *Pipeline) SetPTT(pressed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tornDown {
		return
	}
	p.gate.SetPTT(pressed)
}

// HandleConnectionState reacts to a connection-state transition. On
// CONNECTED the devices start and the gate begins honoring PTT and VOX;
// on any other state the transmit decision is forced false and, in half
// duplex, the devices revert to the receive configuration.
func (p *Pipeline) HandleConnectionState(state remote.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tornDown {
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "Pipeline.HandleConnectionState",
		"state":    state.String(),
	}).Info("Connection state reached pipeline")

	if state == remote.StateConnected && !p.started {
		p.started = true
		p.arbiter.Start()
	}
	p.gate.SetConnectionState(state)
}

// Teardown shuts the pipeline down: transmit forced off first, then the
// devices close, then every graph registration detaches, then the
// buffers release. No audio callback may run after this returns.
func (p *Pipeline) Teardown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tornDown {
		return
	}
	p.tornDown = true

	logrus.WithFields(logrus.Fields{
		"function": "Pipeline.Teardown",
	}).Info("Tearing down call audio pipeline")

	p.gate.SetPTT(false)
	p.gate.SetConnectionState(remote.StateDisconnected)

	p.arbiter.Stop()
	p.started = false

	p.capture.RegisterSink(nil)
	p.endpoint.RegisterSink(nil)
	p.splitter.RemoveSink(p.detector)
	p.splitter.RemoveSink(p.remoteChain)

	p.detector.SetEnabled(false)
	p.micFifo.Clear()
	p.rxFifo.Clear()
}
