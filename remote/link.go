package remote

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/voiceterm/audio"
)

// DefaultSampleRate is the rate of the audio a Link exchanges with the
// peer. Narrowband voice links run at 8 kHz; the call pipeline converts
// between this rate and its internal processing rate.
const DefaultSampleRate = 8000

// DefaultReceiveTimeout is how long after the last audio packet the link
// reports the receive stream as gone quiet.
const DefaultReceiveTimeout = 500 * time.Millisecond

// opusDecodeBufBytes sizes the Opus decode buffer: 1920 samples (40 ms at
// 48 kHz) of PCM16.
const opusDecodeBufBytes = 1920 * 2

// ErrNotConnected indicates an operation that requires an established
// call was attempted without one.
var ErrNotConnected = errors.New("link is not connected")

var _ Endpoint = (*Link)(nil)

// ErrAlreadyConnected indicates Connect was called while a call exists or
// is pending.
var ErrAlreadyConnected = errors.New("link already has an active or pending call")

// Link is the packet-based Endpoint implementation. It runs the
// connect/accept/bye handshake over a Transport and carries PCM16 audio
// plus chat and station-info text. Inbound Opus audio frames are decoded
// transparently; outbound audio is always PCM16.
type Link struct {
	transport Transport
	identity  ConnectRequest

	mu           sync.Mutex
	state        State
	sampleRate   int
	sink         audio.Sink
	pendingPeer  *ConnectRequest
	opusDec      *opus.Decoder
	opusBuf      []byte
	receiving    bool
	recvTimeout  time.Duration
	recvTimer    *time.Timer
	recvTimerGen uint64

	onState     func(State)
	onChat      func(string)
	onInfo      func(string)
	onReceiving func(bool)
	onRequest   func(ConnectRequest)
}

// NewLink creates a disconnected Link over the given transport.
// The identity is announced to the peer in the connect request.
func NewLink(transport Transport, identity ConnectRequest) *Link {
	logrus.WithFields(logrus.Fields{
		"function": "NewLink",
		"callsign": identity.Callsign,
	}).Info("Creating remote link")

	decoder := opus.NewDecoder()
	l := &Link{
		transport:   transport,
		identity:    identity,
		state:       StateDisconnected,
		sampleRate:  DefaultSampleRate,
		opusDec:     &decoder,
		opusBuf:     make([]byte, opusDecodeBufBytes),
		recvTimeout: DefaultReceiveTimeout,
	}
	transport.RegisterHandler(l.handlePacket)

	return l
}

// SetReceiveTimeout overrides the receive-activity timeout. Mainly for
// tests that cannot wait out the default.
func (l *Link) SetReceiveTimeout(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recvTimeout = d
}

// OnConnectRequest registers the callback fired when the peer initiates a
// call. The application answers with Accept or Disconnect.
func (l *Link) OnConnectRequest(fn func(ConnectRequest)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onRequest = fn
}

// OnStateChange registers the connection-state callback.
func (l *Link) OnStateChange(fn func(State)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onState = fn
}

// OnChatMessage registers the callback for peer chat text.
func (l *Link) OnChatMessage(fn func(string)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChat = fn
}

// OnInfoMessage registers the callback for peer station info text.
func (l *Link) OnInfoMessage(fn func(string)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onInfo = fn
}

// OnReceiving registers the callback reporting whether remote audio is
// currently arriving.
func (l *Link) OnReceiving(fn func(bool)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onReceiving = fn
}

// RegisterSink connects the graph sink that receives decoded remote audio.
func (l *Link) RegisterSink(sink audio.Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink = sink
}

// State returns the current connection state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// SampleRate returns the link's audio sample rate in Hz.
func (l *Link) SampleRate() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sampleRate
}

// PeerIdentity returns the connect request received from the peer, or nil
// if the peer never initiated a call.
func (l *Link) PeerIdentity() *ConnectRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pendingPeer == nil {
		return nil
	}
	req := *l.pendingPeer
	return &req
}

// Connect initiates an outgoing call.
func (l *Link) Connect() error {
	l.mu.Lock()
	if l.state != StateDisconnected {
		state := l.state
		l.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "Link.Connect",
			"state":    state.String(),
		}).Error("Connect rejected in current state")
		return ErrAlreadyConnected
	}
	notify := l.setStateLocked(StateConnecting)
	l.mu.Unlock()
	notify()

	data, err := SerializeConnect(&l.identity)
	if err != nil {
		return fmt.Errorf("failed to serialize connect request: %w", err)
	}
	if err := l.transport.Send(data); err != nil {
		l.mu.Lock()
		rollback := l.setStateLocked(StateDisconnected)
		l.mu.Unlock()
		rollback()
		return fmt.Errorf("failed to send connect request: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Link.Connect",
		"callsign": l.identity.Callsign,
	}).Info("Connect request sent")
	return nil
}

// Accept answers an incoming call request.
func (l *Link) Accept() error {
	l.mu.Lock()
	if l.pendingPeer == nil || l.state != StateDisconnected {
		state := l.state
		l.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "Link.Accept",
			"state":    state.String(),
		}).Error("Accept rejected without pending call request")
		return ErrNotConnected
	}
	notify := l.setStateLocked(StateConnected)
	l.mu.Unlock()
	notify()

	if err := l.transport.Send([]byte{packetTypeAccept}); err != nil {
		return fmt.Errorf("failed to send accept: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Link.Accept",
	}).Info("Incoming call accepted")
	return nil
}

// Disconnect ends the call (or abandons a pending one). A bye packet is
// sent unless the peer already ended the call.
func (l *Link) Disconnect() error {
	l.mu.Lock()
	if l.state == StateDisconnected {
		l.mu.Unlock()
		return nil
	}
	sendBye := l.state == StateConnecting || l.state == StateConnected
	l.pendingPeer = nil
	l.stopReceivingLocked()
	notify := l.setStateLocked(StateDisconnected)
	recvNotify := l.clearReceivingLocked()
	l.mu.Unlock()
	recvNotify()
	notify()

	if sendBye {
		if err := l.transport.Send([]byte{packetTypeBye}); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Link.Disconnect",
				"error":    err.Error(),
			}).Error("Failed to send bye")
			return err
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "Link.Disconnect",
	}).Info("Call disconnected")
	return nil
}

// SendChat transmits a chat text message to the peer.
func (l *Link) SendChat(text string) error {
	return l.sendText(packetTypeChat, text)
}

// SendInfo transmits a station-info text message to the peer.
func (l *Link) SendInfo(text string) error {
	return l.sendText(packetTypeInfo, text)
}

func (l *Link) sendText(packetType byte, text string) error {
	l.mu.Lock()
	connected := l.state == StateConnected
	l.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}

	data, err := SerializeText(packetType, text)
	if err != nil {
		return err
	}
	return l.transport.Send(data)
}

// WriteSamples transmits one block of captured audio as a PCM16 packet.
// Audio submitted while no call is established is silently dropped so an
// upstream graph never stalls on connection state.
func (l *Link) WriteSamples(samples []float32) (int, error) {
	l.mu.Lock()
	connected := l.state == StateConnected
	l.mu.Unlock()
	if !connected || len(samples) == 0 {
		return len(samples), nil
	}

	if err := l.transport.Send(SerializeAudioPCM(samples)); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":     "Link.WriteSamples",
			"sample_count": len(samples),
			"error":        err.Error(),
		}).Error("Failed to send audio packet")
		return 0, err
	}
	return len(samples), nil
}

// FlushSamples signals end of the local transmit stream. Nothing is
// buffered on the wire side, so there is nothing to push out.
func (l *Link) FlushSamples() {}

// handlePacket dispatches one inbound datagram by type byte.
func (l *Link) handlePacket(data []byte) {
	if len(data) < 1 {
		return
	}
	packetType, payload := data[0], data[1:]

	switch packetType {
	case packetTypeConnect:
		l.handleConnect(payload)
	case packetTypeAccept:
		l.handleAccept()
	case packetTypeBye:
		l.handleBye()
	case packetTypeAudioPCM:
		l.handleAudioPCM(payload)
	case packetTypeAudioOpus:
		l.handleAudioOpus(payload)
	case packetTypeChat:
		l.handleText(payload, true)
	case packetTypeInfo:
		l.handleText(payload, false)
	default:
		logrus.WithFields(logrus.Fields{
			"function":    "Link.handlePacket",
			"packet_type": packetType,
		}).Debug("Dropping packet of unknown type")
	}
}

func (l *Link) handleConnect(payload []byte) {
	req, err := DeserializeConnect(payload)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Link.handleConnect",
			"error":    err.Error(),
		}).Error("Malformed connect request")
		return
	}

	l.mu.Lock()
	if l.state != StateDisconnected {
		state := l.state
		l.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "Link.handleConnect",
			"state":    state.String(),
			"callsign": req.Callsign,
		}).Debug("Ignoring connect request in current state")
		return
	}
	l.pendingPeer = req
	onRequest := l.onRequest
	l.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Link.handleConnect",
		"callsign": req.Callsign,
		"name":     req.Name,
	}).Info("Incoming call request")

	if onRequest != nil {
		onRequest(*req)
	}
}

func (l *Link) handleAccept() {
	l.mu.Lock()
	if l.state != StateConnecting {
		l.mu.Unlock()
		return
	}
	notify := l.setStateLocked(StateConnected)
	l.mu.Unlock()
	notify()

	logrus.WithFields(logrus.Fields{
		"function": "Link.handleAccept",
	}).Info("Call accepted by peer")
}

func (l *Link) handleBye() {
	l.mu.Lock()
	if l.state == StateDisconnected || l.state == StateByeReceived {
		l.mu.Unlock()
		return
	}
	l.stopReceivingLocked()
	notify := l.setStateLocked(StateByeReceived)
	recvNotify := l.clearReceivingLocked()
	l.mu.Unlock()
	recvNotify()
	notify()

	logrus.WithFields(logrus.Fields{
		"function": "Link.handleBye",
	}).Info("Peer ended the call")
}

func (l *Link) handleAudioPCM(payload []byte) {
	samples, err := DeserializeAudioPCM(payload)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Link.handleAudioPCM",
			"error":    err.Error(),
		}).Error("Malformed audio packet")
		return
	}
	l.deliverAudio(samples)
}

// handleAudioOpus decodes one Opus frame to PCM16 little-endian and
// delivers it. Stereo frames are mixed down since the link carries mono
// voice.
func (l *Link) handleAudioOpus(payload []byte) {
	l.mu.Lock()
	bandwidth, isStereo, err := l.opusDec.Decode(payload, l.opusBuf)
	if err != nil {
		l.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "Link.handleAudioOpus",
			"error":    err.Error(),
		}).Error("Opus decode failed")
		return
	}
	// The decoder does not report how many samples the frame produced,
	// so the full buffer is forwarded and a frame shorter than the
	// buffer carries trailing silence. Deliberate: padding with silence
	// keeps the receive path simple and is inaudible between frames.
	pcm := append([]byte(nil), l.opusBuf...)
	l.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":  "Link.handleAudioOpus",
		"bandwidth": bandwidth.String(),
		"is_stereo": isStereo,
	}).Debug("Opus frame decoded")

	samples, err := DeserializeAudioPCM(pcm)
	if err != nil {
		return
	}
	if isStereo {
		mono := make([]float32, len(samples)/2)
		for i := range mono {
			mono[i] = (samples[i*2] + samples[i*2+1]) / 2
		}
		samples = mono
	}
	l.deliverAudio(samples)
}

// handleText routes a chat or station-info message to its callback.
func (l *Link) handleText(payload []byte, chat bool) {
	text, err := DeserializeText(payload)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Link.handleText",
			"error":    err.Error(),
		}).Error("Malformed text packet")
		return
	}

	l.mu.Lock()
	var fn func(string)
	if chat {
		fn = l.onChat
	} else {
		fn = l.onInfo
	}
	l.mu.Unlock()

	if fn != nil {
		fn(text)
	}
}

// deliverAudio pushes decoded peer audio into the registered sink and
// maintains the receive-activity flag.
func (l *Link) deliverAudio(samples []float32) {
	l.mu.Lock()
	if l.state != StateConnected {
		l.mu.Unlock()
		return
	}
	sink := l.sink
	notify := l.markReceivingLocked()
	l.mu.Unlock()
	notify()

	if sink == nil || len(samples) == 0 {
		return
	}
	if _, err := sink.WriteSamples(samples); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":     "Link.deliverAudio",
			"sample_count": len(samples),
			"error":        err.Error(),
		}).Error("Sink rejected remote audio")
	}
}

// markReceivingLocked flips the receive-activity flag on and re-arms the
// inactivity timer. Caller holds l.mu; the returned func is invoked after
// unlocking.
func (l *Link) markReceivingLocked() func() {
	l.recvTimerGen++
	gen := l.recvTimerGen
	if l.recvTimer != nil {
		l.recvTimer.Stop()
	}
	l.recvTimer = time.AfterFunc(l.recvTimeout, func() { l.receiveTimedOut(gen) })

	if l.receiving {
		return func() {}
	}
	l.receiving = true
	fn := l.onReceiving
	return func() {
		logrus.WithFields(logrus.Fields{
			"function": "Link.markReceiving",
		}).Debug("Remote audio stream started")
		if fn != nil {
			fn(true)
		}
	}
}

// clearReceivingLocked flips the receive-activity flag off. Caller holds
// l.mu; the returned func is invoked after unlocking.
func (l *Link) clearReceivingLocked() func() {
	if !l.receiving {
		return func() {}
	}
	l.receiving = false
	fn := l.onReceiving
	return func() {
		logrus.WithFields(logrus.Fields{
			"function": "Link.clearReceiving",
		}).Debug("Remote audio stream stopped")
		if fn != nil {
			fn(false)
		}
	}
}

// stopReceivingLocked cancels the inactivity timer. Caller holds l.mu.
func (l *Link) stopReceivingLocked() {
	l.recvTimerGen++
	if l.recvTimer != nil {
		l.recvTimer.Stop()
		l.recvTimer = nil
	}
}

// receiveTimedOut fires when no audio arrived within the timeout. Stale
// generations belong to timers that were superseded before they could be
// stopped.
func (l *Link) receiveTimedOut(gen uint64) {
	l.mu.Lock()
	if gen != l.recvTimerGen {
		l.mu.Unlock()
		return
	}
	notify := l.clearReceivingLocked()
	l.mu.Unlock()
	notify()
}

// setStateLocked records the new state. Caller holds l.mu; the returned
// func fires the state callback after unlocking.
func (l *Link) setStateLocked(next State) func() {
	prev := l.state
	l.state = next
	fn := l.onState
	return func() {
		logrus.WithFields(logrus.Fields{
			"function":  "Link.setState",
			"old_state": prev.String(),
			"new_state": next.String(),
		}).Info("Connection state changed")
		if fn != nil {
			fn(next)
		}
	}
}
