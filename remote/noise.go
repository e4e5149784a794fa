package remote

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/flynn/noise"
	"github.com/sirupsen/logrus"
)

// Noise wire framing: handshake messages and data messages share the
// underlying transport and are told apart by a one-byte prefix. Data
// frames carry the sender's nonce explicitly so datagram loss does not
// desynchronize the cipher states.
const (
	noiseFrameHandshake byte = 0x01
	noiseFrameData      byte = 0x02

	noiseNonceSize = 8
)

// Noise transport errors.
var (
	// ErrHandshakeNotComplete indicates application data was submitted or
	// received before the handshake finished.
	ErrHandshakeNotComplete = errors.New("noise handshake not complete")
	// ErrHandshakeFailed indicates the handshake message exchange broke.
	ErrHandshakeFailed = errors.New("noise handshake failed")
)

// NoiseTransport wraps an inner Transport with a Noise XX handshake and
// per-datagram authenticated encryption.
//
// XX is used rather than IK because a voice terminal dials stations whose
// static keys it does not know in advance; both sides learn each other's
// static key during the handshake.
//
// Each data frame carries the sender's 64-bit nonce in the clear, and
// the receiver sets that nonce on its cipher state before decrypting,
// so losing a datagram does not desynchronize the session. A frame
// whose nonce is lower than the highest one already accepted is dropped
// as a replay, which means heavy reordering degrades to loss; for a
// real-time voice stream that is the right trade. The handshake frames
// themselves must still be delivered, so the dialer bounds the exchange
// with a timeout on HandshakeDone.
type NoiseTransport struct {
	inner     Transport
	initiator bool

	mu        sync.Mutex
	hs        *noise.HandshakeState
	sendCS    *noise.CipherState
	recvCS    *noise.CipherState
	sendNonce uint64
	recvNonce uint64
	complete  bool
	handler   func([]byte)
	completeC chan struct{}
}

// NewNoiseTransport wraps inner with Noise XX encryption.
//
// Parameters:
//   - inner: the transport carrying handshake and ciphertext frames
//   - keys: our static keypair (see GenerateKeyPair)
//   - initiator: true on the side that calls Handshake first
//
// Returns:
//   - *NoiseTransport: the wrapper, not yet handshaken
//   - error: Noise configuration failure
func NewNoiseTransport(inner Transport, keys *KeyPair, initiator bool) (*NoiseTransport, error) {
	logrus.WithFields(logrus.Fields{
		"function":  "NewNoiseTransport",
		"initiator": initiator,
	}).Info("Creating Noise-encrypted transport")

	if keys == nil {
		return nil, errors.New("static keypair is required")
	}

	cipherSuite := noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)
	config := noise.Config{
		CipherSuite: cipherSuite,
		Random:      rand.Reader,
		Pattern:     noise.HandshakeXX,
		Initiator:   initiator,
		StaticKeypair: noise.DHKey{
			Private: append([]byte(nil), keys.Private[:]...),
			Public:  append([]byte(nil), keys.Public[:]...),
		},
	}

	hs, err := noise.NewHandshakeState(config)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewNoiseTransport",
			"error":    err.Error(),
		}).Error("Noise handshake state creation failed")
		return nil, fmt.Errorf("failed to create handshake state: %w", err)
	}

	t := &NoiseTransport{
		inner:     inner,
		initiator: initiator,
		hs:        hs,
		completeC: make(chan struct{}),
	}
	inner.RegisterHandler(t.handleFrame)

	return t, nil
}

// Handshake starts the XX message exchange on the initiator side. The
// responder completes its half as handshake frames arrive; both sides can
// wait on HandshakeDone.
func (t *NoiseTransport) Handshake() error {
	if !t.initiator {
		return nil
	}

	t.mu.Lock()
	msg, _, _, err := t.hs.WriteMessage(nil, nil)
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	return t.inner.Send(append([]byte{noiseFrameHandshake}, msg...))
}

// HandshakeDone returns a channel closed once the handshake completes.
func (t *NoiseTransport) HandshakeDone() <-chan struct{} {
	return t.completeC
}

// PeerStatic returns the peer's static public key learned during the
// handshake, or nil before completion.
func (t *NoiseTransport) PeerStatic() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.complete {
		return nil
	}
	return append([]byte(nil), t.hs.PeerStatic()...)
}

// Send encrypts and transmits one datagram. It fails until the handshake
// has completed. The frame carries the nonce explicitly so the receiver
// stays in sync across lost datagrams.
func (t *NoiseTransport) Send(data []byte) error {
	t.mu.Lock()
	if !t.complete {
		t.mu.Unlock()
		return ErrHandshakeNotComplete
	}
	nonce := t.sendNonce
	t.sendNonce++
	t.sendCS.SetNonce(nonce)
	ct, err := t.sendCS.Encrypt(nil, nil, data)
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("noise encrypt failed: %w", err)
	}

	frame := make([]byte, 1+noiseNonceSize, 1+noiseNonceSize+len(ct))
	frame[0] = noiseFrameData
	binary.BigEndian.PutUint64(frame[1:], nonce)
	return t.inner.Send(append(frame, ct...))
}

// RegisterHandler installs the plaintext datagram handler.
func (t *NoiseTransport) RegisterHandler(handler func(data []byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
}

// Close closes the inner transport.
func (t *NoiseTransport) Close() error {
	return t.inner.Close()
}

// handleFrame dispatches inbound frames to the handshake driver or the
// decryption path.
func (t *NoiseTransport) handleFrame(frame []byte) {
	if len(frame) < 1 {
		return
	}
	kind, payload := frame[0], frame[1:]

	switch kind {
	case noiseFrameHandshake:
		t.handleHandshakeFrame(payload)
	case noiseFrameData:
		t.handleDataFrame(payload)
	default:
		logrus.WithFields(logrus.Fields{
			"function": "NoiseTransport.handleFrame",
			"kind":     kind,
		}).Debug("Dropping unknown noise frame")
	}
}

// handleHandshakeFrame advances the XX exchange by one message.
//
// Initiator: -> e, <- (e, ee, s, es), -> (s, se). The side writing the
// final message obtains the cipher states from WriteMessage, the side
// reading it from ReadMessage.
func (t *NoiseTransport) handleHandshakeFrame(msg []byte) {
	t.mu.Lock()

	if t.complete {
		t.mu.Unlock()
		return
	}

	_, cs1, cs2, err := t.hs.ReadMessage(nil, msg)
	if err != nil {
		t.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "NoiseTransport.handleHandshakeFrame",
			"error":    err.Error(),
		}).Error("Noise handshake message rejected")
		return
	}

	if cs1 != nil {
		// Responder just read the final XX message.
		t.finishLocked(cs1, cs2)
		t.mu.Unlock()
		return
	}

	reply, cs1, cs2, err := t.hs.WriteMessage(nil, nil)
	if err != nil {
		t.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "NoiseTransport.handleHandshakeFrame",
			"error":    err.Error(),
		}).Error("Noise handshake reply failed")
		return
	}
	if cs1 != nil {
		t.finishLocked(cs1, cs2)
	}
	t.mu.Unlock()

	if err := t.inner.Send(append([]byte{noiseFrameHandshake}, reply...)); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NoiseTransport.handleHandshakeFrame",
			"error":    err.Error(),
		}).Error("Noise handshake send failed")
	}
}

// finishLocked records the session cipher states. In the Noise API the
// first returned state encrypts initiator-to-responder traffic. Caller
// holds t.mu.
func (t *NoiseTransport) finishLocked(cs1, cs2 *noise.CipherState) {
	if t.initiator {
		t.sendCS, t.recvCS = cs1, cs2
	} else {
		t.sendCS, t.recvCS = cs2, cs1
	}
	t.complete = true
	close(t.completeC)

	logrus.WithFields(logrus.Fields{
		"function":  "NoiseTransport.finish",
		"initiator": t.initiator,
	}).Info("Noise handshake completed")
}

// handleDataFrame decrypts one datagram and hands it to the handler.
// The explicit nonce is authenticated implicitly: a frame whose nonce
// was tampered with fails decryption.
func (t *NoiseTransport) handleDataFrame(payload []byte) {
	if len(payload) < noiseNonceSize {
		logrus.WithFields(logrus.Fields{
			"function": "NoiseTransport.handleDataFrame",
			"length":   len(payload),
		}).Debug("Dropping short noise data frame")
		return
	}
	nonce := binary.BigEndian.Uint64(payload[:noiseNonceSize])

	t.mu.Lock()
	if !t.complete {
		t.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "NoiseTransport.handleDataFrame",
		}).Debug("Dropping data frame before handshake completion")
		return
	}
	if nonce < t.recvNonce {
		t.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "NoiseTransport.handleDataFrame",
			"nonce":    nonce,
		}).Debug("Dropping replayed or stale noise frame")
		return
	}
	t.recvCS.SetNonce(nonce)
	pt, err := t.recvCS.Decrypt(nil, nil, payload[noiseNonceSize:])
	if err == nil {
		t.recvNonce = nonce + 1
	}
	handler := t.handler
	t.mu.Unlock()

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NoiseTransport.handleDataFrame",
			"error":    err.Error(),
		}).Error("Noise decrypt failed, dropping datagram")
		return
	}
	if handler != nil {
		handler(pt)
	}
}
