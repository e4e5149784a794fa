package remote

import (
	"errors"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrTransportClosed indicates a send on a closed transport.
var ErrTransportClosed = errors.New("transport is closed")

// Transport moves opaque datagrams between the two call parties. The
// endpoint registers one handler for inbound datagrams; delivery order is
// the transport's business.
type Transport interface {
	// Send transmits one datagram to the peer.
	Send(data []byte) error

	// RegisterHandler installs the inbound datagram handler.
	RegisterHandler(handler func(data []byte))

	// Close releases the transport. Further sends fail.
	Close() error
}

// MemoryTransport is an in-process Transport wired directly to its peer.
// It backs deterministic endpoint tests and local loopback demos.
type MemoryTransport struct {
	mu      sync.Mutex
	peer    *MemoryTransport
	handler func([]byte)
	closed  bool
}

// NewMemoryTransportPair creates two connected in-process transports.
func NewMemoryTransportPair() (*MemoryTransport, *MemoryTransport) {
	a := &MemoryTransport{}
	b := &MemoryTransport{}
	a.peer = b
	b.peer = a
	return a, b
}

// Send delivers the datagram synchronously to the peer's handler.
func (t *MemoryTransport) Send(data []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	peer := t.peer
	t.mu.Unlock()

	peer.mu.Lock()
	handler := peer.handler
	closed := peer.closed
	peer.mu.Unlock()

	if closed || handler == nil {
		return nil
	}
	// Copy so the receiver may retain the buffer.
	buf := append([]byte(nil), data...)
	handler(buf)
	return nil
}

// RegisterHandler installs the inbound handler.
func (t *MemoryTransport) RegisterHandler(handler func(data []byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
}

// Close marks the transport closed.
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// UDPTransport is a Transport over a single UDP peer association.
type UDPTransport struct {
	conn    *net.UDPConn
	peer    *net.UDPAddr
	mu      sync.Mutex
	handler func([]byte)
	closed  bool
	done    chan struct{}
}

// NewUDPTransport binds a local UDP socket and associates it with the
// given peer address.
//
// Parameters:
//   - localAddr: address to bind, e.g. ":5198" (empty for any port)
//   - peerAddr: the remote party, e.g. "192.0.2.7:5198"
//
// Returns:
//   - *UDPTransport: the running transport with its read loop started
//   - error: resolution or bind failure
func NewUDPTransport(localAddr, peerAddr string) (*UDPTransport, error) {
	logrus.WithFields(logrus.Fields{
		"function":   "NewUDPTransport",
		"local_addr": localAddr,
		"peer_addr":  peerAddr,
	}).Info("Creating UDP transport")

	local, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, err
	}
	peer, err := net.ResolveUDPAddr("udp", peerAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "NewUDPTransport",
			"local_addr": localAddr,
			"error":      err.Error(),
		}).Error("UDP bind failed")
		return nil, err
	}

	t := &UDPTransport{
		conn: conn,
		peer: peer,
		done: make(chan struct{}),
	}
	go t.readLoop()

	return t, nil
}

// LocalAddr returns the bound local address, useful when binding to an
// ephemeral port.
func (t *UDPTransport) LocalAddr() *net.UDPAddr {
	return t.conn.LocalAddr().(*net.UDPAddr)
}

// SetPeer re-points the transport at a new peer address.
func (t *UDPTransport) SetPeer(addr string) error {
	peer, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.peer = peer
	t.mu.Unlock()
	return nil
}

// Send transmits one datagram to the associated peer.
func (t *UDPTransport) Send(data []byte) error {
	t.mu.Lock()
	closed := t.closed
	peer := t.peer
	t.mu.Unlock()
	if closed {
		return ErrTransportClosed
	}

	_, err := t.conn.WriteToUDP(data, peer)
	return err
}

// RegisterHandler installs the inbound handler.
func (t *UDPTransport) RegisterHandler(handler func(data []byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
}

// Close shuts down the socket and stops the read loop.
func (t *UDPTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	err := t.conn.Close()
	<-t.done
	return err
}

// readLoop delivers inbound datagrams from the associated peer to the
// handler. Datagrams from other senders are dropped.
func (t *UDPTransport) readLoop() {
	defer close(t.done)
	buf := make([]byte, 4096)
	for {
		n, addr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if !closed {
				logrus.WithFields(logrus.Fields{
					"function": "UDPTransport.readLoop",
					"error":    err.Error(),
				}).Error("UDP read failed")
			}
			return
		}
		t.mu.Lock()
		peer := t.peer
		t.mu.Unlock()
		if !addr.IP.Equal(peer.IP) || addr.Port != peer.Port {
			logrus.WithFields(logrus.Fields{
				"function": "UDPTransport.readLoop",
				"from":     addr.String(),
			}).Debug("Dropping datagram from unknown sender")
			continue
		}

		t.mu.Lock()
		handler := t.handler
		t.mu.Unlock()
		if handler != nil {
			data := append([]byte(nil), buf[:n]...)
			handler(data)
		}
	}
}
