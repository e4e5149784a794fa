package remote

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTransportPairDelivery(t *testing.T) {
	ta, tb := NewMemoryTransportPair()

	var got [][]byte
	tb.RegisterHandler(func(data []byte) { got = append(got, data) })

	require.NoError(t, ta.Send([]byte{1, 2, 3}))
	require.NoError(t, ta.Send([]byte{4}))

	require.Len(t, got, 2)
	assert.Equal(t, []byte{1, 2, 3}, got[0])
	assert.Equal(t, []byte{4}, got[1])
}

func TestMemoryTransportCopiesBuffer(t *testing.T) {
	ta, tb := NewMemoryTransportPair()

	var got []byte
	tb.RegisterHandler(func(data []byte) { got = data })

	buf := []byte{1, 2, 3}
	require.NoError(t, ta.Send(buf))
	buf[0] = 99

	assert.Equal(t, []byte{1, 2, 3}, got)
}

func TestUDPTransportLoopback(t *testing.T) {
	// Bind both ends on ephemeral ports, then point them at each other.
	ta, err := NewUDPTransport("127.0.0.1:0", "127.0.0.1:1")
	require.NoError(t, err)
	defer ta.Close()

	tb, err := NewUDPTransport("127.0.0.1:0", ta.LocalAddr().String())
	require.NoError(t, err)
	defer tb.Close()

	require.NoError(t, ta.SetPeer(tb.LocalAddr().String()))

	got := make(chan []byte, 1)
	tb.RegisterHandler(func(data []byte) { got <- data })

	require.NoError(t, ta.Send([]byte("ping")))

	select {
	case data := <-got:
		assert.Equal(t, []byte("ping"), data)
	case <-time.After(2 * time.Second):
		t.Fatal("datagram never arrived")
	}
}

func TestUDPTransportSendAfterClose(t *testing.T) {
	ta, err := NewUDPTransport("127.0.0.1:0", "127.0.0.1:1")
	require.NoError(t, err)
	require.NoError(t, ta.Close())

	assert.ErrorIs(t, ta.Send([]byte("late")), ErrTransportClosed)
}
