package discover_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeller/kademlia/p2p/discover"
)

func TestTransport_SendAndReceive(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan discover.Message, 1)
	recv, err := discover.NewTransport(ctx, 41910, func(msg discover.Message, from discover.Endpoint) {
		received <- msg
	})
	require.NoError(t, err)
	defer recv.Close()

	send, err := discover.NewTransport(ctx, 41911, func(discover.Message, discover.Endpoint) {})
	require.NoError(t, err)
	defer send.Close()

	msg := discover.Message{
		Header: discover.Header{Version: discover.Version, Type: discover.PingPacket, Source: discover.RandomID(), Token: discover.RandomID()},
		Body:   &discover.PingBody{},
	}
	dest := discover.Endpoint{IP: net.ParseIP("127.0.0.1").To4(), Port: 41910}
	require.NoError(t, send.Send(msg, dest))

	select {
	case got := <-received:
		assert.Equal(t, msg.Header, got.Header)
	case <-time.After(2 * time.Second):
		t.Fatal("message was not received")
	}
}

func TestTransport_SendRejectsOversizedDatagram(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr, err := discover.NewTransport(ctx, 41912, func(discover.Message, discover.Endpoint) {})
	require.NoError(t, err)
	defer tr.Close()

	msg := discover.Message{
		Header: discover.Header{Version: discover.Version, Type: discover.StoreValueRequestPacket, Source: discover.RandomID(), Token: discover.RandomID()},
		Body:   &discover.StoreValueRequestBody{KeyHash: discover.RandomID(), Value: make([]byte, discover.MaxDatagramSize*2)},
	}
	dest := discover.Endpoint{IP: net.ParseIP("127.0.0.1").To4(), Port: 41912}
	err = tr.Send(msg, dest)
	assert.Equal(t, discover.ErrSendFailed, err)
}
