package discover_test

import (
	"crypto/rand"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gotoolsassert "gotest.tools/v3/assert"

	"github.com/dkeller/kademlia/p2p/discover"
)

// TestMessage_HeaderRoundTrip is S1: encode then decode a FIND_VALUE_RESPONSE
// message carrying a small payload and assert its header comes back field by
// field (Decode itself rejects any trailing bytes).
func TestMessage_HeaderRoundTrip(t *testing.T) {
	msg := discover.Message{
		Header: discover.Header{
			Version: discover.Version,
			Type:    discover.FindValueResponsePacket,
			Source:  discover.RandomID(),
			Token:   discover.RandomID(),
		},
		Body: &discover.FindValueResponseBody{Data: []byte("payload")},
	}

	raw := discover.Encode(msg)
	got, err := discover.Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, msg.Header, got.Header)
	assert.Equal(t, msg.Body.(*discover.FindValueResponseBody).Data, got.Body.(*discover.FindValueResponseBody).Data)
}

// TestMessage_FindPeerResponseRoundTrip is S2: 10 peers alternating address
// families, encode then decode, assert equal by value.
func TestMessage_FindPeerResponseRoundTrip(t *testing.T) {
	var peers []discover.WireEndpoint
	for i := 0; i < 10; i++ {
		ip := net.ParseIP("127.0.0.1")
		if i%2 == 0 {
			ip = net.ParseIP("::1")
		}
		peers = append(peers, discover.WireEndpoint{
			ID:   discover.RandomID(),
			Addr: discover.Endpoint{IP: ip, Port: uint16(1024 + i)},
		})
	}

	msg := discover.Message{
		Header: discover.Header{Version: discover.Version, Type: discover.FindPeerResponsePacket, Source: discover.RandomID(), Token: discover.RandomID()},
		Body:   &discover.FindPeerResponseBody{Peers: peers},
	}

	raw := discover.Encode(msg)
	got, err := discover.Decode(raw)
	require.NoError(t, err)

	gotBody := got.Body.(*discover.FindPeerResponseBody)
	require.Len(t, gotBody.Peers, len(peers))
	for i, p := range peers {
		assert.Equal(t, p.ID, gotBody.Peers[i].ID)
		assert.True(t, p.Addr.IP.Equal(gotBody.Peers[i].Addr.IP))
		assert.Equal(t, p.Addr.Port, gotBody.Peers[i].Addr.Port)
	}
}

// TestMessage_FindValueResponseLargePayload is S3: 4096 random bytes,
// byte-for-byte equal after round trip.
func TestMessage_FindValueResponseLargePayload(t *testing.T) {
	data := make([]byte, 4096)
	_, err := rand.Read(data)
	require.NoError(t, err)

	msg := discover.Message{
		Header: discover.Header{Version: discover.Version, Type: discover.FindValueResponsePacket, Source: discover.RandomID(), Token: discover.RandomID()},
		Body:   &discover.FindValueResponseBody{Data: data},
	}

	raw := discover.Encode(msg)
	got, err := discover.Decode(raw)
	require.NoError(t, err)
	gotoolsassert.DeepEqual(t, data, got.Body.(*discover.FindValueResponseBody).Data)
}

func TestMessage_DecodeRejectsUnknownVersion(t *testing.T) {
	msg := discover.Message{
		Header: discover.Header{Version: 99, Type: discover.PingPacket, Source: discover.RandomID(), Token: discover.RandomID()},
		Body:   &discover.PingBody{},
	}
	raw := discover.Encode(msg)
	_, err := discover.Decode(raw)
	assert.Equal(t, discover.ErrUnknownVersion, err)
}

func TestMessage_DecodeRejectsUnknownType(t *testing.T) {
	msg := discover.Message{
		Header: discover.Header{Version: discover.Version, Type: 0xEE, Source: discover.RandomID(), Token: discover.RandomID()},
		Body:   &discover.PingBody{},
	}
	raw := discover.Encode(msg)
	_, err := discover.Decode(raw)
	assert.Equal(t, discover.ErrUnknownType, err)
}

func TestMessage_DecodeRejectsTrailingBytes(t *testing.T) {
	msg := discover.Message{
		Header: discover.Header{Version: discover.Version, Type: discover.PingPacket, Source: discover.RandomID(), Token: discover.RandomID()},
		Body:   &discover.PingBody{},
	}
	raw := append(discover.Encode(msg), 0x01)
	_, err := discover.Decode(raw)
	assert.Error(t, err)
}

func TestMessage_DecodeRejectsShortHeader(t *testing.T) {
	_, err := discover.Decode([]byte{discover.Version})
	assert.Equal(t, discover.ErrMalformedMessage, err)
}

func TestMessage_PingPongRoundTrip(t *testing.T) {
	for _, body := range []discover.Body{&discover.PingBody{}, &discover.PongBody{}} {
		msg := discover.Message{
			Header: discover.Header{Version: discover.Version, Type: body.PacketType(), Source: discover.RandomID(), Token: discover.RandomID()},
			Body:   body,
		}
		raw := discover.Encode(msg)
		got, err := discover.Decode(raw)
		require.NoError(t, err)
		assert.Equal(t, body.PacketType(), got.Body.PacketType())
	}
}

func TestMessage_StoreValueRequestRoundTrip(t *testing.T) {
	msg := discover.Message{
		Header: discover.Header{Version: discover.Version, Type: discover.StoreValueRequestPacket, Source: discover.RandomID(), Token: discover.RandomID()},
		Body:   &discover.StoreValueRequestBody{KeyHash: discover.RandomID(), Value: []byte("stored value")},
	}
	raw := discover.Encode(msg)
	got, err := discover.Decode(raw)
	require.NoError(t, err)
	gotBody := got.Body.(*discover.StoreValueRequestBody)
	assert.Equal(t, msg.Body.(*discover.StoreValueRequestBody).KeyHash, gotBody.KeyHash)
	assert.Equal(t, msg.Body.(*discover.StoreValueRequestBody).Value, gotBody.Value)
}
