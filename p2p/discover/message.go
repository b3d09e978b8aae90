// Copyright 2015 The MOAC-core Authors
// This file is part of the MOAC-core library.
//
// The MOAC-core library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The MOAC-core library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the MOAC-core library. If not, see <http://www.gnu.org/licenses/>.

package discover

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
)

// Version is the only wire protocol version this package understands. A
// receiver MUST ignore packets carrying any other version rather than reply
// to them (§6).
const Version = 1

// RPC packet types, carried in the wire header's type byte.
const (
	PingPacket byte = iota + 1
	PongPacket
	FindPeerRequestPacket
	FindPeerResponsePacket
	FindValueRequestPacket
	FindValueResponsePacket
	StoreValueRequestPacket
)

func packetName(t byte) string {
	switch t {
	case PingPacket:
		return "PING"
	case PongPacket:
		return "PING_RESPONSE"
	case FindPeerRequestPacket:
		return "FIND_PEER_REQUEST"
	case FindPeerResponsePacket:
		return "FIND_PEER_RESPONSE"
	case FindValueRequestPacket:
		return "FIND_VALUE_REQUEST"
	case FindValueResponsePacket:
		return "FIND_VALUE_RESPONSE"
	case StoreValueRequestPacket:
		return "STORE_VALUE_REQUEST"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", t)
	}
}

// HeaderSize is the fixed size, in bytes, of every datagram's header.
const HeaderSize = 1 + 1 + IDLength + IDLength

// Header is the fixed preamble of every datagram: protocol version, message
// type, the sender's ID and a random correlation token.
type Header struct {
	Version byte
	Type    byte
	Source  ID
	Token   ID
}

func (h Header) encode(buf *bytes.Buffer) {
	buf.WriteByte(h.Version)
	buf.WriteByte(h.Type)
	buf.Write(h.Source[:])
	buf.Write(h.Token[:])
}

func decodeHeader(buf []byte) (Header, []byte, error) {
	if len(buf) < HeaderSize {
		return Header{}, nil, ErrMalformedMessage
	}
	var h Header
	h.Version = buf[0]
	h.Type = buf[1]
	copy(h.Source[:], buf[2:2+IDLength])
	copy(h.Token[:], buf[2+IDLength:2+2*IDLength])
	return h, buf[HeaderSize:], nil
}

// Message is a fully decoded datagram: its header plus a typed body.
type Message struct {
	Header Header
	Body   Body
}

// Body is implemented by every RPC body type.
type Body interface {
	// PacketType returns the wire type byte this body decodes/encodes as.
	PacketType() byte
	encode(buf *bytes.Buffer)
	decode(buf []byte) error
}

// PingBody carries no fields; the header alone identifies sender and token.
type PingBody struct{}

// PongBody is the reply to Ping. It carries no fields either: the header's
// token already mirrors the ping's token, which is all a sender needs to
// confirm liveness.
type PongBody struct{}

// FindPeerRequestBody asks the receiver for the peers it knows closest to Target.
type FindPeerRequestBody struct {
	Target ID
}

// FindPeerResponseBody carries the peers closest to a requested target.
type FindPeerResponseBody struct {
	Peers []WireEndpoint
}

// WireEndpoint is a (peer ID, endpoint) pair as carried in a
// FindPeerResponseBody.
type WireEndpoint struct {
	ID   ID
	Addr Endpoint
}

// FindValueRequestBody asks the receiver for the value stored under Key's hash.
type FindValueRequestBody struct {
	Key ID
}

// FindValueResponseBody carries the value found for a previously requested key.
type FindValueResponseBody struct {
	Data []byte
}

// StoreValueRequestBody asks the receiver to store Value under KeyHash.
type StoreValueRequestBody struct {
	KeyHash ID
	Value   []byte
}

func (*PingBody) PacketType() byte             { return PingPacket }
func (*PongBody) PacketType() byte             { return PongPacket }
func (*FindPeerRequestBody) PacketType() byte  { return FindPeerRequestPacket }
func (*FindPeerResponseBody) PacketType() byte { return FindPeerResponsePacket }
func (*FindValueRequestBody) PacketType() byte  { return FindValueRequestPacket }
func (*FindValueResponseBody) PacketType() byte { return FindValueResponsePacket }
func (*StoreValueRequestBody) PacketType() byte { return StoreValueRequestPacket }

func (*PingBody) encode(buf *bytes.Buffer) {}
func (*PongBody) encode(buf *bytes.Buffer) {}

func (b *FindPeerRequestBody) encode(buf *bytes.Buffer) {
	buf.Write(b.Target[:])
}

func (b *FindPeerResponseBody) encode(buf *bytes.Buffer) {
	writeUint16(buf, uint16(len(b.Peers)))
	for _, p := range b.Peers {
		buf.Write(p.ID[:])
		encodeEndpoint(buf, p.Addr)
	}
}

func (b *FindValueRequestBody) encode(buf *bytes.Buffer) {
	buf.Write(b.Key[:])
}

func (b *FindValueResponseBody) encode(buf *bytes.Buffer) {
	writeUint16(buf, uint16(len(b.Data)))
	buf.Write(b.Data)
}

func (b *StoreValueRequestBody) encode(buf *bytes.Buffer) {
	buf.Write(b.KeyHash[:])
	writeUint16(buf, uint16(len(b.Value)))
	buf.Write(b.Value)
}

func (*PingBody) decode(buf []byte) error {
	if len(buf) != 0 {
		return ErrMalformedMessage
	}
	return nil
}

func (*PongBody) decode(buf []byte) error {
	if len(buf) != 0 {
		return ErrMalformedMessage
	}
	return nil
}

func (b *FindPeerRequestBody) decode(buf []byte) error {
	if len(buf) != IDLength {
		return ErrMalformedMessage
	}
	copy(b.Target[:], buf)
	return nil
}

func (b *FindPeerResponseBody) decode(buf []byte) error {
	n, rest, err := readUint16(buf)
	if err != nil {
		return err
	}
	peers := make([]WireEndpoint, 0, n)
	for i := uint16(0); i < n; i++ {
		if len(rest) < IDLength {
			return ErrMalformedMessage
		}
		var we WireEndpoint
		copy(we.ID[:], rest[:IDLength])
		rest = rest[IDLength:]
		addr, next, err := decodeEndpoint(rest)
		if err != nil {
			return err
		}
		we.Addr = addr
		rest = next
		peers = append(peers, we)
	}
	if len(rest) != 0 {
		return ErrMalformedMessage
	}
	b.Peers = peers
	return nil
}

func (b *FindValueRequestBody) decode(buf []byte) error {
	if len(buf) != IDLength {
		return ErrMalformedMessage
	}
	copy(b.Key[:], buf)
	return nil
}

func (b *FindValueResponseBody) decode(buf []byte) error {
	n, rest, err := readUint16(buf)
	if err != nil {
		return err
	}
	if len(rest) != int(n) {
		return ErrMalformedMessage
	}
	b.Data = append([]byte(nil), rest...)
	return nil
}

func (b *StoreValueRequestBody) decode(buf []byte) error {
	if len(buf) < IDLength+2 {
		return ErrMalformedMessage
	}
	copy(b.KeyHash[:], buf[:IDLength])
	rest := buf[IDLength:]
	n, rest, err := readUint16(rest)
	if err != nil {
		return err
	}
	if len(rest) != int(n) {
		return ErrMalformedMessage
	}
	b.Value = append([]byte(nil), rest...)
	return nil
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	buf.Write(tmp[:])
}

func readUint16(buf []byte) (uint16, []byte, error) {
	if len(buf) < 2 {
		return 0, nil, ErrMalformedMessage
	}
	return binary.LittleEndian.Uint16(buf[:2]), buf[2:], nil
}

func encodeEndpoint(buf *bytes.Buffer, e Endpoint) {
	ip4 := e.IP.To4()
	if ip4 != nil {
		buf.WriteByte(4)
		buf.Write(ip4)
	} else {
		buf.WriteByte(6)
		buf.Write(e.IP.To16())
	}
	writeUint16(buf, e.Port)
}

func decodeEndpoint(buf []byte) (Endpoint, []byte, error) {
	if len(buf) < 1 {
		return Endpoint{}, nil, ErrMalformedMessage
	}
	family := buf[0]
	buf = buf[1:]
	var addrLen int
	switch family {
	case 4:
		addrLen = net.IPv4len
	case 6:
		addrLen = net.IPv6len
	default:
		return Endpoint{}, nil, ErrMalformedMessage
	}
	if len(buf) < addrLen+2 {
		return Endpoint{}, nil, ErrMalformedMessage
	}
	ip := make(net.IP, addrLen)
	copy(ip, buf[:addrLen])
	buf = buf[addrLen:]
	port := binary.LittleEndian.Uint16(buf[:2])
	return Endpoint{IP: ip, Port: port}, buf[2:], nil
}

// Encode serializes msg to its wire representation.
func Encode(msg Message) []byte {
	buf := new(bytes.Buffer)
	msg.Header.encode(buf)
	msg.Body.encode(buf)
	return buf.Bytes()
}

// Decode parses a datagram into a Message, enforcing version, known type,
// and that no trailing bytes remain after the declared body (§4.2 round-trip
// law).
func Decode(raw []byte) (Message, error) {
	header, body, err := decodeHeader(raw)
	if err != nil {
		return Message{}, err
	}
	if header.Version != Version {
		return Message{}, ErrUnknownVersion
	}
	var b Body
	switch header.Type {
	case PingPacket:
		b = &PingBody{}
	case PongPacket:
		b = &PongBody{}
	case FindPeerRequestPacket:
		b = &FindPeerRequestBody{}
	case FindPeerResponsePacket:
		b = &FindPeerResponseBody{}
	case FindValueRequestPacket:
		b = &FindValueRequestBody{}
	case FindValueResponsePacket:
		b = &FindValueResponseBody{}
	case StoreValueRequestPacket:
		b = &StoreValueRequestBody{}
	default:
		return Message{}, ErrUnknownType
	}
	if err := b.decode(body); err != nil {
		return Message{}, err
	}
	return Message{Header: header, Body: b}, nil
}
