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
	"context"
	"net"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/MOACChain/MoacLib/log"
)

// conn is the narrow socket interface the transport depends on, keeping
// the underlying packet connection swappable in tests.
type conn interface {
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
	Close() error
	LocalAddr() net.Addr
}

// Transport is the socket layer (C3). It owns one UDP socket per address
// family bound to the same port, frames every read and write through the
// codec in message.go, and delivers decoded messages to the onMessage
// callback passed to NewTransport. It keeps no RPC-correlation state of itself; that
// is the dispatcher's job (C4).
type Transport struct {
	v4, v6 conn

	onMessage func(msg Message, from Endpoint)
	closing   chan struct{}
}

// listenConfig sets SO_REUSEADDR on the raw socket before bind, matching the
// pack's golang.org/x/sys/unix wiring (§11.7) so a restarted node can rebind
// its port immediately instead of waiting out TIME_WAIT.
func listenConfig() net.ListenConfig {
	return net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
}

// NewTransport binds UDP sockets on port for both address families that are
// available on the host (§4.3: "binds one UDP socket per address family").
// A host with only one family configured is not an error; it simply runs
// with a single socket.
func NewTransport(ctx context.Context, port int, onMessage func(Message, Endpoint)) (*Transport, error) {
	lc := listenConfig()
	t := &Transport{onMessage: onMessage, closing: make(chan struct{})}

	addr4 := net.JoinHostPort("0.0.0.0", strconv.Itoa(port))
	if pc, err := lc.ListenPacket(ctx, "udp4", addr4); err == nil {
		t.v4 = pc.(*net.UDPConn)
	} else {
		log.Debugf("discover: no IPv4 socket on port %d: %v", port, err)
	}

	addr6 := net.JoinHostPort("::", strconv.Itoa(port))
	if pc, err := lc.ListenPacket(ctx, "udp6", addr6); err == nil {
		t.v6 = pc.(*net.UDPConn)
	} else {
		log.Debugf("discover: no IPv6 socket on port %d: %v", port, err)
	}

	if t.v4 == nil && t.v6 == nil {
		return nil, ErrClosed
	}

	if t.v4 != nil {
		go t.readLoop(t.v4)
	}
	if t.v6 != nil {
		go t.readLoop(t.v6)
	}
	return t, nil
}

// Close shuts down both sockets; outstanding reads unblock with an error and
// readLoop returns.
func (t *Transport) Close() {
	close(t.closing)
	if t.v4 != nil {
		t.v4.Close()
	}
	if t.v6 != nil {
		t.v6.Close()
	}
}

// Send encodes msg and writes it to addr over whichever socket matches the
// endpoint's address family.
func (t *Transport) Send(msg Message, addr Endpoint) error {
	c := t.v4
	if addr.family() == 6 {
		c = t.v6
	}
	if c == nil {
		return ErrSendFailed
	}
	raw := Encode(msg)
	if len(raw) > MaxDatagramSize {
		return ErrSendFailed
	}
	_, err := c.WriteToUDP(raw, addr.UDPAddr())
	if err != nil {
		log.Debugf("discover: >> %s to %s: %v", packetName(msg.Header.Type), addr, err)
		return ErrSendFailed
	}
	Counters.PacketsSent.Inc(1)
	return nil
}

func (t *Transport) readLoop(c conn) {
	buf := make([]byte, MaxDatagramSize)
	for {
		n, from, err := c.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-t.closing:
				return
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				log.Debugf("discover: temporary read error: %v", err)
				continue
			}
			log.Debugf("discover: read error, stopping loop: %v", err)
			return
		}
		msg, err := Decode(buf[:n])
		if err != nil {
			log.Debugf("discover: malformed packet from %s: %v", from, err)
			continue
		}
		log.Debugf("discover: << %s from %s", packetName(msg.Header.Type), from)
		Counters.PacketsRecv.Inc(1)
		t.onMessage(msg, NewEndpoint(from))
	}
}
