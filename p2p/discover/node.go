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
	"fmt"
	"net"
)

// Endpoint is a UDP address as carried on the wire: an address family tag,
// the raw address bytes (4 for IPv4, 16 for IPv6) and a port.
type Endpoint struct {
	IP   net.IP
	Port uint16
}

// family returns the wire family tag for e: 4 for an IPv4 (or IPv4-mapped)
// address, 6 for anything else.
func (e Endpoint) family() byte {
	if ip4 := e.IP.To4(); ip4 != nil {
		return 4
	}
	return 6
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.IP.String(), fmt.Sprintf("%d", e.Port))
}

// UDPAddr converts e to the net package's representation.
func (e Endpoint) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: e.IP, Port: int(e.Port)}
}

// NewEndpoint builds an Endpoint from a net.UDPAddr, normalizing the address
// to its shortest form (4-byte when it is an IPv4-mapped address).
func NewEndpoint(addr *net.UDPAddr) Endpoint {
	ip := addr.IP.To4()
	if ip == nil {
		ip = addr.IP.To16()
	}
	return Endpoint{IP: ip, Port: uint16(addr.Port)}
}

// Peer is a known participant in the network: an identity plus the
// endpoint(s) it was last observed at. Two peers are equal iff their IDs are
// equal, regardless of endpoint.
type Peer struct {
	ID ID

	// addrs holds every endpoint this peer has been observed at, most
	// recently observed last. Most peers have exactly one.
	addrs []Endpoint
}

// NewPeer constructs a Peer with a single known endpoint.
func NewPeer(id ID, addr Endpoint) *Peer {
	return &Peer{ID: id, addrs: []Endpoint{addr}}
}

// Addr returns the peer's most recently observed endpoint.
func (p *Peer) Addr() Endpoint {
	if len(p.addrs) == 0 {
		return Endpoint{}
	}
	return p.addrs[len(p.addrs)-1]
}

// Observe records addr as a (possibly new) endpoint for p.
func (p *Peer) Observe(addr Endpoint) {
	for _, a := range p.addrs {
		if a.IP.Equal(addr.IP) && a.Port == addr.Port {
			return
		}
	}
	p.addrs = append(p.addrs, addr)
}

// Equal reports whether p and other name the same node.
func (p *Peer) Equal(other *Peer) bool {
	return p.ID == other.ID
}

// lessByEndpoint gives a deterministic tie-break ordering between two peers
// equidistant from some target: lexicographic on endpoint bytes, per §4.1's
// "ties require deterministic fallback" rule.
func lessByEndpoint(a, b *Peer) bool {
	ea, eb := a.Addr(), b.Addr()
	if c := bytes.Compare(ea.IP, eb.IP); c != 0 {
		return c < 0
	}
	return ea.Port < eb.Port
}

func (p *Peer) String() string {
	return fmt.Sprintf("%s@%s", p.ID, p.Addr())
}
