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

package session

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/MOACChain/MoacLib/log"
	"github.com/dkeller/kademlia/p2p/discover"
)

// SaveCallback and LoadCallback are invoked exactly once, from a goroutine
// that AsyncSave/AsyncLoad start for the operation, when it completes.
type SaveCallback func(err error)
type LoadCallback func(data []byte, err error)

// outboundReq is how a caller goroutine hands a request to the session loop
// and gets its resolution back: an addPending/errc style handshake
// generalized to carry a typed reply body.
type outboundReq struct {
	peer      *discover.Peer
	body      discover.Body
	replyType byte
	timeout   time.Duration
	resultc   chan discover.Body
	errc      chan error
}

type inboundMsg struct {
	msg  discover.Message
	from discover.Endpoint
}

type pingRequest struct {
	peer    *discover.Peer
	onAlive func(bool)
}

// Session is the embedder's handle on one running node (§4.8). disp is
// unsynchronized and is only ever touched from the goroutine running Run, so
// every caller that needs to issue or answer an RPC — readLoop via inbound,
// the embedder's own calls via outbound/pingReq — communicates with that
// goroutine over the channels below instead of reaching into disp directly.
// table and store are the exception: AsyncSave/AsyncLoad run a lookup on
// their own goroutine and read/write them directly while Run's loop may be
// observing peers concurrently, so both guard their own state internally
// (discover.Table with a mutex, discover.ValueStore via go-cache's own locking)
// rather than being single-owner.
type Session struct {
	self      discover.ID
	cfg       Config
	table     *discover.Table
	transport *discover.Transport
	disp      *discover.Dispatcher
	store     *discover.ValueStore
	db        *discover.NodeDB

	inbound  chan inboundMsg
	outbound chan *outboundReq
	pingReq  chan *pingRequest

	closing chan struct{}
	done    chan struct{}
}

// New creates a session identity and opens its node database, but does not
// yet bind a socket; call Run to start serving.
func New(cfg Config) (*Session, error) {
	self := discover.RandomID()
	db, err := discover.OpenNodeDB(cfg.NodeDBPath)
	if err != nil {
		return nil, err
	}

	s := &Session{
		self:     self,
		cfg:      cfg,
		store:    discover.NewValueStore(),
		db:       db,
		inbound:  make(chan inboundMsg, 64),
		outbound: make(chan *outboundReq),
		pingReq:  make(chan *pingRequest),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.table = discover.NewTable(self, s)
	s.disp = discover.NewDispatcher()
	return s, nil
}

// Self returns the session's identity.
func (s *Session) Self() discover.ID { return s.self }

// Table exposes the routing table for diagnostics (the `buckets` REPL
// command); it is read-only from the caller's perspective since Table's own
// methods already serialize access.
func (s *Session) Table() *discover.Table { return s.table }

// Run binds the transport, seeds the routing table from the node database,
// launches the bootstrap handshake against any configured bootstrap peers,
// and blocks serving the session loop until Abort is called or ctx is
// cancelled, returning discover.ErrAborted or ctx's error respectively. It is the long-running call an embedder makes from its own
// goroutine; socket binding and the request-correlation loop are unified
// into one method here because this package owns both the socket and the
// correlation state instead of splitting them across a constructor and a
// background loop.
func (s *Session) Run(ctx context.Context) error {
	t, err := discover.NewTransport(ctx, s.cfg.Port, func(msg discover.Message, from discover.Endpoint) {
		select {
		case s.inbound <- inboundMsg{msg, from}:
		case <-s.closing:
		}
	})
	if err != nil {
		return err
	}
	s.transport = t
	defer t.Close()

	for _, p := range s.db.Seeds() {
		s.table.Observe(p)
	}
	// bootstrap needs the request-correlation loop below already running to
	// resolve its RequestFindPeer calls, so it runs on its own goroutine the
	// same way AsyncSave/AsyncLoad do, rather than blocking here.
	go s.bootstrap(ctx)

	timer := time.NewTimer(discover.RequestTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()

		case <-s.closing:
			s.shutdown()
			return discover.ErrAborted

		case im := <-s.inbound:
			s.handleInbound(im)

		case req := <-s.outbound:
			s.handleOutbound(req)

		case pr := <-s.pingReq:
			s.handlePing(pr)

		case now := <-timer.C:
			d := s.disp.Expire(now)
			if d <= 0 {
				d = discover.RequestTimeout
			}
			timer.Reset(d)
		}
	}
}

func (s *Session) shutdown() {
	s.disp.Abort()
	s.db.Close()
	close(s.done)
}

// Abort stops the session loop and fails every outstanding request with
// discover.ErrAborted (§4.8).
func (s *Session) Abort() {
	select {
	case <-s.closing:
	default:
		close(s.closing)
	}
	<-s.done
}

// bootstrap implements §4.8's bootstrap protocol: send FIND_PEER_REQUEST{local_id}
// to each configured peer, observe it and everything it returns, then run a
// full find_closest_peers(local_id) so the table fills in beyond the literal
// configured peers.
func (s *Session) bootstrap(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, discover.RequestTimeout*time.Duration(discover.BucketSize))
	defer cancel()

	var bootstrapped bool
	for _, addr := range s.cfg.BootstrapPeers {
		p, err := parseBootstrapPeer(addr)
		if err != nil {
			log.Debugf("session: skipping bad bootstrap peer %q: %v", addr, err)
			continue
		}
		peers, err := s.RequestFindPeer(ctx, p, s.self)
		if err != nil {
			log.Debugf("session: bootstrap request to %s failed: %v", p, err)
			continue
		}
		bootstrapped = true
		s.table.Observe(p)
		for _, np := range peers {
			s.table.Observe(np)
		}
	}
	if bootstrapped {
		discover.FindPeers(ctx, s.self, s.table, s)
	}
}

// parseBootstrapPeer accepts "idhex@host:port".
func parseBootstrapPeer(addr string) (*discover.Peer, error) {
	at := strings.IndexByte(addr, '@')
	if at < 0 {
		return nil, discover.ErrMalformedMessage
	}
	idHex, hostport := addr[:at], addr[at+1:]
	host, portStr, err := splitHostPort(hostport)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}
	id, err := discover.ParseID(idHex)
	if err != nil {
		return nil, err
	}
	ip, err := resolveIP(host)
	if err != nil {
		return nil, err
	}
	return discover.NewPeer(id, discover.Endpoint{IP: ip, Port: uint16(port)}), nil
}

func resolveIP(host string) (net.IP, error) {
	addr, err := net.ResolveIPAddr("ip", host)
	if err != nil {
		return nil, err
	}
	return addr.IP, nil
}

func splitHostPort(hostport string) (string, string, error) {
	i := strings.LastIndexByte(hostport, ':')
	if i < 0 {
		return "", "", discover.ErrMalformedMessage
	}
	return hostport[:i], hostport[i+1:], nil
}

// handleInbound dispatches a decoded datagram: either it completes an
// outstanding request (a reply), or it is itself a request the local node
// must answer (§4.8's inbound handler table).
func (s *Session) handleInbound(im inboundMsg) {
	msg, from := im.msg, im.from
	sender := discover.NewPeer(msg.Header.Source, from)

	if s.disp.Deliver(msg) {
		s.table.Observe(sender)
		return
	}

	switch body := msg.Body.(type) {
	case *discover.PingBody:
		s.table.Observe(sender)
		s.reply(msg.Header, from, &discover.PongBody{})

	case *discover.FindPeerRequestBody:
		s.table.Observe(sender)
		closest := s.table.FindClosest(body.Target, discover.BucketSize)
		s.reply(msg.Header, from, &discover.FindPeerResponseBody{Peers: toWireEndpoints(closest)})

	case *discover.FindValueRequestBody:
		s.table.Observe(sender)
		if data, ok := s.store.Get(body.Key); ok {
			s.reply(msg.Header, from, &discover.FindValueResponseBody{Data: data})
			return
		}
		closest := s.table.FindClosest(body.Key, discover.BucketSize)
		s.reply(msg.Header, from, &discover.FindPeerResponseBody{Peers: toWireEndpoints(closest)})

	case *discover.StoreValueRequestBody:
		s.table.Observe(sender)
		s.store.Put(body.KeyHash, body.Value)

	default:
		s.table.Observe(sender)
		discover.LogUnsolicited(msg, from)
	}
}

func (s *Session) reply(h discover.Header, to discover.Endpoint, body discover.Body) {
	out := discover.Message{
		Header: discover.Header{Version: discover.Version, Type: body.PacketType(), Source: s.self, Token: h.Token},
		Body:   body,
	}
	if err := s.transport.Send(out, to); err != nil {
		log.Debugf("session: reply to %s failed: %v", to, err)
	}
}

func toWireEndpoints(peers []*discover.Peer) []discover.WireEndpoint {
	out := make([]discover.WireEndpoint, len(peers))
	for i, p := range peers {
		out[i] = discover.WireEndpoint{ID: p.ID, Addr: p.Addr()}
	}
	return out
}

func (s *Session) handleOutbound(req *outboundReq) {
	token := discover.RandomID()
	timeout := req.timeout
	if timeout <= 0 {
		timeout = discover.RequestTimeout
	}
	ch := s.disp.Add(req.peer.ID, token, req.replyType, timeout, func(body discover.Body) bool {
		select {
		case req.resultc <- body:
		default:
		}
		return true
	})
	msg := discover.Message{
		Header: discover.Header{Version: discover.Version, Type: req.body.PacketType(), Source: s.self, Token: token},
		Body:   req.body,
	}
	if err := s.transport.Send(msg, req.peer.Addr()); err != nil {
		req.errc <- err
		return
	}
	go func() {
		req.errc <- <-ch
	}()
}

func (s *Session) handlePing(pr *pingRequest) {
	token := discover.RandomID()
	ch := s.disp.Add(pr.peer.ID, token, discover.PongPacket, discover.PingTimeout, func(discover.Body) bool { return true })
	msg := discover.Message{
		Header: discover.Header{Version: discover.Version, Type: discover.PingPacket, Source: s.self, Token: token},
		Body:   &discover.PingBody{},
	}
	if err := s.transport.Send(msg, pr.peer.Addr()); err != nil {
		pr.onAlive(false)
		return
	}
	go func() {
		pr.onAlive(<-ch == nil)
	}()
}

// Ping implements discover.Pinger for Table's conservative eviction (§4.5).
// The request is handed to the session loop from a separate goroutine,
// since Ping may itself be called from that loop.
func (s *Session) Ping(p *discover.Peer, onAlive func(bool)) {
	go func() {
		select {
		case s.pingReq <- &pingRequest{peer: p, onAlive: onAlive}:
		case <-s.closing:
			onAlive(false)
		}
	}()
}

// request is the shared plumbing behind RequestFindPeer and RequestFindValue:
// hand the body to the session loop and wait for either a typed reply, a
// send error, or ctx cancellation.
func (s *Session) request(ctx context.Context, p *discover.Peer, body discover.Body, replyType byte) (discover.Body, error) {
	req := &outboundReq{
		peer:      p,
		body:      body,
		replyType: replyType,
		timeout:   discover.RequestTimeout,
		resultc:   make(chan discover.Body, 1),
		errc:      make(chan error, 1),
	}
	select {
	case s.outbound <- req:
	case <-s.closing:
		return nil, discover.ErrAborted
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case err := <-req.errc:
		if err != nil {
			return nil, err
		}
		return <-req.resultc, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RequestFindPeer implements discover.Requester.
func (s *Session) RequestFindPeer(ctx context.Context, p *discover.Peer, target discover.ID) ([]*discover.Peer, error) {
	body, err := s.request(ctx, p, &discover.FindPeerRequestBody{Target: target}, discover.FindPeerResponsePacket)
	if err != nil {
		return nil, err
	}
	resp := body.(*discover.FindPeerResponseBody)
	return fromWireEndpoints(resp.Peers), nil
}

// RequestFindValue implements discover.Requester. A peer that does not hold
// the value answers with a FindPeerResponseBody instead of
// FindValueResponseBody (§4.8); since Dispatcher correlates replies by
// (source, token) rather than packet type, both shapes arrive here and are
// told apart by a type switch.
func (s *Session) RequestFindValue(ctx context.Context, p *discover.Peer, key discover.ID) ([]*discover.Peer, []byte, error) {
	req := &outboundReq{
		peer:      p,
		body:      &discover.FindValueRequestBody{Key: key},
		replyType: discover.FindValueResponsePacket,
		timeout:   discover.RequestTimeout,
		resultc:   make(chan discover.Body, 1),
		errc:      make(chan error, 1),
	}
	select {
	case s.outbound <- req:
	case <-s.closing:
		return nil, nil, discover.ErrAborted
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	select {
	case err := <-req.errc:
		if err != nil {
			return nil, nil, err
		}
		body := <-req.resultc
		switch b := body.(type) {
		case *discover.FindValueResponseBody:
			return nil, b.Data, nil
		case *discover.FindPeerResponseBody:
			return fromWireEndpoints(b.Peers), nil, nil
		default:
			return nil, nil, discover.ErrMalformedMessage
		}
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

func fromWireEndpoints(peers []discover.WireEndpoint) []*discover.Peer {
	out := make([]*discover.Peer, len(peers))
	for i, we := range peers {
		out[i] = discover.NewPeer(we.ID, we.Addr)
	}
	return out
}

// AsyncSave stores value under the hash of key at the k closest peers to
// that hash, then invokes cb exactly once with the outcome (§4.6, §4.8).
func (s *Session) AsyncSave(key, value []byte, cb SaveCallback) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), discover.RequestTimeout*time.Duration(discover.BucketSize))
		defer cancel()

		keyHash := discover.HashKey(key)
		if len(value) > discover.MaxValueSize {
			cb(discover.ErrMalformedMessage)
			return
		}
		peers := discover.FindPeers(ctx, keyHash, s.table, s)
		if len(peers) == 0 {
			cb(discover.ErrMissingPeers)
			return
		}
		// STORE_VALUE_REQUEST has no reply (§4.8): fire each one directly at
		// the transport rather than routing it through the dispatcher, where
		// it would just sit until it timed out waiting for an answer that
		// never comes.
		for _, p := range peers {
			msg := discover.Message{
				Header: discover.Header{Version: discover.Version, Type: discover.StoreValueRequestPacket, Source: s.self, Token: discover.RandomID()},
				Body:   &discover.StoreValueRequestBody{KeyHash: keyHash, Value: value},
			}
			if err := s.transport.Send(msg, p.Addr()); err != nil {
				log.Debugf("session: store at %s failed: %v", p, err)
			}
		}
		s.store.Put(keyHash, value)
		cb(nil)
	}()
}

// AsyncLoad retrieves the value stored under the hash of key, invoking cb
// exactly once with the result (§4.6, §4.8).
func (s *Session) AsyncLoad(key []byte, cb LoadCallback) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), discover.RequestTimeout*time.Duration(discover.BucketSize))
		defer cancel()

		keyHash := discover.HashKey(key)
		if data, ok := s.store.Get(keyHash); ok {
			cb(data, nil)
			return
		}
		if s.table.Len() == 0 {
			cb(nil, discover.ErrMissingPeers)
			return
		}
		data, _, ok := discover.FindValue(ctx, keyHash, s.table, s)
		if !ok {
			cb(nil, discover.ErrValueNotFound)
			return
		}
		cb(data, nil)
	}()
}
