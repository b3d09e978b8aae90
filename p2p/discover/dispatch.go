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
	"container/list"
	"time"

	"github.com/MOACChain/MoacLib/log"
)

// pending is one outstanding RPC awaiting a matching reply, correlated by
// peer identity and the random token in the header (§4.4). The expected
// packet type is recorded but not used for matching (see Deliver).
type pending struct {
	from     ID
	token    ID
	ptype    byte
	deadline time.Time
	// callback runs on the dispatcher's owning goroutine when a reply
	// matches. Returning true retires the pending entry; false keeps it
	// alive for protocols that expect more than one reply (none currently
	// do, but the shape supports it).
	callback func(body Body) (done bool)
	errc     chan<- error
}

// Dispatcher correlates outbound requests with inbound replies. It is owned
// entirely by Session's run loop (§10.1): every method here is only ever
// called from that one goroutine, so it needs no locking of its own.
type Dispatcher struct {
	pending *list.List // of *pending

	contTimeouts int       // continuous timeouts since the last matched reply
	ntpWarnTime  time.Time // last time checkClockDrift ran
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{pending: list.New()}
}

// Add registers a new pending reply and returns the channel its resolution
// will be delivered on. Called from the session loop when issuing a request.
// A second Add under a token already outstanding for the same source would
// make Deliver's match ambiguous (§4.4's token-uniqueness invariant); rather
// than overwrite or silently coexist, the second registration is refused and
// resolves immediately with ErrInvariantBroken.
func (d *Dispatcher) Add(from ID, token ID, ptype byte, timeout time.Duration, cb func(Body) bool) <-chan error {
	ch := make(chan error, 1)
	for e := d.pending.Front(); e != nil; e = e.Next() {
		p := e.Value.(*pending)
		if p.from == from && p.token == token {
			ch <- ErrInvariantBroken
			return ch
		}
	}
	d.pending.PushBack(&pending{
		from:     from,
		token:    token,
		ptype:    ptype,
		deadline: time.Now().Add(timeout),
		callback: cb,
		errc:     ch,
	})
	return ch
}

// Deliver matches an inbound message against outstanding requests and runs
// the first match's callback. Matching is by (source, token) alone: the
// random token in the header (§4.4) already disambiguates a reply from
// everything else a peer might send us, so a FIND_VALUE request answered
// with a FIND_PEER_RESPONSE (the "I don't have it, try these peers" case,
// §4.8) still correlates correctly even though its packet type differs from
// what was expected. Deliver reports whether anything matched, which the
// caller uses to decide whether a reply was unsolicited (§7).
func (d *Dispatcher) Deliver(msg Message) bool {
	matched := false
	for e := d.pending.Front(); e != nil; {
		next := e.Next()
		p := e.Value.(*pending)
		if p.from == msg.Header.Source && p.token == msg.Header.Token {
			matched = true
			d.contTimeouts = 0
			if p.callback(msg.Body) {
				p.errc <- nil
				d.pending.Remove(e)
			}
		}
		e = next
	}
	return matched
}

// Expire removes and fails every pending whose deadline has passed, and
// returns the duration until the next deadline (or zero if none remain) so
// the session loop can reset its timer.
func (d *Dispatcher) Expire(now time.Time) time.Duration {
	for e := d.pending.Front(); e != nil; {
		next := e.Next()
		p := e.Value.(*pending)
		if !now.Before(p.deadline) {
			p.errc <- ErrTimeout
			d.pending.Remove(e)
			Counters.RequestTimeouts.Inc(1)
			d.contTimeouts++
		}
		e = next
	}
	if d.contTimeouts > ntpFailureThreshold {
		if time.Since(d.ntpWarnTime) >= ntpWarningCooldown {
			d.ntpWarnTime = now
			go checkClockDrift()
		}
		d.contTimeouts = 0
	}
	front := d.pending.Front()
	if front == nil {
		return 0
	}
	min := front.Value.(*pending).deadline
	for e := front.Next(); e != nil; e = e.Next() {
		if dl := e.Value.(*pending).deadline; dl.Before(min) {
			min = dl
		}
	}
	if d := min.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Abort fails every outstanding pending with ErrAborted, used on session
// shutdown so no embedder callback is left hanging (§4.8's exactly-once
// resolution rule).
func (d *Dispatcher) Abort() {
	for e := d.pending.Front(); e != nil; e = e.Next() {
		e.Value.(*pending).errc <- ErrAborted
	}
	d.pending.Init()
}

// Len reports the number of outstanding requests.
func (d *Dispatcher) Len() int { return d.pending.Len() }

// LogUnsolicited records a reply that matched no pending request (§7): not
// an error, since peers may legitimately answer a request we already gave
// up waiting on, but worth a trace line.
func LogUnsolicited(msg Message, from Endpoint) {
	log.Debugf("discover: unsolicited %s from %s (source %s)", packetName(msg.Header.Type), from, msg.Header.Source)
}
