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
	"encoding/binary"
	"sync"

	"gopkg.in/fatih/set.v0"
	"gopkg.in/karalabe/cookiejar.v2/collections/prque"

	"github.com/MOACChain/MoacLib/log"
)

// Requester is the session's RPC surface as seen by a lookup (§4.7): send
// one request to a peer and block the calling goroutine until its matching
// reply, a timeout, or session shutdown resolves it. Session implements
// this; lookup.go knows nothing about sockets, tokens or the dispatcher.
type Requester interface {
	RequestFindPeer(ctx context.Context, p *Peer, target ID) ([]*Peer, error)
	RequestFindValue(ctx context.Context, p *Peer, key ID) ([]*Peer, []byte, error)
}

// priority orders candidates closest-to-target first. prque is a max-heap,
// so we hand it the negated distance; the leading 8 bytes of a 160-bit XOR
// distance already dominate the comparison for any real routing table, so
// truncating to a uint64 loses no ordering information that matters at
// lookup scale.
func priority(target, id ID) float64 {
	d := Distance(target, id)
	return -float64(binary.BigEndian.Uint64(d[:8]))
}

// lookupState carries one iterative lookup's progress (§4.7). It belongs to
// the goroutine that calls run; the per-query goroutines that run starts
// update it only while holding run's mutex, and the calling goroutine reads
// it again only after they have all finished. Each
// candidate moves through fresh (in seen, not yet in asked) -> in-flight (in
// asked, not yet in responded) -> responded or failed (in asked, never added
// to responded) as run() drives it.
type lookupState struct {
	target    ID
	table     *Table
	req       Requester
	alpha     int
	k         int
	asked      *set.Set
	seen       *set.Set
	responded  *set.Set
	candidates *prque.Prque
	order      []*Peer // every peer ever pushed, parallel to seen
}

func newLookup(target ID, table *Table, req Requester) *lookupState {
	Counters.LookupsStarted.Inc(1)
	l := &lookupState{
		target:     target,
		table:      table,
		req:        req,
		alpha:      Alpha,
		k:          BucketSize,
		asked:      set.New(),
		seen:       set.New(),
		responded:  set.New(),
		candidates: prque.New(),
	}
	for _, p := range table.FindClosest(target, l.k) {
		l.push(p)
	}
	return l
}

func (l *lookupState) push(p *Peer) {
	if p.ID == l.table.self || l.seen.Has(p.ID) {
		return
	}
	l.seen.Add(p.ID)
	l.order = append(l.order, p)
	l.candidates.Push(p, priority(l.target, p.ID))
}

// pop drains up to n peers that have not yet been asked.
func (l *lookupState) pop(n int) []*Peer {
	var out []*Peer
	var deferred []*Peer
	for len(out) < n && l.candidates.Size() > 0 {
		v := l.candidates.PopItem().(*Peer)
		if l.asked.Has(v.ID) {
			continue
		}
		out = append(out, v)
		deferred = append(deferred, v)
	}
	// Candidates are consumed by PopItem; re-seed the ones we just handed
	// out so a later round can still consider them once marked asked.
	for _, p := range deferred {
		l.candidates.Push(p, priority(l.target, p.ID))
	}
	return out
}

// FindPeers runs the iterative FIND_PEER lookup (§4.7) to completion and
// returns up to k peers sorted by distance to target, closest first.
func FindPeers(ctx context.Context, target ID, table *Table, req Requester) []*Peer {
	l := newLookup(target, table, req)
	l.run(ctx, func(ctx context.Context, p *Peer) ([]*Peer, []byte, error) {
		peers, err := l.req.RequestFindPeer(ctx, p, target)
		return peers, nil, err
	})
	return l.closest()
}

// FindValue runs the iterative FIND_VALUE lookup (§4.7): like FindPeers, but
// terminates early the moment any queried peer returns a value. It returns
// the value and true, or the closest peers found and false if no peer in
// the network held it.
func FindValue(ctx context.Context, key ID, table *Table, req Requester) ([]byte, []*Peer, bool) {
	l := newLookup(key, table, req)
	var found []byte
	var ok bool
	l.run(ctx, func(ctx context.Context, p *Peer) ([]*Peer, []byte, error) {
		peers, data, err := l.req.RequestFindValue(ctx, p, key)
		if err == nil && data != nil {
			found = data
			ok = true
		}
		return peers, data, err
	})
	if ok {
		return found, nil, true
	}
	return nil, l.closest(), false
}

// run executes the α-parallel round loop shared by FindPeers and FindValue:
// each round fires ask() at up to alpha unqueried candidates concurrently
// and merges whatever peers come back into the candidate set. It stops when
// a round returns a value, when ctx is done, when no unqueried candidate is
// left, or once at least k candidates have been asked and a round left the
// closest responded peer no closer to the target than before it.
func (l *lookupState) run(ctx context.Context, ask func(context.Context, *Peer) ([]*Peer, []byte, error)) {
	for {
		batch := l.pop(l.alpha)
		if len(batch) == 0 {
			return
		}
		closestBefore := l.closestDistance()

		var wg sync.WaitGroup
		var mu sync.Mutex
		var found []byte
		for _, p := range batch {
			l.asked.Add(p.ID)
			wg.Add(1)
			go func(p *Peer) {
				defer wg.Done()
				peers, data, err := ask(ctx, p)
				if err != nil {
					log.Debugf("discover: lookup query to %s failed: %v", p, err)
					return
				}
				mu.Lock()
				defer mu.Unlock()
				l.responded.Add(p.ID)
				if data != nil {
					found = data
				}
				for _, np := range peers {
					l.push(np)
				}
			}(p)
		}
		wg.Wait()

		if found != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		closestAfter := l.closestDistance()
		if l.asked.Size() >= l.k && !closestAfter.Less(closestBefore) {
			return
		}
	}
}

func (l *lookupState) closestDistance() ID {
	best := l.closest()
	if len(best) == 0 {
		var max ID
		for i := range max {
			max[i] = 0xff
		}
		return max
	}
	return Distance(l.target, best[0].ID)
}

// closest returns up to k candidates that actually responded, sorted by
// distance to target (§4.7 step 6). Candidates that were never asked, or
// that were asked and timed out or errored, are excluded.
func (l *lookupState) closest() []*Peer {
	var all []*Peer
	for _, p := range l.order {
		if l.responded.Has(p.ID) {
			all = append(all, p)
		}
	}
	sortByDistance(all, l.target)
	if len(all) > l.k {
		all = all[:l.k]
	}
	return all
}

func sortByDistance(peers []*Peer, target ID) {
	for i := 1; i < len(peers); i++ {
		for j := i; j > 0; j-- {
			a, b := Distance(target, peers[j-1].ID), Distance(target, peers[j].ID)
			if !b.Less(a) {
				break
			}
			peers[j-1], peers[j] = peers[j], peers[j-1]
		}
	}
}
