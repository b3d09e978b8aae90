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
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/MOACChain/MoacLib/log"
)

// Pinger is the table's narrow view of the transport: enough to challenge a
// bucket's head peer during eviction (§4.5) without the table knowing
// anything about sockets, tokens or timeouts. The table calls Ping without
// holding its own lock, so onAlive may run synchronously inside Ping or later
// from another goroutine.
type Pinger interface {
	Ping(p *Peer, onAlive func(alive bool))
}

// bucket holds at most BucketSize peers, ordered least-recently-seen (front)
// to most-recently-seen (back), plus a small replacement cache of peers
// observed while the bucket was full (§11.5).
type bucket struct {
	entries      *list.List // of *Peer
	replacements *lru.Cache
}

func newBucket() *bucket {
	c, err := lru.New(replacementCacheSize)
	if err != nil {
		// lru.New only fails for a non-positive size, which replacementCacheSize
		// never is.
		panic(err)
	}
	return &bucket{entries: list.New(), replacements: c}
}

func (b *bucket) peers() []*Peer {
	out := make([]*Peer, 0, b.entries.Len())
	for e := b.entries.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*Peer))
	}
	return out
}

func (b *bucket) find(id ID) *list.Element {
	for e := b.entries.Front(); e != nil; e = e.Next() {
		if e.Value.(*Peer).ID == id {
			return e
		}
	}
	return nil
}

func (b *bucket) len() int { return b.entries.Len() }

// Table is the routing table (C5): a trie of k-buckets along the path to the
// local ID, realized as a slice indexed by common-prefix length the way this
// pack's go-libp2p-kbucket reference does. Only the last bucket in the slice
// — the one still covering the local ID's own range — is ever split; every
// other bucket is terminal and evicts instead.
type Table struct {
	mu      sync.Mutex
	self    ID
	buckets []*bucket
	pinger  Pinger

	splits  metricCounter
	evicts  metricCounter
}

// NewTable builds a routing table for a node with identity self. pinger is
// used to challenge a bucket's head peer during conservative eviction; it
// may be nil until the transport is constructed, provided SetPinger is
// called before the first full bucket is observed.
func NewTable(self ID, pinger Pinger) *Table {
	return &Table{
		self:    self,
		buckets: []*bucket{newBucket()},
		pinger:  pinger,
	}
}

// SetPinger wires the transport in after construction, breaking the
// initialization cycle between Table and the transport that embeds it.
func (t *Table) SetPinger(p Pinger) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pinger = p
}

// bucketIndex returns the index into t.buckets that id belongs in, the
// caller being responsible for holding t.mu.
func (t *Table) bucketIndex(id ID) int {
	cpl := CommonPrefixLen(id, t.self)
	if cpl >= len(t.buckets) {
		cpl = len(t.buckets) - 1
	}
	return cpl
}

// Observe implements §4.5: move an already-known peer to the tail, append a
// new peer to a bucket with room, split the local bucket when it is the one
// that overflowed, or fall back to conservative eviction via a liveness
// challenge to the bucket's head.
func (t *Table) Observe(p *Peer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observeLocked(p)
}

func (t *Table) observeLocked(p *Peer) {
	if p.ID == t.self {
		return
	}
	idx := t.bucketIndex(p.ID)
	b := t.buckets[idx]

	if el := b.find(p.ID); el != nil {
		el.Value.(*Peer).Observe(p.Addr())
		b.entries.MoveToBack(el)
		return
	}

	if b.len() < BucketSize {
		b.entries.PushBack(p)
		return
	}

	// Bucket is full. t.self always indexes to the last bucket (its common
	// prefix length with itself is maximal, clamped to len(buckets)-1), so
	// idx == len(t.buckets)-1 is exactly "this bucket still holds our own
	// ID's range" — the only bucket the trie ever splits (§4.5).
	if idx == len(t.buckets)-1 {
		t.split(idx)
		t.splits.inc()
		Counters.BucketSplits.Inc(1)
		t.observeLocked(p)
		return
	}

	// Terminal bucket: stash p as a replacement candidate and challenge the
	// least-recently-seen entry. The lock is released around the challenge
	// so that evictOrDrop, which takes it again to apply the outcome, works
	// whether the pinger answers synchronously or later.
	b.replacements.Add(p.ID, p)
	head := b.entries.Front()
	if head == nil || t.pinger == nil {
		return
	}
	headPeer := head.Value.(*Peer)
	pinger := t.pinger
	t.mu.Unlock()
	pinger.Ping(headPeer, func(alive bool) {
		t.evictOrDrop(idx, headPeer.ID, p.ID, alive)
	})
	t.mu.Lock()
}

// split divides buckets[idx] — which must be the last bucket and must still
// contain the local ID's range — into itself and a new bucket one trie level
// deeper, redistributing its members by whether they now fall on the local
// or non-local side of the newly significant bit.
func (t *Table) split(idx int) {
	old := t.buckets[idx]
	next := newBucket()
	t.buckets = append(t.buckets, next)

	var kept []*Peer
	for _, p := range old.peers() {
		if t.bucketIndex(p.ID) == idx {
			kept = append(kept, p)
		} else {
			next.entries.PushBack(p)
		}
	}
	old.entries.Init()
	for _, p := range kept {
		old.entries.PushBack(p)
	}
}

// evictOrDrop is the continuation of the ping launched by observeLocked. If
// the head peer answered, the new peer is dropped (conservative eviction);
// otherwise the head is removed and the candidate whose arrival triggered
// this challenge, if it is still in the replacement cache, takes the tail
// slot. Other cached replacements are not promoted.
func (t *Table) evictOrDrop(bucketIdx int, headID, candidateID ID, headAlive bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if bucketIdx >= len(t.buckets) {
		return
	}
	b := t.buckets[bucketIdx]

	if headAlive {
		b.replacements.Remove(candidateID)
		log.Debugf("discover: bucket head %s alive, dropping candidate %s", headID, candidateID)
		return
	}

	el := b.find(headID)
	if el == nil {
		return
	}
	b.entries.Remove(el)
	t.evicts.inc()
	Counters.BucketEvictions.Inc(1)

	if v, ok := b.replacements.Get(candidateID); ok {
		b.entries.PushBack(v.(*Peer))
		b.replacements.Remove(candidateID)
	}
}

// FindClosest returns up to n peers with the smallest XOR distance to
// target, drawn from the bucket covering target outward (§4.5).
func (t *Table) FindClosest(target ID, n int) []*Peer {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.bucketIndex(target)
	var candidates []*Peer
	candidates = append(candidates, t.buckets[idx].peers()...)
	for lo, hi := idx-1, idx+1; (lo >= 0 || hi < len(t.buckets)) && len(candidates) < n*2; lo, hi = lo-1, hi+1 {
		if hi < len(t.buckets) {
			candidates = append(candidates, t.buckets[hi].peers()...)
		}
		if lo >= 0 {
			candidates = append(candidates, t.buckets[lo].peers()...)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		di, dj := Distance(candidates[i].ID, target), Distance(candidates[j].ID, target)
		if di == dj {
			return lessByEndpoint(candidates[i], candidates[j])
		}
		return di.Less(dj)
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}

// Len returns the total number of peers held across all buckets.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, b := range t.buckets {
		n += b.len()
	}
	return n
}

// Buckets returns a snapshot of bucket occupancy, most-local-bucket last,
// for diagnostics (§10.7's `buckets` CLI command).
func (t *Table) Buckets() [][]*Peer {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]*Peer, len(t.buckets))
	for i, b := range t.buckets {
		out[i] = b.peers()
	}
	return out
}

// metricCounter is a tiny allocation-free per-table counter of splits and
// evictions, kept alongside the package-wide go-metrics Counters (§10.5);
// nothing outside the table reads it.
type metricCounter struct{ n int64 }

func (c *metricCounter) inc() { c.n++ }
func (c *metricCounter) get() int64 { return c.n }
