package discover_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeller/kademlia/p2p/discover"
)

// fakePinger answers every challenge with a scripted liveness result,
// invoked synchronously so eviction tests don't need to wait on goroutines.
type fakePinger struct {
	alive bool
	calls int
}

func (f *fakePinger) Ping(p *discover.Peer, onAlive func(bool)) {
	f.calls++
	onAlive(f.alive)
}

func randomPeer() *discover.Peer {
	return discover.NewPeer(discover.RandomID(), discover.Endpoint{IP: []byte{127, 0, 0, 1}, Port: 30303})
}

// farPeer returns a peer whose ID differs from self in the very first bit
// (common-prefix length 0), which always lands in bucket index 0.
func farPeer(self discover.ID) *discover.Peer {
	id := discover.RandomID()
	if self[0]&0x80 == 0 {
		id[0] |= 0x80
	} else {
		id[0] &^= 0x80
	}
	return discover.NewPeer(id, discover.Endpoint{IP: []byte{127, 0, 0, 1}, Port: 30303})
}

// nearPeer returns a peer that shares self's first bit (common-prefix length
// ≥ 1), which lands in the bucket that still covers the local ID's range.
func nearPeer(self discover.ID) *discover.Peer {
	id := discover.RandomID()
	if self[0]&0x80 == 0 {
		id[0] &^= 0x80
	} else {
		id[0] |= 0x80
	}
	return discover.NewPeer(id, discover.Endpoint{IP: []byte{127, 0, 0, 1}, Port: 30303})
}

// forceBucketZeroSplit fills bucket 0 with BucketSize far peers, then tips
// it over with one near peer so it splits: bucket 0 ends up holding exactly
// those BucketSize far peers and is no longer the local (splittable) bucket.
func forceBucketZeroSplit(t *testing.T, tbl *discover.Table, self discover.ID) []*discover.Peer {
	t.Helper()
	far := make([]*discover.Peer, 0, discover.BucketSize)
	for i := 0; i < discover.BucketSize; i++ {
		p := farPeer(self)
		far = append(far, p)
		tbl.Observe(p)
	}
	tbl.Observe(nearPeer(self))
	require.Greater(t, len(tbl.Buckets()), 1)
	return far
}

// TestTable_BucketBound is invariant 2: no bucket ever exceeds BucketSize.
func TestTable_BucketBound(t *testing.T) {
	self := discover.RandomID()
	pinger := &fakePinger{alive: true}
	tbl := discover.NewTable(self, pinger)

	for i := 0; i < discover.BucketSize*4; i++ {
		tbl.Observe(randomPeer())
	}

	for _, b := range tbl.Buckets() {
		assert.LessOrEqual(t, len(b), discover.BucketSize)
	}
}

// TestTable_LRUOrdering is invariant 4: re-observing a known peer moves it
// to the tail of its bucket.
func TestTable_LRUOrdering(t *testing.T) {
	self := discover.RandomID()
	tbl := discover.NewTable(self, &fakePinger{alive: true})

	var peers []*discover.Peer
	for i := 0; i < 5; i++ {
		p := randomPeer()
		peers = append(peers, p)
		tbl.Observe(p)
	}

	tbl.Observe(peers[0])

	bucket := tbl.Buckets()[0]
	require.NotEmpty(t, bucket)
	assert.Equal(t, peers[0].ID, bucket[len(bucket)-1].ID)
}

// TestTable_SplitsLocalBucketWhenFull exercises §4.5's split path: once the
// bucket holding the local ID's range overflows, it divides in two and the
// local node still has somewhere to route additional peers.
func TestTable_SplitsLocalBucketWhenFull(t *testing.T) {
	self := discover.RandomID()
	tbl := discover.NewTable(self, &fakePinger{alive: true})

	for i := 0; i < discover.BucketSize+5; i++ {
		tbl.Observe(randomPeer())
	}

	assert.Greater(t, len(tbl.Buckets()), 1, "local bucket should have split")
	assert.LessOrEqual(t, tbl.Len(), discover.BucketSize*len(tbl.Buckets()))
}

// TestTable_FindClosestOrdersByDistance checks FindClosest returns peers in
// non-decreasing XOR distance to the target.
func TestTable_FindClosestOrdersByDistance(t *testing.T) {
	self := discover.RandomID()
	tbl := discover.NewTable(self, &fakePinger{alive: true})
	for i := 0; i < 30; i++ {
		tbl.Observe(randomPeer())
	}

	target := discover.RandomID()
	closest := tbl.FindClosest(target, 10)
	require.NotEmpty(t, closest)

	for i := 1; i < len(closest); i++ {
		prev := discover.Distance(target, closest[i-1].ID)
		cur := discover.Distance(target, closest[i].ID)
		assert.False(t, cur.Less(prev), "closest peers must be non-decreasing in distance")
	}
}

// TestTable_ConservativeEvictionDropsCandidateWhenHeadAlive is S6's
// responsive-head branch: a live head peer survives and the new peer is
// dropped.
func TestTable_ConservativeEvictionDropsCandidateWhenHeadAlive(t *testing.T) {
	self := discover.RandomID()
	tbl := discover.NewTable(self, nil)
	far := forceBucketZeroSplit(t, tbl, self)
	head := far[0]

	pinger := &fakePinger{alive: true}
	tbl.SetPinger(pinger)

	tbl.Observe(farPeer(self))

	assert.Equal(t, 1, pinger.calls)
	assert.Equal(t, discover.BucketSize, len(tbl.Buckets()[0]), "head survives, candidate dropped")

	bucket := tbl.Buckets()[0]
	assert.Equal(t, head.ID, bucket[0].ID, "head stays at the front")
}

// TestTable_ConservativeEvictionReplacesHeadWhenDead is S6's unresponsive
// case: the head is evicted and the new peer takes the tail.
func TestTable_ConservativeEvictionReplacesHeadWhenDead(t *testing.T) {
	self := discover.RandomID()
	tbl := discover.NewTable(self, nil)
	far := forceBucketZeroSplit(t, tbl, self)
	head := far[0]

	pinger := &fakePinger{alive: false}
	tbl.SetPinger(pinger)

	newcomer := farPeer(self)
	tbl.Observe(newcomer)

	bucket := tbl.Buckets()[0]
	assert.Equal(t, discover.BucketSize, len(bucket))
	for _, p := range bucket {
		assert.NotEqual(t, head.ID, p.ID, "dead head should have been evicted")
	}
	assert.Equal(t, newcomer.ID, bucket[len(bucket)-1].ID)
}

func TestTable_IgnoresSelf(t *testing.T) {
	self := discover.RandomID()
	tbl := discover.NewTable(self, &fakePinger{alive: true})
	tbl.Observe(discover.NewPeer(self, discover.Endpoint{IP: []byte{127, 0, 0, 1}, Port: 1}))
	assert.Equal(t, 0, tbl.Len())
}
