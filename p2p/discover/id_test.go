package discover_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeller/kademlia/p2p/discover"
)

func TestID_DistanceAndLess(t *testing.T) {
	a := discover.ID{0x01}
	b := discover.ID{0x03}

	d := discover.Distance(a, b)
	assert.Equal(t, discover.ID{0x02}, d)

	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.False(t, a.Less(a))
}

func TestID_LogDist(t *testing.T) {
	a := discover.ID{}
	b := discover.ID{}
	assert.Equal(t, discover.IDLength*8, discover.LogDist(a, b))

	b[0] = 0x80 // first bit differs
	assert.Equal(t, 0, discover.LogDist(a, b))

	b = discover.ID{}
	b[0] = 0x01 // eighth bit differs
	assert.Equal(t, 7, discover.LogDist(a, b))
}

func TestID_ParseIDRoundTrip(t *testing.T) {
	want := discover.RandomID()
	got, err := discover.ParseID(want.String())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestID_ParseIDRejectsBadInput(t *testing.T) {
	_, err := discover.ParseID("not-hex")
	assert.Error(t, err)

	_, err = discover.ParseID("aabb")
	assert.Error(t, err, "too short to be a 160-bit ID")
}

func TestHashKey_ProducesStableID(t *testing.T) {
	h1 := discover.HashKey([]byte("hello"))
	h2 := discover.HashKey([]byte("hello"))
	assert.Equal(t, h1, h2)

	h3 := discover.HashKey([]byte("world"))
	assert.NotEqual(t, h1, h3)
}

func TestRandomID_IsNotZeroAndVaries(t *testing.T) {
	a := discover.RandomID()
	b := discover.RandomID()
	assert.False(t, a.IsZero())
	assert.NotEqual(t, a, b)
}
