package discover_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dkeller/kademlia/p2p/discover"
)

func TestValueStore_PutGet(t *testing.T) {
	s := discover.NewValueStore()
	key := discover.HashKey([]byte("k"))

	_, ok := s.Get(key)
	assert.False(t, ok)

	s.Put(key, []byte("v1"))
	got, ok := s.Get(key)
	assert.True(t, ok)
	assert.Equal(t, []byte("v1"), got)
	assert.Equal(t, 1, s.Len())
}

// TestValueStore_LastWriterWins is §4.6: storing again under the same key
// overwrites unconditionally.
func TestValueStore_LastWriterWins(t *testing.T) {
	s := discover.NewValueStore()
	key := discover.HashKey([]byte("k"))

	s.Put(key, []byte("first"))
	s.Put(key, []byte("second"))

	got, ok := s.Get(key)
	assert.True(t, ok)
	assert.Equal(t, []byte("second"), got)
	assert.Equal(t, 1, s.Len())
}
