package discover_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeller/kademlia/p2p/discover"
)

func TestNodeDB_UpdateAndSeed(t *testing.T) {
	db, err := discover.OpenNodeDB("")
	require.NoError(t, err)
	defer db.Close()

	p := discover.NewPeer(discover.RandomID(), discover.Endpoint{IP: net.ParseIP("192.168.1.5").To4(), Port: 27980})
	require.NoError(t, db.UpdatePeer(p))

	seeds := db.Seeds()
	require.Len(t, seeds, 1)
	assert.Equal(t, p.ID, seeds[0].ID)
	assert.True(t, p.Addr().IP.Equal(seeds[0].Addr().IP))
	assert.Equal(t, p.Addr().Port, seeds[0].Addr().Port)
}

func TestNodeDB_DeletePeer(t *testing.T) {
	db, err := discover.OpenNodeDB("")
	require.NoError(t, err)
	defer db.Close()

	p := discover.NewPeer(discover.RandomID(), discover.Endpoint{IP: net.ParseIP("10.0.0.1").To4(), Port: 1})
	require.NoError(t, db.UpdatePeer(p))
	require.NoError(t, db.DeletePeer(p.ID))

	assert.Empty(t, db.Seeds())
}

func TestNodeDB_SeedsIPv6(t *testing.T) {
	db, err := discover.OpenNodeDB("")
	require.NoError(t, err)
	defer db.Close()

	p := discover.NewPeer(discover.RandomID(), discover.Endpoint{IP: net.ParseIP("::1").To16(), Port: 9999})
	require.NoError(t, db.UpdatePeer(p))

	seeds := db.Seeds()
	require.Len(t, seeds, 1)
	assert.True(t, seeds[0].Addr().IP.Equal(net.ParseIP("::1")))
	assert.Equal(t, uint16(9999), seeds[0].Addr().Port)
}
