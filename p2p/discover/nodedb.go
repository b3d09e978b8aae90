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
	"encoding/binary"
	"net"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/MOACChain/MoacLib/log"
)

// NodeDB persists known peer endpoints across restarts (§10.4). It stores
// addresses only, never values: the value store is explicitly excluded from
// persistence (§4.6's non-goal), so seeding a routing table from disk on
// startup is the only thing it is used for.
type NodeDB struct {
	db *leveldb.DB
}

var nodeDBKeyPrefix = []byte("n:")

// OpenNodeDB opens (creating if necessary) a leveldb-backed node database at
// path. Passing an empty path returns an in-memory database, used by tests
// and by embedders that opt out of persistence.
func OpenNodeDB(path string) (*NodeDB, error) {
	var (
		db  *leveldb.DB
		err error
	)
	if path == "" {
		db, err = leveldb.Open(storage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
		if errors.IsCorrupted(err) {
			db, err = leveldb.RecoverFile(path, nil)
		}
	}
	if err != nil {
		return nil, err
	}
	return &NodeDB{db: db}, nil
}

func nodeDBKey(id ID) []byte {
	return append(append([]byte{}, nodeDBKeyPrefix...), id[:]...)
}

// UpdatePeer records or replaces p's endpoint on disk.
func (n *NodeDB) UpdatePeer(p *Peer) error {
	addr := p.Addr()
	ip4 := addr.IP.To4()
	buf := make([]byte, 0, 1+net.IPv6len+2)
	if ip4 != nil {
		buf = append(buf, 4)
		buf = append(buf, ip4...)
	} else {
		buf = append(buf, 6)
		buf = append(buf, addr.IP.To16()...)
	}
	var portBuf [2]byte
	binary.LittleEndian.PutUint16(portBuf[:], addr.Port)
	buf = append(buf, portBuf[:]...)
	return n.db.Put(nodeDBKey(p.ID), buf, nil)
}

// DeletePeer removes any stored endpoint for id.
func (n *NodeDB) DeletePeer(id ID) error {
	return n.db.Delete(nodeDBKey(id), nil)
}

// Seeds returns every peer previously recorded, for seeding a fresh Table on
// startup (§10.4). A decode failure on a single record is logged and
// skipped rather than failing the whole load.
func (n *NodeDB) Seeds() []*Peer {
	iter := n.db.NewIterator(nil, nil)
	defer iter.Release()

	var out []*Peer
	for iter.Next() {
		key := iter.Key()
		if len(key) != len(nodeDBKeyPrefix)+IDLength {
			continue
		}
		var id ID
		copy(id[:], key[len(nodeDBKeyPrefix):])

		val := iter.Value()
		if len(val) < 3 {
			log.Debugf("discover: skipping corrupt nodedb record for %s", id)
			continue
		}
		family, rest := val[0], val[1:]
		var addrLen int
		switch family {
		case 4:
			addrLen = net.IPv4len
		case 6:
			addrLen = net.IPv6len
		default:
			continue
		}
		if len(rest) != addrLen+2 {
			continue
		}
		ip := make(net.IP, addrLen)
		copy(ip, rest[:addrLen])
		port := binary.LittleEndian.Uint16(rest[addrLen:])
		out = append(out, NewPeer(id, Endpoint{IP: ip, Port: port}))
	}
	return out
}

// Close flushes and closes the underlying database.
func (n *NodeDB) Close() error {
	return n.db.Close()
}
