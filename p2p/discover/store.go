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
	gocache "github.com/patrickmn/go-cache"
)

// ValueStore is the local value store (C6): a mapping from hashed key to
// opaque bytes. It is backed by patrickmn/go-cache with no expiration and no
// janitor goroutine, giving it plain map semantics (§11.6) while reusing
// this stack's existing in-memory cache dependency.
type ValueStore struct {
	cache *gocache.Cache
}

// NewValueStore returns an empty value store.
func NewValueStore() *ValueStore {
	return &ValueStore{cache: gocache.New(gocache.NoExpiration, 0)}
}

// Put stores value under keyHash unconditionally, last-writer-wins (§4.6).
func (s *ValueStore) Put(keyHash ID, value []byte) {
	s.cache.Set(keyHash.String(), value, gocache.NoExpiration)
	Counters.ValuesStored.Inc(1)
}

// Get returns the value stored under keyHash, if any.
func (s *ValueStore) Get(keyHash ID) ([]byte, bool) {
	v, ok := s.cache.Get(keyHash.String())
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

// Len reports how many keys are currently stored.
func (s *ValueStore) Len() int {
	return s.cache.ItemCount()
}
