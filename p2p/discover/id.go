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
	"encoding/hex"

	"go.dedis.ch/kyber/v3/util/random"
	"golang.org/x/crypto/ripemd160"
)

// IDLength is the width of the Kademlia identifier space in bytes (160 bits).
const IDLength = 20

// ID is a 160-bit Kademlia identifier. It names both nodes and keys: a node's
// ID lives in the same space as a key's hash, which is what makes XOR distance
// meaningful between the two.
type ID [IDLength]byte

// RandomID draws a new ID from a CSPRNG, a whole machine word at a time
// rather than bit by bit (see design notes on the source's per-bit generator).
func RandomID() ID {
	var id ID
	stream := random.New()
	stream.XORKeyStream(id[:], id[:])
	return id
}

// ParseID decodes a hex string into an ID, rejecting anything that isn't
// exactly IDLength bytes once decoded.
func ParseID(s string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, ErrMalformedMessage
	}
	if len(b) != IDLength {
		return id, ErrMalformedMessage
	}
	copy(id[:], b)
	return id, nil
}

// HashKey maps an arbitrary-length key into the 160-bit identifier space
// using RIPEMD-160 (§9): the only hash in this stack's dependency lineage
// that is already exactly 160 bits, needing no truncation.
func HashKey(key []byte) ID {
	h := ripemd160.New()
	h.Write(key)
	var id ID
	copy(id[:], h.Sum(nil))
	return id
}

// String renders the ID as a hex string.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns the raw bytes of the ID.
func (id ID) Bytes() []byte {
	return id[:]
}

// IsZero reports whether id is the all-zero identifier.
func (id ID) IsZero() bool {
	return id == ID{}
}

// Distance computes the XOR metric between a and b. The result is itself a
// 160-bit value; smaller, compared lexicographically from the most
// significant byte, means closer.
func Distance(a, b ID) ID {
	var d ID
	for i := 0; i < IDLength; i++ {
		d[i] = a[i] ^ b[i]
	}
	return d
}

// Less reports whether distance x is strictly smaller than y, compared as
// unsigned 160-bit integers (lexicographic byte comparison, MSB first).
func (x ID) Less(y ID) bool {
	for i := 0; i < IDLength; i++ {
		if x[i] != y[i] {
			return x[i] < y[i]
		}
	}
	return false
}

// LogDist returns the bit-index of the first differing bit between a and b,
// counted from the most significant bit of byte 0 (0 = the very first bit
// differs, IDLength*8 = the IDs are identical). It is the trie depth at
// which the two IDs diverge, and selects which bucket a peer belongs in:
// CommonPrefixLen is the same quantity under the name routing-table
// literature customarily uses for it.
func LogDist(a, b ID) int {
	lz := 0
	for i := 0; i < IDLength; i++ {
		x := a[i] ^ b[i]
		if x == 0 {
			lz += 8
			continue
		}
		lz += leadingZeros8(x)
		break
	}
	return lz
}

func leadingZeros8(x byte) int {
	n := 0
	for ; x&0x80 == 0 && n < 8; x <<= 1 {
		n++
	}
	return n
}

// CommonPrefixLen is an alias for LogDist kept for readers coming from the
// routing-table literature, where "common prefix length" is the customary
// name for the same quantity.
func CommonPrefixLen(a, b ID) int {
	return LogDist(a, b)
}
