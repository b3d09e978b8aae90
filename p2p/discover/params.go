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

import "time"

// Defaults from §6.
const (
	DefaultPort       = 27980
	BucketSize        = 20 // K
	Alpha             = 3  // lookup concurrency
	RequestTimeout    = 5 * time.Second
	PingTimeout       = 1 * time.Second
	replacementCacheSize = 10
)

// MaxDatagramSize is the implementation-defined MTU ceiling (§4.3): reads
// larger than this cannot have originated from this protocol and are
// reported as malformed rather than silently truncated.
const MaxDatagramSize = 8192

// MaxValueSize bounds the value half of a save/load call. It is the
// conservative upper bound cited in §6, chosen so header + codec overhead +
// value always fits within MaxDatagramSize.
const MaxValueSize = 4096
