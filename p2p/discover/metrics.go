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

import "github.com/rcrowley/go-metrics"

// Counters are the process-wide metrics registry for the discover package
// (§10.5): request/response volume, timeouts, bucket splits and evictions.
// An embedder that wants these exported just has to wire metrics.Registry
// into whatever reporter it already runs (graphite, log, expvar, ...).
var Counters = struct {
	PacketsSent     metrics.Counter
	PacketsRecv     metrics.Counter
	RequestTimeouts metrics.Counter
	BucketSplits    metrics.Counter
	BucketEvictions metrics.Counter
	LookupsStarted  metrics.Counter
	ValuesStored    metrics.Counter
}{
	PacketsSent:     metrics.NewRegisteredCounter("discover/packets/sent", metrics.DefaultRegistry),
	PacketsRecv:     metrics.NewRegisteredCounter("discover/packets/recv", metrics.DefaultRegistry),
	RequestTimeouts: metrics.NewRegisteredCounter("discover/requests/timeouts", metrics.DefaultRegistry),
	BucketSplits:    metrics.NewRegisteredCounter("discover/table/splits", metrics.DefaultRegistry),
	BucketEvictions: metrics.NewRegisteredCounter("discover/table/evictions", metrics.DefaultRegistry),
	LookupsStarted:  metrics.NewRegisteredCounter("discover/lookups/started", metrics.DefaultRegistry),
	ValuesStored:    metrics.NewRegisteredCounter("discover/store/puts", metrics.DefaultRegistry),
}
