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
	"fmt"
	"time"

	"github.com/beevik/ntp"

	"github.com/MOACChain/MoacLib/log"
)

const (
	ntpPool            = "pool.ntp.org"
	driftThreshold     = 10 * time.Second
	ntpFailureThreshold = 32
	ntpWarningCooldown = 10 * time.Minute
)

// checkClockDrift queries a public NTP pool and warns if the local clock has
// drifted far enough to make request deadlines unreliable. Called after a
// run of continuous RPC timeouts, since expiring requests en masse is
// equally explained by a skewed local clock as by a dead network.
func checkClockDrift() {
	resp, err := ntp.Query(ntpPool)
	if err != nil {
		log.Debugf("discover: NTP check failed: %v", err)
		return
	}
	if d := resp.ClockOffset; d > driftThreshold || d < -driftThreshold {
		log.Warn(fmt.Sprintf("discover: local clock is off by %v from %s; RPC timeouts may be spurious", d, ntpPool))
	}
}
