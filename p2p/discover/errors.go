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

import "errors"

// Error kinds from §7 of the design. Network-level errors (ErrMalformedMessage,
// ErrTimeout, ErrSendFailed) stay confined to the transport and dispatcher;
// lookup-level errors (ErrValueNotFound, ErrMissingPeers) surface to the
// embedder's save/load callbacks; ErrAborted reaches every outstanding
// callback exactly once on session shutdown.
var (
	ErrMalformedMessage = errors.New("discover: malformed message")
	ErrUnknownVersion   = errors.New("discover: unknown protocol version")
	ErrUnknownType      = errors.New("discover: unknown message type")
	ErrTimeout          = errors.New("discover: rpc timeout")
	ErrSendFailed       = errors.New("discover: send failed")
	ErrUnsolicitedReply = errors.New("discover: unsolicited reply")
	ErrValueNotFound    = errors.New("discover: value not found")
	ErrMissingPeers     = errors.New("discover: no known peers")
	ErrAborted          = errors.New("discover: session aborted")
	ErrInvariantBroken  = errors.New("discover: invariant violation")
	ErrClosed           = errors.New("discover: socket closed")
)
