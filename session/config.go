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

// Package session implements the embedder-facing API: a long-lived process
// that bootstraps into the network, serves the local routing table and
// value store to peers, and resolves save/load requests through iterative
// lookups.
package session

import (
	"io"
	"os"

	"github.com/naoina/toml"

	"github.com/MOACChain/MoacLib/log"
	"github.com/dkeller/kademlia/p2p/discover"
)

// Config is the on-disk configuration for one session, loaded from TOML
// (§10.3).
type Config struct {
	// Port is the UDP port bound for discovery traffic on both address
	// families. Defaults to discover.DefaultPort.
	Port int

	// NodeDBPath points at the leveldb node database whose recorded peer
	// endpoints seed the routing table at startup; the session reads it
	// but does not write observed peers to it. An empty path keeps the
	// node database in memory only.
	NodeDBPath string

	// BootstrapPeers lists "id@host:port" endpoints dialed once at
	// startup to seed the routing table (§4.8).
	BootstrapPeers []string

	// LogLevel is one of the MoacLib/log level names (e.g. "info", "debug").
	LogLevel string
}

// DefaultConfig returns the configuration a freshly initialized node starts
// from before any file is read.
func DefaultConfig() Config {
	return Config{
		Port:     discover.DefaultPort,
		LogLevel: "info",
	}
}

// LoadConfig reads and decodes a TOML config file, overlaying it on top of
// DefaultConfig so an omitted field keeps its default.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	if err := decodeTOML(f, &cfg); err != nil {
		return cfg, err
	}
	log.Debugf("session: loaded config from %s: %+v", path, cfg)
	return cfg, nil
}

func decodeTOML(r io.Reader, cfg *Config) error {
	return toml.NewDecoder(r).Decode(cfg)
}
