// Copyright 2015 The MOAC-core Authors
// This file is part of MOAC-core.
//
// MOAC-core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// MOAC-core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with MOAC-core. If not, see <http://www.gnu.org/licenses/>.

// Package utils contains internal helper functions for the kademlia-node
// command.
package utils

import (
	"strings"

	"gopkg.in/urfave/cli.v1"

	"github.com/dkeller/kademlia/p2p/discover"
	"github.com/dkeller/kademlia/session"
)

// These are all the command line flags the kademlia-node binary supports.
// If you add to this list, please remember to include the flag in
// app.Flags in main.go.
var (
	PortFlag = cli.IntFlag{
		Name:  "port",
		Usage: "UDP port to bind for discovery traffic",
		Value: discover.DefaultPort,
	}
	NodeDBFlag = cli.StringFlag{
		Name:  "nodedb",
		Usage: "Path to the persistent node database (empty keeps it in memory)",
	}
	BootnodesFlag = cli.StringFlag{
		Name:  "bootnodes",
		Usage: "Comma separated list of bootstrap peers (idhex@host:port)",
	}
	ConfigFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file; flags override values it sets",
	}
	VerbosityFlag = cli.StringFlag{
		Name:  "verbosity",
		Usage: "Log level: trace, debug, info, warn, error",
		Value: "info",
	}
)

// MakeConfig assembles a session.Config from the config file (if given) and
// any CLI flags set on top of it; flags always take precedence over a
// loaded config.
func MakeConfig(ctx *cli.Context) (session.Config, error) {
	cfg := session.DefaultConfig()
	if path := ctx.GlobalString(ConfigFileFlag.Name); path != "" {
		loaded, err := session.LoadConfig(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if ctx.GlobalIsSet(PortFlag.Name) {
		cfg.Port = ctx.GlobalInt(PortFlag.Name)
	}
	if ctx.GlobalIsSet(NodeDBFlag.Name) {
		cfg.NodeDBPath = ctx.GlobalString(NodeDBFlag.Name)
	}
	if ctx.GlobalIsSet(VerbosityFlag.Name) {
		cfg.LogLevel = ctx.GlobalString(VerbosityFlag.Name)
	}
	if raw := ctx.GlobalString(BootnodesFlag.Name); raw != "" {
		cfg.BootstrapPeers = splitAndTrim(raw)
	}
	return cfg, nil
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
