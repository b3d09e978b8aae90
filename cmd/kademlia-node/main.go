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

// kademlia-node runs one DHT node and drops the operator into a small REPL
// for inspecting it: bucket occupancy, manual save/load and the node's ID.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/peterh/liner"
	"gopkg.in/urfave/cli.v1"

	"github.com/dkeller/kademlia/cmd/utils"
	"github.com/dkeller/kademlia/p2p/discover"
	"github.com/dkeller/kademlia/session"
)

func main() {
	app := cli.NewApp()
	app.Name = "kademlia-node"
	app.Usage = "run a Kademlia DHT node"
	app.Flags = []cli.Flag{
		utils.PortFlag,
		utils.NodeDBFlag,
		utils.BootnodesFlag,
		utils.ConfigFileFlag,
		utils.VerbosityFlag,
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("kademlia-node: %v", err))
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	cfg, err := utils.MakeConfig(ctx)
	if err != nil {
		return err
	}

	s, err := session.New(cfg)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- s.Run(runCtx) }()

	banner := color.New(color.FgCyan, color.Bold)
	banner.Printf("kademlia-node listening on :%d, id=%s\n", cfg.Port, s.Self())

	repl(s)

	s.Abort()
	cancel()
	<-errc
	return nil
}

// repl is a tiny interactive shell over the running session, scoped to the
// handful of operations this node exposes: bucket inspection and manual
// save/load.
func repl(s *session.Session) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt("kademlia> ")
		if err != nil {
			if err == io.EOF || err == liner.ErrPromptAborted {
				return
			}
			fmt.Fprintln(os.Stderr, err)
			return
		}
		line.AppendHistory(input)

		fields := strings.Fields(input)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "buckets":
			printBuckets(s)
		case "save":
			if len(fields) < 3 {
				fmt.Println("usage: save <key> <value>")
				continue
			}
			cmdSave(s, fields[1], fields[2])
		case "load":
			if len(fields) < 2 {
				fmt.Println("usage: load <key>")
				continue
			}
			cmdLoad(s, fields[1])
		case "id":
			fmt.Println(s.Self())
		case "quit", "exit":
			return
		default:
			fmt.Println("commands: buckets, save <key> <value>, load <key>, id, quit")
		}
	}
}

func printBuckets(s *session.Session) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Bucket", "Peers"})
	for i, b := range s.Table().Buckets() {
		if len(b) == 0 {
			continue
		}
		table.Append([]string{strconv.Itoa(i), strconv.Itoa(len(b))})
	}
	table.Render()
}

func cmdSave(s *session.Session, key, value string) {
	done := make(chan struct{})
	s.AsyncSave([]byte(key), []byte(value), func(err error) {
		if err != nil {
			fmt.Println(color.RedString("save failed: %v", err))
		} else {
			fmt.Println(color.GreenString("saved"))
		}
		close(done)
	})
	<-done
}

func cmdLoad(s *session.Session, key string) {
	done := make(chan struct{})
	s.AsyncLoad([]byte(key), func(data []byte, err error) {
		if err != nil {
			if err == discover.ErrValueNotFound {
				fmt.Println("not found")
			} else {
				fmt.Println(color.RedString("load failed: %v", err))
			}
		} else {
			fmt.Println(string(data))
		}
		close(done)
	})
	<-done
}
