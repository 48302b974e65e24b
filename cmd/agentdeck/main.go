// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/agentdeck/agentdeck/cmd/agentdeck/cli"
	"github.com/agentdeck/agentdeck/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return rootCommand().Execute(os.Args[1:])
}

// rootCommand builds the complete agentdeck command tree.
func rootCommand() *cli.Command {
	return &cli.Command{
		Name: "agentdeck",
		Description: `Agentdeck: management console for remote coding-agent servers.

Mirrors live session state over each server's push channel, drives
sessions from the command line, and records event traffic for offline
replay.`,
		Commands: []*cli.Command{
			sessionsCommand(),
			sendCommand(),
			watchCommand(),
			permissionsCommand(),
			todosCommand(),
			configCommand(),
			journalCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("agentdeck %s\n", version.Full())
					return nil
				},
			},
		},
	}
}
