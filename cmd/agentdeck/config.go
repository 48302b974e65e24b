// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"

	"github.com/agentdeck/agentdeck/cmd/agentdeck/cli"
)

func configCommand() *cli.Command {
	return &cli.Command{
		Name:    "config",
		Summary: "Inspect and update the server's agent configuration",
		Commands: []*cli.Command{
			configGetCommand(),
			configValidateCommand(),
			configPushCommand(),
		},
	}
}

func configGetCommand() *cli.Command {
	var c console
	return &cli.Command{
		Name:    "get",
		Summary: "Print the server's agent configuration document",
		Usage:   "agentdeck config get",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("get", pflag.ContinueOnError)
			c.addFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			deck, err := c.dial()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
			defer cancel()
			doc, err := deck.client.GetConfig(ctx, deck.server.Directory)
			if err != nil {
				return err
			}
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, doc, "", "  "); err != nil {
				// Print it raw rather than failing; the server owns the format.
				os.Stdout.Write(doc)
				fmt.Println()
				return nil
			}
			fmt.Println(pretty.String())
			return nil
		},
	}
}

func configValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Summary: "Check that a local agent-config file is valid JSONC",
		Usage:   "agentdeck config validate FILE",
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: agentdeck config validate FILE")
			}
			if _, err := loadJSONC(args[0]); err != nil {
				return err
			}
			fmt.Printf("%s is valid\n", args[0])
			return nil
		},
	}
}

func configPushCommand() *cli.Command {
	var c console
	return &cli.Command{
		Name:    "push",
		Summary: "Upload a local agent-config file to the server",
		Description: `Upload a local agent-config file to the server.

The file may be JSONC (comments and trailing commas); it is
normalized to plain JSON before upload. The server applies the
document and broadcasts an installation event to connected consoles.`,
		Usage: "agentdeck config push FILE",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("push", pflag.ContinueOnError)
			c.addFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: agentdeck config push FILE")
			}
			doc, err := loadJSONC(args[0])
			if err != nil {
				return err
			}
			deck, err := c.dial()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
			defer cancel()
			return deck.client.PatchConfig(ctx, deck.server.Directory, doc)
		},
	}
}

// loadJSONC reads a JSONC file and normalizes it to plain JSON.
func loadJSONC(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc := jsonc.ToJSON(data)
	if !json.Valid(doc) {
		return nil, fmt.Errorf("%s: not valid JSON after comment stripping", path)
	}
	return doc, nil
}
