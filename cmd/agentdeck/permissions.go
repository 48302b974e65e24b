// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/agentdeck/agentdeck/agentapi"
	"github.com/agentdeck/agentdeck/cmd/agentdeck/cli"
)

func permissionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "permissions",
		Summary: "Answer permission requests",
		Commands: []*cli.Command{
			permissionsReplyCommand(),
		},
	}
}

func permissionsReplyCommand() *cli.Command {
	var c console
	var response string
	return &cli.Command{
		Name:    "reply",
		Summary: "Answer a pending permission request",
		Description: `Answer a pending permission request.

The server holds the tool call until a reply arrives. "once" approves
this call, "always" approves this and future calls to the same tool,
"reject" denies it.`,
		Usage: "agentdeck permissions reply SESSION PERMISSION --response once|always|reject",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("reply", pflag.ContinueOnError)
			c.addFlags(flagSet)
			flagSet.StringVar(&response, "response", "", "one of: once, always, reject")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("usage: agentdeck permissions reply SESSION PERMISSION --response once|always|reject")
			}
			switch response {
			case agentapi.PermissionOnce, agentapi.PermissionAlways, agentapi.PermissionReject:
			default:
				return fmt.Errorf("--response must be one of: once, always, reject")
			}
			deck, err := c.dial()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
			defer cancel()
			return deck.client.ReplyPermission(ctx, deck.server.Directory, args[0], args[1], response)
		},
	}
}
