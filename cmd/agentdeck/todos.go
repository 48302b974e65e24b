// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/agentdeck/agentdeck/cmd/agentdeck/cli"
)

func todosCommand() *cli.Command {
	var c console
	var sessionID string
	return &cli.Command{
		Name:    "todos",
		Summary: "Show a session's task list",
		Usage:   "agentdeck todos --session SESSION",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("todos", pflag.ContinueOnError)
			c.addFlags(flagSet)
			flagSet.StringVar(&sessionID, "session", "", "session id")
			return flagSet
		},
		Run: func(args []string) error {
			if sessionID == "" {
				return fmt.Errorf("usage: agentdeck todos --session SESSION")
			}
			deck, err := c.dial()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
			defer cancel()
			todos, err := deck.client.ListTodos(ctx, deck.server.Directory, sessionID)
			if err != nil {
				return err
			}
			for _, todo := range todos {
				fmt.Printf("%s %s\n", todoMarker(todo.Status), todo.Content)
			}
			return nil
		},
	}
}

func todoMarker(status string) string {
	switch status {
	case "completed":
		return "[x]"
	case "in_progress":
		return "[~]"
	default:
		return "[ ]"
	}
}
