// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/agentdeck/agentdeck/agentapi"
	"github.com/agentdeck/agentdeck/cmd/agentdeck/cli"
)

func sessionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "sessions",
		Summary: "List and manage sessions",
		Commands: []*cli.Command{
			sessionsListCommand(),
			sessionsCreateCommand(),
			sessionsRenameCommand(),
			sessionsDeleteCommand(),
			sessionsRevertCommand(),
			sessionsUnrevertCommand(),
		},
	}
}

func sessionsListCommand() *cli.Command {
	var c console
	var all bool
	return &cli.Command{
		Name:    "list",
		Summary: "List sessions",
		Usage:   "agentdeck sessions list [--all]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			c.addFlags(flagSet)
			flagSet.BoolVar(&all, "all", false, "list sessions on every configured server")
			return flagSet
		},
		Run: func(args []string) error {
			if all {
				return listAllSessions(&c)
			}
			deck, err := c.dial()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
			defer cancel()
			sessions, err := deck.client.ListSessions(ctx, deck.server.Directory)
			if err != nil {
				return err
			}
			printSessions(sessions)
			return nil
		},
	}
}

// listAllSessions fans one ListSessions call out per configured server
// and prints the combined result with a SERVER column.
func listAllSessions(c *console) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}
	logger := c.logger(cfg)

	names := make([]string, 0, len(cfg.Servers))
	for name := range cfg.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return fmt.Errorf("no servers configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	results := make([][]agentapi.Session, len(names))
	group, ctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		server := cfg.Servers[name]
		group.Go(func() error {
			client, err := agentapi.NewClient(agentapi.ClientConfig{
				BaseURL: server.Endpoint,
				Logger:  logger,
			})
			if err != nil {
				return err
			}
			sessions, err := client.ListSessions(ctx, server.Directory)
			if err != nil {
				return fmt.Errorf("server %q: %w", name, err)
			}
			results[i] = sessions
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "SERVER\tID\tUPDATED\tTITLE")
	for i, name := range names {
		sessions := results[i]
		sortSessionsByUpdated(sessions)
		for _, session := range sessions {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
				name, session.ID, formatUnixMilli(session.Time.Updated), sessionTitle(session))
		}
	}
	return tw.Flush()
}

func printSessions(sessions []agentapi.Session) {
	sortSessionsByUpdated(sessions)
	tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "ID\tUPDATED\tTITLE")
	for _, session := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\n",
			session.ID, formatUnixMilli(session.Time.Updated), sessionTitle(session))
	}
	tw.Flush()
}

// sortSessionsByUpdated orders most recently active first.
func sortSessionsByUpdated(sessions []agentapi.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Time.Updated > sessions[j].Time.Updated
	})
}

// sessionTitle renders the title with a marker while a revert is
// pending, so a rewound session is visible in listings.
func sessionTitle(session agentapi.Session) string {
	if session.Revert != nil {
		return session.Title + " [reverted to " + session.Revert.MessageID + "]"
	}
	return session.Title
}

func formatUnixMilli(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04:05")
}

func sessionsCreateCommand() *cli.Command {
	var c console
	var title string
	return &cli.Command{
		Name:    "create",
		Summary: "Create a session",
		Usage:   "agentdeck sessions create [--title TITLE]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("create", pflag.ContinueOnError)
			c.addFlags(flagSet)
			flagSet.StringVar(&title, "title", "", "session title (server generates one when empty)")
			return flagSet
		},
		Run: func(args []string) error {
			deck, err := c.dial()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
			defer cancel()
			session, err := deck.client.CreateSession(ctx, deck.server.Directory,
				agentapi.CreateSessionRequest{Title: title})
			if err != nil {
				return err
			}
			fmt.Println(session.ID)
			return nil
		},
	}
}

func sessionsRenameCommand() *cli.Command {
	var c console
	return &cli.Command{
		Name:    "rename",
		Summary: "Rename a session",
		Usage:   "agentdeck sessions rename SESSION TITLE...",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("rename", pflag.ContinueOnError)
			c.addFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) < 2 {
				return fmt.Errorf("usage: agentdeck sessions rename SESSION TITLE...")
			}
			deck, err := c.dial()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
			defer cancel()
			title := strings.Join(args[1:], " ")
			if _, err := deck.client.UpdateSessionTitle(ctx, deck.server.Directory, args[0], title); err != nil {
				return err
			}
			return nil
		},
	}
}

func sessionsDeleteCommand() *cli.Command {
	var c console
	return &cli.Command{
		Name:    "delete",
		Summary: "Delete a session and its messages",
		Usage:   "agentdeck sessions delete SESSION",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("delete", pflag.ContinueOnError)
			c.addFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: agentdeck sessions delete SESSION")
			}
			deck, err := c.dial()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
			defer cancel()
			return deck.client.DeleteSession(ctx, deck.server.Directory, args[0])
		},
	}
}

func sessionsRevertCommand() *cli.Command {
	var c console
	var messageID string
	return &cli.Command{
		Name:    "revert",
		Summary: "Rewind a session to just before a message",
		Usage:   "agentdeck sessions revert SESSION --message MESSAGE",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("revert", pflag.ContinueOnError)
			c.addFlags(flagSet)
			flagSet.StringVar(&messageID, "message", "", "message id to rewind to")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 || messageID == "" {
				return fmt.Errorf("usage: agentdeck sessions revert SESSION --message MESSAGE")
			}
			deck, err := c.dial()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
			defer cancel()
			session, err := deck.client.RevertSession(ctx, deck.server.Directory, args[0], messageID)
			if err != nil {
				return err
			}
			if session.Revert != nil {
				fmt.Printf("%s reverted to %s\n", session.ID, session.Revert.MessageID)
			}
			return nil
		},
	}
}

func sessionsUnrevertCommand() *cli.Command {
	var c console
	return &cli.Command{
		Name:    "unrevert",
		Summary: "Clear a pending revert",
		Usage:   "agentdeck sessions unrevert SESSION",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("unrevert", pflag.ContinueOnError)
			c.addFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: agentdeck sessions unrevert SESSION")
			}
			deck, err := c.dial()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
			defer cancel()
			_, err = deck.client.UnrevertSession(ctx, deck.server.Directory, args[0])
			return err
		},
	}
}
