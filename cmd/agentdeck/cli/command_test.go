// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "agentdeck",
		Commands: []*Command{
			{
				Name: "sessions",
				Run: func(args []string) error {
					called = "sessions"
					return nil
				},
			},
			{
				Name: "watch",
				Run: func(args []string) error {
					called = "watch"
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"watch"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "watch" {
		t.Errorf("dispatched to %q, want %q", called, "watch")
	}
}

func TestCommand_Execute_NestedSubcommands(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name: "agentdeck",
		Commands: []*Command{
			{
				Name: "sessions",
				Commands: []*Command{
					{
						Name: "rename",
						Run: func(args []string) error {
							called = "sessions rename"
							receivedArgs = args
							return nil
						},
					},
				},
			},
		},
	}

	if err := root.Execute([]string{"sessions", "rename", "ses_abc123"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "sessions rename" {
		t.Errorf("dispatched to %q, want %q", called, "sessions rename")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "ses_abc123" {
		t.Errorf("args = %v, want [ses_abc123]", receivedArgs)
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var session string
	var text string

	command := &Command{
		Name: "send",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("send", pflag.ContinueOnError)
			flagSet.StringVar(&session, "session", "", "session ID")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				text = args[0]
			}
			return nil
		},
	}

	if err := command.Execute([]string{"--session", "ses_abc123", "hello there"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if session != "ses_abc123" {
		t.Errorf("session = %q, want %q", session, "ses_abc123")
	}
	if text != "hello there" {
		t.Errorf("text = %q, want %q", text, "hello there")
	}
}

func TestCommand_Execute_UnknownFlag(t *testing.T) {
	command := &Command{
		Name: "send",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("send", pflag.ContinueOnError)
			flagSet.String("session", "", "session ID")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--sesion", "ses_abc123"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	if !strings.Contains(err.Error(), "sesion") {
		t.Errorf("error = %q, should mention the bad flag", err.Error())
	}
	if !strings.Contains(err.Error(), "--help") {
		t.Errorf("error = %q, should point to --help", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommand(t *testing.T) {
	root := &Command{
		Name: "agentdeck",
		Commands: []*Command{
			{Name: "sessions"},
			{Name: "watch"},
		},
	}

	err := root.Execute([]string{"sesions"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if !strings.Contains(err.Error(), "sesions") {
		t.Errorf("error = %q, should mention the bad command", err.Error())
	}
	if !strings.Contains(err.Error(), "--help") {
		t.Errorf("error = %q, should point to --help", err.Error())
	}
}

func TestCommand_Execute_HelpFlag(t *testing.T) {
	for _, helpArg := range []string{"-h", "--help", "help"} {
		t.Run(helpArg, func(t *testing.T) {
			root := &Command{
				Name:    "agentdeck",
				Summary: "Management console for a coding-agent server",
				Commands: []*Command{
					{Name: "sessions", Summary: "Session operations"},
				},
			}

			err := root.Execute([]string{helpArg})
			if err != nil {
				t.Errorf("Execute(%q) error: %v", helpArg, err)
			}
		})
	}
}

func TestCommand_Execute_NoArgsShowsHelp(t *testing.T) {
	root := &Command{
		Name: "agentdeck",
		Commands: []*Command{
			{Name: "sessions", Summary: "Session operations"},
		},
	}

	err := root.Execute([]string{})
	if err == nil {
		t.Fatal("Execute() = nil, want error for missing subcommand")
	}
	if !strings.Contains(err.Error(), "subcommand required") {
		t.Errorf("error = %q, want 'subcommand required'", err.Error())
	}
}

func TestCommand_PrintHelp(t *testing.T) {
	command := &Command{
		Name:        "agentdeck",
		Description: "Management console for a remote coding-agent server.",
		Commands: []*Command{
			{Name: "sessions", Summary: "List and manage sessions"},
			{Name: "watch", Summary: "Mirror the event stream in the foreground"},
			{Name: "send", Summary: "Send a prompt to a session"},
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"Management console for a remote coding-agent server.",
		"Usage:",
		"agentdeck <command> [flags]",
		"Commands:",
		"sessions",
		"List and manage sessions",
		"watch",
		"Mirror the event stream in the foreground",
		"Run 'agentdeck <command> --help'",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_PrintHelp_WithFlags(t *testing.T) {
	command := &Command{
		Name:    "send",
		Summary: "Send a prompt to a session",
		Usage:   "agentdeck send --session ID TEXT",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("send", pflag.ContinueOnError)
			flagSet.String("session", "", "session ID")
			flagSet.Duration("confirm-timeout", 0, "how long to wait for the push echo")
			return flagSet
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"agentdeck send --session ID TEXT",
		"Flags:",
		"session",
		"confirm-timeout",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_FullName(t *testing.T) {
	root := &Command{Name: "agentdeck"}
	sessions := &Command{Name: "sessions", parent: root}
	rename := &Command{Name: "rename", parent: sessions}

	if got := root.fullName(); got != "agentdeck" {
		t.Errorf("root.fullName() = %q, want %q", got, "agentdeck")
	}
	if got := sessions.fullName(); got != "agentdeck sessions" {
		t.Errorf("sessions.fullName() = %q, want %q", got, "agentdeck sessions")
	}
	if got := rename.fullName(); got != "agentdeck sessions rename" {
		t.Errorf("rename.fullName() = %q, want %q", got, "agentdeck sessions rename")
	}
}
