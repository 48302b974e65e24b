// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/agentdeck/agentdeck/agentapi"
	"github.com/agentdeck/agentdeck/cmd/agentdeck/cli"
	"github.com/agentdeck/agentdeck/journal"
	"github.com/agentdeck/agentdeck/mirror"
)

func journalCommand() *cli.Command {
	return &cli.Command{
		Name:    "journal",
		Summary: "Work with recorded frame journals",
		Commands: []*cli.Command{
			journalReplayCommand(),
		},
	}
}

func journalReplayCommand() *cli.Command {
	var input string
	var verbose bool
	var logLevel, logFormat string
	return &cli.Command{
		Name:    "replay",
		Summary: "Rebuild mirrored state from a recorded journal",
		Description: `Rebuild mirrored state from a recorded journal.

Feeds every recorded frame through a fresh engine without touching the
network, then reports the reconciled sessions, their final statuses,
pending permissions, and what was dropped. This is the offline half of
'agentdeck watch --journal': record a confusing run, replay it here.`,
		Usage: "agentdeck journal replay --input FILE [--verbose]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("replay", pflag.ContinueOnError)
			flagSet.StringVar(&input, "input", "", "journal file to replay")
			flagSet.BoolVar(&verbose, "verbose", false, "print each frame as it replays")
			flagSet.StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
			flagSet.StringVar(&logFormat, "log-format", "", "log format: text, json, auto")
			return flagSet
		},
		Run: func(args []string) error {
			if input == "" {
				return fmt.Errorf("usage: agentdeck journal replay --input FILE [--verbose]")
			}
			return replayJournal(input, verbose, cli.NewLogger(logLevel, logFormat), os.Stdout)
		},
	}
}

// replayTracker accumulates the report data the engine itself does not
// enumerate: which sessions appeared, their last seen titles, and
// their final statuses. Titles come from the stream because the cache
// treats session.updated as an invalidation, and with no fetcher the
// session region never hydrates.
type replayTracker struct {
	sessions map[mirror.ChannelKey]map[string]bool
	titles   map[string]string
	statuses map[string]mirror.Status
}

func (t *replayTracker) addSession(key mirror.ChannelKey, sessionID string) {
	if sessionID == "" {
		return
	}
	set := t.sessions[key]
	if set == nil {
		set = make(map[string]bool)
		t.sessions[key] = set
	}
	set[sessionID] = true
}

func (t *replayTracker) onStatus(sessionID string, status mirror.Status) {
	t.statuses[sessionID] = status
}

func replayJournal(path string, verbose bool, logger *slog.Logger, out io.Writer) error {
	reader, err := journal.Open(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	tracker := &replayTracker{
		sessions: make(map[mirror.ChannelKey]map[string]bool),
		titles:   make(map[string]string),
		statuses: make(map[string]mirror.Status),
	}

	// No fetcher: invalidations drop entries and nothing refills them,
	// which is the point. The report shows exactly what the recorded
	// frames carried.
	cache := mirror.NewCache(mirror.CacheConfig{Logger: logger})
	status := mirror.NewStatusStore(tracker.onStatus)
	permissions := mirror.NewPermissionStore(nil)
	reconciler := mirror.NewReconciler(mirror.ReconcilerConfig{
		Cache:       cache,
		Status:      status,
		Permissions: permissions,
		Logger:      logger,
	})
	dispatcher := mirror.NewDispatcher(reconciler, logger)

	var frames int
	var firstTime, lastTime int64
	for {
		record, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		frames++
		if firstTime == 0 {
			firstTime = record.Time
		}
		lastTime = record.Time
		key := mirror.ChannelKey{Endpoint: record.Endpoint, Directory: record.Directory}

		// The decode here is for the report only; HandleFrame decodes
		// again internally so replay exercises the same dispatch path
		// as live traffic.
		event, decodeErr := agentapi.DecodeEvent(record.Frame)
		if decodeErr == nil {
			tracker.addSession(key, eventSessionID(event))
			if event.Session != nil {
				tracker.titles[event.Session.Info.ID] = sessionTitle(event.Session.Info)
			}
		}
		if verbose {
			printFrame(out, record, event, decodeErr)
		}

		dispatcher.HandleFrame(key, record.Frame)
	}

	printReplayReport(out, cache, permissions, dispatcher.Stats(), tracker, frames, firstTime, lastTime)
	return nil
}

// eventSessionID extracts the session an event belongs to, or "" for
// events without one (installation notices, parts that omit it).
func eventSessionID(event *agentapi.Event) string {
	switch {
	case event.Session != nil:
		return event.Session.Info.ID
	case event.SessionID != nil:
		return event.SessionID.SessionID
	case event.Message != nil:
		return event.Message.Info.SessionID
	case event.Part != nil:
		return event.Part.Part.SessionID
	case event.MessageRemoved != nil:
		return event.MessageRemoved.SessionID
	case event.PartRemoved != nil:
		return event.PartRemoved.SessionID
	case event.Permission != nil:
		return event.Permission.SessionID
	case event.PermissionReplied != nil:
		return event.PermissionReplied.SessionID
	case event.Todo != nil:
		return event.Todo.SessionID
	}
	return ""
}

func printFrame(out io.Writer, record journal.Record, event *agentapi.Event, decodeErr error) {
	stamp := time.UnixMilli(record.Time).Local().Format("15:04:05.000")
	if decodeErr != nil {
		if errors.Is(decodeErr, agentapi.ErrUnknownKind) {
			fmt.Fprintf(out, "%s  (unknown kind, skipped)\n", stamp)
		} else {
			fmt.Fprintf(out, "%s  (malformed: %v)\n", stamp, decodeErr)
		}
		return
	}
	fmt.Fprintf(out, "%s  %-24s %s\n", stamp, event.Kind, describeEvent(event))
}

func describeEvent(event *agentapi.Event) string {
	switch {
	case event.Session != nil:
		return fmt.Sprintf("%s %q", event.Session.Info.ID, event.Session.Info.Title)
	case event.SessionID != nil:
		return event.SessionID.SessionID
	case event.Message != nil:
		return fmt.Sprintf("%s %s %s", event.Message.Info.SessionID, event.Message.Info.ID, event.Message.Info.Role)
	case event.Part != nil:
		part := event.Part.Part
		return fmt.Sprintf("%s %s %s (%d bytes)", part.MessageID, part.ID, part.Type, len(part.Text))
	case event.MessageRemoved != nil:
		return fmt.Sprintf("%s %s", event.MessageRemoved.SessionID, event.MessageRemoved.MessageID)
	case event.PartRemoved != nil:
		return fmt.Sprintf("%s %s", event.PartRemoved.MessageID, event.PartRemoved.PartID)
	case event.Permission != nil:
		return fmt.Sprintf("%s %q", event.Permission.ID, event.Permission.Title)
	case event.PermissionReplied != nil:
		return fmt.Sprintf("%s -> %s", event.PermissionReplied.PermissionID, event.PermissionReplied.Response)
	case event.Todo != nil:
		return fmt.Sprintf("%s (%d todos)", event.Todo.SessionID, len(event.Todo.Todos))
	case event.Installation != nil:
		return event.Installation.Version
	}
	return ""
}

func printReplayReport(out io.Writer, cache *mirror.Cache, permissions *mirror.PermissionStore, stats mirror.Stats, tracker *replayTracker, frames int, firstTime, lastTime int64) {
	if frames == 0 {
		fmt.Fprintln(out, "journal is empty")
		return
	}
	fmt.Fprintf(out, "replayed %d frames (%s - %s)\n", frames,
		formatUnixMilli(firstTime), formatUnixMilli(lastTime))

	keys := make([]mirror.ChannelKey, 0, len(tracker.sessions))
	for key := range tracker.sessions {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	for _, key := range keys {
		fmt.Fprintf(out, "\nchannel %s %s\n", key.Endpoint, key.Directory)

		ids := make([]string, 0, len(tracker.sessions[key]))
		for id := range tracker.sessions[key] {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		tw := tabwriter.NewWriter(out, 2, 0, 3, ' ', 0)
		fmt.Fprintln(tw, "  SESSION\tSTATUS\tMESSAGES\tQUEUED\tTITLE")
		for _, id := range ids {
			statusKind := mirror.StatusIdle
			if status, ok := tracker.statuses[id]; ok {
				statusKind = status.Kind
			}
			// QUEUED counts prompts still waiting behind a streaming
			// turn when the recording ended.
			messageCount, queued := 0, 0
			if messages, ok := cache.Messages(key, id); ok {
				messageCount = len(messages)
				for _, message := range messages {
					if mirror.IsQueued(messages, message.Info.ID) {
						queued++
					}
				}
			}
			fmt.Fprintf(tw, "  %s\t%s\t%d\t%d\t%s\n", id, statusKind, messageCount, queued, tracker.titles[id])
		}
		tw.Flush()
	}

	if pending := permissions.All(); len(pending) > 0 {
		fmt.Fprintf(out, "\npending permissions:\n")
		for _, permission := range pending {
			fmt.Fprintf(out, "  %s %s %q\n", permission.SessionID, permission.ID, permission.Title)
		}
	}

	fmt.Fprintf(out, "\ndropped: %d malformed, %d unknown kinds, %d orphan parts\n",
		stats.MalformedFrames, stats.UnknownKinds, stats.OrphanParts)
}
