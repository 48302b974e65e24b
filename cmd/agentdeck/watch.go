// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/agentdeck/agentdeck/agentapi"
	"github.com/agentdeck/agentdeck/cmd/agentdeck/cli"
	"github.com/agentdeck/agentdeck/journal"
	"github.com/agentdeck/agentdeck/lib/config"
	"github.com/agentdeck/agentdeck/mirror"
)

func watchCommand() *cli.Command {
	var c console
	var journalPath string
	var followConfig bool
	return &cli.Command{
		Name:    "watch",
		Summary: "Mirror the event stream in the foreground",
		Description: `Mirror the event stream in the foreground.

Connects to the server's push channel and logs what happens: channel
state transitions, session status changes, permission requests, and
installation notices. Reconnects with exponential backoff after
stream loss; SIGCONT and SIGUSR1 skip the current backoff wait.
SIGINT or SIGTERM shut down cleanly.`,
		Usage: "agentdeck watch [--journal FILE] [--follow-config]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("watch", pflag.ContinueOnError)
			c.addFlags(flagSet)
			flagSet.StringVar(&journalPath, "journal", "", "record raw frames to FILE for offline replay")
			flagSet.BoolVar(&followConfig, "follow-config", false,
				"watch the config file and switch channels when the server entry changes")
			return flagSet
		},
		Run: func(args []string) error {
			return watch(&c, journalPath, followConfig)
		},
	}
}

func watch(c *console, journalPath string, followConfig bool) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}
	server, err := cfg.Server(c.serverName)
	if err != nil {
		return err
	}
	logger := c.logger(cfg)

	configFile := c.configPath
	if configFile == "" {
		configFile = os.Getenv("AGENTDECK_CONFIG")
	}
	if followConfig && configFile == "" {
		return fmt.Errorf("--follow-config requires a config file (--endpoint/--directory bypass it)")
	}

	var recorder *journal.Writer
	if journalPath != "" {
		codec, err := journal.ParseCodec(cfg.Journal.Compression)
		if err != nil {
			return err
		}
		recorder, err = journal.Create(journalPath, journal.WriterConfig{Codec: codec})
		if err != nil {
			return err
		}
		logger.Info("journaling frames", "path", journalPath, "compression", codec)
	}

	dialer := agentapi.NewDialer(agentapi.DialerConfig{Logger: logger})
	engine, err := mirror.New(mirror.Config{
		Transport:      dialerTransport{dialer},
		Fetcher:        dialer,
		Logger:         logger,
		InitialBackoff: cfg.Backoff.Initial.Std(),
		MaxBackoff:     cfg.Backoff.Max.Std(),
		RetryCountdown: cfg.RetryCountdown.Std(),
		StateFunc:      logState(logger),
		OnStatus:       logStatus(logger),
		OnPermission:   logPermission(logger),
		Notifier:       logInstallation(logger),
		FrameTap:       recordFrames(recorder, logger),
	})
	if err != nil {
		if recorder != nil {
			recorder.Close()
		}
		return err
	}

	key := mirror.ChannelKey{Endpoint: server.Endpoint, Directory: server.Directory}
	release := engine.Follow(key)
	logger.Info("watching", "endpoint", key.Endpoint, "directory", key.Directory)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return kickOnSignal(ctx, engine, logger)
	})
	if followConfig {
		group.Go(func() error {
			return followConfigFile(ctx, configFile, c.serverName, engine, key, release, logger)
		})
	}

	err = group.Wait()
	engine.Close()
	if recorder != nil {
		if closeErr := recorder.Close(); closeErr != nil {
			logger.Warn("closing journal failed", "error", closeErr)
		}
	}

	stats := engine.Stats()
	logger.Info("mirror stopped",
		"malformed_frames", stats.MalformedFrames,
		"unknown_kinds", stats.UnknownKinds,
		"orphan_parts", stats.OrphanParts)

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// kickOnSignal retries all channels immediately on SIGCONT or SIGUSR1.
// SIGCONT covers the laptop-resume case: the process was stopped or
// the machine slept, the backoff timer is stale, reconnect now.
func kickOnSignal(ctx context.Context, engine *mirror.Engine, logger *slog.Logger) error {
	kicks := make(chan os.Signal, 1)
	signal.Notify(kicks, syscall.SIGCONT, syscall.SIGUSR1)
	defer signal.Stop(kicks)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig := <-kicks:
			logger.Info("reconnect kick", "signal", sig.String())
			engine.KickAll()
		}
	}
}

// followConfigFile watches the console config file and switches the
// engine to a new channel when the resolved server entry changes. The
// directory is watched rather than the file: editors replace files by
// rename, which would drop a file-level watch.
func followConfigFile(ctx context.Context, path, serverName string, engine *mirror.Engine, key mirror.ChannelKey, release func(), logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			next, ok := reloadTarget(path, serverName, logger)
			if !ok || next == key {
				continue
			}
			logger.Info("config changed, switching channel",
				"from", key.String(), "to", next.String())
			// Follow the new channel before releasing the old one so a
			// config edit back and forth never tears the engine down.
			nextRelease := engine.Follow(next)
			release()
			key, release = next, nextRelease
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "error", watchErr)
		}
	}
}

// reloadTarget re-reads the config file and resolves the watched
// server. A file mid-save or an invalid edit is logged and skipped;
// the current channel stays up.
func reloadTarget(path, serverName string, logger *slog.Logger) (mirror.ChannelKey, bool) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		logger.Warn("config reload failed", "error", err)
		return mirror.ChannelKey{}, false
	}
	if err := cfg.Validate(); err != nil {
		logger.Warn("config reload invalid", "error", err)
		return mirror.ChannelKey{}, false
	}
	server, err := cfg.Server(serverName)
	if err != nil {
		logger.Warn("config reload has no usable server", "error", err)
		return mirror.ChannelKey{}, false
	}
	return mirror.ChannelKey{Endpoint: server.Endpoint, Directory: server.Directory}, true
}

func logState(logger *slog.Logger) mirror.StateFunc {
	return func(key mirror.ChannelKey, state mirror.State, err error) {
		if err != nil {
			logger.Warn("channel state",
				"endpoint", key.Endpoint, "directory", key.Directory,
				"state", state, "error", err)
			return
		}
		logger.Info("channel state",
			"endpoint", key.Endpoint, "directory", key.Directory, "state", state)
	}
}

func logStatus(logger *slog.Logger) func(sessionID string, status mirror.Status) {
	return func(sessionID string, status mirror.Status) {
		if status.Kind == mirror.StatusRetry {
			logger.Warn("session retrying",
				"session", sessionID,
				"attempt", status.Attempt,
				"error", status.Message,
				"next", time.UnixMilli(status.Next).Format(time.RFC3339))
			return
		}
		logger.Info("session status", "session", sessionID, "status", status.Kind)
	}
}

func logPermission(logger *slog.Logger) func(permission agentapi.Permission, pending bool) {
	return func(permission agentapi.Permission, pending bool) {
		if pending {
			logger.Info("permission requested",
				"session", permission.SessionID,
				"permission", permission.ID,
				"title", permission.Title)
			return
		}
		logger.Info("permission resolved",
			"session", permission.SessionID,
			"permission", permission.ID)
	}
}

func logInstallation(logger *slog.Logger) mirror.Notifier {
	return func(key mirror.ChannelKey, kind agentapi.EventKind, version string) {
		logger.Info("installation event",
			"endpoint", key.Endpoint, "kind", string(kind), "version", version)
	}
}

// recordFrames returns a frame tap appending every raw frame to the
// journal, or nil when journaling is off. The tap runs on the pump
// goroutine; Append only stages bytes in memory until the segment
// threshold, so the cost per frame is one encode.
func recordFrames(recorder *journal.Writer, logger *slog.Logger) func(key mirror.ChannelKey, data []byte) {
	if recorder == nil {
		return nil
	}
	return func(key mirror.ChannelKey, data []byte) {
		err := recorder.Append(journal.Record{
			Time:      time.Now().UnixMilli(),
			Endpoint:  key.Endpoint,
			Directory: key.Directory,
			Frame:     data,
		})
		if err != nil {
			logger.Warn("journal append failed", "error", err)
		}
	}
}
