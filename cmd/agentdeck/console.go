// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/pflag"

	"github.com/agentdeck/agentdeck/agentapi"
	"github.com/agentdeck/agentdeck/cmd/agentdeck/cli"
	"github.com/agentdeck/agentdeck/lib/config"
	"github.com/agentdeck/agentdeck/mirror"
)

// callTimeout bounds one-shot API calls. Commands that stay up (watch)
// manage their own contexts.
const callTimeout = 30 * time.Second

// console holds the global flags every command shares and resolves
// them into configuration, a server target, and a logger. Each command
// constructor owns one console; the flag set and the Run closure both
// capture it.
type console struct {
	configPath string
	serverName string
	endpoint   string
	directory  string
	logLevel   string
	logFormat  string
}

// addFlags registers the shared flags on a command's flag set.
func (c *console) addFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.configPath, "config", "", "path to agentdeck.yaml (default $AGENTDECK_CONFIG)")
	flagSet.StringVar(&c.serverName, "server", "", "named server entry from the config file")
	flagSet.StringVar(&c.endpoint, "endpoint", "", "agent server URL (with --directory, bypasses the config file)")
	flagSet.StringVar(&c.directory, "directory", "", "working directory on the server")
	flagSet.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flagSet.StringVar(&c.logFormat, "log-format", "", "log format: text, json, auto")
}

// load resolves the configuration. Explicit --endpoint/--directory
// bypass the file entirely; otherwise the file named by --config or
// AGENTDECK_CONFIG is loaded. Either way the result is validated.
func (c *console) load() (*config.Config, error) {
	switch c.logLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("--log-level must be one of: debug, info, warn, error")
	}
	switch c.logFormat {
	case "", "text", "json", "auto":
	default:
		return nil, fmt.Errorf("--log-format must be one of: text, json, auto")
	}

	if c.endpoint != "" || c.directory != "" {
		if c.endpoint == "" || c.directory == "" {
			return nil, fmt.Errorf("--endpoint and --directory must be set together")
		}
		cfg := config.Default()
		cfg.Servers["flags"] = config.ServerConfig{
			Endpoint:  c.endpoint,
			Directory: c.directory,
		}
		cfg.DefaultServer = "flags"
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	var cfg *config.Config
	var err error
	if c.configPath != "" {
		cfg, err = config.LoadFile(c.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// logger builds the command logger. Flag values override the config
// file; both were validated before this point.
func (c *console) logger(cfg *config.Config) *slog.Logger {
	level := cfg.Log.Level
	if c.logLevel != "" {
		level = c.logLevel
	}
	format := cfg.Log.Format
	if c.logFormat != "" {
		format = c.logFormat
	}
	return cli.NewLogger(level, format)
}

// deck is a resolved console: the configuration, the selected server,
// a client for its endpoint, and the logger. One-shot commands build a
// deck, make their calls, and exit.
type deck struct {
	cfg    *config.Config
	server config.ServerConfig
	client *agentapi.Client
	logger *slog.Logger
}

// dial resolves the console into a deck.
func (c *console) dial() (*deck, error) {
	cfg, err := c.load()
	if err != nil {
		return nil, err
	}
	server, err := cfg.Server(c.serverName)
	if err != nil {
		return nil, err
	}
	logger := c.logger(cfg)
	client, err := agentapi.NewClient(agentapi.ClientConfig{
		BaseURL: server.Endpoint,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	return &deck{cfg: cfg, server: server, client: client, logger: logger}, nil
}

// key returns the push-channel key for the deck's server.
func (d *deck) key() mirror.ChannelKey {
	return mirror.ChannelKey{Endpoint: d.server.Endpoint, Directory: d.server.Directory}
}

// dialerTransport adapts agentapi.Dialer to the engine's Transport
// interface. Dialer.Open returns the concrete *agentapi.EventStream;
// this method re-types it as a FrameSource.
type dialerTransport struct {
	dialer *agentapi.Dialer
}

func (t dialerTransport) Open(ctx context.Context, endpoint, directory string) (mirror.FrameSource, error) {
	return t.dialer.Open(ctx, endpoint, directory)
}
