// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the agentdeck
// console.
//
// Configuration is loaded from a single YAML file specified by:
//   - AGENTDECK_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This keeps the
// console's behavior deterministic: the servers it talks to come from
// exactly one auditable place, or from explicit --endpoint/--directory
// flags that bypass the file entirely.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the console configuration.
type Config struct {
	// DefaultServer names the entry in Servers used when a command is
	// run without --server. Optional when Servers has exactly one entry.
	DefaultServer string `yaml:"default_server"`

	// Servers maps a short name to an agent server endpoint and the
	// working directory to watch on it. Each (endpoint, directory)
	// pair identifies one push channel.
	Servers map[string]ServerConfig `yaml:"servers"`

	// Backoff tunes the reconnect delays for the push channel.
	Backoff BackoffConfig `yaml:"backoff"`

	// RetryCountdown is the provider-retry countdown shown when a
	// retry event does not carry its own resume timestamp.
	// Default: 5s.
	RetryCountdown Duration `yaml:"retry_countdown"`

	// Journal configures frame-journal recording.
	Journal JournalConfig `yaml:"journal"`

	// Log configures the console's own logging.
	Log LogConfig `yaml:"log"`
}

// ServerConfig identifies one agent server and working directory.
type ServerConfig struct {
	// Endpoint is the agent server base URL, e.g. http://127.0.0.1:4096.
	Endpoint string `yaml:"endpoint"`

	// Directory is the working directory on that server whose sessions
	// the console follows.
	Directory string `yaml:"directory"`
}

// BackoffConfig tunes reconnect delays. The delay starts at Initial,
// doubles per consecutive failure, and is capped at Max. It resets to
// Initial only after a successful connect.
type BackoffConfig struct {
	// Initial is the delay before the first reconnect attempt.
	// Default: 1s.
	Initial Duration `yaml:"initial"`

	// Max caps the delay between attempts. Default: 30s.
	Max Duration `yaml:"max"`
}

// JournalConfig configures frame-journal recording.
type JournalConfig struct {
	// Compression selects the segment codec: "none", "lz4", or "zstd".
	// Default: zstd.
	Compression string `yaml:"compression"`
}

// LogConfig configures console logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Default: info.
	Level string `yaml:"level"`

	// Format is "text", "json", or "auto". Auto picks text when stderr
	// is a terminal and json when piped. Default: auto.
	Format string `yaml:"format"`
}

// Duration wraps time.Duration so YAML values can be written as Go
// duration strings ("1s", "30s", "500ms").
type Duration time.Duration

// UnmarshalYAML decodes a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// Default returns the default configuration. It is the base every
// loaded file merges into; the file itself is still required for any
// command that needs a server.
func Default() *Config {
	return &Config{
		Servers: map[string]ServerConfig{},
		Backoff: BackoffConfig{
			Initial: Duration(time.Second),
			Max:     Duration(30 * time.Second),
		},
		RetryCountdown: Duration(5 * time.Second),
		Journal:        JournalConfig{Compression: "zstd"},
		Log:            LogConfig{Level: "info", Format: "auto"},
	}
}

// Load loads configuration from the AGENTDECK_CONFIG environment
// variable. There are no fallback locations: if the variable is not
// set, this fails.
func Load() (*Config, error) {
	path := os.Getenv("AGENTDECK_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("AGENTDECK_CONFIG environment variable not set; " +
			"set it to the path of your agentdeck.yaml config file, or use --config flag")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path, merging it
// over Default. Environment variables do not override file values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Server resolves a named server entry. An empty name resolves the
// default: the DefaultServer entry if set, otherwise the sole entry
// when exactly one server is configured.
func (c *Config) Server(name string) (ServerConfig, error) {
	if name == "" {
		name = c.DefaultServer
	}
	if name == "" {
		if len(c.Servers) == 1 {
			for _, server := range c.Servers {
				return server, nil
			}
		}
		return ServerConfig{}, fmt.Errorf("config: no server selected; set default_server or pass --server")
	}
	server, ok := c.Servers[name]
	if !ok {
		return ServerConfig{}, fmt.Errorf("config: server %q not defined", name)
	}
	return server, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.DefaultServer != "" {
		if _, ok := c.Servers[c.DefaultServer]; !ok {
			errs = append(errs, fmt.Errorf("default_server %q not defined in servers", c.DefaultServer))
		}
	}

	for name, server := range c.Servers {
		if server.Endpoint == "" {
			errs = append(errs, fmt.Errorf("servers.%s.endpoint is required", name))
			continue
		}
		u, err := url.Parse(server.Endpoint)
		if err != nil || u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
			errs = append(errs, fmt.Errorf("servers.%s.endpoint %q must be an absolute http(s) URL", name, server.Endpoint))
		}
	}

	if c.Backoff.Initial.Std() <= 0 {
		errs = append(errs, fmt.Errorf("backoff.initial must be positive"))
	}
	if c.Backoff.Max.Std() < c.Backoff.Initial.Std() {
		errs = append(errs, fmt.Errorf("backoff.max must be at least backoff.initial"))
	}
	if c.RetryCountdown.Std() <= 0 {
		errs = append(errs, fmt.Errorf("retry_countdown must be positive"))
	}

	switch c.Journal.Compression {
	case "none", "lz4", "zstd":
	default:
		errs = append(errs, fmt.Errorf("journal.compression must be one of: none, lz4, zstd"))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of: debug, info, warn, error"))
	}
	switch c.Log.Format {
	case "text", "json", "auto":
	default:
		errs = append(errs, fmt.Errorf("log.format must be one of: text, json, auto"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
