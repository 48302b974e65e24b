// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentdeck.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

const validConfig = `
default_server: local
servers:
  local:
    endpoint: http://127.0.0.1:4096
    directory: /srv/project
  remote:
    endpoint: https://agents.example.com
    directory: /work/repo
backoff:
  initial: 2s
  max: 20s
retry_countdown: 8s
journal:
  compression: lz4
log:
  level: debug
  format: json
`

func TestLoadFile(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.DefaultServer != "local" {
		t.Fatalf("DefaultServer = %q, want %q", cfg.DefaultServer, "local")
	}
	if got := cfg.Servers["local"].Endpoint; got != "http://127.0.0.1:4096" {
		t.Fatalf("local endpoint = %q, want %q", got, "http://127.0.0.1:4096")
	}
	if got := cfg.Backoff.Initial.Std(); got != 2*time.Second {
		t.Fatalf("backoff.initial = %v, want %v", got, 2*time.Second)
	}
	if got := cfg.RetryCountdown.Std(); got != 8*time.Second {
		t.Fatalf("retry_countdown = %v, want %v", got, 8*time.Second)
	}
	if got := cfg.Journal.Compression; got != "lz4" {
		t.Fatalf("journal.compression = %q, want %q", got, "lz4")
	}
	if got := cfg.Log.Format; got != "json" {
		t.Fatalf("log.format = %q, want %q", got, "json")
	}
}

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, `
servers:
  only:
    endpoint: http://localhost:9000
    directory: /tmp/w
`))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if got := cfg.Backoff.Initial.Std(); got != time.Second {
		t.Fatalf("default backoff.initial = %v, want %v", got, time.Second)
	}
	if got := cfg.Backoff.Max.Std(); got != 30*time.Second {
		t.Fatalf("default backoff.max = %v, want %v", got, 30*time.Second)
	}
	if got := cfg.RetryCountdown.Std(); got != 5*time.Second {
		t.Fatalf("default retry_countdown = %v, want %v", got, 5*time.Second)
	}
	if got := cfg.Journal.Compression; got != "zstd" {
		t.Fatalf("default journal.compression = %q, want %q", got, "zstd")
	}
	if got := cfg.Log.Level; got != "info" {
		t.Fatalf("default log.level = %q, want %q", got, "info")
	}
	if got := cfg.Log.Format; got != "auto" {
		t.Fatalf("default log.format = %q, want %q", got, "auto")
	}
}

func TestLoadUsesEnvironmentVariable(t *testing.T) {
	path := writeConfig(t, validConfig)
	t.Setenv("AGENTDECK_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultServer != "local" {
		t.Fatalf("DefaultServer = %q, want %q", cfg.DefaultServer, "local")
	}
}

func TestLoadWithoutEnvironmentVariable(t *testing.T) {
	t.Setenv("AGENTDECK_CONFIG", "")
	if _, err := Load(); err == nil {
		t.Fatal("Load succeeded with AGENTDECK_CONFIG unset")
	}
}

func TestLoadFileInvalidDuration(t *testing.T) {
	_, err := LoadFile(writeConfig(t, "backoff:\n  initial: fast\n"))
	if err == nil {
		t.Fatal("LoadFile accepted an invalid duration")
	}
	if !strings.Contains(err.Error(), "invalid duration") {
		t.Fatalf("error = %v, want mention of invalid duration", err)
	}
}

func TestServerResolution(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	t.Run("named", func(t *testing.T) {
		server, err := cfg.Server("remote")
		if err != nil {
			t.Fatalf("Server(remote): %v", err)
		}
		if server.Endpoint != "https://agents.example.com" {
			t.Fatalf("endpoint = %q, want %q", server.Endpoint, "https://agents.example.com")
		}
	})

	t.Run("default", func(t *testing.T) {
		server, err := cfg.Server("")
		if err != nil {
			t.Fatalf("Server(\"\"): %v", err)
		}
		if server.Directory != "/srv/project" {
			t.Fatalf("directory = %q, want %q", server.Directory, "/srv/project")
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if _, err := cfg.Server("nowhere"); err == nil {
			t.Fatal("Server(nowhere) succeeded")
		}
	})

	t.Run("sole entry without default", func(t *testing.T) {
		solo := Default()
		solo.Servers["only"] = ServerConfig{Endpoint: "http://localhost:1", Directory: "/d"}
		server, err := solo.Server("")
		if err != nil {
			t.Fatalf("Server(\"\") with one entry: %v", err)
		}
		if server.Directory != "/d" {
			t.Fatalf("directory = %q, want %q", server.Directory, "/d")
		}
	})

	t.Run("ambiguous", func(t *testing.T) {
		ambiguous := Default()
		ambiguous.Servers["a"] = ServerConfig{Endpoint: "http://localhost:1"}
		ambiguous.Servers["b"] = ServerConfig{Endpoint: "http://localhost:2"}
		if _, err := ambiguous.Server(""); err == nil {
			t.Fatal("Server(\"\") succeeded with two entries and no default")
		}
	})
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing endpoint",
			yaml: "servers:\n  bad:\n    directory: /x\n",
			want: "servers.bad.endpoint is required",
		},
		{
			name: "relative endpoint",
			yaml: "servers:\n  bad:\n    endpoint: localhost:4096\n",
			want: "absolute http(s) URL",
		},
		{
			name: "unknown default server",
			yaml: "default_server: ghost\nservers:\n  real:\n    endpoint: http://localhost:1\n",
			want: `default_server "ghost" not defined`,
		},
		{
			name: "bad compression",
			yaml: "journal:\n  compression: gzip\n",
			want: "journal.compression",
		},
		{
			name: "bad log level",
			yaml: "log:\n  level: loud\n",
			want: "log.level",
		},
		{
			name: "bad log format",
			yaml: "log:\n  format: yaml\n",
			want: "log.format",
		},
		{
			name: "backoff cap below initial",
			yaml: "backoff:\n  initial: 10s\n  max: 1s\n",
			want: "backoff.max",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadFile(writeConfig(t, tc.yaml))
			if err != nil {
				t.Fatalf("LoadFile: %v", err)
			}
			err = cfg.Validate()
			if err == nil {
				t.Fatal("Validate succeeded")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate error = %v, want mention of %q", err, tc.want)
			}
		})
	}
}
