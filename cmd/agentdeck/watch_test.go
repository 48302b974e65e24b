// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentdeck/agentdeck/journal"
	"github.com/agentdeck/agentdeck/lib/testutil"
	"github.com/agentdeck/agentdeck/mirror"
)

// blockingTransport reports every Open on a channel and hands back
// sources that deliver nothing until their channel context is
// canceled, so tests can watch which targets the engine connects to.
type blockingTransport struct {
	opens chan mirror.ChannelKey
}

func (t *blockingTransport) Open(ctx context.Context, endpoint, directory string) (mirror.FrameSource, error) {
	t.opens <- mirror.ChannelKey{Endpoint: endpoint, Directory: directory}
	return blockingSource{ctx: ctx}, nil
}

type blockingSource struct {
	ctx context.Context
}

func (s blockingSource) Next() ([]byte, error) {
	<-s.ctx.Done()
	return nil, s.ctx.Err()
}

func (s blockingSource) Close() error { return nil }

func TestFollowConfigFileSwitchesChannel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentdeck.yaml")
	writeTarget := func(endpoint string) {
		t.Helper()
		content := fmt.Sprintf("default_server: local\nservers:\n  local:\n    endpoint: %s\n    directory: /home/alice/project\n", endpoint)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	writeTarget("http://127.0.0.1:4096")

	transport := &blockingTransport{opens: make(chan mirror.ChannelKey, 4)}
	engine, err := mirror.New(mirror.Config{Transport: transport, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("mirror.New: %v", err)
	}
	defer engine.Close()

	key := mirror.ChannelKey{Endpoint: "http://127.0.0.1:4096", Directory: "/home/alice/project"}
	release := engine.Follow(key)
	if got := testutil.Receive(t, transport.opens, "initial channel open"); got != key {
		t.Fatalf("opened %v, want %v", got, key)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- followConfigFile(ctx, path, "", engine, key, release, discardLogger())
	}()

	// The directory watch registers asynchronously, so rewrite the file
	// until the switch is observed rather than racing the registration.
	// Repeat events for an already-followed key are skipped, so the
	// rewrites cannot cause a second switch.
	want := mirror.ChannelKey{Endpoint: "http://127.0.0.2:4096", Directory: "/home/alice/project"}
	var next mirror.ChannelKey
	observed := false
	for deadline := time.Now().Add(testutil.Wait); !observed && time.Now().Before(deadline); {
		writeTarget(want.Endpoint)
		select {
		case next = <-transport.opens:
			observed = true
		case <-time.After(50 * time.Millisecond):
		}
	}
	if !observed {
		t.Fatal("no channel open observed after the config change")
	}
	if next != want {
		t.Fatalf("opened %v after config change, want %v", next, want)
	}

	cancel()
	if err := testutil.Receive(t, done, "config watcher exit"); !errors.Is(err, context.Canceled) {
		t.Fatalf("followConfigFile returned %v, want context.Canceled", err)
	}
}

func TestReloadTargetResolvesServer(t *testing.T) {
	path := writeConfig(t, `
default_server: local
servers:
  local:
    endpoint: http://127.0.0.1:4096
    directory: /home/alice/project
  staging:
    endpoint: http://staging:4096
    directory: /srv/work
`)
	key, ok := reloadTarget(path, "staging", discardLogger())
	if !ok {
		t.Fatal("reloadTarget failed on a valid config")
	}
	want := mirror.ChannelKey{Endpoint: "http://staging:4096", Directory: "/srv/work"}
	if key != want {
		t.Errorf("key = %+v, want %+v", key, want)
	}
}

func TestReloadTargetSkipsInvalidEdit(t *testing.T) {
	path := writeConfig(t, `
servers:
  local:
    endpoint: not-a-url
    directory: /p
`)
	if _, ok := reloadTarget(path, "", discardLogger()); ok {
		t.Error("reloadTarget accepted a config with a malformed endpoint")
	}
}

func TestReloadTargetSkipsMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")
	if _, ok := reloadTarget(path, "", discardLogger()); ok {
		t.Error("reloadTarget accepted a missing config file")
	}
}

func TestReloadTargetSkipsUnknownServer(t *testing.T) {
	path := writeConfig(t, `
default_server: local
servers:
  local:
    endpoint: http://127.0.0.1:4096
    directory: /home/alice/project
`)
	if _, ok := reloadTarget(path, "production", discardLogger()); ok {
		t.Error("reloadTarget accepted a server name the config does not define")
	}
}

func TestRecordFramesNilRecorder(t *testing.T) {
	if tap := recordFrames(nil, discardLogger()); tap != nil {
		t.Fatal("recordFrames(nil) returned a tap, want nil so the engine skips journaling")
	}
}

func TestRecordFramesRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.journal")
	recorder, err := journal.Create(path, journal.WriterConfig{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	tap := recordFrames(recorder, discardLogger())

	key := mirror.ChannelKey{Endpoint: "http://127.0.0.1:4096", Directory: "/home/alice/project"}
	frame := []byte(`{"type":"session.idle","properties":{"sessionID":"ses_001"}}`)
	tap(key, frame)
	if err := recorder.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reader, err := journal.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reader.Close()
	record, err := reader.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if record.Endpoint != key.Endpoint || record.Directory != key.Directory {
		t.Errorf("record channel = %s %s, want %s %s",
			record.Endpoint, record.Directory, key.Endpoint, key.Directory)
	}
	if !bytes.Equal(record.Frame, frame) {
		t.Errorf("record frame = %q, want %q", record.Frame, frame)
	}
	if record.Time == 0 {
		t.Error("record has no arrival time")
	}
}
