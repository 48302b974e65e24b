// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"testing"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *reconcilerHarness) {
	t.Helper()
	h := newReconcilerHarness(t)
	return NewDispatcher(h.reconciler, nil), h
}

func TestDispatchValidFrame(t *testing.T) {
	dispatcher, h := newTestDispatcher(t)

	frame := `{"type":"message.updated","properties":{"info":{"id":"msg_001","sessionID":"ses_001","role":"assistant","time":{"created":1700000000000}}}}`
	dispatcher.HandleFrame(testKey, []byte(frame))

	if _, ok := h.cache.Messages(testKey, "ses_001"); !ok {
		t.Fatal("valid frame not applied")
	}
	if stats := dispatcher.Stats(); stats != (Stats{}) {
		t.Fatalf("valid frame bumped drop counters: %+v", stats)
	}
}

func TestDispatchAliasedFrame(t *testing.T) {
	dispatcher, h := newTestDispatcher(t)

	frame := `{"type":"messagev2.updated","properties":{"info":{"id":"msg_001","sessionID":"ses_001","role":"assistant","time":{"created":1700000000000}}}}`
	dispatcher.HandleFrame(testKey, []byte(frame))

	if _, ok := h.cache.Messages(testKey, "ses_001"); !ok {
		t.Fatal("aliased frame did not reach the message handler")
	}
}

func TestDispatchMalformedFrame(t *testing.T) {
	dispatcher, h := newTestDispatcher(t)

	dispatcher.HandleFrame(testKey, []byte(`{"type":"message.updated","properties":`))
	dispatcher.HandleFrame(testKey, []byte(`{"type":"message.updated","properties":{"info":{}}}`))

	stats := dispatcher.Stats()
	if stats.MalformedFrames != 2 {
		t.Fatalf("MalformedFrames = %d, want 2", stats.MalformedFrames)
	}
	if stats.UnknownKinds != 0 {
		t.Fatalf("malformed frames counted as unknown kinds: %+v", stats)
	}
	if _, ok := h.cache.Messages(testKey, "ses_001"); ok {
		t.Fatal("malformed frame mutated the cache")
	}
}

func TestDispatchUnknownKind(t *testing.T) {
	dispatcher, _ := newTestDispatcher(t)

	dispatcher.HandleFrame(testKey, []byte(`{"type":"lsp.client.diagnostics","properties":{}}`))

	stats := dispatcher.Stats()
	if stats.UnknownKinds != 1 {
		t.Fatalf("UnknownKinds = %d, want 1", stats.UnknownKinds)
	}
	if stats.MalformedFrames != 0 {
		t.Fatalf("unknown kind counted as malformed: %+v", stats)
	}
}

func TestDispatchStatsIncludeOrphanParts(t *testing.T) {
	dispatcher, _ := newTestDispatcher(t)

	frame := `{"type":"message.part.updated","properties":{"part":{"id":"prt_001","messageID":"msg_unknown","sessionID":"ses_001","type":"text","text":"hi"}}}`
	dispatcher.HandleFrame(testKey, []byte(frame))

	if got := dispatcher.Stats().OrphanParts; got != 1 {
		t.Fatalf("OrphanParts = %d, want 1", got)
	}
}
