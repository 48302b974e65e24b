// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"sort"
	"testing"

	"github.com/agentdeck/agentdeck/agentapi"
)

func assistantMessage(id string) agentapi.Message {
	return agentapi.Message{
		ID:        id,
		SessionID: "ses_001",
		Role:      agentapi.RoleAssistant,
		Time:      agentapi.MessageTime{Created: 1700000000000},
	}
}

func userMessage(id string) agentapi.Message {
	message := assistantMessage(id)
	message.Role = agentapi.RoleUser
	return message
}

func textPart(id, messageID, text string) agentapi.Part {
	return agentapi.Part{
		ID:        id,
		MessageID: messageID,
		SessionID: "ses_001",
		Type:      agentapi.PartText,
		Text:      text,
	}
}

func messageIDs(list []agentapi.MessageWithParts) []string {
	ids := make([]string, len(list))
	for i, message := range list {
		ids[i] = message.Info.ID
	}
	return ids
}

func TestMergeMessageInsertKeepsOrder(t *testing.T) {
	var list []agentapi.MessageWithParts
	for _, id := range []string{"msg_003", "msg_001", "msg_002"} {
		list = mergeMessage(list, assistantMessage(id))
	}

	ids := messageIDs(list)
	if !sort.StringsAreSorted(ids) {
		t.Fatalf("messages not sorted by id: %v", ids)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 messages, got %v", ids)
	}
}

func TestMergeMessageIdempotent(t *testing.T) {
	var list []agentapi.MessageWithParts
	info := assistantMessage("msg_001")
	list = mergeMessage(list, info)
	list = mergeMessage(list, info)

	if len(list) != 1 {
		t.Fatalf("duplicate insert: %v", messageIDs(list))
	}
}

func TestMergeMessageReplacePreservesParts(t *testing.T) {
	var list []agentapi.MessageWithParts
	list = mergeMessage(list, assistantMessage("msg_001"))
	if !mergePart(list, textPart("prt_001", "msg_001", "hello")) {
		t.Fatal("mergePart failed for existing message")
	}

	updated := assistantMessage("msg_001")
	updated.Time.Completed = 1700000009000
	list = mergeMessage(list, updated)

	if len(list[0].Parts) != 1 || list[0].Parts[0].Text != "hello" {
		t.Fatalf("parts lost on info replace: %+v", list[0].Parts)
	}
	if list[0].Info.Time.Completed != 1700000009000 {
		t.Fatalf("info not replaced: %+v", list[0].Info)
	}
}

func TestMergeMessageNeverClearsCompleted(t *testing.T) {
	var list []agentapi.MessageWithParts
	completed := assistantMessage("msg_001")
	completed.Time.Completed = 1700000009000
	list = mergeMessage(list, completed)

	// A later metadata-only snapshot without the completion timestamp
	// must not put the message back in progress.
	list = mergeMessage(list, assistantMessage("msg_001"))

	if got := list[0].Info.Time.Completed; got != 1700000009000 {
		t.Fatalf("completion regressed: %d", got)
	}
}

func TestMergeMessageDropsPlaceholdersOnUserInsert(t *testing.T) {
	var list []agentapi.MessageWithParts
	list = mergeMessage(list, userMessage("msg_001"))
	list = mergeMessage(list, userMessage(optimisticPrefix+"abc"))
	list = mergeMessage(list, userMessage(optimisticPrefix+"def"))

	list = mergeMessage(list, userMessage("msg_002"))

	want := []string{"msg_001", "msg_002"}
	got := messageIDs(list)
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("placeholders not replaced: %v", got)
	}
}

func TestMergeMessageAssistantKeepsPlaceholders(t *testing.T) {
	var list []agentapi.MessageWithParts
	list = mergeMessage(list, userMessage(optimisticPrefix+"abc"))
	list = mergeMessage(list, assistantMessage("msg_002"))

	if len(list) != 2 {
		t.Fatalf("assistant insert must not drop placeholders: %v", messageIDs(list))
	}
}

func TestMergePartReplaceInPlace(t *testing.T) {
	var list []agentapi.MessageWithParts
	list = mergeMessage(list, assistantMessage("msg_001"))
	mergePart(list, textPart("prt_001", "msg_001", "first"))
	mergePart(list, textPart("prt_002", "msg_001", "second"))

	// Snapshot for an existing part replaces it without moving it.
	mergePart(list, textPart("prt_001", "msg_001", "first, revised"))

	parts := list[0].Parts
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if parts[0].ID != "prt_001" || parts[0].Text != "first, revised" {
		t.Fatalf("part not replaced in place: %+v", parts[0])
	}
	if parts[1].ID != "prt_002" {
		t.Fatalf("arrival order lost: %+v", parts)
	}
}

func TestMergePartIdempotent(t *testing.T) {
	var list []agentapi.MessageWithParts
	list = mergeMessage(list, assistantMessage("msg_001"))
	part := textPart("prt_001", "msg_001", "hello")
	mergePart(list, part)
	mergePart(list, part)

	if len(list[0].Parts) != 1 {
		t.Fatalf("duplicate part: %+v", list[0].Parts)
	}
}

func TestMergePartUnknownMessage(t *testing.T) {
	var list []agentapi.MessageWithParts
	list = mergeMessage(list, assistantMessage("msg_001"))

	if mergePart(list, textPart("prt_001", "msg_999", "orphan")) {
		t.Fatal("mergePart accepted a part with no owning message")
	}
	if len(list[0].Parts) != 0 {
		t.Fatalf("orphan part stored: %+v", list[0].Parts)
	}
}

func TestRemoveMessage(t *testing.T) {
	var list []agentapi.MessageWithParts
	list = mergeMessage(list, assistantMessage("msg_001"))
	list = mergeMessage(list, assistantMessage("msg_002"))

	list, removed := removeMessage(list, "msg_001")
	if !removed || len(list) != 1 || list[0].Info.ID != "msg_002" {
		t.Fatalf("unexpected result: removed=%v ids=%v", removed, messageIDs(list))
	}

	list, removed = removeMessage(list, "msg_999")
	if removed || len(list) != 1 {
		t.Fatalf("removing unknown id must be a no-op: removed=%v", removed)
	}
}

func TestRemovePart(t *testing.T) {
	var list []agentapi.MessageWithParts
	list = mergeMessage(list, assistantMessage("msg_001"))
	mergePart(list, textPart("prt_001", "msg_001", "a"))
	mergePart(list, textPart("prt_002", "msg_001", "b"))

	if !removePart(list, "msg_001", "prt_001") {
		t.Fatal("removePart failed for existing part")
	}
	if len(list[0].Parts) != 1 || list[0].Parts[0].ID != "prt_002" {
		t.Fatalf("unexpected parts: %+v", list[0].Parts)
	}

	if removePart(list, "msg_001", "prt_999") {
		t.Fatal("removing unknown part must be a no-op")
	}
}

func TestStampCompleted(t *testing.T) {
	var list []agentapi.MessageWithParts
	list = mergeMessage(list, userMessage("msg_001"))
	list = mergeMessage(list, assistantMessage("msg_002"))
	finished := assistantMessage("msg_003")
	finished.Time.Completed = 1700000001000
	list = mergeMessage(list, finished)

	stamped := stampCompleted(list, 1700000009000)
	if stamped != 1 {
		t.Fatalf("stamped = %d, want 1", stamped)
	}
	if got := list[1].Info.Time.Completed; got != 1700000009000 {
		t.Fatalf("assistant message not stamped: %d", got)
	}
	if list[0].Info.Time.Completed != 0 {
		t.Fatal("user message must not be stamped")
	}
	if list[2].Info.Time.Completed != 1700000001000 {
		t.Fatal("existing completion must not be overwritten")
	}

	if again := stampCompleted(list, 1700000010000); again != 0 {
		t.Fatalf("second stamp changed %d messages, want 0", again)
	}
}

func TestStreamingMessage(t *testing.T) {
	var list []agentapi.MessageWithParts
	if _, ok := StreamingMessage(list); ok {
		t.Fatal("empty conversation reported a streaming message")
	}

	list = mergeMessage(list, userMessage("msg_001"))
	finished := assistantMessage("msg_002")
	finished.Time.Completed = 1700000001000
	list = mergeMessage(list, finished)
	if _, ok := StreamingMessage(list); ok {
		t.Fatal("finished conversation reported a streaming message")
	}

	list = mergeMessage(list, assistantMessage("msg_003"))
	streaming, ok := StreamingMessage(list)
	if !ok || streaming.Info.ID != "msg_003" {
		t.Fatalf("streaming = %q, %v, want msg_003", streaming.Info.ID, ok)
	}
}

func TestStreamingMessagePicksLatestTurn(t *testing.T) {
	// Two incomplete assistant messages can coexist transiently; the
	// later turn is the live one, the earlier is a stale snapshot.
	var list []agentapi.MessageWithParts
	list = mergeMessage(list, assistantMessage("msg_001"))
	list = mergeMessage(list, assistantMessage("msg_002"))

	streaming, ok := StreamingMessage(list)
	if !ok || streaming.Info.ID != "msg_002" {
		t.Fatalf("streaming = %q, %v, want msg_002", streaming.Info.ID, ok)
	}
}

func TestIsQueued(t *testing.T) {
	var list []agentapi.MessageWithParts
	list = mergeMessage(list, userMessage("msg_001"))
	list = mergeMessage(list, assistantMessage("msg_002"))
	list = mergeMessage(list, userMessage("msg_003"))
	list = mergeMessage(list, userMessage(optimisticPrefix+"abc"))

	if IsQueued(list, "msg_001") {
		t.Error("prompt before the streaming turn reported queued")
	}
	if IsQueued(list, "msg_002") {
		t.Error("the streaming message itself reported queued")
	}
	if !IsQueued(list, "msg_003") {
		t.Error("prompt behind the streaming turn not reported queued")
	}
	if !IsQueued(list, optimisticPrefix+"abc") {
		t.Error("placeholder behind the streaming turn not reported queued")
	}
	if IsQueued(list, "msg_999") {
		t.Error("unknown id reported queued")
	}
}

func TestIsQueuedNothingStreaming(t *testing.T) {
	var list []agentapi.MessageWithParts
	list = mergeMessage(list, userMessage("msg_001"))
	finished := assistantMessage("msg_002")
	finished.Time.Completed = 1700000001000
	list = mergeMessage(list, finished)
	list = mergeMessage(list, userMessage("msg_003"))

	if IsQueued(list, "msg_003") {
		t.Error("no turn is streaming; nothing can be queued")
	}
}
