// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"sort"
	"strings"

	"github.com/agentdeck/agentdeck/agentapi"
)

// optimisticPrefix marks locally synthesized placeholder messages. The
// prefix sorts after real message ids, so placeholders stay at the
// bottom of the conversation until the confirmed message replaces them.
const optimisticPrefix = "optimistic_"

// The functions below are the merge cores the reconciler runs under
// the cache lock. They operate on one session's message slice, which
// is always kept sorted by message id ascending; server ids are
// time-ordered, so id order is conversation order. All of them are
// idempotent: applying the same change twice converges to the same
// slice.

// findMessage locates id in the sorted slice. When absent, the
// returned index is the insertion point.
func findMessage(list []agentapi.MessageWithParts, id string) (int, bool) {
	i := sort.Search(len(list), func(i int) bool {
		return list[i].Info.ID >= id
	})
	if i < len(list) && list[i].Info.ID == id {
		return i, true
	}
	return i, false
}

// mergeMessage inserts or updates one message's metadata.
//
// A known id replaces Info in place and keeps the parts already
// accumulated for it. A completion timestamp never regresses: if the
// incoming snapshot would clear an existing Completed, the existing
// value is kept (servers emit metadata-only updates, for example title
// summaries, after a message has finished).
//
// An unknown id is inserted at its sorted position. When the new
// message is from the user, any optimistic placeholders are dropped
// first: the confirmed message is the server's version of what the
// placeholder anticipated.
func mergeMessage(list []agentapi.MessageWithParts, info agentapi.Message) []agentapi.MessageWithParts {
	if i, ok := findMessage(list, info.ID); ok {
		if info.Time.Completed == 0 {
			info.Time.Completed = list[i].Info.Time.Completed
		}
		list[i].Info = info
		return list
	}

	if info.Role == agentapi.RoleUser {
		list = dropOptimistic(list)
	}

	i, _ := findMessage(list, info.ID)
	list = append(list, agentapi.MessageWithParts{})
	copy(list[i+1:], list[i:])
	list[i] = agentapi.MessageWithParts{Info: info}
	return list
}

// dropOptimistic removes placeholder messages in place.
func dropOptimistic(list []agentapi.MessageWithParts) []agentapi.MessageWithParts {
	kept := list[:0]
	for _, message := range list {
		if !strings.HasPrefix(message.Info.ID, optimisticPrefix) {
			kept = append(kept, message)
		}
	}
	return kept
}

// mergePart applies one part snapshot to its owning message. A part id
// already present is replaced in place, keeping its position; a new id
// is appended, so parts stay in arrival order. The result reports
// whether the owning message exists; when it does not, the part must
// be dropped (no placeholder messages are synthesized for parts).
func mergePart(list []agentapi.MessageWithParts, part agentapi.Part) bool {
	i, ok := findMessage(list, part.MessageID)
	if !ok {
		return false
	}
	message := &list[i]
	for j := range message.Parts {
		if message.Parts[j].ID == part.ID {
			message.Parts[j] = part
			return true
		}
	}
	message.Parts = append(message.Parts, part)
	return true
}

// removeMessage deletes id from the slice. Unknown ids are a no-op.
func removeMessage(list []agentapi.MessageWithParts, id string) ([]agentapi.MessageWithParts, bool) {
	i, ok := findMessage(list, id)
	if !ok {
		return list, false
	}
	return append(list[:i], list[i+1:]...), true
}

// removePart deletes partID from the message messageID. Unknown ids
// are a no-op.
func removePart(list []agentapi.MessageWithParts, messageID, partID string) bool {
	i, ok := findMessage(list, messageID)
	if !ok {
		return false
	}
	message := &list[i]
	for j := range message.Parts {
		if message.Parts[j].ID == partID {
			message.Parts = append(message.Parts[:j], message.Parts[j+1:]...)
			return true
		}
	}
	return false
}

// stampCompleted marks every assistant message lacking a completion
// timestamp as completed at now (unix milliseconds). Servers emit the
// idle signal when a turn ends, but the final message snapshots can
// race it; stamping keeps the mirror from showing a finished session
// with a message still "in progress". Returns how many messages were
// stamped.
func stampCompleted(list []agentapi.MessageWithParts, now int64) int {
	stamped := 0
	for i := range list {
		info := &list[i].Info
		if info.Role == agentapi.RoleAssistant && info.Time.Completed == 0 {
			info.Time.Completed = now
			stamped++
		}
	}
	return stamped
}

// StreamingMessage returns the assistant message currently producing
// output: the last one in the conversation without a completion
// timestamp. Earlier incomplete assistant messages are stale snapshots
// superseded by the later turn.
func StreamingMessage(list []agentapi.MessageWithParts) (agentapi.MessageWithParts, bool) {
	for i := len(list) - 1; i >= 0; i-- {
		info := list[i].Info
		if info.Role == agentapi.RoleAssistant && info.Time.Completed == 0 {
			return list[i], true
		}
	}
	return agentapi.MessageWithParts{}, false
}

// IsQueued reports whether the message with the given id is a user
// prompt waiting for the streaming turn to finish: a user message
// whose id sorts after the streaming assistant message. Queued is a
// derived reading of the conversation, not cached state; nothing is
// queued when nothing streams.
func IsQueued(list []agentapi.MessageWithParts, id string) bool {
	streaming, ok := StreamingMessage(list)
	if !ok {
		return false
	}
	i, ok := findMessage(list, id)
	if !ok || list[i].Info.Role != agentapi.RoleUser {
		return false
	}
	return list[i].Info.ID > streaming.Info.ID
}
