// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package agentapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// EventKind identifies what a push-channel frame describes. The set is
// closed: DecodeEvent rejects kinds not listed here with
// ErrUnknownKind so callers can skip them without treating the frame
// as malformed.
type EventKind string

const (
	// Session lifecycle.
	EventSessionUpdated   EventKind = "session.updated"
	EventSessionDeleted   EventKind = "session.deleted"
	EventSessionCompacted EventKind = "session.compacted"
	EventSessionIdle      EventKind = "session.idle"

	// Message and part streaming.
	EventMessageUpdated     EventKind = "message.updated"
	EventMessagePartUpdated EventKind = "message.part.updated"
	EventMessageRemoved     EventKind = "message.removed"
	EventMessagePartRemoved EventKind = "message.part.removed"

	// Permission prompts.
	EventPermissionUpdated EventKind = "permission.updated"
	EventPermissionReplied EventKind = "permission.replied"

	// Task list.
	EventTodoUpdated EventKind = "todo.updated"

	// Server installation.
	EventInstallationUpdated         EventKind = "installation.updated"
	EventInstallationUpdateAvailable EventKind = "installation.update-available"
)

// aliasPrefix is the event-kind prefix emitted by servers that version
// their message bus. "messagev2.part.updated" and friends carry the
// same payloads as their "message." counterparts and are normalized
// before dispatch.
const aliasPrefix = "messagev2."

// ErrUnknownKind reports an event kind outside the closed set. It is
// not a malformed frame: servers add kinds over time and consoles skip
// what they do not understand.
var ErrUnknownKind = errors.New("agentapi: unknown event kind")

// SessionPayload carries a full session snapshot.
type SessionPayload struct {
	Info Session `json:"info"`
}

// SessionIDPayload names a session without carrying its state.
type SessionIDPayload struct {
	SessionID string `json:"sessionID"`
}

// MessagePayload carries message metadata, never parts.
type MessagePayload struct {
	Info Message `json:"info"`
}

// PartPayload carries one full part snapshot. Delta, when present,
// repeats the appended text; it is informational and applying the
// snapshot alone is always sufficient.
type PartPayload struct {
	Part  Part   `json:"part"`
	Delta string `json:"delta,omitempty"`
}

// MessageRemovedPayload identifies a message withdrawn by the server.
type MessageRemovedPayload struct {
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
}

// PartRemovedPayload identifies a part withdrawn by the server.
type PartRemovedPayload struct {
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
	PartID    string `json:"partID"`
}

// PermissionRepliedPayload reports that a permission request was
// answered, possibly by another console.
type PermissionRepliedPayload struct {
	SessionID    string `json:"sessionID"`
	PermissionID string `json:"permissionID"`
	Response     string `json:"response"`
}

// TodoPayload carries a session's task list. Consumers treat it as an
// invalidation signal and refetch rather than trusting the inline
// list, which some server versions truncate.
type TodoPayload struct {
	SessionID string `json:"sessionID"`
	Todos     []Todo `json:"todos"`
}

// InstallationPayload reports the server's installed or available
// version.
type InstallationPayload struct {
	Version string `json:"version"`
}

// Event is one decoded push-channel frame. Kind selects which payload
// field is non-nil; all others are nil.
type Event struct {
	Kind EventKind

	Session           *SessionPayload           // session.updated, session.deleted
	SessionID         *SessionIDPayload         // session.compacted, session.idle
	Message           *MessagePayload           // message.updated
	Part              *PartPayload              // message.part.updated
	MessageRemoved    *MessageRemovedPayload    // message.removed
	PartRemoved       *PartRemovedPayload       // message.part.removed
	Permission        *Permission               // permission.updated
	PermissionReplied *PermissionRepliedPayload // permission.replied
	Todo              *TodoPayload              // todo.updated
	Installation      *InstallationPayload      // installation.updated, installation.update-available
}

// DecodeEvent parses one raw frame into a typed Event. Kinds with a
// "messagev2." prefix are normalized to their "message." equivalents
// first. Unknown kinds return an error matching ErrUnknownKind; every
// other error means the frame is malformed and must be dropped.
func DecodeEvent(data []byte) (*Event, error) {
	var envelope struct {
		Type       string          `json:"type"`
		Properties json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("agentapi: decoding event envelope: %w", err)
	}
	if envelope.Type == "" {
		return nil, fmt.Errorf("agentapi: event envelope has no type")
	}

	kind := EventKind(envelope.Type)
	if rest, ok := strings.CutPrefix(envelope.Type, aliasPrefix); ok {
		kind = EventKind("message." + rest)
	}

	properties := envelope.Properties
	if len(properties) == 0 {
		properties = json.RawMessage("{}")
	}

	event := &Event{Kind: kind}
	switch kind {
	case EventSessionUpdated, EventSessionDeleted:
		var payload SessionPayload
		if err := json.Unmarshal(properties, &payload); err != nil {
			return nil, fmt.Errorf("agentapi: decoding %s payload: %w", kind, err)
		}
		if payload.Info.ID == "" {
			return nil, fmt.Errorf("agentapi: %s event has no session id", kind)
		}
		event.Session = &payload

	case EventSessionCompacted, EventSessionIdle:
		var payload SessionIDPayload
		if err := json.Unmarshal(properties, &payload); err != nil {
			return nil, fmt.Errorf("agentapi: decoding %s payload: %w", kind, err)
		}
		if payload.SessionID == "" {
			return nil, fmt.Errorf("agentapi: %s event has no session id", kind)
		}
		event.SessionID = &payload

	case EventMessageUpdated:
		var payload MessagePayload
		if err := json.Unmarshal(properties, &payload); err != nil {
			return nil, fmt.Errorf("agentapi: decoding %s payload: %w", kind, err)
		}
		if payload.Info.ID == "" || payload.Info.SessionID == "" {
			return nil, fmt.Errorf("agentapi: %s event has incomplete message identity", kind)
		}
		event.Message = &payload

	case EventMessagePartUpdated:
		var payload PartPayload
		if err := json.Unmarshal(properties, &payload); err != nil {
			return nil, fmt.Errorf("agentapi: decoding %s payload: %w", kind, err)
		}
		if payload.Part.ID == "" || payload.Part.MessageID == "" {
			return nil, fmt.Errorf("agentapi: %s event has incomplete part identity", kind)
		}
		event.Part = &payload

	case EventMessageRemoved:
		var payload MessageRemovedPayload
		if err := json.Unmarshal(properties, &payload); err != nil {
			return nil, fmt.Errorf("agentapi: decoding %s payload: %w", kind, err)
		}
		if payload.SessionID == "" || payload.MessageID == "" {
			return nil, fmt.Errorf("agentapi: %s event has incomplete message identity", kind)
		}
		event.MessageRemoved = &payload

	case EventMessagePartRemoved:
		var payload PartRemovedPayload
		if err := json.Unmarshal(properties, &payload); err != nil {
			return nil, fmt.Errorf("agentapi: decoding %s payload: %w", kind, err)
		}
		if payload.SessionID == "" || payload.MessageID == "" || payload.PartID == "" {
			return nil, fmt.Errorf("agentapi: %s event has incomplete part identity", kind)
		}
		event.PartRemoved = &payload

	case EventPermissionUpdated:
		var payload Permission
		if err := json.Unmarshal(properties, &payload); err != nil {
			return nil, fmt.Errorf("agentapi: decoding %s payload: %w", kind, err)
		}
		if payload.ID == "" || payload.SessionID == "" {
			return nil, fmt.Errorf("agentapi: %s event has incomplete permission identity", kind)
		}
		event.Permission = &payload

	case EventPermissionReplied:
		var payload PermissionRepliedPayload
		if err := json.Unmarshal(properties, &payload); err != nil {
			return nil, fmt.Errorf("agentapi: decoding %s payload: %w", kind, err)
		}
		if payload.SessionID == "" || payload.PermissionID == "" {
			return nil, fmt.Errorf("agentapi: %s event has incomplete permission identity", kind)
		}
		event.PermissionReplied = &payload

	case EventTodoUpdated:
		var payload TodoPayload
		if err := json.Unmarshal(properties, &payload); err != nil {
			return nil, fmt.Errorf("agentapi: decoding %s payload: %w", kind, err)
		}
		if payload.SessionID == "" {
			return nil, fmt.Errorf("agentapi: %s event has no session id", kind)
		}
		event.Todo = &payload

	case EventInstallationUpdated, EventInstallationUpdateAvailable:
		var payload InstallationPayload
		if err := json.Unmarshal(properties, &payload); err != nil {
			return nil, fmt.Errorf("agentapi: decoding %s payload: %w", kind, err)
		}
		event.Installation = &payload

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, envelope.Type)
	}
	return event, nil
}
