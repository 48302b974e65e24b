// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package agentapi

// All timestamps in this package are Unix milliseconds as assigned by
// the agent server. Entity ids are opaque strings; the server assigns
// them in lexically ascending order per session, and the console orders
// by plain byte-wise comparison without parsing them.

// Session is one agent conversation on the server.
type Session struct {
	// ID is the server-assigned session id.
	ID string `json:"id"`
	// Title is the human-readable session title.
	Title string `json:"title"`
	// ParentID links a child session (e.g. a subtask) to its parent.
	ParentID string `json:"parentID,omitempty"`
	// Time records creation and last mutation.
	Time SessionTime `json:"time"`
	// Revert is present while the session is rewound to an earlier
	// message; the server replays history from there on the next turn.
	Revert *SessionRevert `json:"revert,omitempty"`
}

// SessionTime holds session timestamps.
type SessionTime struct {
	Created int64 `json:"created"`
	Updated int64 `json:"updated"`
}

// SessionRevert marks the message a reverted session is rewound to.
type SessionRevert struct {
	MessageID string `json:"messageID"`
}

// Role identifies the author of a message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn. An assistant message with a zero
// Completed time is still streaming.
type Message struct {
	// ID is the server-assigned message id, unique within the session.
	ID string `json:"id"`
	// SessionID is the owning session.
	SessionID string `json:"sessionID"`
	// Role is who authored the message.
	Role Role `json:"role"`
	// Time records creation and, once the turn finishes, completion.
	Time MessageTime `json:"time"`
}

// MessageTime holds message timestamps. Completed is zero while an
// assistant turn is still streaming.
type MessageTime struct {
	Created   int64 `json:"created"`
	Completed int64 `json:"completed,omitempty"`
}

// PartType identifies the shape of a message part. The set is open:
// the server adds part types without protocol changes, and unknown
// types are cached and displayed opaquely.
type PartType string

// Part types the console interprets.
const (
	PartText  PartType = "text"
	PartTool  PartType = "tool"
	PartRetry PartType = "retry"
)

// Part is one chunk of message content. Fields beyond ID, MessageID,
// and Type are populated by type: Text for text parts, Tool/CallID for
// tool parts, Attempt/Error/Next for retry parts.
type Part struct {
	// ID is the server-assigned part id, unique within the message.
	ID string `json:"id"`
	// MessageID is the owning message.
	MessageID string `json:"messageID"`
	// SessionID is the owning session. Older servers omit it.
	SessionID string `json:"sessionID,omitempty"`
	// Type selects which of the remaining fields are meaningful.
	Type PartType `json:"type"`

	// Text is the accumulated text for text parts. Updates carry the
	// full text so far, not a delta.
	Text string `json:"text,omitempty"`

	// Tool is the tool name for tool parts.
	Tool string `json:"tool,omitempty"`
	// CallID correlates a tool part with its permission request.
	CallID string `json:"callID,omitempty"`

	// Attempt is the provider retry attempt number for retry parts.
	Attempt int `json:"attempt,omitempty"`
	// Error is the provider error that triggered the retry.
	Error string `json:"error,omitempty"`
	// Next is the server's resume timestamp for the retry, when it
	// sends one. Zero means the server gave no estimate.
	Next int64 `json:"next,omitempty"`
}

// MessageWithParts pairs a message with its accumulated parts. This is
// the unit the console caches and renders.
type MessageWithParts struct {
	Info  Message `json:"info"`
	Parts []Part  `json:"parts"`
}

// Permission is a pending approval request: the agent wants to run a
// tool and the server is holding the call until a client replies.
type Permission struct {
	// ID is the permission request id.
	ID string `json:"id"`
	// SessionID is the session the request belongs to.
	SessionID string `json:"sessionID"`
	// MessageID is the message whose tool call is held, when known.
	MessageID string `json:"messageID,omitempty"`
	// CallID is the held tool call, when known.
	CallID string `json:"callID,omitempty"`
	// Title is the human-readable description of what is being asked.
	Title string `json:"title"`
	// Metadata carries tool-specific detail for display.
	Metadata map[string]any `json:"metadata,omitempty"`
	// Time records when the request was raised.
	Time PermissionTime `json:"time"`
}

// PermissionTime holds permission timestamps.
type PermissionTime struct {
	Created int64 `json:"created"`
}

// Permission reply values accepted by the server.
const (
	PermissionOnce   = "once"
	PermissionAlways = "always"
	PermissionReject = "reject"
)

// Todo is one entry in a session's task list.
type Todo struct {
	// Content is the task description.
	Content string `json:"content"`
	// Status is pending, in_progress, or completed.
	Status string `json:"status"`
}

// CreateSessionRequest creates a new session.
type CreateSessionRequest struct {
	// Title is optional; the server generates one from the first
	// prompt when empty.
	Title string `json:"title,omitempty"`
	// ParentID creates the session as a child of an existing one.
	ParentID string `json:"parentID,omitempty"`
}

// InputPart is one part of an outgoing prompt.
type InputPart struct {
	Type PartType `json:"type"`
	Text string   `json:"text,omitempty"`
}

// SendMessageRequest submits a prompt to a session. The server assigns
// the message id; confirmation arrives on the push channel as a
// message.updated event.
type SendMessageRequest struct {
	Parts []InputPart `json:"parts"`
}

// TextMessage builds a SendMessageRequest with a single text part.
func TextMessage(text string) SendMessageRequest {
	return SendMessageRequest{Parts: []InputPart{{Type: PartText, Text: text}}}
}
