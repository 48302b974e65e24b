// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"log/slog"
	"time"

	"github.com/agentdeck/agentdeck/agentapi"
	"github.com/agentdeck/agentdeck/lib/clock"
)

// defaultRetryCountdown is assumed when a retry part does not say when
// the next attempt fires.
const defaultRetryCountdown = 5 * time.Second

// Notifier receives server installation announcements. Version is the
// installed or available version, depending on the kind.
type Notifier func(key ChannelKey, kind agentapi.EventKind, version string)

// ReconcilerConfig holds configuration for creating a Reconciler.
type ReconcilerConfig struct {
	Cache       *Cache
	Status      *StatusStore
	Permissions *PermissionStore
	// Clock supplies timestamps for idle stamping and the default
	// retry deadline. If nil, the system clock is used.
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
	// RetryCountdown is the assumed delay until the next retry attempt
	// when the server does not provide one. Zero means
	// defaultRetryCountdown.
	RetryCountdown time.Duration
	// Notifier, when non-nil, receives installation events.
	Notifier Notifier
}

// Reconciler folds decoded events into the mirrored state. Apply is
// called synchronously from the dispatcher in frame-arrival order; all
// merges are idempotent, so replaying a frame (journal replay, a
// server resending after reconnect) converges instead of corrupting.
type Reconciler struct {
	cache          *Cache
	status         *StatusStore
	permissions    *PermissionStore
	clock          clock.Clock
	logger         *slog.Logger
	retryCountdown time.Duration
	notifier       Notifier
	counters       *counters
}

// NewReconciler creates a Reconciler.
func NewReconciler(config ReconcilerConfig) *Reconciler {
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retryCountdown := config.RetryCountdown
	if retryCountdown <= 0 {
		retryCountdown = defaultRetryCountdown
	}
	return &Reconciler{
		cache:          config.Cache,
		status:         config.Status,
		permissions:    config.Permissions,
		clock:          clk,
		logger:         logger,
		retryCountdown: retryCountdown,
		notifier:       config.Notifier,
		counters:       &counters{},
	}
}

// Apply folds one event into the mirror.
func (r *Reconciler) Apply(key ChannelKey, event *agentapi.Event) {
	switch event.Kind {
	case agentapi.EventSessionUpdated:
		// Coarse signal: the snapshot in the payload is not patched in
		// field by field, the affected entries are refetched whole.
		r.cache.InvalidateSession(key, event.Session.Info.ID)
		r.cache.InvalidateSessionList(key)

	case agentapi.EventSessionDeleted:
		sessionID := event.Session.Info.ID
		r.cache.removeSession(key, sessionID)
		r.cache.InvalidateSessionList(key)
		r.status.Forget(sessionID)
		r.permissions.removeSession(sessionID)

	case agentapi.EventSessionCompacted:
		r.cache.InvalidateMessages(key, event.SessionID.SessionID)

	case agentapi.EventSessionIdle:
		sessionID := event.SessionID.SessionID
		now := r.clock.Now().UnixMilli()
		if stamped := r.cache.applyIdleStamp(key, sessionID, now); stamped > 0 {
			r.logger.Debug("stamped unfinished messages on idle",
				"session", sessionID,
				"count", stamped)
		}
		r.status.MarkIdle(sessionID)

	case agentapi.EventMessageUpdated:
		info := event.Message.Info
		r.cache.applyMessage(key, info)
		if info.Role == agentapi.RoleAssistant && info.Time.Completed == 0 {
			r.status.MarkBusy(info.SessionID)
		}

	case agentapi.EventMessagePartUpdated:
		part := event.Part.Part
		sessionID, merged := r.cache.applyPart(key, part)
		if !merged {
			// Orphan: no cached message owns this part. Distinct from a
			// malformed frame; the frame was fine, the mirror just has
			// no home for it yet.
			r.counters.orphanParts.Add(1)
			r.logger.Warn("dropping part for unknown message",
				"part", part.ID,
				"message", part.MessageID,
				"session", part.SessionID)
		}
		if part.Type == agentapi.PartRetry && sessionID != "" {
			next := part.Next
			if next == 0 {
				next = r.clock.Now().Add(r.retryCountdown).UnixMilli()
			}
			r.status.MarkRetry(sessionID, part.Attempt, part.Error, next)
		}

	case agentapi.EventMessageRemoved:
		removed := event.MessageRemoved
		r.cache.applyMessageRemoved(key, removed.SessionID, removed.MessageID)

	case agentapi.EventMessagePartRemoved:
		removed := event.PartRemoved
		r.cache.applyPartRemoved(key, removed.SessionID, removed.MessageID, removed.PartID)

	case agentapi.EventPermissionUpdated:
		r.permissions.put(*event.Permission)

	case agentapi.EventPermissionReplied:
		r.permissions.remove(event.PermissionReplied.PermissionID)

	case agentapi.EventTodoUpdated:
		// The inline todo list is advisory; refetch keeps one source of
		// truth for the region.
		r.cache.InvalidateTodos(key, event.Todo.SessionID)

	case agentapi.EventInstallationUpdated, agentapi.EventInstallationUpdateAvailable:
		if r.notifier != nil {
			r.notifier(key, event.Kind, event.Installation.Version)
		}
	}
}
