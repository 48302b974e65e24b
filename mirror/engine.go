// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/agentdeck/agentdeck/agentapi"
	"github.com/agentdeck/agentdeck/lib/clock"
)

// Config holds configuration for creating an Engine.
type Config struct {
	// Transport opens push channels. Required.
	Transport Transport
	// Fetcher loads state after invalidations. If nil, invalidated
	// entries stay empty until events repopulate them.
	Fetcher Fetcher
	// Clock drives reconnect waits and timestamps. If nil, the system
	// clock is used.
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger

	// InitialBackoff and MaxBackoff shape the reconnect delay. Zero
	// means 1s and 30s.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// RetryCountdown is the assumed retry delay when the server omits
	// one. Zero means 5s.
	RetryCountdown time.Duration

	// StateFunc, when non-nil, observes channel state transitions.
	StateFunc StateFunc
	// OnStatus, when non-nil, observes session status changes.
	OnStatus func(sessionID string, status Status)
	// OnPermission, when non-nil, observes permission prompts
	// appearing (pending=true) and resolving (pending=false).
	OnPermission func(permission agentapi.Permission, pending bool)
	// Notifier, when non-nil, receives installation events.
	Notifier Notifier
	// FrameTap, when non-nil, sees every raw frame before it is
	// decoded, malformed ones included. Used for journaling exactly
	// what came off the wire. Called synchronously from channel
	// goroutines; keep it fast.
	FrameTap func(key ChannelKey, data []byte)
}

// Engine assembles the mirror: a connection manager feeding a
// dispatcher, a reconciler folding events into the cache, and the
// status and permission stores. Binaries construct one Engine and read
// from its parts.
type Engine struct {
	cache       *Cache
	status      *StatusStore
	permissions *PermissionStore
	dispatcher  *Dispatcher
	manager     *Manager
}

// New creates an Engine.
func New(config Config) (*Engine, error) {
	if config.Transport == nil {
		return nil, fmt.Errorf("mirror: Transport is required")
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cache := NewCache(CacheConfig{
		Fetcher: config.Fetcher,
		Clock:   clk,
		Logger:  logger,
	})
	status := NewStatusStore(config.OnStatus)
	permissions := NewPermissionStore(config.OnPermission)
	reconciler := NewReconciler(ReconcilerConfig{
		Cache:          cache,
		Status:         status,
		Permissions:    permissions,
		Clock:          clk,
		Logger:         logger,
		RetryCountdown: config.RetryCountdown,
		Notifier:       config.Notifier,
	})
	dispatcher := NewDispatcher(reconciler, logger)

	frame := FrameFunc(dispatcher.HandleFrame)
	if config.FrameTap != nil {
		tap := config.FrameTap
		dispatch := frame
		frame = func(key ChannelKey, data []byte) {
			tap(key, data)
			dispatch(key, data)
		}
	}

	manager := NewManager(ManagerConfig{
		Transport:      config.Transport,
		Frame:          frame,
		StateFunc:      config.StateFunc,
		Clock:          clk,
		Logger:         logger,
		InitialBackoff: config.InitialBackoff,
		MaxBackoff:     config.MaxBackoff,
	})

	return &Engine{
		cache:       cache,
		status:      status,
		permissions: permissions,
		dispatcher:  dispatcher,
		manager:     manager,
	}, nil
}

// Follow subscribes to a channel and starts mirroring it. The returned
// release function drops the subscription; the last release tears the
// connection down.
func (e *Engine) Follow(key ChannelKey) func() {
	return e.manager.Acquire(key)
}

// Cache returns the mirrored state.
func (e *Engine) Cache() *Cache { return e.cache }

// Status returns the session status projection.
func (e *Engine) Status() *StatusStore { return e.status }

// Permissions returns the pending permission prompts.
func (e *Engine) Permissions() *PermissionStore { return e.permissions }

// Stats returns a snapshot of the drop counters.
func (e *Engine) Stats() Stats { return e.dispatcher.Stats() }

// State reports a channel's connection state.
func (e *Engine) State(key ChannelKey) (State, error) {
	return e.manager.State(key)
}

// Kick asks a disconnected channel to retry now.
func (e *Engine) Kick(key ChannelKey) { e.manager.Kick(key) }

// KickAll kicks every channel.
func (e *Engine) KickAll() { e.manager.KickAll() }

// Close tears down every channel and waits for them.
func (e *Engine) Close() { e.manager.Close() }
