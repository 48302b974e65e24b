// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package mirror maintains a live local mirror of agent server state.
//
// An agent server owns the truth about sessions, messages, permission
// prompts, and task lists; it announces changes over a push channel,
// one channel per (endpoint, working directory) pair. This package
// consumes those channels and keeps an in-memory replica that consoles
// read instead of polling the server.
//
// [Manager] owns the channels. Subscriptions are refcounted by
// [ChannelKey]: the first Acquire opens the channel, the last release
// tears it down. A lost channel reconnects with exponential back-off
// (doubling per failure up to a cap, reset only by a successful open),
// and [Manager.Kick] bypasses the remaining wait when the caller has
// reason to believe the network is back, such as a resume signal.
//
// Each raw frame is handed synchronously to [Dispatcher.HandleFrame],
// which decodes it and routes the event to [Reconciler.Apply]. Frames
// that fail to decode are counted and dropped; they never take the
// channel down. The reconciler applies per-kind merge rules to the
// [Cache]: snapshot kinds replace cached entries, removal kinds delete
// them, and coarse kinds (session metadata, todo lists, compaction)
// invalidate the affected entries so the cache refetches them through
// its [Fetcher]. All merges are idempotent; a replayed frame converges
// to the same state.
//
// Two small stores hang off the event flow. [StatusStore] projects
// per-session activity (idle, busy, or retrying with a countdown) for
// session pickers. [PermissionStore] tracks permission prompts that
// are still waiting for an answer.
//
// [Engine] wires all of the above together from one [Config] and is
// what binaries construct; the individual pieces stay exported for
// tests and for callers that need a subset.
package mirror
