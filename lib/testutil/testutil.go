// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for agentdeck packages.
//
// [Receive], [Closed], and [Eventually] encapsulate the timeout safety
// valve pattern (select or poll with a wall-clock fallback) so that
// individual tests do not need direct time.After calls. Engine code
// under test never sees these timeouts; they exist only to turn a hang
// into a test failure.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since a test that cannot observe its subject is not recoverable.
package testutil

import (
	"testing"
	"time"
)

// Wait is the budget the helpers allow before declaring a hang. Far
// larger than any real delay in the tests; it only bounds failures.
const Wait = 5 * time.Second

// Receive reads one value from ch, or fails the test after the wait
// budget expires or if the channel closes without a value.
func Receive[T any](t testing.TB, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed while waiting for %s", what)
		}
		return v
	case <-time.After(Wait):
		t.Fatalf("timed out after %v waiting for %s", Wait, what)
	}
	panic("unreachable")
}

// Closed waits for ch to close (or deliver a value), or fails the test
// after the wait budget expires. Use it for done channels that signal
// by closing.
func Closed(t testing.TB, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(Wait):
		t.Fatalf("timed out after %v waiting for %s", Wait, what)
	}
}

// Eventually polls cond until it returns true, failing the test if the
// wait budget expires first. Use it to observe state written by another
// goroutine (asynchronous refetches, fire-and-forget notifications).
func Eventually(t testing.TB, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(Wait)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out after %v waiting for %s", Wait, what)
}
