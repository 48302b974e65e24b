// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts the time operations the mirror schedules
// against, so tests can drive timers deterministically. Production
// code injects Real(); tests inject Fake() and move it with Advance.
package clock

import "time"

// Clock is the narrow time surface used by reconnect loops and
// timestamp stamping. Code that waits on time should accept a Clock
// instead of calling the time package directly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d
	// has elapsed. Equivalent to time.After. If d <= 0 the channel
	// receives immediately.
	After(d time.Duration) <-chan time.Time
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
