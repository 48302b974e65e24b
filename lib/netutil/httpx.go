// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides HTTP I/O utilities shared by agentdeck's
// server clients.
//
// ReadResponse bounds response body reads at MaxResponseSize so a
// misbehaving server cannot exhaust memory. It is for JSON API
// responses, not for the push channel (SSE), which is read
// incrementally.
package netutil

import "io"

// MaxResponseSize is the bound on JSON API response body reads: 64 MB.
// Legitimate responses (session lists, message histories) are orders of
// magnitude smaller; the limit only exists to stop a pathological
// response from exhausting memory.
const MaxResponseSize int64 = 64 << 20

// ReadResponse reads a JSON API response body up to MaxResponseSize
// bytes. Use instead of io.ReadAll when reading HTTP response bodies.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}
