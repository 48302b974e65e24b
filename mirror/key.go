// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

// ChannelKey identifies one push channel: an agent server endpoint
// plus the working directory whose events it carries. Two consoles
// watching the same key share one connection.
type ChannelKey struct {
	// Endpoint is the server base URL, e.g. "http://127.0.0.1:4096".
	Endpoint string
	// Directory is the working directory served, e.g. "/home/alice/project".
	Directory string
}

func (k ChannelKey) String() string {
	return k.Endpoint + " " + k.Directory
}
