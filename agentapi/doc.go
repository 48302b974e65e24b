// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package agentapi is the wire client for a remote coding-agent server.
//
// The package provides three entry points. [Client] wraps one server
// endpoint: request/response operations for sessions, messages, todos,
// permissions, and the server's configuration document, plus
// [Client.OpenEvents], which opens the server's push channel and returns
// an [EventStream] of raw frames. [Dialer] caches one Client per endpoint
// for callers that talk to several servers. [DecodeEvent] turns a raw
// frame into a typed [Event].
//
// The server multiplexes working directories behind one endpoint; every
// operation takes the directory alongside the context, and the client
// sends it as the "directory" query parameter. Request URLs are built by
// string concatenation against the trimmed base URL.
//
// All API errors are returned as [*ServerError] with the server's error
// code, message, and the HTTP status. [IsServerError] tests for a
// specific code. Event frames are JSON objects {"type": ..., "properties":
// ...}; DecodeEvent validates the payload shape for the declared kind and
// normalizes the historical "messagev2." kind prefix to "message.". A
// frame whose kind is outside the known set decodes to [ErrUnknownKind]
// so callers can skip it without treating it as corruption.
//
// Nothing in this package retries or reconnects; channel lifecycle policy
// belongs to the mirror package.
package agentapi
