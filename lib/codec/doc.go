// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides agentdeck's standard CBOR encoding configuration.
//
// Agentdeck uses two serialization formats with a clear boundary:
//
//   - JSON for the wire: the agent server's HTTP API and push frames
//     are JSON, and journaled frames keep those bytes untouched.
//   - CBOR for agentdeck's own files: journal records.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every agentdeck package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes, so journals diff and dedupe cleanly.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations:
//
//	encoder := codec.NewEncoder(file)
//	decoder := codec.NewDecoder(file)
//
// Types serialized by this package carry `cbor` struct tags. Types from
// the agent server's API carry `json` tags and never pass through here.
package codec
