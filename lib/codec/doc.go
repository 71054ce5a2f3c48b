// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Warden's standard CBOR encoding configuration.
//
// Warden uses two serialization formats with a clear boundary:
//
//   - JSON for external interfaces: the HTTP API request/response
//     bodies and CLI output.
//   - CBOR for replicated internals: command envelopes written to the
//     consensus log, snapshot payloads, and the leader-forwarding
//     request body.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every Warden package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes — the property the replicated state machine's determinism
// rests on.
//
// For buffer-oriented operations (log entries, snapshot payloads):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (snapshot sinks):
//
//	encoder := codec.NewEncoder(w)
//	decoder := codec.NewDecoder(r)
//
// # Struct Tag Rules
//
// The struct tag on a type documents its serialization contract:
//
//   - `cbor:"N,keyasint"` tags: replicated types (command envelope,
//     snapshot records). Integer keys keep log entries compact and
//     pin the field layout independent of Go field names.
//   - `json` tags: API and CLI types. fxamacker/cbor reads `json`
//     tags as a fallback when `cbor` tags are absent, so the rare
//     type that crosses both boundaries needs only its `json` tags.
//
// Never use both `cbor` and `json` tags on the same field. The tag
// choice documents which boundary the type belongs to.
package codec
