// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package snapshot encodes and decodes point-in-time captures of the
// replicated state: the rights graph, the object contents, and the
// log position they correspond to.
//
// The wire format is a fixed header, a payload, and a checksum:
//
//	[8]  magic "WDNSNAP1"
//	[1]  format version (0x01)
//	[1]  compression tag (0 = none, 1 = lz4, 2 = zstd)
//	[1]  flags (bit 0: sealed)
//	[1]  reserved (0x00)
//	[8]  uncompressed payload length, big endian
//	[8]  stored payload length, big endian
//	[N]  payload
//	[32] BLAKE3 keyed checksum of the stored payload
//
// The payload is deterministic CBOR (lib/codec), compressed with the
// tagged codec. When the sealed flag is set the compressed payload is
// additionally encrypted with XChaCha20-Poly1305 under a key derived
// by [DeriveSealKey]; the header bytes are the AAD, so sizes and
// flags cannot be altered without failing authentication.
//
// The checksum covers the payload exactly as stored (sealed bytes
// when sealed). It detects disk corruption without a key; it is not
// an authenticator, which is the AEAD's job.
//
// [Encode] and [Decode] round-trip a [State]. [ReadHeader] parses
// only the prefix; [Inspect] additionally verifies the checksum.
// Both work without a sealing key.
package snapshot
