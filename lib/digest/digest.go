// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package digest provides Warden's BLAKE3 hashing with domain
// separation. The same bytes hashed in different contexts (graph
// state, object content, snapshot payloads) produce different
// digests, preventing cross-domain collisions when digests travel
// through status output and logs.
package digest

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest.
type Hash [32]byte

// domainKey is a 32-byte key for BLAKE3 keyed hashing.
type domainKey [32]byte

// Domain separation keys. Fixed constants — changing them changes
// every digest in that domain, which breaks replica comparison across
// versions. The byte values are the ASCII encoding of the domain
// name, zero-padded to 32 bytes, so the keys stay inspectable in hex
// dumps without sacrificing any cryptographic property (BLAKE3 keyed
// mode treats the key as an opaque 32-byte value).
var (
	graphDomainKey = domainKey{
		'w', 'a', 'r', 'd', 'e', 'n', '.', 'g', 'r', 'a', 'p', 'h',
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	contentDomainKey = domainKey{
		'w', 'a', 'r', 'd', 'e', 'n', '.', 'c', 'o', 'n', 't', 'e', 'n', 't',
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	snapshotDomainKey = domainKey{
		'w', 'a', 'r', 'd', 'e', 'n', '.', 's', 'n', 'a', 'p', 's', 'h', 'o', 't',
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	policyDomainKey = domainKey{
		'w', 'a', 'r', 'd', 'e', 'n', '.', 'p', 'o', 'l', 'i', 'c', 'y',
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// Graph computes the graph-domain digest of a canonical graph dump.
// Two replicas whose graphs are identical produce identical Graph
// digests; status output exposes them for cheap convergence checks.
func Graph(data []byte) Hash {
	return keyedHash(graphDomainKey, data)
}

// Content computes the content-domain digest of an object's stored
// bytes.
func Content(data []byte) Hash {
	return keyedHash(contentDomainKey, data)
}

// Snapshot computes the snapshot-domain digest of a snapshot payload
// plaintext. Stored in the snapshot trailer and verified on restore.
func Snapshot(data []byte) Hash {
	return keyedHash(snapshotDomainKey, data)
}

// Policy computes the policy-domain digest of a delegation guard
// policy file's raw bytes. Every node logs it at startup; matching
// digests across the cluster confirm the nodes share one policy,
// which deterministic apply requires.
func Policy(data []byte) Hash {
	return keyedHash(policyDomainKey, data)
}

// String returns the lowercase hex encoding of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first 8 hex characters, enough to eyeball replica
// convergence in status output.
func (h Hash) Short() string {
	return h.String()[:8]
}

// Parse decodes a 64-character hex string into a Hash.
func Parse(s string) (Hash, error) {
	var hash Hash
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return hash, err
	}
	if len(decoded) != len(hash) {
		return hash, fmt.Errorf("digest must be %d bytes, got %d", len(hash), len(decoded))
	}
	copy(hash[:], decoded)
	return hash, nil
}

func keyedHash(key domainKey, data []byte) Hash {
	// NewKeyed requires exactly 32 bytes, which domainKey guarantees.
	// The error is only returned for wrong key length, so this cannot
	// fail with our fixed-size type.
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("digest: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}
