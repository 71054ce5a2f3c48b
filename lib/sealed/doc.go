// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed provides age encryption for snapshot exports. It
// wraps filippo.io/age for the operations the CLI needs: generate
// x25519 keypairs, encrypt a stream to multiple recipients, decrypt a
// stream with a private key.
//
// Snapshot files leave the trust boundary when exported for off-site
// archival; age gives them recipient-bound encryption with a standard
// tool-compatible format, independent of the cluster's own at-rest
// sealing (lib/snapshot seals with a symmetric cluster key, exports
// are asymmetric so the archival key never touches the nodes).
//
// Key exports:
//
//   - [GenerateKeypair] -- new age x25519 keypair in a secret.Buffer
//   - [EncryptStream] / [DecryptStream] -- streaming file encryption
//   - [ParsePublicKey] / [ParsePrivateKey] -- key validation
//
// Private keys are handled as [secret.Buffer] values (locked against
// swap, excluded from core dumps, zeroed on Close).
//
// Depends on lib/secret for secure memory allocation.
package sealed
