// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/warden-foundation/warden/lib/secret"
)

// KeySize is the size in bytes of the derived sealing key.
const KeySize = 32

// sealedVersion is the version byte prepended to sealed payloads.
// It participates in the AAD, so tampering with it fails
// authentication.
const sealedVersion byte = 0x01

// sealedOverhead is the byte overhead a sealed payload adds:
// 1 (version) + 24 (XChaCha20-Poly1305 nonce) + 16 (Poly1305 tag).
const sealedOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// hkdfInfoSeal is the HKDF info parameter for the sealing key
// derivation. Changing it invalidates every sealed snapshot.
var hkdfInfoSeal = []byte("warden.snapshot.seal.v1")

// DeriveSealKey derives the snapshot sealing key from operator key
// material via HKDF-SHA256. The material is whatever the key file
// holds, raw random bytes or a passphrase; the extract step
// normalizes either into a uniform key, and the info string keeps
// this derivation separate from any future use of the same file.
//
// keyMaterial is borrowed (read via Bytes) and NOT closed. The
// returned buffer is owned by the caller and must be closed.
func DeriveSealKey(keyMaterial *secret.Buffer) (*secret.Buffer, error) {
	reader := hkdf.New(sha256.New, keyMaterial.Bytes(), nil, hkdfInfoSeal)
	derived := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, derived); err != nil {
		secret.Zero(derived)
		return nil, fmt.Errorf("HKDF key derivation failed: %w", err)
	}
	// NewFromBytes copies into mmap-backed memory and zeros derived.
	return secret.NewFromBytes(derived)
}

// sealBlob encrypts plaintext with XChaCha20-Poly1305:
//
//	[Version: 1 byte (0x01)] [Nonce: 24 bytes (random)] [Ciphertext+Tag]
//
// The version byte and the snapshot file header are the additional
// authenticated data, binding the ciphertext to the header's sizes
// and flags so neither can be swapped independently.
//
// sealKey is borrowed and NOT closed. It must be exactly KeySize
// bytes (the output of DeriveSealKey).
func sealBlob(plaintext []byte, sealKey *secret.Buffer, header []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(sealKey.Bytes())
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating random nonce: %w", err)
	}

	output := make([]byte, 1+chacha20poly1305.NonceSizeX, 1+chacha20poly1305.NonceSizeX+len(plaintext)+aead.Overhead())
	output[0] = sealedVersion
	copy(output[1:], nonce[:])

	return aead.Seal(output, nonce[:], plaintext, buildAAD(sealedVersion, header)), nil
}

// openBlob decrypts a blob produced by sealBlob, authenticating it
// against the same header bytes.
//
// sealKey is borrowed and NOT closed.
func openBlob(blob []byte, sealKey *secret.Buffer, header []byte) ([]byte, error) {
	if len(blob) < sealedOverhead {
		return nil, fmt.Errorf("sealed payload is %d bytes, minimum is %d (version + nonce + tag)",
			len(blob), sealedOverhead)
	}

	version := blob[0]
	if version != sealedVersion {
		return nil, fmt.Errorf("sealed payload version %d is not supported (expected %d)",
			version, sealedVersion)
	}

	nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]
	ciphertext := blob[1+chacha20poly1305.NonceSizeX:]

	aead, err := chacha20poly1305.NewX(sealKey.Bytes())
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, buildAAD(version, header))
	if err != nil {
		return nil, fmt.Errorf("authenticated decryption failed (wrong key or tampered snapshot): %w", err)
	}
	return plaintext, nil
}

func buildAAD(version byte, header []byte) []byte {
	aad := make([]byte, 1+len(header))
	aad[0] = version
	copy(aad[1:], header)
	return aad
}
