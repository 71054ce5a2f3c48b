// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"fmt"
	"io"

	"filippo.io/age"

	"github.com/warden-foundation/warden/lib/secret"
)

// Keypair holds an age x25519 keypair. The private key lives in a
// secret.Buffer (mmap-backed, locked against swap, excluded from core
// dumps); the public key is a plain string, safe to publish.
//
// The caller must Close the keypair when done.
type Keypair struct {
	// PrivateKey is the identity in AGE-SECRET-KEY-1... format. Never
	// log it or pass it on a command line.
	PrivateKey *secret.Buffer

	// PublicKey is the matching recipient in age1... format.
	PublicKey string
}

// Close releases the private key memory. Idempotent.
func (k *Keypair) Close() error {
	if k.PrivateKey != nil {
		return k.PrivateKey.Close()
	}
	return nil
}

// GenerateKeypair generates a new age x25519 keypair with the private
// key in protected memory.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age keypair: %w", err)
	}

	// Move the identity into mmap-backed memory immediately. The heap
	// string age hands back is GC'd; the buffer is the durable copy.
	privateKey, err := secret.NewFromBytes([]byte(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("protecting private key: %w", err)
	}

	return &Keypair{
		PrivateKey: privateKey,
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// EncryptStream encrypts src to dst for one or more recipients given
// as age public key strings (age1... format). The output is the
// binary age format; it streams, so snapshot-sized payloads never sit
// in memory whole.
//
// At least one recipient is required. For snapshot exports the
// recipients are typically the operator's archival key plus an escrow
// key.
func EncryptStream(dst io.Writer, src io.Reader, recipientKeys []string) error {
	if len(recipientKeys) == 0 {
		return fmt.Errorf("at least one recipient is required")
	}

	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	writer, err := age.Encrypt(dst, recipients...)
	if err != nil {
		return fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := io.Copy(writer, src); err != nil {
		return fmt.Errorf("encrypting: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalizing age encryption: %w", err)
	}
	return nil
}

// DecryptStream decrypts src (binary age format) to dst using the
// given private key.
//
// The private key is borrowed (parsed via String()) and NOT closed by
// this function.
func DecryptStream(dst io.Writer, src io.Reader, privateKey *secret.Buffer) error {
	// age.ParseX25519Identity requires a string; the heap copy is
	// brief and call-scoped.
	identity, err := age.ParseX25519Identity(privateKey.String())
	if err != nil {
		return fmt.Errorf("parsing private key: %w", err)
	}

	reader, err := age.Decrypt(src, identity)
	if err != nil {
		return fmt.Errorf("decrypting: %w", err)
	}
	if _, err := io.Copy(dst, reader); err != nil {
		return fmt.Errorf("reading decrypted payload: %w", err)
	}
	return nil
}

// ParsePublicKey validates an age public key string. Useful for
// checking operator-supplied recipients before starting an export.
func ParsePublicKey(publicKey string) error {
	if _, err := age.ParseX25519Recipient(publicKey); err != nil {
		return fmt.Errorf("invalid age public key: %w", err)
	}
	return nil
}

// ParsePrivateKey validates an age private key held in a
// secret.Buffer.
func ParsePrivateKey(privateKey *secret.Buffer) error {
	if _, err := age.ParseX25519Identity(privateKey.String()); err != nil {
		return fmt.Errorf("invalid age private key: %w", err)
	}
	return nil
}
