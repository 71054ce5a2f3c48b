// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"strings"
	"testing"
)

func TestGenerateKeypair(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer keypair.Close()

	if !strings.HasPrefix(keypair.PublicKey, "age1") {
		t.Errorf("public key %q does not have age1 prefix", keypair.PublicKey)
	}
	if !strings.HasPrefix(keypair.PrivateKey.String(), "AGE-SECRET-KEY-1") {
		t.Error("private key does not have AGE-SECRET-KEY-1 prefix")
	}

	if err := ParsePublicKey(keypair.PublicKey); err != nil {
		t.Errorf("generated public key fails validation: %v", err)
	}
	if err := ParsePrivateKey(keypair.PrivateKey); err != nil {
		t.Errorf("generated private key fails validation: %v", err)
	}
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	defer keypair.Close()

	plaintext := []byte("WDNSNAP1 pretend snapshot bytes \x00\x01\xfe")

	var ciphertext bytes.Buffer
	if err := EncryptStream(&ciphertext, bytes.NewReader(plaintext), []string{keypair.PublicKey}); err != nil {
		t.Fatalf("EncryptStream: %v", err)
	}
	if bytes.Contains(ciphertext.Bytes(), []byte("pretend snapshot")) {
		t.Error("ciphertext contains plaintext")
	}

	var decrypted bytes.Buffer
	if err := DecryptStream(&decrypted, &ciphertext, keypair.PrivateKey); err != nil {
		t.Fatalf("DecryptStream: %v", err)
	}
	if !bytes.Equal(decrypted.Bytes(), plaintext) {
		t.Error("roundtrip altered the payload")
	}
}

func TestEncryptToMultipleRecipients(t *testing.T) {
	operator, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	defer operator.Close()
	escrow, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	defer escrow.Close()

	plaintext := []byte("shared archive")
	var ciphertext bytes.Buffer
	err = EncryptStream(&ciphertext, bytes.NewReader(plaintext),
		[]string{operator.PublicKey, escrow.PublicKey})
	if err != nil {
		t.Fatalf("EncryptStream: %v", err)
	}
	encrypted := ciphertext.Bytes()

	// Either identity decrypts.
	for name, keypair := range map[string]*Keypair{"operator": operator, "escrow": escrow} {
		var decrypted bytes.Buffer
		if err := DecryptStream(&decrypted, bytes.NewReader(encrypted), keypair.PrivateKey); err != nil {
			t.Errorf("%s identity failed to decrypt: %v", name, err)
			continue
		}
		if !bytes.Equal(decrypted.Bytes(), plaintext) {
			t.Errorf("%s identity decrypted wrong payload", name)
		}
	}
}

func TestDecryptWithWrongKey(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	defer keypair.Close()
	other, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	defer other.Close()

	var ciphertext bytes.Buffer
	if err := EncryptStream(&ciphertext, strings.NewReader("secret"), []string{keypair.PublicKey}); err != nil {
		t.Fatal(err)
	}

	var decrypted bytes.Buffer
	if err := DecryptStream(&decrypted, &ciphertext, other.PrivateKey); err == nil {
		t.Error("DecryptStream with non-recipient key succeeded")
	}
}

func TestEncryptRequiresRecipients(t *testing.T) {
	var out bytes.Buffer
	if err := EncryptStream(&out, strings.NewReader("x"), nil); err == nil {
		t.Error("EncryptStream with no recipients succeeded")
	}
}

func TestParsePublicKeyRejectsGarbage(t *testing.T) {
	for _, key := range []string{"", "age1", "ssh-ed25519 AAAA", "AGE-SECRET-KEY-1XYZ"} {
		if err := ParsePublicKey(key); err == nil {
			t.Errorf("ParsePublicKey(%q) succeeded", key)
		}
	}
}
