// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"testing"
)

func TestNewZeroFilled(t *testing.T) {
	buffer, err := New(64)
	if err != nil {
		t.Fatalf("New(64): %v", err)
	}
	defer buffer.Close()

	if buffer.Len() != 64 {
		t.Errorf("Len() = %d, want 64", buffer.Len())
	}
	for index, value := range buffer.Bytes() {
		if value != 0 {
			t.Fatalf("byte %d = %d, want zero-initialized memory", index, value)
		}
	}
}

func TestNewRejectsNonPositiveSize(t *testing.T) {
	for _, size := range []int{0, -1, -64} {
		if _, err := New(size); err == nil {
			t.Errorf("New(%d) succeeded, want error", size)
		}
	}
}

func TestNewFromBytesZerosSource(t *testing.T) {
	source := []byte("snapshot-sealing-key-material")
	original := string(source)

	buffer, err := NewFromBytes(source)
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer buffer.Close()

	if got := buffer.String(); got != original {
		t.Errorf("String() = %q, want %q", got, original)
	}
	for index, value := range source {
		if value != 0 {
			t.Fatalf("source byte %d = %d, want zeroed after copy", index, value)
		}
	}
}

func TestNewFromBytesRejectsEmpty(t *testing.T) {
	if _, err := NewFromBytes(nil); err == nil {
		t.Error("NewFromBytes(nil) succeeded, want error")
	}
}

func TestBufferWriteThrough(t *testing.T) {
	buffer, err := New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer buffer.Close()

	copy(buffer.Bytes(), []byte("0123456789abcdef"))
	if got := buffer.String(); got != "0123456789abcdef" {
		t.Errorf("String() = %q after writing through Bytes()", got)
	}
}

func TestCloseReleasesAndIsIdempotent(t *testing.T) {
	buffer, err := New(32)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	copy(buffer.Bytes(), []byte("will be wiped"))

	if err := buffer.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if buffer.region != nil {
		t.Error("region not released after Close")
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestAccessAfterClosePanics(t *testing.T) {
	for name, access := range map[string]func(*Buffer){
		"Bytes":  func(b *Buffer) { b.Bytes() },
		"String": func(b *Buffer) { _ = b.String() },
	} {
		t.Run(name, func(t *testing.T) {
			buffer, err := New(8)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			buffer.Close()

			defer func() {
				if recover() == nil {
					t.Errorf("%s did not panic after Close", name)
				}
			}()
			access(buffer)
		})
	}
}

func TestZero(t *testing.T) {
	data := []byte{1, 2, 3, 4}
	Zero(data)
	for index, value := range data {
		if value != 0 {
			t.Errorf("byte %d = %d after Zero", index, value)
		}
	}
}
