// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package rights

import (
	"reflect"
	"testing"
)

func TestParseRight(t *testing.T) {
	tests := []struct {
		name string
		want Right
	}{
		{"read", RightRead},
		{"write", RightWrite},
		{"grant", RightGrant},
		{"take", RightTake},
		{"own", RightOwn},
	}
	for _, tt := range tests {
		got, err := ParseRight(tt.name)
		if err != nil {
			t.Errorf("ParseRight(%q): %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRight(%q) = %v, want %v", tt.name, got, tt.want)
		}
		if got.String() != tt.name {
			t.Errorf("%v.String() = %q, want %q", got, got.String(), tt.name)
		}
	}
}

func TestParseRightInvalid(t *testing.T) {
	for _, name := range []string{"", "execute", "READ", "grant "} {
		if _, err := ParseRight(name); err == nil {
			t.Errorf("ParseRight(%q) accepted an invalid name", name)
		}
	}
}

func TestRightSetOperations(t *testing.T) {
	var set RightSet
	if !set.Empty() {
		t.Error("zero RightSet is not empty")
	}

	set = set.With(RightRead).With(RightOwn)
	if !set.Has(RightRead) || !set.Has(RightOwn) || set.Has(RightWrite) {
		t.Errorf("set = %s after With(read).With(own)", set)
	}

	set = set.Without(RightRead)
	if set.Has(RightRead) {
		t.Errorf("set = %s still has read after Without", set)
	}
	set = set.Without(RightOwn)
	if !set.Empty() {
		t.Errorf("set = %s, want empty", set)
	}
}

func TestRightSetCanonicalStrings(t *testing.T) {
	// Strings() must order by bit position regardless of insertion
	// order, since dumps and digests depend on it.
	set := RightSet(0).With(RightOwn).With(RightRead).With(RightGrant)
	want := []string{"read", "grant", "own"}
	if got := set.Strings(); !reflect.DeepEqual(got, want) {
		t.Errorf("Strings() = %v, want %v", got, want)
	}
	if got := set.String(); got != "read+grant+own" {
		t.Errorf("String() = %q, want %q", got, "read+grant+own")
	}
	if got := RightSet(0).String(); got != "none" {
		t.Errorf("empty String() = %q, want %q", got, "none")
	}
}

func TestParseRights(t *testing.T) {
	set, err := ParseRights([]string{"write", "read", "read"})
	if err != nil {
		t.Fatalf("ParseRights: %v", err)
	}
	if !set.Has(RightRead) || !set.Has(RightWrite) || len(set.List()) != 2 {
		t.Errorf("ParseRights = %s, want read+write", set)
	}

	if _, err := ParseRights([]string{"read", "fly"}); err == nil {
		t.Error("ParseRights accepted an invalid name")
	}
}

func TestRightSetValid(t *testing.T) {
	if !RightSet(0).Valid() {
		t.Error("empty set reported invalid")
	}
	full := RightSet(0)
	for _, right := range allRights {
		full = full.With(right)
	}
	if !full.Valid() {
		t.Errorf("full set %s reported invalid", full)
	}
	if RightSet(0x80).Valid() {
		t.Error("set with undefined bit 0x80 reported valid")
	}
	if full.Union(RightSet(0x40)).Valid() {
		t.Error("full set with undefined bit 0x40 reported valid")
	}
}
