// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const samplePolicy = `{
    "version": 1,
    // Block rights laundering loops.
    "forbid_delegation_cycles": true,
    "forbid": [
        /* The auditor reads, never writes. */
        {"subject": "auditor", "object": "ledger", "right": "write"},
    ],
}`

func TestParseJSONC(t *testing.T) {
	p, err := Parse([]byte(samplePolicy))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !p.ForbidDelegationCycles {
		t.Error("forbid_delegation_cycles not parsed")
	}
	if len(p.Forbid) != 1 || p.Forbid[0].Subject != "auditor" || p.Forbid[0].Right != "write" {
		t.Errorf("Forbid = %+v", p.Forbid)
	}
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		wantErr string
	}{
		{"bad version", `{"version": 2}`, "unsupported policy version"},
		{"empty subject", `{"version": 1, "forbid": [{"subject": "", "object": "o", "right": "read"}]}`, "empty subject"},
		{"empty object", `{"version": 1, "forbid": [{"subject": "s", "object": "", "right": "read"}]}`, "empty object"},
		{"bad right", `{"version": 1, "forbid": [{"subject": "s", "object": "o", "right": "fly"}]}`, "unknown right"},
		{"malformed", `{"version": `, "parsing policy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.source))
			if err == nil {
				t.Fatal("Parse accepted an invalid policy")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestReadFileDigestOverRawBytes(t *testing.T) {
	dir := t.TempDir()

	pathA := filepath.Join(dir, "a.jsonc")
	pathB := filepath.Join(dir, "b.jsonc")
	// Same effective policy, different comments: digests must differ,
	// since operators compare exact file copies.
	if err := os.WriteFile(pathA, []byte("{\"version\": 1}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(pathB, []byte("// note\n{\"version\": 1}\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, digestA, err := ReadFile(pathA)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	_, digestB, err := ReadFile(pathB)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if digestA == digestB {
		t.Error("different file bytes produced identical policy digests")
	}

	_, _, err = ReadFile(filepath.Join(dir, "missing.jsonc"))
	if err == nil {
		t.Error("ReadFile succeeded on a missing file")
	}
}
