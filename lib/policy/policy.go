// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package policy provides the delegation guard: a configurable safety
// check run before grant/take delegations commit. The rights graph can
// prove what a delegation makes reachable; this package decides which
// reachability outcomes are forbidden.
//
// Policies are authored on disk as JSONC files (JSON extended with //
// line comments, /* block comments */, and trailing commas) so
// operators can document why each rule exists next to the rule:
//
//	{
//	    "version": 1,
//	    // Nobody launders rights through a grant/take loop.
//	    "forbid_delegation_cycles": true,
//	    "forbid": [
//	        // The audit account must never become able to write.
//	        {"subject": "auditor", "object": "ledger", "right": "write"},
//	    ],
//	}
//
// The guard participates in deterministic command apply, so every
// node in a cluster must run the identical policy. Nodes log the
// policy file digest at startup; mismatched digests across a cluster
// are an operator error that will diverge replicas.
package policy

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/warden-foundation/warden/lib/digest"
	"github.com/warden-foundation/warden/lib/rights"
)

// Policy is a parsed delegation guard policy.
type Policy struct {
	// Version is the policy format version. Must be 1.
	Version int `json:"version"`

	// ForbidDelegationCycles blocks any delegation that would leave
	// two distinct nodes each holding both grant and take over the
	// other.
	ForbidDelegationCycles bool `json:"forbid_delegation_cycles"`

	// Forbid lists reachability assertions: (subject, object, right)
	// triples that must remain unreachable. A delegation that would
	// make one reachable is denied.
	Forbid []Assertion `json:"forbid"`
}

// Assertion is one forbidden-reachability rule.
type Assertion struct {
	// Subject is the identifier that must not reach the right.
	Subject string `json:"subject"`

	// Object is the identifier the right would be held over.
	Object string `json:"object"`

	// Right is the wire name of the forbidden right.
	Right string `json:"right"`
}

// String renders the assertion the way deny reasons quote it.
func (a Assertion) String() string {
	return fmt.Sprintf("%s must not reach %s over %s", a.Subject, a.Right, a.Object)
}

// Parse strips JSONC comments and trailing commas from data, then
// unmarshals and validates the policy.
func Parse(data []byte) (*Policy, error) {
	stripped := jsonc.ToJSON(data)

	var p Policy
	if err := json.Unmarshal(stripped, &p); err != nil {
		return nil, fmt.Errorf("parsing policy: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ReadFile reads a JSONC policy file from disk and parses it. The
// returned digest is computed over the raw file bytes (comments
// included) so operators can compare exact file copies across nodes.
func ReadFile(path string) (*Policy, digest.Hash, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, digest.Hash{}, fmt.Errorf("reading %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, digest.Hash{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, digest.Policy(data), nil
}

func (p *Policy) validate() error {
	if p.Version != 1 {
		return fmt.Errorf("unsupported policy version %d (expected 1)", p.Version)
	}
	for i, assertion := range p.Forbid {
		if assertion.Subject == "" {
			return fmt.Errorf("forbid[%d]: empty subject", i)
		}
		if assertion.Object == "" {
			return fmt.Errorf("forbid[%d]: empty object", i)
		}
		if _, err := rights.ParseRight(assertion.Right); err != nil {
			return fmt.Errorf("forbid[%d]: %w", i, err)
		}
	}
	return nil
}
