// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"errors"
	"fmt"

	"github.com/warden-foundation/warden/lib/rights"
)

// Outcome is the applied command's domain result, returned through the
// raft apply future to the proposing node and recorded per request ID
// in the history journal. Identical on every replica: the outcome is a
// pure function of the command and the graph state at its log
// position.
type Outcome struct {
	// RequestID echoes the command's correlation ID.
	RequestID string `json:"request_id"`

	// Kind is the command kind's wire name, empty if the entry never
	// decoded far enough to know.
	Kind string `json:"kind,omitempty"`

	// Index is the raft log index the command applied at.
	Index uint64 `json:"index"`

	// Code is "ok" or a stable error code from lib/rights or this
	// package.
	Code string `json:"code"`

	// Detail carries the code's variable part: the offending
	// identifier for unknown/duplicate, the reason for denials.
	Detail string `json:"detail,omitempty"`
}

// OK reports whether the command applied successfully.
func (o *Outcome) OK() bool {
	return o.Code == CodeOK
}

// Err reconstructs the typed error a failed outcome describes, so
// callers on the proposing node handle apply failures exactly like
// local ones. Returns nil for successful outcomes.
func (o *Outcome) Err() error {
	switch o.Code {
	case CodeOK:
		return nil
	case rights.CodeUnknownIdentifier:
		return &rights.UnknownIdentifierError{ID: o.Detail}
	case rights.CodeDuplicateIdentifier:
		return &rights.DuplicateIdentifierError{ID: o.Detail}
	case rights.CodePermissionDenied:
		return &rights.PermissionDeniedError{Reason: o.Detail}
	case CodeAccessDenied:
		return &AccessDeniedError{Reason: o.Detail}
	case CodeInvalidCommand:
		return &InvalidCommandError{Reason: o.Detail}
	default:
		return fmt.Errorf("%s: %s", o.Code, o.Detail)
	}
}

// outcomeFor classifies an apply error into the stable code taxonomy.
// Unrecognized errors are reported as invalid_command: the only
// un-typed failures the apply path produces are malformed payloads
// (undecodable restore payloads, corrupt embedded snapshots).
func outcomeFor(cmd *Command, index uint64, applyErr error) *Outcome {
	outcome := &Outcome{
		RequestID: cmd.RequestID,
		Index:     index,
	}
	if cmd.Kind.Valid() {
		outcome.Kind = cmd.Kind.String()
	}
	if applyErr == nil {
		outcome.Code = CodeOK
		return outcome
	}

	var (
		unknown   *rights.UnknownIdentifierError
		duplicate *rights.DuplicateIdentifierError
		denied    *rights.PermissionDeniedError
		access    *AccessDeniedError
		invalid   *InvalidCommandError
	)
	switch {
	case errors.As(applyErr, &unknown):
		outcome.Code, outcome.Detail = rights.CodeUnknownIdentifier, unknown.ID
	case errors.As(applyErr, &duplicate):
		outcome.Code, outcome.Detail = rights.CodeDuplicateIdentifier, duplicate.ID
	case errors.As(applyErr, &denied):
		outcome.Code, outcome.Detail = rights.CodePermissionDenied, denied.Reason
	case errors.As(applyErr, &access):
		outcome.Code, outcome.Detail = CodeAccessDenied, access.Reason
	case errors.As(applyErr, &invalid):
		outcome.Code, outcome.Detail = CodeInvalidCommand, invalid.Reason
	default:
		outcome.Code, outcome.Detail = CodeInvalidCommand, applyErr.Error()
	}
	return outcome
}
