// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package rights

import (
	"errors"
	"fmt"
)

// Stable error codes carried across the HTTP API. The client
// reconstructs typed errors from these, so the values are a wire
// contract.
const (
	CodeUnknownIdentifier   = "unknown_identifier"
	CodeDuplicateIdentifier = "duplicate_identifier"
	CodePermissionDenied    = "permission_denied"
)

// UnknownIdentifierError reports an operation referencing a node that
// does not exist (or exists under the other kind). Detected during
// apply; never retried automatically, since the graph will not grow
// the identifier on its own.
//
//	var unknown *rights.UnknownIdentifierError
//	if errors.As(err, &unknown) { ... unknown.ID ... }
type UnknownIdentifierError struct {
	// ID is the identifier that failed to resolve.
	ID string
}

func (e *UnknownIdentifierError) Error() string {
	return fmt.Sprintf("unknown identifier %q", e.ID)
}

// DuplicateIdentifierError reports a create for an identifier that
// already exists. Subjects and objects share one namespace, so
// creating an object with an existing subject's id fails too.
type DuplicateIdentifierError struct {
	// ID is the identifier that already exists.
	ID string
}

func (e *DuplicateIdentifierError) Error() string {
	return fmt.Sprintf("identifier %q already exists", e.ID)
}

// PermissionDeniedError reports a grant/take/revoke whose SPM
// precondition does not hold, or a delegation blocked by policy.
// Retrying without an intervening rights change fails identically,
// so callers must not retry automatically.
type PermissionDeniedError struct {
	// Reason names the missing precondition or violated policy rule.
	Reason string
}

func (e *PermissionDeniedError) Error() string {
	return "permission denied: " + e.Reason
}

// IsUnknownIdentifier reports whether err is an UnknownIdentifierError.
func IsUnknownIdentifier(err error) bool {
	var unknown *UnknownIdentifierError
	return errors.As(err, &unknown)
}

// IsDuplicateIdentifier reports whether err is a DuplicateIdentifierError.
func IsDuplicateIdentifier(err error) bool {
	var duplicate *DuplicateIdentifierError
	return errors.As(err, &duplicate)
}

// IsPermissionDenied reports whether err is a PermissionDeniedError.
func IsPermissionDenied(err error) bool {
	var denied *PermissionDeniedError
	return errors.As(err, &denied)
}
