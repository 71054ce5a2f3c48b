// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"errors"
	"fmt"
)

// CodeContentNotFound is the wire code for reads of objects that exist
// but hold no content yet.
const CodeContentNotFound = "content_not_found"

// ContentNotFoundError reports a read of an object that exists in the
// graph but has never been written. Distinct from UnknownIdentifier:
// the object is real, the read right was verified, there is just
// nothing stored.
type ContentNotFoundError struct {
	// ID is the object identifier.
	ID string
}

func (e *ContentNotFoundError) Error() string {
	return fmt.Sprintf("object %q has no content", e.ID)
}

// IsContentNotFound reports whether err is a ContentNotFoundError.
func IsContentNotFound(err error) bool {
	var notFound *ContentNotFoundError
	return errors.As(err, &notFound)
}

// UnresolvedError wraps a propose timeout with the request ID the
// caller needs to resolve the command's fate later. The command may
// still commit; blind retries of non-idempotent mutations are wrong,
// so the ID is the handle for a history lookup.
type UnresolvedError struct {
	// RequestID identifies the in-flight command.
	RequestID string

	// Err is the underlying transport failure.
	Err error
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("command %s unresolved: %v", e.RequestID, e.Err)
}

func (e *UnresolvedError) Unwrap() error { return e.Err }
