// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError signals a non-zero exit code without printing an extra
// error message. When a command handler returns an ExitError, the CLI
// framework exits with the specified code without printing the error
// string — the command is expected to have already written its own
// output.
//
// Useful for commands where a non-zero exit is a valid outcome (e.g.,
// "check" returning 1 when the right is not held) rather than an
// unexpected error.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code. The CLI's main function checks for
// this interface on returned errors to distinguish "handled non-zero
// exit" from "unexpected error to display".
func (e *ExitError) ExitCode() int {
	return e.Code
}

// UsageError marks an error as the user's fault: an unknown command or
// flag, a bad argument count, an unparsable value. The CLI exits with
// code 2 for these (versus 1 for runtime failures) so scripts can tell
// "you called it wrong" from "it didn't work".
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

// Usagef constructs a UsageError.
func Usagef(format string, args ...any) error {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}
