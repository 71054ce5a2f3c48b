// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"errors"
	"fmt"
)

// Stable error codes for outcomes and propose failures, carried across
// the HTTP API alongside the codes defined in lib/rights.
const (
	CodeOK             = "ok"
	CodeInvalidCommand = "invalid_command"
	CodeAccessDenied   = "access_denied"
	CodeNotLeader      = "not_leader"
	CodeProposeTimeout = "propose_timeout"
	CodeNotSynced      = "not_synced"
)

// ErrProposeTimeout reports that a proposed command did not commit
// within the bounded wait. The command is not dead: it may still
// commit and apply later. Callers must treat this as unknown outcome
// and resolve it through the history journal by request ID instead of
// blindly retrying a non-idempotent mutation.
var ErrProposeTimeout = errors.New("propose timed out: outcome unknown, resolve by request ID")

// ErrNotSynced reports that the node is still catching up after a
// start or snapshot install and is not accepting proposals. Local
// queries keep working (with a staleness marker); callers wanting to
// mutate should pick another node or wait.
var ErrNotSynced = errors.New("node is catching up and not accepting proposals")

// ErrNoSnapshot reports that the local snapshot store holds no
// snapshot yet.
var ErrNoSnapshot = errors.New("no snapshot has been taken on this node")

// NotLeaderError reports a propose or membership call on a node that
// is not the raft leader and could not forward. The leader fields are
// the node's current best knowledge and may all be empty during an
// election.
type NotLeaderError struct {
	// LeaderID is the raft server ID of the current leader, if known.
	LeaderID string

	// LeaderRaftAddress is the leader's raft transport address.
	LeaderRaftAddress string

	// LeaderAPIAddress is the leader's HTTP API address from the
	// member book, when the book has an entry for the leader.
	LeaderAPIAddress string
}

func (e *NotLeaderError) Error() string {
	if e.LeaderID == "" {
		return "not the leader (no leader currently known)"
	}
	if e.LeaderAPIAddress != "" {
		return fmt.Sprintf("not the leader (leader is %s at %s)", e.LeaderID, e.LeaderAPIAddress)
	}
	return fmt.Sprintf("not the leader (leader is %s)", e.LeaderID)
}

// AccessDeniedError reports an enforcement check failure: the acting
// subject does not hold the needed right over the object. Produced by
// the gate's pre-flight checks and by the FSM's apply-time re-check of
// content writes. Retrying without an intervening rights change fails
// identically.
type AccessDeniedError struct {
	// Reason names the missing right and the endpoints involved.
	Reason string
}

func (e *AccessDeniedError) Error() string {
	return "access denied: " + e.Reason
}

// InvalidCommandError reports a command whose shape is wrong: unknown
// kind, missing required fields, or an undecodable or oversized
// payload. Shape violations are caught before a command consumes a
// log slot; a malformed entry that still reaches apply (a forwarded
// raw payload, a log written by a newer version) fails its outcome
// with this error instead of mutating anything.
type InvalidCommandError struct {
	// Reason describes the violation.
	Reason string
}

func (e *InvalidCommandError) Error() string {
	return "invalid command: " + e.Reason
}

// IsNotLeader reports whether err is a NotLeaderError.
func IsNotLeader(err error) bool {
	var notLeader *NotLeaderError
	return errors.As(err, &notLeader)
}

// IsAccessDenied reports whether err is an AccessDeniedError.
func IsAccessDenied(err error) bool {
	var denied *AccessDeniedError
	return errors.As(err, &denied)
}

// IsInvalidCommand reports whether err is an InvalidCommandError.
func IsInvalidCommand(err error) bool {
	var invalid *InvalidCommandError
	return errors.As(err, &invalid)
}
