// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package history keeps the per-node journal of applied command
// outcomes.
//
// Every command the state machine applies, whether it succeeded or
// was denied, is recorded with its log index, request id, actor, and
// outcome. The journal answers two questions the replicated state
// cannot:
//
//   - A client proposed a command, the response timed out, and the
//     client does not know whether the command committed. Looking up
//     the request id tells it definitively, because a committed
//     command is applied (and recorded) on every node.
//   - An operator wants to audit recent decisions, including denials,
//     which by definition leave no trace in the rights graph.
//
// The journal is advisory local state in SQLite (lib/sqlitepool), not
// replicated state: nodes may have journals of different depths, and
// a snapshot restore clears the journal because pre-snapshot outcomes
// can no longer be correlated. The replicated log remains the source
// of truth.
package history
