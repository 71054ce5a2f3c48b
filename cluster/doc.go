// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package cluster is the command log adapter: it turns every mutation
// of the rights graph and content index into a raft log entry, applies
// committed entries in log order through a single FSM, and exposes the
// node-level surface the rest of the process builds on (propose with
// leader forwarding, linearization barriers, membership changes,
// snapshot capture and restore, recovery-state tracking).
//
// The FSM apply path is the only code that mutates replicated state.
// Request handlers read the graph and content index directly (under
// their read locks) and funnel every mutation through [Node.Propose],
// so two replicas that applied the same log prefix hold identical
// state.
//
// A command's domain result travels in an [Outcome], not in the error
// return: a grant that fails its precondition committed fine as far as
// raft is concerned, and every replica must record the same denial.
// Errors from Propose itself ([NotLeaderError], [ErrProposeTimeout],
// [ErrNotSynced]) mean the command's fate is respectively elsewhere,
// unknown, or not attempted.
package cluster
