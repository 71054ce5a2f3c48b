// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package gate is the enforcement surface request handlers call. It
// validates request shape before a command consumes a log slot, checks
// content access against the local graph, funnels every mutation
// through the replicated log, and serves reads from local state.
//
// Read checks are authoritative only for the local replica, which may
// lag the leader. Write checks here are a fast-fail courtesy: the FSM
// re-checks the right at the command's log position, which is the
// decision that holds cluster-wide.
package gate
