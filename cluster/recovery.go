// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package cluster

import "fmt"

// RecoveryState tracks how far a node is from serving with full
// confidence. It moves one way (Bootstrapping → CatchingUp → Synced)
// except that installing a snapshot re-arms CatchingUp.
type RecoveryState uint8

const (
	// Bootstrapping means the node has no log data yet: a fresh node
	// waiting to be added to a cluster, or the first node before its
	// own bootstrap entry lands.
	Bootstrapping RecoveryState = iota + 1

	// CatchingUp means the node has log data but has not yet applied
	// up to the last index it knew about when it started (or when a
	// snapshot was installed). Local queries are served with a
	// staleness marker; proposals are refused.
	CatchingUp

	// Synced means the node has applied everything it set out to
	// catch up on. Normal replication lag does not demote a node from
	// Synced.
	Synced
)

// String returns the wire name used in status output, heartbeat files,
// and the X-Warden-Stale decision.
func (s RecoveryState) String() string {
	switch s {
	case Bootstrapping:
		return "bootstrapping"
	case CatchingUp:
		return "catching_up"
	case Synced:
		return "synced"
	default:
		return fmt.Sprintf("recovery(%d)", uint8(s))
	}
}
