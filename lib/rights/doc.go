// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package rights implements the Schematic Protection Model rights
// graph at the core of Warden: subjects and objects as typed nodes,
// rights (read, write, grant, take, own) as labels on directed edges,
// and the SPM operations over them — administrative assignment,
// grant/take delegation, ownership-gated revocation, and the
// reachability closure used as a safety check before sensitive
// delegations.
//
// The package is deliberately pure: no I/O, no clocks, no
// identifiers minted here. Every mutation is deterministic given the
// current graph and its input, which is the property the replication
// layer depends on — the cluster applies the same committed command
// sequence on every node and relies on the graphs converging
// bit-identically. Request handlers never call the mutation methods
// directly; the replicated apply path is the single writer, while
// queries run concurrently under the read lock.
package rights
