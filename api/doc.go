// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package api is the node's HTTP request layer: JSON routes under /v1
// mapping 1:1 onto the enforcement gate's call surface, plus snapshot
// streams and the internal propose endpoint followers forward through.
// It translates between HTTP and the shared error taxonomy and adds
// the replication headers (X-Warden-Applied-Index, X-Warden-Stale)
// clients use to reason about staleness. No algorithmic depth lives
// here; every decision is made in gate, cluster, or lib/rights.
package api
