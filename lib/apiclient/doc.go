// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package apiclient is the typed HTTP client for a warden node's API.
// The operator CLI is its main consumer; the node daemon also uses it
// as the cluster.Forwarder relaying follower proposes to the leader.
//
// Error responses decode back into the shared taxonomy (lib/rights,
// cluster, gate error types), so code written against the gate's call
// surface handles remote failures identically to local ones. With
// FollowLeader enabled the client chases not_leader hints for a
// bounded number of hops with a short backoff, which covers the
// common case of a command landing on a follower or arriving during
// an election.
package apiclient
