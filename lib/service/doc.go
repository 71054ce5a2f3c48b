// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the HTTP serving shell used by the node
// daemon: listener lifecycle, readiness signaling, and graceful
// shutdown. Routing and error mapping live in the api package; this
// package only runs whatever handler it is given.
package service
