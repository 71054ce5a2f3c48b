// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package watchdog provides the node liveness heartbeat file.
//
// A warden node periodically writes a [State] (node id, recovery
// phase, applied log index, leadership, timestamp) to a well-known
// path under its data directory. External supervisors and health
// probes read it with [Check] to answer two questions without
// touching the API port: is the process alive, and how far behind is
// its state machine.
//
// The file is written atomically (temporary file, fsync, rename,
// fsync parent directory) so readers never see a partial or corrupt
// state. [Check] treats files older than a caller-chosen maximum age
// as absent, so a crashed node's final heartbeat does not read as
// alive forever.
//
// This package has no dependencies on other warden packages.
package watchdog
