// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for warden
// nodes.
//
// Configuration is loaded from a single file specified by either the
// WARDEN_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search. This keeps a node's effective
// configuration deterministic and auditable. In a cluster, every node
// has its own file; the only cross-node requirement is an identical
// policy file, which nodes surface by logging the policy digest at
// startup.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${WARDEN_DATA}, and ${VAR:-default} patterns are expanded.
// No other environment variables override config values.
//
// Durations are stored as strings in Go duration syntax ("5s",
// "2m30s") and validated by [Config.Validate]; callers parse them
// once at startup.
//
// This package depends only on lib/snapshot (for compression tag
// validation).
package config
