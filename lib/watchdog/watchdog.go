// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package watchdog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// State is one heartbeat: what the node was doing the last time it
// proved it was alive.
type State struct {
	// NodeID is the heartbeating node's cluster identifier.
	NodeID string `json:"node_id"`

	// RecoveryState is the node's recovery phase: "bootstrapping",
	// "catching_up", or "synced".
	RecoveryState string `json:"recovery_state"`

	// AppliedIndex is the last log index applied to the state
	// machine at heartbeat time.
	AppliedIndex uint64 `json:"applied_index"`

	// Leader reports whether the node held leadership at heartbeat
	// time.
	Leader bool `json:"leader"`

	// Timestamp is when the heartbeat was written. Check uses it to
	// discard files from dead processes.
	Timestamp time.Time `json:"timestamp"`
}

// Write atomically writes a heartbeat file: write to a temporary file
// in the same directory, fsync, rename into place, fsync the parent
// directory. Readers never see a partial write, even across power
// loss.
//
// The file is created with mode 0600. The parent directory must
// already exist.
func Write(path string, state State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling heartbeat state: %w", err)
	}
	data = append(data, '\n')

	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating temporary heartbeat file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary heartbeat file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary heartbeat file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary heartbeat file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming heartbeat file into place: %w", err)
	}

	// Make the rename itself durable.
	parentDirectory, err := os.Open(filepath.Dir(path))
	if err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}

	return nil
}

// Read reads and parses a heartbeat file. When the file does not
// exist, the returned error wraps os.ErrNotExist (testable with
// errors.Is).
func Read(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("parsing heartbeat file %s: %w", path, err)
	}
	return state, nil
}

// Check reads a heartbeat file and verifies it is recent. Returns the
// state and true when the file exists and its Timestamp is within
// maxAge of now; a zero State and false when the file is missing or
// stale. Any other error (permission denied, corrupt JSON) is
// returned as-is so the caller can distinguish "node never started"
// from "heartbeat unreadable".
func Check(path string, maxAge time.Duration) (State, bool, error) {
	state, err := Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, false, nil
		}
		return State{}, false, err
	}

	if time.Since(state.Timestamp) > maxAge {
		return State{}, false, nil
	}

	return state, true, nil
}

// Clear removes a heartbeat file. Idempotent: returns nil when the
// file does not exist.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing heartbeat file: %w", err)
	}
	return nil
}
