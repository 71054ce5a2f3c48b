// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package watchdog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testState() State {
	return State{
		NodeID:        "node-1",
		RecoveryState: "synced",
		AppliedIndex:  512,
		Leader:        true,
		Timestamp:     time.Now(),
	}
}

func TestWriteReadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartbeat.json")
	want := testState()

	if err := Write(path, want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.NodeID != want.NodeID || got.RecoveryState != want.RecoveryState ||
		got.AppliedIndex != want.AppliedIndex || got.Leader != want.Leader {
		t.Errorf("Read = %+v, want %+v", got, want)
	}
	if !got.Timestamp.Equal(want.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, want.Timestamp)
	}
}

func TestWriteOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartbeat.json")

	first := testState()
	first.AppliedIndex = 1
	if err := Write(path, first); err != nil {
		t.Fatalf("first Write: %v", err)
	}

	second := testState()
	second.AppliedIndex = 2
	if err := Write(path, second); err != nil {
		t.Fatalf("second Write: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.AppliedIndex != 2 {
		t.Errorf("AppliedIndex = %d, want 2", got.AppliedIndex)
	}

	// No temporary file left behind.
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temporary file still present: %v", err)
	}
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "absent.json"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Read missing file error = %v, want os.ErrNotExist", err)
	}
}

func TestReadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartbeat.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path); err == nil {
		t.Error("Read accepted corrupt JSON")
	}
}

func TestCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartbeat.json")

	t.Run("missing file", func(t *testing.T) {
		_, alive, err := Check(path, time.Minute)
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		if alive {
			t.Error("missing heartbeat reported alive")
		}
	})

	t.Run("fresh", func(t *testing.T) {
		if err := Write(path, testState()); err != nil {
			t.Fatal(err)
		}
		state, alive, err := Check(path, time.Minute)
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		if !alive {
			t.Error("fresh heartbeat reported dead")
		}
		if state.NodeID != "node-1" {
			t.Errorf("NodeID = %q", state.NodeID)
		}
	})

	t.Run("stale", func(t *testing.T) {
		old := testState()
		old.Timestamp = time.Now().Add(-time.Hour)
		if err := Write(path, old); err != nil {
			t.Fatal(err)
		}
		_, alive, err := Check(path, time.Minute)
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		if alive {
			t.Error("hour-old heartbeat reported alive")
		}
	})

	t.Run("corrupt", func(t *testing.T) {
		if err := os.WriteFile(path, []byte("{"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, _, err := Check(path, time.Minute); err == nil {
			t.Error("Check swallowed a corrupt heartbeat")
		}
	})
}

func TestClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartbeat.json")
	if err := Write(path, testState()); err != nil {
		t.Fatal(err)
	}

	if err := Clear(path); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Error("heartbeat file still present after Clear")
	}

	// Idempotent.
	if err := Clear(path); err != nil {
		t.Errorf("second Clear: %v", err)
	}
}
