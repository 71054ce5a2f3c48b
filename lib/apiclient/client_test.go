// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/raft"

	"github.com/warden-foundation/warden/api"
	"github.com/warden-foundation/warden/cluster"
	"github.com/warden-foundation/warden/gate"
	"github.com/warden-foundation/warden/history"
	"github.com/warden-foundation/warden/lib/codec"
	"github.com/warden-foundation/warden/lib/rights"
)

// newTestNode serves a synced single-node cluster's API over httptest
// and returns a client for it.
func newTestNode(t *testing.T) (*Client, *httptest.Server) {
	t.Helper()

	journal, err := history.Open(history.Config{
		Path: filepath.Join(t.TempDir(), "history.db"),
	})
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() { journal.Close() })

	_, trans := raft.NewInmemTransport("")
	logs := raft.NewInmemStore()
	node, err := cluster.Open(cluster.NewFSM(cluster.FSMConfig{Journal: journal}), cluster.Options{
		NodeID:             "wn-1",
		Bootstrap:          true,
		ProposeTimeout:     5 * time.Second,
		HeartbeatTimeout:   50 * time.Millisecond,
		ElectionTimeout:    50 * time.Millisecond,
		LeaderLeaseTimeout: 50 * time.Millisecond,
		CommitTimeout:      5 * time.Millisecond,
		Transport:          trans,
		LogStore:           logs,
		StableStore:        logs,
		SnapshotStore:      raft.NewInmemSnapshotStore(),
	})
	if err != nil {
		t.Fatalf("cluster.Open: %v", err)
	}
	t.Cleanup(func() { node.Shutdown() })

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	if _, err := node.WaitForLeader(ctx); err != nil {
		t.Fatalf("WaitForLeader: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for node.RecoveryState() != cluster.Synced {
		if time.Now().After(deadline) {
			t.Fatal("node never synced")
		}
		time.Sleep(10 * time.Millisecond)
	}

	server := api.NewServer(api.Config{
		Gate:    gate.New(gate.Config{Node: node}),
		Node:    node,
		Journal: journal,
	})
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	client, err := New(Config{Server: ts.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client, ts
}

func TestTypedRoundTrip(t *testing.T) {
	client, _ := newTestNode(t)
	ctx := t.Context()

	for _, call := range []func() (*cluster.Outcome, error){
		func() (*cluster.Outcome, error) { return client.CreateSubject(ctx, "alice") },
		func() (*cluster.Outcome, error) { return client.CreateSubject(ctx, "bob") },
		func() (*cluster.Outcome, error) { return client.CreateObject(ctx, "doc") },
		func() (*cluster.Outcome, error) { return client.Assign(ctx, "alice", "doc", rights.RightOwn) },
		func() (*cluster.Outcome, error) { return client.Assign(ctx, "alice", "doc", rights.RightRead) },
		func() (*cluster.Outcome, error) { return client.Assign(ctx, "alice", "doc", rights.RightWrite) },
		func() (*cluster.Outcome, error) { return client.Assign(ctx, "alice", "bob", rights.RightGrant) },
		func() (*cluster.Outcome, error) { return client.Grant(ctx, "alice", "bob", "doc", rights.RightRead) },
	} {
		if outcome, err := call(); err != nil {
			t.Fatalf("mutation failed: %v (outcome %+v)", err, outcome)
		}
	}

	if _, err := client.WriteContent(ctx, "alice", "doc", []byte("hi")); err != nil {
		t.Fatalf("WriteContent: %v", err)
	}
	got, err := client.ReadContent(ctx, "bob", "doc")
	if err != nil || !bytes.Equal(got, []byte("hi")) {
		t.Fatalf("ReadContent as bob = %q, %v; want hi", got, err)
	}

	has, err := client.Check(ctx, "bob", "doc", rights.RightRead, false)
	if err != nil || !has {
		t.Errorf("Check(bob, doc, read) = %v, %v; want true", has, err)
	}
	has, err = client.Check(ctx, "bob", "doc", rights.RightRead, true)
	if err != nil || !has {
		t.Errorf("linearized Check = %v, %v; want true", has, err)
	}

	reachable, err := client.Reachable(ctx, "bob", "doc")
	if err != nil || len(reachable) == 0 {
		t.Errorf("Reachable = %v, %v", reachable, err)
	}

	dump, err := client.Graph(ctx)
	if err != nil || len(dump.Nodes) != 3 {
		t.Errorf("Graph = %d nodes, %v; want 3", len(dump.Nodes), err)
	}

	status, err := client.Status(ctx)
	if err != nil || status.NodeID != "wn-1" {
		t.Errorf("Status = %+v, %v", status, err)
	}
}

func TestTypedErrors(t *testing.T) {
	client, _ := newTestNode(t)
	ctx := t.Context()

	if _, err := client.CreateSubject(ctx, "alice"); err != nil {
		t.Fatalf("CreateSubject: %v", err)
	}

	_, err := client.CreateSubject(ctx, "alice")
	if !rights.IsDuplicateIdentifier(err) {
		t.Errorf("duplicate create = %v, want DuplicateIdentifierError", err)
	}

	_, err = client.DeleteObject(ctx, "ghost")
	if !rights.IsUnknownIdentifier(err) {
		t.Errorf("delete of unknown = %v, want UnknownIdentifierError", err)
	}

	_, err = client.Grant(ctx, "alice", "alice", "alice", rights.RightRead)
	if !rights.IsPermissionDenied(err) {
		t.Errorf("impossible grant = %v, want PermissionDeniedError", err)
	}

	_, err = client.ReadContent(ctx, "alice", "ghost")
	if !rights.IsUnknownIdentifier(err) {
		t.Errorf("read of unknown object = %v, want UnknownIdentifierError", err)
	}
}

func TestCommandOutcomeLookup(t *testing.T) {
	client, _ := newTestNode(t)
	ctx := t.Context()

	outcome, err := client.CreateSubject(ctx, "alice")
	if err != nil {
		t.Fatalf("CreateSubject: %v", err)
	}

	entry, found, err := client.CommandOutcome(ctx, outcome.RequestID)
	if err != nil || !found {
		t.Fatalf("CommandOutcome = %v, found=%v", err, found)
	}
	if entry.OutcomeCode != cluster.CodeOK || entry.Kind != "create_subject" {
		t.Errorf("entry = %+v", entry)
	}

	_, found, err = client.CommandOutcome(ctx, "no-such-request")
	if err != nil || found {
		t.Errorf("missing lookup = found=%v, %v; want not found, nil", found, err)
	}
}

func TestForwardPropose(t *testing.T) {
	client, ts := newTestNode(t)

	encoded, err := codec.Marshal(cluster.NewCreateSubject("carol"))
	if err != nil {
		t.Fatalf("encoding: %v", err)
	}
	outcome, err := client.ForwardPropose(t.Context(), ts.URL, encoded)
	if err != nil {
		t.Fatalf("ForwardPropose: %v", err)
	}
	if !outcome.OK() {
		t.Errorf("outcome = %+v", outcome)
	}
}

func TestFollowLeaderChasesHint(t *testing.T) {
	// A stand-in leader that answers the create.
	leader := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(cluster.Outcome{
			RequestID: "req-1", Kind: "create_subject", Index: 7, Code: cluster.CodeOK,
		})
	}))
	defer leader.Close()

	// A follower that points at the leader.
	follower := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(api.ErrorBody{
			Error:            "not the leader",
			Code:             cluster.CodeNotLeader,
			LeaderAPIAddress: leader.Listener.Addr().String(),
		})
	}))
	defer follower.Close()

	client, err := New(Config{Server: follower.URL, FollowLeader: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	outcome, err := client.CreateSubject(t.Context(), "alice")
	if err != nil {
		t.Fatalf("CreateSubject through follower: %v", err)
	}
	if outcome.Index != 7 {
		t.Errorf("outcome = %+v, want index 7", outcome)
	}
}

func TestWithoutFollowLeaderSurfacesHint(t *testing.T) {
	follower := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(api.ErrorBody{
			Error:            "not the leader",
			Code:             cluster.CodeNotLeader,
			LeaderAPIAddress: "10.0.0.9:7420",
		})
	}))
	defer follower.Close()

	client, err := New(Config{Server: follower.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = client.CreateSubject(t.Context(), "alice")
	if !IsNotLeader(err) {
		t.Fatalf("err = %v, want not_leader RemoteError", err)
	}
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.LeaderAPIAddress != "10.0.0.9:7420" {
		t.Errorf("leader hint missing from %v", err)
	}
}

func TestNormalizeServer(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "127.0.0.1:7420", want: "http://127.0.0.1:7420"},
		{in: "http://127.0.0.1:7420", want: "http://127.0.0.1:7420"},
		{in: "https://warden.example.com:7420", want: "https://warden.example.com:7420"},
		{in: "http://host:7420/some/path", want: "http://host:7420"},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := normalizeServer(tt.in)
		if tt.wantErr != (err != nil) {
			t.Errorf("normalizeServer(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("normalizeServer(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
