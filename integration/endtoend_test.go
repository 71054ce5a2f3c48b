// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package integration

import (
	"bytes"
	"errors"
	"testing"

	"github.com/warden-foundation/warden/cluster"
	"github.com/warden-foundation/warden/lib/apiclient"
	"github.com/warden-foundation/warden/lib/rights"
)

// TestRightsLifecycleOverHTTP drives the full operator flow a deployed
// cluster sees: identities, seeded rights, delegation, enforced
// content access, revocation, and the history lookup for the applied
// commands. All through the typed client against real listeners.
func TestRightsLifecycleOverHTTP(t *testing.T) {
	nodes := startCluster(t)
	ctx := t.Context()
	client := nodes[0].client

	for _, id := range []string{"alice", "bob"} {
		if _, err := client.CreateSubject(ctx, id); err != nil {
			t.Fatalf("CreateSubject(%s): %v", id, err)
		}
	}
	if _, err := client.CreateObject(ctx, "doc"); err != nil {
		t.Fatalf("CreateObject: %v", err)
	}

	// Seed alice as the document's owner, and give her grant authority
	// over bob.
	for _, right := range []rights.Right{rights.RightOwn, rights.RightRead, rights.RightWrite} {
		if _, err := client.Assign(ctx, "alice", "doc", right); err != nil {
			t.Fatalf("Assign(alice, doc, %s): %v", right, err)
		}
	}
	if _, err := client.Assign(ctx, "alice", "bob", rights.RightGrant); err != nil {
		t.Fatalf("Assign(alice, bob, grant): %v", err)
	}

	payload := []byte("the plan, v1")
	if _, err := client.WriteContent(ctx, "alice", "doc", payload); err != nil {
		t.Fatalf("WriteContent as owner: %v", err)
	}

	// Bob has no rights yet: the gate refuses, with the typed error
	// reconstructed client-side. Enforcement denials are the gate's
	// AccessDeniedError, distinct from the delegation-rule
	// PermissionDeniedError asserted below.
	if _, err := client.ReadContent(ctx, "bob", "doc"); err == nil {
		t.Fatal("ReadContent without read succeeded")
	} else {
		var denied *cluster.AccessDeniedError
		if !errors.As(err, &denied) {
			t.Fatalf("ReadContent denial = %v, want AccessDeniedError", err)
		}
	}

	// Delegate read to bob and exercise it.
	if _, err := client.Grant(ctx, "alice", "bob", "doc", rights.RightRead); err != nil {
		t.Fatalf("Grant(read): %v", err)
	}
	got, err := client.ReadContent(ctx, "bob", "doc")
	if err != nil {
		t.Fatalf("ReadContent after grant: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("ReadContent = %q, want %q", got, payload)
	}
	if held, err := client.Check(ctx, "bob", "doc", rights.RightWrite, false); err != nil || held {
		t.Errorf("Check(bob, doc, write) = %v, %v; want false held", held, err)
	}

	// Granting a right alice does not hold is a committed domain
	// failure: the outcome carries the log index, the error the reason.
	outcome, err := client.Grant(ctx, "alice", "bob", "doc", rights.RightTake)
	if err == nil {
		t.Fatal("Grant of unheld right succeeded")
	}
	if outcome == nil || outcome.Code != rights.CodePermissionDenied {
		t.Fatalf("Grant outcome = %+v, want permission_denied", outcome)
	}
	entry, found, err := client.CommandOutcome(ctx, outcome.RequestID)
	if err != nil || !found {
		t.Fatalf("CommandOutcome(%s): found=%v err=%v", outcome.RequestID, found, err)
	}
	if entry.OutcomeCode != rights.CodePermissionDenied {
		t.Errorf("journal outcome code = %q, want permission_denied", entry.OutcomeCode)
	}

	// Revocation closes the door again.
	if _, err := client.Revoke(ctx, "alice", "bob", "doc", rights.RightRead); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := client.ReadContent(ctx, "bob", "doc"); err == nil {
		t.Error("ReadContent after revoke succeeded")
	}

	// Every node converges on the same graph.
	waitConverged(t, nodes[0], nodes)
}

// TestFollowerWriteForwardsOverHTTP submits a mutation to a follower's
// API and expects the daemon-side forwarder to relay it to the leader
// over the internal propose route.
func TestFollowerWriteForwardsOverHTTP(t *testing.T) {
	nodes := startCluster(t)
	ctx := t.Context()
	follower := followerOf(t, nodes)

	// The follower's own client, not following leader hints: success
	// proves the server side forwarded.
	direct, err := apiclient.New(apiclient.Config{Server: follower.apiAddr()})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	outcome, err := direct.CreateSubject(ctx, "carol")
	if err != nil {
		t.Fatalf("CreateSubject via follower: %v", err)
	}
	if !outcome.OK() || outcome.Index == 0 {
		t.Fatalf("forwarded outcome = %+v", outcome)
	}

	waitUntil(t, "replication of forwarded command", func() bool {
		for _, n := range nodes {
			if _, ok := n.fsm.Graph().Kind("carol"); !ok {
				return false
			}
		}
		return true
	})
}

// TestLinearizedCheckFollowsRedirect issues a linearized check against
// a follower; the 307 to the leader is followed by the HTTP client.
func TestLinearizedCheckFollowsRedirect(t *testing.T) {
	nodes := startCluster(t)
	ctx := t.Context()
	leader := leaderOf(t, nodes)

	if _, err := leader.client.CreateSubject(ctx, "alice"); err != nil {
		t.Fatalf("CreateSubject: %v", err)
	}
	if _, err := leader.client.CreateObject(ctx, "doc"); err != nil {
		t.Fatalf("CreateObject: %v", err)
	}
	if _, err := leader.client.Assign(ctx, "alice", "doc", rights.RightRead); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	follower := followerOf(t, nodes)
	held, err := follower.client.Check(ctx, "alice", "doc", rights.RightRead, true)
	if err != nil {
		t.Fatalf("linearized Check via follower: %v", err)
	}
	if !held {
		t.Error("linearized Check = false, want true")
	}
}

// TestStatusAndMembersAgree reads status and membership from every
// node and expects one coherent picture.
func TestStatusAndMembersAgree(t *testing.T) {
	nodes := startCluster(t)
	ctx := t.Context()

	if _, err := nodes[0].client.CreateSubject(ctx, "alice"); err != nil {
		t.Fatalf("CreateSubject: %v", err)
	}
	waitConverged(t, nodes[0], nodes)

	for _, n := range nodes {
		status, err := n.client.Status(ctx)
		if err != nil {
			t.Fatalf("Status(%s): %v", n.id, err)
		}
		if status.NodeID != n.id {
			t.Errorf("Status(%s).NodeID = %q", n.id, status.NodeID)
		}
		if status.RecoveryState != "synced" {
			t.Errorf("Status(%s).RecoveryState = %q", n.id, status.RecoveryState)
		}
		if status.Graph.Subjects != 1 {
			t.Errorf("Status(%s).Graph.Subjects = %d, want 1", n.id, status.Graph.Subjects)
		}

		members, err := n.client.Members(ctx)
		if err != nil {
			t.Fatalf("Members(%s): %v", n.id, err)
		}
		if len(members) != 3 {
			t.Fatalf("Members(%s) = %d rows, want 3", n.id, len(members))
		}
		leaders := 0
		for _, member := range members {
			if member.Leader {
				leaders++
			}
		}
		if leaders != 1 {
			t.Errorf("Members(%s) flags %d leaders, want 1", n.id, leaders)
		}
	}
}

// TestSnapshotExportImportRestoresState captures a snapshot over HTTP,
// mutates further, then imports the export and expects the cluster to
// roll back to the captured state everywhere.
func TestSnapshotExportImportRestoresState(t *testing.T) {
	nodes := startCluster(t)
	ctx := t.Context()
	leader := leaderOf(t, nodes)
	client := leader.client

	for _, id := range []string{"alice", "bob"} {
		if _, err := client.CreateSubject(ctx, id); err != nil {
			t.Fatalf("CreateSubject(%s): %v", id, err)
		}
	}
	if err := client.TriggerSnapshot(ctx); err != nil {
		t.Fatalf("TriggerSnapshot: %v", err)
	}

	var export bytes.Buffer
	waitUntil(t, "snapshot availability", func() bool {
		export.Reset()
		return client.DownloadSnapshot(ctx, &export) == nil
	})

	if _, err := client.CreateSubject(ctx, "carol"); err != nil {
		t.Fatalf("CreateSubject(carol): %v", err)
	}

	outcome, err := client.ImportSnapshot(ctx, export.Bytes())
	if err != nil {
		t.Fatalf("ImportSnapshot: %v", err)
	}
	if !outcome.OK() {
		t.Fatalf("import outcome = %+v", outcome)
	}

	// The import travels the log: every node reverts to the captured
	// two-subject graph.
	waitUntil(t, "post-import convergence", func() bool {
		for _, n := range nodes {
			if _, ok := n.fsm.Graph().Kind("carol"); ok {
				return false
			}
			if _, ok := n.fsm.Graph().Kind("alice"); !ok {
				return false
			}
		}
		return true
	})
	waitConverged(t, nodes[0], nodes)
}

// TestQuorumServesWithOneNodeDown stops one follower and expects the
// remaining majority to keep committing over HTTP.
func TestQuorumServesWithOneNodeDown(t *testing.T) {
	nodes := startCluster(t)
	ctx := t.Context()
	leader := leaderOf(t, nodes)
	down := followerOf(t, nodes)
	if err := down.node.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	outcome, err := leader.client.CreateSubject(ctx, "alice")
	if err != nil {
		t.Fatalf("CreateSubject with one node down: %v", err)
	}
	if !outcome.OK() {
		t.Fatalf("outcome = %+v", outcome)
	}

	var survivor *envNode
	for _, n := range nodes {
		if n != leader && n != down {
			survivor = n
		}
	}
	waitUntil(t, "survivor replication", func() bool {
		_, ok := survivor.fsm.Graph().Kind("alice")
		return ok
	})
}
