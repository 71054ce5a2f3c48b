// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package integration stands up full warden stacks: raft over in-memory
// transports, the gate, the HTTP API on real listeners, and typed
// clients talking to it. Everything a deployed cluster runs except the
// TCP raft transport and the on-disk raft stores.
package integration

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/raft"

	"github.com/warden-foundation/warden/api"
	"github.com/warden-foundation/warden/cluster"
	"github.com/warden-foundation/warden/gate"
	"github.com/warden-foundation/warden/history"
	"github.com/warden-foundation/warden/lib/apiclient"
)

// envNode is one full node: consensus, enforcement, HTTP API, and a
// client pointed at it.
type envNode struct {
	id       string
	node     *cluster.Node
	fsm      *cluster.FSM
	gate     *gate.Gate
	journal  *history.Journal
	trans    *raft.InmemTransport
	raftAddr raft.ServerAddress
	server   *httptest.Server
	client   *apiclient.Client
}

// apiAddr is the node's reachable API address (host:port), as
// registered in the member book.
func (n *envNode) apiAddr() string {
	return strings.TrimPrefix(n.server.URL, "http://")
}

// handlerProxy lets the HTTP listener start before the stack behind it
// exists; the real handler is swapped in once assembled.
type handlerProxy struct {
	handler atomic.Pointer[http.Handler]
}

func (p *handlerProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h := p.handler.Load()
	if h == nil {
		http.Error(w, "starting up", http.StatusServiceUnavailable)
		return
	}
	(*h).ServeHTTP(w, r)
}

// startNode assembles one node end to end. The HTTP listener comes up
// first so its address can serve as the forwarder's base and the
// member book entry.
func startNode(t *testing.T, id string, bootstrap bool) *envNode {
	t.Helper()

	proxy := &handlerProxy{}
	server := httptest.NewServer(proxy)
	t.Cleanup(server.Close)
	apiAddr := strings.TrimPrefix(server.URL, "http://")

	forwarder, err := apiclient.New(apiclient.Config{Server: apiAddr})
	if err != nil {
		t.Fatalf("forwarder for %s: %v", id, err)
	}

	journal, err := history.Open(history.Config{
		Path: filepath.Join(t.TempDir(), id+".db"),
	})
	if err != nil {
		t.Fatalf("history.Open(%s): %v", id, err)
	}
	t.Cleanup(func() { journal.Close() })

	fsm := cluster.NewFSM(cluster.FSMConfig{Journal: journal})
	raftAddr, trans := raft.NewInmemTransport("")
	logs := raft.NewInmemStore()

	node, err := cluster.Open(fsm, cluster.Options{
		NodeID:             id,
		Bootstrap:          bootstrap,
		ProposeTimeout:     5 * time.Second,
		HeartbeatTimeout:   50 * time.Millisecond,
		ElectionTimeout:    50 * time.Millisecond,
		LeaderLeaseTimeout: 50 * time.Millisecond,
		CommitTimeout:      5 * time.Millisecond,
		Forwarder:          forwarder,
		Transport:          trans,
		LogStore:           logs,
		StableStore:        logs,
		SnapshotStore:      raft.NewInmemSnapshotStore(),
	})
	if err != nil {
		t.Fatalf("cluster.Open(%s): %v", id, err)
	}
	t.Cleanup(func() { node.Shutdown() })

	enforcement := gate.New(gate.Config{Node: node})
	handler := api.NewServer(api.Config{
		Gate:    enforcement,
		Node:    node,
		Journal: journal,
	}).Handler()
	proxy.handler.Store(&handler)

	client, err := apiclient.New(apiclient.Config{
		Server:       apiAddr,
		FollowLeader: true,
	})
	if err != nil {
		t.Fatalf("client for %s: %v", id, err)
	}

	return &envNode{
		id:       id,
		node:     node,
		fsm:      fsm,
		gate:     enforcement,
		journal:  journal,
		trans:    trans,
		raftAddr: raftAddr,
		server:   server,
		client:   client,
	}
}

// startCluster brings up a three-node cluster over HTTP: the first
// node bootstraps and the rest are admitted through its join route,
// exactly as "warden cluster join" would.
func startCluster(t *testing.T) []*envNode {
	t.Helper()
	n1 := startNode(t, "wn-1", true)
	n2 := startNode(t, "wn-2", false)
	n3 := startNode(t, "wn-3", false)
	nodes := []*envNode{n1, n2, n3}

	ctx := t.Context()
	waitUntil(t, "bootstrap leader", n1.node.IsLeader)
	waitUntil(t, "bootstrap synced", func() bool {
		return n1.node.RecoveryState() == cluster.Synced
	})
	if err := n1.node.EnsureRegistered(ctx, string(n1.raftAddr), n1.apiAddr()); err != nil {
		t.Fatalf("EnsureRegistered: %v", err)
	}

	for _, a := range nodes {
		for _, b := range nodes {
			if a != b {
				a.trans.Connect(b.raftAddr, b.trans)
			}
		}
	}
	for _, joiner := range nodes[1:] {
		if err := n1.client.Join(ctx, joiner.id, string(joiner.raftAddr), joiner.apiAddr()); err != nil {
			t.Fatalf("Join(%s): %v", joiner.id, err)
		}
	}
	waitUntil(t, "cluster synced", func() bool {
		for _, n := range nodes {
			if n.node.RecoveryState() != cluster.Synced {
				return false
			}
		}
		return true
	})
	return nodes
}

// waitUntil polls cond for up to five seconds.
func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// leaderOf returns the current leader among nodes.
func leaderOf(t *testing.T, nodes []*envNode) *envNode {
	t.Helper()
	var leader *envNode
	waitUntil(t, "a leader", func() bool {
		for _, n := range nodes {
			if n.node.IsLeader() {
				leader = n
				return true
			}
		}
		return false
	})
	return leader
}

// followerOf returns some non-leader node.
func followerOf(t *testing.T, nodes []*envNode) *envNode {
	t.Helper()
	leader := leaderOf(t, nodes)
	for _, n := range nodes {
		if n != leader {
			return n
		}
	}
	t.Fatal("no follower in cluster")
	return nil
}

// waitConverged polls until every node reports the same graph digest
// as base, observed through the HTTP status route.
func waitConverged(t *testing.T, base *envNode, nodes []*envNode) {
	t.Helper()
	ctx := t.Context()
	waitUntil(t, "digest convergence", func() bool {
		want, err := base.client.Status(ctx)
		if err != nil {
			return false
		}
		for _, n := range nodes {
			status, err := n.client.Status(ctx)
			if err != nil || status.GraphDigest != want.GraphDigest {
				return false
			}
		}
		return true
	})
}
