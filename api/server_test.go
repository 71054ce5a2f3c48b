// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/raft"

	"github.com/warden-foundation/warden/cluster"
	"github.com/warden-foundation/warden/gate"
	"github.com/warden-foundation/warden/history"
	"github.com/warden-foundation/warden/lib/codec"
	"github.com/warden-foundation/warden/lib/content"
	"github.com/warden-foundation/warden/lib/rights"
	"github.com/warden-foundation/warden/lib/snapshot"
)

// newTestServer stands up a synced single-node cluster with a journal
// and serves its API over httptest.
func newTestServer(t *testing.T) (*httptest.Server, *cluster.Node) {
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

	server := NewServer(Config{
		Gate:    gate.New(gate.Config{Node: node}),
		Node:    node,
		Journal: journal,
	})
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts, node
}

// postJSON POSTs a JSON body and returns the response.
func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	encoded, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

// mustStatus drains and closes the response, failing on a status
// mismatch.
func mustStatus(t *testing.T, resp *http.Response, want int) []byte {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading response: %v", err)
	}
	if resp.StatusCode != want {
		t.Fatalf("status = %d, want %d (body: %s)", resp.StatusCode, want, body)
	}
	return body
}

// seedHTTP builds the alice/bob/doc fixture through the API.
func seedHTTP(t *testing.T, base string) {
	t.Helper()
	mustStatus(t, postJSON(t, base+"/v1/subjects", map[string]string{"id": "alice"}), http.StatusOK)
	mustStatus(t, postJSON(t, base+"/v1/subjects", map[string]string{"id": "bob"}), http.StatusOK)
	mustStatus(t, postJSON(t, base+"/v1/objects", map[string]string{"id": "doc"}), http.StatusOK)
	for _, right := range []string{"own", "read", "write"} {
		mustStatus(t, postJSON(t, base+"/v1/rights/assign",
			map[string]string{"source": "alice", "target": "doc", "right": right}), http.StatusOK)
	}
}

func putContent(t *testing.T, base, object, subject string, contents []byte) *http.Response {
	t.Helper()
	url := fmt.Sprintf("%s/v1/objects/%s/content?subject=%s", base, object, subject)
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(contents))
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT %s: %v", url, err)
	}
	return resp
}

func TestContentRoundTrip(t *testing.T) {
	ts, _ := newTestServer(t)
	seedHTTP(t, ts.URL)

	body := mustStatus(t, putContent(t, ts.URL, "doc", "alice", []byte("hi")), http.StatusOK)
	var outcome cluster.Outcome
	if err := json.Unmarshal(body, &outcome); err != nil {
		t.Fatalf("decoding outcome: %v", err)
	}
	if !outcome.OK() || outcome.Index == 0 {
		t.Errorf("write outcome = %+v", outcome)
	}

	resp, err := http.Get(ts.URL + "/v1/objects/doc/content?subject=alice")
	if err != nil {
		t.Fatalf("GET content: %v", err)
	}
	if got := mustStatus(t, resp, http.StatusOK); !bytes.Equal(got, []byte("hi")) {
		t.Errorf("content = %q, want hi", got)
	}
	if resp.Header.Get("X-Warden-Applied-Index") == "" {
		t.Error("response missing applied index header")
	}
	if resp.Header.Get("X-Warden-Stale") != "" {
		t.Error("synced node marked its response stale")
	}

	// Bob holds no write right: 403 with the outcome body (the
	// denial committed and consumed a log slot only if it reached the
	// log; this one is a pre-flight denial, so the body is an error).
	resp = putContent(t, ts.URL, "doc", "bob", []byte("x"))
	body = mustStatus(t, resp, http.StatusForbidden)
	var errBody ErrorBody
	if err := json.Unmarshal(body, &errBody); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if errBody.Code != cluster.CodeAccessDenied {
		t.Errorf("denied write code = %q, want %q", errBody.Code, cluster.CodeAccessDenied)
	}
}

func TestErrorMapping(t *testing.T) {
	ts, _ := newTestServer(t)
	seedHTTP(t, ts.URL)

	tests := []struct {
		name       string
		resp       func() *http.Response
		wantStatus int
		wantCode   string
	}{
		{
			name: "duplicate subject",
			resp: func() *http.Response {
				return postJSON(t, ts.URL+"/v1/subjects", map[string]string{"id": "alice"})
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   rights.CodeDuplicateIdentifier,
		},
		{
			name: "empty id",
			resp: func() *http.Response {
				return postJSON(t, ts.URL+"/v1/subjects", map[string]string{"id": ""})
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   cluster.CodeInvalidCommand,
		},
		{
			name: "unknown right name",
			resp: func() *http.Response {
				return postJSON(t, ts.URL+"/v1/rights/assign",
					map[string]string{"source": "alice", "target": "doc", "right": "admin"})
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   cluster.CodeInvalidCommand,
		},
		{
			name: "unknown identifier",
			resp: func() *http.Response {
				return postJSON(t, ts.URL+"/v1/rights/assign",
					map[string]string{"source": "ghost", "target": "doc", "right": "read"})
			},
			wantStatus: http.StatusNotFound,
			wantCode:   rights.CodeUnknownIdentifier,
		},
		{
			name: "grant without precondition",
			resp: func() *http.Response {
				return postJSON(t, ts.URL+"/v1/rights/grant",
					map[string]string{"granter": "bob", "grantee": "alice", "object": "doc", "right": "read"})
			},
			wantStatus: http.StatusForbidden,
			wantCode:   rights.CodePermissionDenied,
		},
		{
			name: "content not written yet",
			resp: func() *http.Response {
				resp, err := http.Get(ts.URL + "/v1/objects/doc/content?subject=alice")
				if err != nil {
					t.Fatalf("GET: %v", err)
				}
				return resp
			},
			wantStatus: http.StatusNotFound,
			wantCode:   gate.CodeContentNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := mustStatus(t, tt.resp(), tt.wantStatus)
			var errBody ErrorBody
			if err := json.Unmarshal(body, &errBody); err != nil {
				t.Fatalf("decoding error body %q: %v", body, err)
			}
			if errBody.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", errBody.Code, tt.wantCode)
			}
		})
	}
}

func TestDomainFailureCarriesOutcomeBody(t *testing.T) {
	ts, _ := newTestServer(t)
	seedHTTP(t, ts.URL)

	// The grant's shape is fine, so it commits and fails at apply:
	// the 403 body is the full outcome with its log index.
	resp := postJSON(t, ts.URL+"/v1/rights/grant",
		map[string]string{"granter": "alice", "grantee": "bob", "object": "doc", "right": "read"})
	body := mustStatus(t, resp, http.StatusForbidden)
	var outcome cluster.Outcome
	if err := json.Unmarshal(body, &outcome); err != nil {
		t.Fatalf("decoding outcome: %v", err)
	}
	if outcome.Code != rights.CodePermissionDenied || outcome.Index == 0 || outcome.RequestID == "" {
		t.Errorf("outcome = %+v", outcome)
	}
}

func TestCheckAndReachable(t *testing.T) {
	ts, _ := newTestServer(t)
	seedHTTP(t, ts.URL)
	mustStatus(t, postJSON(t, ts.URL+"/v1/rights/assign",
		map[string]string{"source": "alice", "target": "bob", "right": "grant"}), http.StatusOK)
	mustStatus(t, postJSON(t, ts.URL+"/v1/rights/grant",
		map[string]string{"granter": "alice", "grantee": "bob", "object": "doc", "right": "read"}), http.StatusOK)

	resp, err := http.Get(ts.URL + "/v1/rights/check?subject=bob&object=doc&right=read")
	if err != nil {
		t.Fatalf("GET check: %v", err)
	}
	var check CheckResponse
	if err := json.Unmarshal(mustStatus(t, resp, http.StatusOK), &check); err != nil {
		t.Fatalf("decoding check: %v", err)
	}
	if !check.HasRight {
		t.Error("bob's granted read not visible")
	}

	// Linearized on the leader barriers and answers directly.
	resp, err = http.Get(ts.URL + "/v1/rights/check?subject=bob&object=doc&right=read&linearized=true")
	if err != nil {
		t.Fatalf("GET linearized check: %v", err)
	}
	mustStatus(t, resp, http.StatusOK)

	resp, err = http.Get(ts.URL + "/v1/rights/reachable?subject=bob&object=doc")
	if err != nil {
		t.Fatalf("GET reachable: %v", err)
	}
	var reachable ReachableResponse
	if err := json.Unmarshal(mustStatus(t, resp, http.StatusOK), &reachable); err != nil {
		t.Fatalf("decoding reachable: %v", err)
	}
	if len(reachable.Reachable) == 0 {
		t.Error("no reachable rights for bob over doc")
	}
}

func TestGraphAndStatus(t *testing.T) {
	ts, _ := newTestServer(t)
	seedHTTP(t, ts.URL)

	resp, err := http.Get(ts.URL + "/v1/graph")
	if err != nil {
		t.Fatalf("GET graph: %v", err)
	}
	var dump rights.Dump
	if err := json.Unmarshal(mustStatus(t, resp, http.StatusOK), &dump); err != nil {
		t.Fatalf("decoding dump: %v", err)
	}
	if len(dump.Nodes) != 3 || len(dump.Edges) != 1 {
		t.Errorf("dump has %d nodes, %d edges; want 3, 1", len(dump.Nodes), len(dump.Edges))
	}

	resp, err = http.Get(ts.URL + "/v1/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	var status gate.Status
	if err := json.Unmarshal(mustStatus(t, resp, http.StatusOK), &status); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if status.NodeID != "wn-1" || status.RecoveryState != "synced" || status.GraphDigest == "" {
		t.Errorf("status = %+v", status)
	}
}

func TestCommandLookup(t *testing.T) {
	ts, _ := newTestServer(t)
	seedHTTP(t, ts.URL)

	body := mustStatus(t, putContent(t, ts.URL, "doc", "alice", []byte("hi")), http.StatusOK)
	var outcome cluster.Outcome
	if err := json.Unmarshal(body, &outcome); err != nil {
		t.Fatalf("decoding outcome: %v", err)
	}

	resp, err := http.Get(ts.URL + "/v1/commands/" + outcome.RequestID)
	if err != nil {
		t.Fatalf("GET command: %v", err)
	}
	var entry history.Entry
	if err := json.Unmarshal(mustStatus(t, resp, http.StatusOK), &entry); err != nil {
		t.Fatalf("decoding entry: %v", err)
	}
	if entry.OutcomeCode != cluster.CodeOK || entry.Kind != "write_content" {
		t.Errorf("journal entry = %+v", entry)
	}

	resp, err = http.Get(ts.URL + "/v1/commands/no-such-request")
	if err != nil {
		t.Fatalf("GET missing command: %v", err)
	}
	mustStatus(t, resp, http.StatusNotFound)
}

func TestInternalPropose(t *testing.T) {
	ts, _ := newTestServer(t)
	seedHTTP(t, ts.URL)

	// Forwarded commands arrive as raw CBOR and apply on the leader.
	encoded, err := codec.Marshal(cluster.NewCreateSubject("carol"))
	if err != nil {
		t.Fatalf("encoding command: %v", err)
	}
	resp, err := http.Post(ts.URL+"/v1/internal/propose", "application/cbor", bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("POST internal propose: %v", err)
	}
	var outcome cluster.Outcome
	if err := json.Unmarshal(mustStatus(t, resp, http.StatusOK), &outcome); err != nil {
		t.Fatalf("decoding outcome: %v", err)
	}
	if !outcome.OK() {
		t.Errorf("forwarded create outcome = %+v", outcome)
	}

	resp, err = http.Get(ts.URL + "/v1/rights/check?subject=carol&object=doc&right=read")
	if err != nil {
		t.Fatalf("GET check: %v", err)
	}
	mustStatus(t, resp, http.StatusOK)
}

func TestMembers(t *testing.T) {
	ts, node := newTestServer(t)

	// Register the node's own addresses the way the daemon does.
	if err := node.EnsureRegistered(t.Context(), "127.0.0.1:7421", "127.0.0.1:7420"); err != nil {
		t.Fatalf("EnsureRegistered: %v", err)
	}

	resp, err := http.Get(ts.URL + "/v1/cluster/members")
	if err != nil {
		t.Fatalf("GET members: %v", err)
	}
	var members []cluster.MemberInfo
	if err := json.Unmarshal(mustStatus(t, resp, http.StatusOK), &members); err != nil {
		t.Fatalf("decoding members: %v", err)
	}
	if len(members) != 1 || !members[0].Leader || members[0].APIAddress != "127.0.0.1:7420" {
		t.Errorf("members = %+v", members)
	}
}

func TestJoinValidation(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/v1/cluster/join", map[string]string{"node_id": "wn-2"})
	body := mustStatus(t, resp, http.StatusBadRequest)
	var errBody ErrorBody
	if err := json.Unmarshal(body, &errBody); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if errBody.Code != cluster.CodeInvalidCommand {
		t.Errorf("code = %q, want %q", errBody.Code, cluster.CodeInvalidCommand)
	}
}

func TestInternalProposeAcceptsCapSizedWrite(t *testing.T) {
	ts, _ := newTestServer(t)
	seedHTTP(t, ts.URL)

	// A write at exactly the content cap passes the gate, but its
	// CBOR envelope is strictly larger than the content. The internal
	// propose route must leave headroom for that overhead, or the
	// same write succeeds locally on the leader yet fails when a
	// follower forwards it.
	contents := bytes.Repeat([]byte{0xA5}, gate.DefaultMaxContentSize)
	encoded, err := codec.Marshal(cluster.NewWriteContent("alice", "doc", contents))
	if err != nil {
		t.Fatalf("encoding command: %v", err)
	}
	if len(encoded) <= gate.DefaultMaxContentSize {
		t.Fatalf("envelope is %d bytes, expected it to exceed the %d content cap",
			len(encoded), gate.DefaultMaxContentSize)
	}

	resp, err := http.Post(ts.URL+"/v1/internal/propose", "application/cbor", bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("POST internal propose: %v", err)
	}
	var outcome cluster.Outcome
	if err := json.Unmarshal(mustStatus(t, resp, http.StatusOK), &outcome); err != nil {
		t.Fatalf("decoding outcome: %v", err)
	}
	if !outcome.OK() {
		t.Errorf("cap-sized forwarded write outcome = %+v", outcome)
	}
}

func TestImportAcceptsSnapshotLargerThanContentCap(t *testing.T) {
	ts, node := newTestServer(t)

	// A full snapshot carries every object's content, so its size is
	// unrelated to the per-object cap. Build one whose container
	// exceeds the cap and import it through the API.
	var payload bytes.Buffer
	state := &snapshot.State{
		Graph: rights.Dump{
			Nodes: []rights.NodeRecord{
				{ID: "archive", Kind: "object"},
				{ID: "keeper", Kind: "subject"},
			},
			Edges: []rights.EdgeRecord{
				{Source: "keeper", Target: "archive", Rights: []string{"read"}},
			},
		},
		Content: []content.Record{
			{ID: "archive", Content: bytes.Repeat([]byte{0x5A}, gate.DefaultMaxContentSize)},
		},
	}
	if err := snapshot.Encode(&payload, state, snapshot.Options{Compression: snapshot.CompressionNone}); err != nil {
		t.Fatalf("encoding snapshot: %v", err)
	}
	if int64(payload.Len()) <= gate.DefaultMaxContentSize {
		t.Fatalf("snapshot is %d bytes, expected it to exceed the %d content cap",
			payload.Len(), gate.DefaultMaxContentSize)
	}

	resp, err := http.Post(ts.URL+"/v1/snapshots/import", "application/octet-stream", &payload)
	if err != nil {
		t.Fatalf("POST import: %v", err)
	}
	var outcome cluster.Outcome
	if err := json.Unmarshal(mustStatus(t, resp, http.StatusOK), &outcome); err != nil {
		t.Fatalf("decoding outcome: %v", err)
	}
	if !outcome.OK() {
		t.Errorf("import outcome = %+v", outcome)
	}
	if _, ok := node.FSM().Content().Get("archive"); !ok {
		t.Error("imported content not present after restore")
	}
}
