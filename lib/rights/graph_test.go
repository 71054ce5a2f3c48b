// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package rights

import (
	"math/rand"
	"testing"
)

// --- Test helpers ---

// newGraph builds a graph with the given subjects and objects,
// failing the test on any error.
func newGraph(t *testing.T, subjects, objects []string) *Graph {
	t.Helper()
	g := New()
	for _, id := range subjects {
		if err := g.CreateSubject(id); err != nil {
			t.Fatalf("CreateSubject(%q): %v", id, err)
		}
	}
	for _, id := range objects {
		if err := g.CreateObject(id); err != nil {
			t.Fatalf("CreateObject(%q): %v", id, err)
		}
	}
	return g
}

// mustAssign seeds a right, failing the test on error.
func mustAssign(t *testing.T, g *Graph, source, target string, right Right) {
	t.Helper()
	if err := g.Assign(source, target, right); err != nil {
		t.Fatalf("Assign(%s, %s, %s): %v", source, target, right, err)
	}
}

// mustDigest returns the graph digest, failing the test on error.
func mustDigest(t *testing.T, g *Graph) string {
	t.Helper()
	d, err := g.Digest()
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	return d.String()
}

// --- Node lifecycle ---

func TestCreateAndKind(t *testing.T) {
	g := newGraph(t, []string{"alice"}, []string{"doc"})

	kind, ok := g.Kind("alice")
	if !ok || kind != KindSubject {
		t.Errorf("Kind(alice) = %v, %v; want subject, true", kind, ok)
	}
	kind, ok = g.Kind("doc")
	if !ok || kind != KindObject {
		t.Errorf("Kind(doc) = %v, %v; want object, true", kind, ok)
	}
	if _, ok := g.Kind("ghost"); ok {
		t.Error("Kind(ghost) reported existence for an absent node")
	}
}

func TestCreateDuplicateSharedNamespace(t *testing.T) {
	g := newGraph(t, []string{"alice"}, nil)

	// Same kind.
	if err := g.CreateSubject("alice"); !IsDuplicateIdentifier(err) {
		t.Errorf("CreateSubject(alice) twice: got %v, want DuplicateIdentifierError", err)
	}
	// Other kind: subjects and objects share one namespace.
	if err := g.CreateObject("alice"); !IsDuplicateIdentifier(err) {
		t.Errorf("CreateObject(alice) over subject: got %v, want DuplicateIdentifierError", err)
	}
}

func TestDeleteRemovesIncidentEdges(t *testing.T) {
	g := newGraph(t, []string{"alice", "bob"}, []string{"doc"})
	mustAssign(t, g, "alice", "doc", RightRead)
	mustAssign(t, g, "bob", "doc", RightRead)
	mustAssign(t, g, "alice", "bob", RightGrant)

	if err := g.DeleteSubject("bob"); err != nil {
		t.Fatalf("DeleteSubject(bob): %v", err)
	}

	if g.HasRight("bob", "doc", RightRead) {
		t.Error("outgoing edge survived node deletion")
	}
	if !g.Rights("alice", "bob").Empty() {
		t.Error("incoming edge survived node deletion")
	}
	if !g.HasRight("alice", "doc", RightRead) {
		t.Error("unrelated edge was removed")
	}
}

func TestDeleteKindChecked(t *testing.T) {
	g := newGraph(t, []string{"alice"}, []string{"doc"})

	if err := g.DeleteObject("alice"); !IsUnknownIdentifier(err) {
		t.Errorf("DeleteObject(subject id): got %v, want UnknownIdentifierError", err)
	}
	if err := g.DeleteSubject("doc"); !IsUnknownIdentifier(err) {
		t.Errorf("DeleteSubject(object id): got %v, want UnknownIdentifierError", err)
	}
	if err := g.DeleteSubject("ghost"); !IsUnknownIdentifier(err) {
		t.Errorf("DeleteSubject(absent): got %v, want UnknownIdentifierError", err)
	}
}

// --- Assign ---

func TestAssignAccumulates(t *testing.T) {
	g := newGraph(t, []string{"alice"}, []string{"doc"})
	mustAssign(t, g, "alice", "doc", RightRead)
	mustAssign(t, g, "alice", "doc", RightWrite)
	mustAssign(t, g, "alice", "doc", RightRead) // repeat does not duplicate

	set := g.Rights("alice", "doc")
	if !set.Has(RightRead) || !set.Has(RightWrite) {
		t.Errorf("Rights(alice, doc) = %s, want read+write", set)
	}
	if len(set.List()) != 2 {
		t.Errorf("set holds %d rights, want 2", len(set.List()))
	}
}

func TestAssignUnknownEndpoint(t *testing.T) {
	g := newGraph(t, []string{"alice"}, nil)

	if err := g.Assign("alice", "ghost", RightRead); !IsUnknownIdentifier(err) {
		t.Errorf("Assign to absent target: got %v, want UnknownIdentifierError", err)
	}
	if err := g.Assign("ghost", "alice", RightRead); !IsUnknownIdentifier(err) {
		t.Errorf("Assign from absent source: got %v, want UnknownIdentifierError", err)
	}
}

// --- Grant law ---

func TestGrantLaw(t *testing.T) {
	// Grant(g, e, o, r) succeeds iff g→o ∋ r AND g→e ∋ grant.
	tests := []struct {
		name          string
		granterHolds  bool // alice→doc ∋ read
		granterGrants bool // alice→bob ∋ grant
		wantSuccess   bool
	}{
		{"both preconditions", true, true, true},
		{"missing right over object", false, true, false},
		{"missing grant over grantee", true, false, false},
		{"missing both", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGraph(t, []string{"alice", "bob"}, []string{"doc"})
			if tt.granterHolds {
				mustAssign(t, g, "alice", "doc", RightRead)
			}
			if tt.granterGrants {
				mustAssign(t, g, "alice", "bob", RightGrant)
			}

			err := g.Grant("alice", "bob", "doc", RightRead)
			if tt.wantSuccess {
				if err != nil {
					t.Fatalf("Grant: %v", err)
				}
				if !g.HasRight("bob", "doc", RightRead) {
					t.Error("grantee did not receive the right")
				}
			} else {
				if !IsPermissionDenied(err) {
					t.Fatalf("Grant: got %v, want PermissionDeniedError", err)
				}
				if g.HasRight("bob", "doc", RightRead) {
					t.Error("denied grant still mutated the graph")
				}
			}
		})
	}
}

func TestGrantUnknownEndpoints(t *testing.T) {
	g := newGraph(t, []string{"alice", "bob"}, []string{"doc"})
	mustAssign(t, g, "alice", "doc", RightRead)
	mustAssign(t, g, "alice", "bob", RightGrant)

	for _, args := range [][3]string{
		{"ghost", "bob", "doc"},
		{"alice", "ghost", "doc"},
		{"alice", "bob", "ghost"},
	} {
		if err := g.Grant(args[0], args[1], args[2], RightRead); !IsUnknownIdentifier(err) {
			t.Errorf("Grant(%v): got %v, want UnknownIdentifierError", args, err)
		}
	}
}

// --- Take law ---

func TestTakeLaw(t *testing.T) {
	// Take(t, s, o, r) succeeds iff t→s ∋ take AND s→o ∋ r.
	tests := []struct {
		name        string
		takerTakes  bool // bob→alice ∋ take
		sourceHolds bool // alice→doc ∋ write
		wantSuccess bool
	}{
		{"both preconditions", true, true, true},
		{"missing take over source", false, true, false},
		{"source missing right", true, false, false},
		{"missing both", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGraph(t, []string{"alice", "bob"}, []string{"doc"})
			if tt.takerTakes {
				mustAssign(t, g, "bob", "alice", RightTake)
			}
			if tt.sourceHolds {
				mustAssign(t, g, "alice", "doc", RightWrite)
			}

			err := g.Take("bob", "alice", "doc", RightWrite)
			if tt.wantSuccess {
				if err != nil {
					t.Fatalf("Take: %v", err)
				}
				if !g.HasRight("bob", "doc", RightWrite) {
					t.Error("taker did not receive the right")
				}
				if !g.HasRight("alice", "doc", RightWrite) {
					t.Error("take removed the source's right; take copies, never moves")
				}
			} else {
				if !IsPermissionDenied(err) {
					t.Fatalf("Take: got %v, want PermissionDeniedError", err)
				}
				if g.HasRight("bob", "doc", RightWrite) {
					t.Error("denied take still mutated the graph")
				}
			}
		})
	}
}

// --- Revoke ---

func TestRevokeRequiresOwnership(t *testing.T) {
	g := newGraph(t, []string{"alice", "bob"}, []string{"doc"})
	mustAssign(t, g, "bob", "doc", RightRead)

	if err := g.Revoke("alice", "bob", "doc", RightRead); !IsPermissionDenied(err) {
		t.Fatalf("Revoke without own: got %v, want PermissionDeniedError", err)
	}
	if !g.HasRight("bob", "doc", RightRead) {
		t.Error("denied revoke still removed the right")
	}

	mustAssign(t, g, "alice", "doc", RightOwn)
	if err := g.Revoke("alice", "bob", "doc", RightRead); err != nil {
		t.Fatalf("Revoke with own: %v", err)
	}
	if g.HasRight("bob", "doc", RightRead) {
		t.Error("revoked right still present")
	}
}

func TestRevokeIdempotent(t *testing.T) {
	g := newGraph(t, []string{"alice", "bob"}, []string{"doc"})
	mustAssign(t, g, "alice", "doc", RightOwn)
	mustAssign(t, g, "bob", "doc", RightRead)

	if err := g.Revoke("alice", "bob", "doc", RightRead); err != nil {
		t.Fatalf("first Revoke: %v", err)
	}
	before := mustDigest(t, g)

	// Second identical revoke is a successful no-op, not corruption.
	if err := g.Revoke("alice", "bob", "doc", RightRead); err != nil {
		t.Fatalf("second Revoke: %v", err)
	}
	if after := mustDigest(t, g); after != before {
		t.Errorf("second revoke changed the graph: %s != %s", after, before)
	}
}

func TestRevokePrunesEmptyEdge(t *testing.T) {
	g := newGraph(t, []string{"alice", "bob"}, []string{"doc"})
	mustAssign(t, g, "alice", "doc", RightOwn)
	mustAssign(t, g, "bob", "doc", RightRead)

	if err := g.Revoke("alice", "bob", "doc", RightRead); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	// The pruned edge must not appear in the dump.
	for _, edge := range g.Dump().Edges {
		if edge.Source == "bob" && edge.Target == "doc" {
			t.Errorf("empty edge bob→doc survived in dump with rights %v", edge.Rights)
		}
	}
	if g.Stats().Edges != 1 {
		t.Errorf("Stats().Edges = %d, want 1 (only alice→doc)", g.Stats().Edges)
	}
}

// --- Determinism ---

// TestReplayDeterminism drives two independent graphs through an
// identical pseudo-random operation sequence (including failing
// operations) and requires bit-identical results. This is the
// property the replicated apply path depends on.
func TestReplayDeterminism(t *testing.T) {
	run := func(seed int64) string {
		g := New()
		rng := rand.New(rand.NewSource(seed))
		ids := []string{"a", "b", "c", "d", "e"}
		rightsPool := []Right{RightRead, RightWrite, RightGrant, RightTake, RightOwn}

		pick := func() string { return ids[rng.Intn(len(ids))] }
		pickRight := func() Right { return rightsPool[rng.Intn(len(rightsPool))] }

		for i := 0; i < 500; i++ {
			switch rng.Intn(8) {
			case 0:
				g.CreateSubject(pick())
			case 1:
				g.CreateObject(pick())
			case 2:
				g.DeleteSubject(pick())
			case 3:
				g.DeleteObject(pick())
			case 4:
				g.Assign(pick(), pick(), pickRight())
			case 5:
				g.Grant(pick(), pick(), pick(), pickRight())
			case 6:
				g.Take(pick(), pick(), pick(), pickRight())
			case 7:
				g.Revoke(pick(), pick(), pick(), pickRight())
			}
		}

		d, err := g.Digest()
		if err != nil {
			t.Fatalf("Digest: %v", err)
		}
		return d.String()
	}

	for _, seed := range []int64{1, 7, 42, 1337} {
		first := run(seed)
		second := run(seed)
		if first != second {
			t.Errorf("seed %d: replay diverged: %s != %s", seed, first, second)
		}
	}
}

// --- Dump / Restore / Clone ---

func TestDumpCanonicalOrder(t *testing.T) {
	g := newGraph(t, []string{"zoe", "alice"}, []string{"doc", "bin"})
	mustAssign(t, g, "zoe", "doc", RightWrite)
	mustAssign(t, g, "alice", "doc", RightOwn)
	mustAssign(t, g, "alice", "bin", RightRead)

	dump := g.Dump()

	wantNodes := []string{"alice", "bin", "doc", "zoe"}
	for i, want := range wantNodes {
		if dump.Nodes[i].ID != want {
			t.Errorf("Nodes[%d].ID = %q, want %q", i, dump.Nodes[i].ID, want)
		}
	}

	wantEdges := [][2]string{{"alice", "bin"}, {"alice", "doc"}, {"zoe", "doc"}}
	for i, want := range wantEdges {
		if dump.Edges[i].Source != want[0] || dump.Edges[i].Target != want[1] {
			t.Errorf("Edges[%d] = %s→%s, want %s→%s",
				i, dump.Edges[i].Source, dump.Edges[i].Target, want[0], want[1])
		}
	}
}

func TestRestoreRoundtrip(t *testing.T) {
	g := newGraph(t, []string{"alice", "bob"}, []string{"doc"})
	mustAssign(t, g, "alice", "doc", RightOwn)
	mustAssign(t, g, "alice", "doc", RightWrite)
	mustAssign(t, g, "alice", "bob", RightGrant)
	before := mustDigest(t, g)

	restored := New()
	if err := restored.Restore(g.Dump()); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if after := mustDigest(t, restored); after != before {
		t.Errorf("restored digest %s != original %s", after, before)
	}
}

func TestRestoreValidation(t *testing.T) {
	tests := []struct {
		name string
		dump Dump
	}{
		{"bad kind", Dump{Nodes: []NodeRecord{{ID: "x", Kind: "directory"}}}},
		{"empty id", Dump{Nodes: []NodeRecord{{ID: "", Kind: "subject"}}}},
		{"duplicate node", Dump{Nodes: []NodeRecord{
			{ID: "x", Kind: "subject"}, {ID: "x", Kind: "object"},
		}}},
		{"edge without source", Dump{
			Nodes: []NodeRecord{{ID: "doc", Kind: "object"}},
			Edges: []EdgeRecord{{Source: "ghost", Target: "doc", Rights: []string{"read"}}},
		}},
		{"edge without target", Dump{
			Nodes: []NodeRecord{{ID: "alice", Kind: "subject"}},
			Edges: []EdgeRecord{{Source: "alice", Target: "ghost", Rights: []string{"read"}}},
		}},
		{"bad right name", Dump{
			Nodes: []NodeRecord{{ID: "a", Kind: "subject"}, {ID: "o", Kind: "object"}},
			Edges: []EdgeRecord{{Source: "a", Target: "o", Rights: []string{"execute"}}},
		}},
		{"empty right set", Dump{
			Nodes: []NodeRecord{{ID: "a", Kind: "subject"}, {ID: "o", Kind: "object"}},
			Edges: []EdgeRecord{{Source: "a", Target: "o", Rights: []string{}}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGraph(t, []string{"keep"}, nil)
			if err := g.Restore(tt.dump); err == nil {
				t.Fatal("Restore accepted an invalid dump")
			}
			// Failed restore must leave the graph untouched.
			if _, ok := g.Kind("keep"); !ok {
				t.Error("failed Restore mutated the graph")
			}
		})
	}
}

func TestCloneIndependent(t *testing.T) {
	g := newGraph(t, []string{"alice"}, []string{"doc"})
	mustAssign(t, g, "alice", "doc", RightRead)

	clone := g.Clone()
	mustAssign(t, clone, "alice", "doc", RightWrite)

	if g.HasRight("alice", "doc", RightWrite) {
		t.Error("mutating the clone leaked into the original")
	}
	if !clone.HasRight("alice", "doc", RightRead) {
		t.Error("clone lost an existing right")
	}
}

func TestStats(t *testing.T) {
	g := newGraph(t, []string{"alice", "bob"}, []string{"doc"})
	mustAssign(t, g, "alice", "doc", RightOwn)

	stats := g.Stats()
	if stats.Subjects != 2 || stats.Objects != 1 || stats.Edges != 1 {
		t.Errorf("Stats = %+v, want {Subjects:2 Objects:1 Edges:1}", stats)
	}
}
