// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package rights

import (
	"fmt"
	"sync"
)

// NodeKind distinguishes subjects (actors that hold rights) from
// objects (resources rights are held over). Subjects and objects
// share one identifier namespace: an identifier never exists under
// both kinds at once.
type NodeKind uint8

const (
	// KindSubject is an actor: it can appear as the source of edges
	// and as the actor of grant/take/revoke operations.
	KindSubject NodeKind = 1

	// KindObject is a resource. Objects can still appear as edge
	// sources (a take can pull rights "held" by an object), but they
	// never act.
	KindObject NodeKind = 2
)

// String returns "subject" or "object".
func (k NodeKind) String() string {
	switch k {
	case KindSubject:
		return "subject"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Valid reports whether k is a defined kind.
func (k NodeKind) Valid() bool {
	return k == KindSubject || k == KindObject
}

// ParseNodeKind converts a wire name into a NodeKind.
func ParseNodeKind(name string) (NodeKind, error) {
	switch name {
	case "subject":
		return KindSubject, nil
	case "object":
		return KindObject, nil
	default:
		return 0, fmt.Errorf("unknown node kind %q (expected subject or object)", name)
	}
}

// edgeKey identifies the single directed edge from source to target.
type edgeKey struct {
	source string
	target string
}

// Graph is the rights graph: subjects and objects as nodes, rights
// held by one node over another as labeled directed edges. It
// supports concurrent read access with single-writer updates: the
// replicated apply path is the only mutator, while request handlers
// query concurrently. Readers observe either the pre- or post-state
// of an in-flight apply, never a partial one.
//
// Every mutation is deterministic given the current graph and its
// input: replaying the same sequence of calls on two empty graphs
// yields identical graphs. Nothing here may iterate a map into a
// result without sorting — that determinism is what the replication
// layer depends on.
//
// Invariants: every edge's endpoints exist as nodes; an edge whose
// right set is empty is pruned (holding no rights and holding no edge
// are the same state).
type Graph struct {
	mu sync.RWMutex

	// nodes maps identifier → kind.
	nodes map[string]NodeKind

	// edges maps (source, target) → the rights source holds over
	// target. Absent key means no rights.
	edges map[edgeKey]RightSet
}

// New creates an empty rights graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]NodeKind),
		edges: make(map[edgeKey]RightSet),
	}
}

// CreateSubject adds a subject node. Fails with
// DuplicateIdentifierError if the identifier already exists under
// either kind.
func (g *Graph) CreateSubject(id string) error {
	return g.createNode(id, KindSubject)
}

// CreateObject adds an object node. Fails with
// DuplicateIdentifierError if the identifier already exists under
// either kind.
func (g *Graph) CreateObject(id string) error {
	return g.createNode(id, KindObject)
}

func (g *Graph) createNode(id string, kind NodeKind) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[id]; exists {
		return &DuplicateIdentifierError{ID: id}
	}
	g.nodes[id] = kind
	return nil
}

// DeleteSubject removes a subject and every edge incident to it,
// incoming and outgoing. Fails with UnknownIdentifierError if the
// identifier is absent or names an object.
func (g *Graph) DeleteSubject(id string) error {
	return g.deleteNode(id, KindSubject)
}

// DeleteObject removes an object and every edge incident to it.
// Fails with UnknownIdentifierError if the identifier is absent or
// names a subject. Deleting an object does not touch any stored
// content; the content index is a separate structure maintained by
// the same apply path.
func (g *Graph) DeleteObject(id string) error {
	return g.deleteNode(id, KindObject)
}

func (g *Graph) deleteNode(id string, kind NodeKind) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	existing, ok := g.nodes[id]
	if !ok || existing != kind {
		return &UnknownIdentifierError{ID: id}
	}

	delete(g.nodes, id)
	for key := range g.edges {
		if key.source == id || key.target == id {
			delete(g.edges, key)
		}
	}
	return nil
}

// Assign adds right to the edge source→target unconditionally. This
// is the administrative seeding operation: it bypasses the
// grant/take delegation preconditions and is how initial rights
// (including ownership) enter the graph. Fails with
// UnknownIdentifierError if either endpoint is absent.
func (g *Graph) Assign(source, target string, right Right) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.requireNodesLocked(source, target); err != nil {
		return err
	}
	g.addRightLocked(source, target, right)
	return nil
}

// Grant extends one of the granter's rights to the grantee: it adds
// right to the edge grantee→object, creating the edge if absent.
// Preconditions: the granter currently holds right over the object,
// and the granter holds grant over the grantee. Fails with
// PermissionDeniedError when either precondition is missing, and
// with UnknownIdentifierError when any endpoint is absent.
func (g *Graph) Grant(granter, grantee, object string, right Right) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.grantPreconditionsLocked(granter, grantee, object, right); err != nil {
		return err
	}
	g.addRightLocked(grantee, object, right)
	return nil
}

// CheckGrant verifies Grant's preconditions without mutating: same
// errors Grant would return, no edge added. The apply path checks
// preconditions first so a delegation-policy evaluation only runs on
// grants that would otherwise succeed.
func (g *Graph) CheckGrant(granter, grantee, object string, right Right) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.grantPreconditionsLocked(granter, grantee, object, right)
}

func (g *Graph) grantPreconditionsLocked(granter, grantee, object string, right Right) error {
	if err := g.requireNodesLocked(granter, grantee, object); err != nil {
		return err
	}
	if !g.edges[edgeKey{granter, object}].Has(right) {
		return &PermissionDeniedError{
			Reason: fmt.Sprintf("granter %q does not hold %s over %q", granter, right, object),
		}
	}
	if !g.edges[edgeKey{granter, grantee}].Has(RightGrant) {
		return &PermissionDeniedError{
			Reason: fmt.Sprintf("granter %q does not hold grant over %q", granter, grantee),
		}
	}
	return nil
}

// Take pulls one of the source's rights without the source's
// participation: it adds right to the edge taker→object.
// Preconditions: the taker holds take over the source, and the
// source currently holds right over the object. Failure modes mirror
// Grant.
func (g *Graph) Take(taker, source, object string, right Right) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.takePreconditionsLocked(taker, source, object, right); err != nil {
		return err
	}
	g.addRightLocked(taker, object, right)
	return nil
}

// CheckTake verifies Take's preconditions without mutating, the
// read-only twin of CheckGrant.
func (g *Graph) CheckTake(taker, source, object string, right Right) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.takePreconditionsLocked(taker, source, object, right)
}

func (g *Graph) takePreconditionsLocked(taker, source, object string, right Right) error {
	if err := g.requireNodesLocked(taker, source, object); err != nil {
		return err
	}
	if !g.edges[edgeKey{taker, source}].Has(RightTake) {
		return &PermissionDeniedError{
			Reason: fmt.Sprintf("taker %q does not hold take over %q", taker, source),
		}
	}
	if !g.edges[edgeKey{source, object}].Has(right) {
		return &PermissionDeniedError{
			Reason: fmt.Sprintf("source %q does not hold %s over %q", source, right, object),
		}
	}
	return nil
}

// Revoke removes right from the edge holder→object, pruning the edge
// if its set empties. Precondition: the revoker holds own over the
// object. Revoking a right the holder does not hold is a successful
// no-op, so revoke is idempotent. Fails with PermissionDeniedError
// when the revoker lacks ownership, UnknownIdentifierError for
// absent endpoints.
func (g *Graph) Revoke(revoker, holder, object string, right Right) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.requireNodesLocked(revoker, holder, object); err != nil {
		return err
	}
	if !g.edges[edgeKey{revoker, object}].Has(RightOwn) {
		return &PermissionDeniedError{
			Reason: fmt.Sprintf("revoker %q does not hold own over %q", revoker, object),
		}
	}
	g.removeRightLocked(holder, object, right)
	return nil
}

// HasRight reports whether subject currently holds right over object.
// Point query, no side effects; absent endpoints simply report false.
func (g *Graph) HasRight(subject, object string, right Right) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.edges[edgeKey{subject, object}].Has(right)
}

// Rights returns the set of rights source directly holds over
// target. The empty set means no edge.
func (g *Graph) Rights(source, target string) RightSet {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.edges[edgeKey{source, target}]
}

// Kind reports the kind of the identifier, and whether it exists.
func (g *Graph) Kind(id string) (NodeKind, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	kind, ok := g.nodes[id]
	return kind, ok
}

// Stats summarizes graph size for status output.
type Stats struct {
	// Subjects is the number of subject nodes.
	Subjects int `json:"subjects"`

	// Objects is the number of object nodes.
	Objects int `json:"objects"`

	// Edges is the number of directed edges with a non-empty right
	// set.
	Edges int `json:"edges"`
}

// Stats returns current node and edge counts.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var stats Stats
	for _, kind := range g.nodes {
		if kind == KindSubject {
			stats.Subjects++
		} else {
			stats.Objects++
		}
	}
	stats.Edges = len(g.edges)
	return stats
}

// requireNodesLocked verifies every identifier exists (under either
// kind), returning UnknownIdentifierError for the first missing one.
// Callers hold the write lock.
func (g *Graph) requireNodesLocked(ids ...string) error {
	for _, id := range ids {
		if _, ok := g.nodes[id]; !ok {
			return &UnknownIdentifierError{ID: id}
		}
	}
	return nil
}

// addRightLocked adds right to the source→target edge, creating it
// if absent. Callers hold the write lock and have verified both
// endpoints.
func (g *Graph) addRightLocked(source, target string, right Right) {
	key := edgeKey{source, target}
	g.edges[key] = g.edges[key].With(right)
}

// removeRightLocked removes right from the source→target edge and
// prunes the edge when the set empties. No-op when the edge or right
// is absent. Callers hold the write lock.
func (g *Graph) removeRightLocked(source, target string, right Right) {
	key := edgeKey{source, target}
	remaining := g.edges[key].Without(right)
	if remaining.Empty() {
		delete(g.edges, key)
		return
	}
	g.edges[key] = remaining
}
