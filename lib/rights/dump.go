// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package rights

import (
	"fmt"
	"sort"

	"github.com/warden-foundation/warden/lib/codec"
	"github.com/warden-foundation/warden/lib/digest"
)

// NodeRecord is one node in a graph dump.
type NodeRecord struct {
	// ID is the node identifier.
	ID string `json:"id"`

	// Kind is "subject" or "object".
	Kind string `json:"kind"`
}

// EdgeRecord is one directed edge in a graph dump.
type EdgeRecord struct {
	// Source is the identifier holding the rights.
	Source string `json:"source"`

	// Target is the identifier the rights are held over.
	Target string `json:"target"`

	// Rights lists the held rights' wire names in canonical order.
	Rights []string `json:"rights"`
}

// Dump is a canonical listing of the full graph: nodes sorted by
// identifier, edges sorted by (source, target), rights in canonical
// order. Identical graphs always produce identical dumps, so the
// dump is the unit of replica comparison, the API's graph view, and
// the graph portion of a snapshot.
type Dump struct {
	// Nodes lists every node, sorted by identifier.
	Nodes []NodeRecord `json:"nodes"`

	// Edges lists every edge with a non-empty right set, sorted by
	// source then target.
	Edges []EdgeRecord `json:"edges"`
}

// Dump returns the canonical listing of the graph.
func (g *Graph) Dump() Dump {
	g.mu.RLock()
	defer g.mu.RUnlock()

	dump := Dump{
		Nodes: make([]NodeRecord, 0, len(g.nodes)),
		Edges: make([]EdgeRecord, 0, len(g.edges)),
	}
	for id, kind := range g.nodes {
		dump.Nodes = append(dump.Nodes, NodeRecord{ID: id, Kind: kind.String()})
	}
	for key, set := range g.edges {
		dump.Edges = append(dump.Edges, EdgeRecord{
			Source: key.source,
			Target: key.target,
			Rights: set.Strings(),
		})
	}

	sort.Slice(dump.Nodes, func(i, j int) bool {
		return dump.Nodes[i].ID < dump.Nodes[j].ID
	})
	sort.Slice(dump.Edges, func(i, j int) bool {
		if dump.Edges[i].Source != dump.Edges[j].Source {
			return dump.Edges[i].Source < dump.Edges[j].Source
		}
		return dump.Edges[i].Target < dump.Edges[j].Target
	})
	return dump
}

// Restore replaces the graph contents wholesale from a dump,
// validating node kinds, right names, edge endpoints, and empty
// right sets. On error the graph is left unchanged. Used by snapshot
// installation; the one Graph instance lives for the process
// lifetime, so replacement happens in place under the write lock.
func (g *Graph) Restore(dump Dump) error {
	nodes := make(map[string]NodeKind, len(dump.Nodes))
	for _, record := range dump.Nodes {
		kind, err := ParseNodeKind(record.Kind)
		if err != nil {
			return fmt.Errorf("node %q: %w", record.ID, err)
		}
		if record.ID == "" {
			return fmt.Errorf("node with empty identifier")
		}
		if _, exists := nodes[record.ID]; exists {
			return fmt.Errorf("node %q listed twice", record.ID)
		}
		nodes[record.ID] = kind
	}

	edges := make(map[edgeKey]RightSet, len(dump.Edges))
	for _, record := range dump.Edges {
		if _, ok := nodes[record.Source]; !ok {
			return fmt.Errorf("edge %s→%s: source is not a node", record.Source, record.Target)
		}
		if _, ok := nodes[record.Target]; !ok {
			return fmt.Errorf("edge %s→%s: target is not a node", record.Source, record.Target)
		}
		set, err := ParseRights(record.Rights)
		if err != nil {
			return fmt.Errorf("edge %s→%s: %w", record.Source, record.Target, err)
		}
		if set.Empty() {
			return fmt.Errorf("edge %s→%s: empty right set", record.Source, record.Target)
		}
		key := edgeKey{record.Source, record.Target}
		if _, exists := edges[key]; exists {
			return fmt.Errorf("edge %s→%s listed twice", record.Source, record.Target)
		}
		edges[key] = set
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = nodes
	g.edges = edges
	return nil
}

// Clone returns a deep copy with its own lock. Used for the scratch
// graphs of reachability closure and policy evaluation.
func (g *Graph) Clone() *Graph {
	g.mu.RLock()
	defer g.mu.RUnlock()

	clone := New()
	for id, kind := range g.nodes {
		clone.nodes[id] = kind
	}
	for key, set := range g.edges {
		clone.edges[key] = set
	}
	return clone
}

// Digest returns the graph-domain BLAKE3 digest of the canonical
// dump. Two replicas report equal digests exactly when their graphs
// are identical.
func (g *Graph) Digest() (digest.Hash, error) {
	encoded, err := codec.Marshal(g.Dump())
	if err != nil {
		return digest.Hash{}, fmt.Errorf("encoding graph dump: %w", err)
	}
	return digest.Graph(encoded), nil
}
