// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package rights

// ReachableRights returns every right subject could eventually obtain
// over object through any sequence of legal grant/take steps starting
// from the current graph state — not only the directly held set. It
// answers the SPM safety question "can this subject ever reach this
// right", which the delegation guard uses to test candidate edges
// before they commit.
//
// Computed by fixed-point closure on a scratch copy: the grant rule
// (x holds grant over y ⟹ y can come to hold everything x holds) and
// the take rule (x holds take over y ⟹ x can come to hold everything
// y holds) are applied until no edge set grows. At most |V|² edges of
// five bits each exist, every pass that continues grows at least one
// of them, so termination is guaranteed. The fixed point is unique,
// making the result independent of iteration order, and recomputing
// without an intervening mutation returns an identical set.
//
// Fails with UnknownIdentifierError if either endpoint is absent.
func (g *Graph) ReachableRights(subject, object string) (RightSet, error) {
	g.mu.RLock()
	if _, ok := g.nodes[subject]; !ok {
		g.mu.RUnlock()
		return 0, &UnknownIdentifierError{ID: subject}
	}
	if _, ok := g.nodes[object]; !ok {
		g.mu.RUnlock()
		return 0, &UnknownIdentifierError{ID: object}
	}
	scratch := make(map[edgeKey]RightSet, len(g.edges))
	for key, set := range g.edges {
		scratch[key] = set
	}
	g.mu.RUnlock()

	closeOver(scratch)
	return scratch[edgeKey{subject, object}], nil
}

// closeOver grows scratch to its delegation fixed point in place.
func closeOver(scratch map[edgeKey]RightSet) {
	type edge struct {
		key edgeKey
		set RightSet
	}

	for {
		// Work from a stable copy of the current pass so synthesized
		// edges only take effect in the next pass. The fixed point is
		// the same either way; this keeps each pass well-defined.
		current := make([]edge, 0, len(scratch))
		for key, set := range scratch {
			current = append(current, edge{key, set})
		}

		changed := false
		for _, delegation := range current {
			if delegation.set.Has(RightGrant) {
				// x holds grant over y: x can grant y any right x
				// holds over any o, so y's edge to each such o
				// absorbs x's.
				x, y := delegation.key.source, delegation.key.target
				for _, held := range current {
					if held.key.source != x {
						continue
					}
					target := edgeKey{y, held.key.target}
					merged := scratch[target].Union(held.set)
					if merged != scratch[target] {
						scratch[target] = merged
						changed = true
					}
				}
			}
			if delegation.set.Has(RightTake) {
				// x holds take over y: x can pull any right y holds.
				x, y := delegation.key.source, delegation.key.target
				for _, held := range current {
					if held.key.source != y {
						continue
					}
					target := edgeKey{x, held.key.target}
					merged := scratch[target].Union(held.set)
					if merged != scratch[target] {
						scratch[target] = merged
						changed = true
					}
				}
			}
		}

		if !changed {
			return
		}
	}
}

// HasMutualDelegationCycle reports whether any two distinct nodes
// each hold both grant and take over the other. Such a pair can
// launder any right either ever obtains back and forth indefinitely,
// which the delegation guard can be configured to block.
func (g *Graph) HasMutualDelegationCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	both := RightSet(0).With(RightGrant).With(RightTake)
	for key, set := range g.edges {
		if key.source == key.target {
			continue
		}
		if set&both != both {
			continue
		}
		if reverse := g.edges[edgeKey{key.target, key.source}]; reverse&both == both {
			return true
		}
	}
	return false
}
