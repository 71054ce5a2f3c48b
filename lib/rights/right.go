// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package rights

import (
	"fmt"
	"strings"
)

// Right is a single named permission attached to a directed edge
// between two nodes. Represented as a bitflag so a full right set
// fits in one byte, which keeps replicated command payloads and
// snapshot records compact and trivially deterministic to encode.
type Right uint8

const (
	// RightRead permits reading an object's stored content.
	RightRead Right = 1 << iota

	// RightWrite permits replacing an object's stored content.
	RightWrite

	// RightGrant held over a subject permits extending one's own
	// rights to that subject.
	RightGrant

	// RightTake held over a node permits pulling that node's rights
	// without its participation.
	RightTake

	// RightOwn marks creator/owner semantics and carries revocation
	// authority.
	RightOwn
)

// allRights lists every defined right in canonical order (ascending
// bit position). Iteration over rights must use this slice, never a
// map, so derived output (dumps, digests, wire payloads) is stable.
var allRights = []Right{RightRead, RightWrite, RightGrant, RightTake, RightOwn}

// rightNames maps each right to its wire/API name.
var rightNames = map[Right]string{
	RightRead:  "read",
	RightWrite: "write",
	RightGrant: "grant",
	RightTake:  "take",
	RightOwn:   "own",
}

// String returns the lowercase wire name of the right, or a hex
// literal for undefined bits.
func (r Right) String() string {
	if name, ok := rightNames[r]; ok {
		return name
	}
	return fmt.Sprintf("right(0x%02x)", uint8(r))
}

// Valid reports whether r is exactly one defined right.
func (r Right) Valid() bool {
	_, ok := rightNames[r]
	return ok
}

// ParseRight converts a wire/API name ("read", "write", "grant",
// "take", "own") into a Right.
func ParseRight(name string) (Right, error) {
	for right, rightName := range rightNames {
		if rightName == name {
			return right, nil
		}
	}
	return 0, fmt.Errorf("unknown right %q (expected read, write, grant, take, or own)", name)
}

// RightSet is the set of rights one node holds over another: the
// label of a single graph edge. The zero value is the empty set,
// which is equivalent to the edge not existing.
type RightSet uint8

// Has reports whether the set contains r.
func (s RightSet) Has(r Right) bool {
	return s&RightSet(r) != 0
}

// With returns the set extended by r.
func (s RightSet) With(r Right) RightSet {
	return s | RightSet(r)
}

// Without returns the set with r removed.
func (s RightSet) Without(r Right) RightSet {
	return s &^ RightSet(r)
}

// Union returns the union of both sets.
func (s RightSet) Union(other RightSet) RightSet {
	return s | other
}

// Empty reports whether the set contains no rights. An edge whose
// set is empty must be pruned from the graph.
func (s RightSet) Empty() bool {
	return s == 0
}

// rightSetMask covers every defined right bit. Bits outside the mask
// can only come from corrupted or newer wire data.
const rightSetMask = RightSet(RightRead | RightWrite | RightGrant | RightTake | RightOwn)

// Valid reports whether the set contains only defined right bits.
// Decode paths that accept a raw bitset must check this before
// trusting the value.
func (s RightSet) Valid() bool {
	return s&^rightSetMask == 0
}

// List returns the contained rights in canonical order.
func (s RightSet) List() []Right {
	var list []Right
	for _, right := range allRights {
		if s.Has(right) {
			list = append(list, right)
		}
	}
	return list
}

// Strings returns the contained rights' wire names in canonical
// order. Returns an empty (non-nil) slice for the empty set so JSON
// output renders [] rather than null.
func (s RightSet) Strings() []string {
	names := make([]string, 0, 5)
	for _, right := range allRights {
		if s.Has(right) {
			names = append(names, right.String())
		}
	}
	return names
}

// String returns the contained rights joined with "+", or "none".
func (s RightSet) String() string {
	if s.Empty() {
		return "none"
	}
	return strings.Join(s.Strings(), "+")
}

// ParseRights converts a slice of wire names into a RightSet.
// Duplicate names are tolerated (sets do not duplicate).
func ParseRights(names []string) (RightSet, error) {
	var set RightSet
	for _, name := range names {
		right, err := ParseRight(name)
		if err != nil {
			return 0, err
		}
		set = set.With(right)
	}
	return set, nil
}
