// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"fmt"
	"sort"
	"sync"

	"github.com/warden-foundation/warden/lib/snapshot"
)

// addressBook is the replicated member address map: raft server ID to
// advertised raft and API addresses. It exists so any node can turn
// "the leader is wn-2" into an API address for forwarding and
// NotLeader hints. Mutated only by the FSM apply path
// (register_node/deregister_node commands and snapshot restore), read
// concurrently.
type addressBook struct {
	mu      sync.RWMutex
	members map[string]snapshot.Member
}

func newAddressBook() *addressBook {
	return &addressBook{members: make(map[string]snapshot.Member)}
}

// register adds or replaces the entry for member.ID. Re-registration
// is how a restarted node updates a changed address.
func (b *addressBook) register(member snapshot.Member) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.members[member.ID] = member
}

// deregister drops the entry for id. Dropping an absent entry is a
// no-op so leave commands are idempotent.
func (b *addressBook) deregister(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.members, id)
}

// lookup returns the entry for id, if present.
func (b *addressBook) lookup(id string) (snapshot.Member, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	member, ok := b.members[id]
	return member, ok
}

// dump returns every entry sorted by node ID, the book's canonical
// form for snapshots and the members API.
func (b *addressBook) dump() []snapshot.Member {
	b.mu.RLock()
	defer b.mu.RUnlock()

	members := make([]snapshot.Member, 0, len(b.members))
	for _, member := range b.members {
		members = append(members, member)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members
}

// restore replaces the book wholesale from a snapshot. On error the
// book is left unchanged.
func (b *addressBook) restore(members []snapshot.Member) error {
	replacement := make(map[string]snapshot.Member, len(members))
	for _, member := range members {
		if member.ID == "" {
			return fmt.Errorf("member with empty node ID")
		}
		if _, exists := replacement[member.ID]; exists {
			return fmt.Errorf("member %q listed twice", member.ID)
		}
		replacement[member.ID] = member
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.members = replacement
	return nil
}
