// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package content provides the replicated object-content index: a
// mapping from object identifier to the single current version of its
// stored bytes. Like the rights graph, the index is mutated only by
// the replicated apply path and read concurrently by request
// handlers; unlike a file store, there is no history, no directories,
// and no metadata beyond a content digest.
package content

import (
	"fmt"
	"sort"
	"sync"

	"github.com/warden-foundation/warden/lib/digest"
)

// Index holds object content with single-writer/many-reader locking.
// Stored slices are copied on the way in and out so neither the apply
// path nor API handlers can alias the index's backing memory.
type Index struct {
	mu sync.RWMutex

	objects map[string][]byte
}

// NewIndex creates an empty content index.
func NewIndex() *Index {
	return &Index{objects: make(map[string][]byte)}
}

// Get returns a copy of the stored content for id, and whether any
// content is stored. Objects exist in the rights graph before any
// content is written, so absence here is an expected state, not an
// inconsistency.
func (idx *Index) Get(id string) ([]byte, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	stored, ok := idx.objects[id]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(stored))
	copy(out, stored)
	return out, true
}

// Put replaces the stored content for id. The previous version is
// discarded; the index keeps exactly one current version per object.
func (idx *Index) Put(id string, contents []byte) {
	stored := make([]byte, len(contents))
	copy(stored, contents)

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.objects[id] = stored
}

// Delete removes the stored content for id, if any. Invoked by the
// apply path when the owning object is deleted from the graph.
func (idx *Index) Delete(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.objects, id)
}

// Digest returns the content-domain BLAKE3 digest of the stored
// content for id, and whether any content is stored.
func (idx *Index) Digest(id string) (digest.Hash, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	stored, ok := idx.objects[id]
	if !ok {
		return digest.Hash{}, false
	}
	return digest.Content(stored), true
}

// Len returns the number of objects with stored content.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.objects)
}

// Record is one object's content in a canonical index dump.
type Record struct {
	// ID is the object identifier.
	ID string `json:"id"`

	// Content is the stored bytes.
	Content []byte `json:"content"`
}

// Dump returns every stored object sorted by identifier. The dump is
// the content portion of a snapshot; sorting keeps snapshot payloads
// deterministic.
func (idx *Index) Dump() []Record {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	records := make([]Record, 0, len(idx.objects))
	for id, stored := range idx.objects {
		contents := make([]byte, len(stored))
		copy(contents, stored)
		records = append(records, Record{ID: id, Content: contents})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records
}

// Restore replaces the index contents wholesale from a dump. On
// error the index is left unchanged.
func (idx *Index) Restore(records []Record) error {
	objects := make(map[string][]byte, len(records))
	for _, record := range records {
		if record.ID == "" {
			return fmt.Errorf("content record with empty identifier")
		}
		if _, exists := objects[record.ID]; exists {
			return fmt.Errorf("object %q listed twice", record.ID)
		}
		contents := make([]byte, len(record.Content))
		copy(contents, record.Content)
		objects[record.ID] = contents
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.objects = objects
	return nil
}
