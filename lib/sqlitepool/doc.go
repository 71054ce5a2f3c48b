// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the warden-standard SQLite connection
// pool.
//
// Local structured storage (today: the command history journal) goes
// through this package. It wraps zombiezen.com/go/sqlite with
// production defaults: WAL journal mode, NORMAL synchronous for
// process-crash durability without fsync-per-commit overhead,
// memory-mapped reads, and a busy timeout so write contention degrades
// gracefully instead of failing with SQLITE_BUSY.
//
// The pool is built on zombiezen's sqlitex.Pool: callers [Pool.Take]
// a connection, do their work, and [Pool.Put] it back. Connections
// are NOT safe for concurrent use; each goroutine holds its own for
// the duration of its work.
//
// # Pragmas
//
// Every connection is initialized with:
//
//   - journal_mode=WAL: readers never block the writer and vice versa.
//   - synchronous=NORMAL: transactions survive process crashes. Not
//     durable across power loss, which is acceptable for the history
//     journal: the replicated log is the source of truth and the
//     journal is advisory local state.
//   - busy_timeout=5000: wait up to 5 seconds for a write lock.
//   - foreign_keys=OFF: single-table schemas manage their own
//     integrity.
//   - cache_size=-8192: 8 MB page cache per connection.
//   - mmap_size=268435456: 256 MB memory-mapped reads.
//   - temp_store=MEMORY: temporary indexes stay off disk.
//
// # Design
//
// This package is intentionally thin: standard pragmas, the pool
// pattern, and the raw zombiezen types. Callers write SQL and use
// sqlitex.Execute directly; there is no query builder and no ORM
// layer fighting SQLite's strengths.
package sqlitepool
