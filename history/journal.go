// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/warden-foundation/warden/lib/sqlitepool"
)

// Entry records the outcome of one applied command.
type Entry struct {
	// LogIndex is the command's position in the replicated log.
	LogIndex uint64

	// RequestID is the client-chosen identifier carried in the
	// command envelope.
	RequestID string

	// Kind is the command kind's wire name ("grant", "revoke", ...).
	Kind string

	// Actor is the subject the command was issued as, empty for
	// administrative commands.
	Actor string

	// OutcomeCode is "ok" for applied commands, otherwise the error
	// code the apply produced ("permission_denied", ...).
	OutcomeCode string

	// OutcomeDetail carries the human-readable denial or error
	// reason, empty on success.
	OutcomeDetail string

	// AppliedAt is when this node applied the command.
	AppliedAt time.Time
}

// Config holds the parameters for opening a journal.
type Config struct {
	// Path is the SQLite database file.
	Path string

	// MaxEntries caps the journal; the oldest rows are pruned past
	// it. Zero keeps everything.
	MaxEntries int64

	// Logger receives operational messages. Nil means discard.
	Logger *slog.Logger
}

// Journal is the per-node record of applied command outcomes. It
// exists so a client whose proposal timed out can find out what
// actually happened to its request id, and so operators can audit
// recent decisions. It is advisory local state: the replicated log is
// the source of truth, and a restored snapshot clears the journal.
type Journal struct {
	pool       *sqlitepool.Pool
	maxEntries int64
	logger     *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS command_history (
    log_index      INTEGER PRIMARY KEY,
    request_id     TEXT NOT NULL,
    kind           TEXT NOT NULL,
    actor          TEXT NOT NULL DEFAULT '',
    outcome_code   TEXT NOT NULL,
    outcome_detail TEXT NOT NULL DEFAULT '',
    applied_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS command_history_request
    ON command_history (request_id);
`

// Open opens (creating if needed) the journal database.
func Open(cfg Config) (*Journal, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   cfg.Path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	return &Journal{
		pool:       pool,
		maxEntries: cfg.MaxEntries,
		logger:     logger,
	}, nil
}

// Record stores one outcome and prunes rows past the configured cap.
// Recording the same log index twice replaces the row, which makes
// replay after a restart harmless.
func (j *Journal) Record(ctx context.Context, entry Entry) error {
	conn, err := j.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer j.pool.Put(conn)

	err = sqlitex.Execute(conn, `INSERT OR REPLACE INTO command_history
		(log_index, request_id, kind, actor, outcome_code, outcome_detail, applied_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{
			int64(entry.LogIndex),
			entry.RequestID,
			entry.Kind,
			entry.Actor,
			entry.OutcomeCode,
			entry.OutcomeDetail,
			entry.AppliedAt.UnixMilli(),
		},
	})
	if err != nil {
		return fmt.Errorf("history: recording index %d: %w", entry.LogIndex, err)
	}

	if j.maxEntries > 0 {
		// The subquery finds the newest index that falls off the cap;
		// with fewer rows than the cap it yields NULL and nothing is
		// deleted.
		err = sqlitex.Execute(conn, `DELETE FROM command_history
			WHERE log_index <= (SELECT log_index FROM command_history
				ORDER BY log_index DESC LIMIT 1 OFFSET ?)`, &sqlitex.ExecOptions{
			Args: []any{j.maxEntries},
		})
		if err != nil {
			return fmt.Errorf("history: pruning: %w", err)
		}
	}

	return nil
}

// Lookup returns the outcome recorded for a request id. When a
// request id was somehow recorded more than once, the newest outcome
// wins.
func (j *Journal) Lookup(ctx context.Context, requestID string) (Entry, bool, error) {
	conn, err := j.pool.Take(ctx)
	if err != nil {
		return Entry{}, false, err
	}
	defer j.pool.Put(conn)

	var entry Entry
	found := false
	err = sqlitex.Execute(conn, `SELECT log_index, request_id, kind, actor,
			outcome_code, outcome_detail, applied_at
		FROM command_history WHERE request_id = ?
		ORDER BY log_index DESC LIMIT 1`, &sqlitex.ExecOptions{
		Args: []any{requestID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			entry = scanEntry(stmt)
			found = true
			return nil
		},
	})
	if err != nil {
		return Entry{}, false, fmt.Errorf("history: lookup %q: %w", requestID, err)
	}
	return entry, found, nil
}

// Recent returns up to limit outcomes, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	conn, err := j.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer j.pool.Put(conn)

	var entries []Entry
	err = sqlitex.Execute(conn, `SELECT log_index, request_id, kind, actor,
			outcome_code, outcome_detail, applied_at
		FROM command_history ORDER BY log_index DESC LIMIT ?`, &sqlitex.ExecOptions{
		Args: []any{limit},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			entries = append(entries, scanEntry(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	return entries, nil
}

// Len returns the number of journal rows.
func (j *Journal) Len(ctx context.Context) (int64, error) {
	conn, err := j.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer j.pool.Put(conn)

	var count int64
	err = sqlitex.Execute(conn, `SELECT COUNT(*) FROM command_history`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("history: count: %w", err)
	}
	return count, nil
}

// Clear drops every row. Called after a snapshot restore: outcomes
// below the snapshot horizon can no longer be correlated with log
// state this node holds.
func (j *Journal) Clear(ctx context.Context) error {
	conn, err := j.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer j.pool.Put(conn)

	if err := sqlitex.Execute(conn, `DELETE FROM command_history`, nil); err != nil {
		return fmt.Errorf("history: clearing: %w", err)
	}
	j.logger.Info("history journal cleared")
	return nil
}

// Close releases the underlying pool.
func (j *Journal) Close() error {
	return j.pool.Close()
}

func scanEntry(stmt *sqlite.Stmt) Entry {
	return Entry{
		LogIndex:      uint64(stmt.ColumnInt64(0)),
		RequestID:     stmt.ColumnText(1),
		Kind:          stmt.ColumnText(2),
		Actor:         stmt.ColumnText(3),
		OutcomeCode:   stmt.ColumnText(4),
		OutcomeDetail: stmt.ColumnText(5),
		AppliedAt:     time.UnixMilli(stmt.ColumnInt64(6)),
	}
}
