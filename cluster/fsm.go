// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/hashicorp/raft"

	"github.com/warden-foundation/warden/history"
	"github.com/warden-foundation/warden/lib/clock"
	"github.com/warden-foundation/warden/lib/codec"
	"github.com/warden-foundation/warden/lib/content"
	"github.com/warden-foundation/warden/lib/policy"
	"github.com/warden-foundation/warden/lib/rights"
	"github.com/warden-foundation/warden/lib/secret"
	"github.com/warden-foundation/warden/lib/snapshot"
)

// FSMConfig assembles the state an FSM owns and the collaborators it
// writes through.
type FSMConfig struct {
	// Graph is the rights graph the FSM mutates. Defaults to a fresh
	// empty graph.
	Graph *rights.Graph

	// Content is the object content index. Defaults to a fresh empty
	// index.
	Content *content.Index

	// Guard is the delegation policy evaluated on grant/take. Defaults
	// to a disabled guard that permits everything.
	Guard *policy.Guard

	// Journal records one row per applied command. Optional; without
	// it, timed-out proposes cannot be resolved on this node.
	Journal *history.Journal

	// SealKey encrypts snapshots at rest and decrypts received ones.
	// Borrowed, not closed. Optional.
	SealKey *secret.Buffer

	// SnapshotCompression selects the snapshot payload codec.
	SnapshotCompression snapshot.CompressionTag

	// Clock stamps history entries. Defaults to the real clock.
	Clock clock.Clock

	// Logger receives apply-path diagnostics. Defaults to discard.
	Logger *slog.Logger
}

// FSM is the replicated state machine: raft hands it committed log
// entries in order, exactly once each, on every node, and it is the
// only code that mutates the rights graph, the content index, and the
// member book. Queries read those structures directly under their own
// read locks.
type FSM struct {
	graph   *rights.Graph
	index   *content.Index
	guard   *policy.Guard
	journal *history.Journal
	book    *addressBook
	sealKey *secret.Buffer
	tag     snapshot.CompressionTag
	clk     clock.Clock
	logger  *slog.Logger

	appliedIndex atomic.Uint64
	appliedTerm  atomic.Uint64

	// resyncNeeded is set by Restore and consumed by the node's
	// recovery-state tracking: an installed snapshot re-arms the
	// catch-up latch.
	resyncNeeded atomic.Bool
}

// NewFSM builds an FSM from cfg, filling defaults for absent pieces.
func NewFSM(cfg FSMConfig) *FSM {
	fsm := &FSM{
		graph:   cfg.Graph,
		index:   cfg.Content,
		guard:   cfg.Guard,
		journal: cfg.Journal,
		book:    newAddressBook(),
		sealKey: cfg.SealKey,
		tag:     cfg.SnapshotCompression,
		clk:     cfg.Clock,
		logger:  cfg.Logger,
	}
	if fsm.graph == nil {
		fsm.graph = rights.New()
	}
	if fsm.index == nil {
		fsm.index = content.NewIndex()
	}
	if fsm.guard == nil {
		fsm.guard = policy.NewGuard(nil)
	}
	if fsm.clk == nil {
		fsm.clk = clock.Real()
	}
	if fsm.logger == nil {
		fsm.logger = slog.New(slog.DiscardHandler)
	}
	return fsm
}

// Graph returns the rights graph the FSM applies into. Request
// handlers query it directly; they must never mutate it.
func (f *FSM) Graph() *rights.Graph { return f.graph }

// Content returns the content index, under the same read-only
// contract as Graph.
func (f *FSM) Content() *content.Index { return f.index }

// AppliedIndex returns the log index of the last command applied to
// this FSM (snapshot restores count as their capture index).
func (f *FSM) AppliedIndex() uint64 { return f.appliedIndex.Load() }

// Members returns the replicated member book sorted by node ID.
func (f *FSM) Members() []snapshot.Member { return f.book.dump() }

// MemberAddress looks up one member's addresses by raft server ID.
func (f *FSM) MemberAddress(id string) (snapshot.Member, bool) { return f.book.lookup(id) }

// takeResync consumes the pending resync request, if any.
func (f *FSM) takeResync() bool { return f.resyncNeeded.Swap(false) }

// Apply executes one committed log entry. The return value travels
// through the raft apply future back to the proposing node; it is
// always an *Outcome, never an error: domain failures are replicated
// results, not transport problems.
func (f *FSM) Apply(entry *raft.Log) any {
	var cmd Command
	var applyErr error
	if err := codec.Unmarshal(entry.Data, &cmd); err != nil {
		applyErr = &InvalidCommandError{Reason: fmt.Sprintf("undecodable payload: %v", err)}
	} else if err := cmd.Validate(); err != nil {
		applyErr = err
	} else {
		applyErr = f.dispatch(&cmd)
	}

	outcome := outcomeFor(&cmd, entry.Index, applyErr)
	f.appliedIndex.Store(entry.Index)
	f.appliedTerm.Store(entry.Term)
	f.record(&cmd, outcome)

	if outcome.OK() {
		f.logger.Debug("applied command",
			"index", entry.Index, "kind", outcome.Kind, "request_id", cmd.RequestID)
	} else {
		f.logger.Debug("command failed",
			"index", entry.Index, "kind", outcome.Kind, "request_id", cmd.RequestID,
			"code", outcome.Code, "detail", outcome.Detail)
	}
	return outcome
}

// dispatch routes a validated command to its state mutation and
// returns the domain error, if any. Everything here must be
// deterministic: same command, same graph state, same result on every
// node.
func (f *FSM) dispatch(cmd *Command) error {
	switch cmd.Kind {
	case KindCreateSubject:
		return f.graph.CreateSubject(cmd.ID)
	case KindDeleteSubject:
		return f.graph.DeleteSubject(cmd.ID)
	case KindCreateObject:
		return f.graph.CreateObject(cmd.ID)
	case KindDeleteObject:
		if err := f.graph.DeleteObject(cmd.ID); err != nil {
			return err
		}
		f.index.Delete(cmd.ID)
		return nil
	case KindAssign:
		// Administrative seeding: no delegation guard.
		return f.graph.Assign(cmd.Source, cmd.Target, cmd.Right)
	case KindGrant:
		if err := f.graph.CheckGrant(cmd.Actor, cmd.Target, cmd.Object, cmd.Right); err != nil {
			return err
		}
		if err := f.guard.CheckDelegation(f.graph, cmd.Target, cmd.Object, cmd.Right); err != nil {
			return err
		}
		return f.graph.Grant(cmd.Actor, cmd.Target, cmd.Object, cmd.Right)
	case KindTake:
		if err := f.graph.CheckTake(cmd.Actor, cmd.Source, cmd.Object, cmd.Right); err != nil {
			return err
		}
		if err := f.guard.CheckDelegation(f.graph, cmd.Actor, cmd.Object, cmd.Right); err != nil {
			return err
		}
		return f.graph.Take(cmd.Actor, cmd.Source, cmd.Object, cmd.Right)
	case KindRevoke:
		// Removals cannot expand reachability, so no guard.
		return f.graph.Revoke(cmd.Actor, cmd.Target, cmd.Object, cmd.Right)
	case KindWriteContent:
		return f.applyWriteContent(cmd)
	case KindRegisterNode:
		f.book.register(snapshot.Member{ID: cmd.ID, RaftAddress: cmd.RaftAddress, APIAddress: cmd.APIAddress})
		return nil
	case KindDeregisterNode:
		f.book.deregister(cmd.ID)
		return nil
	case KindRestoreState:
		return f.applyRestoreState(cmd)
	default:
		return &InvalidCommandError{Reason: fmt.Sprintf("unhandled kind %s", cmd.Kind)}
	}
}

// applyWriteContent re-checks the writer's right against the graph
// state at this log position before storing. The gate already checked
// on the proposing node, but a revocation may have committed between
// that pre-flight and this entry; the re-check is what makes the
// permission and the write atomic in log order.
func (f *FSM) applyWriteContent(cmd *Command) error {
	if _, ok := f.graph.Kind(cmd.Actor); !ok {
		return &rights.UnknownIdentifierError{ID: cmd.Actor}
	}
	if _, ok := f.graph.Kind(cmd.Object); !ok {
		return &rights.UnknownIdentifierError{ID: cmd.Object}
	}
	if !f.graph.HasRight(cmd.Actor, cmd.Object, rights.RightWrite) {
		return &AccessDeniedError{
			Reason: fmt.Sprintf("%q does not hold write over %q", cmd.Actor, cmd.Object),
		}
	}
	f.index.Put(cmd.Object, cmd.Content)
	return nil
}

// applyRestoreState replaces the graph and content index from an
// embedded snapshot payload. Both parts are validated on scratch
// copies before either live structure is touched, so a malformed
// import fails the outcome without diverging replicas. The member
// book and the log position are untouched: this is a data restore
// flowing through the log, not a raft-level snapshot install.
func (f *FSM) applyRestoreState(cmd *Command) error {
	state, err := snapshot.Decode(bytes.NewReader(cmd.Content), f.sealKey)
	if err != nil {
		return &InvalidCommandError{Reason: fmt.Sprintf("decoding snapshot payload: %v", err)}
	}

	if err := rights.New().Restore(state.Graph); err != nil {
		return &InvalidCommandError{Reason: fmt.Sprintf("invalid graph in snapshot payload: %v", err)}
	}
	if err := content.NewIndex().Restore(state.Content); err != nil {
		return &InvalidCommandError{Reason: fmt.Sprintf("invalid content in snapshot payload: %v", err)}
	}

	// Validated above; restoring the live structures cannot fail now.
	if err := f.graph.Restore(state.Graph); err != nil {
		return err
	}
	if err := f.index.Restore(state.Content); err != nil {
		return err
	}
	f.logger.Info("restored state from imported snapshot",
		"source_index", state.Index, "nodes", len(state.Graph.Nodes), "objects", len(state.Content))
	return nil
}

// record writes the outcome to the history journal. Journal failures
// are logged and swallowed: the journal is advisory local state and
// must never fail an apply that already mutated the graph.
func (f *FSM) record(cmd *Command, outcome *Outcome) {
	if f.journal == nil {
		return
	}
	// Apply runs on raft's FSM goroutine with no request context.
	err := f.journal.Record(context.Background(), history.Entry{
		LogIndex:      outcome.Index,
		RequestID:     cmd.RequestID,
		Kind:          outcome.Kind,
		Actor:         cmd.Actor,
		OutcomeCode:   outcome.Code,
		OutcomeDetail: outcome.Detail,
		AppliedAt:     f.clk.Now(),
	})
	if err != nil {
		f.logger.Warn("recording command outcome", "index", outcome.Index, "error", err)
	}
}

// Snapshot captures the full replicated state. raft serializes this
// call with Apply, so the capture is consistent with an exact log
// position; the dumps are deep copies, so the returned snapshot can
// persist concurrently with later applies.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	state := &snapshot.State{
		Index:   f.appliedIndex.Load(),
		Term:    f.appliedTerm.Load(),
		Graph:   f.graph.Dump(),
		Content: f.index.Dump(),
		Members: f.book.dump(),
	}
	return &fsmSnapshot{
		state: state,
		opts:  snapshot.Options{Compression: f.tag, SealKey: f.sealKey},
	}, nil
}

// Restore replaces all replicated state from a raft-delivered
// snapshot: cold start from the local store, or a fast-forward from
// the leader when this node is too far behind to replay. The history
// journal is cleared because commands before the snapshot horizon are
// no longer individually resolvable.
func (f *FSM) Restore(source io.ReadCloser) error {
	defer source.Close()

	state, err := snapshot.Decode(source, f.sealKey)
	if err != nil {
		return fmt.Errorf("decoding snapshot: %w", err)
	}
	if err := f.graph.Restore(state.Graph); err != nil {
		return fmt.Errorf("restoring graph: %w", err)
	}
	if err := f.index.Restore(state.Content); err != nil {
		return fmt.Errorf("restoring content index: %w", err)
	}
	if err := f.book.restore(state.Members); err != nil {
		return fmt.Errorf("restoring member book: %w", err)
	}
	f.appliedIndex.Store(state.Index)
	f.appliedTerm.Store(state.Term)
	f.resyncNeeded.Store(true)

	if f.journal != nil {
		if err := f.journal.Clear(context.Background()); err != nil {
			f.logger.Warn("clearing history journal after restore", "error", err)
		}
	}

	f.logger.Info("installed snapshot",
		"index", state.Index, "term", state.Term,
		"nodes", len(state.Graph.Nodes), "edges", len(state.Graph.Edges),
		"objects", len(state.Content), "members", len(state.Members))
	return nil
}

// fsmSnapshot carries a captured state through raft's persist
// machinery.
type fsmSnapshot struct {
	state *snapshot.State
	opts  snapshot.Options
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := snapshot.Encode(sink, s.state, s.opts); err != nil {
		sink.Cancel()
		return fmt.Errorf("encoding snapshot %s: %w", sink.ID(), err)
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}
