// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/warden-foundation/warden/cluster"
	"github.com/warden-foundation/warden/lib/content"
	"github.com/warden-foundation/warden/lib/rights"
)

// DefaultMaxContentSize caps object content at 1 MiB. Content rides
// inside raft log entries and snapshots, so unbounded payloads would
// bloat both.
const DefaultMaxContentSize = 1 << 20

// Config assembles a Gate.
type Config struct {
	// Node is the command log adapter mutations flow through.
	Node *cluster.Node

	// MaxContentSize bounds a single object's content in bytes.
	// Zero means DefaultMaxContentSize; negative disables the cap.
	MaxContentSize int64

	// Logger receives enforcement diagnostics. Defaults to discard.
	Logger *slog.Logger
}

// Gate fronts all request-layer access to the replicated state.
type Gate struct {
	node           *cluster.Node
	graph          *rights.Graph
	index          *content.Index
	maxContentSize int64
	logger         *slog.Logger
}

// New builds a Gate over the node's state machine.
func New(cfg Config) *Gate {
	g := &Gate{
		node:           cfg.Node,
		graph:          cfg.Node.FSM().Graph(),
		index:          cfg.Node.FSM().Content(),
		maxContentSize: cfg.MaxContentSize,
		logger:         cfg.Logger,
	}
	if g.maxContentSize == 0 {
		g.maxContentSize = DefaultMaxContentSize
	}
	if g.logger == nil {
		g.logger = slog.New(slog.DiscardHandler)
	}
	return g
}

// --- Graph mutations ---
//
// Each validates request shape locally (via Command.Validate inside
// Propose), then replicates. Graph-state preconditions are evaluated
// by the FSM at the command's log position; a pre-flight success here
// can still fail there when interleaved commits change the graph.

// CreateSubject replicates the creation of a subject node.
func (g *Gate) CreateSubject(ctx context.Context, id string) (*cluster.Outcome, error) {
	return g.propose(ctx, cluster.NewCreateSubject(id))
}

// DeleteSubject replicates the removal of a subject and its edges.
func (g *Gate) DeleteSubject(ctx context.Context, id string) (*cluster.Outcome, error) {
	return g.propose(ctx, cluster.NewDeleteSubject(id))
}

// CreateObject replicates the creation of an object node.
func (g *Gate) CreateObject(ctx context.Context, id string) (*cluster.Outcome, error) {
	return g.propose(ctx, cluster.NewCreateObject(id))
}

// DeleteObject replicates the removal of an object, its edges, and its
// content.
func (g *Gate) DeleteObject(ctx context.Context, id string) (*cluster.Outcome, error) {
	return g.propose(ctx, cluster.NewDeleteObject(id))
}

// Assign replicates administrative right seeding.
func (g *Gate) Assign(ctx context.Context, source, target string, right rights.Right) (*cluster.Outcome, error) {
	return g.propose(ctx, cluster.NewAssign(source, target, right))
}

// Grant replicates a grant delegation.
func (g *Gate) Grant(ctx context.Context, granter, grantee, object string, right rights.Right) (*cluster.Outcome, error) {
	return g.propose(ctx, cluster.NewGrant(granter, grantee, object, right))
}

// Take replicates a take delegation.
func (g *Gate) Take(ctx context.Context, taker, source, object string, right rights.Right) (*cluster.Outcome, error) {
	return g.propose(ctx, cluster.NewTake(taker, source, object, right))
}

// Revoke replicates a revocation.
func (g *Gate) Revoke(ctx context.Context, revoker, holder, object string, right rights.Right) (*cluster.Outcome, error) {
	return g.propose(ctx, cluster.NewRevoke(revoker, holder, object, right))
}

// ImportState replicates a wholesale graph/content replacement from an
// encoded snapshot payload.
func (g *Gate) ImportState(ctx context.Context, payload []byte) (*cluster.Outcome, error) {
	return g.propose(ctx, cluster.NewRestoreState(payload))
}

// propose drives cmd through the log. A returned outcome always means
// the command committed; its Err is the domain result. Timeouts are
// wrapped with the request ID so the caller can resolve the command's
// fate through the history journal.
func (g *Gate) propose(ctx context.Context, cmd *cluster.Command) (*cluster.Outcome, error) {
	outcome, err := g.node.Propose(ctx, cmd)
	if err != nil {
		if errors.Is(err, cluster.ErrProposeTimeout) {
			g.logger.Warn("command outcome unknown",
				"kind", cmd.Kind.String(), "request_id", cmd.RequestID)
			return nil, &UnresolvedError{RequestID: cmd.RequestID, Err: err}
		}
		return nil, err
	}
	return outcome, outcome.Err()
}

// --- Content ---

// ReadContent enforces the read right against the local graph and
// returns the locally stored content. Both checks observe this
// replica's applied prefix; a caller needing leader-fresh data asks
// for a linearized read instead.
func (g *Gate) ReadContent(subject, object string) ([]byte, error) {
	if err := requirePair(subject, object); err != nil {
		return nil, err
	}
	if _, ok := g.graph.Kind(subject); !ok {
		return nil, &rights.UnknownIdentifierError{ID: subject}
	}
	if _, ok := g.graph.Kind(object); !ok {
		return nil, &rights.UnknownIdentifierError{ID: object}
	}
	if !g.graph.HasRight(subject, object, rights.RightRead) {
		return nil, &cluster.AccessDeniedError{
			Reason: fmt.Sprintf("%q does not hold read over %q", subject, object),
		}
	}
	contents, ok := g.index.Get(object)
	if !ok {
		return nil, &ContentNotFoundError{ID: object}
	}
	return contents, nil
}

// WriteContent replicates a content write. The local right check
// fails fast without consuming a log slot; the FSM re-checks at the
// command's log position, so a revocation committing between here and
// there still denies the write everywhere.
func (g *Gate) WriteContent(ctx context.Context, subject, object string, contents []byte) (*cluster.Outcome, error) {
	if err := requirePair(subject, object); err != nil {
		return nil, err
	}
	if g.maxContentSize > 0 && int64(len(contents)) > g.maxContentSize {
		return nil, &cluster.InvalidCommandError{
			Reason: fmt.Sprintf("content is %d bytes, the limit is %d", len(contents), g.maxContentSize),
		}
	}
	if _, ok := g.graph.Kind(subject); !ok {
		return nil, &rights.UnknownIdentifierError{ID: subject}
	}
	if _, ok := g.graph.Kind(object); !ok {
		return nil, &rights.UnknownIdentifierError{ID: object}
	}
	if !g.graph.HasRight(subject, object, rights.RightWrite) {
		return nil, &cluster.AccessDeniedError{
			Reason: fmt.Sprintf("%q does not hold write over %q", subject, object),
		}
	}
	return g.propose(ctx, cluster.NewWriteContent(subject, object, contents))
}

// --- Queries ---

// HasRight reports whether subject holds right over object on the
// local replica. Absent identifiers simply report false.
func (g *Gate) HasRight(subject, object string, right rights.Right) bool {
	return g.graph.HasRight(subject, object, right)
}

// Linearize blocks until this node has applied every command committed
// before the call. Leader only; the API layer forwards linearized
// reads on followers rather than barriering here.
func (g *Gate) Linearize(ctx context.Context) error {
	return g.node.Barrier(ctx)
}

// ReachableRights computes every right subject could obtain over
// object through legal delegation chains from the local state.
func (g *Gate) ReachableRights(subject, object string) (rights.RightSet, error) {
	if err := requirePair(subject, object); err != nil {
		return 0, err
	}
	return g.graph.ReachableRights(subject, object)
}

// DumpGraph returns the stable-ordered graph listing.
func (g *Gate) DumpGraph() rights.Dump {
	return g.graph.Dump()
}

// --- Status ---

// Status is the full node status report: consensus state plus local
// data counts and the graph digest replicas are compared by.
type Status struct {
	cluster.NodeStatus

	Graph          rights.Stats `json:"graph"`
	ContentObjects int          `json:"content_objects"`
	GraphDigest    string       `json:"graph_digest"`
}

// Status composes the node's consensus status with local state
// summary.
func (g *Gate) Status() (Status, error) {
	digest, err := g.graph.Digest()
	if err != nil {
		return Status{}, fmt.Errorf("computing graph digest: %w", err)
	}
	return Status{
		NodeStatus:     g.node.Status(),
		Graph:          g.graph.Stats(),
		ContentObjects: g.index.Len(),
		GraphDigest:    digest.String(),
	}, nil
}

// requirePair rejects empty identifiers before any graph lookup, so
// they surface as shape errors rather than unknown-identifier ones.
func requirePair(subject, object string) error {
	if subject == "" {
		return &cluster.InvalidCommandError{Reason: "missing subject"}
	}
	if object == "" {
		return &cluster.InvalidCommandError{Reason: "missing object"}
	}
	return nil
}
