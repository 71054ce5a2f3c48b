// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb/v2"

	"github.com/warden-foundation/warden/lib/clock"
	"github.com/warden-foundation/warden/lib/codec"
)

// Forwarder relays an encoded command to the leader's internal propose
// endpoint on behalf of a follower. Implemented by lib/apiclient and
// injected by the daemon; nil disables forwarding, turning follower
// proposes into NotLeaderError.
type Forwarder interface {
	ForwardPropose(ctx context.Context, leaderAPIAddress string, encoded []byte) (*Outcome, error)
}

// Options configures a Node. The zero value is unusable: NodeID and
// either RaftDir or injected stores are required.
type Options struct {
	// NodeID is the raft server ID, stable across restarts.
	NodeID string

	// RaftDir holds the bolt log/stable store and the file snapshot
	// store. Ignored when all stores and the transport are injected.
	RaftDir string

	// ListenRaft is the TCP bind address for the raft transport.
	ListenRaft string

	// AdvertiseRaft is the address other nodes dial. Defaults to
	// ListenRaft.
	AdvertiseRaft string

	// Bootstrap makes a node with no prior state create a one-member
	// cluster. Exactly one node per cluster ever sets this.
	Bootstrap bool

	// ProposeTimeout bounds the wait for a command to commit and
	// apply. Defaults to 5s.
	ProposeTimeout time.Duration

	// SnapshotInterval and SnapshotThreshold feed raft's automatic
	// snapshot schedule. Zero keeps raft's defaults.
	SnapshotInterval  time.Duration
	SnapshotThreshold uint64

	// HeartbeatTimeout, ElectionTimeout, LeaderLeaseTimeout, and
	// CommitTimeout tune raft's election pacing. Zero keeps raft's
	// defaults; tests shrink them for fast leader turnover.
	HeartbeatTimeout   time.Duration
	ElectionTimeout    time.Duration
	LeaderLeaseTimeout time.Duration
	CommitTimeout      time.Duration

	// Forwarder relays follower proposes to the leader.
	Forwarder Forwarder

	// Clock paces timeout waits and leader polling. Defaults to the
	// real clock.
	Clock clock.Clock

	// Logger receives node and raft diagnostics. Defaults to discard.
	Logger *slog.Logger

	// Transport, LogStore, StableStore, and SnapshotStore override the
	// production TCP/bolt/file stack. Tests inject raft's in-memory
	// implementations.
	Transport     raft.Transport
	LogStore      raft.LogStore
	StableStore   raft.StableStore
	SnapshotStore raft.SnapshotStore
}

// Node owns one raft instance and its FSM. It layers warden semantics
// over raft: typed propose with leader forwarding, the recovery-state
// latch, member book lookups, and snapshot plumbing.
type Node struct {
	id             string
	raft           *raft.Raft
	fsm            *FSM
	forwarder      Forwarder
	clk            clock.Clock
	logger         *slog.Logger
	proposeTimeout time.Duration
	snapshots      raft.SnapshotStore

	// owned lists resources Open created and Shutdown must close
	// (bolt store, TCP transport). Injected ones stay the caller's.
	owned []io.Closer

	// Recovery latch: synced flips true once raft's applied index
	// reaches syncTarget and stays true until a snapshot install
	// re-arms it. sawLog records the first time any log data was
	// observed, which is when a fresh joiner learns its real target.
	synced     atomic.Bool
	syncTarget atomic.Uint64
	sawLog     atomic.Bool
}

// Open starts a raft node around fsm. On return the node participates
// in the cluster (or leads its own, when bootstrapping a fresh one)
// but is typically still CatchingUp; callers gate proposals on
// RecoveryState.
func Open(fsm *FSM, opts Options) (*Node, error) {
	if opts.NodeID == "" {
		return nil, fmt.Errorf("node ID is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.ProposeTimeout <= 0 {
		opts.ProposeTimeout = 5 * time.Second
	}

	conf := raft.DefaultConfig()
	conf.LocalID = raft.ServerID(opts.NodeID)
	conf.Logger = newRaftLogger(opts.Logger)
	if opts.SnapshotInterval > 0 {
		conf.SnapshotInterval = opts.SnapshotInterval
	}
	if opts.SnapshotThreshold > 0 {
		conf.SnapshotThreshold = opts.SnapshotThreshold
	}
	if opts.HeartbeatTimeout > 0 {
		conf.HeartbeatTimeout = opts.HeartbeatTimeout
	}
	if opts.ElectionTimeout > 0 {
		conf.ElectionTimeout = opts.ElectionTimeout
	}
	if opts.LeaderLeaseTimeout > 0 {
		conf.LeaderLeaseTimeout = opts.LeaderLeaseTimeout
	}
	if opts.CommitTimeout > 0 {
		conf.CommitTimeout = opts.CommitTimeout
	}

	node := &Node{
		id:             opts.NodeID,
		fsm:            fsm,
		forwarder:      opts.Forwarder,
		clk:            opts.Clock,
		logger:         opts.Logger,
		proposeTimeout: opts.ProposeTimeout,
	}

	transport := opts.Transport
	if transport == nil {
		advertise := opts.AdvertiseRaft
		if advertise == "" {
			advertise = opts.ListenRaft
		}
		tcpAddr, err := net.ResolveTCPAddr("tcp", advertise)
		if err != nil {
			return nil, fmt.Errorf("resolving advertised raft address %q: %w", advertise, err)
		}
		network, err := raft.NewTCPTransportWithLogger(opts.ListenRaft, tcpAddr, 3, 10*time.Second, conf.Logger)
		if err != nil {
			return nil, fmt.Errorf("starting raft transport on %q: %w", opts.ListenRaft, err)
		}
		transport = network
		node.owned = append(node.owned, network)
	}

	logStore, stableStore := opts.LogStore, opts.StableStore
	if logStore == nil || stableStore == nil {
		bolt, err := raftboltdb.NewBoltStore(filepath.Join(opts.RaftDir, "raft.db"))
		if err != nil {
			node.closeOwned()
			return nil, fmt.Errorf("opening raft log store: %w", err)
		}
		node.owned = append(node.owned, bolt)
		if logStore == nil {
			logStore = bolt
		}
		if stableStore == nil {
			stableStore = bolt
		}
	}

	snapStore := opts.SnapshotStore
	if snapStore == nil {
		store, err := raft.NewFileSnapshotStoreWithLogger(opts.RaftDir, 2, conf.Logger)
		if err != nil {
			node.closeOwned()
			return nil, fmt.Errorf("opening snapshot store: %w", err)
		}
		snapStore = store
	}
	node.snapshots = snapStore

	hasState, err := raft.HasExistingState(logStore, stableStore, snapStore)
	if err != nil {
		node.closeOwned()
		return nil, fmt.Errorf("checking existing raft state: %w", err)
	}

	r, err := raft.NewRaft(conf, fsm, logStore, stableStore, snapStore, transport)
	if err != nil {
		node.closeOwned()
		return nil, fmt.Errorf("starting raft: %w", err)
	}
	node.raft = r

	if opts.Bootstrap && !hasState {
		configuration := raft.Configuration{
			Servers: []raft.Server{{ID: conf.LocalID, Address: transport.LocalAddr()}},
		}
		if err := r.BootstrapCluster(configuration).Error(); err != nil {
			shutdownErr := node.Shutdown()
			return nil, errors.Join(fmt.Errorf("bootstrapping cluster: %w", err), shutdownErr)
		}
		opts.Logger.Info("bootstrapped new cluster", "node_id", opts.NodeID)
	}

	node.syncTarget.Store(r.LastIndex())
	return node, nil
}

func (n *Node) closeOwned() {
	for _, closer := range n.owned {
		closer.Close()
	}
}

// ID returns the node's raft server ID.
func (n *Node) ID() string { return n.id }

// FSM returns the state machine this node applies into.
func (n *Node) FSM() *FSM { return n.fsm }

// IsLeader reports whether this node currently leads.
func (n *Node) IsLeader() bool { return n.raft.State() == raft.Leader }

// AppliedIndex returns raft's last applied log index.
func (n *Node) AppliedIndex() uint64 { return n.raft.AppliedIndex() }

// LastIndex returns the last index in the node's log.
func (n *Node) LastIndex() uint64 { return n.raft.LastIndex() }

// Leader returns the current leader's ID and raft address as raft
// reports them, plus its API address when the member book has one.
// All empty during an election.
func (n *Node) Leader() (id, raftAddress, apiAddress string) {
	addr, serverID := n.raft.LeaderWithID()
	id, raftAddress = string(serverID), string(addr)
	if id != "" {
		if member, ok := n.fsm.MemberAddress(id); ok {
			apiAddress = member.APIAddress
		}
	}
	return id, raftAddress, apiAddress
}

// RecoveryState reports the node's catch-up phase. The synced latch
// only arms once the applied index reaches the last index known when
// the node started (or when a snapshot was installed); ordinary
// replication lag afterwards does not demote the node.
func (n *Node) RecoveryState() RecoveryState {
	if n.fsm.takeResync() {
		n.synced.Store(false)
		n.sawLog.Store(true)
		n.syncTarget.Store(n.raft.LastIndex())
	}
	if n.synced.Load() {
		return Synced
	}

	last := n.raft.LastIndex()
	if last == 0 {
		// No log data at all: a fresh node waiting to be joined.
		return Bootstrapping
	}
	if !n.sawLog.Swap(true) {
		// First log data just arrived (a joiner being caught up by
		// the leader): the real target is wherever the log extends
		// now, not the zero captured at open.
		n.syncTarget.Store(last)
	}
	if n.raft.AppliedIndex() >= n.syncTarget.Load() {
		n.synced.Store(true)
		return Synced
	}
	return CatchingUp
}

// Propose validates cmd, encodes it, and drives it through the log.
// On the leader it applies directly; on a follower it forwards to the
// leader's internal endpoint. The returned Outcome is the command's
// replicated domain result; the error return covers transport-level
// failures only (NotLeaderError, ErrProposeTimeout, ErrNotSynced,
// validation).
func (n *Node) Propose(ctx context.Context, cmd *Command) (*Outcome, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	if n.RecoveryState() != Synced {
		return nil, ErrNotSynced
	}
	encoded, err := codec.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encoding command: %w", err)
	}
	if n.raft.State() != raft.Leader {
		return n.forward(ctx, encoded)
	}
	return n.apply(ctx, encoded)
}

// ProposeEncoded applies already-encoded command bytes on this node,
// which must be the leader. This is the landing point for forwarded
// proposes. The payload is decoded and shape-checked before applying,
// same as Propose does for locally built commands, so a malformed
// forward is rejected without consuming a log slot.
func (n *Node) ProposeEncoded(ctx context.Context, encoded []byte) (*Outcome, error) {
	var cmd Command
	if err := codec.Unmarshal(encoded, &cmd); err != nil {
		return nil, &InvalidCommandError{Reason: fmt.Sprintf("decoding forwarded command: %v", err)}
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	if n.RecoveryState() != Synced {
		return nil, ErrNotSynced
	}
	if n.raft.State() != raft.Leader {
		return nil, n.notLeaderError()
	}
	return n.apply(ctx, encoded)
}

func (n *Node) apply(ctx context.Context, encoded []byte) (*Outcome, error) {
	timeout := n.waitBudget(ctx)
	future := n.raft.Apply(encoded, timeout)
	if err := n.awaitFuture(ctx, future, timeout); err != nil {
		return nil, err
	}
	outcome, ok := future.Response().(*Outcome)
	if !ok {
		return nil, fmt.Errorf("unexpected apply response type %T", future.Response())
	}
	return outcome, nil
}

func (n *Node) forward(ctx context.Context, encoded []byte) (*Outcome, error) {
	leaderID, _, apiAddress := n.Leader()
	if n.forwarder == nil || leaderID == "" || apiAddress == "" {
		return nil, n.notLeaderError()
	}
	outcome, err := n.forwarder.ForwardPropose(ctx, apiAddress, encoded)
	if err != nil {
		return nil, fmt.Errorf("forwarding to leader %s: %w", leaderID, err)
	}
	return outcome, nil
}

// Barrier blocks until every command committed before the call has
// been applied on this node. Leader only; linearized reads on a
// follower are forwarded whole by the API layer instead.
func (n *Node) Barrier(ctx context.Context) error {
	if n.raft.State() != raft.Leader {
		return n.notLeaderError()
	}
	timeout := n.waitBudget(ctx)
	return n.awaitFuture(ctx, n.raft.Barrier(timeout), timeout)
}

// waitBudget is the propose timeout, tightened by the context
// deadline when that is sooner.
func (n *Node) waitBudget(ctx context.Context) time.Duration {
	timeout := n.proposeTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	return timeout
}

// awaitFuture bounds a raft future wait. raft's own timeout parameter
// only covers enqueueing; the commit wait afterwards is unbounded, so
// the clock select here is what turns a stalled quorum into
// ErrProposeTimeout. The drained goroutine exits when raft eventually
// resolves the future (commit, leadership loss, or shutdown).
func (n *Node) awaitFuture(ctx context.Context, future raft.Future, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- future.Error() }()

	select {
	case err := <-done:
		if err != nil {
			return n.mapRaftError(err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w (%v)", ErrProposeTimeout, ctx.Err())
	case <-n.clk.After(timeout):
		return ErrProposeTimeout
	}
}

func (n *Node) mapRaftError(err error) error {
	switch {
	case errors.Is(err, raft.ErrNotLeader),
		errors.Is(err, raft.ErrLeadershipLost),
		errors.Is(err, raft.ErrLeadershipTransferInProgress):
		return n.notLeaderError()
	case errors.Is(err, raft.ErrEnqueueTimeout):
		return ErrProposeTimeout
	default:
		return fmt.Errorf("consensus: %w", err)
	}
}

func (n *Node) notLeaderError() error {
	id, raftAddress, apiAddress := n.Leader()
	return &NotLeaderError{
		LeaderID:          id,
		LeaderRaftAddress: raftAddress,
		LeaderAPIAddress:  apiAddress,
	}
}

// Join registers a new member's addresses in the member book and adds
// it as a voter. Leader only. The registration is proposed first so
// the joiner's addresses are already in the log it will replicate.
func (n *Node) Join(ctx context.Context, nodeID, raftAddress, apiAddress string) error {
	if n.raft.State() != raft.Leader {
		return n.notLeaderError()
	}
	outcome, err := n.Propose(ctx, NewRegisterNode(nodeID, raftAddress, apiAddress))
	if err != nil {
		return fmt.Errorf("registering member %s: %w", nodeID, err)
	}
	if err := outcome.Err(); err != nil {
		return fmt.Errorf("registering member %s: %w", nodeID, err)
	}

	timeout := n.waitBudget(ctx)
	future := n.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(raftAddress), 0, timeout)
	if err := n.awaitFuture(ctx, future, timeout); err != nil {
		return fmt.Errorf("adding voter %s: %w", nodeID, err)
	}
	n.logger.Info("member joined", "node_id", nodeID, "raft_address", raftAddress)
	return nil
}

// Leave removes a member from the raft configuration and drops its
// member book entry. Leader only.
func (n *Node) Leave(ctx context.Context, nodeID string) error {
	if n.raft.State() != raft.Leader {
		return n.notLeaderError()
	}
	timeout := n.waitBudget(ctx)
	future := n.raft.RemoveServer(raft.ServerID(nodeID), 0, timeout)
	if err := n.awaitFuture(ctx, future, timeout); err != nil {
		return fmt.Errorf("removing server %s: %w", nodeID, err)
	}
	outcome, err := n.Propose(ctx, NewDeregisterNode(nodeID))
	if err != nil {
		return fmt.Errorf("deregistering member %s: %w", nodeID, err)
	}
	if err := outcome.Err(); err != nil {
		return fmt.Errorf("deregistering member %s: %w", nodeID, err)
	}
	n.logger.Info("member left", "node_id", nodeID)
	return nil
}

// EnsureRegistered proposes a register_node for this node unless the
// member book already carries exactly these addresses. The daemon
// calls this once Synced, which is how a bootstrap node seeds its own
// entry and how a restarted node publishes a changed address.
func (n *Node) EnsureRegistered(ctx context.Context, raftAddress, apiAddress string) error {
	if member, ok := n.fsm.MemberAddress(n.id); ok &&
		member.RaftAddress == raftAddress && member.APIAddress == apiAddress {
		return nil
	}
	outcome, err := n.Propose(ctx, NewRegisterNode(n.id, raftAddress, apiAddress))
	if err != nil {
		return err
	}
	return outcome.Err()
}

// MemberInfo is one row of the members view: the raft configuration
// joined with the member book.
type MemberInfo struct {
	ID          string `json:"id"`
	RaftAddress string `json:"raft_address"`
	APIAddress  string `json:"api_address,omitempty"`
	Suffrage    string `json:"suffrage"`
	Leader      bool   `json:"leader"`
}

// Members lists the current raft configuration with API addresses
// filled in from the member book.
func (n *Node) Members() ([]MemberInfo, error) {
	future := n.raft.GetConfiguration()
	if err := future.Error(); err != nil {
		return nil, fmt.Errorf("reading raft configuration: %w", err)
	}
	_, leaderID := n.raft.LeaderWithID()

	servers := future.Configuration().Servers
	members := make([]MemberInfo, 0, len(servers))
	for _, server := range servers {
		info := MemberInfo{
			ID:          string(server.ID),
			RaftAddress: string(server.Address),
			Suffrage:    server.Suffrage.String(),
			Leader:      server.ID == leaderID,
		}
		if member, ok := n.fsm.MemberAddress(info.ID); ok {
			info.APIAddress = member.APIAddress
		}
		members = append(members, info)
	}
	return members, nil
}

// TriggerSnapshot forces a raft snapshot now, regardless of the
// threshold schedule.
func (n *Node) TriggerSnapshot() error {
	if err := n.raft.Snapshot().Error(); err != nil {
		return fmt.Errorf("taking snapshot: %w", err)
	}
	return nil
}

// OpenLatestSnapshot opens the newest snapshot in the local store for
// streaming (the export path). The caller closes the reader.
func (n *Node) OpenLatestSnapshot() (io.ReadCloser, error) {
	metas, err := n.snapshots.List()
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	if len(metas) == 0 {
		return nil, ErrNoSnapshot
	}
	_, reader, err := n.snapshots.Open(metas[0].ID)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot %s: %w", metas[0].ID, err)
	}
	return reader, nil
}

// WaitForLeader polls until some node holds leadership, returning the
// leader's ID.
func (n *Node) WaitForLeader(ctx context.Context) (string, error) {
	ticker := n.clk.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if _, id := n.raft.LeaderWithID(); id != "" {
			return string(id), nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// NodeStatus is the consensus-level slice of a status report.
type NodeStatus struct {
	NodeID            string `json:"node_id"`
	RaftState         string `json:"raft_state"`
	RecoveryState     string `json:"recovery_state"`
	LeaderID          string `json:"leader_id,omitempty"`
	LeaderRaftAddress string `json:"leader_raft_address,omitempty"`
	LeaderAPIAddress  string `json:"leader_api_address,omitempty"`
	AppliedIndex      uint64 `json:"applied_index"`
	LastIndex         uint64 `json:"last_index"`
	CommandIndex      uint64 `json:"command_index"`
}

// Status snapshots the node's consensus state.
func (n *Node) Status() NodeStatus {
	leaderID, leaderRaft, leaderAPI := n.Leader()
	return NodeStatus{
		NodeID:            n.id,
		RaftState:         n.raft.State().String(),
		RecoveryState:     n.RecoveryState().String(),
		LeaderID:          leaderID,
		LeaderRaftAddress: leaderRaft,
		LeaderAPIAddress:  leaderAPI,
		AppliedIndex:      n.raft.AppliedIndex(),
		LastIndex:         n.raft.LastIndex(),
		CommandIndex:      n.fsm.AppliedIndex(),
	}
}

// Shutdown stops raft and closes the stores and transport this node
// opened. The FSM and its graph stay readable afterwards.
func (n *Node) Shutdown() error {
	shutdownErr := n.raft.Shutdown().Error()
	var closeErrs []error
	for _, closer := range n.owned {
		if err := closer.Close(); err != nil {
			closeErrs = append(closeErrs, err)
		}
	}
	return errors.Join(append([]error{shutdownErr}, closeErrs...)...)
}
