// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Warden-node is the replicated access-control daemon. Each node holds
// a full copy of the rights graph and the object content index, kept
// convergent across the cluster by a raft-replicated command log. The
// HTTP API exposes graph mutations, enforced content access, queries,
// snapshot management, and cluster membership.
//
// On startup:
//  1. Loads and validates the YAML configuration.
//  2. Opens the history journal and assembles the state machine.
//  3. Starts raft: a bootstrap node forms a one-member cluster, a
//     joining node waits to be admitted (config cluster.join asks
//     existing members for admission automatically).
//  4. Serves the HTTP API and replays the log until Synced.
//  5. Registers its addresses in the replicated member book.
//  6. Writes a heartbeat file every interval so ops tooling can detect
//     a stalled apply loop without the API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/warden-foundation/warden/api"
	"github.com/warden-foundation/warden/cluster"
	"github.com/warden-foundation/warden/gate"
	"github.com/warden-foundation/warden/history"
	"github.com/warden-foundation/warden/lib/apiclient"
	"github.com/warden-foundation/warden/lib/clock"
	"github.com/warden-foundation/warden/lib/config"
	"github.com/warden-foundation/warden/lib/digest"
	"github.com/warden-foundation/warden/lib/policy"
	"github.com/warden-foundation/warden/lib/secret"
	"github.com/warden-foundation/warden/lib/service"
	"github.com/warden-foundation/warden/lib/snapshot"
	"github.com/warden-foundation/warden/lib/version"
	"github.com/warden-foundation/warden/lib/watchdog"
)

// heartbeatInterval is how often the daemon proves liveness to the
// heartbeat file.
const heartbeatInterval = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "path to warden.yaml (default: $WARDEN_CONFIG)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("warden-node %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	logger.Info("warden-node starting",
		"version", version.Info(),
		"node_id", cfg.NodeID,
		"data_dir", cfg.DataDir,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Delegation guard. The policy file must be identical on every
	// node; the digest in the log is how operators verify that.
	guard, err := loadGuard(cfg.PolicyFile, logger)
	if err != nil {
		return err
	}

	// Snapshot seal key, held in protected memory for the process
	// lifetime.
	var sealKey *secret.Buffer
	if cfg.Snapshot.EncryptionKeyFile != "" {
		sealKey, err = secret.ReadFromPath(cfg.Snapshot.EncryptionKeyFile)
		if err != nil {
			return fmt.Errorf("reading snapshot encryption key: %w", err)
		}
		defer sealKey.Close()
		logger.Info("snapshot encryption enabled")
	}

	compression, err := snapshot.ParseCompression(cfg.Snapshot.Compression)
	if err != nil {
		return err
	}

	journal, err := history.Open(history.Config{
		Path:       cfg.HistoryPath(),
		MaxEntries: cfg.History.MaxEntries,
		Logger:     logger.With("component", "history"),
	})
	if err != nil {
		return fmt.Errorf("opening history journal: %w", err)
	}
	defer journal.Close()

	// The forwarder relays follower proposes to the leader's internal
	// endpoint. The configured server is this node itself; forwards
	// name the leader address explicitly.
	forwarder, err := apiclient.New(apiclient.Config{Server: cfg.AdvertisedAPI()})
	if err != nil {
		return fmt.Errorf("building forwarder: %w", err)
	}

	fsm := cluster.NewFSM(cluster.FSMConfig{
		Guard:               guard,
		Journal:             journal,
		SealKey:             sealKey,
		SnapshotCompression: compression,
		Logger:              logger.With("component", "fsm"),
	})

	proposeTimeout, _ := time.ParseDuration(cfg.ProposeTimeout)
	snapshotInterval, _ := time.ParseDuration(cfg.Snapshot.Interval)

	node, err := cluster.Open(fsm, cluster.Options{
		NodeID:            cfg.NodeID,
		RaftDir:           cfg.RaftDir(),
		ListenRaft:        cfg.Listen.Raft,
		AdvertiseRaft:     cfg.AdvertisedRaft(),
		Bootstrap:         cfg.Cluster.Bootstrap,
		ProposeTimeout:    proposeTimeout,
		SnapshotInterval:  snapshotInterval,
		SnapshotThreshold: cfg.Snapshot.Threshold,
		Forwarder:         forwarder,
		Logger:            logger.With("component", "cluster"),
	})
	if err != nil {
		return fmt.Errorf("starting consensus: %w", err)
	}
	defer func() {
		if err := node.Shutdown(); err != nil {
			logger.Error("raft shutdown", "error", err)
		}
	}()

	enforcement := gate.New(gate.Config{
		Node:   node,
		Logger: logger.With("component", "gate"),
	})

	apiServer := api.NewServer(api.Config{
		Gate:    enforcement,
		Node:    node,
		Journal: journal,
		Logger:  logger.With("component", "api"),
	})
	httpServer := service.NewHTTPServer(service.HTTPServerConfig{
		Address: cfg.Listen.API,
		Handler: apiServer.Handler(),
		Logger:  logger.With("component", "http"),
	})

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return httpServer.Serve(groupCtx)
	})

	group.Go(func() error {
		heartbeatLoop(groupCtx, node, filepath.Join(cfg.DataDir, "heartbeat.json"), logger)
		return nil
	})

	group.Go(func() error {
		return membershipLoop(groupCtx, cfg, node, logger)
	})

	err = group.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Info("warden-node stopped")
	return err
}

// loadConfig resolves the config path from the flag or WARDEN_CONFIG.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// newLogger builds the process logger per config.
func newLogger(cfg config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", cfg.Level)
	}

	options := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, options)
	} else {
		handler = slog.NewTextHandler(os.Stderr, options)
	}
	return slog.New(handler), nil
}

// loadGuard parses the delegation policy file when configured. The
// policy digest is logged so operators can compare nodes: an apply
// divergence across the cluster traces back to unequal policies.
func loadGuard(path string, logger *slog.Logger) (*policy.Guard, error) {
	if path == "" {
		return policy.NewGuard(nil), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}
	parsed, err := policy.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing policy file %s: %w", path, err)
	}
	logger.Info("delegation policy loaded",
		"path", path,
		"digest", digest.Policy(data).String(),
	)
	return policy.NewGuard(parsed), nil
}

// heartbeatLoop writes the heartbeat file every interval until the
// context ends, then clears it so ops tooling sees a clean stop rather
// than a stall.
func heartbeatLoop(ctx context.Context, node *cluster.Node, path string, logger *slog.Logger) {
	clk := clock.Real()
	write := func() {
		state := watchdog.State{
			NodeID:        node.ID(),
			RecoveryState: node.RecoveryState().String(),
			AppliedIndex:  node.FSM().AppliedIndex(),
			Leader:        node.IsLeader(),
			Timestamp:     clk.Now(),
		}
		if err := watchdog.Write(path, state); err != nil {
			logger.Warn("heartbeat write failed", "error", err)
		}
	}
	write()

	ticker := clk.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := watchdog.Clear(path); err != nil {
				logger.Warn("heartbeat clear failed", "error", err)
			}
			return
		case <-ticker.C:
			write()
		}
	}
}

// membershipLoop brings the node into the cluster and keeps its member
// book entry current.
//
// A node with no log data and a configured join list asks the listed
// members for admission; once any admits it, raft replication brings
// it to Synced. Every node, once Synced, ensures the member book
// carries its advertised addresses, which is how the bootstrap node
// seeds its own entry and how a restarted node publishes an address
// change.
func membershipLoop(ctx context.Context, cfg *config.Config, node *cluster.Node, logger *slog.Logger) error {
	if len(cfg.Cluster.Join) > 0 && node.LastIndex() == 0 {
		if err := requestAdmission(ctx, cfg, logger); err != nil {
			return err
		}
	}

	// Wait out catch-up, then publish this node's addresses.
	ticker := clock.Real().NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for node.RecoveryState() != cluster.Synced {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	logger.Info("node synced", "applied_index", node.AppliedIndex())

	registerCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := node.EnsureRegistered(registerCtx, cfg.AdvertisedRaft(), cfg.AdvertisedAPI()); err != nil {
		logger.Warn("member book registration failed", "error", err)
	}

	<-ctx.Done()
	return ctx.Err()
}

// requestAdmission asks each configured member to add this node,
// until one succeeds. Members that are down or not leading are skipped
// (their clients chase the leader hint); persistent failure everywhere
// is retried on a backoff until the context ends.
func requestAdmission(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	clk := clock.Real()
	for attempt := 0; ; attempt++ {
		for _, address := range cfg.Cluster.Join {
			client, err := apiclient.New(apiclient.Config{
				Server:       address,
				FollowLeader: true,
			})
			if err != nil {
				logger.Warn("bad join address", "address", address, "error", err)
				continue
			}

			joinCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err = client.Join(joinCtx, cfg.NodeID, cfg.AdvertisedRaft(), cfg.AdvertisedAPI())
			cancel()
			if err == nil {
				logger.Info("admitted to cluster", "via", address)
				return nil
			}
			logger.Warn("join request failed", "address", address, "error", err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("never admitted to cluster: %w", ctx.Err())
		case <-clk.After(time.Duration(attempt+1) * time.Second):
		}
	}
}
