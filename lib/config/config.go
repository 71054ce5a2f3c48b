// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/warden-foundation/warden/lib/snapshot"
)

// Config is the full configuration of one warden node.
type Config struct {
	// NodeID is the stable cluster-wide identifier of this node. It
	// never changes across restarts; raft membership is keyed on it.
	NodeID string `yaml:"node_id"`

	// DataDir is the base directory for all durable node state: the
	// raft log, snapshots, and the history journal.
	DataDir string `yaml:"data_dir"`

	// Listen configures the bind addresses.
	Listen ListenConfig `yaml:"listen"`

	// Advertise configures the addresses other nodes and clients
	// reach this node on. Empty fields default to the listen
	// addresses.
	Advertise AdvertiseConfig `yaml:"advertise"`

	// Cluster configures bootstrap and join behavior.
	Cluster ClusterConfig `yaml:"cluster"`

	// ProposeTimeout bounds how long a command waits for commit
	// before the node gives up and reports a timeout. Go duration
	// syntax. Default: "5s".
	ProposeTimeout string `yaml:"propose_timeout"`

	// Snapshot configures capture cadence and at-rest format.
	Snapshot SnapshotConfig `yaml:"snapshot"`

	// PolicyFile is the optional delegation-guard policy (JSONC).
	// Empty disables the guard. Every node in a cluster must use an
	// identical file.
	PolicyFile string `yaml:"policy_file"`

	// History configures the local command-outcome journal.
	History HistoryConfig `yaml:"history"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log"`
}

// ListenConfig holds the bind addresses.
type ListenConfig struct {
	// API is the host:port the HTTP API listens on.
	API string `yaml:"api"`

	// Raft is the host:port the raft transport listens on.
	Raft string `yaml:"raft"`
}

// AdvertiseConfig holds externally reachable addresses, for
// deployments where the bind address is not routable (containers,
// NAT).
type AdvertiseConfig struct {
	API  string `yaml:"api"`
	Raft string `yaml:"raft"`
}

// ClusterConfig controls how the node enters a cluster.
type ClusterConfig struct {
	// Bootstrap makes this node form a new single-member cluster on
	// first start. Exactly one node per cluster ever sets this.
	Bootstrap bool `yaml:"bootstrap"`

	// Join lists API addresses of existing members to request
	// admission through. Ignored once the node has local raft state.
	Join []string `yaml:"join"`
}

// SnapshotConfig controls snapshot capture and encoding.
type SnapshotConfig struct {
	// Compression is the payload codec: "none", "lz4", or "zstd".
	// Default: "zstd".
	Compression string `yaml:"compression"`

	// Threshold is the number of applied log entries after which
	// raft captures a snapshot. Default: 8192.
	Threshold uint64 `yaml:"threshold"`

	// Interval is how often raft checks the threshold. Go duration
	// syntax. Default: "2m".
	Interval string `yaml:"interval"`

	// EncryptionKeyFile, when set, points at operator key material;
	// snapshots are then sealed at rest. "-" reads from stdin.
	EncryptionKeyFile string `yaml:"encryption_key_file"`
}

// HistoryConfig controls the per-node command-outcome journal.
type HistoryConfig struct {
	// MaxEntries caps the journal; the oldest rows are pruned past
	// it. Zero keeps everything. Default: 100000.
	MaxEntries int64 `yaml:"max_entries"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	// Level is "debug", "info", "warn", or "error". Default: "info".
	Level string `yaml:"level"`

	// Format is "text" or "json". Default: "text".
	Format string `yaml:"format"`
}

// Default returns the default configuration. The defaults make every
// field usable for a local single-node setup; NodeID is the one field
// with no sensible default and must come from the file.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultData := filepath.Join(homeDir, ".local", "share", "warden")

	return &Config{
		DataDir: defaultData,
		Listen: ListenConfig{
			API:  "127.0.0.1:7420",
			Raft: "127.0.0.1:7421",
		},
		ProposeTimeout: "5s",
		Snapshot: SnapshotConfig{
			Compression: "zstd",
			Threshold:   8192,
			Interval:    "2m",
		},
		History: HistoryConfig{
			MaxEntries: 100000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from the WARDEN_CONFIG environment
// variable. This is the only way to load configuration without an
// explicit path; if the variable is unset, Load fails rather than
// guessing.
func Load() (*Config, error) {
	configPath := os.Getenv("WARDEN_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("WARDEN_CONFIG environment variable not set; " +
			"set it to the path of your warden.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. The file is
// the single source of truth: environment variables never override
// values, and the only expansion performed is ${HOME}-style path
// variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in path
// fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"WARDEN_DATA": c.DataDir,
		"HOME":        os.Getenv("HOME"),
	}

	c.DataDir = expandVars(c.DataDir, vars)
	vars["WARDEN_DATA"] = c.DataDir

	c.PolicyFile = expandVars(c.PolicyFile, vars)
	c.Snapshot.EncryptionKeyFile = expandVars(c.Snapshot.EncryptionKeyFile, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. All problems are
// reported at once.
func (c *Config) Validate() error {
	var errs []error

	if c.NodeID == "" {
		errs = append(errs, fmt.Errorf("node_id is required"))
	}
	if c.DataDir == "" {
		errs = append(errs, fmt.Errorf("data_dir is required"))
	}

	for field, address := range map[string]string{
		"listen.api":  c.Listen.API,
		"listen.raft": c.Listen.Raft,
	} {
		if address == "" {
			errs = append(errs, fmt.Errorf("%s is required", field))
			continue
		}
		if _, _, err := net.SplitHostPort(address); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
	}
	for field, address := range map[string]string{
		"advertise.api":  c.Advertise.API,
		"advertise.raft": c.Advertise.Raft,
	} {
		if address == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(address); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
	}

	if c.Cluster.Bootstrap && len(c.Cluster.Join) > 0 {
		errs = append(errs, fmt.Errorf("cluster.bootstrap and cluster.join are mutually exclusive"))
	}

	for field, value := range map[string]string{
		"propose_timeout":   c.ProposeTimeout,
		"snapshot.interval": c.Snapshot.Interval,
	} {
		duration, err := time.ParseDuration(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		} else if duration <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", field, duration))
		}
	}

	if _, err := snapshot.ParseCompression(c.Snapshot.Compression); err != nil {
		errs = append(errs, fmt.Errorf("snapshot.compression: %w", err))
	}

	if c.History.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("history.max_entries must not be negative, got %d", c.History.MaxEntries))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn, or error, got %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// AdvertisedAPI returns the address clients should reach the API on.
func (c *Config) AdvertisedAPI() string {
	if c.Advertise.API != "" {
		return c.Advertise.API
	}
	return c.Listen.API
}

// AdvertisedRaft returns the address peers should reach raft on.
func (c *Config) AdvertisedRaft() string {
	if c.Advertise.Raft != "" {
		return c.Advertise.Raft
	}
	return c.Listen.Raft
}

// RaftDir is where the raft log, stable store, and snapshot store
// live.
func (c *Config) RaftDir() string {
	return filepath.Join(c.DataDir, "raft")
}

// HistoryPath is the history journal's SQLite database file.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// EnsurePaths creates the configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.DataDir, c.RaftDir()} {
		if err := os.MkdirAll(path, 0o700); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
