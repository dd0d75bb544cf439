// Package config loads the coordinator daemon's YAML configuration,
// grounded on the same peer-list/defaults-then-override shape the
// icecanekv config loader uses (dr0pdb-icecanedb/pkg/common/config.go),
// ported onto yaml.v3 and returning an error instead of logging and
// leaving the config untouched.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cypressdb/coordinator/internal/obslog"
	"github.com/cypressdb/coordinator/internal/txnid"
)

// Peer is another cell's raft address, reachable for cluster membership.
type Peer struct {
	CellTag txnid.CellTag `yaml:"cell_tag"`
	RaftID  string        `yaml:"raft_id"`
	Address string        `yaml:"address"`
}

// Config is the coordinator daemon's full startup configuration.
type Config struct {
	// LocalCellTag is this process's native cell tag.
	LocalCellTag txnid.CellTag `yaml:"local_cell_tag"`
	// RaftID is this node's raft.ServerID.
	RaftID string `yaml:"raft_id"`
	// RaftBindAddress is the address the raft transport listens on.
	RaftBindAddress string `yaml:"raft_bind_address"`
	// RaftDataDir is the directory raft's bolt log/stable store and
	// snapshot store are rooted at.
	RaftDataDir string `yaml:"raft_data_dir"`
	// Bootstrap, when true, bootstraps a raft cluster made of this node
	// plus every entry of Peers on first start, instead of expecting to
	// join an existing one.
	Bootstrap bool `yaml:"bootstrap"`
	// Peers lists the other cells in the cluster.
	Peers []Peer `yaml:"peers"`

	// SequoiaBackend selects the Sequoia client implementation. Only
	// "memory" is implemented; the field exists so a future real backend
	// has somewhere to be selected from.
	SequoiaBackend string `yaml:"sequoia_backend"`

	// QUICListenAddress is the address for accepting dispatched-action
	// streams from other cells over internal/transport/quictransport. It
	// is parsed and defaulted only; cmd/coordinatord does not read it and
	// starts no QUIC listener.
	QUICListenAddress string `yaml:"quic_listen_address"`
	// GRPCListenAddress is where cmd/coordinatord serves its health and
	// reflection surface.
	GRPCListenAddress string `yaml:"grpc_listen_address"`
	// MetricsListenAddress is where the Prometheus /metrics handler is
	// served.
	MetricsListenAddress string `yaml:"metrics_listen_address"`

	// MutationTimeout is the time bound for a single Sequoia-mutation
	// attempt. It is parsed and defaulted only; no mutation attempt is
	// bounded by it.
	MutationTimeout time.Duration `yaml:"mutation_timeout"`

	// Log configures internal/obslog.
	Log obslog.Config `yaml:"log"`
}

// Default returns a Config with the same kind of conservative defaults
// NewDefaultKVConfig seeds before a file is loaded over it.
func Default() Config {
	return Config{
		SequoiaBackend:       "memory",
		RaftDataDir:          "/var/lib/cypress-coordinator/raft",
		QUICListenAddress:    "127.0.0.1:4433",
		GRPCListenAddress:    "127.0.0.1:9090",
		MetricsListenAddress: "127.0.0.1:2112",
		MutationTimeout:      30 * time.Second,
		Log:                  obslog.Config{Level: "info", Format: "console", OutputFile: "stdout"},
	}
}

// Load reads and parses the YAML file at path into a copy of base,
// returning the merged config. Unlike the grounding example's
// LoadFromFile, this returns an error instead of swallowing it, since
// config errors should stop the daemon from starting with a silently
// wrong configuration.
func Load(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the same kind of required-field check
// KVConfig.Validate performs, adapted to this daemon's fields.
func (c Config) Validate() error {
	if c.RaftID == "" {
		return fmt.Errorf("raft_id is required")
	}
	if c.RaftBindAddress == "" {
		return fmt.Errorf("raft_bind_address is required")
	}
	for _, p := range c.Peers {
		if p.Address == "" || p.RaftID == "" {
			return fmt.Errorf("peer entries require raft_id and address")
		}
	}
	return nil
}
