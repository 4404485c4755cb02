// Package config loads the node's configuration file. Parsing is strict:
// unknown keys are rejected rather than silently ignored, matching
// spec.md section 6.
package config

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration recognized by the core networking,
// consensus, and reactor layers.
type Config struct {
	BindAddress            string         `yaml:"bind_address"`
	PublicAddress          string         `yaml:"public_address"`
	RPCBindAddress         string         `yaml:"rpc_bind_address"`
	KnownAddresses         []string       `yaml:"known_addresses"`
	SecretKeyPath          string         `yaml:"secret_key_path"`
	NetworkName            string         `yaml:"network_name"`
	MaximumNetMessageSize  uint32         `yaml:"maximum_net_message_size"`
	DataDir                string         `yaml:"data_dir"`
	Consensus              ConsensusConfig `yaml:"consensus"`
	SchedulerQueueWeights  map[string]int `yaml:"scheduler_queue_weights"`
}

// ConsensusConfig holds the subset of consensus configuration the core
// reactor needs to know about; the consensus protocol internals themselves
// are out of scope (spec.md section 1).
type ConsensusConfig struct {
	// PendingVertexTimeout is the duration an orphan vertex with missing
	// dependencies is kept pending before being discarded.
	PendingVertexTimeout time.Duration `yaml:"pending_vertex_timeout"`
	// UnitHashesFolder is the persistence directory for consensus unit hash
	// files.
	UnitHashesFolder string `yaml:"unit_hashes_folder"`
}

// DefaultConsensusConfig mirrors the original implementation's default of a
// 10-second pending vertex timeout.
func DefaultConsensusConfig() ConsensusConfig {
	return ConsensusConfig{
		PendingVertexTimeout: 10 * time.Second,
	}
}

// Default returns a Config with the documented defaults applied.
func Default() Config {
	return Config{
		MaximumNetMessageSize: 22 * 1024 * 1024,
		DataDir:               "./data",
		Consensus:             DefaultConsensusConfig(),
	}
}

// Load reads and strictly parses the configuration file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse strictly parses YAML config data, rejecting unknown fields.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks that required fields are present and well-formed.
func (c Config) Validate() error {
	if c.NetworkName == "" {
		return fmt.Errorf("network_name is required")
	}
	if c.BindAddress != "" {
		if _, _, err := net.SplitHostPort(c.BindAddress); err != nil {
			return fmt.Errorf("invalid bind_address %q: %w", c.BindAddress, err)
		}
	}
	if c.PublicAddress != "" {
		if _, _, err := net.SplitHostPort(c.PublicAddress); err != nil {
			return fmt.Errorf("invalid public_address %q: %w", c.PublicAddress, err)
		}
	}
	if c.RPCBindAddress != "" {
		if _, _, err := net.SplitHostPort(c.RPCBindAddress); err != nil {
			return fmt.Errorf("invalid rpc_bind_address %q: %w", c.RPCBindAddress, err)
		}
	}
	if c.MaximumNetMessageSize == 0 {
		return fmt.Errorf("maximum_net_message_size must be positive")
	}
	return nil
}
