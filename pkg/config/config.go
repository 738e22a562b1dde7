// Package config holds the forester's own configuration: the enumerated
// settings from the on-chain/indexer/prover boundary (prover endpoints,
// polling behavior, queue hints, slot tracker wiring). Loading the CLI's
// flags, and everything downstream of them (RPC pool sizing, logging
// sinks), stays outside this package: the coordinator only needs this
// struct, not how it was produced.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ProverConfig configures the HTTP prover client (§6, §4.5 of SPEC_FULL.md).
type ProverConfig struct {
	AppendURL       string        `yaml:"append_url"`
	UpdateURL       string        `yaml:"update_url"`
	APIKey          string        `yaml:"api_key"`
	PollingInterval time.Duration `yaml:"polling_interval"`
	MaxWaitTime     time.Duration `yaml:"max_wait_time"`
	LocalVerify     bool          `yaml:"local_verify"`
	VerifyingKeyPath string       `yaml:"verifying_key_path"`
}

// SlotTrackerConfig configures the diagnostic-only light-slot computation.
type SlotTrackerConfig struct {
	EpochPhases []time.Duration `yaml:"epoch_phases"`
	SlotLength  time.Duration   `yaml:"slot_length"`
}

// QueueHints bound how much readiness work a single process() call may see
// before doing any I/O (§6: "if both are zero, return immediately").
type QueueHints struct {
	InputQueueHint  uint16 `yaml:"input_queue_hint"`
	OutputQueueHint uint16 `yaml:"output_queue_hint"`
}

// Config is the full set of per-process forester settings.
type Config struct {
	Prover       ProverConfig      `yaml:"prover"`
	SlotTracker  SlotTrackerConfig `yaml:"slot_tracker"`
	Hints        QueueHints        `yaml:"hints"`

	ChainRPCURL   string `yaml:"chain_rpc_url"`
	ChainID       int64  `yaml:"chain_id"`
	SignerKeyHex  string `yaml:"signer_key_hex"`
	IndexerURL    string `yaml:"indexer_url"`
	RetryThreshold int   `yaml:"retry_threshold"`

	// CacheWarmStartPath, if non-empty, enables the diagnostic disk
	// snapshot described in SPEC_FULL.md §4.7 (NEW). Empty disables it.
	CacheWarmStartPath string `yaml:"cache_warm_start_path"`
}

// Default returns the configuration a freshly-started forester uses absent
// any file or environment override.
func Default() *Config {
	return &Config{
		Prover: ProverConfig{
			PollingInterval: 500 * time.Millisecond,
			MaxWaitTime:     60 * time.Second,
		},
		RetryThreshold: 10,
		Hints: QueueHints{
			InputQueueHint:  50,
			OutputQueueHint: 50,
		},
	}
}

// LoadFromEnv overlays environment variables onto a Default() config. It
// never fails on a missing variable; it only fails if a present variable
// cannot be parsed, mirroring the teacher's getEnv/getEnvInt convention.
func LoadFromEnv() (*Config, error) {
	cfg := Default()

	if v := os.Getenv("FORESTER_PROVER_APPEND_URL"); v != "" {
		cfg.Prover.AppendURL = v
	}
	if v := os.Getenv("FORESTER_PROVER_UPDATE_URL"); v != "" {
		cfg.Prover.UpdateURL = v
	}
	if v := os.Getenv("FORESTER_PROVER_API_KEY"); v != "" {
		cfg.Prover.APIKey = v
	}
	if v := os.Getenv("FORESTER_PROVER_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("FORESTER_PROVER_POLL_INTERVAL: %w", err)
		}
		cfg.Prover.PollingInterval = d
	}
	if v := os.Getenv("FORESTER_PROVER_MAX_WAIT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("FORESTER_PROVER_MAX_WAIT: %w", err)
		}
		cfg.Prover.MaxWaitTime = d
	}
	if v := os.Getenv("FORESTER_CHAIN_RPC_URL"); v != "" {
		cfg.ChainRPCURL = v
	}
	if v := os.Getenv("FORESTER_CHAIN_ID"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("FORESTER_CHAIN_ID: %w", err)
		}
		cfg.ChainID = n
	}
	if v := os.Getenv("FORESTER_SIGNER_KEY"); v != "" {
		cfg.SignerKeyHex = v
	}
	if v := os.Getenv("FORESTER_INDEXER_URL"); v != "" {
		cfg.IndexerURL = v
	}
	if v := os.Getenv("FORESTER_RETRY_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("FORESTER_RETRY_THRESHOLD: %w", err)
		}
		cfg.RetryThreshold = n
	}
	if v := os.Getenv("FORESTER_CACHE_WARM_START_PATH"); v != "" {
		cfg.CacheWarmStartPath = v
	}

	return cfg, nil
}

// Validate checks that the settings a live run needs are present. A config
// built purely for unit tests against fakes can skip this.
func (c *Config) Validate() error {
	if c.Prover.AppendURL == "" {
		return fmt.Errorf("config: prover.append_url is required")
	}
	if c.Prover.UpdateURL == "" {
		return fmt.Errorf("config: prover.update_url is required")
	}
	if c.Prover.PollingInterval <= 0 {
		return fmt.Errorf("config: prover.polling_interval must be positive")
	}
	if c.Prover.MaxWaitTime <= 0 {
		return fmt.Errorf("config: prover.max_wait_time must be positive")
	}
	if c.RetryThreshold <= 0 {
		return fmt.Errorf("config: retry_threshold must be positive")
	}
	if c.ChainRPCURL == "" {
		return fmt.Errorf("config: chain_rpc_url is required")
	}
	if c.SignerKeyHex == "" {
		return fmt.Errorf("config: signer_key_hex is required")
	}
	if c.IndexerURL == "" {
		return fmt.Errorf("config: indexer_url is required")
	}
	return nil
}
