// Package config loads and validates node configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stratumlabs/stratum/types"
)

// GenesisValidator seeds one registry entry at genesis.
type GenesisValidator struct {
	Pubkey        string `yaml:"pubkey"` // 64-char hex Ed25519 public key
	Stake         uint64 `yaml:"stake"`
	CommissionBps uint16 `yaml:"commission_bps"`
}

// Config holds every recognized option. Zero values are filled with
// defaults by Load and Default.
type Config struct {
	SlotsPerEpoch        uint64 `yaml:"slots_per_epoch"`
	SlotDurationMs       uint64 `yaml:"slot_duration_ms"`
	MinStake             uint64 `yaml:"min_stake"`
	MinSlash             uint64 `yaml:"min_slash"`
	StakeGranularity     uint64 `yaml:"stake_granularity"`
	ActivationDelay      uint64 `yaml:"activation_delay"` // epochs
	ExitDelay            uint64 `yaml:"exit_delay"`       // epochs
	CommitteesPerSlot    uint64 `yaml:"committees_per_slot"`
	GenesisSeed          string `yaml:"genesis_seed"` // 64-char hex
	OrphanTTL            uint64 `yaml:"orphan_ttl"`   // slots
	MaxOrphans           int    `yaml:"max_orphans"`
	ClockSkewToleranceMs uint64 `yaml:"clock_skew_tolerance_ms"`
	EvidenceRetention    uint64 `yaml:"evidence_retention"` // epochs past exit
	GasLimit             uint64 `yaml:"gas_limit"`          // per-block budget

	GenesisTime       uint64             `yaml:"genesis_time"`
	GenesisValidators []GenesisValidator `yaml:"genesis_validators"`

	DataDir     string   `yaml:"data_dir"`
	ListenAddrs []string `yaml:"listen_addrs"`
	Bootnodes   []string `yaml:"bootnodes"`
	MetricsAddr string   `yaml:"metrics_addr"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		SlotsPerEpoch:        types.DefaultSlotsPerEpoch,
		SlotDurationMs:       types.DefaultSlotDurationMs,
		MinStake:             100,
		MinSlash:             1,
		StakeGranularity:     1,
		ActivationDelay:      1,
		ExitDelay:            4,
		CommitteesPerSlot:    1,
		GenesisSeed:          "0000000000000000000000000000000000000000000000000000000000000001",
		OrphanTTL:            32,
		MaxOrphans:           512,
		ClockSkewToleranceMs: 500,
		EvidenceRetention:    64,
		GasLimit:             30_000_000,
	}
}

// Load reads a YAML config file, filling unset fields with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.SlotsPerEpoch == 0 {
		c.SlotsPerEpoch = d.SlotsPerEpoch
	}
	if c.SlotDurationMs == 0 {
		c.SlotDurationMs = d.SlotDurationMs
	}
	if c.CommitteesPerSlot == 0 {
		c.CommitteesPerSlot = d.CommitteesPerSlot
	}
	if c.StakeGranularity == 0 {
		c.StakeGranularity = d.StakeGranularity
	}
	if c.GenesisSeed == "" {
		c.GenesisSeed = d.GenesisSeed
	}
	if c.OrphanTTL == 0 {
		c.OrphanTTL = d.OrphanTTL
	}
	if c.MaxOrphans == 0 {
		c.MaxOrphans = d.MaxOrphans
	}
	if c.GasLimit == 0 {
		c.GasLimit = d.GasLimit
	}
}

// Validate checks internal consistency.
func (c *Config) Validate() error {
	if _, err := c.Seed(); err != nil {
		return err
	}
	for i, gv := range c.GenesisValidators {
		if _, err := types.PubkeyFromHex(gv.Pubkey); err != nil {
			return fmt.Errorf("genesis validator %d: %w", i, err)
		}
		if gv.Stake < c.MinStake {
			return fmt.Errorf("genesis validator %d: stake %d below minimum %d", i, gv.Stake, c.MinStake)
		}
	}
	return nil
}

// Seed parses the genesis seed.
func (c *Config) Seed() (types.Hash, error) {
	seed, err := types.HashFromHex(c.GenesisSeed)
	if err != nil {
		return types.Hash{}, fmt.Errorf("genesis_seed: %w", err)
	}
	return seed, nil
}

// SlotDuration returns the slot length as a duration.
func (c *Config) SlotDuration() time.Duration {
	return time.Duration(c.SlotDurationMs) * time.Millisecond
}

// ClockSkewTolerance returns the accepted future-slot drift.
func (c *Config) ClockSkewTolerance() time.Duration {
	return time.Duration(c.ClockSkewToleranceMs) * time.Millisecond
}
