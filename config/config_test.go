package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "min_stake: 250\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MinStake != 250 {
		t.Errorf("min_stake = %d, want 250", cfg.MinStake)
	}
	if cfg.SlotsPerEpoch != 32 {
		t.Errorf("slots_per_epoch default = %d, want 32", cfg.SlotsPerEpoch)
	}
	if cfg.SlotDurationMs != 12000 {
		t.Errorf("slot_duration_ms default = %d, want 12000", cfg.SlotDurationMs)
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
slots_per_epoch: 4
slot_duration_ms: 1000
committees_per_slot: 2
genesis_seed: "00000000000000000000000000000000000000000000000000000000000000ff"
genesis_time: 1700000000
orphan_ttl: 8
clock_skew_tolerance_ms: 250
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SlotsPerEpoch != 4 || cfg.CommitteesPerSlot != 2 || cfg.OrphanTTL != 8 {
		t.Errorf("unexpected values: %+v", cfg)
	}
	seed, err := cfg.Seed()
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if seed[31] != 0xff {
		t.Errorf("seed tail byte = %02x, want ff", seed[31])
	}
}

func TestLoadRejectsBadSeed(t *testing.T) {
	path := writeConfig(t, "genesis_seed: \"zz\"\n")
	if _, err := Load(path); err == nil {
		t.Error("malformed genesis seed accepted")
	}
}

func TestLoadRejectsUnderfundedGenesisValidator(t *testing.T) {
	path := writeConfig(t, `
min_stake: 100
genesis_validators:
  - pubkey: "0000000000000000000000000000000000000000000000000000000000000001"
    stake: 50
`)
	if _, err := Load(path); err == nil {
		t.Error("genesis validator below min_stake accepted")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}
