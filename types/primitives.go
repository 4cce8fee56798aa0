// Package types defines the primitive and composite types for the consensus core.
package types

import (
	"encoding/hex"
	"fmt"
)

// Primitive types.
type Slot uint64
type Epoch uint64
type ValidatorIndex uint64

// Hash is a 32-byte SHA-256 digest.
type Hash [32]byte

// Address is a 20-byte validator identifier, the last 20 bytes of
// SHA-256 of the validator public key.
type Address [20]byte

// Pubkey is a 32-byte Ed25519 public key.
type Pubkey [32]byte

// Signature is a 64-byte Ed25519 signature.
type Signature [64]byte

func (h Hash) IsZero() bool { return h == Hash{} }

// Short returns a short hex representation of the hash (first 4 bytes).
func (h Hash) Short() string {
	return fmt.Sprintf("%x", h[:4])
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Compare compares two hashes lexicographically (big-endian integer order).
// Returns 1 if h > other, -1 if h < other, 0 if equal.
func (h Hash) Compare(other Hash) int {
	for i := 0; i < len(h); i++ {
		if h[i] > other[i] {
			return 1
		}
		if h[i] < other[i] {
			return -1
		}
	}
	return 0
}

// HashFromHex parses a 64-character hex string into a Hash.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("decode hash hex: %w", err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("hash must be %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

func (a Address) IsZero() bool { return a == Address{} }

func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// Compare compares two addresses lexicographically.
func (a Address) Compare(other Address) int {
	for i := 0; i < len(a); i++ {
		if a[i] > other[i] {
			return 1
		}
		if a[i] < other[i] {
			return -1
		}
	}
	return 0
}

// PubkeyFromHex parses a 64-character hex string into a Pubkey.
func PubkeyFromHex(s string) (Pubkey, error) {
	var p Pubkey
	b, err := hex.DecodeString(s)
	if err != nil {
		return p, fmt.Errorf("decode pubkey hex: %w", err)
	}
	if len(b) != len(p) {
		return p, fmt.Errorf("pubkey must be %d bytes, got %d", len(p), len(b))
	}
	copy(p[:], b)
	return p, nil
}

// Protocol defaults. Runtime values come from config; these anchor the
// defaults and the tests.
const (
	DefaultSlotsPerEpoch  uint64 = 32
	DefaultSlotDurationMs uint64 = 12000
)

// EpochOf returns the epoch containing the given slot.
func EpochOf(slot Slot, slotsPerEpoch uint64) Epoch {
	return Epoch(uint64(slot) / slotsPerEpoch)
}

// FirstSlot returns the first slot of the given epoch.
func FirstSlot(epoch Epoch, slotsPerEpoch uint64) Slot {
	return Slot(uint64(epoch) * slotsPerEpoch)
}

// SlotIndexInEpoch returns the slot's offset within its epoch.
func SlotIndexInEpoch(slot Slot, slotsPerEpoch uint64) uint64 {
	return uint64(slot) % slotsPerEpoch
}
