// Package validator maintains the validator set: registration, status
// transitions, and the stake bookkeeping that drives selection and
// attestation weights.
package validator

import (
	"github.com/stratumlabs/stratum/types"
)

// Status is a validator's lifecycle state.
type Status uint8

const (
	Pending Status = iota
	Active
	Jailed
	Exiting
	Exited
	Slashed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Active:
		return "active"
	case Jailed:
		return "jailed"
	case Exiting:
		return "exiting"
	case Exited:
		return "exited"
	case Slashed:
		return "slashed"
	default:
		return "unknown"
	}
}

// Performance tracks a validator's duty record.
type Performance struct {
	Proposed           uint64
	Missed             uint64
	Attested           uint64
	MissedAttestations uint64
}

// Validator is one entry in the registry. EffectiveBalance is the selection
// and voting weight: own stake floored to the configured granularity plus
// delegated stake.
type Validator struct {
	Index            types.ValidatorIndex
	Address          types.Address
	Pubkey           types.Pubkey
	EffectiveBalance uint64
	DelegatedStake   uint64
	CommissionBps    uint16
	Status           Status
	ActivationEpoch  types.Epoch
	ExitEpoch        types.Epoch
	Performance      Performance
}

// IsActiveAt reports whether the validator counts as active for duties at
// the given epoch.
func (v *Validator) IsActiveAt(epoch types.Epoch) bool {
	return v.Status == Active && v.ActivationEpoch <= epoch
}
