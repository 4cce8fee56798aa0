package validator

import (
	"errors"
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"github.com/stratumlabs/stratum/crypto"
	"github.com/stratumlabs/stratum/types"
)

var (
	ErrDuplicate         = errors.New("validator already registered")
	ErrInsufficientStake = errors.New("stake below minimum")
	ErrUnknown           = errors.New("unknown validator")
	ErrNotSlashable      = errors.New("validator not slashable")
)

// Params configure the registry's stake rules and lifecycle delays.
type Params struct {
	MinStake         uint64
	MinSlash         uint64
	StakeGranularity uint64      // effective-balance flooring increment
	ActivationDelay  types.Epoch // epochs from registration to Active
	ExitDelay        types.Epoch // epochs from exit request to Exited
}

// Registry is the validator set. It is owned by the consensus task and is
// not safe for concurrent mutation.
type Registry struct {
	params    Params
	byAddress map[types.Address]*Validator
	byIndex   []*Validator
}

// NewRegistry creates an empty registry.
func NewRegistry(params Params) *Registry {
	if params.StakeGranularity == 0 {
		params.StakeGranularity = 1
	}
	return &Registry{
		params:    params,
		byAddress: make(map[types.Address]*Validator),
	}
}

// Register adds a new validator in Pending status with
// activation_epoch = currentEpoch + ActivationDelay. The address is derived
// from the public key. Indices are assigned in registration order.
func (r *Registry) Register(pubkey types.Pubkey, stake uint64, commissionBps uint16, currentEpoch types.Epoch) (types.Address, error) {
	if stake < r.params.MinStake {
		return types.Address{}, fmt.Errorf("%w: %d < %d", ErrInsufficientStake, stake, r.params.MinStake)
	}
	addr := crypto.AddressFromPubkey(pubkey)
	if _, exists := r.byAddress[addr]; exists {
		return types.Address{}, fmt.Errorf("%w: %s", ErrDuplicate, addr)
	}

	v := &Validator{
		Index:            types.ValidatorIndex(len(r.byIndex)),
		Address:          addr,
		Pubkey:           pubkey,
		EffectiveBalance: stake - stake%r.params.StakeGranularity,
		CommissionBps:    commissionBps,
		Status:           Pending,
		ActivationEpoch:  currentEpoch + r.params.ActivationDelay,
	}
	r.byAddress[addr] = v
	r.byIndex = append(r.byIndex, v)
	return addr, nil
}

// RegisterGenesis adds a validator that is Active from epoch 0, bypassing
// the activation delay. Used only when seeding the genesis set.
func (r *Registry) RegisterGenesis(pubkey types.Pubkey, stake uint64, commissionBps uint16) (types.Address, error) {
	addr, err := r.Register(pubkey, stake, commissionBps, 0)
	if err != nil {
		return types.Address{}, err
	}
	v := r.byAddress[addr]
	v.Status = Active
	v.ActivationEpoch = 0
	return addr, nil
}

// Delegate adds delegated stake to an existing validator, raising its
// effective balance by the full delegated amount.
func (r *Registry) Delegate(addr types.Address, amount uint64) error {
	v, ok := r.byAddress[addr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknown, addr)
	}
	v.DelegatedStake += amount
	v.EffectiveBalance += amount
	return nil
}

// Activate promotes every Pending validator whose activation epoch has
// arrived, in ascending address order.
func (r *Registry) Activate(epoch types.Epoch) {
	pending := make([]*Validator, 0)
	for _, v := range r.byIndex {
		if v.Status == Pending && v.ActivationEpoch <= epoch {
			pending = append(pending, v)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Address.Compare(pending[j].Address) < 0
	})
	for _, v := range pending {
		v.Status = Active
	}
}

// Slash marks the validator Slashed, reduces its effective balance by
// max(MinSlash, balance/32), and schedules its exit. From this point the
// validator contributes zero attestation weight.
func (r *Registry) Slash(addr types.Address, currentEpoch types.Epoch) error {
	v, ok := r.byAddress[addr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknown, addr)
	}
	if v.Status == Slashed || v.Status == Exited {
		return fmt.Errorf("%w: status %s", ErrNotSlashable, v.Status)
	}

	penalty := v.EffectiveBalance / 32
	if penalty < r.params.MinSlash {
		penalty = r.params.MinSlash
	}
	if penalty > v.EffectiveBalance {
		penalty = v.EffectiveBalance
	}
	v.EffectiveBalance -= penalty
	v.Status = Slashed
	v.ExitEpoch = currentEpoch + r.params.ExitDelay
	return nil
}

// BeginExit moves an active validator into Exiting with
// exit_epoch = currentEpoch + ExitDelay.
func (r *Registry) BeginExit(addr types.Address, currentEpoch types.Epoch) error {
	v, ok := r.byAddress[addr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknown, addr)
	}
	v.Status = Exiting
	v.ExitEpoch = currentEpoch + r.params.ExitDelay
	return nil
}

// ProcessExits finishes the Exiting -> Exited transition for validators
// whose exit epoch has passed.
func (r *Registry) ProcessExits(epoch types.Epoch) {
	for _, v := range r.byIndex {
		if v.Status == Exiting && v.ExitEpoch <= epoch {
			v.Status = Exited
		}
	}
}

// IterActive returns the active validators at epoch in ascending address
// order, as value snapshots of their current effective balances.
func (r *Registry) IterActive(epoch types.Epoch) []Validator {
	out := make([]Validator, 0, len(r.byIndex))
	for _, v := range r.byIndex {
		if v.IsActiveAt(epoch) {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address.Compare(out[j].Address) < 0
	})
	return out
}

// TotalActiveStake sums the effective balances of the active validators at
// epoch.
func (r *Registry) TotalActiveStake(epoch types.Epoch) *uint256.Int {
	total := uint256.NewInt(0)
	for _, v := range r.byIndex {
		if v.IsActiveAt(epoch) {
			total.AddUint64(total, v.EffectiveBalance)
		}
	}
	return total
}

// ByAddress looks up a validator by address.
func (r *Registry) ByAddress(addr types.Address) (*Validator, bool) {
	v, ok := r.byAddress[addr]
	return v, ok
}

// ByIndex looks up a validator by registry index.
func (r *Registry) ByIndex(idx types.ValidatorIndex) (*Validator, bool) {
	if uint64(idx) >= uint64(len(r.byIndex)) {
		return nil, false
	}
	return r.byIndex[idx], true
}

// Len returns the number of registered validators.
func (r *Registry) Len() int { return len(r.byIndex) }
