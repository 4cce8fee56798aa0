// Package duties implements deterministic proposer and committee selection
// from a per-slot seed.
package duties

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"github.com/holiman/uint256"

	"github.com/stratumlabs/stratum/types"
	"github.com/stratumlabs/stratum/validator"
)

var (
	ErrNoActiveValidators = errors.New("no active validators")
	ErrCommitteeIndex     = errors.New("committee index out of range")
)

// Selector derives proposers and committees for slots. All draws are pure
// functions of the genesis seed, the slot, and the active validator set, so
// every node computes identical assignments.
type Selector struct {
	genesisSeed       types.Hash
	slotsPerEpoch     uint64
	committeesPerSlot uint64
	registry          *validator.Registry
}

// NewSelector creates a duty selector over the given registry.
func NewSelector(genesisSeed types.Hash, slotsPerEpoch, committeesPerSlot uint64, registry *validator.Registry) *Selector {
	if committeesPerSlot == 0 {
		committeesPerSlot = 1
	}
	return &Selector{
		genesisSeed:       genesisSeed,
		slotsPerEpoch:     slotsPerEpoch,
		committeesPerSlot: committeesPerSlot,
		registry:          registry,
	}
}

// EpochSeed returns hash(genesis_seed || epoch_le_bytes).
func (s *Selector) EpochSeed(epoch types.Epoch) types.Hash {
	var buf [40]byte
	copy(buf[:32], s.genesisSeed[:])
	binary.LittleEndian.PutUint64(buf[32:], uint64(epoch))
	return sha256.Sum256(buf[:])
}

// SlotSeed returns hash(epoch_seed || slot_le_bytes).
func (s *Selector) SlotSeed(slot types.Slot) types.Hash {
	epochSeed := s.EpochSeed(types.EpochOf(slot, s.slotsPerEpoch))
	var buf [40]byte
	copy(buf[:32], epochSeed[:])
	binary.LittleEndian.PutUint64(buf[32:], uint64(slot))
	return sha256.Sum256(buf[:])
}

// Proposer returns the stake-weighted proposer for the slot: the first 8
// bytes of the slot seed, taken as a big-endian integer and reduced modulo
// the total active balance, select a point on the cumulative stake line of
// the active set in ascending address order.
func (s *Selector) Proposer(slot types.Slot) (validator.Validator, error) {
	epoch := types.EpochOf(slot, s.slotsPerEpoch)
	active := s.registry.IterActive(epoch)
	if len(active) == 0 {
		return validator.Validator{}, ErrNoActiveValidators
	}

	total := s.registry.TotalActiveStake(epoch)
	if total.IsZero() {
		return validator.Validator{}, ErrNoActiveValidators
	}

	seed := s.SlotSeed(slot)
	r := uint256.NewInt(binary.BigEndian.Uint64(seed[:8]))
	r.Mod(r, total)

	sum := uint256.NewInt(0)
	for _, v := range active {
		sum.AddUint64(sum, v.EffectiveBalance)
		if r.Lt(sum) {
			return v, nil
		}
	}
	// Unreachable: r < total and total is the final running sum.
	return active[len(active)-1], nil
}

// Committees partitions the active set for the slot's epoch into
// committeesPerSlot equally sized committees using a Fisher-Yates shuffle
// keyed by the slot seed. Validators left over after equal division go to
// the leading committees, one each.
func (s *Selector) Committees(slot types.Slot) ([][]validator.Validator, error) {
	epoch := types.EpochOf(slot, s.slotsPerEpoch)
	active := s.registry.IterActive(epoch)
	if len(active) == 0 {
		return nil, ErrNoActiveValidators
	}

	shuffled := make([]validator.Validator, len(active))
	copy(shuffled, active)
	shuffle(shuffled, s.SlotSeed(slot))

	n := uint64(len(shuffled))
	per := n / s.committeesPerSlot
	rem := n % s.committeesPerSlot

	committees := make([][]validator.Validator, s.committeesPerSlot)
	pos := uint64(0)
	for i := uint64(0); i < s.committeesPerSlot; i++ {
		size := per
		if i < rem {
			size++
		}
		committees[i] = shuffled[pos : pos+size]
		pos += size
	}
	return committees, nil
}

// Committee returns the members of one committee for the slot.
func (s *Selector) Committee(slot types.Slot, index uint64) ([]validator.Validator, error) {
	committees, err := s.Committees(slot)
	if err != nil {
		return nil, err
	}
	if index >= uint64(len(committees)) {
		return nil, ErrCommitteeIndex
	}
	return committees[index], nil
}

// InCommittee reports whether the validator sits in the given committee for
// the slot.
func (s *Selector) InCommittee(slot types.Slot, committeeIndex uint64, idx types.ValidatorIndex) (bool, error) {
	members, err := s.Committee(slot, committeeIndex)
	if err != nil {
		return false, err
	}
	for _, m := range members {
		if m.Index == idx {
			return true, nil
		}
	}
	return false, nil
}

// shuffle runs a Fisher-Yates pass driven by a SHA-256 counter stream over
// the seed.
func shuffle(vs []validator.Validator, seed types.Hash) {
	draw := randStream(seed)
	for i := len(vs) - 1; i > 0; i-- {
		j := draw() % uint64(i+1)
		vs[i], vs[j] = vs[j], vs[i]
	}
}

// randStream yields uint64 draws from hash(seed || counter_le_bytes),
// consuming each digest four words at a time.
func randStream(seed types.Hash) func() uint64 {
	var counter uint64
	var digest [32]byte
	word := 4 // force a refill on first draw
	return func() uint64 {
		if word == 4 {
			var buf [40]byte
			copy(buf[:32], seed[:])
			binary.LittleEndian.PutUint64(buf[32:], counter)
			digest = sha256.Sum256(buf[:])
			counter++
			word = 0
		}
		v := binary.BigEndian.Uint64(digest[word*8:])
		word++
		return v
	}
}
