package duties

import (
	"testing"

	"github.com/stratumlabs/stratum/crypto"
	"github.com/stratumlabs/stratum/types"
	"github.com/stratumlabs/stratum/validator"
)

func setupRegistry(t *testing.T, stakes []uint64) *validator.Registry {
	t.Helper()
	r := validator.NewRegistry(validator.Params{
		MinStake:         1,
		MinSlash:         1,
		StakeGranularity: 1,
	})
	for i, stake := range stakes {
		pk, _ := crypto.KeyFromSeed([32]byte{byte(i + 1)})
		if _, err := r.Register(pk, stake, 0, 0); err != nil {
			t.Fatalf("Register %d: %v", i, err)
		}
	}
	r.Activate(0)
	return r
}

func testSeed() types.Hash {
	var seed types.Hash
	seed[31] = 0x01
	return seed
}

func TestSeedDeterministicAndSlotDependent(t *testing.T) {
	r := setupRegistry(t, []uint64{100})
	s1 := NewSelector(testSeed(), 4, 1, r)
	s2 := NewSelector(testSeed(), 4, 1, r)

	if s1.SlotSeed(5) != s2.SlotSeed(5) {
		t.Error("slot seed not deterministic")
	}
	if s1.SlotSeed(5) == s1.SlotSeed(6) {
		t.Error("distinct slots produced identical seeds")
	}
	if s1.EpochSeed(0) == s1.EpochSeed(1) {
		t.Error("distinct epochs produced identical seeds")
	}
}

func TestProposerDeterministic(t *testing.T) {
	r := setupRegistry(t, []uint64{100, 300})
	sel := NewSelector(testSeed(), 4, 1, r)

	for slot := types.Slot(0); slot < 8; slot++ {
		a, err := sel.Proposer(slot)
		if err != nil {
			t.Fatalf("Proposer(%d): %v", slot, err)
		}
		b, err := sel.Proposer(slot)
		if err != nil {
			t.Fatalf("Proposer(%d): %v", slot, err)
		}
		if a.Index != b.Index {
			t.Errorf("slot %d: proposer not deterministic (%d vs %d)", slot, a.Index, b.Index)
		}
	}
}

func TestProposerNoActiveValidators(t *testing.T) {
	r := validator.NewRegistry(validator.Params{MinStake: 1})
	sel := NewSelector(testSeed(), 4, 1, r)
	if _, err := sel.Proposer(0); err != ErrNoActiveValidators {
		t.Errorf("got %v, want ErrNoActiveValidators", err)
	}
}

// Proposer selection should converge on stake proportions over many slots.
func TestProposerWeightFairness(t *testing.T) {
	stakes := []uint64{100, 300, 600} // 10%, 30%, 60%
	r := setupRegistry(t, stakes)
	sel := NewSelector(testSeed(), 32, 1, r)

	const slots = 20000
	counts := make(map[types.ValidatorIndex]int)
	for slot := types.Slot(0); slot < slots; slot++ {
		v, err := sel.Proposer(slot)
		if err != nil {
			t.Fatalf("Proposer(%d): %v", slot, err)
		}
		counts[v.Index]++
	}

	var total uint64
	for _, s := range stakes {
		total += s
	}
	for i, stake := range stakes {
		want := float64(stake) / float64(total)
		got := float64(counts[types.ValidatorIndex(i)]) / float64(slots)
		if diff := got - want; diff < -0.02 || diff > 0.02 {
			t.Errorf("validator %d: proposal share %.3f, want %.3f ± 0.02", i, got, want)
		}
	}
}

func TestCommitteesPartitionActiveSet(t *testing.T) {
	r := setupRegistry(t, []uint64{100, 100, 100, 100, 100, 100, 100})
	sel := NewSelector(testSeed(), 4, 3, r)

	committees, err := sel.Committees(9)
	if err != nil {
		t.Fatalf("Committees: %v", err)
	}
	if len(committees) != 3 {
		t.Fatalf("committee count = %d, want 3", len(committees))
	}

	// 7 validators into 3 committees: sizes 3, 2, 2.
	wantSizes := []int{3, 2, 2}
	seen := make(map[types.ValidatorIndex]bool)
	for i, c := range committees {
		if len(c) != wantSizes[i] {
			t.Errorf("committee %d size = %d, want %d", i, len(c), wantSizes[i])
		}
		for _, m := range c {
			if seen[m.Index] {
				t.Errorf("validator %d assigned twice", m.Index)
			}
			seen[m.Index] = true
		}
	}
	if len(seen) != 7 {
		t.Errorf("partition covers %d validators, want 7", len(seen))
	}
}

func TestCommitteesStableWithinSlot(t *testing.T) {
	r := setupRegistry(t, []uint64{100, 100, 100, 100})
	sel := NewSelector(testSeed(), 4, 2, r)

	a, err := sel.Committees(6)
	if err != nil {
		t.Fatalf("Committees: %v", err)
	}
	b, err := sel.Committees(6)
	if err != nil {
		t.Fatalf("Committees: %v", err)
	}
	for i := range a {
		for j := range a[i] {
			if a[i][j].Index != b[i][j].Index {
				t.Fatal("committee assignment not deterministic")
			}
		}
	}
}

func TestInCommittee(t *testing.T) {
	r := setupRegistry(t, []uint64{100, 100, 100, 100})
	sel := NewSelector(testSeed(), 4, 2, r)

	committees, err := sel.Committees(3)
	if err != nil {
		t.Fatalf("Committees: %v", err)
	}
	member := committees[1][0]

	ok, err := sel.InCommittee(3, 1, member.Index)
	if err != nil {
		t.Fatalf("InCommittee: %v", err)
	}
	if !ok {
		t.Error("known member reported absent")
	}

	ok, err = sel.InCommittee(3, 0, member.Index)
	if err != nil {
		t.Fatalf("InCommittee: %v", err)
	}
	if ok {
		t.Error("member reported in the wrong committee")
	}

	if _, err := sel.InCommittee(3, 5, member.Index); err != ErrCommitteeIndex {
		t.Errorf("bad committee index: got %v, want ErrCommitteeIndex", err)
	}
}
