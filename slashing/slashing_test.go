package slashing

import (
	"testing"

	"github.com/stratumlabs/stratum/types"
)

func att(validator types.ValidatorIndex, sourceEpoch, targetEpoch types.Epoch, targetRoot types.Hash) *types.Attestation {
	return &types.Attestation{
		Slot:           types.FirstSlot(targetEpoch, 4),
		ValidatorIndex: validator,
		Source:         types.Checkpoint{Epoch: sourceEpoch},
		Target:         types.Checkpoint{Epoch: targetEpoch, Root: targetRoot},
	}
}

func TestDoubleVoteDetected(t *testing.T) {
	d := NewDetector()

	if ev := d.CheckAttestation(att(7, 2, 3, types.Hash{1}), 3); ev != nil {
		t.Fatalf("first vote flagged: %+v", ev)
	}
	ev := d.CheckAttestation(att(7, 2, 3, types.Hash{2}), 3)
	if ev == nil {
		t.Fatal("conflicting target roots at the same epoch not detected")
	}
	if ev.Kind != DoubleVote {
		t.Errorf("kind = %s, want double_vote", ev.Kind)
	}
	if ev.Validator != 7 {
		t.Errorf("validator = %d, want 7", ev.Validator)
	}
	if len(d.Evidence()) != 1 {
		t.Errorf("evidence log length = %d, want 1", len(d.Evidence()))
	}
}

func TestIdenticalAttestationNotFlagged(t *testing.T) {
	d := NewDetector()
	a := att(1, 2, 3, types.Hash{1})
	d.CheckAttestation(a, 3)
	if ev := d.CheckAttestation(a, 3); ev != nil {
		t.Errorf("re-gossiped attestation flagged: %+v", ev)
	}
	if len(d.Evidence()) != 0 {
		t.Error("evidence recorded for identical attestations")
	}
}

func TestSurroundVoteDetected(t *testing.T) {
	tests := []struct {
		name           string
		s1, t1, s2, t2 types.Epoch
		want           bool
	}{
		{"new surrounds old", 3, 4, 2, 5, true},
		{"old surrounds new", 2, 5, 3, 4, true},
		{"disjoint", 2, 3, 4, 5, false},
		{"same span", 2, 5, 2, 5, false},
		{"touching boundaries", 2, 4, 2, 5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector()
			d.CheckAttestation(att(1, tt.s1, tt.t1, types.Hash{1}), tt.t1)
			ev := d.CheckAttestation(att(1, tt.s2, tt.t2, types.Hash{2}), tt.t2)
			if tt.want && (ev == nil || ev.Kind != SurroundVote) {
				t.Errorf("surround not detected: %+v", ev)
			}
			if !tt.want && ev != nil && ev.Kind == SurroundVote {
				t.Errorf("false surround: %+v", ev)
			}
		})
	}
}

func TestDistinctValidatorsDoNotConflict(t *testing.T) {
	d := NewDetector()
	d.CheckAttestation(att(1, 2, 3, types.Hash{1}), 3)
	if ev := d.CheckAttestation(att(2, 2, 3, types.Hash{2}), 3); ev != nil {
		t.Errorf("votes by different validators flagged: %+v", ev)
	}
}

func TestHistoryWindowSlides(t *testing.T) {
	d := NewDetector()
	// Two honest votes push the first out of the 2-entry window; a conflict
	// with the evicted vote is no longer provable from retained history.
	d.CheckAttestation(att(1, 0, 1, types.Hash{1}), 1)
	d.CheckAttestation(att(1, 1, 2, types.Hash{2}), 2)
	d.CheckAttestation(att(1, 2, 3, types.Hash{3}), 3)

	if got := len(d.attHistory[1]); got != attHistorySize {
		t.Errorf("history length = %d, want %d", got, attHistorySize)
	}
}

func TestDoubleProposalDetected(t *testing.T) {
	d := NewDetector()

	if ev := d.CheckProposal(9, 4, types.Hash{1}); ev != nil {
		t.Fatalf("first proposal flagged: %+v", ev)
	}
	if ev := d.CheckProposal(9, 4, types.Hash{1}); ev != nil {
		t.Fatalf("identical proposal flagged: %+v", ev)
	}
	ev := d.CheckProposal(9, 4, types.Hash{2})
	if ev == nil || ev.Kind != DoubleProposal {
		t.Fatalf("double proposal not detected: %+v", ev)
	}

	// Different slot or validator is clean.
	if ev := d.CheckProposal(10, 4, types.Hash{3}); ev != nil {
		t.Errorf("proposal at a new slot flagged: %+v", ev)
	}
	if ev := d.CheckProposal(9, 5, types.Hash{3}); ev != nil {
		t.Errorf("proposal by another validator flagged: %+v", ev)
	}
}

func TestPrune(t *testing.T) {
	d := NewDetector()
	d.CheckAttestation(att(1, 2, 3, types.Hash{1}), 3)
	d.CheckProposal(5, 1, types.Hash{2})
	d.CheckProposal(9, 1, types.Hash{3})

	d.PruneProposals(5)
	if _, ok := d.proposals[proposalKey{slot: 5, validator: 1}]; ok {
		t.Error("finalized-slot proposal record not pruned")
	}
	if _, ok := d.proposals[proposalKey{slot: 9, validator: 1}]; !ok {
		t.Error("live proposal record pruned")
	}

	d.PruneValidator(1)
	if len(d.attHistory[1]) != 0 {
		t.Error("attestation history not pruned")
	}
}
