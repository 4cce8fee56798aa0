// Package slashing detects equivocation offenses: double votes, surround
// votes, and double proposals. Detected offenses become Evidence entries in
// an append-only log.
package slashing

import (
	"github.com/stratumlabs/stratum/types"
)

// Kind categorizes a slashable offense.
type Kind uint8

const (
	DoubleVote Kind = iota
	SurroundVote
	DoubleProposal
)

func (k Kind) String() string {
	switch k {
	case DoubleVote:
		return "double_vote"
	case SurroundVote:
		return "surround_vote"
	case DoubleProposal:
		return "double_proposal"
	default:
		return "unknown"
	}
}

// Evidence is a provable record of an offense: the validator and the digests
// of the two conflicting messages, with the checkpoint epochs involved.
type Evidence struct {
	Kind      Kind
	Validator types.ValidatorIndex
	Slot      types.Slot // slot of the offending message
	First     types.Hash // data root of the earlier message
	Second    types.Hash // data root of the offending message
	SourceA   types.Epoch
	TargetA   types.Epoch
	SourceB   types.Epoch
	TargetB   types.Epoch
}

// attRecord is the retained view of one past attestation.
type attRecord struct {
	source     types.Epoch
	target     types.Epoch
	targetRoot types.Hash
	dataRoot   types.Hash
	seenEpoch  types.Epoch
}

// attHistorySize is the sliding window of attestations retained per
// validator for conflict checks.
const attHistorySize = 2

type proposalKey struct {
	slot      types.Slot
	validator types.ValidatorIndex
}

// Detector holds per-validator attestation history and per-slot proposal
// records. Owned by the consensus task.
type Detector struct {
	attHistory map[types.ValidatorIndex][]attRecord
	proposals  map[proposalKey][]types.Hash
	evidence   []Evidence
}

// NewDetector creates an empty detector.
func NewDetector() *Detector {
	return &Detector{
		attHistory: make(map[types.ValidatorIndex][]attRecord),
		proposals:  make(map[proposalKey][]types.Hash),
	}
}

// CheckAttestation compares an attestation against the validator's recent
// history and returns evidence on a double or surround vote. The attestation
// is recorded either way.
func (d *Detector) CheckAttestation(att *types.Attestation, currentEpoch types.Epoch) *Evidence {
	dataRoot := att.DataRoot()
	rec := attRecord{
		source:     att.Source.Epoch,
		target:     att.Target.Epoch,
		targetRoot: att.Target.Root,
		dataRoot:   dataRoot,
		seenEpoch:  currentEpoch,
	}

	var found *Evidence
	for _, prev := range d.attHistory[att.ValidatorIndex] {
		if prev.dataRoot == dataRoot {
			return nil // identical attestation re-gossiped
		}
		if prev.target == rec.target && prev.targetRoot != rec.targetRoot {
			found = d.newEvidence(DoubleVote, att, prev, dataRoot)
			break
		}
		if surrounds(prev.source, prev.target, rec.source, rec.target) {
			found = d.newEvidence(SurroundVote, att, prev, dataRoot)
			break
		}
	}

	d.record(att.ValidatorIndex, rec)
	return found
}

func surrounds(s1, t1, s2, t2 types.Epoch) bool {
	return (s1 < s2 && t2 < t1) || (s2 < s1 && t1 < t2)
}

func (d *Detector) newEvidence(kind Kind, att *types.Attestation, prev attRecord, dataRoot types.Hash) *Evidence {
	ev := Evidence{
		Kind:      kind,
		Validator: att.ValidatorIndex,
		Slot:      att.Slot,
		First:     prev.dataRoot,
		Second:    dataRoot,
		SourceA:   prev.source,
		TargetA:   prev.target,
		SourceB:   att.Source.Epoch,
		TargetB:   att.Target.Epoch,
	}
	d.evidence = append(d.evidence, ev)
	return &ev
}

func (d *Detector) record(idx types.ValidatorIndex, rec attRecord) {
	history := append(d.attHistory[idx], rec)
	if len(history) > attHistorySize {
		history = history[len(history)-attHistorySize:]
	}
	d.attHistory[idx] = history
}

// CheckProposal records a proposer signature over a block hash and returns
// evidence when the same validator has signed a different block for the same
// slot.
func (d *Detector) CheckProposal(slot types.Slot, proposer types.ValidatorIndex, blockHash types.Hash) *Evidence {
	key := proposalKey{slot: slot, validator: proposer}
	seen := d.proposals[key]
	for _, h := range seen {
		if h == blockHash {
			return nil
		}
	}
	d.proposals[key] = append(seen, blockHash)
	if len(seen) == 0 {
		return nil
	}

	ev := Evidence{
		Kind:      DoubleProposal,
		Validator: proposer,
		Slot:      slot,
		First:     seen[0],
		Second:    blockHash,
	}
	d.evidence = append(d.evidence, ev)
	return &ev
}

// Evidence returns a snapshot of the append-only evidence log.
func (d *Detector) Evidence() []Evidence {
	out := make([]Evidence, len(d.evidence))
	copy(out, d.evidence)
	return out
}

// PruneValidator discards a validator's history and its evidence entries once
// it can no longer be slashed (exit epoch plus the evidence retention window
// has passed).
func (d *Detector) PruneValidator(idx types.ValidatorIndex) {
	delete(d.attHistory, idx)
	kept := d.evidence[:0]
	for _, ev := range d.evidence {
		if ev.Validator != idx {
			kept = append(kept, ev)
		}
	}
	d.evidence = kept
	for key := range d.proposals {
		if key.validator == idx {
			delete(d.proposals, key)
		}
	}
}

// PruneProposals drops proposal records at or below the finalized slot;
// conflicting proposals for finalized slots can no longer matter.
func (d *Detector) PruneProposals(finalizedSlot types.Slot) {
	for key := range d.proposals {
		if key.slot <= finalizedSlot {
			delete(d.proposals, key)
		}
	}
}
