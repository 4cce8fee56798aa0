// Package finality tallies per-epoch target votes and advances the
// justified and finalized checkpoints.
package finality

import (
	"log/slog"

	"github.com/OffchainLabs/go-bitfield"
	"github.com/holiman/uint256"

	"github.com/stratumlabs/stratum/types"
)

// ChainView is the fork-tree access the tracker needs when re-evaluating
// checkpoints. Implemented by the engine over the fork store and head.
type ChainView interface {
	// CheckpointRoot resolves epoch e's checkpoint root on the canonical chain.
	CheckpointRoot(epoch types.Epoch) (types.Hash, bool)
	// OnCanonicalChain reports whether root lies on the canonical chain.
	OnCanonicalChain(root types.Hash) bool
	// TotalActiveStake is the active effective balance at epoch.
	TotalActiveStake(epoch types.Epoch) *uint256.Int
}

// targetVote is one validator's first target vote for an epoch.
type targetVote struct {
	target types.Checkpoint
	source types.Checkpoint
	weight uint64
}

// epochTally accumulates the distinct target votes for one epoch. The
// participation bitlist mirrors the vote map keyed by validator index and
// backs the distinct-attester accounting.
type epochTally struct {
	participation bitfield.Bitlist
	votes         map[types.ValidatorIndex]targetVote
}

// justifiedRecord remembers how an epoch was justified: the checkpoint and
// the source link its supermajority voted.
type justifiedRecord struct {
	checkpoint types.Checkpoint
	source     types.Checkpoint
}

// Tracker owns justification and finalization state. Single-owner, no locks.
type Tracker struct {
	logger       *slog.Logger
	registrySize func() uint64

	tallies   map[types.Epoch]*epochTally
	justified types.Checkpoint
	finalized types.Checkpoint
	records   map[types.Epoch]justifiedRecord
}

// NewTracker creates a tracker anchored at the genesis checkpoint, which is
// both justified and finalized at epoch 0.
func NewTracker(genesis types.Checkpoint, registrySize func() uint64, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		logger:       logger,
		registrySize: registrySize,
		tallies:      make(map[types.Epoch]*epochTally),
		justified:    genesis,
		finalized:    genesis,
		records:      make(map[types.Epoch]justifiedRecord),
	}
	t.records[0] = justifiedRecord{checkpoint: genesis, source: genesis}
	return t
}

// Justified returns the justified checkpoint.
func (t *Tracker) Justified() types.Checkpoint { return t.justified }

// Finalized returns the finalized checkpoint.
func (t *Tracker) Finalized() types.Checkpoint { return t.finalized }

// ProcessAttestation records a target vote. Only a validator's first vote
// per target epoch counts toward the tally; conflicting later votes are the
// slashing detector's concern, not the tally's.
func (t *Tracker) ProcessAttestation(att *types.Attestation, weight uint64) {
	epoch := att.Target.Epoch
	if epoch < t.finalized.Epoch {
		return
	}
	tally, ok := t.tallies[epoch]
	if !ok {
		tally = &epochTally{
			participation: bitfield.NewBitlist(t.registrySize()),
			votes:         make(map[types.ValidatorIndex]targetVote),
		}
		t.tallies[epoch] = tally
	}
	if _, voted := tally.votes[att.ValidatorIndex]; voted {
		return
	}
	if idx := uint64(att.ValidatorIndex); idx < tally.participation.Len() {
		tally.participation.SetBitAt(idx, true)
	}
	tally.votes[att.ValidatorIndex] = targetVote{
		target: att.Target,
		source: att.Source,
		weight: weight,
	}
}

// RemoveValidator drops a slashed validator's votes from every open tally so
// it stops counting toward justification.
func (t *Tracker) RemoveValidator(idx types.ValidatorIndex) {
	for _, tally := range t.tallies {
		if _, ok := tally.votes[idx]; ok {
			delete(tally.votes, idx)
			if uint64(idx) < tally.participation.Len() {
				tally.participation.SetBitAt(uint64(idx), false)
			}
		}
	}
}

// Evaluate re-runs the justification and finalization rules over the three
// most recent epochs. Returns true when either checkpoint advanced.
//
// Justification: an epoch whose on-chain target votes carry at least 2/3 of
// the total active stake is justified. Finalization: when epochs e-1 and e
// are both justified and e-1's supermajority link ran from checkpoint e-2 to
// checkpoint e-1, checkpoint e-1 is finalized.
func (t *Tracker) Evaluate(currentEpoch types.Epoch, chain ChainView) bool {
	changed := false

	start := types.Epoch(0)
	if currentEpoch >= 2 {
		start = currentEpoch - 2
	}
	for e := start; e <= currentEpoch; e++ {
		if t.tryJustify(e, chain) {
			changed = true
		}
	}
	if t.tryFinalize(currentEpoch) {
		changed = true
	}
	return changed
}

func (t *Tracker) tryJustify(e types.Epoch, chain ChainView) bool {
	if _, done := t.records[e]; done {
		return false
	}
	tally, ok := t.tallies[e]
	if !ok {
		return false
	}
	root, ok := chain.CheckpointRoot(e)
	if !ok {
		return false
	}

	supporting := uint256.NewInt(0)
	sources := make(map[types.Checkpoint]*uint256.Int)
	for _, vote := range tally.votes {
		if !chain.OnCanonicalChain(vote.target.Root) {
			continue
		}
		supporting.AddUint64(supporting, vote.weight)
		src, ok := sources[vote.source]
		if !ok {
			src = uint256.NewInt(0)
			sources[vote.source] = src
		}
		src.AddUint64(src, vote.weight)
	}

	total := chain.TotalActiveStake(e)
	if total.IsZero() {
		return false
	}
	// supporting * 3 >= total * 2, in wide arithmetic.
	lhs := new(uint256.Int).Mul(supporting, uint256.NewInt(3))
	rhs := new(uint256.Int).Mul(total, uint256.NewInt(2))
	if lhs.Lt(rhs) {
		return false
	}

	cp := types.Checkpoint{Epoch: e, Root: root}
	rec := justifiedRecord{checkpoint: cp, source: t.dominantSource(sources)}
	t.records[e] = rec

	if e > t.justified.Epoch {
		t.justified = cp
		t.logger.Info("checkpoint justified", "epoch", e, "root", root.Short())
		return true
	}
	return false
}

// dominantSource picks the heaviest source checkpoint among the supporting
// votes; ties resolve to the higher epoch then larger root.
func (t *Tracker) dominantSource(sources map[types.Checkpoint]*uint256.Int) types.Checkpoint {
	var best types.Checkpoint
	var bestWeight *uint256.Int
	for cp, w := range sources {
		switch {
		case bestWeight == nil,
			w.Gt(bestWeight),
			w.Eq(bestWeight) && cp.Epoch > best.Epoch,
			w.Eq(bestWeight) && cp.Epoch == best.Epoch && cp.Root.Compare(best.Root) > 0:
			best, bestWeight = cp, w
		}
	}
	return best
}

func (t *Tracker) tryFinalize(currentEpoch types.Epoch) bool {
	changed := false
	for e := types.Epoch(2); e <= currentEpoch; e++ {
		rec, ok := t.records[e-1]
		if !ok {
			continue
		}
		if _, ok := t.records[e]; !ok {
			continue
		}
		prev, ok := t.records[e-2]
		if !ok || !rec.source.Equal(prev.checkpoint) {
			continue
		}
		if e-1 > t.finalized.Epoch {
			t.finalized = rec.checkpoint
			changed = true
			t.logger.Info("checkpoint finalized",
				"epoch", t.finalized.Epoch,
				"root", t.finalized.Root.Short(),
			)
		}
	}
	return changed
}

// Participation returns how many distinct validators have voted for the
// epoch's target so far.
func (t *Tracker) Participation(epoch types.Epoch) uint64 {
	tally, ok := t.tallies[epoch]
	if !ok {
		return 0
	}
	return tally.participation.Count()
}

// Prune drops tallies below the finalized epoch and justification records
// below the epoch before it.
func (t *Tracker) Prune() {
	for e := range t.tallies {
		if e < t.finalized.Epoch {
			delete(t.tallies, e)
		}
	}
	for e := range t.records {
		// Records for finalized-1 onward are still needed by the
		// finalization link check.
		if e+1 < t.finalized.Epoch {
			delete(t.records, e)
		}
	}
}
