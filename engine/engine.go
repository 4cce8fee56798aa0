// Package engine orchestrates consensus: the slot clock, ingestion of blocks
// and attestations, duty execution, and checkpoint advancement.
//
// All consensus state (fork store, validator registry, finality tracker,
// slashing detector) is owned by a single task: the Run loop. External
// callers hand events in through channels and read results from an atomic
// snapshot, so fork-choice updates observe one total order of events without
// locks.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/holiman/uint256"

	"github.com/stratumlabs/stratum/clock"
	"github.com/stratumlabs/stratum/config"
	"github.com/stratumlabs/stratum/crypto"
	"github.com/stratumlabs/stratum/duties"
	"github.com/stratumlabs/stratum/finality"
	"github.com/stratumlabs/stratum/forkchoice"
	"github.com/stratumlabs/stratum/observability/metrics"
	"github.com/stratumlabs/stratum/slashing"
	"github.com/stratumlabs/stratum/storage"
	"github.com/stratumlabs/stratum/types"
	"github.com/stratumlabs/stratum/validator"
)

// Snapshot is the externally visible consensus state, updated atomically by
// the consensus task after every event.
type Snapshot struct {
	Head      types.Hash
	HeadSlot  types.Slot
	Justified types.Checkpoint
	Finalized types.Checkpoint
}

// Deps are the engine's external collaborators. When nil, Network and
// Mempool fall back to in-process no-op implementations, State falls back to
// HashStateEngine, and a nil DB skips persistence.
type Deps struct {
	Clock   *clock.SlotClock
	Network Network
	State   StateEngine
	Mempool Mempool
	DB      storage.Store
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	// Keys are the Ed25519 keys of locally hosted validators. A node with
	// keys proposes and attests; a node without only follows.
	Keys []crypto.PrivateKey
}

type event struct {
	block *types.Block
	att   *types.Attestation
	resp  chan error
}

// Engine is the consensus core.
type Engine struct {
	cfg      *config.Config
	log      *slog.Logger
	clock    *clock.SlotClock
	registry *validator.Registry
	selector *duties.Selector
	forks    *forkchoice.Store
	finality *finality.Tracker
	slasher  *slashing.Detector
	db       storage.Store
	net      Network
	state    StateEngine
	mempool  Mempool
	mets     *metrics.Metrics

	keys    map[types.Address]crypto.PrivateKey
	events  chan event
	orphans *orphanBuffer

	currentSlot types.Slot
	head        types.Hash
	// recent holds each validator's newest attestation, the embedding pool
	// for the next local proposal.
	recent map[types.ValidatorIndex]*types.Attestation
	// voted tracks the last target epoch each local validator attested.
	// One target vote per epoch keeps honest validators unslashable.
	voted map[types.ValidatorIndex]types.Epoch

	snapshot atomic.Pointer[Snapshot]
}

// GenesisBlock derives the deterministic genesis block for a configuration.
// The state root commits to the genesis seed so distinct networks get
// distinct genesis hashes.
func GenesisBlock(cfg *config.Config) (*types.Block, error) {
	seed, err := cfg.Seed()
	if err != nil {
		return nil, err
	}
	return &types.Block{Header: types.BlockHeader{
		Timestamp: cfg.GenesisTime,
		GasLimit:  cfg.GasLimit,
		StateRoot: crypto.Hash(seed[:]),
	}}, nil
}

// New builds an engine from configuration: genesis validators registered and
// active at epoch 0, fork store rooted at the genesis block, checkpoints
// anchored there.
func New(cfg *config.Config, deps Deps) (*Engine, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	seed, err := cfg.Seed()
	if err != nil {
		return nil, err
	}

	registry := validator.NewRegistry(validator.Params{
		MinStake:         cfg.MinStake,
		MinSlash:         cfg.MinSlash,
		StakeGranularity: cfg.StakeGranularity,
		ActivationDelay:  types.Epoch(cfg.ActivationDelay),
		ExitDelay:        types.Epoch(cfg.ExitDelay),
	})
	for i, gv := range cfg.GenesisValidators {
		pubkey, err := types.PubkeyFromHex(gv.Pubkey)
		if err != nil {
			return nil, fmt.Errorf("genesis validator %d: %w", i, err)
		}
		if _, err := registry.RegisterGenesis(pubkey, gv.Stake, gv.CommissionBps); err != nil {
			return nil, fmt.Errorf("genesis validator %d: %w", i, err)
		}
	}

	genesis, err := GenesisBlock(cfg)
	if err != nil {
		return nil, err
	}
	genesisRoot := genesis.Hash()
	genesisCheckpoint := types.Checkpoint{Epoch: 0, Root: genesisRoot}

	e := &Engine{
		cfg:      cfg,
		log:      logger,
		clock:    deps.Clock,
		registry: registry,
		selector: duties.NewSelector(seed, cfg.SlotsPerEpoch, cfg.CommitteesPerSlot, registry),
		forks:    forkchoice.NewStore(genesis, cfg.SlotsPerEpoch),
		slasher:  slashing.NewDetector(),
		db:       deps.DB,
		net:      deps.Network,
		state:    deps.State,
		mempool:  deps.Mempool,
		mets:     deps.Metrics,
		keys:     make(map[types.Address]crypto.PrivateKey),
		events:   make(chan event, 256),
		orphans:  newOrphanBuffer(cfg.MaxOrphans, cfg.OrphanTTL),
		head:     genesisRoot,
		recent:   make(map[types.ValidatorIndex]*types.Attestation),
		voted:    make(map[types.ValidatorIndex]types.Epoch),
	}
	e.finality = finality.NewTracker(genesisCheckpoint,
		func() uint64 { return uint64(registry.Len()) }, logger)

	if e.clock == nil {
		e.clock = clock.New(cfg.GenesisTime, cfg.SlotDuration())
	}
	if e.net == nil {
		e.net = NopNetwork{}
	}
	if e.state == nil {
		e.state = HashStateEngine{}
	}
	if e.mempool == nil {
		e.mempool = NopMempool{}
	}

	for _, sk := range deps.Keys {
		e.keys[crypto.AddressFromPubkey(crypto.PubkeyFromPrivate(sk))] = sk
	}

	if e.db != nil {
		batch := e.db.NewBatch()
		batch.PutBlock(genesis)
		batch.PutCheckpoint(storage.Justified, genesisCheckpoint)
		batch.PutCheckpoint(storage.Finalized, genesisCheckpoint)
		if err := batch.Commit(); err != nil {
			return nil, fmt.Errorf("%w: persist genesis: %v", ErrStorageFailure, err)
		}
	}

	e.currentSlot = e.clock.CurrentSlot()
	e.publishSnapshot()
	return e, nil
}

// Registry exposes the validator set (read-only use by collaborators).
func (e *Engine) Registry() *validator.Registry { return e.registry }

// Selector exposes duty selection (read-only use by collaborators).
func (e *Engine) Selector() *duties.Selector { return e.selector }

// Snapshot returns the latest published consensus state.
func (e *Engine) Snapshot() Snapshot { return *e.snapshot.Load() }

// Head returns the canonical head hash.
func (e *Engine) Head() types.Hash { return e.Snapshot().Head }

// Justified returns the justified checkpoint.
func (e *Engine) Justified() types.Checkpoint { return e.Snapshot().Justified }

// Finalized returns the finalized checkpoint.
func (e *Engine) Finalized() types.Checkpoint { return e.Snapshot().Finalized }

// Evidence returns the slashing evidence log.
func (e *Engine) Evidence() []slashing.Evidence { return e.slasher.Evidence() }

// IngestBlock hands a block to the consensus task and waits for the verdict.
func (e *Engine) IngestBlock(ctx context.Context, block *types.Block) error {
	return e.submit(ctx, event{block: block, resp: make(chan error, 1)})
}

// IngestAttestation hands an attestation to the consensus task and waits for
// the verdict.
func (e *Engine) IngestAttestation(ctx context.Context, att *types.Attestation) error {
	return e.submit(ctx, event{att: att, resp: make(chan error, 1)})
}

func (e *Engine) submit(ctx context.Context, ev event) error {
	select {
	case e.events <- ev:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-ev.resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is the consensus task. It owns all mutable state and serializes block
// and attestation events in receive order. Returns when the context is
// cancelled or on a fatal storage failure.
func (e *Engine) Run(ctx context.Context) error {
	timer := time.NewTimer(e.clock.UntilSlot(e.currentSlot + 1))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-e.events:
			var err error
			switch {
			case ev.block != nil:
				err = e.onBlock(ctx, ev.block)
			case ev.att != nil:
				err = e.onAttestation(ev.att)
			}
			if ev.resp != nil {
				ev.resp <- err
			}
			if errors.Is(err, ErrStorageFailure) {
				return err
			}
		case <-timer.C:
			slot := e.clock.CurrentSlot()
			if slot > e.currentSlot {
				e.onSlot(ctx, slot)
			}
			timer.Reset(e.clock.UntilSlot(e.currentSlot + 1))
		}
	}
}

// onSlot advances the clock-driven pipeline: validator set maintenance at
// epoch boundaries, then proposal and attestation duties for local keys.
func (e *Engine) onSlot(ctx context.Context, slot types.Slot) {
	e.currentSlot = slot
	epoch := types.EpochOf(slot, e.cfg.SlotsPerEpoch)

	if types.SlotIndexInEpoch(slot, e.cfg.SlotsPerEpoch) == 0 {
		e.registry.Activate(epoch)
		e.registry.ProcessExits(epoch)
		if dropped := e.orphans.Expire(slot); dropped > 0 {
			e.log.Debug("expired orphans", "count", dropped)
		}
		// Validators past exit plus the retention window can no longer be
		// slashed; drop their detection history.
		retention := types.Epoch(e.cfg.EvidenceRetention)
		for i := 0; i < e.registry.Len(); i++ {
			v, _ := e.registry.ByIndex(types.ValidatorIndex(i))
			if (v.Status == validator.Exited || v.Status == validator.Slashed) &&
				v.ExitEpoch+retention <= epoch {
				e.slasher.PruneValidator(v.Index)
			}
		}
	}

	if len(e.keys) > 0 {
		e.propose(ctx, slot)
		e.attest(ctx, slot)
	}

	e.updateCheckpointsAndHead()
}

// onBlock validates and inserts one block. See the package comment for the
// ordering guarantees; this runs only on the consensus task.
func (e *Engine) onBlock(ctx context.Context, block *types.Block) error {
	hdr := &block.Header
	hash := block.Hash()

	finalized := e.finality.Finalized()
	if finalized.Epoch > 0 && hdr.Epoch <= finalized.Epoch {
		e.mets.IncBlocksRejected()
		return fmt.Errorf("%w: epoch %d already finalized", ErrStaleSlot, hdr.Epoch)
	}
	if e.forks.HasBlock(hash) {
		return fmt.Errorf("%w: %s", ErrDuplicateBlock, hash.Short())
	}
	if max := e.clock.MaxAcceptableSlot(e.cfg.ClockSkewTolerance()); hdr.Slot > max {
		e.mets.IncBlocksRejected()
		return fmt.Errorf("%w: slot %d beyond clock skew (max %d)", ErrBadSlot, hdr.Slot, max)
	}
	if want := types.EpochOf(hdr.Slot, e.cfg.SlotsPerEpoch); hdr.Epoch != want {
		e.mets.IncBlocksRejected()
		return fmt.Errorf("%w: epoch %d does not match slot %d", ErrBadSlot, hdr.Epoch, hdr.Slot)
	}

	parent, haveParent := e.forks.Block(hdr.PreviousHash)
	if !haveParent {
		e.orphans.Add(block, e.currentSlot)
		e.mets.IncOrphansBuffered()
		if err := e.net.RequestBlockByHash(ctx, hdr.PreviousHash); err != nil {
			e.log.Debug("parent request failed", "parent", hdr.PreviousHash.Short(), "error", err)
		}
		return fmt.Errorf("%w: parent %s", ErrOrphaned, hdr.PreviousHash.Short())
	}
	if hdr.Slot <= parent.Header.Slot || hdr.Height != parent.Header.Height+1 {
		e.mets.IncBlocksRejected()
		return fmt.Errorf("%w: slot %d height %d under parent slot %d height %d",
			ErrBadSlot, hdr.Slot, hdr.Height, parent.Header.Slot, parent.Header.Height)
	}

	expected, err := e.selector.Proposer(hdr.Slot)
	if err != nil {
		e.mets.IncBlocksRejected()
		return fmt.Errorf("%w: %v", ErrBadProposer, err)
	}
	if expected.Address != hdr.Proposer {
		e.mets.IncBlocksRejected()
		return fmt.Errorf("%w: got %s, selection is %s", ErrBadProposer, hdr.Proposer, expected.Address)
	}
	proposer, ok := e.registry.ByAddress(hdr.Proposer)
	if !ok {
		e.mets.IncBlocksRejected()
		return fmt.Errorf("%w: %s", ErrUnknownValidator, hdr.Proposer)
	}
	root := block.SigningRoot()
	if !crypto.Verify(proposer.Pubkey, root[:], hdr.ProposerSignature) {
		e.mets.IncBlocksRejected()
		return fmt.Errorf("%w: block %s", ErrBadSignature, hash.Short())
	}
	if got := crypto.TransactionRoot(block.Transactions); got != hdr.MerkleRoot {
		e.mets.IncBlocksRejected()
		return fmt.Errorf("%w: computed %s, header %s", ErrBadMerkleRoot, got.Short(), hdr.MerkleRoot.Short())
	}

	stateRoot, err := e.state.ApplyBlock(parent.Header.StateRoot, block.Transactions)
	if err != nil {
		e.mets.IncBlocksRejected()
		return fmt.Errorf("%w: %v", ErrApplyFailed, err)
	}
	if stateRoot != hdr.StateRoot {
		e.mets.IncBlocksRejected()
		return fmt.Errorf("%w: applied %s, header %s", ErrBadStateRoot, stateRoot.Short(), hdr.StateRoot.Short())
	}

	// Equivocating proposers are slashed, but both blocks stay eligible for
	// the fork store; their author just stops carrying weight.
	if ev := e.slasher.CheckProposal(hdr.Slot, proposer.Index, hash); ev != nil {
		e.applyEvidence(ev)
	}

	if err := e.forks.InsertBlock(block); err != nil {
		return fmt.Errorf("insert block: %w", err)
	}

	if e.db != nil {
		batch := e.db.NewBatch()
		batch.PutBlock(block)
		batch.PutCheckpoint(storage.Justified, e.finality.Justified())
		batch.PutCheckpoint(storage.Finalized, e.finality.Finalized())
		if err := batch.Commit(); err != nil {
			return fmt.Errorf("%w: commit block %s: %v", ErrStorageFailure, hash.Short(), err)
		}
	}

	// Embedded attestations run through the same pipeline and count toward
	// justification in the epoch they appear.
	for i := range block.Attestations {
		if err := e.onAttestation(&block.Attestations[i]); err != nil && !errors.Is(err, ErrStorageFailure) {
			e.log.Debug("embedded attestation rejected",
				"block", hash.Short(),
				"validator", block.Attestations[i].ValidatorIndex,
				"error", err,
			)
		}
	}

	e.updateCheckpointsAndHead()
	e.mets.IncBlocksProcessed()
	e.log.Info("processed block",
		"slot", hdr.Slot,
		"hash", hash.Short(),
		"proposer", hdr.Proposer.String()[:8],
		"txs", len(block.Transactions),
	)

	// A newly inserted block may unblock buffered orphans.
	for _, child := range e.orphans.TakeChildren(hash) {
		if err := e.onBlock(ctx, child); err != nil {
			e.log.Debug("orphan replay failed", "hash", child.Hash().Short(), "error", err)
		}
	}
	return nil
}

// onAttestation validates one attestation, folds it into fork-choice weights
// and the epoch tallies, and may advance justification or finalization.
func (e *Engine) onAttestation(att *types.Attestation) error {
	epoch := types.EpochOf(att.Slot, e.cfg.SlotsPerEpoch)

	finalized := e.finality.Finalized()
	if finalized.Epoch > 0 && epoch <= finalized.Epoch {
		e.mets.IncAttestationsRejected()
		return fmt.Errorf("%w: attestation epoch %d", ErrStaleSlot, epoch)
	}

	v, ok := e.registry.ByIndex(att.ValidatorIndex)
	if !ok {
		e.mets.IncAttestationsRejected()
		return fmt.Errorf("%w: index %d", ErrUnknownValidator, att.ValidatorIndex)
	}
	slashed := v.Status == validator.Slashed
	if !slashed && !v.IsActiveAt(epoch) {
		e.mets.IncAttestationsRejected()
		return fmt.Errorf("%w: %s is %s at epoch %d", ErrValidatorNotActive, v.Address, v.Status, epoch)
	}

	if !crypto.Verify(v.Pubkey, att.SigningBytes(), att.Signature) {
		e.mets.IncAttestationsRejected()
		return fmt.Errorf("%w: attestation by %d", ErrBadSignature, att.ValidatorIndex)
	}

	inCommittee, err := e.selector.InCommittee(att.Slot, att.CommitteeIndex, att.ValidatorIndex)
	if err != nil || !inCommittee {
		e.mets.IncAttestationsRejected()
		return fmt.Errorf("%w: validator %d, slot %d, committee %d",
			ErrNotInCommittee, att.ValidatorIndex, att.Slot, att.CommitteeIndex)
	}

	if !e.forks.HasBlock(att.Target.Root) {
		e.mets.IncAttestationsRejected()
		return fmt.Errorf("%w: target %s", ErrWrongTarget, att.Target.Root.Short())
	}
	if !e.forks.HasBlock(att.BeaconBlockRoot) {
		e.mets.IncAttestationsRejected()
		return fmt.Errorf("%w: head %s", ErrWrongTarget, att.BeaconBlockRoot.Short())
	}

	if ev := e.slasher.CheckAttestation(att, types.EpochOf(e.currentSlot, e.cfg.SlotsPerEpoch)); ev != nil {
		e.applyEvidence(ev)
		kind := ErrDoubleVote
		if ev.Kind == slashing.SurroundVote {
			kind = ErrSurroundVote
		}
		e.mets.IncAttestationsRejected()
		return fmt.Errorf("%w: validator %d", kind, att.ValidatorIndex)
	}

	// A slashed validator is outside every committee, so its attestations
	// are rejected by the committee check above; its weight is zero here too.
	weight := v.EffectiveBalance
	if slashed {
		weight = 0
	}

	// Fork choice follows the head vote; the source/target pair feeds the
	// finality tally.
	if err := e.forks.InsertAttestation(att.ValidatorIndex, att.BeaconBlockRoot, att.Slot, weight); err != nil {
		e.mets.IncAttestationsRejected()
		return fmt.Errorf("%w: %v", ErrWrongTarget, err)
	}
	if weight > 0 {
		e.finality.ProcessAttestation(att, weight)
		e.recent[att.ValidatorIndex] = att
	}

	if e.db != nil {
		if err := e.db.PutAttestation(att); err != nil {
			return fmt.Errorf("%w: persist attestation: %v", ErrStorageFailure, err)
		}
	}

	e.updateCheckpointsAndHead()
	e.mets.IncAttestationsProcessed()
	return nil
}

// applyEvidence slashes the offender and strips its influence: fork-choice
// vote, finality tallies, and the embedding pool.
func (e *Engine) applyEvidence(ev *slashing.Evidence) {
	e.mets.IncSlashingEvidence()
	v, ok := e.registry.ByIndex(ev.Validator)
	if !ok {
		return
	}
	epoch := types.EpochOf(e.currentSlot, e.cfg.SlotsPerEpoch)
	if err := e.registry.Slash(v.Address, epoch); err != nil {
		e.log.Debug("slash skipped", "validator", ev.Validator, "error", err)
	}
	e.forks.RemoveVote(ev.Validator)
	e.finality.RemoveValidator(ev.Validator)
	delete(e.recent, ev.Validator)

	e.log.Warn("slashing evidence",
		"kind", ev.Kind.String(),
		"validator", ev.Validator,
		"slot", ev.Slot,
	)
}

// chainView adapts the fork store and a fixed head to finality.ChainView.
type chainView struct {
	engine *Engine
	head   types.Hash
}

func (c chainView) CheckpointRoot(epoch types.Epoch) (types.Hash, bool) {
	return c.engine.forks.CheckpointRoot(epoch, c.head)
}

func (c chainView) OnCanonicalChain(root types.Hash) bool {
	return c.engine.forks.OnCanonicalChain(root, c.head)
}

func (c chainView) TotalActiveStake(epoch types.Epoch) *uint256.Int {
	return c.engine.registry.TotalActiveStake(epoch)
}

// updateCheckpointsAndHead re-evaluates finality against the current
// canonical chain, pushes advanced checkpoints into the fork store (pruning
// on finalization), and recomputes the head.
func (e *Engine) updateCheckpointsAndHead() {
	head := e.forks.Head()
	epoch := types.EpochOf(e.currentSlot, e.cfg.SlotsPerEpoch)

	if e.finality.Evaluate(epoch, chainView{engine: e, head: head}) {
		e.forks.SetJustified(e.finality.Justified())
		e.forks.SetFinalized(e.finality.Finalized())
		e.finality.Prune()
		e.slasher.PruneProposals(types.FirstSlot(e.finality.Finalized().Epoch, e.cfg.SlotsPerEpoch))
		if e.db != nil {
			batch := e.db.NewBatch()
			batch.PutCheckpoint(storage.Justified, e.finality.Justified())
			batch.PutCheckpoint(storage.Finalized, e.finality.Finalized())
			if err := batch.Commit(); err != nil {
				e.log.Error("persist checkpoints failed", "error", err)
			}
		}
		// Justification moved the fork-choice anchor; recompute.
		head = e.forks.Head()
	}

	if head != e.head {
		// A head move that does not extend the previous head is a reorg.
		if !e.forks.IsAncestor(e.head, head) {
			e.mets.IncReorgs()
			e.log.Info("reorg", "old", e.head.Short(), "new", head.Short())
		}
		e.head = head
	}
	e.publishSnapshot()
}

func (e *Engine) publishSnapshot() {
	var headSlot types.Slot
	if b, ok := e.forks.Block(e.head); ok {
		headSlot = b.Header.Slot
	}
	snap := &Snapshot{
		Head:      e.head,
		HeadSlot:  headSlot,
		Justified: e.finality.Justified(),
		Finalized: e.finality.Finalized(),
	}
	e.snapshot.Store(snap)
	e.mets.ObserveHead(uint64(headSlot))
	e.mets.ObserveCheckpoints(uint64(snap.Justified.Epoch), uint64(snap.Finalized.Epoch))
}

// propose builds, signs, ingests, and broadcasts a block if a local key owns
// the slot's proposal.
func (e *Engine) propose(ctx context.Context, slot types.Slot) {
	selected, err := e.selector.Proposer(slot)
	if err != nil {
		return
	}
	sk, ok := e.keys[selected.Address]
	if !ok {
		return
	}
	v, _ := e.registry.ByAddress(selected.Address)

	// A late proposal is worse than none: abandon past the cutoff.
	if e.clock.Now().After(e.clock.ProposalCutoff(slot)) {
		v.Performance.Missed++
		e.log.Warn("proposal missed", "slot", slot)
		return
	}

	parent, ok := e.forks.Block(e.head)
	if !ok {
		return
	}
	txs := e.mempool.PendingTransactions(e.cfg.GasLimit)
	stateRoot, err := e.state.ApplyBlock(parent.Header.StateRoot, txs)
	if err != nil {
		v.Performance.Missed++
		e.log.Error("state apply failed during proposal", "slot", slot, "error", err)
		return
	}

	var gasUsed uint64
	for i := range txs {
		gasUsed += txs[i].GasLimit
	}

	block := &types.Block{
		Header: types.BlockHeader{
			Height:       parent.Header.Height + 1,
			PreviousHash: e.head,
			MerkleRoot:   crypto.TransactionRoot(txs),
			StateRoot:    stateRoot,
			Timestamp:    uint64(e.clock.SlotStart(slot).Unix()),
			Slot:         slot,
			Epoch:        types.EpochOf(slot, e.cfg.SlotsPerEpoch),
			Proposer:     selected.Address,
			GasLimit:     e.cfg.GasLimit,
			GasUsed:      gasUsed,
		},
		Transactions: txs,
		Attestations: e.embeddable(),
	}
	root := block.SigningRoot()
	block.Header.ProposerSignature = crypto.Sign(sk, root[:])

	if err := e.onBlock(ctx, block); err != nil {
		e.log.Error("own block rejected", "slot", slot, "error", err)
		v.Performance.Missed++
		return
	}
	v.Performance.Proposed++

	if err := e.net.BroadcastBlock(ctx, block); err != nil {
		e.log.Error("broadcast block failed", "slot", slot, "error", err)
	}
	e.log.Info("proposed block", "slot", slot, "txs", len(txs), "attestations", len(block.Attestations))
}

// embeddable returns the proposer's observed attestations, newest epochs
// only, in validator order.
func (e *Engine) embeddable() []types.Attestation {
	out := make([]types.Attestation, 0, len(e.recent))
	finalized := e.finality.Finalized()
	for _, att := range e.recent {
		if att.Target.Epoch > finalized.Epoch || finalized.Epoch == 0 {
			out = append(out, *att)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ValidatorIndex < out[j].ValidatorIndex })
	return out
}

// attest produces attestations for every local key in a committee for the
// slot. Attestations past the soft deadline are skipped and counted missed.
func (e *Engine) attest(ctx context.Context, slot types.Slot) {
	committees, err := e.selector.Committees(slot)
	if err != nil {
		return
	}
	// Head vote tracks the canonical head; the target checkpoint is the
	// epoch boundary block, stable across the epoch so honest validators
	// never produce conflicting target roots.
	epoch := types.EpochOf(slot, e.cfg.SlotsPerEpoch)
	targetRoot, ok := e.forks.CheckpointRoot(epoch, e.head)
	if !ok {
		return
	}
	target := types.Checkpoint{Epoch: epoch, Root: targetRoot}
	source := e.finality.Justified()

	for ci, committee := range committees {
		for _, member := range committee {
			sk, ok := e.keys[member.Address]
			if !ok {
				continue
			}
			if last, ok := e.voted[member.Index]; ok && last >= epoch {
				continue
			}
			v, _ := e.registry.ByAddress(member.Address)

			if e.clock.Now().After(e.clock.AttestationDeadline(slot)) {
				v.Performance.MissedAttestations++
				continue
			}

			att := &types.Attestation{
				Slot:            slot,
				CommitteeIndex:  uint64(ci),
				ValidatorIndex:  member.Index,
				BeaconBlockRoot: e.head,
				Source:          source,
				Target:          target,
			}
			att.Signature = crypto.Sign(sk, att.SigningBytes())

			if err := e.onAttestation(att); err != nil {
				e.log.Debug("own attestation rejected", "slot", slot, "validator", member.Index, "error", err)
				continue
			}
			e.voted[member.Index] = epoch
			v.Performance.Attested++

			if err := e.net.BroadcastAttestation(ctx, att); err != nil {
				e.log.Error("broadcast attestation failed", "slot", slot, "error", err)
			}
		}
	}
}
