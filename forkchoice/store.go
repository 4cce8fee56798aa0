// Package forkchoice maintains the block fork tree, per-validator latest
// attestations, and the LMD-GHOST head computation.
package forkchoice

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/stratumlabs/stratum/types"
)

// fnode is one block in the fork tree arena. weight is the sum of the
// effective balances of validators whose latest attestation targets a block
// in this node's subtree.
type fnode struct {
	block    *types.Block
	parent   types.Hash
	children []types.Hash
	weight   uint256.Int
}

// latestVote is a validator's most recent attestation as seen by the store.
// Newer attestations (by slot) replace older ones.
type latestVote struct {
	target types.Hash
	slot   types.Slot
	weight uint64
}

// Store is the fork tree. It is owned by the consensus task; no internal
// locking.
type Store struct {
	slotsPerEpoch uint64

	genesisRoot types.Hash
	nodes       map[types.Hash]*fnode
	votes       map[types.ValidatorIndex]latestVote

	justified types.Checkpoint
	finalized types.Checkpoint
}

// NewStore creates a fork store rooted at the genesis block. Genesis is both
// the justified and finalized checkpoint at epoch 0.
func NewStore(genesis *types.Block, slotsPerEpoch uint64) *Store {
	root := genesis.Hash()
	cp := types.Checkpoint{Epoch: 0, Root: root}
	return &Store{
		slotsPerEpoch: slotsPerEpoch,
		genesisRoot:   root,
		nodes:         map[types.Hash]*fnode{root: {block: genesis}},
		votes:         make(map[types.ValidatorIndex]latestVote),
		justified:     cp,
		finalized:     cp,
	}
}

// InsertBlock links a new block under its parent with zero initial weight.
func (s *Store) InsertBlock(block *types.Block) error {
	hash := block.Hash()
	if _, exists := s.nodes[hash]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyPresent, hash.Short())
	}
	parent, exists := s.nodes[block.Header.PreviousHash]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownParent, block.Header.PreviousHash.Short())
	}

	s.nodes[hash] = &fnode{block: block, parent: block.Header.PreviousHash}
	parent.children = append(parent.children, hash)
	return nil
}

// InsertAttestation records a validator's latest attestation and folds its
// weight into the subtree sums. An attestation older than (or as old as) the
// validator's recorded one is ignored. When replacing a vote of the same
// weight, the old contribution is rewound only up to the lowest common
// ancestor with the new target; when the weight differs, the old vote is
// rewound to the root and the new one added along its full path.
func (s *Store) InsertAttestation(idx types.ValidatorIndex, target types.Hash, attSlot types.Slot, weight uint64) error {
	if _, exists := s.nodes[target]; !exists {
		return fmt.Errorf("%w: %s", ErrTargetNotFound, target.Short())
	}

	old, hasOld := s.votes[idx]
	if hasOld && old.slot >= attSlot {
		return nil
	}

	if hasOld && old.weight == weight {
		if lca, ok := s.LCA(old.target, target); ok {
			s.addWeightUntil(old.target, lca, 0, old.weight)
			s.addWeightUntil(target, lca, weight, 0)
			s.votes[idx] = latestVote{target: target, slot: attSlot, weight: weight}
			return nil
		}
	}
	if hasOld {
		s.addWeightToRoot(old.target, 0, old.weight)
	}
	s.addWeightToRoot(target, weight, 0)
	s.votes[idx] = latestVote{target: target, slot: attSlot, weight: weight}
	return nil
}

// RemoveVote rewinds and drops a validator's latest attestation. Used when
// the validator is slashed so it contributes zero weight from then on.
func (s *Store) RemoveVote(idx types.ValidatorIndex) {
	old, ok := s.votes[idx]
	if !ok {
		return
	}
	s.addWeightToRoot(old.target, 0, old.weight)
	delete(s.votes, idx)
}

// addWeightUntil walks from start up to (excluding) stop, applying the given
// add/sub deltas to each node.
func (s *Store) addWeightUntil(start, stop types.Hash, add, sub uint64) {
	for cur := start; cur != stop; {
		n, ok := s.nodes[cur]
		if !ok {
			return
		}
		if add != 0 {
			n.weight.AddUint64(&n.weight, add)
		}
		if sub != 0 {
			n.weight.SubUint64(&n.weight, sub)
		}
		if cur == s.genesisRoot {
			return
		}
		cur = n.parent
	}
}

func (s *Store) addWeightToRoot(start types.Hash, add, sub uint64) {
	// The zero hash is never a node key, so this walks through the root.
	s.addWeightUntil(start, types.Hash{}, add, sub)
}

// SubtreeWeight returns the accumulated attestation weight of the block's
// subtree.
func (s *Store) SubtreeWeight(hash types.Hash) *uint256.Int {
	n, ok := s.nodes[hash]
	if !ok {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Set(&n.weight)
}

// HasBlock reports whether the hash is in the store.
func (s *Store) HasBlock(hash types.Hash) bool {
	_, ok := s.nodes[hash]
	return ok
}

// Block retrieves a block by hash.
func (s *Store) Block(hash types.Hash) (*types.Block, bool) {
	n, ok := s.nodes[hash]
	if !ok {
		return nil, false
	}
	return n.block, true
}

// Children returns the child hashes of a block.
func (s *Store) Children(hash types.Hash) []types.Hash {
	n, ok := s.nodes[hash]
	if !ok {
		return nil
	}
	out := make([]types.Hash, len(n.children))
	copy(out, n.children)
	return out
}

// Ancestors returns the chain from the block's parent up to the tree root.
func (s *Store) Ancestors(hash types.Hash) []types.Hash {
	var out []types.Hash
	n, ok := s.nodes[hash]
	if !ok {
		return nil
	}
	for hash != s.genesisRoot {
		hash = n.parent
		n, ok = s.nodes[hash]
		if !ok {
			break
		}
		out = append(out, hash)
	}
	return out
}

// IsAncestor reports whether anc is a strict ancestor of desc.
func (s *Store) IsAncestor(anc, desc types.Hash) bool {
	n, ok := s.nodes[desc]
	if !ok {
		return false
	}
	for desc != s.genesisRoot {
		desc = n.parent
		if desc == anc {
			return true
		}
		n, ok = s.nodes[desc]
		if !ok {
			return false
		}
	}
	return false
}

// OnCanonicalChain reports whether root lies on the chain ending at head.
func (s *Store) OnCanonicalChain(root, head types.Hash) bool {
	return root == head || s.IsAncestor(root, head)
}

// LCA returns the lowest common ancestor of a and b.
func (s *Store) LCA(a, b types.Hash) (types.Hash, bool) {
	na, ok := s.nodes[a]
	if !ok {
		return types.Hash{}, false
	}
	nb, ok := s.nodes[b]
	if !ok {
		return types.Hash{}, false
	}
	for a != b {
		switch {
		case na.block.Header.Height > nb.block.Header.Height:
			a = na.parent
			na = s.nodes[a]
		case nb.block.Header.Height > na.block.Header.Height:
			b = nb.parent
			nb = s.nodes[b]
		default:
			a, b = na.parent, nb.parent
			na, nb = s.nodes[a], s.nodes[b]
		}
		if na == nil || nb == nil {
			return types.Hash{}, false
		}
	}
	return a, true
}

// CheckpointRoot resolves the checkpoint root for an epoch on the chain
// ending at head: the block at the epoch's first slot, or the latest earlier
// ancestor if that slot was empty.
func (s *Store) CheckpointRoot(epoch types.Epoch, head types.Hash) (types.Hash, bool) {
	n, ok := s.nodes[head]
	if !ok {
		return types.Hash{}, false
	}
	first := types.FirstSlot(epoch, s.slotsPerEpoch)
	for n.block.Header.Slot > first {
		if head == s.genesisRoot {
			break
		}
		head = n.parent
		n, ok = s.nodes[head]
		if !ok {
			return types.Hash{}, false
		}
	}
	return head, true
}

// Justified returns the justified checkpoint.
func (s *Store) Justified() types.Checkpoint { return s.justified }

// Finalized returns the finalized checkpoint.
func (s *Store) Finalized() types.Checkpoint { return s.finalized }

// SetJustified raises the justified checkpoint. Lower epochs are ignored.
func (s *Store) SetJustified(cp types.Checkpoint) {
	if cp.Epoch < s.justified.Epoch {
		return
	}
	if !s.HasBlock(cp.Root) {
		return
	}
	s.justified = cp
}

// SetFinalized raises the finalized checkpoint and prunes every branch that
// does not descend from the new finalized root. The finalized epoch is
// monotonic.
func (s *Store) SetFinalized(cp types.Checkpoint) {
	if cp.Epoch <= s.finalized.Epoch {
		return
	}
	if !s.HasBlock(cp.Root) {
		return
	}
	s.finalized = cp
	s.prune(cp.Root)
}

// prune drops every node that is neither the finalized root, one of its
// descendants, nor one of its ancestors. Votes targeting pruned branches are
// rewound first so surviving subtree weights stay consistent.
func (s *Store) prune(finalizedRoot types.Hash) {
	keep := make(map[types.Hash]bool)
	keep[finalizedRoot] = true
	for _, h := range s.Ancestors(finalizedRoot) {
		keep[h] = true
	}
	var mark func(types.Hash)
	mark = func(h types.Hash) {
		for _, c := range s.nodes[h].children {
			keep[c] = true
			mark(c)
		}
	}
	mark(finalizedRoot)

	for idx, vote := range s.votes {
		if !keep[vote.target] {
			s.RemoveVote(idx)
		}
	}
	for h, n := range s.nodes {
		if !keep[h] {
			delete(s.nodes, h)
			continue
		}
		kept := n.children[:0]
		for _, c := range n.children {
			if keep[c] {
				kept = append(kept, c)
			}
		}
		n.children = kept
	}
}

// Len returns the number of blocks in the store.
func (s *Store) Len() int { return len(s.nodes) }
