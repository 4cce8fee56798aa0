package forkchoice

import (
	"github.com/holiman/uint256"

	"github.com/stratumlabs/stratum/types"
)

// Head computes the canonical head with LMD-GHOST: starting at the justified
// checkpoint root, descend to the child with the greatest subtree weight
// until a leaf is reached. Ties break to the lexicographically larger block
// hash. Children from epochs before the justified checkpoint are not
// eligible.
func (s *Store) Head() types.Hash {
	head := s.justified.Root
	if _, ok := s.nodes[head]; !ok {
		return s.genesisRoot
	}

	for {
		var best types.Hash
		var bestWeight *uint256.Int
		for _, child := range s.nodes[head].children {
			n, ok := s.nodes[child]
			if !ok || n.block.Header.Epoch < s.justified.Epoch {
				continue
			}
			w := &n.weight
			if bestWeight == nil {
				best, bestWeight = child, w
				continue
			}
			if w.Gt(bestWeight) || (w.Eq(bestWeight) && child.Compare(best) > 0) {
				best, bestWeight = child, w
			}
		}
		if bestWeight == nil {
			return head
		}
		head = best
	}
}
