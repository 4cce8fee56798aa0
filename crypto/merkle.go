package crypto

import (
	"errors"

	"github.com/stratumlabs/stratum/types"
)

var ErrProofIndex = errors.New("merkle: leaf index out of range")

// MerkleRoot computes the pairwise SHA-256 tree root over leaves. A level
// with an odd count duplicates its last node before pairing. The empty list
// yields the all-zero hash.
func MerkleRoot(leaves []types.Hash) types.Hash {
	if len(leaves) == 0 {
		return types.Hash{}
	}
	level := make([]types.Hash, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := level[:len(level)/2]
		for i := 0; i < len(level); i += 2 {
			next[i/2] = HashPair(level[i], level[i+1])
		}
		level = next
	}
	return level[0]
}

// MerkleProof returns the sibling path proving inclusion of leaves[index].
func MerkleProof(leaves []types.Hash, index int) ([]types.Hash, error) {
	if index < 0 || index >= len(leaves) {
		return nil, ErrProofIndex
	}
	level := make([]types.Hash, len(leaves))
	copy(level, leaves)

	var proof []types.Hash
	pos := index
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		sibling := pos ^ 1
		proof = append(proof, level[sibling])

		next := level[:len(level)/2]
		for i := 0; i < len(level); i += 2 {
			next[i/2] = HashPair(level[i], level[i+1])
		}
		level = next
		pos /= 2
	}
	return proof, nil
}

// VerifyProof checks a Merkle inclusion proof produced by MerkleProof.
func VerifyProof(root, leaf types.Hash, index int, proof []types.Hash) bool {
	if index < 0 {
		return false
	}
	node := leaf
	pos := index
	for _, sibling := range proof {
		if pos%2 == 0 {
			node = HashPair(node, sibling)
		} else {
			node = HashPair(sibling, node)
		}
		pos /= 2
	}
	return node == root
}

// TransactionRoot computes the Merkle root binding a block's transaction
// list.
func TransactionRoot(txs []types.Transaction) types.Hash {
	leaves := make([]types.Hash, len(txs))
	for i := range txs {
		leaves[i] = txs[i].Hash()
	}
	return MerkleRoot(leaves)
}
