package types

import "crypto/sha256"

// Containers shared across the consensus core. Field order is part of the
// canonical encoding and must not change.

// Checkpoint identifies an epoch boundary block: the first-slot block of the
// epoch on the chain under consideration, or the latest earlier ancestor if
// that slot was empty.
type Checkpoint struct {
	Epoch Epoch
	Root  Hash
}

func (c Checkpoint) Equal(other Checkpoint) bool {
	return c.Epoch == other.Epoch && c.Root == other.Root
}

// Transaction is opaque to consensus beyond signature well-formedness and the
// Merkle root it contributes to.
type Transaction struct {
	From      Address
	To        Address
	Amount    uint64
	Nonce     uint64
	GasLimit  uint64
	GasPrice  uint64
	Signature Signature
}

// Hash returns the digest of the full canonical encoding, signature included.
// Transaction hashes are the Merkle leaves bound by a block's MerkleRoot.
func (tx *Transaction) Hash() Hash {
	return sha256.Sum256(tx.AppendCanonical(nil))
}

// SigningBytes returns the canonical encoding with the signature omitted.
func (tx *Transaction) SigningBytes() []byte {
	return tx.appendUnsigned(nil)
}

// BlockHeader carries the consensus-relevant block fields. hash(block) is the
// digest of the canonically serialized header with ProposerSignature zeroed.
type BlockHeader struct {
	Height            uint64
	PreviousHash      Hash
	MerkleRoot        Hash
	StateRoot         Hash
	Timestamp         uint64
	Slot              Slot
	Epoch             Epoch
	Proposer          Address
	GasLimit          uint64
	GasUsed           uint64
	ProposerSignature Signature
}

// Block is a header plus an ordered transaction list and, optionally, the
// attestations the proposer had observed when building it.
type Block struct {
	Header       BlockHeader
	Transactions []Transaction
	Attestations []Attestation
}

// SigningRoot returns the digest the proposer signs: the canonical header
// with the signature field zeroed.
func (b *Block) SigningRoot() Hash {
	return sha256.Sum256(b.Header.appendCanonical(nil, true))
}

// Hash returns the block identity. Identical to SigningRoot so that the hash
// is independent of the proposer signature.
func (b *Block) Hash() Hash {
	return b.SigningRoot()
}

// Attestation is a validator's signed vote for a head root and a
// source/target checkpoint pair.
type Attestation struct {
	Slot            Slot
	CommitteeIndex  uint64
	ValidatorIndex  ValidatorIndex
	BeaconBlockRoot Hash
	Source          Checkpoint
	Target          Checkpoint
	Signature       Signature
}

// SigningBytes returns the canonical encoding with the signature omitted.
func (a *Attestation) SigningBytes() []byte {
	return a.appendUnsigned(nil)
}

// DataRoot returns the digest of the attestation data (signature omitted).
// Used as evidence identity in slashing records.
func (a *Attestation) DataRoot() Hash {
	return sha256.Sum256(a.appendUnsigned(nil))
}
