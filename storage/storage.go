// Package storage defines the persistent repository consensus commits to.
//
// Three logical keyspaces: blocks by hash, the latest justified and
// finalized checkpoints, and attestations by validator and epoch. Every
// block ingest commits through one atomic batch.
package storage

import (
	"errors"

	"github.com/stratumlabs/stratum/types"
)

// CheckpointKind selects one of the two persisted checkpoints.
type CheckpointKind string

const (
	Justified CheckpointKind = "justified"
	Finalized CheckpointKind = "finalized"
)

var (
	ErrNotFound = errors.New("storage: not found")
	ErrClosed   = errors.New("storage: closed")
)

// Batch accumulates writes that commit atomically.
type Batch interface {
	PutBlock(block *types.Block)
	PutCheckpoint(kind CheckpointKind, cp types.Checkpoint)
	PutAttestation(att *types.Attestation)
	Commit() error
}

// Store is the block/state/attestation repository.
type Store interface {
	GetBlock(hash types.Hash) (*types.Block, error)
	PutBlock(block *types.Block) error
	GetLatestCheckpoint(kind CheckpointKind) (types.Checkpoint, error)
	PutCheckpoint(kind CheckpointKind, cp types.Checkpoint) error
	GetAttestation(validator types.ValidatorIndex, epoch types.Epoch) (*types.Attestation, error)
	PutAttestation(att *types.Attestation) error
	NewBatch() Batch
	Close() error
}
