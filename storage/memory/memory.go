// Package memory is an in-memory storage.Store used in tests and
// single-process runs.
package memory

import (
	"sync"

	"github.com/stratumlabs/stratum/storage"
	"github.com/stratumlabs/stratum/types"
)

type attKey struct {
	validator types.ValidatorIndex
	epoch     types.Epoch
}

// Store is an in-memory implementation of storage.Store.
type Store struct {
	mu           sync.RWMutex
	blocks       map[types.Hash]*types.Block
	checkpoints  map[storage.CheckpointKind]types.Checkpoint
	attestations map[attKey]*types.Attestation
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		blocks:       make(map[types.Hash]*types.Block),
		checkpoints:  make(map[storage.CheckpointKind]types.Checkpoint),
		attestations: make(map[attKey]*types.Attestation),
	}
}

func (m *Store) GetBlock(hash types.Hash) (*types.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blocks[hash]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return b, nil
}

func (m *Store) PutBlock(block *types.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[block.Hash()] = block
	return nil
}

func (m *Store) GetLatestCheckpoint(kind storage.CheckpointKind) (types.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp, ok := m.checkpoints[kind]
	if !ok {
		return types.Checkpoint{}, storage.ErrNotFound
	}
	return cp, nil
}

func (m *Store) PutCheckpoint(kind storage.CheckpointKind, cp types.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[kind] = cp
	return nil
}

func (m *Store) GetAttestation(validator types.ValidatorIndex, epoch types.Epoch) (*types.Attestation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	att, ok := m.attestations[attKey{validator, epoch}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return att, nil
}

func (m *Store) PutAttestation(att *types.Attestation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putAttestationLocked(att)
	return nil
}

func (m *Store) putAttestationLocked(att *types.Attestation) {
	m.attestations[attKey{att.ValidatorIndex, att.Target.Epoch}] = att
}

func (m *Store) NewBatch() storage.Batch {
	return &batch{store: m}
}

func (m *Store) Close() error { return nil }

// batch buffers writes and applies them under one lock acquisition.
type batch struct {
	store *Store
	ops   []func(*Store)
}

func (b *batch) PutBlock(block *types.Block) {
	b.ops = append(b.ops, func(m *Store) { m.blocks[block.Hash()] = block })
}

func (b *batch) PutCheckpoint(kind storage.CheckpointKind, cp types.Checkpoint) {
	b.ops = append(b.ops, func(m *Store) { m.checkpoints[kind] = cp })
}

func (b *batch) PutAttestation(att *types.Attestation) {
	b.ops = append(b.ops, func(m *Store) { m.putAttestationLocked(att) })
}

func (b *batch) Commit() error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for _, op := range b.ops {
		op(b.store)
	}
	b.ops = nil
	return nil
}
