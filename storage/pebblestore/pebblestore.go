// Package pebblestore persists consensus state in a Pebble key-value store.
//
// Keyspaces: blocks/<hash>, checkpoints/<kind>,
// attestations/<validator>/<epoch>. Values are the canonical encoding, so a
// stored block round-trips to the same hash it gossips under.
package pebblestore

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/stratumlabs/stratum/storage"
	"github.com/stratumlabs/stratum/types"
)

const (
	blockPrefix      = "blocks/"
	checkpointPrefix = "checkpoints/"
	attPrefix        = "attestations/"
)

// Store is a Pebble-backed storage.Store.
type Store struct {
	db *pebble.DB
}

// Open opens (or creates) a store under dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenMemory opens a store on an in-memory filesystem, for tests.
func OpenMemory() (*Store, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	return &Store{db: db}, nil
}

func blockKey(hash types.Hash) []byte {
	return append([]byte(blockPrefix), hash[:]...)
}

func checkpointKey(kind storage.CheckpointKind) []byte {
	return append([]byte(checkpointPrefix), kind...)
}

func attKey(validator types.ValidatorIndex, epoch types.Epoch) []byte {
	key := make([]byte, 0, len(attPrefix)+17)
	key = append(key, attPrefix...)
	key = binary.BigEndian.AppendUint64(key, uint64(validator))
	key = append(key, '/')
	key = binary.BigEndian.AppendUint64(key, uint64(epoch))
	return key
}

func (s *Store) get(key []byte) ([]byte, error) {
	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pebble get: %w", err)
	}
	out := make([]byte, len(val))
	copy(out, val)
	if err := closer.Close(); err != nil {
		return nil, fmt.Errorf("pebble get close: %w", err)
	}
	return out, nil
}

func (s *Store) GetBlock(hash types.Hash) (*types.Block, error) {
	val, err := s.get(blockKey(hash))
	if err != nil {
		return nil, err
	}
	return types.DecodeBlock(val)
}

func (s *Store) PutBlock(block *types.Block) error {
	return s.db.Set(blockKey(block.Hash()), block.AppendCanonical(nil), pebble.Sync)
}

func (s *Store) GetLatestCheckpoint(kind storage.CheckpointKind) (types.Checkpoint, error) {
	val, err := s.get(checkpointKey(kind))
	if err != nil {
		return types.Checkpoint{}, err
	}
	return types.DecodeCheckpoint(val)
}

func (s *Store) PutCheckpoint(kind storage.CheckpointKind, cp types.Checkpoint) error {
	return s.db.Set(checkpointKey(kind), cp.AppendCanonical(nil), pebble.Sync)
}

func (s *Store) GetAttestation(validator types.ValidatorIndex, epoch types.Epoch) (*types.Attestation, error) {
	val, err := s.get(attKey(validator, epoch))
	if err != nil {
		return nil, err
	}
	return types.DecodeAttestation(val)
}

func (s *Store) PutAttestation(att *types.Attestation) error {
	return s.db.Set(attKey(att.ValidatorIndex, att.Target.Epoch), att.AppendCanonical(nil), pebble.Sync)
}

func (s *Store) NewBatch() storage.Batch {
	return &batch{b: s.db.NewBatch()}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// batch wraps a pebble.Batch; Commit applies all writes atomically.
type batch struct {
	b *pebble.Batch
}

func (b *batch) PutBlock(block *types.Block) {
	_ = b.b.Set(blockKey(block.Hash()), block.AppendCanonical(nil), nil)
}

func (b *batch) PutCheckpoint(kind storage.CheckpointKind, cp types.Checkpoint) {
	_ = b.b.Set(checkpointKey(kind), cp.AppendCanonical(nil), nil)
}

func (b *batch) PutAttestation(att *types.Attestation) {
	_ = b.b.Set(attKey(att.ValidatorIndex, att.Target.Epoch), att.AppendCanonical(nil), nil)
}

func (b *batch) Commit() error {
	return b.b.Commit(pebble.Sync)
}
