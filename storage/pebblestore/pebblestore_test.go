package pebblestore

import (
	"errors"
	"testing"

	"github.com/stratumlabs/stratum/storage"
	"github.com/stratumlabs/stratum/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBlockRoundTrip(t *testing.T) {
	s := openTestStore(t)

	block := &types.Block{
		Header: types.BlockHeader{Height: 5, Slot: 42, Epoch: 1, Proposer: types.Address{1}},
		Transactions: []types.Transaction{
			{From: types.Address{2}, Amount: 10, Nonce: 1},
		},
	}
	if err := s.PutBlock(block); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}

	got, err := s.GetBlock(block.Hash())
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if got.Hash() != block.Hash() {
		t.Error("stored block hash mismatch")
	}
	if len(got.Transactions) != 1 || got.Transactions[0].Amount != 10 {
		t.Error("stored transactions mismatch")
	}
}

func TestGetBlockNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetBlock(types.Hash{0xff}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetLatestCheckpoint(storage.Finalized); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("empty store: got %v, want ErrNotFound", err)
	}

	cp := types.Checkpoint{Epoch: 3, Root: types.Hash{9}}
	if err := s.PutCheckpoint(storage.Finalized, cp); err != nil {
		t.Fatalf("PutCheckpoint: %v", err)
	}
	got, err := s.GetLatestCheckpoint(storage.Finalized)
	if err != nil {
		t.Fatalf("GetLatestCheckpoint: %v", err)
	}
	if !got.Equal(cp) {
		t.Errorf("checkpoint = %+v, want %+v", got, cp)
	}

	// The justified keyspace is independent.
	if _, err := s.GetLatestCheckpoint(storage.Justified); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("justified: got %v, want ErrNotFound", err)
	}
}

func TestAttestationRoundTrip(t *testing.T) {
	s := openTestStore(t)

	att := &types.Attestation{
		Slot:           9,
		ValidatorIndex: 4,
		Target:         types.Checkpoint{Epoch: 2, Root: types.Hash{1}},
		Source:         types.Checkpoint{Epoch: 1, Root: types.Hash{2}},
	}
	if err := s.PutAttestation(att); err != nil {
		t.Fatalf("PutAttestation: %v", err)
	}

	got, err := s.GetAttestation(4, 2)
	if err != nil {
		t.Fatalf("GetAttestation: %v", err)
	}
	if *got != *att {
		t.Errorf("attestation = %+v, want %+v", got, att)
	}

	if _, err := s.GetAttestation(4, 3); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("absent epoch: got %v, want ErrNotFound", err)
	}
}

func TestBatchCommitAtomic(t *testing.T) {
	s := openTestStore(t)

	block := &types.Block{Header: types.BlockHeader{Height: 1, Slot: 1}}
	cp := types.Checkpoint{Epoch: 1, Root: block.Hash()}
	att := &types.Attestation{ValidatorIndex: 2, Target: cp}

	b := s.NewBatch()
	b.PutBlock(block)
	b.PutCheckpoint(storage.Justified, cp)
	b.PutAttestation(att)

	// Nothing is visible before commit.
	if _, err := s.GetBlock(block.Hash()); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("block visible before commit: %v", err)
	}

	if err := b.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, err := s.GetBlock(block.Hash()); err != nil {
		t.Errorf("block after commit: %v", err)
	}
	if got, err := s.GetLatestCheckpoint(storage.Justified); err != nil || !got.Equal(cp) {
		t.Errorf("checkpoint after commit: %+v, %v", got, err)
	}
	if _, err := s.GetAttestation(2, 1); err != nil {
		t.Errorf("attestation after commit: %v", err)
	}
}
