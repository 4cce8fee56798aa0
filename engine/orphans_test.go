package engine

import (
	"testing"

	"github.com/stratumlabs/stratum/types"
)

func orphanBlock(tag byte, parent types.Hash) *types.Block {
	return &types.Block{Header: types.BlockHeader{
		Height:       1,
		PreviousHash: parent,
		Proposer:     types.Address{tag},
	}}
}

func TestOrphanBufferTakeChildren(t *testing.T) {
	buf := newOrphanBuffer(4, 8)
	parent := types.Hash{1}

	a := orphanBlock(1, parent)
	b := orphanBlock(2, parent)
	c := orphanBlock(3, types.Hash{2})
	buf.Add(a, 1)
	buf.Add(b, 1)
	buf.Add(c, 1)
	buf.Add(a, 2) // duplicate, ignored

	if buf.Len() != 3 {
		t.Fatalf("len = %d, want 3", buf.Len())
	}

	children := buf.TakeChildren(parent)
	if len(children) != 2 {
		t.Fatalf("TakeChildren returned %d, want 2", len(children))
	}
	if children[0].Hash() != a.Hash() || children[1].Hash() != b.Hash() {
		t.Error("children not in arrival order")
	}
	if buf.Len() != 1 {
		t.Errorf("len after take = %d, want 1", buf.Len())
	}
}

func TestOrphanBufferEvictsOldestOnOverflow(t *testing.T) {
	buf := newOrphanBuffer(2, 8)
	a := orphanBlock(1, types.Hash{1})
	b := orphanBlock(2, types.Hash{1})
	c := orphanBlock(3, types.Hash{1})
	buf.Add(a, 1)
	buf.Add(b, 2)
	buf.Add(c, 3)

	if buf.Len() != 2 {
		t.Fatalf("len = %d, want 2", buf.Len())
	}
	children := buf.TakeChildren(types.Hash{1})
	if children[0].Hash() != b.Hash() {
		t.Error("oldest entry was not evicted first")
	}
}

func TestOrphanBufferExpire(t *testing.T) {
	buf := newOrphanBuffer(4, 2)
	buf.Add(orphanBlock(1, types.Hash{1}), 1)
	buf.Add(orphanBlock(2, types.Hash{1}), 5)

	if dropped := buf.Expire(4); dropped != 1 {
		t.Errorf("Expire(4) dropped %d, want 1 (arrived at slot 1, TTL 2)", dropped)
	}
	if buf.Len() != 1 {
		t.Errorf("len = %d, want 1", buf.Len())
	}
}
