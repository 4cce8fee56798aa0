package engine

import "github.com/stratumlabs/stratum/types"

// orphan is a block waiting for its parent.
type orphan struct {
	block   *types.Block
	arrived types.Slot
}

// orphanBuffer holds parentless blocks in arrival order, bounded by max and
// evicted by arrival order on overflow or TTL expiry.
type orphanBuffer struct {
	max     int
	ttl     types.Slot
	entries []orphan
}

func newOrphanBuffer(max int, ttl uint64) *orphanBuffer {
	return &orphanBuffer{max: max, ttl: types.Slot(ttl)}
}

// Add buffers a block. Re-adding an already buffered block is a no-op.
func (o *orphanBuffer) Add(block *types.Block, currentSlot types.Slot) {
	hash := block.Hash()
	for _, e := range o.entries {
		if e.block.Hash() == hash {
			return
		}
	}
	if len(o.entries) >= o.max {
		o.entries = o.entries[1:]
	}
	o.entries = append(o.entries, orphan{block: block, arrived: currentSlot})
}

// TakeChildren removes and returns the buffered blocks whose parent is the
// given hash, in arrival order.
func (o *orphanBuffer) TakeChildren(parent types.Hash) []*types.Block {
	var out []*types.Block
	kept := o.entries[:0]
	for _, e := range o.entries {
		if e.block.Header.PreviousHash == parent {
			out = append(out, e.block)
		} else {
			kept = append(kept, e)
		}
	}
	o.entries = kept
	return out
}

// Expire drops blocks that waited longer than the TTL.
func (o *orphanBuffer) Expire(currentSlot types.Slot) int {
	kept := o.entries[:0]
	dropped := 0
	for _, e := range o.entries {
		if currentSlot > e.arrived && currentSlot-e.arrived > o.ttl {
			dropped++
			continue
		}
		kept = append(kept, e)
	}
	o.entries = kept
	return dropped
}

func (o *orphanBuffer) Len() int { return len(o.entries) }
