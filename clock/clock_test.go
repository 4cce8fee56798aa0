package clock

import (
	"testing"
	"time"

	"github.com/stratumlabs/stratum/types"
)

const genesisUnix = 1_700_000_000

func fixedClock(offset time.Duration) *SlotClock {
	now := time.Unix(genesisUnix, 0).Add(offset)
	return NewWithTimeFunc(genesisUnix, 12*time.Second, func() time.Time { return now })
}

func TestCurrentSlot(t *testing.T) {
	tests := []struct {
		offset time.Duration
		want   types.Slot
	}{
		{-5 * time.Second, 0},
		{0, 0},
		{11 * time.Second, 0},
		{12 * time.Second, 1},
		{25 * time.Second, 2},
		{120 * time.Second, 10},
	}
	for _, tt := range tests {
		if got := fixedClock(tt.offset).CurrentSlot(); got != tt.want {
			t.Errorf("offset %v: slot = %d, want %d", tt.offset, got, tt.want)
		}
	}
}

func TestSlotStartRoundTrip(t *testing.T) {
	c := fixedClock(0)
	for _, slot := range []types.Slot{0, 1, 7, 1000} {
		if got := c.SlotAt(c.SlotStart(slot)); got != slot {
			t.Errorf("SlotAt(SlotStart(%d)) = %d", slot, got)
		}
	}
}

func TestAttestationDeadline(t *testing.T) {
	c := fixedClock(0)
	want := c.SlotStart(3).Add(8 * time.Second) // 2/3 of 12s
	if got := c.AttestationDeadline(3); !got.Equal(want) {
		t.Errorf("deadline = %v, want %v", got, want)
	}
}

func TestProposalCutoff(t *testing.T) {
	c := fixedClock(0)
	want := c.SlotStart(3).Add(10 * time.Second)
	if got := c.ProposalCutoff(3); !got.Equal(want) {
		t.Errorf("cutoff = %v, want %v", got, want)
	}

	// A slot shorter than the margin clamps to the slot start.
	short := NewWithTimeFunc(genesisUnix, time.Second, func() time.Time { return time.Unix(genesisUnix, 0) })
	if got := short.ProposalCutoff(2); !got.Equal(short.SlotStart(2)) {
		t.Errorf("short-slot cutoff = %v, want slot start", got)
	}
}

func TestMaxAcceptableSlot(t *testing.T) {
	// 500ms before the slot-5 boundary: skew tolerance admits slot 5.
	c := fixedClock(5*12*time.Second - 500*time.Millisecond)
	if got := c.MaxAcceptableSlot(0); got != 4 {
		t.Errorf("no skew: max slot = %d, want 4", got)
	}
	if got := c.MaxAcceptableSlot(time.Second); got != 5 {
		t.Errorf("1s skew: max slot = %d, want 5", got)
	}
}

func TestUntilSlot(t *testing.T) {
	c := fixedClock(0)
	if got := c.UntilSlot(1); got != 12*time.Second {
		t.Errorf("UntilSlot(1) = %v, want 12s", got)
	}
	if got := c.UntilSlot(0); got != 0 {
		t.Errorf("UntilSlot(0) = %v, want 0", got)
	}
}

func TestIsBeforeGenesis(t *testing.T) {
	if !fixedClock(-time.Second).IsBeforeGenesis() {
		t.Error("clock before genesis not detected")
	}
	if fixedClock(time.Second).IsBeforeGenesis() {
		t.Error("clock after genesis misreported")
	}
}
