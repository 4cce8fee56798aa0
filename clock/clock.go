// Package clock converts wall-clock time to consensus slots.
//
// Every node must agree on slot boundaries to coordinate block proposals and
// attestations. The clock also exposes the two in-slot deadlines: the
// attestation soft deadline at two thirds of the slot, and the proposal
// cutoff two seconds before the slot ends.
package clock

import (
	"time"

	"github.com/stratumlabs/stratum/types"
)

// proposalMargin is how long before slot end a proposal must be submitted.
const proposalMargin = 2 * time.Second

// SlotClock converts wall-clock time to consensus slots.
type SlotClock struct {
	genesis      time.Time
	slotDuration time.Duration
	timeFunc     func() time.Time // injectable for testing
}

// New creates a SlotClock with genesis at the given Unix timestamp.
func New(genesisUnix uint64, slotDuration time.Duration) *SlotClock {
	return &SlotClock{
		genesis:      time.Unix(int64(genesisUnix), 0),
		slotDuration: slotDuration,
		timeFunc:     time.Now,
	}
}

// NewWithTimeFunc creates a SlotClock with a custom time source (for testing).
func NewWithTimeFunc(genesisUnix uint64, slotDuration time.Duration, timeFunc func() time.Time) *SlotClock {
	c := New(genesisUnix, slotDuration)
	c.timeFunc = timeFunc
	return c
}

// CurrentSlot returns the slot containing now (0 before genesis).
func (c *SlotClock) CurrentSlot() types.Slot {
	return c.SlotAt(c.timeFunc())
}

// SlotAt returns the slot containing the given instant.
func (c *SlotClock) SlotAt(t time.Time) types.Slot {
	if t.Before(c.genesis) {
		return 0
	}
	return types.Slot(t.Sub(c.genesis) / c.slotDuration)
}

// SlotStart returns the instant a slot begins.
func (c *SlotClock) SlotStart(slot types.Slot) time.Time {
	return c.genesis.Add(time.Duration(slot) * c.slotDuration)
}

// AttestationDeadline is the soft deadline for producing a slot's
// attestation: slot start plus two thirds of the slot duration. Attestations
// after the deadline are skipped, not produced late.
func (c *SlotClock) AttestationDeadline(slot types.Slot) time.Time {
	return c.SlotStart(slot).Add(c.slotDuration * 2 / 3)
}

// ProposalCutoff is the instant after which the slot's proposal is abandoned
// rather than produced late.
func (c *SlotClock) ProposalCutoff(slot types.Slot) time.Time {
	cutoff := c.SlotStart(slot).Add(c.slotDuration - proposalMargin)
	if start := c.SlotStart(slot); cutoff.Before(start) {
		return start
	}
	return cutoff
}

// MaxAcceptableSlot is the highest slot a just-received block may claim,
// given the clock-skew tolerance.
func (c *SlotClock) MaxAcceptableSlot(skew time.Duration) types.Slot {
	return c.SlotAt(c.timeFunc().Add(skew))
}

// UntilSlot returns how long until the slot starts (zero if already past).
func (c *SlotClock) UntilSlot(slot types.Slot) time.Duration {
	d := c.SlotStart(slot).Sub(c.timeFunc())
	if d < 0 {
		return 0
	}
	return d
}

// IsBeforeGenesis reports whether now precedes genesis.
func (c *SlotClock) IsBeforeGenesis() bool {
	return c.timeFunc().Before(c.genesis)
}

// Now returns the clock's current time.
func (c *SlotClock) Now() time.Time { return c.timeFunc() }
