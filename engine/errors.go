package engine

import "errors"

// Error kinds surfaced by the consensus core. Validation failures are local:
// the offending event is dropped and the task continues. ErrOrphaned is
// transient. ErrStorageFailure is fatal and halts the consensus task.
var (
	// Cryptographic checks.
	ErrBadSignature = errors.New("bad signature")

	// Block validation.
	ErrBadProposer    = errors.New("proposer does not match selection")
	ErrBadMerkleRoot  = errors.New("merkle root does not match transactions")
	ErrBadSlot        = errors.New("bad slot")
	ErrBadStateRoot   = errors.New("state root does not match apply result")
	ErrDuplicateBlock = errors.New("duplicate block")

	// Block valid but parent missing; buffered up to the orphan TTL.
	ErrOrphaned = errors.New("block orphaned")

	// Attestation validation. Double and surround votes additionally emit
	// slashing evidence.
	ErrNotInCommittee = errors.New("validator not in committee")
	ErrWrongTarget    = errors.New("attestation target not in store")
	ErrStaleSlot      = errors.New("slot already finalized")
	ErrDoubleVote     = errors.New("double vote")
	ErrSurroundVote   = errors.New("surround vote")

	// Validator-set preconditions.
	ErrUnknownValidator   = errors.New("unknown validator")
	ErrValidatorNotActive = errors.New("validator not active")

	// External state engine refused the block.
	ErrApplyFailed = errors.New("state apply failed")

	// Fatal; surfaced to the host for shutdown decisions.
	ErrStorageFailure = errors.New("storage failure")
)
