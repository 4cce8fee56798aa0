package forkchoice

import "errors"

// Sentinel errors for fork store operations. Callers branch with errors.Is.
var (
	ErrUnknownParent  = errors.New("parent not found")
	ErrAlreadyPresent = errors.New("block already present")
	ErrUnknownBlock   = errors.New("block not found")
	ErrTargetNotFound = errors.New("attestation target not in store")
)
