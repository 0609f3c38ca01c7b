package ledger

import "errors"

// Structured, recoverable failures surfaced to the command layer. Validation
// happens before any mutation is applied; none of these leave a partial write
// behind.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientCopies  = errors.New("insufficient copies")
	ErrBinderInvariant     = errors.New("binder count would exceed owned count")
	ErrNothingToRevert     = errors.New("no ledger effect to revert")
)
