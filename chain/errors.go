package chain

import "errors"

var (
	// ErrOrphanBlock is returned when a header references a parent that is not
	// indexed yet.
	ErrOrphanBlock = errors.New("orphan block")

	// ErrHeightMismatch is returned when a header height is not its parent
	// height plus one.
	ErrHeightMismatch = errors.New("height mismatch")

	// ErrConflictingRedefinition is returned when a known hash is submitted
	// again with a different parent, height or work.
	ErrConflictingRedefinition = errors.New("conflicting redefinition of known block")

	// ErrNonPositiveWork is returned for headers without a positive work value.
	ErrNonPositiveWork = errors.New("block work must be positive")

	// ErrZeroHash is returned for headers whose own hash is all zero. That
	// value marks the missing parent of a genesis header.
	ErrZeroHash = errors.New("block hash must not be zero")

	// ErrUnknownBlock is returned by queries for hashes that are not indexed.
	ErrUnknownBlock = errors.New("unknown block")

	// ErrNotOnActiveChain is returned when finality is requested for a block
	// that is not on the active chain.
	ErrNotOnActiveChain = errors.New("block is not on the active chain")
)

// RejectReason maps an insertion error to a short label for metrics.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, ErrOrphanBlock):
		return "orphan"
	case errors.Is(err, ErrHeightMismatch):
		return "height_mismatch"
	case errors.Is(err, ErrConflictingRedefinition):
		return "conflict"
	case errors.Is(err, ErrNonPositiveWork):
		return "bad_work"
	case errors.Is(err, ErrZeroHash):
		return "zero_hash"
	default:
		return "other"
	}
}
