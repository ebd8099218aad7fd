package validation

import (
	"fmt"

	"github.com/aivve/karbowanec/cnbinary"
)

// VerificationKind classifies why a block or transaction was rejected,
// mirroring the corpus's flag-returned block_verification_context approach
// rather than a deep per-reason error-type hierarchy.
type VerificationKind int

const (
	// KindUnknown is the zero value; never returned by this package.
	KindUnknown VerificationKind = iota
	KindAlreadyExists
	KindMarkedAsOrphaned
	KindVerificationFailed
	KindConsistencyBroken
	KindKvIoFailure
	KindPoolFailure
)

func (k VerificationKind) String() string {
	switch k {
	case KindAlreadyExists:
		return "AlreadyExists"
	case KindMarkedAsOrphaned:
		return "MarkedAsOrphaned"
	case KindVerificationFailed:
		return "VerificationFailed"
	case KindConsistencyBroken:
		return "ConsistencyBroken"
	case KindKvIoFailure:
		return "KvIoFailure"
	case KindPoolFailure:
		return "PoolFailure"
	default:
		return "Unknown"
	}
}

// ChainError is the single exported error type this core returns for every
// validation or consistency failure (§7/§10.2); the Kind field carries the
// policy (drop quietly, ban peer, abort and roll back) rather than a
// separate Go type per failure reason.
type ChainError struct {
	Kind   VerificationKind
	Err    error
	Height uint64
	Hash   cnbinary.Hash
}

func (e *ChainError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s at height %d", e.Kind, e.Height)
	}
	return fmt.Sprintf("%s at height %d: %v", e.Kind, e.Height, e.Err)
}

func (e *ChainError) Unwrap() error {
	return e.Err
}

// Fail constructs a ChainError of the given kind wrapping err.
func Fail(kind VerificationKind, height uint64, hash cnbinary.Hash, err error) *ChainError {
	return &ChainError{Kind: kind, Err: err, Height: height, Hash: hash}
}

// Failf is a convenience constructor formatting err from a message.
func Failf(kind VerificationKind, height uint64, hash cnbinary.Hash, format string, args ...any) *ChainError {
	return Fail(kind, height, hash, fmt.Errorf(format, args...))
}
