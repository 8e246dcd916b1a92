package proofs

import (
	"errors"
	"fmt"

	"github.com/dapperlabs/quorumstore/model"
)

var (
	// ErrWrongAuthor is returned when an acknowledgement references a batch
	// not authored by this node; the coordinator only aggregates proofs for
	// its own batches.
	ErrWrongAuthor = errors.New("signed batch info for batch of different author")

	// ErrBatchNotFound is returned when an acknowledgement references a
	// self-authored batch the local store does not hold.
	ErrBatchNotFound = errors.New("no local batch for signed info")

	// ErrUnknownSigner is returned when the signer is not a member of the
	// validator set.
	ErrUnknownSigner = errors.New("signer is not in the validator set")

	// ErrInvalidSignature is returned when a signature does not verify
	// under the signer's staking key.
	ErrInvalidSignature = errors.New("acknowledgement signature is invalid")

	// ErrNoTimestamp is returned when an acknowledgement arrives for a
	// self-authored batch without a recorded creation timestamp. Batch
	// creation always records a timestamp before the first signature, so
	// this is an internal bookkeeping inconsistency.
	ErrNoTimestamp = errors.New("no creation timestamp recorded for batch")
)

// InfoMismatchError is returned when an acknowledgement carries a BatchInfo
// that differs from the one already under aggregation for the same digest.
type InfoMismatchError struct {
	Digest model.Identifier
}

func (e InfoMismatchError) Error() string {
	return fmt.Sprintf("signed info for digest %x does not match info under aggregation", e.Digest)
}

// IsInfoMismatchError returns whether err is an InfoMismatchError.
func IsInfoMismatchError(err error) bool {
	var target InfoMismatchError
	return errors.As(err, &target)
}
