package batchstore

import (
	"errors"
)

var (
	// ErrQuotaExceeded is returned when an author's byte budget cannot
	// admit a batch in either storage tier. The batch is dropped; the
	// author must wait for its stored batches to expire.
	ErrQuotaExceeded = errors.New("author quota exceeded")

	// ErrWrongEpoch is returned when a batch declares an expiration epoch
	// different from the store's current epoch.
	ErrWrongEpoch = errors.New("batch expiration epoch does not match current epoch")

	// ErrOutsideWindow is returned when a batch's expiration round falls
	// outside the accepted window around the last certified round. The
	// window bounds how stale or how far in the future a self-declared
	// expiration may be.
	ErrOutsideWindow = errors.New("batch expiration round outside accepted window")

	// ErrRoundRegression is returned when the certified round clock moves
	// backwards within an epoch, or reports a different epoch. This is an
	// invariant violation of the consensus collaborator and must be
	// treated as fatal by the caller.
	ErrRoundRegression = errors.New("certified round regressed")
)
