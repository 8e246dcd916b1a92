package signature

import (
	"errors"
)

var (
	// ErrInvalidSignatureFormat is returned when a signature does not
	// deserialize to a valid BLS signature.
	ErrInvalidSignatureFormat = errors.New("invalid signature format")

	// ErrDuplicatedSigner is returned when a signer index is added twice.
	ErrDuplicatedSigner = errors.New("duplicated signer")

	// ErrInvalidSignerIndex is returned when a signer index is outside the
	// committee range of the aggregator.
	ErrInvalidSignerIndex = errors.New("signer index is invalid")

	// ErrInsufficientShares is returned when aggregation is attempted with
	// no collected signatures.
	ErrInsufficientShares = errors.New("insufficient signature shares")
)
