package signature

import (
	"fmt"

	"github.com/onflow/crypto"
	"github.com/onflow/crypto/hash"
)

// SignatureAggregatorSameMessage aggregates BLS signatures of the same
// message from different signers. The public keys and message are agreed
// upon at construction; signers are identified by their index in the key
// list.
//
// Aggregation happens over the BLS12-381 curve. The structure is not safe
// for concurrent use; callers are expected to serialize access.
type SignatureAggregatorSameMessage struct {
	message          []byte
	hasher           hash.Hasher
	n                int // number of participants indexed from 0 to n-1
	publicKeys       []crypto.PublicKey
	indexToSignature map[int]string
	cachedSignature  crypto.Signature // cached aggregated signature
}

// NewSignatureAggregatorSameMessage returns a new aggregator for the given
// message and list of BLS public keys. The keys must all be valid BLS
// 12-381 keys; the list must be non-empty.
func NewSignatureAggregatorSameMessage(
	message []byte,
	dsTag string,
	publicKeys []crypto.PublicKey,
) (*SignatureAggregatorSameMessage, error) {

	if len(publicKeys) == 0 {
		return nil, fmt.Errorf("number of participants must be larger than 0, got %d", len(publicKeys))
	}
	for i, key := range publicKeys {
		if key == nil || key.Algorithm() != crypto.BLSBLS12381 {
			return nil, fmt.Errorf("key at index %d is not a BLS key", i)
		}
	}

	return &SignatureAggregatorSameMessage{
		message:          message,
		hasher:           NewBLSHasher(dsTag),
		n:                len(publicKeys),
		publicKeys:       publicKeys,
		indexToSignature: make(map[int]string),
		cachedSignature:  nil,
	}, nil
}

// Verify checks the signature share of the signer with the given index
// against the aggregator's message, without adding it.
func (s *SignatureAggregatorSameMessage) Verify(signer int, sig crypto.Signature) (bool, error) {
	if signer >= s.n || signer < 0 {
		return false, fmt.Errorf("signer index %d: %w", signer, ErrInvalidSignerIndex)
	}
	return s.publicKeys[signer].Verify(sig, s.message, s.hasher)
}

// VerifyAndAdd verifies the signature share and, if valid, adds it to the
// internal set of shares. Adding an index twice returns ErrDuplicatedSigner
// regardless of the signature's validity.
// The returned bool reports whether the signature is valid.
func (s *SignatureAggregatorSameMessage) VerifyAndAdd(signer int, sig crypto.Signature) (bool, error) {
	if signer >= s.n || signer < 0 {
		return false, fmt.Errorf("signer index %d: %w", signer, ErrInvalidSignerIndex)
	}
	_, duplicate := s.indexToSignature[signer]
	if duplicate {
		return false, fmt.Errorf("signer index %d: %w", signer, ErrDuplicatedSigner)
	}
	ok, err := s.publicKeys[signer].Verify(sig, s.message, s.hasher)
	if err != nil {
		return false, fmt.Errorf("could not verify signature share: %w", err)
	}
	if ok {
		s.add(signer, sig)
	}
	return ok, nil
}

// TrustedAdd adds a signature share without verification. It is the
// caller's responsibility to make sure the signature was verified against
// the aggregator's message. Adding an index twice returns
// ErrDuplicatedSigner.
func (s *SignatureAggregatorSameMessage) TrustedAdd(signer int, sig crypto.Signature) error {
	if signer >= s.n || signer < 0 {
		return fmt.Errorf("signer index %d: %w", signer, ErrInvalidSignerIndex)
	}
	_, duplicate := s.indexToSignature[signer]
	if duplicate {
		return fmt.Errorf("signer index %d: %w", signer, ErrDuplicatedSigner)
	}
	s.add(signer, sig)
	return nil
}

// HasSignature reports whether a share from the given signer index has been
// added.
func (s *SignatureAggregatorSameMessage) HasSignature(signer int) (bool, error) {
	if signer >= s.n || signer < 0 {
		return false, fmt.Errorf("signer index %d: %w", signer, ErrInvalidSignerIndex)
	}
	_, ok := s.indexToSignature[signer]
	return ok, nil
}

func (s *SignatureAggregatorSameMessage) add(signer int, sig crypto.Signature) {
	s.cachedSignature = nil
	s.indexToSignature[signer] = string(sig)
}

// Aggregate aggregates the added signature shares and returns the list of
// contributing signer indices together with the aggregated signature. The
// aggregate is verified against the aggregated public key of the
// contributing signers before it is returned: an invalid aggregate means at
// least one added share was not a valid signature (a risk only when shares
// were added with TrustedAdd).
func (s *SignatureAggregatorSameMessage) Aggregate() ([]int, crypto.Signature, error) {
	sharesNum := len(s.indexToSignature)
	if sharesNum == 0 {
		return nil, nil, ErrInsufficientShares
	}
	indices := make([]int, 0, sharesNum)
	signatures := make([]crypto.Signature, 0, sharesNum)
	for index, sig := range s.indexToSignature {
		indices = append(indices, index)
		signatures = append(signatures, crypto.Signature(sig))
	}

	aggregated := s.cachedSignature
	if aggregated == nil {
		var err error
		aggregated, err = crypto.AggregateBLSSignatures(signatures)
		if err != nil {
			return nil, nil, fmt.Errorf("could not aggregate BLS signatures: %w", err)
		}
		ok, err := s.VerifyAggregate(indices, aggregated)
		if err != nil {
			return nil, nil, fmt.Errorf("could not verify aggregated signature: %w", err)
		}
		if !ok {
			return nil, nil, fmt.Errorf("aggregate does not verify: %w", ErrInvalidSignatureFormat)
		}
		s.cachedSignature = aggregated
	}
	return indices, aggregated, nil
}

// VerifyAggregate verifies an aggregated signature against the aggregator's
// message, under the aggregated public key of the given signer indices.
func (s *SignatureAggregatorSameMessage) VerifyAggregate(signers []int, sig crypto.Signature) (bool, error) {
	keys := make([]crypto.PublicKey, 0, len(signers))
	for _, signer := range signers {
		if signer >= s.n || signer < 0 {
			return false, fmt.Errorf("signer index %d: %w", signer, ErrInvalidSignerIndex)
		}
		keys = append(keys, s.publicKeys[signer])
	}
	aggregatedKey, err := crypto.AggregateBLSPublicKeys(keys)
	if err != nil {
		return false, fmt.Errorf("could not aggregate public keys: %w", err)
	}
	return aggregatedKey.Verify(sig, s.message, s.hasher)
}
