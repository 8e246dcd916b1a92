package proofs

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/onflow/crypto"

	"github.com/dapperlabs/quorumstore/model"
	"github.com/dapperlabs/quorumstore/module/signature"
)

// incrementalProofState is the live aggregation state for one BatchInfo:
// the signature aggregator, the cumulative stake observed, and the
// completion bookkeeping. It is not safe for concurrent use; the core
// serializes access.
type incrementalProofState struct {
	info       model.BatchInfo
	aggregator *signature.SignatureAggregatorSameMessage
	stake      uint64
	selfVoted  bool
	completed  bool
	created    time.Time
}

func newIncrementalProofState(info model.BatchInfo, committee Committee, created time.Time) (*incrementalProofState, error) {
	aggregator, err := signature.NewSignatureAggregatorSameMessage(
		info.SignableBytes(),
		signature.BatchAckTag,
		committee.Identities().StakingKeys(),
	)
	if err != nil {
		return nil, fmt.Errorf("could not create signature aggregator: %w", err)
	}
	state := &incrementalProofState{
		info:       info,
		aggregator: aggregator,
		created:    created,
	}
	return state, nil
}

// addSignature verifies and accrues one acknowledgement signature. The
// signer's stake counts toward quorum only on first valid addition;
// duplicates and invalid signatures leave the accumulated stake unchanged.
// Returns (false, nil) for a duplicate, (true, nil) for a counted share.
func (s *incrementalProofState) addSignature(signerIndex int, stake uint64, isSelf bool, sig crypto.Signature) (bool, error) {
	valid, err := s.aggregator.VerifyAndAdd(signerIndex, sig)
	if err != nil {
		if errors.Is(err, signature.ErrDuplicatedSigner) {
			return false, nil
		}
		return false, fmt.Errorf("could not add signature share: %w", err)
	}
	if !valid {
		return false, ErrInvalidSignature
	}
	s.stake += stake
	if isSelf {
		s.selfVoted = true
	}
	return true, nil
}

// reachedQuorum reports whether the accumulated stake meets the committee's
// quorum threshold.
func (s *incrementalProofState) reachedQuorum(threshold uint64) bool {
	return s.stake >= threshold
}

// finalize aggregates the collected shares into a proof of store and marks
// the state completed. Finalizing an already completed state is a
// programming error and panics: no code path may emit two proofs for the
// same BatchInfo.
//
// If the aggregate fails to verify, the state remains collecting and an
// error is returned; bookkeeping from valid prior shares is retained.
func (s *incrementalProofState) finalize(committee Committee) (*model.ProofOfStore, error) {
	if s.completed {
		panic(fmt.Sprintf("attempted to re-aggregate completed proof state for digest %x", s.info.Digest))
	}

	indices, aggregated, err := s.aggregator.Aggregate()
	if err != nil {
		return nil, fmt.Errorf("could not aggregate acknowledgement signatures: %w", err)
	}

	// signer indices come back in map order; proofs carry them canonically
	sort.Ints(indices)
	identities := committee.Identities()
	signers := make([]model.Identifier, 0, len(indices))
	for _, index := range indices {
		signers = append(signers, identities[index].NodeID)
	}

	s.completed = true
	proof := &model.ProofOfStore{
		Info:                s.info,
		Signers:             signers,
		AggregatedSignature: aggregated,
	}
	return proof, nil
}
