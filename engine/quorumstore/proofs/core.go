// Package proofs implements the proof coordinator: per-batch aggregation
// of validator acknowledgements into a quorum-signed proof of store.
package proofs

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"

	"github.com/dapperlabs/quorumstore/model"
	"github.com/dapperlabs/quorumstore/module"
)

// completedProofCacheSize bounds the cache of recently completed proofs,
// kept for rebroadcast to laggards.
const completedProofCacheSize = 1_000

// timestampRetentionFactor bounds how long a batch creation timestamp
// outlives its aggregation state, as a multiple of the proof timeout. Within
// the window a late acknowledgement re-initializes the aggregation; past it
// the entry is released so uncommitted batches cannot accumulate forever.
const timestampRetentionFactor = 4

// BatchValidator answers whether a self-authored batch is held by the local
// store. Implemented by the batch store.
type BatchValidator interface {
	Contains(digest model.Identifier) bool
}

// Core implements the aggregation logic of the proof coordinator. Per
// BatchInfo it maintains an incremental proof state, accrues validated
// acknowledgement stake, and emits a proof of store exactly once when the
// quorum threshold is crossed. All methods are safe for concurrent use.
type Core struct {
	mu        sync.Mutex
	log       zerolog.Logger
	metrics   module.QuorumStoreMetrics
	me        model.Identifier
	committee Committee
	batches   BatchValidator
	timeout   time.Duration

	// states are keyed by batch digest; the stored info detects
	// mismatched metadata for the same digest
	states     map[model.Identifier]*incrementalProofState
	timestamps map[model.Identifier]time.Time
	completed  *lru.Cache // digest -> *model.ProofOfStore
}

func NewCore(
	log zerolog.Logger,
	metrics module.QuorumStoreMetrics,
	me model.Identifier,
	committee Committee,
	batches BatchValidator,
	timeout time.Duration,
) (*Core, error) {

	completed, err := lru.New(completedProofCacheSize)
	if err != nil {
		return nil, fmt.Errorf("could not create completed proof cache: %w", err)
	}

	c := &Core{
		log:        log.With().Str("component", "proof_coordinator").Logger(),
		metrics:    metrics,
		me:         me,
		committee:  committee,
		batches:    batches,
		timeout:    timeout,
		states:     make(map[model.Identifier]*incrementalProofState),
		timestamps: make(map[model.Identifier]time.Time),
		completed:  completed,
	}
	return c, nil
}

// RegisterBatch records the creation timestamp of a self-authored batch.
// It must be called by the batch creation path before any acknowledgement
// for the batch can arrive.
func (c *Core) RegisterBatch(info model.BatchInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.timestamps[info.Digest]; !ok {
		c.timestamps[info.Digest] = time.Now()
	}
}

// AddSignature processes one batch acknowledgement. It returns the
// completed proof of store when this signature crosses the quorum
// threshold, and nil in every other successful case: stake still below
// quorum, duplicate signer, or an aggregation already completed.
//
// Error returns (all recoverable; the message is discarded):
//   - ErrWrongAuthor: the batch is not authored by this node
//   - ErrBatchNotFound: the local store does not hold the batch
//   - ErrNoTimestamp: no creation timestamp was recorded for the batch
//   - ErrUnknownSigner: the signer is not a committee member
//   - ErrInvalidSignature: the signature does not verify
//   - InfoMismatchError: the info differs from the one under aggregation
func (c *Core) AddSignature(signed *model.SignedBatchInfo) (*model.ProofOfStore, error) {
	c.metrics.SignatureReceived()

	c.mu.Lock()
	defer c.mu.Unlock()

	digest := signed.Info.Digest

	state, ok := c.states[digest]
	if !ok {
		var err error
		state, err = c.initState(signed.Info)
		if err != nil {
			c.metrics.InvalidSignature()
			return nil, err
		}
	} else if state.info != signed.Info {
		c.metrics.InvalidSignature()
		return nil, InfoMismatchError{Digest: digest}
	}

	if state.completed {
		return nil, nil
	}

	identity, ok := c.committee.Identity(signed.Signer)
	if !ok {
		c.metrics.InvalidSignature()
		return nil, fmt.Errorf("signer (%x): %w", signed.Signer, ErrUnknownSigner)
	}
	signerIndex, _ := c.committee.SignerIndex(signed.Signer)

	counted, err := state.addSignature(signerIndex, identity.Stake, signed.Signer == c.me, signed.Signature)
	if err != nil {
		c.metrics.InvalidSignature()
		return nil, fmt.Errorf("signer (%x), digest (%x): %w", signed.Signer, digest, err)
	}
	if !counted {
		// duplicate share, already accounted
		return nil, nil
	}

	if !state.reachedQuorum(c.committee.QuorumThreshold()) {
		return nil, nil
	}

	proof, err := state.finalize(c.committee)
	if err != nil {
		// the aggregate did not verify; remain collecting with the stake
		// bookkeeping of prior valid shares intact
		c.log.Warn().Err(err).Hex("digest", digest[:]).Msg("proof aggregation failed, still collecting")
		return nil, err
	}

	c.completed.Add(digest, proof)
	c.metrics.ProofCompleted(time.Since(state.created))
	c.log.Debug().
		Hex("digest", digest[:]).
		Int("signers", len(proof.Signers)).
		Msg("proof of store completed")

	return proof, nil
}

// initState opens an aggregation for a first acknowledgement. The batch
// must be authored by this node, be present in the local store, and have a
// recorded creation timestamp.
//
// An aggregation that previously timed out is re-initialized here by any
// late acknowledgement, completed or not; see HandleTimeouts.
func (c *Core) initState(info model.BatchInfo) (*incrementalProofState, error) {

	if info.Author != c.me {
		return nil, fmt.Errorf("batch author (%x), local node (%x): %w", info.Author, c.me, ErrWrongAuthor)
	}
	if !c.batches.Contains(info.Digest) {
		return nil, fmt.Errorf("digest (%x): %w", info.Digest, ErrBatchNotFound)
	}
	if _, ok := c.timestamps[info.Digest]; !ok {
		return nil, fmt.Errorf("digest (%x): %w", info.Digest, ErrNoTimestamp)
	}

	state, err := newIncrementalProofState(info, c.committee, time.Now())
	if err != nil {
		return nil, fmt.Errorf("could not initialize proof state: %w", err)
	}
	c.states[info.Digest] = state
	return state, nil
}

// HandleTimeouts removes aggregation states older than the proof timeout.
// A removed state that carried a self vote but never completed is a
// genuine proof creation failure; states without a self vote are late-vote
// artifacts and are not reported. No partial proof is ever emitted.
//
// The batch's creation timestamp outlives the state, so a late
// acknowledgement after expiry re-initializes the aggregation instead of
// erroring. Timestamps are released on commit notification, or here once
// they exceed timestampRetentionFactor proof timeouts without a commit, so
// batches that never commit do not leak entries.
func (c *Core) HandleTimeouts() {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-c.timeout)
	for digest, state := range c.states {
		if state.created.After(cutoff) {
			continue
		}
		delete(c.states, digest)
		if state.completed {
			continue
		}
		if !state.selfVoted {
			c.log.Debug().Hex("digest", digest[:]).Msg("dropping late-vote aggregation state")
			continue
		}
		c.metrics.ProofTimeout()
		c.log.Warn().
			Hex("digest", digest[:]).
			Uint64("stake", state.stake).
			Msg("proof aggregation timed out below quorum")
	}

	retentionCutoff := time.Now().Add(-timestampRetentionFactor * c.timeout)
	for digest, created := range c.timestamps {
		if created.After(retentionCutoff) {
			continue
		}
		if _, live := c.states[digest]; live {
			continue
		}
		delete(c.timestamps, digest)
		c.log.Debug().Hex("digest", digest[:]).Msg("releasing creation timestamp of uncommitted batch")
	}
}

// NotifyCommit records, per committed batch, whether the local aggregation
// had completed, and releases its state. Commit notifications never
// construct a proof.
func (c *Core) NotifyCommit(infos []model.BatchInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, info := range infos {
		state, ok := c.states[info.Digest]
		if !ok {
			continue
		}
		c.metrics.BatchCommitted(state.completed)
		delete(c.states, info.Digest)
		delete(c.timestamps, info.Digest)
	}
}

// CompletedProof returns the cached proof for the digest, if one was
// completed recently.
func (c *Core) CompletedProof(digest model.Identifier) (*model.ProofOfStore, bool) {
	cached, ok := c.completed.Get(digest)
	if !ok {
		return nil, false
	}
	return cached.(*model.ProofOfStore), true
}
