package proofs

import (
	"testing"
	"time"

	"github.com/onflow/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dapperlabs/quorumstore/model"
	"github.com/dapperlabs/quorumstore/module/metrics"
	"github.com/dapperlabs/quorumstore/module/signature"
	"github.com/dapperlabs/quorumstore/utils/unittest"
)

// containsAll is a batch validator that holds every digest.
type containsAll struct{}

func (containsAll) Contains(model.Identifier) bool { return true }

// containsNone is a batch validator that holds no digest.
type containsNone struct{}

func (containsNone) Contains(model.Identifier) bool { return false }

// testCommittee is a committee with known staking keys, able to produce
// acknowledgements on behalf of any member.
type testCommittee struct {
	*StaticCommittee
	keys map[model.Identifier]crypto.PrivateKey
}

func committeeFixture(t *testing.T, n int, opts ...func(*model.Identity)) *testCommittee {
	keys := make(map[model.Identifier]crypto.PrivateKey, n)
	identities := make(model.IdentityList, 0, n)
	for i := 0; i < n; i++ {
		sk := unittest.StakingKeyFixture()
		identity := unittest.IdentityFixture(append(opts, unittest.WithStakingKey(sk.PublicKey()))...)
		keys[identity.NodeID] = sk
		identities = append(identities, identity)
	}
	committee, err := NewStaticCommittee(identities)
	require.NoError(t, err)
	return &testCommittee{StaticCommittee: committee, keys: keys}
}

// ack produces a valid signed acknowledgement of info by the given member.
func (tc *testCommittee) ack(t *testing.T, signer model.Identifier, info model.BatchInfo) *model.SignedBatchInfo {
	sk, ok := tc.keys[signer]
	require.True(t, ok, "unknown test signer")
	hasher := signature.NewBLSHasher(signature.BatchAckTag)
	sig, err := sk.Sign(info.SignableBytes(), hasher)
	require.NoError(t, err)
	return &model.SignedBatchInfo{Info: info, Signer: signer, Signature: sig}
}

func newTestCore(t *testing.T, committee *testCommittee, me model.Identifier, batches BatchValidator, timeout time.Duration) *Core {
	core, err := NewCore(unittest.Logger(), metrics.NewNoopCollector(), me, committee, batches, timeout)
	require.NoError(t, err)
	return core
}

func batchInfoFixture(t *testing.T, author model.Identifier) model.BatchInfo {
	return unittest.BatchFixture(t, unittest.WithAuthor(author)).Info
}

// TestCore_QuorumExactlyOnce checks the central contract: the proof is
// emitted on exactly the acknowledgement that crosses the quorum threshold,
// and never again.
func TestCore_QuorumExactlyOnce(t *testing.T) {
	committee := committeeFixture(t, 4)
	me := committee.Identities()[0].NodeID
	core := newTestCore(t, committee, me, containsAll{}, time.Minute)

	info := batchInfoFixture(t, me)
	core.RegisterBatch(info)

	// equal stakes of 1000: threshold 2667 needs three signers
	members := committee.Identities().NodeIDs()
	for _, signer := range members[:2] {
		proof, err := core.AddSignature(committee.ack(t, signer, info))
		require.NoError(t, err)
		assert.Nil(t, proof)
	}

	proof, err := core.AddSignature(committee.ack(t, members[2], info))
	require.NoError(t, err)
	require.NotNil(t, proof)
	assert.Equal(t, info, proof.Info)
	assert.ElementsMatch(t, members[:3], proof.Signers)

	valid, err := Verify(proof, committee)
	require.NoError(t, err)
	assert.True(t, valid)

	// the fourth acknowledgement lands on a completed aggregation
	proof, err = core.AddSignature(committee.ack(t, members[3], info))
	require.NoError(t, err)
	assert.Nil(t, proof)

	cached, ok := core.CompletedProof(info.Digest)
	require.True(t, ok)
	assert.Equal(t, info.Digest, cached.Digest())
}

// TestCore_TwoOfThreeQuorum checks the quorum arithmetic on the smallest
// interesting committee: three validators of equal weight one. Two thirds of
// the total stake is exactly two, so the second acknowledgement completes
// the proof and the first does not.
func TestCore_TwoOfThreeQuorum(t *testing.T) {
	committee := committeeFixture(t, 3, unittest.WithStake(1))
	me := committee.Identities()[0].NodeID
	core := newTestCore(t, committee, me, containsAll{}, time.Minute)

	require.Equal(t, uint64(2), committee.QuorumThreshold())

	info := batchInfoFixture(t, me)
	core.RegisterBatch(info)

	members := committee.Identities().NodeIDs()
	proof, err := core.AddSignature(committee.ack(t, me, info))
	require.NoError(t, err)
	assert.Nil(t, proof)

	proof, err = core.AddSignature(committee.ack(t, members[1], info))
	require.NoError(t, err)
	require.NotNil(t, proof)
	assert.Len(t, proof.Signers, 2)

	proof, err = core.AddSignature(committee.ack(t, members[2], info))
	require.NoError(t, err)
	assert.Nil(t, proof)
}

// TestCore_DuplicateSigner checks that a repeated acknowledgement neither
// errors nor double-counts the signer's stake.
func TestCore_DuplicateSigner(t *testing.T) {
	committee := committeeFixture(t, 4)
	me := committee.Identities()[0].NodeID
	core := newTestCore(t, committee, me, containsAll{}, time.Minute)

	info := batchInfoFixture(t, me)
	core.RegisterBatch(info)

	signer := committee.Identities()[1].NodeID
	for i := 0; i < 3; i++ {
		proof, err := core.AddSignature(committee.ack(t, signer, info))
		require.NoError(t, err)
		assert.Nil(t, proof, "one signer's stake must not reach quorum")
	}
}

func TestCore_RejectsWrongAuthor(t *testing.T) {
	committee := committeeFixture(t, 4)
	me := committee.Identities()[0].NodeID
	other := committee.Identities()[1].NodeID
	core := newTestCore(t, committee, me, containsAll{}, time.Minute)

	info := batchInfoFixture(t, other)
	_, err := core.AddSignature(committee.ack(t, other, info))
	assert.ErrorIs(t, err, ErrWrongAuthor)
}

func TestCore_RejectsMissingBatch(t *testing.T) {
	committee := committeeFixture(t, 4)
	me := committee.Identities()[0].NodeID
	core := newTestCore(t, committee, me, containsNone{}, time.Minute)

	info := batchInfoFixture(t, me)
	core.RegisterBatch(info)

	_, err := core.AddSignature(committee.ack(t, me, info))
	assert.ErrorIs(t, err, ErrBatchNotFound)
}

func TestCore_RejectsUnregisteredBatch(t *testing.T) {
	committee := committeeFixture(t, 4)
	me := committee.Identities()[0].NodeID
	core := newTestCore(t, committee, me, containsAll{}, time.Minute)

	// no RegisterBatch call for this info
	info := batchInfoFixture(t, me)
	_, err := core.AddSignature(committee.ack(t, me, info))
	assert.ErrorIs(t, err, ErrNoTimestamp)
}

func TestCore_RejectsUnknownSigner(t *testing.T) {
	committee := committeeFixture(t, 4)
	me := committee.Identities()[0].NodeID
	core := newTestCore(t, committee, me, containsAll{}, time.Minute)

	info := batchInfoFixture(t, me)
	core.RegisterBatch(info)

	outsider := committeeFixture(t, 1)
	signed := outsider.ack(t, outsider.Identities()[0].NodeID, info)
	_, err := core.AddSignature(signed)
	assert.ErrorIs(t, err, ErrUnknownSigner)
}

func TestCore_RejectsInvalidSignature(t *testing.T) {
	committee := committeeFixture(t, 4)
	me := committee.Identities()[0].NodeID
	core := newTestCore(t, committee, me, containsAll{}, time.Minute)

	info := batchInfoFixture(t, me)
	core.RegisterBatch(info)

	// a valid signature by the right signer over the wrong message
	wrongInfo := batchInfoFixture(t, me)
	signer := committee.Identities()[1].NodeID
	forged := committee.ack(t, signer, wrongInfo)
	forged.Info = info

	_, err := core.AddSignature(forged)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

// TestCore_RejectsInfoMismatch checks that acknowledgements carrying
// different metadata for a digest already under aggregation are rejected.
func TestCore_RejectsInfoMismatch(t *testing.T) {
	committee := committeeFixture(t, 4)
	me := committee.Identities()[0].NodeID
	core := newTestCore(t, committee, me, containsAll{}, time.Minute)

	info := batchInfoFixture(t, me)
	core.RegisterBatch(info)

	_, err := core.AddSignature(committee.ack(t, me, info))
	require.NoError(t, err)

	mutated := info
	mutated.Expiration.Round++
	_, err = core.AddSignature(committee.ack(t, committee.Identities()[1].NodeID, mutated))
	assert.True(t, IsInfoMismatchError(err))
}

// TestCore_TimeoutThenReinitialize checks that sweeping an incomplete
// aggregation does not orphan the batch: a late acknowledgement opens a
// fresh aggregation and the proof can still complete.
func TestCore_TimeoutThenReinitialize(t *testing.T) {
	committee := committeeFixture(t, 4)
	me := committee.Identities()[0].NodeID
	core := newTestCore(t, committee, me, containsAll{}, time.Minute)

	info := batchInfoFixture(t, me)
	core.RegisterBatch(info)

	members := committee.Identities().NodeIDs()
	_, err := core.AddSignature(committee.ack(t, members[0], info))
	require.NoError(t, err)

	// age the aggregation past the proof timeout, but keep the creation
	// timestamp within its retention window
	core.mu.Lock()
	core.states[info.Digest].created = time.Now().Add(-2 * time.Minute)
	core.mu.Unlock()
	core.HandleTimeouts()

	// the swept share is gone; quorum needs three fresh acknowledgements
	for _, signer := range members[:2] {
		proof, err := core.AddSignature(committee.ack(t, signer, info))
		require.NoError(t, err)
		assert.Nil(t, proof)
	}
	proof, err := core.AddSignature(committee.ack(t, members[2], info))
	require.NoError(t, err)
	assert.NotNil(t, proof)
}

// TestCore_TimestampExpiry checks that the creation timestamp of a batch
// that never commits is released after its retention window, and that
// acknowledgements arriving past it are rejected as unregistered.
func TestCore_TimestampExpiry(t *testing.T) {
	committee := committeeFixture(t, 4)
	me := committee.Identities()[0].NodeID
	core := newTestCore(t, committee, me, containsAll{}, time.Minute)

	stale := batchInfoFixture(t, me)
	fresh := batchInfoFixture(t, me)
	core.RegisterBatch(stale)
	core.RegisterBatch(fresh)

	core.mu.Lock()
	core.timestamps[stale.Digest] = time.Now().Add(-5 * time.Minute)
	core.mu.Unlock()
	core.HandleTimeouts()

	core.mu.Lock()
	_, staleKept := core.timestamps[stale.Digest]
	_, freshKept := core.timestamps[fresh.Digest]
	core.mu.Unlock()
	assert.False(t, staleKept)
	assert.True(t, freshKept)

	_, err := core.AddSignature(committee.ack(t, me, stale))
	assert.ErrorIs(t, err, ErrNoTimestamp)
	_, err = core.AddSignature(committee.ack(t, me, fresh))
	assert.NoError(t, err)
}

// TestCore_TimestampRetainedWhileAggregating checks that the sweep never
// releases the timestamp of a batch with a live aggregation, however old.
func TestCore_TimestampRetainedWhileAggregating(t *testing.T) {
	committee := committeeFixture(t, 4)
	me := committee.Identities()[0].NodeID
	core := newTestCore(t, committee, me, containsAll{}, time.Minute)

	info := batchInfoFixture(t, me)
	core.RegisterBatch(info)
	_, err := core.AddSignature(committee.ack(t, me, info))
	require.NoError(t, err)

	core.mu.Lock()
	core.timestamps[info.Digest] = time.Now().Add(-5 * time.Minute)
	core.mu.Unlock()
	core.HandleTimeouts()

	core.mu.Lock()
	_, kept := core.timestamps[info.Digest]
	core.mu.Unlock()
	assert.True(t, kept)
}

// TestCore_NotifyCommit checks that a commit notification releases the
// aggregation state and its timestamp; acknowledgements arriving after the
// commit are rejected as unregistered.
func TestCore_NotifyCommit(t *testing.T) {
	committee := committeeFixture(t, 4)
	me := committee.Identities()[0].NodeID
	core := newTestCore(t, committee, me, containsAll{}, time.Minute)

	info := batchInfoFixture(t, me)
	core.RegisterBatch(info)

	_, err := core.AddSignature(committee.ack(t, me, info))
	require.NoError(t, err)

	core.NotifyCommit([]model.BatchInfo{info})

	_, err = core.AddSignature(committee.ack(t, committee.Identities()[1].NodeID, info))
	assert.ErrorIs(t, err, ErrNoTimestamp)
}

// TestVerify_RejectsTamperedProofs checks the standalone proof
// verification against membership, stake and signature tampering.
func TestVerify_RejectsTamperedProofs(t *testing.T) {
	committee := committeeFixture(t, 4)
	me := committee.Identities()[0].NodeID
	core := newTestCore(t, committee, me, containsAll{}, time.Minute)

	info := batchInfoFixture(t, me)
	core.RegisterBatch(info)

	members := committee.Identities().NodeIDs()
	var proof *model.ProofOfStore
	for _, signer := range members[:3] {
		var err error
		proof, err = core.AddSignature(committee.ack(t, signer, info))
		require.NoError(t, err)
	}
	require.NotNil(t, proof)

	t.Run("unknown signer", func(t *testing.T) {
		tampered := *proof
		tampered.Signers = append([]model.Identifier{unittest.IdentifierFixture()}, proof.Signers[1:]...)
		valid, err := Verify(&tampered, committee)
		require.NoError(t, err)
		assert.False(t, valid)
	})

	t.Run("duplicated signer", func(t *testing.T) {
		tampered := *proof
		tampered.Signers = []model.Identifier{proof.Signers[0], proof.Signers[0], proof.Signers[1]}
		valid, err := Verify(&tampered, committee)
		require.NoError(t, err)
		assert.False(t, valid)
	})

	t.Run("insufficient stake", func(t *testing.T) {
		tampered := *proof
		tampered.Signers = proof.Signers[:2]
		valid, err := Verify(&tampered, committee)
		require.NoError(t, err)
		assert.False(t, valid)
	})

	t.Run("wrong message", func(t *testing.T) {
		tampered := *proof
		tampered.Info.Expiration.Round++
		valid, err := Verify(&tampered, committee)
		require.NoError(t, err)
		assert.False(t, valid)
	})
}

// TestState_FinalizeTwicePanics checks that no code path may aggregate the
// same state twice.
func TestState_FinalizeTwicePanics(t *testing.T) {
	committee := committeeFixture(t, 4)
	me := committee.Identities()[0].NodeID
	info := batchInfoFixture(t, me)

	state, err := newIncrementalProofState(info, committee, time.Now())
	require.NoError(t, err)

	for i, identity := range committee.Identities() {
		signed := committee.ack(t, identity.NodeID, info)
		counted, err := state.addSignature(i, identity.Stake, identity.NodeID == me, signed.Signature)
		require.NoError(t, err)
		require.True(t, counted)
	}

	_, err = state.finalize(committee)
	require.NoError(t, err)
	assert.Panics(t, func() {
		_, _ = state.finalize(committee)
	})
}
