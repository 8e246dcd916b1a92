// Package unittest provides test fixtures for quorum store entities.
package unittest

import (
	"crypto/rand"
	"fmt"
	"testing"

	"github.com/onflow/crypto"
	"github.com/stretchr/testify/require"

	"github.com/dapperlabs/quorumstore/model"
	"github.com/dapperlabs/quorumstore/module/local"
)

// IdentifierFixture returns a random identifier.
func IdentifierFixture() model.Identifier {
	var id model.Identifier
	_, _ = rand.Read(id[:])
	return id
}

// IdentifierListFixture returns n random identifiers.
func IdentifierListFixture(n int) []model.Identifier {
	ids := make([]model.Identifier, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, IdentifierFixture())
	}
	return ids
}

// StakingKeyFixture returns a fresh BLS private key.
func StakingKeyFixture() crypto.PrivateKey {
	seed := make([]byte, crypto.KeyGenSeedMinLen)
	_, _ = rand.Read(seed)
	sk, err := crypto.GeneratePrivateKey(crypto.BLSBLS12381, seed)
	if err != nil {
		panic(fmt.Sprintf("could not generate staking key: %s", err))
	}
	return sk
}

func IdentityFixture(opts ...func(*model.Identity)) *model.Identity {
	nodeID := IdentifierFixture()
	identity := &model.Identity{
		NodeID:     nodeID,
		Address:    fmt.Sprintf("address-%x", nodeID[:7]),
		Stake:      1000,
		StakingKey: StakingKeyFixture().PublicKey(),
	}
	for _, opt := range opts {
		opt(identity)
	}
	return identity
}

func WithStake(stake uint64) func(*model.Identity) {
	return func(identity *model.Identity) {
		identity.Stake = stake
	}
}

func WithNodeID(nodeID model.Identifier) func(*model.Identity) {
	return func(identity *model.Identity) {
		identity.NodeID = nodeID
	}
}

func WithStakingKey(pk crypto.PublicKey) func(*model.Identity) {
	return func(identity *model.Identity) {
		identity.StakingKey = pk
	}
}

func IdentityListFixture(n int, opts ...func(*model.Identity)) model.IdentityList {
	identities := make(model.IdentityList, 0, n)
	for i := 0; i < n; i++ {
		identities = append(identities, IdentityFixture(opts...))
	}
	return identities
}

// LocalFixture returns a local identity with a fresh staking key, plus the
// matching committee identity.
func LocalFixture(t *testing.T, opts ...func(*model.Identity)) (*local.Local, *model.Identity) {
	sk := StakingKeyFixture()
	identity := IdentityFixture(opts...)
	identity.StakingKey = sk.PublicKey()
	me := local.New(identity.NodeID, sk)
	require.Equal(t, identity.NodeID, me.NodeID())
	return me, identity
}

// TransactionFixture returns an opaque transaction of the given size.
func TransactionFixture(size int) model.Transaction {
	txn := make([]byte, size)
	_, _ = rand.Read(txn)
	return txn
}

// PayloadFixture returns a payload of n random transactions of 32 bytes
// each.
func PayloadFixture(n int) model.Payload {
	payload := make(model.Payload, 0, n)
	for i := 0; i < n; i++ {
		payload = append(payload, TransactionFixture(32))
	}
	return payload
}

func BatchFixture(t *testing.T, opts ...func(*model.Batch)) *model.Batch {
	batch, err := model.NewBatch(
		IdentifierFixture(),
		1,
		model.CertifiedRound{Epoch: 1, Round: 10},
		PayloadFixture(3),
	)
	require.NoError(t, err)
	for _, opt := range opts {
		opt(batch)
	}
	return batch
}

func WithAuthor(author model.Identifier) func(*model.Batch) {
	return func(batch *model.Batch) {
		batch.Info.Author = author
	}
}

func WithExpiration(epoch uint64, round uint64) func(*model.Batch) {
	return func(batch *model.Batch) {
		batch.Info.Epoch = epoch
		batch.Info.Expiration = model.CertifiedRound{Epoch: epoch, Round: round}
	}
}

func PersistedValueFixture(t *testing.T, opts ...func(*model.Batch)) *model.PersistedValue {
	return BatchFixture(t, opts...).AsPersisted()
}
