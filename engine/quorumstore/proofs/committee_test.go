package proofs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dapperlabs/quorumstore/model"
	"github.com/dapperlabs/quorumstore/utils/unittest"
)

func TestStaticCommittee(t *testing.T) {
	identities := unittest.IdentityListFixture(5)
	committee, err := NewStaticCommittee(identities)
	require.NoError(t, err)

	// identities are held in canonical order and indices match it
	sorted := identities.Sort()
	assert.Equal(t, sorted, committee.Identities())
	for i, identity := range sorted {
		index, ok := committee.SignerIndex(identity.NodeID)
		require.True(t, ok)
		assert.Equal(t, i, index)

		member, ok := committee.Identity(identity.NodeID)
		require.True(t, ok)
		assert.Equal(t, identity, member)
	}

	_, ok := committee.Identity(unittest.IdentifierFixture())
	assert.False(t, ok)

	assert.Equal(t, model.QuorumThreshold(identities.TotalStake()), committee.QuorumThreshold())
}

func TestStaticCommittee_RejectsInvalidSets(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, err := NewStaticCommittee(nil)
		assert.Error(t, err)
	})

	t.Run("zero stake", func(t *testing.T) {
		identities := unittest.IdentityListFixture(3)
		identities[1].Stake = 0
		_, err := NewStaticCommittee(identities)
		assert.Error(t, err)
	})

	t.Run("duplicate member", func(t *testing.T) {
		identities := unittest.IdentityListFixture(3)
		identities[2] = identities[0]
		_, err := NewStaticCommittee(identities)
		assert.Error(t, err)
	})
}
