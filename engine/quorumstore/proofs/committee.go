package proofs

import (
	"fmt"

	"github.com/dapperlabs/quorumstore/model"
)

// Committee supplies the validator set the coordinator verifies
// acknowledgements against: identities with their stake, the quorum
// threshold, and a canonical signer ordering for signature aggregation.
type Committee interface {
	// Identities returns the validator set in canonical order.
	Identities() model.IdentityList

	// Identity returns the identity of the given node, if it is a member.
	Identity(nodeID model.Identifier) (*model.Identity, bool)

	// SignerIndex returns the node's position in canonical order.
	SignerIndex(nodeID model.Identifier) (int, bool)

	// QuorumThreshold returns the cumulative stake required to certify a
	// batch.
	QuorumThreshold() uint64
}

// StaticCommittee is a Committee fixed at construction, serving a single
// epoch.
type StaticCommittee struct {
	identities model.IdentityList
	indices    map[model.Identifier]int
	threshold  uint64
}

var _ Committee = (*StaticCommittee)(nil)

// NewStaticCommittee builds a committee from the given validator set. The
// identities are sorted into canonical order; stakes must be non-zero.
func NewStaticCommittee(identities model.IdentityList) (*StaticCommittee, error) {
	if len(identities) == 0 {
		return nil, fmt.Errorf("committee must not be empty")
	}
	sorted := identities.Sort()
	indices := make(map[model.Identifier]int, len(sorted))
	for i, identity := range sorted {
		if identity.Stake == 0 {
			return nil, fmt.Errorf("validator (%x) has zero stake", identity.NodeID)
		}
		if _, ok := indices[identity.NodeID]; ok {
			return nil, fmt.Errorf("duplicate validator (%x)", identity.NodeID)
		}
		indices[identity.NodeID] = i
	}
	c := &StaticCommittee{
		identities: sorted,
		indices:    indices,
		threshold:  model.QuorumThreshold(sorted.TotalStake()),
	}
	return c, nil
}

func (c *StaticCommittee) Identities() model.IdentityList {
	return c.identities
}

func (c *StaticCommittee) Identity(nodeID model.Identifier) (*model.Identity, bool) {
	index, ok := c.indices[nodeID]
	if !ok {
		return nil, false
	}
	return c.identities[index], true
}

func (c *StaticCommittee) SignerIndex(nodeID model.Identifier) (int, bool) {
	index, ok := c.indices[nodeID]
	return index, ok
}

func (c *StaticCommittee) QuorumThreshold() uint64 {
	return c.threshold
}
