package model

import (
	"bytes"
	"fmt"
	"math/rand"
	"sort"

	"github.com/onflow/crypto"
)

// Identity represents one validator of the current epoch, with the stake
// backing its votes and the staking key its batch acknowledgements are
// verified against.
type Identity struct {
	NodeID     Identifier
	Address    string
	Stake      uint64
	StakingKey crypto.PublicKey
}

// String returns a string representation of the identity.
func (iy Identity) String() string {
	return fmt.Sprintf("%s@%s=%d", iy.NodeID, iy.Address, iy.Stake)
}

// ID returns a unique identifier for the identity.
func (iy Identity) ID() Identifier {
	return iy.NodeID
}

// IdentityList is a list of validator identities. Functions expecting
// canonical order rely on Sort having been applied (ascending node ID).
type IdentityList []*Identity

// NodeIDs returns the list of node IDs in list order.
func (il IdentityList) NodeIDs() []Identifier {
	nodeIDs := make([]Identifier, 0, len(il))
	for _, iy := range il {
		nodeIDs = append(nodeIDs, iy.NodeID)
	}
	return nodeIDs
}

// ByNodeID returns the identity with the given node ID, if it exists.
func (il IdentityList) ByNodeID(nodeID Identifier) (*Identity, bool) {
	for _, iy := range il {
		if iy.NodeID == nodeID {
			return iy, true
		}
	}
	return nil, false
}

// TotalStake returns the total stake of all identities in the list.
func (il IdentityList) TotalStake() uint64 {
	var total uint64
	for _, iy := range il {
		total += iy.Stake
	}
	return total
}

// StakingKeys returns the staking public keys in list order.
func (il IdentityList) StakingKeys() []crypto.PublicKey {
	keys := make([]crypto.PublicKey, 0, len(il))
	for _, iy := range il {
		keys = append(keys, iy.StakingKey)
	}
	return keys
}

// Sort returns a copy of the list sorted into canonical order.
func (il IdentityList) Sort() IdentityList {
	dup := make(IdentityList, len(il))
	copy(dup, il)
	sort.Slice(dup, func(i int, j int) bool {
		return bytes.Compare(dup[i].NodeID[:], dup[j].NodeID[:]) < 0
	})
	return dup
}

// Sample returns a random sample of count identities, or the full list if it
// holds fewer than count entries.
func (il IdentityList) Sample(count uint) IdentityList {
	if uint(len(il)) < count {
		count = uint(len(il))
	}
	dup := make(IdentityList, len(il))
	copy(dup, il)
	rand.Shuffle(len(dup), func(i int, j int) {
		dup[i], dup[j] = dup[j], dup[i]
	})
	return dup[:count]
}

// Filter returns a new list containing only identities for which the given
// predicate holds.
func (il IdentityList) Filter(keep func(*Identity) bool) IdentityList {
	var dup IdentityList
	for _, iy := range il {
		if keep(iy) {
			dup = append(dup, iy)
		}
	}
	return dup
}

// QuorumThreshold returns the minimum cumulative stake required for a
// Byzantine-fault-tolerant quorum, given the total stake of the validator
// set: the smallest integer no less than two thirds of the total.
func QuorumThreshold(totalStake uint64) uint64 {
	return (totalStake*2 + 2) / 3
}
