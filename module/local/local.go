// Package local implements the node's local identity: its node ID and the
// staking key used to sign batch acknowledgements.
package local

import (
	"github.com/onflow/crypto"
	"github.com/onflow/crypto/hash"

	"github.com/dapperlabs/quorumstore/model"
	"github.com/dapperlabs/quorumstore/module"
)

type Local struct {
	nodeID model.Identifier
	sk     crypto.PrivateKey // instance of the node's staking key
}

var _ module.Local = (*Local)(nil)

func New(nodeID model.Identifier, sk crypto.PrivateKey) *Local {
	return &Local{
		nodeID: nodeID,
		sk:     sk,
	}
}

func (l *Local) NodeID() model.Identifier {
	return l.nodeID
}

func (l *Local) Sign(msg []byte, hasher hash.Hasher) (crypto.Signature, error) {
	return l.sk.Sign(msg, hasher)
}
