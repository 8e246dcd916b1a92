package model

import (
	"github.com/onflow/crypto"
)

// SignedBatchInfo is a validator's acknowledgement that it durably stores
// the batch described by Info. The signature covers Info.SignableBytes()
// under the batch acknowledgement domain tag.
type SignedBatchInfo struct {
	Info      BatchInfo
	Signer    Identifier
	Signature crypto.Signature
}

// ProofOfStore certifies that a quorum of validators, by stake, have
// durably stored the referenced batch. It is immutable once constructed and
// is the artifact handed to consensus in place of the batch payload.
type ProofOfStore struct {
	Info BatchInfo
	// Signers lists the node IDs whose signatures are aggregated, in
	// canonical committee order.
	Signers []Identifier
	// AggregatedSignature is the BLS multi-signature of all signers over
	// the signable encoding of Info.
	AggregatedSignature crypto.Signature
}

// Digest returns the digest of the certified batch.
func (p *ProofOfStore) Digest() Identifier {
	return p.Info.Digest
}
