package signature

import (
	"github.com/onflow/crypto"
	"github.com/onflow/crypto/hash"
)

// List of domain separation tags for protocol signatures.
//
// Protocol-level signatures use the BLS signature scheme. Hashing entity
// bytes during the hash-to-curve operation includes a domain separation tag
// that scopes the signature to a specific sub-protocol, simulating
// orthogonal random oracles per use.

const protocolPrefix = "QS-"

const protocolVersion = "-V00-CS00-with-"

func tag(domain string) string {
	return protocolPrefix + domain + protocolVersion
}

var (
	// BatchAckTag is used for batch acknowledgement signatures, the shares
	// aggregated into a proof of store.
	BatchAckTag = tag("Batch_Ack")
)

// NewBLSHasher returns a hasher to be used for BLS signing and verifying.
// It abstracts the hasher details from the protocol logic.
//
// The hasher returned is the expand-message step in the BLS hash-to-curve.
// It uses a xof (extendable output function) based on KMAC128.
func NewBLSHasher(tag string) hash.Hasher {
	return crypto.NewExpandMsgXOFKMAC128(tag)
}
