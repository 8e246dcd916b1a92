// Package messages holds the events exchanged between quorum store
// participants over the network conduit. The conduit implementation owns
// the wire encoding; these types only fix request/response semantics.
package messages

import (
	"github.com/dapperlabs/quorumstore/model"
)

// BatchMessage disseminates a freshly built batch to all validators for
// storage and acknowledgement.
type BatchMessage struct {
	Batch *model.Batch
}

// BatchRequest asks a peer for the payload of a batch it has signed for.
type BatchRequest struct {
	Digest model.Identifier
	Nonce  uint64
}

// BatchResponse answers a BatchRequest with the payload of the requested
// batch.
type BatchResponse struct {
	Digest  model.Identifier
	Payload model.Payload
}

// SignedBatchInfoMessage carries a batch acknowledgement back to the batch
// author for proof aggregation.
type SignedBatchInfoMessage struct {
	Signed *model.SignedBatchInfo
}

// ProofOfStoreMessage broadcasts a completed proof to all validators.
type ProofOfStoreMessage struct {
	Proof *model.ProofOfStore
}
