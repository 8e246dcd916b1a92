package module

import (
	"time"

	"github.com/dapperlabs/quorumstore/model"
)

// QuorumStoreMetrics is the metrics sink for the quorum store subsystem.
// Implementations must be non-blocking; all methods may be called from hot
// paths. The sink is injected at construction so tests can observe counts
// without global state.
type QuorumStoreMetrics interface {
	// BatchSaved is called when a batch is admitted to the store.
	BatchSaved(numBytes uint64, mode model.StorageMode)

	// BatchSaveRejected is called when a save fails validation (wrong epoch
	// or expiration outside the certified-round window).
	BatchSaveRejected()

	// QuotaExceeded is called when an author's quota rejects an admission.
	QuotaExceeded()

	// BatchesExpired is called with the number of batches swept by one
	// certified-round update.
	BatchesExpired(count int)

	// LocalBatchServed is called when a batch lookup is answered from the
	// local store.
	LocalBatchServed()

	// RemoteBatchRequested is called when a missing batch triggers a
	// network request.
	RemoteBatchRequested()

	// RemoteBatchFetched is called when a remote fetch completes, with the
	// time from first request to fulfillment.
	RemoteBatchFetched(duration time.Duration)

	// RemoteBatchFailed is called when a remote fetch exhausts its retries.
	RemoteBatchFailed()

	// SignatureReceived is called per incoming batch acknowledgement.
	SignatureReceived()

	// InvalidSignature is called when an acknowledgement fails validation.
	InvalidSignature()

	// ProofCompleted is called when an aggregation reaches quorum and a
	// proof of store is emitted.
	ProofCompleted(duration time.Duration)

	// ProofTimeout is called when a self-voted aggregation expires before
	// reaching quorum. Aggregations without a self vote are late-vote
	// artifacts and are not reported here.
	ProofTimeout()

	// BatchCommitted is called per commit notification, recording whether
	// the aggregation had completed when consensus committed the batch.
	BatchCommitted(completed bool)
}
