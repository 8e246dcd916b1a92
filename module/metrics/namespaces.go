package metrics

// Prometheus namespace and subsystems for the quorum store.
const (
	namespaceQuorumStore = "quorumstore"

	subsystemBatchStore = "batchstore"
	subsystemReader     = "reader"
	subsystemProofs     = "proofs"
)
