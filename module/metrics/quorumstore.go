package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dapperlabs/quorumstore/model"
	"github.com/dapperlabs/quorumstore/module"
)

// QuorumStoreCollector reports quorum store metrics to prometheus.
type QuorumStoreCollector struct {
	batchesSaved         *prometheus.CounterVec
	batchBytesSaved      prometheus.Counter
	savesRejected        prometheus.Counter
	quotaExceeded        prometheus.Counter
	batchesExpired       prometheus.Counter
	localBatchesServed   prometheus.Counter
	remoteBatchesPending prometheus.Gauge
	remoteFetchDuration  prometheus.Histogram
	remoteFetchFailures  prometheus.Counter
	signaturesReceived   prometheus.Counter
	invalidSignatures    prometheus.Counter
	proofsCompleted      prometheus.Counter
	proofDuration        prometheus.Histogram
	proofTimeouts        prometheus.Counter
	commitsObserved      *prometheus.CounterVec
}

var _ module.QuorumStoreMetrics = (*QuorumStoreCollector)(nil)

func NewQuorumStoreCollector() *QuorumStoreCollector {

	qc := &QuorumStoreCollector{

		batchesSaved: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceQuorumStore,
			Subsystem: subsystemBatchStore,
			Name:      "batches_saved_total",
			Help:      "count of batches admitted to the store, by storage mode",
		}, []string{"mode"}),

		batchBytesSaved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceQuorumStore,
			Subsystem: subsystemBatchStore,
			Name:      "batch_bytes_saved_total",
			Help:      "total bytes of admitted batch payloads",
		}),

		savesRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceQuorumStore,
			Subsystem: subsystemBatchStore,
			Name:      "saves_rejected_total",
			Help:      "count of batch saves rejected by epoch or expiration-window validation",
		}),

		quotaExceeded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceQuorumStore,
			Subsystem: subsystemBatchStore,
			Name:      "quota_exceeded_total",
			Help:      "count of batch admissions rejected by an author quota",
		}),

		batchesExpired: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceQuorumStore,
			Subsystem: subsystemBatchStore,
			Name:      "batches_expired_total",
			Help:      "count of batches garbage collected by round expiration",
		}),

		localBatchesServed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceQuorumStore,
			Subsystem: subsystemReader,
			Name:      "local_batches_served_total",
			Help:      "count of batch lookups answered from the local store",
		}),

		remoteBatchesPending: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceQuorumStore,
			Subsystem: subsystemReader,
			Name:      "remote_batches_pending",
			Help:      "number of batch fetches currently awaiting a remote response",
		}),

		remoteFetchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespaceQuorumStore,
			Subsystem: subsystemReader,
			Buckets:   []float64{0.05, 0.2, 0.5, 1, 2, 5},
			Name:      "remote_fetch_duration_seconds",
			Help:      "time from first request of a missing batch to its fulfillment",
		}),

		remoteFetchFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceQuorumStore,
			Subsystem: subsystemReader,
			Name:      "remote_fetch_failures_total",
			Help:      "count of remote batch fetches that exhausted their retries",
		}),

		signaturesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceQuorumStore,
			Subsystem: subsystemProofs,
			Name:      "signatures_received_total",
			Help:      "count of batch acknowledgement signatures received",
		}),

		invalidSignatures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceQuorumStore,
			Subsystem: subsystemProofs,
			Name:      "invalid_signatures_total",
			Help:      "count of acknowledgements dropped by validation",
		}),

		proofsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceQuorumStore,
			Subsystem: subsystemProofs,
			Name:      "proofs_completed_total",
			Help:      "count of proofs of store emitted",
		}),

		proofDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespaceQuorumStore,
			Subsystem: subsystemProofs,
			Buckets:   []float64{0.05, 0.2, 0.5, 1, 2, 5},
			Name:      "proof_duration_seconds",
			Help:      "time from first signature to quorum completion",
		}),

		proofTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceQuorumStore,
			Subsystem: subsystemProofs,
			Name:      "proof_timeouts_total",
			Help:      "count of self-voted aggregations that expired before quorum",
		}),

		commitsObserved: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceQuorumStore,
			Subsystem: subsystemProofs,
			Name:      "commits_observed_total",
			Help:      "count of commit notifications, by whether the local aggregation had completed",
		}, []string{"completed"}),
	}

	return qc
}

func (qc *QuorumStoreCollector) BatchSaved(numBytes uint64, mode model.StorageMode) {
	qc.batchesSaved.WithLabelValues(mode.String()).Inc()
	qc.batchBytesSaved.Add(float64(numBytes))
}

func (qc *QuorumStoreCollector) BatchSaveRejected() {
	qc.savesRejected.Inc()
}

func (qc *QuorumStoreCollector) QuotaExceeded() {
	qc.quotaExceeded.Inc()
}

func (qc *QuorumStoreCollector) BatchesExpired(count int) {
	qc.batchesExpired.Add(float64(count))
}

func (qc *QuorumStoreCollector) LocalBatchServed() {
	qc.localBatchesServed.Inc()
}

func (qc *QuorumStoreCollector) RemoteBatchRequested() {
	qc.remoteBatchesPending.Inc()
}

func (qc *QuorumStoreCollector) RemoteBatchFetched(duration time.Duration) {
	qc.remoteBatchesPending.Dec()
	qc.remoteFetchDuration.Observe(duration.Seconds())
}

func (qc *QuorumStoreCollector) RemoteBatchFailed() {
	qc.remoteBatchesPending.Dec()
	qc.remoteFetchFailures.Inc()
}

func (qc *QuorumStoreCollector) SignatureReceived() {
	qc.signaturesReceived.Inc()
}

func (qc *QuorumStoreCollector) InvalidSignature() {
	qc.invalidSignatures.Inc()
}

func (qc *QuorumStoreCollector) ProofCompleted(duration time.Duration) {
	qc.proofsCompleted.Inc()
	qc.proofDuration.Observe(duration.Seconds())
}

func (qc *QuorumStoreCollector) ProofTimeout() {
	qc.proofTimeouts.Inc()
}

func (qc *QuorumStoreCollector) BatchCommitted(completed bool) {
	if completed {
		qc.commitsObserved.WithLabelValues("true").Inc()
	} else {
		qc.commitsObserved.WithLabelValues("false").Inc()
	}
}
