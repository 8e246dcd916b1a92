package metrics

import (
	"time"

	"github.com/dapperlabs/quorumstore/model"
	"github.com/dapperlabs/quorumstore/module"
)

type NoopCollector struct{}

var _ module.QuorumStoreMetrics = (*NoopCollector)(nil)

func NewNoopCollector() *NoopCollector {
	nc := &NoopCollector{}
	return nc
}

func (nc *NoopCollector) BatchSaved(numBytes uint64, mode model.StorageMode) {}
func (nc *NoopCollector) BatchSaveRejected()                                 {}
func (nc *NoopCollector) QuotaExceeded()                                     {}
func (nc *NoopCollector) BatchesExpired(count int)                           {}
func (nc *NoopCollector) LocalBatchServed()                                  {}
func (nc *NoopCollector) RemoteBatchRequested()                              {}
func (nc *NoopCollector) RemoteBatchFetched(duration time.Duration)          {}
func (nc *NoopCollector) RemoteBatchFailed()                                 {}
func (nc *NoopCollector) SignatureReceived()                                 {}
func (nc *NoopCollector) InvalidSignature()                                  {}
func (nc *NoopCollector) ProofCompleted(duration time.Duration)              {}
func (nc *NoopCollector) ProofTimeout()                                      {}
func (nc *NoopCollector) BatchCommitted(completed bool)                      {}
