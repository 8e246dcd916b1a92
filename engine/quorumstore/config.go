package quorumstore

import (
	"fmt"
	"time"
)

// Config collects the tunables of the quorum store. Sender-side limits
// bound what this node produces, receiver-side limits bound what it
// accepts from peers; a network where any sender limit exceeds the
// corresponding receiver limit would have honest nodes rejecting each
// other's batches, so Validate refuses such configurations outright.
type Config struct {
	// Epoch is the epoch this instance serves. Batches and round
	// updates from other epochs are rejected.
	Epoch uint64

	// SenderMaxBatchTxns and SenderMaxBatchBytes bound a single batch
	// produced by this node.
	SenderMaxBatchTxns  uint64
	SenderMaxBatchBytes uint64

	// SenderMaxTotalTxns and SenderMaxTotalBytes bound the aggregate
	// of all in-flight batches produced by this node.
	SenderMaxTotalTxns  uint64
	SenderMaxTotalBytes uint64

	// ReceiverMaxBatchTxns and ReceiverMaxBatchBytes bound a single
	// batch accepted from a peer.
	ReceiverMaxBatchTxns  uint64
	ReceiverMaxBatchBytes uint64

	// ReceiverMaxTotalTxns and ReceiverMaxTotalBytes bound the
	// aggregate accepted from a single peer.
	ReceiverMaxTotalTxns  uint64
	ReceiverMaxTotalBytes uint64

	// MemoryQuota and DBQuota are the per-author storage quotas in
	// bytes. MemoryQuota must not exceed DBQuota.
	MemoryQuota uint64
	DBQuota     uint64

	// BehindGap and BeyondGap bound how far a batch expiration round
	// may lag behind or run ahead of the latest certified round.
	BehindGap uint64
	BeyondGap uint64

	// GraceRounds delays garbage collection past a batch's nominal
	// expiration round.
	GraceRounds uint64

	// ProofTimeout bounds how long an incomplete signature aggregation
	// is kept before it is swept.
	ProofTimeout time.Duration

	// RequestNumPeers, RequestRetryLimit and RequestRetryInterval
	// drive remote batch retrieval.
	RequestNumPeers      int
	RequestRetryLimit    int
	RequestRetryInterval time.Duration

	// RPCTimeout bounds how long a single request attempt waits for an
	// answer before it is retried or failed.
	RPCTimeout time.Duration

	// NumWorkers sizes the pool serving peer batch requests.
	NumWorkers int

	// GCInterval is the tick driving timeout sweeps.
	GCInterval time.Duration
}

// DefaultConfig returns a configuration suitable for tests and local
// networks.
func DefaultConfig() Config {
	return Config{
		SenderMaxBatchTxns:    250,
		SenderMaxBatchBytes:   1 << 20,  // 1 MiB
		SenderMaxTotalTxns:    1000,
		SenderMaxTotalBytes:   4 << 20,  // 4 MiB
		ReceiverMaxBatchTxns:  500,
		ReceiverMaxBatchBytes: 2 << 20,  // 2 MiB
		ReceiverMaxTotalTxns:  2000,
		ReceiverMaxTotalBytes: 8 << 20,  // 8 MiB
		MemoryQuota:           64 << 20, // 64 MiB
		DBQuota:               256 << 20,
		BehindGap:             10,
		BeyondGap:             20,
		GraceRounds:           5,
		ProofTimeout:          10 * time.Second,
		RequestNumPeers:       3,
		RequestRetryLimit:     5,
		RequestRetryInterval:  time.Second,
		RPCTimeout:            5 * time.Second,
		NumWorkers:            4,
		GCInterval:            time.Second,
	}
}

// Validate checks the internal consistency of the configuration. It is
// called once at construction; a node must not start with a
// configuration that would make it reject its own or its honest peers'
// traffic.
func (c Config) Validate() error {
	type pair struct {
		name             string
		sender, receiver uint64
	}
	for _, p := range []pair{
		{"batch txns", c.SenderMaxBatchTxns, c.ReceiverMaxBatchTxns},
		{"batch bytes", c.SenderMaxBatchBytes, c.ReceiverMaxBatchBytes},
		{"total txns", c.SenderMaxTotalTxns, c.ReceiverMaxTotalTxns},
		{"total bytes", c.SenderMaxTotalBytes, c.ReceiverMaxTotalBytes},
	} {
		if p.sender > p.receiver {
			return fmt.Errorf("sender %s limit (%d) exceeds receiver limit (%d)", p.name, p.sender, p.receiver)
		}
	}

	if c.SenderMaxBatchTxns > c.SenderMaxTotalTxns {
		return fmt.Errorf("sender batch txn limit (%d) exceeds sender total txn limit (%d)", c.SenderMaxBatchTxns, c.SenderMaxTotalTxns)
	}
	if c.SenderMaxBatchBytes > c.SenderMaxTotalBytes {
		return fmt.Errorf("sender batch byte limit (%d) exceeds sender total byte limit (%d)", c.SenderMaxBatchBytes, c.SenderMaxTotalBytes)
	}
	if c.ReceiverMaxBatchTxns > c.ReceiverMaxTotalTxns {
		return fmt.Errorf("receiver batch txn limit (%d) exceeds receiver total txn limit (%d)", c.ReceiverMaxBatchTxns, c.ReceiverMaxTotalTxns)
	}
	if c.ReceiverMaxBatchBytes > c.ReceiverMaxTotalBytes {
		return fmt.Errorf("receiver batch byte limit (%d) exceeds receiver total byte limit (%d)", c.ReceiverMaxBatchBytes, c.ReceiverMaxTotalBytes)
	}

	if c.MemoryQuota > c.DBQuota {
		return fmt.Errorf("memory quota (%d) exceeds db quota (%d)", c.MemoryQuota, c.DBQuota)
	}
	if c.ProofTimeout <= 0 {
		return fmt.Errorf("proof timeout must be positive, got %s", c.ProofTimeout)
	}
	if c.RequestNumPeers <= 0 {
		return fmt.Errorf("request peer window must be positive, got %d", c.RequestNumPeers)
	}
	if c.RequestRetryLimit < 0 {
		return fmt.Errorf("request retry limit must be non-negative, got %d", c.RequestRetryLimit)
	}
	if c.RequestRetryInterval <= 0 {
		return fmt.Errorf("request retry interval must be positive, got %s", c.RequestRetryInterval)
	}
	if c.RPCTimeout <= 0 {
		return fmt.Errorf("rpc timeout must be positive, got %s", c.RPCTimeout)
	}
	if c.NumWorkers <= 0 {
		return fmt.Errorf("worker count must be positive, got %d", c.NumWorkers)
	}
	if c.GCInterval <= 0 {
		return fmt.Errorf("gc interval must be positive, got %s", c.GCInterval)
	}

	return nil
}
