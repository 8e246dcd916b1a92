package storage

import (
	"github.com/dapperlabs/quorumstore/model"
)

// Batches represents persistent storage for batch records, keyed by batch
// digest. Implementations guarantee per-key atomicity and nothing more; the
// batch store layers its own consistency on top.
type Batches interface {
	// Store inserts or replaces the record for the given digest.
	Store(value *model.PersistedValue) error

	// ByDigest returns the record for the given digest. It returns
	// ErrNotFound if no record is stored.
	ByDigest(digest model.Identifier) (*model.PersistedValue, error)

	// Remove physically deletes the records for the given digests. Digests
	// without a stored record are skipped.
	Remove(digests []model.Identifier) error
}
