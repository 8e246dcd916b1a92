package badger

import (
	"fmt"

	"github.com/dgraph-io/badger/v2"
	"github.com/hashicorp/go-multierror"

	"github.com/dapperlabs/quorumstore/model"
	"github.com/dapperlabs/quorumstore/storage"
	"github.com/dapperlabs/quorumstore/storage/badger/operation"
)

// Batches implements persistent storage for batch records on top of
// BadgerDB.
type Batches struct {
	db *badger.DB
}

var _ storage.Batches = (*Batches)(nil)

func NewBatches(db *badger.DB) *Batches {
	b := &Batches{
		db: db,
	}
	return b
}

func (b *Batches) Store(value *model.PersistedValue) error {
	err := b.db.Update(operation.UpsertBatch(value))
	if err != nil {
		return fmt.Errorf("could not store batch (%x): %w", value.Digest, err)
	}
	return nil
}

func (b *Batches) ByDigest(digest model.Identifier) (*model.PersistedValue, error) {
	var value model.PersistedValue
	err := b.db.View(operation.RetrieveBatch(digest, &value))
	if err != nil {
		return nil, fmt.Errorf("could not retrieve batch (%x): %w", digest, err)
	}
	return &value, nil
}

func (b *Batches) Remove(digests []model.Identifier) error {
	// deletions are spread across transactions; per-key atomicity is all
	// the contract requires, and one failed key must not block the rest
	var merr *multierror.Error
	for _, digest := range digests {
		err := b.db.Update(operation.RemoveBatch(digest))
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("could not remove batch (%x): %w", digest, err))
		}
	}
	return merr.ErrorOrNil()
}
