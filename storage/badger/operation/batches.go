package operation

import (
	"github.com/dgraph-io/badger/v2"

	"github.com/dapperlabs/quorumstore/model"
)

func UpsertBatch(value *model.PersistedValue) func(*badger.Txn) error {
	return upsert(makePrefix(codeBatch, value.Digest), value)
}

func RetrieveBatch(digest model.Identifier, value *model.PersistedValue) func(*badger.Txn) error {
	return retrieve(makePrefix(codeBatch, digest), value)
}

func RemoveBatch(digest model.Identifier) func(*badger.Txn) error {
	return remove(makePrefix(codeBatch, digest))
}
