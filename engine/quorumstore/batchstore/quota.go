package batchstore

import (
	"fmt"

	"github.com/dapperlabs/quorumstore/model"
)

// quotaManager tracks the byte budget of a single batch author across the
// two storage tiers. The memory tier is a subset of the persistent tier:
// every memory-resident byte is also counted against the db budget, so
// dbBalance >= memoryBalance holds at all times.
//
// The manager is rebuilt from observed traffic and never serialized. It is
// not safe for concurrent use; the batch store serializes access per
// author.
type quotaManager struct {
	memoryBalance uint64
	memoryQuota   uint64
	dbBalance     uint64
	dbQuota       uint64
}

func newQuotaManager(memoryQuota uint64, dbQuota uint64) *quotaManager {
	if dbQuota < memoryQuota {
		panic(fmt.Sprintf("db quota (%d) must not be below memory quota (%d)", dbQuota, memoryQuota))
	}
	return &quotaManager{
		memoryQuota: memoryQuota,
		dbQuota:     dbQuota,
	}
}

// update admits numBytes into the memory tier when both budgets have room,
// falls back to the persistent tier while the db budget allows, and returns
// the resulting storage mode. Memory bytes count against the db budget too,
// so a memory admission requires headroom in both tiers. On
// ErrQuotaExceeded no balance is modified.
func (q *quotaManager) update(numBytes uint64) (model.StorageMode, error) {
	if q.memoryBalance+numBytes <= q.memoryQuota && q.dbBalance+numBytes <= q.dbQuota {
		q.memoryBalance += numBytes
		q.dbBalance += numBytes
		return model.StorageModeMemoryAndPersisted, nil
	}
	if q.dbBalance+numBytes <= q.dbQuota {
		q.dbBalance += numBytes
		return model.StorageModePersistedOnly, nil
	}
	return 0, ErrQuotaExceeded
}

// free returns the budget admitted for one item. It must be called exactly
// once per admitted item, with the mode the admission returned; a balance
// underflow means the caller double-freed and is an internal-consistency
// bug.
func (q *quotaManager) free(numBytes uint64, mode model.StorageMode) {
	if q.dbBalance < numBytes {
		panic(fmt.Sprintf("freeing %d bytes exceeds db balance %d", numBytes, q.dbBalance))
	}
	q.dbBalance -= numBytes
	if mode == model.StorageModeMemoryAndPersisted {
		if q.memoryBalance < numBytes {
			panic(fmt.Sprintf("freeing %d bytes exceeds memory balance %d", numBytes, q.memoryBalance))
		}
		q.memoryBalance -= numBytes
	}
}
