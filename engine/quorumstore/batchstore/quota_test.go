package batchstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dapperlabs/quorumstore/model"
)

// TestQuotaManager_TierAssignment checks that admissions fill the memory
// tier first, overflow into the persistent tier, and fail once both budgets
// are exhausted, without modifying any balance on failure.
func TestQuotaManager_TierAssignment(t *testing.T) {
	q := newQuotaManager(100, 250)

	mode, err := q.update(60)
	require.NoError(t, err)
	assert.Equal(t, model.StorageModeMemoryAndPersisted, mode)

	// does not fit the remaining memory budget, fits the db budget
	mode, err = q.update(60)
	require.NoError(t, err)
	assert.Equal(t, model.StorageModePersistedOnly, mode)

	// memory budget has 40 left, small batches still land there
	mode, err = q.update(40)
	require.NoError(t, err)
	assert.Equal(t, model.StorageModeMemoryAndPersisted, mode)

	// db balance is 160 of 250; 100 more must be rejected
	_, err = q.update(100)
	require.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, uint64(100), q.memoryBalance)
	assert.Equal(t, uint64(160), q.dbBalance)

	// a fitting admission still works after a rejection
	mode, err = q.update(90)
	require.NoError(t, err)
	assert.Equal(t, model.StorageModePersistedOnly, mode)
	assert.Equal(t, uint64(250), q.dbBalance)
}

// TestQuotaManager_MemoryAdmissionRespectsDBQuota checks that memory
// headroom alone never admits a batch: once the db budget is exhausted by
// persisted-only admissions, further memory-tier admissions are rejected and
// the db balance never exceeds the db quota.
func TestQuotaManager_MemoryAdmissionRespectsDBQuota(t *testing.T) {
	q := newQuotaManager(50, 100)

	// lands persisted-only, db balance 60
	mode, err := q.update(60)
	require.NoError(t, err)
	assert.Equal(t, model.StorageModePersistedOnly, mode)

	// fits both tiers exactly, db balance 100
	mode, err = q.update(40)
	require.NoError(t, err)
	assert.Equal(t, model.StorageModeMemoryAndPersisted, mode)

	// memory has 10 left but the db budget is spent
	_, err = q.update(10)
	require.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, uint64(40), q.memoryBalance)
	assert.Equal(t, uint64(100), q.dbBalance)
	assert.LessOrEqual(t, q.dbBalance, q.dbQuota)
}

// TestQuotaManager_MemorySubsetOfDB checks the tier invariant: every
// memory-resident byte is also counted against the db budget.
func TestQuotaManager_MemorySubsetOfDB(t *testing.T) {
	q := newQuotaManager(100, 200)

	for i := 0; i < 10; i++ {
		_, err := q.update(10)
		require.NoError(t, err)
		assert.LessOrEqual(t, q.memoryBalance, q.dbBalance)
	}
	assert.Equal(t, uint64(100), q.memoryBalance)
	assert.Equal(t, uint64(100), q.dbBalance)
}

// TestQuotaManager_Free checks that freeing returns budget to the tiers the
// admission charged.
func TestQuotaManager_Free(t *testing.T) {
	q := newQuotaManager(100, 200)

	mode, err := q.update(80)
	require.NoError(t, err)
	require.Equal(t, model.StorageModeMemoryAndPersisted, mode)

	overflow, err := q.update(80)
	require.NoError(t, err)
	require.Equal(t, model.StorageModePersistedOnly, overflow)

	q.free(80, mode)
	assert.Equal(t, uint64(0), q.memoryBalance)
	assert.Equal(t, uint64(80), q.dbBalance)

	q.free(80, overflow)
	assert.Equal(t, uint64(0), q.memoryBalance)
	assert.Equal(t, uint64(0), q.dbBalance)
}

// TestQuotaManager_DoubleFreePanics checks that a balance underflow is
// treated as an internal-consistency bug.
func TestQuotaManager_DoubleFreePanics(t *testing.T) {
	q := newQuotaManager(100, 200)
	_, err := q.update(50)
	require.NoError(t, err)

	q.free(50, model.StorageModeMemoryAndPersisted)
	assert.Panics(t, func() {
		q.free(50, model.StorageModeMemoryAndPersisted)
	})
}

// TestQuotaManager_InvalidConfigPanics checks that a db budget below the
// memory budget is rejected at construction.
func TestQuotaManager_InvalidConfigPanics(t *testing.T) {
	assert.Panics(t, func() {
		newQuotaManager(200, 100)
	})
}
