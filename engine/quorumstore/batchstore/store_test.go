package batchstore

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dapperlabs/quorumstore/model"
	"github.com/dapperlabs/quorumstore/module/metrics"
	"github.com/dapperlabs/quorumstore/storage"
	"github.com/dapperlabs/quorumstore/utils/unittest"
)

// memBatches is an in-memory stand-in for the persistent batch storage.
type memBatches struct {
	mu     sync.Mutex
	values map[model.Identifier]*model.PersistedValue
}

func newMemBatches() *memBatches {
	return &memBatches{values: make(map[model.Identifier]*model.PersistedValue)}
}

func (m *memBatches) Store(value *model.PersistedValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[value.Digest] = value
	return nil
}

func (m *memBatches) ByDigest(digest model.Identifier) (*model.PersistedValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.values[digest]
	if !ok {
		return nil, fmt.Errorf("batch (%x): %w", digest, storage.ErrNotFound)
	}
	return value, nil
}

func (m *memBatches) Remove(digests []model.Identifier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, digest := range digests {
		delete(m.values, digest)
	}
	return nil
}

func (m *memBatches) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.values)
}

func defaultTestConfig() Config {
	return Config{
		Epoch:       1,
		MemoryQuota: 1 << 20,
		DBQuota:     4 << 20,
		BehindGap:   10,
		BeyondGap:   20,
		GraceRounds: 2,
	}
}

func newTestStore(t *testing.T, cfg Config, certified uint64) (*BatchStore, *memBatches) {
	db := newMemBatches()
	store := New(unittest.Logger(), metrics.NewNoopCollector(), db, cfg, certified)
	require.NotNil(t, store)
	return store, db
}

// valueFixture builds a persisted record for the given author with a
// payload of the given byte size.
func valueFixture(t *testing.T, author model.Identifier, round uint64, numBytes int) *model.PersistedValue {
	batch, err := model.NewBatch(
		author,
		1,
		model.CertifiedRound{Epoch: 1, Round: round},
		model.Payload{unittest.TransactionFixture(numBytes)},
	)
	require.NoError(t, err)
	return batch.AsPersisted()
}

func TestStore_SaveAndGet(t *testing.T) {
	store, _ := newTestStore(t, defaultTestConfig(), 100)

	author := unittest.IdentifierFixture()
	value := valueFixture(t, author, 105, 64)

	stored, err := store.Save(value)
	require.NoError(t, err)
	assert.True(t, stored)
	assert.True(t, store.Contains(value.Digest))

	got, err := store.GetBatchFromLocal(value.Digest)
	require.NoError(t, err)
	assert.Equal(t, value.Digest, got.Digest)
	assert.Equal(t, value.Payload, got.Payload)

	_, err = store.GetBatchFromLocal(unittest.IdentifierFixture())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// TestStore_IdempotentSave checks that re-saving a record with an equal or
// lower expiration round is a no-op, while a higher expiration refreshes
// the entry.
func TestStore_IdempotentSave(t *testing.T) {
	store, db := newTestStore(t, defaultTestConfig(), 100)

	author := unittest.IdentifierFixture()
	value := valueFixture(t, author, 105, 64)

	stored, err := store.Save(value)
	require.NoError(t, err)
	require.True(t, stored)

	// same record again: ignored without error
	stored, err = store.Save(value)
	require.NoError(t, err)
	assert.False(t, stored)

	// same digest, lower expiration: ignored
	older := *value
	older.Expiration.Round = 102
	stored, err = store.Save(&older)
	require.NoError(t, err)
	assert.False(t, stored)

	// same digest, higher expiration: refreshes the record
	newer := *value
	newer.Expiration.Round = 110
	stored, err = store.Save(&newer)
	require.NoError(t, err)
	assert.True(t, stored)

	got, err := store.GetBatchFromLocal(value.Digest)
	require.NoError(t, err)
	assert.Equal(t, uint64(110), got.Expiration.Round)

	// the author's budget is charged for one record, not three
	aq := store.loadOrCreateQuota(author)
	assert.Equal(t, value.NumBytes, aq.quota.dbBalance)
	assert.Equal(t, 1, db.size())
}

// TestStore_AdmissionWindow checks that expiration rounds outside
// [certified-BehindGap, certified+BeyondGap] are rejected and leave the
// author's budget untouched.
func TestStore_AdmissionWindow(t *testing.T) {
	cfg := defaultTestConfig()
	store, db := newTestStore(t, cfg, 100)

	author := unittest.IdentifierFixture()

	// too stale: 89 + BehindGap(10) < 100
	_, err := store.Save(valueFixture(t, author, 89, 64))
	assert.ErrorIs(t, err, ErrOutsideWindow)

	// too far ahead: 121 > 100 + BeyondGap(20)
	_, err = store.Save(valueFixture(t, author, 121, 64))
	assert.ErrorIs(t, err, ErrOutsideWindow)

	// both window edges are inclusive
	stored, err := store.Save(valueFixture(t, author, 90, 64))
	require.NoError(t, err)
	assert.True(t, stored)
	stored, err = store.Save(valueFixture(t, author, 120, 64))
	require.NoError(t, err)
	assert.True(t, stored)

	// rejections never reached storage or the budget
	aq := store.loadOrCreateQuota(author)
	assert.Equal(t, uint64(2*64), aq.quota.dbBalance)
	assert.Equal(t, 2, db.size())
}

func TestStore_WrongEpoch(t *testing.T) {
	store, _ := newTestStore(t, defaultTestConfig(), 100)

	value := valueFixture(t, unittest.IdentifierFixture(), 105, 64)
	value.Expiration.Epoch = 2

	_, err := store.Save(value)
	assert.ErrorIs(t, err, ErrWrongEpoch)
	assert.False(t, store.Contains(value.Digest))
}

// TestStore_QuotaIsolation checks that one author exhausting its budget
// does not affect admissions of another author.
func TestStore_QuotaIsolation(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.MemoryQuota = 100
	cfg.DBQuota = 200
	store, _ := newTestStore(t, cfg, 100)

	greedy := unittest.IdentifierFixture()
	modest := unittest.IdentifierFixture()

	stored, err := store.Save(valueFixture(t, greedy, 105, 100))
	require.NoError(t, err)
	require.True(t, stored)
	stored, err = store.Save(valueFixture(t, greedy, 105, 100))
	require.NoError(t, err)
	require.True(t, stored)

	_, err = store.Save(valueFixture(t, greedy, 105, 10))
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	stored, err = store.Save(valueFixture(t, modest, 105, 100))
	require.NoError(t, err)
	assert.True(t, stored)
}

// TestStore_PersistedOnlyReadsFromStorage checks that a record admitted to
// the persistent tier only is dropped from memory and read back through the
// storage collaborator.
func TestStore_PersistedOnlyReadsFromStorage(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.MemoryQuota = 100
	cfg.DBQuota = 400
	store, _ := newTestStore(t, cfg, 100)

	author := unittest.IdentifierFixture()

	memValue := valueFixture(t, author, 105, 80)
	stored, err := store.Save(memValue)
	require.NoError(t, err)
	require.True(t, stored)

	// exceeds the remaining memory budget, lands in the persistent tier
	dbValue := valueFixture(t, author, 105, 80)
	stored, err = store.Save(dbValue)
	require.NoError(t, err)
	require.True(t, stored)

	got, err := store.GetBatchFromLocal(dbValue.Digest)
	require.NoError(t, err)
	assert.Equal(t, dbValue.Payload, got.Payload)
}

// TestStore_Expiration checks the garbage-collection path: advancing the
// certified round sweeps records whose expiration round, extended by the
// grace window, has passed.
func TestStore_Expiration(t *testing.T) {
	cfg := defaultTestConfig()
	store, db := newTestStore(t, cfg, 100)

	author := unittest.IdentifierFixture()
	early := valueFixture(t, author, 102, 64)
	late := valueFixture(t, author, 115, 64)

	for _, value := range []*model.PersistedValue{early, late} {
		stored, err := store.Save(value)
		require.NoError(t, err)
		require.True(t, stored)
	}

	// round 104 with GraceRounds 2 expires rounds <= 102
	err := store.UpdateCertifiedRound(model.CertifiedRound{Epoch: 1, Round: 104})
	require.NoError(t, err)

	assert.False(t, store.Contains(early.Digest))
	assert.True(t, store.Contains(late.Digest))
	_, err = store.GetBatchFromLocal(early.Digest)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, 1, db.size())

	// the swept record's budget is returned
	aq := store.loadOrCreateQuota(author)
	assert.Equal(t, late.NumBytes, aq.quota.dbBalance)
}

// TestStore_RefreshSurvivesSweep checks that a record refreshed to a higher
// expiration after being indexed under its original round is not swept when
// the original round expires.
func TestStore_RefreshSurvivesSweep(t *testing.T) {
	store, _ := newTestStore(t, defaultTestConfig(), 100)

	author := unittest.IdentifierFixture()
	value := valueFixture(t, author, 102, 64)

	stored, err := store.Save(value)
	require.NoError(t, err)
	require.True(t, stored)

	refreshed := *value
	refreshed.Expiration.Round = 115
	stored, err = store.Save(&refreshed)
	require.NoError(t, err)
	require.True(t, stored)

	// expires the original indexing round, not the refreshed one
	err = store.UpdateCertifiedRound(model.CertifiedRound{Epoch: 1, Round: 104})
	require.NoError(t, err)
	assert.True(t, store.Contains(value.Digest))

	err = store.UpdateCertifiedRound(model.CertifiedRound{Epoch: 1, Round: 118})
	require.NoError(t, err)
	assert.False(t, store.Contains(value.Digest))
}

// TestStore_RoundClock checks the monotonicity contract of the certified
// round clock: repeats are benign no-ops, regressions and epoch mismatches
// are unrecoverable.
func TestStore_RoundClock(t *testing.T) {
	store, _ := newTestStore(t, defaultTestConfig(), 100)

	err := store.UpdateCertifiedRound(model.CertifiedRound{Epoch: 1, Round: 110})
	require.NoError(t, err)

	// exact repeat: no-op
	err = store.UpdateCertifiedRound(model.CertifiedRound{Epoch: 1, Round: 110})
	require.NoError(t, err)

	// regression: unrecoverable
	err = store.UpdateCertifiedRound(model.CertifiedRound{Epoch: 1, Round: 109})
	require.ErrorIs(t, err, ErrRoundRegression)
	assert.True(t, IsUnrecoverable(err))

	// epoch mismatch: unrecoverable
	err = store.UpdateCertifiedRound(model.CertifiedRound{Epoch: 2, Round: 111})
	require.ErrorIs(t, err, ErrRoundRegression)
	assert.True(t, IsUnrecoverable(err))
}

// TestStore_ConcurrentSaves checks that concurrent admissions of distinct
// batches by the same author neither lose records nor corrupt the budget.
func TestStore_ConcurrentSaves(t *testing.T) {
	cfg := defaultTestConfig()
	store, _ := newTestStore(t, cfg, 100)

	author := unittest.IdentifierFixture()
	const n = 50

	values := make([]*model.PersistedValue, 0, n)
	for i := 0; i < n; i++ {
		values = append(values, valueFixture(t, author, 105, 64))
	}

	var wg sync.WaitGroup
	for _, value := range values {
		wg.Add(1)
		go func(value *model.PersistedValue) {
			defer wg.Done()
			_, err := store.Save(value)
			assert.NoError(t, err)
		}(value)
	}
	wg.Wait()

	for _, value := range values {
		assert.True(t, store.Contains(value.Digest))
	}
	aq := store.loadOrCreateQuota(author)
	assert.Equal(t, uint64(n*64), aq.quota.dbBalance)
}
