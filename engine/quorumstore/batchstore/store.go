package batchstore

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dapperlabs/quorumstore/model"
	"github.com/dapperlabs/quorumstore/module"
	"github.com/dapperlabs/quorumstore/storage"
)

// Config holds the admission parameters of a batch store.
type Config struct {
	// Epoch is the epoch the store serves; batches declaring a different
	// expiration epoch are rejected.
	Epoch uint64

	// MemoryQuota and DBQuota are the per-author byte budgets of the two
	// storage tiers. DBQuota must not be below MemoryQuota.
	MemoryQuota uint64
	DBQuota     uint64

	// BehindGap and BeyondGap bound the accepted expiration window around
	// the last certified round: [certified-BehindGap, certified+BeyondGap].
	BehindGap uint64
	BeyondGap uint64

	// GraceRounds delays eviction: a batch expires only once the certified
	// round exceeds its expiration round by more than GraceRounds.
	GraceRounds uint64
}

// BatchStore is a content-addressed, quota-bounded store of batch records
// with round-based expiration. Reads from many caller contexts run
// concurrently; writes are serialized per digest and per author through
// fine-grained entry locks.
type BatchStore struct {
	log     zerolog.Logger
	metrics module.QuorumStoreMetrics
	db      storage.Batches
	cfg     Config

	certifiedMu    sync.Mutex
	certifiedRound uint64

	entries sync.Map // digest -> *entry
	quotas  sync.Map // author -> *authorQuota

	expiryMu    sync.Mutex
	expiryIndex map[uint64][]model.Identifier // expiration round -> digests
}

// entry guards one digest's record. An entry that has been swept is marked
// removed; callers who raced the sweep re-create a fresh entry.
type entry struct {
	mu      sync.Mutex
	value   *model.PersistedValue // payload nil for persisted-only mode
	mode    model.StorageMode
	removed bool
}

type authorQuota struct {
	mu    sync.Mutex
	quota *quotaManager
}

func New(
	log zerolog.Logger,
	metrics module.QuorumStoreMetrics,
	db storage.Batches,
	cfg Config,
	lastCertifiedRound uint64,
) *BatchStore {

	s := &BatchStore{
		log:            log.With().Str("component", "batch_store").Logger(),
		metrics:        metrics,
		db:             db,
		cfg:            cfg,
		certifiedRound: lastCertifiedRound,
		expiryIndex:    make(map[uint64][]model.Identifier),
	}
	return s
}

// Save admits the given record into the store. It returns true if the
// record was stored, false if an entry with an equal or higher expiration
// round already exists for the digest (idempotent; newer expiration wins).
//
// Error returns:
//   - ErrWrongEpoch if the expiration epoch does not match the store epoch
//   - ErrOutsideWindow if the expiration round falls outside the accepted
//     window around the last certified round
//   - ErrQuotaExceeded if the author's byte budget cannot admit the batch
//
// On any error the store's observable state is unchanged.
func (s *BatchStore) Save(value *model.PersistedValue) (bool, error) {

	if value.Expiration.Epoch != s.cfg.Epoch {
		s.metrics.BatchSaveRejected()
		return false, fmt.Errorf("expiration epoch %d, store epoch %d: %w",
			value.Expiration.Epoch, s.cfg.Epoch, ErrWrongEpoch)
	}

	certified := s.lastCertified()
	round := value.Expiration.Round
	if round+s.cfg.BehindGap < certified || round > certified+s.cfg.BeyondGap {
		s.metrics.BatchSaveRejected()
		return false, fmt.Errorf("expiration round %d, certified round %d: %w",
			round, certified, ErrOutsideWindow)
	}

	for {
		e := s.loadOrCreateEntry(value.Digest)
		e.mu.Lock()
		if e.removed {
			// lost the race against the expiration sweep; the stale entry
			// is already unlinked, so start over with a fresh one
			e.mu.Unlock()
			continue
		}
		stored, err := s.saveLocked(e, value)
		e.mu.Unlock()
		return stored, err
	}
}

// saveLocked performs the admission while holding the entry lock.
func (s *BatchStore) saveLocked(e *entry, value *model.PersistedValue) (bool, error) {

	previous := e.value
	if previous != nil && previous.Expiration.Round >= value.Expiration.Round {
		return false, nil
	}

	mode, err := s.updateQuota(value.Author, value.NumBytes)
	if err != nil {
		return false, err
	}

	err = s.db.Store(value)
	if err != nil {
		s.freeQuota(value.Author, value.NumBytes, mode)
		return false, fmt.Errorf("could not persist batch (%x): %w", value.Digest, err)
	}

	// the new record is in; only now release the budget of the replaced one
	if previous != nil {
		s.freeQuota(previous.Author, previous.NumBytes, e.mode)
	}

	stored := *value
	if mode == model.StorageModePersistedOnly {
		stored.Payload = nil
	}
	e.value = &stored
	e.mode = mode

	s.indexExpiration(value.Expiration.Round, value.Digest)

	s.metrics.BatchSaved(value.NumBytes, mode)
	s.log.Debug().
		Hex("digest", value.Digest[:]).
		Hex("author", value.Author[:]).
		Uint64("expiration_round", value.Expiration.Round).
		Str("mode", mode.String()).
		Msg("batch saved")

	return true, nil
}

// GetBatchFromLocal returns the record for the given digest from local
// state only; it never triggers network I/O. Persisted-only records are
// read back from the persistence collaborator. Returns storage.ErrNotFound
// if the digest is unknown.
func (s *BatchStore) GetBatchFromLocal(digest model.Identifier) (*model.PersistedValue, error) {
	loaded, ok := s.entries.Load(digest)
	if !ok {
		return nil, fmt.Errorf("batch (%x): %w", digest, storage.ErrNotFound)
	}
	e := loaded.(*entry)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed || e.value == nil {
		return nil, fmt.Errorf("batch (%x): %w", digest, storage.ErrNotFound)
	}
	if e.value.Payload != nil {
		value := *e.value
		return &value, nil
	}
	value, err := s.db.ByDigest(digest)
	if err != nil {
		return nil, fmt.Errorf("could not load persisted-only batch (%x): %w", digest, err)
	}
	return value, nil
}

// Contains reports whether the store currently holds a record for the
// digest.
func (s *BatchStore) Contains(digest model.Identifier) bool {
	loaded, ok := s.entries.Load(digest)
	if !ok {
		return false
	}
	e := loaded.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.removed && e.value != nil
}

// UpdateCertifiedRound advances the round clock and garbage-collects all
// records whose expiration round has passed, beyond the grace window. The
// clock must be monotone within the epoch: a regression or an epoch
// mismatch returns ErrRoundRegression and must be treated as fatal by the
// caller. The single benign exception is an exact repeat of the current
// round, which arises from state-sync at an epoch boundary and is a no-op.
func (s *BatchStore) UpdateCertifiedRound(certified model.CertifiedRound) error {

	s.certifiedMu.Lock()
	if certified.Epoch != s.cfg.Epoch {
		s.certifiedMu.Unlock()
		return fmt.Errorf("certified epoch %d, store epoch %d: %w",
			certified.Epoch, s.cfg.Epoch, ErrRoundRegression)
	}
	if certified.Round < s.certifiedRound {
		s.certifiedMu.Unlock()
		return fmt.Errorf("certified round %d below %d: %w",
			certified.Round, s.certifiedRound, ErrRoundRegression)
	}
	if certified.Round == s.certifiedRound {
		s.certifiedMu.Unlock()
		return nil
	}
	s.certifiedRound = certified.Round
	s.certifiedMu.Unlock()

	var expiredRound uint64
	if certified.Round > s.cfg.GraceRounds {
		expiredRound = certified.Round - s.cfg.GraceRounds
	}

	candidates := s.drainExpiryIndex(expiredRound)
	if len(candidates) == 0 {
		return nil
	}

	var expired []model.Identifier
	for _, digest := range candidates {
		loaded, ok := s.entries.Load(digest)
		if !ok {
			continue
		}
		e := loaded.(*entry)

		e.mu.Lock()
		if e.removed || e.value == nil {
			e.mu.Unlock()
			continue
		}
		// the entry may have been refreshed to a higher expiration since it
		// was indexed; such entries survive the sweep
		if e.value.Expiration.Round > expiredRound {
			e.mu.Unlock()
			continue
		}
		s.freeQuota(e.value.Author, e.value.NumBytes, e.mode)
		e.removed = true
		e.value = nil
		s.entries.Delete(digest)
		e.mu.Unlock()

		expired = append(expired, digest)
	}

	if len(expired) == 0 {
		return nil
	}

	err := s.db.Remove(expired)
	if err != nil {
		return fmt.Errorf("could not remove expired batches: %w", err)
	}

	s.metrics.BatchesExpired(len(expired))
	s.log.Debug().
		Uint64("certified_round", certified.Round).
		Uint64("expired_round", expiredRound).
		Int("expired", len(expired)).
		Msg("expired batches swept")

	return nil
}

func (s *BatchStore) lastCertified() uint64 {
	s.certifiedMu.Lock()
	defer s.certifiedMu.Unlock()
	return s.certifiedRound
}

func (s *BatchStore) loadOrCreateEntry(digest model.Identifier) *entry {
	loaded, _ := s.entries.LoadOrStore(digest, &entry{})
	return loaded.(*entry)
}

func (s *BatchStore) updateQuota(author model.Identifier, numBytes uint64) (model.StorageMode, error) {
	aq := s.loadOrCreateQuota(author)
	aq.mu.Lock()
	defer aq.mu.Unlock()
	mode, err := aq.quota.update(numBytes)
	if err != nil {
		s.metrics.QuotaExceeded()
		return 0, fmt.Errorf("author (%x): %w", author, err)
	}
	return mode, nil
}

func (s *BatchStore) freeQuota(author model.Identifier, numBytes uint64, mode model.StorageMode) {
	aq := s.loadOrCreateQuota(author)
	aq.mu.Lock()
	defer aq.mu.Unlock()
	aq.quota.free(numBytes, mode)
}

func (s *BatchStore) loadOrCreateQuota(author model.Identifier) *authorQuota {
	loaded, ok := s.quotas.Load(author)
	if !ok {
		loaded, _ = s.quotas.LoadOrStore(author, &authorQuota{
			quota: newQuotaManager(s.cfg.MemoryQuota, s.cfg.DBQuota),
		})
	}
	return loaded.(*authorQuota)
}

func (s *BatchStore) indexExpiration(round uint64, digest model.Identifier) {
	s.expiryMu.Lock()
	defer s.expiryMu.Unlock()
	s.expiryIndex[round] = append(s.expiryIndex[round], digest)
}

// drainExpiryIndex removes and returns all digests indexed at rounds up to
// and including expiredRound. Entries may appear multiple times (once per
// refresh); duplicates are deduplicated by the caller's entry check.
func (s *BatchStore) drainExpiryIndex(expiredRound uint64) []model.Identifier {
	s.expiryMu.Lock()
	defer s.expiryMu.Unlock()
	var digests []model.Identifier
	for round, indexed := range s.expiryIndex {
		if round > expiredRound {
			continue
		}
		digests = append(digests, indexed...)
		delete(s.expiryIndex, round)
	}
	return digests
}

// IsUnrecoverable reports whether the error from UpdateCertifiedRound
// signals a fatal invariant violation rather than a recoverable condition.
func IsUnrecoverable(err error) bool {
	return errors.Is(err, ErrRoundRegression)
}
