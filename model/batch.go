package model

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v4"
)

// Transaction is an opaque serialized transaction. The quorum store treats
// transaction contents as a byte payload; interpretation is up to the
// execution layer.
type Transaction []byte

// Payload is the ordered transaction list of one batch.
type Payload []Transaction

// NumBytes returns the total serialized size of the payload.
func (p Payload) NumBytes() uint64 {
	var total uint64
	for _, tx := range p {
		total += uint64(len(tx))
	}
	return total
}

// Digest returns the content digest of the payload, the identifier under
// which the batch is addressed everywhere.
func (p Payload) Digest() Identifier {
	data, err := msgpack.Marshal(p)
	if err != nil {
		panic(fmt.Sprintf("could not encode payload: %v", err))
	}
	return HashToID(data)
}

// CertifiedRound is a position of the consensus round clock: the round of
// the latest certified block within an epoch. Values for the same epoch are
// monotonically non-decreasing.
type CertifiedRound struct {
	Epoch uint64
	Round uint64
}

// BatchInfo is the immutable metadata of one batch. It is created once at
// batch creation time and is the message signed by validators when they
// acknowledge durable storage of the batch.
type BatchInfo struct {
	Author     Identifier
	Digest     Identifier
	Epoch      uint64
	Expiration CertifiedRound
	NumTxns    uint64
	NumBytes   uint64
}

// ID returns a collision-resistant identifier covering all metadata fields.
// Two infos with the same digest but diverging metadata have different IDs.
func (b BatchInfo) ID() Identifier {
	return MakeID(b)
}

// SignableBytes returns the canonical encoding of the info, used as the
// signed message for batch acknowledgements.
func (b BatchInfo) SignableBytes() []byte {
	data, err := msgpack.Marshal(b)
	if err != nil {
		panic(fmt.Sprintf("could not encode batch info: %v", err))
	}
	return data
}

// Batch pairs the metadata of a batch with its transaction payload. This is
// the unit an author disseminates to its peers.
type Batch struct {
	Info    BatchInfo
	Payload Payload
}

// NewBatch builds a batch from an author and payload, deriving the digest
// from the canonical payload encoding.
func NewBatch(author Identifier, epoch uint64, expiration CertifiedRound, payload Payload) (*Batch, error) {
	batch := &Batch{
		Info: BatchInfo{
			Author:     author,
			Digest:     payload.Digest(),
			Epoch:      epoch,
			Expiration: expiration,
			NumTxns:    uint64(len(payload)),
			NumBytes:   payload.NumBytes(),
		},
		Payload: payload,
	}
	return batch, nil
}

// StorageMode indicates which quota tiers a stored batch was admitted to.
type StorageMode int

const (
	// StorageModePersistedOnly covers batches admitted to the persistent
	// tier only; their payload is evicted from memory after save.
	StorageModePersistedOnly StorageMode = iota
	// StorageModeMemoryAndPersisted covers batches whose payload is kept
	// resident in memory in addition to the persistent copy.
	StorageModeMemoryAndPersisted
)

func (m StorageMode) String() string {
	switch m {
	case StorageModePersistedOnly:
		return "persisted_only"
	case StorageModeMemoryAndPersisted:
		return "memory_and_persisted"
	}
	return fmt.Sprintf("unknown_mode_%d", int(m))
}

// PersistedValue is the stored record for one digest. Payload is nil when
// the batch was admitted with StorageModePersistedOnly; the payload then
// lives only in the persistent store.
type PersistedValue struct {
	Author     Identifier
	Digest     Identifier
	Expiration CertifiedRound
	NumBytes   uint64
	Payload    Payload
}

// AsPersisted converts a batch into its stored record.
func (b *Batch) AsPersisted() *PersistedValue {
	return &PersistedValue{
		Author:     b.Info.Author,
		Digest:     b.Info.Digest,
		Expiration: b.Info.Expiration,
		NumBytes:   b.Info.NumBytes,
		Payload:    b.Payload,
	}
}
