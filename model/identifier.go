package model

import (
	"encoding/hex"
	"fmt"

	"github.com/onflow/crypto/hash"
	"github.com/vmihailenco/msgpack/v4"
)

// Identifier represents a 32-byte unique identifier for an entity. Batch
// digests, node identifiers and entity keys are all identifiers.
type Identifier [32]byte

// ZeroID is the lowest value in the 32-byte ID space.
var ZeroID = Identifier{}

// HexStringToIdentifier converts a hex string to an identifier. The input
// must be 64 characters long and contain only valid hex characters.
func HexStringToIdentifier(hexString string) (Identifier, error) {
	var identifier Identifier
	i, err := hex.Decode(identifier[:], []byte(hexString))
	if err != nil {
		return identifier, err
	}
	if i != 32 {
		return identifier, fmt.Errorf("malformed input, expected 32 bytes (64 characters), decoded %d", i)
	}
	return identifier, nil
}

// String returns the hex string representation of the identifier.
func (id Identifier) String() string {
	return hex.EncodeToString(id[:])
}

func (id Identifier) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *Identifier) UnmarshalText(text []byte) error {
	var err error
	*id, err = HexStringToIdentifier(string(text))
	return err
}

// HashToID hashes the input data with SHA3-256 and returns the digest as
// an identifier.
func HashToID(data []byte) Identifier {
	hasher := hash.NewSHA3_256()
	return Identifier(hasher.ComputeHash(data))
}

// MakeID creates an ID from the canonical encoding of the given entity.
// Entities that cannot be encoded indicate an implementation bug and panic.
func MakeID(entity interface{}) Identifier {
	data, err := msgpack.Marshal(entity)
	if err != nil {
		panic(fmt.Sprintf("could not encode entity for ID: %v", err))
	}
	return HashToID(data)
}
