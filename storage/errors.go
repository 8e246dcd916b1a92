package storage

import (
	"errors"
)

var (
	// ErrNotFound is returned when a retrieved key does not exist in the
	// database. Usage: errors.Is(err, storage.ErrNotFound)
	ErrNotFound = errors.New("key not found")

	// ErrAlreadyExists is returned when an insert attempts to set the value
	// of an existing key. Usage: errors.Is(err, storage.ErrAlreadyExists)
	ErrAlreadyExists = errors.New("key already exists")
)
