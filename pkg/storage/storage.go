// Package storage persists opaque key/value records for the end-to-end
// encryption provider: identity keys, device lists and trust decisions.
package storage

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Load when the key has never been stored.
var ErrNotFound = errors.New("storage: key not found")

// Store is a flat key/value store. Keys are slash-separated paths such as
// "sealed/devices/alice@example.org".
type Store interface {
	Load(key string) ([]byte, error)
	Store(key string, value []byte) error
	Delete(key string) error
	// Keys lists stored keys that start with prefix, sorted.
	Keys(prefix string) ([]string, error)
	Close() error
}

const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Open returns the backend named by backend rooted at path.
func Open(backend, path string) (Store, error) {
	switch strings.ToLower(backend) {
	case "", BackendJSON:
		return OpenFile(path)
	case BackendSQLite:
		return OpenSQLite(path)
	case BackendMemory:
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", backend)
}
