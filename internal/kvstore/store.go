// Package kvstore provides the named-slot storage the session manager persists
// the vault record and the session marker into.
package kvstore

import (
	"github.com/cockroachdb/errors"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("key not found")

// Store is a string key/value store.
//   - Get returns ErrNotFound for a missing key.
//   - Delete of a missing key is not an error.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
	Close() error
}

const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendBadger = "badger"
)

// Open builds a persistent store for backend rooted at path.
func Open(backend, path string) (Store, error) {
	switch backend {
	case BackendFile:
		return NewFileStore(path)
	case BackendBadger:
		return NewBadgerStore(path)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, errors.Newf("unknown store backend %q", backend)
	}
}
