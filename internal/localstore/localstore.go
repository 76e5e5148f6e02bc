// Package localstore is the durable device-local key-value store that
// survives crashes and restarts. Values are whole JSON documents;
// writes are atomic replacements, so readers never observe a partial
// document.
package localstore

import "errors"

// ErrNotFound is returned when a key has no committed value.
var ErrNotFound = errors.New("localstore: not found")

// Store is the minimal atomic document store the engine needs. Put
// either commits the full value or leaves the previous one intact.
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	Close() error
}

// Well-known keys for the engine's durable documents.
const (
	KeyActiveSession = "session/active"
	KeyMutationQueue = "queue/mutations"
)
