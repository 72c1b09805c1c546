// Package store defines the named-tree key/value contract that sits
// beneath the persistent node store and provides two implementations: a
// durable engine backed by bbolt and an in-memory engine used when
// persistence is disabled.
package store

import "errors"

// ErrTreeNotFound names a lookup of a tree that was never opened. Neither
// backend in this package returns it: OpenTree creates a missing tree.
var ErrTreeNotFound = errors.New("store: tree not found")

// ErrKeyNotFound is returned by Tree.Get when the key is absent.
var ErrKeyNotFound = errors.New("store: key not found")

// Tree is a named bucket of key/value pairs. Implementations must be
// safe for concurrent use by multiple goroutines.
type Tree interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	// DeleteRange removes every key with the given prefix and returns the
	// count removed.
	DeleteRange(prefix []byte) (int, error)
	// ForEach calls fn for every key/value pair in the tree. Iteration
	// stops early if fn returns an error, which ForEach then returns.
	ForEach(fn func(key, value []byte) error) error
	// Len reports the number of entries currently stored.
	Len() (int, error)
}

// Backend is a named-tree store: trees are created on first OpenTree and
// persist for the lifetime of the backend.
type Backend interface {
	// OpenTree returns the named tree, creating it if it does not exist.
	OpenTree(name string) (Tree, error)
	// Path reports the backing directory or file, or "" for in-memory.
	Path() string
	Close() error
}
