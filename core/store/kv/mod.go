// Package kv defines the abstraction for a key/value database and implements
// it with bbolt (https://github.com/etcd-io/bbolt).
//
// The engine uses it to read the chain-state snapshot maintained by the node.
package kv

import (
	"bytes"

	"golang.org/x/xerrors"
)

// ErrBucketNotFound is returned by View when the bucket has never been
// created. Readers match it with errors.Is to treat the store as empty.
var ErrBucketNotFound = xerrors.New("bucket not found")

// Bucket is a general interface to operate on a database bucket.
type Bucket interface {
	// Get reads the key from the bucket and returns the value, or nil if the
	// key does not exist.
	Get(key []byte) []byte

	// Set assigns the value to the provided key.
	Set(key, value []byte) error

	// Delete deletes the key from the bucket.
	Delete(key []byte) error

	// ForEach iterates over all the items in the bucket in an unspecified
	// order. The iteration stops when the callback returns an error.
	ForEach(fn func(k, v []byte) error) error

	// Scan iterates over every key that matches the prefix. The iteration
	// stops when the callback returns an error.
	Scan(prefix []byte, fn func(k, v []byte) error) error
}

// DB is a general interface to operate over a key/value database.
type DB interface {
	// View executes the provided read-only function against the bucket. It
	// returns an error when the bucket does not exist.
	View(bucket []byte, fn func(Bucket) error) error

	// Update executes the provided writable function against the bucket,
	// creating it beforehand when necessary.
	Update(bucket []byte, fn func(Bucket) error) error

	// Close closes the database. Any call will result in an error afterwards.
	Close() error
}

func matchPrefix(key, prefix []byte) bool {
	return len(prefix) == 0 || bytes.HasPrefix(key, prefix)
}
