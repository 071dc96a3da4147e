// Package chainstate provides the chain-state snapshot consumed by contract
// executions: the current block height, timestamp and account balances.
//
// The base chain maintains this state; the engine only reads it. Two
// providers are implemented: a static in-memory one for tests and tools, and
// one backed by the node's key/value database.
package chainstate

import (
	"encoding/binary"
	"errors"

	"github.com/porwchain/porw/core/execution"
	"github.com/porwchain/porw/core/store/kv"
	"golang.org/x/xerrors"
)

// Provider returns the current chain-state snapshot.
type Provider interface {
	Snapshot() (execution.ChainSnapshot, error)
}

// Static is a fixed snapshot provider.
//
// - implements chainstate.Provider
type Static struct {
	snapshot execution.ChainSnapshot
}

// NewStatic returns a provider always serving the given snapshot.
func NewStatic(snapshot execution.ChainSnapshot) Static {
	if snapshot.Balances == nil {
		snapshot.Balances = map[string]uint64{}
	}

	return Static{snapshot: snapshot}
}

// Snapshot implements chainstate.Provider.
func (s Static) Snapshot() (execution.ChainSnapshot, error) {
	return s.snapshot, nil
}

var (
	bucketChain    = []byte("chainstate")
	bucketBalances = []byte("balances")

	keyHeight    = []byte("block_height")
	keyTimestamp = []byte("timestamp")
)

// Store reads and writes the chain state in a key/value database. The chain
// layer writes it on block application; the engine reads it.
//
// - implements chainstate.Provider
type Store struct {
	db kv.DB
}

// NewStore returns a store over the given database.
func NewStore(db kv.DB) *Store {
	return &Store{db: db}
}

// Snapshot implements chainstate.Provider. It reads the height, timestamp
// and every balance. A database without chain state yet yields the zero
// snapshot.
func (s *Store) Snapshot() (execution.ChainSnapshot, error) {
	snapshot := execution.ChainSnapshot{
		Balances: map[string]uint64{},
	}

	// The buckets do not exist until the chain layer writes them once, in
	// which case the zero snapshot is the correct answer.
	err := s.db.View(bucketChain, func(b kv.Bucket) error {
		if data := b.Get(keyHeight); len(data) == 8 {
			snapshot.BlockHeight = binary.LittleEndian.Uint64(data)
		}

		if data := b.Get(keyTimestamp); len(data) == 8 {
			snapshot.Timestamp = int64(binary.LittleEndian.Uint64(data))
		}

		return nil
	})
	if err != nil && !errors.Is(err, kv.ErrBucketNotFound) {
		return execution.ChainSnapshot{}, xerrors.Errorf("couldn't read chain head: %v", err)
	}

	err = s.db.View(bucketBalances, func(b kv.Bucket) error {
		return b.ForEach(func(k, v []byte) error {
			if len(v) != 8 {
				return xerrors.Errorf("malformed balance for '%s'", k)
			}

			snapshot.Balances[string(k)] = binary.LittleEndian.Uint64(v)

			return nil
		})
	})
	if err != nil && !errors.Is(err, kv.ErrBucketNotFound) {
		return execution.ChainSnapshot{}, err
	}

	return snapshot, nil
}

// SetHead stores the current block height and timestamp.
func (s *Store) SetHead(height uint64, timestamp int64) error {
	return s.db.Update(bucketChain, func(b kv.Bucket) error {
		buffer := make([]byte, 8)
		binary.LittleEndian.PutUint64(buffer, height)

		err := b.Set(keyHeight, buffer)
		if err != nil {
			return xerrors.Errorf("couldn't write height: %v", err)
		}

		buffer = make([]byte, 8)
		binary.LittleEndian.PutUint64(buffer, uint64(timestamp))

		err = b.Set(keyTimestamp, buffer)
		if err != nil {
			return xerrors.Errorf("couldn't write timestamp: %v", err)
		}

		return nil
	})
}

// SetBalance stores the balance of the address.
func (s *Store) SetBalance(addr string, amount uint64) error {
	return s.db.Update(bucketBalances, func(b kv.Bucket) error {
		buffer := make([]byte, 8)
		binary.LittleEndian.PutUint64(buffer, amount)

		return b.Set([]byte(addr), buffer)
	})
}
