package kv

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func TestBoltDB_UpdateAndView(t *testing.T) {
	db := makeDB(t)

	bucket := []byte("test")

	err := db.Update(bucket, func(b Bucket) error {
		return b.Set([]byte("ping"), []byte("pong"))
	})
	require.NoError(t, err)

	err = db.View(bucket, func(b Bucket) error {
		require.Equal(t, []byte("pong"), b.Get([]byte("ping")))
		require.Nil(t, b.Get([]byte("missing")))

		return nil
	})
	require.NoError(t, err)

	err = db.View([]byte("unknown"), func(Bucket) error {
		return nil
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
	require.ErrorIs(t, err, ErrBucketNotFound)
}

func TestBoltDB_Delete(t *testing.T) {
	db := makeDB(t)

	bucket := []byte("test")

	err := db.Update(bucket, func(b Bucket) error {
		require.NoError(t, b.Set([]byte("key"), []byte("value")))

		return b.Delete([]byte("key"))
	})
	require.NoError(t, err)

	err = db.View(bucket, func(b Bucket) error {
		require.Nil(t, b.Get([]byte("key")))

		return nil
	})
	require.NoError(t, err)
}

func TestBoltBucket_ForEach(t *testing.T) {
	db := makeDB(t)

	bucket := []byte("test")

	err := db.Update(bucket, func(b Bucket) error {
		require.NoError(t, b.Set([]byte("a"), []byte{1}))
		require.NoError(t, b.Set([]byte("b"), []byte{2}))

		return nil
	})
	require.NoError(t, err)

	keys := []string{}

	err = db.View(bucket, func(b Bucket) error {
		return b.ForEach(func(k, v []byte) error {
			keys = append(keys, string(k))

			return nil
		})
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, keys)
}

func TestBoltBucket_Scan(t *testing.T) {
	db := makeDB(t)

	bucket := []byte("test")

	err := db.Update(bucket, func(b Bucket) error {
		require.NoError(t, b.Set([]byte("balance_alice"), []byte{1}))
		require.NoError(t, b.Set([]byte("balance_bob"), []byte{2}))
		require.NoError(t, b.Set([]byte("count"), []byte{3}))

		return nil
	})
	require.NoError(t, err)

	keys := []string{}

	err = db.View(bucket, func(b Bucket) error {
		return b.Scan([]byte("balance_"), func(k, v []byte) error {
			keys = append(keys, string(k))

			return nil
		})
	})
	require.NoError(t, err)
	require.Equal(t, []string{"balance_alice", "balance_bob"}, keys)

	err = db.View(bucket, func(b Bucket) error {
		return b.Scan([]byte("balance_"), func(k, v []byte) error {
			return xerrors.New("oops")
		})
	})
	require.EqualError(t, err, "oops")
}

func makeDB(t *testing.T) DB {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}
