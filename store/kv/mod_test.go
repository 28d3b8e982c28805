package kv

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func TestBoltDB_WriteAndRead(t *testing.T) {
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	defer db.Close()

	testDBWriteAndRead(t, db)
}

func TestMemDB_WriteAndRead(t *testing.T) {
	db := NewMem()

	defer db.Close()

	testDBWriteAndRead(t, db)
}

func TestMemDB_FailedUpdateIsDiscarded(t *testing.T) {
	db := NewMem()

	err := db.Update(func(txn WritableTx) error {
		bucket, err := txn.GetBucketOrCreate([]byte("test"))
		require.NoError(t, err)

		require.NoError(t, bucket.Set([]byte("ping"), []byte("pong")))

		return nil
	})
	require.NoError(t, err)

	err = db.Update(func(txn WritableTx) error {
		bucket, err := txn.GetBucketOrCreate([]byte("test"))
		require.NoError(t, err)

		require.NoError(t, bucket.Set([]byte("ping"), []byte("changed")))

		return xerrors.New("oops")
	})
	require.EqualError(t, err, "oops")

	err = db.View(func(txn ReadableTx) error {
		bucket := txn.GetBucket([]byte("test"))
		require.NotNil(t, bucket)

		require.Equal(t, []byte("pong"), bucket.Get([]byte("ping")))

		return nil
	})
	require.NoError(t, err)
}

func TestMemDB_ReadOnlyTx(t *testing.T) {
	db := NewMem()

	require.NoError(t, db.Update(func(txn WritableTx) error {
		_, err := txn.GetBucketOrCreate([]byte("test"))

		return err
	}))

	err := db.View(func(txn ReadableTx) error {
		bucket := txn.GetBucket([]byte("test"))

		return bucket.Set([]byte("a"), []byte("b"))
	})
	require.EqualError(t, err, "read-only transaction")
}

func testDBWriteAndRead(t *testing.T, db DB) {
	t.Helper()

	err := db.Update(func(txn WritableTx) error {
		bucket, err := txn.GetBucketOrCreate([]byte("test"))
		require.NoError(t, err)

		require.NoError(t, bucket.Set([]byte("aa"), []byte("1")))
		require.NoError(t, bucket.Set([]byte("ab"), []byte("2")))
		require.NoError(t, bucket.Set([]byte("bb"), []byte("3")))

		return nil
	})
	require.NoError(t, err)

	err = db.View(func(txn ReadableTx) error {
		require.Nil(t, txn.GetBucket([]byte("missing")))

		bucket := txn.GetBucket([]byte("test"))
		require.NotNil(t, bucket)

		require.Equal(t, []byte("1"), bucket.Get([]byte("aa")))
		require.Nil(t, bucket.Get([]byte("zz")))

		count := 0
		err := bucket.ForEach(func(k, v []byte) error {
			count++

			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, count)

		keys := []string{}
		err = bucket.Scan([]byte("a"), func(k, v []byte) error {
			keys = append(keys, string(k))

			return nil
		})
		require.NoError(t, err)
		require.Equal(t, []string{"aa", "ab"}, keys)

		return nil
	})
	require.NoError(t, err)

	err = db.Update(func(txn WritableTx) error {
		bucket, err := txn.GetBucketOrCreate([]byte("test"))
		require.NoError(t, err)

		return bucket.Delete([]byte("aa"))
	})
	require.NoError(t, err)

	err = db.View(func(txn ReadableTx) error {
		require.Nil(t, txn.GetBucket([]byte("test")).Get([]byte("aa")))

		return nil
	})
	require.NoError(t, err)
}
