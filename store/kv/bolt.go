package kv

import (
	"bytes"

	"go.etcd.io/bbolt"
	"golang.org/x/xerrors"
)

// BoltDB is an adapter of the KV store using bbolt.
//
// - implements kv.DB
type boltDB struct {
	bolt *bbolt.DB
}

// New opens a database at the path, creating the file when missing.
func New(path string) (DB, error) {
	db, err := bbolt.Open(path, 0666, &bbolt.Options{})
	if err != nil {
		return nil, xerrors.Errorf("failed to open db: %v", err)
	}

	bdb := boltDB{
		bolt: db,
	}

	return bdb, nil
}

// View implements kv.DB. It opens a read-only transaction.
func (db boltDB) View(fn func(ReadableTx) error) error {
	return db.bolt.View(func(txn *bbolt.Tx) error {
		return fn(boltTx{tx: txn})
	})
}

// Update implements kv.DB. It opens a read-write transaction that commits
// only when the callback returns no error.
func (db boltDB) Update(fn func(WritableTx) error) error {
	return db.bolt.Update(func(txn *bbolt.Tx) error {
		return fn(boltTx{tx: txn})
	})
}

// Close implements kv.DB. It closes the database. Any view or update call
// will result in an error after this function is called.
func (db boltDB) Close() error {
	return db.bolt.Close()
}

// BoltTx is the adapter of a bbolt transaction to the kv interfaces.
//
// - implements kv.ReadableTx, kv.WritableTx
type boltTx struct {
	tx *bbolt.Tx
}

// GetBucket implements kv.ReadableTx. It returns nil if the bucket does not
// exist.
func (txn boltTx) GetBucket(name []byte) Bucket {
	bucket := txn.tx.Bucket(name)
	if bucket == nil {
		return nil
	}

	return boltBucket{bucket: bucket}
}

// GetBucketOrCreate implements kv.WritableTx.
func (txn boltTx) GetBucketOrCreate(name []byte) (Bucket, error) {
	bucket, err := txn.tx.CreateBucketIfNotExists(name)
	if err != nil {
		return nil, xerrors.Errorf("failed to create bucket: %v", err)
	}

	return boltBucket{bucket: bucket}, nil
}

// BoltBucket is the adapter of a bbolt bucket to the kv.Bucket interface.
//
// - implements kv.Bucket
type boltBucket struct {
	bucket *bbolt.Bucket
}

// Get implements kv.Bucket. It returns the value associated to the key.
func (b boltBucket) Get(key []byte) []byte {
	return b.bucket.Get(key)
}

// Set implements kv.Bucket. It sets the provided key to the value.
func (b boltBucket) Set(key, value []byte) error {
	return b.bucket.Put(key, value)
}

// Delete implements kv.Bucket. It deletes the key from the bucket.
func (b boltBucket) Delete(key []byte) error {
	return b.bucket.Delete(key)
}

// ForEach implements kv.Bucket. It iterates over the whole bucket.
func (b boltBucket) ForEach(fn func(k, v []byte) error) error {
	return b.bucket.ForEach(fn)
}

// Scan implements kv.Bucket. It iterates over the keys matching the prefix.
func (b boltBucket) Scan(prefix []byte, fn func(k, v []byte) error) error {
	cursor := b.bucket.Cursor()

	for k, v := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cursor.Next() {
		err := fn(k, v)
		if err != nil {
			return xerrors.Errorf("callback failed: %v", err)
		}
	}

	return nil
}
