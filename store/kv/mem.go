package kv

import (
	"bytes"
	"sort"
	"sync"

	"golang.org/x/xerrors"
)

// MemDB is an in-memory key/value database with the same transactional
// semantics as the bbolt adapter: an update is visible only when the
// callback returns no error.
//
// - implements kv.DB
type memDB struct {
	sync.Mutex

	buckets map[string]map[string][]byte
}

// NewMem creates an empty in-memory database.
func NewMem() DB {
	return &memDB{
		buckets: map[string]map[string][]byte{},
	}
}

// View implements kv.DB.
func (db *memDB) View(fn func(ReadableTx) error) error {
	db.Lock()
	defer db.Unlock()

	return fn(memTx{db: db, staged: db.buckets})
}

// Update implements kv.DB. The callback works on a copy of the touched
// buckets, so an error leaves the database untouched.
func (db *memDB) Update(fn func(WritableTx) error) error {
	db.Lock()
	defer db.Unlock()

	staged := map[string]map[string][]byte{}
	for name, bucket := range db.buckets {
		staged[name] = bucket
	}

	txn := memTx{db: db, staged: staged, cloned: map[string]bool{}}

	err := fn(txn)
	if err != nil {
		return err
	}

	db.buckets = staged

	return nil
}

// Close implements kv.DB.
func (db *memDB) Close() error {
	return nil
}

// MemTx is a transaction over the staged buckets of a memDB.
//
// - implements kv.ReadableTx, kv.WritableTx
type memTx struct {
	db     *memDB
	staged map[string]map[string][]byte
	cloned map[string]bool
}

// GetBucket implements kv.ReadableTx.
func (txn memTx) GetBucket(name []byte) Bucket {
	bucket, ok := txn.staged[string(name)]
	if !ok {
		return nil
	}

	return txn.open(string(name), bucket)
}

// GetBucketOrCreate implements kv.WritableTx.
func (txn memTx) GetBucketOrCreate(name []byte) (Bucket, error) {
	if txn.cloned == nil {
		return nil, xerrors.New("read-only transaction")
	}

	bucket, ok := txn.staged[string(name)]
	if !ok {
		bucket = map[string][]byte{}
		txn.staged[string(name)] = bucket
	}

	return txn.open(string(name), bucket), nil
}

// open clones the bucket on first writable access so a failed update never
// leaks into the committed state.
func (txn memTx) open(name string, bucket map[string][]byte) memBucket {
	if txn.cloned != nil && !txn.cloned[name] {
		clone := make(map[string][]byte, len(bucket))
		for k, v := range bucket {
			clone[k] = v
		}

		txn.staged[name] = clone
		txn.cloned[name] = true
		bucket = clone
	}

	return memBucket{data: bucket, readonly: txn.cloned == nil}
}

// MemBucket is a bucket of a memDB.
//
// - implements kv.Bucket
type memBucket struct {
	data     map[string][]byte
	readonly bool
}

// Get implements kv.Bucket.
func (b memBucket) Get(key []byte) []byte {
	return b.data[string(key)]
}

// Set implements kv.Bucket.
func (b memBucket) Set(key, value []byte) error {
	if b.readonly {
		return xerrors.New("read-only transaction")
	}

	b.data[string(key)] = value

	return nil
}

// Delete implements kv.Bucket.
func (b memBucket) Delete(key []byte) error {
	if b.readonly {
		return xerrors.New("read-only transaction")
	}

	delete(b.data, string(key))

	return nil
}

// ForEach implements kv.Bucket. It iterates in key order so the behaviour
// is reproducible.
func (b memBucket) ForEach(fn func(k, v []byte) error) error {
	keys := make([]string, 0, len(b.data))
	for k := range b.data {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		err := fn([]byte(k), b.data[k])
		if err != nil {
			return err
		}
	}

	return nil
}

// Scan implements kv.Bucket.
func (b memBucket) Scan(prefix []byte, fn func(k, v []byte) error) error {
	return b.ForEach(func(k, v []byte) error {
		if !bytes.HasPrefix(k, prefix) {
			return nil
		}

		return fn(k, v)
	})
}
