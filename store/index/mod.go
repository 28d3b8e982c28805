// Package index implements the provider mapping the raw stash content back
// to its place in contract histories: which bundle an operation sits in,
// which contract and witness a bundle belongs to, which operation outputs a
// chain output backs and where terminal seals point.
//
// The index is strictly consistent: registering a bundle under a different
// contract or witness than before is an error, never an overwrite.
package index

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/rgb-go/rgb/contract"
	"github.com/rgb-go/rgb/encode"
	"github.com/rgb-go/rgb/seal"
	"github.com/rgb-go/rgb/store"
	"github.com/rgb-go/rgb/store/kv"
	"golang.org/x/xerrors"
)

var (
	bucketBundleContract = []byte("index:bundle-contract")
	bucketBundleWitness  = []byte("index:bundle-witness")
	bucketOpBundle       = []byte("index:op-bundle")
	bucketOutputs        = []byte("index:outputs")
	bucketTerminals      = []byte("index:terminals")
)

// DistinctBundleContractError is returned when a bundle is registered under
// two different contracts.
type DistinctBundleContractError struct {
	Bundle contract.BundleId
}

func (e DistinctBundleContractError) Error() string {
	return fmt.Sprintf("bundle %v is already registered under another contract", e.Bundle)
}

// DistinctBundleWitnessError is returned when a bundle is registered under
// two different witnesses.
type DistinctBundleWitnessError struct {
	Bundle contract.BundleId
}

func (e DistinctBundleWitnessError) Error() string {
	return fmt.Sprintf("bundle %v is already registered under another witness", e.Bundle)
}

// DistinctBundleOpError is returned when an operation is registered in two
// different bundles.
type DistinctBundleOpError struct {
	Opid contract.Opid
}

func (e DistinctBundleOpError) Error() string {
	return fmt.Sprintf("operation %v is already registered in another bundle", e.Opid)
}

// Index is the in-memory cache over the index buckets.
//
// - implements store.Transaction
type Index struct {
	db    kv.DB
	dirty bool

	bundleContract map[contract.BundleId]contract.ContractId
	bundleWitness  map[contract.BundleId]seal.WitnessId
	opBundle       map[contract.Opid]contract.BundleId
	outputs        map[seal.Output][]contract.Opout
	terminals      map[seal.SecretSeal][]contract.Opout
}

// NewIndex creates an ephemeral index without a backing database.
func NewIndex() *Index {
	return &Index{
		bundleContract: map[contract.BundleId]contract.ContractId{},
		bundleWitness:  map[contract.BundleId]seal.WitnessId{},
		opBundle:       map[contract.Opid]contract.BundleId{},
		outputs:        map[seal.Output][]contract.Opout{},
		terminals:      map[seal.SecretSeal][]contract.Opout{},
	}
}

// LoadIndex creates an index over the database, reading every bucket into
// the cache.
func LoadIndex(db kv.DB) (*Index, error) {
	idx := NewIndex()
	idx.db = db

	err := db.View(func(txn kv.ReadableTx) error {
		err := loadIds(txn, bucketBundleContract, func(k, v [32]byte) {
			idx.bundleContract[contract.BundleId(k)] = contract.ContractId(v)
		})
		if err != nil {
			return err
		}

		err = loadBucket(txn, bucketBundleWitness, func(k, v []byte) error {
			id := seal.WitnessId{}
			if err := encode.Unmarshal(v, &id); err != nil {
				return err
			}

			bundleID := contract.BundleId{}
			copy(bundleID[:], k)

			idx.bundleWitness[bundleID] = id

			return nil
		})
		if err != nil {
			return err
		}

		err = loadIds(txn, bucketOpBundle, func(k, v [32]byte) {
			idx.opBundle[contract.Opid(k)] = contract.BundleId(v)
		})
		if err != nil {
			return err
		}

		err = loadBucket(txn, bucketOutputs, func(k, v []byte) error {
			output := seal.Output{}
			if err := encode.Unmarshal(k, &output); err != nil {
				return err
			}

			opouts := []contract.Opout{}
			if err := encode.Unmarshal(v, &opouts); err != nil {
				return err
			}

			idx.outputs[output] = opouts

			return nil
		})
		if err != nil {
			return err
		}

		return loadBucket(txn, bucketTerminals, func(k, v []byte) error {
			secret := seal.SecretSeal{}
			copy(secret[:], k)

			opouts := []contract.Opout{}
			if err := encode.Unmarshal(v, &opouts); err != nil {
				return err
			}

			idx.terminals[secret] = opouts

			return nil
		})
	})
	if err != nil {
		return nil, xerrors.Errorf("couldn't load index: %v", err)
	}

	return idx, nil
}

func loadBucket(txn kv.ReadableTx, name []byte, fn func(k, v []byte) error) error {
	bucket := txn.GetBucket(name)
	if bucket == nil {
		return nil
	}

	return bucket.ForEach(fn)
}

func loadIds(txn kv.ReadableTx, name []byte, fn func(k, v [32]byte)) error {
	return loadBucket(txn, name, func(k, v []byte) error {
		key := [32]byte{}
		copy(key[:], k)

		value := [32]byte{}
		copy(value[:], v)

		fn(key, value)

		return nil
	})
}

// RegisterBundle records the contract and witness of the bundle. It is
// idempotent, but a conflicting registration is an error.
func (idx *Index) RegisterBundle(bundleID contract.BundleId,
	contractID contract.ContractId, witnessID seal.WitnessId) error {

	existing, ok := idx.bundleContract[bundleID]
	if ok && existing != contractID {
		return DistinctBundleContractError{Bundle: bundleID}
	}

	witness, ok := idx.bundleWitness[bundleID]
	if ok && witness != witnessID {
		return DistinctBundleWitnessError{Bundle: bundleID}
	}

	if idx.bundleContract[bundleID] != contractID ||
		idx.bundleWitness[bundleID] != witnessID {

		idx.bundleContract[bundleID] = contractID
		idx.bundleWitness[bundleID] = witnessID
		idx.dirty = true
	}

	return nil
}

// RegisterOp records the bundle holding the operation. A conflicting
// registration is an error.
func (idx *Index) RegisterOp(opid contract.Opid, bundleID contract.BundleId) error {
	existing, ok := idx.opBundle[opid]
	if ok {
		if existing != bundleID {
			return DistinctBundleOpError{Opid: opid}
		}

		return nil
	}

	idx.opBundle[opid] = bundleID
	idx.dirty = true

	return nil
}

// RegisterOutput records that the chain output backs the operation output.
func (idx *Index) RegisterOutput(output seal.Output, opout contract.Opout) {
	for _, existing := range idx.outputs[output] {
		if existing == opout {
			return
		}
	}

	idx.outputs[output] = append(idx.outputs[output], opout)
	idx.dirty = true
}

// RegisterTerminal records that the secret seal receives the operation
// output.
func (idx *Index) RegisterTerminal(secret seal.SecretSeal, opout contract.Opout) {
	for _, existing := range idx.terminals[secret] {
		if existing == opout {
			return
		}
	}

	idx.terminals[secret] = append(idx.terminals[secret], opout)
	idx.dirty = true
}

// BundleContract returns the contract of the bundle.
func (idx *Index) BundleContract(bundleID contract.BundleId) (contract.ContractId, error) {
	id, ok := idx.bundleContract[bundleID]
	if !ok {
		return id, store.NotFoundError{Kind: "bundle", Id: bundleID}
	}

	return id, nil
}

// BundleWitness returns the witness of the bundle.
func (idx *Index) BundleWitness(bundleID contract.BundleId) (seal.WitnessId, error) {
	id, ok := idx.bundleWitness[bundleID]
	if !ok {
		return id, store.NotFoundError{Kind: "bundle", Id: bundleID}
	}

	return id, nil
}

// OpBundle returns the bundle holding the operation.
func (idx *Index) OpBundle(opid contract.Opid) (contract.BundleId, error) {
	id, ok := idx.opBundle[opid]
	if !ok {
		return id, store.NotFoundError{Kind: "operation", Id: opid}
	}

	return id, nil
}

// OpoutsByOutput returns the operation outputs backed by the chain output,
// sorted for reproducibility.
func (idx *Index) OpoutsByOutput(output seal.Output) []contract.Opout {
	opouts := append([]contract.Opout{}, idx.outputs[output]...)
	sortOpouts(opouts)

	return opouts
}

// TerminalOpouts returns the operation outputs assigned to the secret seal,
// sorted for reproducibility.
func (idx *Index) TerminalOpouts(secret seal.SecretSeal) []contract.Opout {
	opouts := append([]contract.Opout{}, idx.terminals[secret]...)
	sortOpouts(opouts)

	return opouts
}

func sortOpouts(opouts []contract.Opout) {
	sort.Slice(opouts, func(i, j int) bool {
		left, right := opouts[i], opouts[j]

		switch {
		case left.Op != right.Op:
			return bytes.Compare(left.Op[:], right.Op[:]) < 0
		case left.Ty != right.Ty:
			return left.Ty < right.Ty
		default:
			return left.No < right.No
		}
	})
}

// Commit implements store.Transaction. It flushes the cache to the backing
// database in one transaction.
func (idx *Index) Commit() error {
	if !idx.dirty || idx.db == nil {
		idx.dirty = false

		return nil
	}

	err := idx.db.Update(func(txn kv.WritableTx) error {
		bucket, err := txn.GetBucketOrCreate(bucketBundleContract)
		if err != nil {
			return err
		}

		for bundleID, contractID := range idx.bundleContract {
			if err := bucket.Set(bundleID[:], contractID[:]); err != nil {
				return err
			}
		}

		bucket, err = txn.GetBucketOrCreate(bucketBundleWitness)
		if err != nil {
			return err
		}

		for bundleID, witnessID := range idx.bundleWitness {
			data, err := encode.Marshal(witnessID)
			if err != nil {
				return err
			}

			if err := bucket.Set(bundleID[:], data); err != nil {
				return err
			}
		}

		bucket, err = txn.GetBucketOrCreate(bucketOpBundle)
		if err != nil {
			return err
		}

		for opid, bundleID := range idx.opBundle {
			if err := bucket.Set(opid[:], bundleID[:]); err != nil {
				return err
			}
		}

		bucket, err = txn.GetBucketOrCreate(bucketOutputs)
		if err != nil {
			return err
		}

		for output, opouts := range idx.outputs {
			key, err := encode.Marshal(output)
			if err != nil {
				return err
			}

			data, err := encode.Marshal(opouts)
			if err != nil {
				return err
			}

			if err := bucket.Set(key, data); err != nil {
				return err
			}
		}

		bucket, err = txn.GetBucketOrCreate(bucketTerminals)
		if err != nil {
			return err
		}

		for secret, opouts := range idx.terminals {
			data, err := encode.Marshal(opouts)
			if err != nil {
				return err
			}

			if err := bucket.Set(secret[:], data); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return xerrors.Errorf("couldn't flush index: %v", err)
	}

	idx.dirty = false

	return nil
}

// Rollback implements store.Transaction.
func (idx *Index) Rollback() error {
	return store.ErrRollbackUnsupported
}
