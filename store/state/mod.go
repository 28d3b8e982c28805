// Package state implements the provider storing the computed history of
// every known contract. The history is the replayed, validated view of the
// operation DAG; it is updated only through closures so a failed update
// never leaves a half-written history behind.
package state

import (
	"bytes"
	"sort"

	"github.com/rgb-go/rgb/contract"
	"github.com/rgb-go/rgb/encode"
	"github.com/rgb-go/rgb/store"
	"github.com/rgb-go/rgb/store/kv"
	"golang.org/x/xerrors"
)

var bucketHistory = []byte("state:history")

// State is the in-memory cache of contract histories.
//
// - implements store.Transaction
type State struct {
	db    kv.DB
	dirty bool

	histories map[contract.ContractId]*contract.History
}

// NewState creates an ephemeral state provider without a backing database.
func NewState() *State {
	return &State{
		histories: map[contract.ContractId]*contract.History{},
	}
}

// LoadState creates a state provider over the database, reading every
// history into the cache.
func LoadState(db kv.DB) (*State, error) {
	s := NewState()
	s.db = db

	err := db.View(func(txn kv.ReadableTx) error {
		bucket := txn.GetBucket(bucketHistory)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			history := &contract.History{}
			if err := encode.Unmarshal(v, history); err != nil {
				return err
			}

			s.histories[history.ContractID()] = history

			return nil
		})
	})
	if err != nil {
		return nil, xerrors.Errorf("couldn't load state: %v", err)
	}

	return s, nil
}

// CreateOrUpdateState folds the update into the stored history of the
// contract, creating it from the genesis history when the contract is new.
// The update works on a copy, so an error leaves the stored history intact.
func (s *State) CreateOrUpdateState(fresh *contract.History,
	update func(h *contract.History) error) error {

	contractID := fresh.ContractID()

	base, ok := s.histories[contractID]
	if !ok {
		base = fresh
	}

	working, err := cloneHistory(base)
	if err != nil {
		return xerrors.Errorf("couldn't clone history: %v", err)
	}

	if update != nil {
		err = update(working)
		if err != nil {
			return err
		}
	}

	s.histories[contractID] = working
	s.dirty = true

	return nil
}

// UpdateState folds the update into the stored history of the contract. It
// returns an UnknownContractError when the contract has never been seen.
func (s *State) UpdateState(contractID contract.ContractId,
	update func(h *contract.History) error) error {

	base, ok := s.histories[contractID]
	if !ok {
		return store.UnknownContractError{ContractID: contractID}
	}

	working, err := cloneHistory(base)
	if err != nil {
		return xerrors.Errorf("couldn't clone history: %v", err)
	}

	err = update(working)
	if err != nil {
		return err
	}

	s.histories[contractID] = working
	s.dirty = true

	return nil
}

// History returns the stored history of the contract.
func (s *State) History(contractID contract.ContractId) (*contract.History, error) {
	history, ok := s.histories[contractID]
	if !ok {
		return nil, store.UnknownContractError{ContractID: contractID}
	}

	return history, nil
}

// Contracts returns the ids of every contract with a history, sorted for
// reproducibility.
func (s *State) Contracts() []contract.ContractId {
	ids := make([]contract.ContractId, 0, len(s.histories))
	for id := range s.histories {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})

	return ids
}

// Commit implements store.Transaction. It flushes the cache to the backing
// database in one transaction.
func (s *State) Commit() error {
	if !s.dirty || s.db == nil {
		s.dirty = false

		return nil
	}

	err := s.db.Update(func(txn kv.WritableTx) error {
		bucket, err := txn.GetBucketOrCreate(bucketHistory)
		if err != nil {
			return err
		}

		for contractID, history := range s.histories {
			data, err := encode.Marshal(history)
			if err != nil {
				return xerrors.Errorf("couldn't encode history: %v", err)
			}

			if err := bucket.Set(contractID[:], data); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return xerrors.Errorf("couldn't flush state: %v", err)
	}

	s.dirty = false

	return nil
}

// Rollback implements store.Transaction.
func (s *State) Rollback() error {
	return store.ErrRollbackUnsupported
}

// cloneHistory deep-copies a history through its canonical encoding.
func cloneHistory(h *contract.History) (*contract.History, error) {
	data, err := encode.Marshal(h)
	if err != nil {
		return nil, err
	}

	clone := &contract.History{}

	err = encode.Unmarshal(data, clone)
	if err != nil {
		return nil, err
	}

	return clone, nil
}
