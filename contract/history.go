// This file contains the materialized contract state obtained by replaying
// the DAG. The history is only ever mutated by the replay itself; readers
// get the current global and owned projections annotated with the
// confirmation position of the witness that made each entry effective.

package contract

import (
	"sort"

	"github.com/rgb-go/rgb/encode"
	"github.com/rgb-go/rgb/seal"
	"golang.org/x/xerrors"
)

// GlobalEntry is one value of the append-only global state, together with
// the chain position at which it became effective. Genesis entries carry
// height zero.
type GlobalEntry struct {
	_ struct{} `cbor:",toarray"`

	Value []byte
	Since seal.WitnessAnchor
}

// OwnedEntry is one spendable right of the current owned state.
type OwnedEntry struct {
	_ struct{} `cbor:",toarray"`

	Opout Opout
	Seal  seal.Seal
	State ConcealedState
	// Amount is present when the fungible value behind the commitment was
	// disclosed to this holder.
	Amount *uint64
	Since  seal.WitnessAnchor
}

// History is the replayed state of one contract.
type History struct {
	contractID ContractId
	schemaID   SchemaId
	globals    map[GlobalType][]GlobalEntry
	owned      map[Opout]OwnedEntry
}

// NewHistory starts the history of a contract from its genesis.
func NewHistory(genesis Genesis) *History {
	h := &History{
		contractID: genesis.ContractID(),
		schemaID:   genesis.SchemaID,
		globals:    map[GlobalType][]GlobalEntry{},
		owned:      map[Opout]OwnedEntry{},
	}

	h.fold(genesis.ID(), genesis, seal.WitnessAnchor{Height: 0})

	return h
}

// ContractID returns the contract the history belongs to.
func (h *History) ContractID() ContractId {
	return h.contractID
}

// SchemaID returns the schema the contract is governed by.
func (h *History) SchemaID() SchemaId {
	return h.schemaID
}

// AddTransition folds a transition into the state: its inputs leave the
// owned projection and its assignments enter it.
func (h *History) AddTransition(t Transition, anchor seal.WitnessAnchor) error {
	if t.ContractID != h.contractID {
		return xerrors.Errorf("transition %v belongs to contract %v, not %v",
			t.ID(), t.ContractID, h.contractID)
	}

	for _, input := range t.Consumed {
		delete(h.owned, input)
	}

	h.fold(t.ID(), t, anchor)

	return nil
}

// AddExtension folds an extension into the state.
func (h *History) AddExtension(e Extension, anchor seal.WitnessAnchor) error {
	if e.ContractID != h.contractID {
		return xerrors.Errorf("extension %v belongs to contract %v, not %v",
			e.ID(), e.ContractID, h.contractID)
	}

	h.fold(e.ID(), e, anchor)

	return nil
}

func (h *History) fold(opid Opid, op Operation, anchor seal.WitnessAnchor) {
	for ty, values := range op.Globals() {
		for _, value := range values {
			h.globals[ty] = append(h.globals[ty], GlobalEntry{
				Value: value,
				Since: anchor,
			})
		}
	}

	owned := op.Assignments()
	for ty, list := range owned {
		for i, a := range list {
			opout := Opout{Op: opid, Ty: ty, No: uint16(i)}

			entry := OwnedEntry{
				Opout: opout,
				Seal:  a.Seal(),
				State: a.ConcealedState(),
				Since: anchor,
			}

			if value, ok := a.Fungible(); ok {
				amount := uint64(value)
				entry.Amount = &amount
			}

			h.owned[opout] = entry
		}
	}
}

// Global returns the entries of one global state type in insertion order.
func (h *History) Global(ty GlobalType) []GlobalEntry {
	return h.globals[ty]
}

// Owned returns the current owned state sorted by opout.
func (h *History) Owned() []OwnedEntry {
	entries := make([]OwnedEntry, 0, len(h.owned))
	for _, entry := range h.owned {
		entries = append(entries, entry)
	}

	sortOwned(entries)

	return entries
}

// OwnedAt returns the owned entry of an opout if it is still unspent.
func (h *History) OwnedAt(opout Opout) (OwnedEntry, bool) {
	entry, ok := h.owned[opout]

	return entry, ok
}

// OwnedByOutput returns the owned entries whose revealed seals point at the
// given ledger output.
func (h *History) OwnedByOutput(output seal.Output) []OwnedEntry {
	entries := []OwnedEntry{}

	for _, entry := range h.owned {
		revealed, ok := entry.Seal.Revealed()
		if !ok {
			continue
		}

		at, ok := revealed.Output()
		if ok && at == output {
			entries = append(entries, entry)
		}
	}

	sortOwned(entries)

	return entries
}

func sortOwned(entries []OwnedEntry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Opout, entries[j].Opout
		for k := range a.Op {
			if a.Op[k] != b.Op[k] {
				return a.Op[k] < b.Op[k]
			}
		}

		if a.Ty != b.Ty {
			return a.Ty < b.Ty
		}

		return a.No < b.No
	})
}

type historyWire struct {
	_ struct{} `cbor:",toarray"`

	ContractID [32]byte
	SchemaID   [32]byte
	Globals    map[GlobalType][]GlobalEntry
	Owned      []OwnedEntry
}

// MarshalCBOR implements cbor.Marshaler.
func (h *History) MarshalCBOR() ([]byte, error) {
	return encode.Marshal(historyWire{
		ContractID: h.contractID,
		SchemaID:   h.schemaID,
		Globals:    h.globals,
		Owned:      h.Owned(),
	})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (h *History) UnmarshalCBOR(data []byte) error {
	wire := historyWire{}

	err := encode.Unmarshal(data, &wire)
	if err != nil {
		return xerrors.Errorf("couldn't decode history: %v", err)
	}

	h.contractID = wire.ContractID
	h.schemaID = wire.SchemaID
	h.globals = wire.Globals
	if h.globals == nil {
		h.globals = map[GlobalType][]GlobalEntry{}
	}

	h.owned = map[Opout]OwnedEntry{}
	for _, entry := range wire.Owned {
		h.owned[entry.Opout] = entry
	}

	return nil
}
