// This file contains the three operation kinds of the contract DAG. The
// identity of an operation is the hash of its disclose form, where every
// assignment appears concealed, so that two peers holding differently
// disclosed copies of the same operation agree on its id.

package contract

import (
	"github.com/rgb-go/rgb/encode"
	"github.com/rgb-go/rgb/seal"
	"golang.org/x/xerrors"
)

// Genesis is the root operation creating a contract. It has no inputs; the
// contract id is derived from it.
type Genesis struct {
	_ struct{} `cbor:",toarray"`

	SchemaID    SchemaId
	Chain       seal.ChainNet
	Timestamp   int64
	Metadata    Metadata
	GlobalState GlobalState
	Owned       Assignments
}

// ID implements Operation.
func (g Genesis) ID() Opid {
	return Opid(encode.DigestBytes("rgb:op:genesis", digestSlice(g.DiscloseHash())))
}

// ContractID derives the contract identifier from the genesis.
func (g Genesis) ContractID() ContractId {
	return ContractId(encode.DigestBytes("rgb:contract", digestSlice(g.DiscloseHash())))
}

// DiscloseHash implements Operation.
func (g Genesis) DiscloseHash() encode.Digest {
	digest, err := encode.DigestValue("rgb:disclose:genesis", struct {
		_ struct{} `cbor:",toarray"`

		SchemaID    [32]byte
		Chain       seal.ChainNet
		Timestamp   int64
		Metadata    Metadata
		GlobalState GlobalState
		Owned       [32]byte
	}{
		SchemaID:    g.SchemaID,
		Chain:       g.Chain,
		Timestamp:   g.Timestamp,
		Metadata:    g.Metadata,
		GlobalState: g.GlobalState,
		Owned:       g.Owned.DiscloseHash(),
	})
	if err != nil {
		panic("genesis encoding failed: " + err.Error())
	}

	return digest
}

// Globals implements Operation.
func (g Genesis) Globals() GlobalState {
	return g.GlobalState
}

// Assignments implements Operation.
func (g Genesis) Assignments() Assignments {
	return g.Owned
}

// Inputs implements Operation. A genesis never consumes anything.
func (g Genesis) Inputs() []Opout {
	return nil
}

// Transition is an operation consuming owned state of ancestor operations
// and assigning new owned state.
type Transition struct {
	_ struct{} `cbor:",toarray"`

	ContractID  ContractId
	Ty          TransitionType
	Metadata    Metadata
	GlobalState GlobalState
	Owned       Assignments
	Consumed    []Opout
}

// NewTransition builds a transition, enforcing the non-empty input rule:
// only blank transitions may leave the consumed set empty at this level, and
// even those need at least one input to have a reason to exist. The consumed
// set must not list the same output twice.
func NewTransition(contract ContractId, ty TransitionType, inputs []Opout,
	owned Assignments) (Transition, error) {

	if len(inputs) == 0 {
		return Transition{}, xerrors.New("transition consumes no input")
	}

	seen := make(map[Opout]struct{}, len(inputs))
	for _, opout := range inputs {
		if _, ok := seen[opout]; ok {
			return Transition{}, xerrors.Errorf("transition consumes output %v twice", opout)
		}

		seen[opout] = struct{}{}
	}

	return Transition{
		ContractID: contract,
		Ty:         ty,
		Owned:      owned,
		Consumed:   inputs,
	}, nil
}

// ID implements Operation.
func (t Transition) ID() Opid {
	return Opid(encode.DigestBytes("rgb:op:transition", digestSlice(t.DiscloseHash())))
}

// DiscloseHash implements Operation.
func (t Transition) DiscloseHash() encode.Digest {
	digest, err := encode.DigestValue("rgb:disclose:transition", struct {
		_ struct{} `cbor:",toarray"`

		ContractID  [32]byte
		Ty          TransitionType
		Metadata    Metadata
		GlobalState GlobalState
		Owned       [32]byte
		Consumed    []Opout
	}{
		ContractID:  t.ContractID,
		Ty:          t.Ty,
		Metadata:    t.Metadata,
		GlobalState: t.GlobalState,
		Owned:       t.Owned.DiscloseHash(),
		Consumed:    t.Consumed,
	})
	if err != nil {
		panic("transition encoding failed: " + err.Error())
	}

	return digest
}

// Globals implements Operation.
func (t Transition) Globals() GlobalState {
	return t.GlobalState
}

// Assignments implements Operation.
func (t Transition) Assignments() Assignments {
	return t.Owned
}

// Inputs implements Operation.
func (t Transition) Inputs() []Opout {
	return t.Consumed
}

// IsBlank reports whether the transition only moves unrelated state out of
// the way of a spend.
func (t Transition) IsBlank() bool {
	return t.Ty == BlankTransition
}

// Extension is an operation adding state without closing seals. It is
// published without a witness of its own and becomes operative when a later
// transition consumes its outputs.
type Extension struct {
	_ struct{} `cbor:",toarray"`

	ContractID  ContractId
	Ty          ExtensionType
	Metadata    Metadata
	GlobalState GlobalState
	Owned       Assignments
}

// ID implements Operation.
func (e Extension) ID() Opid {
	return Opid(encode.DigestBytes("rgb:op:extension", digestSlice(e.DiscloseHash())))
}

// DiscloseHash implements Operation.
func (e Extension) DiscloseHash() encode.Digest {
	digest, err := encode.DigestValue("rgb:disclose:extension", struct {
		_ struct{} `cbor:",toarray"`

		ContractID  [32]byte
		Ty          ExtensionType
		Metadata    Metadata
		GlobalState GlobalState
		Owned       [32]byte
	}{
		ContractID:  e.ContractID,
		Ty:          e.Ty,
		Metadata:    e.Metadata,
		GlobalState: e.GlobalState,
		Owned:       e.Owned.DiscloseHash(),
	})
	if err != nil {
		panic("extension encoding failed: " + err.Error())
	}

	return digest
}

// Globals implements Operation.
func (e Extension) Globals() GlobalState {
	return e.GlobalState
}

// Assignments implements Operation.
func (e Extension) Assignments() Assignments {
	return e.Owned
}

// Inputs implements Operation.
func (e Extension) Inputs() []Opout {
	return nil
}

func digestSlice(d encode.Digest) []byte {
	return d[:]
}
