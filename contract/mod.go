// Package contract defines the append-only, content-addressed operation
// graph of a contract. Operations are genesis, state transitions and state
// extensions; each one commits to its own canonical serialization, so its
// identifier changes with any mutation. Transitions consume owned state of
// ancestor operations by referencing their outputs, which is how the graph
// forms a DAG rooted at genesis.
package contract

import (
	"fmt"

	"github.com/rgb-go/rgb/encode"
)

// ContractId uniquely names a contract. It is derived deterministically from
// the genesis operation.
type ContractId [32]byte

func (id ContractId) String() string {
	return shortHex(id[:])
}

// Opid is the commitment-derived identifier of a single operation.
type Opid [32]byte

func (id Opid) String() string {
	return shortHex(id[:])
}

// BundleId identifies a transition bundle by the commitment over its input
// map.
type BundleId [32]byte

func (id BundleId) String() string {
	return shortHex(id[:])
}

// SchemaId is the content-addressed identifier of a schema.
type SchemaId [32]byte

func (id SchemaId) String() string {
	return shortHex(id[:])
}

// ImplId is the content-addressed identifier of an interface implementation.
type ImplId [32]byte

func (id ImplId) String() string {
	return shortHex(id[:])
}

// AttachId is the content-addressed identifier of an attachment blob.
type AttachId [32]byte

func (id AttachId) String() string {
	return shortHex(id[:])
}

// LibId is the content-addressed identifier of a script library.
type LibId [32]byte

func (id LibId) String() string {
	return shortHex(id[:])
}

func shortHex(data []byte) string {
	return fmt.Sprintf("%x", data)[:8]
}

// StateType distinguishes the kinds of owned state an operation assigns.
type StateType uint16

// GlobalType distinguishes the kinds of global state an operation appends.
type GlobalType uint16

// MetaType distinguishes the kinds of auxiliary metadata of an operation.
type MetaType uint16

// TransitionType selects the schema rules a transition must conform to.
type TransitionType uint16

// BlankTransition is the reserved type of transitions that consume
// assignments of an unrelated contract solely to move them off an output
// being spent for another reason. Blank transitions are the only ones allowed
// to have no declared schema rules.
const BlankTransition = TransitionType(0xFFFF)

// ExtensionType selects the schema rules an extension must conform to.
type ExtensionType uint16

// Opout references one owned-state entry of an operation: the operation, the
// assignment type and the index in that type's assignment list.
type Opout struct {
	_ struct{} `cbor:",toarray"`

	Op Opid
	Ty StateType
	No uint16
}

func (o Opout) String() string {
	return fmt.Sprintf("%v/%d/%d", o.Op, o.Ty, o.No)
}

// Metadata is typed auxiliary operation data that does not affect state.
type Metadata map[MetaType][]byte

// GlobalState is the typed, append-only key-value data of an operation that
// is visible to all holders.
type GlobalState map[GlobalType][][]byte

// Operation is a node of the contract DAG.
type Operation interface {
	// ID returns the commitment identifier of the operation.
	ID() Opid

	// DiscloseHash returns the commitment over the concealed form of the
	// operation. It is invariant under seal or state revelation.
	DiscloseHash() encode.Digest

	// Globals returns the global state appended by the operation.
	Globals() GlobalState

	// Assignments returns the owned state created by the operation.
	Assignments() Assignments

	// Inputs returns the owned-state entries consumed by the operation. It is
	// empty for genesis and extensions.
	Inputs() []Opout
}
