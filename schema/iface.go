// This file contains interface implementations: the binding between an
// abstract interface definition (produced by external tooling and known here
// only by id) and the concrete types of a schema.

package schema

import (
	"fmt"

	"github.com/rgb-go/rgb/contract"
	"github.com/rgb-go/rgb/encode"
)

// IfaceId is the external identifier of an interface definition.
type IfaceId [32]byte

func (id IfaceId) String() string {
	return fmt.Sprintf("%x", id[:])[:8]
}

// IfaceImpl binds the named state of an interface to the typed state of a
// schema.
type IfaceImpl struct {
	Iface       IfaceId                          `cbor:"1,keyasint" yaml:"iface"`
	SchemaID    contract.SchemaId                `cbor:"2,keyasint" yaml:"schema"`
	Globals     map[string]contract.GlobalType   `cbor:"3,keyasint" yaml:"globals,omitempty"`
	Assignments map[string]contract.StateType    `cbor:"4,keyasint" yaml:"assignments,omitempty"`
	Transitions map[string]contract.TransitionType `cbor:"5,keyasint" yaml:"transitions,omitempty"`
}

// ID returns the content-addressed identifier of the implementation.
func (i IfaceImpl) ID() contract.ImplId {
	digest, err := encode.DigestValue("rgb:iface-impl", i)
	if err != nil {
		panic("iface impl encoding failed: " + err.Error())
	}

	return contract.ImplId(digest)
}

// GlobalType resolves an interface state name to the schema type.
func (i IfaceImpl) GlobalType(name string) (contract.GlobalType, bool) {
	ty, ok := i.Globals[name]

	return ty, ok
}

// AssignmentType resolves an interface state name to the schema type.
func (i IfaceImpl) AssignmentType(name string) (contract.StateType, bool) {
	ty, ok := i.Assignments[name]

	return ty, ok
}

// TransitionType resolves an interface operation name to the schema type.
func (i IfaceImpl) TransitionType(name string) (contract.TransitionType, bool) {
	ty, ok := i.Transitions[name]

	return ty, ok
}
