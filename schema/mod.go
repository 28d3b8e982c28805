// Package schema models the static rules a contract's operations must
// conform to: which global, owned and metadata types exist, what shape their
// state has, and how many of each an operation kind may carry. Schemata are
// produced by external definition tooling and consumed here as static
// configuration; they are content-addressed and immutable once published.
package schema

import (
	"fmt"

	"github.com/rgb-go/rgb/contract"
	"github.com/rgb-go/rgb/encode"
)

// Occurrences bounds how many state items of one type an operation carries.
type Occurrences struct {
	Min uint16 `cbor:"1,keyasint" yaml:"min"`
	Max uint16 `cbor:"2,keyasint" yaml:"max"`
}

// Once is the occurrence bound of exactly one item.
var Once = Occurrences{Min: 1, Max: 1}

// NoneOrMore places no bound on the item count.
var NoneOrMore = Occurrences{Min: 0, Max: 0xFFFF}

// OnceOrMore requires at least one item.
var OnceOrMore = Occurrences{Min: 1, Max: 0xFFFF}

// Check verifies the count against the bounds.
func (o Occurrences) Check(count int) error {
	if count < int(o.Min) || count > int(o.Max) {
		return fmt.Errorf("count %d outside of bounds [%d, %d]",
			count, o.Min, o.Max)
	}

	return nil
}

// GlobalSchema declares one global state type.
type GlobalSchema struct {
	Name     string `cbor:"1,keyasint" yaml:"name"`
	MaxItems uint16 `cbor:"2,keyasint" yaml:"maxItems"`
}

// OwnedSchema declares one owned state type and the shape of its values.
type OwnedSchema struct {
	Name string             `cbor:"1,keyasint" yaml:"name"`
	Kind contract.StateKind `cbor:"2,keyasint" yaml:"kind"`
}

// OpSchema declares the rules of one operation kind: which metadata it may
// carry and the occurrence bounds of its global and owned state per type.
// Inputs is only meaningful for transitions.
type OpSchema struct {
	Metadata    []contract.MetaType                   `cbor:"1,keyasint" yaml:"metadata,omitempty"`
	Globals     map[contract.GlobalType]Occurrences   `cbor:"2,keyasint" yaml:"globals,omitempty"`
	Inputs      map[contract.StateType]Occurrences    `cbor:"3,keyasint" yaml:"inputs,omitempty"`
	Assignments map[contract.StateType]Occurrences    `cbor:"4,keyasint" yaml:"assignments,omitempty"`
}

// Schema is the full rule set governing a contract.
type Schema struct {
	Name        string                                   `cbor:"1,keyasint" yaml:"name"`
	GlobalTypes map[contract.GlobalType]GlobalSchema     `cbor:"2,keyasint" yaml:"globalTypes"`
	OwnedTypes  map[contract.StateType]OwnedSchema       `cbor:"3,keyasint" yaml:"ownedTypes"`
	MetaTypes   []contract.MetaType                      `cbor:"4,keyasint" yaml:"metaTypes,omitempty"`
	Genesis     OpSchema                                 `cbor:"5,keyasint" yaml:"genesis"`
	Transitions map[contract.TransitionType]OpSchema     `cbor:"6,keyasint" yaml:"transitions"`
	Extensions  map[contract.ExtensionType]OpSchema      `cbor:"7,keyasint" yaml:"extensions,omitempty"`
}

// ID returns the content-addressed identifier of the schema.
func (s Schema) ID() contract.SchemaId {
	digest, err := encode.DigestValue("rgb:schema", s)
	if err != nil {
		panic("schema encoding failed: " + err.Error())
	}

	return contract.SchemaId(digest)
}

// OwnedKind returns the state kind declared for the type.
func (s Schema) OwnedKind(ty contract.StateType) (contract.StateKind, bool) {
	owned, ok := s.OwnedTypes[ty]

	return owned.Kind, ok
}

// CheckGenesis type-checks a genesis against the schema and returns the list
// of conformance problems, empty when the operation is valid.
func (s Schema) CheckGenesis(g contract.Genesis) []string {
	problems := s.checkOp(g.Metadata, g.GlobalState, g.Owned, s.Genesis)

	if g.SchemaID != s.ID() {
		problems = append(problems, fmt.Sprintf(
			"genesis references schema %v instead of %v", g.SchemaID, s.ID()))
	}

	return problems
}

// CheckTransition type-checks a transition. Blank transitions are exempt
// from operation rules: they may move any declared owned state.
func (s Schema) CheckTransition(t contract.Transition) []string {
	if t.IsBlank() {
		return s.checkOwnedDeclared(t.Owned)
	}

	rules, ok := s.Transitions[t.Ty]
	if !ok {
		return []string{fmt.Sprintf("unknown transition type %d", t.Ty)}
	}

	problems := s.checkOp(t.Metadata, t.GlobalState, t.Owned, rules)

	inputs := map[contract.StateType]int{}
	for _, in := range t.Consumed {
		inputs[in.Ty]++
	}

	for ty, count := range inputs {
		bounds, ok := rules.Inputs[ty]
		if !ok {
			problems = append(problems, fmt.Sprintf(
				"transition type %d does not consume state type %d", t.Ty, ty))
			continue
		}

		if err := bounds.Check(count); err != nil {
			problems = append(problems, fmt.Sprintf(
				"inputs of type %d: %v", ty, err))
		}
	}

	for ty, bounds := range rules.Inputs {
		if bounds.Min > 0 && inputs[ty] == 0 {
			problems = append(problems, fmt.Sprintf(
				"inputs of type %d: %v", ty, bounds.Check(0)))
		}
	}

	return problems
}

// CheckExtension type-checks an extension.
func (s Schema) CheckExtension(e contract.Extension) []string {
	rules, ok := s.Extensions[e.Ty]
	if !ok {
		return []string{fmt.Sprintf("unknown extension type %d", e.Ty)}
	}

	return s.checkOp(e.Metadata, e.GlobalState, e.Owned, rules)
}

func (s Schema) checkOp(meta contract.Metadata, globals contract.GlobalState,
	owned contract.Assignments, rules OpSchema) []string {

	problems := []string{}

	for ty := range meta {
		if !containsMeta(rules.Metadata, ty) {
			problems = append(problems, fmt.Sprintf(
				"metadata type %d is not allowed", ty))
		}
	}

	for ty, values := range globals {
		decl, ok := s.GlobalTypes[ty]
		if !ok {
			problems = append(problems, fmt.Sprintf(
				"undeclared global type %d", ty))
			continue
		}

		bounds, ok := rules.Globals[ty]
		if !ok {
			problems = append(problems, fmt.Sprintf(
				"global type %d is not allowed here", ty))
			continue
		}

		if err := bounds.Check(len(values)); err != nil {
			problems = append(problems, fmt.Sprintf(
				"globals of type %d: %v", ty, err))
		}

		if decl.MaxItems > 0 && len(values) > int(decl.MaxItems) {
			problems = append(problems, fmt.Sprintf(
				"globals of type %d exceed the declared maximum %d",
				ty, decl.MaxItems))
		}
	}

	for ty, bounds := range rules.Globals {
		if bounds.Min > 0 && len(globals[ty]) == 0 {
			problems = append(problems, fmt.Sprintf(
				"globals of type %d: %v", ty, bounds.Check(0)))
		}
	}

	problems = append(problems, s.checkOwnedDeclared(owned)...)

	for ty, list := range owned {
		bounds, ok := rules.Assignments[ty]
		if !ok {
			if _, declared := s.OwnedTypes[ty]; declared {
				problems = append(problems, fmt.Sprintf(
					"assignment type %d is not allowed here", ty))
			}
			continue
		}

		if err := bounds.Check(len(list)); err != nil {
			problems = append(problems, fmt.Sprintf(
				"assignments of type %d: %v", ty, err))
		}
	}

	for ty, bounds := range rules.Assignments {
		if bounds.Min > 0 && len(owned[ty]) == 0 {
			problems = append(problems, fmt.Sprintf(
				"assignments of type %d: %v", ty, bounds.Check(0)))
		}
	}

	return problems
}

// checkOwnedDeclared verifies that every assignment uses a declared type and
// that revealed values carry the declared state kind.
func (s Schema) checkOwnedDeclared(owned contract.Assignments) []string {
	problems := []string{}

	for ty, list := range owned {
		decl, ok := s.OwnedTypes[ty]
		if !ok {
			problems = append(problems, fmt.Sprintf(
				"undeclared assignment type %d", ty))
			continue
		}

		for i, a := range list {
			if a.ConcealedState().StateKind != decl.Kind {
				problems = append(problems, fmt.Sprintf(
					"assignment %d of type %d has kind %v instead of %v",
					i, ty, a.ConcealedState().StateKind, decl.Kind))
			}
		}
	}

	return problems
}

func containsMeta(list []contract.MetaType, ty contract.MetaType) bool {
	for _, member := range list {
		if member == ty {
			return true
		}
	}

	return false
}
