// This file contains the transition builder used by the payment
// composition. It accumulates inputs and assignments and enforces the
// operation bounds before sealing the transition.

package inventory

import (
	"fmt"

	"github.com/rgb-go/rgb/contract"
	"golang.org/x/xerrors"
)

// TooManyInputsError is returned when a transition would consume more
// inputs than the wire format allows.
type TooManyInputsError struct {
	Count int
}

func (e TooManyInputsError) Error() string {
	return fmt.Sprintf("transition would consume %d inputs, above the %d bound",
		e.Count, MaxInputs)
}

// TooManyBlanksError is returned when a batch would carry more blank
// transitions than the wire format allows.
type TooManyBlanksError struct {
	Count int
}

func (e TooManyBlanksError) Error() string {
	return fmt.Sprintf("batch would carry %d blank transitions, above the %d bound",
		e.Count, MaxBlanks)
}

// TransitionBuilder accumulates the inputs and assignments of one
// transition.
type TransitionBuilder struct {
	contractID contract.ContractId
	ty         contract.TransitionType
	inputs     []contract.Opout
	owned      contract.Assignments
}

// NewTransitionBuilder starts a transition of the contract.
func NewTransitionBuilder(contractID contract.ContractId,
	ty contract.TransitionType) *TransitionBuilder {

	return &TransitionBuilder{
		contractID: contractID,
		ty:         ty,
		owned:      contract.Assignments{},
	}
}

// AddInput consumes the owned state entry.
func (b *TransitionBuilder) AddInput(opout contract.Opout) *TransitionBuilder {
	b.inputs = append(b.inputs, opout)

	return b
}

// AddAssignment appends an assignment to the typed list.
func (b *TransitionBuilder) AddAssignment(ty contract.StateType,
	a contract.Assignment) *TransitionBuilder {

	b.owned[ty] = append(b.owned[ty], a)

	return b
}

// Build seals the transition.
func (b *TransitionBuilder) Build() (contract.Transition, error) {
	if len(b.inputs) > MaxInputs {
		return contract.Transition{}, TooManyInputsError{Count: len(b.inputs)}
	}

	t, err := contract.NewTransition(b.contractID, b.ty, b.inputs, b.owned)
	if err != nil {
		return contract.Transition{}, xerrors.Errorf("couldn't build transition: %v", err)
	}

	return t, nil
}
