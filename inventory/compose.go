// This file contains the payment composition: turning an invoice and a set
// of spent outputs into the main transition paying the beneficiary and the
// blank transitions moving unrelated contract state off the same outputs.
// The caller embeds the resulting batch into a witness transaction and
// imports the produced consignment on both sides.

package inventory

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/rgb-go/rgb/amount"
	"github.com/rgb-go/rgb/commit"
	"github.com/rgb-go/rgb/contract"
	"github.com/rgb-go/rgb/invoice"
	"github.com/rgb-go/rgb/schema"
	"github.com/rgb-go/rgb/seal"
	"github.com/rgb-go/rgb/store"
	"golang.org/x/xerrors"
)

// InvoiceExpiredError is returned when the invoice must not be paid
// anymore.
type InvoiceExpiredError struct {
	Expiry int64
}

func (e InvoiceExpiredError) Error() string {
	return fmt.Sprintf("invoice expired at %v", time.Unix(e.Expiry, 0).UTC())
}

// NoBeneficiaryOutputError is returned when the invoice names no concealed
// beneficiary seal and the caller gave no witness output to assign to.
type NoBeneficiaryOutputError struct{}

func (e NoBeneficiaryOutputError) Error() string {
	return "invoice has no beneficiary seal and no witness output was given"
}

// InsufficientStateError is returned when the spent outputs do not hold
// enough fungible state to pay the invoice.
type InsufficientStateError struct {
	Contract  contract.ContractId
	Needed    uint64
	Available uint64
}

func (e InsufficientStateError) Error() string {
	return fmt.Sprintf("contract %v holds %d on the spent outputs, %d needed",
		e.Contract, e.Available, e.Needed)
}

// Batch is the set of transitions of one payment. All of them must be
// committed to by the same witness transaction.
type Batch struct {
	// Main is the transition paying the invoice.
	Main contract.Transition

	// Blanks move the state of unrelated contracts off the spent outputs.
	Blanks []contract.Transition
}

// Compose builds the transitions paying the invoice out of the given
// outputs. When the invoice carries no concealed beneficiary seal, the
// payment is assigned to the given vout of the future witness transaction.
// Change and blank reassignments go to fresh wallet outputs.
func (s *Stock) Compose(inv invoice.Invoice, prevOutputs []seal.Output,
	method seal.Method, beneficiaryVout *uint32) (Batch, error) {

	if s.wallet == nil {
		return Batch{}, xerrors.New("stock has no wallet provider")
	}

	if inv.Contract == (contract.ContractId{}) {
		return Batch{}, xerrors.New("invoice has no contract")
	}

	if inv.Expired(time.Now()) {
		return Batch{}, InvoiceExpiredError{Expiry: inv.Expiry}
	}

	genesis, err := s.stash.Genesis(inv.Contract)
	if err != nil {
		return Batch{}, store.UnknownContractError{ContractID: inv.Contract}
	}

	var beneficiary seal.Seal

	switch {
	case inv.Beneficiary != (seal.SecretSeal{}):
		beneficiary = seal.NewConcealed(inv.Beneficiary)
	case beneficiaryVout != nil:
		beneficiary = seal.NewRevealed(seal.Revealed{
			Method:   method,
			Chain:    genesis.Chain,
			Vout:     *beneficiaryVout,
			Blinding: randomBlinding(),
		})
	default:
		return Batch{}, NoBeneficiaryOutputError{}
	}

	ty, err := s.transitionType(genesis.SchemaID, inv)
	if err != nil {
		return Batch{}, err
	}

	main, err := s.composeMain(inv, genesis, prevOutputs, method, beneficiary, ty)
	if err != nil {
		return Batch{}, err
	}

	blanks, err := s.composeBlanks(inv.Contract, prevOutputs, method, genesis.Chain)
	if err != nil {
		return Batch{}, err
	}

	s.logger.Info().
		Stringer("contract", inv.Contract).
		Stringer("transition", main.ID()).
		Int("blanks", len(blanks)).
		Msg("payment composed")

	return Batch{Main: main, Blanks: blanks}, nil
}

// transitionType resolves the schema transition type of the invoice
// operation through the interface implementation it names.
func (s *Stock) transitionType(schemaID contract.SchemaId,
	inv invoice.Invoice) (contract.TransitionType, error) {

	for _, impl := range s.stash.ImplsForSchema(schemaID) {
		if inv.Iface != (schema.IfaceId{}) && impl.Iface != inv.Iface {
			continue
		}

		ty, ok := impl.TransitionType(inv.OperationName())
		if ok {
			return ty, nil
		}
	}

	return 0, xerrors.Errorf(
		"no interface implementation maps operation %q for schema %v",
		inv.OperationName(), schemaID)
}

func (s *Stock) composeMain(inv invoice.Invoice, genesis contract.Genesis,
	prevOutputs []seal.Output, method seal.Method, beneficiary seal.Seal,
	ty contract.TransitionType) (contract.Transition, error) {

	history, err := s.state.History(inv.Contract)
	if err != nil {
		return contract.Transition{}, store.UnknownContractError{ContractID: inv.Contract}
	}

	type input struct {
		opout    contract.Opout
		amount   uint64
		blinding commit.Factor
	}

	inputs := []input{}
	total := uint64(0)
	stateType := contract.StateType(0)

	for _, output := range prevOutputs {
		if !s.wallet.HasUtxo(output) {
			return contract.Transition{}, xerrors.Errorf(
				"output %v is not controlled by the wallet", output)
		}

		for _, entry := range history.OwnedByOutput(output) {
			if entry.State.StateKind != contract.KindFungible {
				continue
			}

			state, err := s.fungibleAt(genesis, entry.Opout)
			if err != nil {
				return contract.Transition{}, err
			}

			if len(inputs) == 0 {
				stateType = entry.Opout.Ty
			} else if entry.Opout.Ty != stateType {
				return contract.Transition{}, xerrors.Errorf(
					"spent outputs mix fungible state types %d and %d",
					stateType, entry.Opout.Ty)
			}

			inputs = append(inputs, input{
				opout:    entry.Opout,
				amount:   uint64(state.Amount),
				blinding: state.Blinding,
			})
			total += uint64(state.Amount)
		}
	}

	if len(inputs) == 0 {
		return contract.Transition{}, InsufficientStateError{
			Contract: inv.Contract,
			Needed:   uint64(inv.Amount),
		}
	}

	send := uint64(inv.Amount)
	if send == 0 {
		send = total
	}

	if total < send {
		return contract.Transition{}, InsufficientStateError{
			Contract:  inv.Contract,
			Needed:    send,
			Available: total,
		}
	}

	change := total - send

	inFactors := make([]commit.Factor, len(inputs))
	for i, in := range inputs {
		inFactors[i] = in.blinding
	}

	outCount := 1
	if change > 0 {
		outCount = 2
	}

	outFactors, err := commit.ZeroBalanced(inFactors, outCount)
	if err != nil {
		return contract.Transition{}, xerrors.Errorf("couldn't balance blindings: %v", err)
	}

	builder := NewTransitionBuilder(inv.Contract, ty)

	for _, in := range inputs {
		builder.AddInput(in.opout)
	}

	builder.AddAssignment(stateType, contract.NewAssignment(beneficiary,
		contract.FungibleState{
			Amount:   amount.Amount(send),
			Blinding: outFactors[0],
		}))

	if change > 0 {
		changeSeal, err := s.changeSeal(method, genesis.Chain)
		if err != nil {
			return contract.Transition{}, err
		}

		builder.AddAssignment(stateType, contract.NewAssignment(changeSeal,
			contract.FungibleState{
				Amount:   amount.Amount(change),
				Blinding: outFactors[1],
			}))
	}

	return builder.Build()
}

// composeBlanks moves the state every other contract holds on the spent
// outputs to fresh wallet outputs, so spending the witness does not burn
// it.
func (s *Stock) composeBlanks(paying contract.ContractId,
	prevOutputs []seal.Output, method seal.Method,
	chain seal.ChainNet) ([]contract.Transition, error) {

	blanks := []contract.Transition{}

	for _, contractID := range s.state.Contracts() {
		if contractID == paying {
			continue
		}

		history, err := s.state.History(contractID)
		if err != nil {
			continue
		}

		genesis, err := s.stash.Genesis(contractID)
		if err != nil {
			return nil, xerrors.Errorf("inventory inconsistency: %v", err)
		}

		entries := []contract.OwnedEntry{}
		for _, output := range prevOutputs {
			entries = append(entries, history.OwnedByOutput(output)...)
		}

		if len(entries) == 0 {
			continue
		}

		if len(blanks) >= MaxBlanks {
			return nil, TooManyBlanksError{Count: len(blanks) + 1}
		}

		blankSeal, err := s.changeSeal(method, chain)
		if err != nil {
			return nil, err
		}

		builder := NewTransitionBuilder(contractID, contract.BlankTransition)

		fungibles := []contract.OwnedEntry{}

		for _, entry := range entries {
			builder.AddInput(entry.Opout)

			if entry.State.StateKind == contract.KindFungible {
				fungibles = append(fungibles, entry)
				continue
			}

			state, err := s.revealedAt(genesis, entry.Opout)
			if err != nil {
				return nil, err
			}

			builder.AddAssignment(entry.Opout.Ty,
				contract.NewAssignment(blankSeal, state))
		}

		err = s.reassignFungibles(builder, genesis, blankSeal, fungibles)
		if err != nil {
			return nil, err
		}

		blank, err := builder.Build()
		if err != nil {
			return nil, err
		}

		blanks = append(blanks, blank)
	}

	return blanks, nil
}

// reassignFungibles moves the fungible entries unchanged to the blank seal,
// one assignment per entry, with rebalanced blinding factors per state
// type.
func (s *Stock) reassignFungibles(builder *TransitionBuilder,
	genesis contract.Genesis, blankSeal seal.Seal,
	entries []contract.OwnedEntry) error {

	byType := map[contract.StateType][]contract.FungibleState{}
	order := []contract.StateType{}

	for _, entry := range entries {
		state, err := s.fungibleAt(genesis, entry.Opout)
		if err != nil {
			return err
		}

		if _, ok := byType[entry.Opout.Ty]; !ok {
			order = append(order, entry.Opout.Ty)
		}

		byType[entry.Opout.Ty] = append(byType[entry.Opout.Ty], state)
	}

	for _, ty := range order {
		states := byType[ty]

		inFactors := make([]commit.Factor, len(states))
		for i, state := range states {
			inFactors[i] = state.Blinding
		}

		outFactors, err := commit.ZeroBalanced(inFactors, len(states))
		if err != nil {
			return xerrors.Errorf("couldn't balance blindings: %v", err)
		}

		for i, state := range states {
			builder.AddAssignment(ty, contract.NewAssignment(blankSeal,
				contract.FungibleState{
					Amount:   state.Amount,
					Blinding: outFactors[i],
				}))
		}
	}

	return nil
}

// changeSeal reserves a fresh wallet output and seals it, registering the
// revealed form so it can be disclosed to a later counterparty.
func (s *Stock) changeSeal(method seal.Method, chain seal.ChainNet) (seal.Seal, error) {
	output, err := s.wallet.NextOutput()
	if err != nil {
		return seal.Seal{}, xerrors.Errorf("couldn't allocate change: %v", err)
	}

	txid := output.Txid

	revealed := seal.Revealed{
		Method:   method,
		Chain:    chain,
		Txid:     &txid,
		Vout:     output.Vout,
		Blinding: randomBlinding(),
	}

	s.wallet.RegisterSeal(revealed)

	return seal.NewRevealed(revealed), nil
}

// fungibleAt returns the revealed fungible state behind the opout from the
// stored operations.
func (s *Stock) fungibleAt(genesis contract.Genesis,
	opout contract.Opout) (contract.FungibleState, error) {

	state, err := s.revealedAt(genesis, opout)
	if err != nil {
		return contract.FungibleState{}, err
	}

	fungible, ok := state.(contract.FungibleState)
	if !ok {
		return contract.FungibleState{}, xerrors.Errorf(
			"state of %v is not fungible", opout)
	}

	return fungible, nil
}

// revealedAt returns the revealed state behind the opout from the stored
// operations. Spending state whose value was never disclosed to this holder
// is not possible.
func (s *Stock) revealedAt(genesis contract.Genesis,
	opout contract.Opout) (contract.RevealedState, error) {

	var owned contract.Assignments

	if opout.Op == genesis.ID() {
		owned = genesis.Owned
	} else if ext, err := s.stash.Extension(opout.Op); err == nil {
		owned = ext.Owned
	} else {
		bundleID, err := s.index.OpBundle(opout.Op)
		if err != nil {
			return nil, xerrors.Errorf("inventory inconsistency: %v", err)
		}

		bw, err := s.stash.Bundle(bundleID)
		if err != nil {
			return nil, xerrors.Errorf("inventory inconsistency: %v", err)
		}

		t, ok := bw.Bundle.Known(opout.Op)
		if !ok {
			return nil, xerrors.Errorf("operation %v is concealed in its bundle",
				opout.Op)
		}

		owned = t.Owned
	}

	assignments := owned[opout.Ty]
	if int(opout.No) >= len(assignments) {
		return nil, xerrors.Errorf("operation %v has no assignment %d/%d",
			opout.Op, opout.Ty, opout.No)
	}

	state, ok := assignments[opout.No].RevealedState()
	if !ok {
		return nil, xerrors.Errorf("state of %v was never disclosed", opout)
	}

	return state, nil
}

func randomBlinding() uint64 {
	buffer := make([]byte, 8)

	_, err := rand.Read(buffer)
	if err != nil {
		panic("randomness source failed: " + err.Error())
	}

	return binary.BigEndian.Uint64(buffer)
}
