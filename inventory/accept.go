// This file contains the write path of the stock: importing schemata,
// interface implementations and consignments. An import validates first and
// only then merges, in a strict order: schema and interfaces, genesis,
// extensions, bundles and witnesses, attachments, signatures, and finally
// the recomputed contract state. The merge steps are idempotent upserts, so
// importing the same consignment twice changes nothing.

package inventory

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/rgb-go/rgb/consignment"
	"github.com/rgb-go/rgb/contract"
	"github.com/rgb-go/rgb/schema"
	"github.com/rgb-go/rgb/seal"
	"github.com/rgb-go/rgb/validation"
	"github.com/rs/xid"
	"golang.org/x/xerrors"
)

// InvalidConsignmentError is returned when validation found a hard failure.
type InvalidConsignmentError struct {
	Status validation.Status
}

func (e InvalidConsignmentError) Error() string {
	return fmt.Sprintf("consignment is invalid: %s", e.Status.Failures[0])
}

// TerminalsUnminedError is returned when the terminal witnesses are still
// in the mempool and the caller did not force the import. It is retryable
// once the chain advances.
type TerminalsUnminedError struct {
	Witnesses []seal.WitnessId
}

func (e TerminalsUnminedError) Error() string {
	return fmt.Sprintf("%d terminal witnesses are not mined yet", len(e.Witnesses))
}

// UnresolvedTransactionsError is returned when witnesses could not be
// resolved and the caller did not force the import. It is retryable.
type UnresolvedTransactionsError struct {
	Witnesses []seal.WitnessId
}

func (e UnresolvedTransactionsError) Error() string {
	return fmt.Sprintf("%d witnesses could not be resolved", len(e.Witnesses))
}

// ImportSchema stores the schema and returns its id.
func (s *Stock) ImportSchema(sch schema.Schema) (contract.SchemaId, error) {
	if len(sch.OwnedTypes) == 0 {
		return contract.SchemaId{}, xerrors.New("schema declares no owned state type")
	}

	id := sch.ID()

	if s.stash.ReplaceSchema(sch) {
		s.logger.Info().Stringer("schema", id).Msg("schema imported")
	}

	return id, nil
}

// ImportIface stores the interface implementation. The target schema must
// already be known.
func (s *Stock) ImportIface(impl schema.IfaceImpl) (contract.ImplId, error) {
	_, err := s.stash.Schema(impl.SchemaID)
	if err != nil {
		return contract.ImplId{}, xerrors.Errorf("couldn't import interface: %v", err)
	}

	id := impl.ID()

	if s.stash.ReplaceIfaceImpl(impl) {
		s.logger.Info().Stringer("impl", id).Msg("interface implementation imported")
	}

	return id, nil
}

// ImportContract imports a contract consignment: the genesis and whatever
// history the issuer published, without terminals.
func (s *Stock) ImportContract(c *consignment.Consignment,
	resolver validation.WitnessResolver, force bool) (validation.Status, error) {

	if c.Transfer {
		return validation.Status{}, xerrors.New(
			"consignment is a transfer, use AcceptTransfer")
	}

	return s.accept(c, resolver, force)
}

// AcceptTransfer imports a transfer consignment. Unless force is set, the
// transfer is rejected while its terminal witnesses are unmined or
// unresolved; forcing records a warning in the returned status.
func (s *Stock) AcceptTransfer(c *consignment.Consignment,
	resolver validation.WitnessResolver, force bool) (validation.Status, error) {

	if !c.Transfer {
		return validation.Status{}, xerrors.New(
			"consignment is not a transfer, use ImportContract")
	}

	return s.accept(c, resolver, force)
}

func (s *Stock) accept(c *consignment.Consignment,
	resolver validation.WitnessResolver, force bool) (validation.Status, error) {

	logger := s.logger.With().
		Str("import", xid.New().String()).
		Stringer("consignment", c.ID()).
		Stringer("contract", c.ContractID()).
		Logger()

	result := validation.Validate(c, resolver)
	status := result.Status

	switch status.Validity() {
	case validation.Invalid:
		promImports.WithLabelValues("invalid").Inc()
		logger.Warn().Str("failure", status.Failures[0]).Msg("import rejected")

		return status, InvalidConsignmentError{Status: status}

	case validation.UnresolvedTransactions:
		if !force {
			promImports.WithLabelValues("unresolved").Inc()

			return status, UnresolvedTransactionsError{Witnesses: status.Unresolved}
		}

		status.Warnings = append(status.Warnings,
			"unresolved witnesses accepted on explicit override")

	case validation.UnminedTerminals:
		if !force {
			promImports.WithLabelValues("unmined").Inc()

			return status, TerminalsUnminedError{Witnesses: status.Unmined}
		}

		status.Warnings = append(status.Warnings,
			"unmined terminal witnesses accepted on explicit override")
	}

	err := s.merge(c, resolver)
	if err != nil {
		promImports.WithLabelValues("error").Inc()

		return status, xerrors.Errorf("couldn't merge consignment: %v", err)
	}

	promImports.WithLabelValues("accepted").Inc()
	logger.Info().Int("ops", c.CountOps()).Msg("consignment imported")

	return status, nil
}

// merge applies the consignment to the providers in the strict order later
// steps depend on.
func (s *Stock) merge(c *consignment.Consignment,
	resolver validation.WitnessResolver) error {

	contractID := c.ContractID()
	schemaID := c.SchemaID()

	s.stash.ReplaceSchema(c.Schema)
	s.stash.ReplaceTypeSystem(schemaID, c.TypeSystem)

	for _, impl := range c.Ifaces {
		s.stash.ReplaceIfaceImpl(impl)
	}

	_, err := s.stash.ReplaceGenesis(c.Genesis)
	if err != nil {
		return xerrors.Errorf("stash: %v", err)
	}

	s.recordSeals(c.Genesis.Owned, c.Genesis.ID(), seal.WitnessId{})

	for _, ext := range c.Extensions {
		_, err := s.stash.ReplaceExtension(ext)
		if err != nil {
			return xerrors.Errorf("stash: %v", err)
		}

		s.recordSeals(ext.Owned, ext.ID(), seal.WitnessId{})
	}

	for _, bw := range c.Bundles {
		bundleID := bw.Bundle.BundleId()

		_, err := s.stash.ReplaceBundle(bw)
		if err != nil {
			return xerrors.Errorf("stash: %v", err)
		}

		err = s.index.RegisterBundle(bundleID, contractID, bw.Witness.Id)
		if err != nil {
			return xerrors.Errorf("index: %v", err)
		}

		for _, t := range bw.Bundle.KnownTransitions() {
			err = s.index.RegisterOp(t.ID(), bundleID)
			if err != nil {
				return xerrors.Errorf("index: %v", err)
			}

			s.recordSeals(t.Owned, t.ID(), bw.Witness.Id)
		}
	}

	for _, terminal := range c.Terminals {
		bw, err := s.stash.Bundle(terminal.Bundle)
		if err != nil {
			return xerrors.Errorf("stash: %v", err)
		}

		for _, terminalSeal := range terminal.Seals {
			secret := terminalSeal.Secret()

			revealed, ok := terminalSeal.Revealed()
			if ok {
				s.stash.ReplaceSeal(revealed)
			}

			for _, t := range bw.Bundle.KnownTransitions() {
				for ty, assignments := range t.Owned {
					for no, a := range assignments {
						if a.Seal().Secret() != secret {
							continue
						}

						s.index.RegisterTerminal(secret, contract.Opout{
							Op: t.ID(),
							Ty: ty,
							No: uint16(no),
						})
					}
				}
			}
		}
	}

	for _, attachment := range c.Attachments {
		s.stash.ReplaceAttachment(attachment.Data)
	}

	for _, sig := range c.Signatures {
		_, err := s.stash.ReplaceSig(sig)
		if err != nil {
			return xerrors.Errorf("stash: %v", err)
		}
	}

	history, err := s.recompute(contractID, resolver)
	if err != nil {
		return xerrors.Errorf("inventory inconsistency: %v", err)
	}

	err = s.state.CreateOrUpdateState(history, nil)
	if err != nil {
		return xerrors.Errorf("state: %v", err)
	}

	return nil
}

// recordSeals indexes the chain outputs of the revealed seals of the
// operation and stores their revealed form. Vout-relative seals resolve
// their txid against the witness; operations without a witness only carry
// absolute seals.
func (s *Stock) recordSeals(owned contract.Assignments, opid contract.Opid,
	witness seal.WitnessId) {

	for ty, assignments := range owned {
		for no, a := range assignments {
			revealed, ok := a.Seal().Revealed()
			if !ok {
				continue
			}

			s.stash.ReplaceSeal(revealed)

			output, err := revealed.ToOutputSeal(witness)
			if err != nil {
				// Operations without a witness fail the chain match. Their
				// absolute seals are still indexable; a vout-relative seal
				// cannot be resolved yet and is skipped.
				output, ok = revealed.Output()
				if !ok {
					continue
				}
			}

			s.index.RegisterOutput(output, contract.Opout{
				Op: opid,
				Ty: ty,
				No: uint16(no),
			})
		}
	}
}

// recompute replays the complete stored history of the contract from the
// stash. The result converges regardless of the order consignments were
// imported in.
func (s *Stock) recompute(contractID contract.ContractId,
	resolver validation.WitnessResolver) (*contract.History, error) {

	genesis, err := s.stash.Genesis(contractID)
	if err != nil {
		return nil, err
	}

	history := contract.NewHistory(genesis)

	extensions := s.stash.Extensions(contractID)
	sort.Slice(extensions, func(i, j int) bool {
		left, right := extensions[i].ID(), extensions[j].ID()

		return bytes.Compare(left[:], right[:]) < 0
	})

	for _, ext := range extensions {
		err := history.AddExtension(ext, seal.WitnessAnchor{Height: 0})
		if err != nil {
			return nil, err
		}
	}

	ops := map[contract.Opid]contract.Transition{}
	anchors := map[contract.Opid]seal.WitnessAnchor{}

	for _, bw := range s.stash.Bundles() {
		bundleID := bw.Bundle.BundleId()

		owner, err := s.index.BundleContract(bundleID)
		if err != nil || owner != contractID {
			continue
		}

		anchor, err := resolver.ResolveWitness(bw.Witness.Id)
		if err != nil {
			anchor = seal.WitnessAnchor{Height: seal.HeightMempool}
		}

		for _, t := range bw.Bundle.KnownTransitions() {
			ops[t.ID()] = t
			anchors[t.ID()] = anchor
		}
	}

	for _, t := range orderByAncestry(ops) {
		err := history.AddTransition(t, anchors[t.ID()])
		if err != nil {
			return nil, err
		}
	}

	return history, nil
}

// orderByAncestry sorts the transitions so every ancestor precedes its
// descendants. Operations outside the set (the genesis, extensions or
// undisclosed ancestors) terminate the walk.
func orderByAncestry(ops map[contract.Opid]contract.Transition) []contract.Transition {
	const (
		fresh = iota
		onStack
		done
	)

	marks := map[contract.Opid]int{}
	order := make([]contract.Transition, 0, len(ops))

	var visit func(opid contract.Opid)
	visit = func(opid contract.Opid) {
		t, ok := ops[opid]
		if !ok || marks[opid] != fresh {
			return
		}

		marks[opid] = onStack

		for _, opout := range t.Inputs() {
			visit(opout.Op)
		}

		marks[opid] = done
		order = append(order, t)
	}

	// Iterate in a stable order so replay is reproducible.
	ids := make([]contract.Opid, 0, len(ops))
	for opid := range ops {
		ids = append(ids, opid)
	}

	sortOpids(ids)

	for _, opid := range ids {
		visit(opid)
	}

	return order
}

func sortOpids(ids []contract.Opid) {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
}
