// This file contains the export path of the stock: assembling a transfer
// consignment scoped to the requested terminals. Only the ancestry of the
// terminal state is disclosed; sibling transitions sharing a bundle are
// shipped in concealed form so their id contribution survives without
// leaking their content.

package inventory

import (
	"bytes"
	"sort"

	"github.com/rgb-go/rgb/consignment"
	"github.com/rgb-go/rgb/contract"
	"github.com/rgb-go/rgb/encode"
	"github.com/rgb-go/rgb/schema"
	"github.com/rgb-go/rgb/seal"
	"github.com/rgb-go/rgb/store"
	"github.com/rgb-go/rgb/store/stash"
	"golang.org/x/xerrors"
)

// NoTerminalStateError is returned when none of the requested outputs or
// secret seals hold state of the contract.
type NoTerminalStateError struct {
	Contract contract.ContractId
}

func (e NoTerminalStateError) Error() string {
	return "no terminal state of contract " + e.Contract.String() + " matches the request"
}

// Consign assembles a transfer consignment of the contract ending at the
// given outputs and secret seals. Outputs the caller controls produce
// revealed terminal seals; secret seals of a beneficiary stay concealed.
func (s *Stock) Consign(contractID contract.ContractId, outputs []seal.Output,
	secretSeals []seal.SecretSeal) (*consignment.Consignment, error) {

	genesis, err := s.stash.Genesis(contractID)
	if err != nil {
		return nil, store.UnknownContractError{ContractID: contractID}
	}

	terminals, starts, err := s.collectTerminals(outputs, secretSeals)
	if err != nil {
		return nil, err
	}

	if len(starts) == 0 {
		return nil, NoTerminalStateError{Contract: contractID}
	}

	if len(terminals) > MaxTerminals {
		return nil, TooManyTerminalsError{Count: len(terminals)}
	}

	ancestry, bundleIDs, extensions, err := s.walkAncestry(contractID, starts)
	if err != nil {
		return nil, err
	}

	if len(bundleIDs) > MaxBundles {
		return nil, TooManyBundlesError{Count: len(bundleIDs)}
	}

	bundles := make([]contract.BundledWitness, 0, len(bundleIDs))

	for _, bundleID := range bundleIDs {
		bw, err := s.stash.Bundle(bundleID)
		if err != nil {
			return nil, xerrors.Errorf("inventory inconsistency: %v", err)
		}

		clone, err := cloneBundledWitness(bw)
		if err != nil {
			return nil, xerrors.Errorf("couldn't clone bundle %v: %v", bundleID, err)
		}

		for _, t := range clone.Bundle.KnownTransitions() {
			if !ancestry[t.ID()] {
				clone.Bundle.ConcealTransition(t.ID())
			}
		}

		bundles = append(bundles, clone)
	}

	sch, err := s.stash.Schema(genesis.SchemaID)
	if err != nil {
		return nil, xerrors.Errorf("inventory inconsistency: %v", err)
	}

	c := &consignment.Consignment{
		Version:     consignment.CurrentVersion,
		Transfer:    true,
		Schema:      sch,
		Ifaces:      s.stash.ImplsForSchema(genesis.SchemaID),
		Genesis:     genesis,
		Extensions:  extensions,
		Bundles:     bundles,
		Terminals:   terminals,
		TypeSystem:  s.stash.TypeSystem(genesis.SchemaID),
		Attachments: s.collectAttachments(genesis, extensions, bundles),
		Signatures:  s.collectSignatures(genesis, sch),
	}

	promConsignments.Inc()
	s.logger.Info().
		Stringer("contract", contractID).
		Stringer("consignment", c.ID()).
		Int("ops", c.CountOps()).
		Msg("consignment assembled")

	return c, nil
}

// collectTerminals resolves the request into terminal markers grouped by
// bundle, plus the opids of the terminal assignments the ancestry walk
// starts from.
func (s *Stock) collectTerminals(outputs []seal.Output,
	secretSeals []seal.SecretSeal) ([]consignment.Terminal, []contract.Opid, error) {

	byBundle := map[contract.BundleId]map[seal.SecretSeal]seal.Seal{}
	seen := map[contract.Opid]bool{}
	starts := []contract.Opid{}

	add := func(opout contract.Opout, terminalSeal seal.Seal) error {
		bundleID, err := s.index.OpBundle(opout.Op)
		if err != nil {
			return xerrors.Errorf("inventory inconsistency: %v", err)
		}

		seals, ok := byBundle[bundleID]
		if !ok {
			seals = map[seal.SecretSeal]seal.Seal{}
			byBundle[bundleID] = seals
		}

		existing, ok := seals[terminalSeal.Secret()]
		if !ok || !existing.IsRevealed() {
			seals[terminalSeal.Secret()] = terminalSeal
		}

		if !seen[opout.Op] {
			seen[opout.Op] = true
			starts = append(starts, opout.Op)
		}

		return nil
	}

	for _, secret := range secretSeals {
		for _, opout := range s.index.TerminalOpouts(secret) {
			err := add(opout, seal.NewConcealed(secret))
			if err != nil {
				return nil, nil, err
			}
		}
	}

	for _, output := range outputs {
		for _, opout := range s.index.OpoutsByOutput(output) {
			assigned, err := s.assignedSeal(opout)
			if err != nil {
				return nil, nil, err
			}

			err = add(opout, assigned)
			if err != nil {
				return nil, nil, err
			}
		}
	}

	terminals := make([]consignment.Terminal, 0, len(byBundle))

	for bundleID, seals := range byBundle {
		terminal := consignment.Terminal{Bundle: bundleID}

		for _, terminalSeal := range seals {
			terminal.Seals = append(terminal.Seals, terminalSeal)
		}

		terminals = append(terminals, terminal)
	}

	return terminals, starts, nil
}

// assignedSeal returns the seal of the assignment, in the revealed form
// stored by the stash when one is known.
func (s *Stock) assignedSeal(opout contract.Opout) (seal.Seal, error) {
	bundleID, err := s.index.OpBundle(opout.Op)
	if err != nil {
		return seal.Seal{}, xerrors.Errorf("inventory inconsistency: %v", err)
	}

	bw, err := s.stash.Bundle(bundleID)
	if err != nil {
		return seal.Seal{}, xerrors.Errorf("inventory inconsistency: %v", err)
	}

	t, ok := bw.Bundle.Known(opout.Op)
	if !ok {
		return seal.Seal{}, xerrors.Errorf(
			"inventory inconsistency: operation %v is concealed in its bundle",
			opout.Op)
	}

	assignments := t.Owned[opout.Ty]
	if int(opout.No) >= len(assignments) {
		return seal.Seal{}, xerrors.Errorf(
			"inventory inconsistency: operation %v has no assignment %d/%d",
			opout.Op, opout.Ty, opout.No)
	}

	assigned := assignments[opout.No].Seal()

	revealed, ok := s.stash.ResolveSeal(assigned.Secret())
	if ok {
		return seal.NewRevealed(revealed), nil
	}

	return assigned, nil
}

// walkAncestry walks the operation DAG backwards from the terminal opids and
// returns the disclosed opid set, the bundles carrying them in a stable
// order, and the extensions the ancestry redeems.
func (s *Stock) walkAncestry(contractID contract.ContractId,
	starts []contract.Opid) (map[contract.Opid]bool, []contract.BundleId,
	[]contract.Extension, error) {

	ancestry := map[contract.Opid]bool{}
	bundleSet := map[contract.BundleId]bool{}
	extensionSet := map[contract.Opid]contract.Extension{}

	queue := append([]contract.Opid{}, starts...)

	for len(queue) > 0 {
		opid := queue[0]
		queue = queue[1:]

		if ancestry[opid] {
			continue
		}

		bundleID, err := s.index.OpBundle(opid)
		if err != nil {
			// Not in a bundle: the genesis or an extension terminates the
			// walk on this branch.
			ext, extErr := s.stash.Extension(opid)
			if extErr == nil {
				extensionSet[opid] = ext
			}

			continue
		}

		owner, err := s.index.BundleContract(bundleID)
		if err != nil {
			return nil, nil, nil, xerrors.Errorf("inventory inconsistency: %v", err)
		}

		if owner != contractID {
			return nil, nil, nil, xerrors.Errorf(
				"operation %v belongs to another contract", opid)
		}

		bw, err := s.stash.Bundle(bundleID)
		if err != nil {
			return nil, nil, nil, xerrors.Errorf("inventory inconsistency: %v", err)
		}

		t, ok := bw.Bundle.Known(opid)
		if !ok {
			return nil, nil, nil, xerrors.Errorf(
				"ancestor %v is concealed in bundle %v", opid, bundleID)
		}

		ancestry[opid] = true
		bundleSet[bundleID] = true

		for _, input := range t.Inputs() {
			queue = append(queue, input.Op)
		}
	}

	bundleIDs := make([]contract.BundleId, 0, len(bundleSet))
	for bundleID := range bundleSet {
		bundleIDs = append(bundleIDs, bundleID)
	}

	sortBundleIds(bundleIDs)

	extensions := make([]contract.Extension, 0, len(extensionSet))

	ids := make([]contract.Opid, 0, len(extensionSet))
	for opid := range extensionSet {
		ids = append(ids, opid)
	}

	sortOpids(ids)

	for _, opid := range ids {
		extensions = append(extensions, extensionSet[opid])
	}

	return ancestry, bundleIDs, extensions, nil
}

// collectAttachments gathers the blobs referenced by the disclosed owned
// state. Blobs the stash never received are silently absent; validation on
// the receiving side reports them as warnings.
func (s *Stock) collectAttachments(genesis contract.Genesis,
	extensions []contract.Extension,
	bundles []contract.BundledWitness) []consignment.Attachment {

	ids := map[contract.AttachId]bool{}

	collect := func(owned contract.Assignments) {
		for _, assignments := range owned {
			for _, a := range assignments {
				state, ok := a.RevealedState()
				if !ok {
					continue
				}

				attach, ok := state.(contract.AttachmentState)
				if ok {
					ids[attach.Id] = true
				}
			}
		}
	}

	collect(genesis.Owned)

	for _, ext := range extensions {
		collect(ext.Owned)
	}

	for _, bw := range bundles {
		for _, t := range bw.Bundle.KnownTransitions() {
			collect(t.Owned)
		}
	}

	attachments := []consignment.Attachment{}

	for id := range ids {
		data, err := s.stash.Attachment(id)
		if err != nil {
			continue
		}

		attachments = append(attachments, consignment.Attachment{Data: data})
	}

	return attachments
}

// collectSignatures includes the known endorsements of the shipped genesis
// and schema, except those of distrusted identities.
func (s *Stock) collectSignatures(genesis contract.Genesis,
	sch schema.Schema) []consignment.ContentSig {

	sigs := []consignment.ContentSig{}

	for _, content := range [][32]byte{
		[32]byte(genesis.ID()),
		[32]byte(sch.ID()),
	} {
		for _, sig := range s.stash.SigsFor(content) {
			if s.stash.Trust(sig.Identity) == stash.TrustDistrusted {
				continue
			}

			sigs = append(sigs, sig)
		}
	}

	return sigs
}

func cloneBundledWitness(bw contract.BundledWitness) (contract.BundledWitness, error) {
	data, err := encode.Marshal(bw)
	if err != nil {
		return contract.BundledWitness{}, err
	}

	clone := contract.BundledWitness{}

	err = encode.Unmarshal(data, &clone)
	if err != nil {
		return contract.BundledWitness{}, err
	}

	return clone, nil
}

func sortBundleIds(ids []contract.BundleId) {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
}
