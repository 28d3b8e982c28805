// This file contains the validation engine. The engine walks the operation
// graph of a consignment from its terminals back to the genesis, checks
// every operation against the embedded schema, verifies that no seal is
// closed twice and that fungible sums conserve, then resolves the witness
// transaction of every bundle.

package validation

import (
	"github.com/rgb-go/rgb/commit"
	"github.com/rgb-go/rgb/consignment"
	"github.com/rgb-go/rgb/contract"
	"github.com/rgb-go/rgb/seal"
	"golang.org/x/xerrors"
)

// Result is the outcome of a validation run. The history is the replayed
// contract state and is only usable when the status has no failure.
type Result struct {
	Status

	History *contract.History
}

// Validate runs the full verification of a consignment against the witness
// resolver. It never mutates the consignment.
func Validate(c *consignment.Consignment, resolver WitnessResolver) Result {
	status := &Status{}

	err := c.CheckShape()
	if err != nil {
		status.failf("malformed consignment: %v", err)

		return Result{Status: *status}
	}

	e := &engine{
		c:          c,
		resolver:   resolver,
		status:     status,
		contractID: c.ContractID(),
		chain:      c.Genesis.Chain,
		genesisID:  c.Genesis.ID(),
		ops:        map[contract.Opid]contract.Operation{},
		opBundle:   map[contract.Opid]contract.BundleId{},
		bundles:    map[contract.BundleId]contract.BundledWitness{},
		anchors:    map[contract.BundleId]seal.WitnessAnchor{},
		spenders:   map[contract.Opout]contract.Opid{},
	}

	e.checkSchema()
	e.indexOperations()
	e.checkTerminals()
	e.resolveWitnesses()

	order, ok := e.orderTransitions()
	if !ok {
		return Result{Status: *status}
	}

	history := e.replay(order)

	return Result{Status: *status, History: history}
}

type engine struct {
	c        *consignment.Consignment
	resolver WitnessResolver
	status   *Status

	contractID contract.ContractId
	chain      seal.ChainNet
	genesisID  contract.Opid

	ops      map[contract.Opid]contract.Operation
	opBundle map[contract.Opid]contract.BundleId
	bundles  map[contract.BundleId]contract.BundledWitness
	anchors  map[contract.BundleId]seal.WitnessAnchor
	spenders map[contract.Opout]contract.Opid
}

func (e *engine) checkSchema() {
	schemaID := e.c.Schema.ID()

	if e.c.Genesis.SchemaID != schemaID {
		e.status.failf("genesis references schema %v but the container carries %v",
			e.c.Genesis.SchemaID, schemaID)

		return
	}

	for _, msg := range e.c.Schema.CheckGenesis(e.c.Genesis) {
		e.status.failf("genesis: %s", msg)
	}

	for _, impl := range e.c.Ifaces {
		if impl.SchemaID != schemaID {
			e.status.warnf("interface implementation %v targets schema %v, not %v",
				impl.ID(), impl.SchemaID, schemaID)

			continue
		}

		for name, ty := range impl.Globals {
			if _, ok := e.c.Schema.GlobalTypes[ty]; !ok {
				e.status.warnf("interface %v binds %q to undeclared global type %d",
					impl.Iface, name, ty)
			}
		}

		for name, ty := range impl.Assignments {
			if _, ok := e.c.Schema.OwnedTypes[ty]; !ok {
				e.status.warnf("interface %v binds %q to undeclared owned type %d",
					impl.Iface, name, ty)
			}
		}

		for name, ty := range impl.Transitions {
			if _, ok := e.c.Schema.Transitions[ty]; !ok {
				e.status.warnf("interface %v binds %q to undeclared transition type %d",
					impl.Iface, name, ty)
			}
		}
	}
}

// indexOperations registers every disclosed operation and records which
// operation spends which output. A seal closed twice is the cardinal sin of
// the protocol and fails validation immediately.
func (e *engine) indexOperations() {
	e.ops[e.genesisID] = e.c.Genesis

	for _, ext := range e.c.Extensions {
		if ext.ContractID != e.contractID {
			e.status.failf("extension %v belongs to contract %v, not %v",
				ext.ID(), ext.ContractID, e.contractID)

			continue
		}

		e.ops[ext.ID()] = ext
	}

	for _, bw := range e.c.Bundles {
		bundleID := bw.Bundle.BundleId()
		e.bundles[bundleID] = bw

		if bw.Anchors.IsEmpty() {
			e.status.failf("bundle %v has no anchor", bundleID)
		}

		for _, t := range bw.Bundle.KnownTransitions() {
			opid := t.ID()

			if t.ContractID != e.contractID {
				e.status.failf("transition %v belongs to contract %v, not %v",
					opid, t.ContractID, e.contractID)

				continue
			}

			e.ops[opid] = t
			e.opBundle[opid] = bundleID

			for _, opout := range t.Inputs() {
				previous, spent := e.spenders[opout]
				if spent {
					if previous == opid {
						e.status.failf("operation %v consumes output %v twice",
							opid, opout)
					} else {
						e.status.failf("seal of output %v is closed twice, by %v and %v",
							opout, previous, opid)
					}

					continue
				}

				e.spenders[opout] = opid
			}
		}
	}
}

func (e *engine) checkTerminals() {
	for _, terminal := range e.c.Terminals {
		bw, ok := e.bundles[terminal.Bundle]
		if !ok {
			e.status.failf("terminal bundle %v is absent from the consignment",
				terminal.Bundle)

			continue
		}

		for _, s := range terminal.Seals {
			if !e.bundleAssigns(bw, s.Secret()) {
				e.status.warnf("terminal seal %v is not assigned by bundle %v",
					s.Secret(), terminal.Bundle)
			}
		}
	}
}

func (e *engine) bundleAssigns(bw contract.BundledWitness, secret seal.SecretSeal) bool {
	for _, t := range bw.Bundle.KnownTransitions() {
		for _, assignments := range t.Owned {
			for _, a := range assignments {
				if a.Seal().Secret() == secret {
					return true
				}
			}
		}
	}

	return false
}

// resolveWitnesses queries the resolver for every bundle. An unknown witness
// degrades validity to unresolved; a mempool witness is tolerated only on
// terminal bundles.
func (e *engine) resolveWitnesses() {
	terminal := map[contract.BundleId]bool{}
	for _, t := range e.c.Terminals {
		terminal[t.Bundle] = true
	}

	for bundleID, bw := range e.bundles {
		anchor, err := e.resolver.ResolveWitness(bw.Witness.Id)
		if xerrors.Is(err, ErrWitnessUnknown) {
			e.status.Unresolved = append(e.status.Unresolved, bw.Witness.Id)
			e.status.infof("witness %v of bundle %v is unresolved",
				bw.Witness.Id, bundleID)

			e.anchors[bundleID] = seal.WitnessAnchor{Height: seal.HeightMempool}

			continue
		}

		if err != nil {
			e.status.failf("couldn't resolve witness %v: %v", bw.Witness.Id, err)

			continue
		}

		e.anchors[bundleID] = anchor

		if !anchor.IsMined() {
			if terminal[bundleID] {
				e.status.Unmined = append(e.status.Unmined, bw.Witness.Id)
			} else {
				e.status.failf("ancestor witness %v of bundle %v is not mined",
					bw.Witness.Id, bundleID)
			}
		}
	}
}

// orderTransitions returns the known transitions sorted so that every
// ancestor precedes its descendants. It fails on undisclosed ancestors and
// on cycles.
func (e *engine) orderTransitions() ([]contract.Transition, bool) {
	const (
		fresh = iota
		onStack
		done
	)

	marks := map[contract.Opid]int{}
	order := []contract.Transition{}
	sound := true

	var visit func(opid contract.Opid, op contract.Operation)
	visit = func(opid contract.Opid, op contract.Operation) {
		switch marks[opid] {
		case done:
			return
		case onStack:
			e.status.failf("operation graph contains a cycle through %v", opid)
			sound = false

			return
		}

		marks[opid] = onStack

		for _, opout := range op.Inputs() {
			parent, ok := e.ops[opout.Op]
			if !ok {
				e.status.failf("ancestor %v of operation %v is not disclosed",
					opout.Op, opid)
				sound = false

				continue
			}

			visit(opout.Op, parent)
		}

		marks[opid] = done

		if t, isTransition := op.(contract.Transition); isTransition {
			order = append(order, t)
		}
	}

	for _, bw := range e.c.Bundles {
		for _, t := range bw.Bundle.KnownTransitions() {
			visit(t.ID(), t)
		}
	}

	return order, sound
}

// replay folds the operations into a fresh history in ancestor order,
// checking each transition against the schema, the seal chain and the
// Pedersen sum conservation on the way.
func (e *engine) replay(order []contract.Transition) *contract.History {
	history := contract.NewHistory(e.c.Genesis)

	e.checkSeals(e.genesisID, e.c.Genesis)

	for _, ext := range e.c.Extensions {
		for _, msg := range e.c.Schema.CheckExtension(ext) {
			e.status.failf("extension %v: %s", ext.ID(), msg)
		}

		e.checkSeals(ext.ID(), ext)

		err := history.AddExtension(ext, seal.WitnessAnchor{Height: 0})
		if err != nil {
			e.status.failf("couldn't replay extension %v: %v", ext.ID(), err)
		}
	}

	for _, t := range order {
		opid := t.ID()

		for _, msg := range e.c.Schema.CheckTransition(t) {
			e.status.failf("operation %v: %s", opid, msg)
		}

		e.checkSeals(opid, t)
		e.checkInputs(opid, t)
		e.checkSums(opid, t)

		anchor := e.anchors[e.opBundle[opid]]

		err := history.AddTransition(t, anchor)
		if err != nil {
			e.status.failf("couldn't replay operation %v: %v", opid, err)
		}
	}

	return history
}

// checkSeals verifies every revealed seal of the operation against the
// contract chain and every attachment reference against the container.
func (e *engine) checkSeals(opid contract.Opid, op contract.Operation) {
	for _, assignments := range op.Assignments() {
		for _, a := range assignments {
			revealed, ok := a.Seal().Revealed()
			if ok && revealed.Chain != e.chain {
				e.status.failf("operation %v assigns to chain %v instead of %v",
					opid, revealed.Chain, e.chain)
			}

			state, ok := a.RevealedState()
			if !ok {
				continue
			}

			attachment, isAttachment := state.(contract.AttachmentState)
			if isAttachment {
				if _, found := e.c.AttachmentFor(attachment.Id); !found {
					e.status.warnf("attachment %v of operation %v is not in the container",
						attachment.Id, opid)
				}
			}
		}
	}
}

// checkInputs verifies that every consumed output exists on its parent and
// that the closing bundle anchors the method of the consumed seal.
func (e *engine) checkInputs(opid contract.Opid, t contract.Transition) {
	anchors := e.bundles[e.opBundle[opid]].Anchors

	for _, opout := range t.Inputs() {
		parent, ok := e.ops[opout.Op]
		if !ok {
			continue
		}

		consumed, ok := parent.Assignments().At(opout.Ty, opout.No)
		if !ok {
			e.status.failf("operation %v consumes missing output %v", opid, opout)

			continue
		}

		revealed, ok := consumed.Seal().Revealed()
		if ok && !anchors.HasMethod(revealed.Method) {
			e.status.warnf("bundle of operation %v carries no %v anchor for input %v",
				opid, revealed.Method, opout)
		}
	}
}

// checkSums verifies the Pedersen sum conservation of every fungible state
// type touched by the transition.
func (e *engine) checkSums(opid contract.Opid, t contract.Transition) {
	types := map[contract.StateType]bool{}

	for ty := range t.Owned {
		if e.isFungible(ty) {
			types[ty] = true
		}
	}

	for _, opout := range t.Inputs() {
		if e.isFungible(opout.Ty) {
			types[opout.Ty] = true
		}
	}

	for ty := range types {
		outputs := []commit.Commitment{}
		for _, a := range t.Owned[ty] {
			c, err := commit.CommitmentFromBytes(a.ConcealedState().Commitment)
			if err != nil {
				e.status.failf("operation %v carries a malformed commitment: %v",
					opid, err)

				return
			}

			outputs = append(outputs, c)
		}

		inputs := []commit.Commitment{}
		for _, opout := range t.Inputs() {
			if opout.Ty != ty {
				continue
			}

			parent, ok := e.ops[opout.Op]
			if !ok {
				continue
			}

			consumed, ok := parent.Assignments().At(opout.Ty, opout.No)
			if !ok {
				continue
			}

			c, err := commit.CommitmentFromBytes(consumed.ConcealedState().Commitment)
			if err != nil {
				e.status.failf("output %v carries a malformed commitment: %v",
					opout, err)

				return
			}

			inputs = append(inputs, c)
		}

		if !commit.VerifySum(outputs, inputs) {
			e.status.failf("fungible sums of operation %v do not conserve for type %d",
				opid, ty)
		}
	}
}

func (e *engine) isFungible(ty contract.StateType) bool {
	kind, ok := e.c.Schema.OwnedKind(ty)

	return ok && kind == contract.KindFungible
}
