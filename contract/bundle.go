// This file contains the witness-bundling discipline. A witness transaction
// can carry exactly one seal-closing commitment per proof-of-publication
// method, so every transition closing a seal in that witness is grouped into
// a single bundle; the bundle's input map is what the anchors commit to.
// Transitions not disclosed to the holder stay in the bundle as concealed
// entries.

package contract

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/rgb-go/rgb/encode"
	"github.com/rgb-go/rgb/seal"
	"golang.org/x/xerrors"
)

// ErrAnchorsNonEqual is returned when two double anchor sets for the same
// witness disagree on one of their proofs.
var ErrAnchorsNonEqual = xerrors.New("anchors are not equal")

// UnrelatedTransitionError is returned when a transition claimed to belong
// to a bundle matches none of its input positions. On a validated consignment
// this is a contract violation by the sender.
type UnrelatedTransitionError struct {
	Opid Opid
}

func (e UnrelatedTransitionError) Error() string {
	return fmt.Sprintf("transition %v is unrelated to the bundle", e.Opid)
}

// TransitionBundle groups the transitions whose seals are closed by the same
// witness transaction.
type TransitionBundle struct {
	// inputMap assigns each witness input position to the transition spending
	// through it.
	inputMap map[uint32]Opid

	known     map[Opid]Transition
	concealed map[Opid][]uint32
}

// NewTransitionBundle builds a bundle from the disclosed transitions and the
// concealed entries, deriving the input map from the provided positions.
func NewTransitionBundle(positions map[Opid][]uint32,
	known []Transition) (TransitionBundle, error) {

	bundle := TransitionBundle{
		inputMap:  map[uint32]Opid{},
		known:     map[Opid]Transition{},
		concealed: map[Opid][]uint32{},
	}

	for opid, list := range positions {
		for _, pos := range list {
			if _, ok := bundle.inputMap[pos]; ok {
				return bundle, xerrors.Errorf(
					"input position %d is claimed twice", pos)
			}

			bundle.inputMap[pos] = opid
		}

		bundle.concealed[opid] = append([]uint32(nil), list...)
	}

	for _, t := range known {
		opid := t.ID()
		if _, ok := bundle.concealed[opid]; !ok {
			return bundle, UnrelatedTransitionError{Opid: opid}
		}

		delete(bundle.concealed, opid)
		bundle.known[opid] = t
	}

	return bundle, nil
}

// BundleId commits to the input map of the bundle. It is invariant under
// transition revelation.
func (b TransitionBundle) BundleId() BundleId {
	positions := make([]uint32, 0, len(b.inputMap))
	for pos := range b.inputMap {
		positions = append(positions, pos)
	}

	sort.Slice(positions, func(i, j int) bool {
		return positions[i] < positions[j]
	})

	type leaf struct {
		_ struct{} `cbor:",toarray"`

		Pos  uint32
		Opid [32]byte
	}

	leaves := make([]leaf, len(positions))
	for i, pos := range positions {
		leaves[i] = leaf{Pos: pos, Opid: b.inputMap[pos]}
	}

	digest, err := encode.DigestValue("rgb:bundle", leaves)
	if err != nil {
		panic("bundle encoding failed: " + err.Error())
	}

	return BundleId(digest)
}

// KnownTransitions returns the disclosed transitions sorted by opid.
func (b TransitionBundle) KnownTransitions() []Transition {
	opids := make([]Opid, 0, len(b.known))
	for opid := range b.known {
		opids = append(opids, opid)
	}

	sort.Slice(opids, func(i, j int) bool {
		return bytes.Compare(opids[i][:], opids[j][:]) < 0
	})

	list := make([]Transition, len(opids))
	for i, opid := range opids {
		list[i] = b.known[opid]
	}

	return list
}

// ConcealedOpids returns the opids of the transitions that were not
// disclosed to the holder.
func (b TransitionBundle) ConcealedOpids() []Opid {
	opids := make([]Opid, 0, len(b.concealed))
	for opid := range b.concealed {
		opids = append(opids, opid)
	}

	sort.Slice(opids, func(i, j int) bool {
		return bytes.Compare(opids[i][:], opids[j][:]) < 0
	})

	return opids
}

// Known returns the disclosed transition with the opid, if any.
func (b TransitionBundle) Known(opid Opid) (Transition, bool) {
	t, ok := b.known[opid]

	return t, ok
}

// Len returns the total number of transitions tracked by the bundle.
func (b TransitionBundle) Len() int {
	return len(b.known) + len(b.concealed)
}

// RevealTransition moves a transition from the concealed entries to the
// known ones by matching its consumed-input positions against the input map.
// It returns true when the transition was already known.
func (b TransitionBundle) RevealTransition(t Transition) (bool, error) {
	opid := t.ID()

	if _, ok := b.known[opid]; ok {
		return true, nil
	}

	positions, ok := b.concealed[opid]
	if !ok {
		return false, UnrelatedTransitionError{Opid: opid}
	}

	for _, pos := range positions {
		if b.inputMap[pos] != opid {
			return false, UnrelatedTransitionError{Opid: opid}
		}
	}

	delete(b.concealed, opid)
	b.known[opid] = t

	return false, nil
}

// ConcealTransition moves a disclosed transition back to the concealed
// entries. It is used when a consignment must not disclose a sibling branch.
func (b TransitionBundle) ConcealTransition(opid Opid) bool {
	_, ok := b.known[opid]
	if !ok {
		return false
	}

	positions := []uint32{}
	for pos, owner := range b.inputMap {
		if owner == opid {
			positions = append(positions, pos)
		}
	}

	sort.Slice(positions, func(i, j int) bool {
		return positions[i] < positions[j]
	})

	delete(b.known, opid)
	b.concealed[opid] = positions

	return true
}

// MergeReveal folds the knowledge of another copy of the same bundle into
// this one.
func (b TransitionBundle) MergeReveal(other TransitionBundle) error {
	if b.BundleId() != other.BundleId() {
		return xerrors.Errorf("bundles %v and %v have distinct identities",
			b.BundleId(), other.BundleId())
	}

	for opid, t := range other.known {
		if _, ok := b.known[opid]; ok {
			continue
		}

		_, err := b.RevealTransition(t)
		if err != nil {
			return xerrors.Errorf("couldn't reveal: %w", err)
		}
	}

	return nil
}

type bundleWire struct {
	_ struct{} `cbor:",toarray"`

	InputMap  map[uint32][32]byte
	Known     []Transition
	Concealed map[[32]byte][]uint32
}

// MarshalCBOR implements cbor.Marshaler.
func (b TransitionBundle) MarshalCBOR() ([]byte, error) {
	wire := bundleWire{
		InputMap:  map[uint32][32]byte{},
		Known:     b.KnownTransitions(),
		Concealed: map[[32]byte][]uint32{},
	}

	for pos, opid := range b.inputMap {
		wire.InputMap[pos] = opid
	}

	for opid, positions := range b.concealed {
		wire.Concealed[opid] = positions
	}

	return encode.Marshal(wire)
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (b *TransitionBundle) UnmarshalCBOR(data []byte) error {
	wire := bundleWire{}

	err := encode.Unmarshal(data, &wire)
	if err != nil {
		return xerrors.Errorf("couldn't decode bundle: %v", err)
	}

	positions := map[Opid][]uint32{}
	for pos, opid := range wire.InputMap {
		positions[opid] = append(positions[opid], pos)
	}

	for opid, list := range positions {
		sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
		positions[opid] = list
	}

	bundle, err := NewTransitionBundle(positions, wire.Known)
	if err != nil {
		return xerrors.Errorf("inconsistent bundle: %v", err)
	}

	*b = bundle

	return nil
}

// Anchor binds the bundle's leaf in the multi-protocol commitment tree to
// the witness transaction. The proofs themselves are opaque to this engine.
type Anchor struct {
	_ struct{} `cbor:",toarray"`

	MpcProof []byte
	DbcProof []byte
}

// Equal compares both proofs.
func (a Anchor) Equal(other Anchor) bool {
	return bytes.Equal(a.MpcProof, other.MpcProof) &&
		bytes.Equal(a.DbcProof, other.DbcProof)
}

// AnchorSet carries the anchors of a bundle: Tapret only, Opret only, or
// both for a witness committing through the two methods at once.
type AnchorSet struct {
	_ struct{} `cbor:",toarray"`

	Tapret *Anchor
	Opret  *Anchor
}

// HasMethod reports whether the set carries an anchor for the method.
func (s AnchorSet) HasMethod(m seal.Method) bool {
	switch m {
	case seal.MethodTapret:
		return s.Tapret != nil
	case seal.MethodOpret:
		return s.Opret != nil
	default:
		return false
	}
}

// IsDouble reports whether both methods are anchored.
func (s AnchorSet) IsDouble() bool {
	return s.Tapret != nil && s.Opret != nil
}

// IsEmpty reports whether no method is anchored.
func (s AnchorSet) IsEmpty() bool {
	return s.Tapret == nil && s.Opret == nil
}

// MergeReveal combines two anchor sets for the same witness. A Tapret-only
// set merged with an Opret-only set becomes a double set; matching methods
// must carry pairwise equal anchors.
func (s AnchorSet) MergeReveal(other AnchorSet) (AnchorSet, error) {
	merged := AnchorSet{}

	tapret, err := mergeAnchor(s.Tapret, other.Tapret)
	if err != nil {
		return merged, err
	}

	opret, err := mergeAnchor(s.Opret, other.Opret)
	if err != nil {
		return merged, err
	}

	merged.Tapret = tapret
	merged.Opret = opret

	return merged, nil
}

func mergeAnchor(a, b *Anchor) (*Anchor, error) {
	if a == nil {
		return b, nil
	}

	if b == nil {
		return a, nil
	}

	if !a.Equal(*b) {
		return nil, ErrAnchorsNonEqual
	}

	return a, nil
}

// BundledWitness pairs the public witness with its anchors and the bundle
// they commit to.
type BundledWitness struct {
	_ struct{} `cbor:",toarray"`

	Witness seal.PubWitness
	Anchors AnchorSet
	Bundle  TransitionBundle
}

// MergeReveal folds another copy of the same bundled witness into this one.
func (w *BundledWitness) MergeReveal(other BundledWitness) error {
	err := w.Witness.MergeReveal(other.Witness)
	if err != nil {
		return xerrors.Errorf("couldn't merge witness: %w", err)
	}

	anchors, err := w.Anchors.MergeReveal(other.Anchors)
	if err != nil {
		return xerrors.Errorf("couldn't merge anchors: %w", err)
	}

	err = w.Bundle.MergeReveal(other.Bundle)
	if err != nil {
		return xerrors.Errorf("couldn't merge bundle: %w", err)
	}

	w.Anchors = anchors

	return nil
}

// DiscloseHash commits to the witness id, the anchors and the bundle
// identity.
func (w BundledWitness) DiscloseHash() encode.Digest {
	digest, err := encode.DigestValue("rgb:bundled-witness", struct {
		_ struct{} `cbor:",toarray"`

		Witness seal.WitnessId
		Anchors AnchorSet
		Bundle  [32]byte
	}{
		Witness: w.Witness.Id,
		Anchors: w.Anchors,
		Bundle:  w.Bundle.BundleId(),
	})
	if err != nil {
		panic("bundled witness encoding failed: " + err.Error())
	}

	return digest
}
