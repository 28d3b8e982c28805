// This file contains the assignments container and its selective-disclosure
// operations: revealing seals with private knowledge, concealing everything
// not destined to a recipient, and the disclose hash that commits to the
// concealed forms.

package contract

import (
	"sort"

	"github.com/rgb-go/rgb/encode"
	"github.com/rgb-go/rgb/seal"
	"golang.org/x/xerrors"
)

// Assignments maps every assignment type to the ordered list of its
// assignments. The order inside a list is significant: it is the index part
// of the Opout referencing an entry.
type Assignments map[StateType][]Assignment

// RevealSeals implements seal.Revealer. It replaces every concealed seal
// whose commitment matches one of the known revealed seals and returns how
// many were revealed.
func (as Assignments) RevealSeals(known []seal.Revealed) int {
	count := 0

	for ty, list := range as {
		for i := range list {
			s := list[i].seal
			for _, candidate := range known {
				if s.Reveal(candidate) {
					list[i].seal = s
					count++

					break
				}
			}
		}

		as[ty] = list
	}

	return count
}

// ConcealSeals implements seal.Revealer. It conceals every revealed seal not
// in the keep list and returns how many were concealed.
func (as Assignments) ConcealSeals(keep []seal.SecretSeal) int {
	count := 0

	for ty, list := range as {
		for i := range list {
			s := list[i].seal
			if !s.IsRevealed() || inSecretSet(keep, s.Secret()) {
				continue
			}

			list[i].seal = s.Conceal()
			count++
		}

		as[ty] = list
	}

	return count
}

// ConcealStateExcept conceals the state value of every assignment whose seal
// is not in the keep list and returns how many were concealed. The seals
// themselves are untouched.
func (as Assignments) ConcealStateExcept(keep []seal.SecretSeal) int {
	count := 0

	for ty, list := range as {
		for i := range list {
			if list[i].IsConfidential() || inSecretSet(keep, list[i].seal.Secret()) {
				continue
			}

			list[i] = list[i].ConcealState()
			count++
		}

		as[ty] = list
	}

	return count
}

// MergeReveal folds the knowledge of another copy of the same assignments
// into this one.
func (as Assignments) MergeReveal(other Assignments) error {
	for ty, list := range other {
		mine, ok := as[ty]
		if !ok || len(mine) != len(list) {
			return seal.MergeRevealError{What: "assignment list"}
		}

		for i := range list {
			err := mine[i].MergeReveal(list[i])
			if err != nil {
				return xerrors.Errorf("assignment %d of type %d: %w", i, ty, err)
			}
		}

		as[ty] = mine
	}

	return nil
}

// DiscloseHash commits to the concealed form of every assignment. The result
// is invariant under seal or state revelation.
func (as Assignments) DiscloseHash() encode.Digest {
	types := make([]StateType, 0, len(as))
	for ty := range as {
		types = append(types, ty)
	}

	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	type leaf struct {
		_ struct{} `cbor:",toarray"`

		Ty     StateType
		Seal   seal.SecretSeal
		Kind   StateKind
		Commit []byte
	}

	leaves := make([]leaf, 0)
	for _, ty := range types {
		for _, a := range as[ty] {
			leaves = append(leaves, leaf{
				Ty:     ty,
				Seal:   a.seal.Secret(),
				Kind:   a.concealed.StateKind,
				Commit: a.concealed.Commitment,
			})
		}
	}

	digest, err := encode.DigestValue("rgb:assignments", leaves)
	if err != nil {
		panic("assignments encoding failed: " + err.Error())
	}

	return digest
}

// TypeOpouts returns the opouts of every assignment of the type for the
// given operation.
func (as Assignments) TypeOpouts(op Opid, ty StateType) []Opout {
	opouts := make([]Opout, len(as[ty]))
	for i := range as[ty] {
		opouts[i] = Opout{Op: op, Ty: ty, No: uint16(i)}
	}

	return opouts
}

// At returns the assignment referenced by the opout index, if present.
func (as Assignments) At(ty StateType, no uint16) (Assignment, bool) {
	list := as[ty]
	if int(no) >= len(list) {
		return Assignment{}, false
	}

	return list[no], true
}

func inSecretSet(set []seal.SecretSeal, s seal.SecretSeal) bool {
	for _, member := range set {
		if member == s {
			return true
		}
	}

	return false
}
