// This file contains the seal sum type that tracks whether the holder knows
// the output behind a right, and the merge-reveal discipline applied when the
// same seal is learned from two partially disclosing sources.

package seal

import (
	"fmt"

	"github.com/rgb-go/rgb/encode"
	"golang.org/x/xerrors"
)

// MergeRevealError indicates that two sources fully revealed the same
// committed identity with different content. This is a protocol violation by
// one of the sources, not a recoverable state of the merge.
type MergeRevealError struct {
	What string
}

func (e MergeRevealError) Error() string {
	return fmt.Sprintf("conflicting revealed %s", e.What)
}

// Seal is a single-use seal in revealed or concealed form. The concealed
// commitment is always available; the revealed fields only when disclosed.
type Seal struct {
	secret   SecretSeal
	revealed *Revealed
}

// NewRevealed wraps a fully disclosed seal.
func NewRevealed(r Revealed) Seal {
	return Seal{secret: r.Conceal(), revealed: &r}
}

// NewConcealed wraps a seal known only by its commitment.
func NewConcealed(secret SecretSeal) Seal {
	return Seal{secret: secret}
}

// Secret returns the concealed commitment of the seal.
func (s Seal) Secret() SecretSeal {
	return s.secret
}

// IsRevealed reports whether the revealed fields are known.
func (s Seal) IsRevealed() bool {
	return s.revealed != nil
}

// Revealed returns the disclosed fields of the seal if they are known.
func (s Seal) Revealed() (Revealed, bool) {
	if s.revealed == nil {
		return Revealed{}, false
	}

	return *s.revealed, true
}

// Conceal drops the revealed fields, keeping only the commitment.
func (s Seal) Conceal() Seal {
	return Seal{secret: s.secret}
}

// Reveal fills in the revealed fields when the candidate matches the
// commitment. It returns true when the seal went from concealed to revealed.
func (s *Seal) Reveal(candidate Revealed) bool {
	if s.revealed != nil {
		return false
	}

	if candidate.Conceal() != s.secret {
		return false
	}

	s.revealed = &candidate

	return true
}

// MergeReveal folds the knowledge of another copy of the same seal into this
// one, preferring the more revealed variant.
func (s *Seal) MergeReveal(other Seal) error {
	if s.secret != other.secret {
		return xerrors.Errorf("seals %v and %v have distinct identities",
			s.secret, other.secret)
	}

	if other.revealed == nil {
		return nil
	}

	if s.revealed == nil {
		r := *other.revealed
		s.revealed = &r

		return nil
	}

	if !s.revealed.Equal(*other.revealed) {
		return MergeRevealError{What: "seal " + s.secret.String()}
	}

	return nil
}

// MarshalCBOR implements cbor.Marshaler. The wire form always carries the
// commitment so that identities survive concealment.
func (s Seal) MarshalCBOR() ([]byte, error) {
	return encode.Marshal(sealWire{
		Secret:   s.secret,
		Revealed: s.revealed,
	})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (s *Seal) UnmarshalCBOR(data []byte) error {
	wire := sealWire{}

	err := encode.Unmarshal(data, &wire)
	if err != nil {
		return xerrors.Errorf("couldn't decode seal: %v", err)
	}

	if wire.Revealed != nil && wire.Revealed.Conceal() != wire.Secret {
		return xerrors.Errorf("seal %v does not commit to its revealed form",
			wire.Secret)
	}

	s.secret = wire.Secret
	s.revealed = wire.Revealed

	return nil
}

type sealWire struct {
	_ struct{} `cbor:",toarray"`

	Secret   SecretSeal
	Revealed *Revealed
}

// Revealer is implemented by containers whose seals can be selectively
// revealed with private knowledge, or concealed for disclosure to a third
// party.
type Revealer interface {
	// RevealSeals replaces concealed seals matching one of the known revealed
	// seals and returns how many were revealed.
	RevealSeals(known []Revealed) int

	// ConcealSeals conceals every revealed seal that is not in the keep list
	// and returns how many were concealed.
	ConcealSeals(keep []SecretSeal) int
}
