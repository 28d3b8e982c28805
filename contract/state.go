// This file contains the owned-state model. Every assignment pairs a
// single-use seal with a state value; both sides can independently be
// revealed or concealed, which yields the four confidentiality levels of an
// assignment. Identity commitments are always taken over the concealed
// forms, so concealing or revealing never changes an operation id.

package contract

import (
	"bytes"

	"github.com/rgb-go/rgb/amount"
	"github.com/rgb-go/rgb/commit"
	"github.com/rgb-go/rgb/encode"
	"github.com/rgb-go/rgb/seal"
	"golang.org/x/xerrors"
)

// StateKind is the shape of an owned-state value.
type StateKind uint8

const (
	// KindVoid is a rights-only assignment with no attached value.
	KindVoid StateKind = iota

	// KindFungible is a blinded amount subject to sum conservation.
	KindFungible

	// KindStructured is opaque structured data with a salt.
	KindStructured

	// KindAttachment references an attachment blob with a salt.
	KindAttachment
)

func (k StateKind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindFungible:
		return "fungible"
	case KindStructured:
		return "structured"
	case KindAttachment:
		return "attachment"
	default:
		return "unknown"
	}
}

// RevealedState is a disclosed owned-state value.
type RevealedState interface {
	// Kind returns the shape of the value.
	Kind() StateKind

	// Conceal returns the confidential commitment of the value.
	Conceal() ConcealedState
}

// ConcealedState is the confidential form of an owned-state value: a
// Pedersen commitment for fungible state, a salted hash for the rest.
type ConcealedState struct {
	_ struct{} `cbor:",toarray"`

	StateKind  StateKind
	Commitment []byte
}

// Equal compares kind and commitment.
func (c ConcealedState) Equal(other ConcealedState) bool {
	return c.StateKind == other.StateKind &&
		bytes.Equal(c.Commitment, other.Commitment)
}

// VoidState is a rights-only value.
type VoidState struct {
	_ struct{} `cbor:",toarray"`
}

// Kind implements RevealedState.
func (s VoidState) Kind() StateKind {
	return KindVoid
}

// Conceal implements RevealedState.
func (s VoidState) Conceal() ConcealedState {
	digest := encode.DigestBytes("rgb:state:void", nil)

	return ConcealedState{StateKind: KindVoid, Commitment: digest[:]}
}

// FungibleState is a fungible amount with the blinding factor of its Pedersen
// commitment.
type FungibleState struct {
	Amount   amount.Amount
	Blinding commit.Factor
}

// Kind implements RevealedState.
func (s FungibleState) Kind() StateKind {
	return KindFungible
}

// Conceal implements RevealedState. The confidential form is the Pedersen
// commitment, which is what the sum-conservation check consumes.
func (s FungibleState) Conceal() ConcealedState {
	c := commit.Commit(uint64(s.Amount), s.Blinding)

	return ConcealedState{StateKind: KindFungible, Commitment: c.Bytes()}
}

// DataState is opaque structured data salted against dictionary attacks on
// its commitment.
type DataState struct {
	Data []byte
	Salt uint64
}

// Kind implements RevealedState.
func (s DataState) Kind() StateKind {
	return KindStructured
}

// Conceal implements RevealedState.
func (s DataState) Conceal() ConcealedState {
	digest, err := encode.DigestValue("rgb:state:data", struct {
		_ struct{} `cbor:",toarray"`

		Data []byte
		Salt uint64
	}{Data: s.Data, Salt: s.Salt})
	if err != nil {
		panic("data state encoding failed: " + err.Error())
	}

	return ConcealedState{StateKind: KindStructured, Commitment: digest[:]}
}

// AttachmentState references an attachment blob by id and media type.
type AttachmentState struct {
	Id        AttachId
	MediaType string
	Salt      uint64
}

// Kind implements RevealedState.
func (s AttachmentState) Kind() StateKind {
	return KindAttachment
}

// Conceal implements RevealedState.
func (s AttachmentState) Conceal() ConcealedState {
	digest, err := encode.DigestValue("rgb:state:attach", struct {
		_ struct{} `cbor:",toarray"`

		Id        [32]byte
		MediaType string
		Salt      uint64
	}{Id: s.Id, MediaType: s.MediaType, Salt: s.Salt})
	if err != nil {
		panic("attachment state encoding failed: " + err.Error())
	}

	return ConcealedState{StateKind: KindAttachment, Commitment: digest[:]}
}

// Assignment pairs a single-use seal with an owned-state value.
type Assignment struct {
	seal      seal.Seal
	concealed ConcealedState
	revealed  RevealedState
}

// NewAssignment creates a fully revealed assignment.
func NewAssignment(s seal.Seal, state RevealedState) Assignment {
	return Assignment{
		seal:      s,
		concealed: state.Conceal(),
		revealed:  state,
	}
}

// NewConfidentialAssignment creates an assignment whose state is known only
// by its commitment.
func NewConfidentialAssignment(s seal.Seal, state ConcealedState) Assignment {
	return Assignment{
		seal:      s,
		concealed: state,
	}
}

// Seal returns the seal of the assignment.
func (a Assignment) Seal() seal.Seal {
	return a.seal
}

// ConcealedState returns the confidential form of the state, which is always
// known.
func (a Assignment) ConcealedState() ConcealedState {
	return a.concealed
}

// RevealedState returns the disclosed state value if it is known.
func (a Assignment) RevealedState() (RevealedState, bool) {
	if a.revealed == nil {
		return nil, false
	}

	return a.revealed, true
}

// IsConfidential reports whether the state value is concealed.
func (a Assignment) IsConfidential() bool {
	return a.revealed == nil
}

// ConcealState drops the revealed state value, keeping seal knowledge.
func (a Assignment) ConcealState() Assignment {
	return Assignment{seal: a.seal, concealed: a.concealed}
}

// MergeReveal folds another copy of the same assignment into this one.
func (a *Assignment) MergeReveal(other Assignment) error {
	err := a.seal.MergeReveal(other.seal)
	if err != nil {
		return xerrors.Errorf("couldn't merge seal: %w", err)
	}

	if !a.concealed.Equal(other.concealed) {
		return seal.MergeRevealError{What: "assignment state"}
	}

	if a.revealed == nil {
		a.revealed = other.revealed
	}

	return nil
}

// Fungible returns the amount of a revealed fungible assignment.
func (a Assignment) Fungible() (amount.Amount, bool) {
	fungible, ok := a.revealed.(FungibleState)
	if !ok {
		return 0, false
	}

	return fungible.Amount, true
}

type assignmentWire struct {
	_ struct{} `cbor:",toarray"`

	Seal      seal.Seal
	Concealed ConcealedState
	Kind      StateKind
	Amount    uint64
	Blinding  []byte
	Data      []byte
	AttachId  [32]byte
	MediaType string
	Salt      uint64
	Revealed  bool
}

// MarshalCBOR implements cbor.Marshaler.
func (a Assignment) MarshalCBOR() ([]byte, error) {
	wire := assignmentWire{
		Seal:      a.seal,
		Concealed: a.concealed,
		Kind:      a.concealed.StateKind,
	}

	switch state := a.revealed.(type) {
	case nil:
	case VoidState:
		wire.Revealed = true
	case FungibleState:
		wire.Revealed = true
		wire.Amount = uint64(state.Amount)
		wire.Blinding = state.Blinding.Bytes()
	case DataState:
		wire.Revealed = true
		wire.Data = state.Data
		wire.Salt = state.Salt
	case AttachmentState:
		wire.Revealed = true
		wire.AttachId = state.Id
		wire.MediaType = state.MediaType
		wire.Salt = state.Salt
	default:
		return nil, xerrors.Errorf("unsupported state kind %v", a.concealed.StateKind)
	}

	return encode.Marshal(wire)
}

// UnmarshalCBOR implements cbor.Unmarshaler. Revealed values are checked
// against the commitment they claim to open.
func (a *Assignment) UnmarshalCBOR(data []byte) error {
	wire := assignmentWire{}

	err := encode.Unmarshal(data, &wire)
	if err != nil {
		return xerrors.Errorf("couldn't decode assignment: %v", err)
	}

	a.seal = wire.Seal
	a.concealed = wire.Concealed
	a.revealed = nil

	if !wire.Revealed {
		return nil
	}

	switch wire.Kind {
	case KindVoid:
		a.revealed = VoidState{}
	case KindFungible:
		blinding, err := commit.FactorFromBytes(wire.Blinding)
		if err != nil {
			return xerrors.Errorf("couldn't decode blinding: %v", err)
		}

		a.revealed = FungibleState{
			Amount:   amount.Amount(wire.Amount),
			Blinding: blinding,
		}
	case KindStructured:
		a.revealed = DataState{Data: wire.Data, Salt: wire.Salt}
	case KindAttachment:
		a.revealed = AttachmentState{
			Id:        wire.AttachId,
			MediaType: wire.MediaType,
			Salt:      wire.Salt,
		}
	default:
		return xerrors.Errorf("unsupported state kind %d", wire.Kind)
	}

	if !a.revealed.Conceal().Equal(a.concealed) {
		return xerrors.Errorf("assignment state does not match its commitment")
	}

	return nil
}
