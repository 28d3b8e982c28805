// Package seal implements the single-use-seal model that binds abstract
// contract rights to outputs of the underlying ledger. A revealed seal names
// the output and a blinding factor; its concealed form is a one-way
// commitment that can be handed to a counterparty without disclosing the
// output. A seal is closed by the witness transaction spending its output,
// and validation enforces that this happens at most once.
package seal

import (
	"fmt"

	"github.com/rgb-go/rgb/encode"
	"golang.org/x/xerrors"
)

// ChainNet identifies the ledger a seal lives on.
type ChainNet uint8

const (
	BitcoinMainnet ChainNet = iota
	BitcoinTestnet
	LiquidMainnet
	LiquidTestnet
)

func (c ChainNet) String() string {
	switch c {
	case BitcoinMainnet:
		return "bitcoin"
	case BitcoinTestnet:
		return "testnet"
	case LiquidMainnet:
		return "liquid"
	case LiquidTestnet:
		return "liquidtestnet"
	default:
		return fmt.Sprintf("chainnet(%d)", uint8(c))
	}
}

// Method is the proof-of-publication protocol closing a seal.
type Method uint8

const (
	// MethodOpret commits in an OP_RETURN output of the witness.
	MethodOpret Method = iota

	// MethodTapret commits in a taproot output tweak of the witness.
	MethodTapret
)

func (m Method) String() string {
	switch m {
	case MethodOpret:
		return "opret1st"
	case MethodTapret:
		return "tapret1st"
	default:
		return fmt.Sprintf("method(%d)", uint8(m))
	}
}

// Txid is a ledger transaction identifier.
type Txid [32]byte

func (id Txid) String() string {
	return fmt.Sprintf("%x", id[:])
}

// WitnessId identifies a witness transaction on a specific chain.
type WitnessId struct {
	_ struct{} `cbor:",toarray"`

	Chain ChainNet
	Txid  Txid
}

func (id WitnessId) String() string {
	return fmt.Sprintf("%v:%v", id.Chain, id.Txid)
}

// Output is an absolute ledger outpoint.
type Output struct {
	_ struct{} `cbor:",toarray"`

	Txid Txid
	Vout uint32
}

func (o Output) String() string {
	return fmt.Sprintf("%v:%d", o.Txid, o.Vout)
}

// SecretSeal is the concealed form of a seal, a one-way commitment over its
// revealed fields.
type SecretSeal [32]byte

func (s SecretSeal) String() string {
	return fmt.Sprintf("%x", s[:])[:8]
}

// AuthToken is a concealable capability token derived from a seal. It lets a
// payer address a recipient without learning the output backing the seal.
type AuthToken [32]byte

func (t AuthToken) String() string {
	return fmt.Sprintf("%x", t[:])[:8]
}

// Revealed is a fully disclosed seal. A nil Txid makes the seal relative to
// the witness transaction that will close it: the vout then names one of the
// witness's own outputs.
type Revealed struct {
	_ struct{} `cbor:",toarray"`

	Method   Method
	Chain    ChainNet
	Txid     *Txid
	Vout     uint32
	Blinding uint64
}

// Conceal returns the one-way commitment of the seal.
func (r Revealed) Conceal() SecretSeal {
	data, err := encode.Marshal(r)
	if err != nil {
		// The seal is a fixed closed struct; its encoding cannot fail.
		panic("seal encoding failed: " + err.Error())
	}

	return SecretSeal(encode.DigestBytes("rgb:seal:v1", data))
}

// AuthToken derives the capability token of the seal.
func (r Revealed) AuthToken() AuthToken {
	secret := r.Conceal()

	return AuthToken(encode.DigestBytes("rgb:seal:auth", secret[:]))
}

// ToOutputSeal resolves the seal to an absolute outpoint. Vout-relative seals
// require the id of the witness transaction that closed them.
func (r Revealed) ToOutputSeal(witness WitnessId) (Output, error) {
	if r.Chain != witness.Chain {
		return Output{}, xerrors.Errorf(
			"seal chain %v does not match witness chain %v",
			r.Chain, witness.Chain)
	}

	if r.Txid != nil {
		return Output{Txid: *r.Txid, Vout: r.Vout}, nil
	}

	return Output{Txid: witness.Txid, Vout: r.Vout}, nil
}

// Output returns the absolute outpoint of a seal that carries its own txid.
func (r Revealed) Output() (Output, bool) {
	if r.Txid == nil {
		return Output{}, false
	}

	return Output{Txid: *r.Txid, Vout: r.Vout}, true
}

// Equal compares every revealed field.
func (r Revealed) Equal(other Revealed) bool {
	if r.Method != other.Method || r.Chain != other.Chain ||
		r.Vout != other.Vout || r.Blinding != other.Blinding {

		return false
	}

	if (r.Txid == nil) != (other.Txid == nil) {
		return false
	}

	return r.Txid == nil || *r.Txid == *other.Txid
}
