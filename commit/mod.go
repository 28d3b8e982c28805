// Package commit provides the Pedersen commitment capability used for
// confidential fungible state. A commitment C = v*H + r*G hides the amount v
// behind the blinding factor r; conservation of fungible state across an
// operation is checked on the commitments alone, without revealing the
// amounts. The scalar arithmetic is delegated to the kyber Ed25519 suite.
package commit

import (
	"encoding/binary"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/suites"
	"golang.org/x/xerrors"
)

// suite is the kyber suite for Pedersen commitments.
var suite = suites.MustFind("Ed25519")

// valueBase is the generator H for the committed amount. It is picked from a
// seeded stream so that nobody knows its discrete logarithm with respect to
// the standard base point.
var valueBase = suite.Point().Pick(suite.XOF([]byte("rgb:pedersen:value-generator")))

// ErrNoOutput is returned when a zero-balanced partition has no output to
// carry the correction term.
var ErrNoOutput = xerrors.New("no output to balance blinding factors")

// Factor is a blinding factor, a scalar of the commitment group.
type Factor struct {
	scalar kyber.Scalar
}

// NewFactor picks a fresh random blinding factor.
func NewFactor() Factor {
	return Factor{scalar: suite.Scalar().Pick(suite.RandomStream())}
}

// FactorFromBytes restores a blinding factor from its serialized form.
func FactorFromBytes(data []byte) (Factor, error) {
	scalar := suite.Scalar()

	err := scalar.UnmarshalBinary(data)
	if err != nil {
		return Factor{}, xerrors.Errorf("couldn't unmarshal factor: %v", err)
	}

	return Factor{scalar: scalar}, nil
}

// Bytes returns the serialized form of the factor.
func (f Factor) Bytes() []byte {
	data, err := f.scalar.MarshalBinary()
	if err != nil {
		// Ed25519 scalars always marshal.
		panic("factor marshaling failed: " + err.Error())
	}

	return data
}

// Equal returns true when both factors are the same scalar.
func (f Factor) Equal(other Factor) bool {
	return f.scalar.Equal(other.scalar)
}

// IsZero reports whether the factor is uninitialized or the zero scalar.
func (f Factor) IsZero() bool {
	return f.scalar == nil || f.scalar.Equal(suite.Scalar().Zero())
}

// Commitment is a Pedersen commitment to an amount.
type Commitment struct {
	point kyber.Point
}

// Commit commits to the value under the blinding factor.
func Commit(value uint64, blinding Factor) Commitment {
	c := suite.Point().Mul(scalarOf(value), valueBase)
	c.Add(c, suite.Point().Mul(blinding.scalar, nil))

	return Commitment{point: c}
}

// CommitmentFromBytes restores a commitment from its serialized form.
func CommitmentFromBytes(data []byte) (Commitment, error) {
	point := suite.Point()

	err := point.UnmarshalBinary(data)
	if err != nil {
		return Commitment{}, xerrors.Errorf("couldn't unmarshal commitment: %v", err)
	}

	return Commitment{point: point}, nil
}

// Bytes returns the serialized form of the commitment.
func (c Commitment) Bytes() []byte {
	data, err := c.point.MarshalBinary()
	if err != nil {
		panic("commitment marshaling failed: " + err.Error())
	}

	return data
}

// Equal returns true when both commitments are the same point.
func (c Commitment) Equal(other Commitment) bool {
	return c.point.Equal(other.point)
}

// ZeroBalanced derives the output blinding factors for a state transition.
// All but the last output get fresh random factors; the last one is the
// correction term that makes the output factors sum to the input factors, so
// that commitment sums cancel when the amounts are conserved. An operation
// without inputs issues new supply and has no conservation constraint, so a
// single output gets a plain random factor.
func ZeroBalanced(inputs []Factor, outputCount int) ([]Factor, error) {
	if outputCount == 0 {
		return nil, ErrNoOutput
	}

	outputs := make([]Factor, outputCount)
	for i := 0; i < outputCount-1; i++ {
		outputs[i] = NewFactor()
	}

	if len(inputs) == 0 && outputCount == 1 {
		outputs[0] = NewFactor()
		return outputs, nil
	}

	correction := suite.Scalar().Zero()
	for _, in := range inputs {
		correction.Add(correction, in.scalar)
	}

	for _, out := range outputs[:outputCount-1] {
		correction.Sub(correction, out.scalar)
	}

	outputs[outputCount-1] = Factor{scalar: correction}

	return outputs, nil
}

// VerifySum checks that the positive commitments sum to the same point as
// the negative ones. With zero-balanced blinding factors this holds exactly
// when the committed amounts are conserved.
func VerifySum(positive []Commitment, negative []Commitment) bool {
	pos := suite.Point().Null()
	for _, c := range positive {
		pos.Add(pos, c.point)
	}

	neg := suite.Point().Null()
	for _, c := range negative {
		neg.Add(neg, c.point)
	}

	return pos.Equal(neg)
}

func scalarOf(value uint64) kyber.Scalar {
	buffer := make([]byte, 8)
	binary.LittleEndian.PutUint64(buffer, value)

	return suite.Scalar().SetBytes(buffer)
}
