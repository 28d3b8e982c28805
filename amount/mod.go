// Package amount implements fixed-point arithmetic for fungible contract
// state. Quantities are unsigned 64-bit integers; a precision between 0 and
// 18 positions the decimal point for display only. No floating point value
// ever enters the contract-state path.
package amount

import (
	"math"

	"golang.org/x/xerrors"
)

// MaxPrecision is the largest supported number of decimal digits. 10^19
// overflows an unsigned 64-bit integer, so 18 is the ceiling.
const MaxPrecision = Precision(18)

// ErrPrecisionOverflow is returned when a precision above 18 is used.
var ErrPrecisionOverflow = xerrors.New("precision overflow")

// Amount is an atomic fungible quantity. All arithmetic is exact integer
// arithmetic.
type Amount uint64

// CheckedAdd returns a+b, or false if the sum does not fit.
func (a Amount) CheckedAdd(b Amount) (Amount, bool) {
	if a > math.MaxUint64-b {
		return 0, false
	}

	return a + b, true
}

// CheckedSub returns a-b, or false if b exceeds a.
func (a Amount) CheckedSub(b Amount) (Amount, bool) {
	if b > a {
		return 0, false
	}

	return a - b, true
}

// SaturatingAdd returns a+b, clamping at the maximal amount.
func (a Amount) SaturatingAdd(b Amount) Amount {
	sum, ok := a.CheckedAdd(b)
	if !ok {
		return math.MaxUint64
	}

	return sum
}

// SaturatingSub returns a-b, clamping at zero.
func (a Amount) SaturatingSub(b Amount) Amount {
	diff, ok := a.CheckedSub(b)
	if !ok {
		return 0
	}

	return diff
}

// Precision is the position of the decimal point of a displayed amount.
type Precision uint8

// NewPrecision validates the decimal-digit count.
func NewPrecision(digits uint8) (Precision, error) {
	p := Precision(digits)
	if p > MaxPrecision {
		return 0, ErrPrecisionOverflow
	}

	return p, nil
}

// Multiplier returns 10^p.
func (p Precision) Multiplier() uint64 {
	mul := uint64(1)
	for i := Precision(0); i < p; i++ {
		mul *= 10
	}

	return mul
}
