// This file contains the human-facing fixed-point representation of an
// amount. Display and parse are exact inverses for any (int, fract,
// precision) triple where the fractional part fits the precision.

package amount

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// CoinAmount is an amount split at the decimal point of its precision.
type CoinAmount struct {
	Int       uint64
	Fract     uint64
	Precision Precision
}

// NewCoinAmount splits an atomic amount at the decimal point given by the
// precision.
func NewCoinAmount(value Amount, precision Precision) CoinAmount {
	mul := precision.Multiplier()

	return CoinAmount{
		Int:       uint64(value) / mul,
		Fract:     uint64(value) % mul,
		Precision: precision,
	}
}

// ToAmountUnchecked recombines the atomic amount without guarding against
// overflow of the integer part.
func (a CoinAmount) ToAmountUnchecked() Amount {
	return Amount(a.Int*a.Precision.Multiplier() + a.Fract)
}

// ToAmount recombines the atomic amount. It returns an error if the
// fractional part does not fit the precision or the result overflows.
func (a CoinAmount) ToAmount() (Amount, error) {
	mul := a.Precision.Multiplier()
	if a.Fract >= mul {
		return 0, xerrors.Errorf("fractional part %d exceeds precision %d",
			a.Fract, a.Precision)
	}

	if a.Int != 0 && a.Int > math.MaxUint64/mul {
		return 0, xerrors.Errorf("amount %d overflows at precision %d",
			a.Int, a.Precision)
	}

	sum, ok := Amount(a.Int * mul).CheckedAdd(Amount(a.Fract))
	if !ok {
		return 0, xerrors.Errorf("amount %d overflows at precision %d",
			a.Int, a.Precision)
	}

	return sum, nil
}

// Format implements fmt.Formatter. The plain form is "int.fract" with the
// fractional part trimmed of trailing zeros; the alternate form ('#' flag)
// pads the fractional part to the full precision and appends the "~precision"
// suffix so the value can be parsed back without out-of-band knowledge.
func (a CoinAmount) Format(f fmt.State, verb rune) {
	if a.Fract == 0 && !f.Flag('#') {
		fmt.Fprintf(f, "%d", a.Int)
		return
	}

	if f.Flag('#') && a.Precision == 0 {
		fmt.Fprintf(f, "%d~0", a.Int)
		return
	}

	fract := fmt.Sprintf("%0*d", int(a.Precision), a.Fract)
	if !f.Flag('#') {
		fract = strings.TrimRight(fract, "0")
		fmt.Fprintf(f, "%d.%s", a.Int, fract)
		return
	}

	fmt.Fprintf(f, "%d.%s~%d", a.Int, fract, a.Precision)
}

func (a CoinAmount) String() string {
	return fmt.Sprintf("%v", a)
}

// ParseCoinAmount parses the textual form of an amount. Underscores are
// accepted as chunk-fill characters and ignored; a trailing "~precision"
// suffix overrides the provided precision.
func ParseCoinAmount(s string, precision Precision) (CoinAmount, error) {
	body := strings.ReplaceAll(s, "_", "")

	if at := strings.LastIndexByte(body, '~'); at >= 0 {
		digits, err := strconv.ParseUint(body[at+1:], 10, 8)
		if err != nil {
			return CoinAmount{}, xerrors.Errorf(
				"invalid precision suffix %q: %v", body[at+1:], err)
		}

		precision, err = NewPrecision(uint8(digits))
		if err != nil {
			return CoinAmount{}, xerrors.Errorf(
				"invalid precision suffix %q: %v", body[at+1:], err)
		}

		body = body[:at]
	}

	intPart := body
	fractPart := ""
	if at := strings.IndexByte(body, '.'); at >= 0 {
		intPart = body[:at]
		fractPart = body[at+1:]
	}

	value, err := strconv.ParseUint(intPart, 10, 64)
	if err != nil {
		return CoinAmount{}, xerrors.Errorf("invalid integer part %q: %v",
			intPart, err)
	}

	fract := uint64(0)
	if fractPart != "" {
		if len(fractPart) > int(precision) {
			return CoinAmount{}, xerrors.Errorf(
				"fractional part %q longer than precision %d",
				fractPart, precision)
		}

		fract, err = strconv.ParseUint(fractPart, 10, 64)
		if err != nil {
			return CoinAmount{}, xerrors.Errorf(
				"invalid fractional part %q: %v", fractPart, err)
		}

		// "5" at precision 2 means 50 atomic units.
		for i := len(fractPart); i < int(precision); i++ {
			fract *= 10
		}
	}

	return CoinAmount{Int: value, Fract: fract, Precision: precision}, nil
}
