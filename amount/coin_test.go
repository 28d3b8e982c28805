package amount

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCoinAmount_RoundTrip(t *testing.T) {
	values := []Amount{0, 1, 99, 100, 10_000_000, math.MaxUint64}

	for _, value := range values {
		for p := Precision(0); p <= MaxPrecision; p++ {
			coin := NewCoinAmount(value, p)
			require.Equal(t, value, coin.ToAmountUnchecked())

			back, err := coin.ToAmount()
			require.NoError(t, err)
			require.Equal(t, value, back)
		}
	}
}

func TestCoinAmount_DisplayParseInverse(t *testing.T) {
	values := []Amount{0, 1, 5, 50, 100, 123_456, 100_000_001}

	for _, value := range values {
		for p := Precision(0); p <= 8; p++ {
			coin := NewCoinAmount(value, p)

			parsed, err := ParseCoinAmount(fmt.Sprintf("%v", coin), p)
			require.NoError(t, err)
			require.Equal(t, coin, parsed)

			// The alternate form carries its own precision suffix.
			parsed, err = ParseCoinAmount(fmt.Sprintf("%#v", coin), 0)
			require.NoError(t, err)
			require.Equal(t, coin, parsed)
		}
	}
}

func TestCoinAmount_Format(t *testing.T) {
	coin := NewCoinAmount(150, 2)

	require.Equal(t, "1.5", fmt.Sprintf("%v", coin))
	require.Equal(t, "1.50~2", fmt.Sprintf("%#v", coin))

	whole := NewCoinAmount(300, 2)
	require.Equal(t, "3", fmt.Sprintf("%v", whole))
	require.Equal(t, "3.00~2", fmt.Sprintf("%#v", whole))
}

func TestParseCoinAmount_FillCharacters(t *testing.T) {
	parsed, err := ParseCoinAmount("1_000_000.5", 2)
	require.NoError(t, err)
	require.Equal(t, CoinAmount{Int: 1_000_000, Fract: 50, Precision: 2}, parsed)
}

func TestParseCoinAmount_Malformed(t *testing.T) {
	_, err := ParseCoinAmount("abc", 2)
	require.Error(t, err)
	require.Contains(t, err.Error(), "\"abc\"")

	_, err = ParseCoinAmount("1.234", 2)
	require.EqualError(t, err,
		"fractional part \"234\" longer than precision 2")

	_, err = ParseCoinAmount("1.5~42", 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "precision suffix")
}

func TestAmount_CheckedArithmetic(t *testing.T) {
	sum, ok := Amount(40).CheckedAdd(60)
	require.True(t, ok)
	require.Equal(t, Amount(100), sum)

	_, ok = Amount(math.MaxUint64).CheckedAdd(1)
	require.False(t, ok)

	diff, ok := Amount(100).CheckedSub(60)
	require.True(t, ok)
	require.Equal(t, Amount(40), diff)

	_, ok = Amount(1).CheckedSub(2)
	require.False(t, ok)

	require.Equal(t, Amount(math.MaxUint64),
		Amount(math.MaxUint64).SaturatingAdd(10))
	require.Equal(t, Amount(0), Amount(5).SaturatingSub(10))
}

func TestNewPrecision(t *testing.T) {
	p, err := NewPrecision(18)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000_000_000_000_000), p.Multiplier())

	_, err = NewPrecision(19)
	require.EqualError(t, err, "precision overflow")
}
