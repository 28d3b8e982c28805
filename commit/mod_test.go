package commit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommit_Deterministic(t *testing.T) {
	blinding := NewFactor()

	c1 := Commit(100, blinding)
	c2 := Commit(100, blinding)
	require.True(t, c1.Equal(c2))

	c3 := Commit(101, blinding)
	require.False(t, c1.Equal(c3))

	c4 := Commit(100, NewFactor())
	require.False(t, c1.Equal(c4))
}

func TestFactor_SerializeRoundTrip(t *testing.T) {
	f := NewFactor()

	back, err := FactorFromBytes(f.Bytes())
	require.NoError(t, err)
	require.True(t, f.Equal(back))

	_, err = FactorFromBytes([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestCommitment_SerializeRoundTrip(t *testing.T) {
	c := Commit(42, NewFactor())

	back, err := CommitmentFromBytes(c.Bytes())
	require.NoError(t, err)
	require.True(t, c.Equal(back))

	_, err = CommitmentFromBytes([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestZeroBalanced_NoOutput(t *testing.T) {
	_, err := ZeroBalanced(nil, 0)
	require.EqualError(t, err, "no output to balance blinding factors")
}

func TestZeroBalanced_Issuance(t *testing.T) {
	outputs, err := ZeroBalanced(nil, 1)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	require.False(t, outputs[0].IsZero())
}

func balanced(t *testing.T, inputAmounts, outputAmounts []uint64) bool {
	t.Helper()

	inputs := make([]Factor, len(inputAmounts))
	for i := range inputs {
		inputs[i] = NewFactor()
	}

	outputs, err := ZeroBalanced(inputs, len(outputAmounts))
	require.NoError(t, err)

	pos := make([]Commitment, len(outputAmounts))
	for i, amount := range outputAmounts {
		pos[i] = Commit(amount, outputs[i])
	}

	neg := make([]Commitment, len(inputAmounts))
	for i, amount := range inputAmounts {
		neg[i] = Commit(amount, inputs[i])
	}

	return VerifySum(pos, neg)
}

func TestVerifySum_Conservation(t *testing.T) {
	require.True(t, balanced(t, []uint64{100}, []uint64{60, 40}))
	require.True(t, balanced(t, []uint64{60, 40}, []uint64{100}))
	require.True(t, balanced(t, []uint64{math.MaxUint64, 1}, []uint64{1, math.MaxUint64}))
	require.True(t, balanced(t, []uint64{1, 2, 3, 4}, []uint64{4, 3, 2, 1}))

	require.False(t, balanced(t, []uint64{1, 2, 3, 4}, []uint64{1, 2, 3, 5}))
	require.False(t, balanced(t, []uint64{100}, []uint64{60, 41}))
}
