package encode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshal_Deterministic(t *testing.T) {
	type pair struct {
		_ struct{} `cbor:",toarray"`

		A uint64
		B string
	}

	data1, err := Marshal(pair{A: 42, B: "ping"})
	require.NoError(t, err)

	data2, err := Marshal(pair{A: 42, B: "ping"})
	require.NoError(t, err)

	require.Equal(t, data1, data2)

	var out pair
	require.NoError(t, Unmarshal(data1, &out))
	require.Equal(t, uint64(42), out.A)
	require.Equal(t, "ping", out.B)
}

func TestDigestValue_DomainSeparation(t *testing.T) {
	d1, err := DigestValue("tag-a", uint64(1))
	require.NoError(t, err)

	d2, err := DigestValue("tag-b", uint64(1))
	require.NoError(t, err)

	require.NotEqual(t, d1, d2)

	again, err := DigestValue("tag-a", uint64(1))
	require.NoError(t, err)

	require.Equal(t, d1, again)
}

func TestDigestSet_OrderIndependent(t *testing.T) {
	a := DigestBytes("member", []byte{1})
	b := DigestBytes("member", []byte{2})
	c := DigestBytes("member", []byte{3})

	d1 := DigestSet("set", []Digest{a, b, c})
	d2 := DigestSet("set", []Digest{c, a, b})
	d3 := DigestSet("set", []Digest{b, c, a})

	require.Equal(t, d1, d2)
	require.Equal(t, d1, d3)

	other := DigestSet("set", []Digest{a, b})
	require.NotEqual(t, d1, other)
}

func TestDigest_String(t *testing.T) {
	d := DigestBytes("tag", []byte("value"))

	require.Len(t, d.String(), 8)
	require.Len(t, d.Hex(), 64)
}
