package seal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func makeTxid(b byte) Txid {
	id := Txid{}
	id[0] = b

	return id
}

func makeRevealed(b byte, vout uint32) Revealed {
	txid := makeTxid(b)

	return Revealed{
		Method:   MethodTapret,
		Chain:    BitcoinTestnet,
		Txid:     &txid,
		Vout:     vout,
		Blinding: 0xb11d,
	}
}

func TestRevealed_ConcealDeterministic(t *testing.T) {
	r := makeRevealed(1, 0)

	require.Equal(t, r.Conceal(), r.Conceal())
	require.NotEqual(t, r.Conceal(), makeRevealed(1, 1).Conceal())
	require.NotEqual(t, r.Conceal(), makeRevealed(2, 0).Conceal())

	other := r
	other.Blinding = 42
	require.NotEqual(t, r.Conceal(), other.Conceal())
}

func TestRevealed_AuthToken(t *testing.T) {
	r := makeRevealed(1, 0)

	require.Equal(t, r.AuthToken(), r.AuthToken())
	require.NotEqual(t, r.AuthToken(), makeRevealed(2, 0).AuthToken())

	// The token never equals the secret it derives from.
	require.NotEqual(t, [32]byte(r.AuthToken()), [32]byte(r.Conceal()))
}

func TestRevealed_ToOutputSeal(t *testing.T) {
	witness := WitnessId{Chain: BitcoinTestnet, Txid: makeTxid(9)}

	r := makeRevealed(1, 3)
	out, err := r.ToOutputSeal(witness)
	require.NoError(t, err)
	require.Equal(t, Output{Txid: makeTxid(1), Vout: 3}, out)

	// Vout-relative seals resolve against the witness itself.
	relative := Revealed{Method: MethodOpret, Chain: BitcoinTestnet, Vout: 1}
	out, err = relative.ToOutputSeal(witness)
	require.NoError(t, err)
	require.Equal(t, Output{Txid: makeTxid(9), Vout: 1}, out)

	liquid := WitnessId{Chain: LiquidMainnet, Txid: makeTxid(9)}
	_, err = r.ToOutputSeal(liquid)
	require.EqualError(t, err,
		"seal chain testnet does not match witness chain liquid")
}

func TestSeal_RevealMatchingSecret(t *testing.T) {
	r := makeRevealed(1, 0)

	s := NewConcealed(r.Conceal())
	require.False(t, s.IsRevealed())

	require.False(t, s.Reveal(makeRevealed(2, 0)))
	require.False(t, s.IsRevealed())

	require.True(t, s.Reveal(r))
	require.True(t, s.IsRevealed())

	got, ok := s.Revealed()
	require.True(t, ok)
	require.True(t, r.Equal(got))

	// Revealing twice reports nothing new.
	require.False(t, s.Reveal(r))
}

func TestSeal_MergeReveal(t *testing.T) {
	r := makeRevealed(1, 0)

	concealed := NewConcealed(r.Conceal())
	revealed := NewRevealed(r)

	require.NoError(t, concealed.MergeReveal(revealed))
	require.True(t, concealed.IsRevealed())

	// Merging a concealed copy into a revealed one keeps the revelation.
	revealed2 := NewRevealed(r)
	require.NoError(t, revealed2.MergeReveal(NewConcealed(r.Conceal())))
	require.True(t, revealed2.IsRevealed())

	other := NewRevealed(makeRevealed(2, 0))
	err := concealed.MergeReveal(other)
	require.Error(t, err)
	require.Contains(t, err.Error(), "distinct identities")
}

func TestSeal_SerializeRoundTrip(t *testing.T) {
	r := makeRevealed(1, 0)

	for _, s := range []Seal{NewRevealed(r), NewConcealed(r.Conceal())} {
		data, err := s.MarshalCBOR()
		require.NoError(t, err)

		back := Seal{}
		require.NoError(t, back.UnmarshalCBOR(data))
		require.Equal(t, s.Secret(), back.Secret())
		require.Equal(t, s.IsRevealed(), back.IsRevealed())
	}
}

func TestSeal_DecodeRejectsForgedCommitment(t *testing.T) {
	r := makeRevealed(1, 0)

	forged := Seal{secret: makeRevealed(2, 0).Conceal(), revealed: &r}
	data, err := forged.MarshalCBOR()
	require.NoError(t, err)

	back := Seal{}
	err = back.UnmarshalCBOR(data)
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not commit")
}

func TestPubWitness_MergeReveal(t *testing.T) {
	id := WitnessId{Chain: BitcoinTestnet, Txid: makeTxid(7)}

	bare := PubWitness{Id: id}
	full := PubWitness{Id: id, Tx: []byte{0xca, 0xfe}}

	require.NoError(t, bare.MergeReveal(full))
	require.True(t, bare.HasTx())

	conflicting := PubWitness{Id: id, Tx: []byte{0xde, 0xad}}
	err := bare.MergeReveal(conflicting)
	require.EqualError(t, err, "conflicting revealed witness "+id.String())

	other := PubWitness{Id: WitnessId{Chain: BitcoinTestnet, Txid: makeTxid(8)}}
	require.Error(t, bare.MergeReveal(other))
}

func TestWitnessAnchor(t *testing.T) {
	mined := WitnessAnchor{Height: 800_000}
	require.True(t, mined.IsMined())
	require.Equal(t, "height 800000", mined.String())

	mempool := WitnessAnchor{Height: HeightMempool}
	require.False(t, mempool.IsMined())
	require.Equal(t, "mempool", mempool.String())
}
