package contract

import (
	"testing"

	"github.com/rgb-go/rgb/amount"
	"github.com/rgb-go/rgb/commit"
	"github.com/rgb-go/rgb/seal"
	"github.com/stretchr/testify/require"
)

const assetType = StateType(1)

func makeSeal(b byte, vout uint32) seal.Revealed {
	txid := seal.Txid{}
	txid[0] = b

	return seal.Revealed{
		Method:   seal.MethodTapret,
		Chain:    seal.BitcoinTestnet,
		Txid:     &txid,
		Vout:     vout,
		Blinding: uint64(b) << 8,
	}
}

func makeGenesis(t *testing.T, value amount.Amount, owner seal.Revealed) Genesis {
	t.Helper()

	blindings, err := commit.ZeroBalanced(nil, 1)
	require.NoError(t, err)

	return Genesis{
		SchemaID:  SchemaId{0xAA},
		Chain:     seal.BitcoinTestnet,
		Timestamp: 1_700_000_000,
		GlobalState: GlobalState{
			GlobalType(1): {[]byte("TEST")},
		},
		Owned: Assignments{
			assetType: {
				NewAssignment(seal.NewRevealed(owner), FungibleState{
					Amount:   value,
					Blinding: blindings[0],
				}),
			},
		},
	}
}

func TestGenesis_IdentityStableUnderConcealment(t *testing.T) {
	owner := makeSeal(1, 0)
	genesis := makeGenesis(t, 100, owner)

	opid := genesis.ID()
	contractID := genesis.ContractID()

	require.Equal(t, 1, genesis.Owned.ConcealSeals(nil))
	require.Equal(t, opid, genesis.ID())
	require.Equal(t, contractID, genesis.ContractID())

	require.Equal(t, 1, genesis.Owned.ConcealStateExcept(nil))
	require.Equal(t, opid, genesis.ID())

	require.Equal(t, 1, genesis.Owned.RevealSeals([]seal.Revealed{owner}))
	require.Equal(t, opid, genesis.ID())
}

func TestGenesis_IdentityChangesWithContent(t *testing.T) {
	genesis := makeGenesis(t, 100, makeSeal(1, 0))
	other := makeGenesis(t, 100, makeSeal(1, 0))
	other.Timestamp++

	require.NotEqual(t, genesis.ID(), other.ID())
	require.NotEqual(t, genesis.ContractID(), other.ContractID())
}

func TestAssignments_RevealSealsCounts(t *testing.T) {
	known := makeSeal(1, 0)
	stranger := makeSeal(2, 1)

	as := Assignments{
		assetType: {
			NewAssignment(seal.NewConcealed(known.Conceal()), VoidState{}),
			NewAssignment(seal.NewConcealed(known.Conceal()), VoidState{}),
			NewAssignment(seal.NewConcealed(stranger.Conceal()), VoidState{}),
		},
	}

	require.Equal(t, 2, as.RevealSeals([]seal.Revealed{known}))

	revealed, ok := as[assetType][0].Seal().Revealed()
	require.True(t, ok)
	require.True(t, known.Equal(revealed))

	require.False(t, as[assetType][2].Seal().IsRevealed())

	// A second pass has nothing left to reveal.
	require.Equal(t, 0, as.RevealSeals([]seal.Revealed{known}))
}

func TestAssignments_ConcealSealsKeepsAllowList(t *testing.T) {
	mine := makeSeal(1, 0)
	theirs := makeSeal(2, 1)

	as := Assignments{
		assetType: {
			NewAssignment(seal.NewRevealed(mine), VoidState{}),
			NewAssignment(seal.NewRevealed(theirs), VoidState{}),
		},
	}

	require.Equal(t, 1, as.ConcealSeals([]seal.SecretSeal{mine.Conceal()}))
	require.True(t, as[assetType][0].Seal().IsRevealed())
	require.False(t, as[assetType][1].Seal().IsRevealed())
}

func TestAssignment_MergeReveal(t *testing.T) {
	owner := makeSeal(1, 0)
	state := FungibleState{Amount: 42, Blinding: commit.NewFactor()}

	concealed := NewConfidentialAssignment(
		seal.NewConcealed(owner.Conceal()), state.Conceal())
	revealed := NewAssignment(seal.NewRevealed(owner), state)

	require.NoError(t, concealed.MergeReveal(revealed))
	require.False(t, concealed.IsConfidential())
	require.True(t, concealed.Seal().IsRevealed())

	value, ok := concealed.Fungible()
	require.True(t, ok)
	require.Equal(t, amount.Amount(42), value)

	other := NewAssignment(seal.NewRevealed(owner),
		FungibleState{Amount: 43, Blinding: commit.NewFactor()})
	err := concealed.MergeReveal(other)
	require.EqualError(t, err, "conflicting revealed assignment state")
}

func TestTransition_RequiresInputs(t *testing.T) {
	_, err := NewTransition(ContractId{1}, TransitionType(1), nil, Assignments{})
	require.EqualError(t, err, "transition consumes no input")

	input := Opout{Op: Opid{1}, Ty: assetType, No: 0}
	transition, err := NewTransition(ContractId{1}, BlankTransition,
		[]Opout{input}, Assignments{})
	require.NoError(t, err)
	require.True(t, transition.IsBlank())
}

func TestTransition_RejectsDuplicateInputs(t *testing.T) {
	input := Opout{Op: Opid{1}, Ty: assetType, No: 0}

	_, err := NewTransition(ContractId{1}, TransitionType(1),
		[]Opout{input, input}, Assignments{})
	require.EqualError(t, err,
		"transition consumes output "+input.String()+" twice")
}

func TestAssignment_SerializeRoundTrip(t *testing.T) {
	owner := makeSeal(1, 0)

	states := []RevealedState{
		VoidState{},
		FungibleState{Amount: 42, Blinding: commit.NewFactor()},
		DataState{Data: []byte("payload"), Salt: 7},
		AttachmentState{Id: AttachId{9}, MediaType: "text/plain", Salt: 8},
	}

	for _, state := range states {
		a := NewAssignment(seal.NewRevealed(owner), state)

		data, err := a.MarshalCBOR()
		require.NoError(t, err)

		back := Assignment{}
		require.NoError(t, back.UnmarshalCBOR(data))
		require.True(t, back.ConcealedState().Equal(a.ConcealedState()))
		require.False(t, back.IsConfidential())
	}

	confidential := NewConfidentialAssignment(
		seal.NewConcealed(owner.Conceal()),
		FungibleState{Amount: 1, Blinding: commit.NewFactor()}.Conceal())

	data, err := confidential.MarshalCBOR()
	require.NoError(t, err)

	back := Assignment{}
	require.NoError(t, back.UnmarshalCBOR(data))
	require.True(t, back.IsConfidential())
}
