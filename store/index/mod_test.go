package index

import (
	"testing"

	"github.com/rgb-go/rgb/contract"
	"github.com/rgb-go/rgb/seal"
	"github.com/rgb-go/rgb/store"
	"github.com/rgb-go/rgb/store/kv"
	"github.com/stretchr/testify/require"
)

var (
	bundleA   = contract.BundleId{0xA1}
	bundleB   = contract.BundleId{0xB2}
	contractA = contract.ContractId{0x01}
	witnessA  = seal.WitnessId{Chain: seal.BitcoinTestnet, Txid: seal.Txid{0xAA}}
	witnessB  = seal.WitnessId{Chain: seal.BitcoinTestnet, Txid: seal.Txid{0xBB}}
)

func TestIndex_RegisterBundle(t *testing.T) {
	idx := NewIndex()

	require.NoError(t, idx.RegisterBundle(bundleA, contractA, witnessA))
	require.NoError(t, idx.RegisterBundle(bundleA, contractA, witnessA))

	err := idx.RegisterBundle(bundleA, contract.ContractId{0x02}, witnessA)
	require.EqualError(t, err,
		"bundle "+bundleA.String()+" is already registered under another contract")

	err = idx.RegisterBundle(bundleA, contractA, witnessB)
	require.EqualError(t, err,
		"bundle "+bundleA.String()+" is already registered under another witness")

	id, err := idx.BundleContract(bundleA)
	require.NoError(t, err)
	require.Equal(t, contractA, id)

	witness, err := idx.BundleWitness(bundleA)
	require.NoError(t, err)
	require.Equal(t, witnessA, witness)

	_, err = idx.BundleContract(bundleB)
	require.EqualError(t, err, "bundle "+bundleB.String()+" is not found")
}

func TestIndex_RegisterOp(t *testing.T) {
	idx := NewIndex()

	opid := contract.Opid{0x11}

	require.NoError(t, idx.RegisterOp(opid, bundleA))
	require.NoError(t, idx.RegisterOp(opid, bundleA))

	err := idx.RegisterOp(opid, bundleB)
	require.EqualError(t, err,
		"operation "+opid.String()+" is already registered in another bundle")

	id, err := idx.OpBundle(opid)
	require.NoError(t, err)
	require.Equal(t, bundleA, id)

	_, err = idx.OpBundle(contract.Opid{0xFF})
	require.Error(t, err)
}

func TestIndex_RegisterOutput(t *testing.T) {
	idx := NewIndex()

	output := seal.Output{Txid: seal.Txid{1}, Vout: 0}

	first := contract.Opout{Op: contract.Opid{2}, Ty: 1, No: 1}
	second := contract.Opout{Op: contract.Opid{1}, Ty: 1, No: 0}

	idx.RegisterOutput(output, first)
	idx.RegisterOutput(output, first)
	idx.RegisterOutput(output, second)

	opouts := idx.OpoutsByOutput(output)
	require.Equal(t, []contract.Opout{second, first}, opouts)

	require.Empty(t, idx.OpoutsByOutput(seal.Output{Txid: seal.Txid{9}}))
}

func TestIndex_RegisterTerminal(t *testing.T) {
	idx := NewIndex()

	secret := seal.SecretSeal{0x42}
	opout := contract.Opout{Op: contract.Opid{3}, Ty: 1, No: 0}

	idx.RegisterTerminal(secret, opout)
	idx.RegisterTerminal(secret, opout)

	require.Equal(t, []contract.Opout{opout}, idx.TerminalOpouts(secret))
	require.Empty(t, idx.TerminalOpouts(seal.SecretSeal{0xFF}))
}

func TestIndex_Persistence(t *testing.T) {
	db := kv.NewMem()

	idx, err := LoadIndex(db)
	require.NoError(t, err)

	opid := contract.Opid{0x11}
	output := seal.Output{Txid: seal.Txid{1}, Vout: 2}
	opout := contract.Opout{Op: opid, Ty: 1, No: 0}
	secret := seal.SecretSeal{0x42}

	require.NoError(t, idx.RegisterBundle(bundleA, contractA, witnessA))
	require.NoError(t, idx.RegisterOp(opid, bundleA))
	idx.RegisterOutput(output, opout)
	idx.RegisterTerminal(secret, opout)

	require.NoError(t, idx.Commit())

	reloaded, err := LoadIndex(db)
	require.NoError(t, err)

	id, err := reloaded.BundleContract(bundleA)
	require.NoError(t, err)
	require.Equal(t, contractA, id)

	witness, err := reloaded.BundleWitness(bundleA)
	require.NoError(t, err)
	require.Equal(t, witnessA, witness)

	bundleID, err := reloaded.OpBundle(opid)
	require.NoError(t, err)
	require.Equal(t, bundleA, bundleID)

	require.Equal(t, []contract.Opout{opout}, reloaded.OpoutsByOutput(output))
	require.Equal(t, []contract.Opout{opout}, reloaded.TerminalOpouts(secret))
}

func TestIndex_Rollback(t *testing.T) {
	require.ErrorIs(t, NewIndex().Rollback(), store.ErrRollbackUnsupported)
}
