package stash

import (
	"testing"

	"github.com/rgb-go/rgb/contract"
	"github.com/rgb-go/rgb/schema"
	"github.com/rgb-go/rgb/seal"
	"github.com/rgb-go/rgb/store"
	"github.com/rgb-go/rgb/store/kv"
	"github.com/stretchr/testify/require"
)

const assetType = contract.StateType(1)

func makeSeal(b byte) seal.Revealed {
	txid := seal.Txid{b}

	return seal.Revealed{
		Chain:    seal.BitcoinTestnet,
		Txid:     &txid,
		Blinding: uint64(b),
	}
}

func makeGenesis(revealed bool) contract.Genesis {
	owner := seal.NewRevealed(makeSeal(1))
	if !revealed {
		owner = owner.Conceal()
	}

	return contract.Genesis{
		SchemaID:  contract.SchemaId{0xAB},
		Chain:     seal.BitcoinTestnet,
		Timestamp: 1700000000,
		Owned: contract.Assignments{
			assetType: {contract.NewAssignment(owner, contract.VoidState{})},
		},
	}
}

func makeBundle(t *testing.T, known bool) contract.BundledWitness {
	t.Helper()

	input := contract.Opout{Op: contract.Opid{9}, Ty: assetType, No: 0}

	transition, err := contract.NewTransition(contract.ContractId{0xCC},
		contract.TransitionType(1), []contract.Opout{input}, contract.Assignments{
			assetType: {
				contract.NewAssignment(seal.NewRevealed(makeSeal(2)),
					contract.VoidState{}),
			},
		})
	require.NoError(t, err)

	transitions := []contract.Transition{}
	if known {
		transitions = append(transitions, transition)
	}

	bundle, err := contract.NewTransitionBundle(map[contract.Opid][]uint32{
		transition.ID(): {0},
	}, transitions)
	require.NoError(t, err)

	return contract.BundledWitness{
		Witness: seal.PubWitness{
			Id: seal.WitnessId{Chain: seal.BitcoinTestnet, Txid: seal.Txid{0xAA}},
		},
		Anchors: contract.AnchorSet{
			Opret: &contract.Anchor{MpcProof: []byte{1}, DbcProof: []byte{2}},
		},
		Bundle: bundle,
	}
}

func TestStash_ReplaceGenesis(t *testing.T) {
	s := NewStash()

	changed, err := s.ReplaceGenesis(makeGenesis(false))
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = s.ReplaceGenesis(makeGenesis(false))
	require.NoError(t, err)
	require.False(t, changed)

	// A copy with revealed seals enriches the stored one.
	changed, err = s.ReplaceGenesis(makeGenesis(true))
	require.NoError(t, err)
	require.True(t, changed)

	stored, err := s.Genesis(makeGenesis(false).ContractID())
	require.NoError(t, err)

	assignment, ok := stored.Owned.At(assetType, 0)
	require.True(t, ok)
	require.True(t, assignment.Seal().IsRevealed())
}

func TestStash_ReplaceGenesis_Isolation(t *testing.T) {
	s := NewStash()

	original := makeGenesis(false)
	id := original.ContractID()

	_, err := s.ReplaceGenesis(original)
	require.NoError(t, err)

	changed, err := s.ReplaceGenesis(makeGenesis(true))
	require.NoError(t, err)
	require.True(t, changed)

	// The merged copy must not alias the caller's assignments.
	original.Owned[assetType][0] = contract.NewAssignment(
		seal.NewRevealed(makeSeal(1)).Conceal(), contract.VoidState{})

	stored, err := s.Genesis(id)
	require.NoError(t, err)

	assignment, ok := stored.Owned.At(assetType, 0)
	require.True(t, ok)
	require.True(t, assignment.Seal().IsRevealed())
}

func TestStash_ReplaceBundle(t *testing.T) {
	s := NewStash()

	concealed := makeBundle(t, false)

	changed, err := s.ReplaceBundle(concealed)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = s.ReplaceBundle(concealed)
	require.NoError(t, err)
	require.False(t, changed)

	changed, err = s.ReplaceBundle(makeBundle(t, true))
	require.NoError(t, err)
	require.True(t, changed)

	stored, err := s.Bundle(concealed.Bundle.BundleId())
	require.NoError(t, err)
	require.Len(t, stored.Bundle.KnownTransitions(), 1)
}

func TestStash_ReplaceSchemaAndIface(t *testing.T) {
	s := NewStash()

	sch := schema.Schema{
		Name: "Test",
		OwnedTypes: map[contract.StateType]schema.OwnedSchema{
			assetType: {Name: "owner", Kind: contract.KindVoid},
		},
	}

	require.True(t, s.ReplaceSchema(sch))
	require.False(t, s.ReplaceSchema(sch))

	impl := schema.IfaceImpl{Iface: schema.IfaceId{1}, SchemaID: sch.ID()}

	require.True(t, s.ReplaceIfaceImpl(impl))
	require.False(t, s.ReplaceIfaceImpl(impl))

	require.Len(t, s.ImplsForSchema(sch.ID()), 1)
	require.Empty(t, s.ImplsForSchema(contract.SchemaId{0xFF}))
}

func TestStash_ReplaceSealAndAttachment(t *testing.T) {
	s := NewStash()

	r := makeSeal(7)

	require.True(t, s.ReplaceSeal(r))
	require.False(t, s.ReplaceSeal(r))

	resolved, ok := s.ResolveSeal(r.Conceal())
	require.True(t, ok)
	require.True(t, resolved.Equal(r))

	_, ok = s.ResolveSeal(seal.SecretSeal{0xFF})
	require.False(t, ok)

	id, added := s.ReplaceAttachment([]byte("blob"))
	require.True(t, added)

	_, added = s.ReplaceAttachment([]byte("blob"))
	require.False(t, added)

	data, err := s.Attachment(id)
	require.NoError(t, err)
	require.Equal(t, []byte("blob"), data)
}

func TestStash_NotFound(t *testing.T) {
	s := NewStash()

	missing := contract.ContractId{0xEE}

	_, err := s.Genesis(missing)
	require.EqualError(t, err, "genesis "+missing.String()+" is not found")

	_, err = s.Schema(contract.SchemaId{1})
	require.Error(t, err)

	_, err = s.Bundle(contract.BundleId{1})
	require.Error(t, err)

	_, err = s.Extension(contract.Opid{1})
	require.Error(t, err)

	_, err = s.Attachment(contract.AttachId{1})
	require.Error(t, err)
}

func TestStash_Persistence(t *testing.T) {
	db := kv.NewMem()

	s, err := LoadStash(db)
	require.NoError(t, err)

	_, err = s.ReplaceGenesis(makeGenesis(true))
	require.NoError(t, err)

	_, err = s.ReplaceBundle(makeBundle(t, true))
	require.NoError(t, err)

	s.ReplaceSeal(makeSeal(3))
	s.ReplaceAttachment([]byte("blob"))

	require.NoError(t, s.Commit())

	// A clean commit is a no-op.
	require.NoError(t, s.Commit())

	reloaded, err := LoadStash(db)
	require.NoError(t, err)

	require.Len(t, reloaded.Contracts(), 1)

	_, err = reloaded.Genesis(makeGenesis(true).ContractID())
	require.NoError(t, err)

	stored, err := reloaded.Bundle(makeBundle(t, true).Bundle.BundleId())
	require.NoError(t, err)
	require.Len(t, stored.Bundle.KnownTransitions(), 1)

	_, ok := reloaded.ResolveSeal(makeSeal(3).Conceal())
	require.True(t, ok)
}

func TestStash_Rollback(t *testing.T) {
	require.ErrorIs(t, NewStash().Rollback(), store.ErrRollbackUnsupported)
}
