package validation

import (
	"strings"
	"testing"

	"github.com/rgb-go/rgb/amount"
	"github.com/rgb-go/rgb/commit"
	"github.com/rgb-go/rgb/consignment"
	"github.com/rgb-go/rgb/contract"
	"github.com/rgb-go/rgb/schema"
	"github.com/rgb-go/rgb/seal"
	"github.com/stretchr/testify/require"
)

const (
	tickerType = contract.GlobalType(1)
	assetType  = contract.StateType(1)
	spendType  = contract.TransitionType(1)
)

func testSchema() schema.Schema {
	return schema.Schema{
		Name: "FungibleAsset",
		GlobalTypes: map[contract.GlobalType]schema.GlobalSchema{
			tickerType: {Name: "ticker", MaxItems: 1},
		},
		OwnedTypes: map[contract.StateType]schema.OwnedSchema{
			assetType: {Name: "assetOwner", Kind: contract.KindFungible},
		},
		Genesis: schema.OpSchema{
			Globals: map[contract.GlobalType]schema.Occurrences{
				tickerType: schema.Once,
			},
			Assignments: map[contract.StateType]schema.Occurrences{
				assetType: schema.OnceOrMore,
			},
		},
		Transitions: map[contract.TransitionType]schema.OpSchema{
			spendType: {
				Inputs: map[contract.StateType]schema.Occurrences{
					assetType: schema.OnceOrMore,
				},
				Assignments: map[contract.StateType]schema.Occurrences{
					assetType: schema.OnceOrMore,
				},
			},
		},
	}
}

func sealAt(b byte) seal.Revealed {
	txid := seal.Txid{b}

	return seal.Revealed{
		Chain:    seal.BitcoinTestnet,
		Txid:     &txid,
		Blinding: uint64(b),
	}
}

func fungible(t *testing.T, owner seal.Revealed, value uint64,
	blinding commit.Factor) contract.Assignment {

	t.Helper()

	return contract.NewAssignment(seal.NewRevealed(owner), contract.FungibleState{
		Amount:   amount.Amount(value),
		Blinding: blinding,
	})
}

// fixture builds a two-operation history: a genesis issuing 100 units and a
// single transition spending them to a terminal seal, anchored in witnessID.
type fixture struct {
	consignment *consignment.Consignment
	witnessID   seal.WitnessId
	genesisOut  contract.Opout
	terminalOut contract.Opout
}

func makeFixture(t *testing.T, spendValue uint64) fixture {
	t.Helper()

	sch := testSchema()

	blindings, err := commit.ZeroBalanced(nil, 1)
	require.NoError(t, err)

	genesis := contract.Genesis{
		SchemaID:    sch.ID(),
		Chain:       seal.BitcoinTestnet,
		Timestamp:   1700000000,
		GlobalState: contract.GlobalState{tickerType: {[]byte("TEST")}},
		Owned: contract.Assignments{
			assetType: {fungible(t, sealAt(1), 100, blindings[0])},
		},
	}

	genesisOut := contract.Opout{Op: genesis.ID(), Ty: assetType, No: 0}

	spendBlindings, err := commit.ZeroBalanced([]commit.Factor{blindings[0]}, 1)
	require.NoError(t, err)

	spend, err := contract.NewTransition(genesis.ContractID(), spendType,
		[]contract.Opout{genesisOut}, contract.Assignments{
			assetType: {fungible(t, sealAt(2), spendValue, spendBlindings[0])},
		})
	require.NoError(t, err)

	bundle, err := contract.NewTransitionBundle(map[contract.Opid][]uint32{
		spend.ID(): {0},
	}, []contract.Transition{spend})
	require.NoError(t, err)

	witnessID := seal.WitnessId{Chain: seal.BitcoinTestnet, Txid: seal.Txid{0xAA}}

	c := &consignment.Consignment{
		Version:  consignment.CurrentVersion,
		Transfer: true,
		Schema:   sch,
		Genesis:  genesis,
		Bundles: []contract.BundledWitness{{
			Witness: seal.PubWitness{Id: witnessID},
			Anchors: contract.AnchorSet{
				Opret: &contract.Anchor{MpcProof: []byte{1}, DbcProof: []byte{2}},
			},
			Bundle: bundle,
		}},
		Terminals: []consignment.Terminal{{
			Bundle: bundle.BundleId(),
			Seals:  []seal.Seal{seal.NewRevealed(sealAt(2))},
		}},
	}

	return fixture{
		consignment: c,
		witnessID:   witnessID,
		genesisOut:  genesisOut,
		terminalOut: contract.Opout{Op: spend.ID(), Ty: assetType, No: 0},
	}
}

func TestValidate_Valid(t *testing.T) {
	f := makeFixture(t, 100)

	resolver := NewMemResolver()
	resolver.Mine(f.witnessID, 800000)

	result := Validate(f.consignment, resolver)

	require.Empty(t, result.Failures)
	require.Empty(t, result.Warnings)
	require.Equal(t, Valid, result.Validity())
	require.NotNil(t, result.History)

	entry, ok := result.History.OwnedAt(f.terminalOut)
	require.True(t, ok)
	require.Equal(t, uint64(100), *entry.Amount)
	require.Equal(t, uint32(800000), entry.Since.Height)

	_, ok = result.History.OwnedAt(f.genesisOut)
	require.False(t, ok)
}

func TestValidate_UnminedTerminal(t *testing.T) {
	f := makeFixture(t, 100)

	resolver := NewMemResolver()
	resolver.Mempool(f.witnessID)

	result := Validate(f.consignment, resolver)

	require.Empty(t, result.Failures)
	require.Equal(t, UnminedTerminals, result.Validity())
	require.Equal(t, []seal.WitnessId{f.witnessID}, result.Unmined)
}

func TestValidate_UnresolvedWitness(t *testing.T) {
	f := makeFixture(t, 100)

	result := Validate(f.consignment, NewMemResolver())

	require.Empty(t, result.Failures)
	require.Equal(t, UnresolvedTransactions, result.Validity())
	require.Equal(t, []seal.WitnessId{f.witnessID}, result.Unresolved)
}

func TestValidate_SumMismatch(t *testing.T) {
	f := makeFixture(t, 99)

	resolver := NewMemResolver()
	resolver.Mine(f.witnessID, 800000)

	result := Validate(f.consignment, resolver)

	require.Equal(t, Invalid, result.Validity())
	require.Len(t, result.Failures, 1)
	require.Contains(t, result.Failures[0], "do not conserve")
}

func TestValidate_SchemaMismatch(t *testing.T) {
	f := makeFixture(t, 100)
	f.consignment.Genesis.SchemaID = contract.SchemaId{0xFF}

	result := Validate(f.consignment, NewMemResolver())

	require.Equal(t, Invalid, result.Validity())
	require.Contains(t, result.Failures[0], "genesis references schema")
}

func TestValidate_UndisclosedAncestor(t *testing.T) {
	f := makeFixture(t, 100)

	orphanInput := contract.Opout{Op: contract.Opid{0xEE}, Ty: assetType, No: 0}

	blindings, err := commit.ZeroBalanced(nil, 1)
	require.NoError(t, err)

	orphan, err := contract.NewTransition(f.consignment.ContractID(), spendType,
		[]contract.Opout{orphanInput}, contract.Assignments{
			assetType: {fungible(t, sealAt(3), 5, blindings[0])},
		})
	require.NoError(t, err)

	bundle, err := contract.NewTransitionBundle(map[contract.Opid][]uint32{
		orphan.ID(): {0},
	}, []contract.Transition{orphan})
	require.NoError(t, err)

	f.consignment.Bundles = append(f.consignment.Bundles, contract.BundledWitness{
		Witness: seal.PubWitness{
			Id: seal.WitnessId{Chain: seal.BitcoinTestnet, Txid: seal.Txid{0xBB}},
		},
		Anchors: contract.AnchorSet{
			Opret: &contract.Anchor{MpcProof: []byte{9}, DbcProof: []byte{9}},
		},
		Bundle: bundle,
	})

	resolver := NewMemResolver()
	resolver.Mine(f.witnessID, 800000)
	resolver.Mine(seal.WitnessId{Chain: seal.BitcoinTestnet, Txid: seal.Txid{0xBB}}, 800001)

	result := Validate(f.consignment, resolver)

	require.Equal(t, Invalid, result.Validity())
	require.Contains(t, result.Failures[0], "is not disclosed")
	require.Nil(t, result.History)
}

func TestValidate_DoubleClose(t *testing.T) {
	f := makeFixture(t, 100)

	blindings, err := commit.ZeroBalanced(nil, 1)
	require.NoError(t, err)

	rival, err := contract.NewTransition(f.consignment.ContractID(), spendType,
		[]contract.Opout{f.genesisOut}, contract.Assignments{
			assetType: {fungible(t, sealAt(4), 100, blindings[0])},
		})
	require.NoError(t, err)

	bundle, err := contract.NewTransitionBundle(map[contract.Opid][]uint32{
		rival.ID(): {0},
	}, []contract.Transition{rival})
	require.NoError(t, err)

	rivalWitness := seal.WitnessId{Chain: seal.BitcoinTestnet, Txid: seal.Txid{0xCC}}

	f.consignment.Bundles = append(f.consignment.Bundles, contract.BundledWitness{
		Witness: seal.PubWitness{Id: rivalWitness},
		Anchors: contract.AnchorSet{
			Opret: &contract.Anchor{MpcProof: []byte{7}, DbcProof: []byte{7}},
		},
		Bundle: bundle,
	})

	resolver := NewMemResolver()
	resolver.Mine(f.witnessID, 800000)
	resolver.Mine(rivalWitness, 800001)

	result := Validate(f.consignment, resolver)

	require.Equal(t, Invalid, result.Validity())

	found := false
	for _, failure := range result.Failures {
		if strings.Contains(failure, "closed twice") {
			found = true
		}
	}

	require.True(t, found)
}

func TestValidate_DuplicateInput(t *testing.T) {
	sch := testSchema()

	blindings, err := commit.ZeroBalanced(nil, 1)
	require.NoError(t, err)

	genesis := contract.Genesis{
		SchemaID:    sch.ID(),
		Chain:       seal.BitcoinTestnet,
		Timestamp:   1700000000,
		GlobalState: contract.GlobalState{tickerType: {[]byte("TEST")}},
		Owned: contract.Assignments{
			assetType: {fungible(t, sealAt(1), 100, blindings[0])},
		},
	}

	genesisOut := contract.Opout{Op: genesis.ID(), Ty: assetType, No: 0}

	// Blinded as if the genesis output were consumed twice, so the 200-unit
	// output commitment balances against the doubled input.
	spendBlindings, err := commit.ZeroBalanced(
		[]commit.Factor{blindings[0], blindings[0]}, 1)
	require.NoError(t, err)

	spend := contract.Transition{
		ContractID: genesis.ContractID(),
		Ty:         spendType,
		Owned: contract.Assignments{
			assetType: {fungible(t, sealAt(2), 200, spendBlindings[0])},
		},
		Consumed: []contract.Opout{genesisOut, genesisOut},
	}

	bundle, err := contract.NewTransitionBundle(map[contract.Opid][]uint32{
		spend.ID(): {0},
	}, []contract.Transition{spend})
	require.NoError(t, err)

	witnessID := seal.WitnessId{Chain: seal.BitcoinTestnet, Txid: seal.Txid{0xAB}}

	c := &consignment.Consignment{
		Version:  consignment.CurrentVersion,
		Transfer: true,
		Schema:   sch,
		Genesis:  genesis,
		Bundles: []contract.BundledWitness{{
			Witness: seal.PubWitness{Id: witnessID},
			Anchors: contract.AnchorSet{
				Opret: &contract.Anchor{MpcProof: []byte{1}, DbcProof: []byte{2}},
			},
			Bundle: bundle,
		}},
		Terminals: []consignment.Terminal{{
			Bundle: bundle.BundleId(),
			Seals:  []seal.Seal{seal.NewRevealed(sealAt(2))},
		}},
	}

	resolver := NewMemResolver()
	resolver.Mine(witnessID, 800000)

	result := Validate(c, resolver)

	require.Equal(t, Invalid, result.Validity())

	found := false
	for _, failure := range result.Failures {
		if strings.Contains(failure, "consumes output") &&
			strings.Contains(failure, "twice") {
			found = true
		}
	}

	require.True(t, found)
}

func TestValidate_MissingAnchorWarning(t *testing.T) {
	f := makeFixture(t, 100)
	f.consignment.Bundles[0].Anchors = contract.AnchorSet{
		Tapret: &contract.Anchor{MpcProof: []byte{1}, DbcProof: []byte{2}},
	}

	resolver := NewMemResolver()
	resolver.Mine(f.witnessID, 800000)

	result := Validate(f.consignment, resolver)

	require.Empty(t, result.Failures)
	require.NotEmpty(t, result.Warnings)
	require.Contains(t, result.Warnings[0], "no opret1st anchor")
}

func TestValidate_TerminalBundleAbsent(t *testing.T) {
	f := makeFixture(t, 100)
	f.consignment.Terminals[0].Bundle = contract.BundleId{0x99}

	resolver := NewMemResolver()
	resolver.Mine(f.witnessID, 800000)

	result := Validate(f.consignment, resolver)

	require.Equal(t, Invalid, result.Validity())
	require.Contains(t, result.Failures[0], "is absent from the consignment")
}

func TestStatus_Validity(t *testing.T) {
	s := Status{}
	require.Equal(t, Valid, s.Validity())

	s.Unmined = []seal.WitnessId{{}}
	require.Equal(t, UnminedTerminals, s.Validity())

	s.Unresolved = []seal.WitnessId{{}}
	require.Equal(t, UnresolvedTransactions, s.Validity())

	s.Failures = []string{"oops"}
	require.Equal(t, Invalid, s.Validity())
}

func TestValidity_String(t *testing.T) {
	require.Equal(t, "valid", Valid.String())
	require.Equal(t, "unmined terminals", UnminedTerminals.String())
	require.Equal(t, "unresolved transactions", UnresolvedTransactions.String())
	require.Equal(t, "invalid", Invalid.String())
	require.Equal(t, "unknown", Validity(42).String())
}

func TestMemResolver(t *testing.T) {
	resolver := NewMemResolver()
	id := seal.WitnessId{Chain: seal.BitcoinMainnet, Txid: seal.Txid{1}}

	_, err := resolver.ResolveWitness(id)
	require.ErrorIs(t, err, ErrWitnessUnknown)

	resolver.Mine(id, 100)
	anchor, err := resolver.ResolveWitness(id)
	require.NoError(t, err)
	require.True(t, anchor.IsMined())
	require.Equal(t, uint32(100), anchor.Height)

	resolver.Mempool(id)
	anchor, err = resolver.ResolveWitness(id)
	require.NoError(t, err)
	require.False(t, anchor.IsMined())

	resolver.Forget(id)
	_, err = resolver.ResolveWitness(id)
	require.ErrorIs(t, err, ErrWitnessUnknown)
}
