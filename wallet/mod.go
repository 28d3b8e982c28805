// Package wallet defines the interface the contract engine needs from the
// chain-facing wallet: which outputs it controls, which seals it issued and
// a supply of fresh outputs for change. The engine never touches keys or
// signs transactions; that side stays entirely behind this interface.
package wallet

import (
	"sort"

	"github.com/rgb-go/rgb/seal"
	"golang.org/x/xerrors"
)

// Utxo is a chain output the wallet controls.
type Utxo struct {
	Output seal.Output
	Value  uint64
}

// Provider gives the engine access to the wallet of the user.
type Provider interface {
	// HasUtxo reports whether the wallet controls the output.
	HasUtxo(output seal.Output) bool

	// Utxos returns the outputs the wallet controls.
	Utxos() []Utxo

	// NextOutput reserves a fresh output for change or receiving. It fails
	// when the wallet has nothing left to allocate.
	NextOutput() (seal.Output, error)

	// RegisterSeal records a seal the wallet issued, so it can be revealed
	// to a counterparty later.
	RegisterSeal(r seal.Revealed)

	// ResolveSeals returns the revealed form of the secrets the wallet
	// knows about.
	ResolveSeals(secrets []seal.SecretSeal) []seal.Revealed
}

// MemWallet is an in-memory wallet over a fixed set of outputs.
//
// - implements wallet.Provider
type MemWallet struct {
	utxos    map[seal.Output]uint64
	reserved map[seal.Output]bool
	seals    map[seal.SecretSeal]seal.Revealed
}

// NewMemWallet creates an empty wallet.
func NewMemWallet() *MemWallet {
	return &MemWallet{
		utxos:    map[seal.Output]uint64{},
		reserved: map[seal.Output]bool{},
		seals:    map[seal.SecretSeal]seal.Revealed{},
	}
}

// AddUtxo records an output under wallet control.
func (w *MemWallet) AddUtxo(output seal.Output, value uint64) {
	w.utxos[output] = value
}

// HasUtxo implements wallet.Provider.
func (w *MemWallet) HasUtxo(output seal.Output) bool {
	_, ok := w.utxos[output]

	return ok
}

// Utxos implements wallet.Provider. The outputs are sorted for
// reproducibility.
func (w *MemWallet) Utxos() []Utxo {
	utxos := make([]Utxo, 0, len(w.utxos))
	for output, value := range w.utxos {
		utxos = append(utxos, Utxo{Output: output, Value: value})
	}

	sort.Slice(utxos, func(i, j int) bool {
		left, right := utxos[i].Output, utxos[j].Output

		if left.Txid != right.Txid {
			for k := range left.Txid {
				if left.Txid[k] != right.Txid[k] {
					return left.Txid[k] < right.Txid[k]
				}
			}
		}

		return left.Vout < right.Vout
	})

	return utxos
}

// NextOutput implements wallet.Provider. It reserves the first unreserved
// output.
func (w *MemWallet) NextOutput() (seal.Output, error) {
	for _, utxo := range w.Utxos() {
		if !w.reserved[utxo.Output] {
			w.reserved[utxo.Output] = true

			return utxo.Output, nil
		}
	}

	return seal.Output{}, xerrors.New("wallet has no spare output")
}

// RegisterSeal implements wallet.Provider.
func (w *MemWallet) RegisterSeal(r seal.Revealed) {
	w.seals[r.Conceal()] = r
}

// ResolveSeals implements wallet.Provider.
func (w *MemWallet) ResolveSeals(secrets []seal.SecretSeal) []seal.Revealed {
	revealed := []seal.Revealed{}

	for _, secret := range secrets {
		r, ok := w.seals[secret]
		if ok {
			revealed = append(revealed, r)
		}
	}

	return revealed
}
