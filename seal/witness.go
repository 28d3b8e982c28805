// This file contains the public witness model. A witness is the ledger
// transaction closing the seals of a bundle; peers may know it by id only or
// with its full body, and confirmation is tracked separately because a
// witness may be unconfirmed, reorganized or never mined.

package seal

import (
	"bytes"
	"fmt"
	"math"

	"golang.org/x/xerrors"
)

// HeightMempool is the sentinel confirmation height of a witness that is
// known to the network but not mined yet.
const HeightMempool = uint32(math.MaxUint32)

// WitnessAnchor is the chain position of a witness transaction.
type WitnessAnchor struct {
	_ struct{} `cbor:",toarray"`

	Height uint32
}

// IsMined reports whether the witness is confirmed at a block height.
func (a WitnessAnchor) IsMined() bool {
	return a.Height != HeightMempool
}

func (a WitnessAnchor) String() string {
	if !a.IsMined() {
		return "mempool"
	}

	return fmt.Sprintf("height %d", a.Height)
}

// PubWitness is the proof-of-publication transaction of a bundle, known
// either by id alone or with the full transaction body.
type PubWitness struct {
	_ struct{} `cbor:",toarray"`

	Id WitnessId
	Tx []byte
}

// HasTx reports whether the full transaction body is known.
func (w PubWitness) HasTx() bool {
	return len(w.Tx) > 0
}

// MergeReveal folds another copy of the same witness into this one,
// preferring the variant that carries the transaction body.
func (w *PubWitness) MergeReveal(other PubWitness) error {
	if w.Id != other.Id {
		return xerrors.Errorf("witnesses %v and %v have distinct identities",
			w.Id, other.Id)
	}

	if !other.HasTx() {
		return nil
	}

	if !w.HasTx() {
		w.Tx = append([]byte(nil), other.Tx...)
		return nil
	}

	if !bytes.Equal(w.Tx, other.Tx) {
		return MergeRevealError{What: "witness " + w.Id.String()}
	}

	return nil
}
