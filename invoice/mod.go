// Package invoice defines the payment request exchanged out of band before
// a transfer: which contract, how much, to which concealed seal, and until
// when. The beneficiary seal stays concealed so the payer never learns
// which chain output the recipient controls.
package invoice

import (
	"time"

	"github.com/rgb-go/rgb/amount"
	"github.com/rgb-go/rgb/contract"
	"github.com/rgb-go/rgb/schema"
	"github.com/rgb-go/rgb/seal"
	"golang.org/x/xerrors"
)

// Invoice is a request for a transfer of owned state.
type Invoice struct {
	// Contract is the contract the payment must be made in.
	Contract contract.ContractId

	// Iface names the interface the payer should use to interpret the
	// contract.
	Iface schema.IfaceId

	// Operation is the interface operation name, "transfer" when empty.
	Operation string

	// Beneficiary is the concealed seal the payment must be assigned to.
	Beneficiary seal.SecretSeal

	// Amount is the requested quantity. Zero means any amount.
	Amount amount.Amount

	// Expiry is the unix time after which the invoice must not be paid.
	// Zero means no expiry.
	Expiry int64

	// Transports lists the endpoints where the consignment can be
	// delivered.
	Transports []string
}

// OperationName returns the interface operation of the invoice.
func (i Invoice) OperationName() string {
	if i.Operation == "" {
		return "transfer"
	}

	return i.Operation
}

// Expired reports whether the invoice must not be paid anymore.
func (i Invoice) Expired(now time.Time) bool {
	return i.Expiry != 0 && now.Unix() > i.Expiry
}

// Check verifies the invoice is complete enough to be paid.
func (i Invoice) Check() error {
	if i.Contract == (contract.ContractId{}) {
		return xerrors.New("invoice has no contract")
	}

	if i.Beneficiary == (seal.SecretSeal{}) {
		return xerrors.New("invoice has no beneficiary")
	}

	return nil
}
