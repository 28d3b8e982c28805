package invoice

import (
	"testing"
	"time"

	"github.com/rgb-go/rgb/contract"
	"github.com/rgb-go/rgb/seal"
	"github.com/stretchr/testify/require"
)

func TestInvoice_OperationName(t *testing.T) {
	require.Equal(t, "transfer", Invoice{}.OperationName())
	require.Equal(t, "burn", Invoice{Operation: "burn"}.OperationName())
}

func TestInvoice_Expired(t *testing.T) {
	now := time.Unix(1700000000, 0)

	require.False(t, Invoice{}.Expired(now))
	require.False(t, Invoice{Expiry: 1700000000}.Expired(now))
	require.True(t, Invoice{Expiry: 1699999999}.Expired(now))
}

func TestInvoice_Check(t *testing.T) {
	inv := Invoice{}
	require.EqualError(t, inv.Check(), "invoice has no contract")

	inv.Contract = contract.ContractId{1}
	require.EqualError(t, inv.Check(), "invoice has no beneficiary")

	inv.Beneficiary = seal.SecretSeal{2}
	require.NoError(t, inv.Check())
}
