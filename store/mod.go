// Package store defines the persistence contracts of the stash, state and
// index providers. The providers cache their content in memory and flush it
// atomically on commit; a rollback of flushed data is not supported, which
// callers must account for by validating before writing.
package store

import (
	"fmt"

	"github.com/rgb-go/rgb/contract"
	"golang.org/x/xerrors"
)

// ErrRollbackUnsupported is returned by providers asked to undo a commit.
var ErrRollbackUnsupported = xerrors.New("rollback is not supported")

// Transaction is implemented by providers that accumulate changes in memory
// until committed.
type Transaction interface {
	// Commit flushes the pending changes to the backing database. It is a
	// no-op when nothing changed.
	Commit() error

	// Rollback always returns ErrRollbackUnsupported.
	Rollback() error
}

// NotFoundError is returned when a provider has no record with the id.
type NotFoundError struct {
	Kind string
	Id   fmt.Stringer
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %v is not found", e.Kind, e.Id)
}

// UnknownContractError is returned when an operation targets a contract the
// provider has never seen.
type UnknownContractError struct {
	ContractID contract.ContractId
}

func (e UnknownContractError) Error() string {
	return fmt.Sprintf("contract %v is unknown", e.ContractID)
}
