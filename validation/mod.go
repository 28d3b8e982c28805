// Package validation implements the client-side verification of a
// consignment: schema conformance of every operation, single closing of
// every seal, conservation of fungible sums under Pedersen commitments and
// the anchoring of every bundle in a resolvable witness transaction.
//
// Validation never mutates the consignment. Its outcome is a Status whose
// Validity ranks the worst finding, so a caller can distinguish a broken
// history from one that is merely not confirmed on chain yet.
package validation

import (
	"fmt"

	"github.com/rgb-go/rgb/seal"
	"golang.org/x/xerrors"
)

// Validity ranks the outcome of a validation run from best to worst.
type Validity int8

const (
	// Valid means every check passed and every witness is mined.
	Valid Validity = iota

	// UnminedTerminals means the history is sound but at least one terminal
	// witness still sits in the mempool.
	UnminedTerminals

	// UnresolvedTransactions means at least one witness transaction could
	// not be resolved, so seal closing is unverified for it.
	UnresolvedTransactions

	// Invalid means the history is broken and must not be accepted.
	Invalid
)

// String implements fmt.Stringer.
func (v Validity) String() string {
	switch v {
	case Valid:
		return "valid"
	case UnminedTerminals:
		return "unmined terminals"
	case UnresolvedTransactions:
		return "unresolved transactions"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// ErrWitnessUnknown is returned by a resolver that has no record of the
// witness transaction.
var ErrWitnessUnknown = xerrors.New("witness transaction is unknown")

// WitnessResolver provides the mined height of witness transactions.
//
// A resolver only answers about existence and height; validation never needs
// the transaction body. It returns ErrWitnessUnknown for a transaction it
// has no record of.
type WitnessResolver interface {
	ResolveWitness(id seal.WitnessId) (seal.WitnessAnchor, error)
}

// Status accumulates the findings of a validation run.
type Status struct {
	Failures []string
	Warnings []string
	Info     []string

	// Unresolved lists the witnesses the resolver had no record of.
	Unresolved []seal.WitnessId

	// Unmined lists the terminal witnesses still in the mempool.
	Unmined []seal.WitnessId
}

func (s *Status) failf(format string, args ...interface{}) {
	s.Failures = append(s.Failures, fmt.Sprintf(format, args...))
}

func (s *Status) warnf(format string, args ...interface{}) {
	s.Warnings = append(s.Warnings, fmt.Sprintf(format, args...))
}

func (s *Status) infof(format string, args ...interface{}) {
	s.Info = append(s.Info, fmt.Sprintf(format, args...))
}

// Validity returns the rank of the worst finding.
func (s Status) Validity() Validity {
	switch {
	case len(s.Failures) > 0:
		return Invalid
	case len(s.Unresolved) > 0:
		return UnresolvedTransactions
	case len(s.Unmined) > 0:
		return UnminedTerminals
	default:
		return Valid
	}
}

// MemResolver is an in-memory witness resolver, used in tests and by wallets
// that track their own transactions.
//
// - implements validation.WitnessResolver
type MemResolver struct {
	anchors map[seal.WitnessId]seal.WitnessAnchor
}

// NewMemResolver creates an empty resolver.
func NewMemResolver() *MemResolver {
	return &MemResolver{
		anchors: map[seal.WitnessId]seal.WitnessAnchor{},
	}
}

// Mine records the witness as mined at the height.
func (r *MemResolver) Mine(id seal.WitnessId, height uint32) {
	r.anchors[id] = seal.WitnessAnchor{Height: height}
}

// Mempool records the witness as known but not mined.
func (r *MemResolver) Mempool(id seal.WitnessId) {
	r.anchors[id] = seal.WitnessAnchor{Height: seal.HeightMempool}
}

// Forget drops the record of the witness.
func (r *MemResolver) Forget(id seal.WitnessId) {
	delete(r.anchors, id)
}

// ResolveWitness implements validation.WitnessResolver.
func (r *MemResolver) ResolveWitness(id seal.WitnessId) (seal.WitnessAnchor, error) {
	anchor, ok := r.anchors[id]
	if !ok {
		return anchor, ErrWitnessUnknown
	}

	return anchor, nil
}
