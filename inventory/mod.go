// Package inventory implements the orchestrator over the stash, state and
// index providers. The Stock value is the single read/write surface of the
// engine: it imports schemata and consignments, builds outgoing
// consignments scoped to a set of terminals and composes the transitions of
// a payment.
//
// A Stock owns its provider triple exclusively and performs no internal
// locking; callers needing concurrency must serialize access or give each
// goroutine its own loaded instance and reconcile through the idempotent
// replace semantics of the providers.
package inventory

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rgb-go/rgb"
	"github.com/rgb-go/rgb/contract"
	"github.com/rgb-go/rgb/seal"
	"github.com/rgb-go/rgb/store/index"
	"github.com/rgb-go/rgb/store/kv"
	"github.com/rgb-go/rgb/store/stash"
	"github.com/rgb-go/rgb/store/state"
	"github.com/rgb-go/rgb/wallet"
	"github.com/rs/zerolog"
	"golang.org/x/xerrors"
)

// MaxBundles bounds the number of bundles a consignment may carry.
const MaxBundles = 65535

// MaxTerminals bounds the number of terminals a consignment may carry.
const MaxTerminals = 65535

// MaxInputs bounds the number of inputs of a composed transition.
const MaxInputs = 65535

// MaxBlanks bounds the number of blank transitions of a composed batch.
const MaxBlanks = 65535

var (
	promImports = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rgb_inventory_imports",
		Help: "Number of consignment imports by outcome",
	}, []string{"outcome"})

	promConsignments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rgb_inventory_consignments",
		Help: "Number of consignments built",
	})
)

// TooManyBundlesError is returned when a consignment would exceed the
// bundle bound.
type TooManyBundlesError struct {
	Count int
}

func (e TooManyBundlesError) Error() string {
	return fmt.Sprintf("consignment would carry %d bundles, above the %d bound",
		e.Count, MaxBundles)
}

// TooManyTerminalsError is returned when a consignment would exceed the
// terminal bound.
type TooManyTerminalsError struct {
	Count int
}

func (e TooManyTerminalsError) Error() string {
	return fmt.Sprintf("consignment would carry %d terminals, above the %d bound",
		e.Count, MaxTerminals)
}

// Stock is the orchestrator over one (stash, state, index) triple.
//
// - implements store.Transaction
type Stock struct {
	stash  *stash.Stash
	state  *state.State
	index  *index.Index
	wallet wallet.Provider
	logger zerolog.Logger
}

// StockOption configures a Stock.
type StockOption func(*Stock)

// WithWallet attaches the wallet provider needed by Compose.
func WithWallet(w wallet.Provider) StockOption {
	return func(s *Stock) {
		s.wallet = w
	}
}

// WithLogger replaces the default logger.
func WithLogger(logger zerolog.Logger) StockOption {
	return func(s *Stock) {
		s.logger = logger
	}
}

// NewStock creates a stock over the provider triple.
func NewStock(st *stash.Stash, ss *state.State, idx *index.Index,
	opts ...StockOption) *Stock {

	s := &Stock{
		stash:  st,
		state:  ss,
		index:  idx,
		logger: rgb.Logger.With().Str("component", "inventory").Logger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// LoadStock creates a stock whose three providers share the database.
func LoadStock(db kv.DB, opts ...StockOption) (*Stock, error) {
	st, err := stash.LoadStash(db)
	if err != nil {
		return nil, xerrors.Errorf("couldn't load stash: %v", err)
	}

	ss, err := state.LoadState(db)
	if err != nil {
		return nil, xerrors.Errorf("couldn't load state: %v", err)
	}

	idx, err := index.LoadIndex(db)
	if err != nil {
		return nil, xerrors.Errorf("couldn't load index: %v", err)
	}

	return NewStock(st, ss, idx, opts...), nil
}

// Commit implements store.Transaction. It flushes the three providers. The
// providers are only mutated by fully validated imports, so a crash between
// flushes is healed by re-importing, which is idempotent.
func (s *Stock) Commit() error {
	if err := s.stash.Commit(); err != nil {
		return xerrors.Errorf("stash: %v", err)
	}

	if err := s.index.Commit(); err != nil {
		return xerrors.Errorf("index: %v", err)
	}

	if err := s.state.Commit(); err != nil {
		return xerrors.Errorf("state: %v", err)
	}

	return nil
}

// Rollback implements store.Transaction.
func (s *Stock) Rollback() error {
	return s.stash.Rollback()
}

// Contracts returns the ids of every contract with computed state.
func (s *Stock) Contracts() []contract.ContractId {
	return s.state.Contracts()
}

// History returns the computed history of the contract.
func (s *Stock) History(contractID contract.ContractId) (*contract.History, error) {
	return s.state.History(contractID)
}

// StateForOutputs returns the owned state sitting on the chain outputs,
// across every known contract.
func (s *Stock) StateForOutputs(outputs ...seal.Output) map[contract.ContractId][]contract.OwnedEntry {
	found := map[contract.ContractId][]contract.OwnedEntry{}

	for _, contractID := range s.state.Contracts() {
		history, err := s.state.History(contractID)
		if err != nil {
			continue
		}

		for _, output := range outputs {
			entries := history.OwnedByOutput(output)
			if len(entries) > 0 {
				found[contractID] = append(found[contractID], entries...)
			}
		}
	}

	return found
}
