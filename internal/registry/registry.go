// Package registry implements the process-wide adapter registry of spec.md
// §4.1 ("A process-wide mapping registered at startup. Two tables:
// blockchains ... and exchanges ... Each entry exposes factories:
// createImporter(providerManager, preferredProvider?) and
// createProcessor(). Blockchain entries additionally expose
// normalizeAddress(addr) and a chainModel.").
//
// Grounded on the teacher's internal/services/coinregistry package, which
// keys a similar two-table factory map by lowercased chain name and is
// populated once at startup and treated as read-only thereafter.
package registry

import (
	"strings"
	"sync"

	"github.com/yourusername/ledgerflow/internal/domain"
	"github.com/yourusername/ledgerflow/internal/normalize"
	"github.com/yourusername/ledgerflow/internal/provider"
)

// ImporterFactory builds an Importer bound to a provider manager and an
// optional preferred-provider hint.
type ImporterFactory func(mgr *provider.Manager, preferredProvider string) domain.Importer

// ProcessorFactory builds a Processor.
type ProcessorFactory func() domain.Processor

// BlockchainEntry is one row of the blockchain table.
type BlockchainEntry struct {
	Name            string
	ChainModel      domain.ChainModel
	AddressRule     normalize.AddressRule
	CreateImporter  ImporterFactory
	CreateProcessor ProcessorFactory
}

// NormalizeAddress applies the entry's declared address rule.
func (e BlockchainEntry) NormalizeAddress(addr string) (string, error) {
	return e.AddressRule.Normalize(addr)
}

// ExchangeEntry is one row of the exchange table.
type ExchangeEntry struct {
	Name            string
	CreateImporter  ImporterFactory
	CreateProcessor ProcessorFactory
}

// Registry holds both tables, keyed by lowercased name. It is populated once
// at startup (via Register*) and is safe for concurrent read-only lookups
// thereafter; the mutex exists only to make accidental late registration
// safe rather than to support a hot-reload path.
type Registry struct {
	mu         sync.RWMutex
	blockchains map[string]BlockchainEntry
	exchanges   map[string]ExchangeEntry
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		blockchains: make(map[string]BlockchainEntry),
		exchanges:   make(map[string]ExchangeEntry),
	}
}

func key(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

// RegisterBlockchain adds or replaces a blockchain entry.
func (r *Registry) RegisterBlockchain(e BlockchainEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blockchains[key(e.Name)] = e
}

// RegisterExchange adds or replaces an exchange entry.
func (r *Registry) RegisterExchange(e ExchangeEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exchanges[key(e.Name)] = e
}

// Blockchain looks up a blockchain entry by case-insensitive name.
func (r *Registry) Blockchain(name string) (BlockchainEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.blockchains[key(name)]
	return e, ok
}

// Exchange looks up an exchange entry by case-insensitive name.
func (r *Registry) Exchange(name string) (ExchangeEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.exchanges[key(name)]
	return e, ok
}

// Resolve looks up sourceName in whichever table has it, returning a
// uniform view the Runner can use without caring which kind it is.
type Resolved struct {
	Kind            domain.AccountKind
	ChainModel      domain.ChainModel // zero value for exchanges
	AddressRule     *normalize.AddressRule // nil for exchanges
	CreateImporter  ImporterFactory
	CreateProcessor ProcessorFactory
}

// Resolve implements spec.md §4.1 step 1's adapter lookup, returning a
// KindUnknownAdapter domain error when sourceName is registered in neither
// table.
func (r *Registry) Resolve(sourceName string) (Resolved, error) {
	if e, ok := r.Blockchain(sourceName); ok {
		rule := e.AddressRule
		return Resolved{
			Kind:            domain.AccountKindBlockchain,
			ChainModel:      e.ChainModel,
			AddressRule:     &rule,
			CreateImporter:  e.CreateImporter,
			CreateProcessor: e.CreateProcessor,
		}, nil
	}
	if e, ok := r.Exchange(sourceName); ok {
		return Resolved{
			Kind:            domain.AccountKindExchangeAPI,
			CreateImporter:  e.CreateImporter,
			CreateProcessor: e.CreateProcessor,
		}, nil
	}
	return Resolved{}, domain.NewError(domain.KindUnknownAdapter, "no adapter registered for source").
		WithContext(map[string]any{"sourceName": sourceName})
}
