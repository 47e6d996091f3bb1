// Package adapters holds the shared, non-importing stub used by chains the
// registry declares for normalization purposes only (spec.md §4.5's
// additional worked chains, which have no streaming-import source in this
// pipeline).
package adapters

import (
	"context"

	"github.com/yourusername/ledgerflow/internal/domain"
)

// UnsupportedImporter is wired behind a BlockchainEntry that exists only to
// normalize addresses for matching — no provider produces transactions for
// it, so ImportFromSource fails cleanly rather than blocking forever on an
// empty channel.
type UnsupportedImporter struct {
	Chain string
}

func (u UnsupportedImporter) ImportStreaming(ctx context.Context, params domain.ImportParams) (<-chan domain.BatchResult, error) {
	return nil, domain.NewError(domain.KindNoCapableProvider, "no import provider registered for this chain; address normalization only").
		WithContext(map[string]any{"chain": u.Chain})
}

// NoopProcessor pairs with UnsupportedImporter to satisfy registry.ProcessorFactory.
type NoopProcessor struct{}

func (NoopProcessor) Process(records []domain.RawRecord, sessionMetadata map[string]any) ([]domain.UniversalTransaction, error) {
	return nil, nil
}
