package kraken

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/yourusername/ledgerflow/internal/domain"
	"github.com/yourusername/ledgerflow/internal/money"
	"github.com/yourusername/ledgerflow/internal/provider"
)

// Importer drives Ledgers, paging by Kraken's numeric ledger offset.
type Importer struct {
	mgr       *provider.Manager
	preferred string
	pageSize  int
}

func NewImporter(mgr *provider.Manager, preferredProvider string) *Importer {
	return &Importer{mgr: mgr, preferred: preferredProvider, pageSize: 50}
}

func (im *Importer) ImportStreaming(ctx context.Context, params domain.ImportParams) (<-chan domain.BatchResult, error) {
	out := make(chan domain.BatchResult)
	go im.run(ctx, params, out)
	return out, nil
}

func (im *Importer) run(ctx context.Context, params domain.ImportParams, out chan<- domain.BatchResult) {
	defer close(out)

	creds := Credentials{APIKey: params.Credentials["apiKey"], APISecret: params.Credentials["apiSecret"]}

	cursor := domain.CursorState{}
	if c, ok := params.Cursor["ledger"]; ok {
		cursor = c
	}

	var validated []domain.RawRecord

	for {
		if ctx.Err() != nil {
			return
		}

		args := provider.Args{Cursor: cursor.Primary, Extra: map[string]any{"credentials": creds}}
		result, err := provider.Execute[ledgersResult](ctx, im.mgr, "kraken", provider.OpGetAddressBalances, args)
		if err != nil {
			if len(validated) > 0 {
				select {
				case out <- domain.BatchResult{Err: &domain.PartialImportError{
					LastGood:      validated,
					CursorUpdates: map[string]domain.CursorState{"ledger": cursor},
					Cause:         err,
				}}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case out <- domain.BatchResult{Err: err}:
			case <-ctx.Done():
			}
			return
		}

		entries := sortedEntries(result.Data.Ledger)
		records := make([]domain.RawRecord, 0, len(entries))
		for _, entry := range entries {
			payload, _ := json.Marshal(entry)
			records = append(records, domain.RawRecord{
				ContentHash: entry.id,
				StreamType:  "ledger",
				Payload:     payload,
				Status:      domain.RecordPending,
			})
		}
		validated = append(validated, records...)

		isComplete := len(entries) < im.pageSize
		nextOffset := cursor.Primary
		if nextOffset == "" {
			nextOffset = "0"
		}
		totalFetched := cursor.TotalFetched + int64(len(entries))
		if !isComplete {
			nextOffset = addOffset(nextOffset, len(entries))
		}
		cursor = domain.CursorState{Primary: nextOffset, TotalFetched: totalFetched}

		batch := &domain.Batch{
			RawTransactions: records,
			StreamType:      "ledger",
			Cursor:          cursor,
			IsComplete:      isComplete,
		}
		select {
		case out <- domain.BatchResult{Batch: batch}:
		case <-ctx.Done():
			return
		}

		if isComplete {
			return
		}
	}
}

// idLedgerEntry folds the ledger-entry ref id into each entry, since
// Kraken's map key (not a field on LedgerEntry) is the stable identifier.
type idLedgerEntry struct {
	LedgerEntry
	id string
}

func sortedEntries(ledger map[string]LedgerEntry) []idLedgerEntry {
	out := make([]idLedgerEntry, 0, len(ledger))
	for id, e := range ledger {
		out = append(out, idLedgerEntry{LedgerEntry: e, id: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

func addOffset(offset string, n int) string {
	// Kraken's "ofs" parameter is a decimal string; advancing it is plain
	// integer addition.
	cur := money.MustParseDecimal(offset)
	return cur.Add(money.NewFromInt(int64(n))).String()
}

// Processor turns ledger entries into UniversalTransactions: deposits and
// withdrawals become single-movement transactions; every other entry type,
// trades included, is skipped and produces no transaction (cross-source
// matching only uses deposit/withdrawal movement).
type Processor struct{}

func NewProcessor() *Processor { return &Processor{} }

func (p *Processor) Process(records []domain.RawRecord, sessionMetadata map[string]any) ([]domain.UniversalTransaction, error) {
	out := make([]domain.UniversalTransaction, 0, len(records))
	for _, rec := range records {
		var entry idLedgerEntry
		if err := json.Unmarshal(rec.Payload, &entry); err != nil {
			continue
		}

		direction := domain.DirectionNeutral
		switch entry.Type {
		case "deposit":
			direction = domain.DirectionIn
		case "withdrawal":
			direction = domain.DirectionOut
		}
		if direction == domain.DirectionNeutral {
			continue
		}

		amount, err := money.ParseDecimal(entry.Amount)
		if err != nil {
			continue
		}
		amount = amount.Abs()

		out = append(out, domain.UniversalTransaction{
			ID: entry.RefID,
			Movements: []domain.Movement{{
				TransactionID: entry.RefID,
				SourceName:    "kraken",
				SourceKind:    domain.AccountKindExchangeAPI,
				AssetID:       "exchange:kraken:" + entry.Asset,
				AssetSymbol:   entry.Asset,
				GrossAmount:   amount,
				Direction:     direction,
				Timestamp:     time.Unix(int64(entry.Time), 0).UTC(),
				TxHash:        entry.RefID,
			}},
		})
	}
	return out, nil
}
