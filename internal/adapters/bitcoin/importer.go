package bitcoin

import (
	"context"
	"encoding/json"
	"time"

	"github.com/yourusername/ledgerflow/internal/domain"
	"github.com/yourusername/ledgerflow/internal/provider"
)

// Importer drives ExplorerProvider, paging by last-seen txid (the Esplora
// convention: a page is "complete" once fewer than pageSize rows return).
type Importer struct {
	mgr       *provider.Manager
	preferred string
	pageSize  int
}

func NewImporter(mgr *provider.Manager, preferredProvider string) *Importer {
	return &Importer{mgr: mgr, preferred: preferredProvider, pageSize: 25}
}

func (im *Importer) ImportStreaming(ctx context.Context, params domain.ImportParams) (<-chan domain.BatchResult, error) {
	out := make(chan domain.BatchResult)
	go im.run(ctx, params, out)
	return out, nil
}

func (im *Importer) run(ctx context.Context, params domain.ImportParams, out chan<- domain.BatchResult) {
	defer close(out)

	cursor := domain.CursorState{}
	if c, ok := params.Cursor["normal"]; ok {
		cursor = c
	}

	for {
		if ctx.Err() != nil {
			return
		}

		args := provider.Args{Address: params.Address, Cursor: cursor.Primary}
		result, err := provider.Execute[[]EsploraTx](ctx, im.mgr, "bitcoin", provider.OpGetAddressTransactions, args)
		if err != nil {
			select {
			case out <- domain.BatchResult{Err: err}:
			case <-ctx.Done():
			}
			return
		}

		records := make([]domain.RawRecord, 0, len(result.Data))
		for _, tx := range result.Data {
			payload, _ := json.Marshal(tx)
			records = append(records, domain.RawRecord{
				ContentHash: contentHash(tx.TxID),
				StreamType:  "normal",
				Payload:     payload,
				Status:      domain.RecordPending,
			})
		}

		isComplete := len(result.Data) < im.pageSize
		nextCursor := cursor.Primary
		if len(result.Data) > 0 {
			nextCursor = result.Data[len(result.Data)-1].TxID
		}
		cursor = domain.CursorState{Primary: nextCursor, TotalFetched: cursor.TotalFetched + int64(len(result.Data))}

		batch := &domain.Batch{
			RawTransactions: records,
			StreamType:      "normal",
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

// Processor turns EsploraTx-shaped raw records into UniversalTransactions:
// one outflow movement per owned input address, one inflow movement per
// owned output address (spec.md §4.4.6 adjusts these further upstream of
// candidate construction).
type Processor struct{}

func NewProcessor() *Processor { return &Processor{} }

func (p *Processor) Process(records []domain.RawRecord, sessionMetadata map[string]any) ([]domain.UniversalTransaction, error) {
	owner, _ := sessionMetadata["address"].(string)

	out := make([]domain.UniversalTransaction, 0, len(records))
	for _, rec := range records {
		var tx EsploraTx
		if err := json.Unmarshal(rec.Payload, &tx); err != nil {
			continue
		}

		ts := time.Unix(tx.Status.BlockTime, 0).UTC()
		var movements []domain.Movement

		for _, vin := range tx.Vin {
			if vin.Prevout.ScriptPubKeyAddress != owner {
				continue
			}
			movements = append(movements, domain.Movement{
				TransactionID: tx.TxID,
				SourceName:    "bitcoin",
				SourceKind:    domain.AccountKindBlockchain,
				AssetID:       "blockchain:bitcoin:btc",
				AssetSymbol:   "BTC",
				GrossAmount:   satsToBTC(vin.Prevout.Value),
				NetAmount:     satsToBTC(vin.Prevout.Value - tx.Fee),
				Direction:     domain.DirectionOut,
				Timestamp:     ts,
				FromAddress:   vin.Prevout.ScriptPubKeyAddress,
				TxHash:        tx.TxID,
			})
		}
		for _, vout := range tx.Vout {
			if vout.ScriptPubKeyAddress != owner {
				continue
			}
			movements = append(movements, domain.Movement{
				TransactionID: tx.TxID,
				SourceName:    "bitcoin",
				SourceKind:    domain.AccountKindBlockchain,
				AssetID:       "blockchain:bitcoin:btc",
				AssetSymbol:   "BTC",
				GrossAmount:   satsToBTC(vout.Value),
				Direction:     domain.DirectionIn,
				Timestamp:     ts,
				ToAddress:     vout.ScriptPubKeyAddress,
				TxHash:        tx.TxID,
			})
		}

		if len(movements) == 0 {
			continue
		}
		out = append(out, domain.UniversalTransaction{ID: tx.TxID, Movements: movements})
	}
	return out, nil
}
