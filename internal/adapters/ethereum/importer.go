package ethereum

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/yourusername/ledgerflow/internal/domain"
	"github.com/yourusername/ledgerflow/internal/provider"
)

// Importer drives ExplorerProvider through the Provider Manager, producing
// one Batch per explorer page until the page comes back short of the
// requested limit (the Etherscan-family convention for "no more pages").
type Importer struct {
	mgr      *provider.Manager
	chain    string
	preferred string
	pageSize int
}

// NewImporter builds an Importer bound to mgr for chain "ethereum" (or an
// EVM-compatible chain registered under a different name).
func NewImporter(mgr *provider.Manager, chain, preferredProvider string) *Importer {
	return &Importer{mgr: mgr, chain: chain, preferred: preferredProvider, pageSize: 1000}
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

		args := provider.Args{Address: params.Address, Cursor: cursor.Primary, Limit: im.pageSize}
		result, err := provider.Execute[[]ExplorerTx](ctx, im.mgr, im.chain, provider.OpGetAddressTransactions, args)
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
				ContentHash: contentHash(tx.Hash, params.Address),
				StreamType:  "normal",
				Payload:     payload,
				Status:      domain.RecordPending,
			})
		}

		isComplete := len(result.Data) < im.pageSize
		nextBlock := cursor.Primary
		totalFetched := cursor.TotalFetched + int64(len(result.Data))
		if len(result.Data) > 0 {
			last := result.Data[len(result.Data)-1]
			if bn, err := strconv.ParseUint(last.BlockNumber, 10, 64); err == nil {
				nextBlock = strconv.FormatUint(bn+1, 10)
			}
		}
		cursor = domain.CursorState{Primary: nextBlock, TotalFetched: totalFetched}

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

func contentHash(hash, address string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(hash) + ":" + strings.ToLower(address)))
	return hex.EncodeToString(sum[:])
}

// Processor turns ExplorerTx-shaped raw records into UniversalTransactions,
// one Movement per record (single-asset native-ETH transfers; token
// transfers are tagged with their own asset id via TokenSymbol).
type Processor struct {
	chain string
}

// NewProcessor builds a Processor for chain.
func NewProcessor(chain string) *Processor { return &Processor{chain: chain} }

func (p *Processor) Process(records []domain.RawRecord, sessionMetadata map[string]any) ([]domain.UniversalTransaction, error) {
	owner, _ := sessionMetadata["address"].(string)
	owner = strings.ToLower(owner)

	out := make([]domain.UniversalTransaction, 0, len(records))
	for _, rec := range records {
		var tx ExplorerTx
		if err := json.Unmarshal(rec.Payload, &tx); err != nil {
			continue
		}

		assetSymbol := "ETH"
		assetID := "blockchain:" + p.chain + ":eth"
		if tx.TokenSymbol != "" {
			assetSymbol = tx.TokenSymbol
			assetID = "blockchain:" + p.chain + ":" + strings.ToLower(tx.TokenSymbol)
		}

		direction := domain.DirectionNeutral
		switch {
		case strings.ToLower(tx.From) == owner && strings.ToLower(tx.To) == owner:
			direction = domain.DirectionNeutral
		case strings.ToLower(tx.From) == owner:
			direction = domain.DirectionOut
		case strings.ToLower(tx.To) == owner:
			direction = domain.DirectionIn
		}

		ts, _ := strconv.ParseInt(tx.TimeStamp, 10, 64)
		amount := weiToEther(tx.Value)

		out = append(out, domain.UniversalTransaction{
			ID: tx.Hash,
			Movements: []domain.Movement{{
				TransactionID: tx.Hash,
				SourceName:    p.chain,
				SourceKind:    domain.AccountKindBlockchain,
				AssetID:       assetID,
				AssetSymbol:   assetSymbol,
				GrossAmount:   amount,
				Direction:     direction,
				Timestamp:     time.Unix(ts, 0).UTC(),
				FromAddress:   tx.From,
				ToAddress:     tx.To,
				TxHash:        tx.Hash,
			}},
		})
	}
	return out, nil
}
