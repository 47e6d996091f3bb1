// Package matching implements the transfer-matching engine (spec.md §4.4):
// candidate construction from universal transactions, per-pair scoring
// (amount similarity, timing, address/hash evidence), hash-match
// short-circuiting, deduplication/auto-confirmation, and link validation.
//
// Grounded on the teacher's lack of an equivalent: this is new domain logic
// the teacher (a wallet signer) has no analogue for. The code style —
// small, independently testable pure functions operating on plain structs,
// wired together by one orchestrating Engine — follows the shape of the
// teacher's internal/services packages (each a focused, side-effect-free
// transform over domain types).
package matching

import (
	"sort"

	"github.com/yourusername/ledgerflow/internal/domain"
	"github.com/yourusername/ledgerflow/internal/money"
	"github.com/yourusername/ledgerflow/internal/normalize"
)

// BuildCandidates implements spec.md §4.4.1: explode every movement of
// every transaction into one TransactionCandidate per (direction, asset)
// pair, discarding neutral movements, and partitions the result into
// sources (direction=out) and targets (direction=in).
func BuildCandidates(txs []domain.UniversalTransaction) (sources, targets []domain.TransactionCandidate) {
	for _, tx := range txs {
		for _, mv := range tx.Movements {
			if mv.Direction == domain.DirectionNeutral {
				continue
			}
			c := domain.TransactionCandidate{
				ID:                       tx.ID + ":" + string(mv.Direction) + ":" + mv.AssetID,
				OriginatingTransactionID: tx.ID,
				SourceType:               mv.SourceKind,
				SourceName:               mv.SourceName,
				AssetID:                  mv.AssetID,
				AssetSymbol:              mv.AssetSymbol,
				Amount:                   mv.Amount(),
				Direction:                mv.Direction,
				Timestamp:                mv.Timestamp,
				FromAddress:              mv.FromAddress,
				ToAddress:                mv.ToAddress,
				TxHash:                   mv.TxHash,
			}
			switch mv.Direction {
			case domain.DirectionOut:
				sources = append(sources, c)
			case domain.DirectionIn:
				targets = append(targets, c)
			}
		}
	}
	// Deterministic ordering (by originating transaction id, then asset) so
	// downstream tie-breaks ("last-write-wins on ties by insertion order",
	// spec.md §4.4.4) are reproducible across runs over the same input.
	sort.SliceStable(sources, func(i, j int) bool { return sources[i].ID < sources[j].ID })
	sort.SliceStable(targets, func(i, j int) bool { return targets[i].ID < targets[j].ID })
	return sources, targets
}

// OutflowGroupKey is (transaction hash, asset id) — the grouping key of
// spec.md §4.4.6.
type OutflowGroupKey struct {
	TxHash  string
	AssetID string
}

// AdjustedOutflow is the §4.4.6 result for one group.
type AdjustedOutflow struct {
	Key                OutflowGroupKey
	AdjustedAmount     domain.TransactionCandidate
	RepresentativeTxID string
	MultipleOutflows   bool
	Skipped            bool
	SkipReason         string
}

// AdjustOutflowGroups implements spec.md §4.4.6: blockchain transactions
// sometimes bundle change outputs and on-chain fees into one on-chain
// event. groups maps each (txHash, asset) pair to the raw (pre-candidate)
// movements sharing it. The caller is not assumed to have deduplicated
// them: this function sums only the first outflow of each TransactionID in
// a group, so a repeated entry across bundled sub-transactions is counted
// once.
func AdjustOutflowGroups(groups map[OutflowGroupKey][]domain.Movement) []AdjustedOutflow {
	keys := make([]OutflowGroupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].TxHash != keys[j].TxHash {
			return keys[i].TxHash < keys[j].TxHash
		}
		return keys[i].AssetID < keys[j].AssetID
	})

	out := make([]AdjustedOutflow, 0, len(keys))
	for _, key := range keys {
		out = append(out, adjustOneGroup(key, groups[key]))
	}
	return out
}

func adjustOneGroup(key OutflowGroupKey, movements []domain.Movement) AdjustedOutflow {
	var outflows, inflows []domain.Movement
	for _, mv := range movements {
		switch mv.Direction {
		case domain.DirectionOut:
			outflows = append(outflows, mv)
		case domain.DirectionIn:
			inflows = append(inflows, mv)
		}
	}

	if len(inflows) == 0 && len(outflows) == 1 {
		return AdjustedOutflow{Key: key, Skipped: true, SkipReason: "single-outflow-no-adjustment"}
	}

	outflowSum := money.Zero
	seenFeeTx := make(map[string]struct{})
	for _, mv := range outflows {
		if _, dup := seenFeeTx[mv.TransactionID]; dup {
			continue
		}
		seenFeeTx[mv.TransactionID] = struct{}{}
		outflowSum = outflowSum.Add(mv.Amount())
	}
	inflowSum := money.Zero
	for _, mv := range inflows {
		inflowSum = inflowSum.Add(mv.Amount())
	}

	adjusted := outflowSum.Sub(inflowSum)
	if !adjusted.IsPositive() {
		return AdjustedOutflow{Key: key, Skipped: true, SkipReason: "non-positive"}
	}

	repTxID := ""
	for _, mv := range outflows {
		if repTxID == "" || mv.TransactionID < repTxID {
			repTxID = mv.TransactionID
		}
	}

	rep := outflows[0]
	return AdjustedOutflow{
		Key: key,
		AdjustedAmount: domain.TransactionCandidate{
			ID:                       repTxID + ":" + string(domain.DirectionOut) + ":" + key.AssetID,
			OriginatingTransactionID: repTxID,
			SourceType:               rep.SourceKind,
			SourceName:               rep.SourceName,
			AssetID:                  key.AssetID,
			AssetSymbol:              rep.AssetSymbol,
			Amount:                   adjusted,
			Direction:                domain.DirectionOut,
			Timestamp:                rep.Timestamp,
			FromAddress:              rep.FromAddress,
			ToAddress:                rep.ToAddress,
			TxHash:                   key.TxHash,
		},
		RepresentativeTxID: repTxID,
		MultipleOutflows:   len(outflows) > 1,
	}
}

// ApplyOutflowAdjustments implements the source-candidate side of
// spec.md §4.4.6: every blockchain movement is grouped by (txHash, asset)
// across the originating transactions, each group is run through
// AdjustOutflowGroups, and the matching sources are collapsed down to the
// single adjusted candidate before they are ever offered to ScorePair.
// Groups the adjustment skips as "single-outflow-no-adjustment" pass their
// original candidate through unchanged; groups it skips as "non-positive"
// are dropped entirely, since a bundled outflow that nets to zero or less
// is not a valid transfer source.
func ApplyOutflowAdjustments(txs []domain.UniversalTransaction, sources []domain.TransactionCandidate) []domain.TransactionCandidate {
	groups := make(map[OutflowGroupKey][]domain.Movement)
	for _, tx := range txs {
		for _, mv := range tx.Movements {
			if mv.SourceKind != domain.AccountKindBlockchain || mv.TxHash == "" {
				continue
			}
			key := OutflowGroupKey{TxHash: normalize.NormalizeHash(mv.TxHash), AssetID: mv.AssetID}
			groups[key] = append(groups[key], mv)
		}
	}
	if len(groups) == 0 {
		return sources
	}

	adjustments := make(map[OutflowGroupKey]AdjustedOutflow, len(groups))
	for _, adj := range AdjustOutflowGroups(groups) {
		adjustments[adj.Key] = adj
	}

	out := make([]domain.TransactionCandidate, 0, len(sources))
	replaced := make(map[OutflowGroupKey]bool, len(adjustments))
	for _, s := range sources {
		if s.SourceType != domain.AccountKindBlockchain || s.TxHash == "" {
			out = append(out, s)
			continue
		}
		key := OutflowGroupKey{TxHash: normalize.NormalizeHash(s.TxHash), AssetID: s.AssetID}
		adj, ok := adjustments[key]
		if !ok {
			out = append(out, s)
			continue
		}
		if adj.Skipped {
			if adj.SkipReason == "single-outflow-no-adjustment" {
				out = append(out, s)
			}
			continue
		}
		if replaced[key] {
			continue
		}
		replaced[key] = true
		out = append(out, adj.AdjustedAmount)
	}
	return out
}
