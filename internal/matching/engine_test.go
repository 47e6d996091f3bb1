package matching

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/ledgerflow/internal/domain"
	"github.com/yourusername/ledgerflow/internal/money"
	"github.com/yourusername/ledgerflow/pkg/eventbus"
)

func txWithMovement(id string, direction domain.Direction, assetID, amount string, sourceKind domain.AccountKind, ts time.Time, from, to, hash string) domain.UniversalTransaction {
	return domain.UniversalTransaction{
		ID: id,
		Movements: []domain.Movement{{
			TransactionID: id,
			SourceKind:    sourceKind,
			AssetID:       assetID,
			NetAmount:     money.MustParseDecimal(amount),
			Direction:     direction,
			Timestamp:     ts,
			FromAddress:   from,
			ToAddress:     to,
			TxHash:        hash,
		}},
	}
}

func TestEngineRunMatchesAndAutoConfirmsHighConfidencePair(t *testing.T) {
	now := time.Now()
	bus := eventbus.New()
	var published []eventbus.Event
	bus.Subscribe(eventbus.TopicMatchConfirmed, func(e eventbus.Event) { published = append(published, e) })

	e := NewEngine(DefaultScoreParams(), DefaultThresholds(), bus)
	txs := []domain.UniversalTransaction{
		txWithMovement("withdrawal", domain.DirectionOut, "btc", "1.0", domain.AccountKindExchangeAPI, now, "", "addr1", "0xaaaa"),
		txWithMovement("deposit", domain.DirectionIn, "btc", "1.0", domain.AccountKindBlockchain, now.Add(10*time.Minute), "", "addr1", "0xaaaa"),
	}

	matches := e.Run(context.Background(), txs)
	require.Len(t, matches, 1)
	assert.Equal(t, 1.0, matches[0].ConfidenceScore)
	assert.True(t, e.IsAutoConfirmed(matches[0]))
	assert.Len(t, published, 1, "an auto-confirmed match must publish exactly one match-confirmed event, distinct from ingestion's batch-saved topic")
}

func TestEngineRunSkipsSelfOriginatingPairs(t *testing.T) {
	now := time.Now()
	e := NewEngine(DefaultScoreParams(), DefaultThresholds(), nil)
	txs := []domain.UniversalTransaction{
		{
			ID: "tx1",
			Movements: []domain.Movement{
				{TransactionID: "tx1", AssetID: "btc", NetAmount: money.MustParseDecimal("1.0"), Direction: domain.DirectionOut, Timestamp: now, SourceKind: domain.AccountKindBlockchain},
				{TransactionID: "tx1", AssetID: "btc", NetAmount: money.MustParseDecimal("1.0"), Direction: domain.DirectionIn, Timestamp: now, SourceKind: domain.AccountKindBlockchain},
			},
		},
	}
	matches := e.Run(context.Background(), txs)
	assert.Empty(t, matches, "a source and target exploded from the same originating transaction must never be paired with each other")
}

func TestEngineRunFiltersBelowThresholds(t *testing.T) {
	now := time.Now()
	e := NewEngine(DefaultScoreParams(), DefaultThresholds(), nil)
	// amount similarity well below the 0.95 floor
	txs := []domain.UniversalTransaction{
		txWithMovement("withdrawal", domain.DirectionOut, "btc", "10.0", domain.AccountKindExchangeAPI, now, "", "addr1", ""),
		txWithMovement("deposit", domain.DirectionIn, "btc", "1.0", domain.AccountKindBlockchain, now.Add(time.Minute), "", "addr1", ""),
	}
	matches := e.Run(context.Background(), txs)
	assert.Empty(t, matches)
}

func TestEngineRunKeepsHighestConfidenceSourcePerTarget(t *testing.T) {
	now := time.Now()
	e := NewEngine(DefaultScoreParams(), DefaultThresholds(), nil)
	txs := []domain.UniversalTransaction{
		// two plausible sources for one deposit target, neither with address
		// evidence so the only differentiator is the proximity bonus: the
		// source within the 1h close-timing window must score strictly
		// higher (1.0 vs 0.9) and win outright, not merely on a tie-break.
		txWithMovement("withdrawalFar", domain.DirectionOut, "btc", "1.0", domain.AccountKindExchangeAPI, now.Add(-47*time.Hour), "", "", ""),
		txWithMovement("withdrawalClose", domain.DirectionOut, "btc", "1.0", domain.AccountKindExchangeAPI, now.Add(-30*time.Minute), "", "", ""),
		txWithMovement("deposit", domain.DirectionIn, "btc", "1.0", domain.AccountKindBlockchain, now, "", "", ""),
	}
	matches := e.Run(context.Background(), txs)
	require.Len(t, matches, 1)
	assert.Equal(t, "withdrawalClose", matches[0].Source.OriginatingTransactionID)
}

func TestEngineRunAdjustsBundledOutflowBeforeScoring(t *testing.T) {
	now := time.Now()
	e := NewEngine(DefaultScoreParams(), DefaultThresholds(), nil)
	txs := []domain.UniversalTransaction{
		{
			ID: "withdrawal",
			Movements: []domain.Movement{
				// a 1.2 BTC on-chain spend that returns 0.2 BTC change to the
				// sender: the real transfer out is 1.0 BTC, not the gross 1.2.
				{TransactionID: "withdrawal", SourceKind: domain.AccountKindBlockchain, AssetID: "btc", NetAmount: money.MustParseDecimal("1.2"), Direction: domain.DirectionOut, Timestamp: now, TxHash: "0xdead0001"},
				{TransactionID: "withdrawal", SourceKind: domain.AccountKindBlockchain, AssetID: "btc", NetAmount: money.MustParseDecimal("0.2"), Direction: domain.DirectionIn, Timestamp: now, TxHash: "0xdead0001"},
			},
		},
		txWithMovement("deposit", domain.DirectionIn, "btc", "1.0", domain.AccountKindBlockchain, now.Add(time.Minute), "", "", ""),
	}

	matches := e.Run(context.Background(), txs)
	require.Len(t, matches, 1, "the bundled outflow must be scored against its adjusted 1.0 net amount, not left unscored at the gross 1.2")
	assert.Equal(t, "withdrawal", matches[0].Source.OriginatingTransactionID)
	assert.True(t, matches[0].Source.Amount.Equal(money.MustParseDecimal("1.0")))
	assert.Equal(t, 1.0, matches[0].AmountSimilarity)
}

func TestEngineRunSuggestsBelowAutoConfirmThreshold(t *testing.T) {
	now := time.Now()
	e := NewEngine(DefaultScoreParams(), DefaultThresholds(), nil)
	txs := []domain.UniversalTransaction{
		// no address match and far outside the proximity bonus window, but
		// still within the 48h timing window and amount-similarity floor:
		// should clear MinConfidence (0.75) without reaching AutoConfirm (0.95).
		txWithMovement("withdrawal", domain.DirectionOut, "btc", "1.0", domain.AccountKindExchangeAPI, now, "", "", ""),
		txWithMovement("deposit", domain.DirectionIn, "btc", "1.0", domain.AccountKindBlockchain, now.Add(2*time.Hour), "", "", ""),
	}
	matches := e.Run(context.Background(), txs)
	require.Len(t, matches, 1)
	assert.False(t, e.IsAutoConfirmed(matches[0]))
}

func TestBuildLinkRejectsNonPositiveAmounts(t *testing.T) {
	e := NewEngine(DefaultScoreParams(), DefaultThresholds(), nil)
	m := domain.PotentialMatch{
		Source: domain.TransactionCandidate{Amount: money.Zero},
		Target: domain.TransactionCandidate{Amount: money.MustParseDecimal("1.0")},
	}
	_, err := e.BuildLink(m, "link1")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "missing movement data", verr.Reason)
}

func TestBuildLinkRejectsTargetExceedingSourceWithoutHashMatch(t *testing.T) {
	e := NewEngine(DefaultScoreParams(), DefaultThresholds(), nil)
	m := domain.PotentialMatch{
		Source:    domain.TransactionCandidate{Amount: money.MustParseDecimal("1.0")},
		Target:    domain.TransactionCandidate{Amount: money.MustParseDecimal("1.5")},
		HashMatch: domain.TriFalse,
	}
	_, err := e.BuildLink(m, "link1")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "target amount exceeds source amount", verr.Reason)
}

func TestBuildLinkAllowsSmallHashConfirmedExcess(t *testing.T) {
	e := NewEngine(DefaultScoreParams(), DefaultThresholds(), nil)
	m := domain.PotentialMatch{
		Source:          domain.TransactionCandidate{Amount: money.MustParseDecimal("100")},
		Target:          domain.TransactionCandidate{Amount: money.MustParseDecimal("100.5")}, // 0.5% excess, under the 1% allowance
		HashMatch:       domain.TriTrue,
		ConfidenceScore: 1.0,
	}
	link, err := e.BuildLink(m, "link1")
	require.NoError(t, err)
	assert.True(t, link.TargetExcessAllowed)
	assert.Equal(t, domain.LinkConfirmed, link.Status)
}

func TestBuildLinkRejectsExcessBeyondHashAllowance(t *testing.T) {
	e := NewEngine(DefaultScoreParams(), DefaultThresholds(), nil)
	m := domain.PotentialMatch{
		Source:    domain.TransactionCandidate{Amount: money.MustParseDecimal("100")},
		Target:    domain.TransactionCandidate{Amount: money.MustParseDecimal("105")}, // 5% excess, beyond the 1% allowance
		HashMatch: domain.TriTrue,
	}
	_, err := e.BuildLink(m, "link1")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "target amount exceeds source amount beyond hash-confirmed allowance", verr.Reason)
}

func TestBuildLinkRejectsVarianceBeyondMax(t *testing.T) {
	e := NewEngine(DefaultScoreParams(), DefaultThresholds(), nil)
	m := domain.PotentialMatch{
		Source: domain.TransactionCandidate{Amount: money.MustParseDecimal("100")},
		Target: domain.TransactionCandidate{Amount: money.MustParseDecimal("85")}, // 15% variance, over the 10% max
	}
	_, err := e.BuildLink(m, "link1")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "variance 15.00% exceeds 10% threshold", verr.Reason)
}

func TestBuildLinkSuggestedWhenBelowAutoConfirm(t *testing.T) {
	e := NewEngine(DefaultScoreParams(), DefaultThresholds(), nil)
	m := domain.PotentialMatch{
		Source:          domain.TransactionCandidate{Amount: money.MustParseDecimal("100")},
		Target:          domain.TransactionCandidate{Amount: money.MustParseDecimal("98")},
		ConfidenceScore: 0.80,
	}
	link, err := e.BuildLink(m, "link1")
	require.NoError(t, err)
	assert.Equal(t, domain.LinkSuggested, link.Status)
	assert.Empty(t, link.Reviewer)
	assert.Nil(t, link.ReviewedAt)
}

func TestBuildLinkConfirmedSetsAutoReviewer(t *testing.T) {
	e := NewEngine(DefaultScoreParams(), DefaultThresholds(), nil)
	m := domain.PotentialMatch{
		Source:          domain.TransactionCandidate{Amount: money.MustParseDecimal("100")},
		Target:          domain.TransactionCandidate{Amount: money.MustParseDecimal("100")},
		ConfidenceScore: 0.96,
	}
	link, err := e.BuildLink(m, "link1")
	require.NoError(t, err)
	assert.Equal(t, domain.LinkConfirmed, link.Status)
	assert.Equal(t, "auto", link.Reviewer)
	require.NotNil(t, link.ReviewedAt)
}
