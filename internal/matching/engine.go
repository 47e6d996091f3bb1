package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/yourusername/ledgerflow/internal/domain"
	"github.com/yourusername/ledgerflow/internal/money"
	"github.com/yourusername/ledgerflow/internal/normalize"
	"github.com/yourusername/ledgerflow/pkg/eventbus"
)

// Thresholds configures the dedup/confirmation/validation stages of
// spec.md §4.4.4 and §4.4.5.
type Thresholds struct {
	MinConfidence         float64
	MinAmountSimilarity   float64
	AutoConfirmThreshold  float64
	HashExcessAllowancePct float64
	MaxVariancePct        float64
}

// DefaultThresholds returns the documented defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinConfidence:          0.75,
		MinAmountSimilarity:    0.95,
		AutoConfirmThreshold:   0.95,
		HashExcessAllowancePct: 0.01,
		MaxVariancePct:         0.10,
	}
}

// Engine runs the full matching pipeline over a snapshot of universal
// transactions, per spec.md's "matching engine reads a stable snapshot of
// completed, processed records" resource policy (§5).
type Engine struct {
	scoreParams ScoreParams
	thresholds  Thresholds
	bus         *eventbus.Bus
}

// NewEngine builds an Engine. bus may be nil.
func NewEngine(scoreParams ScoreParams, thresholds Thresholds, bus *eventbus.Bus) *Engine {
	return &Engine{scoreParams: scoreParams, thresholds: thresholds, bus: bus}
}

// Run executes candidate construction, the §4.4.6 bundled-outflow
// adjustment, scoring, hash matching, deduplication, and auto-confirmation
// over txs, returning the surviving matches ready for link validation
// (spec.md §4.4.1-§4.4.4).
func (e *Engine) Run(ctx context.Context, txs []domain.UniversalTransaction) []domain.PotentialMatch {
	sources, targets := BuildCandidates(txs)
	sources = ApplyOutflowAdjustments(txs, sources)

	targetsByHash := make(map[string][]domain.TransactionCandidate)
	for _, t := range targets {
		if t.TxHash == "" {
			continue
		}
		h := normalize.NormalizeHash(t.TxHash)
		targetsByHash[h] = append(targetsByHash[h], t)
	}

	var scored []domain.PotentialMatch
	for _, s := range sources {
		for _, t := range targets {
			if t.OriginatingTransactionID == s.OriginatingTransactionID {
				continue
			}
			m, ok := ScorePair(s, t, e.scoreParams)
			if !ok {
				continue
			}
			if m.ConfidenceScore == 0 {
				continue
			}
			if s.TxHash != "" && t.TxHash != "" {
				h := normalize.NormalizeHash(s.TxHash)
				m = ApplyHashMatch(m, targetsByHash[h])
			}
			scored = append(scored, m)
		}
	}

	return e.dedupeAndConfirm(ctx, scored)
}

// dedupeAndConfirm implements spec.md §4.4.4: filter by minimum confidence
// and minimum amount similarity, then keep only each target's
// highest-confidence source (ties broken last-write-wins by insertion
// order), then publish a match-confirmed event for each survivor at or
// above the auto-confirm threshold. All survivors are returned; BuildLink
// assigns the confirmed/suggested status.
func (e *Engine) dedupeAndConfirm(ctx context.Context, scored []domain.PotentialMatch) []domain.PotentialMatch {
	filtered := make([]domain.PotentialMatch, 0, len(scored))
	for _, m := range scored {
		if m.ConfidenceScore >= e.thresholds.MinConfidence && m.AmountSimilarity >= e.thresholds.MinAmountSimilarity {
			filtered = append(filtered, m)
		}
	}

	bestByTarget := make(map[string]domain.PotentialMatch)
	order := make([]string, 0, len(filtered))
	for _, m := range filtered {
		key := m.Target.ID
		existing, seen := bestByTarget[key]
		if !seen {
			order = append(order, key)
			bestByTarget[key] = m
			continue
		}
		// Last-write-wins on ties: >= lets a later equal-confidence match
		// replace an earlier one.
		if m.ConfidenceScore >= existing.ConfidenceScore {
			bestByTarget[key] = m
		}
	}

	out := make([]domain.PotentialMatch, 0, len(order))
	now := time.Now()
	for _, key := range order {
		m := bestByTarget[key]
		out = append(out, m)
		if e.bus == nil {
			continue
		}
		if m.ConfidenceScore >= e.thresholds.AutoConfirmThreshold {
			e.bus.Publish(ctx, eventbus.Event{
				Topic:    eventbus.TopicMatchConfirmed,
				At:       now,
				Metadata: map[string]any{"autoConfirmed": true, "sourceId": m.Source.ID, "targetId": m.Target.ID},
			})
		}
	}
	return out
}

// IsAutoConfirmed reports whether m clears the auto-confirm threshold,
// per spec.md §4.4.4.
func (e *Engine) IsAutoConfirmed(m domain.PotentialMatch) bool {
	return m.ConfidenceScore >= e.thresholds.AutoConfirmThreshold
}

// ValidationError is returned by BuildLink when a match fails link
// validation (spec.md §4.4.5) and must not be persisted.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// BuildLink implements spec.md §4.4.5: validates a confirmed/suggested
// match and produces the TransactionLink to persist, or a *ValidationError
// naming the specific rejection reason.
func (e *Engine) BuildLink(m domain.PotentialMatch, linkID string) (*domain.TransactionLink, error) {
	sourceAmount := m.Source.Amount
	targetAmount := m.Target.Amount

	if !sourceAmount.IsPositive() {
		return nil, &ValidationError{Reason: "missing movement data"}
	}
	if !targetAmount.IsPositive() {
		return nil, &ValidationError{Reason: "invalid transaction data"}
	}

	hashConfirmed := m.HashMatch == domain.TriTrue
	excessAllowed := false
	excessPct := ""
	if targetAmount.GreaterThan(sourceAmount) {
		if !hashConfirmed {
			return nil, &ValidationError{Reason: "target amount exceeds source amount"}
		}
		excess := targetAmount.Sub(sourceAmount)
		pct := excess.Divide(sourceAmount).Float64()
		if pct > e.thresholds.HashExcessAllowancePct {
			return nil, &ValidationError{Reason: "target amount exceeds source amount beyond hash-confirmed allowance"}
		}
		excessAllowed = true
		excessPct = excess.Divide(sourceAmount).Multiply(money.NewFromInt(100)).ToFixed(2)
	}

	variance := sourceAmount.Sub(targetAmount).ClampFloor0()
	variancePct := 0.0
	if !sourceAmount.IsZero() {
		variancePct = variance.Divide(sourceAmount).Float64()
	}
	if variancePct > e.thresholds.MaxVariancePct {
		return nil, &ValidationError{Reason: fmt.Sprintf("variance %.2f%% exceeds %.0f%% threshold", variancePct*100, e.thresholds.MaxVariancePct*100)}
	}

	status := domain.LinkSuggested
	reviewer := ""
	var reviewedAt *time.Time
	if e.IsAutoConfirmed(m) {
		status = domain.LinkConfirmed
		reviewer = "auto"
		now := time.Now()
		reviewedAt = &now
	}

	return &domain.TransactionLink{
		ID:                  linkID,
		SourceTransactionID: m.Source.OriginatingTransactionID,
		TargetTransactionID: m.Target.OriginatingTransactionID,
		AssetSymbol:         m.Source.AssetSymbol,
		SourceAmount:        sourceAmount,
		TargetAmount:        targetAmount,
		Status:              status,
		Reviewer:            reviewer,
		ReviewedAt:          reviewedAt,
		Variance:            variance,
		VariancePct:         variance.Divide(sourceAmount).Multiply(money.NewFromInt(100)).ToFixed(2),
		ImpliedFee:          variance,
		TargetExcessAllowed: excessAllowed,
		TargetExcessPct:     excessPct,
	}, nil
}
