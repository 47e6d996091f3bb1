package matching

import (
	"strings"
	"time"

	"github.com/yourusername/ledgerflow/internal/domain"
	"github.com/yourusername/ledgerflow/internal/money"
	"github.com/yourusername/ledgerflow/internal/normalize"
)

// Weights are the confidence weighting constants from spec.md §4.4.2.
type Weights struct {
	AssetMatch     float64
	AmountSimilarity float64
	TimingValid    float64
	AddressBonus   float64
	ProximityBonus float64
}

// DefaultWeights returns the 30/40/20/10/10 split named in spec.md §4.4.2.
func DefaultWeights() Weights {
	return Weights{AssetMatch: 0.30, AmountSimilarity: 0.40, TimingValid: 0.20, AddressBonus: 0.10, ProximityBonus: 0.10}
}

// ScoreParams bundles the configurable knobs §4.4.2 and §4.4.3 name.
type ScoreParams struct {
	Weights               Weights
	TimeWindow            time.Duration // default 48h
	CloseTimingBonusWindow time.Duration // default 1h
	EqualityTolerance     float64        // 0.0005 (0.05%)
}

// DefaultScoreParams returns the spec.md-documented defaults.
func DefaultScoreParams() ScoreParams {
	return ScoreParams{
		Weights:                DefaultWeights(),
		TimeWindow:             48 * time.Hour,
		CloseTimingBonusWindow: time.Hour,
		EqualityTolerance:      0.0005,
	}
}

// amountSimilarity implements spec.md §4.4.2's amount-similarity rule:
// target > source (beyond tolerance) ⇒ 0; else target/source bounded to
// [0,1], with near-equality (±0.05%) mapped to ≥0.98.
func amountSimilarity(source, target money.Decimal, tolerance float64) float64 {
	if source.IsZero() {
		return 0
	}
	if target.GreaterThan(source) {
		diff := target.Sub(source)
		ratioOver := diff.Divide(source).Float64()
		if ratioOver <= tolerance {
			return 1.0
		}
		return 0
	}
	ratio := target.Divide(source).Float64()
	if ratio > 1 {
		ratio = 1
	}
	if ratio < 0 {
		ratio = 0
	}
	diff := source.Sub(target)
	ratioUnder := diff.Divide(source).Float64()
	if ratioUnder <= tolerance && ratio < 0.98 {
		ratio = 0.98
	}
	return ratio
}

// addressMatch implements spec.md §4.4.2's tri-state address rule.
func addressMatch(source, target domain.TransactionCandidate) domain.TriState {
	if source.ToAddress == "" || (target.FromAddress == "" && target.ToAddress == "") {
		return domain.TriUnknown
	}
	s := strings.ToLower(source.ToAddress)
	if strings.ToLower(target.FromAddress) == s || strings.ToLower(target.ToAddress) == s {
		return domain.TriTrue
	}
	return domain.TriFalse
}

// deriveLinkType classifies the (source, target) pair's account kinds into
// one of the four link types spec.md §3 names.
func deriveLinkType(source, target domain.TransactionCandidate) domain.LinkType {
	srcChain := source.SourceType == domain.AccountKindBlockchain
	tgtChain := target.SourceType == domain.AccountKindBlockchain
	switch {
	case !srcChain && tgtChain:
		return domain.LinkExchangeToBlockchain
	case srcChain && !tgtChain:
		return domain.LinkBlockchainToExchange
	case srcChain && tgtChain:
		return domain.LinkBlockchainToBlockchain
	default:
		return domain.LinkExchangeToExchange
	}
}

// ScorePair implements spec.md §4.4.2's per-pair scoring (excluding the
// hash-match short-circuit, applied separately by the caller per §4.4.3).
// Returns ok=false when the asset ids don't match (pair is skipped
// entirely, per "For each (source, target) with matching asset id (else
// skip)").
func ScorePair(source, target domain.TransactionCandidate, p ScoreParams) (domain.PotentialMatch, bool) {
	if source.AssetID != target.AssetID {
		return domain.PotentialMatch{}, false
	}

	m := domain.PotentialMatch{
		Source:     source,
		Target:     target,
		AssetMatch: true,
		LinkType:   deriveLinkType(source, target),
	}

	m.AmountSimilarity = amountSimilarity(source.Amount, target.Amount, p.EqualityTolerance)

	gap := target.Timestamp.Sub(source.Timestamp)
	m.TimingValid = gap >= 0 && gap <= p.TimeWindow
	m.TimingGapHours = gap.Hours()

	m.AddressMatch = addressMatch(source, target)

	if m.AddressMatch == domain.TriFalse {
		m.ConfidenceScore = 0
		return m, true
	}

	confidence := p.Weights.AssetMatch + p.Weights.AmountSimilarity*m.AmountSimilarity
	if m.TimingValid {
		confidence += p.Weights.TimingValid
	}
	if m.AddressMatch == domain.TriTrue {
		confidence += p.Weights.AddressBonus
	}
	if m.TimingValid && gap <= p.CloseTimingBonusWindow {
		confidence += p.Weights.ProximityBonus
	}
	if confidence > 1 {
		confidence = 1
	}
	m.ConfidenceScore = confidence
	return m, true
}

// hashSuffix extracts a trailing -<digits> EVM log-index suffix, or "" if
// none is present.
func hashSuffix(hash string) string {
	idx := strings.LastIndex(hash, "-")
	if idx < 0 {
		return ""
	}
	suffix := hash[idx+1:]
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return ""
		}
	}
	if suffix == "" {
		return ""
	}
	return suffix
}

// ApplyHashMatch implements spec.md §4.4.3: it promotes m to confidence 1.0
// and hashMatch=true when every rule in that section holds, given the full
// candidate target set so uniqueness and multi-output-sum validation can be
// checked. allTargetsSharingHash is every target candidate sharing source's
// normalized hash (including target itself); targets from the source's own
// originating transaction are left out of the multi-output sum here.
func ApplyHashMatch(m domain.PotentialMatch, allTargetsSharingHash []domain.TransactionCandidate) domain.PotentialMatch {
	if m.Source.TxHash == "" || m.Target.TxHash == "" {
		m.HashMatch = domain.TriUnknown
		return m
	}
	if !normalize.HashesEqual(m.Source.TxHash, m.Target.TxHash) {
		m.HashMatch = domain.TriFalse
		return m
	}

	sourceSuffix := hashSuffix(m.Source.TxHash)
	targetSuffix := hashSuffix(m.Target.TxHash)
	if sourceSuffix != "" && targetSuffix != "" && sourceSuffix != targetSuffix {
		m.HashMatch = domain.TriFalse
		return m
	}

	if m.LinkType == domain.LinkBlockchainToBlockchain {
		m.HashMatch = domain.TriUnknown
		return m
	}

	// Uniqueness: disambiguate by suffix when the raw hash is shared by more
	// than one target but both originals carry distinct suffixes.
	var eligible []domain.TransactionCandidate
	for _, t := range allTargetsSharingHash {
		if sourceSuffix != "" {
			if ts := hashSuffix(t.TxHash); ts != "" && ts != sourceSuffix {
				continue
			}
		}
		eligible = append(eligible, t)
	}
	if len(eligible) != 1 {
		m.HashMatch = domain.TriUnknown
		return m
	}

	sum := money.Zero
	for _, t := range allTargetsSharingHash {
		if t.OriginatingTransactionID == m.Source.OriginatingTransactionID {
			continue
		}
		sum = sum.Add(t.Amount)
	}
	if sum.GreaterThan(m.Source.Amount) {
		m.HashMatch = domain.TriUnknown
		return m
	}

	m.HashMatch = domain.TriTrue
	m.ConfidenceScore = 1.0
	return m
}
