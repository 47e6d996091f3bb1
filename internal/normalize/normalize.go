// Package normalize implements the address- and hash-normalization rules of
// spec.md §4.5: "Address normalization: trim, lowercase for case-insensitive
// chains (Bitcoin, EVM hex); preserve case for Cardano (bech32 / Byron) and
// Solana (base58). Chain adapters declare case sensitivity at registration."
// and §4.4.3's hash normalization rule.
//
// Grounded on the teacher's internal/services/address package: that package
// derives an address from a key using the same per-chain libraries this
// package uses to validate and canonicalize an address string instead.
// Chains with a real validating SDK in the pack (Bitcoin, Solana, Stellar,
// Tezos) declare their AddressRule in their own adapter package instead of
// here; this package keeps the rules with no dedicated SDK (Ethereum's hex
// check) plus the shared AddressRule/Normalize machinery and hash rules.
package normalize

import (
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yourusername/ledgerflow/internal/domain"
)

// CaseSensitivity is declared per chain at adapter registration (spec.md
// §4.5, "Chain adapters declare case sensitivity at registration").
type CaseSensitivity int

const (
	// CaseInsensitiveLower lowercases the trimmed address (Bitcoin bech32 and
	// EVM hex addresses). An address that passes the rule's Validate only in
	// its given case, such as a Bitcoin base58 address, keeps that case.
	CaseInsensitiveLower CaseSensitivity = iota
	// CasePreserving keeps the trimmed address exactly as given: Cardano
	// (bech32/Byron) and Solana (base58) are case-significant encodings.
	CasePreserving
)

// AddressRule is a chain's address-normalization policy, carried by a
// registry.BlockchainEntry and applied uniformly by the importer before it ever
// touches session state (spec.md §4.1 step 3).
type AddressRule struct {
	Chain       string
	Sensitivity CaseSensitivity
	Validate    func(trimmed string) bool
}

// Normalize trims addr and applies r's declared case policy, rejecting
// empty or invalid input with a domain error carrying KindInvalidAccountInput
// — the only Kind spec.md §4.1 step 3 allows the caller to surface before
// any session state is touched.
func (r AddressRule) Normalize(addr string) (string, error) {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return "", domain.NewError(domain.KindInvalidAccountInput, "address is empty").
			WithContext(map[string]any{"chain": r.Chain})
	}

	switch r.Sensitivity {
	case CaseInsensitiveLower:
		lowered := strings.ToLower(trimmed)
		if r.Validate == nil || r.Validate(lowered) || !r.Validate(trimmed) {
			trimmed = lowered
		}
	case CasePreserving:
		// leave as-is
	}

	if r.Validate != nil && !r.Validate(trimmed) {
		return "", domain.NewError(domain.KindInvalidAccountInput, "address failed chain validation").
			WithContext(map[string]any{"chain": r.Chain, "address": trimmed})
	}
	return trimmed, nil
}

var hexAddrPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// EthereumAddressRule validates and lowercases an EVM hex address using
// go-ethereum/common, the same library the teacher's address package uses
// to derive one from a public key.
func EthereumAddressRule() AddressRule {
	return AddressRule{
		Chain:       "ethereum",
		Sensitivity: CaseInsensitiveLower,
		Validate: func(trimmed string) bool {
			return hexAddrPattern.MatchString(trimmed) && common.IsHexAddress(trimmed)
		},
	}
}

var (
	evmSuffixPattern = regexp.MustCompile(`-\d+$`)
	hexHashPattern   = regexp.MustCompile(`^0x[0-9a-f]+$`)
)

// NormalizeHash implements spec.md §4.4.3's hash-normalization rule:
// "Normalize hashes by stripping a trailing -<digits> suffix (EVM log
// index). Compare case-insensitively iff both normalized hashes match
// ^0x[0-9a-f]+$ (hex); otherwise exact-case."
//
// Idempotent (L1) by construction: stripping the EVM suffix and
// lowercasing a hex string are both idempotent operations, and a
// non-matching (non-hex) input is returned unchanged beyond suffix
// stripping, which itself only ever fires once since the suffix pattern
// requires a literal trailing hyphen-digits run that lowercasing never
// introduces or removes.
func NormalizeHash(hash string) string {
	trimmed := strings.TrimSpace(hash)
	stripped := evmSuffixPattern.ReplaceAllString(trimmed, "")
	lowered := strings.ToLower(stripped)
	if hexHashPattern.MatchString(lowered) {
		return lowered
	}
	return stripped
}

// HashesEqual reports whether two raw hash strings are equal once both are
// normalized — the comparison the matching engine's hash path (spec.md
// §4.4.3 rule 1) performs for every candidate pair.
func HashesEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return NormalizeHash(a) == NormalizeHash(b)
}
