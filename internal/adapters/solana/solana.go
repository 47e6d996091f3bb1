// Package solana declares the Solana blockchain's registry entry: address
// normalization only, grounded on the teacher's
// internal/services/address.DeriveSolanaAddress (which produces a Solana
// address via gagliardetto/solana-go's PublicKey type) generalized into
// validating one instead of deriving it.
package solana

import (
	"github.com/gagliardetto/solana-go"

	"github.com/yourusername/ledgerflow/internal/adapters"
	"github.com/yourusername/ledgerflow/internal/domain"
	"github.com/yourusername/ledgerflow/internal/normalize"
	"github.com/yourusername/ledgerflow/internal/provider"
	"github.com/yourusername/ledgerflow/internal/registry"
)

// AddressRule validates a base58-encoded Ed25519 public key via
// solana-go's own parser rather than normalize's hand-rolled base58 length
// check.
func AddressRule() normalize.AddressRule {
	return normalize.AddressRule{
		Chain:       "solana",
		Sensitivity: normalize.CasePreserving,
		Validate: func(trimmed string) bool {
			_, err := solana.PublicKeyFromBase58(trimmed)
			return err == nil
		},
	}
}

// Entry builds the registry.BlockchainEntry for Solana.
func Entry() registry.BlockchainEntry {
	return registry.BlockchainEntry{
		Name:       "solana",
		ChainModel: domain.ChainModelAccount,
		AddressRule: AddressRule(),
		CreateImporter: func(_ *provider.Manager, _ string) domain.Importer {
			return adapters.UnsupportedImporter{Chain: "solana"}
		},
		CreateProcessor: func() domain.Processor { return adapters.NoopProcessor{} },
	}
}
