// Package stellar declares the Stellar network's registry entry: address
// normalization only, grounded on the teacher's
// internal/services/address.DeriveStellarAddress (stellar/go/keypair)
// generalized into validating an address with stellar/go/strkey instead of
// deriving one from a seed.
package stellar

import (
	"github.com/stellar/go/strkey"

	"github.com/yourusername/ledgerflow/internal/adapters"
	"github.com/yourusername/ledgerflow/internal/domain"
	"github.com/yourusername/ledgerflow/internal/normalize"
	"github.com/yourusername/ledgerflow/internal/provider"
	"github.com/yourusername/ledgerflow/internal/registry"
)

// AddressRule validates a Stellar Ed25519 public key (a "G..." address)
// via strkey's own checksum-verifying decoder.
func AddressRule() normalize.AddressRule {
	return normalize.AddressRule{
		Chain:       "stellar",
		Sensitivity: normalize.CasePreserving,
		Validate:    strkey.IsValidEd25519PublicKey,
	}
}

// Entry builds the registry.BlockchainEntry for Stellar.
func Entry() registry.BlockchainEntry {
	return registry.BlockchainEntry{
		Name:       "stellar",
		ChainModel: domain.ChainModelAccount,
		AddressRule: AddressRule(),
		CreateImporter: func(_ *provider.Manager, _ string) domain.Importer {
			return adapters.UnsupportedImporter{Chain: "stellar"}
		},
		CreateProcessor: func() domain.Processor { return adapters.NoopProcessor{} },
	}
}
