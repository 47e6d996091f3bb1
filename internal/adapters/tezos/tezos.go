// Package tezos declares the Tezos network's registry entry: address
// normalization only, grounded on the teacher's
// internal/services/address.DeriveTezosAddress (blockwatch.cc/tzgo/tezos)
// generalized into validating an address via tezos.ParseAddress instead of
// deriving one from an Ed25519 key.
package tezos

import (
	"blockwatch.cc/tzgo/tezos"

	"github.com/yourusername/ledgerflow/internal/adapters"
	"github.com/yourusername/ledgerflow/internal/domain"
	"github.com/yourusername/ledgerflow/internal/normalize"
	"github.com/yourusername/ledgerflow/internal/provider"
	"github.com/yourusername/ledgerflow/internal/registry"
)

// AddressRule validates a tz1/tz2/tz3/KT1 base58check address via tzgo's
// own parser rather than the length/prefix heuristic in normalize.go.
func AddressRule() normalize.AddressRule {
	return normalize.AddressRule{
		Chain:       "tezos",
		Sensitivity: normalize.CasePreserving,
		Validate: func(trimmed string) bool {
			addr, err := tezos.ParseAddress(trimmed)
			return err == nil && addr.IsValid()
		},
	}
}

// Entry builds the registry.BlockchainEntry for Tezos.
func Entry() registry.BlockchainEntry {
	return registry.BlockchainEntry{
		Name:       "tezos",
		ChainModel: domain.ChainModelAccount,
		AddressRule: AddressRule(),
		CreateImporter: func(_ *provider.Manager, _ string) domain.Importer {
			return adapters.UnsupportedImporter{Chain: "tezos"}
		},
		CreateProcessor: func() domain.Processor { return adapters.NoopProcessor{} },
	}
}
