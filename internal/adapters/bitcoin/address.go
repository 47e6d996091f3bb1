package bitcoin

import (
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/btcutil"

	"github.com/yourusername/ledgerflow/internal/domain"
	"github.com/yourusername/ledgerflow/internal/normalize"
	"github.com/yourusername/ledgerflow/internal/provider"
	"github.com/yourusername/ledgerflow/internal/registry"
)

// chainParams is tried in order: most addresses seen by this pipeline are
// mainnet, but accepting testnet lets the same rule validate addresses from
// a test deployment without a separate chain registration.
var chainParams = []*chaincfg.Params{&chaincfg.MainNetParams, &chaincfg.TestNet3Params}

// AddressRule validates a legacy (P2PKH/P2SH) or bech32 (segwit) address via
// btcutil's own decoder rather than the length/prefix heuristic that used to
// live in internal/normalize.
func AddressRule() normalize.AddressRule {
	return normalize.AddressRule{
		Chain:       "bitcoin",
		Sensitivity: normalize.CaseInsensitiveLower,
		Validate: func(trimmed string) bool {
			for _, params := range chainParams {
				if _, err := btcutil.DecodeAddress(trimmed, params); err == nil {
					return true
				}
			}
			return false
		},
	}
}

// Entry builds the registry.BlockchainEntry for Bitcoin.
func Entry() registry.BlockchainEntry {
	return registry.BlockchainEntry{
		Name:        "bitcoin",
		ChainModel:  domain.ChainModelUTXO,
		AddressRule: AddressRule(),
		CreateImporter: func(mgr *provider.Manager, preferred string) domain.Importer {
			return NewImporter(mgr, preferred)
		},
		CreateProcessor: func() domain.Processor { return NewProcessor() },
	}
}
