package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/ledgerflow/internal/domain"
	"github.com/yourusername/ledgerflow/internal/normalize"
)

func TestRegisterAndLookupBlockchainIsCaseInsensitive(t *testing.T) {
	r := New()
	r.RegisterBlockchain(BlockchainEntry{Name: "Bitcoin", ChainModel: domain.ChainModel("utxo")})

	_, ok := r.Blockchain("bitcoin")
	assert.True(t, ok)
	_, ok = r.Blockchain("  BITCOIN  ")
	assert.True(t, ok)
	_, ok = r.Blockchain("ethereum")
	assert.False(t, ok)
}

func TestRegisterBlockchainReplacesExistingEntry(t *testing.T) {
	r := New()
	r.RegisterBlockchain(BlockchainEntry{Name: "bitcoin", ChainModel: domain.ChainModel("v1")})
	r.RegisterBlockchain(BlockchainEntry{Name: "bitcoin", ChainModel: domain.ChainModel("v2")})

	e, ok := r.Blockchain("bitcoin")
	require.True(t, ok)
	assert.Equal(t, domain.ChainModel("v2"), e.ChainModel)
}

func TestRegisterAndLookupExchangeIsCaseInsensitive(t *testing.T) {
	r := New()
	r.RegisterExchange(ExchangeEntry{Name: "Kraken"})

	_, ok := r.Exchange("kraken")
	assert.True(t, ok)
	_, ok = r.Exchange("coinbase")
	assert.False(t, ok)
}

func TestResolveBlockchainReturnsAddressRuleAndChainModel(t *testing.T) {
	r := New()
	rule := normalize.AddressRule{Sensitivity: normalize.CaseInsensitiveLower}
	r.RegisterBlockchain(BlockchainEntry{Name: "bitcoin", ChainModel: domain.ChainModel("utxo"), AddressRule: rule})

	resolved, err := r.Resolve("Bitcoin")
	require.NoError(t, err)
	assert.Equal(t, domain.AccountKindBlockchain, resolved.Kind)
	assert.Equal(t, domain.ChainModel("utxo"), resolved.ChainModel)
	require.NotNil(t, resolved.AddressRule)
	assert.Equal(t, normalize.CaseInsensitiveLower, resolved.AddressRule.Sensitivity)
}

func TestResolveExchangeHasNilAddressRuleAndZeroChainModel(t *testing.T) {
	r := New()
	r.RegisterExchange(ExchangeEntry{Name: "kraken"})

	resolved, err := r.Resolve("kraken")
	require.NoError(t, err)
	assert.Equal(t, domain.AccountKindExchangeAPI, resolved.Kind)
	assert.Nil(t, resolved.AddressRule)
	assert.Equal(t, domain.ChainModel(""), resolved.ChainModel)
}

func TestResolveUnknownSourceReturnsUnknownAdapterError(t *testing.T) {
	r := New()
	_, err := r.Resolve("nonexistent")
	require.Error(t, err)
	assert.Equal(t, domain.KindUnknownAdapter, domain.KindOf(err))
}

func TestResolvePrefersBlockchainTableWhenNameCollides(t *testing.T) {
	r := New()
	r.RegisterBlockchain(BlockchainEntry{Name: "dual", ChainModel: domain.ChainModel("chain")})
	r.RegisterExchange(ExchangeEntry{Name: "dual"})

	resolved, err := r.Resolve("dual")
	require.NoError(t, err)
	assert.Equal(t, domain.AccountKindBlockchain, resolved.Kind, "a name registered in both tables must resolve to the blockchain entry")
}
