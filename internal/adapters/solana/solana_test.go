package solana

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yourusername/ledgerflow/internal/domain"
)

func TestAddressRule(t *testing.T) {
	rule := AddressRule()

	t.Run("system program id is a valid base58 ed25519 key", func(t *testing.T) {
		got, err := rule.Normalize("11111111111111111111111111111111")
		assert.NoError(t, err)
		assert.Equal(t, "11111111111111111111111111111111", got)
	})

	t.Run("rejects empty", func(t *testing.T) {
		_, err := rule.Normalize("")
		assert.Error(t, err)
	})

	t.Run("rejects non-base58 characters", func(t *testing.T) {
		_, err := rule.Normalize("0OIl-not-base58")
		assert.Error(t, err)
	})
}

func TestEntryRegistersNormalizeOnlyChain(t *testing.T) {
	e := Entry()
	assert.Equal(t, "solana", e.Name)
	importer := e.CreateImporter(nil, "")
	_, err := importer.ImportStreaming(context.Background(), domain.ImportParams{})
	assert.Error(t, err)
	assert.Equal(t, domain.KindNoCapableProvider, domain.KindOf(err))
}
