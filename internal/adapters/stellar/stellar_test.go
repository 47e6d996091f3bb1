package stellar

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yourusername/ledgerflow/internal/normalize"
)

func TestAddressRule(t *testing.T) {
	rule := AddressRule()

	assert.Equal(t, normalize.CasePreserving, rule.Sensitivity)

	t.Run("rejects empty", func(t *testing.T) {
		_, err := rule.Normalize("")
		assert.Error(t, err)
	})

	t.Run("rejects wrong-length input", func(t *testing.T) {
		_, err := rule.Normalize("GSHORT")
		assert.Error(t, err)
	})

	t.Run("rejects a non-G-prefixed 56-char string", func(t *testing.T) {
		_, err := rule.Normalize("A2345678901234567890123456789012345678901234567890123456")
		assert.Error(t, err)
	})
}
