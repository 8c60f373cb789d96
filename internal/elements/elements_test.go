package elements

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidSymbol(t *testing.T) {
	for _, s := range []string{"H", "Ag", "Au", "Og", "Uue", "Ubn"} {
		assert.True(t, IsValidSymbol(s), s)
	}
	for _, s := range []string{"", "Xx", "ag", "AG", "Ag ", "Ag-sp"} {
		assert.False(t, IsValidSymbol(s), s)
	}
}

func TestVocabularySize(t *testing.T) {
	assert.Len(t, symbols, 120)
}
