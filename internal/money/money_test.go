package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	assert.Equal(t, "12.65", Format(11.5*1.1))
	assert.Equal(t, "3.50", Format(3.5))
	assert.Equal(t, "0.00", Format(0))
	assert.Equal(t, "1.15", Format(1.15))
}

func TestRound(t *testing.T) {
	assert.Equal(t, 12.65, Round(11.5+1.15))
	assert.Equal(t, 2.35, Round(15-12.65))
}

func TestFormatWithSymbol(t *testing.T) {
	assert.Equal(t, "$4.50", FormatWithSymbol("$", 4.5))
	assert.Equal(t, "-$2.00", FormatWithSymbol("$", -2))
}
