package xid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIsPrefixedAndUnique(t *testing.T) {
	a := New("rcpt")
	b := New("rcpt")

	assert.True(t, strings.HasPrefix(a, "rcpt-"))
	assert.NotEqual(t, a, b)
	assert.True(t, Valid(a))
}

func TestValidRejectsPathCharacters(t *testing.T) {
	assert.False(t, Valid(""))
	assert.False(t, Valid("a/b"))
	assert.False(t, Valid("a b"))
	assert.True(t, Valid("prod-1"))
}
