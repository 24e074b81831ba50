package authfile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveLastNonEmptyLineWins(t *testing.T) {
	secret, err := Resolve(strings.NewReader("\n\nsecret\n\n"))
	assert.NoError(t, err)
	assert.Equal(t, "secret", secret)
}

func TestResolveEmptyFileYieldsNoAuth(t *testing.T) {
	secret, err := Resolve(strings.NewReader(""))
	assert.NoError(t, err)
	assert.Equal(t, NoAuth, secret)
}

func TestResolveMultipleNonEmptyLinesKeepsLast(t *testing.T) {
	secret, err := Resolve(strings.NewReader("first\nsecond\nthird"))
	assert.NoError(t, err)
	assert.Equal(t, "third", secret)
}

func TestResolveBlankLinesOnlyYieldsNoAuth(t *testing.T) {
	secret, err := Resolve(strings.NewReader("\n\n\n"))
	assert.NoError(t, err)
	assert.Equal(t, NoAuth, secret)
}
