package auth

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAPIKey(t *testing.T) {
	key, prefix, err := NewAPIKey()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, KeyPrefix))
	assert.Len(t, key, len(KeyPrefix)+64)

	got, ok := LookupPrefix(key)
	require.True(t, ok)
	assert.Equal(t, prefix, got)

	hash, err := HashKey(key)
	require.NoError(t, err)
	assert.True(t, CheckKey(hash, key))
	assert.False(t, CheckKey(hash, key+"0"))
}

func TestLookupPrefixRejects(t *testing.T) {
	for _, k := range []string{"", "fp_", "fp_1234567", "do_12345678abcdef"} {
		_, ok := LookupPrefix(k)
		assert.False(t, ok, k)
	}
}

func TestBearerToken(t *testing.T) {
	tok, ok := BearerToken("Bearer fp_abc")
	assert.True(t, ok)
	assert.Equal(t, "fp_abc", tok)

	tok, ok = BearerToken("bearer  fp_abc ")
	assert.True(t, ok)
	assert.Equal(t, "fp_abc", tok)

	_, ok = BearerToken("Basic Zm9v")
	assert.False(t, ok)
	_, ok = BearerToken("Bearer ")
	assert.False(t, ok)
}

func TestContext(t *testing.T) {
	ctx := ContextWithAPIKey(context.Background(), "k1")
	assert.Equal(t, "k1", APIKeyFromContext(ctx))
	assert.Empty(t, APIKeyFromContext(context.Background()))
}
