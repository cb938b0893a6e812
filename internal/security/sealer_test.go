package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealer_RoundTrip(t *testing.T) {
	s, err := NewSealer("correct horse battery staple")
	require.NoError(t, err)
	require.True(t, s.Enabled())

	sealed, err := s.Seal("app-secret-value")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, sealedPrefix))
	assert.NotContains(t, sealed, "app-secret-value")

	opened, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "app-secret-value", opened)
}

func TestSealer_NonceMakesCiphertextsDiffer(t *testing.T) {
	s, err := NewSealer("k")
	require.NoError(t, err)

	a, _ := s.Seal("same")
	b, _ := s.Seal("same")
	assert.NotEqual(t, a, b)
}

func TestSealer_DisabledPassesThrough(t *testing.T) {
	s, err := NewSealer("")
	require.NoError(t, err)
	assert.False(t, s.Enabled())

	sealed, err := s.Seal("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", sealed)

	_, err = s.Open(sealedPrefix + "AAAA")
	assert.Error(t, err)
}

func TestSealer_ReadsLegacyPlaintext(t *testing.T) {
	s, err := NewSealer("k")
	require.NoError(t, err)

	opened, err := s.Open("stored-before-sealing")
	require.NoError(t, err)
	assert.Equal(t, "stored-before-sealing", opened)
}

func TestSealer_WrongKeyFails(t *testing.T) {
	a, _ := NewSealer("key-a")
	b, _ := NewSealer("key-b")

	sealed, err := a.Seal("secret")
	require.NoError(t, err)

	_, err = b.Open(sealed)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestSealer_EmptyStaysEmpty(t *testing.T) {
	s, _ := NewSealer("k")
	sealed, err := s.Seal("")
	require.NoError(t, err)
	assert.Equal(t, "", sealed)
}
