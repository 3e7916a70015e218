// AngelaMos | 2026
// security_test.go

package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, IsArgonHash(hash))
	assert.NotContains(t, hash, "correct horse")

	ok, err := VerifyPassword("correct horse", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("correct horsf", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyStoredPasswordLegacyDigest(t *testing.T) {
	stored := LegacyDigest("hunter2")
	assert.True(t, IsLegacyDigest(stored))

	ok, newHash, err := VerifyStoredPassword("hunter2", stored)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, IsArgonHash(newHash))

	ok, newHash, err = VerifyStoredPassword("hunter3", stored)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, newHash)
}

func TestVerifyStoredPasswordCurrentHashNoRehash(t *testing.T) {
	hash, err := HashPassword("pw")
	require.NoError(t, err)

	ok, newHash, err := VerifyStoredPassword("pw", hash)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, newHash)
}

func TestVerifyStoredPasswordRejectsUnknownFormat(t *testing.T) {
	ok, _, err := VerifyStoredPassword("plain", "plain")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestVerifyPasswordTimingSafeMissingAccount(t *testing.T) {
	ok, newHash, err := VerifyPasswordTimingSafe("anything", nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, newHash)
}

func TestIsLegacyDigest(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{LegacyDigest("x"), true},
		{"short", false},
		{"zz" + LegacyDigest("x")[2:], false},
		{"$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsLegacyDigest(tt.in), tt.in)
	}
}

func TestGenerateSecureTokenUnique(t *testing.T) {
	a, err := GenerateSecureToken(32)
	require.NoError(t, err)
	b, err := GenerateSecureToken(32)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43)
}
