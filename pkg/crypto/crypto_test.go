package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("Sup3r$ecret")
	require.NoError(t, err)
	require.NotEqual(t, "Sup3r$ecret", hash)

	require.True(t, VerifyPassword(hash, "Sup3r$ecret"))
	require.False(t, VerifyPassword(hash, "incorrect"))
}

func TestGenerateToken(t *testing.T) {
	first, err := GenerateToken(32)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := GenerateToken(32)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestHashToken(t *testing.T) {
	digest := HashToken("reset-token")
	require.Len(t, digest, 64)
	require.Equal(t, digest, HashToken("reset-token"))
	require.NotEqual(t, digest, HashToken("other-token"))
}
