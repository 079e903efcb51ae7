package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewOneTimeCredential(t *testing.T) {
	cred, err := NewOneTimeCredential()
	require.NoError(t, err)

	require.Len(t, cred.Plaintext, 24)
	require.NotEqual(t, cred.Plaintext, cred.Hash)
	require.True(t, strings.HasPrefix(cred.Hash, "$2a$"))
	require.True(t, CheckPassword(cred.Hash, cred.Plaintext))
	require.False(t, CheckPassword(cred.Hash, cred.Plaintext+"x"))
}

func TestCredentialsAreUnique(t *testing.T) {
	a, err := NewOneTimeCredential()
	require.NoError(t, err)
	b, err := NewOneTimeCredential()
	require.NoError(t, err)

	require.NotEqual(t, a.Plaintext, b.Plaintext)
	require.NotEqual(t, a.Hash, b.Hash)
}

func TestHashPasswordSalts(t *testing.T) {
	a, err := HashPassword("same")
	require.NoError(t, err)
	b, err := HashPassword("same")
	require.NoError(t, err)

	require.NotEqual(t, a, b)
}
