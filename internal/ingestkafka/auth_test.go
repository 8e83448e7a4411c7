package ingestkafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenAuthenticator_RejectsEmptyToken(t *testing.T) {
	_, err := NewTokenAuthenticator("")
	require.ErrorIs(t, err, ErrTokenEmpty)
}

func TestTokenAuthenticator_AcceptsConfiguredToken(t *testing.T) {
	auth, err := NewTokenAuthenticator("s3cr3t-token")
	require.NoError(t, err)

	assert.True(t, auth.Authenticate("s3cr3t-token"))
}

func TestTokenAuthenticator_RejectsWrongToken(t *testing.T) {
	auth, err := NewTokenAuthenticator("s3cr3t-token")
	require.NoError(t, err)

	assert.False(t, auth.Authenticate("wrong-token"))
	assert.False(t, auth.Authenticate(""))
}

func TestTokenAuthenticator_HandlesTokensLongerThanBcryptLimit(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}

	auth, err := NewTokenAuthenticator(string(long))
	require.NoError(t, err)

	assert.True(t, auth.Authenticate(string(long)))
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "****", MaskToken("short"))
	assert.Equal(t, "abcd********wxyz", MaskToken("abcd12345678wxyz"))
}
