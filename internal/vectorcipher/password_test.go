package vectorcipher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	t.Run("rejects empty password", func(t *testing.T) {
		_, err := HashPassword("", nil)
		require.Error(t, err)
	})

	t.Run("encodes as salt colon hash", func(t *testing.T) {
		encoded, err := HashPassword("correct horse", nil)
		require.NoError(t, err)
		parts := strings.Split(encoded, ":")
		require.Len(t, parts, 2)
		assert.Len(t, parts[0], saltLength*2)
		assert.Len(t, parts[1], derivedKeyBytes*2)
	})

	t.Run("same password different salts differ", func(t *testing.T) {
		first, err := HashPassword("secret", nil)
		require.NoError(t, err)
		second, err := HashPassword("secret", nil)
		require.NoError(t, err)
		assert.NotEqual(t, first, second)
	})

	t.Run("supplied salt is deterministic", func(t *testing.T) {
		salt := []byte("0123456789abcdef")
		first, err := HashPassword("secret", salt)
		require.NoError(t, err)
		second, err := HashPassword("secret", salt)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}

func TestVerifyPassword(t *testing.T) {
	encoded, err := HashPassword("open sesame", nil)
	require.NoError(t, err)

	assert.True(t, VerifyPassword("open sesame", encoded))
	assert.False(t, VerifyPassword("open sesam", encoded))
	assert.False(t, VerifyPassword("open sesame", "not-an-encoded-hash"))
	assert.False(t, VerifyPassword("open sesame", "zz:zz"))
}

func TestSignVerify(t *testing.T) {
	secret := []byte("signing-secret")
	data := []byte("token-id-payload")

	tag := Sign(data, secret)
	assert.True(t, VerifySignature(data, secret, tag))
	assert.False(t, VerifySignature([]byte("tampered"), secret, tag))
	assert.False(t, VerifySignature(data, []byte("other-secret"), tag))
	assert.False(t, VerifySignature(data, secret, "not-hex"))
}
