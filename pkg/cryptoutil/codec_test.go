package cryptoutil

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	key, err := NewKey()
	require.NoError(t, err)

	plaintext := []byte("firmware bytes that must round-trip exactly")
	blob, err := Seal(key, plaintext)
	require.NoError(t, err)

	assert.Equal(t, HeaderSize+len(plaintext), len(blob))

	opened, err := Open(key, blob)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestSealUsesFreshNonces(t *testing.T) {
	key, err := NewKey()
	require.NoError(t, err)

	plaintext := []byte("same plaintext")
	first, err := Seal(key, plaintext)
	require.NoError(t, err)
	second, err := Seal(key, plaintext)
	require.NoError(t, err)

	assert.NotEqual(t, first[:NonceSize], second[:NonceSize])
	assert.NotEqual(t, first, second)
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	key, err := NewKey()
	require.NoError(t, err)

	blob, err := Seal(key, []byte("protected"))
	require.NoError(t, err)

	blob[HeaderSize] ^= 0x01
	opened, err := Open(key, blob)
	assert.ErrorIs(t, err, ErrIntegrity)
	assert.Nil(t, opened)
}

func TestOpenRejectsWrongKey(t *testing.T) {
	key, err := NewKey()
	require.NoError(t, err)
	other, err := NewKey()
	require.NoError(t, err)

	blob, err := Seal(key, []byte("protected"))
	require.NoError(t, err)

	opened, err := Open(other, blob)
	assert.ErrorIs(t, err, ErrIntegrity)
	assert.Nil(t, opened)
}

func TestOpenRejectsHeaderOnlyBlob(t *testing.T) {
	key, err := NewKey()
	require.NoError(t, err)

	// exactly nonce+tag, no ciphertext and no implicit plaintext length
	blob := make([]byte, HeaderSize)
	opened, err := Open(key, blob)
	assert.ErrorIs(t, err, ErrIntegrity)
	assert.Nil(t, opened)
}

func TestSealRejectsShortKey(t *testing.T) {
	_, err := Seal([]byte("short"), []byte("data"))
	assert.ErrorIs(t, err, ErrKeySize)
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	key, err := NewKey()
	require.NoError(t, err)

	wrapped, err := WrapKey(&priv.PublicKey, key)
	require.NoError(t, err)
	assert.NotEqual(t, key, wrapped)

	unwrapped, err := UnwrapKey(priv, wrapped)
	require.NoError(t, err)
	assert.Equal(t, key, unwrapped)
}

func TestUnwrapRejectsWrongKeypair(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	key, err := NewKey()
	require.NoError(t, err)
	wrapped, err := WrapKey(&priv.PublicKey, key)
	require.NoError(t, err)

	_, err = UnwrapKey(other, wrapped)
	assert.ErrorIs(t, err, ErrWrap)
}

func TestPublicKeyPEMRoundTrip(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pemText, err := EncodePublicKeyPEM(&priv.PublicKey)
	require.NoError(t, err)
	assert.Contains(t, pemText, "BEGIN PUBLIC KEY")

	parsed, err := ParsePublicKeyPEM(pemText)
	require.NoError(t, err)
	assert.True(t, priv.PublicKey.Equal(parsed))
}

func TestParsePublicKeyPEMRejectsGarbage(t *testing.T) {
	_, err := ParsePublicKeyPEM("not a pem at all")
	assert.Error(t, err)
}

func TestNewTokenEntropyAndUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		token, err := NewToken()
		require.NoError(t, err)
		// 24 raw bytes encode to 32 url-safe characters
		assert.Len(t, token, 32)
		assert.False(t, seen[token], "token collision")
		seen[token] = true
	}
}

func TestZeroize(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	Zeroize(buf)
	assert.Equal(t, []byte{0, 0, 0, 0}, buf)
}

func TestSecretOwnsItsBuffer(t *testing.T) {
	raw := []byte("transient")
	backing := raw
	secret := NewSecret(raw)

	assert.Equal(t, []byte("transient"), secret.Bytes())
	assert.Equal(t, len("transient"), secret.Len())

	secret.Close()
	assert.Nil(t, secret.Bytes())
	assert.Zero(t, secret.Len())
	assert.True(t, bytes.Equal(backing, make([]byte, len(backing))), "backing buffer not zeroized")

	// double close is a no-op
	secret.Close()
}
