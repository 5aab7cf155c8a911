// Package cryptoutil holds the primitives shared by the vault, the transfer
// endpoint and the flash agent: the authenticated-encryption wire codec, the
// session-key wrapping, token generation and buffer zeroization.
//
// The wire codec frames every encrypted blob, at rest and in flight, as
//
//	[nonce:12][tag:16][ciphertext:N]
//
// so one parser serves both the master-key and the session-key paths.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"

	"github.com/pkg/errors"
)

const (
	// NonceSize is the AES-GCM nonce length used on the wire
	NonceSize = 12
	// TagSize is the AES-GCM authentication tag length used on the wire
	TagSize = 16
	// HeaderSize is the fixed prefix before the ciphertext
	HeaderSize = NonceSize + TagSize
	// KeySize is the AES-256 key length shared by master and session keys
	KeySize = 32
)

// ErrIntegrity indicates the blob failed authentication or is malformed.
// No plaintext is ever returned alongside it.
var ErrIntegrity = errors.New("cryptoutil: blob failed authentication")

// ErrKeySize indicates a key of the wrong length was supplied
var ErrKeySize = errors.New("cryptoutil: key must be 32 bytes")

// Seal encrypts plaintext under key with a freshly sampled nonce and returns
// the framed blob. The plaintext is not consumed; the caller keeps ownership.
func Seal(key, plaintext []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.Wrap(err, "sampling nonce")
	}

	// gcm output is ciphertext||tag, the wire wants nonce||tag||ciphertext
	sealed := aead.Seal(nil, nonce, plaintext, nil)
	ct, tag := sealed[:len(sealed)-TagSize], sealed[len(sealed)-TagSize:]

	blob := make([]byte, 0, HeaderSize+len(ct))
	blob = append(blob, nonce...)
	blob = append(blob, tag...)
	blob = append(blob, ct...)
	Zeroize(sealed)
	return blob, nil
}

// Open authenticates and decrypts a framed blob. On any failure ErrIntegrity
// is returned and no partial plaintext escapes. Scratch buffers used to
// reassemble the ciphertext are zeroized on all paths.
func Open(key, blob []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	// a header alone carries no plaintext length, reject it with the rest
	if len(blob) <= HeaderSize {
		return nil, ErrIntegrity
	}

	nonce := blob[:NonceSize]
	tag := blob[NonceSize:HeaderSize]
	ct := blob[HeaderSize:]

	scratch := make([]byte, 0, len(ct)+TagSize)
	scratch = append(scratch, ct...)
	scratch = append(scratch, tag...)
	defer Zeroize(scratch)

	plaintext, err := aead.Open(nil, nonce, scratch, nil)
	if err != nil {
		return nil, ErrIntegrity
	}
	return plaintext, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "creating cipher")
	}
	return cipher.NewGCM(block)
}

// NewKey samples a fresh 256-bit key from the system CSPRNG
func NewKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, errors.Wrap(err, "sampling key")
	}
	return key, nil
}
