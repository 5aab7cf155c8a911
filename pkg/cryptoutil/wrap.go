package cryptoutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"

	"github.com/pkg/errors"
)

// ErrWrap indicates an asymmetric wrap or unwrap failed
var ErrWrap = errors.New("cryptoutil: session key wrap failed")

const publicKeyPEMType = "PUBLIC KEY"

// WrapKey enciphers a session key under the client's public key using
// RSA-OAEP. SHA-256 drives both the mask generation and the (empty) label,
// so both halves of the protocol must agree on it.
func WrapKey(pub *rsa.PublicKey, key []byte) ([]byte, error) {
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
	if err != nil {
		return nil, ErrWrap
	}
	return wrapped, nil
}

// UnwrapKey recovers a session key wrapped by WrapKey
func UnwrapKey(priv *rsa.PrivateKey, wrapped []byte) ([]byte, error) {
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrapped, nil)
	if err != nil {
		return nil, ErrWrap
	}
	return key, nil
}

// EncodePublicKeyPEM serializes a public key in the portable PKIX PEM form
// sent on every session create
func EncodePublicKeyPEM(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", errors.Wrap(err, "marshaling public key")
	}
	block := &pem.Block{Type: publicKeyPEMType, Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}

// ParsePublicKeyPEM parses the PEM produced by EncodePublicKeyPEM
func ParsePublicKeyPEM(pemText string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil || block.Type != publicKeyPEMType {
		return nil, errors.New("cryptoutil: not a public key PEM")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "parsing public key")
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("cryptoutil: public key is not RSA")
	}
	return pub, nil
}
