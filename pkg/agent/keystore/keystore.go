// Package keystore owns the client's long-lived asymmetric keypair. The
// private half only ever touches disk as ciphertext protected by a key
// derived from the machine and user identity; in memory it lives inside
// the Custodian alone.
package keystore

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"os"
	"path/filepath"

	"github.com/flashguard/flashguard/pkg/cryptoutil"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrUnwrap indicates a wrapped session key could not be recovered
var ErrUnwrap = errors.New("keystore: session key unwrap failed")

// Custodian holds the client keypair and performs session-key unwrapping
type Custodian struct {
	path string
	bits int
	key  *rsa.PrivateKey
	log  *log.Entry
}

// NewCustodian creates a Custodian persisting its protected blob at path
func NewCustodian(path string, bits int, logEntry *log.Entry) *Custodian {
	return &Custodian{
		path: path,
		bits: bits,
		log:  logEntry.WithField("component", "keystore"),
	}
}

// Ensure loads the stored keypair or generates and persists a fresh one.
// Idempotent; later calls are no-ops once a key is held.
func (c *Custodian) Ensure() error {
	if c.key != nil {
		return nil
	}

	blob, err := os.ReadFile(c.path)
	if err == nil {
		key, err := openPrivateKey(blob)
		if err != nil {
			return errors.Wrap(err, "opening stored client key")
		}
		c.key = key
		return nil
	}
	if !os.IsNotExist(err) {
		return errors.Wrap(err, "reading stored client key")
	}

	c.log.WithField("bits", c.bits).Info("generating client keypair")
	key, err := rsa.GenerateKey(rand.Reader, c.bits)
	if err != nil {
		return errors.Wrap(err, "generating client keypair")
	}

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return errors.Wrap(err, "exporting private key")
	}
	sealed, err := sealPrivateKey(der)
	cryptoutil.Zeroize(der)
	if err != nil {
		return errors.Wrap(err, "protecting private key")
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return errors.Wrap(err, "creating key directory")
	}
	if err := os.WriteFile(c.path, sealed, 0o600); err != nil {
		return errors.Wrap(err, "persisting protected key")
	}

	c.key = key
	return nil
}

// PublicPEM serializes the public half in the portable PKIX PEM encoding
func (c *Custodian) PublicPEM() (string, error) {
	if c.key == nil {
		return "", errors.New("keystore: no keypair loaded")
	}
	return cryptoutil.EncodePublicKeyPEM(&c.key.PublicKey)
}

// Unwrap recovers a session key wrapped under the client public key. The
// returned Secret is the caller's to zeroize.
func (c *Custodian) Unwrap(wrapped []byte) (*cryptoutil.Secret, error) {
	if c.key == nil {
		return nil, errors.New("keystore: no keypair loaded")
	}
	key, err := cryptoutil.UnwrapKey(c.key, wrapped)
	if err != nil {
		return nil, ErrUnwrap
	}
	return cryptoutil.NewSecret(key), nil
}
