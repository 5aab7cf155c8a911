package keystore

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"io"
	"os"
	"os/user"
	"strings"

	"github.com/flashguard/flashguard/pkg/cryptoutil"
	"github.com/pkg/errors"
	"golang.org/x/crypto/scrypt"
)

// The protected blob is [salt:16][nonce:12][tag:16][ciphertext]. The salt
// feeds a scrypt derivation over the machine and user identity, standing
// in for OS user-scoped data protection: the blob only opens on the same
// host for the same user.
const saltSize = 16

const machineIDPath = "/etc/machine-id"

func sealPrivateKey(der []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, errors.Wrap(err, "sampling salt")
	}

	kek, err := protectionKey(salt)
	if err != nil {
		return nil, err
	}
	defer cryptoutil.Zeroize(kek)

	framed, err := cryptoutil.Seal(kek, der)
	if err != nil {
		return nil, err
	}

	blob := make([]byte, 0, saltSize+len(framed))
	blob = append(blob, salt...)
	blob = append(blob, framed...)
	return blob, nil
}

func openPrivateKey(blob []byte) (*rsa.PrivateKey, error) {
	if len(blob) <= saltSize+cryptoutil.HeaderSize {
		return nil, errors.New("keystore: protected blob is truncated")
	}

	kek, err := protectionKey(blob[:saltSize])
	if err != nil {
		return nil, err
	}
	defer cryptoutil.Zeroize(kek)

	der, err := cryptoutil.Open(kek, blob[saltSize:])
	if err != nil {
		return nil, errors.Wrap(err, "unprotecting private key")
	}
	defer cryptoutil.Zeroize(der)

	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, errors.Wrap(err, "parsing private key")
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("keystore: stored key is not RSA")
	}
	return key, nil
}

func protectionKey(salt []byte) ([]byte, error) {
	machineID, err := os.ReadFile(machineIDPath)
	if err != nil {
		// containers and stripped-down hosts may lack a machine id;
		// the hostname is the next most stable thing available
		hostname, _ := os.Hostname()
		machineID = []byte(hostname)
	}

	username := ""
	if u, err := user.Current(); err == nil {
		username = u.Uid
	}

	identity := strings.TrimSpace(string(machineID)) + ":" + username
	key, err := scrypt.Key([]byte(identity), salt, 1<<15, 8, 1, cryptoutil.KeySize)
	if err != nil {
		return nil, errors.Wrap(err, "deriving protection key")
	}
	return key, nil
}
