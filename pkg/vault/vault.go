// Package vault stores per-device-type firmware encrypted at rest under a
// long-lived master key and decrypts artifacts on demand into transient
// memory. Plaintext never touches stable storage.
package vault

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/flashguard/flashguard/config"
	"github.com/flashguard/flashguard/pkg/cryptoutil"
	log "github.com/sirupsen/logrus"
)

// VaultInterface defines the firmware vault contract
type VaultInterface interface {
	RequiredArtifacts(deviceType string) ([]string, error)
	AllPresent(deviceType string) (bool, error)
	OpenPlaintext(name string) (*cryptoutil.Secret, error)
	DeviceType(name string) (DeviceType, error)
}

// Vault is the production VaultInterface implementation backed by one
// storage directory of `<name>.enc` files
type Vault struct {
	storagePath string
	masterKey   []byte
	log         *log.Entry
}

// NewVault builds a vault from configuration. Without a configured master
// key it refuses to operate unless dev mode is active, in which case an
// ephemeral key is generated; artifacts sealed under it do not survive the
// process.
func NewVault(cfg *config.FlashConfig, logEntry *log.Entry) (*Vault, error) {
	key := cfg.MasterKey
	if len(key) == 0 {
		if !cfg.DevMode {
			return nil, &MasterKeyMissingError{}
		}
		generated, err := cryptoutil.NewKey()
		if err != nil {
			return nil, err
		}
		key = generated
		logEntry.Warn("vault running with an ephemeral dev-mode master key")
	}
	return &Vault{
		storagePath: cfg.StoragePath,
		masterKey:   key,
		log:         logEntry.WithField("component", "vault"),
	}, nil
}

// DeviceType resolves a device family from the closed table
func (v *Vault) DeviceType(name string) (DeviceType, error) {
	return GetDeviceType(name)
}

// RequiredArtifacts returns the ordered manifest for a device type
func (v *Vault) RequiredArtifacts(deviceType string) ([]string, error) {
	dt, err := GetDeviceType(deviceType)
	if err != nil {
		return nil, err
	}
	manifest := make([]string, len(dt.FirmwareFiles))
	copy(manifest, dt.FirmwareFiles)
	return manifest, nil
}

// AllPresent reports whether every ciphertext file of the device type
// exists in storage
func (v *Vault) AllPresent(deviceType string) (bool, error) {
	manifest, err := v.RequiredArtifacts(deviceType)
	if err != nil {
		return false, err
	}
	for _, name := range manifest {
		if _, err := os.Stat(v.artifactPath(name)); err != nil {
			return false, nil
		}
	}
	return true, nil
}

// OpenPlaintext reads an artifact's ciphertext file and authenticates and
// decrypts it under the master key. The returned Secret is owned by the
// caller, including the Close call. On authentication failure nothing is
// surfaced and an IntegrityError is returned.
func (v *Vault) OpenPlaintext(name string) (*cryptoutil.Secret, error) {
	blob, err := os.ReadFile(v.artifactPath(name))
	if err != nil {
		return nil, &ArtifactNotFoundError{Name: name}
	}
	defer cryptoutil.Zeroize(blob)

	plaintext, err := cryptoutil.Open(v.masterKey, blob)
	if err != nil {
		v.log.WithField("artifact", name).Error("artifact failed authentication")
		return nil, &IntegrityError{Name: name}
	}
	return cryptoutil.NewSecret(plaintext), nil
}

// SealArtifact encrypts plaintext under the master key and writes
// `<name>.enc` to storage. Used by the operator seeding tool, never by the
// request path. The caller keeps ownership of the plaintext buffer.
func (v *Vault) SealArtifact(name string, plaintext []byte) error {
	blob, err := cryptoutil.Seal(v.masterKey, plaintext)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(v.storagePath, 0o700); err != nil {
		return err
	}
	return os.WriteFile(v.artifactPath(name), blob, 0o600)
}

func (v *Vault) artifactPath(name string) string {
	// artifact names are logical, never paths
	clean := filepath.Base(strings.TrimSpace(name))
	return filepath.Join(v.storagePath, clean+".enc")
}
