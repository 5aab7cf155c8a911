package vault

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/flashguard/flashguard/config"
	"github.com/flashguard/flashguard/pkg/cryptoutil"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVault(t *testing.T) *Vault {
	t.Helper()
	key, err := cryptoutil.NewKey()
	require.NoError(t, err)
	cfg := &config.FlashConfig{
		StoragePath: t.TempDir(),
		MasterKey:   key,
	}
	v, err := NewVault(cfg, log.NewEntry(log.StandardLogger()))
	require.NoError(t, err)
	return v
}

func TestNewVaultRefusesWithoutMasterKey(t *testing.T) {
	cfg := &config.FlashConfig{StoragePath: t.TempDir()}
	_, err := NewVault(cfg, log.NewEntry(log.StandardLogger()))
	var missing *MasterKeyMissingError
	assert.ErrorAs(t, err, &missing)
}

func TestNewVaultDevModeGeneratesEphemeralKey(t *testing.T) {
	cfg := &config.FlashConfig{StoragePath: t.TempDir(), DevMode: true}
	v, err := NewVault(cfg, log.NewEntry(log.StandardLogger()))
	require.NoError(t, err)
	require.NotNil(t, v)

	require.NoError(t, v.SealArtifact("system.bin", []byte("dev firmware")))
	plaintext, err := v.OpenPlaintext("system.bin")
	require.NoError(t, err)
	defer plaintext.Close()
	assert.Equal(t, []byte("dev firmware"), plaintext.Bytes())
}

func TestSealOpenRoundTrip(t *testing.T) {
	v := testVault(t)
	firmware := []byte("the firmware payload")

	require.NoError(t, v.SealArtifact("system.bin", firmware))

	// nothing on disk equals the plaintext
	onDisk, err := os.ReadFile(filepath.Join(v.storagePath, "system.bin.enc"))
	require.NoError(t, err)
	assert.NotContains(t, string(onDisk), string(firmware))
	assert.Equal(t, cryptoutil.HeaderSize+len(firmware), len(onDisk))

	plaintext, err := v.OpenPlaintext("system.bin")
	require.NoError(t, err)
	defer plaintext.Close()
	assert.Equal(t, firmware, plaintext.Bytes())
}

func TestOpenPlaintextMissingArtifact(t *testing.T) {
	v := testVault(t)
	_, err := v.OpenPlaintext("nope.bin")
	var notFound *ArtifactNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "nope.bin", notFound.Name)
}

func TestOpenPlaintextTamperedArtifact(t *testing.T) {
	v := testVault(t)
	require.NoError(t, v.SealArtifact("system.bin", []byte("authentic")))

	path := filepath.Join(v.storagePath, "system.bin.enc")
	blob, err := os.ReadFile(path)
	require.NoError(t, err)
	blob[len(blob)-1] ^= 0x01
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	_, err = v.OpenPlaintext("system.bin")
	var integrity *IntegrityError
	assert.ErrorAs(t, err, &integrity)
}

func TestOpenPlaintextHeaderOnlyFile(t *testing.T) {
	v := testVault(t)
	path := filepath.Join(v.storagePath, "stub.enc")
	require.NoError(t, os.WriteFile(path, make([]byte, cryptoutil.HeaderSize), 0o600))

	_, err := v.OpenPlaintext("stub")
	var integrity *IntegrityError
	assert.ErrorAs(t, err, &integrity)
}

func TestRequiredArtifacts(t *testing.T) {
	v := testVault(t)

	manifest, err := v.RequiredArtifacts("MTK6580")
	require.NoError(t, err)
	assert.Equal(t, []string{"system.bin", "usbloader-5577.bin"}, manifest)

	_, err = v.RequiredArtifacts("NOPE9999")
	var unknown *UnknownDeviceTypeError
	assert.ErrorAs(t, err, &unknown)
}

func TestAllPresent(t *testing.T) {
	v := testVault(t)

	present, err := v.AllPresent("MTK6580")
	require.NoError(t, err)
	assert.False(t, present)

	require.NoError(t, v.SealArtifact("system.bin", []byte("a")))
	present, err = v.AllPresent("MTK6580")
	require.NoError(t, err)
	assert.False(t, present)

	require.NoError(t, v.SealArtifact("usbloader-5577.bin", []byte("b")))
	present, err = v.AllPresent("MTK6580")
	require.NoError(t, err)
	assert.True(t, present)
}

func TestArtifactPathIgnoresTraversal(t *testing.T) {
	v := testVault(t)
	require.NoError(t, v.SealArtifact("../escape", []byte("contained")))

	entries, err := os.ReadDir(v.storagePath)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "escape.enc", entries[0].Name())
}

func TestDeviceTypeTable(t *testing.T) {
	dt, err := GetDeviceType("MTK6580")
	require.NoError(t, err)
	assert.Equal(t, 1, dt.CreditCost)
	assert.Equal(t, "mtkflash", dt.Tool)
	assert.Contains(t, dt.ArgumentTemplate, "{system.bin}")

	assert.Len(t, DeviceTypeNames(), 2)
}
