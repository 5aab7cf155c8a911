package hwid

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func source(value string, err error) func() (string, error) {
	return func() (string, error) { return value, err }
}

func testLog() *log.Entry {
	return log.NewEntry(log.StandardLogger())
}

func TestFingerprintIsDeterministicHash(t *testing.T) {
	p := NewProberWithSources(testLog(),
		source("cpu1", nil),
		source("mb1", nil),
		source("bios1", nil),
	)

	sum := sha256.Sum256([]byte("cpu1|mb1|bios1"))
	want := strings.ToUpper(hex.EncodeToString(sum[:]))
	assert.Equal(t, want, p.Fingerprint())
}

func TestFingerprintSubstitutesPlaceholders(t *testing.T) {
	p := NewProberWithSources(testLog(),
		source("cpu1", nil),
		source("", os.ErrNotExist),
		source("bios1", nil),
	)

	sum := sha256.Sum256([]byte("cpu1|" + UnknownBoard + "|bios1"))
	want := strings.ToUpper(hex.EncodeToString(sum[:]))
	assert.Equal(t, want, p.Fingerprint())
}

func TestFingerprintFallsBackToHostIdentity(t *testing.T) {
	p := NewProberWithSources(testLog(),
		source("", os.ErrNotExist),
		source("", os.ErrNotExist),
		source("", os.ErrNotExist),
	)

	fingerprint := p.Fingerprint()
	require.Len(t, fingerprint, 64)
	assert.Equal(t, strings.ToUpper(fingerprint), fingerprint)

	// well-defined even with no attributes at all
	sum := sha256.Sum256([]byte(fallbackIdentity()))
	assert.Equal(t, strings.ToUpper(hex.EncodeToString(sum[:])), fingerprint)
}

func TestFingerprintIsCachedForProcessLifetime(t *testing.T) {
	calls := 0
	p := NewProberWithSources(testLog(),
		func() (string, error) { calls++; return "cpu1", nil },
		source("mb1", nil),
		source("bios1", nil),
	)

	first := p.Fingerprint()
	second := p.Fingerprint()
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}
