// Package hwid derives the stable hardware fingerprint a flash session is
// bound to. The probe is read-only and its result is cached for the life
// of the process.
package hwid

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"os/user"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Placeholder constants substituted when an attribute cannot be probed, so
// the fingerprint stays deterministic for the host
const (
	UnknownCPU      = "UNKNOWN_CPU"
	UnknownBoard    = "UNKNOWN_BOARD"
	UnknownFirmware = "UNKNOWN_FIRMWARE"
)

// delimiter is unlikely to occur inside DMI attribute values
const delimiter = "|"

// DMI attribute locations on Linux hosts
const (
	productUUIDPath = "/sys/class/dmi/id/product_uuid"
	boardSerialPath = "/sys/class/dmi/id/board_serial"
	biosVersionPath = "/sys/class/dmi/id/bios_version"
)

// Prober computes the hardware fingerprint from host attributes
type Prober struct {
	cpuID          func() (string, error)
	boardSerial    func() (string, error)
	firmwareSerial func() (string, error)
	log            *log.Entry

	once   sync.Once
	cached string
}

// NewProber creates a Prober reading the host DMI attributes
func NewProber(logEntry *log.Entry) *Prober {
	return &Prober{
		cpuID:          func() (string, error) { return readAttribute(productUUIDPath) },
		boardSerial:    func() (string, error) { return readAttribute(boardSerialPath) },
		firmwareSerial: func() (string, error) { return readAttribute(biosVersionPath) },
		log:            logEntry.WithField("component", "hwid"),
	}
}

// NewProberWithSources creates a Prober with injected attribute readers,
// used by tests
func NewProberWithSources(logEntry *log.Entry, cpu, board, firmware func() (string, error)) *Prober {
	return &Prober{
		cpuID:          cpu,
		boardSerial:    board,
		firmwareSerial: firmware,
		log:            logEntry.WithField("component", "hwid"),
	}
}

// Fingerprint returns the uppercase hex SHA-256 over the joined host
// attributes. Attributes that cannot be read degrade to their placeholder
// constant; if every attribute fails, a weaker hostname+username fallback
// is used and a warning is logged.
func (p *Prober) Fingerprint() string {
	p.once.Do(func() {
		cpu, errCPU := p.cpuID()
		board, errBoard := p.boardSerial()
		firmware, errFirmware := p.firmwareSerial()

		if errCPU != nil {
			cpu = UnknownCPU
		}
		if errBoard != nil {
			board = UnknownBoard
		}
		if errFirmware != nil {
			firmware = UnknownFirmware
		}

		source := strings.Join([]string{cpu, board, firmware}, delimiter)
		if errCPU != nil && errBoard != nil && errFirmware != nil {
			p.log.Warn("no hardware attributes available, falling back to host and user identity")
			source = fallbackIdentity()
		}

		sum := sha256.Sum256([]byte(source))
		p.cached = strings.ToUpper(hex.EncodeToString(sum[:]))
	})
	return p.cached
}

func readAttribute(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	value := strings.TrimSpace(string(raw))
	if value == "" {
		return "", os.ErrNotExist
	}
	return value, nil
}

func fallbackIdentity() string {
	hostname, _ := os.Hostname()
	username := ""
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	return hostname + delimiter + username
}
