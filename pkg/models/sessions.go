package models

import (
	"time"

	"github.com/flashguard/flashguard/pkg/cryptoutil"
)

// Session statuses. Completed, Failed and Burned are terminal; a terminal
// session never becomes Active again.
const (
	SessionStatusActive    = "Active"
	SessionStatusCompleted = "Completed"
	SessionStatusFailed    = "Failed"
	SessionStatusExpired   = "Expired"
	SessionStatusBurned    = "Burned"
)

// Session is a single-use, time-bounded, hardware-bound authorization to
// perform one firmware flash.
type Session struct {
	SessionID     string
	HWID          string
	DeviceType    string
	Key           []byte
	WrappedKey    []byte
	CreatedAt     time.Time
	ExpiresAt     time.Time
	FirmwareFiles []string
	CreditCost    int
	Status        string
	ErrorMessage  string
	BurnedAt      time.Time
}

// IsTerminal reports whether the session reached a final status
func (s *Session) IsTerminal() bool {
	switch s.Status {
	case SessionStatusCompleted, SessionStatusFailed, SessionStatusBurned:
		return true
	}
	return false
}

// IsUsable reports whether artifact downloads are still permitted
func (s *Session) IsUsable(now time.Time) bool {
	return s.Status == SessionStatusActive && !now.After(s.ExpiresAt)
}

// HasArtifact reports whether name is part of the session's manifest
func (s *Session) HasArtifact(name string) bool {
	for _, f := range s.FirmwareFiles {
		if f == name {
			return true
		}
	}
	return false
}

// ZeroizeKey destroys the raw session key bytes. The wrapped form stays,
// it is safe to copy.
func (s *Session) ZeroizeKey() {
	cryptoutil.Zeroize(s.Key)
	s.Key = nil
}
