package services

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/flashguard/flashguard/pkg/db"
	"github.com/flashguard/flashguard/pkg/models"
	log "github.com/sirupsen/logrus"
)

// AccountingRecorder receives the burn signal when a session completes
type AccountingRecorder interface {
	RecordCompletion(session *models.Session, charged bool, reason string) error
}

// LedgerRecorder is the production recorder, it writes one
// CreditTransaction row per completed session
type LedgerRecorder struct {
	log *log.Entry
}

// NewLedgerRecorder creates a ledger-backed AccountingRecorder
func NewLedgerRecorder(logEntry *log.Entry) *LedgerRecorder {
	return &LedgerRecorder{log: logEntry.WithField("service", "accounting")}
}

// RecordCompletion persists the credit outcome of a burned session
func (r *LedgerRecorder) RecordCompletion(session *models.Session, charged bool, reason string) error {
	amount := 0
	if charged {
		amount = session.CreditCost
	}
	tx := models.CreditTransaction{
		SessionID:  session.SessionID,
		HWIDHash:   hashHWID(session.HWID),
		DeviceType: session.DeviceType,
		Amount:     amount,
		Charged:    charged,
		Reason:     reason,
	}
	if result := db.DB.Create(&tx); result.Error != nil {
		return result.Error
	}
	r.log.WithFields(log.Fields{
		"sessionID": session.SessionID,
		"charged":   charged,
		"amount":    amount,
	}).Info("credit transaction recorded")
	return nil
}

// NopRecorder logs the burn signal without persisting it, used in dev mode
// and tests
type NopRecorder struct {
	log *log.Entry
}

// NewNopRecorder creates a log-only AccountingRecorder
func NewNopRecorder(logEntry *log.Entry) *NopRecorder {
	return &NopRecorder{log: logEntry.WithField("service", "accounting")}
}

// RecordCompletion logs the credit outcome
func (r *NopRecorder) RecordCompletion(session *models.Session, charged bool, reason string) error {
	r.log.WithFields(log.Fields{
		"sessionID": session.SessionID,
		"charged":   charged,
	}).Info("credit transaction (not persisted)")
	return nil
}

func hashHWID(hwid string) string {
	sum := sha256.Sum256([]byte(hwid))
	return hex.EncodeToString(sum[:])
}
