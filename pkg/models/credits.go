package models

import (
	"gorm.io/gorm"
)

// CreditTransaction is the durable ledger row written when a session
// completes. The fingerprint is stored hashed, never raw.
type CreditTransaction struct {
	gorm.Model
	SessionID  string `gorm:"index" json:"SessionID"`
	HWIDHash   string `json:"HWIDHash"`
	DeviceType string `json:"DeviceType"`
	Amount     int    `json:"Amount"`
	Charged    bool   `json:"Charged"`
	Reason     string `json:"Reason"`
}
