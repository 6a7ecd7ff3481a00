package models

import (
	"time"
)

// Ledger entry types. Every V-Coin movement leaves one of these rows behind.
const (
	EntryTypeTipCredit  = "TIP_CREDIT"
	EntryTypeHireDebit  = "HIRE_DEBIT"
	EntryTypeHireCredit = "HIRE_CREDIT"
)

type LedgerEntry struct {
	ID          int       `json:"id" db:"id"`
	ReferenceID string    `json:"reference_id" db:"reference_id"`
	EntryType   string    `json:"entry_type" db:"entry_type"`
	VideoID     string    `json:"video_id,omitempty" db:"video_id"`
	UserID      string    `json:"user_id" db:"user_id"`
	Amount      int64     `json:"amount" db:"amount"`
	Balance     int64     `json:"balance" db:"balance"` // balance after the movement
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
