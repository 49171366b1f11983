package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction tags a ledger entry as money entering or leaving the account.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// LedgerEntry is one immutable record of a balance change. Entries are
// append-only: once written they are never updated or deleted.
type LedgerEntry struct {
	ID        string          `json:"id"`
	AccountID string          `json:"accountId"`
	Direction Direction       `json:"type"`
	Amount    decimal.Decimal `json:"amount"` // always positive; Direction carries the sign
	Note      string          `json:"note"`
	CreatedAt time.Time       `json:"createdAt"`
}

// EntryExport pairs a ledger entry with its account's display name, the shape
// the CSV export needs.
type EntryExport struct {
	LedgerEntry
	AccountName string `json:"user"`
}
