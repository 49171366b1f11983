package interfaces

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/novabank/novabank/internal/models"
)

// SortField selects the column entry listings are ordered by.
type SortField string

const (
	SortByDate   SortField = "date"
	SortByAmount SortField = "amount"
)

// EntryQuery describes filters, ordering and paging for entry listings.
// Zero values mean "no filter".
type EntryQuery struct {
	Direction models.Direction // empty = both directions
	From      *time.Time
	To        *time.Time
	Search    string // substring match over the note
	SortBy    SortField
	Ascending bool
	Offset    int
	Limit     int
}

// LedgerStore persists ledger entries and applies the balance mutations that
// go with them. ApplyDeposit and ApplyTransfer are atomic units: the balance
// update(s) and entry insert(s) commit together or not at all, and every
// debit is guarded so the balance can never go negative.
type LedgerStore interface {
	// ApplyDeposit credits accountID by amount and appends entry.
	ApplyDeposit(ctx context.Context, accountID string, amount decimal.Decimal, entry models.LedgerEntry) error

	// ApplyTransfer debits senderID by amount and appends debit. When
	// receiverID is non-empty the same amount is credited to it and credit is
	// appended; for an external transfer receiverID is empty and credit nil.
	// Returns models.ErrInsufficientFunds without mutating anything when the
	// sender's balance is below amount.
	ApplyTransfer(ctx context.Context, senderID, receiverID string, amount decimal.Decimal, debit models.LedgerEntry, credit *models.LedgerEntry) error

	// QueryEntries returns one page of accountID's entries plus the total
	// count matching the filters.
	QueryEntries(ctx context.Context, accountID string, q EntryQuery) ([]models.LedgerEntry, int, error)

	// AllEntries returns every entry joined with its account name, for export.
	AllEntries(ctx context.Context) ([]models.EntryExport, error)
}
