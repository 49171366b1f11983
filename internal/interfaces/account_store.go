package interfaces

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/novabank/novabank/internal/models"
)

// AccountFilter narrows admin account listings.
type AccountFilter struct {
	BalanceBelow *decimal.Decimal // only accounts with balance < this value
	Search       string           // substring match over name and email
}

// AccountStore is the only path to read account state. Balances are written
// exclusively through LedgerStore mutations.
type AccountStore interface {
	CreateAccount(ctx context.Context, account *models.Account) error
	AccountByID(ctx context.Context, id string) (models.Account, error)
	AccountByEmail(ctx context.Context, email string) (models.Account, error)
	ListAccounts(ctx context.Context, filter AccountFilter) ([]models.Account, error)
}
