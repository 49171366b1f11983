package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionCompleted is published after a deposit or transfer commits.
// ToAccount is empty for deposits and external transfers.
type TransactionCompleted struct {
	TransactionID string          `json:"transaction_id"`
	FromAccount   string          `json:"from_account"`
	ToAccount     string          `json:"to_account"`
	Amount        decimal.Decimal `json:"amount"`
	OccurredAt    time.Time       `json:"occurred_at"`
}
