package ledger

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/novabank/novabank/internal/interfaces"
	"github.com/novabank/novabank/internal/models"
	"github.com/novabank/novabank/internal/models/events"
)

// PageSize is the fixed number of entries per history page.
const PageSize = 10

const topicTransactionCompleted = "transaction_completed"

// Ledger is the sole authority permitted to mutate account balances and the
// sole producer of ledger entries. It is stateless: all persisted state lives
// in the stores. Per-account mutexes serialize service-level access on top of
// the store's own transactional guards.
type Ledger struct {
	accounts interfaces.AccountStore
	entries  interfaces.LedgerStore
	events   interfaces.EventPublisher // optional

	muMap map[string]*sync.Mutex
	mapMu sync.Mutex // protects muMap itself
}

// New creates a Ledger. events may be nil; publishing is then skipped.
func New(accounts interfaces.AccountStore, entries interfaces.LedgerStore, events interfaces.EventPublisher) *Ledger {
	return &Ledger{
		accounts: accounts,
		entries:  entries,
		events:   events,
		muMap:    make(map[string]*sync.Mutex),
	}
}

func (l *Ledger) accountLock(accountID string) *sync.Mutex {
	l.mapMu.Lock()
	defer l.mapMu.Unlock()

	if _, exists := l.muMap[accountID]; !exists {
		l.muMap[accountID] = &sync.Mutex{}
	}
	return l.muMap[accountID]
}

// Deposit credits accountID by amount and appends one credit entry. The note
// defaults to "Deposit" when empty. Returns the created entry's id.
func (l *Ledger) Deposit(ctx context.Context, accountID string, amount decimal.Decimal, note string) (string, error) {
	if !amount.IsPositive() {
		return "", models.ErrInvalidAmount
	}

	mu := l.accountLock(accountID)
	mu.Lock()
	defer mu.Unlock()

	if _, err := l.accounts.AccountByID(ctx, accountID); err != nil {
		return "", err
	}

	if note == "" {
		note = "Deposit"
	}
	entry := models.LedgerEntry{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Direction: models.DirectionCredit,
		Amount:    amount,
		Note:      note,
		CreatedAt: time.Now().UTC(),
	}

	if err := l.entries.ApplyDeposit(ctx, accountID, amount, entry); err != nil {
		return "", err
	}

	l.publish(events.TransactionCompleted{
		TransactionID: entry.ID,
		ToAccount:     accountID,
		Amount:        amount,
		OccurredAt:    entry.CreatedAt,
	})
	return entry.ID, nil
}

// TransferResult reports what a transfer actually did. When the receiver did
// not resolve to a known account, Credited is false and ExternalReceiver
// echoes the identifier the caller supplied.
type TransferResult struct {
	DebitEntryID     string
	Credited         bool
	ReceiverName     string
	ExternalReceiver string
}

// Transfer debits senderID by amount and, when receiverID resolves to an
// existing account, credits it by the same amount. A receiver that is absent
// or unknown models money leaving the system: the sender is still debited and
// the operation succeeds with Credited=false. Both balance mutations and both
// entries are applied as a single atomic unit by the store.
func (l *Ledger) Transfer(ctx context.Context, senderID, receiverID string, amount decimal.Decimal, note string) (TransferResult, error) {
	var res TransferResult

	if !amount.IsPositive() {
		return res, models.ErrInvalidAmount
	}
	if receiverID != "" && receiverID == senderID {
		return res, models.ErrSameAccount
	}

	sender, err := l.accounts.AccountByID(ctx, senderID)
	if err != nil {
		return res, err
	}

	var receiver *models.Account
	if receiverID != "" {
		r, err := l.accounts.AccountByID(ctx, receiverID)
		switch {
		case err == nil:
			receiver = &r
		case errors.Is(err, models.ErrAccountNotFound):
			// Unresolved receiver: proceed as an external transfer.
		default:
			return res, err
		}
	}

	l.lockPair(senderID, receiver)
	defer l.unlockPair(senderID, receiver)

	// Pre-check; the store's balance guard is authoritative under concurrency.
	if sender.Balance.LessThan(amount) {
		return res, models.ErrInsufficientFunds
	}

	now := time.Now().UTC()
	debit := models.LedgerEntry{
		ID:        uuid.New().String(),
		AccountID: senderID,
		Direction: models.DirectionDebit,
		Amount:    amount,
		Note:      note,
		CreatedAt: now,
	}

	var credit *models.LedgerEntry
	var creditedID string
	if receiver != nil {
		creditedID = receiver.ID
		if debit.Note == "" {
			debit.Note = "Transfer to " + receiver.Name
		}
		creditNote := note
		if creditNote == "" {
			creditNote = "Received from " + sender.Name
		}
		credit = &models.LedgerEntry{
			ID:        uuid.New().String(),
			AccountID: receiver.ID,
			Direction: models.DirectionCredit,
			Amount:    amount,
			Note:      creditNote,
			CreatedAt: now,
		}
	} else if debit.Note == "" {
		debit.Note = "Transfer to external"
	}

	if err := l.entries.ApplyTransfer(ctx, senderID, creditedID, amount, debit, credit); err != nil {
		return res, err
	}

	l.publish(events.TransactionCompleted{
		TransactionID: debit.ID,
		FromAccount:   senderID,
		ToAccount:     creditedID,
		Amount:        amount,
		OccurredAt:    now,
	})

	res.DebitEntryID = debit.ID
	if receiver != nil {
		res.Credited = true
		res.ReceiverName = receiver.Name
	} else {
		res.ExternalReceiver = receiverID
	}
	return res, nil
}

// lockPair takes the sender's and (if any) receiver's mutexes in sorted id
// order to avoid deadlocks between opposing transfers.
func (l *Ledger) lockPair(senderID string, receiver *models.Account) {
	if receiver == nil {
		l.accountLock(senderID).Lock()
		return
	}
	first, second := senderID, receiver.ID
	if second < first {
		first, second = second, first
	}
	l.accountLock(first).Lock()
	l.accountLock(second).Lock()
}

func (l *Ledger) unlockPair(senderID string, receiver *models.Account) {
	l.accountLock(senderID).Unlock()
	if receiver != nil {
		l.accountLock(receiver.ID).Unlock()
	}
}

// Page is one page of an account's ledger history.
type Page struct {
	Entries     []models.LedgerEntry
	TotalPages  int
	CurrentPage int
}

// ListEntries returns one page of accountID's entries. Defaults: newest
// first, page 1, page size PageSize. Filters on q are combinable.
func (l *Ledger) ListEntries(ctx context.Context, accountID string, q interfaces.EntryQuery, page int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if q.SortBy == "" {
		q.SortBy = interfaces.SortByDate
	}
	q.Limit = PageSize
	q.Offset = (page - 1) * PageSize

	entries, total, err := l.entries.QueryEntries(ctx, accountID, q)
	if err != nil {
		return Page{}, err
	}
	return Page{
		Entries:     entries,
		TotalPages:  (total + PageSize - 1) / PageSize,
		CurrentPage: page,
	}, nil
}

// ExportEntries returns every ledger entry joined with its account name.
func (l *Ledger) ExportEntries(ctx context.Context) ([]models.EntryExport, error) {
	return l.entries.AllEntries(ctx)
}

func (l *Ledger) publish(event events.TransactionCompleted) {
	if l.events == nil {
		return
	}
	if err := l.events.Publish(topicTransactionCompleted, event); err != nil {
		log.Printf("publish %s: %v", topicTransactionCompleted, err)
	}
}
