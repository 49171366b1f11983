package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/novabank/novabank/internal/interfaces"
	"github.com/novabank/novabank/internal/models"
)

// Store is an in-memory implementation of AccountStore and LedgerStore,
// used by tests and for running the server without a database. A single
// mutex makes every mutation an atomic unit.
type Store struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	byEmail  map[string]string // email -> account id
	entries  []models.LedgerEntry
}

func NewStore() *Store {
	return &Store{
		accounts: make(map[string]*models.Account),
		byEmail:  make(map[string]string),
	}
}

func (s *Store) CreateAccount(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[account.Email]; exists {
		return models.ErrEmailTaken
	}
	cp := *account
	s.accounts[cp.ID] = &cp
	s.byEmail[cp.Email] = cp.ID
	return nil
}

func (s *Store) AccountByID(ctx context.Context, id string) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return models.Account{}, models.ErrAccountNotFound
	}
	return *a, nil
}

func (s *Store) AccountByEmail(ctx context.Context, email string) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[email]
	if !ok {
		return models.Account{}, models.ErrAccountNotFound
	}
	return *s.accounts[id], nil
}

func (s *Store) ListAccounts(ctx context.Context, filter interfaces.AccountFilter) ([]models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	needle := strings.ToLower(filter.Search)
	out := make([]models.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		if filter.BalanceBelow != nil && !a.Balance.LessThan(*filter.BalanceBelow) {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(a.Name), needle) &&
			!strings.Contains(strings.ToLower(a.Email), needle) {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ApplyDeposit(ctx context.Context, accountID string, amount decimal.Decimal, entry models.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok {
		return models.ErrAccountNotFound
	}
	a.Balance = a.Balance.Add(amount)
	s.entries = append(s.entries, entry)
	return nil
}

func (s *Store) ApplyTransfer(ctx context.Context, senderID, receiverID string, amount decimal.Decimal, debit models.LedgerEntry, credit *models.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sender, ok := s.accounts[senderID]
	if !ok {
		return models.ErrAccountNotFound
	}
	var receiver *models.Account
	if receiverID != "" {
		receiver, ok = s.accounts[receiverID]
		if !ok {
			return models.ErrAccountNotFound
		}
	}

	// Balance guard: reject before any mutation.
	if sender.Balance.LessThan(amount) {
		return models.ErrInsufficientFunds
	}

	sender.Balance = sender.Balance.Sub(amount)
	s.entries = append(s.entries, debit)
	if receiver != nil && credit != nil {
		receiver.Balance = receiver.Balance.Add(amount)
		s.entries = append(s.entries, *credit)
	}
	return nil
}

func (s *Store) QueryEntries(ctx context.Context, accountID string, q interfaces.EntryQuery) ([]models.LedgerEntry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	needle := strings.ToLower(q.Search)
	var matched []models.LedgerEntry
	for _, e := range s.entries {
		if e.AccountID != accountID {
			continue
		}
		if q.Direction != "" && e.Direction != q.Direction {
			continue
		}
		if q.From != nil && e.CreatedAt.Before(*q.From) {
			continue
		}
		if q.To != nil && e.CreatedAt.After(*q.To) {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(e.Note), needle) {
			continue
		}
		matched = append(matched, e)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if q.SortBy == interfaces.SortByAmount {
			if q.Ascending {
				return a.Amount.LessThan(b.Amount)
			}
			return a.Amount.GreaterThan(b.Amount)
		}
		if q.Ascending {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})

	total := len(matched)
	if q.Offset >= total {
		return nil, total, nil
	}
	matched = matched[q.Offset:]
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	out := make([]models.LedgerEntry, len(matched))
	copy(out, matched)
	return out, total, nil
}

func (s *Store) AllEntries(ctx context.Context) ([]models.EntryExport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.EntryExport, 0, len(s.entries))
	for _, e := range s.entries {
		name := ""
		if a, ok := s.accounts[e.AccountID]; ok {
			name = a.Name
		}
		out = append(out, models.EntryExport{LedgerEntry: e, AccountName: name})
	}
	return out, nil
}

var (
	_ interfaces.AccountStore = (*Store)(nil)
	_ interfaces.LedgerStore  = (*Store)(nil)
)
