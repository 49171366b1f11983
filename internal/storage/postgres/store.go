package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/novabank/novabank/internal/interfaces"
	"github.com/novabank/novabank/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id            UUID PRIMARY KEY,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL DEFAULT 'user',
	account_type  TEXT NOT NULL DEFAULT 'checking',
	balance       NUMERIC(18,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id         UUID PRIMARY KEY,
	account_id UUID NOT NULL REFERENCES accounts(id),
	direction  TEXT NOT NULL CHECK (direction IN ('credit','debit')),
	amount     NUMERIC(18,2) NOT NULL CHECK (amount > 0),
	note       TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_entries_account
	ON ledger_entries (account_id, created_at DESC);
`

// uniqueViolation is the Postgres error code for duplicate keys.
const uniqueViolation = "23505"

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Init creates the schema if it does not exist yet.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

func (s *Store) CreateAccount(ctx context.Context, account *models.Account) error {
	const query = `INSERT INTO accounts (id, name, email, password_hash, role, account_type, balance, created_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err := s.db.ExecContext(ctx, query,
		account.ID, account.Name, account.Email, account.PasswordHash,
		account.Role, account.AccountType, account.Balance, account.CreatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return models.ErrEmailTaken
	}
	return err
}

const accountColumns = `id, name, email, password_hash, role, account_type, balance, created_at`

func (s *Store) AccountByID(ctx context.Context, id string) (models.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return s.scanAccount(s.db.QueryRowContext(ctx, query, id))
}

func (s *Store) AccountByEmail(ctx context.Context, email string) (models.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return s.scanAccount(s.db.QueryRowContext(ctx, query, email))
}

func (s *Store) scanAccount(row *sql.Row) (models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.Role, &a.AccountType, &a.Balance, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, models.ErrAccountNotFound
	}
	if err != nil {
		return models.Account{}, err
	}
	return a, nil
}

func (s *Store) ListAccounts(ctx context.Context, filter interfaces.AccountFilter) ([]models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts`
	var conds []string
	var args []any

	if filter.BalanceBelow != nil {
		args = append(args, *filter.BalanceBelow)
		conds = append(conds, fmt.Sprintf("balance < $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conds = append(conds, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d)", len(args), len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.Role, &a.AccountType, &a.Balance, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) ApplyDeposit(ctx context.Context, accountID string, amount decimal.Decimal, entry models.LedgerEntry) error {
	return s.transact(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE accounts SET balance = balance + $1 WHERE id = $2`, amount, accountID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return models.ErrAccountNotFound
		}
		return insertEntry(ctx, tx, entry)
	})
}

func (s *Store) ApplyTransfer(ctx context.Context, senderID, receiverID string, amount decimal.Decimal, debit models.LedgerEntry, credit *models.LedgerEntry) error {
	return s.transact(ctx, func(tx *sql.Tx) error {
		// Lock the affected rows in id order so opposing transfers cannot
		// deadlock each other.
		ids := []string{senderID}
		if receiverID != "" {
			if receiverID < senderID {
				ids = []string{receiverID, senderID}
			} else {
				ids = append(ids, receiverID)
			}
		}
		rows, err := tx.QueryContext(ctx,
			`SELECT id FROM accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`, pq.Array(ids))
		if err != nil {
			return err
		}
		locked := 0
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			locked++
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if locked != len(ids) {
			return models.ErrAccountNotFound
		}

		// Conditional debit: zero rows affected means the guard rejected it.
		res, err := tx.ExecContext(ctx,
			`UPDATE accounts SET balance = balance - $1 WHERE id = $2 AND balance >= $1`, amount, senderID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return models.ErrInsufficientFunds
		}

		if receiverID != "" {
			if _, err := tx.ExecContext(ctx,
				`UPDATE accounts SET balance = balance + $1 WHERE id = $2`, amount, receiverID); err != nil {
				return err
			}
		}

		if err := insertEntry(ctx, tx, debit); err != nil {
			return err
		}
		if credit != nil {
			if err := insertEntry(ctx, tx, *credit); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertEntry(ctx context.Context, tx *sql.Tx, entry models.LedgerEntry) error {
	const query = `INSERT INTO ledger_entries (id, account_id, direction, amount, note, created_at)
	VALUES ($1,$2,$3,$4,$5,$6)`

	_, err := tx.ExecContext(ctx, query,
		entry.ID, entry.AccountID, entry.Direction, entry.Amount, entry.Note, entry.CreatedAt)
	return err
}

// transact runs fn inside a transaction, rolling back on any error.
func (s *Store) transact(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) QueryEntries(ctx context.Context, accountID string, q interfaces.EntryQuery) ([]models.LedgerEntry, int, error) {
	conds := []string{"account_id = $1"}
	args := []any{accountID}

	if q.Direction != "" {
		args = append(args, q.Direction)
		conds = append(conds, fmt.Sprintf("direction = $%d", len(args)))
	}
	if q.From != nil {
		args = append(args, *q.From)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if q.To != nil {
		args = append(args, *q.To)
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if q.Search != "" {
		args = append(args, "%"+q.Search+"%")
		conds = append(conds, fmt.Sprintf("note ILIKE $%d", len(args)))
	}
	where := " WHERE " + strings.Join(conds, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM ledger_entries`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	column := "created_at"
	if q.SortBy == interfaces.SortByAmount {
		column = "amount"
	}
	order := "DESC"
	if q.Ascending {
		order = "ASC"
	}

	query := `SELECT id, account_id, direction, amount, note, created_at FROM ledger_entries` +
		where + fmt.Sprintf(" ORDER BY %s %s", column, order)
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", q.Limit, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Direction, &e.Amount, &e.Note, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

func (s *Store) AllEntries(ctx context.Context) ([]models.EntryExport, error) {
	const query = `SELECT e.id, e.account_id, e.direction, e.amount, e.note, e.created_at, a.name
	FROM ledger_entries e
	JOIN accounts a ON a.id = e.account_id
	ORDER BY e.created_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.EntryExport
	for rows.Next() {
		var e models.EntryExport
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Direction, &e.Amount, &e.Note, &e.CreatedAt, &e.AccountName); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

var (
	_ interfaces.AccountStore = (*Store)(nil)
	_ interfaces.LedgerStore  = (*Store)(nil)
)
