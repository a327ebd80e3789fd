package accounts

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/akarpou/tradebook/internal/database"
	"github.com/akarpou/tradebook/internal/domain"
)

// accountsColumns is the list of columns for the accounts table.
// Column order must match the scan helpers below.
const accountsColumns = `id, user_id, currency, balance, created_at`

// Repository handles account database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new account repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "accounts").Logger(),
	}
}

// DB returns the underlying connection pool for callers that need to run
// repository methods outside their own transaction.
func (r *Repository) DB() *sql.DB {
	return r.db
}

// Create inserts a new account for the given user and returns it.
func (r *Repository) Create(userID string) (*Account, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}

	account := &Account{
		ID:        uuid.NewString(),
		UserID:    userID,
		Currency:  SettlementCurrency,
		Balance:   0,
		CreatedAt: time.Now().UTC(),
	}

	query := `INSERT INTO accounts (id, user_id, currency, balance, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.Exec(query, account.ID, account.UserID, account.Currency, account.Balance, account.CreatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	r.log.Info().Str("account_id", account.ID).Str("user_id", userID).Msg("Account created")

	return account, nil
}

// GetByID retrieves an account scoped to the owning user.
// Returns domain.ErrNotFound when the account does not exist or belongs to a
// different user - callers cannot distinguish the two cases on purpose.
func (r *Repository) GetByID(q database.Querier, accountID, userID string) (*Account, error) {
	query := "SELECT " + accountsColumns + " FROM accounts WHERE id = ? AND user_id = ?"

	account, err := scanAccount(q.QueryRow(query, accountID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// Exists reports whether an account with the given id exists, regardless of
// owner. Used by the reconciler's account-scope check where the caller is the
// agent, not an end user.
func (r *Repository) Exists(q database.Querier, accountID string) (bool, error) {
	var one int
	err := q.QueryRow("SELECT 1 FROM accounts WHERE id = ? LIMIT 1", accountID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check account existence: %w", err)
	}

	return true, nil
}

// ApplyBalanceDelta adds delta to the account balance in a single atomic
// statement. It runs on the caller's Querier so balance mutations commit or
// roll back together with the state change that justifies them.
func (r *Repository) ApplyBalanceDelta(q database.Querier, accountID string, delta float64) error {
	if delta == 0 {
		return nil
	}

	res, err := q.Exec("UPDATE accounts SET balance = balance + ? WHERE id = ?", delta, accountID)
	if err != nil {
		return fmt.Errorf("failed to apply balance delta: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// Deposit adds a positive amount to the account balance.
func (r *Repository) Deposit(accountID, userID string, amount float64) (*Account, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: deposit amount must be positive", domain.ErrValidation)
	}
	return r.adjust(accountID, userID, amount)
}

// Withdraw subtracts a positive amount from the account balance.
func (r *Repository) Withdraw(accountID, userID string, amount float64) (*Account, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: withdrawal amount must be positive", domain.ErrValidation)
	}
	return r.adjust(accountID, userID, -amount)
}

// adjust applies a signed delta inside one transaction and returns the
// updated account.
func (r *Repository) adjust(accountID, userID string, delta float64) (*Account, error) {
	var account *Account
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := r.GetByID(tx, accountID, userID); err != nil {
			return err
		}
		if err := r.ApplyBalanceDelta(tx, accountID, delta); err != nil {
			return err
		}

		updated, err := r.GetByID(tx, accountID, userID)
		if err != nil {
			return err
		}
		account = updated
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStore, err)
	}

	r.log.Info().
		Str("account_id", accountID).
		Float64("delta", delta).
		Float64("balance", account.Balance).
		Msg("Balance adjusted")

	return account, nil
}

// Delete removes an account. Accounts can only be deleted after all owned
// trades have been deleted or detached.
func (r *Repository) Delete(accountID, userID string) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := r.GetByID(tx, accountID, userID); err != nil {
			return err
		}

		var count int
		if err := tx.QueryRow("SELECT COUNT(*) FROM trades WHERE account_id = ?", accountID).Scan(&count); err != nil {
			return fmt.Errorf("failed to count owned trades: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: account still owns %d trades", domain.ErrConflict, count)
		}

		if _, err := tx.Exec("DELETE FROM accounts WHERE id = ?", accountID); err != nil {
			return fmt.Errorf("failed to delete account: %w", err)
		}

		return nil
	})
}

func scanAccount(row *sql.Row) (*Account, error) {
	var account Account
	var createdAt int64

	err := row.Scan(
		&account.ID,
		&account.UserID,
		&account.Currency,
		&account.Balance,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	account.CreatedAt = time.Unix(createdAt, 0).UTC()

	return &account, nil
}
