package testing

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/akarpou/tradebook/internal/database"
)

// SeedAccount inserts an account row and returns its id.
func SeedAccount(t *testing.T, db *database.DB, userID string, balance float64) string {
	t.Helper()

	id := uuid.NewString()
	MustExec(t, db,
		`INSERT INTO accounts (id, user_id, currency, balance, created_at) VALUES (?, ?, 'USD', ?, ?)`,
		id, userID, balance, time.Now().UTC().Unix(),
	)
	return id
}

// SeedClosedTrade inserts a closed trade with its P&L already applied to the
// balance, which is the state trash/restore and purge operate on.
func SeedClosedTrade(t *testing.T, db *database.DB, accountID string, netPnL float64) string {
	t.Helper()

	id := uuid.NewString()
	now := time.Now().UTC().Unix()
	status := "WIN"
	if netPnL < 0 {
		status = "LOSS"
	}
	MustExec(t, db,
		`INSERT INTO trades (id, account_id, external_id, raw_symbol, symbol, status, outcome,
			net_pnl, balance_applied, created_at, updated_at)
		VALUES (?, ?, ?, 'EURUSD', 'EURUSD', ?, 'Closed', ?, 1, ?, ?)`,
		id, accountID, uuid.NewString(), status, netPnL, now, now,
	)
	return id
}

// AccountBalance reads the current balance for assertions.
func AccountBalance(t *testing.T, db *database.DB, accountID string) float64 {
	t.Helper()

	var balance float64
	if err := db.QueryRow(`SELECT balance FROM accounts WHERE id = ?`, accountID).Scan(&balance); err != nil {
		t.Fatalf("Failed to read balance for %s: %v", accountID, err)
	}
	return balance
}
