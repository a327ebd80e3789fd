package trades

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akarpou/tradebook/internal/domain"
	"github.com/akarpou/tradebook/internal/modules/accounts"
)

func newTrashService(t *testing.T, db *sql.DB) (*TrashService, *Repository) {
	t.Helper()

	repo := NewRepository(db, testLogger())
	accountsRepo := accounts.NewRepository(db, testLogger())
	return NewTrashService(repo, accountsRepo, testLogger()), repo
}

func seedClosedTrade(t *testing.T, db *sql.DB, accountID string, netPnL float64, balanceApplied bool) string {
	t.Helper()

	id := uuid.NewString()
	now := time.Now().UTC().Unix()
	applied := 0
	if balanceApplied {
		applied = 1
	}
	_, err := db.Exec(
		`INSERT INTO trades (id, account_id, external_id, raw_symbol, symbol, status, outcome,
			net_pnl, balance_applied, created_at, updated_at)
		VALUES (?, ?, ?, 'EURUSD', 'EURUSD', 'WIN', 'Closed', ?, ?, ?, ?)`,
		id, accountID, uuid.NewString(), netPnL, applied, now, now,
	)
	require.NoError(t, err)
	return id
}

func accountBalance(t *testing.T, db *sql.DB, accountID string) float64 {
	t.Helper()

	var balance float64
	require.NoError(t, db.QueryRow(`SELECT balance FROM accounts WHERE id = ?`, accountID).Scan(&balance))
	return balance
}

func TestTrash_ReversesAppliedPnL(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newTrashService(t, db)
	accountID := seedAccount(t, db, "user-1", 10048)

	tradeID := seedClosedTrade(t, db, accountID, 48, true)

	result, err := svc.Trash([]string{tradeID}, "user-1")
	require.NoError(t, err)
	require.Len(t, result, 1)

	assert.True(t, result[0].IsDeleted)
	assert.NotNil(t, result[0].DeletedAt)
	assert.Equal(t, 10000.0, accountBalance(t, db, accountID))
}

func TestRestore_ReappliesPnL(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newTrashService(t, db)
	accountID := seedAccount(t, db, "user-1", 10048)

	tradeID := seedClosedTrade(t, db, accountID, 48, true)

	_, err := svc.Trash([]string{tradeID}, "user-1")
	require.NoError(t, err)
	require.Equal(t, 10000.0, accountBalance(t, db, accountID))

	result, err := svc.Restore([]string{tradeID}, "user-1")
	require.NoError(t, err)
	require.Len(t, result, 1)

	assert.False(t, result[0].IsDeleted)
	assert.Nil(t, result[0].DeletedAt)
	assert.Equal(t, 10048.0, accountBalance(t, db, accountID), "trash then restore must conserve the balance")
}

func TestTrash_SkipsUnappliedAndAlreadyTrashed(t *testing.T) {
	db := newTestDB(t)
	svc, repo := newTrashService(t, db)
	accountID := seedAccount(t, db, "user-1", 500)

	unapplied := seedClosedTrade(t, db, accountID, 100, false)
	alreadyTrashed := seedClosedTrade(t, db, accountID, 50, true)
	require.NoError(t, repo.markDeleted(db, []string{alreadyTrashed}, time.Now().UTC()))

	result, err := svc.Trash([]string{unapplied, alreadyTrashed}, "user-1")
	require.NoError(t, err)
	require.Len(t, result, 1, "already trashed rows are skipped")
	assert.Equal(t, unapplied, result[0].ID)

	// The unapplied trade never touched the balance, so trashing it must not either.
	assert.Equal(t, 500.0, accountBalance(t, db, accountID))
}

func TestTrash_RejectsCrossAccountBatch(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newTrashService(t, db)
	accountA := seedAccount(t, db, "user-1", 100)
	accountB := seedAccount(t, db, "user-1", 100)

	tradeA := seedClosedTrade(t, db, accountA, 10, true)
	tradeB := seedClosedTrade(t, db, accountB, 10, true)

	_, err := svc.Trash([]string{tradeA, tradeB}, "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConflict)

	// The rejected batch must leave everything untouched.
	assert.Equal(t, 100.0, accountBalance(t, db, accountA))
	assert.Equal(t, 100.0, accountBalance(t, db, accountB))
}

func TestTrash_EmptyMatchIsNoOp(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newTrashService(t, db)
	seedAccount(t, db, "user-1", 100)

	result, err := svc.Trash([]string{"missing-1", "missing-2"}, "user-1")
	require.NoError(t, err)
	assert.Empty(t, result)

	result, err = svc.Trash(nil, "user-1")
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestTrash_RejectsForeignAccount(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newTrashService(t, db)
	accountID := seedAccount(t, db, "owner", 100)
	tradeID := seedClosedTrade(t, db, accountID, 10, true)

	_, err := svc.Trash([]string{tradeID}, "intruder")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Equal(t, 100.0, accountBalance(t, db, accountID))
}
