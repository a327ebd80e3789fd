package trades

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testhelpers "github.com/akarpou/tradebook/internal/testing"
)

func trashTrade(t *testing.T, db *sql.DB, accountID string, deletedAt time.Time, screenshots string) string {
	t.Helper()

	id := seedClosedTrade(t, db, accountID, 10, true)
	_, err := db.Exec(
		`UPDATE trades SET is_deleted = 1, deleted_at = ?, screenshots = ? WHERE id = ?`,
		deletedAt.Unix(), screenshots, id,
	)
	require.NoError(t, err)
	return id
}

func tradeExists(t *testing.T, db *sql.DB, id string) bool {
	t.Helper()

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM trades WHERE id = ?`, id).Scan(&count))
	return count > 0
}

func TestPurgeJob_RemovesOnlyExpiredTrash(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db, testLogger())
	accountID := seedAccount(t, db, "user-1", 0)

	retention := 30 * 24 * time.Hour
	expired := trashTrade(t, db, accountID, time.Now().UTC().Add(-31*24*time.Hour), "shots/old.png")
	recent := trashTrade(t, db, accountID, time.Now().UTC().Add(-1*24*time.Hour), "shots/new.png")
	live := seedClosedTrade(t, db, accountID, 10, true)

	deleter := testhelpers.NewMockObjectDeleter()
	job := NewPurgeJob(repo, deleter, retention, time.Hour, testLogger())

	require.NoError(t, job.Run())

	assert.False(t, tradeExists(t, db, expired), "expired trash must be purged")
	assert.True(t, tradeExists(t, db, recent), "trash inside the retention window must survive")
	assert.True(t, tradeExists(t, db, live), "live trades must survive")
	assert.Equal(t, []string{"shots/old.png"}, deleter.Deleted())
}

func TestPurgeJob_ObjectFailureDoesNotFailRun(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db, testLogger())
	accountID := seedAccount(t, db, "user-1", 0)

	expired := trashTrade(t, db, accountID, time.Now().UTC().Add(-40*24*time.Hour), "shots/a.png")

	deleter := testhelpers.NewMockObjectDeleter()
	deleter.SetError(errors.New("bucket unavailable"))
	job := NewPurgeJob(repo, deleter, 30*24*time.Hour, time.Hour, testLogger())

	require.NoError(t, job.Run(), "object store failures are best-effort")
	assert.False(t, tradeExists(t, db, expired), "row deletion is committed before object cleanup")
}

func TestPurgeJob_NilDeleterSkipsObjectCleanup(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db, testLogger())
	accountID := seedAccount(t, db, "user-1", 0)

	expired := trashTrade(t, db, accountID, time.Now().UTC().Add(-40*24*time.Hour), "shots/a.png")

	job := NewPurgeJob(repo, nil, 30*24*time.Hour, time.Hour, testLogger())

	require.NoError(t, job.Run())
	assert.False(t, tradeExists(t, db, expired))
}

func TestDeleteExpired_SkipsRowsRestoredAfterSelection(t *testing.T) {
	db := newTestDB(t)
	service, repo := newTrashService(t, db)
	accountID := seedAccount(t, db, "user-1", 10048)
	tradeID := seedClosedTrade(t, db, accountID, 48, true)

	_, err := service.Trash([]string{tradeID}, "user-1")
	require.NoError(t, err)
	require.Equal(t, 10000.0, accountBalance(t, db, accountID))

	// Age the trash past the retention window.
	expiredAt := time.Now().UTC().Add(-40 * 24 * time.Hour)
	_, err = db.Exec(`UPDATE trades SET deleted_at = ? WHERE id = ?`, expiredAt.Unix(), tradeID)
	require.NoError(t, err)

	cutoff := time.Now().UTC().Add(-30 * 24 * time.Hour)
	stale, err := repo.FindExpiredTrash(db, cutoff, purgeBatchSize)
	require.NoError(t, err)
	require.Len(t, stale, 1)

	// A restore lands after the batch was selected.
	_, err = service.Restore([]string{tradeID}, "user-1")
	require.NoError(t, err)
	require.Equal(t, 10048.0, accountBalance(t, db, accountID))

	require.NoError(t, repo.DeleteExpired(db, []string{stale[0].ID}, cutoff))

	assert.True(t, tradeExists(t, db, tradeID), "restored trade must survive a stale purge batch")
	assert.Equal(t, 10048.0, accountBalance(t, db, accountID))

	job := NewPurgeJob(repo, nil, 30*24*time.Hour, time.Hour, testLogger())
	require.NoError(t, job.Run())
	assert.True(t, tradeExists(t, db, tradeID), "restored trade is no longer trash")
}

func TestPurgeJob_EmptyPassIsNoOp(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db, testLogger())
	seedAccount(t, db, "user-1", 0)

	deleter := testhelpers.NewMockObjectDeleter()
	job := NewPurgeJob(repo, deleter, 30*24*time.Hour, time.Hour, testLogger())

	require.NoError(t, job.Run())
	assert.Empty(t, deleter.Deleted())
}
