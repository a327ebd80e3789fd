package trades

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/akarpou/tradebook/internal/database"
	"github.com/akarpou/tradebook/internal/utils"
)

// purgeBatchSize bounds how many trashed trades a single run removes.
const purgeBatchSize = 200

// ObjectDeleter removes screenshot objects from external storage.
type ObjectDeleter interface {
	DeleteObjects(ctx context.Context, keys []string) error
}

// PurgeJob permanently removes trades whose trash retention window has
// elapsed. Rows are deleted and committed first; screenshot objects are
// removed afterwards on a best-effort basis, so a storage outage can orphan
// objects but never resurrect rows.
type PurgeJob struct {
	repo      *Repository
	objects   ObjectDeleter
	retention time.Duration
	interval  time.Duration
	log       zerolog.Logger

	mu      sync.Mutex
	lastRun time.Time
}

// NewPurgeJob creates a purge job. objects may be nil, in which case
// screenshot cleanup is skipped. interval gates opportunistic runs
// triggered by trash activity.
func NewPurgeJob(repo *Repository, objects ObjectDeleter, retention, interval time.Duration, log zerolog.Logger) *PurgeJob {
	return &PurgeJob{
		repo:      repo,
		objects:   objects,
		retention: retention,
		interval:  interval,
		log:       log.With().Str("job", "trash_purge").Logger(),
	}
}

// MaybeRun triggers a purge pass in the background if the gating interval has
// elapsed since the last run. Callers are never blocked; at most one pass
// starts per interval.
func (j *PurgeJob) MaybeRun() {
	j.mu.Lock()
	if time.Since(j.lastRun) < j.interval {
		j.mu.Unlock()
		return
	}
	j.lastRun = time.Now()
	j.mu.Unlock()

	go func() {
		if err := j.Run(); err != nil {
			j.log.Error().Err(err).Msg("Opportunistic purge failed")
		}
	}()
}

// Name returns the job name for the scheduler
func (j *PurgeJob) Name() string {
	return "trash_purge"
}

// Run executes one purge pass.
func (j *PurgeJob) Run() error {
	defer utils.OperationTimer("trash_purge", j.log)()

	cutoff := time.Now().UTC().Add(-j.retention)

	// Select and delete in the same write transaction: a restore committing
	// in between must keep its row and its reapplied balance.
	var ids, keys []string
	err := database.WithWriteTransaction(j.repo.DB(), func(tx *sql.Tx) error {
		expired, err := j.repo.FindExpiredTrash(tx, cutoff, purgeBatchSize)
		if err != nil {
			return err
		}
		for _, t := range expired {
			ids = append(ids, t.ID)
			keys = append(keys, t.Screenshots...)
		}
		return j.repo.DeleteExpired(tx, ids, cutoff)
	})
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	j.log.Info().
		Int("purged", len(ids)).
		Time("cutoff", cutoff).
		Msg("Expired trash purged")

	// Rows are gone for good at this point. Object cleanup failures are
	// logged by the store and must not fail the run.
	if j.objects != nil && len(keys) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := j.objects.DeleteObjects(ctx, keys); err != nil {
			j.log.Warn().Err(err).Int("keys", len(keys)).Msg("Screenshot cleanup incomplete")
		}
	}

	return nil
}
