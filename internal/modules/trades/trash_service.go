package trades

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/akarpou/tradebook/internal/database"
	"github.com/akarpou/tradebook/internal/domain"
	"github.com/akarpou/tradebook/internal/modules/accounts"
)

// TrashService moves trades between the journal and the trash, reversing or
// re-applying their realized P&L on the owning account in the same
// transaction. Both directions are batch operations and the batch must belong
// to a single account, so the balance mutation is one atomic delta.
type TrashService struct {
	repo     *Repository
	accounts *accounts.Repository
	log      zerolog.Logger
}

// NewTrashService creates a new trash service
func NewTrashService(repo *Repository, accountsRepo *accounts.Repository, log zerolog.Logger) *TrashService {
	return &TrashService{
		repo:     repo,
		accounts: accountsRepo,
		log:      log.With().Str("service", "trash").Logger(),
	}
}

// Trash soft-deletes the given trades and subtracts their applied net P&L
// from the account balance. Trades already in the trash, and ids that match
// nothing, are skipped. Returns the affected trades in their post-trash state.
func (s *TrashService) Trash(ids []string, userID string) ([]Trade, error) {
	return s.move(ids, userID, true)
}

// Restore moves the given trades out of the trash and re-applies their net
// P&L to the account balance. Trades not in the trash are skipped.
func (s *TrashService) Restore(ids []string, userID string) ([]Trade, error) {
	return s.move(ids, userID, false)
}

func (s *TrashService) move(ids []string, userID string, toTrash bool) ([]Trade, error) {
	if len(ids) == 0 {
		return []Trade{}, nil
	}

	var result []Trade
	err := database.WithWriteTransaction(s.repo.DB(), func(tx *sql.Tx) error {
		// Trash wants live rows, restore wants trashed rows.
		matched, err := s.repo.findBatchByIDs(tx, ids, !toTrash)
		if err != nil {
			return err
		}
		if len(matched) == 0 {
			result = []Trade{}
			return nil
		}

		accountID := matched[0].AccountID
		for _, t := range matched[1:] {
			if t.AccountID != accountID {
				return fmt.Errorf("%w: batch spans multiple accounts", domain.ErrConflict)
			}
		}

		// Ownership check scopes the whole batch.
		if _, err := s.accounts.GetByID(tx, accountID, userID); err != nil {
			return err
		}

		// Only trades whose P&L reached the balance contribute to the delta.
		delta := decimal.Zero
		matchedIDs := make([]string, 0, len(matched))
		for _, t := range matched {
			matchedIDs = append(matchedIDs, t.ID)
			if t.BalanceApplied {
				delta = delta.Add(decimal.NewFromFloat(t.NetPnL))
			}
		}
		if toTrash {
			delta = delta.Neg()
		}

		now := time.Now().UTC()
		if toTrash {
			err = s.repo.markDeleted(tx, matchedIDs, now)
		} else {
			err = s.repo.markRestored(tx, matchedIDs)
		}
		if err != nil {
			return err
		}

		if !delta.IsZero() {
			balanceDelta, _ := delta.Float64()
			if err := s.accounts.ApplyBalanceDelta(tx, accountID, balanceDelta); err != nil {
				return err
			}
		}

		result, err = s.repo.findBatchByIDs(tx, matchedIDs, toTrash)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int("requested", len(ids)).
		Int("affected", len(result)).
		Bool("to_trash", toTrash).
		Msg("Trash batch processed")

	return result, nil
}
