package webhook

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/akarpou/tradebook/internal/database"
	"github.com/akarpou/tradebook/internal/domain"
)

// LedgerRepository persists processed event ids. A row in the ledger means
// the event's effects are committed; check and insert run inside the same
// transaction as the effects so the two can never diverge.
type LedgerRepository struct {
	log zerolog.Logger
}

// NewLedgerRepository creates a new event ledger repository
func NewLedgerRepository(log zerolog.Logger) *LedgerRepository {
	return &LedgerRepository{
		log: log.With().Str("repo", "event_ledger").Logger(),
	}
}

// HasProcessed reports whether the event id is already in the ledger.
func (r *LedgerRepository) HasProcessed(q database.Querier, eventID string) (bool, error) {
	var count int
	err := q.QueryRow("SELECT COUNT(*) FROM processed_events WHERE event_id = ?", eventID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check event ledger: %w", err)
	}
	return count > 0, nil
}

// Record inserts the event into the ledger with a msgpack snapshot of its
// envelope for audit. A unique-constraint failure means a concurrent request
// processed the same event between our check and this insert; it is surfaced
// as ErrDuplicateEvent so the caller turns it into the replay success path.
func (r *LedgerRepository) Record(q database.Querier, event *Event) error {
	payload, err := msgpack.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event payload: %w", err)
	}

	query := `
		INSERT INTO processed_events (event_id, account_id, external_trade_id, event_type, payload, received_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err = q.Exec(query,
		event.EventID,
		event.AccountID,
		event.ExternalTradeID,
		string(event.Type),
		payload,
		time.Now().UTC().Unix(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.ErrDuplicateEvent
		}
		return fmt.Errorf("failed to record event: %w", err)
	}

	return nil
}
