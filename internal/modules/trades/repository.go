package trades

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/akarpou/tradebook/internal/database"
	"github.com/akarpou/tradebook/internal/utils"
)

// tradesColumns is the list of columns for the trades table.
// Column order must match scanTrade() and scanTradeFromRows().
const tradesColumns = `id, account_id, external_id, raw_symbol, symbol, direction, order_type,
	status, outcome, pending, entry_price, stop_loss, take_profit, final_stop_loss,
	final_take_profit, exit_price, quantity, core_pnl, fees, net_pnl, balance_applied,
	tags, notes, screenshots, opened_at, closed_at, is_deleted, deleted_at, created_at, updated_at`

// Repository handles trade database operations.
//
// Methods take a database.Querier rather than binding the pool directly:
// the reconciler and the trash/restore coordinator run several repository
// calls inside one transaction, and partial effects must never outlive it.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new trade repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "trades").Logger(),
	}
}

// DB returns the underlying connection pool for callers that open their own
// transactions around repository calls.
func (r *Repository) DB() *sql.DB {
	return r.db
}

// FindByID retrieves a trade by internal id, including partials.
func (r *Repository) FindByID(q database.Querier, accountID, id string) (*Trade, error) {
	query := "SELECT " + tradesColumns + " FROM trades WHERE id = ? AND account_id = ?"

	trade, err := scanTrade(q.QueryRow(query, id, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade by id: %w", err)
	}

	if err := r.loadPartials(q, trade); err != nil {
		return nil, err
	}

	return trade, nil
}

// FindByExternalID retrieves a trade by the agent's external id.
// Returns nil, nil when no row matches.
func (r *Repository) FindByExternalID(q database.Querier, accountID, externalID string) (*Trade, error) {
	query := "SELECT " + tradesColumns + " FROM trades WHERE account_id = ? AND external_id = ?"

	trade, err := scanTrade(q.QueryRow(query, accountID, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade by external id: %w", err)
	}

	if err := r.loadPartials(q, trade); err != nil {
		return nil, err
	}

	return trade, nil
}

// GetOrCreate returns the trade keyed by externalID, inserting a minimal
// placeholder row when none exists. The placeholder gives out-of-order events
// (a close arriving before its open) a target to mutate - the transport makes
// no ordering promise.
func (r *Repository) GetOrCreate(q database.Querier, accountID, externalID, rawSymbol string) (*Trade, error) {
	existing, err := r.FindByExternalID(q, accountID, externalID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now().UTC()
	trade := &Trade{
		ID:         uuid.NewString(),
		AccountID:  accountID,
		ExternalID: &externalID,
		RawSymbol:  rawSymbol,
		Status:     StatusOpen,
		Outcome:    OutcomeOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	query := `
		INSERT INTO trades (id, account_id, external_id, raw_symbol, status, outcome, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = q.Exec(query,
		trade.ID,
		trade.AccountID,
		externalID,
		trade.RawSymbol,
		string(trade.Status),
		string(trade.Outcome),
		now.Unix(),
		now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create placeholder trade: %w", err)
	}

	r.log.Debug().
		Str("trade_id", trade.ID).
		Str("external_id", externalID).
		Msg("Placeholder trade created")

	return trade, nil
}

// MergePendingIntoPosition re-keys the trade created for a pending order onto
// the broker's position id once the order fills. The internal row id,
// partials and tags all survive the re-key, which is what prevents a second
// row for the same economic trade. When no pending row exists the position id
// is resolved via GetOrCreate directly.
func (r *Repository) MergePendingIntoPosition(q database.Querier, accountID, pendingExternalID, positionExternalID, rawSymbol string) (*Trade, error) {
	// The position row may already exist (replayed or re-ordered events).
	existing, err := r.FindByExternalID(q, accountID, positionExternalID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	pending, err := r.FindByExternalID(q, accountID, pendingExternalID)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return r.GetOrCreate(q, accountID, positionExternalID, rawSymbol)
	}

	now := time.Now().UTC()
	_, err = q.Exec(
		"UPDATE trades SET external_id = ?, updated_at = ? WHERE id = ?",
		positionExternalID, now.Unix(), pending.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to re-key pending trade: %w", err)
	}

	r.log.Debug().
		Str("trade_id", pending.ID).
		Str("pending_external_id", pendingExternalID).
		Str("position_external_id", positionExternalID).
		Msg("Pending trade merged into position")

	pending.ExternalID = &positionExternalID
	pending.UpdatedAt = now

	return pending, nil
}

// Update persists every mutable field of the trade.
func (r *Repository) Update(q database.Querier, trade *Trade) error {
	trade.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE trades SET
			raw_symbol = ?, symbol = ?, direction = ?, order_type = ?,
			status = ?, outcome = ?, pending = ?,
			entry_price = ?, stop_loss = ?, take_profit = ?,
			final_stop_loss = ?, final_take_profit = ?, exit_price = ?, quantity = ?,
			core_pnl = ?, fees = ?, net_pnl = ?, balance_applied = ?,
			tags = ?, notes = ?, screenshots = ?,
			opened_at = ?, closed_at = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := q.Exec(query,
		trade.RawSymbol,
		trade.Symbol,
		string(trade.Direction),
		trade.OrderType,
		string(trade.Status),
		string(trade.Outcome),
		boolToInt(trade.Pending),
		nullFloat64Ptr(trade.EntryPrice),
		nullFloat64Ptr(trade.StopLoss),
		nullFloat64Ptr(trade.TakeProfit),
		nullFloat64Ptr(trade.FinalStopLoss),
		nullFloat64Ptr(trade.FinalTakeProfit),
		nullFloat64Ptr(trade.ExitPrice),
		nullFloat64Ptr(trade.Quantity),
		trade.CorePnL,
		trade.Fees,
		trade.NetPnL,
		boolToInt(trade.BalanceApplied),
		utils.JoinCSV(trade.Tags),
		trade.Notes,
		utils.JoinCSV(trade.Screenshots),
		nullTimePtr(trade.OpenedAt),
		nullTimePtr(trade.ClosedAt),
		trade.UpdatedAt.Unix(),
		trade.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update trade: %w", err)
	}

	return nil
}

// AppendPartial records a partial close if its id is new for the trade.
// Returns true when the partial was inserted, false when it was already
// recorded - the partials set is append-only.
func (r *Repository) AppendPartial(q database.Querier, tradeID string, partial Partial) (bool, error) {
	query := `
		INSERT OR IGNORE INTO partials (trade_id, partial_id, quantity, price, pnl, closed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	res, err := q.Exec(query,
		tradeID,
		partial.ID,
		partial.Quantity,
		partial.Price,
		partial.PnL,
		partial.ClosedAt.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to append partial: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return affected > 0, nil
}

// List retrieves trades for an account, most recently updated first.
// Deleted (trashed) rows are included only when includeDeleted is set.
func (r *Repository) List(q database.Querier, accountID string, includeDeleted bool, limit int) ([]Trade, error) {
	query := "SELECT " + tradesColumns + " FROM trades WHERE account_id = ?"
	if !includeDeleted {
		query += " AND is_deleted = 0"
	}
	query += " ORDER BY updated_at DESC LIMIT ?"

	rows, err := q.Query(query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		trade, err := scanTradeFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, *trade)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}

	for i := range trades {
		if err := r.loadPartials(q, &trades[i]); err != nil {
			return nil, err
		}
	}

	return trades, nil
}

// findBatchByIDs retrieves the rows among ids in the requested deletion
// state, partials included. Used by the trash/restore coordinator inside its
// write transaction.
func (r *Repository) findBatchByIDs(q database.Querier, ids []string, deleted bool) ([]Trade, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	query := "SELECT " + tradesColumns + " FROM trades WHERE id IN (" + placeholders + ") AND is_deleted = ?"

	args := make([]interface{}, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, boolToInt(deleted))

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select batch: %w", err)
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		trade, err := scanTradeFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, *trade)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batch: %w", err)
	}

	for i := range trades {
		if err := r.loadPartials(q, &trades[i]); err != nil {
			return nil, err
		}
	}

	return trades, nil
}

// markDeleted soft-deletes the rows and stamps deleted_at.
func (r *Repository) markDeleted(q database.Querier, ids []string, deletedAt time.Time) error {
	return r.setDeleted(q, ids, true, &deletedAt)
}

// markRestored clears the soft-delete flag and timestamp.
func (r *Repository) markRestored(q database.Querier, ids []string) error {
	return r.setDeleted(q, ids, false, nil)
}

func (r *Repository) setDeleted(q database.Querier, ids []string, deleted bool, deletedAt *time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	query := "UPDATE trades SET is_deleted = ?, deleted_at = ?, updated_at = ? WHERE id IN (" + placeholders + ")"

	args := make([]interface{}, 0, len(ids)+3)
	args = append(args, boolToInt(deleted), nullTimePtr(deletedAt), time.Now().UTC().Unix())
	for _, id := range ids {
		args = append(args, id)
	}

	if _, err := q.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to update deletion state: %w", err)
	}

	return nil
}

// FindExpiredTrash returns a bounded batch of trashed trades deleted before
// the cutoff, oldest first. Used by the retention purger.
func (r *Repository) FindExpiredTrash(q database.Querier, cutoff time.Time, limit int) ([]Trade, error) {
	query := "SELECT " + tradesColumns + ` FROM trades
		WHERE is_deleted = 1 AND deleted_at IS NOT NULL AND deleted_at < ?
		ORDER BY deleted_at ASC
		LIMIT ?`

	rows, err := q.Query(query, cutoff.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired trash: %w", err)
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		trade, err := scanTradeFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, *trade)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expired trash: %w", err)
	}

	return trades, nil
}

// DeleteExpired permanently removes the rows (partials cascade). Only rows
// still trashed and past the cutoff are deleted, so a restore that landed
// after the ids were selected keeps its row.
func (r *Repository) DeleteExpired(q database.Querier, ids []string, cutoff time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, cutoff.Unix())

	query := "DELETE FROM trades WHERE id IN (" + placeholders + ") AND is_deleted = 1 AND deleted_at < ?"
	if _, err := q.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to delete trades: %w", err)
	}

	return nil
}

// loadPartials populates trade.Partials, ordered by close time.
func (r *Repository) loadPartials(q database.Querier, trade *Trade) error {
	query := `
		SELECT partial_id, quantity, price, pnl, closed_at
		FROM partials
		WHERE trade_id = ?
		ORDER BY closed_at ASC, partial_id ASC
	`

	rows, err := q.Query(query, trade.ID)
	if err != nil {
		return fmt.Errorf("failed to load partials: %w", err)
	}
	defer rows.Close()

	var partials []Partial
	for rows.Next() {
		var p Partial
		var closedAt int64
		if err := rows.Scan(&p.ID, &p.Quantity, &p.Price, &p.PnL, &closedAt); err != nil {
			return fmt.Errorf("failed to scan partial: %w", err)
		}
		p.ClosedAt = time.Unix(closedAt, 0).UTC()
		partials = append(partials, p)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating partials: %w", err)
	}

	trade.Partials = partials

	return nil
}

// Helper methods

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(row *sql.Row) (*Trade, error) {
	return scanTradeRow(row)
}

func scanTradeFromRows(rows *sql.Rows) (*Trade, error) {
	return scanTradeRow(rows)
}

func scanTradeRow(row rowScanner) (*Trade, error) {
	var trade Trade
	var externalID sql.NullString
	var direction, orderType string
	var pending, balanceApplied, isDeleted int
	var entryPrice, stopLoss, takeProfit, finalStopLoss, finalTakeProfit, exitPrice, quantity sql.NullFloat64
	var tags, screenshots string
	var openedAt, closedAt, deletedAt sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&trade.ID,
		&trade.AccountID,
		&externalID,
		&trade.RawSymbol,
		&trade.Symbol,
		&direction,
		&orderType,
		&trade.Status,
		&trade.Outcome,
		&pending,
		&entryPrice,
		&stopLoss,
		&takeProfit,
		&finalStopLoss,
		&finalTakeProfit,
		&exitPrice,
		&quantity,
		&trade.CorePnL,
		&trade.Fees,
		&trade.NetPnL,
		&balanceApplied,
		&tags,
		&trade.Notes,
		&screenshots,
		&openedAt,
		&closedAt,
		&isDeleted,
		&deletedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if externalID.Valid {
		trade.ExternalID = &externalID.String
	}
	trade.Direction = Direction(direction)
	trade.OrderType = orderType
	trade.Pending = pending == 1
	trade.BalanceApplied = balanceApplied == 1
	trade.IsDeleted = isDeleted == 1
	trade.EntryPrice = float64Ptr(entryPrice)
	trade.StopLoss = float64Ptr(stopLoss)
	trade.TakeProfit = float64Ptr(takeProfit)
	trade.FinalStopLoss = float64Ptr(finalStopLoss)
	trade.FinalTakeProfit = float64Ptr(finalTakeProfit)
	trade.ExitPrice = float64Ptr(exitPrice)
	trade.Quantity = float64Ptr(quantity)
	trade.Tags = utils.ParseCSV(tags)
	trade.Screenshots = utils.ParseCSV(screenshots)
	trade.OpenedAt = timePtr(openedAt)
	trade.ClosedAt = timePtr(closedAt)
	trade.DeletedAt = timePtr(deletedAt)
	trade.CreatedAt = time.Unix(createdAt, 0).UTC()
	trade.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return &trade, nil
}

// Helper functions

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullFloat64Ptr(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{Valid: false}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullTimePtr(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func float64Ptr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func timePtr(i sql.NullInt64) *time.Time {
	if !i.Valid {
		return nil
	}
	t := time.Unix(i.Int64, 0).UTC()
	return &t
}
