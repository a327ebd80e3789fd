package webhook

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/akarpou/tradebook/internal/database"
	"github.com/akarpou/tradebook/internal/domain"
	"github.com/akarpou/tradebook/internal/modules/accounts"
	"github.com/akarpou/tradebook/internal/modules/symbols"
	"github.com/akarpou/tradebook/internal/modules/trades"
)

// sltpEpsilon is the tolerance for detecting a moved stop-loss/take-profit.
// Broker feeds round price levels differently across messages.
const sltpEpsilon = 1e-6

const (
	tagSLMoved = "#SL moved"
	tagTPMoved = "#TP moved"
	tagPartial = "#partial"
)

const canceledNote = "Order canceled before fill"

// Result reports the outcome of reconciling one event.
type Result struct {
	AlreadyProcessed bool
	TradeID          string
}

// Reconciler applies lifecycle events to the journal. Each event runs inside
// one write transaction bracketed by the ledger check and the ledger insert,
// so an event's effects and its processed marker commit or roll back together.
type Reconciler struct {
	db       *sql.DB
	trades   *trades.Repository
	accounts *accounts.Repository
	ledger   *LedgerRepository
	log      zerolog.Logger
}

// NewReconciler creates a new lifecycle reconciler
func NewReconciler(db *sql.DB, tradesRepo *trades.Repository, accountsRepo *accounts.Repository, ledger *LedgerRepository, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		db:       db,
		trades:   tradesRepo,
		accounts: accountsRepo,
		ledger:   ledger,
		log:      log.With().Str("service", "reconciler").Logger(),
	}
}

// Process reconciles one event. Replays (the event id already in the ledger,
// or a concurrent duplicate losing the ledger-insert race) succeed with
// AlreadyProcessed set.
func (r *Reconciler) Process(event *Event) (*Result, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	result := &Result{}
	err := database.WithWriteTransaction(r.db, func(tx *sql.Tx) error {
		processed, err := r.ledger.HasProcessed(tx, event.EventID)
		if err != nil {
			return err
		}
		if processed {
			result.AlreadyProcessed = true
			return nil
		}

		exists, err := r.accounts.Exists(tx, event.AccountID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: account %s", domain.ErrNotFound, event.AccountID)
		}

		trade, err := r.dispatch(tx, event)
		if err != nil {
			return err
		}
		result.TradeID = trade.ID

		return r.ledger.Record(tx, event)
	})
	if err != nil {
		// A concurrent request recorded the same event first. Its effects
		// are committed, so this delivery reports the replay success.
		if errors.Is(err, domain.ErrDuplicateEvent) {
			r.log.Debug().Str("event_id", event.EventID).Msg("Concurrent duplicate event")
			return &Result{AlreadyProcessed: true}, nil
		}
		return nil, err
	}

	if result.AlreadyProcessed {
		r.log.Debug().Str("event_id", event.EventID).Msg("Event replayed")
	} else {
		r.log.Info().
			Str("event_id", event.EventID).
			Str("type", string(event.Type)).
			Str("trade_id", result.TradeID).
			Msg("Event reconciled")
	}

	return result, nil
}

func (r *Reconciler) dispatch(tx *sql.Tx, event *Event) (*trades.Trade, error) {
	switch event.Type {
	case EventOrderPlaced:
		return r.applyOrderPlaced(tx, event)
	case EventTradeOpened:
		return r.applyTradeOpened(tx, event)
	case EventSLTPUpdated:
		return r.applySLTPUpdated(tx, event)
	case EventPartialClosed:
		return r.applyPartialClosed(tx, event)
	case EventTradeClosed:
		return r.applyTradeClosed(tx, event)
	case EventOrderCanceled:
		return r.applyOrderCanceled(tx, event)
	default:
		return nil, fmt.Errorf("%w: unknown event type %q", domain.ErrValidation, event.Type)
	}
}

func (r *Reconciler) applyOrderPlaced(tx *sql.Tx, event *Event) (*trades.Trade, error) {
	var payload OrderPlacedPayload
	if err := decodePayload(event.Payload, &payload); err != nil {
		return nil, err
	}

	trade, err := r.trades.GetOrCreate(tx, event.AccountID, event.ExternalTradeID, payload.Symbol)
	if err != nil {
		return nil, err
	}

	applySymbol(trade, payload.Symbol)

	// A pending order is provisional: existing values win over the payload.
	trade.Direction = trades.Direction(trades.MergeString(string(trade.Direction), payload.Direction))
	trade.OrderType = trades.MergeString(trade.OrderType, payload.OrderType)
	trade.EntryPrice = trades.MergeFloat(trade.EntryPrice, payload.EntryPrice)
	trade.StopLoss = trades.MergeFloat(trade.StopLoss, payload.StopLoss)
	trade.TakeProfit = trades.MergeFloat(trade.TakeProfit, payload.TakeProfit)
	trade.Quantity = trades.MergeFloat(trade.Quantity, payload.Quantity)
	trade.Notes = trades.MergeString(trade.Notes, payload.Notes)
	trade.Tags = trades.MergeTags(trade.Tags, normalizeTags(payload.Tags))
	if trade.OpenedAt == nil {
		t := unixTime(payload.PlacedAt)
		trade.OpenedAt = &t
	}

	trade.Pending = true
	trade.Outcome = trades.OutcomeOpen
	trade.Status = trades.StatusOpen

	return trade, r.trades.Update(tx, trade)
}

func (r *Reconciler) applyTradeOpened(tx *sql.Tx, event *Event) (*trades.Trade, error) {
	var payload TradeOpenedPayload
	if err := decodePayload(event.Payload, &payload); err != nil {
		return nil, err
	}

	var trade *trades.Trade
	var err error
	if payload.PendingOrderID != "" {
		trade, err = r.trades.MergePendingIntoPosition(tx, event.AccountID, payload.PendingOrderID, event.ExternalTradeID, payload.Symbol)
	} else {
		trade, err = r.trades.GetOrCreate(tx, event.AccountID, event.ExternalTradeID, payload.Symbol)
	}
	if err != nil {
		return nil, err
	}

	applySymbol(trade, payload.Symbol)

	// The fill is the authority on these fields.
	if payload.Direction != "" {
		trade.Direction = trades.Direction(payload.Direction)
	}
	if payload.OrderType != "" {
		trade.OrderType = payload.OrderType
	}
	if payload.EntryPrice != nil {
		trade.EntryPrice = payload.EntryPrice
	}
	if payload.StopLoss != nil {
		trade.StopLoss = payload.StopLoss
	}
	if payload.TakeProfit != nil {
		trade.TakeProfit = payload.TakeProfit
	}
	if payload.Quantity != nil {
		trade.Quantity = payload.Quantity
	}
	openedAt := unixTime(payload.OpenedAt)
	trade.OpenedAt = &openedAt

	trade.Notes = trades.MergeString(trade.Notes, payload.Notes)
	trade.Tags = trades.MergeTags(trade.Tags, normalizeTags(payload.Tags))

	trade.Pending = false
	trade.Outcome = trades.OutcomeOpen
	trade.Status = trades.StatusOpen

	return trade, r.trades.Update(tx, trade)
}

func (r *Reconciler) applySLTPUpdated(tx *sql.Tx, event *Event) (*trades.Trade, error) {
	var payload SLTPUpdatedPayload
	if err := decodePayload(event.Payload, &payload); err != nil {
		return nil, err
	}

	trade, err := r.trades.GetOrCreate(tx, event.AccountID, event.ExternalTradeID, "")
	if err != nil {
		return nil, err
	}

	r.detectSLTPMove(trade, payload.StopLoss, payload.TakeProfit)

	if payload.StopLoss != nil {
		trade.FinalStopLoss = payload.StopLoss
	}
	if payload.TakeProfit != nil {
		trade.FinalTakeProfit = payload.TakeProfit
	}

	return trade, r.trades.Update(tx, trade)
}

func (r *Reconciler) applyPartialClosed(tx *sql.Tx, event *Event) (*trades.Trade, error) {
	var payload PartialClosedPayload
	if err := decodePayload(event.Payload, &payload); err != nil {
		return nil, err
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	trade, err := r.trades.GetOrCreate(tx, event.AccountID, event.ExternalTradeID, "")
	if err != nil {
		return nil, err
	}

	inserted, err := r.trades.AppendPartial(tx, trade.ID, trades.Partial{
		ID:       payload.PartialID,
		Quantity: payload.Quantity,
		Price:    payload.Price,
		PnL:      payload.PnL,
		ClosedAt: unixTime(payload.ClosedAt),
	})
	if err != nil {
		return nil, err
	}
	if !inserted {
		return trade, nil
	}

	trade.Partials = append(trade.Partials, trades.Partial{
		ID:       payload.PartialID,
		Quantity: payload.Quantity,
		Price:    payload.Price,
		PnL:      payload.PnL,
		ClosedAt: unixTime(payload.ClosedAt),
	})
	trade.Tags = trades.MergeTags(trade.Tags, []string{tagPartial})

	// Partials landing after the close re-derive the realized figure. Open
	// trades keep the partial on file; net P&L is finalized at close.
	if trade.IsClosed() {
		net := decimal.NewFromFloat(trade.CorePnL).
			Add(partialsSum(trade.Partials)).
			Sub(decimal.NewFromFloat(trade.Fees))
		trade.NetPnL, _ = net.Float64()
	}

	return trade, r.trades.Update(tx, trade)
}

func (r *Reconciler) applyTradeClosed(tx *sql.Tx, event *Event) (*trades.Trade, error) {
	var payload TradeClosedPayload
	if err := decodePayload(event.Payload, &payload); err != nil {
		return nil, err
	}

	trade, err := r.trades.GetOrCreate(tx, event.AccountID, event.ExternalTradeID, "")
	if err != nil {
		return nil, err
	}

	gross := decimal.NewFromFloat(payload.TotalGrossPnL)
	fees := decimal.NewFromFloat(payload.Fees)

	corePnL := gross.Sub(partialsSum(trade.Partials))
	netPnL := gross.Sub(fees)

	trade.CorePnL, _ = corePnL.Float64()
	trade.Fees, _ = fees.Float64()
	trade.NetPnL, _ = netPnL.Float64()

	switch {
	case netPnL.IsPositive():
		trade.Status = trades.StatusWin
	case netPnL.IsNegative():
		trade.Status = trades.StatusLoss
	default:
		trade.Status = trades.StatusBreakEven
	}

	// The balance sees each close exactly once, replays included.
	if !trade.BalanceApplied {
		if err := r.accounts.ApplyBalanceDelta(tx, event.AccountID, trade.NetPnL); err != nil {
			return nil, err
		}
		trade.BalanceApplied = true
	}

	r.detectSLTPMove(trade, payload.StopLoss, payload.TakeProfit)
	if payload.StopLoss != nil {
		trade.FinalStopLoss = payload.StopLoss
	}
	if payload.TakeProfit != nil {
		trade.FinalTakeProfit = payload.TakeProfit
	}
	if payload.ExitPrice != nil {
		trade.ExitPrice = payload.ExitPrice
	}
	closedAt := unixTime(payload.ClosedAt)
	trade.ClosedAt = &closedAt

	trade.Outcome = trades.OutcomeClosed
	trade.Pending = false

	return trade, r.trades.Update(tx, trade)
}

func (r *Reconciler) applyOrderCanceled(tx *sql.Tx, event *Event) (*trades.Trade, error) {
	var payload OrderCanceledPayload
	if err := decodePayload(event.Payload, &payload); err != nil {
		return nil, err
	}

	trade, err := r.trades.GetOrCreate(tx, event.AccountID, event.ExternalTradeID, "")
	if err != nil {
		return nil, err
	}

	trade.Outcome = trades.OutcomeMissed
	trade.Status = trades.StatusMissed
	trade.Pending = false

	note := canceledNote
	if payload.Reason != "" {
		note = fmt.Sprintf("%s: %s", canceledNote, payload.Reason)
	}
	if !strings.Contains(trade.Notes, canceledNote) {
		if trade.Notes != "" {
			trade.Notes += "\n"
		}
		trade.Notes += note
	}

	return trade, r.trades.Update(tx, trade)
}

// detectSLTPMove tags the trade when the reported stop or target differs from
// the level recorded at entry. Zero and missing levels are ignored: brokers
// report 0 for "no stop set".
func (r *Reconciler) detectSLTPMove(trade *trades.Trade, stopLoss, takeProfit *float64) {
	if moved(trade.StopLoss, stopLoss) {
		trade.Tags = trades.MergeTags(trade.Tags, []string{tagSLMoved})
	}
	if moved(trade.TakeProfit, takeProfit) {
		trade.Tags = trades.MergeTags(trade.Tags, []string{tagTPMoved})
	}
}

func moved(entry, current *float64) bool {
	if entry == nil || current == nil {
		return false
	}
	if *entry <= 0 || *current <= 0 {
		return false
	}
	return math.Abs(*entry-*current) > sltpEpsilon
}

func partialsSum(partials []trades.Partial) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range partials {
		sum = sum.Add(decimal.NewFromFloat(p.PnL))
	}
	return sum
}

// applySymbol records the raw symbol and its normalized form, preserving an
// existing normalization when the event omitted the symbol.
func applySymbol(trade *trades.Trade, rawSymbol string) {
	if rawSymbol == "" {
		return
	}
	trade.RawSymbol = rawSymbol
	trade.Symbol = symbols.NormalizeSymbol(rawSymbol)
}

// normalizeTags maps agent-supplied labels onto canonical tags, dropping
// empties.
func normalizeTags(raw []string) []string {
	var out []string
	for _, label := range raw {
		if normalized := symbols.NormalizeTagLabel(label); normalized != "" {
			out = append(out, normalized)
		}
	}
	return out
}
