package webhook

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akarpou/tradebook/internal/database"
	"github.com/akarpou/tradebook/internal/domain"
	"github.com/akarpou/tradebook/internal/modules/accounts"
	"github.com/akarpou/tradebook/internal/modules/trades"
	testhelpers "github.com/akarpou/tradebook/internal/testing"
)

type fixture struct {
	db         *database.DB
	reconciler *Reconciler
	trades     *trades.Repository
	accountID  string
}

func newFixture(t *testing.T, startingBalance float64) *fixture {
	t.Helper()

	db, cleanup := testhelpers.NewTestDB(t)
	t.Cleanup(cleanup)

	log := zerolog.New(nil).Level(zerolog.Disabled)
	tradesRepo := trades.NewRepository(db.Conn(), log)
	accountsRepo := accounts.NewRepository(db.Conn(), log)
	ledger := NewLedgerRepository(log)

	return &fixture{
		db:         db,
		reconciler: NewReconciler(db.Conn(), tradesRepo, accountsRepo, ledger, log),
		trades:     tradesRepo,
		accountID:  testhelpers.SeedAccount(t, db, "user-1", startingBalance),
	}
}

func (f *fixture) event(t *testing.T, eventID, externalTradeID string, eventType EventType, payload interface{}) *Event {
	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	return &Event{
		EventID:         eventID,
		AccountID:       f.accountID,
		ExternalTradeID: externalTradeID,
		Type:            eventType,
		Payload:         raw,
	}
}

func (f *fixture) trade(t *testing.T, externalTradeID string) *trades.Trade {
	t.Helper()

	trade, err := f.trades.FindByExternalID(f.db.Conn(), f.accountID, externalTradeID)
	require.NoError(t, err)
	require.NotNil(t, trade)
	return trade
}

func floatPtr(f float64) *float64 {
	return &f
}

func TestProcess_ValidationRejectsBeforeAnyEffect(t *testing.T) {
	f := newFixture(t, 0)

	testCases := []struct {
		name  string
		event *Event
	}{
		{"missing event id", &Event{AccountID: "a", ExternalTradeID: "x", Type: EventTradeOpened}},
		{"missing account id", &Event{EventID: "e", ExternalTradeID: "x", Type: EventTradeOpened}},
		{"missing external trade id", &Event{EventID: "e", AccountID: "a", Type: EventTradeOpened}},
		{"unknown type", &Event{EventID: "e", AccountID: "a", ExternalTradeID: "x", Type: "TRADE_EXPLODED"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.reconciler.Process(tc.event)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestProcess_UnknownAccountIsNotFound(t *testing.T) {
	f := newFixture(t, 0)

	event := f.event(t, "evt-1", "ext-1", EventTradeOpened, TradeOpenedPayload{Symbol: "EURUSD"})
	event.AccountID = "no-such-account"

	_, err := f.reconciler.Process(event)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProcess_ReplayIsIdempotent(t *testing.T) {
	f := newFixture(t, 10000)

	closed := f.event(t, "evt-close", "pos-1", EventTradeClosed, TradeClosedPayload{
		TotalGrossPnL: 50,
		Fees:          2,
	})

	result, err := f.reconciler.Process(closed)
	require.NoError(t, err)
	assert.False(t, result.AlreadyProcessed)
	assert.Equal(t, 10048.0, testhelpers.AccountBalance(t, f.db, f.accountID))

	// Same event id again: success, no second application.
	result, err = f.reconciler.Process(closed)
	require.NoError(t, err)
	assert.True(t, result.AlreadyProcessed)
	assert.Equal(t, 10048.0, testhelpers.AccountBalance(t, f.db, f.accountID))
}

func TestProcess_DistinctCloseEventsDoNotDoubleApply(t *testing.T) {
	f := newFixture(t, 10000)

	first := f.event(t, "evt-close-1", "pos-1", EventTradeClosed, TradeClosedPayload{TotalGrossPnL: 50, Fees: 2})
	_, err := f.reconciler.Process(first)
	require.NoError(t, err)

	// The agent re-reports the close under a fresh event id. balanceApplied
	// guards the balance even though the ledger sees a new event.
	second := f.event(t, "evt-close-2", "pos-1", EventTradeClosed, TradeClosedPayload{TotalGrossPnL: 50, Fees: 2})
	_, err = f.reconciler.Process(second)
	require.NoError(t, err)

	assert.Equal(t, 10048.0, testhelpers.AccountBalance(t, f.db, f.accountID))
}

func TestProcess_OrderPlacedCreatesPendingTrade(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.reconciler.Process(f.event(t, "evt-1", "order-1", EventOrderPlaced, OrderPlacedPayload{
		Symbol:     "EURUSD.a",
		Direction:  "LONG",
		OrderType:  "LIMIT",
		EntryPrice: floatPtr(1.0850),
		StopLoss:   floatPtr(1.0800),
		TakeProfit: floatPtr(1.0950),
		Tags:       []string{"breakout"},
	}))
	require.NoError(t, err)

	trade := f.trade(t, "order-1")
	assert.True(t, trade.Pending)
	assert.Equal(t, trades.StatusOpen, trade.Status)
	assert.Equal(t, "EURUSD.a", trade.RawSymbol)
	assert.Equal(t, "EURUSD", trade.Symbol, "symbol must be normalized")
	assert.Equal(t, []string{"Breakout"}, trade.Tags, "tag label must be normalized to canonical casing")
}

func TestProcess_TradeOpenedMergesPendingOrder(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.reconciler.Process(f.event(t, "evt-1", "order-1", EventOrderPlaced, OrderPlacedPayload{
		Symbol:   "EURUSD.a",
		StopLoss: floatPtr(1.0800),
		Tags:     []string{"breakout"},
	}))
	require.NoError(t, err)
	pendingID := f.trade(t, "order-1").ID

	_, err = f.reconciler.Process(f.event(t, "evt-2", "pos-9", EventTradeOpened, TradeOpenedPayload{
		PendingOrderID: "order-1",
		Symbol:         "EURUSD.a",
		Direction:      "LONG",
		EntryPrice:     floatPtr(1.0852),
		Quantity:       floatPtr(1.0),
	}))
	require.NoError(t, err)

	trade := f.trade(t, "pos-9")
	assert.Equal(t, pendingID, trade.ID, "open must re-key the pending row, not create a second one")
	assert.False(t, trade.Pending)
	assert.Equal(t, trades.DirectionLong, trade.Direction)
	require.NotNil(t, trade.EntryPrice)
	assert.Equal(t, 1.0852, *trade.EntryPrice, "the fill is authoritative for entry price")
	require.NotNil(t, trade.StopLoss)
	assert.Equal(t, 1.0800, *trade.StopLoss, "stop from the pending order survives the merge")
	assert.Equal(t, []string{"Breakout"}, trade.Tags)
}

func TestProcess_CloseBeforeOpenIsTolerated(t *testing.T) {
	f := newFixture(t, 10000)

	// The close arrives first: a placeholder row absorbs it.
	_, err := f.reconciler.Process(f.event(t, "evt-close", "pos-1", EventTradeClosed, TradeClosedPayload{
		TotalGrossPnL: -30,
		Fees:          2,
	}))
	require.NoError(t, err)

	trade := f.trade(t, "pos-1")
	assert.Equal(t, trades.StatusLoss, trade.Status)
	assert.Equal(t, trades.OutcomeClosed, trade.Outcome)
	assert.Equal(t, -32.0, trade.NetPnL)
	assert.Equal(t, 9968.0, testhelpers.AccountBalance(t, f.db, f.accountID))

	// The late open fills the gaps without reopening the trade's economics.
	_, err = f.reconciler.Process(f.event(t, "evt-open", "pos-1", EventTradeOpened, TradeOpenedPayload{
		Symbol:     "EURUSD.a",
		Direction:  "SHORT",
		EntryPrice: floatPtr(1.0900),
	}))
	require.NoError(t, err)

	trade = f.trade(t, "pos-1")
	assert.Equal(t, "EURUSD", trade.Symbol)
	assert.Equal(t, trades.DirectionShort, trade.Direction)
	assert.Equal(t, -32.0, trade.NetPnL, "late open must not disturb the realized P&L")
	assert.Equal(t, 9968.0, testhelpers.AccountBalance(t, f.db, f.accountID))
}

func TestProcess_SLTPMoveIsTagged(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.reconciler.Process(f.event(t, "evt-1", "pos-1", EventTradeOpened, TradeOpenedPayload{
		Symbol:     "EURUSD",
		StopLoss:   floatPtr(1.0800),
		TakeProfit: floatPtr(1.0950),
	}))
	require.NoError(t, err)

	_, err = f.reconciler.Process(f.event(t, "evt-2", "pos-1", EventSLTPUpdated, SLTPUpdatedPayload{
		StopLoss:   floatPtr(1.0830),
		TakeProfit: floatPtr(1.0950),
	}))
	require.NoError(t, err)

	trade := f.trade(t, "pos-1")
	assert.Contains(t, trade.Tags, "#SL moved")
	assert.NotContains(t, trade.Tags, "#TP moved", "an unchanged take profit must not be tagged")
	require.NotNil(t, trade.FinalStopLoss)
	assert.Equal(t, 1.0830, *trade.FinalStopLoss)
}

func TestProcess_SLTPZeroLevelsAreIgnored(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.reconciler.Process(f.event(t, "evt-1", "pos-1", EventTradeOpened, TradeOpenedPayload{
		Symbol:   "EURUSD",
		StopLoss: floatPtr(1.0800),
	}))
	require.NoError(t, err)

	// Brokers report 0 for "no stop set"; that is not a move.
	_, err = f.reconciler.Process(f.event(t, "evt-2", "pos-1", EventSLTPUpdated, SLTPUpdatedPayload{
		StopLoss: floatPtr(0),
	}))
	require.NoError(t, err)

	trade := f.trade(t, "pos-1")
	assert.NotContains(t, trade.Tags, "#SL moved")
}

func TestProcess_PartialClosedAppendsOnce(t *testing.T) {
	f := newFixture(t, 0)

	partial := PartialClosedPayload{PartialID: "p-1", Quantity: 0.5, Price: 1.0900, PnL: 25}

	_, err := f.reconciler.Process(f.event(t, "evt-1", "pos-1", EventPartialClosed, partial))
	require.NoError(t, err)

	// A second partial event with the same partial id under a new event id.
	_, err = f.reconciler.Process(f.event(t, "evt-2", "pos-1", EventPartialClosed, partial))
	require.NoError(t, err)

	trade := f.trade(t, "pos-1")
	require.Len(t, trade.Partials, 1, "the partials set is append-only and keyed by partial id")
	assert.Contains(t, trade.Tags, "#partial")
}

func TestProcess_PartialAfterCloseRecomputesNetPnL(t *testing.T) {
	f := newFixture(t, 10000)

	_, err := f.reconciler.Process(f.event(t, "evt-close", "pos-1", EventTradeClosed, TradeClosedPayload{
		TotalGrossPnL: 100,
		Fees:          4,
	}))
	require.NoError(t, err)

	trade := f.trade(t, "pos-1")
	assert.Equal(t, 100.0, trade.CorePnL)
	assert.Equal(t, 96.0, trade.NetPnL)

	// A partial arriving after the close re-derives net P&L from core + partials - fees.
	_, err = f.reconciler.Process(f.event(t, "evt-partial", "pos-1", EventPartialClosed, PartialClosedPayload{
		PartialID: "p-1", Quantity: 0.5, Price: 1.09, PnL: 40,
	}))
	require.NoError(t, err)

	trade = f.trade(t, "pos-1")
	assert.Equal(t, 136.0, trade.NetPnL)
}

func TestProcess_CloseSubtractsExistingPartialsFromCore(t *testing.T) {
	f := newFixture(t, 10000)

	_, err := f.reconciler.Process(f.event(t, "evt-partial", "pos-1", EventPartialClosed, PartialClosedPayload{
		PartialID: "p-1", Quantity: 0.5, Price: 1.09, PnL: 40,
	}))
	require.NoError(t, err)

	_, err = f.reconciler.Process(f.event(t, "evt-close", "pos-1", EventTradeClosed, TradeClosedPayload{
		TotalGrossPnL: 100,
		Fees:          4,
	}))
	require.NoError(t, err)

	trade := f.trade(t, "pos-1")
	assert.Equal(t, 60.0, trade.CorePnL, "core P&L excludes the partials' share of the gross figure")
	assert.Equal(t, 96.0, trade.NetPnL)
	assert.Equal(t, 10096.0, testhelpers.AccountBalance(t, f.db, f.accountID))
}

func TestProcess_OrderCanceledMarksMissed(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.reconciler.Process(f.event(t, "evt-1", "order-1", EventOrderPlaced, OrderPlacedPayload{Symbol: "US30.cash"}))
	require.NoError(t, err)

	_, err = f.reconciler.Process(f.event(t, "evt-2", "order-1", EventOrderCanceled, OrderCanceledPayload{Reason: "expired"}))
	require.NoError(t, err)

	trade := f.trade(t, "order-1")
	assert.Equal(t, trades.StatusMissed, trade.Status)
	assert.Equal(t, trades.OutcomeMissed, trade.Outcome)
	assert.False(t, trade.Pending)
	assert.Contains(t, trade.Notes, "Order canceled before fill: expired")

	notesBefore := trade.Notes

	// A second cancel event does not duplicate the audit note.
	_, err = f.reconciler.Process(f.event(t, "evt-3", "order-1", EventOrderCanceled, OrderCanceledPayload{Reason: "expired"}))
	require.NoError(t, err)

	trade = f.trade(t, "order-1")
	assert.Equal(t, notesBefore, trade.Notes)
}

// TestProcess_FullLifecycleScenario walks one trade through place, open,
// SL move, partial close, full close, and verifies the account balance at
// each step that touches it.
func TestProcess_FullLifecycleScenario(t *testing.T) {
	f := newFixture(t, 10000)

	_, err := f.reconciler.Process(f.event(t, "evt-1", "order-1", EventOrderPlaced, OrderPlacedPayload{
		Symbol:     "EURUSD.a",
		Direction:  "LONG",
		EntryPrice: floatPtr(1.0850),
		StopLoss:   floatPtr(1.0800),
		TakeProfit: floatPtr(1.0950),
	}))
	require.NoError(t, err)

	_, err = f.reconciler.Process(f.event(t, "evt-2", "pos-1", EventTradeOpened, TradeOpenedPayload{
		PendingOrderID: "order-1",
		Symbol:         "EURUSD.a",
		Direction:      "LONG",
		EntryPrice:     floatPtr(1.0851),
		StopLoss:       floatPtr(1.0800),
		TakeProfit:     floatPtr(1.0950),
		Quantity:       floatPtr(1.0),
	}))
	require.NoError(t, err)

	_, err = f.reconciler.Process(f.event(t, "evt-3", "pos-1", EventSLTPUpdated, SLTPUpdatedPayload{
		StopLoss: floatPtr(1.0851),
	}))
	require.NoError(t, err)

	_, err = f.reconciler.Process(f.event(t, "evt-4", "pos-1", EventPartialClosed, PartialClosedPayload{
		PartialID: "p-1", Quantity: 0.5, Price: 1.0900, PnL: 24.5,
	}))
	require.NoError(t, err)

	assert.Equal(t, 10000.0, testhelpers.AccountBalance(t, f.db, f.accountID), "nothing reaches the balance before the close")

	_, err = f.reconciler.Process(f.event(t, "evt-5", "pos-1", EventTradeClosed, TradeClosedPayload{
		TotalGrossPnL: 50,
		Fees:          2,
		ExitPrice:     floatPtr(1.0901),
	}))
	require.NoError(t, err)

	trade := f.trade(t, "pos-1")
	assert.Equal(t, trades.StatusWin, trade.Status)
	assert.Equal(t, trades.OutcomeClosed, trade.Outcome)
	assert.Equal(t, 48.0, trade.NetPnL)
	assert.Equal(t, 25.5, trade.CorePnL)
	assert.True(t, trade.BalanceApplied)
	assert.Contains(t, trade.Tags, "#SL moved")
	assert.Contains(t, trade.Tags, "#partial")
	assert.Equal(t, 10048.0, testhelpers.AccountBalance(t, f.db, f.accountID))
}

func TestLedgerRecord_DuplicateIsDetected(t *testing.T) {
	f := newFixture(t, 0)
	ledger := NewLedgerRepository(zerolog.New(nil).Level(zerolog.Disabled))

	event := &Event{
		EventID:         "evt-dup",
		AccountID:       f.accountID,
		ExternalTradeID: "pos-1",
		Type:            EventTradeOpened,
	}

	require.NoError(t, ledger.Record(f.db.Conn(), event))

	processed, err := ledger.HasProcessed(f.db.Conn(), "evt-dup")
	require.NoError(t, err)
	assert.True(t, processed)

	err = ledger.Record(f.db.Conn(), event)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDuplicateEvent)
}

func TestProcess_ManyEventsKeepBalanceConsistent(t *testing.T) {
	f := newFixture(t, 10000)

	// Ten independent trades, each closed once, some replayed.
	for i := 0; i < 10; i++ {
		ext := fmt.Sprintf("pos-%d", i)
		event := f.event(t, fmt.Sprintf("evt-%d", i), ext, EventTradeClosed, TradeClosedPayload{
			TotalGrossPnL: 10,
			Fees:          1,
		})
		_, err := f.reconciler.Process(event)
		require.NoError(t, err)

		if i%2 == 0 {
			_, err = f.reconciler.Process(event)
			require.NoError(t, err)
		}
	}

	assert.Equal(t, 10090.0, testhelpers.AccountBalance(t, f.db, f.accountID))
}
