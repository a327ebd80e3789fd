// Package webhook ingests trade lifecycle events from the trading agent and
// reconciles them into the journal. Delivery is at-least-once with no ordering
// guarantee, so every handler path is idempotent and tolerates events arriving
// in any order.
package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/akarpou/tradebook/internal/domain"
)

// EventType identifies a lifecycle event.
type EventType string

const (
	EventOrderPlaced   EventType = "ORDER_PLACED"
	EventTradeOpened   EventType = "TRADE_OPENED"
	EventSLTPUpdated   EventType = "SLTP_UPDATED"
	EventPartialClosed EventType = "PARTIAL_CLOSED"
	EventTradeClosed   EventType = "TRADE_CLOSED"
	EventOrderCanceled EventType = "ORDER_CANCELED"
)

var validEventTypes = map[EventType]bool{
	EventOrderPlaced:   true,
	EventTradeOpened:   true,
	EventSLTPUpdated:   true,
	EventPartialClosed: true,
	EventTradeClosed:   true,
	EventOrderCanceled: true,
}

// Event is the webhook envelope. Payload stays raw until the type is known.
type Event struct {
	EventID         string          `json:"eventId"`
	AccountID       string          `json:"accountId"`
	ExternalTradeID string          `json:"externalTradeId"`
	Type            EventType       `json:"type"`
	Payload         json.RawMessage `json:"payload"`
}

// Validate checks the envelope before any transaction is opened.
func (e *Event) Validate() error {
	if strings.TrimSpace(e.EventID) == "" {
		return fmt.Errorf("%w: eventId is required", domain.ErrValidation)
	}
	if strings.TrimSpace(e.AccountID) == "" {
		return fmt.Errorf("%w: accountId is required", domain.ErrValidation)
	}
	if strings.TrimSpace(e.ExternalTradeID) == "" {
		return fmt.Errorf("%w: externalTradeId is required", domain.ErrValidation)
	}
	if !validEventTypes[e.Type] {
		return fmt.Errorf("%w: unknown event type %q", domain.ErrValidation, e.Type)
	}
	return nil
}

// Payload shapes per event type. Optional numbers are pointers: the agent
// omitting a field means "not reported", which must stay distinct from zero.

// OrderPlacedPayload describes a pending order.
type OrderPlacedPayload struct {
	Symbol     string   `json:"symbol"`
	Direction  string   `json:"direction"`
	OrderType  string   `json:"orderType"`
	EntryPrice *float64 `json:"entryPrice"`
	StopLoss   *float64 `json:"stopLoss"`
	TakeProfit *float64 `json:"takeProfit"`
	Quantity   *float64 `json:"quantity"`
	Tags       []string `json:"tags"`
	Notes      string   `json:"notes"`
	PlacedAt   int64    `json:"placedAt"`
}

// TradeOpenedPayload describes a filled position. PendingOrderID carries the
// external id of the order the fill originated from, when the agent knows it.
type TradeOpenedPayload struct {
	PendingOrderID string   `json:"pendingOrderId"`
	Symbol         string   `json:"symbol"`
	Direction      string   `json:"direction"`
	OrderType      string   `json:"orderType"`
	EntryPrice     *float64 `json:"entryPrice"`
	StopLoss       *float64 `json:"stopLoss"`
	TakeProfit     *float64 `json:"takeProfit"`
	Quantity       *float64 `json:"quantity"`
	Tags           []string `json:"tags"`
	Notes          string   `json:"notes"`
	OpenedAt       int64    `json:"openedAt"`
}

// SLTPUpdatedPayload carries the latest stop-loss / take-profit levels.
type SLTPUpdatedPayload struct {
	StopLoss   *float64 `json:"stopLoss"`
	TakeProfit *float64 `json:"takeProfit"`
}

// PartialClosedPayload describes one partial close.
type PartialClosedPayload struct {
	PartialID string  `json:"partialId"`
	Quantity  float64 `json:"quantity"`
	Price     float64 `json:"price"`
	PnL       float64 `json:"pnl"`
	ClosedAt  int64   `json:"closedAt"`
}

// Validate checks the partial payload.
func (p *PartialClosedPayload) Validate() error {
	if strings.TrimSpace(p.PartialID) == "" {
		return fmt.Errorf("%w: partialId is required", domain.ErrValidation)
	}
	return nil
}

// TradeClosedPayload describes a fully closed trade. TotalGrossPnL is the
// broker's gross figure for the whole position including partials.
type TradeClosedPayload struct {
	TotalGrossPnL float64  `json:"totalGrossPnl"`
	Fees          float64  `json:"fees"`
	ExitPrice     *float64 `json:"exitPrice"`
	StopLoss      *float64 `json:"stopLoss"`
	TakeProfit    *float64 `json:"takeProfit"`
	ClosedAt      int64    `json:"closedAt"`
}

// OrderCanceledPayload describes a canceled pending order.
type OrderCanceledPayload struct {
	Reason     string `json:"reason"`
	CanceledAt int64  `json:"canceledAt"`
}

// decodePayload unmarshals the raw payload into dst, treating a missing
// payload as an empty object and a malformed one as a validation error.
func decodePayload(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: malformed payload: %v", domain.ErrValidation, err)
	}
	return nil
}

// unixTime converts an agent timestamp to UTC, defaulting to now when the
// agent omitted it.
func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(sec, 0).UTC()
}
