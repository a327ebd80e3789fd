// Package trades owns the Trade ledger: repository operations, the
// trash/restore coordinator and the retention purger.
package trades

import (
	"strings"
	"time"
)

// Direction of a trade.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Status is the lifecycle status of a trade.
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusWin       Status = "WIN"
	StatusLoss      Status = "LOSS"
	StatusBreakEven Status = "BREAK_EVEN"
	StatusMissed    Status = "MISSED"
)

// Outcome is the coarse state of a trade.
type Outcome string

const (
	OutcomeOpen   Outcome = "Open"
	OutcomeClosed Outcome = "Closed"
	OutcomeMissed Outcome = "Missed"
)

// Trade is one journal entry. External id is the agent's identifier for a
// pending order or open position and is distinct from the internal row id.
//
// Optional numeric fields are pointers: nil means "not reported yet", which
// the field-merge policy treats differently from a reported zero.
type Trade struct {
	ID         string  `json:"id"`
	AccountID  string  `json:"accountId"`
	ExternalID *string `json:"externalId,omitempty"`

	RawSymbol string    `json:"rawSymbol"`
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction,omitempty"`
	OrderType string    `json:"orderType,omitempty"`
	Status    Status    `json:"status"`
	Outcome   Outcome   `json:"outcome"`
	Pending   bool      `json:"pending"`

	EntryPrice      *float64 `json:"entryPrice,omitempty"`
	StopLoss        *float64 `json:"stopLoss,omitempty"`
	TakeProfit      *float64 `json:"takeProfit,omitempty"`
	FinalStopLoss   *float64 `json:"finalStopLoss,omitempty"`
	FinalTakeProfit *float64 `json:"finalTakeProfit,omitempty"`
	ExitPrice       *float64 `json:"exitPrice,omitempty"`
	Quantity        *float64 `json:"quantity,omitempty"`

	// CorePnL is the gross P&L of the final full-close leg, excluding prior
	// partial-close contributions. NetPnL = gross - fees and is the value
	// applied to the account balance.
	CorePnL float64 `json:"corePnl"`
	Fees    float64 `json:"fees"`
	NetPnL  float64 `json:"netPnl"`

	// BalanceApplied is true iff NetPnL has been folded into the owning
	// account's balance. It flips false->true at most once per close; only a
	// trash reversal flips it back, and restore reapplies the delta without
	// ever resetting the flag first.
	BalanceApplied bool `json:"balanceApplied"`

	Tags        []string `json:"tags"`
	Notes       string   `json:"notes"`
	Screenshots []string `json:"screenshots"`

	Partials []Partial `json:"partials"`

	OpenedAt *time.Time `json:"openedAt,omitempty"`
	ClosedAt *time.Time `json:"closedAt,omitempty"`

	IsDeleted bool       `json:"isDeleted"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Partial is a partial close reported by the agent. The set of partials on a
// trade is append-only: a given partial id is recorded at most once.
type Partial struct {
	ID       string    `json:"id"`
	Quantity float64   `json:"quantity"`
	Price    float64   `json:"price"`
	PnL      float64   `json:"pnl"`
	ClosedAt time.Time `json:"closedAt"`
}

// IsClosed reports whether the trade reached its terminal closed outcome.
func (t *Trade) IsClosed() bool {
	return t.Outcome == OutcomeClosed
}

// HasPartial reports whether a partial with the given id is already recorded.
func (t *Trade) HasPartial(id string) bool {
	for _, p := range t.Partials {
		if p.ID == id {
			return true
		}
	}
	return false
}

// HasTag reports whether the trade carries the tag (case-insensitive).
func (t *Trade) HasTag(tag string) bool {
	for _, existing := range t.Tags {
		if strings.EqualFold(existing, tag) {
			return true
		}
	}
	return false
}
