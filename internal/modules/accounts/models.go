// Package accounts manages trading accounts and their balances.
//
// Account.Balance is the most contended value in the system. It is mutated
// only by: explicit deposit/withdraw, a trade's close-time net P&L applied
// exactly once, and trash/restore reversal/reapplication of that same net
// P&L. Every mutation goes through an atomic "balance = balance + ?"
// statement - never read-modify-write.
package accounts

import "time"

// SettlementCurrency is the single currency every account settles in.
const SettlementCurrency = "USD"

// Account represents a trading account owned by a user.
type Account struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Currency  string    `json:"currency"`
	Balance   float64   `json:"balance"`
	CreatedAt time.Time `json:"createdAt"`
}
