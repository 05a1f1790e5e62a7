package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction tells whether a transaction moves money in or out.
type Direction string

const (
	DirectionIncome  Direction = "income"
	DirectionExpense Direction = "expense"
)

// Category is a spending category, resolved or lazily created by name.
type Category struct {
	ID     string
	UserID string
	Name   string
}

// Split assigns (part of) a transaction amount to a category.
type Split struct {
	ID         string
	Amount     decimal.Decimal // unsigned
	CategoryID string
}

// Transaction is a ledger transaction. Amount is always unsigned; Direction
// carries the sign. ExternalID is set for imported transactions and is the
// dedup key, unique per (AccountID, ExternalID) — matching never parses
// the free-form notes.
type Transaction struct {
	ID          string
	UserID      string
	AccountID   string
	Description string
	Amount      decimal.Decimal // unsigned
	Direction   Direction
	Date        time.Time
	ExternalID  string // empty for manually entered transactions
	Notes       string // raw provider metadata kept for audit
	Splits      []Split
	CreatedAt   time.Time
}
