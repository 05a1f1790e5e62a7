package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExternalAccount is a provider's view of an account. It is transient:
// produced by a provider, consumed by the sync engine, never persisted.
type ExternalAccount struct {
	ExternalID string
	Name       string
	Type       AccountType
	Balance    decimal.Decimal
	Currency   string
}

// ExternalTransaction is a provider's view of a transaction. Amount is
// unsigned; Direction carries the sign, matching the ledger convention.
type ExternalTransaction struct {
	ExternalID        string
	AccountExternalID string
	Description       string
	Amount            decimal.Decimal // unsigned
	Direction         Direction
	Date              time.Time
	CategoryCode      string // provider vocabulary, mapped before ingestion
	Metadata          string // raw provider payload, kept on the ledger row
}
