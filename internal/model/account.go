package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType classifies ledger accounts.
type AccountType string

const (
	AccountTypeChecking   AccountType = "checking"
	AccountTypeSavings    AccountType = "savings"
	AccountTypeCreditCard AccountType = "credit_card"
	AccountTypeLoan       AccountType = "loan"
	AccountTypeCash       AccountType = "cash"
)

// IsLiability reports whether balances of this account type represent debt.
func (t AccountType) IsLiability() bool {
	return t == AccountTypeCreditCard || t == AccountTypeLoan
}

// Account is a ledger account, optionally linked to an external provider
// account via (ProviderTag, ExternalID). That pair is the upsert key during
// sync: a provider account is matched or created exactly once.
type Account struct {
	ID          string
	UserID      string
	Name        string
	Type        AccountType
	Balance     decimal.Decimal
	Currency    string
	IsLiability bool
	ProviderTag string // empty for manually created accounts
	ExternalID  string // provider's account id, empty for manual accounts
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
