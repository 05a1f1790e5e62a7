// Package provider defines the contract every external data source
// implements, plus the shared category mapping used by all providers.
package provider

import (
	"context"
	"time"

	"github.com/ledgerlink-dev/ledgerlink/internal/model"
)

// TransactionFilter narrows a ListTransactions call. The zero value means
// full history across all accounts.
type TransactionFilter struct {
	AccountExternalID string
	Since             *time.Time
	Until             *time.Time
	PageSize          int // hint only, providers may clamp or ignore
}

// ValidationResult reports whether a provider's configuration is usable.
type ValidationResult struct {
	IsValid bool
	Errors  []string
}

// Invalid builds a failed ValidationResult from error messages.
func Invalid(errs ...string) ValidationResult {
	return ValidationResult{Errors: errs}
}

// Valid is the successful ValidationResult.
func Valid() ValidationResult {
	return ValidationResult{IsValid: true}
}

// Provider is a source of external financial data. Implementations fetch
// data only; persistence belongs to the sync engine (the CSV provider is
// the one exception and documents why).
type Provider interface {
	// Tag identifies the provider type; it scopes external account ids.
	Tag() model.ProviderType

	// TestConnection is a lightweight liveness/auth check. Expected auth
	// failures return false, not an error.
	TestConnection(ctx context.Context) bool

	// ListAccounts returns the full current snapshot of provider accounts.
	ListAccounts(ctx context.Context) ([]model.ExternalAccount, error)

	// ListTransactions returns transactions matching the filter.
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]model.ExternalTransaction, error)

	// MapCategory converts a provider category code to an internal category
	// name. Total: unknown codes map to Uncategorized, never an error.
	MapCategory(code string) string

	// ValidateConfig checks the provider's configuration, structurally and
	// (where it applies) with a live connection test.
	ValidateConfig(ctx context.Context) ValidationResult
}
