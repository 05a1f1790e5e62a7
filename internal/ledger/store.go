// Package ledger provides access to the local ledger: accounts,
// transactions, categories, integrations and import sessions.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerlink-dev/ledgerlink/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("ledger: not found")

// ErrDuplicate is returned when a uniqueness constraint would be violated,
// e.g. a second transaction with the same (account, external id).
var ErrDuplicate = errors.New("ledger: duplicate")

// TransactionMatch identifies a transaction by its visible attributes.
// Used by the CSV pipeline, which has no external ids to dedup on.
type TransactionMatch struct {
	AccountID   string
	Description string
	Date        time.Time
	Amount      decimal.Decimal
	Direction   model.Direction
}

// Store is the ledger access contract consumed by the sync engine, the
// CSV import pipeline and the integration manager.
type Store interface {
	// FindAccountByExternal looks up an account by its provider link.
	FindAccountByExternal(ctx context.Context, userID string, tag model.ProviderType, externalID string) (*model.Account, error)
	GetAccount(ctx context.Context, userID, id string) (*model.Account, error)
	CreateAccount(ctx context.Context, a *model.Account) error
	UpdateAccount(ctx context.Context, a *model.Account) error

	// FindTransactionByExternalID is the idempotency check for synced
	// transactions: at most one row per (account, external id).
	FindTransactionByExternalID(ctx context.Context, userID, accountID, externalID string) (*model.Transaction, error)
	// FindTransactionByMatch is the CSV duplicate check.
	FindTransactionByMatch(ctx context.Context, userID string, m TransactionMatch) (*model.Transaction, error)
	CreateTransaction(ctx context.Context, t *model.Transaction) error
	CountTransactions(ctx context.Context, userID, accountID string) (int, error)

	FindOrCreateCategory(ctx context.Context, userID, name string) (*model.Category, error)

	CreateIntegration(ctx context.Context, i *model.Integration) error
	UpdateIntegration(ctx context.Context, i *model.Integration) error
	GetIntegration(ctx context.Context, userID, id string) (*model.Integration, error)
	ListIntegrations(ctx context.Context, userID string) ([]model.Integration, error)
	DeleteIntegration(ctx context.Context, userID, id string) error

	// SaveSession inserts or replaces an import session. Called once when
	// a run opens and once when it finalizes.
	SaveSession(ctx context.Context, s *model.ImportSession) error
	ListSessions(ctx context.Context, integrationID string) ([]model.ImportSession, error)
}
