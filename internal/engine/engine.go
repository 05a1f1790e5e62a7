// Package engine drives one complete synchronization run for one
// integration: account upsert, transaction fetch and idempotent
// ingestion, with a persisted run record.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ledgerlink-dev/ledgerlink/internal/ledger"
	"github.com/ledgerlink-dev/ledgerlink/internal/model"
	"github.com/ledgerlink-dev/ledgerlink/internal/provider"
)

// Options control the sync window for one run.
type Options struct {
	// Since bounds the transaction fetch. Nil with FullHistory false means
	// "since the last successful sync" when the integration has one.
	Since *time.Time
	// FullHistory fetches everything regardless of previous syncs.
	FullHistory bool
	// PageSize is passed to the provider as a hint.
	PageSize int
}

// Engine runs sync pipelines against a ledger store.
type Engine struct {
	store  ledger.Store
	logger *log.Logger
}

// New creates an Engine.
func New(store ledger.Store, logger *log.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// Sync performs one run for the integration using the given provider.
// Fetch-phase failures are fatal: the session ends failed. Per-item
// failures only land on the session's error list. The session is always
// finalized and the integration's last-sync fields always updated; the
// returned error is the fatal one, if any.
func (e *Engine) Sync(ctx context.Context, integ *model.Integration, p provider.Provider, opts Options) (*model.ImportSession, error) {
	session := model.NewImportSession(integ.ID, integ.UserID)
	if err := e.store.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("opening import session: %w", err)
	}
	e.logger.Info("sync started", "integration", integ.ID, "provider", p.Tag(), "session", session.ID)

	runErr := e.run(ctx, session, integ, p, opts)
	if runErr != nil {
		session.AddError("sync failed: %v", runErr)
		session.Fail()
	} else {
		session.Complete()
	}

	if err := e.store.SaveSession(ctx, session); err != nil {
		e.logger.Error("failed to persist session", "session", session.ID, "error", err)
	}
	e.finalizeIntegration(ctx, integ, runErr)

	e.logger.Info("sync finished", "session", session.ID, "status", session.Status,
		"accounts", session.AccountsImported, "imported", session.TransactionsImported,
		"skipped", session.TransactionsSkipped, "errors", len(session.Errors))
	return session, runErr
}

func (e *Engine) run(ctx context.Context, session *model.ImportSession, integ *model.Integration, p provider.Provider, opts Options) error {
	accounts, err := e.syncAccounts(ctx, session, integ, p)
	if err != nil {
		return err
	}

	txns, err := e.fetchTransactions(ctx, session, integ, p, opts)
	if err != nil {
		return err
	}

	for _, tx := range txns {
		if err := e.ingestTransaction(ctx, session, integ, p, accounts, tx); err != nil {
			// Item errors never abort the batch.
			session.AddError("transaction %s (%q): %v", tx.ExternalID, tx.Description, err)
		}
	}
	return nil
}

// syncAccounts upserts every provider account by (providerTag, externalID)
// and returns the resulting local accounts keyed by external id.
func (e *Engine) syncAccounts(ctx context.Context, session *model.ImportSession, integ *model.Integration, p provider.Provider) (map[string]*model.Account, error) {
	external, err := p.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching accounts: %w", err)
	}

	accounts := make(map[string]*model.Account, len(external))
	for _, ea := range external {
		local, err := e.store.FindAccountByExternal(ctx, integ.UserID, p.Tag(), ea.ExternalID)
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			local = &model.Account{
				UserID:      integ.UserID,
				Name:        ea.Name,
				Type:        ea.Type,
				Balance:     ea.Balance,
				Currency:    ea.Currency,
				IsLiability: ea.Type.IsLiability(),
				ProviderTag: string(p.Tag()),
				ExternalID:  ea.ExternalID,
			}
			if err := e.store.CreateAccount(ctx, local); err != nil {
				return nil, fmt.Errorf("creating account %q: %w", ea.Name, err)
			}
			session.AccountsImported++
			session.Logf(model.LogInfo, ea.ExternalID, "created account %q", ea.Name)
		case err != nil:
			return nil, fmt.Errorf("looking up account %q: %w", ea.Name, err)
		default:
			local.Name = ea.Name
			local.Balance = ea.Balance
			local.Currency = ea.Currency
			if err := e.store.UpdateAccount(ctx, local); err != nil {
				return nil, fmt.Errorf("updating account %q: %w", ea.Name, err)
			}
			session.Logf(model.LogInfo, ea.ExternalID, "updated account %q", ea.Name)
		}
		accounts[ea.ExternalID] = local
	}
	return accounts, nil
}

// fetchTransactions collects transactions for every synced account,
// bounded by the run's sync window.
func (e *Engine) fetchTransactions(ctx context.Context, session *model.ImportSession, integ *model.Integration, p provider.Provider, opts Options) ([]model.ExternalTransaction, error) {
	since := syncWindow(integ, opts)
	if since != nil {
		session.Logf(model.LogInfo, "", "fetching transactions since %s", since.Format(time.RFC3339))
	} else {
		session.Logf(model.LogInfo, "", "fetching full transaction history")
	}

	txns, err := p.ListTransactions(ctx, provider.TransactionFilter{
		Since:    since,
		PageSize: opts.PageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching transactions: %w", err)
	}
	session.Logf(model.LogInfo, "", "fetched %d transactions", len(txns))
	return txns, nil
}

// syncWindow decides the since bound: an explicit option wins, otherwise
// the last successful sync time unless full history was requested.
func syncWindow(integ *model.Integration, opts Options) *time.Time {
	if opts.FullHistory {
		return nil
	}
	if opts.Since != nil {
		return opts.Since
	}
	if integ.LastSyncStatus == model.SyncStatusSuccess && !integ.LastSyncAt.IsZero() {
		t := integ.LastSyncAt
		return &t
	}
	return nil
}

// ingestTransaction processes one external transaction: resolve the
// account, skip if already imported, resolve the category and create the
// ledger row with a single split.
func (e *Engine) ingestTransaction(ctx context.Context, session *model.ImportSession, integ *model.Integration, p provider.Provider, accounts map[string]*model.Account, tx model.ExternalTransaction) error {
	account, ok := accounts[tx.AccountExternalID]
	if !ok {
		return fmt.Errorf("no local account for external account %s", tx.AccountExternalID)
	}

	_, err := e.store.FindTransactionByExternalID(ctx, integ.UserID, account.ID, tx.ExternalID)
	if err == nil {
		session.TransactionsSkipped++
		return nil
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		return fmt.Errorf("idempotency lookup: %w", err)
	}

	category, err := e.store.FindOrCreateCategory(ctx, integ.UserID, p.MapCategory(tx.CategoryCode))
	if err != nil {
		return fmt.Errorf("resolving category: %w", err)
	}

	row := &model.Transaction{
		UserID:      integ.UserID,
		AccountID:   account.ID,
		Description: tx.Description,
		Amount:      tx.Amount,
		Direction:   tx.Direction,
		Date:        tx.Date,
		ExternalID:  tx.ExternalID,
		Notes:       tx.Metadata,
		Splits:      []model.Split{{Amount: tx.Amount, CategoryID: category.ID}},
	}
	if err := e.store.CreateTransaction(ctx, row); err != nil {
		if errors.Is(err, ledger.ErrDuplicate) {
			// Raced with an earlier import of the same external id.
			session.TransactionsSkipped++
			return nil
		}
		return fmt.Errorf("creating transaction: %w", err)
	}
	session.TransactionsImported++
	return nil
}

// finalizeIntegration publishes the run outcome onto the integration's
// last-sync fields.
func (e *Engine) finalizeIntegration(ctx context.Context, integ *model.Integration, runErr error) {
	integ.LastSyncAt = time.Now().UTC()
	if runErr != nil {
		integ.LastSyncStatus = model.SyncStatusError
		integ.LastError = runErr.Error()
	} else {
		integ.LastSyncStatus = model.SyncStatusSuccess
		integ.LastError = ""
	}
	if err := e.store.UpdateIntegration(ctx, integ); err != nil {
		e.logger.Error("failed to update integration status", "integration", integ.ID, "error", err)
	}
}
