// Package csvfile implements the provider contract for delimited-text
// exports tied to one pre-selected ledger account. Unlike the REST
// provider it owns its own ingestion pipeline: with a single known
// account there is no discovery or upsert phase, so running the general
// sync engine would only add indirection.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ledgerlink-dev/ledgerlink/internal/ledger"
	"github.com/ledgerlink-dev/ledgerlink/internal/model"
	"github.com/ledgerlink-dev/ledgerlink/internal/provider"
)

// ColumnMapping assigns CSV column indexes to transaction fields.
// Category is optional; nil means the file has no category column.
type ColumnMapping struct {
	Date        int  `json:"date"`
	Description int  `json:"description"`
	Amount      int  `json:"amount"`
	Category    *int `json:"category,omitempty"`
}

// Config is the csv integration configuration. The text blob itself is
// supplied per import, not stored with the integration.
type Config struct {
	AccountID  string        `json:"accountId"` // ledger account the file belongs to
	Delimiter  string        `json:"delimiter"` // default ","
	HasHeader  bool          `json:"hasHeader"`
	DateFormat string        `json:"dateFormat"` // "auto" or a pattern like "DD/MM/YYYY"
	Columns    ColumnMapping `json:"columnMapping"`
}

// Provider implements the provider contract over an in-memory CSV blob.
type Provider struct {
	cfg    Config
	data   []byte
	userID string
	store  ledger.Store
	logger *log.Logger
}

// New creates a Provider. data may be nil when only validation or
// connection testing is needed.
func New(cfg Config, data []byte, userID string, store ledger.Store, logger *log.Logger) *Provider {
	return &Provider{cfg: cfg, data: data, userID: userID, store: store, logger: logger}
}

// Tag identifies this provider type.
func (p *Provider) Tag() model.ProviderType { return model.ProviderCSV }

// TestConnection checks that the configured ledger account exists.
func (p *Provider) TestConnection(ctx context.Context) bool {
	_, err := p.store.GetAccount(ctx, p.userID, p.cfg.AccountID)
	return err == nil
}

// ListAccounts returns the single configured account in its external
// representation. There is no discovery phase for file imports.
func (p *Provider) ListAccounts(ctx context.Context) ([]model.ExternalAccount, error) {
	a, err := p.store.GetAccount(ctx, p.userID, p.cfg.AccountID)
	if err != nil {
		return nil, fmt.Errorf("loading account %s: %w", p.cfg.AccountID, err)
	}
	return []model.ExternalAccount{{
		ExternalID: a.ID,
		Name:       a.Name,
		Type:       a.Type,
		Balance:    a.Balance,
		Currency:   a.Currency,
	}}, nil
}

// ListTransactions parses the blob. Malformed rows are skipped; the
// Import pipeline surfaces them as warnings on the session.
func (p *Provider) ListTransactions(_ context.Context, _ provider.TransactionFilter) ([]model.ExternalTransaction, error) {
	txns, rowErrs, err := p.parseRows()
	if err != nil {
		return nil, err
	}
	for _, re := range rowErrs {
		p.logger.Warn("skipping malformed row", "row", re.row, "error", re.err)
	}
	return txns, nil
}

// MapCategory normalizes a file category value. The file's category
// column is the user's own vocabulary: empty maps to the fallback,
// anything else is kept with canonical casing.
func (p *Provider) MapCategory(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return provider.Uncategorized
	}
	words := strings.Fields(strings.ToLower(code))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// ValidateConfig checks the mapping structurally and verifies the target
// account exists.
func (p *Provider) ValidateConfig(ctx context.Context) provider.ValidationResult {
	var errs []string
	if p.cfg.AccountID == "" {
		errs = append(errs, "accountId is required")
	}
	if len([]rune(p.delimiter())) != 1 {
		errs = append(errs, fmt.Sprintf("delimiter must be a single character, got %q", p.cfg.Delimiter))
	}
	if p.cfg.Columns.Date < 0 || p.cfg.Columns.Description < 0 || p.cfg.Columns.Amount < 0 {
		errs = append(errs, "column indexes must not be negative")
	}
	if p.cfg.Columns.Category != nil && *p.cfg.Columns.Category < 0 {
		errs = append(errs, "category column index must not be negative")
	}
	if _, err := layoutFor(p.cfg.DateFormat); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return provider.Invalid(errs...)
	}

	if _, err := p.store.GetAccount(ctx, p.userID, p.cfg.AccountID); err != nil {
		return provider.Invalid(fmt.Sprintf("account %s not found", p.cfg.AccountID))
	}
	return provider.Valid()
}

// Import runs the file ingestion pipeline for one integration: load the
// account, parse every row, create each transaction unless an identical
// one (account, description, date, amount) already exists. Duplicates
// count as skipped, malformed rows as warnings; neither fails the run.
// The returned session is always finalized.
func (p *Provider) Import(ctx context.Context, integ *model.Integration) (*model.ImportSession, error) {
	session := model.NewImportSession(integ.ID, integ.UserID)
	if err := p.store.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("opening import session: %w", err)
	}

	err := p.runImport(ctx, session)
	if err != nil {
		session.AddError("import failed: %v", err)
		session.Fail()
	} else {
		session.Complete()
	}

	if saveErr := p.store.SaveSession(ctx, session); saveErr != nil {
		p.logger.Error("failed to persist import session", "session", session.ID, "error", saveErr)
	}

	integ.LastSyncAt = time.Now().UTC()
	if err != nil {
		integ.LastSyncStatus = model.SyncStatusError
		integ.LastError = err.Error()
	} else {
		integ.LastSyncStatus = model.SyncStatusSuccess
		integ.LastError = ""
	}
	if updErr := p.store.UpdateIntegration(ctx, integ); updErr != nil {
		p.logger.Error("failed to update integration status", "integration", integ.ID, "error", updErr)
	}
	return session, err
}

func (p *Provider) runImport(ctx context.Context, session *model.ImportSession) error {
	account, err := p.store.GetAccount(ctx, p.userID, p.cfg.AccountID)
	if err != nil {
		return fmt.Errorf("loading account %s: %w", p.cfg.AccountID, err)
	}
	session.Logf(model.LogInfo, account.ID, "importing into account %q", account.Name)

	txns, rowErrs, err := p.parseRows()
	if err != nil {
		return err
	}
	for _, re := range rowErrs {
		session.Logf(model.LogWarn, "", "row %d skipped: %v", re.row, re.err)
	}

	for _, tx := range txns {
		match := ledger.TransactionMatch{
			AccountID:   account.ID,
			Description: tx.Description,
			Date:        tx.Date,
			Amount:      tx.Amount,
			Direction:   tx.Direction,
		}
		if _, err := p.store.FindTransactionByMatch(ctx, p.userID, match); err == nil {
			session.TransactionsSkipped++
			continue
		} else if !errors.Is(err, ledger.ErrNotFound) {
			session.AddError("checking for duplicate of %q: %v", tx.Description, err)
			continue
		}

		category, err := p.store.FindOrCreateCategory(ctx, p.userID, p.MapCategory(tx.CategoryCode))
		if err != nil {
			session.AddError("resolving category for %q: %v", tx.Description, err)
			continue
		}

		row := &model.Transaction{
			UserID:      p.userID,
			AccountID:   account.ID,
			Description: tx.Description,
			Amount:      tx.Amount,
			Direction:   tx.Direction,
			Date:        tx.Date,
			Notes:       tx.Metadata,
			Splits:      []model.Split{{Amount: tx.Amount, CategoryID: category.ID}},
		}
		if err := p.store.CreateTransaction(ctx, row); err != nil {
			session.AddError("creating transaction %q: %v", tx.Description, err)
			continue
		}
		session.TransactionsImported++
	}

	session.Logf(model.LogInfo, "", "imported %d transactions, skipped %d duplicates, %d warnings",
		session.TransactionsImported, session.TransactionsSkipped, len(session.Warnings()))
	return nil
}

type rowError struct {
	row int // 1-based row number in the file
	err error
}

func (p *Provider) parseRows() ([]model.ExternalTransaction, []rowError, error) {
	cr := csv.NewReader(strings.NewReader(string(p.data)))
	cr.Comma = []rune(p.delimiter())[0]
	cr.FieldsPerRecord = -1 // rows are validated individually

	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("reading CSV: %w", err)
	}

	start := 0
	if p.cfg.HasHeader && len(records) > 0 {
		start = 1
	}

	var txns []model.ExternalTransaction
	var rowErrs []rowError
	for i, rec := range records[start:] {
		rowNum := start + i + 1
		tx, err := p.parseRow(rec)
		if err != nil {
			rowErrs = append(rowErrs, rowError{row: rowNum, err: err})
			continue
		}
		txns = append(txns, tx)
	}
	return txns, rowErrs, nil
}

func (p *Provider) parseRow(rec []string) (model.ExternalTransaction, error) {
	cols := p.cfg.Columns
	maxIdx := cols.Date
	if cols.Description > maxIdx {
		maxIdx = cols.Description
	}
	if cols.Amount > maxIdx {
		maxIdx = cols.Amount
	}
	if cols.Category != nil && *cols.Category > maxIdx {
		maxIdx = *cols.Category
	}
	if len(rec) <= maxIdx {
		return model.ExternalTransaction{}, fmt.Errorf("expected at least %d fields, got %d", maxIdx+1, len(rec))
	}

	date, err := parseDate(rec[cols.Date], p.cfg.DateFormat)
	if err != nil {
		return model.ExternalTransaction{}, err
	}

	amount, direction, err := parseAmount(rec[cols.Amount])
	if err != nil {
		return model.ExternalTransaction{}, err
	}

	category := ""
	if cols.Category != nil {
		category = rec[*cols.Category]
	}

	return model.ExternalTransaction{
		Description:  strings.TrimSpace(rec[cols.Description]),
		Amount:       amount,
		Direction:    direction,
		Date:         date,
		CategoryCode: category,
		Metadata:     strings.Join(rec, p.delimiter()),
	}, nil
}

func (p *Provider) delimiter() string {
	if p.cfg.Delimiter == "" {
		return ","
	}
	return p.cfg.Delimiter
}
