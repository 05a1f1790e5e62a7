package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/ledgerlink-dev/ledgerlink/internal/model"
)

// SQLite is the durable Store implementation.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and if necessary creates) a sqlite ledger at path.
// Use ":memory:" for an ephemeral database.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	// A single connection keeps :memory: databases coherent and sidesteps
	// sqlite's single-writer lock contention.
	db.SetMaxOpenConns(1)
	s := &SQLite{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) init() error {
	const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	balance TEXT NOT NULL,
	currency TEXT NOT NULL,
	is_liability INTEGER NOT NULL DEFAULT 0,
	provider_tag TEXT NOT NULL DEFAULT '',
	external_id TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_external
	ON accounts (user_id, provider_tag, external_id)
	WHERE provider_tag != '';

CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	account_id TEXT NOT NULL,
	description TEXT NOT NULL,
	amount TEXT NOT NULL,
	direction TEXT NOT NULL,
	date TEXT NOT NULL,
	external_id TEXT NOT NULL DEFAULT '',
	notes TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_external
	ON transactions (account_id, external_id)
	WHERE external_id != '';

CREATE TABLE IF NOT EXISTS splits (
	id TEXT PRIMARY KEY,
	transaction_id TEXT NOT NULL,
	amount TEXT NOT NULL,
	category_id TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS categories (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	UNIQUE (user_id, name)
);

CREATE TABLE IF NOT EXISTS integrations (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	config BLOB NOT NULL,
	is_active INTEGER NOT NULL,
	is_verified INTEGER NOT NULL,
	last_sync_at TEXT NOT NULL DEFAULT '',
	last_sync_status TEXT NOT NULL,
	last_error TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS import_sessions (
	id TEXT PRIMARY KEY,
	integration_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL DEFAULT '',
	accounts_imported INTEGER NOT NULL,
	transactions_imported INTEGER NOT NULL,
	transactions_skipped INTEGER NOT NULL,
	logs TEXT NOT NULL,
	errors TEXT NOT NULL
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

const timeFormat = time.RFC3339Nano

func timeToDB(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

func timeFromDB(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing stored time %q: %w", s, err)
	}
	return t, nil
}

// FindAccountByExternal looks up an account by its provider link.
func (s *SQLite) FindAccountByExternal(ctx context.Context, userID string, tag model.ProviderType, externalID string) (*model.Account, error) {
	const q = `SELECT id, user_id, name, type, balance, currency, is_liability, provider_tag, external_id, created_at, updated_at
		FROM accounts WHERE user_id = ? AND provider_tag = ? AND external_id = ?`
	return scanAccount(s.db.QueryRowContext(ctx, q, userID, string(tag), externalID))
}

// GetAccount returns an account by id.
func (s *SQLite) GetAccount(ctx context.Context, userID, id string) (*model.Account, error) {
	const q = `SELECT id, user_id, name, type, balance, currency, is_liability, provider_tag, external_id, created_at, updated_at
		FROM accounts WHERE user_id = ? AND id = ?`
	return scanAccount(s.db.QueryRowContext(ctx, q, userID, id))
}

func scanAccount(row *sql.Row) (*model.Account, error) {
	var a model.Account
	var balance, created, updated string
	var liability int
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Type, &balance, &a.Currency, &liability, &a.ProviderTag, &a.ExternalID, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning account: %w", err)
	}
	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("parsing stored balance %q: %w", balance, err)
	}
	a.IsLiability = liability != 0
	if a.CreatedAt, err = timeFromDB(created); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = timeFromDB(updated); err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAccount inserts a new account.
func (s *SQLite) CreateAccount(ctx context.Context, a *model.Account) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now().UTC()
	a.UpdatedAt = a.CreatedAt

	const q = `INSERT INTO accounts (id, user_id, name, type, balance, currency, is_liability, provider_tag, external_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q, a.ID, a.UserID, a.Name, string(a.Type), a.Balance.String(), a.Currency,
		boolToInt(a.IsLiability), a.ProviderTag, a.ExternalID, timeToDB(a.CreatedAt), timeToDB(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("inserting account: %w", err)
	}
	return nil
}

// UpdateAccount replaces a stored account's mutable fields.
func (s *SQLite) UpdateAccount(ctx context.Context, a *model.Account) error {
	a.UpdatedAt = time.Now().UTC()
	const q = `UPDATE accounts SET name = ?, balance = ?, currency = ?, updated_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, q, a.Name, a.Balance.String(), a.Currency, timeToDB(a.UpdatedAt), a.ID)
	if err != nil {
		return fmt.Errorf("updating account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FindTransactionByExternalID is the idempotency lookup for synced rows.
func (s *SQLite) FindTransactionByExternalID(ctx context.Context, userID, accountID, externalID string) (*model.Transaction, error) {
	const q = `SELECT id, user_id, account_id, description, amount, direction, date, external_id, notes, created_at
		FROM transactions WHERE user_id = ? AND account_id = ? AND external_id = ?`
	return s.scanTransaction(ctx, s.db.QueryRowContext(ctx, q, userID, accountID, externalID))
}

// FindTransactionByMatch is the attribute-based duplicate lookup.
func (s *SQLite) FindTransactionByMatch(ctx context.Context, userID string, m TransactionMatch) (*model.Transaction, error) {
	const q = `SELECT id, user_id, account_id, description, amount, direction, date, external_id, notes, created_at
		FROM transactions WHERE user_id = ? AND account_id = ? AND description = ? AND date = ? AND amount = ? AND direction = ?`
	row := s.db.QueryRowContext(ctx, q, userID, m.AccountID, m.Description, timeToDB(m.Date), m.Amount.String(), string(m.Direction))
	return s.scanTransaction(ctx, row)
}

func (s *SQLite) scanTransaction(ctx context.Context, row *sql.Row) (*model.Transaction, error) {
	var t model.Transaction
	var amount, date, created string
	err := row.Scan(&t.ID, &t.UserID, &t.AccountID, &t.Description, &amount, &t.Direction, &date, &t.ExternalID, &t.Notes, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning transaction: %w", err)
	}
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parsing stored amount %q: %w", amount, err)
	}
	if t.Date, err = timeFromDB(date); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = timeFromDB(created); err != nil {
		return nil, err
	}
	if t.Splits, err = s.loadSplits(ctx, t.ID); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *SQLite) loadSplits(ctx context.Context, transactionID string) ([]model.Split, error) {
	const q = `SELECT id, amount, category_id FROM splits WHERE transaction_id = ?`
	rows, err := s.db.QueryContext(ctx, q, transactionID)
	if err != nil {
		return nil, fmt.Errorf("loading splits: %w", err)
	}
	defer rows.Close()

	var splits []model.Split
	for rows.Next() {
		var sp model.Split
		var amount string
		if err := rows.Scan(&sp.ID, &amount, &sp.CategoryID); err != nil {
			return nil, fmt.Errorf("scanning split: %w", err)
		}
		if sp.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parsing stored split amount %q: %w", amount, err)
		}
		splits = append(splits, sp)
	}
	return splits, rows.Err()
}

// CreateTransaction inserts a transaction and its splits. The partial
// unique index on (account_id, external_id) enforces idempotent ingestion.
func (s *SQLite) CreateTransaction(ctx context.Context, t *model.Transaction) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction insert: %w", err)
	}
	defer tx.Rollback()

	const q = `INSERT INTO transactions (id, user_id, account_id, description, amount, direction, date, external_id, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, q, t.ID, t.UserID, t.AccountID, t.Description, t.Amount.String(), string(t.Direction),
		timeToDB(t.Date), t.ExternalID, t.Notes, timeToDB(t.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting transaction: %w", err)
	}

	const sq = `INSERT INTO splits (id, transaction_id, amount, category_id) VALUES (?, ?, ?, ?)`
	for i := range t.Splits {
		if t.Splits[i].ID == "" {
			t.Splits[i].ID = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx, sq, t.Splits[i].ID, t.ID, t.Splits[i].Amount.String(), t.Splits[i].CategoryID); err != nil {
			return fmt.Errorf("inserting split: %w", err)
		}
	}

	return tx.Commit()
}

// CountTransactions counts a user's transactions, optionally per account.
func (s *SQLite) CountTransactions(ctx context.Context, userID, accountID string) (int, error) {
	q := `SELECT COUNT(*) FROM transactions WHERE user_id = ?`
	args := []any{userID}
	if accountID != "" {
		q += ` AND account_id = ?`
		args = append(args, accountID)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting transactions: %w", err)
	}
	return n, nil
}

// FindOrCreateCategory resolves a category by name, creating it if absent.
func (s *SQLite) FindOrCreateCategory(ctx context.Context, userID, name string) (*model.Category, error) {
	const q = `SELECT id, user_id, name FROM categories WHERE user_id = ? AND name = ?`
	var c model.Category
	err := s.db.QueryRowContext(ctx, q, userID, name).Scan(&c.ID, &c.UserID, &c.Name)
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("looking up category: %w", err)
	}

	c = model.Category{ID: uuid.NewString(), UserID: userID, Name: name}
	const iq = `INSERT INTO categories (id, user_id, name) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, iq, c.ID, c.UserID, c.Name); err != nil {
		return nil, fmt.Errorf("creating category: %w", err)
	}
	return &c, nil
}

// CreateIntegration inserts a new integration record.
func (s *SQLite) CreateIntegration(ctx context.Context, i *model.Integration) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	i.CreatedAt = time.Now().UTC()
	i.UpdatedAt = i.CreatedAt

	const q = `INSERT INTO integrations (id, user_id, name, type, config, is_active, is_verified, last_sync_at, last_sync_status, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q, i.ID, i.UserID, i.Name, string(i.Type), []byte(i.Config),
		boolToInt(i.IsActive), boolToInt(i.IsVerified), timeToDB(i.LastSyncAt), string(i.LastSyncStatus),
		i.LastError, timeToDB(i.CreatedAt), timeToDB(i.UpdatedAt))
	if err != nil {
		return fmt.Errorf("inserting integration: %w", err)
	}
	return nil
}

// UpdateIntegration replaces a stored integration record.
func (s *SQLite) UpdateIntegration(ctx context.Context, i *model.Integration) error {
	i.UpdatedAt = time.Now().UTC()
	const q = `UPDATE integrations SET name = ?, config = ?, is_active = ?, is_verified = ?, last_sync_at = ?, last_sync_status = ?, last_error = ?, updated_at = ?
		WHERE id = ?`
	res, err := s.db.ExecContext(ctx, q, i.Name, []byte(i.Config), boolToInt(i.IsActive), boolToInt(i.IsVerified),
		timeToDB(i.LastSyncAt), string(i.LastSyncStatus), i.LastError, timeToDB(i.UpdatedAt), i.ID)
	if err != nil {
		return fmt.Errorf("updating integration: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetIntegration returns an integration by id.
func (s *SQLite) GetIntegration(ctx context.Context, userID, id string) (*model.Integration, error) {
	const q = `SELECT id, user_id, name, type, config, is_active, is_verified, last_sync_at, last_sync_status, last_error, created_at, updated_at
		FROM integrations WHERE user_id = ? AND id = ?`
	return scanIntegration(s.db.QueryRowContext(ctx, q, userID, id))
}

func scanIntegration(row *sql.Row) (*model.Integration, error) {
	var i model.Integration
	var config []byte
	var active, verified int
	var lastSync, created, updated string
	err := row.Scan(&i.ID, &i.UserID, &i.Name, &i.Type, &config, &active, &verified, &lastSync, &i.LastSyncStatus, &i.LastError, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning integration: %w", err)
	}
	i.Config = config
	i.IsActive = active != 0
	i.IsVerified = verified != 0
	if i.LastSyncAt, err = timeFromDB(lastSync); err != nil {
		return nil, err
	}
	if i.CreatedAt, err = timeFromDB(created); err != nil {
		return nil, err
	}
	if i.UpdatedAt, err = timeFromDB(updated); err != nil {
		return nil, err
	}
	return &i, nil
}

// ListIntegrations returns a user's integrations, newest first.
func (s *SQLite) ListIntegrations(ctx context.Context, userID string) ([]model.Integration, error) {
	const q = `SELECT id FROM integrations WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("listing integrations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []model.Integration
	for _, id := range ids {
		i, err := s.GetIntegration(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *i)
	}
	return out, nil
}

// DeleteIntegration removes an integration by id.
func (s *SQLite) DeleteIntegration(ctx context.Context, userID, id string) error {
	const q = `DELETE FROM integrations WHERE user_id = ? AND id = ?`
	res, err := s.db.ExecContext(ctx, q, userID, id)
	if err != nil {
		return fmt.Errorf("deleting integration: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveSession inserts or replaces an import session. Logs and errors are
// stored as JSON.
func (s *SQLite) SaveSession(ctx context.Context, sess *model.ImportSession) error {
	logs, err := json.Marshal(sess.Logs)
	if err != nil {
		return fmt.Errorf("encoding session logs: %w", err)
	}
	errs, err := json.Marshal(sess.Errors)
	if err != nil {
		return fmt.Errorf("encoding session errors: %w", err)
	}

	const q = `INSERT OR REPLACE INTO import_sessions
		(id, integration_id, user_id, status, started_at, finished_at, accounts_imported, transactions_imported, transactions_skipped, logs, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, q, sess.ID, sess.IntegrationID, sess.UserID, string(sess.Status),
		timeToDB(sess.StartedAt), timeToDB(sess.FinishedAt),
		sess.AccountsImported, sess.TransactionsImported, sess.TransactionsSkipped, string(logs), string(errs))
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// ListSessions returns sessions for an integration, newest first.
func (s *SQLite) ListSessions(ctx context.Context, integrationID string) ([]model.ImportSession, error) {
	const q = `SELECT id, integration_id, user_id, status, started_at, finished_at, accounts_imported, transactions_imported, transactions_skipped, logs, errors
		FROM import_sessions WHERE integration_id = ? ORDER BY started_at DESC`
	rows, err := s.db.QueryContext(ctx, q, integrationID)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []model.ImportSession
	for rows.Next() {
		var sess model.ImportSession
		var started, finished, logs, errs string
		err := rows.Scan(&sess.ID, &sess.IntegrationID, &sess.UserID, &sess.Status, &started, &finished,
			&sess.AccountsImported, &sess.TransactionsImported, &sess.TransactionsSkipped, &logs, &errs)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		if sess.StartedAt, err = timeFromDB(started); err != nil {
			return nil, err
		}
		if sess.FinishedAt, err = timeFromDB(finished); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(logs), &sess.Logs); err != nil {
			return nil, fmt.Errorf("decoding session logs: %w", err)
		}
		if err := json.Unmarshal([]byte(errs), &sess.Errors); err != nil {
			return nil, fmt.Errorf("decoding session errors: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
