package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlink-dev/ledgerlink/internal/engine"
	"github.com/ledgerlink-dev/ledgerlink/internal/ledger"
	"github.com/ledgerlink-dev/ledgerlink/internal/model"
)

func newTestManager(t *testing.T) (*Manager, *ledger.Memory, *model.Account) {
	t.Helper()
	store := ledger.NewMemory()
	account := &model.Account{
		UserID:   "u1",
		Name:     "Everyday",
		Type:     model.AccountTypeChecking,
		Currency: "USD",
	}
	require.NoError(t, store.CreateAccount(context.Background(), account))
	return NewManager(store, log.New(io.Discard)), store, account
}

func csvConfig(accountID string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"accountId":%q,"delimiter":",","hasHeader":true,"dateFormat":"auto","columnMapping":{"date":0,"description":1,"amount":2}}`,
		accountID))
}

func TestCreateRequiresName(t *testing.T) {
	m, _, account := newTestManager(t)

	_, err := m.Create(context.Background(), "u1", CreateRequest{
		Type:   model.ProviderCSV,
		Config: csvConfig(account.ID),
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Errors, "name is required")
}

func TestCreateCSVIntegration(t *testing.T) {
	m, _, account := newTestManager(t)

	integ, err := m.Create(context.Background(), "u1", CreateRequest{
		Name:   "bank export",
		Type:   model.ProviderCSV,
		Config: csvConfig(account.ID),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, integ.ID)
	assert.True(t, integ.IsActive)
	assert.True(t, integ.IsVerified)
	assert.Equal(t, model.SyncStatusPending, integ.LastSyncStatus)

	got, err := m.Get(context.Background(), "u1", integ.ID)
	require.NoError(t, err)
	assert.Equal(t, "bank export", got.Name)
}

func TestCreateInvalidConfigNotPersisted(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, err := m.Create(context.Background(), "u1", CreateRequest{
		Name:   "bank export",
		Type:   model.ProviderCSV,
		Config: csvConfig("no-such-account"),
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "not found")

	list, err := m.List(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, list, "invalid configs are never persisted")
}

func TestCreateUnknownProviderType(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, err := m.Create(context.Background(), "u1", CreateRequest{
		Name:   "mystery",
		Type:   "telepathy",
		Config: json.RawMessage(`{}`),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider type")
}

func TestCreateUpbankIntegration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"meta":{}}`)
	}))
	defer srv.Close()

	m, _, _ := newTestManager(t)

	integ, err := m.Create(context.Background(), "u1", CreateRequest{
		Name:   "up",
		Type:   model.ProviderUpBank,
		Config: json.RawMessage(fmt.Sprintf(`{"token":"up:yeah:x","baseUrl":%q}`, srv.URL)),
	})
	require.NoError(t, err)
	assert.True(t, integ.IsVerified)

	ok, err := m.TestConnection(context.Background(), "u1", integ.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpdateMergesConfig(t *testing.T) {
	m, _, account := newTestManager(t)

	integ, err := m.Create(context.Background(), "u1", CreateRequest{
		Name:   "bank export",
		Type:   model.ProviderCSV,
		Config: csvConfig(account.ID),
	})
	require.NoError(t, err)

	updated, err := m.Update(context.Background(), "u1", integ.ID, json.RawMessage(`{"delimiter":";"}`))
	require.NoError(t, err)

	var cfg map[string]any
	require.NoError(t, json.Unmarshal(updated.Config, &cfg))
	assert.Equal(t, ";", cfg["delimiter"], "updated key applied")
	assert.Equal(t, account.ID, cfg["accountId"], "untouched keys survive the merge")
}

func TestUpdateInvalidMergeNotPersisted(t *testing.T) {
	m, _, account := newTestManager(t)

	integ, err := m.Create(context.Background(), "u1", CreateRequest{
		Name:   "bank export",
		Type:   model.ProviderCSV,
		Config: csvConfig(account.ID),
	})
	require.NoError(t, err)

	_, err = m.Update(context.Background(), "u1", integ.ID, json.RawMessage(`{"accountId":""}`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	got, err := m.Get(context.Background(), "u1", integ.ID)
	require.NoError(t, err)
	var cfg map[string]any
	require.NoError(t, json.Unmarshal(got.Config, &cfg))
	assert.Equal(t, account.ID, cfg["accountId"], "stored config unchanged after a failed update")
}

func TestSyncCSVRunsImportPipeline(t *testing.T) {
	m, store, account := newTestManager(t)

	integ, err := m.Create(context.Background(), "u1", CreateRequest{
		Name:   "bank export",
		Type:   model.ProviderCSV,
		Config: csvConfig(account.ID),
	})
	require.NoError(t, err)

	data := []byte("Date,Description,Amount\n2024-03-05,Coffee,(4.50)\n2024-03-06,Salary,1500.00\n")
	session, err := m.Sync(context.Background(), "u1", integ.ID, engine.Options{}, data)
	require.NoError(t, err)

	assert.Equal(t, model.SessionCompleted, session.Status)
	assert.Equal(t, 2, session.TransactionsImported)

	n, err := store.CountTransactions(context.Background(), "u1", account.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := m.Get(context.Background(), "u1", integ.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusSuccess, got.LastSyncStatus)

	sessions, err := m.Sessions(context.Background(), "u1", integ.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
}

func TestSyncCSVRequiresData(t *testing.T) {
	m, _, account := newTestManager(t)

	integ, err := m.Create(context.Background(), "u1", CreateRequest{
		Name:   "bank export",
		Type:   model.ProviderCSV,
		Config: csvConfig(account.ID),
	})
	require.NoError(t, err)

	_, err = m.Sync(context.Background(), "u1", integ.ID, engine.Options{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires file contents")
}

func TestSyncInactiveIntegration(t *testing.T) {
	m, store, account := newTestManager(t)

	integ, err := m.Create(context.Background(), "u1", CreateRequest{
		Name:   "bank export",
		Type:   model.ProviderCSV,
		Config: csvConfig(account.ID),
	})
	require.NoError(t, err)

	integ.IsActive = false
	require.NoError(t, store.UpdateIntegration(context.Background(), integ))

	_, err = m.Sync(context.Background(), "u1", integ.ID, engine.Options{}, []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not active")
}

func TestSessionsUnknownIntegration(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, err := m.Sessions(context.Background(), "u1", "missing")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestDelete(t *testing.T) {
	m, _, account := newTestManager(t)

	integ, err := m.Create(context.Background(), "u1", CreateRequest{
		Name:   "bank export",
		Type:   model.ProviderCSV,
		Config: csvConfig(account.ID),
	})
	require.NoError(t, err)

	require.NoError(t, m.Delete(context.Background(), "u1", integ.ID))
	_, err = m.Get(context.Background(), "u1", integ.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}
