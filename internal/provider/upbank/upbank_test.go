package upbank

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlink-dev/ledgerlink/internal/model"
	"github.com/ledgerlink-dev/ledgerlink/internal/provider"
)

const testToken = "up:yeah:test-token"

func newTestProvider(baseURL string) *Provider {
	return New(Config{Token: testToken, BaseURL: baseURL}, log.New(io.Discard))
}

func requireAuth(t *testing.T, r *http.Request) {
	t.Helper()
	assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
}

func TestTestConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requireAuth(t, r)
		assert.Equal(t, "/util/ping", r.URL.Path)
		fmt.Fprint(w, `{"meta":{"statusEmoji":"⚡️"}}`)
	}))
	defer srv.Close()

	assert.True(t, newTestProvider(srv.URL).TestConnection(context.Background()))
}

func TestTestConnectionAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":[{"status":"401"}]}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	assert.False(t, newTestProvider(srv.URL).TestConnection(context.Background()))
}

func TestListAccounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requireAuth(t, r)
		assert.Equal(t, "/accounts", r.URL.Path)
		fmt.Fprint(w, `{
			"data": [
				{"id":"acc-1","attributes":{"displayName":"Spending","accountType":"TRANSACTIONAL","balance":{"currencyCode":"AUD","value":"150.25"}}},
				{"id":"acc-2","attributes":{"displayName":"Rainy Day","accountType":"SAVER","balance":{"currencyCode":"AUD","value":"2000.00"}}},
				{"id":"acc-3","attributes":{"displayName":"Mystery","accountType":"HOME_LOAN","balance":{"currencyCode":"AUD","value":"0"}}}
			],
			"links": {"next": null}
		}`)
	}))
	defer srv.Close()

	accounts, err := newTestProvider(srv.URL).ListAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 3)

	assert.Equal(t, "acc-1", accounts[0].ExternalID)
	assert.Equal(t, "Spending", accounts[0].Name)
	assert.Equal(t, model.AccountTypeChecking, accounts[0].Type)
	assert.True(t, accounts[0].Balance.Equal(decimal.RequireFromString("150.25")))
	assert.Equal(t, "AUD", accounts[0].Currency)

	assert.Equal(t, model.AccountTypeSavings, accounts[1].Type)
	assert.Equal(t, model.AccountTypeChecking, accounts[2].Type, "unknown kinds fall back to checking")
}

func txnPayload(id, desc, amount string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"attributes": {
			"description": %q,
			"amount": {"currencyCode":"AUD","value":%q},
			"settledAt": "2024-03-05T10:00:00Z",
			"createdAt": "2024-03-04T23:30:00Z"
		},
		"relationships": {
			"account": {"data": {"id": "acc-1"}},
			"category": {"data": {"id": "groceries"}}
		}
	}`, id, desc, amount)
}

func TestListTransactionsFollowsCursor(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requireAuth(t, r)
		assert.Equal(t, "100", r.URL.Query().Get("page[size]"))
		switch r.URL.Query().Get("page[after]") {
		case "":
			fmt.Fprintf(w, `{"data":[%s],"links":{"next":%q}}`,
				txnPayload("tx-1", "Coffee", "-4.50"), srv.URL+"/transactions?page[after]=cursor-1&page[size]=100")
		case "cursor-1":
			fmt.Fprintf(w, `{"data":[%s],"links":{"next":null}}`,
				txnPayload("tx-2", "Salary", "1500.00"))
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("page[after]"))
		}
	}))
	defer srv.Close()

	txns, err := newTestProvider(srv.URL).ListTransactions(context.Background(), provider.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "tx-1", txns[0].ExternalID)
	assert.Equal(t, "tx-2", txns[1].ExternalID)
}

func TestListTransactionsAmountAndDirection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"data":[%s,%s],"links":{"next":null}}`,
			txnPayload("tx-1", "Coffee", "-4.50"),
			txnPayload("tx-2", "Salary", "1500.00"))
	}))
	defer srv.Close()

	txns, err := newTestProvider(srv.URL).ListTransactions(context.Background(), provider.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, txns, 2)

	assert.Equal(t, model.DirectionExpense, txns[0].Direction)
	assert.True(t, txns[0].Amount.Equal(decimal.RequireFromString("4.50")), "stored amount is unsigned")
	assert.Equal(t, model.DirectionIncome, txns[1].Direction)
	assert.True(t, txns[1].Amount.Equal(decimal.RequireFromString("1500.00")))

	assert.Equal(t, "acc-1", txns[0].AccountExternalID)
	assert.Equal(t, "groceries", txns[0].CategoryCode)
	assert.Equal(t, time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC), txns[0].Date.UTC(), "settled time wins over created time")
	assert.Contains(t, txns[0].Metadata, `"tx-1"`, "raw payload kept for audit")
}

func TestListTransactionsFilterParams(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "acc-1", q.Get("filter[account]"))
		assert.Equal(t, "2024-01-01T00:00:00Z", q.Get("filter[since]"))
		assert.Equal(t, "2024-02-01T00:00:00Z", q.Get("filter[until]"))
		assert.Equal(t, "25", q.Get("page[size]"))
		fmt.Fprint(w, `{"data":[],"links":{"next":null}}`)
	}))
	defer srv.Close()

	_, err := newTestProvider(srv.URL).ListTransactions(context.Background(), provider.TransactionFilter{
		AccountExternalID: "acc-1",
		Since:             &since,
		Until:             &until,
		PageSize:          25,
	})
	require.NoError(t, err)
}

func TestListTransactionsStopsAtPageBound(t *testing.T) {
	// The server always hands back a next link; the walk must stop at the
	// page bound instead of looping forever.
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"data":[%s],"links":{"next":%q}}`,
			txnPayload("tx-"+r.URL.Query().Get("page[after]"), "Loop", "-1.00"),
			srv.URL+"/transactions?page[after]="+r.URL.Query().Get("page[after]")+"x")
	}))
	defer srv.Close()

	txns, err := newTestProvider(srv.URL).ListTransactions(context.Background(), provider.TransactionFilter{})
	require.NoError(t, err, "hitting the bound is a warning, not an error")
	assert.Len(t, txns, maxPages)
}

func TestListTransactionsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":[{"status":"500"}]}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestProvider(srv.URL).ListTransactions(context.Background(), provider.TransactionFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestMapCategory(t *testing.T) {
	p := newTestProvider("http://unused")
	assert.Equal(t, "Groceries", p.MapCategory("groceries"))
	assert.Equal(t, "Dining Out", p.MapCategory("restaurants-and-cafes"))
	assert.Equal(t, provider.Uncategorized, p.MapCategory(""))
	assert.Equal(t, provider.Uncategorized, p.MapCategory("something-new"))
}

func TestValidateConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"meta":{}}`)
	}))
	defer srv.Close()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"valid", Config{Token: testToken, BaseURL: srv.URL}, ""},
		{"missing token", Config{BaseURL: srv.URL}, "token is required"},
		{"bad token prefix", Config{Token: "sk-nope", BaseURL: srv.URL}, "up:yeah:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := New(tt.cfg, log.New(io.Discard)).ValidateConfig(context.Background())
			if tt.wantErr == "" {
				assert.True(t, res.IsValid)
				assert.Empty(t, res.Errors)
				return
			}
			require.False(t, res.IsValid)
			require.NotEmpty(t, res.Errors)
			assert.Contains(t, res.Errors[0], tt.wantErr)
		})
	}
}

func TestValidateConfigUnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	res := newTestProvider(srv.URL).ValidateConfig(context.Background())
	require.False(t, res.IsValid)
	assert.Contains(t, res.Errors[0], "connection test failed")
}
