package upbank

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
)

// Pagination safety bounds. A misbehaving API that always returns a next
// link must not keep a sync running forever; hitting a bound stops the
// walk with a warning instead of an error.
const (
	maxPages        = 100
	maxItems        = 10000
	defaultPageSize = 100
)

// client speaks the bank's JSON:API-style wire protocol: bearer-token
// auth, data/attributes envelopes and cursor pagination via links.next.
type client struct {
	baseURL string
	token   string
	httpc   *http.Client
	logger  *log.Logger
}

func newClient(baseURL, token string, logger *log.Logger) *client {
	return &client{
		baseURL: baseURL,
		token:   token,
		httpc:   &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

type pageLinks struct {
	Next string `json:"next"`
}

type accountsPage struct {
	Data  []accountResource `json:"data"`
	Links pageLinks         `json:"links"`
}

type accountResource struct {
	ID         string `json:"id"`
	Attributes struct {
		DisplayName string        `json:"displayName"`
		AccountType string        `json:"accountType"`
		Balance     moneyResource `json:"balance"`
	} `json:"attributes"`
}

type transactionsPage struct {
	Data  []json.RawMessage `json:"data"`
	Links pageLinks         `json:"links"`
}

type transactionResource struct {
	ID         string `json:"id"`
	Attributes struct {
		Description string        `json:"description"`
		Amount      moneyResource `json:"amount"`
		SettledAt   *time.Time    `json:"settledAt"`
		CreatedAt   time.Time     `json:"createdAt"`
	} `json:"attributes"`
	Relationships struct {
		Account  relationship `json:"account"`
		Category relationship `json:"category"`
	} `json:"relationships"`
}

type relationship struct {
	Data *struct {
		ID string `json:"id"`
	} `json:"data"`
}

type moneyResource struct {
	CurrencyCode string `json:"currencyCode"`
	Value        string `json:"value"` // signed decimal string
}

// ping checks liveness and auth. A non-2xx response is an error.
func (c *client) ping(ctx context.Context) error {
	var out json.RawMessage
	return c.get(ctx, c.baseURL+"/util/ping", &out)
}

// listAccounts fetches the full account snapshot, following next links.
func (c *client) listAccounts(ctx context.Context) ([]accountResource, error) {
	var accounts []accountResource
	next := c.baseURL + "/accounts"
	for page := 0; next != ""; page++ {
		if page >= maxPages {
			c.logger.Warn("account pagination stopped at page bound", "pages", page)
			break
		}
		var resp accountsPage
		if err := c.get(ctx, next, &resp); err != nil {
			return nil, err
		}
		accounts = append(accounts, resp.Data...)
		next = resp.Links.Next
	}
	return accounts, nil
}

// transactionsQuery describes one transaction listing walk.
type transactionsQuery struct {
	AccountExternalID string
	Since             *time.Time
	Until             *time.Time
	PageSize          int
}

// listTransactions walks transaction pages until the next link is absent
// or a safety bound is hit. Each item is returned with its raw payload so
// the caller can keep it as audit metadata.
func (c *client) listTransactions(ctx context.Context, q transactionsQuery) ([]rawTransaction, error) {
	size := q.PageSize
	if size <= 0 || size > defaultPageSize {
		size = defaultPageSize
	}

	params := url.Values{}
	params.Set("page[size]", strconv.Itoa(size))
	if q.AccountExternalID != "" {
		params.Set("filter[account]", q.AccountExternalID)
	}
	if q.Since != nil {
		params.Set("filter[since]", q.Since.UTC().Format(time.RFC3339))
	}
	if q.Until != nil {
		params.Set("filter[until]", q.Until.UTC().Format(time.RFC3339))
	}

	var items []rawTransaction
	next := c.baseURL + "/transactions?" + params.Encode()
	for page := 0; next != ""; page++ {
		if page >= maxPages {
			c.logger.Warn("transaction pagination stopped at page bound", "pages", page, "items", len(items))
			break
		}
		if len(items) >= maxItems {
			c.logger.Warn("transaction pagination stopped at item bound", "items", len(items))
			break
		}

		var resp transactionsPage
		if err := c.get(ctx, next, &resp); err != nil {
			return nil, err
		}
		for _, raw := range resp.Data {
			var res transactionResource
			if err := json.Unmarshal(raw, &res); err != nil {
				return nil, fmt.Errorf("decoding transaction resource: %w", err)
			}
			items = append(items, rawTransaction{resource: res, raw: raw})
		}
		next = resp.Links.Next
	}
	return items, nil
}

type rawTransaction struct {
	resource transactionResource
	raw      json.RawMessage
}

func (c *client) get(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned %d: %s", req.URL.Path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", req.URL.Path, err)
	}
	return nil
}
