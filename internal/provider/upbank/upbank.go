// Package upbank implements the provider contract against an Up-style
// REST banking API: bearer-token auth and cursor-paginated listings. It
// only fetches data; persistence belongs to the sync engine.
package upbank

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"

	"github.com/ledgerlink-dev/ledgerlink/internal/model"
	"github.com/ledgerlink-dev/ledgerlink/internal/provider"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.up.com.au/api/v1"

// tokenPrefix is the expected personal-access-token prefix.
const tokenPrefix = "up:yeah:"

// Config is the upbank integration configuration.
type Config struct {
	Token   string `json:"token"`
	BaseURL string `json:"baseUrl,omitempty"` // defaults to DefaultBaseURL
}

// accountTypes maps the API's account kinds to ledger account types.
// Extending support for a new kind means adding a row here.
var accountTypes = map[string]model.AccountType{
	"TRANSACTIONAL": model.AccountTypeChecking,
	"SAVER":         model.AccountTypeSavings,
}

// categories maps the API's category ids to internal category names.
var categories = provider.CategoryMapping{
	"restaurants-and-cafes": "Dining Out",
	"takeaway":              "Dining Out",
	"groceries":             "Groceries",
	"booze":                 "Alcohol",
	"transport":             "Transport",
	"public-transport":      "Transport",
	"fuel":                  "Transport",
	"rent-and-mortgage":     "Housing",
	"utilities":             "Utilities",
	"internet":              "Utilities",
	"mobile-phone":          "Utilities",
	"health":                "Health",
	"fitness-and-wellbeing": "Health",
	"entertainment":         "Entertainment",
	"tv-and-music":          "Entertainment",
	"games-and-software":    "Entertainment",
	"clothing-and-personal": "Shopping",
	"homeware-and-garden":   "Shopping",
	"travel":                "Travel",
	"holidays":              "Travel",
	"education":             "Education",
	"gifts-and-charity":     "Gifts",
	"salary":                "Income",
	"interest":              "Income",
}

// Provider implements the provider contract against the REST API.
type Provider struct {
	cfg    Config
	client *client
	logger *log.Logger
}

// New creates a Provider from config. An empty BaseURL uses the default.
func New(cfg Config, logger *log.Logger) *Provider {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return &Provider{
		cfg:    cfg,
		client: newClient(base, cfg.Token, logger),
		logger: logger,
	}
}

// Tag identifies this provider type.
func (p *Provider) Tag() model.ProviderType { return model.ProviderUpBank }

// TestConnection pings the API. Auth and connectivity failures return
// false; they are expected outcomes, not errors.
func (p *Provider) TestConnection(ctx context.Context) bool {
	if err := p.client.ping(ctx); err != nil {
		p.logger.Debug("ping failed", "error", err)
		return false
	}
	return true
}

// ListAccounts returns the current snapshot of provider accounts.
func (p *Provider) ListAccounts(ctx context.Context) ([]model.ExternalAccount, error) {
	resources, err := p.client.listAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}

	accounts := make([]model.ExternalAccount, 0, len(resources))
	for _, res := range resources {
		balance, err := decimal.NewFromString(res.Attributes.Balance.Value)
		if err != nil {
			return nil, fmt.Errorf("parsing balance %q for account %s: %w", res.Attributes.Balance.Value, res.ID, err)
		}
		accounts = append(accounts, model.ExternalAccount{
			ExternalID: res.ID,
			Name:       res.Attributes.DisplayName,
			Type:       mapAccountType(res.Attributes.AccountType),
			Balance:    balance,
			Currency:   res.Attributes.Balance.CurrencyCode,
		})
	}
	return accounts, nil
}

// ListTransactions returns transactions matching the filter, walking
// cursor pages until exhausted or a safety bound stops the walk.
func (p *Provider) ListTransactions(ctx context.Context, filter provider.TransactionFilter) ([]model.ExternalTransaction, error) {
	items, err := p.client.listTransactions(ctx, transactionsQuery{
		AccountExternalID: filter.AccountExternalID,
		Since:             filter.Since,
		Until:             filter.Until,
		PageSize:          filter.PageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}

	txns := make([]model.ExternalTransaction, 0, len(items))
	for _, item := range items {
		tx, err := toExternalTransaction(item)
		if err != nil {
			return nil, err
		}
		txns = append(txns, tx)
	}
	return txns, nil
}

func toExternalTransaction(item rawTransaction) (model.ExternalTransaction, error) {
	res := item.resource

	amount, err := decimal.NewFromString(res.Attributes.Amount.Value)
	if err != nil {
		return model.ExternalTransaction{}, fmt.Errorf("parsing amount %q for transaction %s: %w", res.Attributes.Amount.Value, res.ID, err)
	}

	// Negative provider amount is money out.
	direction := model.DirectionIncome
	if amount.IsNegative() {
		direction = model.DirectionExpense
	}

	date := res.Attributes.CreatedAt
	if res.Attributes.SettledAt != nil {
		date = *res.Attributes.SettledAt
	}

	accountID := ""
	if res.Relationships.Account.Data != nil {
		accountID = res.Relationships.Account.Data.ID
	}
	categoryCode := ""
	if res.Relationships.Category.Data != nil {
		categoryCode = res.Relationships.Category.Data.ID
	}

	return model.ExternalTransaction{
		ExternalID:        res.ID,
		AccountExternalID: accountID,
		Description:       res.Attributes.Description,
		Amount:            amount.Abs(),
		Direction:         direction,
		Date:              date,
		CategoryCode:      categoryCode,
		Metadata:          string(item.raw),
	}, nil
}

// MapCategory converts an API category id to an internal category name.
func (p *Provider) MapCategory(code string) string {
	return categories.Map(code)
}

// ValidateConfig checks the token format and base URL, then confirms the
// credentials with a live ping.
func (p *Provider) ValidateConfig(ctx context.Context) provider.ValidationResult {
	var errs []string
	if p.cfg.Token == "" {
		errs = append(errs, "token is required")
	} else if !strings.HasPrefix(p.cfg.Token, tokenPrefix) {
		errs = append(errs, fmt.Sprintf("token must start with %q", tokenPrefix))
	}
	if p.cfg.BaseURL != "" {
		if _, err := url.ParseRequestURI(p.cfg.BaseURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid base URL %q", p.cfg.BaseURL))
		}
	}
	if len(errs) > 0 {
		return provider.Invalid(errs...)
	}

	if !p.TestConnection(ctx) {
		return provider.Invalid("connection test failed: check the token and network")
	}
	return provider.Valid()
}

func mapAccountType(kind string) model.AccountType {
	if t, ok := accountTypes[strings.ToUpper(kind)]; ok {
		return t
	}
	return model.AccountTypeChecking
}
