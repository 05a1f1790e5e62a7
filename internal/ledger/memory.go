package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerlink-dev/ledgerlink/internal/model"
)

// Memory is an in-memory Store. It backs tests and ephemeral runs; the
// sqlite store is the durable implementation.
type Memory struct {
	mu           sync.Mutex
	accounts     map[string]*model.Account
	transactions map[string]*model.Transaction
	categories   map[string]*model.Category
	integrations map[string]*model.Integration
	sessions     map[string]*model.ImportSession
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		accounts:     make(map[string]*model.Account),
		transactions: make(map[string]*model.Transaction),
		categories:   make(map[string]*model.Category),
		integrations: make(map[string]*model.Integration),
		sessions:     make(map[string]*model.ImportSession),
	}
}

// FindAccountByExternal looks up an account by its provider link.
func (m *Memory) FindAccountByExternal(_ context.Context, userID string, tag model.ProviderType, externalID string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.UserID == userID && a.ProviderTag == string(tag) && a.ExternalID == externalID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// GetAccount returns an account by id.
func (m *Memory) GetAccount(_ context.Context, userID, id string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok || a.UserID != userID {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// CreateAccount stores a new account.
func (m *Memory) CreateAccount(_ context.Context, a *model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now().UTC()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.accounts[a.ID] = &cp
	return nil
}

// UpdateAccount replaces a stored account.
func (m *Memory) UpdateAccount(_ context.Context, a *model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[a.ID]; !ok {
		return ErrNotFound
	}
	a.UpdatedAt = time.Now().UTC()
	cp := *a
	m.accounts[a.ID] = &cp
	return nil
}

// FindTransactionByExternalID is the idempotency lookup for synced rows.
func (m *Memory) FindTransactionByExternalID(_ context.Context, userID, accountID, externalID string) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.transactions {
		if t.UserID == userID && t.AccountID == accountID && t.ExternalID == externalID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// FindTransactionByMatch is the attribute-based duplicate lookup.
func (m *Memory) FindTransactionByMatch(_ context.Context, userID string, match TransactionMatch) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.transactions {
		if t.UserID == userID &&
			t.AccountID == match.AccountID &&
			t.Description == match.Description &&
			t.Date.Equal(match.Date) &&
			t.Amount.Equal(match.Amount) &&
			t.Direction == match.Direction {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// CreateTransaction stores a new transaction, enforcing the
// (account, external id) uniqueness constraint.
func (m *Memory) CreateTransaction(_ context.Context, t *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ExternalID != "" {
		for _, other := range m.transactions {
			if other.AccountID == t.AccountID && other.ExternalID == t.ExternalID {
				return ErrDuplicate
			}
		}
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = time.Now().UTC()
	cp := *t
	cp.Splits = append([]model.Split(nil), t.Splits...)
	m.transactions[t.ID] = &cp
	return nil
}

// CountTransactions counts a user's transactions, optionally per account.
func (m *Memory) CountTransactions(_ context.Context, userID, accountID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.transactions {
		if t.UserID != userID {
			continue
		}
		if accountID != "" && t.AccountID != accountID {
			continue
		}
		n++
	}
	return n, nil
}

// FindOrCreateCategory resolves a category by name, creating it if absent.
func (m *Memory) FindOrCreateCategory(_ context.Context, userID, name string) (*model.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.categories {
		if c.UserID == userID && c.Name == name {
			cp := *c
			return &cp, nil
		}
	}
	c := &model.Category{ID: uuid.NewString(), UserID: userID, Name: name}
	m.categories[c.ID] = c
	cp := *c
	return &cp, nil
}

// CreateIntegration stores a new integration record.
func (m *Memory) CreateIntegration(_ context.Context, i *model.Integration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	i.CreatedAt = time.Now().UTC()
	i.UpdatedAt = i.CreatedAt
	cp := *i
	m.integrations[i.ID] = &cp
	return nil
}

// UpdateIntegration replaces a stored integration record.
func (m *Memory) UpdateIntegration(_ context.Context, i *model.Integration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.integrations[i.ID]; !ok {
		return ErrNotFound
	}
	i.UpdatedAt = time.Now().UTC()
	cp := *i
	m.integrations[i.ID] = &cp
	return nil
}

// GetIntegration returns an integration by id.
func (m *Memory) GetIntegration(_ context.Context, userID, id string) (*model.Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.integrations[id]
	if !ok || i.UserID != userID {
		return nil, ErrNotFound
	}
	cp := *i
	return &cp, nil
}

// ListIntegrations returns a user's integrations, newest first.
func (m *Memory) ListIntegrations(_ context.Context, userID string) ([]model.Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Integration
	for _, i := range m.integrations {
		if i.UserID == userID {
			out = append(out, *i)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out, nil
}

// DeleteIntegration removes an integration by id.
func (m *Memory) DeleteIntegration(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.integrations[id]
	if !ok || i.UserID != userID {
		return ErrNotFound
	}
	delete(m.integrations, id)
	return nil
}

// SaveSession inserts or replaces an import session.
func (m *Memory) SaveSession(_ context.Context, s *model.ImportSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.Logs = append([]model.LogEntry(nil), s.Logs...)
	cp.Errors = append([]string(nil), s.Errors...)
	m.sessions[s.ID] = &cp
	return nil
}

// ListSessions returns sessions for an integration, newest first.
func (m *Memory) ListSessions(_ context.Context, integrationID string) ([]model.ImportSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ImportSession
	for _, s := range m.sessions {
		if s.IntegrationID == integrationID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].StartedAt.After(out[b].StartedAt) })
	return out, nil
}
