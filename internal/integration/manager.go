// Package integration manages connected data sources: creating and
// validating integration records, instantiating the matching provider
// and triggering syncs.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/ledgerlink-dev/ledgerlink/internal/engine"
	"github.com/ledgerlink-dev/ledgerlink/internal/ledger"
	"github.com/ledgerlink-dev/ledgerlink/internal/model"
	"github.com/ledgerlink-dev/ledgerlink/internal/provider"
	"github.com/ledgerlink-dev/ledgerlink/internal/provider/csvfile"
	"github.com/ledgerlink-dev/ledgerlink/internal/provider/upbank"
)

// ValidationError carries provider config validation messages verbatim.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Errors, "; ")
}

// CreateRequest describes a new integration.
type CreateRequest struct {
	Name   string
	Type   model.ProviderType
	Config json.RawMessage
}

// Manager is the integration registry.
type Manager struct {
	store  ledger.Store
	engine *engine.Engine
	logger *log.Logger
}

// NewManager creates a Manager backed by the given store.
func NewManager(store ledger.Store, logger *log.Logger) *Manager {
	return &Manager{
		store:  store,
		engine: engine.New(store, logger),
		logger: logger,
	}
}

// newProvider is the closed dispatch from a stored record to a concrete
// provider. Adding a provider type means adding one case here.
func (m *Manager) newProvider(integ *model.Integration, data []byte) (provider.Provider, error) {
	switch integ.Type {
	case model.ProviderUpBank:
		var cfg upbank.Config
		if err := json.Unmarshal(integ.Config, &cfg); err != nil {
			return nil, fmt.Errorf("decoding upbank config: %w", err)
		}
		return upbank.New(cfg, m.logger), nil
	case model.ProviderCSV:
		var cfg csvfile.Config
		if err := json.Unmarshal(integ.Config, &cfg); err != nil {
			return nil, fmt.Errorf("decoding csv config: %w", err)
		}
		return csvfile.New(cfg, data, integ.UserID, m.store, m.logger), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", integ.Type)
	}
}

// Create validates the requested configuration (including a live check
// where the provider supports one) and persists the record only when it
// is valid. Validation messages are surfaced verbatim.
func (m *Manager) Create(ctx context.Context, userID string, req CreateRequest) (*model.Integration, error) {
	if req.Name == "" {
		return nil, &ValidationError{Errors: []string{"name is required"}}
	}

	integ := &model.Integration{
		UserID:         userID,
		Name:           req.Name,
		Type:           req.Type,
		Config:         req.Config,
		IsActive:       true,
		LastSyncStatus: model.SyncStatusPending,
	}

	p, err := m.newProvider(integ, nil)
	if err != nil {
		return nil, err
	}
	if res := p.ValidateConfig(ctx); !res.IsValid {
		return nil, &ValidationError{Errors: res.Errors}
	}
	integ.IsVerified = true

	if err := m.store.CreateIntegration(ctx, integ); err != nil {
		return nil, fmt.Errorf("persisting integration: %w", err)
	}
	m.logger.Info("integration created", "id", integ.ID, "type", integ.Type)
	return integ, nil
}

// Update merges a partial config into the stored one and re-validates the
// merged result before persisting. An invalid merge is never persisted.
func (m *Manager) Update(ctx context.Context, userID, id string, partial json.RawMessage) (*model.Integration, error) {
	integ, err := m.store.GetIntegration(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	merged, err := mergeConfig(integ.Config, partial)
	if err != nil {
		return nil, err
	}

	candidate := *integ
	candidate.Config = merged

	p, err := m.newProvider(&candidate, nil)
	if err != nil {
		return nil, err
	}
	if res := p.ValidateConfig(ctx); !res.IsValid {
		return nil, &ValidationError{Errors: res.Errors}
	}
	candidate.IsVerified = true

	if err := m.store.UpdateIntegration(ctx, &candidate); err != nil {
		return nil, fmt.Errorf("persisting integration: %w", err)
	}
	return &candidate, nil
}

// mergeConfig overlays partial onto base, key by key at the top level.
func mergeConfig(base, partial json.RawMessage) (json.RawMessage, error) {
	merged := map[string]any{}
	if len(base) > 0 {
		if err := json.Unmarshal(base, &merged); err != nil {
			return nil, fmt.Errorf("decoding stored config: %w", err)
		}
	}
	overlay := map[string]any{}
	if len(partial) > 0 {
		if err := json.Unmarshal(partial, &overlay); err != nil {
			return nil, fmt.Errorf("decoding config update: %w", err)
		}
	}
	for k, v := range overlay {
		merged[k] = v
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encoding merged config: %w", err)
	}
	return out, nil
}

// Get returns one integration record.
func (m *Manager) Get(ctx context.Context, userID, id string) (*model.Integration, error) {
	return m.store.GetIntegration(ctx, userID, id)
}

// List returns a user's integration records.
func (m *Manager) List(ctx context.Context, userID string) ([]model.Integration, error) {
	return m.store.ListIntegrations(ctx, userID)
}

// Delete removes an integration record.
func (m *Manager) Delete(ctx context.Context, userID, id string) error {
	return m.store.DeleteIntegration(ctx, userID, id)
}

// Sessions returns the run history for an integration, newest first.
func (m *Manager) Sessions(ctx context.Context, userID, id string) ([]model.ImportSession, error) {
	if _, err := m.store.GetIntegration(ctx, userID, id); err != nil {
		return nil, err
	}
	return m.store.ListSessions(ctx, id)
}

// TestConnection instantiates the stored integration's provider and runs
// its liveness check.
func (m *Manager) TestConnection(ctx context.Context, userID, id string) (bool, error) {
	integ, err := m.store.GetIntegration(ctx, userID, id)
	if err != nil {
		return false, err
	}
	p, err := m.newProvider(integ, nil)
	if err != nil {
		return false, err
	}
	return p.TestConnection(ctx), nil
}

// Sync runs one synchronization for the integration. REST-style
// integrations go through the engine; csv integrations run the file
// pipeline and require the file contents in data.
func (m *Manager) Sync(ctx context.Context, userID, id string, opts engine.Options, data []byte) (*model.ImportSession, error) {
	integ, err := m.store.GetIntegration(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !integ.IsActive {
		return nil, fmt.Errorf("integration %s is not active", id)
	}

	if integ.Type == model.ProviderCSV {
		if len(data) == 0 {
			return nil, fmt.Errorf("csv sync requires file contents")
		}
		p, err := m.newProvider(integ, data)
		if err != nil {
			return nil, err
		}
		return p.(*csvfile.Provider).Import(ctx, integ)
	}

	p, err := m.newProvider(integ, nil)
	if err != nil {
		return nil, err
	}
	return m.engine.Sync(ctx, integ, p, opts)
}
