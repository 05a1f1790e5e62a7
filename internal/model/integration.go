package model

import (
	"encoding/json"
	"time"
)

// ProviderType tags a connected data source implementation.
type ProviderType string

const (
	ProviderUpBank ProviderType = "upbank"
	ProviderCSV    ProviderType = "csv"
)

// SyncStatus is the outcome of an integration's most recent sync.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusError   SyncStatus = "error"
)

// Integration is one connected data source for one user. Config is the
// provider-specific configuration (including secrets), stored opaque and
// decoded against the provider's own config type before use.
type Integration struct {
	ID             string
	UserID         string
	Name           string
	Type           ProviderType
	Config         json.RawMessage
	IsActive       bool
	IsVerified     bool
	LastSyncAt     time.Time // zero until the first sync attempt
	LastSyncStatus SyncStatus
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
