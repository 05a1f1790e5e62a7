// Package config reads and writes the ledgerlink.yaml configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the top-level ledgerlink.yaml configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	User     UserConfig     `yaml:"user"`
	Sync     SyncConfig     `yaml:"sync"`
}

// DatabaseConfig locates the sqlite ledger.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// UserConfig identifies the ledger owner for this installation.
type UserConfig struct {
	ID string `yaml:"id"`
}

// SyncConfig holds sync defaults.
type SyncConfig struct {
	PageSize int `yaml:"page_size"` // provider page-size hint
}

// Load reads a ledgerlink.yaml file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new installation.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "ledgerlink.db"},
		User:     UserConfig{ID: "local"},
		Sync:     SyncConfig{PageSize: 100},
	}
}
