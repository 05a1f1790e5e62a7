package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ledgerlink-dev/ledgerlink/internal/config"
	"github.com/ledgerlink-dev/ledgerlink/internal/ledger"
)

func newInitCommand() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new ledgerlink installation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}
			return runInit(absDir, user)
		},
	}

	cmd.Flags().StringVar(&user, "user", "local", "ledger owner id")

	return cmd
}

func runInit(dir, user string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	cfgPath := filepath.Join(dir, "ledgerlink.yaml")
	if _, err := os.Stat(cfgPath); err == nil {
		return fmt.Errorf("%s already exists", cfgPath)
	}

	cfg := config.Default()
	cfg.User.ID = user
	cfg.Database.Path = filepath.Join(dir, "ledgerlink.db")
	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	// Create the database and schema up front.
	store, err := ledger.OpenSQLite(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("creating ledger database: %w", err)
	}
	if err := store.Close(); err != nil {
		return fmt.Errorf("closing ledger database: %w", err)
	}

	fmt.Printf("Initialized ledgerlink at %s\n", dir)
	return nil
}
