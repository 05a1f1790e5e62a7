// Package commands wires the ledgerlink CLI.
package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ledgerlink-dev/ledgerlink/internal/buildinfo"
	"github.com/ledgerlink-dev/ledgerlink/internal/config"
	"github.com/ledgerlink-dev/ledgerlink/internal/integration"
	"github.com/ledgerlink-dev/ledgerlink/internal/ledger"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "ledgerlink",
		Short:   "Sync bank data into your local ledger",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "ledgerlink.yaml", "config file path")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.SetEnvPrefix("LEDGERLINK")
	viper.AutomaticEnv()

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newAccountCommand())
	rootCmd.AddCommand(newIntegrationCommand())
	rootCmd.AddCommand(newSyncCommand())
	rootCmd.AddCommand(newImportCommand())
	rootCmd.AddCommand(newSessionsCommand())

	return rootCmd
}

// env bundles the dependencies every command needs.
type env struct {
	cfg     *config.Config
	store   *ledger.SQLite
	manager *integration.Manager
	logger  *log.Logger
}

// openEnv loads configuration, opens the ledger database and builds the
// integration manager. Falls back to defaults when no config file exists.
func openEnv() (*env, error) {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "ledgerlink",
	})
	if viper.GetBool("verbose") {
		logger.SetLevel(log.DebugLevel)
	}

	cfg, err := config.Load(viper.GetString("config"))
	if errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
	} else if err != nil {
		return nil, err
	}

	// LEDGERLINK_DATABASE overrides the configured path.
	if v := viper.GetString("database"); v != "" {
		cfg.Database.Path = v
	}

	store, err := ledger.OpenSQLite(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	return &env{
		cfg:     cfg,
		store:   store,
		manager: integration.NewManager(store, logger),
		logger:  logger,
	}, nil
}

func (e *env) close() {
	if err := e.store.Close(); err != nil {
		e.logger.Error("closing database", "error", err)
	}
}
