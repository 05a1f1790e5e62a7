package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ledgerlink-dev/ledgerlink/internal/engine"
	"github.com/ledgerlink-dev/ledgerlink/internal/model"
)

func newSyncCommand() *cobra.Command {
	var full bool
	var since string
	var pageSize int

	cmd := &cobra.Command{
		Use:   "sync <integration-id>",
		Short: "Sync an integration's accounts and transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			opts := engine.Options{FullHistory: full, PageSize: pageSize}
			if opts.PageSize == 0 {
				opts.PageSize = e.cfg.Sync.PageSize
			}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("parsing --since %q: %w", since, err)
				}
				opts.Since = &t
			}

			session, err := e.manager.Sync(cmd.Context(), e.cfg.User.ID, args[0], opts, nil)
			if session != nil {
				printSession(session)
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "fetch full history instead of changes since the last sync")
	cmd.Flags().StringVar(&since, "since", "", "fetch transactions since this date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "provider page-size hint")

	return cmd
}

func newImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <integration-id> <file>",
		Short: "Import a CSV export through a csv integration",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[1], err)
			}

			session, err := e.manager.Sync(cmd.Context(), e.cfg.User.ID, args[0], engine.Options{}, data)
			if session != nil {
				printSession(session)
			}
			return err
		},
	}
}

func newSessionsCommand() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "sessions <integration-id>",
		Short: "Show an integration's sync history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			sessions, err := e.manager.Sessions(cmd.Context(), e.cfg.User.ID, args[0])
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Println("No sync runs yet.")
				return nil
			}

			for _, s := range sessions {
				fmt.Printf("%s  %-9s started %s  accounts=%d imported=%d skipped=%d errors=%d\n",
					s.ID, s.Status, s.StartedAt.Local().Format(time.RFC3339),
					s.AccountsImported, s.TransactionsImported, s.TransactionsSkipped, len(s.Errors))
				if verbose {
					for _, entry := range s.Logs {
						fmt.Printf("  [%s] %s\n", entry.Level, entry.Message)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&verbose, "logs", false, "include per-run log entries")

	return cmd
}

func printSession(s *model.ImportSession) {
	fmt.Printf("Sync %s: %s\n", s.ID, s.Status)
	fmt.Printf("  accounts imported:     %d\n", s.AccountsImported)
	fmt.Printf("  transactions imported: %d\n", s.TransactionsImported)
	fmt.Printf("  transactions skipped:  %d\n", s.TransactionsSkipped)
	if warnings := s.Warnings(); len(warnings) > 0 {
		fmt.Printf("  warnings:\n")
		for _, w := range warnings {
			fmt.Printf("    - %s\n", w)
		}
	}
	if len(s.Errors) > 0 {
		fmt.Printf("  errors:\n")
		for _, e := range s.Errors {
			fmt.Printf("    - %s\n", e)
		}
	}
}
