package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ledgerlink-dev/ledgerlink/internal/integration"
	"github.com/ledgerlink-dev/ledgerlink/internal/model"
	"github.com/ledgerlink-dev/ledgerlink/internal/provider/csvfile"
	"github.com/ledgerlink-dev/ledgerlink/internal/provider/upbank"
)

func newIntegrationCommand() *cobra.Command {
	integrationCmd := &cobra.Command{
		Use:   "integration",
		Short: "Manage data source integrations",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Connect a new data source",
	}
	addCmd.AddCommand(newIntegrationAddUpbankCommand())
	addCmd.AddCommand(newIntegrationAddCSVCommand())

	integrationCmd.AddCommand(addCmd)
	integrationCmd.AddCommand(newIntegrationListCommand())
	integrationCmd.AddCommand(newIntegrationRemoveCommand())
	integrationCmd.AddCommand(newIntegrationTestCommand())
	integrationCmd.AddCommand(newIntegrationUpdateCommand())

	return integrationCmd
}

func newIntegrationAddUpbankCommand() *cobra.Command {
	var name, token, baseURL string

	cmd := &cobra.Command{
		Use:   "upbank",
		Short: "Connect an Up bank account",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			// LEDGERLINK_UP_TOKEN can supply the token instead of the flag.
			if token == "" {
				token = viper.GetString("up_token")
			}

			cfg, err := json.Marshal(upbank.Config{Token: token, BaseURL: baseURL})
			if err != nil {
				return fmt.Errorf("encoding config: %w", err)
			}

			integ, err := e.manager.Create(cmd.Context(), e.cfg.User.ID, integration.CreateRequest{
				Name:   name,
				Type:   model.ProviderUpBank,
				Config: cfg,
			})
			if err != nil {
				return err
			}

			fmt.Printf("Created integration %s (%s)\n", integ.Name, integ.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "integration name (required)")
	_ = cmd.MarkFlagRequired("name")
	cmd.Flags().StringVar(&token, "token", "", "personal access token (or LEDGERLINK_UP_TOKEN)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "API base URL override")

	return cmd
}

func newIntegrationAddCSVCommand() *cobra.Command {
	var name, accountID, delimiter, dateFormat string
	var hasHeader bool
	var dateCol, descCol, amountCol, categoryCol int

	cmd := &cobra.Command{
		Use:   "csv",
		Short: "Connect a CSV export for one account",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			cols := csvfile.ColumnMapping{Date: dateCol, Description: descCol, Amount: amountCol}
			if categoryCol >= 0 {
				c := categoryCol
				cols.Category = &c
			}

			cfg, err := json.Marshal(csvfile.Config{
				AccountID:  accountID,
				Delimiter:  delimiter,
				HasHeader:  hasHeader,
				DateFormat: dateFormat,
				Columns:    cols,
			})
			if err != nil {
				return fmt.Errorf("encoding config: %w", err)
			}

			integ, err := e.manager.Create(cmd.Context(), e.cfg.User.ID, integration.CreateRequest{
				Name:   name,
				Type:   model.ProviderCSV,
				Config: cfg,
			})
			if err != nil {
				return err
			}

			fmt.Printf("Created integration %s (%s)\n", integ.Name, integ.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "integration name (required)")
	_ = cmd.MarkFlagRequired("name")
	cmd.Flags().StringVar(&accountID, "account", "", "ledger account id the file belongs to (required)")
	_ = cmd.MarkFlagRequired("account")
	cmd.Flags().StringVar(&delimiter, "delimiter", ",", "field delimiter")
	cmd.Flags().BoolVar(&hasHeader, "header", true, "file has a header row")
	cmd.Flags().StringVar(&dateFormat, "date-format", "auto", `date format ("auto" or e.g. DD/MM/YYYY)`)
	cmd.Flags().IntVar(&dateCol, "date-col", 0, "date column index")
	cmd.Flags().IntVar(&descCol, "description-col", 1, "description column index")
	cmd.Flags().IntVar(&amountCol, "amount-col", 2, "amount column index")
	cmd.Flags().IntVar(&categoryCol, "category-col", -1, "category column index (-1 = none)")

	return cmd
}

func newIntegrationListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List integrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			integrations, err := e.manager.List(cmd.Context(), e.cfg.User.ID)
			if err != nil {
				return err
			}
			if len(integrations) == 0 {
				fmt.Println("No integrations configured.")
				return nil
			}

			for _, i := range integrations {
				last := "never"
				if !i.LastSyncAt.IsZero() {
					last = i.LastSyncAt.Local().Format(time.RFC3339)
				}
				fmt.Printf("%s  %-8s %-20s last sync: %s (%s)\n", i.ID, i.Type, i.Name, last, i.LastSyncStatus)
				if i.LastError != "" {
					fmt.Printf("  error: %s\n", i.LastError)
				}
			}
			return nil
		},
	}
}

func newIntegrationRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove an integration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			if err := e.manager.Delete(cmd.Context(), e.cfg.User.ID, args[0]); err != nil {
				return err
			}
			fmt.Println("Removed.")
			return nil
		},
	}
}

func newIntegrationTestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "test <id>",
		Short: "Test an integration's connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			ok, err := e.manager.TestConnection(cmd.Context(), e.cfg.User.ID, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("connection test failed")
			}
			fmt.Println("Connection OK.")
			return nil
		},
	}
}

func newIntegrationUpdateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "update <id> <partial-config-json>",
		Short: "Merge new values into an integration's config",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			integ, err := e.manager.Update(cmd.Context(), e.cfg.User.ID, args[0], json.RawMessage(args[1]))
			if err != nil {
				return err
			}
			fmt.Printf("Updated integration %s\n", integ.ID)
			return nil
		},
	}
}
