package commands

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/ledgerlink-dev/ledgerlink/internal/model"
)

func newAccountCommand() *cobra.Command {
	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Manage ledger accounts",
	}
	accountCmd.AddCommand(newAccountAddCommand())
	return accountCmd
}

func newAccountAddCommand() *cobra.Command {
	var accountType string
	var currency string
	var balance string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a ledger account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			bal, err := decimal.NewFromString(balance)
			if err != nil {
				return fmt.Errorf("parsing balance %q: %w", balance, err)
			}

			a := &model.Account{
				UserID:      e.cfg.User.ID,
				Name:        args[0],
				Type:        model.AccountType(accountType),
				Balance:     bal,
				Currency:    currency,
				IsLiability: model.AccountType(accountType).IsLiability(),
			}
			if err := e.store.CreateAccount(cmd.Context(), a); err != nil {
				return err
			}

			fmt.Printf("Created account %s (%s)\n", a.Name, a.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&accountType, "type", string(model.AccountTypeChecking), "account type (checking, savings, credit_card, loan, cash)")
	cmd.Flags().StringVar(&currency, "currency", "USD", "currency code")
	cmd.Flags().StringVar(&balance, "balance", "0", "opening balance")

	return cmd
}
