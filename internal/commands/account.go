package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledger/internal/accounts"
	"github.com/cleared-dev/ledger/internal/model"
)

func newAccountCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Inspect and maintain the chart of accounts",
	}
	cmd.AddCommand(
		newAccountListCommand(g),
		newAccountShowCommand(g),
		newAccountAddCommand(g),
		newAccountRecomputeCommand(g),
		newAccountExportCommand(g),
		newAccountImportCommand(g),
	)
	return cmd
}

func newAccountListCommand(g *globals) *cobra.Command {
	var accountType string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active accounts with balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()

			var accts []model.Account
			if accountType != "" {
				accts, err = a.accounts.FindByType(cmd.Context(), model.AccountType(accountType))
			} else {
				accts, err = a.accounts.FindActive(cmd.Context())
			}
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CODE\tNAME\tTYPE\tBALANCE")
			for _, acct := range accts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", acct.Code, acct.Name, acct.Type, acct.CurrentBalance.StringFixed(2))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&accountType, "type", "", "only accounts of this type")
	return cmd
}

func newAccountShowCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show CODE",
		Short: "Show an account, its path and its children",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			acct, err := a.accounts.GetByCode(ctx, args[0])
			if err != nil {
				return fmt.Errorf("account %s: %w", args[0], err)
			}
			side, err := accounts.Classify(acct)
			if err != nil {
				return err
			}
			ancestors, err := a.accounts.Ancestors(ctx, acct.ID)
			if err != nil {
				return err
			}
			children, err := a.accounts.Descendants(ctx, acct.ID)
			if err != nil {
				return err
			}

			path := make([]string, 0, len(ancestors)+1)
			for _, p := range ancestors {
				path = append(path, p.Code)
			}
			path = append(path, acct.Code)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", acct.Code, acct.Name)
			fmt.Fprintf(out, "  type:     %s (%s-normal)\n", acct.Type, side)
			fmt.Fprintf(out, "  path:     %s\n", strings.Join(path, " > "))
			fmt.Fprintf(out, "  opening:  %s\n", acct.OpeningBalance.StringFixed(2))
			fmt.Fprintf(out, "  balance:  %s %s\n", acct.CurrentBalance.StringFixed(2), acct.Currency)
			fmt.Fprintf(out, "  active:   %t\n", acct.IsActive)
			fmt.Fprintf(out, "  children: %d\n", len(children))
			return nil
		},
	}
}

func newAccountAddCommand(g *globals) *cobra.Command {
	var (
		code, name, accountType, parent, currency, subtype string
		opening                                            string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			bal, err := decimal.NewFromString(opening)
			if err != nil {
				return fmt.Errorf("invalid --opening %q: %w", opening, err)
			}
			if currency == "" {
				currency = a.cfg.Ledger.BaseCurrency
			}
			acct := &model.Account{
				Code:           code,
				Name:           name,
				Type:           model.AccountType(accountType),
				Subtype:        subtype,
				Currency:       currency,
				OpeningBalance: bal,
				IsActive:       true,
			}
			if parent != "" {
				p, err := a.accounts.GetByCode(ctx, parent)
				if err != nil {
					return fmt.Errorf("parent %s: %w", parent, err)
				}
				acct.ParentID = &p.ID
			}
			if err := a.accounts.CreateAccount(ctx, acct); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added account %s %s\n", acct.Code, acct.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "account code (required)")
	cmd.Flags().StringVar(&name, "name", "", "account name (required)")
	cmd.Flags().StringVar(&accountType, "type", "", "asset, liability, equity, revenue or expense (required)")
	cmd.Flags().StringVar(&parent, "parent", "", "parent account code")
	cmd.Flags().StringVar(&currency, "currency", "", "account currency (default: base currency)")
	cmd.Flags().StringVar(&subtype, "subtype", "", "free-form subtype")
	cmd.Flags().StringVar(&opening, "opening", "0", "opening balance")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newAccountRecomputeCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "recompute [CODE]",
		Short: "Recompute one account's balance, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			if len(args) == 0 {
				n, err := a.accounts.RecomputeAll(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recomputed %d accounts\n", n)
				return nil
			}

			acct, err := a.accounts.GetByCode(ctx, args[0])
			if err != nil {
				return fmt.Errorf("account %s: %w", args[0], err)
			}
			bal, err := a.accounts.Recompute(ctx, acct.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", acct.Code, bal.StringFixed(2))
			return nil
		},
	}
}

func newAccountExportCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write the chart of accounts as CSV to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()

			chart, err := a.accounts.Chart(cmd.Context())
			if err != nil {
				return err
			}
			return accounts.WriteAccounts(cmd.OutOrStdout(), chart)
		},
	}
}

func newAccountImportCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Add accounts from a chart-of-accounts CSV, skipping existing codes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			defer f.Close()

			chart, err := accounts.ReadAccounts(f)
			if err != nil {
				return err
			}
			n, err := a.accounts.Seed(cmd.Context(), chart)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d accounts\n", n)
			return nil
		},
	}
}
