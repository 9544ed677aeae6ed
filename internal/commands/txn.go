package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledger/internal/journal"
	"github.com/cleared-dev/ledger/internal/store"
)

func newTxnCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "txn",
		Short: "Create, lock and inspect transactions",
	}
	cmd.AddCommand(
		newTxnCreateCommand(g),
		newTxnLockCommand(g, true),
		newTxnLockCommand(g, false),
		newTxnShowCommand(g),
		newTxnListCommand(g),
		newTxnExportCommand(g),
		newTxnDeleteCommand(g),
	)
	return cmd
}

func newTxnCreateCommand(g *globals) *cobra.Command {
	var (
		date, description, currency, costCenter string
		tags, debits, credits                   []string
		lock                                    bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a transaction from --debit/--credit CODE=AMOUNT lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			d, err := parseDate(date)
			if err != nil {
				return err
			}
			entries, err := a.entries(ctx, debits, credits)
			if err != nil {
				return err
			}

			txn, err := a.engine.CreateTransaction(ctx, journal.CreateRequest{
				Date:        d,
				Description: description,
				Currency:    currency,
				CostCenter:  costCenter,
				Tags:        tags,
				Entries:     entries,
			}, g.Actor())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s %s)\n", txn.ReferenceNumber, txn.TotalAmount.StringFixed(2), txn.Currency)

			if lock {
				if _, err := a.engine.Lock(ctx, txn.ID, g.Actor()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Locked %s\n", txn.ReferenceNumber)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "transaction date YYYY-MM-DD (default: today)")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&currency, "currency", "", "currency (default: base currency)")
	cmd.Flags().StringVar(&costCenter, "cost-center", "", "cost center tag")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "tag (repeatable)")
	cmd.Flags().StringArrayVar(&debits, "debit", nil, "debit line CODE=AMOUNT (repeatable)")
	cmd.Flags().StringArrayVar(&credits, "credit", nil, "credit line CODE=AMOUNT (repeatable)")
	cmd.Flags().BoolVar(&lock, "lock", false, "lock the transaction after creating it")
	return cmd
}

func newTxnLockCommand(g *globals, lock bool) *cobra.Command {
	use, short := "lock REFERENCE", "Lock a transaction and update account balances"
	if !lock {
		use, short = "unlock REFERENCE", "Unlock a transaction and update account balances"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			txn, err := a.engine.GetByReference(ctx, args[0])
			if err != nil {
				return fmt.Errorf("transaction %s: %w", args[0], err)
			}

			var changed bool
			if lock {
				changed, err = a.engine.Lock(ctx, txn.ID, g.Actor())
			} else {
				changed, err = a.engine.Unlock(ctx, txn.ID, g.Actor())
			}
			if err != nil {
				return err
			}

			state := "locked"
			if !lock {
				state = "unlocked"
			}
			if !changed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already %s\n", txn.ReferenceNumber, state)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", txn.ReferenceNumber, state)
			return nil
		},
	}
}

func newTxnShowCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show REFERENCE",
		Short: "Show a transaction and its entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			txn, err := a.engine.GetByReference(ctx, args[0])
			if err != nil {
				return fmt.Errorf("transaction %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s  %s  %s\n", txn.ReferenceNumber, txn.Date.Format("2006-01-02"), txn.Description)
			fmt.Fprintf(out, "  type: %s  currency: %s @ %s  locked: %t  balanced: %t\n",
				txn.Type, txn.Currency, txn.ExchangeRate, txn.IsLocked, journal.IsBalanced(txn))

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "  ACCOUNT\tDEBIT\tCREDIT")
			for _, e := range txn.Entries {
				acct, err := a.accounts.Get(ctx, e.AccountID)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "  %s %s\t%s\t%s\n", acct.Code, acct.Name, amount(e.DebitAmount.IsZero(), e.DebitAmount.StringFixed(2)), amount(e.CreditAmount.IsZero(), e.CreditAmount.StringFixed(2)))
			}
			return w.Flush()
		},
	}
}

func amount(zero bool, s string) string {
	if zero {
		return "-"
	}
	return s
}

type listFlags struct {
	from, to, lock string
	limit          int
}

func (f *listFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.from, "from", "", "first date YYYY-MM-DD")
	cmd.Flags().StringVar(&f.to, "to", "", "last date YYYY-MM-DD")
	cmd.Flags().StringVar(&f.lock, "locked", string(store.LockAny), "all, locked or unlocked")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "maximum rows (0 = no limit)")
}

func (f *listFlags) filter() (store.TransactionFilter, error) {
	filter := store.TransactionFilter{Lock: store.LockFilter(f.lock), Limit: f.limit}
	var err error
	if f.from != "" {
		if filter.From, err = parseDate(f.from); err != nil {
			return filter, err
		}
	}
	if f.to != "" {
		if filter.To, err = parseDate(f.to); err != nil {
			return filter, err
		}
	}
	return filter, nil
}

func newTxnListCommand(g *globals) *cobra.Command {
	var lf listFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()

			filter, err := lf.filter()
			if err != nil {
				return err
			}
			txns, err := a.engine.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "REFERENCE\tDATE\tTYPE\tAMOUNT\tLOCKED\tDESCRIPTION")
			for _, t := range txns {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s %s\t%t\t%s\n",
					t.ReferenceNumber, t.Date.Format("2006-01-02"), t.Type,
					t.TotalAmount.StringFixed(2), t.Currency, t.IsLocked, t.Description)
			}
			return w.Flush()
		},
	}
	lf.register(cmd)
	return cmd
}

func newTxnExportCommand(g *globals) *cobra.Command {
	var lf listFlags

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write journal lines as CSV to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()

			filter, err := lf.filter()
			if err != nil {
				return err
			}
			txns, err := a.engine.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return journal.ExportEntries(cmd.OutOrStdout(), txns)
		},
	}
	lf.register(cmd)
	return cmd
}

func newTxnDeleteCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "delete REFERENCE",
		Short: "Delete an unlocked transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			txn, err := a.engine.GetByReference(ctx, args[0])
			if err != nil {
				return fmt.Errorf("transaction %s: %w", args[0], err)
			}
			if err := a.engine.DeleteTransaction(ctx, txn.ID, g.Actor()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", txn.ReferenceNumber)
			return nil
		},
	}
}

