package commands

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledger/internal/model"
)

func newRecurringCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recurring",
		Short: "Manage recurring transaction templates",
	}
	cmd.AddCommand(
		newRecurringAddCommand(g),
		newRecurringListCommand(g),
		newRecurringRunCommand(g),
		newRecurringHistoryCommand(g),
	)
	return cmd
}

func newRecurringAddCommand(g *globals) *cobra.Command {
	var (
		name, frequency, start, end, description, currency, costCenter string
		interval, maxOccurrences                                       int
		debits, credits, tags                                          []string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a recurring template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			startDate, err := parseDate(start)
			if err != nil {
				return err
			}
			entries, err := a.entries(ctx, debits, credits)
			if err != nil {
				return err
			}

			specs := make([]model.EntrySpec, len(entries))
			for i, e := range entries {
				specs[i] = model.EntrySpec{AccountID: e.AccountID, DebitAmount: e.DebitAmount, CreditAmount: e.CreditAmount}
			}
			total, _ := model.Totals(entries)
			if currency == "" {
				currency = a.cfg.Ledger.BaseCurrency
			}

			r := &model.RecurringTransaction{
				Name:      name,
				Frequency: model.Frequency(frequency),
				Interval:  interval,
				StartDate: startDate,
				Template: model.TransactionTemplate{
					Description: description,
					TotalAmount: total,
					Currency:    currency,
					CostCenter:  costCenter,
					Tags:        tags,
					Entries:     specs,
				},
			}
			if end != "" {
				endDate, err := parseDate(end)
				if err != nil {
					return err
				}
				r.EndDate = &endDate
			}
			if maxOccurrences > 0 {
				r.MaxOccurrences = &maxOccurrences
			}

			if err := a.recurring.Create(ctx, r, g.Actor()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added recurring template %d %q, first run %s\n",
				r.ID, r.Name, r.NextRunDate.Format("2006-01-02"))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "template name (required)")
	cmd.Flags().StringVar(&frequency, "frequency", string(model.FrequencyMonthly), "daily, weekly, monthly, quarterly or yearly")
	cmd.Flags().IntVar(&interval, "interval", 1, "number of frequency units between runs")
	cmd.Flags().StringVar(&start, "start", "", "first run date YYYY-MM-DD (default: today)")
	cmd.Flags().StringVar(&end, "end", "", "last possible run date YYYY-MM-DD")
	cmd.Flags().IntVar(&maxOccurrences, "max", 0, "maximum number of runs (0 = unlimited)")
	cmd.Flags().StringVar(&description, "description", "", "description of generated transactions")
	cmd.Flags().StringVar(&currency, "currency", "", "currency (default: base currency)")
	cmd.Flags().StringVar(&costCenter, "cost-center", "", "cost center tag")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "tag (repeatable)")
	cmd.Flags().StringArrayVar(&debits, "debit", nil, "debit line CODE=AMOUNT (repeatable)")
	cmd.Flags().StringArrayVar(&credits, "credit", nil, "credit line CODE=AMOUNT (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newRecurringListCommand(g *globals) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recurring templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()

			rs, err := a.recurring.List(cmd.Context(), !all)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tEVERY\tNEXT RUN\tRUNS\tACTIVE")
			for _, r := range rs {
				runs := strconv.Itoa(r.OccurrencesCount)
				if r.MaxOccurrences != nil {
					runs += "/" + strconv.Itoa(*r.MaxOccurrences)
				}
				fmt.Fprintf(w, "%d\t%s\t%d %s\t%s\t%s\t%t\n",
					r.ID, r.Name, r.Interval, r.Frequency, r.NextRunDate.Format("2006-01-02"), runs, r.IsActive)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include inactive templates")
	return cmd
}

func newRecurringRunCommand(g *globals) *cobra.Command {
	var asOf string

	cmd := &cobra.Command{
		Use:   "run [ID]",
		Short: "Run one template, or every template due",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			now, err := parseDate(asOf)
			if err != nil {
				return err
			}

			if len(args) == 1 {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid template ID %q: %w", args[0], err)
				}
				txn, err := a.recurring.RunByID(ctx, id, now, g.Actor())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", txn.ReferenceNumber)
				return nil
			}

			res, err := a.recurring.RunDue(ctx, now, g.Actor())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Batch %s: %d succeeded, %d failed\n", res.BatchID, res.Succeeded, res.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "treat this date as today YYYY-MM-DD")
	return cmd
}

func newRecurringHistoryCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "history ID",
		Short: "Show the run history of a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid template ID %q: %w", args[0], err)
			}
			runs, err := a.recurring.History(cmd.Context(), id)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN AT\tSTATUS\tBATCH\tERROR")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.RunAt.Format("2006-01-02"), r.Status, r.BatchID, r.Error)
			}
			return w.Flush()
		},
	}
}
