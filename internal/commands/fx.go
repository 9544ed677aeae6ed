package commands

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledger/internal/model"
)

func newFXCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fx",
		Short: "Manage currencies and exchange rates",
	}
	cmd.AddCommand(
		newFXSetCommand(g),
		newFXRateCommand(g),
		newFXConvertCommand(g),
		newFXCurrencyCommand(g),
	)
	return cmd
}

func newFXSetCommand(g *globals) *cobra.Command {
	var effective string

	cmd := &cobra.Command{
		Use:   "set FROM TO RATE",
		Short: "Record an exchange rate effective from a date",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()

			rate, err := decimal.NewFromString(args[2])
			if err != nil {
				return fmt.Errorf("invalid rate %q: %w", args[2], err)
			}
			on, err := parseDate(effective)
			if err != nil {
				return err
			}
			if err := a.rates.SetRate(cmd.Context(), args[0], args[1], rate, on); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s/%s = %s from %s\n", args[0], args[1], rate, on.Format("2006-01-02"))
			return nil
		},
	}
	cmd.Flags().StringVar(&effective, "effective", "", "effective date YYYY-MM-DD (default: today)")
	return cmd
}

func newFXRateCommand(g *globals) *cobra.Command {
	var on string

	cmd := &cobra.Command{
		Use:   "rate FROM TO",
		Short: "Show the rate effective on a date",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()

			asOf, err := parseDate(on)
			if err != nil {
				return err
			}
			rate, err := a.rates.GetRate(cmd.Context(), args[0], args[1], asOf)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rate.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&on, "on", "", "date YYYY-MM-DD (default: today)")
	return cmd
}

func newFXConvertCommand(g *globals) *cobra.Command {
	var on string

	cmd := &cobra.Command{
		Use:   "convert AMOUNT FROM TO",
		Short: "Convert an amount at the rate effective on a date",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()

			amt, err := decimal.NewFromString(args[0])
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[0], err)
			}
			asOf, err := parseDate(on)
			if err != nil {
				return err
			}
			out, err := a.rates.Convert(cmd.Context(), args[1], amt, args[2], asOf)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", out.StringFixed(2), args[2])
			return nil
		},
	}
	cmd.Flags().StringVar(&on, "on", "", "date YYYY-MM-DD (default: today)")
	return cmd
}

func newFXCurrencyCommand(g *globals) *cobra.Command {
	var name, rate string
	var base bool

	cmd := &cobra.Command{
		Use:   "currency CODE",
		Short: "Register or update a currency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()

			r, err := decimal.NewFromString(rate)
			if err != nil {
				return fmt.Errorf("invalid --rate %q: %w", rate, err)
			}
			c := model.Currency{Code: args[0], Name: name, ExchangeRate: r, IsBase: base}
			if err := a.rates.UpsertCurrency(cmd.Context(), c); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved currency %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&rate, "rate", "1", "rate against the base currency")
	cmd.Flags().BoolVar(&base, "base", false, "make this the base currency")
	return cmd
}
