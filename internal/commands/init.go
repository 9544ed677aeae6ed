package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledger/internal/accounts"
	"github.com/cleared-dev/ledger/internal/config"
	"github.com/cleared-dev/ledger/internal/model"
)

func newInitCommand() *cobra.Command {
	var name string
	var entityType string
	var currency string

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new ledger project",
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

			return runInit(cmd, absDir, name, entityType, currency)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "business name (required)")
	_ = cmd.MarkFlagRequired("name")
	cmd.Flags().StringVar(&entityType, "entity-type", "small_business", "entity type")
	cmd.Flags().StringVar(&currency, "currency", "USD", "base currency")

	return cmd
}

func runInit(cmd *cobra.Command, dir, name, entityType, currency string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := config.Default(name, entityType, currency)
	for _, d := range []string{cfg.Storage.AuditDir, "accounts"} {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	cfgPath := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(cfgPath); err == nil {
		return fmt.Errorf("%s already exists", cfgPath)
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	a, err := wire(dir, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.rates.UpsertCurrency(ctx, model.Currency{Code: currency, Name: currency, IsBase: true}); err != nil {
		return fmt.Errorf("registering base currency: %w", err)
	}

	n, err := a.accounts.Seed(ctx, accounts.DefaultChart(entityType, currency))
	if err != nil {
		return fmt.Errorf("seeding chart of accounts: %w", err)
	}

	// Write chart of accounts.
	chart, err := a.accounts.Chart(ctx)
	if err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(dir, "accounts", "chart-of-accounts.csv"))
	if err != nil {
		return fmt.Errorf("creating chart of accounts file: %w", err)
	}
	defer f.Close()
	if err := accounts.WriteAccounts(f, chart); err != nil {
		return fmt.Errorf("writing chart of accounts: %w", err)
	}

	gitignore := "*.db\n*.db-wal\n*.db-shm\n.env\n"
	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(gitignore), 0o644); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Initialized ledger at %s (%d accounts, base %s)\n", dir, n, currency)
	return nil
}
