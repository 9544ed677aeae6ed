package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cleared-dev/ledger/internal/accounts"
	"github.com/cleared-dev/ledger/internal/audit"
	"github.com/cleared-dev/ledger/internal/config"
	"github.com/cleared-dev/ledger/internal/fx"
	"github.com/cleared-dev/ledger/internal/journal"
	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/observability"
	"github.com/cleared-dev/ledger/internal/recurring"
	"github.com/cleared-dev/ledger/internal/store/sqlite"
)

// app is the wired ledger core for one project directory.
type app struct {
	cfg       *config.Config
	store     *sqlite.Store
	logger    *zap.Logger
	metrics   *observability.Metrics
	accounts  *accounts.Directory
	rates     *fx.Resolver
	engine    *journal.Engine
	recurring *recurring.Generator
}

// openApp loads dir/ledger.yaml, applies env overrides and opens the database.
func openApp(dir string) (*app, error) {
	cfg, err := config.Load(filepath.Join(dir, config.FileName))
	if err != nil {
		return nil, fmt.Errorf("not a ledger project (run `ledger init`): %w", err)
	}

	envPath := filepath.Join(dir, ".env")
	if _, err := os.Stat(envPath); err != nil {
		envPath = ""
	}
	if err := cfg.ApplyEnv(envPath); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return wire(dir, cfg)
}

func wire(dir string, cfg *config.Config) (*app, error) {
	logger, err := observability.NewLogger(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	metrics := observability.NewMetrics()

	st, err := sqlite.Open(resolve(dir, cfg.Storage.Database))
	if err != nil {
		return nil, err
	}

	recorder := audit.NewRecorder(audit.NewCSVSink(resolve(dir, cfg.Storage.AuditDir)), logger)
	dirSvc := accounts.NewDirectory(st, cfg.Ledger.BalancePredicate, logger, metrics)
	rates := fx.NewResolver(st, logger, metrics)
	engine := journal.NewEngine(st, dirSvc, rates, journal.Options{
		BaseCurrency: cfg.Ledger.BaseCurrency,
		Audit:        recorder,
		Logger:       logger,
		Metrics:      metrics,
	})

	return &app{
		cfg:       cfg,
		store:     st,
		logger:    logger,
		metrics:   metrics,
		accounts:  dirSvc,
		rates:     rates,
		engine:    engine,
		recurring: recurring.NewGenerator(st, engine, cfg.Recurring.Concurrency, recorder, logger, metrics),
	}, nil
}

func (a *app) Close() error {
	_ = a.logger.Sync()
	return a.store.Close()
}

func resolve(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// parseDate parses YYYY-MM-DD; empty means today.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}

// line is one CODE=AMOUNT flag value.
type line struct {
	code   string
	amount decimal.Decimal
}

func parseLines(values []string) ([]line, error) {
	lines := make([]line, 0, len(values))
	for _, v := range values {
		code, amt, ok := strings.Cut(v, "=")
		if !ok || code == "" {
			return nil, fmt.Errorf("invalid line %q (want CODE=AMOUNT)", v)
		}
		d, err := decimal.NewFromString(amt)
		if err != nil {
			return nil, fmt.Errorf("invalid amount in %q: %w", v, err)
		}
		lines = append(lines, line{code: code, amount: d})
	}
	return lines, nil
}

// entries resolves --debit and --credit flag values to entries.
func (a *app) entries(ctx context.Context, debits, credits []string) ([]model.Entry, error) {
	dl, err := parseLines(debits)
	if err != nil {
		return nil, err
	}
	cl, err := parseLines(credits)
	if err != nil {
		return nil, err
	}
	if len(dl) == 0 && len(cl) == 0 {
		return nil, errors.New("at least one --debit or --credit is required")
	}

	entries := make([]model.Entry, 0, len(dl)+len(cl))
	for i, l := range append(dl, cl...) {
		acct, err := a.accounts.GetByCode(ctx, l.code)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", l.code, err)
		}
		e := model.Entry{AccountID: acct.ID}
		if i < len(dl) {
			e.DebitAmount = l.amount
		} else {
			e.CreditAmount = l.amount
		}
		entries = append(entries, e)
	}
	return entries, nil
}
