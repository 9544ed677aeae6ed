// Package accounts is the account directory: classification, balance
// recomputation and chart-of-accounts tree queries over the store.
package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/observability"
	"github.com/cleared-dev/ledger/internal/store"
)

// Directory answers account questions and maintains derived balances.
type Directory struct {
	store     store.Store
	predicate store.LockFilter
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// NewDirectory returns a Directory. predicate selects which transactions
// count toward balances; an empty predicate means locked only.
func NewDirectory(st store.Store, predicate store.LockFilter, logger *zap.Logger, metrics *observability.Metrics) *Directory {
	if predicate == "" {
		predicate = store.LockLocked
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{store: st, predicate: predicate, logger: logger, metrics: metrics}
}

// Predicate returns the lock filter used for balances.
func (d *Directory) Predicate() store.LockFilter {
	return d.predicate
}

// Classify returns the normal side of a.
func Classify(a model.Account) (model.NormalSide, error) {
	return a.Type.NormalSide()
}

// Balance applies the normal-side formula to an opening balance and entry totals.
func Balance(side model.NormalSide, opening, debit, credit decimal.Decimal) decimal.Decimal {
	if side == model.DebitNormal {
		return opening.Add(debit).Sub(credit)
	}
	return opening.Add(credit).Sub(debit)
}

// RecomputeBalance derives the account's current balance from its entries
// and persists it within tx. Repeating it without intervening writes
// yields the same value.
func (d *Directory) RecomputeBalance(ctx context.Context, tx store.Tx, id int64) (decimal.Decimal, error) {
	acct, err := tx.LockAccount(ctx, id)
	if err != nil {
		return decimal.Zero, fmt.Errorf("locking account %d: %w", id, err)
	}
	side, err := Classify(acct)
	if err != nil {
		return decimal.Zero, err
	}

	debit, credit, err := tx.SumEntries(ctx, id, d.predicate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("summing entries for account %d: %w", id, err)
	}

	balance := Balance(side, acct.OpeningBalance, debit, credit)
	if err := tx.SetAccountBalance(ctx, id, balance); err != nil {
		return decimal.Zero, fmt.Errorf("saving balance for account %d: %w", id, err)
	}
	d.metrics.IncrBalanceRecompute()
	d.logger.Debug("recomputed balance",
		zap.String("account", acct.Code),
		zap.String("balance", balance.StringFixed(2)),
	)
	return balance, nil
}

// Recompute runs RecomputeBalance in its own unit of work.
func (d *Directory) Recompute(ctx context.Context, id int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := d.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		balance, err = d.RecomputeBalance(ctx, tx, id)
		return err
	})
	return balance, err
}

// RecomputeAll recomputes every account and returns how many were updated.
func (d *Directory) RecomputeAll(ctx context.Context) (int, error) {
	n := 0
	err := d.store.WithTx(ctx, func(tx store.Tx) error {
		accts, err := tx.ListAccounts(ctx, store.AccountFilter{})
		if err != nil {
			return err
		}
		for _, a := range accts {
			if _, err := d.RecomputeBalance(ctx, tx, a.ID); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

// Get returns an account by ID.
func (d *Directory) Get(ctx context.Context, id int64) (model.Account, error) {
	return d.store.GetAccount(ctx, id)
}

// GetByCode returns an account by its chart code.
func (d *Directory) GetByCode(ctx context.Context, code string) (model.Account, error) {
	return d.store.GetAccountByCode(ctx, code)
}

// FindActive returns all active accounts ordered by code.
func (d *Directory) FindActive(ctx context.Context) ([]model.Account, error) {
	return d.store.ListAccounts(ctx, store.AccountFilter{ActiveOnly: true})
}

// FindByType returns active accounts of type t.
func (d *Directory) FindByType(ctx context.Context, t model.AccountType) ([]model.Account, error) {
	if !t.Valid() {
		return nil, &model.InvalidAccountTypeError{Type: string(t)}
	}
	return d.store.ListAccounts(ctx, store.AccountFilter{ActiveOnly: true, Type: t})
}

// Ancestors returns the chain of parents of id, root first, excluding id.
func (d *Directory) Ancestors(ctx context.Context, id int64) ([]model.Account, error) {
	acct, err := d.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	seen := map[int64]bool{id: true}
	var chain []model.Account
	for acct.ParentID != nil {
		pid := *acct.ParentID
		if seen[pid] {
			return nil, fmt.Errorf("account %d: parent cycle at %d", id, pid)
		}
		seen[pid] = true

		acct, err = d.store.GetAccount(ctx, pid)
		if err != nil {
			return nil, fmt.Errorf("loading parent %d: %w", pid, err)
		}
		chain = append(chain, acct)
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// Descendants returns every account below id in breadth-first order.
func (d *Directory) Descendants(ctx context.Context, id int64) ([]model.Account, error) {
	if _, err := d.store.GetAccount(ctx, id); err != nil {
		return nil, err
	}

	seen := map[int64]bool{id: true}
	queue := []int64{id}
	var out []model.Account
	for len(queue) > 0 {
		pid := queue[0]
		queue = queue[1:]

		children, err := d.store.ListAccounts(ctx, store.AccountFilter{ParentID: &pid})
		if err != nil {
			return nil, fmt.Errorf("listing children of %d: %w", pid, err)
		}
		for _, c := range children {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			out = append(out, c)
			queue = append(queue, c.ID)
		}
	}
	return out, nil
}

// CreateAccount validates and inserts a. The current balance starts at
// the opening balance.
func (d *Directory) CreateAccount(ctx context.Context, a *model.Account) error {
	if err := validateAccount(*a); err != nil {
		return err
	}
	a.CurrentBalance = a.OpeningBalance
	if err := d.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.CreateAccount(ctx, a)
	}); err != nil {
		return err
	}
	d.logger.Info("created account", zap.String("code", a.Code), zap.Int64("id", a.ID))
	return nil
}

func validateAccount(a model.Account) error {
	var errs []error
	if a.Code == "" {
		errs = append(errs, errors.New("account code is required"))
	}
	if a.Name == "" {
		errs = append(errs, errors.New("account name is required"))
	}
	if !a.Type.Valid() {
		errs = append(errs, &model.InvalidAccountTypeError{Type: string(a.Type)})
	}
	return errors.Join(errs...)
}

// Seed inserts chart entries whose codes are not already present and
// returns how many were created. Parents must precede their children.
func (d *Directory) Seed(ctx context.Context, chart []ChartEntry) (int, error) {
	created := 0
	err := d.store.WithTx(ctx, func(tx store.Tx) error {
		for _, e := range chart {
			if _, err := tx.GetAccountByCode(ctx, e.Code); err == nil {
				continue
			} else if !errors.Is(err, model.ErrNotFound) {
				return err
			}

			a := e.Account
			if err := validateAccount(a); err != nil {
				return fmt.Errorf("account %s: %w", e.Code, err)
			}
			if e.ParentCode != "" {
				parent, err := tx.GetAccountByCode(ctx, e.ParentCode)
				if err != nil {
					return fmt.Errorf("account %s: parent %s: %w", e.Code, e.ParentCode, err)
				}
				a.ParentID = &parent.ID
			}
			a.CurrentBalance = a.OpeningBalance
			if err := tx.CreateAccount(ctx, &a); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	d.logger.Info("seeded chart of accounts", zap.Int("created", created))
	return created, nil
}

// Chart returns every account as chart entries, parents named by code.
func (d *Directory) Chart(ctx context.Context) ([]ChartEntry, error) {
	accts, err := d.store.ListAccounts(ctx, store.AccountFilter{})
	if err != nil {
		return nil, err
	}
	codes := make(map[int64]string, len(accts))
	for _, a := range accts {
		codes[a.ID] = a.Code
	}
	entries := make([]ChartEntry, 0, len(accts))
	for _, a := range accts {
		e := ChartEntry{Account: a}
		if a.ParentID != nil {
			e.ParentCode = codes[*a.ParentID]
		}
		entries = append(entries, e)
	}
	return entries, nil
}
