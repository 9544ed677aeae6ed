// Package memory is an in-process store.Store used by tests and dry runs.
//
// A unit of work runs against a private copy of the state under the write
// lock; the copy replaces the live state only when the callback succeeds.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/store"
)

var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*tx)(nil)
)

type state struct {
	accounts   map[int64]model.Account
	txns       map[int64]model.Transaction
	recurring  map[int64]model.RecurringTransaction
	runs       []model.RecurringRun
	currencies map[string]model.Currency
	rates      []model.ExchangeRate
	sequences  map[string]int

	accountSeq, txnSeq, entrySeq, recurringSeq, runSeq int64
}

func newState() *state {
	return &state{
		accounts:   make(map[int64]model.Account),
		txns:       make(map[int64]model.Transaction),
		recurring:  make(map[int64]model.RecurringTransaction),
		currencies: make(map[string]model.Currency),
		sequences:  make(map[string]int),
	}
}

func (st *state) clone() *state {
	c := *st
	c.accounts = make(map[int64]model.Account, len(st.accounts))
	for k, v := range st.accounts {
		c.accounts[k] = v
	}
	c.txns = make(map[int64]model.Transaction, len(st.txns))
	for k, v := range st.txns {
		c.txns[k] = copyTxn(v)
	}
	c.recurring = make(map[int64]model.RecurringTransaction, len(st.recurring))
	for k, v := range st.recurring {
		c.recurring[k] = v
	}
	c.runs = slices.Clone(st.runs)
	c.currencies = make(map[string]model.Currency, len(st.currencies))
	for k, v := range st.currencies {
		c.currencies[k] = v
	}
	c.rates = slices.Clone(st.rates)
	c.sequences = make(map[string]int, len(st.sequences))
	for k, v := range st.sequences {
		c.sequences[k] = v
	}
	return &c
}

func copyTxn(t model.Transaction) model.Transaction {
	t.Entries = slices.Clone(t.Entries)
	t.Tags = slices.Clone(t.Tags)
	return t
}

// Store is a mutex-guarded in-memory implementation of store.Store.
type Store struct {
	mu  sync.RWMutex
	st  *state
	now func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// WithTx runs fn against a copy of the state and commits it on success.
// Units of work are fully serialized. fn must not call WithTx again.
func (s *Store) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&tx{state: work, now: s.now}); err != nil {
		return err
	}
	s.st = work
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// read returns the committed state. Commits swap the pointer and never
// mutate a published state, so the snapshot stays consistent after unlock.
func (s *Store) read() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st
}

func (s *Store) GetAccount(ctx context.Context, id int64) (model.Account, error) {
	return s.read().GetAccount(ctx, id)
}

func (s *Store) GetAccountByCode(ctx context.Context, code string) (model.Account, error) {
	return s.read().GetAccountByCode(ctx, code)
}

func (s *Store) ListAccounts(ctx context.Context, f store.AccountFilter) ([]model.Account, error) {
	return s.read().ListAccounts(ctx, f)
}

func (s *Store) GetTransaction(ctx context.Context, id int64) (model.Transaction, error) {
	return s.read().GetTransaction(ctx, id)
}

func (s *Store) GetTransactionByReference(ctx context.Context, ref string) (model.Transaction, error) {
	return s.read().GetTransactionByReference(ctx, ref)
}

func (s *Store) ListTransactions(ctx context.Context, f store.TransactionFilter) ([]model.Transaction, error) {
	return s.read().ListTransactions(ctx, f)
}

func (s *Store) SumEntries(ctx context.Context, accountID int64, lock store.LockFilter) (decimal.Decimal, decimal.Decimal, error) {
	return s.read().SumEntries(ctx, accountID, lock)
}

func (s *Store) GetRecurring(ctx context.Context, id int64) (model.RecurringTransaction, error) {
	return s.read().GetRecurring(ctx, id)
}

func (s *Store) ListRecurring(ctx context.Context, f store.RecurringFilter) ([]model.RecurringTransaction, error) {
	return s.read().ListRecurring(ctx, f)
}

func (s *Store) ListRecurringRuns(ctx context.Context, templateID int64) ([]model.RecurringRun, error) {
	return s.read().ListRecurringRuns(ctx, templateID)
}

func (s *Store) GetCurrency(ctx context.Context, code string) (model.Currency, error) {
	return s.read().GetCurrency(ctx, code)
}

func (s *Store) ListCurrencies(ctx context.Context) ([]model.Currency, error) {
	return s.read().ListCurrencies(ctx)
}

func (s *Store) LatestRate(ctx context.Context, from, to string, asOf time.Time) (model.ExchangeRate, error) {
	return s.read().LatestRate(ctx, from, to, asOf)
}

// --- read side, shared by Store and tx ---

func (st *state) GetAccount(_ context.Context, id int64) (model.Account, error) {
	a, ok := st.accounts[id]
	if !ok {
		return model.Account{}, model.ErrNotFound
	}
	return a, nil
}

func (st *state) GetAccountByCode(_ context.Context, code string) (model.Account, error) {
	for _, a := range st.accounts {
		if a.Code == code {
			return a, nil
		}
	}
	return model.Account{}, model.ErrNotFound
}

func (st *state) ListAccounts(_ context.Context, f store.AccountFilter) ([]model.Account, error) {
	var result []model.Account
	for _, a := range st.accounts {
		if f.ActiveOnly && !a.IsActive {
			continue
		}
		if f.Type != "" && a.Type != f.Type {
			continue
		}
		if f.ParentID != nil && (a.ParentID == nil || *a.ParentID != *f.ParentID) {
			continue
		}
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

func (st *state) GetTransaction(_ context.Context, id int64) (model.Transaction, error) {
	t, ok := st.txns[id]
	if !ok {
		return model.Transaction{}, model.ErrNotFound
	}
	return copyTxn(t), nil
}

func (st *state) GetTransactionByReference(_ context.Context, ref string) (model.Transaction, error) {
	for _, t := range st.txns {
		if t.ReferenceNumber == ref {
			return copyTxn(t), nil
		}
	}
	return model.Transaction{}, model.ErrNotFound
}

func (st *state) ListTransactions(_ context.Context, f store.TransactionFilter) ([]model.Transaction, error) {
	var result []model.Transaction
	for _, t := range st.txns {
		if !f.From.IsZero() && t.Date.Before(store.Day(f.From)) {
			continue
		}
		if !f.To.IsZero() && t.Date.After(store.Day(f.To)) {
			continue
		}
		if !f.Lock.Match(t.IsLocked) {
			continue
		}
		if f.TemplateID != nil && (t.RecurringTemplateID == nil || *t.RecurringTemplateID != *f.TemplateID) {
			continue
		}
		if f.AccountID != nil && !slices.Contains(model.AccountIDs(t.Entries), *f.AccountID) {
			continue
		}
		result = append(result, copyTxn(t))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].ID < result[j].ID
	})
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

func (st *state) SumEntries(_ context.Context, accountID int64, lock store.LockFilter) (decimal.Decimal, decimal.Decimal, error) {
	debit, credit := decimal.Zero, decimal.Zero
	for _, t := range st.txns {
		if !lock.Match(t.IsLocked) {
			continue
		}
		for _, e := range t.Entries {
			if e.AccountID != accountID {
				continue
			}
			debit = debit.Add(e.DebitAmount)
			credit = credit.Add(e.CreditAmount)
		}
	}
	return debit, credit, nil
}

func (st *state) GetRecurring(_ context.Context, id int64) (model.RecurringTransaction, error) {
	r, ok := st.recurring[id]
	if !ok {
		return model.RecurringTransaction{}, model.ErrNotFound
	}
	return r, nil
}

func (st *state) ListRecurring(_ context.Context, f store.RecurringFilter) ([]model.RecurringTransaction, error) {
	var result []model.RecurringTransaction
	for _, r := range st.recurring {
		if f.ActiveOnly && !r.IsActive {
			continue
		}
		if !f.DueBy.IsZero() && r.NextRunDate.After(f.DueBy) {
			continue
		}
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].NextRunDate.Equal(result[j].NextRunDate) {
			return result[i].NextRunDate.Before(result[j].NextRunDate)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (st *state) ListRecurringRuns(_ context.Context, templateID int64) ([]model.RecurringRun, error) {
	var result []model.RecurringRun
	for _, run := range st.runs {
		if run.TemplateID == templateID {
			result = append(result, run)
		}
	}
	return result, nil
}

func (st *state) GetCurrency(_ context.Context, code string) (model.Currency, error) {
	c, ok := st.currencies[strings.ToUpper(code)]
	if !ok {
		return model.Currency{}, model.ErrNotFound
	}
	return c, nil
}

func (st *state) ListCurrencies(_ context.Context) ([]model.Currency, error) {
	result := make([]model.Currency, 0, len(st.currencies))
	for _, c := range st.currencies {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

func (st *state) LatestRate(_ context.Context, from, to string, asOf time.Time) (model.ExchangeRate, error) {
	var best model.ExchangeRate
	found := false
	day := store.Day(asOf)
	for _, r := range st.rates {
		if r.FromCurrency != from || r.ToCurrency != to || r.EffectiveDate.After(day) {
			continue
		}
		if !found || r.EffectiveDate.After(best.EffectiveDate) {
			best = r
			found = true
		}
	}
	if !found {
		return model.ExchangeRate{}, model.ErrNotFound
	}
	return best, nil
}
