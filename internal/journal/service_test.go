package journal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/ledger/internal/accounts"
	"github.com/cleared-dev/ledger/internal/audit"
	"github.com/cleared-dev/ledger/internal/fx"
	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/store"
	"github.com/cleared-dev/ledger/internal/store/memory"
)

const alice model.Actor = 7

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	store   *memory.Store
	dir     *accounts.Directory
	rates   *fx.Resolver
	engine  *Engine
	sink    *audit.MemorySink
	cash    model.Account
	revenue model.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, store.LockLocked)
}

func newFixtureWith(t *testing.T, predicate store.LockFilter) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	dir := accounts.NewDirectory(st, predicate, nil, nil)
	rates := fx.NewResolver(st, nil, nil)
	sink := &audit.MemorySink{}

	cash := &model.Account{Code: "1010", Name: "Cash", Type: model.AccountTypeAsset, Currency: "USD", OpeningBalance: dec("1000"), IsActive: true}
	revenue := &model.Account{Code: "4010", Name: "Revenue", Type: model.AccountTypeRevenue, Currency: "USD", IsActive: true}
	require.NoError(t, dir.CreateAccount(ctx, cash))
	require.NoError(t, dir.CreateAccount(ctx, revenue))

	return &fixture{
		store:   st,
		dir:     dir,
		rates:   rates,
		engine:  NewEngine(st, dir, rates, Options{BaseCurrency: "USD", Audit: audit.NewRecorder(sink, nil)}),
		sink:    sink,
		cash:    *cash,
		revenue: *revenue,
	}
}

func (f *fixture) sale(amount string) CreateRequest {
	return CreateRequest{
		Date:        time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		Description: "Cash sale",
		Entries: []model.Entry{
			{AccountID: f.cash.ID, DebitAmount: dec(amount)},
			{AccountID: f.revenue.ID, CreditAmount: dec(amount)},
		},
	}
}

func (f *fixture) balance(t *testing.T, id int64) string {
	t.Helper()
	a, err := f.dir.Get(context.Background(), id)
	require.NoError(t, err)
	return a.CurrentBalance.StringFixed(2)
}

func TestCreateTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	txn, err := f.engine.CreateTransaction(ctx, f.sale("500"), alice)
	require.NoError(t, err)

	assert.Equal(t, "TXN-20250115-0001", txn.ReferenceNumber)
	assert.Equal(t, model.TransactionTypeJournal, txn.Type)
	assert.Equal(t, "500.00", txn.TotalAmount.StringFixed(2))
	assert.Equal(t, "USD", txn.Currency)
	assert.True(t, txn.ExchangeRate.Equal(decimal.NewFromInt(1)))
	assert.False(t, txn.IsLocked)
	assert.Equal(t, alice, txn.CreatedBy)
	assert.Equal(t, model.SourceManual, txn.Source.Kind)

	got, err := f.engine.Get(ctx, txn.ID)
	require.NoError(t, err)
	require.Len(t, got.Entries, 2)
	assert.Equal(t, txn.ID, got.Entries[0].TransactionID)

	byRef, err := f.engine.GetByReference(ctx, txn.ReferenceNumber)
	require.NoError(t, err)
	assert.Equal(t, txn.ID, byRef.ID)

	assert.Equal(t, "1000.00", f.balance(t, f.cash.ID), "creation does not touch balances")

	events := f.sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionCreated, events[0].Action)
	assert.Equal(t, alice, events[0].Actor)
}

func TestCreateTransaction_SequentialReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var refs []string
	for i := 0; i < 3; i++ {
		txn, err := f.engine.CreateTransaction(ctx, f.sale("10"), alice)
		require.NoError(t, err)
		refs = append(refs, txn.ReferenceNumber)
	}
	req := f.sale("10")
	req.Date = time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC)
	next, err := f.engine.CreateTransaction(ctx, req, alice)
	require.NoError(t, err)

	assert.Equal(t, []string{"TXN-20250115-0001", "TXN-20250115-0002", "TXN-20250115-0003"}, refs)
	assert.Equal(t, "TXN-20250116-0001", next.ReferenceNumber)
}

func TestCreateTransaction_ConcurrentReferencesUnique(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	refs := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			txn, err := f.engine.CreateTransaction(ctx, f.sale("1"), alice)
			refs[i], errs[i] = txn.ReferenceNumber, err
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i := range refs {
		require.NoError(t, errs[i])
		assert.False(t, seen[refs[i]], "duplicate %s", refs[i])
		seen[refs[i]] = true
	}
}

func TestCreateTransaction_Unbalanced(t *testing.T) {
	f := newFixture(t)
	req := f.sale("1000")
	req.Entries[1].CreditAmount = dec("800")

	_, err := f.engine.CreateTransaction(context.Background(), req, alice)
	var unbalanced *model.UnbalancedTransactionError
	require.ErrorAs(t, err, &unbalanced)
	assert.Equal(t, "200.00", unbalanced.Variance().StringFixed(2))

	txns, err := f.engine.List(context.Background(), store.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, txns, "nothing persisted")
}

func TestCreateTransaction_NoEntries(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.CreateTransaction(context.Background(), CreateRequest{Description: "empty"}, alice)
	require.ErrorIs(t, err, model.ErrNoEntries)
}

func TestCreateTransaction_InactiveAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	closed := &model.Account{Code: "1090", Name: "Closed", Type: model.AccountTypeAsset, IsActive: false}
	require.NoError(t, f.dir.CreateAccount(ctx, closed))

	req := f.sale("50")
	req.Entries[0].AccountID = closed.ID
	_, err := f.engine.CreateTransaction(ctx, req, alice)
	var notFound *model.AccountNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.True(t, notFound.Inactive)
}

func TestCreateTransaction_ForeignCurrency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.rates.SetRate(ctx, "EUR", "USD", dec("1.10"), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))

	req := f.sale("100")
	req.Currency = "EUR"
	txn, err := f.engine.CreateTransaction(ctx, req, alice)
	require.NoError(t, err)
	assert.Equal(t, "1.10", txn.ExchangeRate.StringFixed(2))
}

func TestLock_RecomputesBalances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	txn, err := f.engine.CreateTransaction(ctx, f.sale("500"), alice)
	require.NoError(t, err)

	changed, err := f.engine.Lock(ctx, txn.ID, alice)
	require.NoError(t, err)
	assert.True(t, changed)

	assert.Equal(t, "1500.00", f.balance(t, f.cash.ID))
	assert.Equal(t, "500.00", f.balance(t, f.revenue.ID))

	got, err := f.engine.Get(ctx, txn.ID)
	require.NoError(t, err)
	assert.True(t, got.IsLocked)
	require.NotNil(t, got.ApprovedBy)
	assert.Equal(t, alice, *got.ApprovedBy)
}

func TestLock_AlreadyLockedIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	txn, err := f.engine.CreateTransaction(ctx, f.sale("500"), alice)
	require.NoError(t, err)
	_, err = f.engine.Lock(ctx, txn.ID, alice)
	require.NoError(t, err)
	before, err := f.engine.Get(ctx, txn.ID)
	require.NoError(t, err)

	changed, err := f.engine.Lock(ctx, txn.ID, 99)
	require.NoError(t, err)
	assert.False(t, changed)

	after, err := f.engine.Get(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, "1500.00", f.balance(t, f.cash.ID))
}

func TestLock_Unbalanced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	txn, err := f.engine.CreateTransaction(ctx, f.sale("100"), alice)
	require.NoError(t, err)

	// Corrupt the stored entries behind the engine's back.
	require.NoError(t, f.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.ReplaceEntries(ctx, txn.ID, []model.Entry{
			{AccountID: f.cash.ID, DebitAmount: dec("1000")},
			{AccountID: f.revenue.ID, CreditAmount: dec("800")},
		})
	}))

	changed, err := f.engine.Lock(ctx, txn.ID, alice)
	assert.False(t, changed)
	var unbalanced *model.UnbalancedTransactionError
	require.ErrorAs(t, err, &unbalanced)
	assert.Equal(t, "200.00", unbalanced.Variance().StringFixed(2))

	got, err := f.engine.Get(ctx, txn.ID)
	require.NoError(t, err)
	assert.False(t, got.IsLocked)
	assert.Equal(t, "1000.00", f.balance(t, f.cash.ID))
}

func TestUnlock_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	txn, err := f.engine.CreateTransaction(ctx, f.sale("250"), alice)
	require.NoError(t, err)

	changed, err := f.engine.Unlock(ctx, txn.ID, alice)
	require.NoError(t, err)
	assert.False(t, changed, "unlocking an unlocked transaction is a no-op")

	_, err = f.engine.Lock(ctx, txn.ID, alice)
	require.NoError(t, err)
	once := f.balance(t, f.cash.ID)

	changed, err = f.engine.Unlock(ctx, txn.ID, alice)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "1000.00", f.balance(t, f.cash.ID))
	got, err := f.engine.Get(ctx, txn.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ApprovedBy)

	_, err = f.engine.Lock(ctx, txn.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, once, f.balance(t, f.cash.ID))

	var actions []audit.Action
	for _, e := range f.sink.Events() {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []audit.Action{audit.ActionCreated, audit.ActionLocked, audit.ActionUnlocked, audit.ActionLocked}, actions)
}

func TestLock_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Lock(context.Background(), 404, alice)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestMutationGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	txn, err := f.engine.CreateTransaction(ctx, f.sale("75"), alice)
	require.NoError(t, err)
	_, err = f.engine.Lock(ctx, txn.ID, alice)
	require.NoError(t, err)

	desc := "changed"
	tests := []struct {
		name string
		fn   func() error
	}{
		{"update", func() error {
			_, err := f.engine.UpdateTransaction(ctx, txn.ID, UpdateRequest{Description: &desc}, alice)
			return err
		}},
		{"replace entries", func() error {
			_, err := f.engine.ReplaceEntries(ctx, txn.ID, f.sale("80").Entries, alice)
			return err
		}},
		{"delete", func() error {
			return f.engine.DeleteTransaction(ctx, txn.ID, alice)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			var locked *model.LockedTransactionError
			require.ErrorAs(t, err, &locked)
			assert.Equal(t, txn.ReferenceNumber, locked.Reference)
		})
	}

	got, err := f.engine.Get(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cash sale", got.Description)
	assert.Equal(t, "75.00", got.TotalAmount.StringFixed(2))
}

func TestUnlockedMutations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	txn, err := f.engine.CreateTransaction(ctx, f.sale("75"), alice)
	require.NoError(t, err)

	desc, cc := "Corrected sale", "retail"
	updated, err := f.engine.UpdateTransaction(ctx, txn.ID, UpdateRequest{Description: &desc, CostCenter: &cc, Tags: []string{"q1"}}, alice)
	require.NoError(t, err)
	assert.Equal(t, "Corrected sale", updated.Description)
	assert.Equal(t, []string{"q1"}, updated.Tags)

	replaced, err := f.engine.ReplaceEntries(ctx, txn.ID, f.sale("90").Entries, alice)
	require.NoError(t, err)
	assert.Equal(t, "90.00", replaced.TotalAmount.StringFixed(2))

	got, err := f.engine.Get(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, "retail", got.CostCenter)
	assert.Equal(t, "90.00", got.TotalAmount.StringFixed(2))
	require.Len(t, got.Entries, 2)
	assert.Equal(t, "90.00", got.Entries[0].DebitAmount.StringFixed(2))

	bad := f.sale("90").Entries
	bad[1].CreditAmount = dec("10")
	_, err = f.engine.ReplaceEntries(ctx, txn.ID, bad, alice)
	var unbalanced *model.UnbalancedTransactionError
	require.ErrorAs(t, err, &unbalanced)

	require.NoError(t, f.engine.DeleteTransaction(ctx, txn.ID, alice))
	_, err = f.engine.Get(ctx, txn.ID)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestList_LockFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		txn, err := f.engine.CreateTransaction(ctx, f.sale(fmt.Sprint(10*(i+1))), alice)
		require.NoError(t, err)
		if i == 0 {
			_, err = f.engine.Lock(ctx, txn.ID, alice)
			require.NoError(t, err)
		}
	}

	locked, err := f.engine.List(ctx, store.TransactionFilter{Lock: store.LockLocked})
	require.NoError(t, err)
	assert.Len(t, locked, 1)

	open, err := f.engine.List(ctx, store.TransactionFilter{Lock: store.LockUnlocked})
	require.NoError(t, err)
	assert.Len(t, open, 2)

	_, err = f.engine.List(ctx, store.TransactionFilter{Lock: "sometimes"})
	assert.Error(t, err)
}

// flakyStore hands out a reference that is already taken on the first try.
type flakyStore struct {
	*memory.Store
}

type flakyTx struct {
	store.Tx
	calls *int
}

func (s flakyStore) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	calls := 0
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		return fn(flakyTx{Tx: tx, calls: &calls})
	})
}

func (t flakyTx) NextReferenceSeq(ctx context.Context, day time.Time) (int, error) {
	*t.calls++
	if *t.calls == 1 {
		return 1, nil
	}
	return t.Tx.NextReferenceSeq(ctx, day)
}

func TestCreateTransaction_RetriesDuplicateReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.CreateTransaction(ctx, f.sale("10"), alice)
	require.NoError(t, err)

	engine := NewEngine(flakyStore{f.store}, f.dir, f.rates, Options{})
	txn, err := engine.CreateTransaction(ctx, f.sale("20"), alice)
	require.NoError(t, err)
	assert.Equal(t, "TXN-20250115-0002", txn.ReferenceNumber)
}

func TestIsBalancedVariance(t *testing.T) {
	tests := []struct {
		name     string
		entries  []model.Entry
		balanced bool
		variance string
	}{
		{"empty", nil, false, "0.00"},
		{"balanced", []model.Entry{{DebitAmount: dec("100")}, {CreditAmount: dec("100")}}, true, "0.00"},
		{"unbalanced", []model.Entry{{DebitAmount: dec("1000")}, {CreditAmount: dec("800")}}, false, "200.00"},
		{"split credits", []model.Entry{{DebitAmount: dec("100")}, {CreditAmount: dec("60.50")}, {CreditAmount: dec("39.50")}}, true, "0.00"},
		{"sub-cent rounding", []model.Entry{{DebitAmount: dec("10.001")}, {CreditAmount: dec("10.00")}}, true, "0.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := model.Transaction{Entries: tt.entries}
			assert.Equal(t, tt.balanced, IsBalanced(txn))
			assert.Equal(t, tt.variance, Variance(txn).StringFixed(2))
		})
	}
}

func TestValidateEntries_CollectsAll(t *testing.T) {
	f := newFixture(t)
	err := ValidateEntries(context.Background(), []model.Entry{
		{AccountID: f.cash.ID, DebitAmount: dec("10"), CreditAmount: dec("10")},
		{AccountID: 999, CreditAmount: dec("-5")},
		{AccountID: f.revenue.ID, CreditAmount: dec("1.005")},
	}, f.store)
	require.Error(t, err)

	var notFound *model.AccountNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, int64(999), notFound.ID)

	msg := err.Error()
	assert.Contains(t, msg, "line 1: entry must have exactly one of debit or credit")
	assert.Contains(t, msg, "line 2: amounts must not be negative")
	assert.Contains(t, msg, "line 3: amount 1.005 has more than 2 decimal places")
	assert.Contains(t, msg, "unbalanced transaction")
}

func TestUnlockedPredicate_KeepsBalancesCurrent(t *testing.T) {
	for _, predicate := range []store.LockFilter{store.LockUnlocked, store.LockAny} {
		t.Run(string(predicate), func(t *testing.T) {
			f := newFixtureWith(t, predicate)
			ctx := context.Background()

			txn, err := f.engine.CreateTransaction(ctx, f.sale("500"), alice)
			require.NoError(t, err)
			assert.Equal(t, "1500.00", f.balance(t, f.cash.ID))
			assert.Equal(t, "500.00", f.balance(t, f.revenue.ID))

			bank := &model.Account{Code: "1020", Name: "Bank", Type: model.AccountTypeAsset, Currency: "USD", IsActive: true}
			require.NoError(t, f.dir.CreateAccount(ctx, bank))
			_, err = f.engine.ReplaceEntries(ctx, txn.ID, []model.Entry{
				{AccountID: bank.ID, DebitAmount: dec("300")},
				{AccountID: f.revenue.ID, CreditAmount: dec("300")},
			}, alice)
			require.NoError(t, err)
			assert.Equal(t, "1000.00", f.balance(t, f.cash.ID), "old account dropped from the entry set")
			assert.Equal(t, "300.00", f.balance(t, bank.ID))
			assert.Equal(t, "300.00", f.balance(t, f.revenue.ID))

			require.NoError(t, f.engine.DeleteTransaction(ctx, txn.ID, alice))
			assert.Equal(t, "0.00", f.balance(t, bank.ID))
			assert.Equal(t, "0.00", f.balance(t, f.revenue.ID))

			for _, id := range []int64{f.cash.ID, bank.ID, f.revenue.ID} {
				cached := f.balance(t, id)
				fresh, err := f.dir.Recompute(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, fresh.StringFixed(2), cached)
			}
		})
	}
}
