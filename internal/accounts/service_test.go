package accounts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/observability"
	"github.com/cleared-dev/ledger/internal/store"
	"github.com/cleared-dev/ledger/internal/store/memory"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newDirectory(t *testing.T) (*Directory, *memory.Store) {
	t.Helper()
	st := memory.New()
	d := NewDirectory(st, "", nil, observability.NewMetrics())
	_, err := d.Seed(context.Background(), DefaultChart("small_business", "USD"))
	require.NoError(t, err)
	return d, st
}

func mustCode(t *testing.T, d *Directory, code string) model.Account {
	t.Helper()
	a, err := d.GetByCode(context.Background(), code)
	require.NoError(t, err)
	return a
}

// post inserts a transaction directly, bypassing the engine.
func post(t *testing.T, st store.Store, locked bool, ref string, entries ...model.Entry) {
	t.Helper()
	err := st.WithTx(context.Background(), func(tx store.Tx) error {
		txn := &model.Transaction{
			ReferenceNumber: ref,
			Date:            time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
			Type:            model.TransactionTypeJournal,
			Currency:        "USD",
			ExchangeRate:    decimal.NewFromInt(1),
			IsLocked:        locked,
			Entries:         entries,
		}
		return tx.InsertTransaction(context.Background(), txn)
	})
	require.NoError(t, err)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		typ  model.AccountType
		want model.NormalSide
	}{
		{model.AccountTypeAsset, model.DebitNormal},
		{model.AccountTypeExpense, model.DebitNormal},
		{model.AccountTypeLiability, model.CreditNormal},
		{model.AccountTypeEquity, model.CreditNormal},
		{model.AccountTypeRevenue, model.CreditNormal},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			got, err := Classify(model.Account{Type: tt.typ})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Classify(model.Account{Type: "income"})
	var typeErr *model.InvalidAccountTypeError
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, "income", typeErr.Type)
}

func TestSeed_Idempotent(t *testing.T) {
	d, _ := newDirectory(t)
	ctx := context.Background()

	n, err := d.Seed(ctx, DefaultChart("small_business", "USD"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	all, err := d.FindActive(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(DefaultChart("small_business", "USD")))
}

func TestSeed_MissingParent(t *testing.T) {
	d := NewDirectory(memory.New(), "", nil, nil)
	_, err := d.Seed(context.Background(), []ChartEntry{
		{Account: model.Account{Code: "1010", Name: "Cash", Type: model.AccountTypeAsset}, ParentCode: "1000"},
	})
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestRecomputeBalance_NoEntries(t *testing.T) {
	d := NewDirectory(memory.New(), "", nil, nil)
	ctx := context.Background()
	cash := &model.Account{Code: "1010", Name: "Cash", Type: model.AccountTypeAsset, OpeningBalance: dec("1000"), IsActive: true}
	require.NoError(t, d.CreateAccount(ctx, cash))

	bal, err := d.Recompute(ctx, cash.ID)
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("1000")))
}

func TestRecomputeBalance_NormalSides(t *testing.T) {
	d, st := newDirectory(t)
	ctx := context.Background()
	cash := mustCode(t, d, "1010")
	revenue := mustCode(t, d, "4010")

	post(t, st, true, "TXN-20250115-0001",
		model.Entry{AccountID: cash.ID, DebitAmount: dec("500")},
		model.Entry{AccountID: revenue.ID, CreditAmount: dec("500")},
	)
	post(t, st, true, "TXN-20250115-0002",
		model.Entry{AccountID: cash.ID, CreditAmount: dec("120")},
		model.Entry{AccountID: revenue.ID, DebitAmount: dec("120")},
	)

	bal, err := d.Recompute(ctx, cash.ID)
	require.NoError(t, err)
	assert.Equal(t, "380.00", bal.StringFixed(2))

	bal, err = d.Recompute(ctx, revenue.ID)
	require.NoError(t, err)
	assert.Equal(t, "380.00", bal.StringFixed(2))

	got, err := d.Get(ctx, revenue.ID)
	require.NoError(t, err)
	assert.Equal(t, "380.00", got.CurrentBalance.StringFixed(2))
}

func TestRecomputeBalance_Predicate(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	locked := NewDirectory(st, store.LockLocked, nil, nil)
	unlocked := NewDirectory(st, store.LockUnlocked, nil, nil)
	all := NewDirectory(st, store.LockAny, nil, nil)
	_, err := locked.Seed(ctx, DefaultChart("", "USD"))
	require.NoError(t, err)

	cash := mustCode(t, locked, "1010")
	revenue := mustCode(t, locked, "4010")
	post(t, st, true, "TXN-20250115-0001",
		model.Entry{AccountID: cash.ID, DebitAmount: dec("100")},
		model.Entry{AccountID: revenue.ID, CreditAmount: dec("100")},
	)
	post(t, st, false, "TXN-20250115-0002",
		model.Entry{AccountID: cash.ID, DebitAmount: dec("40")},
		model.Entry{AccountID: revenue.ID, CreditAmount: dec("40")},
	)

	tests := []struct {
		name string
		dir  *Directory
		want string
	}{
		{"locked", locked, "100.00"},
		{"unlocked", unlocked, "40.00"},
		{"all", all, "140.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bal, err := tt.dir.Recompute(ctx, cash.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, bal.StringFixed(2))
		})
	}
}

func TestRecomputeBalance_Idempotent(t *testing.T) {
	d, st := newDirectory(t)
	ctx := context.Background()
	cash := mustCode(t, d, "1010")
	revenue := mustCode(t, d, "4010")
	post(t, st, true, "TXN-20250115-0001",
		model.Entry{AccountID: cash.ID, DebitAmount: dec("75.25")},
		model.Entry{AccountID: revenue.ID, CreditAmount: dec("75.25")},
	)

	first, err := d.Recompute(ctx, cash.ID)
	require.NoError(t, err)
	second, err := d.Recompute(ctx, cash.ID)
	require.NoError(t, err)
	assert.True(t, first.Equal(second))
}

func TestRecomputeAll(t *testing.T) {
	d, _ := newDirectory(t)
	n, err := d.RecomputeAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(DefaultChart("", "USD")), n)
}

func TestAncestorsDescendants(t *testing.T) {
	d, _ := newDirectory(t)
	ctx := context.Background()

	sub := &model.Account{Code: "1011", Name: "Petty Cash", Type: model.AccountTypeAsset, IsActive: true}
	cash := mustCode(t, d, "1010")
	sub.ParentID = &cash.ID
	require.NoError(t, d.CreateAccount(ctx, sub))

	anc, err := d.Ancestors(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, anc, 2)
	assert.Equal(t, "1000", anc[0].Code, "root first")
	assert.Equal(t, "1010", anc[1].Code)

	root := mustCode(t, d, "1000")
	anc, err = d.Ancestors(ctx, root.ID)
	require.NoError(t, err)
	assert.Empty(t, anc)

	desc, err := d.Descendants(ctx, root.ID)
	require.NoError(t, err)
	codes := make([]string, 0, len(desc))
	for _, a := range desc {
		codes = append(codes, a.Code)
	}
	assert.Equal(t, []string{"1010", "1020", "1100", "1011"}, codes, "breadth first")
}

func TestAncestors_Cycle(t *testing.T) {
	d, st := newDirectory(t)
	ctx := context.Background()
	root := mustCode(t, d, "1000")
	cash := mustCode(t, d, "1010")

	root.ParentID = &cash.ID
	require.NoError(t, st.WithTx(ctx, func(tx store.Tx) error {
		return tx.UpdateAccount(ctx, root)
	}))

	_, err := d.Ancestors(ctx, cash.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestFindByType(t *testing.T) {
	d, _ := newDirectory(t)
	ctx := context.Background()

	expenses, err := d.FindByType(ctx, model.AccountTypeExpense)
	require.NoError(t, err)
	assert.Len(t, expenses, 5)
	for _, a := range expenses {
		assert.Equal(t, model.AccountTypeExpense, a.Type)
	}

	_, err = d.FindByType(ctx, "bogus")
	var typeErr *model.InvalidAccountTypeError
	assert.True(t, errors.As(err, &typeErr))
}

func TestCreateAccount_Validation(t *testing.T) {
	d := NewDirectory(memory.New(), "", nil, nil)
	err := d.CreateAccount(context.Background(), &model.Account{Type: "bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code is required")
	assert.Contains(t, err.Error(), "name is required")
	var typeErr *model.InvalidAccountTypeError
	assert.ErrorAs(t, err, &typeErr)
}

func TestChart_ExportsParentCodes(t *testing.T) {
	d, _ := newDirectory(t)
	chart, err := d.Chart(context.Background())
	require.NoError(t, err)

	byCode := make(map[string]ChartEntry)
	for _, e := range chart {
		byCode[e.Code] = e
	}
	assert.Equal(t, "", byCode["1000"].ParentCode)
	assert.Equal(t, "1000", byCode["1010"].ParentCode)
	assert.Equal(t, "5000", byCode["5020"].ParentCode)
}
