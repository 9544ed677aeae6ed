// Package store defines the repository interface shared by the ledger services.
//
// Every multi-row write runs inside WithTx. Implementations must make the
// callback atomic and must serialize units of work that touch the same
// account rows, so balance recomputation never loses a concurrent update.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledger/internal/model"
)

// LockFilter selects transactions by lock state.
type LockFilter string

const (
	LockAny      LockFilter = "all"
	LockLocked   LockFilter = "locked"
	LockUnlocked LockFilter = "unlocked"
)

// Valid reports whether f is a known filter value.
func (f LockFilter) Valid() bool {
	switch f {
	case LockAny, LockLocked, LockUnlocked:
		return true
	}
	return false
}

// Match reports whether a transaction with the given lock state passes f.
func (f LockFilter) Match(locked bool) bool {
	switch f {
	case LockLocked:
		return locked
	case LockUnlocked:
		return !locked
	default:
		return true
	}
}

// AccountFilter narrows ListAccounts. Zero values mean "any".
type AccountFilter struct {
	ActiveOnly bool
	Type       model.AccountType
	ParentID   *int64
}

// TransactionFilter narrows ListTransactions. Zero values mean "any".
type TransactionFilter struct {
	From       time.Time
	To         time.Time
	Lock       LockFilter
	TemplateID *int64
	AccountID  *int64
	Limit      int
}

// RecurringFilter narrows ListRecurring. A zero DueBy disables the date check.
type RecurringFilter struct {
	ActiveOnly bool
	DueBy      time.Time
}

// Reader is the read side available both inside and outside a unit of work.
type Reader interface {
	GetAccount(ctx context.Context, id int64) (model.Account, error)
	GetAccountByCode(ctx context.Context, code string) (model.Account, error)
	ListAccounts(ctx context.Context, f AccountFilter) ([]model.Account, error)

	GetTransaction(ctx context.Context, id int64) (model.Transaction, error)
	GetTransactionByReference(ctx context.Context, ref string) (model.Transaction, error)
	ListTransactions(ctx context.Context, f TransactionFilter) ([]model.Transaction, error)
	// SumEntries totals the entries posted to accountID whose parent
	// transaction passes lock.
	SumEntries(ctx context.Context, accountID int64, lock LockFilter) (debit, credit decimal.Decimal, err error)

	GetRecurring(ctx context.Context, id int64) (model.RecurringTransaction, error)
	ListRecurring(ctx context.Context, f RecurringFilter) ([]model.RecurringTransaction, error)
	ListRecurringRuns(ctx context.Context, templateID int64) ([]model.RecurringRun, error)

	GetCurrency(ctx context.Context, code string) (model.Currency, error)
	ListCurrencies(ctx context.Context) ([]model.Currency, error)
	// LatestRate returns the from/to rate with the greatest effective date
	// not after asOf, or model.ErrNotFound.
	LatestRate(ctx context.Context, from, to string, asOf time.Time) (model.ExchangeRate, error)
}

// Tx is a unit of work.
type Tx interface {
	Reader

	// LockAccount reads an account and holds it against concurrent writers
	// until the unit of work ends.
	LockAccount(ctx context.Context, id int64) (model.Account, error)
	CreateAccount(ctx context.Context, a *model.Account) error
	UpdateAccount(ctx context.Context, a model.Account) error
	SetAccountBalance(ctx context.Context, id int64, balance decimal.Decimal) error

	// NextReferenceSeq increments and returns the per-day counter. A day
	// seen for the first time starts at its existing transaction count + 1.
	NextReferenceSeq(ctx context.Context, day time.Time) (int, error)
	// InsertTransaction stores t and its entries, assigning IDs. A taken
	// reference number yields model.ErrDuplicateReference.
	InsertTransaction(ctx context.Context, t *model.Transaction) error
	UpdateTransaction(ctx context.Context, t model.Transaction) error
	ReplaceEntries(ctx context.Context, transactionID int64, entries []model.Entry) error
	DeleteTransaction(ctx context.Context, id int64) error

	CreateRecurring(ctx context.Context, r *model.RecurringTransaction) error
	UpdateRecurring(ctx context.Context, r model.RecurringTransaction) error
	InsertRecurringRun(ctx context.Context, run *model.RecurringRun) error

	UpsertCurrency(ctx context.Context, c model.Currency) error
	UpsertRate(ctx context.Context, r model.ExchangeRate) error
}

// Store is the shared relational store.
type Store interface {
	Reader
	// WithTx runs fn in one atomic unit of work. fn's error rolls back.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Day truncates t to a UTC calendar date, the granularity of all ledger dates.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
