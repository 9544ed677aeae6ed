// Package journal is the ledger transaction engine: it posts balanced
// transactions, generates reference numbers and drives balance updates on
// lock transitions.
package journal

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cleared-dev/ledger/internal/audit"
	"github.com/cleared-dev/ledger/internal/id"
	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/observability"
	"github.com/cleared-dev/ledger/internal/store"
)

// maxReferenceAttempts bounds retries after a reference number collision.
const maxReferenceAttempts = 5

// RateResolver resolves the exchange rate a transaction is stamped with.
type RateResolver interface {
	GetRateIn(ctx context.Context, rd store.Reader, from, to string, asOf time.Time) (decimal.Decimal, error)
}

// BalanceUpdater recomputes one account's balance inside a unit of work.
// Predicate names the transactions that count toward a balance.
type BalanceUpdater interface {
	RecomputeBalance(ctx context.Context, tx store.Tx, id int64) (decimal.Decimal, error)
	Predicate() store.LockFilter
}

// Options carries the engine's optional collaborators.
type Options struct {
	BaseCurrency string
	Audit        *audit.Recorder
	Logger       *zap.Logger
	Metrics      *observability.Metrics
}

// Engine creates, locks and guards ledger transactions.
type Engine struct {
	store    store.Store
	balances BalanceUpdater
	rates    RateResolver
	base     string
	audit    *audit.Recorder
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewEngine returns an Engine.
func NewEngine(st store.Store, balances BalanceUpdater, rates RateResolver, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.BaseCurrency == "" {
		opts.BaseCurrency = "USD"
	}
	return &Engine{
		store:    st,
		balances: balances,
		rates:    rates,
		base:     opts.BaseCurrency,
		audit:    opts.Audit,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		now:      time.Now,
	}
}

// CreateRequest holds the caller-supplied fields of a new transaction.
type CreateRequest struct {
	Date                 time.Time
	Description          string
	DescriptionSecondary string
	Type                 model.TransactionType
	Currency             string
	CostCenter           string
	Tags                 []string
	Source               model.SourceRef
	RecurringTemplateID  *int64
	Entries              []model.Entry
}

// CreateTransaction validates req and persists it as a new unlocked
// transaction with a generated reference number.
func (e *Engine) CreateTransaction(ctx context.Context, req CreateRequest, actor model.Actor) (model.Transaction, error) {
	start := time.Now()
	var txn model.Transaction
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		txn, err = e.CreateIn(ctx, tx, req, actor)
		return err
	})
	if err != nil {
		return model.Transaction{}, err
	}
	e.metrics.RecordDuration("create_transaction", time.Since(start))
	e.NotifyCreated(ctx, txn, actor)
	return txn, nil
}

// CreateIn is CreateTransaction within an existing unit of work. The
// caller owns the commit and should call NotifyCreated after it.
func (e *Engine) CreateIn(ctx context.Context, tx store.Tx, req CreateRequest, actor model.Actor) (model.Transaction, error) {
	if err := ValidateEntries(ctx, req.Entries, tx); err != nil {
		return model.Transaction{}, err
	}

	date := req.Date
	if date.IsZero() {
		date = e.now()
	}
	date = store.Day(date)

	currency := req.Currency
	if currency == "" {
		currency = e.base
	}
	rate, err := e.rates.GetRateIn(ctx, tx, currency, e.base, date)
	if err != nil {
		return model.Transaction{}, err
	}

	txnType := req.Type
	if txnType == "" {
		txnType = model.TransactionTypeJournal
	}
	source := req.Source
	if source.Kind == "" {
		source.Kind = model.SourceManual
	}

	debit, _ := model.Totals(req.Entries)
	txn := model.Transaction{
		Description:          req.Description,
		DescriptionSecondary: req.DescriptionSecondary,
		Date:                 date,
		Type:                 txnType,
		TotalAmount:          debit,
		Currency:             currency,
		ExchangeRate:         rate,
		IsRecurring:          txnType == model.TransactionTypeRecurring || req.RecurringTemplateID != nil,
		RecurringTemplateID:  req.RecurringTemplateID,
		CostCenter:           req.CostCenter,
		Tags:                 slices.Clone(req.Tags),
		CreatedBy:            actor,
		Source:               source,
		Entries:              stripIDs(req.Entries),
	}

	if err := e.insertWithReference(ctx, tx, &txn); err != nil {
		return model.Transaction{}, err
	}
	if err := e.recomputeUnlocked(ctx, tx, txn.Entries); err != nil {
		return model.Transaction{}, err
	}
	return txn, nil
}

// recomputeUnlocked refreshes the accounts behind entries when unlocked
// transactions count toward balances. Under the locked predicate only lock
// transitions move a balance.
func (e *Engine) recomputeUnlocked(ctx context.Context, tx store.Tx, entries ...[]model.Entry) error {
	if !e.balances.Predicate().Match(false) {
		return nil
	}
	var all []model.Entry
	for _, set := range entries {
		all = append(all, set...)
	}
	for _, acct := range model.AccountIDs(all) {
		if _, err := e.balances.RecomputeBalance(ctx, tx, acct); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) insertWithReference(ctx context.Context, tx store.Tx, txn *model.Transaction) error {
	var err error
	for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
		var seq int
		seq, err = tx.NextReferenceSeq(ctx, txn.Date)
		if err != nil {
			return fmt.Errorf("reserving reference number: %w", err)
		}
		txn.ReferenceNumber = id.FormatReference(txn.Date, seq)

		err = tx.InsertTransaction(ctx, txn)
		if !errors.Is(err, model.ErrDuplicateReference) {
			return err
		}
		e.logger.Warn("reference number taken, retrying",
			zap.String("reference", txn.ReferenceNumber),
			zap.Int("attempt", attempt+1),
		)
	}
	return fmt.Errorf("after %d attempts: %w", maxReferenceAttempts, err)
}

func stripIDs(entries []model.Entry) []model.Entry {
	out := make([]model.Entry, len(entries))
	for i, en := range entries {
		en.ID, en.TransactionID = 0, 0
		out[i] = en
	}
	return out
}

// NotifyCreated emits the side effects of a committed transaction.
func (e *Engine) NotifyCreated(ctx context.Context, txn model.Transaction, actor model.Actor) {
	e.metrics.IncrTransactionCreated(string(txn.Type))
	e.logger.Info("created transaction",
		zap.String("reference", txn.ReferenceNumber),
		zap.Int64("id", txn.ID),
		zap.String("total", txn.TotalAmount.StringFixed(2)),
	)
	e.audit.Record(ctx, audit.Event{
		Action:    audit.ActionCreated,
		Actor:     actor,
		Subject:   audit.Subject{Kind: audit.SubjectTransaction, ID: txn.ID},
		Reference: txn.ReferenceNumber,
		Details:   fmt.Sprintf("%s %s", txn.TotalAmount.StringFixed(2), txn.Currency),
	})
}

// Lock marks a balanced transaction as posted and recomputes every account
// it touches. It returns false if the transaction was already locked.
func (e *Engine) Lock(ctx context.Context, id int64, actor model.Actor) (bool, error) {
	return e.setLocked(ctx, id, true, actor)
}

// Unlock reverses Lock. It returns false if the transaction was not locked.
func (e *Engine) Unlock(ctx context.Context, id int64, actor model.Actor) (bool, error) {
	return e.setLocked(ctx, id, false, actor)
}

func (e *Engine) setLocked(ctx context.Context, id int64, locked bool, actor model.Actor) (bool, error) {
	op, action := "lock", audit.ActionLocked
	if !locked {
		op, action = "unlock", audit.ActionUnlocked
	}

	start := time.Now()
	var (
		txn     model.Transaction
		changed bool
		touched []int64
	)
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		txn, err = tx.GetTransaction(ctx, id)
		if err != nil {
			return fmt.Errorf("loading transaction %d: %w", id, err)
		}
		if txn.IsLocked == locked {
			return nil
		}
		if locked {
			if len(txn.Entries) == 0 {
				return model.ErrNoEntries
			}
			if !IsBalanced(txn) {
				debit, credit := model.Totals(txn.Entries)
				return &model.UnbalancedTransactionError{Debit: debit, Credit: credit}
			}
			txn.ApprovedBy = &actor
		} else {
			txn.ApprovedBy = nil
		}
		txn.IsLocked = locked

		if err := tx.UpdateTransaction(ctx, txn); err != nil {
			return err
		}
		touched = model.AccountIDs(txn.Entries)
		for _, acct := range touched {
			if _, err := e.balances.RecomputeBalance(ctx, tx, acct); err != nil {
				return err
			}
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}

	e.metrics.IncrLockTransition(op, changed)
	e.metrics.RecordDuration(op, time.Since(start))
	if !changed {
		e.logger.Debug("lock state unchanged", zap.String("op", op), zap.Int64("id", id))
		return false, nil
	}

	e.logger.Info("transaction "+string(action),
		zap.String("reference", txn.ReferenceNumber),
		zap.Int("accounts", len(touched)),
	)
	e.audit.Record(ctx, audit.Event{
		Action:    action,
		Actor:     actor,
		Subject:   audit.Subject{Kind: audit.SubjectTransaction, ID: txn.ID},
		Reference: txn.ReferenceNumber,
		Details:   fmt.Sprintf("%d accounts recomputed", len(touched)),
	})
	return true, nil
}

// UpdateRequest changes descriptive fields. Nil fields are left as is.
type UpdateRequest struct {
	Description          *string
	DescriptionSecondary *string
	CostCenter           *string
	Tags                 []string
}

// UpdateTransaction applies req to an unlocked transaction.
func (e *Engine) UpdateTransaction(ctx context.Context, id int64, req UpdateRequest, actor model.Actor) (model.Transaction, error) {
	var txn model.Transaction
	err := e.mutate(ctx, id, func(tx store.Tx, t *model.Transaction) error {
		if req.Description != nil {
			t.Description = *req.Description
		}
		if req.DescriptionSecondary != nil {
			t.DescriptionSecondary = *req.DescriptionSecondary
		}
		if req.CostCenter != nil {
			t.CostCenter = *req.CostCenter
		}
		if req.Tags != nil {
			t.Tags = slices.Clone(req.Tags)
		}
		txn = *t
		return tx.UpdateTransaction(ctx, *t)
	})
	if err != nil {
		return model.Transaction{}, err
	}
	e.recordMutation(ctx, audit.ActionUpdated, txn, actor, "fields updated")
	return txn, nil
}

// ReplaceEntries swaps the entries of an unlocked transaction for a new
// valid set and updates its total.
func (e *Engine) ReplaceEntries(ctx context.Context, id int64, entries []model.Entry, actor model.Actor) (model.Transaction, error) {
	var txn model.Transaction
	err := e.mutate(ctx, id, func(tx store.Tx, t *model.Transaction) error {
		if err := ValidateEntries(ctx, entries, tx); err != nil {
			return err
		}
		t.TotalAmount, _ = model.Totals(entries)
		if err := tx.UpdateTransaction(ctx, *t); err != nil {
			return err
		}
		fresh := stripIDs(entries)
		if err := tx.ReplaceEntries(ctx, t.ID, fresh); err != nil {
			return err
		}
		if err := e.recomputeUnlocked(ctx, tx, t.Entries, fresh); err != nil {
			return err
		}
		t.Entries = fresh
		txn = *t
		return nil
	})
	if err != nil {
		return model.Transaction{}, err
	}
	e.recordMutation(ctx, audit.ActionUpdated, txn, actor, fmt.Sprintf("%d entries replaced", len(entries)))
	return txn, nil
}

// DeleteTransaction removes an unlocked transaction and its entries.
func (e *Engine) DeleteTransaction(ctx context.Context, id int64, actor model.Actor) error {
	var txn model.Transaction
	err := e.mutate(ctx, id, func(tx store.Tx, t *model.Transaction) error {
		txn = *t
		if err := tx.DeleteTransaction(ctx, t.ID); err != nil {
			return err
		}
		return e.recomputeUnlocked(ctx, tx, t.Entries)
	})
	if err != nil {
		return err
	}
	e.recordMutation(ctx, audit.ActionDeleted, txn, actor, "")
	return nil
}

// mutate loads a transaction in a unit of work and runs fn on it unless
// it is locked.
func (e *Engine) mutate(ctx context.Context, id int64, fn func(tx store.Tx, t *model.Transaction) error) error {
	return e.store.WithTx(ctx, func(tx store.Tx) error {
		t, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return fmt.Errorf("loading transaction %d: %w", id, err)
		}
		if t.IsLocked {
			return &model.LockedTransactionError{ID: t.ID, Reference: t.ReferenceNumber}
		}
		return fn(tx, &t)
	})
}

func (e *Engine) recordMutation(ctx context.Context, action audit.Action, txn model.Transaction, actor model.Actor, details string) {
	e.logger.Info("transaction "+string(action), zap.String("reference", txn.ReferenceNumber))
	e.audit.Record(ctx, audit.Event{
		Action:    action,
		Actor:     actor,
		Subject:   audit.Subject{Kind: audit.SubjectTransaction, ID: txn.ID},
		Reference: txn.ReferenceNumber,
		Details:   details,
	})
}

// Get returns a transaction with its entries.
func (e *Engine) Get(ctx context.Context, id int64) (model.Transaction, error) {
	return e.store.GetTransaction(ctx, id)
}

// GetByReference returns a transaction by its reference number.
func (e *Engine) GetByReference(ctx context.Context, ref string) (model.Transaction, error) {
	if _, _, err := id.ParseReference(ref); err != nil {
		return model.Transaction{}, err
	}
	return e.store.GetTransactionByReference(ctx, ref)
}

// List returns transactions matching f, oldest first.
func (e *Engine) List(ctx context.Context, f store.TransactionFilter) ([]model.Transaction, error) {
	if f.Lock != "" && !f.Lock.Valid() {
		return nil, fmt.Errorf("invalid lock filter %q", f.Lock)
	}
	return e.store.ListTransactions(ctx, f)
}
