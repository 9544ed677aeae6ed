package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledger/internal/id"
	"github.com/cleared-dev/ledger/internal/model"
)

// tx is a unit of work over a private copy of the state.
type tx struct {
	*state
	now func() time.Time
}

func (t *tx) LockAccount(ctx context.Context, id int64) (model.Account, error) {
	// The whole unit of work already holds the store's write lock.
	return t.state.GetAccount(ctx, id)
}

func (t *tx) CreateAccount(_ context.Context, a *model.Account) error {
	for _, existing := range t.accounts {
		if existing.Code == a.Code {
			return fmt.Errorf("account code %q already exists", a.Code)
		}
	}
	if a.ParentID != nil {
		if _, ok := t.accounts[*a.ParentID]; !ok {
			return fmt.Errorf("parent account %d: %w", *a.ParentID, model.ErrNotFound)
		}
	}
	t.accountSeq++
	a.ID = t.accountSeq
	t.accounts[a.ID] = *a
	return nil
}

func (t *tx) UpdateAccount(_ context.Context, a model.Account) error {
	old, ok := t.accounts[a.ID]
	if !ok {
		return model.ErrNotFound
	}
	a.CurrentBalance = old.CurrentBalance
	t.accounts[a.ID] = a
	return nil
}

func (t *tx) SetAccountBalance(_ context.Context, id int64, balance decimal.Decimal) error {
	a, ok := t.accounts[id]
	if !ok {
		return model.ErrNotFound
	}
	a.CurrentBalance = balance
	t.accounts[id] = a
	return nil
}

func (t *tx) NextReferenceSeq(_ context.Context, day time.Time) (int, error) {
	key := id.DayKey(day)
	seq, ok := t.sequences[key]
	if !ok {
		for _, txn := range t.txns {
			if id.DayKey(txn.Date) == key {
				seq++
			}
		}
	}
	seq++
	t.sequences[key] = seq
	return seq, nil
}

func (t *tx) InsertTransaction(_ context.Context, txn *model.Transaction) error {
	for _, existing := range t.txns {
		if existing.ReferenceNumber == txn.ReferenceNumber {
			return fmt.Errorf("%s: %w", txn.ReferenceNumber, model.ErrDuplicateReference)
		}
	}
	for _, e := range txn.Entries {
		if _, ok := t.accounts[e.AccountID]; !ok {
			return fmt.Errorf("entry account %d: %w", e.AccountID, model.ErrNotFound)
		}
	}
	t.txnSeq++
	txn.ID = t.txnSeq
	now := t.now().UTC()
	txn.CreatedAt, txn.UpdatedAt = now, now
	t.assignEntryIDs(txn.ID, txn.Entries)
	t.txns[txn.ID] = copyTxn(*txn)
	return nil
}

func (t *tx) assignEntryIDs(txnID int64, entries []model.Entry) {
	for i := range entries {
		t.entrySeq++
		entries[i].ID = t.entrySeq
		entries[i].TransactionID = txnID
	}
}

func (t *tx) UpdateTransaction(_ context.Context, txn model.Transaction) error {
	old, ok := t.txns[txn.ID]
	if !ok {
		return model.ErrNotFound
	}
	txn.ReferenceNumber = old.ReferenceNumber
	txn.CreatedAt = old.CreatedAt
	txn.UpdatedAt = t.now().UTC()
	txn.Entries = old.Entries
	t.txns[txn.ID] = copyTxn(txn)
	return nil
}

func (t *tx) ReplaceEntries(_ context.Context, transactionID int64, entries []model.Entry) error {
	txn, ok := t.txns[transactionID]
	if !ok {
		return model.ErrNotFound
	}
	entries = slices.Clone(entries)
	t.assignEntryIDs(transactionID, entries)
	txn.Entries = entries
	txn.UpdatedAt = t.now().UTC()
	t.txns[transactionID] = txn
	return nil
}

func (t *tx) DeleteTransaction(_ context.Context, id int64) error {
	if _, ok := t.txns[id]; !ok {
		return model.ErrNotFound
	}
	delete(t.txns, id)
	return nil
}

func (t *tx) CreateRecurring(_ context.Context, r *model.RecurringTransaction) error {
	t.recurringSeq++
	r.ID = t.recurringSeq
	t.recurring[r.ID] = *r
	return nil
}

func (t *tx) UpdateRecurring(_ context.Context, r model.RecurringTransaction) error {
	if _, ok := t.recurring[r.ID]; !ok {
		return model.ErrNotFound
	}
	t.recurring[r.ID] = r
	return nil
}

func (t *tx) InsertRecurringRun(_ context.Context, run *model.RecurringRun) error {
	t.runSeq++
	run.ID = t.runSeq
	t.runs = append(t.runs, *run)
	return nil
}

func (t *tx) UpsertCurrency(_ context.Context, c model.Currency) error {
	c.Code = strings.ToUpper(c.Code)
	t.currencies[c.Code] = c
	return nil
}

func (t *tx) UpsertRate(_ context.Context, r model.ExchangeRate) error {
	for i, existing := range t.rates {
		if existing.FromCurrency == r.FromCurrency && existing.ToCurrency == r.ToCurrency &&
			existing.EffectiveDate.Equal(r.EffectiveDate) {
			t.rates[i] = r
			return nil
		}
	}
	t.rates = append(t.rates, r)
	return nil
}
