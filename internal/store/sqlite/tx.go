package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledger/internal/model"
)

// sqlTx is a unit of work bound to one *sql.Tx.
type sqlTx struct {
	queries
	now func() time.Time
}

func nullableID(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableActor(p *model.Actor) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func nullableDate(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.Format(dateLayout)
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func checkAffected(res interface{ RowsAffected() (int64, error) }, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for %s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	}
	return nil
}

// LockAccount reads the account row. The surrounding BEGIN IMMEDIATE
// transaction already excludes other writers, which is the strongest lock
// SQLite offers.
func (t *sqlTx) LockAccount(ctx context.Context, id int64) (model.Account, error) {
	return t.GetAccount(ctx, id)
}

func (t *sqlTx) CreateAccount(ctx context.Context, a *model.Account) error {
	res, err := t.q.ExecContext(ctx, `
		INSERT INTO accounts (code, name, name_secondary, type, subtype, parent_id, currency,
			opening_balance, current_balance, is_active, is_system)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Code, a.Name, a.NameSecondary, string(a.Type), a.Subtype, nullableID(a.ParentID), a.Currency,
		a.OpeningBalance, a.CurrentBalance, a.IsActive, a.IsSystem)
	if err != nil {
		return fmt.Errorf("inserting account %s: %w", a.Code, err)
	}
	if a.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("reading account id: %w", err)
	}
	return nil
}

func (t *sqlTx) UpdateAccount(ctx context.Context, a model.Account) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE accounts SET code = ?, name = ?, name_secondary = ?, type = ?, subtype = ?,
			parent_id = ?, currency = ?, opening_balance = ?, is_active = ?, is_system = ?
		WHERE id = ?`,
		a.Code, a.Name, a.NameSecondary, string(a.Type), a.Subtype, nullableID(a.ParentID), a.Currency,
		a.OpeningBalance, a.IsActive, a.IsSystem, a.ID)
	if err != nil {
		return fmt.Errorf("updating account %d: %w", a.ID, err)
	}
	return checkAffected(res, fmt.Sprintf("account %d", a.ID))
}

func (t *sqlTx) SetAccountBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	res, err := t.q.ExecContext(ctx, `UPDATE accounts SET current_balance = ? WHERE id = ?`, balance, id)
	if err != nil {
		return fmt.Errorf("setting balance of account %d: %w", id, err)
	}
	return checkAffected(res, fmt.Sprintf("account %d", id))
}

func (t *sqlTx) NextReferenceSeq(ctx context.Context, day time.Time) (int, error) {
	d := day.Format(dateLayout)
	var seq int
	err := t.q.QueryRowContext(ctx, `
		INSERT INTO reference_sequences (day, last_seq)
		VALUES (?, (SELECT COUNT(*) FROM transactions WHERE transaction_date = ?) + 1)
		ON CONFLICT(day) DO UPDATE SET last_seq = last_seq + 1
		RETURNING last_seq`, d, d).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("advancing reference sequence for %s: %w", d, err)
	}
	return seq, nil
}

func (t *sqlTx) InsertTransaction(ctx context.Context, txn *model.Transaction) error {
	tags, err := json.Marshal(nonNilTags(txn.Tags))
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}
	now := t.now().UTC()

	res, err := t.q.ExecContext(ctx, `
		INSERT INTO transactions (reference_number, description, description_secondary, transaction_date,
			type, total_amount, currency, exchange_rate, is_locked, is_recurring, recurring_template_id,
			cost_center, tags, created_by, approved_by, source_kind, source_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ReferenceNumber, txn.Description, txn.DescriptionSecondary, txn.Date.Format(dateLayout),
		string(txn.Type), txn.TotalAmount, txn.Currency, txn.ExchangeRate, txn.IsLocked, txn.IsRecurring,
		nullableID(txn.RecurringTemplateID), txn.CostCenter, string(tags), int64(txn.CreatedBy),
		nullableActor(txn.ApprovedBy), string(txn.Source.Kind), txn.Source.ID,
		now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", txn.ReferenceNumber, model.ErrDuplicateReference)
		}
		return fmt.Errorf("inserting transaction %s: %w", txn.ReferenceNumber, err)
	}
	if txn.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("reading transaction id: %w", err)
	}
	txn.CreatedAt, txn.UpdatedAt = now, now

	return t.insertEntries(ctx, txn.ID, txn.Entries)
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func (t *sqlTx) insertEntries(ctx context.Context, txnID int64, entries []model.Entry) error {
	for i := range entries {
		e := &entries[i]
		res, err := t.q.ExecContext(ctx, `
			INSERT INTO transaction_entries (transaction_id, account_id, debit_amount, credit_amount, description)
			VALUES (?, ?, ?, ?, ?)`,
			txnID, e.AccountID, e.DebitAmount, e.CreditAmount, e.Description)
		if err != nil {
			return fmt.Errorf("inserting entry %d: %w", i, err)
		}
		if e.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("reading entry id: %w", err)
		}
		e.TransactionID = txnID
	}
	return nil
}

func (t *sqlTx) UpdateTransaction(ctx context.Context, txn model.Transaction) error {
	tags, err := json.Marshal(nonNilTags(txn.Tags))
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}
	res, err := t.q.ExecContext(ctx, `
		UPDATE transactions SET description = ?, description_secondary = ?, transaction_date = ?,
			type = ?, total_amount = ?, currency = ?, exchange_rate = ?, is_locked = ?, is_recurring = ?,
			recurring_template_id = ?, cost_center = ?, tags = ?, approved_by = ?,
			source_kind = ?, source_id = ?, updated_at = ?
		WHERE id = ?`,
		txn.Description, txn.DescriptionSecondary, txn.Date.Format(dateLayout),
		string(txn.Type), txn.TotalAmount, txn.Currency, txn.ExchangeRate, txn.IsLocked, txn.IsRecurring,
		nullableID(txn.RecurringTemplateID), txn.CostCenter, string(tags), nullableActor(txn.ApprovedBy),
		string(txn.Source.Kind), txn.Source.ID, t.now().UTC().Format(timeLayout), txn.ID)
	if err != nil {
		return fmt.Errorf("updating transaction %d: %w", txn.ID, err)
	}
	return checkAffected(res, fmt.Sprintf("transaction %d", txn.ID))
}

func (t *sqlTx) ReplaceEntries(ctx context.Context, transactionID int64, entries []model.Entry) error {
	res, err := t.q.ExecContext(ctx, `UPDATE transactions SET updated_at = ? WHERE id = ?`,
		t.now().UTC().Format(timeLayout), transactionID)
	if err != nil {
		return fmt.Errorf("touching transaction %d: %w", transactionID, err)
	}
	if err := checkAffected(res, fmt.Sprintf("transaction %d", transactionID)); err != nil {
		return err
	}
	if _, err := t.q.ExecContext(ctx, `DELETE FROM transaction_entries WHERE transaction_id = ?`, transactionID); err != nil {
		return fmt.Errorf("deleting entries of transaction %d: %w", transactionID, err)
	}
	return t.insertEntries(ctx, transactionID, entries)
}

func (t *sqlTx) DeleteTransaction(ctx context.Context, id int64) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting transaction %d: %w", id, err)
	}
	return checkAffected(res, fmt.Sprintf("transaction %d", id))
}

func (t *sqlTx) CreateRecurring(ctx context.Context, r *model.RecurringTransaction) error {
	tmpl, err := json.Marshal(r.Template)
	if err != nil {
		return fmt.Errorf("encoding template: %w", err)
	}
	res, err := t.q.ExecContext(ctx, `
		INSERT INTO recurring_transactions (name, frequency, interval, start_date, end_date, next_run_date,
			max_occurrences, occurrences_count, is_active, template_json, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Name, string(r.Frequency), r.Interval, r.StartDate.Format(dateLayout), nullableDate(r.EndDate),
		r.NextRunDate.Format(dateLayout), nullableInt(r.MaxOccurrences), r.OccurrencesCount, r.IsActive,
		string(tmpl), int64(r.CreatedBy))
	if err != nil {
		return fmt.Errorf("inserting recurring transaction: %w", err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("reading recurring transaction id: %w", err)
	}
	return nil
}

func (t *sqlTx) UpdateRecurring(ctx context.Context, r model.RecurringTransaction) error {
	tmpl, err := json.Marshal(r.Template)
	if err != nil {
		return fmt.Errorf("encoding template: %w", err)
	}
	res, err := t.q.ExecContext(ctx, `
		UPDATE recurring_transactions SET name = ?, frequency = ?, interval = ?, start_date = ?, end_date = ?,
			next_run_date = ?, max_occurrences = ?, occurrences_count = ?, is_active = ?, template_json = ?
		WHERE id = ?`,
		r.Name, string(r.Frequency), r.Interval, r.StartDate.Format(dateLayout), nullableDate(r.EndDate),
		r.NextRunDate.Format(dateLayout), nullableInt(r.MaxOccurrences), r.OccurrencesCount, r.IsActive,
		string(tmpl), r.ID)
	if err != nil {
		return fmt.Errorf("updating recurring transaction %d: %w", r.ID, err)
	}
	return checkAffected(res, fmt.Sprintf("recurring transaction %d", r.ID))
}

func (t *sqlTx) InsertRecurringRun(ctx context.Context, run *model.RecurringRun) error {
	res, err := t.q.ExecContext(ctx, `
		INSERT INTO recurring_runs (batch_id, template_id, run_at, status, transaction_id, error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.BatchID, run.TemplateID, run.RunAt.UTC().Format(timeLayout), string(run.Status),
		nullableID(run.TransactionID), run.Error)
	if err != nil {
		return fmt.Errorf("inserting recurring run: %w", err)
	}
	if run.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("reading recurring run id: %w", err)
	}
	return nil
}

func (t *sqlTx) UpsertCurrency(ctx context.Context, c model.Currency) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO currencies (code, name, exchange_rate, is_base)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			exchange_rate = excluded.exchange_rate,
			is_base = excluded.is_base`,
		strings.ToUpper(c.Code), c.Name, c.ExchangeRate, c.IsBase)
	if err != nil {
		return fmt.Errorf("upserting currency %s: %w", c.Code, err)
	}
	return nil
}

func (t *sqlTx) UpsertRate(ctx context.Context, r model.ExchangeRate) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO exchange_rates (from_currency, to_currency, rate, effective_date)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(from_currency, to_currency, effective_date) DO UPDATE SET
			rate = excluded.rate`,
		r.FromCurrency, r.ToCurrency, r.Rate, r.EffectiveDate.Format(dateLayout))
	if err != nil {
		return fmt.Errorf("upserting rate %s/%s: %w", r.FromCurrency, r.ToCurrency, err)
	}
	return nil
}
