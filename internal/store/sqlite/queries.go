package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/store"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = time.RFC3339Nano
)

// queries implements store.Reader over a *sql.DB or *sql.Tx.
type queries struct {
	q querier
}

const accountColumns = `id, code, name, name_secondary, type, subtype, parent_id, currency,
	opening_balance, current_balance, is_active, is_system`

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (model.Account, error) {
	var a model.Account
	var typ string
	var parentID sql.NullInt64
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.NameSecondary, &typ, &a.Subtype, &parentID,
		&a.Currency, &a.OpeningBalance, &a.CurrentBalance, &a.IsActive, &a.IsSystem)
	if err != nil {
		return model.Account{}, err
	}
	a.Type = model.AccountType(typ)
	if parentID.Valid {
		a.ParentID = &parentID.Int64
	}
	return a, nil
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	}
	return fmt.Errorf("reading %s: %w", what, err)
}

func (q queries) GetAccount(ctx context.Context, id int64) (model.Account, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err != nil {
		return model.Account{}, notFound(err, fmt.Sprintf("account %d", id))
	}
	return a, nil
}

func (q queries) GetAccountByCode(ctx context.Context, code string) (model.Account, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code = ?`, code)
	a, err := scanAccount(row)
	if err != nil {
		return model.Account{}, notFound(err, fmt.Sprintf("account %q", code))
	}
	return a, nil
}

func (q queries) ListAccounts(ctx context.Context, f store.AccountFilter) ([]model.Account, error) {
	var where []string
	var args []any
	if f.ActiveOnly {
		where = append(where, "is_active = 1")
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.ParentID != nil {
		where = append(where, "parent_id = ?")
		args = append(args, *f.ParentID)
	}

	rows, err := q.q.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts`+whereClause(where)+` ORDER BY code`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

const transactionColumns = `id, reference_number, description, description_secondary, transaction_date,
	type, total_amount, currency, exchange_rate, is_locked, is_recurring, recurring_template_id,
	cost_center, tags, created_by, approved_by, source_kind, source_id, created_at, updated_at`

func scanTransaction(row scanner) (model.Transaction, error) {
	var t model.Transaction
	var date, typ, tags, sourceKind, createdAt, updatedAt string
	var templateID, approvedBy sql.NullInt64
	err := row.Scan(&t.ID, &t.ReferenceNumber, &t.Description, &t.DescriptionSecondary, &date,
		&typ, &t.TotalAmount, &t.Currency, &t.ExchangeRate, &t.IsLocked, &t.IsRecurring, &templateID,
		&t.CostCenter, &tags, &t.CreatedBy, &approvedBy, &sourceKind, &t.Source.ID, &createdAt, &updatedAt)
	if err != nil {
		return model.Transaction{}, err
	}

	if t.Date, err = time.Parse(dateLayout, date); err != nil {
		return model.Transaction{}, fmt.Errorf("parsing transaction_date %q: %w", date, err)
	}
	if t.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return model.Transaction{}, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
	}
	if t.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return model.Transaction{}, fmt.Errorf("parsing updated_at %q: %w", updatedAt, err)
	}
	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		return model.Transaction{}, fmt.Errorf("parsing tags: %w", err)
	}

	t.Type = model.TransactionType(typ)
	t.Source.Kind = model.SourceKind(sourceKind)
	if templateID.Valid {
		t.RecurringTemplateID = &templateID.Int64
	}
	if approvedBy.Valid {
		actor := model.Actor(approvedBy.Int64)
		t.ApprovedBy = &actor
	}
	return t, nil
}

func (q queries) loadEntries(ctx context.Context, t *model.Transaction) error {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, transaction_id, account_id, debit_amount, credit_amount, description
		FROM transaction_entries WHERE transaction_id = ? ORDER BY id`, t.ID)
	if err != nil {
		return fmt.Errorf("loading entries for %s: %w", t.ReferenceNumber, err)
	}
	defer rows.Close()

	t.Entries = nil
	for rows.Next() {
		var e model.Entry
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.AccountID, &e.DebitAmount, &e.CreditAmount, &e.Description); err != nil {
			return fmt.Errorf("scanning entry: %w", err)
		}
		t.Entries = append(t.Entries, e)
	}
	return rows.Err()
}

func (q queries) GetTransaction(ctx context.Context, id int64) (model.Transaction, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err != nil {
		return model.Transaction{}, notFound(err, fmt.Sprintf("transaction %d", id))
	}
	if err := q.loadEntries(ctx, &t); err != nil {
		return model.Transaction{}, err
	}
	return t, nil
}

func (q queries) GetTransactionByReference(ctx context.Context, ref string) (model.Transaction, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE reference_number = ?`, ref)
	t, err := scanTransaction(row)
	if err != nil {
		return model.Transaction{}, notFound(err, fmt.Sprintf("transaction %s", ref))
	}
	if err := q.loadEntries(ctx, &t); err != nil {
		return model.Transaction{}, err
	}
	return t, nil
}

func (q queries) ListTransactions(ctx context.Context, f store.TransactionFilter) ([]model.Transaction, error) {
	var where []string
	var args []any
	if !f.From.IsZero() {
		where = append(where, "transaction_date >= ?")
		args = append(args, f.From.Format(dateLayout))
	}
	if !f.To.IsZero() {
		where = append(where, "transaction_date <= ?")
		args = append(args, f.To.Format(dateLayout))
	}
	switch f.Lock {
	case store.LockLocked:
		where = append(where, "is_locked = 1")
	case store.LockUnlocked:
		where = append(where, "is_locked = 0")
	}
	if f.TemplateID != nil {
		where = append(where, "recurring_template_id = ?")
		args = append(args, *f.TemplateID)
	}
	if f.AccountID != nil {
		where = append(where, "id IN (SELECT transaction_id FROM transaction_entries WHERE account_id = ?)")
		args = append(args, *f.AccountID)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions` + whereClause(where) + ` ORDER BY transaction_date, id`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}

	var txns []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range txns {
		if err := q.loadEntries(ctx, &txns[i]); err != nil {
			return nil, err
		}
	}
	return txns, nil
}

func (q queries) SumEntries(ctx context.Context, accountID int64, lock store.LockFilter) (decimal.Decimal, decimal.Decimal, error) {
	query := `
		SELECT e.debit_amount, e.credit_amount
		FROM transaction_entries e
		JOIN transactions t ON t.id = e.transaction_id
		WHERE e.account_id = ?`
	switch lock {
	case store.LockLocked:
		query += " AND t.is_locked = 1"
	case store.LockUnlocked:
		query += " AND t.is_locked = 0"
	}

	rows, err := q.q.QueryContext(ctx, query, accountID)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("summing entries for account %d: %w", accountID, err)
	}
	defer rows.Close()

	// Summed in Go: SQLite would coerce the decimal text columns to float.
	debit, credit := decimal.Zero, decimal.Zero
	for rows.Next() {
		var d, c decimal.Decimal
		if err := rows.Scan(&d, &c); err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("scanning entry amounts: %w", err)
		}
		debit = debit.Add(d)
		credit = credit.Add(c)
	}
	return debit, credit, rows.Err()
}

const recurringColumns = `id, name, frequency, interval, start_date, end_date, next_run_date,
	max_occurrences, occurrences_count, is_active, template_json, created_by`

func scanRecurring(row scanner) (model.RecurringTransaction, error) {
	var r model.RecurringTransaction
	var freq, start, next, tmpl string
	var end sql.NullString
	var maxOcc sql.NullInt64
	err := row.Scan(&r.ID, &r.Name, &freq, &r.Interval, &start, &end, &next,
		&maxOcc, &r.OccurrencesCount, &r.IsActive, &tmpl, &r.CreatedBy)
	if err != nil {
		return model.RecurringTransaction{}, err
	}

	r.Frequency = model.Frequency(freq)
	if r.StartDate, err = time.Parse(dateLayout, start); err != nil {
		return model.RecurringTransaction{}, fmt.Errorf("parsing start_date %q: %w", start, err)
	}
	if r.NextRunDate, err = time.Parse(dateLayout, next); err != nil {
		return model.RecurringTransaction{}, fmt.Errorf("parsing next_run_date %q: %w", next, err)
	}
	if end.Valid {
		d, err := time.Parse(dateLayout, end.String)
		if err != nil {
			return model.RecurringTransaction{}, fmt.Errorf("parsing end_date %q: %w", end.String, err)
		}
		r.EndDate = &d
	}
	if maxOcc.Valid {
		n := int(maxOcc.Int64)
		r.MaxOccurrences = &n
	}
	if err := json.Unmarshal([]byte(tmpl), &r.Template); err != nil {
		return model.RecurringTransaction{}, fmt.Errorf("parsing template_json: %w", err)
	}
	return r, nil
}

func (q queries) GetRecurring(ctx context.Context, id int64) (model.RecurringTransaction, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+recurringColumns+` FROM recurring_transactions WHERE id = ?`, id)
	r, err := scanRecurring(row)
	if err != nil {
		return model.RecurringTransaction{}, notFound(err, fmt.Sprintf("recurring transaction %d", id))
	}
	return r, nil
}

func (q queries) ListRecurring(ctx context.Context, f store.RecurringFilter) ([]model.RecurringTransaction, error) {
	var where []string
	var args []any
	if f.ActiveOnly {
		where = append(where, "is_active = 1")
	}
	if !f.DueBy.IsZero() {
		where = append(where, "next_run_date <= ?")
		args = append(args, f.DueBy.Format(dateLayout))
	}

	rows, err := q.q.QueryContext(ctx, `SELECT `+recurringColumns+` FROM recurring_transactions`+
		whereClause(where)+` ORDER BY next_run_date, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing recurring transactions: %w", err)
	}
	defer rows.Close()

	var result []model.RecurringTransaction
	for rows.Next() {
		r, err := scanRecurring(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning recurring transaction: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (q queries) ListRecurringRuns(ctx context.Context, templateID int64) ([]model.RecurringRun, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, batch_id, template_id, run_at, status, transaction_id, error
		FROM recurring_runs WHERE template_id = ? ORDER BY id`, templateID)
	if err != nil {
		return nil, fmt.Errorf("listing recurring runs: %w", err)
	}
	defer rows.Close()

	var runs []model.RecurringRun
	for rows.Next() {
		var run model.RecurringRun
		var runAt, status string
		var txnID sql.NullInt64
		if err := rows.Scan(&run.ID, &run.BatchID, &run.TemplateID, &runAt, &status, &txnID, &run.Error); err != nil {
			return nil, fmt.Errorf("scanning recurring run: %w", err)
		}
		if run.RunAt, err = time.Parse(timeLayout, runAt); err != nil {
			return nil, fmt.Errorf("parsing run_at %q: %w", runAt, err)
		}
		run.Status = model.RunStatus(status)
		if txnID.Valid {
			run.TransactionID = &txnID.Int64
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (q queries) GetCurrency(ctx context.Context, code string) (model.Currency, error) {
	var c model.Currency
	err := q.q.QueryRowContext(ctx, `SELECT code, name, exchange_rate, is_base FROM currencies WHERE code = ?`,
		strings.ToUpper(code)).Scan(&c.Code, &c.Name, &c.ExchangeRate, &c.IsBase)
	if err != nil {
		return model.Currency{}, notFound(err, fmt.Sprintf("currency %s", code))
	}
	return c, nil
}

func (q queries) ListCurrencies(ctx context.Context) ([]model.Currency, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT code, name, exchange_rate, is_base FROM currencies ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("listing currencies: %w", err)
	}
	defer rows.Close()

	var result []model.Currency
	for rows.Next() {
		var c model.Currency
		if err := rows.Scan(&c.Code, &c.Name, &c.ExchangeRate, &c.IsBase); err != nil {
			return nil, fmt.Errorf("scanning currency: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (q queries) LatestRate(ctx context.Context, from, to string, asOf time.Time) (model.ExchangeRate, error) {
	var r model.ExchangeRate
	var effective string
	err := q.q.QueryRowContext(ctx, `
		SELECT from_currency, to_currency, rate, effective_date
		FROM exchange_rates
		WHERE from_currency = ? AND to_currency = ? AND effective_date <= ?
		ORDER BY effective_date DESC
		LIMIT 1`, from, to, asOf.Format(dateLayout)).Scan(&r.FromCurrency, &r.ToCurrency, &r.Rate, &effective)
	if err != nil {
		return model.ExchangeRate{}, notFound(err, fmt.Sprintf("rate %s/%s", from, to))
	}
	if r.EffectiveDate, err = time.Parse(dateLayout, effective); err != nil {
		return model.ExchangeRate{}, fmt.Errorf("parsing effective_date %q: %w", effective, err)
	}
	return r, nil
}
