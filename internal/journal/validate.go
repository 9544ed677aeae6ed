package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledger/internal/model"
)

// ValidationError is one rule violation, tied to an entry line when Line > 0.
type ValidationError struct {
	Line int
	Err  error
}

func (e ValidationError) Error() string {
	if e.Line == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Err)
}

func (e ValidationError) Unwrap() error {
	return e.Err
}

// AccountChecker looks up the accounts entries post to.
type AccountChecker interface {
	GetAccount(ctx context.Context, id int64) (model.Account, error)
}

var hundred = decimal.NewFromInt(100)

// ValidateEntries checks every entry rule and the balance of the whole set.
// It returns model.ErrNoEntries for an empty set, otherwise all violations
// joined, each matchable with errors.As.
func ValidateEntries(ctx context.Context, entries []model.Entry, accounts AccountChecker) error {
	if len(entries) == 0 {
		return model.ErrNoEntries
	}

	var errs []error
	add := func(line int, err error) {
		errs = append(errs, ValidationError{Line: line, Err: err})
	}

	for i, e := range entries {
		line := i + 1

		if e.DebitAmount.IsNegative() || e.CreditAmount.IsNegative() {
			add(line, errors.New("amounts must not be negative"))
		}
		if e.DebitAmount.IsZero() == e.CreditAmount.IsZero() {
			add(line, errors.New("entry must have exactly one of debit or credit"))
		}
		for _, amt := range []decimal.Decimal{e.DebitAmount, e.CreditAmount} {
			if !amt.Mul(hundred).Equal(amt.Mul(hundred).Truncate(0)) {
				add(line, fmt.Errorf("amount %s has more than 2 decimal places", amt))
			}
		}

		acct, err := accounts.GetAccount(ctx, e.AccountID)
		switch {
		case errors.Is(err, model.ErrNotFound):
			add(line, &model.AccountNotFoundError{ID: e.AccountID})
		case err != nil:
			return fmt.Errorf("loading account %d: %w", e.AccountID, err)
		case !acct.IsActive:
			add(line, &model.AccountNotFoundError{ID: e.AccountID, Inactive: true})
		}
	}

	debit, credit := model.Totals(entries)
	if !debit.Round(2).Equal(credit.Round(2)) {
		add(0, &model.UnbalancedTransactionError{Debit: debit, Credit: credit})
	}

	return errors.Join(errs...)
}

// IsBalanced reports whether txn has entries and its debits equal its
// credits at two decimal places.
func IsBalanced(txn model.Transaction) bool {
	if len(txn.Entries) == 0 {
		return false
	}
	debit, credit := model.Totals(txn.Entries)
	return debit.Round(2).Equal(credit.Round(2))
}

// Variance is |debits - credits| at two decimal places.
func Variance(txn model.Transaction) decimal.Decimal {
	debit, credit := model.Totals(txn.Entries)
	return debit.Sub(credit).Abs().Round(2)
}
