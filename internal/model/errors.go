package model

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned by stores when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNoEntries rejects a transaction with no lines.
	ErrNoEntries = errors.New("transaction has no entries")
	// ErrUnknownFrequency is returned for a recurring frequency outside the known set.
	ErrUnknownFrequency = errors.New("unknown recurring frequency")
	// ErrDuplicateReference is returned by stores on a reference_number conflict.
	ErrDuplicateReference = errors.New("duplicate reference number")
)

// UnbalancedTransactionError reports entries whose debits and credits differ.
type UnbalancedTransactionError struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

func (e *UnbalancedTransactionError) Error() string {
	return fmt.Sprintf("unbalanced transaction: debits (%s) != credits (%s), variance %s",
		e.Debit.StringFixed(2), e.Credit.StringFixed(2), e.Variance().StringFixed(2))
}

// Variance is the absolute difference between debits and credits.
func (e *UnbalancedTransactionError) Variance() decimal.Decimal {
	return e.Debit.Sub(e.Credit).Abs().Round(2)
}

// LockedTransactionError rejects a mutation of a locked transaction.
type LockedTransactionError struct {
	ID        int64
	Reference string
}

func (e *LockedTransactionError) Error() string {
	return fmt.Sprintf("transaction %s (id %d) is locked", e.Reference, e.ID)
}

// AccountNotFoundError reports an entry referencing a missing or inactive account.
type AccountNotFoundError struct {
	ID       int64
	Inactive bool
}

func (e *AccountNotFoundError) Error() string {
	if e.Inactive {
		return fmt.Sprintf("account %d is inactive", e.ID)
	}
	return fmt.Sprintf("account %d not found", e.ID)
}

// InvalidAccountTypeError reports an account type outside the five known classes.
type InvalidAccountTypeError struct {
	Type string
}

func (e *InvalidAccountTypeError) Error() string {
	return fmt.Sprintf("invalid account type %q", e.Type)
}
