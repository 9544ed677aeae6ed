package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Actor identifies the user performing a mutation. Zero means "system".
type Actor int64

// TransactionType tags how a transaction came to exist.
type TransactionType string

const (
	TransactionTypeJournal   TransactionType = "journal"
	TransactionTypeRecurring TransactionType = "recurring"
	TransactionTypeOther     TransactionType = "other"
)

// SourceKind names the collaborator that owns a transaction's source record.
type SourceKind string

const (
	SourceManual    SourceKind = "manual"
	SourceRecurring SourceKind = "recurring"
	SourceExternal  SourceKind = "external"
)

// SourceRef points at the record a transaction was generated from.
// The owning collaborator resolves ID according to Kind.
type SourceRef struct {
	Kind SourceKind
	ID   string
}

// Transaction is one journal event made of balanced entries.
type Transaction struct {
	ID                   int64
	ReferenceNumber      string
	Description          string
	DescriptionSecondary string
	Date                 time.Time
	Type                 TransactionType
	TotalAmount          decimal.Decimal
	Currency             string
	ExchangeRate         decimal.Decimal // to base currency at Date
	IsLocked             bool
	IsRecurring          bool
	RecurringTemplateID  *int64
	CostCenter           string
	Tags                 []string
	CreatedBy            Actor
	ApprovedBy           *Actor
	Source               SourceRef
	CreatedAt            time.Time
	UpdatedAt            time.Time
	Entries              []Entry
}

// Entry is one debit or credit line within a Transaction.
type Entry struct {
	ID            int64
	TransactionID int64
	AccountID     int64
	DebitAmount   decimal.Decimal // zero if credit side
	CreditAmount  decimal.Decimal // zero if debit side
	Description   string
}

// Totals returns the debit and credit sums of entries.
func Totals(entries []Entry) (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, e := range entries {
		debit = debit.Add(e.DebitAmount)
		credit = credit.Add(e.CreditAmount)
	}
	return debit, credit
}

// AccountIDs returns the distinct account IDs referenced by entries, in first-seen order.
func AccountIDs(entries []Entry) []int64 {
	seen := make(map[int64]bool, len(entries))
	var ids []int64
	for _, e := range entries {
		if seen[e.AccountID] {
			continue
		}
		seen[e.AccountID] = true
		ids = append(ids, e.AccountID)
	}
	return ids
}
