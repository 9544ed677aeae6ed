package model

import "github.com/shopspring/decimal"

// AccountType classifies accounts in the chart of accounts.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeRevenue   AccountType = "revenue"
	AccountTypeExpense   AccountType = "expense"
)

// NormalSide is the entry side that increases an account's balance.
type NormalSide int

const (
	DebitNormal NormalSide = iota + 1
	CreditNormal
)

func (s NormalSide) String() string {
	switch s {
	case DebitNormal:
		return "debit"
	case CreditNormal:
		return "credit"
	default:
		return "unknown"
	}
}

// NormalSide reports which side increases accounts of this type.
func (t AccountType) NormalSide() (NormalSide, error) {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return DebitNormal, nil
	case AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue:
		return CreditNormal, nil
	default:
		return 0, &InvalidAccountTypeError{Type: string(t)}
	}
}

// Valid reports whether t is one of the five known account types.
func (t AccountType) Valid() bool {
	_, err := t.NormalSide()
	return err == nil
}

// Account is a node in the chart of accounts. Parent links are by ID.
type Account struct {
	ID             int64
	Code           string
	Name           string
	NameSecondary  string
	Type           AccountType
	Subtype        string
	ParentID       *int64 // nil = top-level
	Currency       string
	OpeningBalance decimal.Decimal
	CurrentBalance decimal.Decimal // written only by balance recompute
	IsActive       bool
	IsSystem       bool
}
