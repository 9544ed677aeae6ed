package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency is an ISO code with its rate against the base currency.
type Currency struct {
	Code         string
	Name         string
	ExchangeRate decimal.Decimal
	IsBase       bool
}

// ExchangeRate is one point of a from/to rate time series.
type ExchangeRate struct {
	FromCurrency  string
	ToCurrency    string
	Rate          decimal.Decimal
	EffectiveDate time.Time
}
