// Package fx resolves exchange rates from the dated rate table.
package fx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/observability"
	"github.com/cleared-dev/ledger/internal/store"
)

var one = decimal.NewFromInt(1)

// Resolver looks up and records exchange rates.
type Resolver struct {
	store   store.Store
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewResolver returns a Resolver over st.
func NewResolver(st store.Store, logger *zap.Logger, metrics *observability.Metrics) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: st, logger: logger, metrics: metrics}
}

// GetRate returns the from/to rate effective on asOf: the row with the
// latest effective date not after asOf. Equal currencies give 1. A pair
// with no applicable row also gives 1, with a warning.
func (r *Resolver) GetRate(ctx context.Context, from, to string, asOf time.Time) (decimal.Decimal, error) {
	return r.rate(ctx, r.store, from, to, asOf)
}

// GetRateIn is GetRate reading through an open unit of work.
func (r *Resolver) GetRateIn(ctx context.Context, rd store.Reader, from, to string, asOf time.Time) (decimal.Decimal, error) {
	return r.rate(ctx, rd, from, to, asOf)
}

func (r *Resolver) rate(ctx context.Context, rd store.Reader, from, to string, asOf time.Time) (decimal.Decimal, error) {
	from, to = normalize(from), normalize(to)
	if from == to {
		return one, nil
	}

	rate, err := rd.LatestRate(ctx, from, to, store.Day(asOf))
	if errors.Is(err, model.ErrNotFound) {
		r.logger.Warn("no exchange rate, using 1",
			zap.String("from", from),
			zap.String("to", to),
			zap.String("as_of", asOf.Format(time.DateOnly)),
		)
		r.metrics.IncrFXFallback(from, to)
		return one, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("looking up rate %s/%s: %w", from, to, err)
	}
	return rate.Rate, nil
}

// Convert returns amount in from expressed in to, at the rate effective on asOf.
func (r *Resolver) Convert(ctx context.Context, from string, amount decimal.Decimal, to string, asOf time.Time) (decimal.Decimal, error) {
	rate, err := r.GetRate(ctx, from, to, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate), nil
}

// SetRate records a from/to rate effective from date, replacing any rate
// already recorded for that pair and date.
func (r *Resolver) SetRate(ctx context.Context, from, to string, rate decimal.Decimal, effective time.Time) error {
	from, to = normalize(from), normalize(to)
	if from == "" || to == "" {
		return errors.New("currency codes are required")
	}
	if from == to {
		return fmt.Errorf("cannot set a rate from %s to itself", from)
	}
	if !rate.IsPositive() {
		return fmt.Errorf("rate must be positive, got %s", rate)
	}

	err := r.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.UpsertRate(ctx, model.ExchangeRate{
			FromCurrency:  from,
			ToCurrency:    to,
			Rate:          rate,
			EffectiveDate: store.Day(effective),
		})
	})
	if err != nil {
		return fmt.Errorf("saving rate %s/%s: %w", from, to, err)
	}
	r.logger.Info("set exchange rate",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("rate", rate.String()),
		zap.String("effective", effective.Format(time.DateOnly)),
	)
	return nil
}

// UpsertCurrency registers c. Marking c as base clears the flag on every
// other currency.
func (r *Resolver) UpsertCurrency(ctx context.Context, c model.Currency) error {
	c.Code = normalize(c.Code)
	if c.Code == "" {
		return errors.New("currency code is required")
	}
	if c.IsBase {
		c.ExchangeRate = one
	}
	return r.store.WithTx(ctx, func(tx store.Tx) error {
		if c.IsBase {
			existing, err := tx.ListCurrencies(ctx)
			if err != nil {
				return err
			}
			for _, e := range existing {
				if e.IsBase && e.Code != c.Code {
					e.IsBase = false
					if err := tx.UpsertCurrency(ctx, e); err != nil {
						return err
					}
				}
			}
		}
		return tx.UpsertCurrency(ctx, c)
	})
}

// BaseCurrency returns the currency flagged as base, or model.ErrNotFound.
func (r *Resolver) BaseCurrency(ctx context.Context) (model.Currency, error) {
	all, err := r.store.ListCurrencies(ctx)
	if err != nil {
		return model.Currency{}, err
	}
	for _, c := range all {
		if c.IsBase {
			return c, nil
		}
	}
	return model.Currency{}, fmt.Errorf("base currency: %w", model.ErrNotFound)
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
