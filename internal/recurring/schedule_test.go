package recurring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/ledger/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

func TestNextRunDate(t *testing.T) {
	tests := []struct {
		name     string
		freq     model.Frequency
		interval int
		from     time.Time
		want     time.Time
	}{
		{"daily", model.FrequencyDaily, 1, date(2025, 1, 31), date(2025, 2, 1)},
		{"every 3 days", model.FrequencyDaily, 3, date(2025, 1, 30), date(2025, 2, 2)},
		{"weekly", model.FrequencyWeekly, 1, date(2025, 1, 1), date(2025, 1, 8)},
		{"biweekly", model.FrequencyWeekly, 2, date(2025, 1, 1), date(2025, 1, 15)},
		{"monthly", model.FrequencyMonthly, 1, date(2025, 1, 1), date(2025, 2, 1)},
		{"monthly clamps", model.FrequencyMonthly, 1, date(2025, 1, 31), date(2025, 2, 28)},
		{"monthly clamps leap", model.FrequencyMonthly, 1, date(2024, 1, 31), date(2024, 2, 29)},
		{"monthly across year", model.FrequencyMonthly, 2, date(2025, 12, 15), date(2026, 2, 15)},
		{"quarterly", model.FrequencyQuarterly, 1, date(2025, 1, 1), date(2025, 4, 1)},
		{"quarterly x2", model.FrequencyQuarterly, 2, date(2025, 1, 1), date(2025, 7, 1)},
		{"quarterly clamps", model.FrequencyQuarterly, 1, date(2025, 11, 30), date(2026, 2, 28)},
		{"yearly", model.FrequencyYearly, 1, date(2025, 3, 10), date(2026, 3, 10)},
		{"yearly from leap day", model.FrequencyYearly, 1, date(2024, 2, 29), date(2025, 2, 28)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextRunDate(model.RecurringTransaction{Frequency: tt.freq, Interval: tt.interval, NextRunDate: tt.from})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextRunDate_Invalid(t *testing.T) {
	_, err := NextRunDate(model.RecurringTransaction{Frequency: "fortnightly", Interval: 1, NextRunDate: date(2025, 1, 1)})
	require.ErrorIs(t, err, model.ErrUnknownFrequency)

	_, err = NextRunDate(model.RecurringTransaction{Frequency: model.FrequencyDaily, Interval: 0, NextRunDate: date(2025, 1, 1)})
	require.Error(t, err)
}

func TestShouldRun(t *testing.T) {
	base := model.RecurringTransaction{
		Frequency:   model.FrequencyMonthly,
		Interval:    1,
		NextRunDate: date(2025, 1, 1),
		IsActive:    true,
	}
	now := time.Date(2025, 1, 1, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name   string
		mutate func(r *model.RecurringTransaction)
		now    time.Time
		want   bool
	}{
		{"due today", func(*model.RecurringTransaction) {}, now, true},
		{"overdue", func(*model.RecurringTransaction) {}, date(2025, 3, 1), true},
		{"not yet due", func(*model.RecurringTransaction) {}, date(2024, 12, 31), false},
		{"inactive", func(r *model.RecurringTransaction) { r.IsActive = false }, now, false},
		{"past end date", func(r *model.RecurringTransaction) { r.EndDate = ptr(date(2024, 12, 31)) }, now, false},
		{"on end date", func(r *model.RecurringTransaction) { r.EndDate = ptr(date(2025, 1, 1)) }, now, true},
		{"behind with run date inside window", func(r *model.RecurringTransaction) {
			r.NextRunDate = date(2025, 1, 15)
			r.EndDate = ptr(date(2025, 1, 31))
		}, date(2025, 2, 5), true},
		{"run date past end date", func(r *model.RecurringTransaction) {
			r.NextRunDate = date(2025, 2, 15)
			r.EndDate = ptr(date(2025, 1, 31))
		}, date(2025, 2, 20), false},
		{"max reached", func(r *model.RecurringTransaction) { r.MaxOccurrences = ptr(2); r.OccurrencesCount = 2 }, now, false},
		{"below max", func(r *model.RecurringTransaction) { r.MaxOccurrences = ptr(2); r.OccurrencesCount = 1 }, now, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base
			tt.mutate(&r)
			assert.Equal(t, tt.want, ShouldRun(r, tt.now))
		})
	}
}
