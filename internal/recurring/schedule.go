package recurring

import (
	"fmt"
	"time"

	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/store"
)

// ShouldRun reports whether r is due at now. The end date bounds the run
// date, not now, so a template that fell behind still gets its last run.
func ShouldRun(r model.RecurringTransaction, now time.Time) bool {
	if !r.IsActive {
		return false
	}
	today := store.Day(now)
	if r.NextRunDate.After(today) {
		return false
	}
	if r.EndDate != nil && r.NextRunDate.After(store.Day(*r.EndDate)) {
		return false
	}
	if r.MaxOccurrences != nil && r.OccurrencesCount >= *r.MaxOccurrences {
		return false
	}
	return true
}

// NextRunDate returns the run date after r.NextRunDate. Month steps clamp
// to the last day of the target month.
func NextRunDate(r model.RecurringTransaction) (time.Time, error) {
	return advance(r.NextRunDate, r.Frequency, r.Interval)
}

func advance(from time.Time, freq model.Frequency, interval int) (time.Time, error) {
	if interval < 1 {
		return time.Time{}, fmt.Errorf("interval must be at least 1, got %d", interval)
	}
	from = store.Day(from)
	switch freq {
	case model.FrequencyDaily:
		return from.AddDate(0, 0, interval), nil
	case model.FrequencyWeekly:
		return from.AddDate(0, 0, 7*interval), nil
	case model.FrequencyMonthly:
		return addMonths(from, interval), nil
	case model.FrequencyQuarterly:
		return addMonths(from, 3*interval), nil
	case model.FrequencyYearly:
		return addMonths(from, 12*interval), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", model.ErrUnknownFrequency, freq)
	}
}

func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC)
}

// finished reports whether r has no runs left after its current state.
func finished(r model.RecurringTransaction) bool {
	if r.MaxOccurrences != nil && r.OccurrencesCount >= *r.MaxOccurrences {
		return true
	}
	return r.EndDate != nil && r.NextRunDate.After(store.Day(*r.EndDate))
}
