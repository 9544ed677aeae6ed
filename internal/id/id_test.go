package id

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestFormatReference(t *testing.T) {
	tests := []struct {
		date time.Time
		seq  int
		want string
	}{
		{date(2025, 1, 15), 1, "TXN-20250115-0001"},
		{date(2025, 12, 31), 99, "TXN-20251231-0099"},
		{date(2025, 1, 1), 12345, "TXN-20250101-12345"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatReference(tt.date, tt.seq))
	}
}

func TestDayKey(t *testing.T) {
	assert.Equal(t, "20250301", DayKey(date(2025, 3, 1)))
}

func TestParseReference(t *testing.T) {
	d, seq, err := ParseReference("TXN-20250115-0007")
	require.NoError(t, err)
	assert.Equal(t, date(2025, 1, 15), d)
	assert.Equal(t, 7, seq)
}

func TestParseReference_Invalid(t *testing.T) {
	tests := []string{
		"",
		"TXN-20250115",
		"INV-20250115-0001",
		"TXN-2025011X-0001",
		"TXN-20250115-abc",
		"TXN-20250115-0000",
	}
	for _, ref := range tests {
		_, _, err := ParseReference(ref)
		assert.Error(t, err, "ParseReference(%q)", ref)
	}
}

func TestRoundTrip(t *testing.T) {
	ref := FormatReference(date(2024, 2, 29), 42)
	d, seq, err := ParseReference(ref)
	require.NoError(t, err)
	assert.Equal(t, date(2024, 2, 29), d)
	assert.Equal(t, 42, seq)
}
