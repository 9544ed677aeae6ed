package id

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ReferencePrefix starts every generated transaction reference.
const ReferencePrefix = "TXN"

const (
	dayFormat = "20060102"
	seqWidth  = 4
)

// FormatReference returns a reference like "TXN-20250115-0001".
func FormatReference(date time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%0*d", ReferencePrefix, date.Format(dayFormat), seqWidth, seq)
}

// DayKey returns the per-date counter key ("20250115") for date.
func DayKey(date time.Time) string {
	return date.Format(dayFormat)
}

// ParseReference parses "TXN-20250115-0001" into its date and sequence.
func ParseReference(ref string) (date time.Time, seq int, err error) {
	parts := strings.SplitN(ref, "-", 3)
	if len(parts) != 3 || parts[0] != ReferencePrefix {
		return time.Time{}, 0, fmt.Errorf("invalid reference format: %q", ref)
	}

	date, err = time.Parse(dayFormat, parts[1])
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("invalid date in reference %q: %w", ref, err)
	}

	seq, err = strconv.Atoi(parts[2])
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("invalid sequence in reference %q: %w", ref, err)
	}
	if seq < 1 {
		return time.Time{}, 0, fmt.Errorf("invalid sequence in reference %q: must be positive", ref)
	}

	return date, seq, nil
}
