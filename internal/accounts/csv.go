package accounts

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledger/internal/model"
)

// ChartEntry is one row of a chart of accounts, with the parent named by code.
type ChartEntry struct {
	model.Account
	ParentCode string
}

const (
	numFields     = 8
	colCode       = 0
	colName       = 1
	colType       = 2
	colSubtype    = 3
	colParentCode = 4
	colCurrency   = 5
	colOpening    = 6
	colActive     = 7
)

var header = []string{"code", "name", "type", "subtype", "parent_code", "currency", "opening_balance", "is_active"}

// ReadAccounts reads a chart-of-accounts CSV.
func ReadAccounts(r io.Reader) ([]ChartEntry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading accounts CSV: %w", err)
	}

	if len(records) == 0 {
		return nil, nil
	}

	var entries []ChartEntry
	for i, rec := range records[1:] {
		e, err := UnmarshalAccount(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// WriteAccounts writes a chart-of-accounts CSV.
func WriteAccounts(w io.Writer, entries []ChartEntry) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, e := range entries {
		if err := cw.Write(MarshalAccount(e)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalAccount converts a ChartEntry to a CSV row.
func MarshalAccount(e ChartEntry) []string {
	row := make([]string, numFields)
	row[colCode] = e.Code
	row[colName] = e.Name
	row[colType] = string(e.Type)
	row[colSubtype] = e.Subtype
	row[colParentCode] = e.ParentCode
	row[colCurrency] = e.Currency
	row[colOpening] = e.OpeningBalance.StringFixed(2)
	row[colActive] = strconv.FormatBool(e.IsActive)
	return row
}

// UnmarshalAccount converts a CSV row to a ChartEntry.
func UnmarshalAccount(record []string) (ChartEntry, error) {
	if len(record) != numFields {
		return ChartEntry{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	t := model.AccountType(record[colType])
	if !t.Valid() {
		return ChartEntry{}, &model.InvalidAccountTypeError{Type: record[colType]}
	}

	opening := decimal.Zero
	if record[colOpening] != "" {
		var err error
		opening, err = decimal.NewFromString(record[colOpening])
		if err != nil {
			return ChartEntry{}, fmt.Errorf("parsing opening_balance %q: %w", record[colOpening], err)
		}
	}

	active := true
	if record[colActive] != "" {
		var err error
		active, err = strconv.ParseBool(record[colActive])
		if err != nil {
			return ChartEntry{}, fmt.Errorf("parsing is_active %q: %w", record[colActive], err)
		}
	}

	return ChartEntry{
		Account: model.Account{
			Code:           record[colCode],
			Name:           record[colName],
			Type:           t,
			Subtype:        record[colSubtype],
			Currency:       record[colCurrency],
			OpeningBalance: opening,
			CurrentBalance: opening,
			IsActive:       active,
		},
		ParentCode: record[colParentCode],
	}, nil
}
