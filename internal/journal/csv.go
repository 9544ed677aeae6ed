package journal

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cleared-dev/ledger/internal/model"
)

// Header is the CSV header written by ExportEntries.
const Header = "reference,date,type,account_id,description,debit,credit,currency,exchange_rate,locked,cost_center"

const (
	numFields   = 11
	dateFormat  = "2006-01-02"
	colRef      = 0
	colDate     = 1
	colType     = 2
	colAcctID   = 3
	colDesc     = 4
	colDebit    = 5
	colCredit   = 6
	colCurrency = 7
	colRate     = 8
	colLocked   = 9
	colCost     = 10
)

// ExportEntries writes one CSV row per entry of txns.
func ExportEntries(w io.Writer, txns []model.Transaction) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, txn := range txns {
		for i, e := range txn.Entries {
			if err := cw.Write(MarshalEntry(txn, e)); err != nil {
				return fmt.Errorf("writing %s line %d: %w", txn.ReferenceNumber, i+1, err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalEntry converts an entry and its transaction to a CSV row.
func MarshalEntry(txn model.Transaction, e model.Entry) []string {
	row := make([]string, numFields)
	row[colRef] = txn.ReferenceNumber
	row[colDate] = txn.Date.Format(dateFormat)
	row[colType] = string(txn.Type)
	row[colAcctID] = strconv.FormatInt(e.AccountID, 10)
	row[colDesc] = e.Description
	if e.Description == "" {
		row[colDesc] = txn.Description
	}
	row[colDebit] = formatAmount(e.DebitAmount.IsZero(), e.DebitAmount.StringFixed(2))
	row[colCredit] = formatAmount(e.CreditAmount.IsZero(), e.CreditAmount.StringFixed(2))
	row[colCurrency] = txn.Currency
	row[colRate] = txn.ExchangeRate.String()
	row[colLocked] = strconv.FormatBool(txn.IsLocked)
	row[colCost] = txn.CostCenter
	return row
}

func formatAmount(zero bool, s string) string {
	if zero {
		return ""
	}
	return s
}
