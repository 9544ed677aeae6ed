package accounts

import "github.com/cleared-dev/ledger/internal/model"

// DefaultChart returns the built-in chart of accounts for an entity type.
// Parents are referenced by code and appear before their children.
func DefaultChart(entityType, currency string) []ChartEntry {
	var chart []ChartEntry
	switch entityType {
	case "small_business":
		chart = smallBusinessChart()
	default:
		chart = smallBusinessChart()
	}
	for i := range chart {
		chart[i].Currency = currency
	}
	return chart
}

func sys(code, name string, t model.AccountType, parent string) ChartEntry {
	return ChartEntry{
		Account:    model.Account{Code: code, Name: name, Type: t, IsActive: true, IsSystem: true},
		ParentCode: parent,
	}
}

func smallBusinessChart() []ChartEntry {
	return []ChartEntry{
		sys("1000", "Assets", model.AccountTypeAsset, ""),
		sys("1010", "Cash", model.AccountTypeAsset, "1000"),
		sys("1020", "Bank", model.AccountTypeAsset, "1000"),
		sys("1100", "Accounts Receivable", model.AccountTypeAsset, "1000"),
		sys("2000", "Liabilities", model.AccountTypeLiability, ""),
		sys("2010", "Accounts Payable", model.AccountTypeLiability, "2000"),
		sys("2100", "Credit Card", model.AccountTypeLiability, "2000"),
		sys("3000", "Equity", model.AccountTypeEquity, ""),
		sys("3010", "Owner's Equity", model.AccountTypeEquity, "3000"),
		sys("3020", "Retained Earnings", model.AccountTypeEquity, "3000"),
		sys("4000", "Revenue", model.AccountTypeRevenue, ""),
		sys("4010", "Service Revenue", model.AccountTypeRevenue, "4000"),
		sys("4020", "Product Revenue", model.AccountTypeRevenue, "4000"),
		sys("5000", "Expenses", model.AccountTypeExpense, ""),
		sys("5010", "Rent", model.AccountTypeExpense, "5000"),
		sys("5020", "Software & SaaS", model.AccountTypeExpense, "5000"),
		sys("5030", "Office Supplies", model.AccountTypeExpense, "5000"),
		sys("5040", "Professional Services", model.AccountTypeExpense, "5000"),
	}
}
