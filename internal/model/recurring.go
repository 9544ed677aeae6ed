package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Frequency is the unit a recurring template advances by.
type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

// EntrySpec is one line of a stored transaction template.
type EntrySpec struct {
	AccountID    int64           `json:"account_id"`
	DebitAmount  decimal.Decimal `json:"debit_amount"`
	CreditAmount decimal.Decimal `json:"credit_amount"`
	Description  string          `json:"description,omitempty"`
}

// TransactionTemplate is the blueprint stored as template_json.
type TransactionTemplate struct {
	Description string          `json:"description"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	CostCenter  string          `json:"cost_center,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	Entries     []EntrySpec     `json:"entries"`
}

// RecurringTransaction generates transactions on a schedule.
type RecurringTransaction struct {
	ID               int64
	Name             string
	Frequency        Frequency
	Interval         int
	StartDate        time.Time
	EndDate          *time.Time
	NextRunDate      time.Time
	MaxOccurrences   *int
	OccurrencesCount int
	IsActive         bool
	Template         TransactionTemplate
	CreatedBy        Actor
}

// RunStatus is the outcome of one recurring run.
type RunStatus string

const (
	RunStatusOK     RunStatus = "ok"
	RunStatusFailed RunStatus = "failed"
)

// RecurringRun is one history row written by the batch driver.
type RecurringRun struct {
	ID            int64
	BatchID       string
	TemplateID    int64
	RunAt         time.Time
	Status        RunStatus
	TransactionID *int64
	Error         string
}
