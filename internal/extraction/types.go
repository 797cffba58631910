package extraction

import "time"

// Transaction is one extracted statement line item, still unvalidated and
// unpersisted.
type Transaction struct {
	Date        time.Time
	Description string
	Amount      float64 // signed: negative for debits
	IsDebit     bool
	Balance     *float64
	Raw         map[string]interface{}
}

// Result is the merged outcome of all extraction units of one document.
type Result struct {
	BankName     string
	PeriodStart  *time.Time
	PeriodEnd    *time.Time
	Transactions []Transaction
}

// chunkPayload is the structured response of a single extraction unit.
type chunkPayload struct {
	BankName     *string          `json:"bank_name"`
	PeriodStart  *string          `json:"period_start"`
	PeriodEnd    *string          `json:"period_end"`
	Transactions []rawTransaction `json:"transactions"`
}

type rawTransaction struct {
	Date        string   `json:"date"`
	Description string   `json:"description"`
	Amount      *float64 `json:"amount"`
	Type        string   `json:"type"`
	Balance     *float64 `json:"balance"`
}
