package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type Period string

const (
	Weekly  Period = "week"
	Monthly Period = "month"
	Yearly  Period = "year"
)

func (p Period) Valid() bool {
	return p == Weekly || p == Monthly || p == Yearly
}

// Bucket aggregates income and expense over [Start, End).
type Bucket struct {
	Label   string
	Start   time.Time
	End     time.Time
	Income  decimal.Decimal
	Expense decimal.Decimal
}

// Stats is a chart-ready series plus the transactions it was built from.
type Stats struct {
	Period       Period
	Buckets      []Bucket
	Transactions []Transaction
}
