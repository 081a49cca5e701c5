package services

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"wallet/internal/core"
	"wallet/internal/store"
)

// StatsService builds income/expense series for charts.
type StatsService struct {
	txs store.TransactionStore
	now func() time.Time
	loc *time.Location
}

func NewStatsService(txs store.TransactionStore) *StatsService {
	return &StatsService{txs: txs, now: time.Now, loc: time.UTC}
}

// Stats returns the buckets for period along with the transactions read.
// Weekly covers the last 7 days, monthly the last 12 months, yearly every
// year from the user's first transaction to now.
func (s *StatsService) Stats(ctx context.Context, userID string, p core.Period) (core.Stats, error) {
	if !p.Valid() {
		return core.Stats{}, core.NewError(core.KindValidation, nil, "unknown period %q", p)
	}
	now := s.now().In(s.loc)

	var q store.TransactionQuery
	q.UserID = userID
	q.Desc = true
	var buckets []core.Bucket
	switch p {
	case core.Weekly:
		buckets = weekBuckets(now)
	case core.Monthly:
		buckets = monthBuckets(now)
	}
	if len(buckets) > 0 {
		q.From = buckets[0].Start
		q.To = buckets[len(buckets)-1].End.Add(-time.Nanosecond)
	}

	txs, err := s.txs.ListTransactions(ctx, q)
	if err != nil {
		return core.Stats{}, core.Unavailable(err, "list transactions")
	}

	if p == core.Yearly {
		first := now
		for _, t := range txs {
			if t.Date.Before(first) {
				first = t.Date
			}
		}
		buckets = yearBuckets(first.In(s.loc).Year(), now.Year(), s.loc)
	}

	for _, t := range txs {
		d := t.Date.In(s.loc)
		for i := range buckets {
			if d.Before(buckets[i].Start) || !d.Before(buckets[i].End) {
				continue
			}
			switch t.Type {
			case core.Income:
				buckets[i].Income = buckets[i].Income.Add(t.Amount)
			case core.Expense:
				buckets[i].Expense = buckets[i].Expense.Add(t.Amount)
			}
			break
		}
	}

	return core.Stats{Period: p, Buckets: buckets, Transactions: txs}, nil
}

func newBucket(label string, start, end time.Time) core.Bucket {
	return core.Bucket{Label: label, Start: start, End: end, Income: decimal.Zero, Expense: decimal.Zero}
}

// weekBuckets returns one bucket per day, today last.
func weekBuckets(now time.Time) []core.Bucket {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	out := make([]core.Bucket, 0, 7)
	for i := 6; i >= 0; i-- {
		start := today.AddDate(0, 0, -i)
		out = append(out, newBucket(start.Format("Mon"), start, start.AddDate(0, 0, 1)))
	}
	return out
}

// monthBuckets returns one bucket per month, the current month last.
func monthBuckets(now time.Time) []core.Bucket {
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	out := make([]core.Bucket, 0, 12)
	for i := 11; i >= 0; i-- {
		start := month.AddDate(0, -i, 0)
		out = append(out, newBucket(start.Format("Jan 06"), start, start.AddDate(0, 1, 0)))
	}
	return out
}

func yearBuckets(first, last int, loc *time.Location) []core.Bucket {
	if first > last {
		first = last
	}
	out := make([]core.Bucket, 0, last-first+1)
	for y := first; y <= last; y++ {
		start := time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
		out = append(out, newBucket(strconv.Itoa(y), start, start.AddDate(1, 0, 0)))
	}
	return out
}

// ParsePeriod accepts the path forms used by the API.
func ParsePeriod(s string) (core.Period, error) {
	switch p := core.Period(s); p {
	case core.Weekly, core.Monthly, core.Yearly:
		return p, nil
	}
	switch s {
	case "weekly":
		return core.Weekly, nil
	case "monthly":
		return core.Monthly, nil
	case "yearly":
		return core.Yearly, nil
	}
	return "", core.NewError(core.KindValidation, nil, "unknown period %q", s)
}
