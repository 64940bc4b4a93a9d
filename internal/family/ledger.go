package family

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/record"
)

// NewEntry builds a ledger entry. Negative amounts are expenses, positive
// amounts income.
func NewEntry(ts time.Time, amount decimal.Decimal, category, note string) record.Record {
	r := record.New(ts)
	r.SetAmount(record.FieldAmount, amount)
	if category != "" {
		r.SetStr(record.FieldCategory, category)
	}
	if note != "" {
		r.SetStr(record.FieldNote, note)
	}
	return r
}

// ByDateRange filters entries with from <= Timestamp < to. A zero bound is
// open on that side.
func ByDateRange(items []record.Record, from, to time.Time) []record.Record {
	out := make([]record.Record, 0, len(items))
	for _, r := range items {
		if !from.IsZero() && r.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && !r.Timestamp.Before(to) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// ByCategory filters entries with the given category.
func ByCategory(items []record.Record, category string) []record.Record {
	out := make([]record.Record, 0, len(items))
	for _, r := range items {
		if r.Str(record.FieldCategory) == category {
			out = append(out, r)
		}
	}
	return out
}

// MonthTotal aggregates one month's entries.
type MonthTotal struct {
	Month   string
	Income  decimal.Decimal
	Expense decimal.Decimal
}

// Net returns income minus expense for the month.
func (m MonthTotal) Net() decimal.Decimal {
	return m.Income.Sub(m.Expense)
}

// MonthTotals reduces entries to per-month income/expense sums, oldest month
// first. Input order does not matter.
func MonthTotals(items []record.Record) []MonthTotal {
	byMonth := make(map[string]*MonthTotal)
	var order []string
	for _, r := range items {
		month := record.ByMonth(r)
		mt, ok := byMonth[month]
		if !ok {
			mt = &MonthTotal{Month: month, Income: decimal.Zero, Expense: decimal.Zero}
			byMonth[month] = mt
			order = append(order, month)
		}
		d, _ := r.Amount(record.FieldAmount)
		if d.IsNegative() {
			mt.Expense = mt.Expense.Add(d.Abs())
		} else {
			mt.Income = mt.Income.Add(d)
		}
	}
	slices.Sort(order)
	out := make([]MonthTotal, 0, len(order))
	for _, month := range order {
		out = append(out, *byMonth[month])
	}
	return out
}
