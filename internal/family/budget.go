package family

import (
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/record"
)

// NewBudget builds a budget for the month containing ts: a spending limit
// for one category. The timestamp is normalized to the first of the month so
// budgets for one month share a cache partition.
func NewBudget(ts time.Time, category string, limit decimal.Decimal) record.Record {
	ts = ts.UTC()
	r := record.New(time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, time.UTC))
	r.SetStr(record.FieldCategory, category)
	r.SetAmount(record.FieldLimit, limit)
	return r
}

// BudgetMonth returns the YYYY-MM month key of a budget.
func BudgetMonth(b record.Record) string {
	return record.ByMonth(b)
}

// ForMonth filters budgets for one YYYY-MM month key.
func ForMonth(items []record.Record, month string) []record.Record {
	out := make([]record.Record, 0, len(items))
	for _, r := range items {
		if record.ByMonth(r) == month {
			out = append(out, r)
		}
	}
	return out
}

// Spent sums the expenses a budget covers: ledger entries in the budget's
// month and category, as a positive amount.
func Spent(b record.Record, ledger []record.Record) decimal.Decimal {
	month := record.ByMonth(b)
	category := b.Str(record.FieldCategory)
	spent := decimal.Zero
	for _, e := range ledger {
		if record.ByMonth(e) != month || e.Str(record.FieldCategory) != category {
			continue
		}
		d, _ := e.Amount(record.FieldAmount)
		if d.IsNegative() {
			spent = spent.Add(d.Abs())
		}
	}
	return spent
}

// BudgetProgress returns spent/limit as a ratio, zero when the budget has no
// positive limit.
func BudgetProgress(b record.Record, ledger []record.Record) decimal.Decimal {
	limit, ok := b.Amount(record.FieldLimit)
	if !ok || !limit.IsPositive() {
		return decimal.Zero
	}
	return Spent(b, ledger).Div(limit)
}
