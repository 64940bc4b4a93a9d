package family

import (
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/record"
)

// NewGoal builds a savings goal.
func NewGoal(ts time.Time, name string, target, saved decimal.Decimal) record.Record {
	r := record.New(ts)
	r.SetStr(record.FieldName, name)
	r.SetAmount(record.FieldTarget, target)
	r.SetAmount(record.FieldSaved, saved)
	return r
}

// GoalProgress returns saved/target as a ratio, zero when the goal has no
// positive target. A ratio above one means the goal is overfunded.
func GoalProgress(g record.Record) decimal.Decimal {
	target, ok := g.Amount(record.FieldTarget)
	if !ok || !target.IsPositive() {
		return decimal.Zero
	}
	saved, _ := g.Amount(record.FieldSaved)
	return saved.Div(target)
}

// AddToGoal returns a copy of the goal with amount folded into its saved
// total, ready to pass to the engine's update.
func AddToGoal(g record.Record, amount decimal.Decimal) record.Record {
	out := g.Clone()
	saved, _ := g.Amount(record.FieldSaved)
	out.SetAmount(record.FieldSaved, saved.Add(amount))
	return out
}
