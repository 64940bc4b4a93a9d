package family

import (
	"time"

	"tally/internal/record"
)

// Notification kinds.
const (
	KindBudgetThreshold = "budget_threshold"
	KindBudgetExceeded  = "budget_exceeded"
)

// NewAlert builds an unread derived notification. sourceID and period carry
// the idempotency identity: the budget that triggered it and its month.
func NewAlert(ts time.Time, kind, sourceID, period, message string) record.Record {
	r := record.New(ts)
	r.SetStr(record.FieldKind, kind)
	r.SetStr(record.FieldSourceID, sourceID)
	r.SetStr(record.FieldPeriod, period)
	r.SetStr(record.FieldMessage, message)
	r.SetFlag(record.FieldRead, false)
	return r
}

// Unread filters notifications that have not been read.
func Unread(items []record.Record) []record.Record {
	out := make([]record.Record, 0, len(items))
	for _, r := range items {
		if !r.Flag(record.FieldRead) {
			out = append(out, r)
		}
	}
	return out
}

// MarkRead returns a copy flagged read, ready for the engine's update.
func MarkRead(n record.Record) record.Record {
	out := n.Clone()
	out.SetFlag(record.FieldRead, true)
	return out
}
