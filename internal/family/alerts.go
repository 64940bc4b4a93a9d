package family

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/dedupe"
	"tally/internal/engine"
	"tally/internal/record"
)

// thresholdRatio is the spending ratio that triggers an early warning before
// a budget is exceeded.
var thresholdRatio = decimal.RequireFromString("0.8")

// AlertOptions configures the alert subsystem.
type AlertOptions struct {
	Ledger        *engine.Engine
	Budgets       *engine.Engine
	Notifications *engine.Engine
	Guard         *dedupe.SessionGuard
	Logger        *slog.Logger

	// Now overrides the wall clock. Used by tests.
	Now func() time.Time
}

// Alerts derives budget notifications from ledger spending. An alert is
// created at most once per (budget, month) within a session; the guard keys
// are never persisted, so a new run may re-create an alert the remote side
// deduplicates or the user already dismissed.
type Alerts struct {
	ledger        *engine.Engine
	budgets       *engine.Engine
	notifications *engine.Engine
	guard         *dedupe.SessionGuard
	log           *slog.Logger
	now           func() time.Time
}

// NewAlerts creates the alert subsystem over already-built engines.
func NewAlerts(opts AlertOptions) *Alerts {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Guard == nil {
		opts.Guard = dedupe.NewSessionGuard()
	}
	return &Alerts{
		ledger:        opts.Ledger,
		budgets:       opts.Budgets,
		notifications: opts.Notifications,
		guard:         opts.Guard,
		log:           opts.Logger,
		now:           opts.Now,
	}
}

// CheckBudget evaluates one budget against current ledger spending and
// creates at most one alert per (budget, month) per session. Returns true
// when an alert was created.
//
// The check is driven from published state, so callers run it after a load
// or a mutation, not on a timer.
func (a *Alerts) CheckBudget(ctx context.Context, b record.Record) bool {
	limit, ok := b.Amount(record.FieldLimit)
	if !ok || !limit.IsPositive() {
		return false
	}
	ratio := BudgetProgress(b, a.ledger.Container().Snapshot())

	var kind string
	switch {
	case ratio.GreaterThanOrEqual(decimal.New(1, 0)):
		kind = KindBudgetExceeded
	case ratio.GreaterThanOrEqual(thresholdRatio):
		kind = KindBudgetThreshold
	default:
		return false
	}

	month := BudgetMonth(b)
	if !a.guard.ShouldProcess(dedupe.Key(b.ID, month)) {
		return false
	}

	alert := NewAlert(a.now().UTC(), kind, b.ID, month, alertMessage(kind, b, month))
	if _, err := a.notifications.Create(ctx, alert); err != nil {
		// The optimistic copy is already visible; the remote commit retries
		// through normal reconciliation paths.
		a.log.Warn("alert commit failed", "budget", b.ID, "month", month, "error", err)
	}
	a.log.Debug("alert created", "budget", b.ID, "month", month, "kind", kind)
	return true
}

// Check runs the batch evaluation over every budget, at most once per
// session activation. Returns the number of alerts created.
func (a *Alerts) Check(ctx context.Context) int {
	if !a.guard.BatchOnce() {
		return 0
	}
	created := 0
	for _, b := range a.budgets.Container().Snapshot() {
		if a.CheckBudget(ctx, b) {
			created++
		}
	}
	return created
}

func alertMessage(kind string, b record.Record, month string) string {
	category := b.Str(record.FieldCategory)
	if kind == KindBudgetExceeded {
		return fmt.Sprintf("budget for %s exceeded in %s", category, month)
	}
	return fmt.Sprintf("budget for %s is above 80%% in %s", category, month)
}
