package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"tally/internal/family"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the dashboard summary",
		Long: `Show the dashboard: ledger totals from the incrementally maintained
aggregate, plus per-family record counts and unread alerts.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	return runCommand(opts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
		if err := app.Load(ctx); err != nil {
			return err
		}

		agg := app.Set.Ledger().Aggregate()
		unread := len(family.Unread(app.Set.Notifications().Container().Snapshot()))

		if out.JSON() {
			return out.Success(map[string]any{
				"entries":       agg.Count,
				"income":        agg.Income.String(),
				"expense":       agg.Expense.String(),
				"net":           agg.Net().String(),
				"budgets":       app.Set.Budgets().Container().Len(),
				"goals":         app.Set.Goals().Container().Len(),
				"unread_alerts": unread,
			})
		}

		fmt.Fprintf(out.Writer, "entries: %d\n", agg.Count)
		fmt.Fprintf(out.Writer, "income:  %s\n", out.Money(agg.Income))
		fmt.Fprintf(out.Writer, "expense: %s\n", out.Money(agg.Expense))
		fmt.Fprintf(out.Writer, "net:     %s\n", out.Money(agg.Net()))
		fmt.Fprintf(out.Writer, "budgets: %d\n", app.Set.Budgets().Container().Len())
		fmt.Fprintf(out.Writer, "goals:   %d\n", app.Set.Goals().Container().Len())
		if unread > 0 {
			fmt.Fprintf(out.Writer, "alerts:  %d unread, see: tally alerts\n", unread)
		}
		return nil
	})
}
