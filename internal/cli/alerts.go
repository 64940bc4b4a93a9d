package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tally/internal/family"
	"tally/internal/record"
)

// AlertsOptions holds flags for the alerts command.
type AlertsOptions struct {
	*RootOptions
	MarkRead bool
}

// NewAlertsCommand creates the alerts command.
func NewAlertsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AlertsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Check budgets and show unread alerts",
		Long: `Run the budget threshold check over every budget (once per invocation)
and list unread notifications.

Example:
  tally alerts
  tally alerts --mark-read`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAlerts(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.MarkRead, "mark-read", false, "mark listed alerts as read")

	return cmd
}

func runAlerts(opts *AlertsOptions, cmd *cobra.Command) error {
	return runCommand(opts.RootOptions, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
		if err := app.Load(ctx); err != nil {
			return err
		}

		created := app.Set.Alerts.Check(ctx)
		notes := app.Set.Notifications().Container().Snapshot()
		unread := family.Unread(notes)

		if opts.MarkRead {
			eng := app.Set.Notifications()
			for _, n := range unread {
				if record.IsLocalID(n.ID) {
					// Alerts created this run have not settled yet; they
					// stay unread until a later invocation.
					continue
				}
				if err := eng.Update(ctx, family.MarkRead(n)); err != nil {
					app.log.Warn("marking alert read", "id", n.ID, "error", err)
				}
			}
		}

		if out.JSON() {
			rows := make([]map[string]any, 0, len(unread))
			for _, n := range unread {
				rows = append(rows, map[string]any{
					"id":      n.ID,
					"kind":    n.Str(record.FieldKind),
					"period":  n.Str(record.FieldPeriod),
					"message": n.Str(record.FieldMessage),
				})
			}
			return out.Success(map[string]any{
				"created": created,
				"unread":  rows,
			})
		}

		if len(unread) == 0 {
			fmt.Fprintln(out.Writer, "no unread alerts")
			return nil
		}
		w := tabwriter.NewWriter(out.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PERIOD\tKIND\tMESSAGE")
		for _, n := range unread {
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				n.Str(record.FieldPeriod),
				n.Str(record.FieldKind),
				n.Str(record.FieldMessage))
		}
		return w.Flush()
	})
}
