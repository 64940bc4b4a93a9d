package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tally/internal/family"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile every family with the remote store",
		Long: `Fetch the authoritative collections and replace local state and cache
where they differ. Unlike the background reconciliation other commands
dispatch, sync runs in the foreground and reports per-family outcomes.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(rootOpts, cmd)
		},
	}
}

func runSync(opts *RootOptions, cmd *cobra.Command) error {
	return runCommand(opts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
		if err := app.Load(ctx); err != nil {
			return err
		}

		type syncResult struct {
			Family  string `json:"family"`
			Outcome string `json:"outcome"`
			Error   string `json:"error,omitempty"`
		}
		var results []syncResult
		failed := false
		for _, name := range []string{family.Ledger, family.Budgets, family.Goals, family.Notifications} {
			outcome, err := app.Set.Engine(name).Reconcile(ctx)
			res := syncResult{Family: name, Outcome: outcome.String()}
			if err != nil {
				res.Error = err.Error()
				failed = true
			}
			results = append(results, res)
		}

		if out.JSON() {
			if err := out.Success(results); err != nil {
				return err
			}
		} else {
			w := tabwriter.NewWriter(out.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FAMILY\tOUTCOME")
			for _, res := range results {
				status := res.Outcome
				if res.Error != "" {
					status = "error: " + res.Error
				}
				fmt.Fprintf(w, "%s\t%s\n", res.Family, status)
			}
			if err := w.Flush(); err != nil {
				return err
			}
		}

		if failed {
			return NewExitError(ExitFailure, "one or more families failed to sync")
		}
		return nil
	})
}
