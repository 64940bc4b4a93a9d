package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"tally/internal/engine"
	"tally/internal/family"
	"tally/internal/record"
)

// AddOptions holds flags for the add command.
type AddOptions struct {
	*RootOptions
	Category string
	Note     string
	Date     string
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add <amount>",
		Short: "Record a ledger entry",
		Long: `Record a ledger entry. Negative amounts are expenses, positive income.
The entry is applied locally first; a remote failure leaves it visible and
reports the error.

Negative amounts need the flag terminator: tally add -- -12.50

Example:
  tally add --category groceries --note "market" -- -12.50
  tally add 1500 --category salary --date 2026-08-01`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Category, "category", "c", "", "entry category")
	cmd.Flags().StringVarP(&opts.Note, "note", "n", "", "free-form note")
	cmd.Flags().StringVar(&opts.Date, "date", "", "entry date YYYY-MM-DD (default: today)")

	return cmd
}

func runAdd(opts *AddOptions, cmd *cobra.Command, rawAmount string) error {
	amount, err := parseAmount(rawAmount)
	if err != nil {
		return err
	}
	ts, err := parseDate(opts.Date)
	if err != nil {
		return err
	}

	return runCommand(opts.RootOptions, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
		if err := app.Load(ctx); err != nil {
			return err
		}

		entry := family.NewEntry(ts, amount, opts.Category, opts.Note)
		created, err := app.Set.Ledger().Create(ctx, entry)
		if err != nil {
			// The optimistic copy is already applied; tell the user the
			// remote commit failed but do not pretend the entry is gone.
			_ = out.Error(string(mutationCode(err)), err.Error())
			return NewExitError(ExitFailure, "entry saved locally, remote commit failed")
		}

		// An expense may have pushed a budget over a threshold.
		alerts := 0
		if amount.IsNegative() {
			for _, b := range app.Set.Budgets().Container().Snapshot() {
				if b.Str(record.FieldCategory) != opts.Category {
					continue
				}
				if app.Set.Alerts.CheckBudget(ctx, b) {
					alerts++
				}
			}
		}

		if out.JSON() {
			return out.Success(map[string]any{
				"id":       created.ID,
				"amount":   amount.String(),
				"category": opts.Category,
				"date":     created.Timestamp.Format("2006-01-02"),
				"alerts":   alerts,
			})
		}
		fmt.Fprintf(out.Writer, "recorded %s", out.Money(amount))
		if opts.Category != "" {
			fmt.Fprintf(out.Writer, " (%s)", opts.Category)
		}
		fmt.Fprintln(out.Writer)
		if alerts > 0 {
			fmt.Fprintf(out.Writer, "%d budget alert(s) raised, see: tally alerts\n", alerts)
		}
		return nil
	})
}

// mutationCode extracts the engine error code for CLI error payloads.
func mutationCode(err error) engine.MutationErrorCode {
	switch {
	case engine.IsConflict(err):
		return engine.ErrCodeConflict
	case engine.IsNotFound(err):
		return engine.ErrCodeNotFound
	case engine.IsUnsettled(err):
		return engine.ErrCodeUnsettled
	default:
		return engine.ErrCodeRemoteRejected
	}
}
