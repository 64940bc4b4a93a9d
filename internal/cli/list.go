package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"tally/internal/family"
	"tally/internal/record"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	From     string
	To       string
	Category string
	Totals   bool
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ledger entries",
		Long: `List ledger entries from the local cache, reconciling with the remote in
the background. Filters combine.

Example:
  tally list --from 2026-08-01 --to 2026-09-01
  tally list --category groceries
  tally list --totals`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "", "start date YYYY-MM-DD (inclusive)")
	cmd.Flags().StringVar(&opts.To, "to", "", "end date YYYY-MM-DD (exclusive)")
	cmd.Flags().StringVarP(&opts.Category, "category", "c", "", "filter by category")
	cmd.Flags().BoolVar(&opts.Totals, "totals", false, "per-month income/expense totals instead of entries")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	var from, to time.Time
	var err error
	if opts.From != "" {
		if from, err = parseDate(opts.From); err != nil {
			return err
		}
	}
	if opts.To != "" {
		if to, err = parseDate(opts.To); err != nil {
			return err
		}
	}

	return runCommand(opts.RootOptions, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
		eng := app.Set.Ledger()
		if err := eng.LoadCacheFirst(ctx); err != nil {
			return WrapExitError(ExitFailure, "loading ledger", err)
		}

		items := eng.Container().Snapshot()
		items = family.ByDateRange(items, from, to)
		if opts.Category != "" {
			items = family.ByCategory(items, opts.Category)
		}

		if opts.Totals {
			return renderTotals(out, family.MonthTotals(items))
		}
		return renderEntries(out, items)
	})
}

func renderEntries(out *OutputFormatter, items []record.Record) error {
	if out.JSON() {
		rows := make([]map[string]any, 0, len(items))
		for _, r := range items {
			d, _ := r.Amount(record.FieldAmount)
			rows = append(rows, map[string]any{
				"id":       r.ID,
				"date":     r.Timestamp.Format("2006-01-02"),
				"amount":   d.String(),
				"category": r.Str(record.FieldCategory),
				"note":     r.Str(record.FieldNote),
			})
		}
		return out.Success(rows)
	}

	if len(items) == 0 {
		fmt.Fprintln(out.Writer, "no entries")
		return nil
	}
	w := tabwriter.NewWriter(out.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tAMOUNT\tCATEGORY\tNOTE")
	for _, r := range items {
		d, _ := r.Amount(record.FieldAmount)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			r.Timestamp.Format("2006-01-02"),
			out.Money(d),
			r.Str(record.FieldCategory),
			r.Str(record.FieldNote))
	}
	return w.Flush()
}

func renderTotals(out *OutputFormatter, totals []family.MonthTotal) error {
	if out.JSON() {
		rows := make([]map[string]any, 0, len(totals))
		for _, mt := range totals {
			rows = append(rows, map[string]any{
				"month":   mt.Month,
				"income":  mt.Income.String(),
				"expense": mt.Expense.String(),
				"net":     mt.Net().String(),
			})
		}
		return out.Success(rows)
	}

	if len(totals) == 0 {
		fmt.Fprintln(out.Writer, "no entries")
		return nil
	}
	w := tabwriter.NewWriter(out.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MONTH\tINCOME\tEXPENSE\tNET")
	for _, mt := range totals {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			mt.Month, out.Money(mt.Income), out.Money(mt.Expense), out.Money(mt.Net()))
	}
	return w.Flush()
}
