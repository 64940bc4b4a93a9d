package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tally/internal/family"
	"tally/internal/record"
)

// BudgetOptions holds flags shared by the budget subcommands.
type BudgetOptions struct {
	*RootOptions
	Month string
}

// NewBudgetCommand creates the budget command group.
func NewBudgetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BudgetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Manage monthly category budgets",
	}
	cmd.PersistentFlags().StringVarP(&opts.Month, "month", "m", "", "month YYYY-MM (default: current)")

	set := &cobra.Command{
		Use:   "set <category> <limit>",
		Short: "Set a spending limit for a category",
		Long: `Set a spending limit for one category in one month. Setting a category
that already has a budget for the month replaces its limit.

Example:
  tally budget set groceries 400
  tally budget set transport 80 --month 2026-09`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBudgetSet(opts, cmd, args[0], args[1])
		},
	}

	list := &cobra.Command{
		Use:           "list",
		Short:         "Show budgets and spending progress",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBudgetList(opts, cmd)
		},
	}

	cmd.AddCommand(set, list)
	return cmd
}

func runBudgetSet(opts *BudgetOptions, cmd *cobra.Command, category, rawLimit string) error {
	limit, err := parseAmount(rawLimit)
	if err != nil {
		return err
	}
	if !limit.IsPositive() {
		return NewExitError(ExitCommandError, "limit must be positive")
	}
	month, err := parseMonth(opts.Month)
	if err != nil {
		return err
	}

	return runCommand(opts.RootOptions, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
		eng := app.Set.Budgets()
		if err := eng.LoadCacheFirst(ctx); err != nil {
			return WrapExitError(ExitFailure, "loading budgets", err)
		}

		monthKey := month.Format("2006-01")
		// Replace an existing budget for the same category and month.
		for _, b := range family.ForMonth(eng.Container().Snapshot(), monthKey) {
			if b.Str(record.FieldCategory) != category {
				continue
			}
			updated := b.Clone()
			updated.SetAmount(record.FieldLimit, limit)
			if err := eng.Update(ctx, updated); err != nil {
				return WrapExitError(ExitFailure, "updating budget", err)
			}
			return out.Success(fmt.Sprintf("budget %s %s: limit %s", monthKey, category, out.Money(limit)))
		}

		if _, err := eng.Create(ctx, family.NewBudget(month, category, limit)); err != nil {
			return WrapExitError(ExitFailure, "creating budget", err)
		}
		return out.Success(fmt.Sprintf("budget %s %s: limit %s", monthKey, category, out.Money(limit)))
	})
}

func runBudgetList(opts *BudgetOptions, cmd *cobra.Command) error {
	month, err := parseMonth(opts.Month)
	if err != nil {
		return err
	}

	return runCommand(opts.RootOptions, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
		if err := app.Load(ctx); err != nil {
			return err
		}

		monthKey := month.Format("2006-01")
		budgets := family.ForMonth(app.Set.Budgets().Container().Snapshot(), monthKey)
		ledger := app.Set.Ledger().Container().Snapshot()

		if out.JSON() {
			rows := make([]map[string]any, 0, len(budgets))
			for _, b := range budgets {
				limit, _ := b.Amount(record.FieldLimit)
				rows = append(rows, map[string]any{
					"month":    monthKey,
					"category": b.Str(record.FieldCategory),
					"limit":    limit.String(),
					"spent":    family.Spent(b, ledger).String(),
					"progress": family.BudgetProgress(b, ledger).StringFixed(4),
				})
			}
			return out.Success(rows)
		}

		if len(budgets) == 0 {
			fmt.Fprintf(out.Writer, "no budgets for %s\n", monthKey)
			return nil
		}
		w := tabwriter.NewWriter(out.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CATEGORY\tLIMIT\tSPENT\tUSED")
		for _, b := range budgets {
			limit, _ := b.Amount(record.FieldLimit)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				b.Str(record.FieldCategory),
				out.Money(limit),
				out.Money(family.Spent(b, ledger)),
				out.Percent(family.BudgetProgress(b, ledger)))
		}
		return w.Flush()
	})
}
