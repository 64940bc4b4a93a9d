package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"tally/internal/family"
	"tally/internal/record"
)

// NewGoalCommand creates the goal command group.
func NewGoalCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "goal",
		Short: "Manage savings goals",
	}

	set := &cobra.Command{
		Use:   "set <name> <target>",
		Short: "Create a savings goal",
		Long: `Create a savings goal with a target amount.

Example:
  tally goal set vacation 1200`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGoalSet(rootOpts, cmd, args[0], args[1])
		},
	}

	add := &cobra.Command{
		Use:   "add <name> <amount>",
		Short: "Add savings toward a goal",
		Long: `Fold an amount into a goal's saved total.

Example:
  tally goal add vacation 150`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGoalAdd(rootOpts, cmd, args[0], args[1])
		},
	}

	list := &cobra.Command{
		Use:           "list",
		Short:         "Show goals and progress",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGoalList(rootOpts, cmd)
		},
	}

	cmd.AddCommand(set, add, list)
	return cmd
}

func runGoalSet(opts *RootOptions, cmd *cobra.Command, name, rawTarget string) error {
	target, err := parseAmount(rawTarget)
	if err != nil {
		return err
	}
	if !target.IsPositive() {
		return NewExitError(ExitCommandError, "target must be positive")
	}

	return runCommand(opts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
		eng := app.Set.Goals()
		if err := eng.LoadCacheFirst(ctx); err != nil {
			return WrapExitError(ExitFailure, "loading goals", err)
		}
		if _, ok := findGoal(eng.Container().Snapshot(), name); ok {
			return NewExitError(ExitFailure, fmt.Sprintf("goal %q already exists", name))
		}

		goal := family.NewGoal(time.Now().UTC(), name, target, decimal.Zero)
		if _, err := eng.Create(ctx, goal); err != nil {
			return WrapExitError(ExitFailure, "creating goal", err)
		}
		return out.Success(fmt.Sprintf("goal %s: target %s", name, out.Money(target)))
	})
}

func runGoalAdd(opts *RootOptions, cmd *cobra.Command, name, rawAmount string) error {
	amount, err := parseAmount(rawAmount)
	if err != nil {
		return err
	}

	return runCommand(opts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
		eng := app.Set.Goals()
		if err := eng.LoadCacheFirst(ctx); err != nil {
			return WrapExitError(ExitFailure, "loading goals", err)
		}
		goal, ok := findGoal(eng.Container().Snapshot(), name)
		if !ok {
			return NewExitError(ExitFailure, fmt.Sprintf("no goal %q", name))
		}

		if err := eng.Update(ctx, family.AddToGoal(goal, amount)); err != nil {
			return WrapExitError(ExitFailure, "updating goal", err)
		}
		updated, _ := eng.Container().Get(goal.ID)
		saved, _ := updated.Amount(record.FieldSaved)
		return out.Success(fmt.Sprintf("goal %s: saved %s (%s)",
			name, out.Money(saved), out.Percent(family.GoalProgress(updated))))
	})
}

func runGoalList(opts *RootOptions, cmd *cobra.Command) error {
	return runCommand(opts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
		eng := app.Set.Goals()
		if err := eng.LoadCacheFirst(ctx); err != nil {
			return WrapExitError(ExitFailure, "loading goals", err)
		}
		goals := eng.Container().Snapshot()

		if out.JSON() {
			rows := make([]map[string]any, 0, len(goals))
			for _, g := range goals {
				target, _ := g.Amount(record.FieldTarget)
				saved, _ := g.Amount(record.FieldSaved)
				rows = append(rows, map[string]any{
					"name":     g.Str(record.FieldName),
					"target":   target.String(),
					"saved":    saved.String(),
					"progress": family.GoalProgress(g).StringFixed(4),
				})
			}
			return out.Success(rows)
		}

		if len(goals) == 0 {
			fmt.Fprintln(out.Writer, "no goals")
			return nil
		}
		w := tabwriter.NewWriter(out.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tTARGET\tSAVED\tPROGRESS")
		for _, g := range goals {
			target, _ := g.Amount(record.FieldTarget)
			saved, _ := g.Amount(record.FieldSaved)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				g.Str(record.FieldName),
				out.Money(target),
				out.Money(saved),
				out.Percent(family.GoalProgress(g)))
		}
		return w.Flush()
	})
}

// findGoal locates a goal by name in published state.
func findGoal(goals []record.Record, name string) (record.Record, bool) {
	for _, g := range goals {
		if g.Str(record.FieldName) == name {
			return g, true
		}
	}
	return record.Record{}, false
}
