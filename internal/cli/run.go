package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// runCommand opens the app, builds the formatter, and runs fn with the
// command's context. Every command funnels through here.
func runCommand(opts *RootOptions, cmd *cobra.Command, fn func(context.Context, *App, *OutputFormatter) error) error {
	app, err := opts.openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	out := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, app, out)
}

// parseAmount parses a decimal money amount.
func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, NewExitError(ExitCommandError, fmt.Sprintf("invalid amount %q", s))
	}
	return d, nil
}

// parseDate parses a YYYY-MM-DD day; empty means now.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, NewExitError(ExitCommandError, fmt.Sprintf("invalid date %q, want YYYY-MM-DD", s))
	}
	return t, nil
}

// parseMonth parses a YYYY-MM month; empty means the current month.
func parseMonth(s string) (time.Time, error) {
	if s == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return time.Time{}, NewExitError(ExitCommandError, fmt.Sprintf("invalid month %q, want YYYY-MM", s))
	}
	return t, nil
}
