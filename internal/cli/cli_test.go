package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/keystore"
	"tally/internal/remote"
)

// cliFixture shares a keystore and per-family remotes across command
// invocations, like consecutive runs of the binary against the same local
// database and server.
type cliFixture struct {
	opts    *RootOptions
	kv      *keystore.Memory
	remotes map[string]*remote.Memory
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	f := &cliFixture{
		kv:      keystore.NewMemory(),
		remotes: map[string]*remote.Memory{},
	}
	f.opts = &RootOptions{
		Format: "text",
		// A missing config file means defaults apply.
		Config: filepath.Join(t.TempDir(), "tally.yaml"),
		overrides: overrides{
			kv: f.kv,
			newRemote: func(fam string) (remote.Store, error) {
				if r, ok := f.remotes[fam]; ok {
					return r, nil
				}
				r := remote.NewMemory()
				f.remotes[fam] = r
				return r, nil
			},
		},
	}
	return f
}

// run executes one command invocation and returns its combined output.
func (f *cliFixture) run(t *testing.T, build func(*RootOptions) *cobra.Command, args ...string) (string, error) {
	t.Helper()
	cmd := build(f.opts)
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// mustRun executes one command invocation and fails the test on error.
func (f *cliFixture) mustRun(t *testing.T, build func(*RootOptions) *cobra.Command, args ...string) string {
	t.Helper()
	out, err := f.run(t, build, args...)
	require.NoError(t, err, "command output: %s", out)
	return out
}

// sync forces a foreground reconciliation so records created in earlier
// invocations settle their server ids.
func (f *cliFixture) sync(t *testing.T) {
	t.Helper()
	f.mustRun(t, NewSyncCommand)
}

func TestAddAndList(t *testing.T) {
	f := newCLIFixture(t)

	out := f.mustRun(t, NewAddCommand, "--category", "groceries", "--note", "market", "--date", "2026-08-01", "--", "-12.50")
	assert.Contains(t, out, "-12.50")
	assert.Contains(t, out, "groceries")

	out = f.mustRun(t, NewListCommand)
	assert.Contains(t, out, "2026-08-01")
	assert.Contains(t, out, "groceries")
	assert.Contains(t, out, "market")
}

func TestAdd_InvalidAmount(t *testing.T) {
	f := newCLIFixture(t)

	_, err := f.run(t, NewAddCommand, "a-lot")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestList_Filters(t *testing.T) {
	f := newCLIFixture(t)
	f.mustRun(t, NewAddCommand, "-c", "groceries", "--date", "2026-07-20", "--", "-30")
	f.mustRun(t, NewAddCommand, "-c", "groceries", "--date", "2026-08-01", "--", "-12")
	f.mustRun(t, NewAddCommand, "1500", "-c", "salary", "--date", "2026-08-02")

	out := f.mustRun(t, NewListCommand, "--from", "2026-08-01")
	assert.NotContains(t, out, "2026-07-20")
	assert.Contains(t, out, "2026-08-01")

	out = f.mustRun(t, NewListCommand, "-c", "salary")
	assert.NotContains(t, out, "groceries")
	assert.Contains(t, out, "salary")
}

func TestList_TotalsGolden(t *testing.T) {
	f := newCLIFixture(t)
	f.opts.Format = "json"
	f.mustRun(t, NewAddCommand, "-c", "groceries", "--date", "2026-07-20", "--", "-30")
	f.mustRun(t, NewAddCommand, "-c", "groceries", "--date", "2026-08-01", "--", "-12")
	f.mustRun(t, NewAddCommand, "1500", "-c", "salary", "--date", "2026-08-02")

	out := f.mustRun(t, NewListCommand, "--totals")

	g := goldie.New(t)
	g.Assert(t, "list_totals", []byte(out))
}

func TestBudgetFlow(t *testing.T) {
	f := newCLIFixture(t)

	out := f.mustRun(t, NewBudgetCommand, "set", "groceries", "100", "--month", "2026-08")
	assert.Contains(t, out, "groceries")
	f.sync(t)

	// Spending over the threshold raises an alert from add itself.
	out = f.mustRun(t, NewAddCommand, "-c", "groceries", "--date", "2026-08-10", "--", "-85")
	assert.Contains(t, out, "budget alert")

	out = f.mustRun(t, NewBudgetCommand, "list", "--month", "2026-08")
	assert.Contains(t, out, "groceries")
	assert.Contains(t, out, "85%")

	// Replacing the limit goes through the update path.
	f.sync(t)
	out = f.mustRun(t, NewBudgetCommand, "set", "groceries", "200", "--month", "2026-08")
	assert.Contains(t, out, "200.00")
	out = f.mustRun(t, NewBudgetCommand, "list", "--month", "2026-08")
	assert.Contains(t, out, "43%") // 85/200 rounded
}

func TestBudget_RejectsNonPositiveLimit(t *testing.T) {
	f := newCLIFixture(t)
	_, err := f.run(t, NewBudgetCommand, "set", "groceries", "--", "-5")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGoalFlow(t *testing.T) {
	f := newCLIFixture(t)

	f.mustRun(t, NewGoalCommand, "set", "vacation", "1000")
	f.sync(t)

	out := f.mustRun(t, NewGoalCommand, "add", "vacation", "250")
	assert.Contains(t, out, "25%")

	out = f.mustRun(t, NewGoalCommand, "list")
	assert.Contains(t, out, "vacation")
	assert.Contains(t, out, "250.00")

	_, err := f.run(t, NewGoalCommand, "add", "imaginary", "10")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestAlertsCommand(t *testing.T) {
	f := newCLIFixture(t)
	f.mustRun(t, NewBudgetCommand, "set", "groceries", "100", "--month", "2026-08")
	f.sync(t)
	f.mustRun(t, NewAddCommand, "-c", "groceries", "--date", "2026-08-10", "--", "-120")

	out := f.mustRun(t, NewAlertsCommand)
	assert.Contains(t, out, "budget_exceeded")
	assert.Contains(t, out, "2026-08")
}

func TestAlerts_NoBudgetsIsQuiet(t *testing.T) {
	f := newCLIFixture(t)
	out := f.mustRun(t, NewAlertsCommand)
	assert.Contains(t, out, "no unread alerts")
}

func TestStatusCommand(t *testing.T) {
	f := newCLIFixture(t)
	f.mustRun(t, NewAddCommand, "-c", "groceries", "--date", "2026-08-01", "--", "-12")
	f.mustRun(t, NewAddCommand, "1500", "-c", "salary", "--date", "2026-08-02")

	out := f.mustRun(t, NewStatusCommand)
	assert.Contains(t, out, "entries: 2")
	assert.Contains(t, out, "1,500.00")
	assert.Contains(t, out, "1,488.00")
}

func TestSyncCommand(t *testing.T) {
	f := newCLIFixture(t)
	f.mustRun(t, NewAddCommand, "-c", "groceries", "--", "-12")

	out := f.mustRun(t, NewSyncCommand)
	assert.Contains(t, out, "ledger")
	assert.Contains(t, out, "notifications")
}

func TestRootCommand_RejectsBadFormat(t *testing.T) {
	cmd := NewRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{"--format", "xml", "status"})
	require.Error(t, cmd.Execute())
}
