package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"tally/internal/config"
)

// defaultConfigFile is written by init when no config exists yet.
const defaultConfigFile = `# tally configuration
#
# The passphrase for the encrypted local cache is read from the environment
# variable named by storage.passphrase_env.

storage:
  passphrase_env: TALLY_PASSPHRASE

remote:
  driver: memory
  # driver: postgres
  # dsn: postgres://localhost/tally
`

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter config and create the cache database",
		Long: `Create the per-user config file (unless one exists) and open the encrypted
cache database once so the schema is in place.

Example:
  TALLY_PASSPHRASE=secret tally init`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(rootOpts, cmd)
		},
	}
}

func runInit(opts *RootOptions, cmd *cobra.Command) error {
	setupLogging(opts)

	path, err := configPath(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "config", err)
	}

	wrote := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return WrapExitError(ExitCommandError, "creating config directory", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigFile), 0o600); err != nil {
			return WrapExitError(ExitCommandError, "writing config", err)
		}
		wrote = true
	}

	cfg, err := config.Load(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "config", err)
	}

	// Open the keystore once so a bad passphrase or unwritable path fails
	// here, not on the first add.
	app, err := opts.openApp()
	if err != nil {
		return err
	}
	app.Close()

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	dbPath, _ := cfg.StoragePath()
	if out.JSON() {
		return out.Success(map[string]any{
			"config":         path,
			"config_written": wrote,
			"database":       dbPath,
		})
	}
	if wrote {
		fmt.Fprintf(cmd.OutOrStdout(), "wrote config %s\n", path)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "config %s already exists\n", path)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "cache database ready at %s\n", dbPath)
	return nil
}
