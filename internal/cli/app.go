package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"tally/internal/config"
	"tally/internal/family"
	"tally/internal/keystore"
	"tally/internal/remote"
)

// App bundles everything a command needs: the loaded config, the family
// engines, and the encrypted keystore backing their caches.
type App struct {
	Cfg config.Config
	Set *family.Set

	store *keystore.Store
	log   *slog.Logger
}

// Test hooks on RootOptions. When set, openApp skips the SQLite keystore and
// the configured remote driver.
type overrides struct {
	kv        keystore.KV
	newRemote func(family string) (remote.Store, error)
}

// setupLogging configures the process logger from the verbose flag.
func setupLogging(opts *RootOptions) *slog.Logger {
	logLevel := slog.LevelWarn
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

// configPath resolves the config file location.
func configPath(opts *RootOptions) (string, error) {
	if opts.Config != "" {
		return opts.Config, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving config path: %w", err)
	}
	return filepath.Join(dir, "tally", "tally.yaml"), nil
}

// openApp loads config, opens the encrypted keystore, and builds the family
// engines. It does not load any collection; commands call LoadAll or load
// single families as needed.
func (opts *RootOptions) openApp() (*App, error) {
	log := setupLogging(opts)

	path, err := configPath(opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "config", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "config", err)
	}

	app := &App{Cfg: cfg, log: log}

	kv := opts.overrides.kv
	if kv == nil {
		passphrase := os.Getenv(cfg.Storage.PassphraseEnv)
		if passphrase == "" {
			return nil, NewExitError(ExitCommandError,
				fmt.Sprintf("no passphrase: set %s", cfg.Storage.PassphraseEnv))
		}
		dbPath, err := cfg.StoragePath()
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "storage", err)
		}
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, WrapExitError(ExitCommandError, "storage", err)
		}
		store, err := keystore.Open(dbPath, keystore.KeyFromPassphrase(passphrase))
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "opening cache database", err)
		}
		app.store = store
		kv = store
	}

	newRemote := opts.overrides.newRemote
	if newRemote == nil {
		newRemote = remoteFactory(cfg)
	}

	ttls, err := cfg.TTLs()
	if err != nil {
		app.Close()
		return nil, WrapExitError(ExitCommandError, "config", err)
	}

	set, err := family.NewSet(family.SetOptions{
		KV:        kv,
		NewRemote: newRemote,
		TTLs:      ttls,
		Logger:    log,
	})
	if err != nil {
		app.Close()
		return nil, WrapExitError(ExitCommandError, "building families", err)
	}
	app.Set = set
	return app, nil
}

// remoteFactory maps the configured driver to a per-family store
// constructor.
func remoteFactory(cfg config.Config) func(string) (remote.Store, error) {
	switch cfg.Remote.Driver {
	case config.DriverPostgres:
		return func(fam string) (remote.Store, error) {
			return remote.OpenPostgres(cfg.Remote.DSN, fam)
		}
	default:
		return func(string) (remote.Store, error) {
			return remote.NewMemory(), nil
		}
	}
}

// Load activates every family cache-first.
func (a *App) Load(ctx context.Context) error {
	if err := a.Set.LoadAll(ctx); err != nil {
		return WrapExitError(ExitFailure, "loading collections", err)
	}
	return nil
}

// Close drains background reconciliations and closes the keystore.
func (a *App) Close() {
	if a.Set != nil {
		a.Set.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Error("closing cache database", "error", err)
		}
	}
}
