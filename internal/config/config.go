// Package config loads the tally configuration file: YAML parsed with
// yaml.v3, validated against an embedded CUE schema before decoding so a
// typo fails with a path-qualified error instead of a silently ignored
// field.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var configSchema string

// Remote drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// DefaultPassphraseEnv names the environment variable the passphrase is read
// from when the config does not override it.
const DefaultPassphraseEnv = "TALLY_PASSPHRASE"

// Config is the decoded configuration file.
type Config struct {
	Storage Storage `yaml:"storage"`
	Remote  Remote  `yaml:"remote"`
	Cache   Cache   `yaml:"cache"`
}

// Storage configures the encrypted local cache database.
type Storage struct {
	// Path of the SQLite file. Empty selects DefaultStoragePath.
	Path string `yaml:"path"`

	// PassphraseEnv names the environment variable holding the passphrase.
	PassphraseEnv string `yaml:"passphrase_env"`
}

// Remote configures the authoritative store.
type Remote struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Cache configures per-family TTL overrides.
type Cache struct {
	TTL map[string]string `yaml:"ttl"`
}

// Default returns the zero-config setup: memory remote, default passphrase
// variable, per-user storage path resolved lazily.
func Default() Config {
	return Config{
		Storage: Storage{PassphraseEnv: DefaultPassphraseEnv},
		Remote:  Remote{Driver: DriverMemory},
	}
}

// Load reads and validates the config file at path. A missing file is not an
// error: the defaults apply.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data, path)
}

// Parse validates raw YAML against the schema and decodes it, filling
// defaults for anything the file leaves out.
func Parse(data []byte, filename string) (Config, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Default(), nil
	}
	if err := validate(data, filename); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", filename, err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decoding config %s: %w", filename, err)
	}
	if cfg.Storage.PassphraseEnv == "" {
		cfg.Storage.PassphraseEnv = DefaultPassphraseEnv
	}
	if cfg.Remote.Driver == "" {
		cfg.Remote.Driver = DriverMemory
	}
	return cfg, nil
}

// validate unifies the YAML document with the embedded #Config schema.
func validate(data []byte, filename string) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(configSchema, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("schema has no #Config: %w", err)
	}

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return err
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return err
	}
	return def.Unify(doc).Validate(cue.Concrete(true))
}

// TTLs parses the per-family TTL overrides. Values are validated by the
// schema, so a parse failure here means the schema and this code disagree.
func (c Config) TTLs() (map[string]time.Duration, error) {
	if len(c.Cache.TTL) == 0 {
		return nil, nil
	}
	out := make(map[string]time.Duration, len(c.Cache.TTL))
	for family, raw := range c.Cache.TTL {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("cache.ttl.%s: %w", family, err)
		}
		out[family] = d
	}
	return out, nil
}

// StoragePath resolves the database path, falling back to the per-user
// default under the OS config directory.
func (c Config) StoragePath() (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving default storage path: %w", err)
	}
	return filepath.Join(dir, "tally", "tally.db"), nil
}
