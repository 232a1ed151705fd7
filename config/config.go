// Package config loads runtime configuration from an optional YAML file with
// environment-variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"dealflow/undo"
)

// Config is the full configuration tree for the API process.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `yaml:"addr"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `yaml:"database_url"`
	// JWTSecret signs session tokens.
	JWTSecret string `yaml:"jwt_secret"`
	// MigrationsDir holds the golang-migrate SQL files.
	MigrationsDir string `yaml:"migrations_dir"`
	// UndoDepth bounds the per-session compensation stack.
	UndoDepth int `yaml:"undo_depth"`
}

// Default returns the baseline configuration before file and env overrides.
func Default() Config {
	return Config{
		Addr:          ":8080",
		MigrationsDir: "migrations",
		UndoDepth:     undo.DefaultDepth,
	}
}

// Load reads path (skipped when empty or missing) over the defaults, then
// applies environment overrides: DEALFLOW_ADDR, DATABASE_URL, JWT_SECRET,
// DEALFLOW_MIGRATIONS_DIR, DEALFLOW_UNDO_DEPTH.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
			// fall through to env overrides
		default:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if v := os.Getenv("DEALFLOW_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("DEALFLOW_MIGRATIONS_DIR"); v != "" {
		cfg.MigrationsDir = v
	}
	if v := os.Getenv("DEALFLOW_UNDO_DEPTH"); v != "" {
		depth, err := strconv.Atoi(v)
		if err != nil || depth <= 0 {
			return Config{}, fmt.Errorf("config: invalid DEALFLOW_UNDO_DEPTH %q", v)
		}
		cfg.UndoDepth = depth
	}

	if cfg.UndoDepth <= 0 {
		cfg.UndoDepth = undo.DefaultDepth
	}

	return cfg, nil
}

// Validate checks the fields the process cannot start without.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: database_url required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("config: jwt_secret required")
	}
	return nil
}
