package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dealflow.yaml")
	content := []byte("addr: \":9090\"\ndatabase_url: postgres://file/db\nundo_depth: 5\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("DEALFLOW_ADDR", "")
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("JWT_SECRET", "topsecret")
	t.Setenv("DEALFLOW_MIGRATIONS_DIR", "")
	t.Setenv("DEALFLOW_UNDO_DEPTH", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Addr != ":9090" {
		t.Errorf("expected file addr, got %q", cfg.Addr)
	}
	if cfg.DatabaseURL != "postgres://env/db" {
		t.Errorf("expected env to override file DSN, got %q", cfg.DatabaseURL)
	}
	if cfg.JWTSecret != "topsecret" {
		t.Errorf("expected env jwt secret, got %q", cfg.JWTSecret)
	}
	if cfg.UndoDepth != 5 {
		t.Errorf("expected undo depth 5 from file, got %d", cfg.UndoDepth)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("DEALFLOW_ADDR", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DEALFLOW_MIGRATIONS_DIR", "")
	t.Setenv("DEALFLOW_UNDO_DEPTH", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Addr != ":8080" {
		t.Errorf("expected default addr, got %q", cfg.Addr)
	}
	if cfg.UndoDepth != 10 {
		t.Errorf("expected default undo depth, got %d", cfg.UndoDepth)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation failure without DSN and secret")
	}
}

func TestLoad_BadUndoDepth(t *testing.T) {
	t.Setenv("DEALFLOW_UNDO_DEPTH", "zero")
	if _, err := Load(""); err == nil {
		t.Error("expected error for non-numeric undo depth")
	}
}
