package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadYAML_OverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "semian.yaml")
	if err := os.WriteFile(path, []byte("redis:\n  prefix: custom\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := LoadYAML(path)
	if err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	if cfg.Redis.Prefix != "custom" {
		t.Fatalf("Redis.Prefix = %q, want %q", cfg.Redis.Prefix, "custom")
	}
	if cfg.PID.Kp != Default().PID.Kp {
		t.Fatalf("unset fields should keep defaults; Kp = %v", cfg.PID.Kp)
	}
}

func TestLoadYAML_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "semian.yaml")
	if err := os.WriteFile(path, []byte("redis:\n  prefix: from-file\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	t.Setenv("SEMIAN_REDIS_PREFIX", "from-env")

	cfg, err := LoadYAML(path)
	if err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	if cfg.Redis.Prefix != "from-env" {
		t.Fatalf("Redis.Prefix = %q, want env to win", cfg.Redis.Prefix)
	}
}

func TestDisabledToggles(t *testing.T) {
	t.Setenv("SEMIAN_BULKHEAD_DISABLED", "1")
	if !BulkheadDisabled() {
		t.Fatal("expected BulkheadDisabled() true")
	}
	if Disabled() {
		t.Fatal("SEMIAN_DISABLED unset should report false")
	}
}
