package jobmanager

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigFillsDefaultsForZeroFields(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("job_concurrency = 5\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.JobConcurrency != 5 {
		t.Fatalf("expected job_concurrency=5 from file, got %d", cfg.JobConcurrency)
	}
	def := DefaultConfig()
	if cfg.JobLimit != def.JobLimit || cfg.NotificationsLimit != def.NotificationsLimit || cfg.EventsLimit != def.EventsLimit {
		t.Fatalf("expected unset fields to fall back to defaults, got %+v", cfg)
	}
}

func TestGenerateExampleConfigWritesFile(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	if err := GenerateExampleConfig(dir); err != nil {
		t.Fatalf("GenerateExampleConfig: %v", err)
	}
	path := filepath.Join(dir, "config.toml.example")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected example config to be written: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected non-empty example config")
	}
}
