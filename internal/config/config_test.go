package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if resolved != path {
		t.Fatalf("resolved path %q, want %q", resolved, path)
	}
	if cfg.Discovery.WiredPollInterval != defaultWiredPollInterval {
		t.Fatalf("unexpected poll interval %d", cfg.Discovery.WiredPollInterval)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
data_dir = "` + dir + `/data"
log_dir = "` + dir + `/logs"

[mesh]
rediscover_interval = 60

[modules.entry_points]
drt = "/opt/capture/drt"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be found")
	}
	if cfg.Mesh.RediscoverInterval != 60 {
		t.Fatalf("rediscover_interval = %d, want 60", cfg.Mesh.RediscoverInterval)
	}
	if cfg.Modules.EntryPoints["drt"] != "/opt/capture/drt" {
		t.Fatalf("entry point = %q", cfg.Modules.EntryPoints["drt"])
	}
	// Unset sections keep defaults.
	if cfg.Modules.QuitGraceSeconds != defaultQuitGraceSeconds {
		t.Fatalf("quit grace = %d", cfg.Modules.QuitGraceSeconds)
	}
}

func TestValidateRejectsBadIntervals(t *testing.T) {
	cfg := Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Discovery.WiredPollInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero poll interval")
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := WriteSample(path); err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	if err := WriteSample(path); err == nil {
		t.Fatal("expected overwrite refusal")
	}
}
