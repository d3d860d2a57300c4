package preflight

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"conductor/internal/config"
)

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()
	if r := CheckDirectoryAccess("Data directory", dir); !r.Passed {
		t.Fatalf("writable dir failed: %s", r.Detail)
	}
	if r := CheckDirectoryAccess("Data directory", filepath.Join(dir, "missing")); r.Passed {
		t.Fatal("missing dir must fail")
	}

	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if r := CheckDirectoryAccess("Data directory", file); r.Passed {
		t.Fatal("regular file must fail")
	}
}

func TestCheckEntryPoint(t *testing.T) {
	dir := t.TempDir()

	executable := filepath.Join(dir, "module.sh")
	if err := os.WriteFile(executable, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}
	if r := CheckEntryPoint("drt", executable); !r.Passed {
		t.Fatalf("executable entry point failed: %s", r.Detail)
	}

	plain := filepath.Join(dir, "plain")
	if err := os.WriteFile(plain, []byte("data"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if r := CheckEntryPoint("drt", plain); r.Passed {
		t.Fatal("non-executable entry point must fail")
	}
	if r := CheckEntryPoint("drt", filepath.Join(dir, "missing")); r.Passed {
		t.Fatal("missing entry point must fail")
	}
}

func TestCheckDiskSpace(t *testing.T) {
	if r := CheckDiskSpace("Data disk space", t.TempDir()); r.Detail == "" {
		t.Fatal("disk space check must report detail")
	}
}

func TestRunAllCoversConfiguredModules(t *testing.T) {
	dir := t.TempDir()
	entry := filepath.Join(dir, "drt")
	if err := os.WriteFile(entry, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg := config.Default()
	cfg.Paths.DataDir = dir
	cfg.Paths.LogDir = dir
	cfg.Modules.EntryPoints = map[string]string{"drt": entry}

	results := RunAll(context.Background(), &cfg)
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4", len(results))
	}
	if !AllPassed(results) {
		for _, r := range results {
			t.Logf("%s passed=%v detail=%s", r.Name, r.Passed, r.Detail)
		}
		t.Fatal("all checks should pass")
	}
}

func TestRunAllNilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatalf("nil config must yield nil results, got %v", results)
	}
}
