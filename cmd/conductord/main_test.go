package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"conductor/internal/config"
)

func TestPIDFilePath(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = filepath.Join(t.TempDir(), "logs")

	expected := filepath.Join(cfg.Paths.LogDir, "conductord.pid")
	if got := pidFilePath(&cfg); got != expected {
		t.Fatalf("expected pid path %q, got %q", expected, got)
	}
	if got := pidFilePath(nil); got != "" {
		t.Fatalf("expected empty pid path for nil config, got %q", got)
	}
}

func TestWritePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conductord.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("parse pid: %v", err)
	}
	if pid != os.Getpid() {
		t.Fatalf("pid = %d, want %d", pid, os.Getpid())
	}

	if err := writePIDFile(""); err != nil {
		t.Fatalf("empty path must be a no-op, got %v", err)
	}
}
