package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"conductor/internal/config"
	"conductor/internal/logging"
	"conductor/internal/preflight"
)

func pidFilePath(cfg *config.Config) string {
	if cfg == nil {
		return ""
	}
	return filepath.Join(cfg.Paths.LogDir, "conductord.pid")
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

// logPreflight records the environment checks. Failures are logged but do
// not block startup; the affected module simply fails to launch later.
func logPreflight(logger *slog.Logger, cfg *config.Config) {
	results := preflight.RunAll(context.Background(), cfg)
	for _, result := range results {
		if result.Passed {
			logger.Debug("preflight check passed",
				logging.String(logging.FieldEventType, "preflight_check"),
				logging.String("check", result.Name))
			continue
		}
		logger.Warn("preflight check failed",
			logging.String(logging.FieldEventType, "preflight_check_failed"),
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "fix the reported path or entry point before relying on it"))
	}
	if preflight.AllPassed(results) {
		logger.Info("preflight checks passed",
			logging.String(logging.FieldEventType, "preflight_complete"),
			logging.Int("checks", len(results)))
	}
}
