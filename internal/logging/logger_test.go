package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestPrettyHandlerFormatsComponentPrefix(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newPrettyHandler(&buf, lvl, false))

	logger = logger.With(String(FieldComponent, "wired-scanner"))
	logger.Info("device found", String(FieldDeviceID, "/dev/ttyACM0"))

	line := buf.String()
	if !strings.Contains(line, "INFO wired-scanner: device found") {
		t.Fatalf("unexpected line: %q", line)
	}
	if !strings.Contains(line, "device_id=/dev/ttyACM0") {
		t.Fatalf("missing device_id attr: %q", line)
	}
}

func TestPrettyHandlerQuotesValuesWithSpaces(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newPrettyHandler(&buf, lvl, false))

	logger.Warn("node ignored", String("name", "DRT 01"))

	if !strings.Contains(buf.String(), `name="DRT 01"`) {
		t.Fatalf("expected quoted value, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	if got := parseLevel("debug"); got != slog.LevelDebug {
		t.Fatalf("debug level: %v", got)
	}
	if got := parseLevel(""); got != slog.LevelInfo {
		t.Fatalf("default level: %v", got)
	}
	if got := parseLevel("bogus"); got != slog.LevelInfo {
		t.Fatalf("unknown level: %v", got)
	}
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	base := slog.New(newPrettyHandler(&buf, lvl, false))

	ctx := WithDeviceID(context.Background(), "mesh:00:13")
	ctx = WithSessionID(ctx, "abcd-1234")
	WithContext(ctx, base).Info("assigned")

	line := buf.String()
	if !strings.Contains(line, "device_id=mesh:00:13") {
		t.Fatalf("missing device_id: %q", line)
	}
	if !strings.Contains(line, "session_id=abcd-1234") {
		t.Fatalf("missing session_id: %q", line)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
