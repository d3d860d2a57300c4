package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType tags log lines carrying machine-readable lifecycle events.
	FieldEventType = "event_type"
	// FieldErrorHint carries the operator-facing next step for a warning or error.
	FieldErrorHint = "error_hint"
	// FieldImpact describes the user-visible consequence of a warning.
	FieldImpact = "impact"
	// FieldDeviceID is the standardized key for discovered-device identifiers.
	FieldDeviceID = "device_id"
	// FieldModuleID is the standardized key for module identifiers.
	FieldModuleID = "module_id"
	// FieldSessionID is the standardized key for recording-session identifiers.
	FieldSessionID = "session_id"
	// FieldCorrelationID is the standardized key for command correlation identifiers.
	FieldCorrelationID = "correlation_id"
)

type contextKey struct{ name string }

var (
	deviceIDKey      = contextKey{"device_id"}
	sessionIDKey     = contextKey{"session_id"}
	correlationIDKey = contextKey{"correlation_id"}
)

// WithDeviceID stores a device id for later log enrichment.
func WithDeviceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, deviceIDKey, id)
}

// WithSessionID stores a session id for later log enrichment.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// WithCorrelationID stores a correlation id for later log enrichment.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := ctx.Value(deviceIDKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldDeviceID, id))
	}
	if id, ok := ctx.Value(sessionIDKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldSessionID, id))
	}
	if id, ok := ctx.Value(correlationIDKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldCorrelationID, id))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
