// Package logging builds the slog loggers used across conductor and holds
// the standardized structured-field vocabulary shared by every component.
package logging
