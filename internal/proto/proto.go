// Package proto defines the framed JSON protocol spoken between the
// supervisor and module subprocesses: one JSON object per line, UTF-8,
// commands downstream and statuses upstream.
package proto

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Command names recognized by module subprocesses.
const (
	CmdStartSession   = "start_session"
	CmdStopSession    = "stop_session"
	CmdRecord         = "record"
	CmdPause          = "pause"
	CmdGetStatus      = "get_status"
	CmdAssignDevice   = "assign_device"
	CmdUnassignDevice = "unassign_device"
	CmdShowWindow     = "show_window"
	CmdHideWindow     = "hide_window"
	CmdQuit           = "quit"
)

// Status names reported by module subprocesses.
const (
	StatusInitializing     = "initializing"
	StatusInitialized      = "initialized"
	StatusDeviceAssigned   = "device_assigned"
	StatusDeviceUnassigned = "device_unassigned"
	StatusRecordingStarted = "recording_started"
	StatusRecordingStopped = "recording_stopped"
	StatusWindowShown      = "window_shown"
	StatusWindowHidden     = "window_hidden"
	StatusError            = "error"
	StatusWarning          = "warning"
	StatusQuitting         = "quitting"
)

// Command is a supervisor-to-subprocess message. Parameter fields are flat
// in the JSON object and omitted when unused.
type Command struct {
	Name          string `json:"command"`
	Timestamp     string `json:"timestamp"`
	CorrelationID string `json:"correlation_id,omitempty"`
	DeviceID      string `json:"device_id,omitempty"`
	Family        string `json:"family,omitempty"`
	Port          string `json:"port,omitempty"`
	Baud          int    `json:"baud,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
	SessionDir    string `json:"session_dir,omitempty"`
}

// NewCommand builds a command stamped with the current UTC time and a fresh
// correlation id.
func NewCommand(name string) Command {
	return Command{
		Name:          name,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		CorrelationID: uuid.NewString(),
	}
}

// Encode renders the command as a single newline-terminated JSON line.
func (c Command) Encode() ([]byte, error) {
	if strings.TrimSpace(c.Name) == "" {
		return nil, fmt.Errorf("encode command: empty command name")
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode command %s: %w", c.Name, err)
	}
	return append(data, '\n'), nil
}

// Status is a subprocess-to-supervisor message.
type Status struct {
	Type      string         `json:"type"`
	Status    string         `json:"status"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// DecodeStatus parses one line of subprocess output. Lines that are not
// status messages (wrong type, malformed JSON) return an error; the caller
// drops the line and keeps reading.
func DecodeStatus(line []byte) (Status, error) {
	var st Status
	if err := json.Unmarshal(line, &st); err != nil {
		return Status{}, fmt.Errorf("decode status: %w", err)
	}
	if st.Type != "status" {
		return Status{}, fmt.Errorf("decode status: unexpected message type %q", st.Type)
	}
	if strings.TrimSpace(st.Status) == "" {
		return Status{}, fmt.Errorf("decode status: missing status name")
	}
	return st, nil
}

// DataString extracts a string field from the status payload.
func (s Status) DataString(key string) string {
	if s.Data == nil {
		return ""
	}
	if v, ok := s.Data[key].(string); ok {
		return v
	}
	return ""
}

// IsError reports whether the status carries an explicit error.
func (s Status) IsError() bool {
	return s.Status == StatusError
}
