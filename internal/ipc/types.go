package ipc

import (
	"time"

	"conductor/internal/daemon"
	"conductor/internal/journal"
)

// StatusRequest asks for the daemon's runtime snapshot.
type StatusRequest struct{}

// StatusResponse mirrors daemon.Status for RPC transport.
type StatusResponse struct {
	Running       bool                `json:"running"`
	PID           int                 `json:"pid"`
	LockPath      string              `json:"lock_path"`
	JournalPath   string              `json:"journal_path"`
	ShutdownPhase string              `json:"shutdown_phase"`
	DeviceCount   int                 `json:"device_count"`
	SessionID     string              `json:"session_id,omitempty"`
	SessionDir    string              `json:"session_dir,omitempty"`
	Modules       []daemon.ModuleInfo `json:"modules"`
}

// DevicesRequest asks for the unified device view.
type DevicesRequest struct{}

// DevicesResponse carries every currently known device.
type DevicesResponse struct {
	Devices []daemon.DeviceDTO `json:"devices"`
}

// DeviceRequest asks for a single device by id.
type DeviceRequest struct {
	DeviceID string `json:"device_id"`
}

// DeviceResponse carries one device.
type DeviceResponse struct {
	Device daemon.DeviceDTO `json:"device"`
}

// ConnectRequest asks the daemon to hand a device to its owning module.
type ConnectRequest struct {
	DeviceID string `json:"device_id"`
}

// ConnectResponse reports the outcome of a connect request.
type ConnectResponse struct {
	DeviceID string `json:"device_id"`
}

// DisconnectRequest asks the daemon to take a device back from its module.
type DisconnectRequest struct {
	DeviceID string `json:"device_id"`
}

// DisconnectResponse reports the outcome of a disconnect request.
type DisconnectResponse struct {
	DeviceID string `json:"device_id"`
}

// ModulesRequest asks for module process summaries.
type ModulesRequest struct{}

// ModulesResponse carries every module process the daemon has created.
type ModulesResponse struct {
	Modules []daemon.ModuleInfo `json:"modules"`
}

// ModuleStartRequest launches one module process.
type ModuleStartRequest struct {
	ModuleID string `json:"module_id"`
}

// ModuleStartResponse reports a module start.
type ModuleStartResponse struct {
	ModuleID string `json:"module_id"`
}

// ModuleStopRequest gracefully stops one module process.
type ModuleStopRequest struct {
	ModuleID string `json:"module_id"`
}

// ModuleStopResponse reports a module stop.
type ModuleStopResponse struct {
	ModuleID string `json:"module_id"`
}

// SessionStartRequest opens a recording session.
type SessionStartRequest struct{}

// SessionStartResponse describes the newly opened session.
type SessionStartResponse struct {
	SessionID  string    `json:"session_id"`
	SessionDir string    `json:"session_dir"`
	StartedAt  time.Time `json:"started_at"`
}

// SessionStopRequest closes the active session.
type SessionStopRequest struct{}

// SessionStopResponse acknowledges a session stop.
type SessionStopResponse struct {
	Stopped bool `json:"stopped"`
}

// SessionRecordRequest starts capture in the active session.
type SessionRecordRequest struct{}

// SessionRecordResponse acknowledges a record command.
type SessionRecordResponse struct {
	Recording bool `json:"recording"`
}

// SessionPauseRequest pauses capture in the active session.
type SessionPauseRequest struct{}

// SessionPauseResponse acknowledges a pause command.
type SessionPauseResponse struct {
	Paused bool `json:"paused"`
}

// EventTailRequest asks for the newest journal events.
type EventTailRequest struct {
	Limit int `json:"limit"`
}

// EventTailResponse carries journal events newest first.
type EventTailResponse struct {
	Events []journal.Event `json:"events"`
}

// ShutdownRequest asks the daemon to run its ordered teardown and exit.
type ShutdownRequest struct{}

// ShutdownResponse acknowledges a shutdown request.
type ShutdownResponse struct {
	Stopped bool `json:"stopped"`
}
