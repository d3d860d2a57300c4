// Package session coordinates recording sessions across module processes:
// one session at a time, a fresh id and data directory per session, and
// record/pause fan-out to every running module.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"conductor/internal/logging"
	"conductor/internal/proto"
)

var (
	// ErrSessionActive is returned when starting while a session is open.
	ErrSessionActive = errors.New("a session is already active")
	// ErrNoSession is returned by record/pause without an open session.
	ErrNoSession = errors.New("no active session")
)

// Info describes one recording session.
type Info struct {
	ID        string    `json:"id"`
	Dir       string    `json:"dir"`
	StartedAt time.Time `json:"started_at"`
}

// Broadcaster fans a command out to every running module. Satisfied by the
// module manager.
type Broadcaster interface {
	Broadcast(cmd func() proto.Command) error
}

// Controller owns the active session.
type Controller struct {
	modules Broadcaster
	dataDir string
	logger  *slog.Logger

	mu     sync.Mutex
	active *Info
}

// NewController builds a session controller writing under dataDir/sessions.
func NewController(modules Broadcaster, dataDir string, logger *slog.Logger) *Controller {
	return &Controller{
		modules: modules,
		dataDir: dataDir,
		logger:  logging.NewComponentLogger(logger, "session-controller"),
	}
}

// Active returns the open session, if any.
func (c *Controller) Active() (Info, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return Info{}, false
	}
	return *c.active, true
}

// Start opens a new session: a fresh id, a session directory, and a
// start_session broadcast to every running module.
func (c *Controller) Start(ctx context.Context) (Info, error) {
	c.mu.Lock()
	if c.active != nil {
		active := *c.active
		c.mu.Unlock()
		return active, ErrSessionActive
	}

	now := time.Now()
	id := uuid.NewString()
	dir := filepath.Join(c.dataDir, "sessions", now.Format("20060102_150405")+"_"+id[:8])
	info := Info{ID: id, Dir: dir, StartedAt: now}
	c.active = &info
	c.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.mu.Lock()
		c.active = nil
		c.mu.Unlock()
		return Info{}, fmt.Errorf("create session directory: %w", err)
	}

	err := c.modules.Broadcast(func() proto.Command {
		cmd := proto.NewCommand(proto.CmdStartSession)
		cmd.SessionID = id
		cmd.SessionDir = dir
		return cmd
	})
	if err != nil {
		c.logger.Warn("session start broadcast incomplete",
			logging.Error(err),
			logging.String(logging.FieldEventType, "session_broadcast_failed"),
			logging.String(logging.FieldSessionID, id),
			logging.String(logging.FieldImpact, "some modules may not record this session"),
		)
	}

	c.logger.Info("session started",
		logging.String(logging.FieldEventType, "session_started"),
		logging.String(logging.FieldSessionID, id),
		logging.String("session_dir", dir),
	)
	return info, nil
}

// Stop closes the active session. Stopping without one is a no-op.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.active == nil {
		c.mu.Unlock()
		return nil
	}
	info := *c.active
	c.active = nil
	c.mu.Unlock()

	err := c.modules.Broadcast(func() proto.Command {
		cmd := proto.NewCommand(proto.CmdStopSession)
		cmd.SessionID = info.ID
		return cmd
	})
	if err != nil {
		c.logger.Warn("session stop broadcast incomplete",
			logging.Error(err),
			logging.String(logging.FieldEventType, "session_broadcast_failed"),
			logging.String(logging.FieldSessionID, info.ID),
		)
	}

	c.logger.Info("session stopped",
		logging.String(logging.FieldEventType, "session_stopped"),
		logging.String(logging.FieldSessionID, info.ID),
		logging.Duration("duration", time.Since(info.StartedAt)),
	)
	return nil
}

// Record starts data capture in every module of the active session.
func (c *Controller) Record(ctx context.Context) error {
	return c.sessionCommand(proto.CmdRecord)
}

// Pause suspends data capture without closing the session.
func (c *Controller) Pause(ctx context.Context) error {
	return c.sessionCommand(proto.CmdPause)
}

func (c *Controller) sessionCommand(name string) error {
	c.mu.Lock()
	if c.active == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	id := c.active.ID
	c.mu.Unlock()

	return c.modules.Broadcast(func() proto.Command {
		cmd := proto.NewCommand(name)
		cmd.SessionID = id
		return cmd
	})
}
