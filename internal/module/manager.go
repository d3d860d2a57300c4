package module

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"conductor/internal/device"
	"conductor/internal/logging"
	"conductor/internal/proto"
)

// ManagerOptions carries per-module launch configuration.
type ManagerOptions struct {
	// EntryPoints maps module ids to executables.
	EntryPoints map[string]string
	LogLevel    string
	QuitGrace   time.Duration
	TermGrace   time.Duration
}

// Manager owns the set of module processes, creating each lazily the first
// time something routes to it.
type Manager struct {
	opts     ManagerOptions
	listener Listener
	logger   *slog.Logger

	mu        sync.Mutex
	processes map[string]*Process
}

// NewManager builds an empty manager; no processes are spawned until a
// device or session operation needs one.
func NewManager(opts ManagerOptions, listener Listener, logger *slog.Logger) *Manager {
	return &Manager{
		opts:      opts,
		listener:  listener,
		logger:    logging.NewComponentLogger(logger, "module-manager"),
		processes: make(map[string]*Process),
	}
}

// process returns the supervisor for moduleID, creating it on first use.
func (m *Manager) process(moduleID string) (*Process, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.processes[moduleID]; ok {
		return p, nil
	}
	entry, ok := m.opts.EntryPoints[moduleID]
	if !ok {
		return nil, fmt.Errorf("no entry point configured for module %q", moduleID)
	}
	p := NewProcess(Options{
		ModuleID:   moduleID,
		EntryPoint: entry,
		LogLevel:   m.opts.LogLevel,
		QuitGrace:  m.opts.QuitGrace,
		TermGrace:  m.opts.TermGrace,
	}, m.listener, m.logger)
	m.processes[moduleID] = p

	m.logger.Info("module supervisor created",
		logging.String(logging.FieldEventType, "module_created"),
		logging.String(logging.FieldModuleID, moduleID),
	)
	return p, nil
}

// Module returns the supervisor for moduleID if it exists.
func (m *Manager) Module(moduleID string) (*Process, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.processes[moduleID]
	return p, ok
}

// Modules returns every known supervisor sorted by module id.
func (m *Manager) Modules() []*Process {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Process, 0, len(m.processes))
	for _, p := range m.processes {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModuleID() < out[j].ModuleID() })
	return out
}

// RunningModuleIDs returns the ids of modules with a live subprocess,
// sorted. Used for the restore file.
func (m *Manager) RunningModuleIDs() []string {
	var ids []string
	for _, p := range m.Modules() {
		if p.Running() {
			ids = append(ids, p.ModuleID())
		}
	}
	return ids
}

// StartModule spawns the module's subprocess, creating the supervisor if
// needed.
func (m *Manager) StartModule(ctx context.Context, moduleID string) error {
	p, err := m.process(moduleID)
	if err != nil {
		return err
	}
	return p.Start(ctx)
}

// AssignDevice routes a device to its owning module, starting the module's
// subprocess first if it is not running.
func (m *Manager) AssignDevice(ctx context.Context, d device.Discovered) error {
	moduleID := d.Spec.OwningModuleID
	if moduleID == "" {
		return fmt.Errorf("device %s has no owning module", d.DeviceID)
	}
	p, err := m.process(moduleID)
	if err != nil {
		return err
	}
	if !p.Running() {
		if err := p.Start(ctx); err != nil {
			return err
		}
	}
	return p.AssignDevice(ctx, d)
}

// UnassignDevice takes a device back from its owning module. The module
// process keeps running; losing a device does not stop its module.
func (m *Manager) UnassignDevice(ctx context.Context, d device.Discovered) error {
	moduleID := d.Spec.OwningModuleID
	if moduleID == "" {
		return nil
	}
	p, ok := m.Module(moduleID)
	if !ok || !p.Running() {
		return nil
	}
	return p.UnassignDevice(ctx, d)
}

// Broadcast sends a command to every running module. The first queue
// rejection is reported but does not stop the fan-out.
func (m *Manager) Broadcast(cmd func() proto.Command) error {
	var firstErr error
	for _, p := range m.Modules() {
		if !p.Running() {
			continue
		}
		if err := p.Send(cmd()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// StopModule gracefully stops one module's subprocess.
func (m *Manager) StopModule(ctx context.Context, moduleID string) error {
	p, ok := m.Module(moduleID)
	if !ok {
		return nil
	}
	return p.Stop(ctx)
}

// StopAll stops every module process, in parallel, and returns when all
// have reached Stopped.
func (m *Manager) StopAll(ctx context.Context) {
	processes := m.Modules()
	var wg sync.WaitGroup
	for _, p := range processes {
		if !p.Running() {
			continue
		}
		wg.Add(1)
		go func(p *Process) {
			defer wg.Done()
			if err := p.Stop(ctx); err != nil {
				m.logger.Warn("module stop failed",
					logging.Error(err),
					logging.String(logging.FieldModuleID, p.ModuleID()),
				)
			}
		}(p)
	}
	wg.Wait()
}
