package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"conductor/internal/config"
	"conductor/internal/connection"
	"conductor/internal/device"
	"conductor/internal/journal"
	"conductor/internal/logging"
	"conductor/internal/mesh"
	"conductor/internal/module"
	"conductor/internal/proto"
	"conductor/internal/scanner"
	"conductor/internal/session"
	"conductor/internal/shutdown"
)

// Daemon composes the supervisor's layers and owns their lifecycles.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	registry    *device.Registry
	journal     *journal.Store
	recorder    *recorder
	wired       *scanner.Wired
	netlink     *scanner.NetlinkListener
	mesh        *mesh.Manager
	connections *connection.Manager
	modules     *module.Manager
	sessions    *session.Controller
	coordinator *shutdown.Coordinator
	api         *APIServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
}

// Status is the daemon's runtime snapshot.
type Status struct {
	Running       bool           `json:"running"`
	PID           int            `json:"pid"`
	LockPath      string         `json:"lock_path"`
	JournalPath   string         `json:"journal_path"`
	ShutdownPhase shutdown.Phase `json:"shutdown_phase"`
	DeviceCount   int            `json:"device_count"`
	Session       *session.Info  `json:"session,omitempty"`
	Modules       []ModuleInfo   `json:"modules"`
}

// ModuleInfo summarizes one module process for status surfaces.
type ModuleInfo struct {
	ModuleID        string       `json:"module_id"`
	State           module.State `json:"state"`
	AssignedDevices []string     `json:"assigned_devices"`
	LastError       string       `json:"last_error,omitempty"`
}

// New constructs the daemon and wires the layers together. Nothing runs
// until Start.
func New(cfg *config.Config, store *journal.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and journal store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	registry := device.NewRegistry()
	recorder := newRecorder(store, cfg.Journal.RetainEvents, logger)

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		registry: registry,
		journal:  store,
		recorder: recorder,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}

	d.modules = module.NewManager(module.ManagerOptions{
		EntryPoints: cfg.Modules.EntryPoints,
		LogLevel:    cfg.Modules.LogLevel,
		QuitGrace:   time.Duration(cfg.Modules.QuitGraceSeconds) * time.Second,
		TermGrace:   time.Duration(cfg.Modules.TermGraceSeconds) * time.Second,
	}, &moduleEvents{
		journal: recorder,
		crashed: func(moduleID string) { d.connections.ModuleCrashed(moduleID) },
	}, logger)

	enumerator := scanner.NewSysfsEnumerator()
	d.mesh = mesh.NewManager(registry, enumerator, mesh.NewSerialOpener(), meshSinkFunc(d.handleMeshEvent), logger, mesh.Options{
		PollInterval:       time.Duration(cfg.Mesh.PollInterval) * time.Second,
		RediscoverInterval: time.Duration(cfg.Mesh.RediscoverInterval) * time.Second,
		DiscoveryTimeout:   time.Duration(cfg.Mesh.DiscoveryTimeout) * time.Second,
	})

	d.connections = connection.NewManager(registry, d.modules, d.mesh, logger)
	d.connections.AddListener(recorder)

	d.wired = scanner.NewWired(registry, enumerator, d.connections, logger,
		time.Duration(cfg.Discovery.WiredPollInterval)*time.Second)
	if cfg.Discovery.NetlinkEvents {
		d.netlink = scanner.NewNetlinkListener(d.wired, logger)
	}

	d.sessions = session.NewController(d.modules, cfg.Paths.DataDir, logger)
	d.coordinator = shutdown.New(logger)
	d.api = NewAPIServer(cfg.Paths.APIBind, d, logger)

	return d, nil
}

func (d *Daemon) handleMeshEvent(evt mesh.Event) {
	d.connections.HandleMeshEvent(evt)
}

// moduleEvents fans module lifecycle notifications out to the journal
// recorder and, on a crash, to the connection manager so the crashed
// module's devices drop back to discovered.
type moduleEvents struct {
	journal module.Listener
	crashed func(moduleID string)
}

func (e *moduleEvents) HandleModuleState(moduleID string, state module.State) {
	e.journal.HandleModuleState(moduleID, state)
	if state == module.StateCrashed && e.crashed != nil {
		e.crashed(moduleID)
	}
}

func (e *moduleEvents) HandleModuleStatus(moduleID string, st proto.Status) {
	e.journal.HandleModuleStatus(moduleID, st)
}

// meshSinkFunc adapts a function to the mesh sink interface.
type meshSinkFunc func(mesh.Event)

func (f meshSinkFunc) HandleMeshEvent(evt mesh.Event) { f(evt) }

// Start acquires the single-instance lock, replays the restore snapshot,
// and launches discovery.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another conductor daemon instance is already running")
	}

	d.registerShutdownSteps()
	d.restoreModules(ctx)

	if err := d.wired.Start(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("start wired scanner: %w", err)
	}
	if d.netlink != nil {
		_ = d.netlink.Start(ctx)
	}
	if err := d.mesh.Start(ctx); err != nil {
		d.wired.Stop()
		_ = d.lock.Unlock()
		return fmt.Errorf("start mesh manager: %w", err)
	}
	d.api.Start()

	d.running.Store(true)
	d.recorder.lifecycle(ctx, "daemon_started", "")
	d.logger.Info("conductor daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
	)
	return nil
}

// restoreModules replays the one-shot restore snapshot from the previous
// shutdown.
func (d *Daemon) restoreModules(ctx context.Context) {
	state, found, err := shutdown.ConsumeRestore(d.cfg.RestorePath())
	if err != nil {
		d.logger.Warn("restore snapshot unreadable; starting clean",
			logging.Error(err),
			logging.String(logging.FieldEventType, "restore_failed"),
		)
		return
	}
	if !found {
		return
	}
	for _, moduleID := range state.RunningModuleIDs {
		if err := d.modules.StartModule(ctx, moduleID); err != nil {
			d.logger.Warn("module restore failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "module_restore_failed"),
				logging.String(logging.FieldModuleID, moduleID),
			)
		}
	}
	d.logger.Info("restored modules from previous run",
		logging.String(logging.FieldEventType, "modules_restored"),
		logging.Int("count", len(state.RunningModuleIDs)),
		logging.String("snapshot_time", state.Timestamp.Format(time.RFC3339)),
	)
}

func (d *Daemon) registerShutdownSteps() {
	d.coordinator.Register("stop session", func(ctx context.Context) error {
		return d.sessions.Stop(ctx)
	})
	d.coordinator.Register("disconnect devices", func(ctx context.Context) error {
		for _, dev := range d.connections.Devices() {
			if dev.State != device.StateConnected && dev.State != device.StateError {
				continue
			}
			if err := d.connections.Disconnect(ctx, dev.DeviceID); err != nil {
				d.logger.Warn("disconnect during shutdown failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "disconnect_failed"),
					logging.String(logging.FieldDeviceID, dev.DeviceID),
				)
			}
		}
		return nil
	})
	d.coordinator.Register("write restore snapshot", func(ctx context.Context) error {
		return shutdown.WriteRestore(d.cfg.RestorePath(), d.modules.RunningModuleIDs())
	})
	d.coordinator.Register("stop modules", func(ctx context.Context) error {
		d.modules.StopAll(ctx)
		return nil
	})
	d.coordinator.Register("stop mesh manager", func(ctx context.Context) error {
		d.mesh.Stop()
		return nil
	})
	if d.netlink != nil {
		d.coordinator.Register("stop netlink listener", func(ctx context.Context) error {
			d.netlink.Stop()
			return nil
		})
	}
	d.coordinator.Register("stop wired scanner", func(ctx context.Context) error {
		d.wired.Stop()
		return nil
	})
	d.coordinator.Register("stop http api", func(ctx context.Context) error {
		return d.api.Stop(ctx)
	})
	d.coordinator.Register("record shutdown", func(ctx context.Context) error {
		d.recorder.lifecycle(ctx, "daemon_stopped", "")
		return nil
	})
	d.coordinator.Register("release lock", func(ctx context.Context) error {
		return d.lock.Unlock()
	})
}

// Stop runs the ordered teardown exactly once and waits for completion.
func (d *Daemon) Stop(ctx context.Context) {
	if !d.running.Load() {
		return
	}
	d.coordinator.Shutdown(ctx)
	d.running.Store(false)
}

// Close releases all daemon resources including the journal.
func (d *Daemon) Close() error {
	d.Stop(context.Background())
	return d.journal.Close()
}

// ShutdownPhase reports teardown progress.
func (d *Daemon) ShutdownPhase() shutdown.Phase {
	return d.coordinator.Phase()
}

// Status returns the daemon's runtime snapshot.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		LockPath:      d.lockPath,
		JournalPath:   d.cfg.JournalPath(),
		ShutdownPhase: d.coordinator.Phase(),
		DeviceCount:   len(d.connections.Devices()),
	}
	if info, active := d.sessions.Active(); active {
		status.Session = &info
	}
	for _, p := range d.modules.Modules() {
		status.Modules = append(status.Modules, ModuleInfo{
			ModuleID:        p.ModuleID(),
			State:           p.State(),
			AssignedDevices: p.AssignedDevices(),
			LastError:       p.LastError(),
		})
	}
	return status
}

// Devices returns the unified device view.
func (d *Daemon) Devices() []device.Discovered {
	return d.connections.Devices()
}

// Device returns one device by id.
func (d *Daemon) Device(id string) (device.Discovered, bool) {
	return d.connections.Device(id)
}

// Connect assigns a device to its owning module.
func (d *Daemon) Connect(ctx context.Context, deviceID string) error {
	return d.connections.Connect(ctx, deviceID)
}

// Disconnect takes a device back from its module.
func (d *Daemon) Disconnect(ctx context.Context, deviceID string) error {
	return d.connections.Disconnect(ctx, deviceID)
}

// Modules summarizes the module processes.
func (d *Daemon) Modules() []ModuleInfo {
	var out []ModuleInfo
	for _, p := range d.modules.Modules() {
		out = append(out, ModuleInfo{
			ModuleID:        p.ModuleID(),
			State:           p.State(),
			AssignedDevices: p.AssignedDevices(),
			LastError:       p.LastError(),
		})
	}
	return out
}

// StartModule launches one module process by id.
func (d *Daemon) StartModule(ctx context.Context, moduleID string) error {
	return d.modules.StartModule(ctx, moduleID)
}

// StopModule gracefully stops one module process by id.
func (d *Daemon) StopModule(ctx context.Context, moduleID string) error {
	return d.modules.StopModule(ctx, moduleID)
}

// SessionStart opens a recording session.
func (d *Daemon) SessionStart(ctx context.Context) (session.Info, error) {
	info, err := d.sessions.Start(ctx)
	if err == nil {
		d.recorder.session(ctx, "session_started", info.ID)
	}
	return info, err
}

// SessionStop closes the active session.
func (d *Daemon) SessionStop(ctx context.Context) error {
	info, active := d.sessions.Active()
	if err := d.sessions.Stop(ctx); err != nil {
		return err
	}
	if active {
		d.recorder.session(ctx, "session_stopped", info.ID)
	}
	return nil
}

// SessionRecord starts capture in the active session.
func (d *Daemon) SessionRecord(ctx context.Context) error {
	return d.sessions.Record(ctx)
}

// SessionPause pauses capture in the active session.
func (d *Daemon) SessionPause(ctx context.Context) error {
	return d.sessions.Pause(ctx)
}

// ActiveSession returns the open session, if any.
func (d *Daemon) ActiveSession() (session.Info, bool) {
	return d.sessions.Active()
}

// EventTail returns the newest journal events.
func (d *Daemon) EventTail(ctx context.Context, limit int) ([]journal.Event, error) {
	return d.journal.Tail(ctx, limit)
}
