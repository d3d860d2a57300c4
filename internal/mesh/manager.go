package mesh

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"conductor/internal/device"
	"conductor/internal/logging"
	"conductor/internal/scanner"
)

// State is the manager's lifecycle position. Disabled is only reported
// per-family through StateFor; the manager itself cycles through the
// remaining states.
type State string

const (
	StateDisabled    State = "disabled"
	StateScanning    State = "scanning"
	StateConnected   State = "connected"
	StateDiscovering State = "discovering"
)

// EventKind distinguishes the mesh event types.
type EventKind int

const (
	NodeFound EventKind = iota
	NodeLost
	NodeTelemetry
)

func (k EventKind) String() string {
	switch k {
	case NodeFound:
		return "node_found"
	case NodeLost:
		return "node_lost"
	default:
		return "node_telemetry"
	}
}

// Event is delivered to the sink for node arrival, loss, and telemetry.
type Event struct {
	Kind   EventKind
	Device device.Discovered
}

// Sink receives mesh events from the manager goroutine.
type Sink interface {
	HandleMeshEvent(Event)
}

// NodeInfo is one remote node reported by a discovery pass.
type NodeInfo struct {
	Addr           string
	Name           string
	SignalDBM      int
	BatteryPercent int
}

// Coordinator is an open mesh radio dongle.
type Coordinator interface {
	// Discover runs one network discovery pass and returns the visible nodes.
	Discover(ctx context.Context) ([]NodeInfo, error)
	Close() error
}

// Opener opens a coordinator on a serial port.
type Opener interface {
	Open(ctx context.Context, port string, baud int) (Coordinator, error)
}

// Options configures manager timing.
type Options struct {
	PollInterval       time.Duration
	RediscoverInterval time.Duration
	DiscoveryTimeout   time.Duration
}

func (o *Options) fill() {
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.RediscoverInterval <= 0 {
		o.RediscoverInterval = 30 * time.Second
	}
	if o.DiscoveryTimeout <= 0 {
		o.DiscoveryTimeout = 10 * time.Second
	}
}

// Manager owns the coordinator lifecycle and the set of visible nodes.
type Manager struct {
	registry   *device.Registry
	enumerator scanner.Enumerator
	opener     Opener
	sink       Sink
	logger     *slog.Logger
	opts       Options

	mu            sync.Mutex
	running       bool
	state         State
	coordinator   Coordinator
	coordinatorID string
	nodes         map[string]device.Discovered
	disabled      map[device.Family]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager constructs a mesh manager. The enumerator is polled for the
// coordinator dongle's vendor/product id independently of the wired scanner.
func NewManager(registry *device.Registry, enumerator scanner.Enumerator, opener Opener, sink Sink, logger *slog.Logger, opts Options) *Manager {
	opts.fill()
	return &Manager{
		registry:   registry,
		enumerator: enumerator,
		opener:     opener,
		sink:       sink,
		logger:     logging.NewComponentLogger(logger, "mesh-manager"),
		opts:       opts,
		state:      StateScanning,
		nodes:      make(map[string]device.Discovered),
		disabled:   make(map[device.Family]bool),
	}
}

// Start launches the coordinator poll loop. Idempotent while running.
func (m *Manager) Start(ctx context.Context) error {
	if m == nil {
		return errors.New("mesh manager unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.ctx = runCtx
	m.cancel = cancel
	m.running = true
	m.state = StateScanning

	m.wg.Add(1)
	go m.loop()

	m.logger.Info("mesh manager started",
		logging.String(logging.FieldEventType, "mesh_manager_started"),
		logging.Duration("poll_interval", m.opts.PollInterval),
		logging.Duration("rediscover_interval", m.opts.RediscoverInterval),
	)
	return nil
}

// Stop halts the loop, closes the coordinator, and drops all nodes.
func (m *Manager) Stop() {
	if m == nil {
		return
	}
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	m.dropCoordinator("manager stopped")

	m.logger.Info("mesh manager stopped",
		logging.String(logging.FieldEventType, "mesh_manager_stopped"),
	)
}

// StateFor reports the manager state as seen by one family: Disabled when
// that family is suppressed by mutual exclusion, the shared state otherwise.
func (m *Manager) StateFor(family device.Family) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disabled[family] {
		return StateDisabled
	}
	return m.state
}

// SetFamilyEnabled flips mutual-exclusion suppression for one family.
// Disabling drops that family's tracked nodes immediately; re-enabling lets
// the next discovery pass report them again.
func (m *Manager) SetFamilyEnabled(family device.Family, enabled bool) {
	m.mu.Lock()
	already := !m.disabled[family] == enabled
	if already {
		m.mu.Unlock()
		return
	}
	m.disabled[family] = !enabled

	var dropped []device.Discovered
	if !enabled {
		for addr, d := range m.nodes {
			if d.Spec.Family == family {
				delete(m.nodes, addr)
				dropped = append(dropped, d.Clone())
			}
		}
	}
	m.mu.Unlock()

	m.logger.Info("wireless family toggled",
		logging.String(logging.FieldEventType, "mesh_family_toggled"),
		logging.String("family", string(family)),
		logging.Bool("enabled", enabled),
	)
	for _, d := range dropped {
		m.emit(Event{Kind: NodeLost, Device: d})
	}
}

// Nodes returns a snapshot of tracked nodes sorted by device id.
func (m *Manager) Nodes() []device.Discovered {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]device.Discovered, 0, len(m.nodes))
	for _, d := range m.nodes {
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

func (m *Manager) loop() {
	defer m.wg.Done()

	m.pollCoordinator()

	poll := time.NewTicker(m.opts.PollInterval)
	defer poll.Stop()
	rediscover := time.NewTicker(m.opts.RediscoverInterval)
	defer rediscover.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-poll.C:
			m.pollCoordinator()
		case <-rediscover.C:
			m.mu.Lock()
			open := m.coordinator != nil
			m.mu.Unlock()
			if open {
				m.discover()
			}
		}
	}
}

// pollCoordinator checks whether the coordinator dongle is enumerated,
// opening or dropping it as needed.
func (m *Manager) pollCoordinator() {
	ctx := m.ctx
	if ctx == nil || ctx.Err() != nil {
		return
	}

	spec, ok := m.registry.CoordinatorSpec()
	if !ok {
		return
	}

	ports, err := m.enumerator.Enumerate(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("coordinator enumeration failed; will retry next cycle",
				logging.Error(err),
				logging.String(logging.FieldEventType, "mesh_enumeration_failed"),
				logging.String(logging.FieldErrorHint, "check udev/sysfs access permissions"),
				logging.String(logging.FieldImpact, "wireless discovery delayed"),
			)
		}
		return
	}

	var portPath string
	for _, port := range ports {
		if port.VendorID == spec.VendorID && port.ProductID == spec.ProductID {
			portPath = port.Path
			break
		}
	}

	m.mu.Lock()
	open := m.coordinator != nil
	currentID := m.coordinatorID
	m.mu.Unlock()

	switch {
	case portPath == "" && open:
		m.dropCoordinator("coordinator detached")
	case portPath != "" && !open:
		m.openCoordinator(ctx, portPath, spec.BaudRate)
	case portPath != "" && open && portPath != currentID:
		// The dongle moved ports between polls; reopen on the new path.
		m.dropCoordinator("coordinator port changed")
		m.openCoordinator(ctx, portPath, spec.BaudRate)
	}
}

func (m *Manager) openCoordinator(ctx context.Context, port string, baud int) {
	coordinator, err := m.opener.Open(ctx, port, baud)
	if err != nil {
		m.logger.Warn("coordinator open failed; will retry next cycle",
			logging.Error(err),
			logging.String(logging.FieldEventType, "mesh_coordinator_open_failed"),
			logging.String("port", port),
			logging.String(logging.FieldErrorHint, "check serial permissions and that no other process holds the port"),
			logging.String(logging.FieldImpact, "wireless nodes unavailable"),
		)
		return
	}

	m.mu.Lock()
	m.coordinator = coordinator
	m.coordinatorID = port
	m.state = StateConnected
	m.mu.Unlock()

	m.logger.Info("coordinator connected",
		logging.String(logging.FieldEventType, "mesh_coordinator_connected"),
		logging.String("port", port),
	)

	m.discover()
}

// dropCoordinator closes the dongle and reports every tracked node lost.
func (m *Manager) dropCoordinator(reason string) {
	m.mu.Lock()
	coordinator := m.coordinator
	m.coordinator = nil
	m.coordinatorID = ""
	m.state = StateScanning
	dropped := make([]device.Discovered, 0, len(m.nodes))
	for addr, d := range m.nodes {
		delete(m.nodes, addr)
		dropped = append(dropped, d.Clone())
	}
	m.mu.Unlock()

	if coordinator != nil {
		_ = coordinator.Close()
		m.logger.Info("coordinator disconnected",
			logging.String(logging.FieldEventType, "mesh_coordinator_disconnected"),
			logging.String("reason", reason),
			logging.Int("nodes_dropped", len(dropped)),
		)
	}
	for _, d := range dropped {
		m.emit(Event{Kind: NodeLost, Device: d})
	}
}

// discover runs one network discovery pass. Failures log and wait for the
// next scheduled rediscovery; they never tear down the coordinator.
func (m *Manager) discover() {
	ctx := m.ctx
	if ctx == nil || ctx.Err() != nil {
		return
	}

	m.mu.Lock()
	coordinator := m.coordinator
	coordinatorID := m.coordinatorID
	if coordinator == nil {
		m.mu.Unlock()
		return
	}
	m.state = StateDiscovering
	m.mu.Unlock()

	discoverCtx, cancel := context.WithTimeout(ctx, m.opts.DiscoveryTimeout)
	nodes, err := coordinator.Discover(discoverCtx)
	cancel()

	m.mu.Lock()
	if m.coordinator == coordinator {
		m.state = StateConnected
	}
	m.mu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.logger.Warn("network discovery failed; will retry at next rediscovery",
			logging.Error(err),
			logging.String(logging.FieldEventType, "mesh_discovery_failed"),
			logging.String(logging.FieldErrorHint, "check coordinator firmware and radio range"),
			logging.String(logging.FieldImpact, "late-joining nodes not yet visible"),
		)
		return
	}

	var found []device.Discovered
	var telemetry []device.Discovered

	m.mu.Lock()
	for _, node := range nodes {
		spec, ok := m.registry.LookupWirelessName(node.Name)
		if !ok {
			m.logger.Debug("ignoring unrecognized node name",
				logging.String("name", node.Name),
				logging.String("addr", node.Addr),
			)
			continue
		}
		if m.disabled[spec.Family] {
			continue
		}
		id := "mesh:" + node.Addr
		if existing, tracked := m.nodes[id]; tracked {
			existing.BatteryPercent = node.BatteryPercent
			existing.SignalDBM = node.SignalDBM
			m.nodes[id] = existing
			telemetry = append(telemetry, existing.Clone())
			continue
		}
		d := device.Discovered{
			DeviceID:       id,
			Spec:           spec,
			State:          device.StateDiscovered,
			BatteryPercent: node.BatteryPercent,
			SignalDBM:      node.SignalDBM,
			CoordinatorID:  coordinatorID,
			FirstSeen:      time.Now(),
		}
		m.nodes[id] = d
		found = append(found, d.Clone())
	}
	m.mu.Unlock()

	for _, d := range found {
		m.logger.Info("node discovered",
			logging.String(logging.FieldEventType, "mesh_node_found"),
			logging.String(logging.FieldDeviceID, d.DeviceID),
			logging.String("display_name", d.Spec.DisplayName),
			logging.Int("battery_percent", d.BatteryPercent),
			logging.Int("signal_dbm", d.SignalDBM),
		)
		m.emit(Event{Kind: NodeFound, Device: d})
	}
	for _, d := range telemetry {
		m.emit(Event{Kind: NodeTelemetry, Device: d})
	}
}

func (m *Manager) emit(evt Event) {
	if m.sink != nil {
		m.sink.HandleMeshEvent(evt)
	}
}
