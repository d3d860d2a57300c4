package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"conductor/internal/device"
	"conductor/internal/logging"
	"conductor/internal/mesh"
	"conductor/internal/scanner"
)

var (
	// ErrDeviceNotFound is returned when the device id is not in the
	// unified view.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrDeviceVanished is returned when a device disappears while a
	// connect is in flight.
	ErrDeviceVanished = errors.New("device vanished during connect")
	// ErrAssignRejected wraps a module's refusal to take a device.
	ErrAssignRejected = errors.New("module rejected device assignment")
	// ErrNotConnectable is returned for devices that have no owning module,
	// such as the mesh coordinator dongle.
	ErrNotConnectable = errors.New("device is not connectable")
)

// EventKind classifies unified-view changes.
type EventKind int

const (
	DeviceDiscovered EventKind = iota
	DeviceLost
	DeviceConnected
	DeviceDisconnected
	DeviceUpdated
)

func (k EventKind) String() string {
	switch k {
	case DeviceDiscovered:
		return "device_discovered"
	case DeviceLost:
		return "device_lost"
	case DeviceConnected:
		return "device_connected"
	case DeviceDisconnected:
		return "device_disconnected"
	default:
		return "device_updated"
	}
}

// Event describes one change to the unified device view. Listeners receive
// events strictly after the state change is committed.
type Event struct {
	Kind   EventKind
	Device device.Discovered
}

// Listener receives unified device events.
type Listener interface {
	HandleDeviceEvent(Event)
}

// Assigner hands devices to and takes them back from their owning modules.
// Implemented by the module manager.
type Assigner interface {
	AssignDevice(ctx context.Context, d device.Discovered) error
	UnassignDevice(ctx context.Context, d device.Discovered) error
}

// MeshControl is the slice of the mesh manager the connection manager needs
// for mutual exclusion.
type MeshControl interface {
	SetFamilyEnabled(family device.Family, enabled bool)
}

// Manager holds the unified device view.
type Manager struct {
	registry *device.Registry
	assigner Assigner
	meshCtl  MeshControl
	logger   *slog.Logger

	mu        sync.Mutex
	devices   map[string]device.Discovered
	listeners []Listener
}

// NewManager builds a connection manager. meshCtl may be nil when wireless
// support is disabled entirely.
func NewManager(registry *device.Registry, assigner Assigner, meshCtl MeshControl, logger *slog.Logger) *Manager {
	return &Manager{
		registry: registry,
		assigner: assigner,
		meshCtl:  meshCtl,
		logger:   logging.NewComponentLogger(logger, "connection-manager"),
		devices:  make(map[string]device.Discovered),
	}
}

// AddListener registers a listener for unified device events.
func (m *Manager) AddListener(l Listener) {
	if l == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Devices returns the unified view sorted by device id.
func (m *Manager) Devices() []device.Discovered {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]device.Discovered, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// Device looks up one device by id.
func (m *Manager) Device(id string) (device.Discovered, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return device.Discovered{}, false
	}
	return d.Clone(), true
}

// HandleScannerEvent merges wired scanner events into the unified view.
func (m *Manager) HandleScannerEvent(evt scanner.Event) {
	switch evt.Kind {
	case scanner.DeviceFound:
		m.deviceFound(evt.Device)
	case scanner.DeviceLost:
		m.deviceLost(evt.Device.DeviceID)
	}
}

// HandleMeshEvent merges mesh events into the unified view.
func (m *Manager) HandleMeshEvent(evt mesh.Event) {
	switch evt.Kind {
	case mesh.NodeFound:
		m.deviceFound(evt.Device)
	case mesh.NodeLost:
		m.deviceLost(evt.Device.DeviceID)
	case mesh.NodeTelemetry:
		m.telemetry(evt.Device)
	}
}

func (m *Manager) deviceFound(d device.Discovered) {
	m.mu.Lock()
	if _, exists := m.devices[d.DeviceID]; exists {
		m.mu.Unlock()
		return
	}
	d.State = device.StateDiscovered
	m.devices[d.DeviceID] = d
	snapshot := d.Clone()
	m.mu.Unlock()

	m.broadcast(Event{Kind: DeviceDiscovered, Device: snapshot})
}

func (m *Manager) deviceLost(id string) {
	m.mu.Lock()
	d, exists := m.devices[id]
	if !exists {
		m.mu.Unlock()
		return
	}
	delete(m.devices, id)
	wasConnected := d.State == device.StateConnected || d.State == device.StateConnecting
	snapshot := d.Clone()
	m.mu.Unlock()

	if wasConnected {
		if m.assigner != nil {
			// The hardware is already gone; unassign so the module drops
			// its handle. Failure here is logged, not surfaced.
			if err := m.assigner.UnassignDevice(context.Background(), snapshot); err != nil {
				m.logger.Warn("unassign after device loss failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "unassign_failed"),
					logging.String(logging.FieldDeviceID, id),
					logging.String(logging.FieldImpact, "module may briefly reference a gone device"),
				)
			}
		}
		m.updateExclusion(snapshot.Spec.Family)
	}

	m.logger.Info("device removed from unified view",
		logging.String(logging.FieldEventType, "device_lost"),
		logging.String(logging.FieldDeviceID, id),
		logging.Bool("was_connected", wasConnected),
	)
	m.broadcast(Event{Kind: DeviceLost, Device: snapshot})
}

func (m *Manager) telemetry(d device.Discovered) {
	m.mu.Lock()
	existing, exists := m.devices[d.DeviceID]
	if !exists {
		m.mu.Unlock()
		return
	}
	existing.BatteryPercent = d.BatteryPercent
	existing.SignalDBM = d.SignalDBM
	m.devices[d.DeviceID] = existing
	snapshot := existing.Clone()
	m.mu.Unlock()

	m.broadcast(Event{Kind: DeviceUpdated, Device: snapshot})
}

// Connect assigns a discovered device to its owning module. Connecting a
// device that is already connected, or whose connect is still in flight, is
// a no-op.
func (m *Manager) Connect(ctx context.Context, id string) error {
	m.mu.Lock()
	d, exists := m.devices[id]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("connect %s: %w", id, ErrDeviceNotFound)
	}
	if d.State == device.StateConnected || d.State == device.StateConnecting {
		m.mu.Unlock()
		return nil
	}
	if d.Spec.WirelessCoordinator || d.Spec.OwningModuleID == "" {
		m.mu.Unlock()
		return fmt.Errorf("connect %s: %w", id, ErrNotConnectable)
	}
	d.State = device.StateConnecting
	m.devices[id] = d
	snapshot := d.Clone()
	m.mu.Unlock()

	err := m.assigner.AssignDevice(ctx, snapshot)

	m.mu.Lock()
	current, still := m.devices[id]
	if !still {
		m.mu.Unlock()
		if err == nil {
			// Assigned a device that vanished mid-flight; roll back.
			if uerr := m.assigner.UnassignDevice(context.Background(), snapshot); uerr != nil {
				m.logger.Warn("rollback unassign failed",
					logging.Error(uerr),
					logging.String(logging.FieldEventType, "unassign_failed"),
					logging.String(logging.FieldDeviceID, id),
				)
			}
		}
		return fmt.Errorf("connect %s: %w", id, ErrDeviceVanished)
	}
	if err != nil {
		current.State = device.StateError
		m.devices[id] = current
		m.mu.Unlock()
		return fmt.Errorf("connect %s: %w: %w", id, ErrAssignRejected, err)
	}
	current.State = device.StateConnected
	m.devices[id] = current
	snapshot = current.Clone()
	m.mu.Unlock()

	m.updateExclusion(snapshot.Spec.Family)

	m.logger.Info("device connected",
		logging.String(logging.FieldEventType, "device_connected"),
		logging.String(logging.FieldDeviceID, id),
		logging.String(logging.FieldModuleID, snapshot.Spec.OwningModuleID),
		logging.String("transport", string(snapshot.Spec.Transport)),
	)
	m.broadcast(Event{Kind: DeviceConnected, Device: snapshot})
	return nil
}

// Disconnect unassigns a connected device. Disconnecting a device that is
// not connected is a no-op.
func (m *Manager) Disconnect(ctx context.Context, id string) error {
	m.mu.Lock()
	d, exists := m.devices[id]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("disconnect %s: %w", id, ErrDeviceNotFound)
	}
	if d.State != device.StateConnected && d.State != device.StateError {
		m.mu.Unlock()
		return nil
	}
	snapshot := d.Clone()
	m.mu.Unlock()

	if err := m.assigner.UnassignDevice(ctx, snapshot); err != nil {
		m.logger.Warn("unassign failed during disconnect",
			logging.Error(err),
			logging.String(logging.FieldEventType, "unassign_failed"),
			logging.String(logging.FieldDeviceID, id),
		)
	}

	m.mu.Lock()
	current, still := m.devices[id]
	if still {
		current.State = device.StateDiscovered
		m.devices[id] = current
		snapshot = current.Clone()
	}
	m.mu.Unlock()

	m.updateExclusion(snapshot.Spec.Family)

	m.logger.Info("device disconnected",
		logging.String(logging.FieldEventType, "device_disconnected"),
		logging.String(logging.FieldDeviceID, id),
	)
	if still {
		m.broadcast(Event{Kind: DeviceDisconnected, Device: snapshot})
	}
	return nil
}

// ModuleCrashed releases every device held by a crashed module. The devices
// return to the discovered state and must be explicitly connected again; the
// subprocess that held them is gone, so no unassign is sent.
func (m *Manager) ModuleCrashed(moduleID string) {
	m.mu.Lock()
	var released []device.Discovered
	for id, d := range m.devices {
		if d.Spec.OwningModuleID != moduleID {
			continue
		}
		if d.State != device.StateConnected && d.State != device.StateConnecting {
			continue
		}
		d.State = device.StateDiscovered
		m.devices[id] = d
		released = append(released, d.Clone())
	}
	m.mu.Unlock()

	if len(released) == 0 {
		return
	}

	families := make(map[device.Family]struct{})
	for _, d := range released {
		families[d.Spec.Family] = struct{}{}
	}
	for family := range families {
		m.updateExclusion(family)
	}

	for _, d := range released {
		m.logger.Warn("device released after module crash",
			logging.String(logging.FieldEventType, "device_released"),
			logging.String(logging.FieldDeviceID, d.DeviceID),
			logging.String(logging.FieldModuleID, moduleID),
			logging.String(logging.FieldImpact, "device must be connected again"),
		)
		m.broadcast(Event{Kind: DeviceDisconnected, Device: d})
	}
}

// updateExclusion recomputes the wired-vs-wireless rule for one family:
// wireless discovery for a family is suppressed while any wired device of
// that wireless-capable family is connected.
func (m *Manager) updateExclusion(family device.Family) {
	if m.meshCtl == nil || !m.registry.WirelessCapable(family) {
		return
	}

	m.mu.Lock()
	wiredConnected := false
	for _, d := range m.devices {
		if d.Spec.Family == family &&
			d.Spec.Transport == device.TransportWired &&
			!d.Spec.WirelessCoordinator &&
			d.State == device.StateConnected {
			wiredConnected = true
			break
		}
	}
	m.mu.Unlock()

	m.meshCtl.SetFamilyEnabled(family, !wiredConnected)
}

func (m *Manager) broadcast(evt Event) {
	m.mu.Lock()
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, l := range listeners {
		l.HandleDeviceEvent(evt)
	}
}
