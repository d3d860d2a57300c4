package device

import "time"

// Family identifies a class of interchangeable sensor hardware. A family may
// have wired and wireless variants; all variants are owned by one module.
type Family string

const (
	FamilyCamera     Family = "camera"
	FamilyAudio      Family = "audio"
	FamilyGPS        Family = "gps"
	FamilyDRT        Family = "drt"
	FamilyVOG        Family = "vog"
	FamilyEyeTracker Family = "eyetracker"
)

// Transport distinguishes how a device reaches the supervisor.
type Transport string

const (
	TransportWired    Transport = "wired"
	TransportWireless Transport = "wireless"
)

// Spec is the immutable registry record for one hardware variant.
type Spec struct {
	Family    Family
	VendorID  uint16
	ProductID uint16
	// WirelessPrefix is the advertised-name prefix for mesh nodes of this
	// variant; empty for wired-only variants.
	WirelessPrefix string
	BaudRate       int
	DisplayName    string
	// OwningModuleID names the module subprocess that records this family.
	OwningModuleID string
	Transport      Transport
	// WirelessCoordinator marks the mesh radio dongle itself rather than a
	// sensor. Coordinator devices are never assigned to modules.
	WirelessCoordinator bool
}

// State tracks a discovered device through its connection lifecycle.
type State string

const (
	StateDiscovered State = "discovered"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateError      State = "error"
)

// Discovered is one visible device. DeviceID is the cross-layer identity key:
// the serial port path for wired devices, or "mesh:<addr>" for wireless
// nodes. It is stable for the device's connected lifetime.
type Discovered struct {
	DeviceID string
	Spec     Spec
	State    State
	// BatteryPercent is -1 until the first telemetry report arrives.
	BatteryPercent int
	// SignalDBM is 0 until the first telemetry report arrives.
	SignalDBM int
	// CoordinatorID names the owning coordinator for wireless nodes.
	CoordinatorID string
	FirstSeen     time.Time
}

// Clone returns a copy safe to hand to listeners.
func (d Discovered) Clone() Discovered {
	return d
}

// Wireless reports whether the device was found through a mesh coordinator.
func (d Discovered) Wireless() bool {
	return d.Spec.Transport == TransportWireless
}
