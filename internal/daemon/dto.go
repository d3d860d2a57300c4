package daemon

import (
	"time"

	"conductor/internal/device"
)

// DeviceDTO is the wire representation of one discovered device, shared by
// the HTTP API and the IPC surface.
type DeviceDTO struct {
	DeviceID       string    `json:"device_id"`
	Family         string    `json:"family"`
	Transport      string    `json:"transport"`
	DisplayName    string    `json:"display_name"`
	OwningModuleID string    `json:"owning_module_id,omitempty"`
	State          string    `json:"state"`
	BatteryPercent int       `json:"battery_percent"`
	SignalDBM      int       `json:"signal_dbm"`
	CoordinatorID  string    `json:"coordinator_id,omitempty"`
	Coordinator    bool      `json:"coordinator,omitempty"`
	FirstSeen      time.Time `json:"first_seen"`
}

// ToDeviceDTO converts one discovered device to its wire form.
func ToDeviceDTO(d device.Discovered) DeviceDTO {
	return DeviceDTO{
		DeviceID:       d.DeviceID,
		Family:         string(d.Spec.Family),
		Transport:      string(d.Spec.Transport),
		DisplayName:    d.Spec.DisplayName,
		OwningModuleID: d.Spec.OwningModuleID,
		State:          string(d.State),
		BatteryPercent: d.BatteryPercent,
		SignalDBM:      d.SignalDBM,
		CoordinatorID:  d.CoordinatorID,
		Coordinator:    d.Spec.WirelessCoordinator,
		FirstSeen:      d.FirstSeen,
	}
}

func deviceDTOs(devices []device.Discovered) []DeviceDTO {
	out := make([]DeviceDTO, 0, len(devices))
	for _, d := range devices {
		out = append(out, ToDeviceDTO(d))
	}
	return out
}
