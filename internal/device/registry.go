package device

import "strings"

// Registry is the static catalog of supported hardware. It is built once at
// startup and never mutated; lookups are pure reads.
type Registry struct {
	byUSB    map[usbKey]Spec
	byPrefix map[string]Spec
}

type usbKey struct {
	vendor  uint16
	product uint16
}

// builtinSpecs lists every hardware variant the supervisor recognizes.
// Teensy-based sensors share the PJRC vendor id and are distinguished by
// product id.
var builtinSpecs = []Spec{
	{
		Family:         FamilyDRT,
		VendorID:       0x16C0,
		ProductID:      0x0483,
		BaudRate:       115200,
		DisplayName:    "DRT (wired)",
		OwningModuleID: "drt",
		Transport:      TransportWired,
	},
	{
		Family:         FamilyDRT,
		WirelessPrefix: "wdrt",
		BaudRate:       115200,
		DisplayName:    "DRT (wireless)",
		OwningModuleID: "drt",
		Transport:      TransportWireless,
	},
	{
		Family:         FamilyVOG,
		VendorID:       0x16C0,
		ProductID:      0x0486,
		BaudRate:       115200,
		DisplayName:    "VOG glasses (wired)",
		OwningModuleID: "vog",
		Transport:      TransportWired,
	},
	{
		Family:         FamilyVOG,
		WirelessPrefix: "wvog",
		BaudRate:       115200,
		DisplayName:    "VOG glasses (wireless)",
		OwningModuleID: "vog",
		Transport:      TransportWireless,
	},
	{
		Family:         FamilyGPS,
		VendorID:       0x1546,
		ProductID:      0x01A8,
		BaudRate:       9600,
		DisplayName:    "GPS receiver",
		OwningModuleID: "gps",
		Transport:      TransportWired,
	},
	{
		Family:              FamilyDRT,
		VendorID:            0x0403,
		ProductID:           0x6015,
		BaudRate:            921600,
		DisplayName:         "Mesh coordinator",
		OwningModuleID:      "",
		Transport:           TransportWired,
		WirelessCoordinator: true,
	},
}

// NewRegistry builds the registry from the built-in spec table.
func NewRegistry() *Registry {
	return newRegistryFrom(builtinSpecs)
}

func newRegistryFrom(specs []Spec) *Registry {
	r := &Registry{
		byUSB:    make(map[usbKey]Spec, len(specs)),
		byPrefix: make(map[string]Spec, len(specs)),
	}
	for _, spec := range specs {
		if spec.Transport == TransportWired {
			r.byUSB[usbKey{spec.VendorID, spec.ProductID}] = spec
		}
		if spec.WirelessPrefix != "" {
			r.byPrefix[strings.ToLower(spec.WirelessPrefix)] = spec
		}
	}
	return r
}

// LookupUSB resolves a wired device by its USB vendor/product id pair.
func (r *Registry) LookupUSB(vendorID, productID uint16) (Spec, bool) {
	spec, ok := r.byUSB[usbKey{vendorID, productID}]
	return spec, ok
}

// LookupWirelessName resolves a mesh node by its advertised name. Names must
// match "<prefix>_<digits>" or "<prefix> <digits>", case-insensitive, where
// prefix belongs to a known wireless variant. Anything else is rejected.
func (r *Registry) LookupWirelessName(name string) (Spec, bool) {
	prefix, digits, ok := splitNodeName(name)
	if !ok || digits == "" {
		return Spec{}, false
	}
	spec, ok := r.byPrefix[prefix]
	return spec, ok
}

// CoordinatorSpec returns the wireless coordinator dongle spec.
func (r *Registry) CoordinatorSpec() (Spec, bool) {
	for _, spec := range r.byUSB {
		if spec.WirelessCoordinator {
			return spec, true
		}
	}
	return Spec{}, false
}

// WirelessCapable reports whether family has a wireless variant.
func (r *Registry) WirelessCapable(family Family) bool {
	for _, spec := range r.byPrefix {
		if spec.Family == family {
			return true
		}
	}
	return false
}

// Specs returns every registered spec. The slice is a copy.
func (r *Registry) Specs() []Spec {
	out := make([]Spec, 0, len(r.byUSB)+len(r.byPrefix))
	for _, spec := range r.byUSB {
		out = append(out, spec)
	}
	for _, spec := range r.byPrefix {
		out = append(out, spec)
	}
	return out
}

func splitNodeName(name string) (prefix, digits string, ok bool) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", "", false
	}
	idx := strings.IndexAny(trimmed, "_ ")
	if idx <= 0 || idx == len(trimmed)-1 {
		return "", "", false
	}
	prefix = strings.ToLower(trimmed[:idx])
	digits = trimmed[idx+1:]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", "", false
		}
	}
	return prefix, digits, true
}
