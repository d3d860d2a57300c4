package device

import "testing"

func TestLookupUSBKnownDevice(t *testing.T) {
	r := NewRegistry()
	spec, ok := r.LookupUSB(0x16C0, 0x0483)
	if !ok {
		t.Fatal("expected wired DRT to resolve")
	}
	if spec.Family != FamilyDRT {
		t.Fatalf("family = %s, want drt", spec.Family)
	}
	if spec.OwningModuleID != "drt" {
		t.Fatalf("owning module = %q", spec.OwningModuleID)
	}
}

func TestLookupUSBUnknownDevice(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.LookupUSB(0xDEAD, 0xBEEF); ok {
		t.Fatal("expected unknown vid/pid to be rejected")
	}
}

func TestLookupWirelessName(t *testing.T) {
	r := NewRegistry()
	cases := []struct {
		name   string
		family Family
		ok     bool
	}{
		{"wDRT_03", FamilyDRT, true},
		{"WDRT 12", FamilyDRT, true},
		{"wvog_1", FamilyVOG, true},
		{"wVOG 42", FamilyVOG, true},
		{"wDRT", "", false},        // no separator
		{"wDRT_", "", false},       // no digits
		{"wDRT_3a", "", false},     // non-digit suffix
		{"router_01", "", false},   // unknown prefix
		{"", "", false},
		{"_03", "", false}, // empty prefix
	}
	for _, tc := range cases {
		spec, ok := r.LookupWirelessName(tc.name)
		if ok != tc.ok {
			t.Fatalf("LookupWirelessName(%q) ok=%v, want %v", tc.name, ok, tc.ok)
		}
		if ok && spec.Family != tc.family {
			t.Fatalf("LookupWirelessName(%q) family=%s, want %s", tc.name, spec.Family, tc.family)
		}
	}
}

func TestCoordinatorSpec(t *testing.T) {
	r := NewRegistry()
	spec, ok := r.CoordinatorSpec()
	if !ok {
		t.Fatal("expected a coordinator spec")
	}
	if !spec.WirelessCoordinator {
		t.Fatal("spec not marked as coordinator")
	}
	if spec.OwningModuleID != "" {
		t.Fatalf("coordinator must not be module-owned, got %q", spec.OwningModuleID)
	}
}

func TestWirelessCapable(t *testing.T) {
	r := NewRegistry()
	if !r.WirelessCapable(FamilyDRT) {
		t.Fatal("drt should be wireless capable")
	}
	if !r.WirelessCapable(FamilyVOG) {
		t.Fatal("vog should be wireless capable")
	}
	if r.WirelessCapable(FamilyGPS) {
		t.Fatal("gps should not be wireless capable")
	}
}
