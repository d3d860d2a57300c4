package main

import (
	"strings"
	"testing"

	"conductor/internal/daemon"
	"conductor/internal/module"
)

func TestTitleLabel(t *testing.T) {
	cases := map[string]string{
		"drt":        "Drt",
		"wired_drt":  "Wired Drt",
		"eye-strain": "Eye Strain",
	}
	for input, want := range cases {
		if got := titleLabel(input); got != want {
			t.Errorf("titleLabel(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestRenderDevicesTable(t *testing.T) {
	out := renderDevicesTable([]daemon.DeviceDTO{
		{
			DeviceID:       "/dev/ttyACM0",
			Family:         "drt",
			Transport:      "wired",
			State:          "connected",
			OwningModuleID: "drt",
		},
		{
			DeviceID:       "mesh:0013A200",
			Family:         "wdrt",
			Transport:      "wireless",
			State:          "discovered",
			BatteryPercent: 87,
			SignalDBM:      -52,
			OwningModuleID: "drt",
		},
	})
	for _, want := range []string{"/dev/ttyACM0", "mesh:0013A200", "connected", "87%", "-52 dBm"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	// Wired devices have no telemetry columns.
	if !strings.Contains(out, "-") {
		t.Errorf("expected placeholder for wired telemetry:\n%s", out)
	}
}

func TestRenderModulesTable(t *testing.T) {
	out := renderModulesTable([]daemon.ModuleInfo{
		{ModuleID: "drt", State: module.StateIdle, AssignedDevices: []string{"/dev/ttyACM0", "mesh:0013A200"}},
		{ModuleID: "vog", State: module.StateCrashed, LastError: "exit status 3"},
	})
	for _, want := range []string{"drt", "idle", "/dev/ttyACM0, mesh:0013A200", "crashed", "exit status 3"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestRenderStatusLineColor(t *testing.T) {
	plain := renderStatusLine("Running", statusOK, "pid 42", false)
	if strings.Contains(plain, ansiGreen) {
		t.Fatalf("expected no color codes: %q", plain)
	}
	colored := renderStatusLine("Running", statusOK, "pid 42", true)
	if !strings.HasPrefix(colored, ansiGreen) || !strings.HasSuffix(colored, ansiReset) {
		t.Fatalf("expected green wrapping: %q", colored)
	}
}
