package module

import (
	"context"
	"testing"
	"time"

	"conductor/internal/device"
	"conductor/internal/logging"
	"conductor/internal/proto"
)

func testManagerOptions() ManagerOptions {
	return ManagerOptions{
		EntryPoints: map[string]string{
			"drt": "helper",
			"vog": "helper",
		},
		QuitGrace: 200 * time.Millisecond,
		TermGrace: 200 * time.Millisecond,
	}
}

func wiredDRTDevice() device.Discovered {
	spec, _ := device.NewRegistry().LookupUSB(0x16C0, 0x0483)
	return device.Discovered{DeviceID: "/dev/ttyACM0", Spec: spec}
}

func TestAssignDeviceLazilyCreatesAndStartsModule(t *testing.T) {
	setHelperProcess(t, "wellbehaved")
	m := NewManager(testManagerOptions(), &recordingListener{}, logging.NewNop())
	t.Cleanup(func() { m.StopAll(context.Background()) })

	if len(m.Modules()) != 0 {
		t.Fatal("no modules should exist before first use")
	}

	if err := m.AssignDevice(context.Background(), wiredDRTDevice()); err != nil {
		t.Fatalf("AssignDevice: %v", err)
	}

	p, ok := m.Module("drt")
	if !ok {
		t.Fatal("drt module must exist after assignment")
	}
	if !p.Running() {
		t.Fatal("drt module must be running after assignment")
	}
	waitForState(t, p, StateIdle)
	if got := p.AssignedDevices(); len(got) != 1 {
		t.Fatalf("assigned = %v, want one device", got)
	}
}

func TestAssignDeviceUnknownModule(t *testing.T) {
	m := NewManager(ManagerOptions{EntryPoints: map[string]string{}}, nil, logging.NewNop())
	err := m.AssignDevice(context.Background(), wiredDRTDevice())
	if err == nil {
		t.Fatal("expected error for unconfigured module")
	}
}

func TestUnassignWithoutRunningModuleIsNoop(t *testing.T) {
	m := NewManager(testManagerOptions(), nil, logging.NewNop())
	if err := m.UnassignDevice(context.Background(), wiredDRTDevice()); err != nil {
		t.Fatalf("UnassignDevice: %v", err)
	}
	if len(m.Modules()) != 0 {
		t.Fatal("unassign must not create a module")
	}
}

func TestRunningModuleIDs(t *testing.T) {
	setHelperProcess(t, "wellbehaved")
	m := NewManager(testManagerOptions(), &recordingListener{}, logging.NewNop())
	t.Cleanup(func() { m.StopAll(context.Background()) })

	if err := m.StartModule(context.Background(), "drt"); err != nil {
		t.Fatalf("StartModule: %v", err)
	}
	if err := m.StartModule(context.Background(), "vog"); err != nil {
		t.Fatalf("StartModule: %v", err)
	}

	ids := m.RunningModuleIDs()
	if len(ids) != 2 || ids[0] != "drt" || ids[1] != "vog" {
		t.Fatalf("running ids = %v, want [drt vog]", ids)
	}

	m.StopAll(context.Background())
	if ids := m.RunningModuleIDs(); len(ids) != 0 {
		t.Fatalf("running ids after StopAll = %v, want empty", ids)
	}
}

func TestBroadcastSkipsStoppedModules(t *testing.T) {
	setHelperProcess(t, "wellbehaved")
	m := NewManager(testManagerOptions(), &recordingListener{}, logging.NewNop())
	t.Cleanup(func() { m.StopAll(context.Background()) })

	if err := m.StartModule(context.Background(), "drt"); err != nil {
		t.Fatalf("StartModule: %v", err)
	}
	// vog is known but never started; broadcast must not fail on it.
	if _, err := m.process("vog"); err != nil {
		t.Fatalf("process: %v", err)
	}

	if err := m.Broadcast(func() proto.Command {
		return proto.NewCommand(proto.CmdGetStatus)
	}); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
}
