package ipc_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"conductor/internal/config"
	"conductor/internal/daemon"
	"conductor/internal/ipc"
	"conductor/internal/journal"
	"conductor/internal/logging"
	"conductor/internal/shutdown"
)

func newTestDaemon(t *testing.T) (*daemon.Daemon, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(dir, "data")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	cfg.Paths.APIBind = ""
	cfg.Discovery.NetlinkEvents = false
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store, err := journal.Open(cfg.JournalPath())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	d, err := daemon.New(&cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d, &cfg
}

func TestIPCServerClient(t *testing.T) {
	d, cfg := newTestDaemon(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}

	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logging.NewNop())
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	time.Sleep(50 * time.Millisecond)

	client, err := ipc.Dial(cfg.SocketPath())
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running {
		t.Fatal("expected daemon to be running")
	}
	if status.ShutdownPhase != string(shutdown.PhaseRunning) {
		t.Fatalf("shutdown phase = %s", status.ShutdownPhase)
	}

	devices, err := client.Devices()
	if err != nil {
		t.Fatalf("Devices RPC failed: %v", err)
	}
	if len(devices.Devices) != 0 {
		t.Fatalf("expected no devices, got %d", len(devices.Devices))
	}

	if _, err := client.Device("nosuch"); err == nil {
		t.Fatal("expected error for unknown device")
	}
	if _, err := client.Connect("nosuch"); err == nil {
		t.Fatal("expected error connecting unknown device")
	}
	if _, err := client.ModuleStart("unconfigured"); err == nil {
		t.Fatal("expected error starting unconfigured module")
	}

	modules, err := client.Modules()
	if err != nil {
		t.Fatalf("Modules RPC failed: %v", err)
	}
	if len(modules.Modules) != 0 {
		t.Fatalf("expected no modules, got %d", len(modules.Modules))
	}

	// Session lifecycle over the wire.
	if _, err := client.SessionRecord(); err == nil {
		t.Fatal("record without a session must fail")
	}
	started, err := client.SessionStart()
	if err != nil {
		t.Fatalf("SessionStart RPC failed: %v", err)
	}
	if started.SessionID == "" || started.SessionDir == "" {
		t.Fatalf("incomplete session response: %#v", started)
	}
	if _, err := client.SessionStart(); err == nil {
		t.Fatal("second session start must fail while one is active")
	}
	if _, err := client.SessionRecord(); err != nil {
		t.Fatalf("SessionRecord RPC failed: %v", err)
	}
	if _, err := client.SessionPause(); err != nil {
		t.Fatalf("SessionPause RPC failed: %v", err)
	}
	if _, err := client.SessionStop(); err != nil {
		t.Fatalf("SessionStop RPC failed: %v", err)
	}

	events, err := client.EventTail(10)
	if err != nil {
		t.Fatalf("EventTail RPC failed: %v", err)
	}
	if len(events.Events) == 0 {
		t.Fatal("expected journaled events")
	}

	stopResp, err := client.Shutdown()
	if err != nil {
		t.Fatalf("Shutdown RPC failed: %v", err)
	}
	if !stopResp.Stopped {
		t.Fatal("expected shutdown response to be true")
	}
	select {
	case <-srv.ShutdownRequested():
	case <-time.After(time.Second):
		t.Fatal("shutdown request not signaled")
	}

	status2, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status2.Running {
		t.Fatal("expected daemon to be stopped")
	}
	if status2.ShutdownPhase != string(shutdown.PhaseComplete) {
		t.Fatalf("shutdown phase after stop = %s", status2.ShutdownPhase)
	}
}
