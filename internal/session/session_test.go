package session

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"conductor/internal/logging"
	"conductor/internal/proto"
)

type fakeBroadcaster struct {
	mu       sync.Mutex
	commands []proto.Command
	err      error
}

func (f *fakeBroadcaster) Broadcast(cmd func() proto.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd())
	return f.err
}

func (f *fakeBroadcaster) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.commands))
	for i, cmd := range f.commands {
		out[i] = cmd.Name
	}
	return out
}

func newTestController(t *testing.T) (*Controller, *fakeBroadcaster) {
	t.Helper()
	broadcaster := &fakeBroadcaster{}
	return NewController(broadcaster, t.TempDir(), logging.NewNop()), broadcaster
}

func TestStartCreatesSessionDirAndBroadcasts(t *testing.T) {
	c, broadcaster := newTestController(t)

	info, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if info.ID == "" {
		t.Fatal("session id must be set")
	}
	if stat, err := os.Stat(info.Dir); err != nil || !stat.IsDir() {
		t.Fatalf("session dir not created: %v", err)
	}

	names := broadcaster.names()
	if len(names) != 1 || names[0] != proto.CmdStartSession {
		t.Fatalf("broadcasts = %v, want [start_session]", names)
	}
	broadcaster.mu.Lock()
	cmd := broadcaster.commands[0]
	broadcaster.mu.Unlock()
	if cmd.SessionID != info.ID || cmd.SessionDir != info.Dir {
		t.Fatalf("broadcast carries session %s dir %s", cmd.SessionID, cmd.SessionDir)
	}
}

func TestSecondStartRejected(t *testing.T) {
	c, _ := newTestController(t)

	first, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	again, err := c.Start(context.Background())
	if !errors.Is(err, ErrSessionActive) {
		t.Fatalf("error = %v, want ErrSessionActive", err)
	}
	if again.ID != first.ID {
		t.Fatal("rejected start must report the existing session")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	c, broadcaster := newTestController(t)

	if _, err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}

	names := broadcaster.names()
	if len(names) != 2 || names[1] != proto.CmdStopSession {
		t.Fatalf("broadcasts = %v, want one stop_session after start", names)
	}
	if _, active := c.Active(); active {
		t.Fatal("no session should be active after stop")
	}
}

func TestRecordPauseRequireSession(t *testing.T) {
	c, broadcaster := newTestController(t)

	if err := c.Record(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Record error = %v, want ErrNoSession", err)
	}
	if err := c.Pause(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Pause error = %v, want ErrNoSession", err)
	}

	if _, err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Record(context.Background()); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := c.Pause(context.Background()); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	names := broadcaster.names()
	want := []string{proto.CmdStartSession, proto.CmdRecord, proto.CmdPause}
	if len(names) != len(want) {
		t.Fatalf("broadcasts = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("broadcast %d = %s, want %s", i, names[i], want[i])
		}
	}
}
