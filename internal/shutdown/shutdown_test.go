package shutdown

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"conductor/internal/logging"
)

func TestStepsRunInRegistrationOrder(t *testing.T) {
	c := New(logging.NewNop())

	var order []string
	for _, name := range []string{"sessions", "modules", "scanners", "journal"} {
		name := name
		c.Register(name, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	c.Shutdown(context.Background())

	want := []string{"sessions", "modules", "scanners", "journal"}
	if len(order) != len(want) {
		t.Fatalf("ran %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("step %d = %s, want %s", i, order[i], want[i])
		}
	}
	if c.Phase() != PhaseComplete {
		t.Fatalf("phase = %s, want complete", c.Phase())
	}
}

func TestConcurrentShutdownRunsStepsExactlyOnce(t *testing.T) {
	c := New(logging.NewNop())

	var runs atomic.Int32
	c.Register("count", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Shutdown(context.Background())
		}()
	}
	wg.Wait()

	if got := runs.Load(); got != 1 {
		t.Fatalf("step ran %d times, want exactly 1", got)
	}
	if c.Phase() != PhaseComplete {
		t.Fatalf("phase = %s, want complete", c.Phase())
	}
}

func TestFailingStepDoesNotAbortRemaining(t *testing.T) {
	c := New(logging.NewNop())

	var ranLast bool
	c.Register("broken", func(ctx context.Context) error {
		return errors.New("boom")
	})
	c.Register("last", func(ctx context.Context) error {
		ranLast = true
		return nil
	})

	c.Shutdown(context.Background())

	if !ranLast {
		t.Fatal("steps after a failure must still run")
	}
}

func TestRegisterAfterShutdownIgnored(t *testing.T) {
	c := New(logging.NewNop())
	c.Shutdown(context.Background())

	c.Register("late", func(ctx context.Context) error {
		t.Fatal("late step must not run")
		return nil
	})
	c.Shutdown(context.Background())
}

func TestRestoreRoundTripIsOneShot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "restore.json")

	if err := WriteRestore(path, []string{"drt", "vog"}); err != nil {
		t.Fatalf("WriteRestore: %v", err)
	}

	state, found, err := ConsumeRestore(path)
	if err != nil {
		t.Fatalf("ConsumeRestore: %v", err)
	}
	if !found {
		t.Fatal("snapshot must be found")
	}
	if len(state.RunningModuleIDs) != 2 || state.RunningModuleIDs[0] != "drt" {
		t.Fatalf("module ids = %v", state.RunningModuleIDs)
	}
	if state.Timestamp.IsZero() {
		t.Fatal("timestamp must be set")
	}

	// Consumed: the file is gone and a second read finds nothing.
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("restore file must be deleted, stat err = %v", err)
	}
	if _, found, err := ConsumeRestore(path); err != nil || found {
		t.Fatalf("second consume: found=%v err=%v, want absent", found, err)
	}
}

func TestWriteRestoreWithoutModulesLeavesNoSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "restore.json")

	if err := WriteRestore(path, nil); err != nil {
		t.Fatalf("WriteRestore: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("no snapshot must be written, stat err = %v", err)
	}

	// A stale snapshot from an earlier run is cleared out.
	if err := WriteRestore(path, []string{"drt"}); err != nil {
		t.Fatalf("WriteRestore: %v", err)
	}
	if err := WriteRestore(path, nil); err != nil {
		t.Fatalf("WriteRestore: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("stale snapshot must be removed when nothing is running")
	}
}

func TestConsumeMissingRestore(t *testing.T) {
	_, found, err := ConsumeRestore(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil || found {
		t.Fatalf("found=%v err=%v, want absent without error", found, err)
	}
}

func TestConsumeMalformedRestore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "restore.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, found, err := ConsumeRestore(path)
	if err != nil || found {
		t.Fatalf("found=%v err=%v, want absent without error", found, err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("malformed restore file must be deleted")
	}
}
