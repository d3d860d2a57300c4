package scanner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"conductor/internal/device"
	"conductor/internal/logging"
)

type fakeEnumerator struct {
	mu    sync.Mutex
	ports []Port
	err   error
}

func (f *fakeEnumerator) set(ports []Port, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ports = ports
	f.err = err
}

func (f *fakeEnumerator) Enumerate(ctx context.Context) ([]Port, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]Port, len(f.ports))
	copy(out, f.ports)
	return out, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) HandleScannerEvent(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingSink) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func drtPort() Port {
	return Port{Path: "/dev/ttyACM0", VendorID: 0x16C0, ProductID: 0x0483}
}

func newTestScanner(enum Enumerator, sink Sink) *Wired {
	return NewWired(device.NewRegistry(), enum, sink, logging.NewNop(), time.Hour)
}

func startScanner(t *testing.T, w *Wired) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(w.Stop)
}

func waitForEvents(t *testing.T, sink *recordingSink, want int) []Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		events := sink.snapshot()
		if len(events) >= want {
			return events
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events, have %d", want, len(sink.snapshot()))
	return nil
}

func TestAttachDetachAttachEmitsExactlyThreeEvents(t *testing.T) {
	enum := &fakeEnumerator{}
	sink := &recordingSink{}
	w := newTestScanner(enum, sink)

	enum.set([]Port{drtPort()}, nil)
	startScanner(t, w)
	waitForEvents(t, sink, 1)

	enum.set(nil, nil)
	w.Poke()
	waitForEvents(t, sink, 2)

	enum.set([]Port{drtPort()}, nil)
	w.Poke()
	events := waitForEvents(t, sink, 3)

	if len(events) != 3 {
		t.Fatalf("expected exactly 3 events, got %d", len(events))
	}
	wantKinds := []EventKind{DeviceFound, DeviceLost, DeviceFound}
	for i, kind := range wantKinds {
		if events[i].Kind != kind {
			t.Fatalf("event %d kind = %s, want %s", i, events[i].Kind, kind)
		}
		if events[i].Device.DeviceID != "/dev/ttyACM0" {
			t.Fatalf("event %d device = %s", i, events[i].Device.DeviceID)
		}
	}
}

func TestUnrecognizedPortsIgnored(t *testing.T) {
	enum := &fakeEnumerator{}
	sink := &recordingSink{}
	w := newTestScanner(enum, sink)

	enum.set([]Port{{Path: "/dev/ttyUSB9", VendorID: 0x1234, ProductID: 0x5678}}, nil)
	startScanner(t, w)

	time.Sleep(50 * time.Millisecond)
	if events := sink.snapshot(); len(events) != 0 {
		t.Fatalf("expected no events for unknown device, got %d", len(events))
	}
	if tracked := w.Tracked(); len(tracked) != 0 {
		t.Fatalf("unknown device must not be tracked, got %d", len(tracked))
	}
}

func TestEnumerationFailureDoesNotDropDevices(t *testing.T) {
	enum := &fakeEnumerator{}
	sink := &recordingSink{}
	w := newTestScanner(enum, sink)

	enum.set([]Port{drtPort()}, nil)
	startScanner(t, w)
	waitForEvents(t, sink, 1)

	// One failing cycle must not emit a lost event or empty the tracked set.
	enum.set(nil, errors.New("sysfs unavailable"))
	w.Poke()
	time.Sleep(50 * time.Millisecond)

	if events := sink.snapshot(); len(events) != 1 {
		t.Fatalf("expected no extra events after enumeration failure, got %d", len(events))
	}
	if tracked := w.Tracked(); len(tracked) != 1 {
		t.Fatalf("tracked set must survive enumeration failure, got %d devices", len(tracked))
	}

	// Recovery on the next cycle is silent for still-present devices.
	enum.set([]Port{drtPort()}, nil)
	w.Poke()
	time.Sleep(50 * time.Millisecond)
	if events := sink.snapshot(); len(events) != 1 {
		t.Fatalf("expected no events after recovery, got %d", len(events))
	}
}

func TestStartStopIdempotent(t *testing.T) {
	enum := &fakeEnumerator{}
	w := newTestScanner(enum, &recordingSink{})

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if !w.Running() {
		t.Fatal("scanner should be running")
	}
	w.Stop()
	w.Stop()
	if w.Running() {
		t.Fatal("scanner should be stopped")
	}
}
