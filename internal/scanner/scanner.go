package scanner

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"conductor/internal/device"
	"conductor/internal/logging"
)

// EventKind distinguishes device arrival from departure.
type EventKind int

const (
	DeviceFound EventKind = iota
	DeviceLost
)

func (k EventKind) String() string {
	if k == DeviceFound {
		return "device_found"
	}
	return "device_lost"
}

// Event is delivered to the sink for every tracked-set change.
type Event struct {
	Kind   EventKind
	Device device.Discovered
}

// Sink receives scanner events. Implementations must not block for long;
// they are called from the scan goroutine.
type Sink interface {
	HandleScannerEvent(Event)
}

// Port is one enumerated serial port.
type Port struct {
	Path      string
	VendorID  uint16
	ProductID uint16
}

// Enumerator lists the serial ports currently visible to the OS.
type Enumerator interface {
	Enumerate(ctx context.Context) ([]Port, error)
}

// Wired polls the enumerator on a fixed interval and reports attach/detach
// of registry-known devices.
type Wired struct {
	registry   *device.Registry
	enumerator Enumerator
	sink       Sink
	logger     *slog.Logger
	interval   time.Duration

	mu      sync.Mutex
	tracked map[string]device.Discovered
	running bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	poke   chan struct{}
}

// NewWired constructs a wired scanner. interval must be positive.
func NewWired(registry *device.Registry, enumerator Enumerator, sink Sink, logger *slog.Logger, interval time.Duration) *Wired {
	if interval <= 0 {
		interval = time.Second
	}
	return &Wired{
		registry:   registry,
		enumerator: enumerator,
		sink:       sink,
		logger:     logging.NewComponentLogger(logger, "wired-scanner"),
		interval:   interval,
		tracked:    make(map[string]device.Discovered),
		poke:       make(chan struct{}, 1),
	}
}

// Start launches the scan loop. Idempotent while running.
func (w *Wired) Start(ctx context.Context) error {
	if w == nil {
		return errors.New("wired scanner unavailable")
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.ctx = runCtx
	w.cancel = cancel
	w.running = true

	w.wg.Add(1)
	go w.loop()
	w.logger.Info("wired scanner started",
		logging.String(logging.FieldEventType, "wired_scanner_started"),
		logging.Duration("interval", w.interval),
	)
	return nil
}

// Stop halts the scan loop and waits for it to exit. Tracked devices are
// retained so a restart does not re-announce them.
func (w *Wired) Stop() {
	if w == nil {
		return
	}
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel := w.cancel
	w.running = false
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
	w.logger.Info("wired scanner stopped",
		logging.String(logging.FieldEventType, "wired_scanner_stopped"),
	)
}

// Running reports whether the scan loop is active.
func (w *Wired) Running() bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Poke requests an immediate scan cycle ahead of the next tick. Used by the
// netlink listener; safe to call from any goroutine, never blocks.
func (w *Wired) Poke() {
	select {
	case w.poke <- struct{}{}:
	default:
	}
}

// Tracked returns a snapshot of currently tracked devices sorted by id.
func (w *Wired) Tracked() []device.Discovered {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]device.Discovered, 0, len(w.tracked))
	for _, d := range w.tracked {
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

func (w *Wired) loop() {
	defer w.wg.Done()

	w.scan()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.scan()
		case <-w.poke:
			w.scan()
		}
	}
}

// scan runs one enumerate-and-diff cycle. An enumeration failure is logged
// and skipped; previously tracked devices are not dropped on failure.
func (w *Wired) scan() {
	ctx := w.ctx
	if ctx == nil || ctx.Err() != nil {
		return
	}

	ports, err := w.enumerator.Enumerate(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logger.Warn("port enumeration failed; will retry next cycle",
			logging.Error(err),
			logging.String(logging.FieldEventType, "wired_enumeration_failed"),
			logging.String(logging.FieldErrorHint, "check udev/sysfs access permissions"),
			logging.String(logging.FieldImpact, "device attach/detach detection delayed"),
		)
		return
	}

	seen := make(map[string]struct{}, len(ports))
	var found []device.Discovered
	var lost []device.Discovered

	w.mu.Lock()
	for _, port := range ports {
		spec, ok := w.registry.LookupUSB(port.VendorID, port.ProductID)
		if !ok {
			continue
		}
		seen[port.Path] = struct{}{}
		if _, tracked := w.tracked[port.Path]; tracked {
			continue
		}
		d := device.Discovered{
			DeviceID:       port.Path,
			Spec:           spec,
			State:          device.StateDiscovered,
			BatteryPercent: -1,
			FirstSeen:      time.Now(),
		}
		w.tracked[port.Path] = d
		found = append(found, d.Clone())
	}
	for path, d := range w.tracked {
		if _, ok := seen[path]; ok {
			continue
		}
		delete(w.tracked, path)
		lost = append(lost, d.Clone())
	}
	w.mu.Unlock()

	// Notify outside the lock; listeners may call back into the scanner.
	for _, d := range found {
		w.logger.Info("device attached",
			logging.String(logging.FieldEventType, "wired_device_found"),
			logging.String(logging.FieldDeviceID, d.DeviceID),
			logging.String("display_name", d.Spec.DisplayName),
		)
		if w.sink != nil {
			w.sink.HandleScannerEvent(Event{Kind: DeviceFound, Device: d})
		}
	}
	for _, d := range lost {
		w.logger.Info("device detached",
			logging.String(logging.FieldEventType, "wired_device_lost"),
			logging.String(logging.FieldDeviceID, d.DeviceID),
		)
		if w.sink != nil {
			w.sink.HandleScannerEvent(Event{Kind: DeviceLost, Device: d})
		}
	}
}
