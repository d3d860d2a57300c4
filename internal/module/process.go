package module

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"conductor/internal/device"
	"conductor/internal/logging"
	"conductor/internal/proto"
)

// State is a module subprocess lifecycle position.
type State string

const (
	StateStopped      State = "stopped"
	StateStarting     State = "starting"
	StateInitializing State = "initializing"
	StateIdle         State = "idle"
	StateRecording    State = "recording"
	StateStopping     State = "stopping"
	StateError        State = "error"
	StateCrashed      State = "crashed"
)

var (
	// ErrQueueFull is returned when the bounded command queue rejects a
	// command. Queued commands keep their order; the rejected command is
	// simply not accepted.
	ErrQueueFull = errors.New("module command queue full")
	// ErrNotRunning is returned when a command is sent to a process that
	// has no live subprocess.
	ErrNotRunning = errors.New("module process not running")
)

// defaultQueueCapacity bounds the per-process command queue.
const defaultQueueCapacity = 100

// Listener observes subprocess state transitions and status messages.
// Callbacks run on the process's goroutines and must not block.
type Listener interface {
	HandleModuleState(moduleID string, state State)
	HandleModuleStatus(moduleID string, st proto.Status)
}

// Options configures one module process.
type Options struct {
	ModuleID   string
	EntryPoint string
	LogLevel   string
	// QuitGrace is how long to wait after the quit command before SIGTERM.
	QuitGrace time.Duration
	// TermGrace is how long to wait after SIGTERM before SIGKILL.
	TermGrace     time.Duration
	QueueCapacity int
}

func (o *Options) fill() {
	if o.QuitGrace <= 0 {
		o.QuitGrace = 12 * time.Second
	}
	if o.TermGrace <= 0 {
		o.TermGrace = 3 * time.Second
	}
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = defaultQueueCapacity
	}
	if o.LogLevel == "" {
		o.LogLevel = "info"
	}
}

// newCommand is a seam for tests.
var newCommand = exec.Command

// Process supervises one module subprocess.
type Process struct {
	opts     Options
	listener Listener
	logger   *slog.Logger

	mu            sync.Mutex
	state         State
	cmd           *exec.Cmd
	stdin         io.WriteCloser
	queue         chan proto.Command
	exited        chan struct{}
	quitRequested bool
	assigned      map[string]struct{}
	lastError     string

	wg sync.WaitGroup
}

// NewProcess builds a process supervisor in the Stopped state.
func NewProcess(opts Options, listener Listener, logger *slog.Logger) *Process {
	opts.fill()
	return &Process{
		opts:     opts,
		listener: listener,
		logger:   logging.NewComponentLogger(logger, "module-"+opts.ModuleID),
		state:    StateStopped,
		assigned: make(map[string]struct{}),
	}
}

// ModuleID returns the supervised module's id.
func (p *Process) ModuleID() string { return p.opts.ModuleID }

// State returns the current lifecycle state.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// LastError returns the most recent error status text, if any.
func (p *Process) LastError() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastError
}

// AssignedDevices returns the ids of devices currently assigned, sorted.
func (p *Process) AssignedDevices() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.assigned))
	for id := range p.assigned {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Running reports whether a subprocess is alive.
func (p *Process) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runningLocked()
}

func (p *Process) runningLocked() bool {
	switch p.state {
	case StateStarting, StateInitializing, StateIdle, StateRecording, StateStopping, StateError:
		return p.exited != nil
	default:
		return false
	}
}

// Start spawns the subprocess. Starting an already running process is a
// no-op. A process that crashed or errored can be started again.
func (p *Process) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.runningLocked() {
		p.mu.Unlock()
		return nil
	}
	if strings.TrimSpace(p.opts.EntryPoint) == "" {
		p.mu.Unlock()
		return fmt.Errorf("module %s: no entry point configured", p.opts.ModuleID)
	}
	p.setStateLocked(StateStarting)
	p.mu.Unlock()
	p.notifyState(StateStarting)

	cmd := newCommand(p.opts.EntryPoint,
		"--module", p.opts.ModuleID,
		"--command-protocol",
		"--log-level", p.opts.LogLevel,
	)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		p.failStart(fmt.Errorf("stdin pipe: %w", err))
		return fmt.Errorf("module %s: stdin pipe: %w", p.opts.ModuleID, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		p.failStart(fmt.Errorf("stdout pipe: %w", err))
		return fmt.Errorf("module %s: stdout pipe: %w", p.opts.ModuleID, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		p.failStart(fmt.Errorf("stderr pipe: %w", err))
		return fmt.Errorf("module %s: stderr pipe: %w", p.opts.ModuleID, err)
	}

	if err := cmd.Start(); err != nil {
		p.failStart(err)
		return fmt.Errorf("module %s: spawn %s: %w", p.opts.ModuleID, p.opts.EntryPoint, err)
	}

	p.mu.Lock()
	p.cmd = cmd
	p.stdin = stdin
	p.queue = make(chan proto.Command, p.opts.QueueCapacity)
	p.exited = make(chan struct{})
	p.quitRequested = false
	p.lastError = ""
	p.setStateLocked(StateInitializing)
	queue := p.queue
	exited := p.exited
	p.mu.Unlock()
	p.notifyState(StateInitializing)

	p.wg.Add(3)
	go p.writeLoop(queue, exited, stdin)
	go p.readLoop(stdout)
	go p.drainStderr(stderr)
	go p.waitForExit(cmd, exited)

	p.logger.Info("module process started",
		logging.String(logging.FieldEventType, "module_started"),
		logging.String(logging.FieldModuleID, p.opts.ModuleID),
		logging.String("entry_point", p.opts.EntryPoint),
		logging.Int("pid", cmd.Process.Pid),
	)
	return nil
}

func (p *Process) failStart(err error) {
	p.mu.Lock()
	p.lastError = err.Error()
	p.setStateLocked(StateError)
	p.mu.Unlock()
	p.notifyState(StateError)
}

// Send enqueues a command for the subprocess. The queue is bounded; a full
// queue rejects the command with ErrQueueFull and preserves the queued
// commands' order.
func (p *Process) Send(cmd proto.Command) error {
	p.mu.Lock()
	if !p.runningLocked() {
		p.mu.Unlock()
		return fmt.Errorf("module %s: %w", p.opts.ModuleID, ErrNotRunning)
	}
	queue := p.queue
	p.mu.Unlock()

	select {
	case queue <- cmd:
		return nil
	default:
		p.logger.Warn("command rejected: queue full",
			logging.String(logging.FieldEventType, "command_rejected"),
			logging.String(logging.FieldModuleID, p.opts.ModuleID),
			logging.String("command", cmd.Name),
			logging.String(logging.FieldCorrelationID, cmd.CorrelationID),
			logging.String(logging.FieldErrorHint, "module is not draining its queue; check module health"),
		)
		return fmt.Errorf("module %s: %w", p.opts.ModuleID, ErrQueueFull)
	}
}

// AssignDevice hands a device to the subprocess.
func (p *Process) AssignDevice(ctx context.Context, d device.Discovered) error {
	cmd := proto.NewCommand(proto.CmdAssignDevice)
	cmd.DeviceID = d.DeviceID
	cmd.Family = string(d.Spec.Family)
	cmd.Baud = d.Spec.BaudRate
	if !d.Wireless() {
		cmd.Port = d.DeviceID
	}
	if err := p.Send(cmd); err != nil {
		return err
	}

	p.mu.Lock()
	p.assigned[d.DeviceID] = struct{}{}
	p.mu.Unlock()
	return nil
}

// UnassignDevice takes a device back. All supervisor-side state for the
// device is cleared regardless of the subprocess's reply.
func (p *Process) UnassignDevice(ctx context.Context, d device.Discovered) error {
	p.mu.Lock()
	delete(p.assigned, d.DeviceID)
	p.mu.Unlock()

	cmd := proto.NewCommand(proto.CmdUnassignDevice)
	cmd.DeviceID = d.DeviceID
	return p.Send(cmd)
}

// Stop shuts the subprocess down: quit command, then SIGTERM after the quit
// grace, then SIGKILL after the term grace. The process always ends in
// Stopped; Stop never leaves it mid-teardown. Stopping a stopped process is
// a no-op.
func (p *Process) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.runningLocked() {
		if p.state != StateStopped {
			p.setStateLocked(StateStopped)
			p.mu.Unlock()
			p.notifyState(StateStopped)
			return nil
		}
		p.mu.Unlock()
		return nil
	}
	p.quitRequested = true
	p.setStateLocked(StateStopping)
	exited := p.exited
	stdin := p.stdin
	p.mu.Unlock()
	p.notifyState(StateStopping)

	p.sendQuit(stdin)

	quitTimer := time.NewTimer(p.opts.QuitGrace)
	defer quitTimer.Stop()
	select {
	case <-exited:
		return nil
	case <-ctx.Done():
	case <-quitTimer.C:
	}

	p.logger.Warn("module did not quit in time; sending SIGTERM",
		logging.String(logging.FieldEventType, "module_quit_timeout"),
		logging.String(logging.FieldModuleID, p.opts.ModuleID),
		logging.Duration("quit_grace", p.opts.QuitGrace),
	)
	p.signalGroup(unix.SIGTERM)

	termTimer := time.NewTimer(p.opts.TermGrace)
	defer termTimer.Stop()
	select {
	case <-exited:
		return nil
	case <-termTimer.C:
	}

	p.logger.Warn("module ignored SIGTERM; sending SIGKILL",
		logging.String(logging.FieldEventType, "module_killed"),
		logging.String(logging.FieldModuleID, p.opts.ModuleID),
	)
	p.signalGroup(unix.SIGKILL)
	<-exited
	return nil
}

// sendQuit writes the quit command directly, bypassing the bounded queue so
// a wedged queue cannot block shutdown.
func (p *Process) sendQuit(stdin io.Writer) {
	quit := proto.NewCommand(proto.CmdQuit)
	data, err := quit.Encode()
	if err != nil {
		return
	}
	if _, err := stdin.Write(data); err != nil {
		p.logger.Debug("quit write failed; process likely already exiting",
			logging.Error(err),
			logging.String(logging.FieldModuleID, p.opts.ModuleID),
		)
	}
}

func (p *Process) signalGroup(sig unix.Signal) {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}
	// Negative pid addresses the process group created by Setpgid, so the
	// module's own children are signalled too.
	if err := unix.Kill(-cmd.Process.Pid, sig); err != nil {
		_ = cmd.Process.Signal(syscall.Signal(sig))
	}
}

func (p *Process) writeLoop(queue <-chan proto.Command, exited <-chan struct{}, stdin io.WriteCloser) {
	defer p.wg.Done()
	for {
		select {
		case <-exited:
			return
		case cmd := <-queue:
			data, err := cmd.Encode()
			if err != nil {
				p.logger.Warn("dropping unencodable command",
					logging.Error(err),
					logging.String(logging.FieldModuleID, p.opts.ModuleID),
				)
				continue
			}
			if _, err := stdin.Write(data); err != nil {
				p.logger.Debug("command write failed",
					logging.Error(err),
					logging.String(logging.FieldModuleID, p.opts.ModuleID),
					logging.String("command", cmd.Name),
				)
				return
			}
		}
	}
}

func (p *Process) readLoop(stdout io.Reader) {
	defer p.wg.Done()
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		st, err := proto.DecodeStatus(line)
		if err != nil {
			p.logger.Debug("ignoring non-status output line",
				logging.String(logging.FieldModuleID, p.opts.ModuleID),
				logging.String("line", string(line)),
			)
			continue
		}
		p.handleStatus(st)
	}
}

func (p *Process) drainStderr(stderr io.Reader) {
	defer p.wg.Done()
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		p.logger.Debug("module stderr",
			logging.String(logging.FieldModuleID, p.opts.ModuleID),
			logging.String("line", text),
		)
	}
}

// handleStatus applies a subprocess status message to the state machine.
func (p *Process) handleStatus(st proto.Status) {
	var newState State

	p.mu.Lock()
	switch st.Status {
	case proto.StatusInitialized:
		if p.state == StateInitializing {
			newState = StateIdle
		}
	case proto.StatusRecordingStarted:
		if p.state == StateIdle || p.state == StateInitializing || p.state == StateError {
			newState = StateRecording
		}
	case proto.StatusRecordingStopped:
		if p.state == StateRecording {
			newState = StateIdle
		}
	case proto.StatusError:
		p.lastError = st.DataString("message")
		if p.state != StateStopping {
			newState = StateError
		}
	case proto.StatusQuitting:
		// Exit handling decides the final state; nothing to do here.
	}
	if newState != "" {
		p.setStateLocked(newState)
	}
	p.mu.Unlock()

	if newState != "" {
		p.notifyState(newState)
	}
	if p.listener != nil {
		p.listener.HandleModuleStatus(p.opts.ModuleID, st)
	}
}

func (p *Process) waitForExit(cmd *exec.Cmd, exited chan struct{}) {
	err := cmd.Wait()

	p.mu.Lock()
	wasQuit := p.quitRequested
	p.cmd = nil
	p.stdin = nil
	p.queue = nil
	p.exited = nil
	// The subprocess is gone, so nothing is assigned to it anymore. On a
	// crash the devices must be explicitly re-assigned after restart.
	p.assigned = make(map[string]struct{})
	var final State
	if wasQuit {
		final = StateStopped
	} else {
		final = StateCrashed
		if err != nil {
			p.lastError = err.Error()
		}
	}
	p.setStateLocked(final)
	p.mu.Unlock()

	// Closing exited unblocks Stop and the write loop; the state is already
	// final at that point.
	close(exited)
	p.wg.Wait()

	if final == StateCrashed {
		p.logger.Error("module process crashed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "module_crashed"),
			logging.String(logging.FieldModuleID, p.opts.ModuleID),
			logging.String(logging.FieldErrorHint, "inspect the module's log output"),
			logging.String(logging.FieldImpact, "recording for this module has stopped"),
		)
	} else {
		p.logger.Info("module process exited",
			logging.String(logging.FieldEventType, "module_stopped"),
			logging.String(logging.FieldModuleID, p.opts.ModuleID),
		)
	}
	p.notifyState(final)
}

func (p *Process) setStateLocked(s State) {
	p.state = s
}

func (p *Process) notifyState(s State) {
	if p.listener != nil {
		p.listener.HandleModuleState(p.opts.ModuleID, s)
	}
}
