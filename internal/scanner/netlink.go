package scanner

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"conductor/internal/logging"
)

// NetlinkListener subscribes to udev uevents for the tty subsystem and pokes
// the wired scanner when a port appears or disappears, so attach detection
// does not have to wait for the next poll tick. Losing the netlink socket is
// non-fatal: the poll loop alone still satisfies the discovery contract.
type NetlinkListener struct {
	scanner *Wired
	logger  *slog.Logger

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewNetlinkListener creates a listener bound to the given scanner.
func NewNetlinkListener(scanner *Wired, logger *slog.Logger) *NetlinkListener {
	if scanner == nil {
		return nil
	}
	return &NetlinkListener{
		scanner: scanner,
		logger:  logging.NewComponentLogger(logger, "netlink-listener"),
	}
}

// Start begins listening for udev netlink events.
func (l *NetlinkListener) Start(ctx context.Context) error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		l.logger.Warn("failed to connect to netlink socket; attach detection falls back to polling",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the daemon can access netlink sockets"),
			logging.String(logging.FieldImpact, "device attach detection limited to poll interval"),
		)
		return nil
	}

	l.conn = conn
	l.quit = make(chan struct{})
	l.running = true

	quit := l.quit
	go l.listen(ctx, quit)

	l.logger.Info("netlink listener started",
		logging.String(logging.FieldEventType, "netlink_listener_started"),
	)
	return nil
}

// Stop shuts down the listener.
func (l *NetlinkListener) Stop() {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running {
		return
	}
	if l.quit != nil {
		close(l.quit)
		l.quit = nil
	}
	if l.conn != nil {
		_ = l.conn.Close()
		l.conn = nil
	}
	l.running = false

	l.logger.Info("netlink listener stopped",
		logging.String(logging.FieldEventType, "netlink_listener_stopped"),
	)
}

// Running reports whether the listener is active.
func (l *NetlinkListener) Running() bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *NetlinkListener) listen(ctx context.Context, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(queue, errs, l.buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			l.logger.Debug("tty uevent",
				logging.String("action", string(uevent.Action)),
				logging.String("kobj", uevent.KObj),
			)
			l.scanner.Poke()
		case err := <-errs:
			l.logger.Warn("netlink listener error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_listener_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "attach detection falls back to polling"),
			)
		}
	}
}

// buildMatcher selects tty subsystem add/remove events.
func (l *NetlinkListener) buildMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "tty",
		},
	})
	return rules
}
