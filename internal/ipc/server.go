package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"log/slog"

	"conductor/internal/daemon"
	"conductor/internal/logging"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	shutdown chan struct{}
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	shutdown := make(chan struct{})
	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx, shutdown: shutdown}
	if err := rpcServer.RegisterName("Conductor", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
		shutdown:  shutdown,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// ShutdownRequested is closed when a client asks the daemon to exit.
func (s *Server) ShutdownRequested() <-chan struct{} {
	return s.shutdown
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun conductor stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.LockPath = status.LockPath
	resp.JournalPath = status.JournalPath
	resp.ShutdownPhase = string(status.ShutdownPhase)
	resp.DeviceCount = status.DeviceCount
	resp.Modules = status.Modules
	if status.Session != nil {
		resp.SessionID = status.Session.ID
		resp.SessionDir = status.Session.Dir
	}
	return nil
}

func (s *service) Devices(_ DevicesRequest, resp *DevicesResponse) error {
	resp.Devices = make([]daemon.DeviceDTO, 0)
	for _, d := range s.daemon.Devices() {
		resp.Devices = append(resp.Devices, daemon.ToDeviceDTO(d))
	}
	return nil
}

func (s *service) Device(req DeviceRequest, resp *DeviceResponse) error {
	d, ok := s.daemon.Device(req.DeviceID)
	if !ok {
		return fmt.Errorf("device %q not found", req.DeviceID)
	}
	resp.Device = daemon.ToDeviceDTO(d)
	return nil
}

func (s *service) Connect(req ConnectRequest, resp *ConnectResponse) error {
	if req.DeviceID == "" {
		return errors.New("connect requires a device id")
	}
	if err := s.daemon.Connect(s.ctx, req.DeviceID); err != nil {
		return err
	}
	resp.DeviceID = req.DeviceID
	s.log().Info("device connected via IPC",
		logging.String(logging.FieldEventType, "device_connect"),
		logging.String(logging.FieldDeviceID, req.DeviceID))
	return nil
}

func (s *service) Disconnect(req DisconnectRequest, resp *DisconnectResponse) error {
	if req.DeviceID == "" {
		return errors.New("disconnect requires a device id")
	}
	if err := s.daemon.Disconnect(s.ctx, req.DeviceID); err != nil {
		return err
	}
	resp.DeviceID = req.DeviceID
	s.log().Info("device disconnected via IPC",
		logging.String(logging.FieldEventType, "device_disconnect"),
		logging.String(logging.FieldDeviceID, req.DeviceID))
	return nil
}

func (s *service) Modules(_ ModulesRequest, resp *ModulesResponse) error {
	resp.Modules = s.daemon.Modules()
	if resp.Modules == nil {
		resp.Modules = []daemon.ModuleInfo{}
	}
	return nil
}

func (s *service) ModuleStart(req ModuleStartRequest, resp *ModuleStartResponse) error {
	if req.ModuleID == "" {
		return errors.New("module start requires a module id")
	}
	if err := s.daemon.StartModule(s.ctx, req.ModuleID); err != nil {
		return err
	}
	resp.ModuleID = req.ModuleID
	return nil
}

func (s *service) ModuleStop(req ModuleStopRequest, resp *ModuleStopResponse) error {
	if req.ModuleID == "" {
		return errors.New("module stop requires a module id")
	}
	if err := s.daemon.StopModule(s.ctx, req.ModuleID); err != nil {
		return err
	}
	resp.ModuleID = req.ModuleID
	return nil
}

func (s *service) SessionStart(_ SessionStartRequest, resp *SessionStartResponse) error {
	info, err := s.daemon.SessionStart(s.ctx)
	if err != nil {
		return err
	}
	resp.SessionID = info.ID
	resp.SessionDir = info.Dir
	resp.StartedAt = info.StartedAt
	return nil
}

func (s *service) SessionStop(_ SessionStopRequest, resp *SessionStopResponse) error {
	if err := s.daemon.SessionStop(s.ctx); err != nil {
		return err
	}
	resp.Stopped = true
	return nil
}

func (s *service) SessionRecord(_ SessionRecordRequest, resp *SessionRecordResponse) error {
	if err := s.daemon.SessionRecord(s.ctx); err != nil {
		return err
	}
	resp.Recording = true
	return nil
}

func (s *service) SessionPause(_ SessionPauseRequest, resp *SessionPauseResponse) error {
	if err := s.daemon.SessionPause(s.ctx); err != nil {
		return err
	}
	resp.Paused = true
	return nil
}

func (s *service) EventTail(req EventTailRequest, resp *EventTailResponse) error {
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	events, err := s.daemon.EventTail(s.ctx, limit)
	if err != nil {
		return err
	}
	resp.Events = events
	return nil
}

func (s *service) Shutdown(_ ShutdownRequest, resp *ShutdownResponse) error {
	s.log().Info("daemon shutdown requested via IPC",
		logging.String(logging.FieldEventType, "daemon_shutdown_requested"))
	s.daemon.Stop(s.ctx)
	s.shutdownOnce.Do(func() { close(s.shutdown) })
	resp.Stopped = true
	return nil
}
