package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"
	"time"

	"log/slog"

	"shuttle/internal/daemon"
	"shuttle/internal/journal"
	"shuttle/internal/logging"
	"shuttle/internal/logs"
	"shuttle/internal/phase"
)

// ServiceName is the RPC receiver name clients address.
const ServiceName = "Shuttle"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
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

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
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
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String("impact", "IPC clients may fail to connect"),
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
			logging.String("impact", "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun shuttle stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String("component", "ipc"))
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.log().Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.log().Info("daemon started via IPC",
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	resp.Stopped = s.daemon.Running()
	s.daemon.Stop()
	s.log().Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = s.daemon.Status(s.ctx)
	return nil
}

func (s *service) PhaseStart(req PhaseRequest, resp *PhaseResponse) error {
	return s.control(req, daemon.ActionStart, resp)
}

func (s *service) PhaseReset(req PhaseRequest, resp *PhaseResponse) error {
	return s.control(req, daemon.ActionReset, resp)
}

func (s *service) PhaseCancel(req PhaseRequest, resp *PhaseResponse) error {
	return s.control(req, daemon.ActionCancel, resp)
}

func (s *service) PhasePause(req PhaseRequest, resp *PhaseResponse) error {
	return s.control(req, daemon.ActionPause, resp)
}

func (s *service) PhaseResume(req PhaseRequest, resp *PhaseResponse) error {
	return s.control(req, daemon.ActionResume, resp)
}

func (s *service) PhaseNudge(req PhaseRequest, resp *PhaseResponse) error {
	return s.control(req, daemon.ActionNudge, resp)
}

// control replies with an error for rejected actions; net/rpc drops the
// response body in that case so callers only see the message.
func (s *service) control(req PhaseRequest, action daemon.Action, resp *PhaseResponse) error {
	p, ok := phase.Parse(req.Phase)
	if !ok {
		return fmt.Errorf("unknown phase %q", req.Phase)
	}
	s.log().Debug("phase control requested",
		logging.String(logging.FieldPhase, string(p)),
		logging.String("action", string(action)))
	result, err := s.daemon.Control(s.ctx, p, action, req.BatchSize)
	if err != nil {
		return err
	}
	*resp = result
	s.log().Info("phase control applied via IPC",
		logging.String(logging.FieldEventType, "phase_control"),
		logging.String(logging.FieldPhase, string(p)),
		logging.String("action", string(action)),
		logging.String("state", string(result.State)))
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	filter := journal.Filter{
		Event: strings.TrimSpace(req.Event),
		Limit: req.Limit,
	}
	if value := strings.TrimSpace(req.Phase); value != "" {
		p, ok := phase.Parse(value)
		if !ok {
			return fmt.Errorf("unknown phase %q", req.Phase)
		}
		filter.Phase = string(p)
	}
	if value := strings.TrimSpace(req.Since); value != "" {
		since, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return fmt.Errorf("invalid since %q: %w", req.Since, err)
		}
		filter.Since = since
	}
	entries, err := s.daemon.History(s.ctx, filter)
	if err != nil {
		return err
	}
	resp.Entries = entries
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		resp.Offset = 0
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	options := logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, options)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
