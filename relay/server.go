package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-katproxy/logger"
)

// Server accepts client connections and relays each of them to its own device connection.
//
// In the default single-session mode Serve dials the device, accepts exactly one client,
// stops listening, relays that session and returns its result. With WithMultiSession the
// server keeps accepting clients and runs every session independently until it is closed.
type Server struct {
	cfg    *ServerConfig
	logger logger.Logger

	listener      net.Listener
	listenerMutex sync.Mutex

	taskMgr  *TaskManager
	sessions *xsync.MapOf[string, *Session]
	shutdown atomic.Bool

	metrics Metrics
}

// NewServer creates a relay server. ctx bounds the lifetime of every session it runs.
func NewServer(ctx context.Context, cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}

	return &Server{
		cfg:      cfg,
		logger:   cfg.Logger(),
		taskMgr:  NewTaskManager(ctx, cfg.Logger()),
		sessions: xsync.NewMapOf[string, *Session](),
	}, nil
}

// Metrics returns the metrics aggregated over all sessions of the server.
func (s *Server) Metrics() *Metrics {
	return &s.metrics
}

// SessionCount returns the number of running sessions.
func (s *Server) SessionCount() int {
	return s.sessions.Size()
}

// Addr returns the listening address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.listenerMutex.Lock()
	defer s.listenerMutex.Unlock()

	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// Listen binds the client side listener. Serve calls it when needed; calling it earlier
// lets callers learn the address of an ephemeral port before the device is dialed.
func (s *Server) Listen(ctx context.Context) error {
	if s.shutdown.Load() {
		return ErrServerClosed
	}

	s.listenerMutex.Lock()
	defer s.listenerMutex.Unlock()

	if s.listener != nil {
		return nil
	}

	address := s.cfg.ListenAddress()
	s.logger.Debug("try to listen", "address", address)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		s.logger.Error("failed to listen", "address", address, "error", err)
		return err
	}
	s.listener = listener

	s.logger.Info("waiting for client connection", "address", listener.Addr().String())

	return nil
}

// Serve runs the server until it is done: after the single session in single-session mode,
// or after Close or cancellation of ctx in multi-session mode, where it returns ErrServerClosed.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(ctx); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	if s.cfg.MultiSession() {
		return s.serveMulti()
	}

	return s.serveSingle(ctx)
}

func (s *Server) serveSingle(ctx context.Context) error {
	device, err := s.dialDevice(ctx)
	if err != nil {
		return err
	}

	client, err := s.accept()
	if err != nil {
		_ = device.Close()
		return err
	}

	// single session: no further clients are accepted
	_ = s.closeListener()

	sess, err := NewSession(s.cfg, device, client)
	if err != nil {
		_ = device.Close()
		_ = client.Close()
		return err
	}

	// run under the task manager so Close waits for the session
	var runErr error
	done := make(chan struct{})
	err = s.taskMgr.Go("session", func(ctx context.Context) {
		defer close(done)
		runErr = s.runSession(ctx, sess)
	})
	if err != nil {
		sess.terminate()
		return ErrServerClosed
	}
	<-done

	return runErr
}

func (s *Server) serveMulti() error {
	for {
		client, err := s.accept()
		if err != nil {
			return err
		}

		err = s.taskMgr.Go("session", func(ctx context.Context) {
			s.handleClient(ctx, client)
		})
		if err != nil {
			_ = client.Close()
			return ErrServerClosed
		}
	}
}

func (s *Server) handleClient(ctx context.Context, client net.Conn) {
	device, err := s.dialDevice(ctx)
	if err != nil {
		s.logger.Warn("reject client, device unreachable", "client", client.RemoteAddr().String(), "error", err)
		_ = client.Close()
		return
	}

	sess, err := NewSession(s.cfg, device, client)
	if err != nil {
		_ = device.Close()
		_ = client.Close()
		return
	}

	_ = s.runSession(ctx, sess)
}

func (s *Server) runSession(ctx context.Context, sess *Session) error {
	sess.parent = &s.metrics

	s.sessions.Store(sess.ID(), sess)
	defer s.sessions.Delete(sess.ID())

	// Close may have swept the session map before the session was stored
	if s.shutdown.Load() {
		sess.terminate()
	}

	return sess.Run(ctx)
}

func (s *Server) dialDevice(ctx context.Context) (net.Conn, error) {
	address := s.cfg.DeviceAddress()

	dialer := net.Dialer{Timeout: s.cfg.ConnectTimeout()}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		s.logger.Error("failed to connect device", "address", address, "error", err)
		return nil, fmt.Errorf("connect device %s: %w", address, err)
	}

	s.logger.Info("connected to device", "address", address)

	return conn, nil
}

func (s *Server) accept() (net.Conn, error) {
	s.listenerMutex.Lock()
	listener := s.listener
	s.listenerMutex.Unlock()

	if listener == nil {
		return nil, ErrServerClosed
	}

	conn, err := listener.Accept()
	if err != nil {
		if s.shutdown.Load() || errors.Is(err, net.ErrClosed) {
			return nil, ErrServerClosed
		}
		s.logger.Error("failed to accept connection", "error", err)

		return nil, err
	}

	s.logger.Info("client connected", "client", conn.RemoteAddr().String())

	return conn, nil
}

func (s *Server) closeListener() error {
	s.listenerMutex.Lock()
	defer s.listenerMutex.Unlock()

	if s.listener == nil {
		return nil
	}

	err := s.listener.Close()
	s.listener = nil

	return err
}

// Close stops accepting clients, terminates every running session and waits for them up
// to the configured close timeout. It is safe to call Close multiple times.
func (s *Server) Close() error {
	if !s.shutdown.CompareAndSwap(false, true) {
		return nil
	}

	s.logger.Debug("start closing server")

	_ = s.closeListener()
	s.taskMgr.Stop()

	s.sessions.Range(func(_ string, sess *Session) bool {
		sess.terminate()
		return true
	})

	if err := s.taskMgr.WaitTimeout(s.cfg.CloseTimeout()); err != nil {
		s.logger.Error("close timeout", "error", err, "timeout", s.cfg.CloseTimeout())
		return err
	}

	s.logger.Debug("server closed")

	return nil
}
