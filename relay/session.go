package relay

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/arloliu/go-katproxy/katcp"
	"github.com/arloliu/go-katproxy/logger"
)

type sessionState uint8

const (
	sessionIdle sessionState = iota
	sessionRunning
	sessionClosed
)

// Session relays one client connection to one device connection.
//
// Each connection is used as two independent halves: the Device-to-Client pump reads the
// device and writes the client, the Client-to-Device pump reads the client and writes the
// device. Both pumps are supervised together; whichever stops first, for any reason, tears
// the whole session down.
type Session struct {
	id     string
	cfg    *ServerConfig
	device io.ReadWriteCloser
	client io.ReadWriteCloser
	logger logger.Logger

	metrics Metrics
	parent  *Metrics

	mu      sync.Mutex // protect state and cancel
	state   sessionState
	cancel  context.CancelFunc
	done    chan struct{}
	closeMu sync.Once
}

// NewSession creates a session relaying client to device with the settings of cfg.
//
// The session owns both streams from now on and closes them when it ends.
func NewSession(cfg *ServerConfig, device io.ReadWriteCloser, client io.ReadWriteCloser) (*Session, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	if device == nil || client == nil {
		return nil, errors.New("device and client streams are required")
	}

	id := uuid.New().String()

	return &Session{
		id:     id,
		cfg:    cfg,
		device: device,
		client: client,
		logger: cfg.Logger().With("sessionID", id),
		done:   make(chan struct{}),
	}, nil
}

// ID returns the unique session ID.
func (s *Session) ID() string { return s.id }

// Metrics returns the metrics of this session.
func (s *Session) Metrics() *Metrics { return &s.metrics }

// Done returns a channel closed when the session has ended.
func (s *Session) Done() <-chan struct{} { return s.done }

// Run relays lines in both directions until one of the pumps stops, then closes both
// streams and waits for the other pump.
//
// Run returns nil when a peer closed its stream or ctx was canceled, and the first error
// of either pump otherwise. A session runs once.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.state != sessionIdle {
		s.mu.Unlock()
		return ErrSessionStarted
	}
	s.state = sessionRunning
	s.cancel = cancel
	s.mu.Unlock()

	if s.parent != nil {
		s.parent.sessionStarted()
		defer s.parent.sessionEnded()
	}

	start := time.Now()
	s.logger.Info("session started")

	// closing the streams is the only way to unblock a pending read
	stop := context.AfterFunc(ctx, s.closeStreams)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range []*pump{
		newPump(katcp.DeviceToClientDir, s.id, s.device, s.client, s.cfg, s.logger, &s.metrics, s.parent),
		newPump(katcp.ClientToDeviceDir, s.id, s.client, s.device, s.cfg, s.logger, &s.metrics, s.parent),
	} {
		g.Go(func() error {
			defer cancel()
			return p.run(gctx)
		})
	}

	err := g.Wait()
	s.closeStreams()

	s.mu.Lock()
	s.state = sessionClosed
	s.mu.Unlock()
	close(s.done)

	if err != nil {
		s.logger.Error("session terminated", "error", err, "duration", time.Since(start))
	} else {
		s.logger.Info("session ended", "duration", time.Since(start),
			"deviceToClientLines", s.metrics.DeviceToClientLines.Load(),
			"clientToDeviceLines", s.metrics.ClientToDeviceLines.Load(),
		)
	}

	return err
}

// terminate asks a running session to stop without waiting. A session that never ran is
// closed right away.
func (s *Session) terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case sessionIdle:
		s.state = sessionClosed
		s.closeStreams()
		close(s.done)
	case sessionRunning:
		s.cancel()
	}
}

// Close stops the session and waits up to the configured close timeout for both pumps to return.
func (s *Session) Close() error {
	s.terminate()

	timer := time.NewTimer(s.cfg.CloseTimeout())
	defer timer.Stop()

	select {
	case <-s.done:
		return nil
	case <-timer.C:
		return ErrCloseTimeout
	}
}

func (s *Session) closeStreams() {
	s.closeMu.Do(func() {
		err := errors.Join(s.device.Close(), s.client.Close())
		if err != nil {
			s.logger.Debug("close session streams", "error", err)
		}
	})
}
