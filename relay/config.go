package relay

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/arloliu/go-katproxy/capture"
	"github.com/arloliu/go-katproxy/logger"
)

// DefaultDevicePort is the TCP port devices serve katcp on.
const DefaultDevicePort = 7147

// ServerConfig represents the configuration of a relay Server and of the sessions it runs.
type ServerConfig struct {
	mu sync.RWMutex

	// listenHost is the local address the client side listens on. Empty means all interfaces.
	listenHost string
	// listenPort is the local TCP port the client side listens on. Zero picks an ephemeral port.
	listenPort int

	// deviceHost is the address of the device.
	deviceHost string
	// devicePort is the TCP port of the device. Defaults to DefaultDevicePort in the command line tool.
	devicePort int

	// multiSession enables an accept loop that relays every accepted client to its own device connection.
	// When false the server accepts exactly one client, relays it and returns.
	// Defaults to false.
	multiSession bool

	// connectTimeout is the timeout for dialing the device. It should be between 0.1 and 30 seconds.
	// Defaults to 3 seconds.
	connectTimeout time.Duration

	// closeTimeout bounds how long closing a session or the server waits for its goroutines.
	// It should be between 1 and 30 seconds.
	// Defaults to 3 seconds.
	closeTimeout time.Duration

	// maxLineSize is the longest line, terminator excluded, a peer may send.
	// Defaults to 16 MiB.
	maxLineSize int

	// logger provides a logger instance for relay events and errors.
	logger logger.Logger

	// recorder receives every relayed line when set.
	recorder capture.Recorder
}

// NewServerConfig creates a relay configuration listening on listenHost:listenPort for the client
// and connecting to deviceHost:devicePort, then applies the given options.
//
// Returns the configuration and the first error produced by validation or by an option.
func NewServerConfig(listenHost string, listenPort int, deviceHost string, devicePort int, opts ...ServerOption) (*ServerConfig, error) {
	cfg := &ServerConfig{
		multiSession:   false,
		connectTimeout: 3 * time.Second,
		closeTimeout:   3 * time.Second,
		maxLineSize:    16 * 1024 * 1024,
		logger:         logger.GetLogger(),
	}

	for _, opt := range []ServerOption{
		withListenHost(listenHost),
		withListenPort(listenPort),
		withDeviceHost(deviceHost),
		withDevicePort(devicePort),
	} {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

// ListenAddress returns the host:port the server listens on.
func (cfg *ServerConfig) ListenAddress() string {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return net.JoinHostPort(cfg.listenHost, strconv.Itoa(cfg.listenPort))
}

// DeviceAddress returns the host:port of the device.
func (cfg *ServerConfig) DeviceAddress() string {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return net.JoinHostPort(cfg.deviceHost, strconv.Itoa(cfg.devicePort))
}

func (cfg *ServerConfig) MultiSession() bool {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.multiSession
}

func (cfg *ServerConfig) ConnectTimeout() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.connectTimeout
}

func (cfg *ServerConfig) CloseTimeout() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.closeTimeout
}

func (cfg *ServerConfig) MaxLineSize() int {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.maxLineSize
}

func (cfg *ServerConfig) Logger() logger.Logger {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.logger
}

// Recorder returns the capture recorder, or nil when capture is disabled.
func (cfg *ServerConfig) Recorder() capture.Recorder {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.recorder
}

// ServerOption represents a functional option for configuring a ServerConfig.
type ServerOption interface {
	apply(*ServerConfig) error
}

type serverOptFunc struct {
	name      string
	applyFunc func(*ServerConfig) error
}

func (o *serverOptFunc) apply(cfg *ServerConfig) error {
	if cfg == nil {
		return ErrConfigNil
	}

	cfg.mu.Lock()
	defer cfg.mu.Unlock()

	return o.applyFunc(cfg)
}

func newServerOptFunc(name string, f func(*ServerConfig) error) *serverOptFunc {
	return &serverOptFunc{name: name, applyFunc: f}
}

// validHost accepts an IP address or a resolvable host name.
func validHost(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return true
	}

	host = strings.TrimPrefix(host, ".")
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return false
	}
	_, err := net.LookupHost(host)

	return err == nil
}

func withListenHost(host string) ServerOption {
	return newServerOptFunc("withListenHost", func(cfg *ServerConfig) error {
		if host != "" && !validHost(host) {
			return errors.New("invalid listen host")
		}
		cfg.listenHost = host

		return nil
	})
}

func withListenPort(port int) ServerOption {
	return newServerOptFunc("withListenPort", func(cfg *ServerConfig) error {
		if port < 0 || port > 65535 {
			return errors.New("listen port is out of range [0, 65535]")
		}
		cfg.listenPort = port

		return nil
	})
}

func withDeviceHost(host string) ServerOption {
	return newServerOptFunc("withDeviceHost", func(cfg *ServerConfig) error {
		if !validHost(host) {
			return errors.New("invalid device host")
		}
		cfg.deviceHost = host

		return nil
	})
}

func withDevicePort(port int) ServerOption {
	return newServerOptFunc("withDevicePort", func(cfg *ServerConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("device port is out of range [1, 65535]")
		}
		cfg.devicePort = port

		return nil
	})
}

// WithMultiSession makes the server keep accepting clients, each relayed to a fresh device connection.
//
// The default is single-session: one client is accepted and relayed, then Serve returns.
func WithMultiSession() ServerOption {
	return newServerOptFunc("WithMultiSession", func(cfg *ServerConfig) error {
		cfg.multiSession = true
		return nil
	})
}

// WithSingleSession restores the default single-session behavior.
func WithSingleSession() ServerOption {
	return newServerOptFunc("WithSingleSession", func(cfg *ServerConfig) error {
		cfg.multiSession = false
		return nil
	})
}

// WithConnectTimeout sets the timeout for dialing the device.
// An error is returned if the timeout is outside the valid range (0.1-30 seconds).
//
// The default value is 3 seconds.
func WithConnectTimeout(val time.Duration) ServerOption {
	return newServerOptFunc("WithConnectTimeout", func(cfg *ServerConfig) error {
		if val < 100*time.Millisecond || val > 30*time.Second {
			return errors.New("connect timeout out of range [0.1, 30]")
		}
		cfg.connectTimeout = val

		return nil
	})
}

// WithCloseTimeout sets how long closing waits for relay goroutines to terminate.
// An error is returned if the timeout is outside the valid range (1-30 seconds).
//
// The default value is 3 seconds.
func WithCloseTimeout(val time.Duration) ServerOption {
	return newServerOptFunc("WithCloseTimeout", func(cfg *ServerConfig) error {
		if val < 1*time.Second || val > 30*time.Second {
			return errors.New("close timeout out of range [1, 30]")
		}
		cfg.closeTimeout = val

		return nil
	})
}

// WithMaxLineSize sets the longest accepted line in bytes, terminator excluded.
// Longer lines terminate the session with ErrLineTooLong.
// An error is returned if size is smaller than 64 bytes.
//
// The default value is 16 MiB.
func WithMaxLineSize(size int) ServerOption {
	return newServerOptFunc("WithMaxLineSize", func(cfg *ServerConfig) error {
		if size < 64 {
			return errors.New("max line size must be at least 64 bytes")
		}
		cfg.maxLineSize = size

		return nil
	})
}

// WithLogger sets the logger. A nil logger is rejected.
//
// The default is the package logger from logger.GetLogger.
func WithLogger(l logger.Logger) ServerOption {
	return newServerOptFunc("WithLogger", func(cfg *ServerConfig) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		cfg.logger = l

		return nil
	})
}

// WithRecorder sets the capture recorder that receives every relayed line.
// A nil recorder disables capture, which is the default.
func WithRecorder(r capture.Recorder) ServerOption {
	return newServerOptFunc("WithRecorder", func(cfg *ServerConfig) error {
		cfg.recorder = r
		return nil
	})
}
