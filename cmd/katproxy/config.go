package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/go-katproxy/capture"
	"github.com/arloliu/go-katproxy/logger"
	"github.com/arloliu/go-katproxy/relay"
)

// LogLevelEnv overrides the log level of the configuration file.
const LogLevelEnv = "KATPROXY_LOG_LEVEL"

const usage = `katproxy - katcp line relay with base64 payload conversion

Usage:
  katproxy [flags] <proxy_port> <device_ip>

The positional arguments may be omitted when the configuration file sets
listen_port and device_host.

Flags:
`

// Config holds the proxy configuration. It can be loaded from a YAML file; command line
// flags override file values.
type Config struct {
	ListenHost     string        `yaml:"listen_host"`
	ListenPort     int           `yaml:"listen_port"`
	DeviceHost     string        `yaml:"device_host"`
	DevicePort     int           `yaml:"device_port"`
	MultiSession   bool          `yaml:"multi_session"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	CloseTimeout   time.Duration `yaml:"close_timeout"`
	MaxLineSize    int           `yaml:"max_line_size"`
	CaptureFile    string        `yaml:"capture_file"`
	LogLevel       string        `yaml:"log_level"`
}

func defaultConfig() *Config {
	return &Config{
		ListenHost: "127.0.0.1",
		DevicePort: relay.DefaultDevicePort,
		LogLevel:   "info",
	}
}

// loadConfigFile merges the YAML file at path into cfg. Keys missing from the file keep
// their current value.
func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	return nil
}

// parseArgs builds the configuration from defaults, the optional config file, the
// environment and the command line, in increasing order of precedence.
func parseArgs(args []string, getenv func(string) string, output io.Writer) (*Config, error) {
	fs := flag.NewFlagSet("katproxy", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}

	defaults := defaultConfig()
	var flagCfg Config
	var configFile string

	fs.StringVar(&configFile, "config", "", "YAML configuration file")
	fs.StringVar(&flagCfg.ListenHost, "listen-host", defaults.ListenHost, "Local address to accept the client on")
	fs.IntVar(&flagCfg.DevicePort, "device-port", defaults.DevicePort, "Device katcp port")
	fs.BoolVar(&flagCfg.MultiSession, "multi", false, "Accept clients in a loop, one device connection each")
	fs.DurationVar(&flagCfg.ConnectTimeout, "connect-timeout", 0, "Device connect timeout (default 3s)")
	fs.IntVar(&flagCfg.MaxLineSize, "max-line-size", 0, "Longest accepted line in bytes (default 16 MiB)")
	fs.StringVar(&flagCfg.CaptureFile, "capture", "", "Record every relayed line to this CBOR capture file")
	fs.StringVar(&flagCfg.LogLevel, "log-level", defaults.LogLevel, "Log level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := defaults
	if configFile != "" {
		if err := loadConfigFile(configFile, cfg); err != nil {
			return nil, err
		}
	}

	if level := getenv(LogLevelEnv); level != "" {
		cfg.LogLevel = level
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen-host":
			cfg.ListenHost = flagCfg.ListenHost
		case "device-port":
			cfg.DevicePort = flagCfg.DevicePort
		case "multi":
			cfg.MultiSession = flagCfg.MultiSession
		case "connect-timeout":
			cfg.ConnectTimeout = flagCfg.ConnectTimeout
		case "max-line-size":
			cfg.MaxLineSize = flagCfg.MaxLineSize
		case "capture":
			cfg.CaptureFile = flagCfg.CaptureFile
		case "log-level":
			cfg.LogLevel = flagCfg.LogLevel
		}
	})

	switch fs.NArg() {
	case 0:
	case 2:
		port, err := strconv.Atoi(fs.Arg(0))
		if err != nil {
			return nil, fmt.Errorf("invalid proxy port %q", fs.Arg(0))
		}
		cfg.ListenPort = port
		cfg.DeviceHost = fs.Arg(1)
	default:
		fs.Usage()
		return nil, errors.New("expected <proxy_port> <device_ip>")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.ListenPort == 0 {
		return errors.New("proxy port is required")
	}
	if cfg.DeviceHost == "" {
		return errors.New("device ip is required")
	}
	if _, err := logger.ParseLevel(cfg.LogLevel); err != nil {
		return err
	}

	return nil
}

// serverOptions converts the configuration into relay options. Zero values keep the relay defaults.
func (cfg *Config) serverOptions(l logger.Logger, rec capture.Recorder) []relay.ServerOption {
	opts := []relay.ServerOption{relay.WithLogger(l)}

	if cfg.MultiSession {
		opts = append(opts, relay.WithMultiSession())
	}
	if cfg.ConnectTimeout > 0 {
		opts = append(opts, relay.WithConnectTimeout(cfg.ConnectTimeout))
	}
	if cfg.CloseTimeout > 0 {
		opts = append(opts, relay.WithCloseTimeout(cfg.CloseTimeout))
	}
	if cfg.MaxLineSize > 0 {
		opts = append(opts, relay.WithMaxLineSize(cfg.MaxLineSize))
	}
	if rec != nil {
		opts = append(opts, relay.WithRecorder(rec))
	}

	return opts
}
