// Command katproxy relays a control client to a device speaking a katcp-like line protocol.
//
// Binary payloads of "!read ok" replies are base64-encoded on the way to the client, and
// base64 payloads of "?write" requests are decoded on the way to the device. Every other
// line passes through unchanged.
//
// Usage:
//
//	katproxy [flags] <proxy_port> <device_ip>
//
// Examples:
//
//	# Relay one client on 127.0.0.1:7148 to the device at 192.168.4.20:7147
//	katproxy 7148 192.168.4.20
//
//	# Keep accepting clients and capture the traffic
//	katproxy -multi -capture session.kcap 7148 192.168.4.20
//
//	# Read everything from a configuration file
//	katproxy -config /etc/katproxy.yaml
//
// Set ENV=development for human readable logs.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/arloliu/go-katproxy/logger"
	"github.com/arloliu/go-katproxy/relay"
)

func main() {
	cfg, err := parseArgs(os.Args[1:], os.Getenv, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		logger.Error("invalid arguments", "error", err)
		os.Exit(1)
	}

	level, _ := logger.ParseLevel(cfg.LogLevel)
	log := logger.NewSlog(level, false)
	logger.SetLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("katproxy terminated", "error", err)
		stop()
		os.Exit(1)
	}

	log.Info("shutdown finished")
}

func run(ctx context.Context, cfg *Config, log logger.Logger) error {
	rec, fileRec, err := newRecorder(cfg, log)
	if err != nil {
		return err
	}
	if fileRec != nil {
		defer func() {
			if err := fileRec.Close(); err != nil {
				log.Warn("failed to close capture file", "path", cfg.CaptureFile, "error", err)
			}
			if n := fileRec.Errors(); n > 0 {
				log.Warn("capture events lost", "path", cfg.CaptureFile, "count", n)
			}
		}()

		log.Info("capturing relayed lines", "path", cfg.CaptureFile)
	}

	srvCfg, err := relay.NewServerConfig(cfg.ListenHost, cfg.ListenPort, cfg.DeviceHost, cfg.DevicePort,
		cfg.serverOptions(log, rec)...,
	)
	if err != nil {
		return err
	}

	server, err := relay.NewServer(ctx, srvCfg)
	if err != nil {
		return err
	}
	defer server.Close()

	err = server.Serve(ctx)
	if errors.Is(err, relay.ErrServerClosed) && ctx.Err() != nil {
		log.Info("exit signal received")
		return nil
	}

	return err
}
