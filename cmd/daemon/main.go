// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ManuGH/videocat/internal/config"
	"github.com/ManuGH/videocat/internal/daemon"
	xglog "github.com/ManuGH/videocat/internal/log"
	"github.com/ManuGH/videocat/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	checkOnly := flag.Bool("check", false, "validate the configuration and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	// safe defaults until the config is loaded
	xglog.Configure(xglog.Config{
		Level:   "info",
		Service: "videocat",
		Version: version.Version,
	})
	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := strings.TrimSpace(*configPath)
	cfg, err := config.NewLoader(path, version.Version).Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", path).
			Msg("failed to load configuration")
	}
	if *checkOnly {
		fmt.Println("configuration OK")
		return
	}

	xglog.Reconfigure(xglog.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: version.Version,
	})
	logger = xglog.WithComponent("daemon")

	rt, err := daemon.Bootstrap(ctx, cfg, daemon.ModeDaemon, version.Version)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "startup.failed").Msg("failed to start")
	}
	if path != "" {
		if err := rt.WatchConfig(path); err != nil {
			_ = rt.Close(context.Background())
			logger.Fatal().Err(err).Str("event", "startup.failed").Msg("failed to start")
		}
	}
	mgr, err := rt.Manager()
	if err != nil {
		_ = rt.Close(context.Background())
		logger.Fatal().Err(err).Str("event", "startup.failed").Msg("failed to start")
	}

	logger.Info().
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("listen", cfg.API.ListenAddr).
		Bool("embedded_workers", rt.Pool != nil).
		Msg("videocat daemon starting")

	if err := mgr.Start(ctx); err != nil {
		logger.Error().Err(err).Str("event", "daemon.exit_error").Msg("daemon stopped with error")
		os.Exit(1)
	}
}
