// Command worker processes encode and thumbnail jobs from the shared Redis
// queue, separately from the API daemon.
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
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	xglog.Configure(xglog.Config{Level: "info", Service: "videocat-worker", Version: version.Version})
	logger := xglog.WithComponent("worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := strings.TrimSpace(*configPath)
	cfg, err := config.NewLoader(path, version.Version).Load()
	if err != nil {
		logger.Fatal().Err(err).Str("event", "config.load_failed").Str("config_path", path).
			Msg("failed to load configuration")
	}

	xglog.Reconfigure(xglog.Config{Level: cfg.LogLevel, Service: cfg.LogService + "-worker", Version: version.Version})
	logger = xglog.WithComponent("worker")

	rt, err := daemon.Bootstrap(ctx, cfg, daemon.ModeWorker, version.Version)
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
		Int("workers", cfg.Queue.Workers).
		Str("queue", cfg.Queue.Name).
		Msg("videocat worker starting")

	if err := mgr.Start(ctx); err != nil {
		logger.Error().Err(err).Str("event", "worker.exit_error").Msg("worker stopped with error")
		os.Exit(1)
	}
}
