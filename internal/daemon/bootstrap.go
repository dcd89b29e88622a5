// Package daemon wires the configured components together and manages the
// process lifecycle shared by the daemon and the standalone worker.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/videocat/internal/api"
	"github.com/ManuGH/videocat/internal/auth"
	"github.com/ManuGH/videocat/internal/catalog"
	"github.com/ManuGH/videocat/internal/config"
	"github.com/ManuGH/videocat/internal/health"
	"github.com/ManuGH/videocat/internal/jobs"
	xglog "github.com/ManuGH/videocat/internal/log"
	"github.com/ManuGH/videocat/internal/pipeline"
	"github.com/ManuGH/videocat/internal/rendition"
	"github.com/ManuGH/videocat/internal/telemetry"
	"github.com/ManuGH/videocat/internal/vod"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Mode selects which parts a process runs.
type Mode string

const (
	// ModeDaemon serves the API and, when configured, embedded workers.
	ModeDaemon Mode = "daemon"
	// ModeWorker only processes jobs from a shared queue.
	ModeWorker Mode = "worker"
)

// Runtime holds the components built from an AppConfig.
type Runtime struct {
	Config  config.AppConfig
	Mode    Mode
	Catalog *catalog.Service
	Queue   jobs.Queue
	Pool    *jobs.Pool  // nil when this process runs no workers
	API     *api.Server // nil in worker mode

	version      string
	watcher      *config.Watcher
	recoverQueue func(ctx context.Context) (int, error)
	queuePing    func(ctx context.Context) error
	hooks        []namedHook
}

// Bootstrap builds the runtime for mode. On error every component opened so
// far is closed again.
func Bootstrap(ctx context.Context, cfg config.AppConfig, mode Mode, version string) (_ *Runtime, err error) {
	logger := xglog.WithComponent("bootstrap")
	rt := &Runtime{Config: cfg, Mode: mode, version: version}
	defer func() {
		if err != nil {
			_ = rt.Close(context.WithoutCancel(ctx))
		}
	}()

	runWorkers := mode == ModeWorker || cfg.Queue.EmbeddedWorkers
	if cfg.Queue.Driver != config.QueueRedis {
		if mode == ModeWorker {
			return nil, ErrWorkerNeedsRedis
		}
		if !runWorkers {
			return nil, ErrMemoryQueueNeedsWorkers
		}
	}

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Tracing.Exporter != "",
		ServiceName:    "videocat-" + string(mode),
		ServiceVersion: version,
		ExporterType:   cfg.Tracing.Exporter,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	rt.addHook("telemetry", tp.Shutdown)

	store, err := openStore(ctx, cfg.Catalog)
	if err != nil {
		return nil, err
	}
	rt.addHook("catalog", func(context.Context) error { return store.Close() })

	if err := rt.openQueue(ctx, cfg.Queue); err != nil {
		return nil, err
	}

	rt.Catalog = catalog.NewService(store, rt.Queue, catalog.ServiceConfig{
		MediaRoot:         cfg.MediaRoot,
		ThumbnailSecond:   cfg.FFmpeg.ThumbnailSecond,
		ThumbnailMaxWidth: cfg.FFmpeg.ThumbnailMaxWidth,
		Logger:            xglog.WithComponent("catalog"),
	})

	if runWorkers {
		exec := &vod.DefaultExecutor{
			Logger:       xglog.WithComponent("ffmpeg"),
			StallTimeout: cfg.FFmpeg.StallTimeout,
		}
		handlers := &pipeline.Handlers{
			Catalog: rt.Catalog,
			Encoder: &vod.Encoder{
				Exec:    exec,
				Bin:     cfg.FFmpeg.Bin,
				Timeout: cfg.FFmpeg.EncodeTimeout,
				Logger:  xglog.WithComponent("encoder"),
			},
			Thumbs: &vod.ThumbnailExtractor{
				Exec:      exec,
				Bin:       cfg.FFmpeg.Bin,
				MediaRoot: cfg.MediaRoot,
				Timeout:   cfg.FFmpeg.ThumbnailTimeout,
				Store:     store,
				Logger:    xglog.WithComponent("thumbnail"),
			},
			Logger: xglog.WithComponent("pipeline"),
		}
		rt.Pool = jobs.NewPool(rt.Queue, jobs.PoolConfig{
			Workers: cfg.Queue.Workers,
			Timeouts: map[jobs.Kind]time.Duration{
				// each rendition process is bounded on its own; the job
				// as a whole may run every one of them back to back
				jobs.KindEncode:    cfg.FFmpeg.EncodeTimeout * time.Duration(len(rendition.All())),
				jobs.KindThumbnail: cfg.FFmpeg.ThumbnailTimeout,
			},
			Logger: xglog.WithComponent("jobs"),
		})
		handlers.Register(rt.Pool)
	}

	if mode == ModeDaemon {
		var authn auth.Authenticator
		pairs, err := auth.ParseTokenPairs(cfg.API.Tokens)
		if err != nil {
			return nil, fmt.Errorf("api tokens: %w", err)
		}
		if len(pairs) > 0 {
			authn = auth.NewStaticTokens(pairs)
		} else {
			logger.Warn().Str(xglog.FieldEvent, "auth.no_tokens").
				Msg("no API tokens configured; every authenticated route will be rejected")
		}
		tracingService := ""
		if cfg.Tracing.Exporter != "" {
			tracingService = "videocat-api"
		}
		checks := health.NewManager(version)
		checks.RegisterChecker(health.NewPingChecker("catalog", 0, store.Ping))
		checks.RegisterChecker(health.NewDirChecker("media_root", cfg.MediaRoot))
		if rt.queuePing != nil {
			checks.RegisterChecker(health.NewPingChecker("queue", 0, rt.queuePing))
		}
		rt.API = api.New(api.Config{
			RateLimitRPM:   cfg.API.RateLimitRPM,
			TracingService: tracingService,
			MaxUploadBytes: cfg.API.MaxUploadBytes,
			MediaURL:       cfg.API.MediaURL,
		}, api.Deps{
			Catalog: rt.Catalog,
			Auth:    authn,
			Health:  checks,
			Logger:  xglog.WithComponent("api"),
		})
	}

	logger.Info().
		Str("mode", string(mode)).
		Str("queue_driver", cfg.Queue.Driver).
		Str("catalog_driver", cfg.Catalog.Driver).
		Bool("workers", rt.Pool != nil).
		Msg("runtime ready")
	return rt, nil
}

func openStore(ctx context.Context, cfg config.CatalogConfig) (catalog.Store, error) {
	switch cfg.Driver {
	case config.CatalogPostgres:
		s, err := catalog.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres catalog: %w", err)
		}
		return s, nil
	case config.CatalogSQLite, "":
		s, err := catalog.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite catalog: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown catalog driver %q", cfg.Driver)
}

func (rt *Runtime) openQueue(ctx context.Context, cfg config.QueueConfig) error {
	if cfg.Driver != config.QueueRedis {
		q := jobs.NewMemoryQueue(0)
		rt.Queue = q
		rt.addHook("queue", func(context.Context) error { q.Close(); return nil })
		return nil
	}
	client, err := jobs.NewRedisClient(ctx, jobs.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return err
	}
	rt.addHook("redis", func(context.Context) error { return client.Close() })
	rt.queuePing = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	q := jobs.NewRedisQueue(client, cfg.Name, xglog.WithComponent("queue"))
	rt.Queue = q
	if cfg.RecoverOnStart {
		rt.recoverQueue = q.Recover
	}
	return nil
}

// RunWorkers requeues interrupted jobs when configured and runs the pool
// until ctx is cancelled.
func (rt *Runtime) RunWorkers(ctx context.Context) error {
	if rt.Pool == nil {
		return errors.New("no worker pool configured")
	}
	if rt.recoverQueue != nil {
		n, err := rt.recoverQueue(ctx)
		if err != nil {
			return fmt.Errorf("recover queue: %w", err)
		}
		if n > 0 {
			logger := xglog.WithComponent("jobs")
			logger.Info().Int("jobs", n).
				Str(xglog.FieldEvent, "queue.recovered").Msg("requeued interrupted jobs")
		}
	}
	return rt.Pool.Run(ctx)
}

// Manager builds the lifecycle manager for the runtime and hands over
// ownership of its resources.
func (rt *Runtime) Manager() (*Manager, error) {
	deps := Deps{
		Logger: xglog.WithComponent("daemon"),
	}
	if rt.API != nil {
		deps.APIHandler = rt.API.Handler()
	}
	if rt.Config.Metrics.Addr != "" {
		deps.MetricsAddr = rt.Config.Metrics.Addr
		deps.MetricsHandler = promhttp.Handler()
	}
	if rt.Pool != nil {
		deps.Workers = rt.RunWorkers
	}
	if rt.watcher != nil {
		deps.Background = append(deps.Background, rt.runWatcher)
	}
	m, err := NewManager(DefaultServerConfig(rt.Config.API.ListenAddr), deps)
	if err != nil {
		return nil, err
	}
	for _, h := range rt.hooks {
		m.RegisterShutdownHook(h.name, h.hook)
	}
	rt.hooks = nil
	return m, nil
}

// WatchConfig reloads the configuration file at path while the manager
// runs. Only the log level is applied live; other changes are logged and
// take effect on restart.
func (rt *Runtime) WatchConfig(path string) error {
	w, err := config.NewWatcher(path, rt.version, rt.Config, rt.applyConfig)
	if err != nil {
		return err
	}
	rt.watcher = w
	return nil
}

func (rt *Runtime) runWatcher(ctx context.Context) error {
	if err := rt.watcher.Run(ctx); err != nil {
		// serving without reloads beats not serving
		logger := xglog.WithComponent("config")
		logger.Warn().Err(err).Str(xglog.FieldEvent, "config.watcher_unavailable").
			Msg("config file changes will not be picked up")
	}
	return nil
}

func (rt *Runtime) applyConfig(old, next config.AppConfig) {
	logger := xglog.WithComponent("config")
	if next.LogLevel != old.LogLevel {
		if err := xglog.SetLevel(next.LogLevel); err != nil {
			logger.Error().Err(err).Str(xglog.FieldEvent, "config.log_level_failed").Msg("log level not applied")
		} else {
			logger.Info().Str("from", old.LogLevel).Str("to", next.LogLevel).
				Str(xglog.FieldEvent, "config.log_level_changed").Msg("log level changed")
		}
	}
	for _, section := range restartSections(old, next) {
		logger.Warn().Str("section", section).Str(xglog.FieldEvent, "config.restart_required").
			Msg("configuration change takes effect after restart")
	}
}

// restartSections names the changed settings that are only read at startup.
func restartSections(old, next config.AppConfig) []string {
	var changed []string
	if old.MediaRoot != next.MediaRoot {
		changed = append(changed, "mediaRoot")
	}
	if old.LogService != next.LogService {
		changed = append(changed, "logService")
	}
	if old.API != next.API {
		changed = append(changed, "api")
	}
	if old.Catalog != next.Catalog {
		changed = append(changed, "catalog")
	}
	if old.Queue != next.Queue {
		changed = append(changed, "queue")
	}
	if old.FFmpeg != next.FFmpeg {
		changed = append(changed, "ffmpeg")
	}
	if old.Metrics != next.Metrics {
		changed = append(changed, "metrics")
	}
	if old.Tracing != next.Tracing {
		changed = append(changed, "tracing")
	}
	return changed
}

// Close releases everything the runtime still owns, newest first.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.hooks) - 1; i >= 0; i-- {
		if err := rt.hooks[i].hook(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rt.hooks[i].name, err))
		}
	}
	rt.hooks = nil
	return errors.Join(errs...)
}

func (rt *Runtime) addHook(name string, h ShutdownHook) {
	rt.hooks = append(rt.hooks, namedHook{name: name, hook: h})
}
