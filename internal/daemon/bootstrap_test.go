package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/videocat/internal/config"
	"github.com/ManuGH/videocat/internal/jobs"
	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAppConfig(t *testing.T) config.AppConfig {
	t.Helper()
	cfg := config.Defaults()
	cfg.MediaRoot = t.TempDir()
	cfg.Catalog.SQLitePath = filepath.Join(cfg.MediaRoot, "catalog.db")
	cfg.API.ListenAddr = "127.0.0.1:0"
	cfg.API.Tokens = "admin:secret"
	cfg.Metrics.Addr = "127.0.0.1:0"
	cfg.FFmpeg.Bin = "/nonexistent/ffmpeg"
	return cfg
}

func TestBootstrapRejectsUnusableQueues(t *testing.T) {
	cfg := testAppConfig(t)

	_, err := Bootstrap(context.Background(), cfg, ModeWorker, "test")
	assert.ErrorIs(t, err, ErrWorkerNeedsRedis)

	cfg.Queue.EmbeddedWorkers = false
	_, err = Bootstrap(context.Background(), cfg, ModeDaemon, "test")
	assert.ErrorIs(t, err, ErrMemoryQueueNeedsWorkers)
}

func TestBootstrapRejectsBadTokens(t *testing.T) {
	cfg := testAppConfig(t)
	cfg.API.Tokens = "a:x,a:y"
	_, err := Bootstrap(context.Background(), cfg, ModeDaemon, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api tokens")
}

func TestDaemonServesHealthAndMetrics(t *testing.T) {
	rt, err := Bootstrap(context.Background(), testAppConfig(t), ModeDaemon, "test")
	require.NoError(t, err)
	require.NotNil(t, rt.API)
	require.NotNil(t, rt.Pool, "memory queue runs embedded workers")

	m, err := rt.Manager()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()

	apiAddr := waitForAddr(t, m.APIAddr)
	metricsAddr := waitForAddr(t, m.MetricsAddr)

	code, body := get(t, "http://"+apiAddr+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "media_root")
	assert.Contains(t, body, "catalog")
	code, _ = get(t, "http://"+apiAddr+"/video/")
	assert.Equal(t, http.StatusUnauthorized, code)
	code, body = get(t, "http://"+metricsAddr+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "go_goroutines")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestWorkerRecoversAndDrainsRedisQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testAppConfig(t)
	cfg.Queue.Driver = config.QueueRedis
	cfg.Queue.RedisAddr = mr.Addr()
	cfg.Metrics.Addr = ""

	// a job left reserved by a crashed worker; its video no longer exists
	job, err := jobs.NewJob(jobs.KindEncode, 404, jobs.EncodePayload{Source: "gone.mp4"})
	require.NoError(t, err)
	raw, err := json.Marshal(job)
	require.NoError(t, err)
	mr.Lpush("videocat:queue:default:processing", string(raw))

	rt, err := Bootstrap(context.Background(), cfg, ModeWorker, "test")
	require.NoError(t, err)
	assert.Nil(t, rt.API)
	require.NotNil(t, rt.Pool)

	m, err := rt.Manager()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()

	require.Eventually(t, func() bool {
		return !mr.Exists("videocat:queue:default") && !mr.Exists("videocat:queue:default:processing")
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestDaemonAppliesLogLevelFromEditedConfig(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg := testAppConfig(t)
	path := filepath.Join(t.TempDir(), "videocat.yaml")
	writeFile := func(level string) error {
		body := "mediaRoot: " + cfg.MediaRoot + "\nlogLevel: " + level + "\n"
		return os.WriteFile(path, []byte(body), 0o600)
	}
	require.NoError(t, writeFile("info"))

	rt, err := Bootstrap(context.Background(), cfg, ModeDaemon, "test")
	require.NoError(t, err)
	require.NoError(t, rt.WatchConfig(path))
	m, err := rt.Manager()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()
	waitForAddr(t, m.APIAddr)

	// the tick outlasts the reload debounce so a write is not superseded
	require.Eventually(t, func() bool {
		return writeFile("warn") == nil && zerolog.GlobalLevel() == zerolog.WarnLevel
	}, 8*time.Second, time.Second)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestRestartSections(t *testing.T) {
	old := config.Defaults()
	next := old
	next.LogLevel = "debug"
	assert.Empty(t, restartSections(old, next))

	next.API.RateLimitRPM++
	next.Queue.Workers++
	assert.Equal(t, []string{"api", "queue"}, restartSections(old, next))
}
