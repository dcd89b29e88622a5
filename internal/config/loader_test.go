package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/videocat/internal/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadDefaults(t *testing.T) {
	root := filepath.Join(t.TempDir(), "media")
	t.Setenv("VIDEOCAT_MEDIA_ROOT", root)

	cfg, err := NewLoader("", "test").Load()
	require.NoError(t, err)

	assert.Equal(t, root, cfg.MediaRoot)
	assert.DirExists(t, root)
	assert.Equal(t, ":8080", cfg.API.ListenAddr)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
	assert.Equal(t, 2*time.Hour, cfg.FFmpeg.EncodeTimeout)
	assert.Equal(t, 2.0, cfg.FFmpeg.ThumbnailSecond)
	assert.Equal(t, 480, cfg.FFmpeg.ThumbnailMaxWidth)
	assert.Equal(t, QueueMemory, cfg.Queue.Driver)
	assert.Equal(t, 2, cfg.Queue.Workers)
	assert.True(t, cfg.Queue.EmbeddedWorkers)
	assert.Equal(t, filepath.Join(root, "catalog.db"), cfg.Catalog.SQLitePath)
}

func TestLoadPrecedence(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, `
mediaRoot: `+root+`
api:
  listenAddr: ":7000"
  rateLimitRPM: 100
ffmpeg:
  encodeTimeout: 30m
  thumbnailSecond: 5
queue:
  workers: 4
`)
	t.Setenv("VIDEOCAT_WORKERS", "8")
	t.Setenv("VIDEOCAT_METRICS_ADDR", "")

	l := NewLoader(path, "test")
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.API.ListenAddr)
	assert.Equal(t, 100, cfg.API.RateLimitRPM)
	assert.Equal(t, 30*time.Minute, cfg.FFmpeg.EncodeTimeout)
	assert.Equal(t, 5.0, cfg.FFmpeg.ThumbnailSecond)
	assert.Equal(t, 8, cfg.Queue.Workers, "env wins over file")
	assert.Equal(t, 2*time.Minute, cfg.FFmpeg.ThumbnailTimeout, "default kept")
	assert.Empty(t, cfg.Metrics.Addr)
	assert.Contains(t, l.ConsumedEnvKeys, "VIDEOCAT_WORKERS")
	assert.Contains(t, l.ConsumedEnvKeys, "VIDEOCAT_METRICS_ADDR")
}

func TestLoadFileStrict(t *testing.T) {
	t.Setenv("VIDEOCAT_MEDIA_ROOT", t.TempDir())

	_, err := NewLoader(writeConfig(t, "api:\n  listen: \":1\"\n"), "test").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strict parse")

	_, err = NewLoader(writeConfig(t, "logLevel: info\n---\nlogLevel: debug\n"), "test").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple YAML documents")

	_, err = NewLoader(filepath.Join(t.TempDir(), "nope.yaml"), "test").Load()
	require.Error(t, err)

	cfg, err := NewLoader(writeConfig(t, ""), "test").Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestInvalidEnvKeepsDefault(t *testing.T) {
	t.Setenv("VIDEOCAT_MEDIA_ROOT", t.TempDir())
	t.Setenv("VIDEOCAT_WORKERS", "many")
	t.Setenv("VIDEOCAT_ENCODE_TIMEOUT", "forever")
	t.Setenv("VIDEOCAT_EMBEDDED_WORKERS", "no")

	cfg, err := NewLoader("", "test").Load()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Queue.Workers)
	assert.Equal(t, 2*time.Hour, cfg.FFmpeg.EncodeTimeout)
	assert.False(t, cfg.Queue.EmbeddedWorkers)
}

func TestValidate(t *testing.T) {
	base := Defaults()
	base.MediaRoot = t.TempDir()
	require.NoError(t, Validate(base))

	cases := map[string]func(*AppConfig){
		"queue.driver":        func(c *AppConfig) { c.Queue.Driver = "kafka" },
		"queue.workers":       func(c *AppConfig) { c.Queue.Workers = 0 },
		"catalog.driver":      func(c *AppConfig) { c.Catalog.Driver = "mysql" },
		"catalog.postgresDSN": func(c *AppConfig) { c.Catalog.Driver = CatalogPostgres },
		"ffmpeg.encodeTimeout": func(c *AppConfig) {
			c.FFmpeg.EncodeTimeout = 0
		},
		"api.listenAddr":   func(c *AppConfig) { c.API.ListenAddr = "8080" },
		"api.tokens":       func(c *AppConfig) { c.API.Tokens = "a:x,a:y" },
		"api.mediaURL":     func(c *AppConfig) { c.API.MediaURL = "media" },
		"logLevel":         func(c *AppConfig) { c.LogLevel = "loud" },
		"tracing.exporter": func(c *AppConfig) { c.Tracing.Exporter = "zipkin" },
		"mediaRoot":        func(c *AppConfig) { c.MediaRoot = "" },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)
			var ve validate.ValidationError
			require.ErrorAs(t, err, &ve)
			var fields []string
			for _, e := range ve.Errors() {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, field)
		})
	}
}
