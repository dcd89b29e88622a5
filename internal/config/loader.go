// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	xglog "github.com/ManuGH/videocat/internal/log"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment key the loader consumes.
const EnvPrefix = "VIDEOCAT_"

// Loader resolves an AppConfig from defaults, an optional YAML file and the
// environment.
type Loader struct {
	configPath string
	version    string
	logger     zerolog.Logger

	// ConsumedEnvKeys lists the VIDEOCAT_* keys that were set during Load.
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a loader. An empty path skips the file layer.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		logger:          xglog.WithComponent("config"),
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Load returns the merged and validated configuration.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return AppConfig{}, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)

	if err := resolvePaths(&cfg); err != nil {
		return AppConfig{}, err
	}
	if err := Validate(cfg); err != nil {
		return AppConfig{}, err
	}

	l.logger.Info().
		Str("version", l.version).
		Str("file", l.configPath).
		Strs("env_keys", l.consumedKeys()).
		Str("queue_driver", cfg.Queue.Driver).
		Str("catalog_driver", cfg.Catalog.Driver).
		Str("media_root", cfg.MediaRoot).
		Msg("configuration loaded")
	return cfg, nil
}

// loadFile decodes path into cfg. Unknown keys and multiple documents are
// rejected; fields absent from the file keep their current value.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict parse %s: %w", path, err)
	}
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return fmt.Errorf("strict parse %s: multiple YAML documents are not supported", path)
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.MediaRoot = l.envString("MEDIA_ROOT", cfg.MediaRoot)
	cfg.LogLevel = l.envString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = l.envString("LOG_SERVICE", cfg.LogService)

	cfg.API.ListenAddr = l.envString("LISTEN", cfg.API.ListenAddr)
	cfg.API.Tokens = l.envString("API_TOKENS", cfg.API.Tokens)
	cfg.API.RateLimitRPM = l.envInt("RATE_LIMIT_RPM", cfg.API.RateLimitRPM)
	cfg.API.MaxUploadBytes = l.envInt64("MAX_UPLOAD_BYTES", cfg.API.MaxUploadBytes)
	cfg.API.MediaURL = l.envString("MEDIA_URL", cfg.API.MediaURL)

	// An explicitly empty VIDEOCAT_METRICS_ADDR disables the listener.
	if v, ok := os.LookupEnv(EnvPrefix + "METRICS_ADDR"); ok {
		l.ConsumedEnvKeys[EnvPrefix+"METRICS_ADDR"] = struct{}{}
		cfg.Metrics.Addr = v
	}

	cfg.FFmpeg.Bin = l.envString("FFMPEG_BIN", cfg.FFmpeg.Bin)
	cfg.FFmpeg.EncodeTimeout = l.envDuration("ENCODE_TIMEOUT", cfg.FFmpeg.EncodeTimeout)
	cfg.FFmpeg.ThumbnailTimeout = l.envDuration("THUMBNAIL_TIMEOUT", cfg.FFmpeg.ThumbnailTimeout)
	cfg.FFmpeg.StallTimeout = l.envDuration("STALL_TIMEOUT", cfg.FFmpeg.StallTimeout)
	cfg.FFmpeg.ThumbnailSecond = l.envFloat("THUMBNAIL_SECOND", cfg.FFmpeg.ThumbnailSecond)
	cfg.FFmpeg.ThumbnailMaxWidth = l.envInt("THUMBNAIL_MAX_WIDTH", cfg.FFmpeg.ThumbnailMaxWidth)

	cfg.Queue.Driver = l.envString("QUEUE_DRIVER", cfg.Queue.Driver)
	cfg.Queue.RedisAddr = l.envString("REDIS_ADDR", cfg.Queue.RedisAddr)
	cfg.Queue.RedisPassword = l.envString("REDIS_PASSWORD", cfg.Queue.RedisPassword)
	cfg.Queue.RedisDB = l.envInt("REDIS_DB", cfg.Queue.RedisDB)
	cfg.Queue.Name = l.envString("QUEUE_NAME", cfg.Queue.Name)
	cfg.Queue.Workers = l.envInt("WORKERS", cfg.Queue.Workers)
	cfg.Queue.EmbeddedWorkers = l.envBool("EMBEDDED_WORKERS", cfg.Queue.EmbeddedWorkers)
	cfg.Queue.RecoverOnStart = l.envBool("QUEUE_RECOVER", cfg.Queue.RecoverOnStart)

	cfg.Catalog.Driver = l.envString("CATALOG_DRIVER", cfg.Catalog.Driver)
	cfg.Catalog.SQLitePath = l.envString("SQLITE_PATH", cfg.Catalog.SQLitePath)
	cfg.Catalog.PostgresDSN = l.envString("POSTGRES_DSN", cfg.Catalog.PostgresDSN)

	cfg.Tracing.Exporter = l.envString("TRACING_EXPORTER", cfg.Tracing.Exporter)
	cfg.Tracing.Endpoint = l.envString("TRACING_ENDPOINT", cfg.Tracing.Endpoint)
	cfg.Tracing.SampleRate = l.envFloat("TRACING_SAMPLE_RATE", cfg.Tracing.SampleRate)
}

func resolvePaths(cfg *AppConfig) error {
	root, err := filepath.Abs(cfg.MediaRoot)
	if err != nil {
		return fmt.Errorf("resolve media root %q: %w", cfg.MediaRoot, err)
	}
	cfg.MediaRoot = root
	if cfg.Catalog.Driver == CatalogSQLite {
		if cfg.Catalog.SQLitePath == "" {
			cfg.Catalog.SQLitePath = filepath.Join(root, "catalog.db")
		} else if !filepath.IsAbs(cfg.Catalog.SQLitePath) {
			p, err := filepath.Abs(cfg.Catalog.SQLitePath)
			if err != nil {
				return fmt.Errorf("resolve sqlite path: %w", err)
			}
			cfg.Catalog.SQLitePath = p
		}
	}
	return nil
}

func (l *Loader) track(key string) string {
	full := EnvPrefix + key
	if v, ok := os.LookupEnv(full); ok && v != "" {
		l.ConsumedEnvKeys[full] = struct{}{}
	}
	return full
}

func (l *Loader) envString(key, def string) string {
	return ParseString(l.logger, l.track(key), def)
}

func (l *Loader) envInt(key string, def int) int {
	return ParseInt(l.logger, l.track(key), def)
}

func (l *Loader) envInt64(key string, def int64) int64 {
	return ParseInt64(l.logger, l.track(key), def)
}

func (l *Loader) envBool(key string, def bool) bool {
	return ParseBool(l.logger, l.track(key), def)
}

func (l *Loader) envDuration(key string, def time.Duration) time.Duration {
	return ParseDuration(l.logger, l.track(key), def)
}

func (l *Loader) envFloat(key string, def float64) float64 {
	return ParseFloat(l.logger, l.track(key), def)
}

func (l *Loader) consumedKeys() []string {
	keys := make([]string, 0, len(l.ConsumedEnvKeys))
	for k := range l.ConsumedEnvKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
