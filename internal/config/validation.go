package config

import (
	"errors"
	"strings"
	"time"

	"github.com/ManuGH/videocat/internal/auth"
	"github.com/ManuGH/videocat/internal/validate"
)

// Validate checks cfg and reports every problem at once.
// The media root is created when it does not exist yet.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.Directory("mediaRoot", cfg.MediaRoot, false)
	if _, err := validate.ParseLogLevel(cfg.LogLevel); err != nil {
		v.AddError("logLevel", "must be one of debug, info, warn, error", cfg.LogLevel)
	}

	v.ListenAddr("api.listenAddr", cfg.API.ListenAddr)
	v.NonNegative("api.rateLimitRPM", cfg.API.RateLimitRPM)
	if cfg.API.MaxUploadBytes <= 0 {
		v.AddError("api.maxUploadBytes", "value must be positive", cfg.API.MaxUploadBytes)
	}
	v.Custom("api.mediaURL", cfg.API.MediaURL, func(any) error {
		u := cfg.API.MediaURL
		if !strings.HasPrefix(u, "/") || !strings.HasSuffix(u, "/") {
			return errors.New("must start and end with '/'")
		}
		return nil
	})
	if cfg.API.Tokens != "" {
		v.Custom("api.tokens", "***", func(any) error {
			_, err := auth.ParseTokenPairs(cfg.API.Tokens)
			return err
		})
	}
	if cfg.Metrics.Addr != "" {
		v.ListenAddr("metrics.addr", cfg.Metrics.Addr)
	}

	v.NotEmpty("ffmpeg.bin", cfg.FFmpeg.Bin)
	v.MinDuration("ffmpeg.encodeTimeout", cfg.FFmpeg.EncodeTimeout, time.Second)
	v.MinDuration("ffmpeg.thumbnailTimeout", cfg.FFmpeg.ThumbnailTimeout, time.Second)
	v.MinDuration("ffmpeg.stallTimeout", cfg.FFmpeg.StallTimeout, 0)
	v.FloatRange("ffmpeg.thumbnailSecond", cfg.FFmpeg.ThumbnailSecond, 0, 86400)
	v.Positive("ffmpeg.thumbnailMaxWidth", cfg.FFmpeg.ThumbnailMaxWidth)

	v.OneOf("queue.driver", cfg.Queue.Driver, []string{QueueMemory, QueueRedis})
	if cfg.Queue.Driver == QueueRedis {
		v.NotEmpty("queue.redisAddr", cfg.Queue.RedisAddr)
		v.Range("queue.redisDB", cfg.Queue.RedisDB, 0, 15)
	}
	v.NotEmpty("queue.name", cfg.Queue.Name)
	v.Range("queue.workers", cfg.Queue.Workers, 1, 64)

	v.OneOf("catalog.driver", cfg.Catalog.Driver, []string{CatalogSQLite, CatalogPostgres})
	if cfg.Catalog.Driver == CatalogPostgres {
		v.NotEmpty("catalog.postgresDSN", cfg.Catalog.PostgresDSN)
	}

	v.OneOf("tracing.exporter", cfg.Tracing.Exporter, []string{"", "noop", "grpc", "http"})
	v.FloatRange("tracing.sampleRate", cfg.Tracing.SampleRate, 0, 1)

	return v.Err()
}
