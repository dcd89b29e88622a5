// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the daemon and worker configuration.
//
// Precedence is ENV > file > defaults. The file is optional YAML decoded
// strictly; unknown keys are rejected.
package config

import "time"

// Queue drivers.
const (
	QueueMemory = "memory"
	QueueRedis  = "redis"
)

// Catalog drivers.
const (
	CatalogSQLite   = "sqlite"
	CatalogPostgres = "postgres"
)

// AppConfig is the fully resolved runtime configuration.
type AppConfig struct {
	MediaRoot  string `yaml:"mediaRoot"`
	LogLevel   string `yaml:"logLevel"`
	LogService string `yaml:"logService"`

	API     APIConfig     `yaml:"api"`
	Metrics MetricsConfig `yaml:"metrics"`
	FFmpeg  FFmpegConfig  `yaml:"ffmpeg"`
	Queue   QueueConfig   `yaml:"queue"`
	Catalog CatalogConfig `yaml:"catalog"`
	Tracing TracingConfig `yaml:"tracing"`
}

// APIConfig configures the HTTP listener.
type APIConfig struct {
	ListenAddr string `yaml:"listenAddr"`
	// Tokens is a comma separated list of user:token pairs.
	Tokens         string `yaml:"tokens"`
	RateLimitRPM   int    `yaml:"rateLimitRPM"`
	MaxUploadBytes int64  `yaml:"maxUploadBytes"`
	MediaURL       string `yaml:"mediaURL"`
}

// MetricsConfig configures the Prometheus listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// FFmpegConfig configures the encoder and thumbnail extractor.
type FFmpegConfig struct {
	Bin               string        `yaml:"bin"`
	EncodeTimeout     time.Duration `yaml:"encodeTimeout"`
	ThumbnailTimeout  time.Duration `yaml:"thumbnailTimeout"`
	StallTimeout      time.Duration `yaml:"stallTimeout"`
	ThumbnailSecond   float64       `yaml:"thumbnailSecond"`
	ThumbnailMaxWidth int           `yaml:"thumbnailMaxWidth"`
}

// QueueConfig selects and configures the job queue.
type QueueConfig struct {
	Driver        string `yaml:"driver"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDB"`
	Name          string `yaml:"name"`
	Workers       int    `yaml:"workers"`
	// EmbeddedWorkers runs the worker pool inside the daemon.
	EmbeddedWorkers bool `yaml:"embeddedWorkers"`
	// RecoverOnStart requeues jobs left reserved by a previous run. Disable
	// it on all but one process when several workers share a queue.
	RecoverOnStart bool `yaml:"recoverOnStart"`
}

// CatalogConfig selects the catalog store.
type CatalogConfig struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlitePath"`
	PostgresDSN string `yaml:"postgresDSN"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Exporter   string  `yaml:"exporter"`
	Endpoint   string  `yaml:"endpoint"`
	SampleRate float64 `yaml:"sampleRate"`
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		MediaRoot:  "./media",
		LogLevel:   "info",
		LogService: "videocat",
		API: APIConfig{
			ListenAddr:     ":8080",
			RateLimitRPM:   600,
			MaxUploadBytes: 4 << 30,
			MediaURL:       "/media/",
		},
		Metrics: MetricsConfig{Addr: ":9090"},
		FFmpeg: FFmpegConfig{
			Bin:               "ffmpeg",
			EncodeTimeout:     2 * time.Hour,
			ThumbnailTimeout:  2 * time.Minute,
			StallTimeout:      5 * time.Minute,
			ThumbnailSecond:   2.0,
			ThumbnailMaxWidth: 480,
		},
		Queue: QueueConfig{
			Driver:          QueueMemory,
			RedisAddr:       "localhost:6379",
			Name:            "default",
			Workers:         2,
			EmbeddedWorkers: true,
			RecoverOnStart:  true,
		},
		Catalog: CatalogConfig{Driver: CatalogSQLite},
		Tracing: TracingConfig{SampleRate: 1.0},
	}
}
