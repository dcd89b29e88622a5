// Package vod runs the external encoder that turns an uploaded source file
// into HLS renditions and a poster thumbnail.
package vod

import (
	"context"

	"github.com/rs/zerolog"
)

// Exec abstracts the command execution for testing
type Exec interface {
	Run(ctx context.Context, name string, args []string) error
}

// ExecFunc adapts a function to Exec.
type ExecFunc func(ctx context.Context, name string, args []string) error

func (f ExecFunc) Run(ctx context.Context, name string, args []string) error {
	return f(ctx, name, args)
}

// Logger alias for zerolog
type Logger = zerolog.Logger

// NopLogger helper for tests
func NopLogger() Logger {
	return zerolog.Nop()
}

// ThumbnailSetter records a generated thumbnail on the catalog entry.
type ThumbnailSetter interface {
	SetThumbnail(ctx context.Context, videoID int64, relPath string) error
}
