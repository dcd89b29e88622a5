package vod

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	xglog "github.com/ManuGH/videocat/internal/log"
	"github.com/ManuGH/videocat/internal/metrics"
	"github.com/ManuGH/videocat/internal/platform/fs"
	"github.com/ManuGH/videocat/internal/rendition"
	"github.com/rs/zerolog"
)

// DefaultBin is used when no encoder binary is configured.
const DefaultBin = "ffmpeg"

// Encoder produces HLS renditions of a source file, one process per
// resolution. It holds no per-job state and is safe for concurrent use.
type Encoder struct {
	Exec    Exec
	Bin     string
	Timeout time.Duration // per process; zero means no limit
	Logger  zerolog.Logger
}

func (e *Encoder) bin() string {
	if e.Bin == "" {
		return DefaultBin
	}
	return e.Bin
}

// Encode writes one rendition of source and returns its manifest path.
// The rendition directory is created if needed; existing output is overwritten.
func (e *Encoder) Encode(ctx context.Context, source, label string) (string, error) {
	plan, err := rendition.PlanFor(source, label)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(plan.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create rendition dir: %w", err)
	}

	runCtx := ctx
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	logger := xglog.WithContext(ctx, e.Logger)
	start := time.Now()
	err = e.Exec.Run(runCtx, e.bin(), BuildHLSArgs(source, plan))
	metrics.IncEncoder(label, err)
	if err != nil {
		fail := &EncodingFailure{Err: err}
		var ef *EncodingFailure
		if errors.As(err, &ef) {
			copied := *ef
			fail = &copied
		}
		fail.Resolution = label
		return "", fail
	}

	logger.Info().
		Str(xglog.FieldEvent, "encoder.rendition_done").
		Str(xglog.FieldResolution, label).
		Str(xglog.FieldPlaylistPath, plan.ManifestPath).
		Dur("took", time.Since(start)).
		Msg("rendition encoded")
	return plan.ManifestPath, nil
}

// EncodeAll encodes every supported resolution in ascending order. The first
// failure aborts the remaining renditions and is returned as is. On success
// the manifest path of the last rendition is returned.
func (e *Encoder) EncodeAll(ctx context.Context, source string) (string, error) {
	if err := fs.IsRegularFile(source); err != nil {
		return "", &EncodingFailure{Err: fmt.Errorf("%w: %v", ErrSourceUnavailable, err)}
	}

	var manifest string
	for _, r := range rendition.All() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		m, err := e.Encode(ctx, source, string(r))
		if err != nil {
			return "", err
		}
		manifest = m
	}
	return manifest, nil
}
