package vod

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	xglog "github.com/ManuGH/videocat/internal/log"
	"github.com/ManuGH/videocat/internal/platform/fs"
	"github.com/rs/zerolog"
)

const DefaultThumbnailMaxWidth = 480

// ThumbnailRequest asks for one poster frame of Source written to RelPath
// under the media root. Second is taken as given, so zero is the first
// frame; a zero MaxWidth selects DefaultThumbnailMaxWidth.
type ThumbnailRequest struct {
	VideoID  int64
	Source   string
	RelPath  string
	Second   float64
	MaxWidth int
}

// ThumbnailExtractor writes a single JPEG frame and records it on the video.
type ThumbnailExtractor struct {
	Exec      Exec
	Bin       string
	MediaRoot string
	Timeout   time.Duration
	Store     ThumbnailSetter
	Logger    zerolog.Logger
}

// Extract runs the encoder for req and updates the catalog entry. It returns
// the absolute path of the written image.
func (x *ThumbnailExtractor) Extract(ctx context.Context, req ThumbnailRequest) (string, error) {
	if req.RelPath == "" {
		return "", errors.New("thumbnail: empty relative path")
	}
	if req.Second < 0 {
		return "", fmt.Errorf("thumbnail: negative timestamp %v", req.Second)
	}
	second := req.Second
	width := req.MaxWidth
	if width <= 0 {
		width = DefaultThumbnailMaxWidth
	}

	if err := fs.IsRegularFile(req.Source); err != nil {
		return "", &EncodingFailure{Err: fmt.Errorf("%w: %v", ErrSourceUnavailable, err)}
	}
	out, err := fs.ConfineRelPath(x.MediaRoot, req.RelPath)
	if err != nil {
		return "", fmt.Errorf("thumbnail path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", fmt.Errorf("create thumbnail dir: %w", err)
	}

	runCtx := ctx
	if x.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, x.Timeout)
		defer cancel()
	}

	bin := x.Bin
	if bin == "" {
		bin = DefaultBin
	}
	if err := x.Exec.Run(runCtx, bin, BuildThumbnailArgs(req.Source, out, second, width)); err != nil {
		var ef *EncodingFailure
		if errors.As(err, &ef) {
			return "", err
		}
		return "", &EncodingFailure{Err: err}
	}
	// ffmpeg exits 0 without output when seeking past the end of the source
	if err := fs.IsRegularFile(out); err != nil {
		return "", &EncodingFailure{Err: fmt.Errorf("no frame written at %.3fs: %w", second, err)}
	}

	rel := filepath.ToSlash(filepath.Clean(req.RelPath))
	if err := x.Store.SetThumbnail(ctx, req.VideoID, rel); err != nil {
		return "", fmt.Errorf("record thumbnail: %w", err)
	}

	logger := xglog.WithContext(ctx, x.Logger)
	logger.Info().
		Str(xglog.FieldEvent, "thumbnail.extracted").
		Str(xglog.FieldPath, rel).
		Msg("thumbnail extracted")
	return out, nil
}
