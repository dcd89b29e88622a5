// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package pipeline binds queued jobs to the encoder and the catalog.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/videocat/internal/catalog"
	"github.com/ManuGH/videocat/internal/jobs"
	xglog "github.com/ManuGH/videocat/internal/log"
	"github.com/ManuGH/videocat/internal/vod"
	"github.com/rs/zerolog"
)

// RenditionEncoder produces every HLS rendition of a source file.
type RenditionEncoder interface {
	EncodeAll(ctx context.Context, source string) (string, error)
}

// ThumbnailMaker writes a poster frame and records it on the video.
type ThumbnailMaker interface {
	Extract(ctx context.Context, req vod.ThumbnailRequest) (string, error)
}

type Handlers struct {
	Catalog *catalog.Service
	Encoder RenditionEncoder
	Thumbs  ThumbnailMaker
	Logger  zerolog.Logger
}

// Register installs the encode and thumbnail handlers on pool.
func (h *Handlers) Register(pool *jobs.Pool) {
	pool.Handle(jobs.KindEncode, h.Encode)
	pool.Handle(jobs.KindThumbnail, h.Thumbnail)
}

// Encode runs the rendition pipeline for one video and records the outcome.
// A video deleted before or during encoding is skipped and any output
// written in the meantime is removed.
func (h *Handlers) Encode(ctx context.Context, job jobs.Job) error {
	var p jobs.EncodePayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	logger := xglog.WithContext(ctx, h.Logger)

	if _, err := h.Catalog.Get(ctx, job.VideoID); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			logger.Info().Str(xglog.FieldEvent, "pipeline.skipped").Str(xglog.FieldReason, "deleted").Msg("video gone, skipping encode")
			return nil
		}
		return err
	}
	if err := h.Catalog.Store().SetStatus(ctx, job.VideoID, catalog.StatusProcessing, ""); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("mark processing: %w", err)
	}

	manifest, err := h.Encoder.EncodeAll(ctx, p.Source)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		if h.markFailed(ctx, logger, job.VideoID, err) {
			logger.Info().Str(xglog.FieldEvent, "pipeline.orphaned").Msg("video deleted during failed encode, removing renditions")
			h.Catalog.ReclaimRenditions(ctx, p.Source)
		}
		return err
	}

	if err := h.setStatus(ctx, job.VideoID, catalog.StatusReady, ""); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			logger.Info().Str(xglog.FieldEvent, "pipeline.orphaned").Msg("video deleted during encode, removing renditions")
			h.Catalog.ReclaimRenditions(ctx, p.Source)
			return nil
		}
		return fmt.Errorf("mark ready: %w", err)
	}
	logger.Info().
		Str(xglog.FieldEvent, "pipeline.ready").
		Str(xglog.FieldPlaylistPath, manifest).
		Msg("all renditions ready")
	return nil
}

// Thumbnail extracts the poster frame unless the video already has one.
func (h *Handlers) Thumbnail(ctx context.Context, job jobs.Job) error {
	var p jobs.ThumbnailPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	logger := xglog.WithContext(ctx, h.Logger)

	v, err := h.Catalog.Get(ctx, job.VideoID)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		logger.Info().Str(xglog.FieldEvent, "pipeline.skipped").Str(xglog.FieldReason, "deleted").Msg("video gone, skipping thumbnail")
		return nil
	case err != nil:
		return err
	case v.Thumbnail != "":
		logger.Info().Str(xglog.FieldEvent, "pipeline.skipped").Str(xglog.FieldReason, "thumbnail_present").Msg("thumbnail already set")
		return nil
	}

	_, err = h.Thumbs.Extract(ctx, vod.ThumbnailRequest{
		VideoID:  job.VideoID,
		Source:   p.Source,
		RelPath:  p.RelPath,
		Second:   p.Second,
		MaxWidth: p.MaxWidth,
	})
	if errors.Is(err, catalog.ErrNotFound) {
		logger.Info().Str(xglog.FieldEvent, "pipeline.orphaned").Msg("video deleted during extraction, removing thumbnail")
		h.Catalog.ReclaimFiles(ctx, catalog.Video{ID: job.VideoID, Thumbnail: p.RelPath})
		return nil
	}
	return err
}

// markFailed records cause on the video and reports whether the video no
// longer exists.
func (h *Handlers) markFailed(ctx context.Context, logger zerolog.Logger, id int64, cause error) (gone bool) {
	err := h.setStatus(ctx, id, catalog.StatusFailed, cause.Error())
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return true
	case err != nil:
		logger.Error().Err(err).Str(xglog.FieldEvent, "pipeline.status_failed").Msg("failed to record encode failure")
	}
	return false
}

// setStatus outlives a job timeout so the final state is always recorded.
func (h *Handlers) setStatus(ctx context.Context, id int64, status catalog.EncodeStatus, lastErr string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return h.Catalog.Store().SetStatus(ctx, id, status, lastErr)
}
