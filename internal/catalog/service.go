// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package catalog

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ManuGH/videocat/internal/jobs"
	xglog "github.com/ManuGH/videocat/internal/log"
	"github.com/ManuGH/videocat/internal/metrics"
	"github.com/ManuGH/videocat/internal/platform/fs"
	"github.com/ManuGH/videocat/internal/rendition"
	"github.com/rs/zerolog"
)

// ServiceConfig configures the lifecycle hooks.
type ServiceConfig struct {
	MediaRoot         string
	ThumbnailSecond   float64
	ThumbnailMaxWidth int
	Logger            zerolog.Logger
}

// Service wraps a Store with the create and delete hooks.
type Service struct {
	store  Store
	queue  jobs.Enqueuer
	cfg    ServiceConfig
	logger zerolog.Logger
}

func NewService(store Store, queue jobs.Enqueuer, cfg ServiceConfig) *Service {
	if cfg.ThumbnailSecond <= 0 {
		cfg.ThumbnailSecond = 2.0
	}
	if cfg.ThumbnailMaxWidth <= 0 {
		cfg.ThumbnailMaxWidth = 480
	}
	return &Service{store: store, queue: queue, cfg: cfg, logger: cfg.Logger}
}

// Store exposes the underlying store for read paths.
func (s *Service) Store() Store { return s.store }

// MediaRoot returns the absolute media root.
func (s *Service) MediaRoot() string { return s.cfg.MediaRoot }

// SourcePath resolves the video file of v under the media root.
func (s *Service) SourcePath(v Video) (string, error) {
	if v.VideoFile == "" {
		return "", fmt.Errorf("video %d has no source file", v.ID)
	}
	return fs.ConfineRelPath(s.cfg.MediaRoot, filepath.FromSlash(v.VideoFile))
}

// Create stores in and, once committed, enqueues one encode job and, when no
// thumbnail was supplied, one thumbnail job. An enqueue failure is returned
// wrapped in ErrEnqueue together with the stored video.
func (s *Service) Create(ctx context.Context, in NewVideo) (Video, error) {
	return s.store.Create(ctx, in, func(v Video) error {
		return s.enqueueCreateJobs(ctx, v)
	})
}

func (s *Service) enqueueCreateJobs(ctx context.Context, v Video) error {
	logger := xglog.WithContext(xglog.ContextWithVideoID(ctx, v.ID), s.logger)
	if v.VideoFile == "" {
		logger.Info().Str(xglog.FieldEvent, "catalog.no_source").Msg("video created without source, nothing to schedule")
		return nil
	}
	source, err := s.SourcePath(v)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEnqueue, err)
	}

	encode, err := jobs.NewJob(jobs.KindEncode, v.ID, jobs.EncodePayload{Source: source})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEnqueue, err)
	}
	batch := []jobs.Job{encode}

	if v.Thumbnail == "" {
		thumb, err := jobs.NewJob(jobs.KindThumbnail, v.ID, jobs.ThumbnailPayload{
			Source:   source,
			RelPath:  DefaultThumbnailRel(v.ID),
			Second:   s.cfg.ThumbnailSecond,
			MaxWidth: s.cfg.ThumbnailMaxWidth,
		})
		if err != nil {
			return fmt.Errorf("%w: %w", ErrEnqueue, err)
		}
		batch = append(batch, thumb)
	}

	for _, job := range batch {
		err := s.queue.Enqueue(ctx, job)
		metrics.IncEnqueue(string(job.Kind), err)
		if err != nil {
			logger.Error().Err(err).
				Str(xglog.FieldEvent, "catalog.enqueue_failed").
				Str(xglog.FieldKind, string(job.Kind)).
				Msg("failed to enqueue pipeline job")
			return fmt.Errorf("%w: %s job for video %d: %w", ErrEnqueue, job.Kind, v.ID, err)
		}
		logger.Info().
			Str(xglog.FieldEvent, "catalog.job_enqueued").
			Str(xglog.FieldKind, string(job.Kind)).
			Str(xglog.FieldJobID, job.ID).
			Msg("pipeline job enqueued")
	}
	return nil
}

// Get returns one video.
func (s *Service) Get(ctx context.Context, id int64) (Video, error) {
	return s.store.Get(ctx, id)
}

// List returns all videos ordered by id.
func (s *Service) List(ctx context.Context) ([]Video, error) {
	return s.store.List(ctx)
}

// Delete removes the video and reclaims its files. Deleting a video that no
// longer exists is not an error; deleted reports whether a row was removed.
func (s *Service) Delete(ctx context.Context, id int64) (deleted bool, err error) {
	v, err := s.store.Delete(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.ReclaimFiles(ctx, v)
	return true, nil
}

// ReclaimFiles removes the source file, the thumbnail and every rendition
// directory of v. Missing files are skipped and other failures are only
// logged, so calling it repeatedly is safe.
func (s *Service) ReclaimFiles(ctx context.Context, v Video) {
	logger := xglog.WithContext(xglog.ContextWithVideoID(ctx, v.ID), s.logger)

	if v.VideoFile != "" {
		source, err := s.SourcePath(v)
		if err != nil {
			logger.Warn().Err(err).Str(xglog.FieldEvent, "catalog.reclaim_skipped").Msg("source path rejected")
		} else {
			s.removeFile(logger, "source", source)
			for _, dir := range rendition.Dirs(source) {
				s.removeDir(logger, dir)
			}
		}
	}

	if v.Thumbnail != "" {
		thumb, err := fs.ConfineRelPath(s.cfg.MediaRoot, filepath.FromSlash(v.Thumbnail))
		if err != nil {
			logger.Warn().Err(err).Str(xglog.FieldEvent, "catalog.reclaim_skipped").Msg("thumbnail path rejected")
		} else {
			s.removeFile(logger, "thumbnail", thumb)
		}
	}
}

// ReclaimRenditions removes the rendition directories of source only.
func (s *Service) ReclaimRenditions(ctx context.Context, source string) {
	logger := xglog.WithContext(ctx, s.logger)
	for _, dir := range rendition.Dirs(source) {
		s.removeDir(logger, dir)
	}
}

func (s *Service) removeFile(logger zerolog.Logger, kind, path string) {
	removed, err := fs.RemoveFile(path)
	switch {
	case err != nil:
		metrics.IncReclaim(kind, "error")
		logger.Warn().Err(err).Str(xglog.FieldPath, path).Str(xglog.FieldEvent, "catalog.reclaim_failed").Msg("failed to remove file")
	case removed:
		metrics.IncReclaim(kind, "removed")
		logger.Debug().Str(xglog.FieldPath, path).Msg("removed file")
	default:
		metrics.IncReclaim(kind, "missing")
	}
}

func (s *Service) removeDir(logger zerolog.Logger, dir string) {
	if _, err := fs.ConfineAbsPath(s.cfg.MediaRoot, dir); err != nil {
		logger.Warn().Err(err).Str(xglog.FieldPath, dir).Str(xglog.FieldEvent, "catalog.reclaim_skipped").Msg("rendition dir rejected")
		return
	}
	removed, err := fs.RemoveDir(dir)
	switch {
	case err != nil:
		metrics.IncReclaim("rendition", "error")
		logger.Warn().Err(err).Str(xglog.FieldPath, dir).Str(xglog.FieldEvent, "catalog.reclaim_failed").Msg("failed to remove rendition dir")
	case removed:
		metrics.IncReclaim("rendition", "removed")
		logger.Debug().Str(xglog.FieldPath, dir).Msg("removed rendition dir")
	default:
		metrics.IncReclaim("rendition", "missing")
	}
}
