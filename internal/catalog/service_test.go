// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ManuGH/videocat/internal/jobs"
	"github.com/ManuGH/videocat/internal/rendition"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type spyQueue struct {
	mu     sync.Mutex
	jobs   []jobs.Job
	failOn jobs.Kind
}

func (q *spyQueue) Enqueue(_ context.Context, job jobs.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job.Kind == q.failOn {
		return errors.New("redis: connection refused")
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func newTestService(t *testing.T, q jobs.Enqueuer) (*Service, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "videos"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "thumbnails"), 0o755))
	svc := NewService(openTestStore(t), q, ServiceConfig{MediaRoot: root, Logger: zerolog.Nop()})
	return svc, root
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o600))
}

func TestCreateEnqueuesEncodeAndThumbnail(t *testing.T) {
	q := &spyQueue{}
	svc, root := newTestService(t, q)
	writeFile(t, filepath.Join(root, "videos", "movie.mp4"))

	v, err := svc.Create(context.Background(), NewVideo{Title: "M", Category: "drama", VideoFile: "videos/movie.mp4"})
	require.NoError(t, err)

	require.Len(t, q.jobs, 2)
	assert.Equal(t, jobs.KindEncode, q.jobs[0].Kind)
	assert.Equal(t, v.ID, q.jobs[0].VideoID)
	var enc jobs.EncodePayload
	require.NoError(t, q.jobs[0].Decode(&enc))
	assert.Equal(t, "movie.mp4", filepath.Base(enc.Source))

	assert.Equal(t, jobs.KindThumbnail, q.jobs[1].Kind)
	var thumb jobs.ThumbnailPayload
	require.NoError(t, q.jobs[1].Decode(&thumb))
	assert.Equal(t, DefaultThumbnailRel(v.ID), thumb.RelPath)
	assert.Equal(t, 2.0, thumb.Second)
	assert.Equal(t, 480, thumb.MaxWidth)
	assert.Equal(t, enc.Source, thumb.Source)
}

func TestCreateWithThumbnailSkipsExtraction(t *testing.T) {
	q := &spyQueue{}
	svc, root := newTestService(t, q)
	writeFile(t, filepath.Join(root, "videos", "a.mp4"))

	_, err := svc.Create(context.Background(), NewVideo{Title: "A", Category: "c", VideoFile: "videos/a.mp4", Thumbnail: "thumbnails/custom.png"})
	require.NoError(t, err)
	require.Len(t, q.jobs, 1)
	assert.Equal(t, jobs.KindEncode, q.jobs[0].Kind)
}

func TestCreateWithoutSourceSchedulesNothing(t *testing.T) {
	q := &spyQueue{}
	svc, _ := newTestService(t, q)

	_, err := svc.Create(context.Background(), NewVideo{Title: "A", Category: "c"})
	require.NoError(t, err)
	assert.Empty(t, q.jobs)
}

func TestCreateEnqueueFailureIsRetryable(t *testing.T) {
	q := &spyQueue{failOn: jobs.KindThumbnail}
	svc, root := newTestService(t, q)
	writeFile(t, filepath.Join(root, "videos", "a.mp4"))

	v, err := svc.Create(context.Background(), NewVideo{Title: "A", Category: "c", VideoFile: "videos/a.mp4"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEnqueue)
	assert.Contains(t, err.Error(), "connection refused")

	stored, err := svc.Get(context.Background(), v.ID)
	require.NoError(t, err, "video is committed even though scheduling failed")
	assert.Equal(t, StatusPending, stored.Status)
}

func TestDeleteReclaimsFilesAndIsIdempotent(t *testing.T) {
	q := &spyQueue{}
	svc, root := newTestService(t, q)
	ctx := context.Background()

	source := filepath.Join(root, "videos", "movie.mp4")
	writeFile(t, source)
	v, err := svc.Create(ctx, NewVideo{Title: "M", Category: "c", VideoFile: "videos/movie.mp4"})
	require.NoError(t, err)

	thumb := filepath.Join(root, filepath.FromSlash(DefaultThumbnailRel(v.ID)))
	writeFile(t, thumb)
	require.NoError(t, svc.Store().SetThumbnail(ctx, v.ID, DefaultThumbnailRel(v.ID)))
	for _, dir := range rendition.Dirs(source) {
		writeFile(t, filepath.Join(dir, rendition.ManifestName))
		writeFile(t, filepath.Join(dir, "seg_000.ts"))
	}
	other := filepath.Join(root, "videos", "movie2.mp4")
	writeFile(t, other)

	deleted, err := svc.Delete(ctx, v.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	assert.NoFileExists(t, source)
	assert.NoFileExists(t, thumb)
	for _, dir := range rendition.Dirs(source) {
		assert.NoDirExists(t, dir)
	}
	assert.FileExists(t, other, "unrelated media untouched")

	deleted, err = svc.Delete(ctx, v.ID)
	require.NoError(t, err, "second delete does not fail")
	assert.False(t, deleted)

	assert.NotPanics(t, func() { svc.ReclaimFiles(ctx, v) })
}

func TestDeleteWithMissingFiles(t *testing.T) {
	svc, _ := newTestService(t, &spyQueue{})
	ctx := context.Background()

	v, err := svc.Create(ctx, NewVideo{Title: "M", Category: "c", VideoFile: "videos/never-uploaded.mp4", Thumbnail: "thumbnails/x.jpg"})
	require.NoError(t, err)

	deleted, err := svc.Delete(ctx, v.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestReclaimRejectsEscapingPaths(t *testing.T) {
	svc, root := newTestService(t, &spyQueue{})
	outside := filepath.Join(filepath.Dir(root), filepath.Base(root)+"-outside.jpg")
	writeFile(t, outside)
	t.Cleanup(func() { _ = os.Remove(outside) })

	svc.ReclaimFiles(context.Background(), Video{ID: 1, Thumbnail: "../" + filepath.Base(outside)})
	assert.FileExists(t, outside)
}
