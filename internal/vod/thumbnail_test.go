package vod

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type thumbStore struct {
	videoID int64
	rel     string
	err     error
}

func (s *thumbStore) SetThumbnail(_ context.Context, id int64, rel string) error {
	s.videoID, s.rel = id, rel
	return s.err
}

func frameWriter(args *[]string) Exec {
	return ExecFunc(func(_ context.Context, _ string, a []string) error {
		*args = a
		return os.WriteFile(a[len(a)-1], []byte{0xff, 0xd8, 0xff}, 0o600)
	})
}

func TestExtractWritesFrameAndRecordsPath(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "videos", "a.mp4")
	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0o755))
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o600))

	var args []string
	store := &thumbStore{}
	x := &ThumbnailExtractor{Exec: frameWriter(&args), MediaRoot: root, Store: store, Logger: NopLogger()}

	out, err := x.Extract(context.Background(), ThumbnailRequest{VideoID: 9, Source: src, RelPath: "thumbnails/9.jpg", Second: 2.0})
	require.NoError(t, err)
	assert.FileExists(t, out)
	assert.Equal(t, "9.jpg", filepath.Base(out))

	assert.Equal(t, int64(9), store.videoID)
	assert.Equal(t, "thumbnails/9.jpg", store.rel)
	assert.Contains(t, args, "2.000")
	assert.Contains(t, args, "scale='min(480,iw)':-2")
}

func TestExtractTakesFirstFrameAtZero(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a.mp4")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o600))

	var args []string
	x := &ThumbnailExtractor{Exec: frameWriter(&args), MediaRoot: root, Store: &thumbStore{}, Logger: NopLogger()}
	_, err := x.Extract(context.Background(), ThumbnailRequest{VideoID: 1, Source: src, RelPath: "thumbnails/1.jpg"})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(args), 3)
	assert.Equal(t, []string{"-y", "-ss", "0.000"}, args[:3])

	_, err = x.Extract(context.Background(), ThumbnailRequest{VideoID: 1, Source: src, RelPath: "thumbnails/1.jpg", Second: -1})
	assert.Error(t, err)
}

func TestExtractRejectsEscapingPath(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a.mp4")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o600))

	called := false
	x := &ThumbnailExtractor{
		Exec: ExecFunc(func(context.Context, string, []string) error {
			called = true
			return nil
		}),
		MediaRoot: root,
		Store:     &thumbStore{},
		Logger:    NopLogger(),
	}
	for _, rel := range []string{"../x.jpg", "/etc/x.jpg", `thumbnails\..\..\x.jpg`, ""} {
		_, err := x.Extract(context.Background(), ThumbnailRequest{VideoID: 1, Source: src, RelPath: rel})
		assert.Error(t, err, rel)
	}
	assert.False(t, called)
}

func TestExtractWithoutOutputFails(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a.mp4")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o600))

	store := &thumbStore{}
	x := &ThumbnailExtractor{
		Exec:      ExecFunc(func(context.Context, string, []string) error { return nil }),
		MediaRoot: root,
		Store:     store,
		Logger:    NopLogger(),
	}
	_, err := x.Extract(context.Background(), ThumbnailRequest{VideoID: 1, Source: src, RelPath: "thumbnails/1.jpg", Second: 3600})

	var fail *EncodingFailure
	require.True(t, errors.As(err, &fail))
	assert.Empty(t, store.rel, "catalog must not point at a missing image")
}

func TestExtractStoreFailure(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a.mp4")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o600))

	var args []string
	x := &ThumbnailExtractor{
		Exec:      frameWriter(&args),
		MediaRoot: root,
		Store:     &thumbStore{err: errors.New("db down")},
		Logger:    NopLogger(),
	}
	_, err := x.Extract(context.Background(), ThumbnailRequest{VideoID: 1, Source: src, RelPath: "t/1.jpg", MaxWidth: 320, Second: 1.5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	assert.Contains(t, args, "1.500")
	assert.Contains(t, args, "scale='min(320,iw)':-2")
}
