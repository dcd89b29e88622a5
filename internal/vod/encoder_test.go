package vod

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/videocat/internal/rendition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEncoder records invocations and writes the files a real ffmpeg would.
type fakeEncoder struct {
	mu        sync.Mutex
	calls     [][]string
	deadlines []bool
	failOn    string // substring of the output manifest that triggers a failure
	segments  int
}

func (f *fakeEncoder) Run(ctx context.Context, _ string, args []string) error {
	f.mu.Lock()
	f.calls = append(f.calls, args)
	_, hasDeadline := ctx.Deadline()
	f.deadlines = append(f.deadlines, hasDeadline)
	f.mu.Unlock()

	out := args[len(args)-1]
	if f.failOn != "" && strings.Contains(out, f.failOn) {
		return &EncodingFailure{ExitCode: 1, Stderr: "Conversion failed!"}
	}
	dir := filepath.Dir(out)
	n := f.segments
	if n == 0 {
		n = 2
	}
	playlist := "#EXTM3U\n#EXT-X-PLAYLIST-TYPE:VOD\n#EXT-X-TARGETDURATION:6\n"
	for i := 0; i < n; i++ {
		name := filepath.Join(dir, "seg_00"+string(rune('0'+i))+".ts")
		if err := os.WriteFile(name, []byte("ts"), 0o600); err != nil {
			return err
		}
		playlist += "#EXTINF:6.0,\n" + filepath.Base(name) + "\n"
	}
	playlist += "#EXT-X-ENDLIST\n"
	return os.WriteFile(out, []byte(playlist), 0o600)
}

func writeSource(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "videos")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	src := filepath.Join(dir, "movie.mp4")
	require.NoError(t, os.WriteFile(src, []byte("not really mp4"), 0o600))
	return src
}

func TestEncodeAllProducesThreeRenditions(t *testing.T) {
	src := writeSource(t)
	fake := &fakeEncoder{}
	enc := &Encoder{Exec: fake, Timeout: time.Minute, Logger: NopLogger()}

	manifest, err := enc.EncodeAll(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(src), "movie_hls_1080p", "index.m3u8"), manifest)

	require.Len(t, fake.calls, 3)
	for i, r := range rendition.All() {
		dir := rendition.Dir(src, r)
		assert.FileExists(t, filepath.Join(dir, rendition.ManifestName))
		segs, err := filepath.Glob(filepath.Join(dir, "seg_*.ts"))
		require.NoError(t, err)
		assert.NotEmpty(t, segs)
		assert.Contains(t, fake.calls[i], filepath.Join(dir, rendition.ManifestName))
		assert.True(t, fake.deadlines[i], "each process runs under a timeout")
	}
}

func TestEncodeAllStopsOnFirstFailure(t *testing.T) {
	src := writeSource(t)
	fake := &fakeEncoder{failOn: "_hls_720p"}
	enc := &Encoder{Exec: fake, Logger: NopLogger()}

	_, err := enc.EncodeAll(context.Background(), src)
	require.Error(t, err)

	var fail *EncodingFailure
	require.True(t, errors.As(err, &fail))
	assert.Equal(t, "720p", fail.Resolution)
	assert.Equal(t, 1, fail.ExitCode)
	assert.Contains(t, err.Error(), "Conversion failed!")

	assert.Len(t, fake.calls, 2, "1080p must not be attempted")
	assert.NoFileExists(t, filepath.Join(rendition.Dir(src, rendition.R1080p), rendition.ManifestName))
	assert.False(t, fake.deadlines[0], "no timeout configured")
}

func TestEncodeAllMissingSource(t *testing.T) {
	fake := &fakeEncoder{}
	enc := &Encoder{Exec: fake, Logger: NopLogger()}

	_, err := enc.EncodeAll(context.Background(), filepath.Join(t.TempDir(), "gone.mp4"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Empty(t, fake.calls)
}

func TestEncodeRejectsUnsupportedResolution(t *testing.T) {
	fake := &fakeEncoder{}
	enc := &Encoder{Exec: fake, Logger: NopLogger()}

	_, err := enc.Encode(context.Background(), writeSource(t), "9999p")
	assert.ErrorIs(t, err, rendition.ErrUnsupportedResolution)
	assert.Empty(t, fake.calls, "encoder must not run for unknown resolutions")
}

func TestEncodeRerunOverwrites(t *testing.T) {
	src := writeSource(t)
	enc := &Encoder{Exec: &fakeEncoder{segments: 3}, Logger: NopLogger()}
	_, err := enc.Encode(context.Background(), src, "480p")
	require.NoError(t, err)

	enc.Exec = &fakeEncoder{segments: 1}
	manifest, err := enc.Encode(context.Background(), src, "480p")
	require.NoError(t, err)

	data, err := os.ReadFile(manifest)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "#EXTINF"))
}

func TestEncodeWrapsPlainErrors(t *testing.T) {
	enc := &Encoder{
		Exec: ExecFunc(func(context.Context, string, []string) error {
			return context.DeadlineExceeded
		}),
		Logger: NopLogger(),
	}
	_, err := enc.Encode(context.Background(), writeSource(t), "1080p")

	var fail *EncodingFailure
	require.True(t, errors.As(err, &fail))
	assert.Equal(t, "1080p", fail.Resolution)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
