package vod

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFFmpegProgress(t *testing.T) {
	input := strings.Join([]string{
		"frame=10",
		"out_time_us=400000",
		"total_size=1024",
		"speed=1.5x",
		"progress=continue",
		"garbage line",
		"frame=20",
		"out_time_us=800000",
		"total_size=4096",
		"progress=end",
	}, "\n")

	ch := make(chan FFmpegProgress, 10)
	parseFFmpegProgress(strings.NewReader(input), ch)
	close(ch)

	var got []FFmpegProgress
	for p := range ch {
		got = append(got, p)
	}
	require.Len(t, got, 2)
	assert.Equal(t, FFmpegProgress{Frame: 10, OutTimeUs: 400000, TotalSize: 1024, Speed: "1.5x"}, got[0])
	assert.Equal(t, 20, got[1].Frame)
	assert.True(t, got[1].hasAdvanced(got[0]))
	assert.False(t, got[0].hasAdvanced(got[1]))
}

// fakeBinary writes an executable shell script that ignores its arguments.
func fakeBinary(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	p := filepath.Join(t.TempDir(), "fake-ffmpeg")
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return p
}

func TestDefaultExecutorSuccess(t *testing.T) {
	bin := fakeBinary(t, "echo progress=end; exit 0")
	e := &DefaultExecutor{Logger: NopLogger()}
	assert.NoError(t, e.Run(context.Background(), bin, []string{"-i", "x"}))
}

func TestDefaultExecutorNonZeroExit(t *testing.T) {
	bin := fakeBinary(t, "echo 'Invalid data found when processing input' >&2; exit 3")
	e := &DefaultExecutor{Logger: NopLogger()}

	err := e.Run(context.Background(), bin, nil)
	var fail *EncodingFailure
	require.True(t, errors.As(err, &fail))
	assert.Equal(t, 3, fail.ExitCode)
	assert.Contains(t, fail.Stderr, "Invalid data found")
	assert.Contains(t, err.Error(), "exit code 3")
}

func TestDefaultExecutorMissingBinary(t *testing.T) {
	e := &DefaultExecutor{Logger: NopLogger()}
	err := e.Run(context.Background(), filepath.Join(t.TempDir(), "nope"), nil)

	var fail *EncodingFailure
	require.True(t, errors.As(err, &fail))
	assert.Equal(t, -1, fail.ExitCode)
}

func TestDefaultExecutorTimeoutKillsProcess(t *testing.T) {
	bin := fakeBinary(t, "sleep 30")
	e := &DefaultExecutor{Logger: NopLogger()}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := e.Run(ctx, bin, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestDefaultExecutorStall(t *testing.T) {
	bin := fakeBinary(t, "sleep 30")
	e := &DefaultExecutor{
		Logger:       NopLogger(),
		StartupGrace: time.Millisecond,
		StallTimeout: 100 * time.Millisecond,
		Tick:         20 * time.Millisecond,
	}

	start := time.Now()
	err := e.Run(context.Background(), bin, nil)
	assert.ErrorIs(t, err, ErrStalled)
	assert.Less(t, time.Since(start), 10*time.Second)
}

// TestEncodeAllWithFFmpeg runs the real encoder when one is installed.
func TestEncodeAllWithFFmpeg(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping ffmpeg integration in short mode")
	}
	bin, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}

	dir := t.TempDir()
	src := filepath.Join(dir, "clip.mp4")
	gen := exec.Command(bin, "-y", "-f", "lavfi", "-i", "testsrc=size=320x240:rate=25:duration=8",
		"-f", "lavfi", "-i", "sine=frequency=440:duration=8", "-shortest",
		"-c:v", "libx264", "-c:a", "aac", src)
	if out, err := gen.CombinedOutput(); err != nil {
		t.Skipf("cannot generate fixture: %v: %s", err, out)
	}

	enc := &Encoder{Exec: &DefaultExecutor{Logger: NopLogger()}, Bin: bin, Timeout: 2 * time.Minute, Logger: NopLogger()}
	manifest, err := enc.EncodeAll(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "clip_hls_1080p", "index.m3u8"), manifest)

	manifests, err := filepath.Glob(filepath.Join(dir, "clip_hls_*", "index.m3u8"))
	require.NoError(t, err)
	assert.Len(t, manifests, 3)
	for _, m := range manifests {
		data, err := os.ReadFile(m)
		require.NoError(t, err)
		assert.Contains(t, string(data), "#EXT-X-PLAYLIST-TYPE:VOD")
		assert.Contains(t, string(data), "#EXT-X-ENDLIST")
		segs, err := filepath.Glob(filepath.Join(filepath.Dir(m), "seg_*.ts"))
		require.NoError(t, err)
		assert.NotEmpty(t, segs)
	}
}
