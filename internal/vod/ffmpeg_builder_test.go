package vod

import (
	"testing"

	"github.com/ManuGH/videocat/internal/rendition"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildHLSArgs(t *testing.T) {
	plan, err := rendition.PlanFor("/media/videos/movie.mp4", "720p")
	require.NoError(t, err)

	want := []string{
		"-y",
		"-i", "/media/videos/movie.mp4",
		"-vf", "scale=-2:720",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-profile:v", "main",
		"-pix_fmt", "yuv420p",
		"-b:v", "2500k",
		"-maxrate", "2500k",
		"-bufsize", "5000k",
		"-force_key_frames", "expr:gte(t,n_forced*6)",
		"-sc_threshold", "0",
		"-c:a", "aac",
		"-b:a", "128k",
		"-ac", "2",
		"-f", "hls",
		"-hls_time", "6",
		"-hls_playlist_type", "vod",
		"-hls_list_size", "0",
		"-hls_segment_filename", "/media/videos/movie_hls_720p/seg_%03d.ts",
		"/media/videos/movie_hls_720p/index.m3u8",
	}
	if diff := cmp.Diff(want, BuildHLSArgs("/media/videos/movie.mp4", plan)); diff != "" {
		t.Errorf("BuildHLSArgs mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildThumbnailArgs(t *testing.T) {
	got := BuildThumbnailArgs("/m/videos/a.mp4", "/m/thumbnails/1.jpg", 2.0, 480)
	want := []string{
		"-y",
		"-ss", "2.000",
		"-i", "/m/videos/a.mp4",
		"-frames:v", "1",
		"-vf", "scale='min(480,iw)':-2",
		"-q:v", "2",
		"/m/thumbnails/1.jpg",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("BuildThumbnailArgs mismatch (-want +got):\n%s", diff)
	}
}

func TestDoubleRate(t *testing.T) {
	assert.Equal(t, "2000k", doubleRate("1000k"))
	assert.Equal(t, "10000k", doubleRate("5000k"))
	assert.Equal(t, "256", doubleRate("128"))
	assert.Equal(t, "fast", doubleRate("fast"))
}
