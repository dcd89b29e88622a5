package vod

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ManuGH/videocat/internal/rendition"
)

// BuildHLSArgs returns the ffmpeg arguments that encode source into one VOD
// rendition described by plan. Keyframes are forced on segment boundaries so
// every segment starts decodable.
func BuildHLSArgs(source string, plan rendition.Plan) []string {
	p := plan.Params
	segment := strconv.Itoa(rendition.SegmentDuration)
	return []string{
		"-y",
		"-i", source,
		"-vf", fmt.Sprintf("scale=-2:%d", p.Height),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-profile:v", "main",
		"-pix_fmt", "yuv420p",
		"-b:v", p.VideoBitrate,
		"-maxrate", p.VideoBitrate,
		"-bufsize", doubleRate(p.VideoBitrate),
		"-force_key_frames", "expr:gte(t,n_forced*" + segment + ")",
		"-sc_threshold", "0",
		"-c:a", "aac",
		"-b:a", p.AudioBitrate,
		"-ac", "2",
		"-f", "hls",
		"-hls_time", segment,
		"-hls_playlist_type", "vod",
		"-hls_list_size", "0",
		"-hls_segment_filename", plan.SegmentPattern,
		plan.ManifestPath,
	}
}

// BuildThumbnailArgs returns the ffmpeg arguments that grab a single frame at
// second and scale it down to at most maxWidth pixels wide.
func BuildThumbnailArgs(source, output string, second float64, maxWidth int) []string {
	return []string{
		"-y",
		"-ss", strconv.FormatFloat(second, 'f', 3, 64),
		"-i", source,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale='min(%d,iw)':-2", maxWidth),
		"-q:v", "2",
		output,
	}
}

// doubleRate turns "2500k" into "5000k". Unparseable values pass through.
func doubleRate(rate string) string {
	num, unit := rate, ""
	if i := strings.IndexFunc(rate, func(r rune) bool { return r < '0' || r > '9' }); i >= 0 {
		num, unit = rate[:i], rate[i:]
	}
	n, err := strconv.Atoi(num)
	if err != nil {
		return rate
	}
	return strconv.Itoa(n*2) + unit
}
