// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package rendition maps resolution labels to encode parameters and derives
// the on-disk location of each HLS rendition. Both the encoder and the
// delivery handlers resolve directories through this package only.
package rendition

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Resolution is a supported rendition label such as "720p".
type Resolution string

const (
	R480p  Resolution = "480p"
	R720p  Resolution = "720p"
	R1080p Resolution = "1080p"
)

const (
	// ManifestName is the playlist file written into every rendition directory.
	ManifestName = "index.m3u8"
	// SegmentTemplate is the ffmpeg pattern for numbered segment files.
	SegmentTemplate = "seg_%03d.ts"
	// SegmentDuration is the target HLS segment length in seconds.
	SegmentDuration = 6
	// DirSuffix separates the source stem from the resolution label.
	DirSuffix = "_hls_"
)

// ErrUnsupportedResolution is matched by every UnsupportedResolutionError.
var ErrUnsupportedResolution = errors.New("unsupported resolution")

// UnsupportedResolutionError reports a label outside the fixed set.
type UnsupportedResolutionError struct {
	Label string
}

func (e *UnsupportedResolutionError) Error() string {
	return fmt.Sprintf("unsupported resolution %q", e.Label)
}

// Is makes errors.Is(err, ErrUnsupportedResolution) hold.
func (e *UnsupportedResolutionError) Is(target error) bool {
	return target == ErrUnsupportedResolution
}

// Params are the fixed encode settings of one resolution.
type Params struct {
	Height       int
	VideoBitrate string
	AudioBitrate string
}

var table = map[Resolution]Params{
	R480p:  {Height: 480, VideoBitrate: "1000k", AudioBitrate: "128k"},
	R720p:  {Height: 720, VideoBitrate: "2500k", AudioBitrate: "128k"},
	R1080p: {Height: 1080, VideoBitrate: "5000k", AudioBitrate: "192k"},
}

// All returns the supported resolutions in ascending order.
func All() []Resolution {
	return []Resolution{R480p, R720p, R1080p}
}

// Parse validates a label. Matching is exact: "720P" and " 720p" are rejected.
func Parse(label string) (Resolution, error) {
	r := Resolution(label)
	if _, ok := table[r]; !ok {
		return "", &UnsupportedResolutionError{Label: label}
	}
	return r, nil
}

// ParamsFor returns the encode parameters for label.
func ParamsFor(label string) (Params, error) {
	r, err := Parse(label)
	if err != nil {
		return Params{}, err
	}
	return table[r], nil
}

// Params returns the encode parameters of r. It panics on values not
// produced by Parse or All.
func (r Resolution) Params() Params {
	p, ok := table[r]
	if !ok {
		panic(fmt.Sprintf("rendition: unknown resolution %q", string(r)))
	}
	return p
}

func (r Resolution) String() string { return string(r) }

// Stem returns the source file name without its final extension.
func Stem(sourcePath string) string {
	name := filepath.Base(sourcePath)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Dir returns <source_dir>/<source_stem>_hls_<resolution>. No I/O is performed.
func Dir(sourcePath string, r Resolution) string {
	return filepath.Join(filepath.Dir(sourcePath), Stem(sourcePath)+DirSuffix+string(r))
}

// Dirs returns the rendition directories of every supported resolution.
func Dirs(sourcePath string) []string {
	all := All()
	out := make([]string, 0, len(all))
	for _, r := range all {
		out = append(out, Dir(sourcePath, r))
	}
	return out
}

// Plan describes where and how one rendition of a source is produced.
type Plan struct {
	Resolution     Resolution
	Params         Params
	Dir            string
	ManifestPath   string
	SegmentPattern string
}

// PlanFor builds the plan for sourcePath at the given label.
func PlanFor(sourcePath, label string) (Plan, error) {
	r, err := Parse(label)
	if err != nil {
		return Plan{}, err
	}
	dir := Dir(sourcePath, r)
	return Plan{
		Resolution:     r,
		Params:         table[r],
		Dir:            dir,
		ManifestPath:   filepath.Join(dir, ManifestName),
		SegmentPattern: filepath.Join(dir, SegmentTemplate),
	}, nil
}
