// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ManuGH/videocat/internal/catalog"
	xglog "github.com/ManuGH/videocat/internal/log"
	"github.com/ManuGH/videocat/internal/metrics"
	"github.com/ManuGH/videocat/internal/platform/fs"
	"github.com/ManuGH/videocat/internal/rendition"
	"github.com/go-chi/chi/v5"
	"golang.org/x/text/unicode/norm"
)

const (
	contentTypeManifest = "application/vnd.apple.mpegurl"
	contentTypeSegment  = "video/MP2T"
)

var (
	// ErrArtifactNotFound covers every reason a manifest or segment is not served.
	ErrArtifactNotFound = errors.New("artifact not found")
	// ErrUnsafeSegmentName is returned for names that could address another directory.
	ErrUnsafeSegmentName = errors.New("unsafe segment name")
)

// ArtifactNotFoundError carries the internal reason behind a uniform 404.
type ArtifactNotFoundError struct {
	Reason string
	Err    error
}

func (e *ArtifactNotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("artifact not found (%s): %v", e.Reason, e.Err)
	}
	return "artifact not found (" + e.Reason + ")"
}

func (e *ArtifactNotFoundError) Unwrap() error { return e.Err }

func (e *ArtifactNotFoundError) Is(target error) bool { return target == ErrArtifactNotFound }

func notFound(reason string, err error) error {
	return &ArtifactNotFoundError{Reason: reason, Err: err}
}

// FS is the filesystem view used to serve artifacts.
type FS interface {
	Stat(name string) (iofs.FileInfo, error)
	Open(name string) (io.ReadSeekCloser, error)
}

// OSFS serves from the local disk.
type OSFS struct{}

func (OSFS) Stat(name string) (iofs.FileInfo, error) { return os.Stat(name) }

func (OSFS) Open(name string) (io.ReadSeekCloser, error) { return os.Open(name) }

// VideoLookup is the read side of the catalog needed for delivery.
type VideoLookup interface {
	Get(ctx context.Context, id int64) (catalog.Video, error)
	SourcePath(v catalog.Video) (string, error)
	MediaRoot() string
}

// Gateway resolves manifest and segment requests to files on disk.
type Gateway struct {
	videos VideoLookup
	fs     FS
}

func NewGateway(videos VideoLookup, fsys FS) *Gateway {
	if fsys == nil {
		fsys = OSFS{}
	}
	return &Gateway{videos: videos, fs: fsys}
}

// CheckSegmentName decodes raw (up to three times, catching double
// encoding), applies NFKC and rejects names that contain a separator or NUL
// or that are a bare dot entry.
func CheckSegmentName(raw string) (string, error) {
	decoded := raw
	for i := 0; i < 3; i++ {
		d, err := url.PathUnescape(decoded)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnsafeSegmentName, err)
		}
		if d == decoded {
			break
		}
		decoded = d
	}
	name := norm.NFKC.String(decoded)
	switch {
	case name == "", name == ".", name == "..":
		return "", fmt.Errorf("%w: %q", ErrUnsafeSegmentName, raw)
	case strings.ContainsAny(name, "/\\\x00"):
		return "", fmt.Errorf("%w: %q", ErrUnsafeSegmentName, raw)
	}
	return name, nil
}

// ParseVideoID accepts positive decimal ids only.
func ParseVideoID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, notFound("bad_id", fmt.Errorf("invalid video id %q", raw))
	}
	return id, nil
}

// Resolve returns the path and file info of name inside the rendition
// directory of video id. Every miss is an *ArtifactNotFoundError; other
// errors come from the catalog.
func (g *Gateway) Resolve(ctx context.Context, id int64, label, name string) (string, iofs.FileInfo, error) {
	res, err := rendition.Parse(label)
	if err != nil {
		return "", nil, notFound("unsupported_resolution", err)
	}
	v, err := g.videos.Get(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		return "", nil, notFound("unknown_video", err)
	}
	if err != nil {
		return "", nil, err
	}
	source, err := g.videos.SourcePath(v)
	if err != nil {
		return "", nil, notFound("no_source", err)
	}

	path, err := fs.ConfineAbsPath(g.videos.MediaRoot(), filepath.Join(rendition.Dir(source, res), name))
	if err != nil {
		return "", nil, notFound("outside_root", err)
	}
	return g.stat(path)
}

// ResolveThumbnail returns a generated or uploaded thumbnail by file name.
func (g *Gateway) ResolveThumbnail(name string) (string, iofs.FileInfo, error) {
	path, err := fs.ConfineRelPath(g.videos.MediaRoot(), filepath.Join("thumbnails", name))
	if err != nil {
		return "", nil, notFound("outside_root", err)
	}
	return g.stat(path)
}

func (g *Gateway) stat(path string) (string, iofs.FileInfo, error) {
	info, err := g.fs.Stat(path)
	if err != nil {
		return "", nil, notFound("missing_artifact", err)
	}
	if !info.Mode().IsRegular() {
		return "", nil, notFound("not_regular", nil)
	}
	return path, info, nil
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	id, err := ParseVideoID(urlParam(r, "id"))
	if err != nil {
		s.deny(w, r, err)
		return
	}
	s.serveArtifact(w, r, id, urlParam(r, "resolution"), rendition.ManifestName, "manifest", contentTypeManifest)
}

func (s *Server) handleSegment(w http.ResponseWriter, r *http.Request) {
	// name check first: nothing is looked up for an unsafe name
	name, err := CheckSegmentName(chi.URLParam(r, "segment"))
	if err != nil {
		metrics.RecordDeliveryDenied("unsafe_segment")
		xglog.FromContext(r.Context()).Warn().
			Str(xglog.FieldEvent, "delivery.unsafe_segment").
			Str(xglog.FieldSegment, strconv.Quote(chi.URLParam(r, "segment"))).
			Str(xglog.FieldRemote, r.RemoteAddr).
			Msg("rejected segment name")
		writeNotFound(w)
		return
	}
	id, err := ParseVideoID(urlParam(r, "id"))
	if err != nil {
		s.deny(w, r, err)
		return
	}
	if name == rendition.ManifestName {
		// index.m3u8/ lands here through the optional trailing slash
		s.serveArtifact(w, r, id, urlParam(r, "resolution"), name, "manifest", contentTypeManifest)
		return
	}
	s.serveArtifact(w, r, id, urlParam(r, "resolution"), name, "segment", contentTypeSegment)
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	name, err := CheckSegmentName(chi.URLParam(r, "name"))
	if err != nil {
		metrics.RecordDeliveryDenied("unsafe_segment")
		xglog.FromContext(r.Context()).Warn().
			Str(xglog.FieldEvent, "delivery.unsafe_segment").
			Str(xglog.FieldSegment, strconv.Quote(chi.URLParam(r, "name"))).
			Msg("rejected thumbnail name")
		writeNotFound(w)
		return
	}
	path, info, err := s.gateway.ResolveThumbnail(name)
	if err != nil {
		s.deny(w, r, err)
		return
	}
	s.serveFile(w, r, path, info, "thumbnail", "")
}

func (s *Server) serveArtifact(w http.ResponseWriter, r *http.Request, id int64, label, name, kind, contentType string) {
	ctx := xglog.ContextWithVideoID(r.Context(), id)
	path, info, err := s.gateway.Resolve(ctx, id, label, name)
	if err != nil {
		s.deny(w, r.WithContext(ctx), err)
		return
	}
	s.serveFile(w, r, path, info, kind, contentType)
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, path string, info iofs.FileInfo, kind, contentType string) {
	f, err := s.gateway.fs.Open(path)
	if err != nil {
		s.deny(w, r, notFound("open_failed", err))
		return
	}
	defer func() { _ = f.Close() }()

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Cache-Control", "private, max-age=3600")
	metrics.RecordDeliveryServed(kind)
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// deny maps err to the uniform 404, or to a 500 for catalog failures.
func (s *Server) deny(w http.ResponseWriter, r *http.Request, err error) {
	logger := xglog.FromContext(r.Context())
	var nf *ArtifactNotFoundError
	if !errors.As(err, &nf) {
		logger.Error().Err(err).Str(xglog.FieldEvent, "delivery.lookup_failed").Msg("artifact lookup failed")
		writeInternal(w)
		return
	}
	metrics.RecordDeliveryDenied(nf.Reason)
	logger.Debug().Err(err).
		Str(xglog.FieldEvent, "delivery.not_found").
		Str(xglog.FieldReason, nf.Reason).
		Msg("artifact not served")
	writeNotFound(w)
}

// urlParam returns a path parameter with percent escapes removed; chi
// routes on the raw path when one is present.
func urlParam(r *http.Request, key string) string {
	v := chi.URLParam(r, key)
	if d, err := url.PathUnescape(v); err == nil {
		return d
	}
	return v
}
