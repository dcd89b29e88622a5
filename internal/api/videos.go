package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/videocat/internal/catalog"
	xglog "github.com/ManuGH/videocat/internal/log"
	"github.com/ManuGH/videocat/internal/platform/fs"
	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// VideoResponse is the list representation of a video.
type VideoResponse struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ThumbnailURL *string   `json:"thumbnail_url"`
	Category     string    `json:"category"`
	CreatedAt    time.Time `json:"created_at"`
	Status       string    `json:"status"`
}

func (s *Server) toResponse(v catalog.Video) VideoResponse {
	resp := VideoResponse{
		ID:          v.ID,
		Title:       v.Title,
		Description: v.Description,
		Category:    v.Category,
		CreatedAt:   v.CreatedAt,
		Status:      string(v.Status),
	}
	if v.Thumbnail != "" {
		u := s.cfg.MediaURL + v.Thumbnail
		resp.ThumbnailURL = &u
	}
	return resp
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	videos, err := s.catalog.List(r.Context())
	if err != nil {
		xglog.FromContext(r.Context()).Error().Err(err).Str(xglog.FieldEvent, "catalog.list_failed").Msg("list videos")
		writeInternal(w)
		return
	}
	out := make([]VideoResponse, 0, len(videos))
	for _, v := range videos {
		out = append(out, s.toResponse(v))
	}
	writeJSON(w, http.StatusOK, out)
}

var (
	videoExts     = map[string]bool{".mp4": true, ".m4v": true, ".mov": true, ".mkv": true, ".webm": true, ".avi": true}
	thumbnailExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}
)

// handleUpload stores a multipart upload under videos/ and creates the
// catalog entry, which schedules encoding.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	logger := xglog.FromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "upload too large"})
			return
		}
		writeBadRequest(w, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	in := catalog.NewVideo{
		Title:       strings.TrimSpace(r.FormValue("title")),
		Description: r.FormValue("description"),
		Category:    strings.TrimSpace(r.FormValue("category")),
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeBadRequest(w, "file is required")
		return
	}
	defer func() { _ = file.Close() }()
	videoRel, err := uniqueName("videos", header.Filename, videoExts)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	in.VideoFile = videoRel
	if err := in.Validate(); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var written []string
	cleanup := func() {
		for _, p := range written {
			_, _ = fs.RemoveFile(p)
		}
	}

	videoPath, err := s.storeUpload(file, videoRel)
	if err != nil {
		logger.Error().Err(err).Str(xglog.FieldEvent, "upload.store_failed").Msg("failed to store upload")
		writeInternal(w)
		return
	}
	written = append(written, videoPath)

	if thumb, th, err := r.FormFile("thumbnail"); err == nil {
		defer func() { _ = thumb.Close() }()
		thumbRel, err := uniqueName("thumbnails", th.Filename, thumbnailExts)
		if err != nil {
			cleanup()
			writeBadRequest(w, err.Error())
			return
		}
		thumbPath, err := s.storeUpload(thumb, thumbRel)
		if err != nil {
			cleanup()
			logger.Error().Err(err).Str(xglog.FieldEvent, "upload.store_failed").Msg("failed to store thumbnail")
			writeInternal(w)
			return
		}
		written = append(written, thumbPath)
		in.Thumbnail = thumbRel
	}

	v, err := s.catalog.Create(r.Context(), in)
	switch {
	case errors.Is(err, catalog.ErrEnqueue):
		// stored, but not scheduled; the client may retry by re-uploading
		logger.Error().Err(err).Int64(xglog.FieldVideoID, v.ID).Msg("video stored without scheduled encoding")
		s.audit.VideoCreated(r, v.ID, v.Title, false)
		writeServiceUnavailable(w, "video stored but encoding could not be scheduled")
		return
	case errors.Is(err, catalog.ErrInvalid):
		cleanup()
		writeBadRequest(w, err.Error())
		return
	case err != nil:
		cleanup()
		logger.Error().Err(err).Str(xglog.FieldEvent, "catalog.create_failed").Msg("create video")
		writeInternal(w)
		return
	}

	logger.Info().Str(xglog.FieldEvent, "upload.created").Int64(xglog.FieldVideoID, v.ID).Msg("video uploaded")
	s.audit.VideoCreated(r, v.ID, v.Title, true)
	writeJSON(w, http.StatusCreated, s.toResponse(v))
}

func (s *Server) storeUpload(src multipart.File, rel string) (string, error) {
	dst, err := fs.ConfineRelPath(s.catalog.MediaRoot(), filepath.FromSlash(rel))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	pending, err := renameio.NewPendingFile(dst, renameio.WithPermissions(0o644))
	if err != nil {
		return "", fmt.Errorf("create pending file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()
	if _, err := io.Copy(pending, src); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return "", fmt.Errorf("commit upload: %w", err)
	}
	return dst, nil
}

// uniqueName builds dir/<stem>_<8 hex><ext> from a client file name.
func uniqueName(dir, filename string, allowed map[string]bool) (string, error) {
	base := norm.NFKC.String(path.Base(strings.ReplaceAll(filename, "\\", "/")))
	ext := strings.ToLower(filepath.Ext(base))
	if !allowed[ext] {
		return "", fmt.Errorf("unsupported file type %q", ext)
	}
	stem := sanitizeStem(strings.TrimSuffix(base, filepath.Ext(base)))
	if stem == "" {
		stem = "upload"
	}
	return path.Join(dir, stem+"_"+uuid.NewString()[:8]+ext), nil
}

func sanitizeStem(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ', r == '.':
			b.WriteByte('_')
		}
		if b.Len() >= 80 {
			break
		}
	}
	return strings.Trim(b.String(), "_")
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(urlParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeNotFound(w)
		return
	}
	deleted, err := s.catalog.Delete(r.Context(), id)
	if err != nil {
		xglog.FromContext(r.Context()).Error().Err(err).Int64(xglog.FieldVideoID, id).Str(xglog.FieldEvent, "catalog.delete_failed").Msg("delete video")
		writeInternal(w)
		return
	}
	s.audit.VideoDeleted(r, id, deleted)
	if !deleted {
		writeNotFound(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
