// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package catalog stores video entries and runs the lifecycle hooks that
// schedule pipeline work on create and reclaim disk space on delete.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	ErrNotFound = errors.New("video not found")
	ErrInvalid  = errors.New("invalid video")
	// ErrEnqueue marks a committed video whose pipeline jobs could not be
	// queued. The caller may retry scheduling; the row itself is stored.
	ErrEnqueue = errors.New("enqueue pipeline jobs")
)

// EncodeStatus tracks the rendition pipeline of one video.
type EncodeStatus string

const (
	StatusPending    EncodeStatus = "pending"
	StatusProcessing EncodeStatus = "processing"
	StatusReady      EncodeStatus = "ready"
	StatusFailed     EncodeStatus = "failed"
)

func (s EncodeStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusReady, StatusFailed:
		return true
	}
	return false
}

const (
	maxTitleLen    = 200
	maxCategoryLen = 50
)

// Video is a catalog entry. VideoFile and Thumbnail are slash separated
// paths relative to the media root; empty means unset.
type Video struct {
	ID          int64
	Title       string
	Description string
	Category    string
	CreatedAt   time.Time
	VideoFile   string
	Thumbnail   string
	Status      EncodeStatus
	LastError   string
	UpdatedAt   time.Time
}

// NewVideo holds the fields supplied at creation.
type NewVideo struct {
	Title       string
	Description string
	Category    string
	VideoFile   string
	Thumbnail   string
}

// Validate checks field limits and path shape.
func (n NewVideo) Validate() error {
	title := strings.TrimSpace(n.Title)
	switch {
	case title == "":
		return fmt.Errorf("%w: title is required", ErrInvalid)
	case utf8.RuneCountInString(n.Title) > maxTitleLen:
		return fmt.Errorf("%w: title longer than %d characters", ErrInvalid, maxTitleLen)
	case strings.TrimSpace(n.Category) == "":
		return fmt.Errorf("%w: category is required", ErrInvalid)
	case utf8.RuneCountInString(n.Category) > maxCategoryLen:
		return fmt.Errorf("%w: category longer than %d characters", ErrInvalid, maxCategoryLen)
	}
	for _, p := range []string{n.VideoFile, n.Thumbnail} {
		if strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
			return fmt.Errorf("%w: path %q must be relative to the media root", ErrInvalid, p)
		}
	}
	return nil
}

// DefaultThumbnailRel is where generated thumbnails are written.
func DefaultThumbnailRel(id int64) string {
	return fmt.Sprintf("thumbnails/%d.jpg", id)
}

// Store persists videos.
type Store interface {
	// Create inserts a video in a transaction. afterCommit runs only once the
	// transaction is committed; its error is returned with the stored video.
	Create(ctx context.Context, in NewVideo, afterCommit func(Video) error) (Video, error)
	Get(ctx context.Context, id int64) (Video, error)
	List(ctx context.Context) ([]Video, error)
	// Delete removes the row and returns it as it was.
	Delete(ctx context.Context, id int64) (Video, error)
	SetThumbnail(ctx context.Context, id int64, relPath string) error
	SetStatus(ctx context.Context, id int64, status EncodeStatus, lastErr string) error
	Ping(ctx context.Context) error
	Close() error
}
