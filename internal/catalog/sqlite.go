// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/videocat/internal/persistence/sqlite"
)

// SQLiteStore provides SQLite persistence for the catalog.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (and migrates) the catalog database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sqlite.Open(ctx, path, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies connectivity and runs a quick integrity check.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return err
	}
	return sqlite.QuickCheck(ctx, s.db)
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	// AUTOINCREMENT: ids are never reused, derived paths stay unique
	schema := `
	CREATE TABLE IF NOT EXISTS videos (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL,
		created_at TEXT NOT NULL,
		video_file TEXT,
		thumbnail TEXT,
		encode_status TEXT NOT NULL DEFAULT 'pending' CHECK(encode_status IN ('pending', 'processing', 'ready', 'failed')),
		encode_error TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const videoColumns = `id, title, description, category, created_at, video_file, thumbnail, encode_status, encode_error, updated_at`

func (s *SQLiteStore) Create(ctx context.Context, in NewVideo, afterCommit func(Video) error) (Video, error) {
	if err := in.Validate(); err != nil {
		return Video{}, err
	}
	now := s.now().UTC()
	v := Video{
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		CreatedAt:   now,
		VideoFile:   in.VideoFile,
		Thumbnail:   in.Thumbnail,
		Status:      StatusPending,
		UpdatedAt:   now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Video{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
	INSERT INTO videos (title, description, category, created_at, video_file, thumbnail, encode_status, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, v.Title, v.Description, v.Category, formatTime(now), nullString(v.VideoFile), nullString(v.Thumbnail), string(v.Status), formatTime(now))
	if err != nil {
		return Video{}, fmt.Errorf("insert video: %w", err)
	}
	if v.ID, err = res.LastInsertId(); err != nil {
		return Video{}, fmt.Errorf("insert video: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Video{}, fmt.Errorf("commit: %w", err)
	}

	if afterCommit != nil {
		if err := afterCommit(v); err != nil {
			return v, err
		}
	}
	return v, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id int64) (Video, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = ?`, id)
	v, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Video{}, ErrNotFound
	}
	return v, err
}

func (s *SQLiteStore) List(ctx context.Context) ([]Video, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+videoColumns+` FROM videos ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	videos := []Video{}
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, id int64) (Video, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Video{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	v, err := scanVideo(tx.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Video{}, ErrNotFound
	}
	if err != nil {
		return Video{}, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM videos WHERE id = ?`, id); err != nil {
		return Video{}, fmt.Errorf("delete video: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Video{}, fmt.Errorf("commit: %w", err)
	}
	return v, nil
}

func (s *SQLiteStore) SetThumbnail(ctx context.Context, id int64, relPath string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE videos SET thumbnail = ?, updated_at = ? WHERE id = ?`,
		nullString(relPath), formatTime(s.now().UTC()), id)
	return affectedOne(res, err)
}

func (s *SQLiteStore) SetStatus(ctx context.Context, id int64, status EncodeStatus, lastErr string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: status %q", ErrInvalid, status)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE videos SET encode_status = ?, encode_error = ?, updated_at = ? WHERE id = ?`,
		string(status), lastErr, formatTime(s.now().UTC()), id)
	return affectedOne(res, err)
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (Video, error) {
	var (
		v                    Video
		createdAt, updatedAt string
		videoFile, thumbnail sql.NullString
		status               string
	)
	if err := row.Scan(&v.ID, &v.Title, &v.Description, &v.Category, &createdAt,
		&videoFile, &thumbnail, &status, &v.LastError, &updatedAt); err != nil {
		return Video{}, err
	}
	v.VideoFile = videoFile.String
	v.Thumbnail = thumbnail.String
	v.Status = EncodeStatus(status)
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		v.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		v.UpdatedAt = t
	}
	return v, nil
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
