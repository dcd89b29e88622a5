package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists the catalog in Postgres so several API and worker
// replicas can share it.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects using dsn and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS videos (
	id BIGSERIAL PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	video_file TEXT,
	thumbnail TEXT,
	encode_status TEXT NOT NULL DEFAULT 'pending' CHECK (encode_status IN ('pending', 'processing', 'ready', 'failed')),
	encode_error TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL
)`)
	return err
}

const pgVideoColumns = `id, title, description, category, created_at, video_file, thumbnail, encode_status, encode_error, updated_at`

func (s *PostgresStore) Create(ctx context.Context, in NewVideo, afterCommit func(Video) error) (Video, error) {
	if err := in.Validate(); err != nil {
		return Video{}, err
	}
	now := time.Now().UTC()
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

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Video{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
INSERT INTO videos (title, description, category, created_at, video_file, thumbnail, encode_status, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $4)
RETURNING id`,
		v.Title, v.Description, v.Category, now, nullable(v.VideoFile), nullable(v.Thumbnail), string(v.Status),
	).Scan(&v.ID)
	if err != nil {
		return Video{}, fmt.Errorf("insert video: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Video{}, fmt.Errorf("commit: %w", err)
	}

	if afterCommit != nil {
		if err := afterCommit(v); err != nil {
			return v, err
		}
	}
	return v, nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (Video, error) {
	v, err := scanPgVideo(s.pool.QueryRow(ctx, `SELECT `+pgVideoColumns+` FROM videos WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Video{}, ErrNotFound
	}
	return v, err
}

func (s *PostgresStore) List(ctx context.Context) ([]Video, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+pgVideoColumns+` FROM videos ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	videos := []Video{}
	for rows.Next() {
		v, err := scanPgVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, id int64) (Video, error) {
	v, err := scanPgVideo(s.pool.QueryRow(ctx, `DELETE FROM videos WHERE id = $1 RETURNING `+pgVideoColumns, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Video{}, ErrNotFound
	}
	return v, err
}

func (s *PostgresStore) SetThumbnail(ctx context.Context, id int64, relPath string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE videos SET thumbnail = $1, updated_at = now() WHERE id = $2`, nullable(relPath), id)
	return pgAffectedOne(tag, err)
}

func (s *PostgresStore) SetStatus(ctx context.Context, id int64, status EncodeStatus, lastErr string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: status %q", ErrInvalid, status)
	}
	tag, err := s.pool.Exec(ctx, `UPDATE videos SET encode_status = $1, encode_error = $2, updated_at = now() WHERE id = $3`,
		string(status), lastErr, id)
	return pgAffectedOne(tag, err)
}

func pgAffectedOne(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPgVideo(row pgx.Row) (Video, error) {
	var (
		v                    Video
		videoFile, thumbnail *string
		status               string
	)
	if err := row.Scan(&v.ID, &v.Title, &v.Description, &v.Category, &v.CreatedAt,
		&videoFile, &thumbnail, &status, &v.LastError, &v.UpdatedAt); err != nil {
		return Video{}, err
	}
	if videoFile != nil {
		v.VideoFile = *videoFile
	}
	if thumbnail != nil {
		v.Thumbnail = *thumbnail
	}
	v.Status = EncodeStatus(status)
	return v, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
