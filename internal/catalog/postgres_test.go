package catalog

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real server when VIDEOCAT_TEST_POSTGRES_DSN is set.
func TestPostgresStoreCRUD(t *testing.T) {
	dsn := os.Getenv("VIDEOCAT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VIDEOCAT_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	committed := false
	v, err := s.Create(ctx, NewVideo{Title: "PG", Category: "c", VideoFile: "videos/pg.mp4"}, func(v Video) error {
		got, err := s.Get(ctx, v.ID)
		committed = err == nil && got.ID == v.ID
		return nil
	})
	require.NoError(t, err)
	assert.True(t, committed)
	t.Cleanup(func() { _, _ = s.Delete(context.Background(), v.ID) })

	require.NoError(t, s.SetStatus(ctx, v.ID, StatusReady, ""))
	require.NoError(t, s.SetThumbnail(ctx, v.ID, "thumbnails/pg.jpg"))

	got, err := s.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, got.Status)
	assert.Equal(t, "thumbnails/pg.jpg", got.Thumbnail)

	deleted, err := s.Delete(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.ID, deleted.ID)
	_, err = s.Delete(ctx, v.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, s.Ping(ctx))
}

func TestOpenPostgresRequiresDSN(t *testing.T) {
	_, err := OpenPostgres(context.Background(), "")
	assert.Error(t, err)
}
