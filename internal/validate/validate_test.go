package validate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatorAccumulates(t *testing.T) {
	v := New()
	assert.True(t, v.IsValid())
	assert.NoError(t, v.Err())

	v.Range("workers", 0, 1, 64)
	v.OneOf("queue.driver", "kafka", []string{"memory", "redis"})
	v.NotEmpty("mediaRoot", "  ")
	assert.False(t, v.IsValid())
	require.Len(t, v.Errors(), 3)

	err := v.Err()
	var ve ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Errors(), 3)
	assert.Contains(t, err.Error(), "validation failed for workers")
	assert.Contains(t, err.Error(), "; ")
}

func TestListenAddr(t *testing.T) {
	for _, ok := range []string{":8080", "127.0.0.1:0", "[::1]:9090"} {
		v := New()
		v.ListenAddr("listen", ok)
		assert.True(t, v.IsValid(), ok)
	}
	for _, bad := range []string{"8080", "host:port", ":70000", ""} {
		v := New()
		v.ListenAddr("listen", bad)
		assert.False(t, v.IsValid(), bad)
	}
}

func TestNumericChecks(t *testing.T) {
	v := New()
	v.FloatRange("sample", 1.5, 0, 1)
	v.MinDuration("timeout", 500*time.Millisecond, time.Second)
	v.Positive("width", 0)
	v.NonNegative("db", -1)
	v.Custom("x", 1, func(any) error { return errors.New("nope") })
	assert.Len(t, v.Errors(), 5)

	v = New()
	v.FloatRange("sample", 0.5, 0, 1)
	v.MinDuration("timeout", time.Minute, time.Second)
	v.Positive("width", 480)
	v.NonNegative("db", 0)
	assert.True(t, v.IsValid())
}

func TestDirectory(t *testing.T) {
	root := t.TempDir()

	v := New()
	v.Directory("mediaRoot", filepath.Join(root, "new", "media"), false)
	assert.True(t, v.IsValid())
	assert.DirExists(t, filepath.Join(root, "new", "media"))

	v = New()
	v.Directory("mediaRoot", filepath.Join(root, "missing"), true)
	assert.False(t, v.IsValid())

	file := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	v = New()
	v.Directory("mediaRoot", file, false)
	assert.False(t, v.IsValid())
}

func TestParseLogLevel(t *testing.T) {
	l, err := ParseLogLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, LogLevelWarn, l)
	_, err = ParseLogLevel("verbose")
	assert.ErrorIs(t, err, ErrInvalidLogLevel)
}
