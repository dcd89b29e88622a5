package config

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestWatcherAppliesValidEdits(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	root := t.TempDir()
	path := writeConfig(t, "mediaRoot: "+root+"\nlogLevel: info\n")
	initial, err := NewLoader(path, "test").Load()
	require.NoError(t, err)

	var (
		mu      sync.Mutex
		applied []string
	)
	w, err := NewWatcher(path, "test", initial, func(old, next AppConfig) {
		mu.Lock()
		applied = append(applied, old.LogLevel+"->"+next.LogLevel)
		mu.Unlock()
	})
	require.NoError(t, err)
	w.Debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	// the watch is registered asynchronously; keep writing until it is seen
	require.Eventually(t, func() bool {
		if err := os.WriteFile(path, []byte("mediaRoot: "+root+"\nlogLevel: debug\n"), 0o600); err != nil {
			return false
		}
		return w.Current().LogLevel == "debug"
	}, 3*time.Second, 100*time.Millisecond)

	mu.Lock()
	assert.Equal(t, "info->debug", applied[0])
	mu.Unlock()

	// an invalid edit keeps the running configuration
	require.NoError(t, os.WriteFile(path, []byte("mediaRoot: "+root+"\nlogLevel: loud\n"), 0o600))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, "debug", w.Current().LogLevel)
}

func TestWatcherReloadRejectsUnknownKeys(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, "mediaRoot: "+root+"\n")
	initial, err := NewLoader(path, "test").Load()
	require.NoError(t, err)

	called := false
	w, err := NewWatcher(path, "test", initial, func(AppConfig, AppConfig) { called = true })
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("mediaRoot: "+root+"\nbogus: 1\n"), 0o600))
	assert.Error(t, w.Reload())
	assert.False(t, called)
	assert.Equal(t, initial, w.Current())
}

func TestWatcherMissingDirFails(t *testing.T) {
	w, err := NewWatcher("/nonexistent/videocat/config.yaml", "test", Defaults(), nil)
	require.NoError(t, err)
	assert.Error(t, w.Run(context.Background()))
}
