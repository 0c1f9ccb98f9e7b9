package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handledSet struct {
	mu    sync.Mutex
	paths []string
	ch    chan string
}

func (h *handledSet) handle(ctx context.Context, path string) error {
	h.mu.Lock()
	h.paths = append(h.paths, path)
	h.mu.Unlock()
	h.ch <- path
	return nil
}

func waitFor(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for manifest")
		return ""
	}
}

func TestWatcherHandlesExistingAndNewManifests(t *testing.T) {
	inbox := t.TempDir()
	existing := filepath.Join(inbox, "first.yaml")
	require.NoError(t, os.WriteFile(existing, []byte("video: a.mp4\n"), 0644))

	handled := &handledSet{ch: make(chan string, 8)}
	w, err := New(inbox, handled.handle, zerolog.Nop(), 2, 10*time.Millisecond)
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	assert.Equal(t, existing, waitFor(t, handled.ch))

	require.NoError(t, os.WriteFile(filepath.Join(inbox, "clip.mp4"), []byte("x"), 0644))
	second := filepath.Join(inbox, "second.yml")
	require.NoError(t, os.WriteFile(second, []byte("video: a.mp4\n"), 0644))

	assert.Equal(t, second, waitFor(t, handled.ch))

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}

	handled.mu.Lock()
	defer handled.mu.Unlock()
	assert.ElementsMatch(t, []string{existing, second}, handled.paths)
}

func TestNewCreatesInbox(t *testing.T) {
	inbox := filepath.Join(t.TempDir(), "nested", "inbox")

	w, err := New(inbox, func(context.Context, string) error { return nil }, zerolog.Nop(), 0, 0)
	require.NoError(t, err)
	defer w.Stop()

	info, err := os.Stat(inbox)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
