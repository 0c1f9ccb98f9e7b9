package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"voicecaption/utils"
)

// Watcher monitors the inbox for caption manifests
type Watcher interface {
	Start(ctx context.Context) error
	Stop() error
}

// EventHandler processes one manifest file
type EventHandler func(ctx context.Context, filePath string) error

type implWatcher struct {
	inboxDir  string
	handler   EventHandler
	log       zerolog.Logger
	watcher   *fsnotify.Watcher
	semaphore *utils.Semaphore
	settle    time.Duration
	wg        sync.WaitGroup

	mu   sync.Mutex
	seen map[string]bool
}

// New creates a watcher on inboxDir. At most maxConcurrent manifests are handled at once;
// settle is how long a new file is left alone before it is read.
func New(inboxDir string, handler EventHandler, log zerolog.Logger, maxConcurrent int, settle time.Duration) (Watcher, error) {
	if err := os.MkdirAll(inboxDir, 0755); err != nil {
		return nil, fmt.Errorf("create inbox: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(inboxDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("add watch path: %w", err)
	}

	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}

	return &implWatcher{
		inboxDir:  inboxDir,
		handler:   handler,
		log:       log.With().Str("component", "watcher").Logger(),
		watcher:   watcher,
		semaphore: utils.NewSemaphore(maxConcurrent),
		settle:    settle,
		seen:      make(map[string]bool),
	}, nil
}

// Start handles manifests already in the inbox, then new ones until ctx is done
func (w *implWatcher) Start(ctx context.Context) error {
	w.log.Info().Str("inbox", w.inboxDir).Msg("watching for manifests")

	entries, err := os.ReadDir(w.inboxDir)
	if err != nil {
		return fmt.Errorf("read inbox: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && IsManifest(entry.Name()) {
			if err := w.dispatch(ctx, filepath.Join(w.inboxDir, entry.Name()), 0); err != nil {
				return w.drain(err)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return w.drain(ctx.Err())

		case event, ok := <-w.watcher.Events:
			if !ok {
				return w.drain(fmt.Errorf("watcher events channel closed"))
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			if !IsManifest(event.Name) {
				w.log.Debug().Str("file", event.Name).Msg("ignoring non-manifest file")
				continue
			}
			if err := w.dispatch(ctx, event.Name, w.settle); err != nil {
				return w.drain(err)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return w.drain(fmt.Errorf("watcher errors channel closed"))
			}
			w.log.Error().Err(err).Msg("watcher error")
		}
	}
}

// dispatch runs the handler for path once, blocking while all slots are busy
func (w *implWatcher) dispatch(ctx context.Context, path string, settle time.Duration) error {
	w.mu.Lock()
	if w.seen[path] {
		w.mu.Unlock()
		return nil
	}
	w.seen[path] = true
	w.mu.Unlock()

	if err := w.semaphore.Acquire(ctx); err != nil {
		return err
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.semaphore.Release()

		if settle > 0 {
			select {
			case <-time.After(settle):
			case <-ctx.Done():
				return
			}
		}
		w.log.Info().Str("manifest", path).Msg("manifest detected")
		if err := w.handler(ctx, path); err != nil {
			w.log.Error().Err(err).Str("manifest", path).Msg("manifest failed")
		}
	}()
	return nil
}

func (w *implWatcher) drain(err error) error {
	w.log.Info().Msg("waiting for running jobs")
	w.wg.Wait()
	return err
}

// Stop closes the file watcher
func (w *implWatcher) Stop() error {
	return w.watcher.Close()
}

// IsManifest reports whether name is a manifest the watcher should pick up
func IsManifest(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, resultSuffix) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	return ext == ".yaml" || ext == ".yml"
}
