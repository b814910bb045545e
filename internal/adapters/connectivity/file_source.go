package connectivity

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
)

// FileSource reads connectivity from a flag file containing "online" or
// "offline". A missing file means online. The file's directory is watched
// so edits trigger an immediate probe.
type FileSource struct {
	path     string
	debounce time.Duration

	fsWatcher *fsnotify.Watcher
	changes   chan struct{}

	// Debouncing state
	pendingAt time.Time
	pendingMu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewFileSource creates a source for the flag file at path. A zero debounce
// uses 100ms.
func NewFileSource(path string, debounce time.Duration) *FileSource {
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}
	return &FileSource{
		path:     path,
		debounce: debounce,
		changes:  make(chan struct{}, 1),
	}
}

// Init starts watching the flag file's directory.
func (f *FileSource) Init(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fsWatcher != nil {
		return nil
	}

	dir := filepath.Dir(f.path)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("flag file directory: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	f.fsWatcher = w

	wctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel

	f.wg.Add(2)
	go f.processEvents(wctx)
	go f.debounceProcessor(wctx)

	return nil
}

// Probe reads the flag file.
func (f *FileSource) Probe(context.Context) (offline.ConnectivityState, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return offline.Online, nil
	}
	if err != nil {
		return offline.Offline, fmt.Errorf("read flag file: %w", err)
	}

	content := strings.ToLower(strings.TrimSpace(string(data)))
	if content == "" {
		return offline.Online, nil
	}
	return ParseState(content)
}

// Changes implements Notifier.
func (f *FileSource) Changes() <-chan struct{} {
	return f.changes
}

// Close stops watching.
func (f *FileSource) Close() error {
	f.mu.Lock()
	if f.closed || f.fsWatcher == nil {
		f.closed = true
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	f.cancel()
	err := f.fsWatcher.Close()
	f.wg.Wait()
	return err
}

// processEvents reads from fsnotify and marks a pending change for the flag file.
func (f *FileSource) processEvents(ctx context.Context) {
	defer f.wg.Done()

	name := filepath.Clean(f.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-f.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != name {
				continue
			}

			f.pendingMu.Lock()
			f.pendingAt = time.Now()
			f.pendingMu.Unlock()

		case _, ok := <-f.fsWatcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// debounceProcessor signals a change once edits have settled.
func (f *FileSource) debounceProcessor(ctx context.Context) {
	defer f.wg.Done()

	ticker := time.NewTicker(f.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			f.pendingMu.Lock()
			ready := !f.pendingAt.IsZero() && time.Since(f.pendingAt) >= f.debounce
			if ready {
				f.pendingAt = time.Time{}
			}
			f.pendingMu.Unlock()

			if ready {
				select {
				case f.changes <- struct{}{}:
				default:
				}
			}
		}
	}
}
