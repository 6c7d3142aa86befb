package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/opensource-finance/explorer/internal/domain"
)

// DefaultDebounce coalesces bursts of file events into one notification.
const DefaultDebounce = 500 * time.Millisecond

// Watcher publishes domain.TopicArtifactsChanged when files under the
// artifact directories change.
type Watcher struct {
	dirs     []string
	bus      domain.EventBus
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
}

// NewWatcher creates a watcher over the artifact and entity directories.
func NewWatcher(paths domain.ArtifactsConfig, bus domain.EventBus, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		dirs:     []string{filepath.Dir(paths.SummaryFile), paths.EntitiesDir},
		bus:      bus,
		debounce: debounce,
		pending:  make(map[string]struct{}),
	}
}

// Watch starts a background goroutine that reports artifact changes.
// Directories that do not exist are skipped. Call the returned stop
// function to clean up.
func (w *Watcher) Watch(ctx context.Context) (stop func(), err error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("artifact watcher: %w", err)
	}

	watched := 0
	for _, dir := range w.dirs {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			slog.Debug("artifact watcher skipping missing directory", "path", dir)
			continue
		}
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, fmt.Errorf("artifact watcher add %s: %w", dir, err)
		}
		watched++
	}
	slog.Info("artifact watcher started", "directories", watched)

	done := make(chan struct{})
	var once sync.Once
	go func() {
		defer fw.Close()
		for {
			select {
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if relevant(ev) {
					w.schedule(ctx, ev.Name)
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				slog.Warn("artifact watcher error", "error", err)
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()

	return func() {
		once.Do(func() {
			close(done)
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
		})
	}, nil
}

func relevant(ev fsnotify.Event) bool {
	if !strings.EqualFold(filepath.Ext(ev.Name), ".json") {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Reset(w.debounce)
		return
	}
	w.timer = time.AfterFunc(w.debounce, func() { w.flush(ctx) })
}

func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.timer = nil
	w.mu.Unlock()

	if len(paths) == 0 {
		return
	}
	sort.Strings(paths)

	payload, err := json.Marshal(domain.ArtifactsChanged{Paths: paths})
	if err != nil {
		slog.Error("failed to encode artifact change", "error", err)
		return
	}
	if err := w.bus.Publish(ctx, domain.TopicArtifactsChanged, payload); err != nil {
		slog.Warn("failed to publish artifact change", "error", err)
		return
	}
	slog.Info("artifacts changed", "files", len(paths))
}
