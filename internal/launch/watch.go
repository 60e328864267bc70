package launch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ynput/openpype/internal/logging"
)

// watchDebounce collapses the burst of events editors emit for one save.
const watchDebounce = 100 * time.Millisecond

// Watcher re-runs hook discovery whenever a manifest under the hook paths
// changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	paths    []string
	registry *Registry
	logger   *logging.Logger
	onChange func(DiscoveryResult)
}

// NewWatcher watches paths and their subdirectories. onChange receives the
// fresh discovery result after each burst of manifest changes.
func NewWatcher(paths []string, registry *Registry, logger *logging.Logger, onChange func(DiscoveryResult)) (*Watcher, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:  fw,
		paths:    paths,
		registry: registry,
		logger:   logger,
		onChange: onChange,
	}
	for _, p := range paths {
		w.addRecursive(p)
	}
	return w, nil
}

// addRecursive adds every directory below root; fsnotify is not recursive.
func (w *Watcher) addRecursive(root string) {
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if path != root && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			if err := w.watcher.Add(path); err != nil {
				w.logger.Warn("failed to watch hook path", "path", path, "error", err)
			}
		}
		return nil
	})
}

// Run processes events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	debounce := time.NewTimer(watchDebounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					w.addRecursive(ev.Name)
					continue
				}
			}
			if !IsManifest(ev.Name) {
				continue
			}
			pending = true
			debounce.Reset(watchDebounce)

		case <-debounce.C:
			if !pending {
				continue
			}
			pending = false
			result := Discover(w.paths, w.registry, w.logger)
			w.logger.Info("hook manifests changed",
				"manifests", len(result.Files),
				"errors", len(result.Errors),
			)
			if w.onChange != nil {
				w.onChange(result)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("hook watcher error", "error", err)
		}
	}
}
