package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is how long the watcher waits for a burst of file events
// to settle before reloading.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reloads manifests when their files change.
type Watcher struct {
	loader   *Loader
	paths    []string
	debounce time.Duration
	logger   zerolog.Logger
}

// NewWatcher creates a watcher for the given manifest paths.
func NewWatcher(loader *Loader, paths []string, logger zerolog.Logger) *Watcher {
	return &Watcher{
		loader:   loader,
		paths:    paths,
		debounce: DefaultDebounce,
		logger:   logger.With().Str("component", "manifest-watcher").Logger(),
	}
}

// SetDebounce changes the debounce delay.
func (w *Watcher) SetDebounce(d time.Duration) { w.debounce = d }

// Watch calls onChange with every manifest that loads successfully after a
// change, until ctx is done. Manifests that fail to load are logged and
// skipped. Watch blocks; it returns nil when ctx is canceled.
func (w *Watcher) Watch(ctx context.Context, onChange func(*Manifest)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	for _, path := range w.paths {
		if err := addPath(watcher, path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
	}

	w.logger.Info().Strs("paths", w.paths).Msg("Watching manifests")

	reload := make(chan struct{}, 1)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 || !isManifestFile(event.Name) {
				continue
			}
			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Manifest changed")

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			m, err := w.loader.Load(w.paths...)
			if err != nil {
				w.logger.Error().Err(err).Msg("Failed to reload manifest")
				continue
			}
			w.logger.Info().Str("manifest", m.Name).Msg("Manifest reloaded")
			onChange(m)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// addPath watches the directory holding a file, or every directory of a tree.
func addPath(watcher *fsnotify.Watcher, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return watcher.Add(filepath.Dir(path))
	}
	return filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(p)
		}
		return nil
	})
}
