package catalog

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/minios-linux/lokat/jsonfile"
)

// Watch calls onChange for every change to a language file in the resolved
// translations directory until ctx is cancelled. Callers rebuild the catalog
// with Load; events are not debounced.
func (s *Store) Watch(ctx context.Context, onChange func(fsnotify.Event)) error {
	dir, ok := s.ResolveDirectory()
	if !ok {
		return fmt.Errorf("translations directory %q not found", s.describeDir())
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	s.logger().Debug("watching translations directory", zap.String("dir", dir))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isLanguageEvent(ev) {
				continue
			}
			onChange(ev)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger().Warn("watcher error", zap.Error(err))
		}
	}
}

func isLanguageEvent(ev fsnotify.Event) bool {
	if _, ok := jsonfile.LangCode(filepath.Base(ev.Name)); !ok {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) ||
		ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}
