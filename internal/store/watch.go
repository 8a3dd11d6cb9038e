package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Generation returns a counter that increments whenever the watcher observes
// a filesystem change under the store root. The cached-items read path does
// not consult it; it rescans the store on every call.
func (s *Store) Generation() int64 {
	return s.generation.Load()
}

// Watch observes the store root (and task subdirectories as they appear)
// until ctx is canceled. It only bumps the generation counter — scanning
// stays pull-based so the watcher can never wedge a request.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("store: creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.root); err != nil {
		return fmt.Errorf("store: watching %s: %w", s.root, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			s.generation.Add(1)

			// New task directories need their own watch for nested writes.
			if event.Op.Has(fsnotify.Create) {
				if err := watcher.Add(event.Name); err != nil {
					s.logger.Debug("watch add failed",
						slog.String("path", event.Name),
						slog.String("error", err.Error()),
					)
				}
			}

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			s.logger.Warn("watcher error", slog.String("error", watchErr.Error()))
		}
	}
}
