package store

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// DeleteTask removes the task directory and any legacy flat siblings.
// Read-only files get a mode fix-up and a retry. Fails when residual paths
// remain afterwards, so callers never mistake a partial delete for success.
func (s *Store) DeleteTask(taskID string) error {
	tid := strings.TrimSpace(taskID)
	if tid == "" {
		return ErrNoTaskID
	}

	taskDir := filepath.Join(s.root, tid)

	if err := removeAllWithModeFix(taskDir); err != nil {
		return fmt.Errorf("store: deleting task %s: %w", tid, err)
	}

	// Legacy flat layout siblings at the root.
	legacy := filesFor(s.root, tid)
	for _, path := range []string{
		legacy.result, legacy.status, legacy.syncMeta,
		legacy.markdown, legacy.transcript, legacy.audio,
	} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("store: deleting legacy file %s: %w", filepath.Base(path), err)
		}
	}

	var residual []string

	if _, err := os.Stat(taskDir); err == nil {
		residual = append(residual, taskDir)
	}

	for _, path := range []string{legacy.result, legacy.status, legacy.markdown} {
		if fileExists(path) {
			residual = append(residual, path)
		}
	}

	if len(residual) > 0 {
		return fmt.Errorf("store: task %s not fully deleted, residual: %s", tid, strings.Join(residual, ", "))
	}

	s.logger.Info("task deleted", slog.String("task_id", tid))

	return nil
}

// removeAllWithModeFix removes a tree, retrying after chmod when read-only
// entries block the first pass (common for artifacts copied off read-only
// media on Windows).
func removeAllWithModeFix(dir string) error {
	err := os.RemoveAll(dir)
	if err == nil {
		return nil
	}

	// Fix modes bottom-up, then retry once.
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil //nolint:nilerr // best-effort fix-up pass
		}

		if d.IsDir() {
			_ = os.Chmod(path, dirPerm)
		} else {
			_ = os.Chmod(path, filePerm)
		}

		return nil
	})

	return os.RemoveAll(dir)
}
