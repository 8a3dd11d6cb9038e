package store

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pxh52013145/ragvideo/internal/identity"
)

// SyncMeta is the sidecar (<task_id>.sync.json) pinning an item's identity.
// Once written, created_at_ms / source_key / sync_id stay stable even when
// the main result and status files are rewritten.
type SyncMeta struct {
	Version     int    `json:"version"`
	TaskID      string `json:"task_id"`
	Title       string `json:"title,omitempty"`
	Platform    string `json:"platform"`
	VideoID     string `json:"video_id"`
	CreatedAtMS int64  `json:"created_at_ms"`
	SourceKey   string `json:"source_key"`
	SyncID      string `json:"sync_id"`
}

// consistent reports whether the sidecar carries a complete identity.
func (m *SyncMeta) consistent() bool {
	return m != nil && m.SourceKey != "" && m.SyncID != "" && m.CreatedAtMS > 0
}

// EnsureSyncMeta pins (created_at_ms, source_key, sync_id) for a task. An
// existing consistent sidecar is returned unchanged unless preferCreatedAtMS
// demands a different identity. Otherwise created_at_ms is chosen as
// preferCreatedAtMS, or the minimum mtime among existing artifacts, with a
// final fallback to the current wall clock.
func (s *Store) EnsureSyncMeta(taskID, platform, videoID, title string, preferCreatedAtMS int64) (*SyncMeta, error) {
	tid := strings.TrimSpace(taskID)
	if tid == "" {
		return nil, ErrNoTaskID
	}

	tf := s.resolve(tid)

	var existing SyncMeta
	if readJSONFile(tf.syncMeta, &existing) && existing.consistent() {
		if preferCreatedAtMS <= 0 {
			return &existing, nil
		}

		expectedKey := identity.MakeSourceKey(platform, videoID, preferCreatedAtMS)
		if existing.CreatedAtMS == preferCreatedAtMS &&
			existing.SourceKey == expectedKey &&
			existing.SyncID == identity.ComputeSyncID(expectedKey) &&
			existing.Platform == platform &&
			existing.VideoID == videoID &&
			existing.Title == title {
			return &existing, nil
		}
	}

	createdAtMS := preferCreatedAtMS
	if createdAtMS <= 0 {
		createdAtMS = s.earliestArtifactMS(tf)
	}

	sourceKey := identity.MakeSourceKey(platform, videoID, createdAtMS)

	meta := &SyncMeta{
		Version:     1,
		TaskID:      tid,
		Title:       title,
		Platform:    platform,
		VideoID:     videoID,
		CreatedAtMS: createdAtMS,
		SourceKey:   sourceKey,
		SyncID:      identity.ComputeSyncID(sourceKey),
	}

	if err := WriteJSON(tf.syncMeta, meta); err != nil {
		return nil, fmt.Errorf("store: writing sync meta for %s: %w", tid, err)
	}

	s.logger.Debug("sync meta pinned",
		slog.String("task_id", tid),
		slog.String("source_key", sourceKey),
	)

	return meta, nil
}

// earliestArtifactMS picks the minimum mtime among status/result/markdown as
// the "created" timestamp, falling back to now.
func (s *Store) earliestArtifactMS(tf taskFiles) int64 {
	var minMS int64

	for _, path := range []string{tf.status, tf.result, tf.markdown} {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		ms := info.ModTime().UnixMilli()
		if minMS == 0 || ms < minMS {
			minMS = ms
		}
	}

	if minMS == 0 {
		minMS = time.Now().UnixMilli()
	}

	return minMS
}

// preferredCreatedAt reads the authoritative created_at_ms persisted inside
// the result/status documents' sync block, which survives mtime churn.
func (s *Store) preferredCreatedAt(tf taskFiles) int64 {
	for _, path := range []string{tf.result, tf.status} {
		var doc struct {
			Sync *SyncRef `json:"sync"`
		}

		if !readJSONFile(path, &doc) || doc.Sync == nil {
			continue
		}

		if doc.Sync.CreatedAtMS > 0 {
			return doc.Sync.CreatedAtMS
		}

		if _, _, ms, err := identity.ParseSourceKey(doc.Sync.SourceKey); err == nil {
			return ms
		}
	}

	return 0
}
