package sync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pxh52013145/ragvideo/internal/bundle"
	"github.com/pxh52013145/ragvideo/internal/identity"
	"github.com/pxh52013145/ragvideo/internal/objstore"
	"github.com/pxh52013145/ragvideo/internal/store"
)

// PullRequest materializes a remote bundle locally.
type PullRequest struct {
	SourceKey string
	Overwrite bool
}

// PullResult reports the task the bundle landed in.
type PullResult struct {
	TaskID    string    `json:"task_id"`
	SourceKey string    `json:"source_key"`
	SyncID    string    `json:"sync_id"`
	Object    ObjectRef `json:"minio"`
}

// Pull downloads the bundle, verifies its integrity, and writes the task
// files. A tombstone blocks the pull (ErrTombstoned → 410); without
// Overwrite, existing non-empty files are left untouched and a pull that
// wrote nothing fails with ErrLocalExists (409).
func (e *Engine) Pull(ctx context.Context, req PullRequest) (*PullResult, error) {
	sourceKey := strings.TrimSpace(req.SourceKey)
	if sourceKey == "" {
		return nil, fmt.Errorf("%w: missing source_key", ErrValidation)
	}

	if e.objects == nil {
		return nil, fmt.Errorf("sync: pull: %w", objstore.ErrNotConfigured)
	}

	syncID := identity.ComputeSyncID(sourceKey)

	if info, err := e.objects.Stat(ctx, e.bucket, e.objects.TombstoneKey(syncID)); err == nil && info != nil {
		return nil, ErrTombstoned
	}

	objectKey := e.objects.BundleKey(syncID)

	var remoteSHA string
	if info, err := e.objects.Stat(ctx, e.bucket, objectKey); err == nil && info != nil {
		remoteSHA = info.Metadata[metaBundleSHA256]
	}

	data, err := e.objects.GetBytes(ctx, e.bucket, objectKey)
	if err != nil {
		return nil, err
	}

	if remoteSHA != "" && bundle.SHA256Hex(data) != remoteSHA {
		return nil, fmt.Errorf("%w: downloaded bundle sha256 mismatch", ErrIntegrity)
	}

	b, err := bundle.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIntegrity, err)
	}

	if b.Meta.SyncID != "" && b.Meta.SyncID != syncID {
		return nil, fmt.Errorf("%w: bundle sync_id mismatch", ErrIntegrity)
	}

	if b.Meta.SourceKey != "" && b.Meta.SourceKey != sourceKey {
		return nil, fmt.Errorf("%w: bundle source_key mismatch", ErrIntegrity)
	}

	platform, videoID, createdAtMS, err := identity.ParseSourceKey(sourceKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	// Backfill identity into audio meta pulled from older bundles.
	if b.Audio != nil {
		if strings.TrimSpace(b.Audio.Platform) == "" {
			b.Audio.Platform = platform
		}

		if strings.TrimSpace(b.Audio.VideoID) == "" {
			b.Audio.VideoID = videoID
		}
	}

	// Reuse the local task already carrying this source key so pulls never
	// fork duplicates; otherwise the sync id becomes the task id.
	taskID := syncID

	if existing, findErr := e.local.FindBySourceKey(sourceKey); findErr == nil && existing != nil {
		taskID = existing.TaskID
	}

	wroteAny, err := e.writePulledFiles(taskID, sourceKey, syncID, createdAtMS, b, req.Overwrite)
	if err != nil {
		return nil, err
	}

	title := ""
	if b.Audio != nil {
		title = strings.TrimSpace(b.Audio.Title)
	}

	if _, err := e.local.EnsureSyncMeta(taskID, platform, videoID, title, createdAtMS); err != nil {
		return nil, err
	}

	if !wroteAny && !req.Overwrite {
		return nil, fmt.Errorf("%w: set overwrite=true", ErrLocalExists)
	}

	e.logger.Info("pull complete",
		slog.String("source_key", sourceKey),
		slog.String("task_id", taskID),
		slog.Bool("overwrite", req.Overwrite),
	)

	return &PullResult{
		TaskID:    taskID,
		SourceKey: sourceKey,
		SyncID:    syncID,
		Object: ObjectRef{
			Bucket:       e.bucket,
			ObjectKey:    objectKey,
			BundleSHA256: remoteSHA,
		},
	}, nil
}

// writePulledFiles materializes the bundle entries, honoring overwrite.
func (e *Engine) writePulledFiles(taskID, sourceKey, syncID string, createdAtMS int64, b *bundle.Bundle, overwrite bool) (bool, error) {
	taskDir := e.local.TaskDir(taskID)
	if err := os.MkdirAll(taskDir, 0o755); err != nil {
		return false, fmt.Errorf("sync: creating task dir: %w", err)
	}

	shouldWrite := func(path string) bool {
		if overwrite {
			return true
		}

		info, err := os.Stat(path)

		return err != nil || info.Size() == 0
	}

	wroteAny := false

	noteText := bundle.NormalizeNote(b.NoteMarkdown)
	mdPath := filepath.Join(taskDir, taskID+"_markdown.md")

	if strings.TrimSpace(noteText) != "" && shouldWrite(mdPath) {
		if err := os.WriteFile(mdPath, []byte(noteText), 0o644); err != nil {
			return false, fmt.Errorf("sync: writing markdown: %w", err)
		}

		wroteAny = true
	}

	if b.Transcript != nil && !b.Transcript.Empty() {
		trPath := filepath.Join(taskDir, taskID+"_transcript.json")
		if shouldWrite(trPath) {
			if err := store.WriteJSON(trPath, b.Transcript); err != nil {
				return false, err
			}

			wroteAny = true
		}
	}

	if b.Audio != nil {
		audioPath := filepath.Join(taskDir, taskID+"_audio.json")
		if shouldWrite(audioPath) {
			if err := store.WriteJSON(audioPath, b.Audio); err != nil {
				return false, err
			}

			wroteAny = true
		}
	}

	syncRef := &store.SyncRef{SourceKey: sourceKey, SyncID: syncID, CreatedAtMS: createdAtMS}

	resultPath := filepath.Join(taskDir, taskID+".json")
	if shouldWrite(resultPath) {
		result := store.TaskResult{
			Markdown:   noteText,
			Transcript: b.Transcript,
			AudioMeta:  b.Audio,
			Request:    b.Meta.Request,
			Sync:       syncRef,
		}

		if err := store.WriteJSON(resultPath, result); err != nil {
			return false, err
		}

		wroteAny = true
	}

	statusPath := filepath.Join(taskDir, taskID+".status.json")
	if shouldWrite(statusPath) {
		status := store.TaskStatusFile{
			Status:   "SUCCESS",
			Progress: 100,
			Request:  b.Meta.Request,
			Sync:     syncRef,
		}

		if err := store.WriteJSON(statusPath, status); err != nil {
			return false, err
		}

		wroteAny = true
	}

	return wroteAny, nil
}
