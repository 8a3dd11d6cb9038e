package sync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/pxh52013145/ragvideo/internal/bundle"
	"github.com/pxh52013145/ragvideo/internal/dify"
	"github.com/pxh52013145/ragvideo/internal/identity"
	"github.com/pxh52013145/ragvideo/internal/media"
	"github.com/pxh52013145/ragvideo/internal/objstore"
)

// Copy sides.
const (
	CopyFromLocal  = "local"
	CopyFromRemote = "remote"
)

// Probe attempts when searching for an unused copy identity.
const copyProbeAttempts = 20

// CopyRequest duplicates an item under a fresh identity.
type CopyRequest struct {
	SourceKey         string
	FromSide          string // "local" or "remote"
	IncludeTranscript bool
	IncludeNote       bool
	CreateDifyDocs    bool
	NewCreatedAtMS    int64 // 0 = now
}

// CopyResult reports the copy's new identity and side effects.
type CopyResult struct {
	TaskID         string    `json:"task_id"`
	SourceKey      string    `json:"source_key"`
	SyncID         string    `json:"sync_id"`
	Object         ObjectRef `json:"minio"`
	DifyNote       *DocRef   `json:"dify_note,omitempty"`
	DifyTranscript *DocRef   `json:"dify_transcript,omitempty"`
	DifyError      string    `json:"dify_error,omitempty"`
}

// Copy loads the payloads from the chosen side, generates a fresh
// created_at_ms whose (task directory, object key) pair is unused on both
// sides, uploads the new bundle, writes the local artifacts, and optionally
// creates RAG documents. Copies only ever create documents — they never
// update an existing one.
func (e *Engine) Copy(ctx context.Context, req CopyRequest) (*CopyResult, error) {
	sourceKey := strings.TrimSpace(req.SourceKey)
	if sourceKey == "" {
		return nil, fmt.Errorf("%w: missing source_key", ErrValidation)
	}

	platform, videoID, _, err := identity.ParseSourceKey(sourceKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	fromSide := strings.ToLower(strings.TrimSpace(req.FromSide))
	if fromSide == "" {
		fromSide = CopyFromLocal
	}

	if fromSide != CopyFromLocal && fromSide != CopyFromRemote {
		return nil, fmt.Errorf("%w: invalid from_side %q (expected local|remote)", ErrValidation, req.FromSide)
	}

	if e.objects == nil {
		return nil, fmt.Errorf("sync: copy: %w", objstore.ErrNotConfigured)
	}

	audio, transcript, markdown, request, err := e.loadCopySource(ctx, sourceKey, fromSide)
	if err != nil {
		return nil, err
	}

	if req.IncludeNote && strings.TrimSpace(bundle.NormalizeNote(markdown)) == "" {
		return nil, fmt.Errorf("%w: missing note markdown", ErrValidation)
	}

	if req.IncludeTranscript && (transcript == nil || transcript.Empty()) {
		return nil, fmt.Errorf("%w: missing transcript", ErrValidation)
	}

	createdAtMS := req.NewCreatedAtMS
	if createdAtMS <= 0 {
		createdAtMS = e.now().UnixMilli()
	}

	newSourceKey, newSyncID, createdAtMS, err := e.probeCopyIdentity(ctx, platform, videoID, createdAtMS)
	if err != nil {
		return nil, err
	}

	in := bundle.Input{
		SourceKey: newSourceKey,
		SyncID:    newSyncID,
		Audio:     audio,
		Request:   request,
	}

	if req.IncludeNote {
		in.NoteMarkdown = markdown
	}

	if req.IncludeTranscript {
		in.Transcript = transcript
	}

	data, err := bundle.Build(in)
	if err != nil {
		return nil, err
	}

	uploaded, sha, err := e.uploadBundle(ctx, newSyncID, newSourceKey, data)
	if err != nil {
		return nil, err
	}

	if err := e.writeCopyFiles(newSyncID, newSourceKey, createdAtMS, in); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(audio.Title)

	if _, err := e.local.EnsureSyncMeta(newSyncID, platform, videoID, title, createdAtMS); err != nil {
		return nil, err
	}

	result := &CopyResult{
		TaskID:    newSyncID,
		SourceKey: newSourceKey,
		SyncID:    newSyncID,
		Object: ObjectRef{
			Bucket:       e.bucket,
			ObjectKey:    e.objects.BundleKey(newSyncID),
			BundleSHA256: sha,
			Uploaded:     uploaded,
		},
	}

	if req.CreateDifyDocs && e.rag != nil {
		difyErrors := map[string]string{}
		baseName := identity.DocumentName(title, platform, videoID, createdAtMS)

		if req.IncludeNote {
			text := dify.NoteDocumentText(*audio, platform, "", markdown)

			if ref, createErr := e.createDoc(ctx, e.ragCfg.ResolveNoteDataset(),
				baseName+identity.NoteSuffix, text); createErr != nil {
				difyErrors["note"] = createErr.Error()
			} else {
				result.DifyNote = ref
			}
		}

		if req.IncludeTranscript {
			text := dify.TranscriptDocumentText(*audio, *transcript, platform, "", e.mergeMaxChars, e.mergeMaxSeconds)

			if ref, createErr := e.createDoc(ctx, e.ragCfg.ResolveTranscriptDataset(),
				baseName+identity.TranscriptSuffix, text); createErr != nil {
				difyErrors["transcript"] = createErr.Error()
			} else {
				result.DifyTranscript = ref
			}
		}

		result.DifyError = encodeDifyErrors(difyErrors)
	}

	e.logger.Info("copy complete",
		slog.String("from", sourceKey),
		slog.String("to", newSourceKey),
		slog.String("side", fromSide),
	)

	return result, nil
}

// loadCopySource reads payloads from the local task or the remote bundle.
func (e *Engine) loadCopySource(ctx context.Context, sourceKey, fromSide string) (*media.AudioMeta, *media.Transcript, string, map[string]any, error) {
	if fromSide == CopyFromLocal {
		item, err := e.local.FindBySourceKey(sourceKey)
		if err != nil {
			return nil, nil, "", nil, err
		}

		if item == nil {
			return nil, nil, "", nil, fmt.Errorf("%w: local item for %s", ErrNotFound, sourceKey)
		}

		payloads, err := e.local.ReadPayloads(item)
		if err != nil {
			return nil, nil, "", nil, fmt.Errorf("%w: missing local audio metadata", ErrValidation)
		}

		return payloads.Audio, payloads.Transcript, payloads.Markdown, payloads.Request, nil
	}

	syncID := identity.ComputeSyncID(sourceKey)

	data, err := e.objects.GetBytes(ctx, e.bucket, e.objects.BundleKey(syncID))
	if err != nil {
		return nil, nil, "", nil, err
	}

	b, err := bundle.Parse(data)
	if err != nil {
		return nil, nil, "", nil, fmt.Errorf("%w: %v", ErrIntegrity, err)
	}

	if b.Audio == nil {
		return nil, nil, "", nil, fmt.Errorf("%w: remote bundle has no audio metadata", ErrIntegrity)
	}

	return b.Audio, b.Transcript, b.NoteMarkdown, b.Meta.Request, nil
}

// probeCopyIdentity increments created_at_ms until the derived task
// directory and object key are both unused (copy uniqueness).
func (e *Engine) probeCopyIdentity(ctx context.Context, platform, videoID string, startMS int64) (sourceKey, syncID string, createdAtMS int64, err error) {
	createdAtMS = startMS

	for attempt := 0; attempt < copyProbeAttempts; attempt++ {
		sourceKey = identity.MakeSourceKey(platform, videoID, createdAtMS)
		syncID = identity.ComputeSyncID(sourceKey)

		_, localErr := os.Stat(e.local.TaskDir(syncID))
		existsLocal := localErr == nil

		existsRemote := false
		if info, statErr := e.objects.Stat(ctx, e.bucket, e.objects.BundleKey(syncID)); statErr == nil && info != nil {
			existsRemote = true
		}

		if !existsLocal && !existsRemote {
			return sourceKey, syncID, createdAtMS, nil
		}

		createdAtMS++
	}

	return "", "", 0, fmt.Errorf("sync: failed to generate a unique copy identity after %d attempts", copyProbeAttempts)
}

// writeCopyFiles materializes the copy's local artifacts.
func (e *Engine) writeCopyFiles(taskID, sourceKey string, createdAtMS int64, in bundle.Input) error {
	b := &bundle.Bundle{
		Meta: bundle.Meta{
			SourceKey: sourceKey,
			SyncID:    taskID,
			Request:   in.Request,
		},
		Audio:        in.Audio,
		NoteMarkdown: in.NoteMarkdown,
		Transcript:   in.Transcript,
	}

	// Copies always overwrite: the probe guaranteed a fresh directory.
	_, err := e.writePulledFiles(taskID, sourceKey, taskID, createdAtMS, b, true)

	return err
}

// createDoc is the create-only variant of upsertDoc used by copies.
func (e *Engine) createDoc(ctx context.Context, datasetID, docName, text string) (*DocRef, error) {
	if datasetID == "" {
		return nil, fmt.Errorf("dify: missing dataset id")
	}

	resp, err := e.rag.CreateDocumentByText(ctx, datasetID, docName, text, "")
	if err != nil {
		return nil, err
	}

	return &DocRef{
		DatasetID:  datasetID,
		DocumentID: resp.Document.ID,
		Batch:      resp.Batch,
		Name:       docName,
	}, nil
}
