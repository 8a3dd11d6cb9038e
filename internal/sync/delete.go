package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pxh52013145/ragvideo/internal/identity"
	"github.com/pxh52013145/ragvideo/internal/objstore"
)

// DeleteRemoteRequest logically deletes an item's remote side.
type DeleteRemoteRequest struct {
	SourceKey            string
	DeleteDify           bool
	NoteDocumentID       string
	TranscriptDocumentID string
}

// Tombstone is the deletion marker written under the tombstone prefix. Its
// existence suppresses accidental resurrection on pull.
type Tombstone struct {
	Version     int    `json:"version"`
	SourceKey   string `json:"source_key"`
	SyncID      string `json:"sync_id"`
	DeletedAtMS int64  `json:"deleted_at_ms"`
	Profile     string `json:"profile"`
}

// DeleteRemoteResult reports the tombstone write and any RAG deletions.
type DeleteRemoteResult struct {
	SourceKey      string  `json:"source_key"`
	SyncID         string  `json:"sync_id"`
	Bucket         string  `json:"bucket"`
	TombstoneKey   string  `json:"tombstone_key"`
	DifyNote       *DocRef `json:"dify_note,omitempty"`
	DifyTranscript *DocRef `json:"dify_transcript,omitempty"`
	DifyError      string  `json:"dify_error,omitempty"`
}

// DeleteRemote writes the tombstone (the commit point) and then deletes the
// given RAG documents. RAG failures surface in DifyError but never undo the
// tombstone — a later scan reconciles the leftover documents.
func (e *Engine) DeleteRemote(ctx context.Context, req DeleteRemoteRequest) (*DeleteRemoteResult, error) {
	sourceKey := strings.TrimSpace(req.SourceKey)
	if sourceKey == "" {
		return nil, fmt.Errorf("%w: missing source_key", ErrValidation)
	}

	if e.objects == nil {
		return nil, fmt.Errorf("sync: delete_remote: %w", objstore.ErrNotConfigured)
	}

	syncID := identity.ComputeSyncID(sourceKey)

	if err := e.objects.EnsureBucket(ctx, e.bucket); err != nil {
		return nil, err
	}

	tombstone := Tombstone{
		Version:     1,
		SourceKey:   sourceKey,
		SyncID:      syncID,
		DeletedAtMS: e.now().UnixMilli(),
		Profile:     e.profile,
	}

	data, err := json.MarshalIndent(tombstone, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("sync: encoding tombstone: %w", err)
	}

	tombKey := e.objects.TombstoneKey(syncID)

	if err := e.objects.PutBytes(ctx, e.bucket, tombKey, data, "application/json", nil); err != nil {
		return nil, err
	}

	result := &DeleteRemoteResult{
		SourceKey:    sourceKey,
		SyncID:       syncID,
		Bucket:       e.bucket,
		TombstoneKey: tombKey,
	}

	if req.DeleteDify && e.rag != nil {
		difyErrors := map[string]string{}

		if docID := strings.TrimSpace(req.NoteDocumentID); docID != "" {
			datasetID := e.ragCfg.ResolveNoteDataset()

			if err := e.rag.DeleteDocument(ctx, datasetID, docID); err != nil {
				difyErrors["note"] = err.Error()
			} else {
				result.DifyNote = &DocRef{DatasetID: datasetID, DocumentID: docID}
			}
		}

		if docID := strings.TrimSpace(req.TranscriptDocumentID); docID != "" {
			datasetID := e.ragCfg.ResolveTranscriptDataset()

			if err := e.rag.DeleteDocument(ctx, datasetID, docID); err != nil {
				difyErrors["transcript"] = err.Error()
			} else {
				result.DifyTranscript = &DocRef{DatasetID: datasetID, DocumentID: docID}
			}
		}

		result.DifyError = encodeDifyErrors(difyErrors)
	}

	e.logger.Info("remote deleted",
		slog.String("source_key", sourceKey),
		slog.String("tombstone_key", tombKey),
	)

	return result, nil
}
