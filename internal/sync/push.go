package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pxh52013145/ragvideo/internal/bundle"
	"github.com/pxh52013145/ragvideo/internal/dify"
	"github.com/pxh52013145/ragvideo/internal/identity"
	"github.com/pxh52013145/ragvideo/internal/media"
	"github.com/pxh52013145/ragvideo/internal/objstore"
	"github.com/pxh52013145/ragvideo/internal/store"
)

// PushRequest selects which sides of a local item to publish.
type PushRequest struct {
	ItemID            string
	IncludeTranscript bool
	IncludeNote       bool
	UpdateDify        bool
}

// DocRef identifies a RAG document touched by an operation.
type DocRef struct {
	DatasetID  string `json:"dataset_id"`
	DocumentID string `json:"document_id"`
	Batch      string `json:"batch,omitempty"`
	Name       string `json:"name"`
}

// ObjectRef identifies the object-store side of an operation's result.
type ObjectRef struct {
	Bucket       string `json:"bucket"`
	ObjectKey    string `json:"object_key"`
	BundleSHA256 string `json:"bundle_sha256,omitempty"`
	Uploaded     bool   `json:"uploaded"`
}

// PushResult reports a completed push. DifyError carries per-side RAG
// failures as JSON; the object-store commit has already happened when it is
// set.
type PushResult struct {
	SourceKey      string    `json:"source_key"`
	SyncID         string    `json:"sync_id"`
	Object         ObjectRef `json:"minio"`
	DifyNote       *DocRef   `json:"dify_note,omitempty"`
	DifyTranscript *DocRef   `json:"dify_transcript,omitempty"`
	DifyError      string    `json:"dify_error,omitempty"`
}

// Push builds the item's bundle, uploads it idempotently (skipping when the
// remote bundle-sha256 already matches), clears any tombstone (restore
// semantics), and optionally upserts the RAG documents. RAG failures never
// roll back the object-store commit.
func (e *Engine) Push(ctx context.Context, req PushRequest) (*PushResult, error) {
	itemID := strings.TrimSpace(req.ItemID)
	if itemID == "" {
		return nil, fmt.Errorf("%w: missing item_id", ErrValidation)
	}

	item, err := e.local.Load(itemID)
	if err != nil {
		if errors.Is(err, store.ErrNoTaskID) {
			return nil, fmt.Errorf("%w: missing item_id", ErrValidation)
		}

		return nil, fmt.Errorf("%w: local item %s", ErrNotFound, itemID)
	}

	payloads, err := e.local.ReadPayloads(item)
	if err != nil {
		return nil, fmt.Errorf("%w: missing local audio metadata", ErrValidation)
	}

	if req.IncludeNote && strings.TrimSpace(bundle.NormalizeNote(payloads.Markdown)) == "" {
		return nil, fmt.Errorf("%w: missing local note markdown", ErrValidation)
	}

	if req.IncludeTranscript && (payloads.Transcript == nil || payloads.Transcript.Empty()) {
		return nil, fmt.Errorf("%w: missing local transcript", ErrValidation)
	}

	if e.objects == nil {
		return nil, fmt.Errorf("sync: push: %w", objstore.ErrNotConfigured)
	}

	in := bundle.Input{
		SourceKey: item.SourceKey,
		SyncID:    item.SyncID,
		Audio:     payloads.Audio,
		Request:   payloads.Request,
	}

	if req.IncludeNote {
		in.NoteMarkdown = payloads.Markdown
	}

	if req.IncludeTranscript {
		in.Transcript = payloads.Transcript
	}

	data, err := bundle.Build(in)
	if err != nil {
		return nil, err
	}

	uploaded, sha, err := e.uploadBundle(ctx, item.SyncID, item.SourceKey, data)
	if err != nil {
		return nil, err
	}

	result := &PushResult{
		SourceKey: item.SourceKey,
		SyncID:    item.SyncID,
		Object: ObjectRef{
			Bucket:       e.bucket,
			ObjectKey:    e.objects.BundleKey(item.SyncID),
			BundleSHA256: sha,
			Uploaded:     uploaded,
		},
	}

	if !req.UpdateDify {
		return result, nil
	}

	difyErrors := map[string]string{}

	baseName := identity.DocumentName(item.Title, item.Platform, item.VideoID, item.CreatedAtMS)

	if req.IncludeNote {
		ref, upsertErr := e.upsertNoteDoc(ctx, baseName, *payloads.Audio, item.Platform, payloads.Markdown)
		if upsertErr != nil {
			difyErrors["note"] = upsertErr.Error()
		} else {
			result.DifyNote = ref
		}
	}

	if req.IncludeTranscript {
		ref, upsertErr := e.upsertTranscriptDoc(ctx, baseName, *payloads.Audio, item.Platform, *payloads.Transcript)
		if upsertErr != nil {
			difyErrors["transcript"] = upsertErr.Error()
		} else {
			result.DifyTranscript = ref
		}
	}

	result.DifyError = encodeDifyErrors(difyErrors)

	e.logger.Info("push complete",
		slog.String("source_key", item.SourceKey),
		slog.Bool("uploaded", uploaded),
		slog.Bool("dify_errors", len(difyErrors) > 0),
	)

	return result, nil
}

// uploadBundle clears a tombstone, then uploads unless the remote hash
// already matches (push idempotence). Returns whether an upload happened.
func (e *Engine) uploadBundle(ctx context.Context, syncID, sourceKey string, data []byte) (bool, string, error) {
	sha := bundle.SHA256Hex(data)

	if err := e.objects.EnsureBucket(ctx, e.bucket); err != nil {
		return false, "", err
	}

	tombKey := e.objects.TombstoneKey(syncID)
	if info, err := e.objects.Stat(ctx, e.bucket, tombKey); err == nil && info != nil {
		if err := e.objects.RemoveObject(ctx, e.bucket, tombKey); err != nil {
			return false, "", err
		}

		e.logger.Info("tombstone cleared on push", slog.String("sync_id", syncID))
	}

	objectKey := e.objects.BundleKey(syncID)

	if existing, err := e.objects.Stat(ctx, e.bucket, objectKey); err == nil && existing != nil {
		if existing.Metadata[metaBundleSHA256] == sha {
			return false, sha, nil
		}
	}

	parsed, err := bundle.Parse(data)
	if err != nil {
		return false, "", err
	}

	metadata := map[string]string{
		metaBundleSHA256: sha,
		metaSyncID:       syncID,
		metaSourceKey:    sourceKey,
	}

	if h := parsed.Meta.Hashes.NoteMD; h != "" {
		metadata[metaNoteSHA256] = h
	}

	if h := parsed.Meta.Hashes.TranscriptJSON; h != "" {
		metadata[metaTranscriptSHA256] = h
	}

	if err := e.objects.PutBytes(ctx, e.bucket, objectKey, data, "application/zip", metadata); err != nil {
		return false, "", err
	}

	return true, sha, nil
}

// upsertNoteDoc creates or updates the "(note)" document by exact name.
func (e *Engine) upsertNoteDoc(ctx context.Context, baseName string, audio media.AudioMeta, platform, markdown string) (*DocRef, error) {
	datasetID := e.ragCfg.ResolveNoteDataset()

	text := dify.NoteDocumentText(audio, platform, "", markdown)

	return e.upsertDoc(ctx, datasetID, baseName+identity.NoteSuffix, text)
}

// upsertTranscriptDoc creates or updates the "(transcript)" document.
func (e *Engine) upsertTranscriptDoc(ctx context.Context, baseName string, audio media.AudioMeta, platform string, tr media.Transcript) (*DocRef, error) {
	datasetID := e.ragCfg.ResolveTranscriptDataset()

	text := dify.TranscriptDocumentText(audio, tr, platform, "", e.mergeMaxChars, e.mergeMaxSeconds)

	return e.upsertDoc(ctx, datasetID, baseName+identity.TranscriptSuffix, text)
}

// upsertDoc finds-or-creates by exact document name for idempotency.
func (e *Engine) upsertDoc(ctx context.Context, datasetID, docName, text string) (*DocRef, error) {
	if e.rag == nil {
		return nil, dify.ErrMissingCredentials
	}

	if datasetID == "" {
		return nil, dify.ErrMissingDataset
	}

	existing, err := e.rag.FindDocumentByName(ctx, datasetID, docName)
	if err != nil {
		return nil, err
	}

	var resp *dify.DocumentResponse

	if existing != nil && existing.ID != "" {
		resp, err = e.rag.UpdateDocumentByText(ctx, datasetID, existing.ID, docName, text, "")
	} else {
		resp, err = e.rag.CreateDocumentByText(ctx, datasetID, docName, text, "")
	}

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

// encodeDifyErrors renders the per-side error map as the dify_error JSON
// payload ("" when empty).
func encodeDifyErrors(errors map[string]string) string {
	if len(errors) == 0 {
		return ""
	}

	data, err := json.Marshal(errors)
	if err != nil {
		return fmt.Sprintf(`{"encode":"%v"}`, err)
	}

	return string(data)
}
