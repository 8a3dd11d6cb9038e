// Package sync implements the library synchronization core: the three-way
// reconciler joining local tasks, object-store bundles, and RAG documents
// into a classified item list, the cached per-profile snapshot, and the four
// sync verbs (push, pull, copy, delete-remote).
package sync

import (
	"context"
	"errors"

	"github.com/pxh52013145/ragvideo/internal/dify"
	"github.com/pxh52013145/ragvideo/internal/objstore"
)

// Status classifies one source key across the three sides. Values are
// persisted in the snapshot table and returned verbatim over the API.
type Status string

// Classification results, mutually exclusive.
const (
	StatusSynced           Status = "SYNCED"
	StatusLocalOnly        Status = "LOCAL_ONLY"
	StatusDifyOnly         Status = "DIFY_ONLY"
	StatusDifyOnlyNoBundle Status = "DIFY_ONLY_NO_BUNDLE"
	StatusDifyOnlyLegacy   Status = "DIFY_ONLY_LEGACY"
	StatusPartial          Status = "PARTIAL"
	StatusConflict         Status = "CONFLICT"
	StatusDeleted          Status = "DELETED"
)

// Sentinel errors shared by the sync verbs. The HTTP surface maps these to
// response codes.
var (
	ErrValidation  = errors.New("sync: validation failed")
	ErrNotFound    = errors.New("sync: not found")
	ErrTombstoned  = errors.New("sync: remote item is deleted (tombstone)")
	ErrLocalExists = errors.New("sync: local item already exists")
	ErrIntegrity   = errors.New("sync: bundle integrity check failed")
)

// Item is one classified row of the reconciled library, keyed by
// (profile, source_key).
type Item struct {
	Status      Status `json:"status"`
	Title       string `json:"title"`
	Platform    string `json:"platform"`
	VideoID     string `json:"video_id"`
	CreatedAtMS int64  `json:"created_at_ms,omitempty"`
	SourceKey   string `json:"source_key,omitempty"`
	SyncID      string `json:"sync_id,omitempty"`

	// Local side.
	LocalTaskID        string `json:"local_task_id,omitempty"`
	LocalHasNote       bool   `json:"local_has_note"`
	LocalHasTranscript bool   `json:"local_has_transcript"`

	// Remote RAG side.
	DifyNoteDocumentID       string `json:"dify_note_document_id,omitempty"`
	DifyNoteName             string `json:"dify_note_name,omitempty"`
	DifyTranscriptDocumentID string `json:"dify_transcript_document_id,omitempty"`
	DifyTranscriptName       string `json:"dify_transcript_name,omitempty"`
	RemoteHasNote            bool   `json:"remote_has_note"`
	RemoteHasTranscript      bool   `json:"remote_has_transcript"`

	// Object-store hints. Tri-state: nil when the store was unreachable, so
	// "known absent" stays distinguishable from "unknown".
	BundleExists    *bool `json:"minio_bundle_exists,omitempty"`
	TombstoneExists *bool `json:"minio_tombstone_exists,omitempty"`

	// Hashes for conflict detection.
	BundleSHA256Local      string `json:"bundle_sha256_local,omitempty"`
	BundleSHA256Remote     string `json:"bundle_sha256_remote,omitempty"`
	NoteSHA256Local        string `json:"note_sha256_local,omitempty"`
	NoteSHA256Remote       string `json:"note_sha256_remote,omitempty"`
	TranscriptSHA256Local  string `json:"transcript_sha256_local,omitempty"`
	TranscriptSHA256Remote string `json:"transcript_sha256_remote,omitempty"`
}

// ObjectStore is the object-store capability set the engine depends on.
// *objstore.Client satisfies it; tests substitute fakes.
type ObjectStore interface {
	BucketName(profileName string) string
	BundleKey(syncID string) string
	TombstoneKey(syncID string) string
	EnsureBucket(ctx context.Context, bucket string) error
	PutBytes(ctx context.Context, bucket, key string, data []byte, contentType string, metadata map[string]string) error
	GetBytes(ctx context.Context, bucket, key string) ([]byte, error)
	Stat(ctx context.Context, bucket, key string) (*objstore.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucket, key string) error
}

// RagClient is the knowledge-dataset capability set the engine depends on.
// *dify.Knowledge satisfies it.
type RagClient interface {
	ListAllDocuments(ctx context.Context, datasetID string) ([]dify.Document, error)
	FindDocumentByName(ctx context.Context, datasetID, name string) (*dify.Document, error)
	CreateDocumentByText(ctx context.Context, datasetID, name, text, docLanguage string) (*dify.DocumentResponse, error)
	UpdateDocumentByText(ctx context.Context, datasetID, documentID, name, text, docLanguage string) (*dify.DocumentResponse, error)
	DeleteDocument(ctx context.Context, datasetID, documentID string) error
}

// Object metadata keys attached to bundle uploads.
const (
	metaBundleSHA256     = "bundle-sha256"
	metaSyncID           = "sync-id"
	metaSourceKey        = "source-key"
	metaNoteSHA256       = "note-sha256"
	metaTranscriptSHA256 = "transcript-sha256"
)

func boolPtr(v bool) *bool { return &v }
