package sync

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pxh52013145/ragvideo/internal/dify"
	"github.com/pxh52013145/ragvideo/internal/media"
	"github.com/pxh52013145/ragvideo/internal/objstore"
	"github.com/pxh52013145/ragvideo/internal/store"
)

// --- fakeObjects ---

type fakeObject struct {
	data     []byte
	metadata map[string]string
}

// fakeObjects is an in-memory ObjectStore recording put calls.
type fakeObjects struct {
	mu      sync.Mutex
	objects map[string]fakeObject // "bucket/key"
	puts    int
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string]fakeObject{}}
}

func (f *fakeObjects) key(bucket, key string) string { return bucket + "/" + key }

func (f *fakeObjects) BucketName(profile string) string { return "ragvideo-" + profile }
func (f *fakeObjects) BundleKey(syncID string) string   { return "bundles/" + syncID + ".zip" }
func (f *fakeObjects) TombstoneKey(syncID string) string {
	return "tombstones/" + syncID + ".json"
}

func (f *fakeObjects) EnsureBucket(context.Context, string) error { return nil }

func (f *fakeObjects) PutBytes(_ context.Context, bucket, key string, data []byte, _ string, metadata map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.puts++
	f.objects[f.key(bucket, key)] = fakeObject{data: data, metadata: metadata}

	return nil
}

func (f *fakeObjects) GetBytes(_ context.Context, bucket, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	obj, ok := f.objects[f.key(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("objstore: getting %s/%s: not found", bucket, key)
	}

	return obj.data, nil
}

func (f *fakeObjects) Stat(_ context.Context, bucket, key string) (*objstore.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	obj, ok := f.objects[f.key(bucket, key)]
	if !ok {
		return nil, nil
	}

	return &objstore.ObjectInfo{Key: key, Size: int64(len(obj.data)), Metadata: obj.metadata}, nil
}

func (f *fakeObjects) RemoveObject(_ context.Context, bucket, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.objects, f.key(bucket, key))

	return nil
}

func (f *fakeObjects) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.puts
}

func (f *fakeObjects) has(bucket, key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.objects[f.key(bucket, key)]

	return ok
}

// --- fakeRag ---

type fakeDoc struct {
	dify.Document
	text string
}

// fakeRag is an in-memory RagClient with per-dataset documents.
type fakeRag struct {
	mu      sync.Mutex
	docs    map[string][]fakeDoc // dataset → docs
	nextID  int
	creates int
	updates int
	deletes int
	listErr error
}

func newFakeRag() *fakeRag {
	return &fakeRag{docs: map[string][]fakeDoc{}}
}

func (f *fakeRag) seed(datasetID, docID, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.docs[datasetID] = append(f.docs[datasetID], fakeDoc{Document: dify.Document{ID: docID, Name: name}})
}

func (f *fakeRag) ListAllDocuments(_ context.Context, datasetID string) ([]dify.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listErr != nil {
		return nil, f.listErr
	}

	out := make([]dify.Document, 0, len(f.docs[datasetID]))
	for _, d := range f.docs[datasetID] {
		out = append(out, d.Document)
	}

	return out, nil
}

func (f *fakeRag) FindDocumentByName(ctx context.Context, datasetID, name string) (*dify.Document, error) {
	docs, err := f.ListAllDocuments(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	for i := range docs {
		if docs[i].Name == name {
			return &docs[i], nil
		}
	}

	return nil, nil
}

func (f *fakeRag) CreateDocumentByText(_ context.Context, datasetID, name, text, _ string) (*dify.DocumentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.creates++
	f.nextID++

	doc := fakeDoc{Document: dify.Document{ID: fmt.Sprintf("doc-%d", f.nextID), Name: name}, text: text}
	f.docs[datasetID] = append(f.docs[datasetID], doc)

	return &dify.DocumentResponse{Document: doc.Document, Batch: fmt.Sprintf("batch-%d", f.nextID)}, nil
}

func (f *fakeRag) UpdateDocumentByText(_ context.Context, datasetID, documentID, name, text, _ string) (*dify.DocumentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.updates++

	for i, d := range f.docs[datasetID] {
		if d.ID == documentID {
			f.docs[datasetID][i].Name = name
			f.docs[datasetID][i].text = text

			return &dify.DocumentResponse{Document: f.docs[datasetID][i].Document, Batch: "batch-upd"}, nil
		}
	}

	return nil, &dify.RagError{StatusCode: 404, Message: "no such document", Err: dify.ErrNotFound}
}

func (f *fakeRag) DeleteDocument(_ context.Context, datasetID, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deletes++

	docs := f.docs[datasetID]
	for i, d := range docs {
		if d.ID == documentID {
			f.docs[datasetID] = append(docs[:i], docs[i+1:]...)

			return nil
		}
	}

	return &dify.RagError{StatusCode: 404, Message: "no such document", Err: dify.ErrNotFound}
}

// --- engine fixture ---

type fixture struct {
	engine  *Engine
	local   *store.Store
	objects *fakeObjects
	rag     *fakeRag
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	local := store.New(t.TempDir(), nil)
	objects := newFakeObjects()
	rag := newFakeRag()

	engine := NewEngine(Options{
		Local:   local,
		Objects: objects,
		Rag:     rag,
		RagCfg: dify.Config{
			BaseURL:             "http://dify.local",
			NoteDatasetID:       "ds-note",
			TranscriptDatasetID: "ds-transcript",
			ServiceAPIKey:       "svc",
		},
		Profile: "main",
		Now:     func() time.Time { return time.UnixMilli(1_700_000_100_000) },
	})

	return &fixture{engine: engine, local: local, objects: objects, rag: rag}
}

// seedLocalTask writes a complete nested task and returns its loaded item.
func (fx *fixture) seedLocalTask(t *testing.T, taskID string, createdAtMS int64) *store.Item {
	t.Helper()

	require.NoError(t, store.WriteJSON(
		fx.local.TaskDir(taskID)+"/"+taskID+"_audio.json",
		media.AudioMeta{Platform: "youtube", VideoID: "abc", Title: "t"},
	))
	require.NoError(t, store.WriteJSON(
		fx.local.TaskDir(taskID)+"/"+taskID+".status.json",
		store.TaskStatusFile{Status: "SUCCESS", Progress: 100},
	))
	require.NoError(t, store.WriteJSON(
		fx.local.TaskDir(taskID)+"/"+taskID+"_transcript.json",
		media.Transcript{Segments: []media.Segment{{Start: 0, End: 1, Text: "hello world"}}},
	))

	mdPath := fx.local.TaskDir(taskID) + "/" + taskID + "_markdown.md"
	require.NoError(t, writeFile(mdPath, "# hi"))

	require.NoError(t, store.WriteJSON(
		fx.local.TaskDir(taskID)+"/"+taskID+".json",
		store.TaskResult{
			Markdown:   "# hi",
			Transcript: &media.Transcript{Segments: []media.Segment{{Start: 0, End: 1, Text: "hello world"}}},
			AudioMeta:  &media.AudioMeta{Platform: "youtube", VideoID: "abc", Title: "t"},
		},
	))

	_, err := fx.local.EnsureSyncMeta(taskID, "youtube", "abc", "t", createdAtMS)
	require.NoError(t, err)

	item, err := fx.local.Load(taskID)
	require.NoError(t, err)

	return item
}
