package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findItem(t *testing.T, items []Item, sourceKey string) *Item {
	t.Helper()

	for i := range items {
		if items[i].SourceKey == sourceKey {
			return &items[i]
		}
	}

	t.Fatalf("item %s not found", sourceKey)

	return nil
}

func TestScanLocalOnly(t *testing.T) {
	fx := newFixture(t)
	item := fx.seedLocalTask(t, "task-1", 1_700_000_000_000)

	res, err := fx.engine.Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Items, 1)
	row := res.Items[0]

	assert.Equal(t, StatusLocalOnly, row.Status)
	assert.Equal(t, item.SourceKey, row.SourceKey)
	assert.True(t, row.LocalHasNote)
	assert.True(t, row.LocalHasTranscript)
	assert.NotEmpty(t, row.BundleSHA256Local)
	assert.NotEmpty(t, row.NoteSHA256Local)
	assert.Equal(t, "ds-note", res.NoteDatasetID)
	assert.Equal(t, "ragvideo-main", res.Bucket)
}

func TestScanSyncedAfterPush(t *testing.T) {
	fx := newFixture(t)
	fx.seedLocalTask(t, "task-1", 1_700_000_000_000)

	_, err := fx.engine.Push(context.Background(), PushRequest{
		ItemID: "task-1", IncludeNote: true, IncludeTranscript: true, UpdateDify: true,
	})
	require.NoError(t, err)

	res, err := fx.engine.Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Items, 1)
	row := res.Items[0]

	assert.Equal(t, StatusSynced, row.Status)
	assert.True(t, row.RemoteHasNote)
	assert.True(t, row.RemoteHasTranscript)
	assert.NotEmpty(t, row.DifyNoteDocumentID)
	assert.NotEmpty(t, row.DifyTranscriptDocumentID)
	require.NotNil(t, row.BundleExists)
	assert.True(t, *row.BundleExists)
	assert.Equal(t, row.BundleSHA256Local, row.BundleSHA256Remote)
}

func TestScanConflictOnRemoteHashMismatch(t *testing.T) {
	fx := newFixture(t)
	item := fx.seedLocalTask(t, "task-1", 1_700_000_000_000)

	_, err := fx.engine.Push(context.Background(), PushRequest{
		ItemID: "task-1", IncludeNote: true, IncludeTranscript: true, UpdateDify: true,
	})
	require.NoError(t, err)

	// Remote metadata advertises a different note hash ("B") than local ("A").
	bucket := fx.engine.Bucket()
	key := fx.objects.BundleKey(item.SyncID)

	fx.objects.mu.Lock()
	obj := fx.objects.objects[fx.objects.key(bucket, key)]
	obj.metadata["note-sha256"] = "b-different"
	fx.objects.mu.Unlock()

	res, err := fx.engine.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusConflict, findItem(t, res.Items, item.SourceKey).Status)
}

func TestScanPartialWhenRemoteMissingSide(t *testing.T) {
	fx := newFixture(t)
	item := fx.seedLocalTask(t, "task-1", 1_700_000_000_000)

	// Only the note side was ever pushed to RAG.
	fx.rag.seed("ds-note", "doc-n", "t [youtube:abc:1700000000000] (note)")

	res, err := fx.engine.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, findItem(t, res.Items, item.SourceKey).Status)
}

func TestScanDifyOnlyAndNoBundle(t *testing.T) {
	fx := newFixture(t)

	fx.rag.seed("ds-note", "doc-n", "Remote Item [bilibili:BV9:1690000000000]")

	res, err := fx.engine.Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Items, 1)
	row := res.Items[0]

	// Bundle object known absent → orphaned RAG doc.
	assert.Equal(t, StatusDifyOnlyNoBundle, row.Status)
	assert.Equal(t, "Remote Item", row.Title)
	assert.Equal(t, int64(1_690_000_000_000), row.CreatedAtMS)
}

func TestScanDeletedViaTombstone(t *testing.T) {
	fx := newFixture(t)
	item := fx.seedLocalTask(t, "task-1", 1_700_000_000_000)

	_, err := fx.engine.Push(context.Background(), PushRequest{ItemID: "task-1", IncludeNote: true, UpdateDify: true})
	require.NoError(t, err)

	_, err = fx.engine.DeleteRemote(context.Background(), DeleteRemoteRequest{SourceKey: item.SourceKey})
	require.NoError(t, err)

	// Local files still present → re-pushable LOCAL_ONLY with remote hidden.
	res, err := fx.engine.Scan(context.Background())
	require.NoError(t, err)

	row := findItem(t, res.Items, item.SourceKey)
	assert.Equal(t, StatusLocalOnly, row.Status)
	assert.False(t, row.RemoteHasNote)
	assert.Empty(t, row.DifyNoteDocumentID)

	// Drop the local task → DELETED.
	require.NoError(t, fx.local.DeleteTask("task-1"))

	res, err = fx.engine.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusDeleted, findItem(t, res.Items, item.SourceKey).Status)
}

func TestScanLegacyRemoteNotJoinable(t *testing.T) {
	fx := newFixture(t)

	fx.rag.seed("ds-note", "doc-legacy", "Title [bilibili:BV999]")

	res, err := fx.engine.Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Items, 1)
	row := res.Items[0]

	assert.Equal(t, StatusDifyOnlyLegacy, row.Status)
	assert.Empty(t, row.SourceKey)
	assert.Empty(t, row.SyncID)
	assert.Equal(t, "doc-legacy", row.DifyNoteDocumentID)
}

func TestScanSkipsCrossPollutedDocs(t *testing.T) {
	fx := newFixture(t)

	// Both sides share one dataset; the note listing must skip transcript
	// docs and vice versa.
	fx.rag.seed("ds-note", "doc-x", "t [youtube:abc:1700000000000] (transcript)")
	fx.rag.seed("ds-transcript", "doc-y", "t [youtube:abc:1700000000000] (note)")

	res, err := fx.engine.Scan(context.Background())
	require.NoError(t, err)

	assert.Empty(t, res.Items)
}

func TestScanSortedByCreatedAtDesc(t *testing.T) {
	fx := newFixture(t)

	fx.rag.seed("ds-note", "d1", "old [youtube:v1:1000000000001]")
	fx.rag.seed("ds-note", "d2", "new [youtube:v2:1000000000999]")

	res, err := fx.engine.Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Items, 2)
	assert.Equal(t, "new", res.Items[0].Title)
	assert.Equal(t, "old", res.Items[1].Title)
}
