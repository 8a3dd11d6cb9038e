package sync

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot(t *testing.T) *Snapshot {
	t.Helper()

	snap, err := OpenSnapshot(context.Background(), filepath.Join(t.TempDir(), "sync.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { snap.Close() })

	return snap
}

func snapshotRow(sourceKey string, createdAtMS int64, status Status) Item {
	return Item{
		Status:      status,
		Title:       "t",
		Platform:    "youtube",
		VideoID:     "abc",
		CreatedAtMS: createdAtMS,
		SourceKey:   sourceKey,
		SyncID:      "sync-" + sourceKey,
	}
}

func TestSnapshotReplaceAllRoundTrip(t *testing.T) {
	snap := testSnapshot(t)
	ctx := context.Background()

	items := []Item{
		snapshotRow("youtube:a:2", 2, StatusSynced),
		snapshotRow("youtube:b:1", 1, StatusLocalOnly),
	}

	items[0].TombstoneExists = boolPtr(false)
	items[0].BundleExists = boolPtr(true)
	items[0].NoteSHA256Local = "aa"

	require.NoError(t, snap.ReplaceAll(ctx, "main", items))

	rows, err := snap.ListByProfile(ctx, "main")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "youtube:a:2", rows[0].SourceKey, "newest first")
	assert.Equal(t, StatusSynced, rows[0].Status)
	require.NotNil(t, rows[0].BundleExists)
	assert.True(t, *rows[0].BundleExists)
	require.NotNil(t, rows[0].TombstoneExists)
	assert.False(t, *rows[0].TombstoneExists)
	assert.Equal(t, "aa", rows[0].NoteSHA256Local)
	assert.Nil(t, rows[1].BundleExists, "unknown tri-state survives the round trip")
}

func TestSnapshotReplaceAllReplaces(t *testing.T) {
	snap := testSnapshot(t)
	ctx := context.Background()

	require.NoError(t, snap.ReplaceAll(ctx, "main", []Item{snapshotRow("youtube:a:1", 1, StatusSynced)}))
	require.NoError(t, snap.ReplaceAll(ctx, "main", []Item{snapshotRow("youtube:b:2", 2, StatusLocalOnly)}))

	rows, err := snap.ListByProfile(ctx, "main")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "youtube:b:2", rows[0].SourceKey)
}

func TestSnapshotIsolatesProfiles(t *testing.T) {
	snap := testSnapshot(t)
	ctx := context.Background()

	require.NoError(t, snap.ReplaceAll(ctx, "main", []Item{snapshotRow("youtube:a:1", 1, StatusSynced)}))
	require.NoError(t, snap.ReplaceAll(ctx, "other", []Item{snapshotRow("youtube:b:2", 2, StatusSynced)}))

	mainRows, err := snap.ListByProfile(ctx, "main")
	require.NoError(t, err)
	require.Len(t, mainRows, 1)

	otherRows, err := snap.ListByProfile(ctx, "other")
	require.NoError(t, err)
	require.Len(t, otherRows, 1)
	assert.Equal(t, "youtube:b:2", otherRows[0].SourceKey)
}

func TestSnapshotSkipsLegacyRows(t *testing.T) {
	snap := testSnapshot(t)
	ctx := context.Background()

	legacy := Item{Status: StatusDifyOnlyLegacy, Title: "legacy"}

	require.NoError(t, snap.ReplaceAll(ctx, "main", []Item{legacy, snapshotRow("youtube:a:1", 1, StatusSynced)}))

	rows, err := snap.ListByProfile(ctx, "main")
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
