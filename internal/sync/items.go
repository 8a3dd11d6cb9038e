package sync

import (
	"context"
	"fmt"
	"sort"

	"github.com/pxh52013145/ragvideo/internal/store"
)

// CachedItems returns the last persisted snapshot fused with a fresh local
// scan: local presence and capability flags are recomputed from disk, so
// local edits and deletions show immediately without touching the remote
// sides. Local items the snapshot has never seen appear as LOCAL_ONLY.
func (e *Engine) CachedItems(ctx context.Context) ([]Item, error) {
	locals, err := e.local.Scan()
	if err != nil {
		return nil, fmt.Errorf("sync: scanning local store: %w", err)
	}

	localBySource := make(map[string]*store.Item, len(locals))
	for _, it := range locals {
		if it.SourceKey != "" {
			localBySource[it.SourceKey] = it
		}
	}

	var cached []Item
	if e.snapshot != nil {
		cached, err = e.snapshot.ListByProfile(ctx, e.profile)
		if err != nil {
			return nil, err
		}
	}

	fused := make([]Item, 0, len(cached)+len(localBySource))

	for _, row := range cached {
		local := localBySource[row.SourceKey]
		delete(localBySource, row.SourceKey)

		fused = append(fused, fuseRow(row, local))
	}

	// Locals unknown to the snapshot: fresh ingestions since the last scan.
	for _, local := range localBySource {
		fused = append(fused, Item{
			Status:             StatusLocalOnly,
			Title:              local.Title,
			Platform:           local.Platform,
			VideoID:            local.VideoID,
			CreatedAtMS:        local.CreatedAtMS,
			SourceKey:          local.SourceKey,
			SyncID:             local.SyncID,
			LocalTaskID:        local.TaskID,
			LocalHasNote:       local.HasNote(),
			LocalHasTranscript: local.HasTranscript(),
		})
	}

	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].CreatedAtMS > fused[j].CreatedAtMS
	})

	return fused, nil
}

// fuseRow overlays the fresh local observation onto a cached row and
// re-derives the status. Remote-side facts (documents, hashes, tombstones)
// keep their cached values — only an explicit scan refreshes them.
func fuseRow(row Item, local *store.Item) Item {
	if local != nil {
		row.LocalTaskID = local.TaskID
		row.LocalHasNote = local.HasNote()
		row.LocalHasTranscript = local.HasTranscript()
		row.Title = local.Title
	} else {
		row.LocalTaskID = ""
		row.LocalHasNote = false
		row.LocalHasTranscript = false
	}

	hasRemote := row.RemoteHasNote || row.RemoteHasTranscript
	tombstoned := row.TombstoneExists != nil && *row.TombstoneExists

	switch {
	case tombstoned && local != nil:
		row.Status = StatusLocalOnly
	case tombstoned:
		row.Status = StatusDeleted
	case local != nil && hasRemote:
		if row.LocalHasNote == row.RemoteHasNote && row.LocalHasTranscript == row.RemoteHasTranscript {
			// Hash facts are cached, so a previously detected conflict
			// stands until the next full scan clears it.
			if row.Status != StatusConflict {
				row.Status = StatusSynced
			}
		} else {
			row.Status = StatusPartial
		}
	case local != nil:
		row.Status = StatusLocalOnly
	case hasRemote:
		if row.Status != StatusDifyOnlyNoBundle {
			row.Status = StatusDifyOnly
		}
	default:
		row.Status = StatusDeleted
	}

	return row
}
