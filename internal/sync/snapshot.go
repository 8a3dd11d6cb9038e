package sync

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite" // pure-Go sqlite driver
)

// Snapshot persists the last reconcile per profile in a sqlite table with
// replace-all semantics. The cached read path fuses these rows with a fresh
// local scan so the UI reflects local edits without a remote round-trip.
type Snapshot struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSnapshot opens (or creates) the snapshot database at path and applies
// pending migrations. The connection is capped at one writer, the
// sole-writer pattern sqlite favors.
func OpenSnapshot(ctx context.Context, path string, logger *slog.Logger) (*Snapshot, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sync: opening snapshot db: %w", err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()

		return nil, err
	}

	return &Snapshot{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (s *Snapshot) Close() error {
	return s.db.Close()
}

// ReplaceAll swaps the profile's rows for items in one transaction. Rows
// without a source key (legacy remote docs) are not persisted — they cannot
// be joined on re-read.
func (s *Snapshot) ReplaceAll(ctx context.Context, profile string, items []Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sync: snapshot begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sync_items WHERE profile = ?`, profile); err != nil {
		return fmt.Errorf("sync: snapshot clear: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO sync_items
		(profile, source_key, sync_id, status, title, platform, video_id, created_at_ms,
		 local_task_id, local_has_note, local_has_transcript,
		 dify_note_document_id, dify_note_name, dify_transcript_document_id, dify_transcript_name,
		 remote_has_note, remote_has_transcript,
		 bundle_exists, tombstone_exists,
		 bundle_sha256_local, bundle_sha256_remote,
		 note_sha256_local, note_sha256_remote,
		 transcript_sha256_local, transcript_sha256_remote)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sync: snapshot prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0

	for i := range items {
		it := &items[i]
		if it.SourceKey == "" || it.SyncID == "" {
			continue
		}

		_, execErr := stmt.ExecContext(ctx,
			profile, it.SourceKey, it.SyncID, string(it.Status),
			it.Title, it.Platform, it.VideoID, it.CreatedAtMS,
			it.LocalTaskID, it.LocalHasNote, it.LocalHasTranscript,
			it.DifyNoteDocumentID, it.DifyNoteName,
			it.DifyTranscriptDocumentID, it.DifyTranscriptName,
			it.RemoteHasNote, it.RemoteHasTranscript,
			nullBool(it.BundleExists), nullBool(it.TombstoneExists),
			it.BundleSHA256Local, it.BundleSHA256Remote,
			it.NoteSHA256Local, it.NoteSHA256Remote,
			it.TranscriptSHA256Local, it.TranscriptSHA256Remote,
		)
		if execErr != nil {
			return fmt.Errorf("sync: snapshot insert %s: %w", it.SourceKey, execErr)
		}

		inserted++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sync: snapshot commit: %w", err)
	}

	s.logger.Debug("snapshot replaced",
		slog.String("profile", profile),
		slog.Int("rows", inserted),
	)

	return nil
}

// ListByProfile returns the profile's cached rows, newest first.
func (s *Snapshot) ListByProfile(ctx context.Context, profile string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		source_key, sync_id, status, title, platform, video_id, created_at_ms,
		local_task_id, local_has_note, local_has_transcript,
		dify_note_document_id, dify_note_name, dify_transcript_document_id, dify_transcript_name,
		remote_has_note, remote_has_transcript,
		bundle_exists, tombstone_exists,
		bundle_sha256_local, bundle_sha256_remote,
		note_sha256_local, note_sha256_remote,
		transcript_sha256_local, transcript_sha256_remote
		FROM sync_items WHERE profile = ? ORDER BY created_at_ms DESC`, profile)
	if err != nil {
		return nil, fmt.Errorf("sync: snapshot query: %w", err)
	}
	defer rows.Close()

	var items []Item

	for rows.Next() {
		var (
			it             Item
			status         string
			bundleExists   sql.NullBool
			tombstoneFound sql.NullBool
		)

		if err := rows.Scan(
			&it.SourceKey, &it.SyncID, &status, &it.Title, &it.Platform, &it.VideoID, &it.CreatedAtMS,
			&it.LocalTaskID, &it.LocalHasNote, &it.LocalHasTranscript,
			&it.DifyNoteDocumentID, &it.DifyNoteName,
			&it.DifyTranscriptDocumentID, &it.DifyTranscriptName,
			&it.RemoteHasNote, &it.RemoteHasTranscript,
			&bundleExists, &tombstoneFound,
			&it.BundleSHA256Local, &it.BundleSHA256Remote,
			&it.NoteSHA256Local, &it.NoteSHA256Remote,
			&it.TranscriptSHA256Local, &it.TranscriptSHA256Remote,
		); err != nil {
			return nil, fmt.Errorf("sync: scanning snapshot row: %w", err)
		}

		it.Status = Status(status)

		if bundleExists.Valid {
			it.BundleExists = boolPtr(bundleExists.Bool)
		}

		if tombstoneFound.Valid {
			it.TombstoneExists = boolPtr(tombstoneFound.Bool)
		}

		items = append(items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sync: iterating snapshot rows: %w", err)
	}

	return items, nil
}

func nullBool(v *bool) any {
	if v == nil {
		return nil
	}

	return *v
}
