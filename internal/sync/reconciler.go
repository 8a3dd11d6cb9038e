package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/pxh52013145/ragvideo/internal/bundle"
	"github.com/pxh52013145/ragvideo/internal/dify"
	"github.com/pxh52013145/ragvideo/internal/identity"
	"github.com/pxh52013145/ragvideo/internal/store"
)

// remoteDoc is a RAG document joined to a source key via its name tag.
type remoteDoc struct {
	tag        identity.SyncTag
	documentID string
	name       string
}

// remoteIndex is the per-dataset join result.
type remoteIndex struct {
	bySource map[string]remoteDoc
	legacy   []remoteDoc
}

// ScanResult is the output of a full reconcile.
type ScanResult struct {
	Profile             string `json:"profile"`
	BaseURL             string `json:"dify_base_url"`
	NoteDatasetID       string `json:"note_dataset_id"`
	TranscriptDatasetID string `json:"transcript_dataset_id"`
	Bucket              string `json:"minio_bucket,omitempty"`
	Items               []Item `json:"items"`
}

// Scan performs the three-way reconcile for the active profile: local scan,
// both dataset listings, object-store stats, classification, snapshot
// persistence. Items come back sorted by created_at_ms descending.
func (e *Engine) Scan(ctx context.Context) (*ScanResult, error) {
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

	noteDS := e.ragCfg.ResolveNoteDataset()
	transcriptDS := e.ragCfg.ResolveTranscriptDataset()

	notes, transcripts, err := e.listRemote(ctx, noteDS, transcriptDS)
	if err != nil {
		return nil, err
	}

	if e.objects != nil {
		if err := e.objects.EnsureBucket(ctx, e.bucket); err != nil {
			// Bucket trouble degrades the scan to "no object-store hints"
			// rather than failing it: RAG-only installs stay usable.
			e.logger.Warn("object store unavailable during scan", slog.String("error", err.Error()))
		}
	}

	keys := map[string]bool{}
	for k := range localBySource {
		keys[k] = true
	}

	for k := range notes.bySource {
		keys[k] = true
	}

	for k := range transcripts.bySource {
		keys[k] = true
	}

	items := make([]Item, 0, len(keys)+len(notes.legacy)+len(transcripts.legacy))

	for sourceKey := range keys {
		item, rowErr := e.buildRow(ctx, sourceKey, localBySource[sourceKey], notes.bySource, transcripts.bySource)
		if rowErr != nil {
			return nil, rowErr
		}

		items = append(items, *item)
	}

	items = append(items, legacyRows(notes.legacy, true)...)
	items = append(items, legacyRows(transcripts.legacy, false)...)

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAtMS > items[j].CreatedAtMS
	})

	if e.snapshot != nil {
		if err := e.snapshot.ReplaceAll(ctx, e.profile, items); err != nil {
			e.logger.Warn("persisting scan snapshot failed", slog.String("error", err.Error()))
		}
	}

	e.logger.Info("scan complete",
		slog.String("profile", e.profile),
		slog.Int("items", len(items)),
		slog.Int("local", len(locals)),
	)

	return &ScanResult{
		Profile:             e.profile,
		BaseURL:             e.ragCfg.BaseURL,
		NoteDatasetID:       noteDS,
		TranscriptDatasetID: transcriptDS,
		Bucket:              e.bucket,
		Items:               items,
	}, nil
}

// listRemote fetches and joins both datasets concurrently.
func (e *Engine) listRemote(ctx context.Context, noteDS, transcriptDS string) (notes, transcripts remoteIndex, err error) {
	notes = remoteIndex{bySource: map[string]remoteDoc{}}
	transcripts = remoteIndex{bySource: map[string]remoteDoc{}}

	if e.rag == nil {
		return notes, transcripts, nil
	}

	g, gctx := errgroup.WithContext(ctx)

	if noteDS != "" {
		g.Go(func() error {
			docs, listErr := e.rag.ListAllDocuments(gctx, noteDS)
			if listErr != nil {
				return fmt.Errorf("sync: listing note dataset: %w", listErr)
			}

			notes = indexRemoteDocs(docs, identity.TranscriptSuffix)

			return nil
		})
	}

	if transcriptDS != "" {
		g.Go(func() error {
			docs, listErr := e.rag.ListAllDocuments(gctx, transcriptDS)
			if listErr != nil {
				return fmt.Errorf("sync: listing transcript dataset: %w", listErr)
			}

			transcripts = indexRemoteDocs(docs, identity.NoteSuffix)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return remoteIndex{}, remoteIndex{}, err
	}

	return notes, transcripts, nil
}

// indexRemoteDocs parses name tags and joins docs by source key. Documents
// carrying the other side's suffix are cross-pollution (both sides sharing
// one dataset) and are skipped; tags without a timestamp land in the legacy
// list.
func indexRemoteDocs(docs []dify.Document, skipSuffix string) remoteIndex {
	idx := remoteIndex{bySource: map[string]remoteDoc{}}
	skip := strings.ToLower(strings.TrimSpace(skipSuffix))

	for _, d := range docs {
		name := strings.TrimSpace(d.Name)
		docID := strings.TrimSpace(d.ID)

		if name == "" || docID == "" {
			continue
		}

		if skip != "" && strings.Contains(strings.ToLower(name), skip) {
			continue
		}

		tag, ok := identity.ParseSyncTag(name)
		if !ok {
			continue
		}

		doc := remoteDoc{tag: tag, documentID: docID, name: name}

		if tag.Legacy() {
			idx.legacy = append(idx.legacy, doc)
			continue
		}

		idx.bySource[tag.SourceKey()] = doc
	}

	return idx
}

// buildRow assembles and classifies one source key.
func (e *Engine) buildRow(
	ctx context.Context,
	sourceKey string,
	local *store.Item,
	notes, transcripts map[string]remoteDoc,
) (*Item, error) {
	note, hasNoteDoc := notes[sourceKey]
	transcript, hasTranscriptDoc := transcripts[sourceKey]

	syncID := identity.ComputeSyncID(sourceKey)

	item := &Item{
		SourceKey:           sourceKey,
		SyncID:              syncID,
		RemoteHasNote:       hasNoteDoc,
		RemoteHasTranscript: hasTranscriptDoc,
	}

	switch {
	case local != nil:
		item.Title = local.Title
		item.Platform = local.Platform
		item.VideoID = local.VideoID
		item.CreatedAtMS = local.CreatedAtMS
		item.LocalTaskID = local.TaskID
		item.LocalHasNote = local.HasNote()
		item.LocalHasTranscript = local.HasTranscript()
	case hasNoteDoc:
		fillFromTag(item, note.tag)
	case hasTranscriptDoc:
		fillFromTag(item, transcript.tag)
	}

	if hasNoteDoc {
		item.DifyNoteDocumentID = note.documentID
		item.DifyNoteName = note.name
	}

	if hasTranscriptDoc {
		item.DifyTranscriptDocumentID = transcript.documentID
		item.DifyTranscriptName = transcript.name
	}

	if local != nil {
		if err := e.computeLocalHashes(item, local); err != nil {
			return nil, err
		}
	}

	e.statRemoteObjects(ctx, item, syncID)

	item.Status = classify(sides{
		HasLocal:               local != nil,
		LocalHasNote:           item.LocalHasNote,
		LocalHasTranscript:     item.LocalHasTranscript,
		RemoteHasNote:          item.RemoteHasNote,
		RemoteHasTranscript:    item.RemoteHasTranscript,
		BundleExists:           item.BundleExists,
		TombstoneExists:        item.TombstoneExists,
		NoteSHA256Local:        item.NoteSHA256Local,
		NoteSHA256Remote:       item.NoteSHA256Remote,
		TranscriptSHA256Local:  item.TranscriptSHA256Local,
		TranscriptSHA256Remote: item.TranscriptSHA256Remote,
	})

	// A tombstone hides the remote docs: the item is logically deleted
	// remotely, so the row presents the remote side as absent.
	if item.Status == StatusLocalOnly && item.TombstoneExists != nil && *item.TombstoneExists {
		item.RemoteHasNote = false
		item.RemoteHasTranscript = false
		item.DifyNoteDocumentID = ""
		item.DifyNoteName = ""
		item.DifyTranscriptDocumentID = ""
		item.DifyTranscriptName = ""
	}

	return item, nil
}

func fillFromTag(item *Item, tag identity.SyncTag) {
	item.Title = tag.Title
	item.Platform = tag.Platform
	item.VideoID = tag.VideoID
	item.CreatedAtMS = tag.CreatedAtMS
}

// computeLocalHashes derives note/transcript/bundle digests by rebuilding
// the deterministic bundle from the local payloads.
func (e *Engine) computeLocalHashes(item *Item, local *store.Item) error {
	if !item.LocalHasNote && !item.LocalHasTranscript {
		return nil
	}

	payloads, err := e.local.ReadPayloads(local)
	if err != nil {
		// A task that lost its audio file mid-scan cannot be hashed;
		// classification still works off the capability flags.
		e.logger.Debug("hashing skipped",
			slog.String("task_id", local.TaskID),
			slog.String("error", err.Error()),
		)

		return nil
	}

	noteText := bundle.NormalizeNote(payloads.Markdown)
	if item.LocalHasNote && strings.TrimSpace(noteText) != "" {
		item.NoteSHA256Local = bundle.SHA256Hex([]byte(noteText))
	}

	if item.LocalHasTranscript && payloads.Transcript != nil {
		canonical, jsonErr := bundle.CanonicalJSON(payloads.Transcript)
		if jsonErr != nil {
			return fmt.Errorf("sync: hashing transcript for %s: %w", local.TaskID, jsonErr)
		}

		item.TranscriptSHA256Local = bundle.SHA256Hex(canonical)
	}

	in := bundle.Input{
		SourceKey: item.SourceKey,
		SyncID:    item.SyncID,
		Audio:     payloads.Audio,
		Request:   payloads.Request,
	}

	if item.LocalHasNote {
		in.NoteMarkdown = payloads.Markdown
	}

	if item.LocalHasTranscript {
		in.Transcript = payloads.Transcript
	}

	data, buildErr := bundle.Build(in)
	if buildErr != nil {
		return fmt.Errorf("sync: rebuilding bundle for %s: %w", local.TaskID, buildErr)
	}

	item.BundleSHA256Local = bundle.SHA256Hex(data)

	return nil
}

// statRemoteObjects fills the object-store hints; a missing client leaves
// them nil (unknown).
func (e *Engine) statRemoteObjects(ctx context.Context, item *Item, syncID string) {
	if e.objects == nil {
		return
	}

	if info, err := e.objects.Stat(ctx, e.bucket, e.objects.TombstoneKey(syncID)); err == nil {
		item.TombstoneExists = boolPtr(info != nil)
	}

	info, err := e.objects.Stat(ctx, e.bucket, e.objects.BundleKey(syncID))
	if err != nil {
		return
	}

	item.BundleExists = boolPtr(info != nil)

	if info != nil {
		item.BundleSHA256Remote = info.Metadata[metaBundleSHA256]
		item.NoteSHA256Remote = info.Metadata[metaNoteSHA256]
		item.TranscriptSHA256Remote = info.Metadata[metaTranscriptSHA256]
	}
}

// legacyRows renders un-joinable legacy documents.
func legacyRows(docs []remoteDoc, isNote bool) []Item {
	rows := make([]Item, 0, len(docs))

	for _, d := range docs {
		item := Item{
			Status:   StatusDifyOnlyLegacy,
			Title:    d.tag.Title,
			Platform: d.tag.Platform,
			VideoID:  d.tag.VideoID,
		}

		if item.Title == "" {
			item.Title = d.name
		}

		if isNote {
			item.DifyNoteDocumentID = d.documentID
			item.DifyNoteName = d.name
			item.RemoteHasNote = true
		} else {
			item.DifyTranscriptDocumentID = d.documentID
			item.DifyTranscriptName = d.name
			item.RemoteHasTranscript = true
		}

		rows = append(rows, item)
	}

	return rows
}
