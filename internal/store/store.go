// Package store implements the per-task local filesystem layout: task
// directories holding result, status, markdown, transcript, and audio files,
// plus the sync-meta sidecar that pins an item's identity. It is the "local"
// side of the three-way reconciliation.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
)

// Sentinel errors.
var (
	ErrNotFound = errors.New("store: item not found")
	ErrNoTaskID = errors.New("store: missing task id")
)

// Store manages task artifacts under a single root directory. New ingestions
// write the nested per-task layout; a legacy flat layout (files directly
// under the root) is still recognized on read.
type Store struct {
	root   string
	logger *slog.Logger

	// generation increments whenever the watcher observes a change under
	// root. It is exposed through Generation; nothing in the module reads it.
	generation atomic.Int64
}

// New creates a Store rooted at dir.
func New(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{root: dir, logger: logger}
}

// Root returns the note output directory.
func (s *Store) Root() string {
	return s.root
}

// Item is a locally materialized note task, discovered by Scan or Load.
type Item struct {
	TaskID      string
	Title       string
	Platform    string
	VideoID     string
	CreatedAtMS int64
	SourceKey   string
	SyncID      string

	// Resolved artifact paths; empty when the file does not exist.
	TaskDir        string
	ResultPath     string
	StatusPath     string
	MarkdownPath   string
	TranscriptPath string
	AudioPath      string
}

// HasNote reports whether the item has non-empty markdown on disk (falling
// back to the result document for legacy layouts).
func (it *Item) HasNote() bool {
	if fileNonEmpty(it.MarkdownPath) {
		return true
	}

	res := readResultFile(it.ResultPath)

	return res != nil && strings.TrimSpace(res.Markdown) != ""
}

// HasTranscript reports whether the item has a non-empty transcript.
func (it *Item) HasTranscript() bool {
	if fileNonEmpty(it.TranscriptPath) {
		return true
	}

	res := readResultFile(it.ResultPath)

	return res != nil && res.Transcript != nil && !res.Transcript.Empty()
}

// taskFiles returns the conventional file names for a task id inside base.
type taskFiles struct {
	base       string
	result     string
	status     string
	syncMeta   string
	markdown   string
	transcript string
	audio      string
}

func filesFor(base, taskID string) taskFiles {
	return taskFiles{
		base:       base,
		result:     filepath.Join(base, taskID+".json"),
		status:     filepath.Join(base, taskID+".status.json"),
		syncMeta:   filepath.Join(base, taskID+".sync.json"),
		markdown:   filepath.Join(base, taskID+"_markdown.md"),
		transcript: filepath.Join(base, taskID+"_transcript.json"),
		audio:      filepath.Join(base, taskID+"_audio.json"),
	}
}

// resolve picks the nested directory when it exists, else the legacy flat
// layout rooted directly at the store root.
func (s *Store) resolve(taskID string) taskFiles {
	taskDir := filepath.Join(s.root, taskID)
	if info, err := os.Stat(taskDir); err == nil && info.IsDir() {
		return filesFor(taskDir, taskID)
	}

	return filesFor(s.root, taskID)
}

// TaskDir returns the directory new writes for taskID use (always nested).
func (s *Store) TaskDir(taskID string) string {
	return filepath.Join(s.root, taskID)
}

// Scan discovers every task with usable audio identity, pinning sync meta as
// a side effect. Items missing platform or video id are skipped: they cannot
// participate in synchronization.
func (s *Store) Scan() ([]*Item, error) {
	ids, err := s.discoverTaskIDs()
	if err != nil {
		return nil, err
	}

	items := make([]*Item, 0, len(ids))

	for _, taskID := range ids {
		item, loadErr := s.Load(taskID)
		if loadErr != nil {
			if errors.Is(loadErr, ErrNotFound) {
				continue
			}

			return nil, loadErr
		}

		items = append(items, item)
	}

	s.logger.Debug("local scan complete",
		slog.Int("tasks", len(ids)),
		slog.Int("items", len(items)),
	)

	return items, nil
}

// discoverTaskIDs collects task ids from both layouts, sorted for stable
// output.
func (s *Store) discoverTaskIDs() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("store: reading note dir: %w", err)
	}

	seen := map[string]bool{}

	for _, entry := range entries {
		name := entry.Name()

		if entry.IsDir() {
			tf := filesFor(filepath.Join(s.root, name), name)
			if fileExists(tf.status) || fileExists(tf.result) {
				seen[name] = true
			}

			continue
		}

		// Legacy flat layout: <task_id>.status.json at the root.
		if tid, ok := strings.CutSuffix(name, ".status.json"); ok && tid != "" {
			seen[tid] = true
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids, nil
}

// Load resolves a single task into an Item, ensuring its sync-meta sidecar.
// Returns ErrNotFound when the task does not exist or lacks the platform and
// video id required for sync identity.
func (s *Store) Load(taskID string) (*Item, error) {
	tid := strings.TrimSpace(taskID)
	if tid == "" {
		return nil, ErrNoTaskID
	}

	tf := s.resolve(tid)

	title, platform, videoID, ok := s.parseAudioIdentity(tf)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, tid)
	}

	meta, err := s.EnsureSyncMeta(tid, platform, videoID, title, s.preferredCreatedAt(tf))
	if err != nil {
		return nil, err
	}

	item := &Item{
		TaskID:      tid,
		Title:       title,
		Platform:    platform,
		VideoID:     videoID,
		CreatedAtMS: meta.CreatedAtMS,
		SourceKey:   meta.SourceKey,
		SyncID:      meta.SyncID,
		TaskDir:     tf.base,
	}

	if fileExists(tf.result) {
		item.ResultPath = tf.result
	}

	if fileExists(tf.status) {
		item.StatusPath = tf.status
	}

	if fileExists(tf.markdown) {
		item.MarkdownPath = tf.markdown
	}

	if fileExists(tf.transcript) {
		item.TranscriptPath = tf.transcript
	}

	if fileExists(tf.audio) {
		item.AudioPath = tf.audio
	}

	return item, nil
}

// FindBySourceKey scans for the local task carrying sourceKey. Returns nil
// when no task matches.
func (s *Store) FindBySourceKey(sourceKey string) (*Item, error) {
	items, err := s.Scan()
	if err != nil {
		return nil, err
	}

	for _, it := range items {
		if it.SourceKey == sourceKey {
			return it, nil
		}
	}

	return nil, nil
}

// parseAudioIdentity pulls (title, platform, video_id) from the audio file,
// falling back to the result document's audio_meta.
func (s *Store) parseAudioIdentity(tf taskFiles) (title, platform, videoID string, ok bool) {
	if audio := readAudioFile(tf.audio); audio != nil && audio.Valid() {
		return strings.TrimSpace(audio.Title), strings.TrimSpace(audio.Platform), strings.TrimSpace(audio.VideoID), true
	}

	if res := readResultFile(tf.result); res != nil && res.AudioMeta != nil && res.AudioMeta.Valid() {
		a := res.AudioMeta
		return strings.TrimSpace(a.Title), strings.TrimSpace(a.Platform), strings.TrimSpace(a.VideoID), true
	}

	return "", "", "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func fileNonEmpty(path string) bool {
	if path == "" {
		return false
	}

	info, err := os.Stat(path)

	return err == nil && !info.IsDir() && info.Size() > 0
}
