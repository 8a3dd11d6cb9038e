package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pxh52013145/ragvideo/internal/media"
)

// File and directory permission modes for task artifacts.
const (
	filePerm = 0o644
	dirPerm  = 0o755
)

// TaskResult is the result document (<task_id>.json) written when a task
// completes or an item is pulled from remote.
type TaskResult struct {
	Markdown   string            `json:"markdown"`
	Transcript *media.Transcript `json:"transcript,omitempty"`
	AudioMeta  *media.AudioMeta  `json:"audio_meta,omitempty"`
	Request    map[string]any    `json:"request,omitempty"`
	Sync       *SyncRef          `json:"sync,omitempty"`
}

// TaskStatusFile is the status document (<task_id>.status.json). Status is a
// stage name from the ingestion pipeline ("PENDING"…"SUCCESS"/"FAILED"/
// "CANCELLED").
type TaskStatusFile struct {
	Status       string         `json:"status"`
	Progress     int            `json:"progress"`
	Message      string         `json:"message,omitempty"`
	Request      map[string]any `json:"request,omitempty"`
	Sync         *SyncRef       `json:"sync,omitempty"`
	DifyError    string         `json:"dify_error,omitempty"`
	DifyIndexing any            `json:"dify_indexing,omitempty"`
}

// SyncRef pins the sync identity inside result/status documents so it stays
// stable even when file mtimes change.
type SyncRef struct {
	SourceKey   string `json:"source_key"`
	SyncID      string `json:"sync_id"`
	CreatedAtMS int64  `json:"created_at_ms"`
}

// WriteJSON atomically writes v as indented JSON to path, creating parent
// directories. The temp-file-then-rename dance guarantees readers never see
// a partial document.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encoding %s: %w", filepath.Base(path), err)
	}

	return atomicWriteFile(path, data)
}

// AtomicMergeJSON reads the JSON object at path, overlays patch keys, and
// atomically rewrites the file. A missing or unreadable file starts from an
// empty object. Concurrent writers serialize on rename atomicity:
// last-writer-wins, never a torn file.
func AtomicMergeJSON(path string, patch map[string]any) error {
	current := map[string]any{}

	if data, err := os.ReadFile(path); err == nil {
		// Tolerate corrupt files by starting over; the merge result is
		// still a valid document.
		_ = json.Unmarshal(data, &current)
	}

	for k, v := range patch {
		if v == nil {
			delete(current, k)
			continue
		}

		current[k] = v
	}

	return WriteJSON(path, current)
}

// atomicWriteFile writes data to a temp file in the target directory and
// renames it over path.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("store: creating %s: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("store: creating temp file: %w", err)
	}

	tempPath := f.Name()

	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()

		return fmt.Errorf("store: writing temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("store: closing temp file: %w", err)
	}

	if err := os.Chmod(tempPath, filePerm); err != nil {
		return fmt.Errorf("store: setting permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("store: renaming temp file: %w", err)
	}

	succeeded = true

	return nil
}

// readJSONFile decodes path into v, returning false when the file is absent
// or unparseable.
func readJSONFile(path string, v any) bool {
	if path == "" {
		return false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}

	return json.Unmarshal(data, v) == nil
}

func readResultFile(path string) *TaskResult {
	var res TaskResult
	if !readJSONFile(path, &res) {
		return nil
	}

	return &res
}

func readAudioFile(path string) *media.AudioMeta {
	var audio media.AudioMeta
	if !readJSONFile(path, &audio) {
		return nil
	}

	return &audio
}

func readStatusFile(path string) *TaskStatusFile {
	var st TaskStatusFile
	if !readJSONFile(path, &st) {
		return nil
	}

	return &st
}

// Payloads is the loaded content of one task: everything a bundle build or
// RAG upsert needs.
type Payloads struct {
	Audio      *media.AudioMeta
	Transcript *media.Transcript
	Markdown   string
	Request    map[string]any
}

// ReadPayloads loads the item's artifacts, preferring standalone files and
// falling back to the result document for legacy layouts.
func (s *Store) ReadPayloads(item *Item) (*Payloads, error) {
	p := &Payloads{}

	p.Audio = readAudioFile(item.AudioPath)

	if item.TranscriptPath != "" {
		var tr media.Transcript
		if readJSONFile(item.TranscriptPath, &tr) {
			p.Transcript = &tr
		}
	}

	if item.MarkdownPath != "" {
		if data, err := os.ReadFile(item.MarkdownPath); err == nil {
			p.Markdown = string(data)
		}
	}

	res := readResultFile(item.ResultPath)
	if res != nil {
		if p.Audio == nil {
			p.Audio = res.AudioMeta
		}

		if p.Transcript == nil {
			p.Transcript = res.Transcript
		}

		if p.Markdown == "" {
			p.Markdown = res.Markdown
		}

		if len(res.Request) > 0 {
			p.Request = res.Request
		}
	}

	if p.Request == nil {
		if st := readStatusFile(item.StatusPath); st != nil && len(st.Request) > 0 {
			p.Request = st.Request
		}
	}

	if p.Audio == nil {
		return nil, fmt.Errorf("store: %s: missing audio metadata", item.TaskID)
	}

	return p, nil
}
