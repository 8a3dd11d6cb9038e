// Package bundle implements the deterministic zip codec used as the
// cross-device source of truth. Equal inputs produce byte-equal archives, so
// the archive's SHA-256 doubles as the idempotency key for uploads and the
// remote-equality check during reconciliation.
package bundle

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pxh52013145/ragvideo/internal/media"
)

// Fixed entry attributes. 1980-01-01 is the earliest timestamp zip supports;
// pinning it (together with mode 0644 and a fixed entry order) is what makes
// two builds of the same content byte-equal.
var zipEpoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

const entryMode = 0o644

// Entry names, in the order they are written.
const (
	MetaName       = "meta.json"
	AudioName      = "audio.json"
	TranscriptName = "transcript.json"
	SRTName        = "transcript.srt"
	NoteName       = "note.md"
)

// ErrNoMeta is returned when an archive lacks the mandatory meta.json entry.
var ErrNoMeta = errors.New("bundle: missing meta.json")

// FileFlags records which optional entries a bundle carries.
type FileFlags struct {
	NoteMD         bool `json:"note_md"`
	TranscriptJSON bool `json:"transcript_json"`
	TranscriptSRT  bool `json:"transcript_srt"`
	AudioJSON      bool `json:"audio_json"`
}

// ContentHashes holds the per-entry SHA-256 digests embedded in meta.json.
// They enable field-level conflict detection without unpacking the archive.
type ContentHashes struct {
	NoteMD         string `json:"note_md,omitempty"`
	AudioJSON      string `json:"audio_json,omitempty"`
	TranscriptJSON string `json:"transcript_json,omitempty"`
	TranscriptSRT  string `json:"transcript_srt,omitempty"`
}

// Meta is the bundle manifest stored as meta.json.
type Meta struct {
	Version     int            `json:"version"`
	SourceKey   string         `json:"source_key"`
	SyncID      string         `json:"sync_id"`
	CreatedAtMS int64          `json:"created_at_ms,omitempty"`
	Files       FileFlags      `json:"files"`
	Hashes      ContentHashes  `json:"content_sha256"`
	Request     map[string]any `json:"request,omitempty"`
}

// Input is the material a bundle is built from. Nil/empty members are
// omitted from the archive.
type Input struct {
	SourceKey    string
	SyncID       string
	Audio        *media.AudioMeta
	NoteMarkdown string
	Transcript   *media.Transcript
	Request      map[string]any // original generation request, kept for restores
}

// Bundle is a parsed archive.
type Bundle struct {
	Meta         Meta
	Audio        *media.AudioMeta
	NoteMarkdown string
	Transcript   *media.Transcript
}

// SHA256Hex returns the hex digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NormalizeNote strips a UTF-8 BOM from note markdown. Hashing and embedding
// always operate on the normalized form.
func NormalizeNote(markdown string) string {
	return strings.TrimPrefix(markdown, "\ufeff")
}

// Build assembles the deterministic archive for in. Determinism is a hard
// contract: equal inputs produce byte-equal output and thus an equal
// bundle SHA-256.
func Build(in Input) ([]byte, error) {
	noteText := NormalizeNote(in.NoteMarkdown)

	var noteBytes []byte
	if strings.TrimSpace(noteText) != "" {
		noteBytes = []byte(noteText)
	}

	var audioBytes []byte
	if in.Audio != nil {
		b, err := CanonicalJSON(in.Audio)
		if err != nil {
			return nil, fmt.Errorf("bundle: encoding audio meta: %w", err)
		}

		audioBytes = b
	}

	var transcriptBytes, srtBytes []byte
	if in.Transcript != nil && !in.Transcript.Empty() {
		b, err := CanonicalJSON(in.Transcript)
		if err != nil {
			return nil, fmt.Errorf("bundle: encoding transcript: %w", err)
		}

		transcriptBytes = b

		if srt := TranscriptSRT(*in.Transcript); strings.TrimSpace(srt) != "" {
			srtBytes = []byte(srt)
		}
	}

	meta := Meta{
		Version:   1,
		SourceKey: in.SourceKey,
		SyncID:    in.SyncID,
		Files: FileFlags{
			NoteMD:         len(noteBytes) > 0,
			TranscriptJSON: len(transcriptBytes) > 0,
			TranscriptSRT:  len(srtBytes) > 0,
			AudioJSON:      len(audioBytes) > 0,
		},
		Request: in.Request,
	}

	meta.CreatedAtMS = createdAtFromSourceKey(in.SourceKey)

	if len(noteBytes) > 0 {
		meta.Hashes.NoteMD = SHA256Hex(noteBytes)
	}

	if len(audioBytes) > 0 {
		meta.Hashes.AudioJSON = SHA256Hex(audioBytes)
	}

	if len(transcriptBytes) > 0 {
		meta.Hashes.TranscriptJSON = SHA256Hex(transcriptBytes)
	}

	if len(srtBytes) > 0 {
		meta.Hashes.TranscriptSRT = SHA256Hex(srtBytes)
	}

	metaBytes, err := CanonicalJSON(meta)
	if err != nil {
		return nil, fmt.Errorf("bundle: encoding meta: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	entries := []struct {
		name string
		data []byte
	}{
		{MetaName, metaBytes},
		{AudioName, audioBytes},
		{TranscriptName, transcriptBytes},
		{SRTName, srtBytes},
		{NoteName, noteBytes},
	}

	for _, e := range entries {
		if e.name != MetaName && len(e.data) == 0 {
			continue
		}

		if err := writeEntry(zw, e.name, e.data); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("bundle: closing archive: %w", err)
	}

	return buf.Bytes(), nil
}

// writeEntry appends one fixed-attribute DEFLATE entry.
func writeEntry(zw *zip.Writer, name string, data []byte) error {
	hdr := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: zipEpoch,
	}
	hdr.SetMode(entryMode)

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("bundle: creating entry %s: %w", name, err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("bundle: writing entry %s: %w", name, err)
	}

	return nil
}

// Parse opens an archive produced by Build and decodes its entries. Unknown
// entries are ignored so future bundle versions stay readable.
func Parse(data []byte) (*Bundle, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("bundle: invalid zip: %w", err)
	}

	b := &Bundle{}
	sawMeta := false

	for _, f := range zr.File {
		content, readErr := readEntry(f)
		if readErr != nil {
			return nil, readErr
		}

		switch f.Name {
		case MetaName:
			if err := DecodeJSON(content, &b.Meta); err != nil {
				return nil, fmt.Errorf("bundle: decoding meta.json: %w", err)
			}

			sawMeta = true
		case AudioName:
			var audio media.AudioMeta
			if err := DecodeJSON(content, &audio); err != nil {
				return nil, fmt.Errorf("bundle: decoding audio.json: %w", err)
			}

			b.Audio = &audio
		case TranscriptName:
			var tr media.Transcript
			if err := DecodeJSON(content, &tr); err != nil {
				return nil, fmt.Errorf("bundle: decoding transcript.json: %w", err)
			}

			b.Transcript = &tr
		case NoteName:
			b.NoteMarkdown = string(content)
		}
	}

	if !sawMeta {
		return nil, ErrNoMeta
	}

	return b, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("bundle: opening entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("bundle: reading entry %s: %w", f.Name, err)
	}

	return content, nil
}

// createdAtFromSourceKey extracts the trailing millisecond timestamp, or 0
// when the key does not carry one.
func createdAtFromSourceKey(sourceKey string) int64 {
	idx := strings.LastIndex(sourceKey, ":")
	if idx < 0 {
		return 0
	}

	var ms int64
	for _, r := range sourceKey[idx+1:] {
		if r < '0' || r > '9' {
			return 0
		}

		ms = ms*10 + int64(r-'0')
	}

	return ms
}
