// Package identity defines the canonical identity scheme for library items:
// source keys ("platform:video_id:created_at_ms"), sync ids (SHA-256 of the
// source key), and the bracketed tag embedded in RAG document names.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Document name suffixes distinguishing the two dataset sides when both live
// in the same RAG dataset.
const (
	NoteSuffix       = " (note)"
	TranscriptSuffix = " (transcript)"
)

// MakeSourceKey builds the canonical source key for an item. The platform and
// video id are trimmed; createdAtMS is the milliseconds timestamp at which the
// local artifact was first materialized and is never regenerated for the same
// artifact.
func MakeSourceKey(platform, videoID string, createdAtMS int64) string {
	return fmt.Sprintf("%s:%s:%d", strings.TrimSpace(platform), strings.TrimSpace(videoID), createdAtMS)
}

// ComputeSyncID returns the hex SHA-256 of the source key. It serves as the
// object-store base name and as the task directory id for pulled items.
func ComputeSyncID(sourceKey string) string {
	sum := sha256.Sum256([]byte(sourceKey))
	return hex.EncodeToString(sum[:])
}

// ParseSourceKey splits a source key into its components. The trailing
// component must be a positive integer millisecond timestamp. Platforms
// containing ":" are not supported; video ids may contain ":" (everything
// between the first and last separator).
func ParseSourceKey(sourceKey string) (platform, videoID string, createdAtMS int64, err error) {
	raw := strings.TrimSpace(sourceKey)
	if raw == "" {
		return "", "", 0, fmt.Errorf("identity: empty source key")
	}

	first := strings.Index(raw, ":")
	last := strings.LastIndex(raw, ":")
	if first < 0 || last <= first {
		return "", "", 0, fmt.Errorf("identity: malformed source key %q (expected platform:video_id:created_at_ms)", raw)
	}

	platform = strings.TrimSpace(raw[:first])
	videoID = strings.TrimSpace(raw[first+1 : last])
	tail := strings.TrimSpace(raw[last+1:])

	ms, convErr := strconv.ParseInt(tail, 10, 64)
	if convErr != nil || ms <= 0 {
		return "", "", 0, fmt.Errorf("identity: malformed source key %q (expected platform:video_id:created_at_ms)", raw)
	}

	if platform == "" || videoID == "" {
		return "", "", 0, fmt.Errorf("identity: malformed source key %q (expected platform:video_id:created_at_ms)", raw)
	}

	return platform, videoID, ms, nil
}

// SyncTag is the parsed form of the bracketed tag a RAG document name carries:
// "<title> [platform:video_id(:created_at_ms)?]". A tag without the timestamp
// belongs to a legacy document that cannot be joined to a local item.
type SyncTag struct {
	Title       string
	Platform    string
	VideoID     string
	CreatedAtMS int64 // 0 for legacy tags
}

// Legacy reports whether the tag lacks a created_at_ms component.
func (t SyncTag) Legacy() bool {
	return t.CreatedAtMS <= 0
}

// SourceKey returns the canonical source key for a non-legacy tag, or "" for
// legacy tags.
func (t SyncTag) SourceKey() string {
	if t.Legacy() {
		return ""
	}

	return MakeSourceKey(t.Platform, t.VideoID, t.CreatedAtMS)
}

// ParseSyncTag parses the trailing "[platform:video_id(:created_at_ms)?]" tag
// from a RAG document name. The last bracket pair wins, so titles containing
// brackets parse correctly. Returns false when no valid tag is present.
func ParseSyncTag(name string) (SyncTag, bool) {
	n := strings.TrimSpace(name)

	right := strings.LastIndex(n, "]")
	if right < 0 {
		return SyncTag{}, false
	}

	left := strings.LastIndex(n[:right], "[")
	if left < 0 {
		return SyncTag{}, false
	}

	parts := strings.Split(n[left+1:right], ":")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return SyncTag{}, false
	}

	tag := SyncTag{
		Title:    strings.TrimSpace(n[:left]),
		Platform: parts[0],
		VideoID:  parts[1],
	}

	if len(parts) >= 3 && parts[2] != "" {
		if ms, err := strconv.ParseInt(parts[2], 10, 64); err == nil && ms > 0 {
			tag.CreatedAtMS = ms
		}
	}

	return tag, true
}

// DocumentName renders the base RAG document name for an item:
// "{title or 'Untitled'} [{platform}:{video_id}:{created_at_ms}]".
// Titles are NFC-normalized so the same logical title produced by different
// platforms compares equal during find-by-name upserts.
func DocumentName(title, platform, videoID string, createdAtMS int64) string {
	t := norm.NFC.String(strings.TrimSpace(title))
	if t == "" {
		t = "Untitled"
	}

	v := strings.TrimSpace(videoID)
	if v == "" {
		v = "unknown"
	}

	return fmt.Sprintf("%s [%s:%s:%d]", t, strings.TrimSpace(platform), v, createdAtMS)
}
