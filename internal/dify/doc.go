package dify

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/pxh52013145/ragvideo/internal/media"
)

// Tracking query parameters stripped from [SOURCE] URLs, plus any utm_*.
var dropSourceQueryKeys = map[string]bool{
	"vd_source":        true,
	"spm_id_from":      true,
	"from":             true,
	"share_source":     true,
	"share_medium":     true,
	"share_plat":       true,
	"share_session_id": true,
	"share_tag":        true,
}

// NormalizeSourceURL removes tracking parameters and fragments from an
// http(s) URL. Non-http schemes and unparseable inputs pass through
// untouched.
func NormalizeSourceURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	u, err := url.Parse(trimmed)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return trimmed
	}

	kept := url.Values{}

	for key, vals := range u.Query() {
		if key == "" || dropSourceQueryKeys[key] || strings.HasPrefix(strings.ToLower(key), "utm_") {
			continue
		}

		for _, v := range vals {
			kept.Add(key, v)
		}
	}

	u.RawQuery = kept.Encode()
	u.Fragment = ""

	return u.String()
}

// docHeader renders the shared document header block.
func docHeader(audio media.AudioMeta, platform, sourceURL string) []string {
	return []string{
		"[TITLE]=" + audio.Title,
		"[PLATFORM]=" + platform,
		"[VIDEO_ID]=" + audio.VideoID,
		"[SOURCE]=" + NormalizeSourceURL(sourceURL),
		"",
	}
}

// NoteDocumentText renders the note document body: identity header followed
// by the markdown.
func NoteDocumentText(audio media.AudioMeta, platform, sourceURL, noteMarkdown string) string {
	parts := docHeader(audio, platform, sourceURL)

	if md := strings.TrimSpace(noteMarkdown); md != "" {
		parts = append(parts, md, "")
	}

	return strings.TrimSpace(strings.Join(parts, "\n")) + "\n"
}

// TranscriptDocumentText renders the transcript document body: identity
// header plus one "[VID=…][PLATFORM=…][TIME=…] text" block per merged span.
// Merge caps keep chunk counts manageable for the embedding backend; pass
// the RAG_TRANSCRIPT_MERGE_* values.
func TranscriptDocumentText(audio media.AudioMeta, tr media.Transcript, platform, sourceURL string, maxChars int, maxSeconds float64) string {
	parts := docHeader(audio, platform, sourceURL)

	spans := media.MergeSegments(tr.Segments, maxChars, maxSeconds)
	if len(spans) == 0 {
		// Merging disabled or no segments: fall back to raw segments.
		for _, seg := range tr.Segments {
			text := strings.Join(strings.Fields(seg.Text), " ")
			if text == "" {
				continue
			}

			spans = append(spans, media.MergedSpan{Start: seg.Start, End: seg.End, Text: text})
		}
	}

	for _, span := range spans {
		parts = append(parts,
			fmt.Sprintf("[VID=%s][PLATFORM=%s][TIME=%s-%s] %s",
				audio.VideoID, platform,
				clockTimestamp(span.Start), clockTimestamp(span.End), span.Text),
			"",
		)
	}

	return strings.TrimSpace(strings.Join(parts, "\n")) + "\n"
}

// clockTimestamp formats seconds as MM:SS, growing to HH:MM:SS past an hour.
func clockTimestamp(seconds float64) string {
	total := int64(seconds)
	if total < 0 {
		total = 0
	}

	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60

	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
	}

	return fmt.Sprintf("%02d:%02d", minutes, secs)
}
