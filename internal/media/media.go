// Package media defines the value types produced by the ingestion pipeline:
// audio metadata, transcripts, and transcript segments. JSON is used only at
// the edges (task files, bundle entries); in-process code passes these
// structs.
package media

import "strings"

// AudioMeta describes the downloaded audio artifact of a video.
type AudioMeta struct {
	Platform string  `json:"platform"`
	VideoID  string  `json:"video_id"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration,omitempty"`
	CoverURL string  `json:"cover_url,omitempty"`
	FilePath string  `json:"file_path,omitempty"`
}

// Valid reports whether the metadata carries the identity fields scan and
// sync require.
func (a AudioMeta) Valid() bool {
	return strings.TrimSpace(a.Platform) != "" && strings.TrimSpace(a.VideoID) != ""
}

// Segment is a single timed transcript span. Start and End are seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the speech-to-text result for one video.
type Transcript struct {
	Language string    `json:"language,omitempty"`
	FullText string    `json:"full_text,omitempty"`
	Segments []Segment `json:"segments,omitempty"`
}

// Empty reports whether the transcript carries neither segments nor text.
func (t Transcript) Empty() bool {
	return len(t.Segments) == 0 && strings.TrimSpace(t.FullText) == ""
}

// MergedSpan is a run of consecutive segments collapsed into one block.
type MergedSpan struct {
	Start float64
	End   float64
	Text  string
}

// Merge limits for transcript segment coalescing. Indexing backends with
// small embedding models fail on documents split into hundreds of tiny
// chunks, so consecutive segments are merged into larger spans capped by
// character count and wall-clock duration.
const (
	DefaultMergeMaxChars   = 900
	DefaultMergeMaxSeconds = 60.0
)

// MergeSegments coalesces consecutive segments into spans of at most
// maxChars characters and maxSeconds duration. Whitespace inside segment
// text is collapsed; empty segments are skipped. A maxChars <= 0 disables
// merging and returns nil.
func MergeSegments(segments []Segment, maxChars int, maxSeconds float64) []MergedSpan {
	if len(segments) == 0 || maxChars <= 0 {
		return nil
	}

	var (
		merged  []MergedSpan
		buf     []string
		bufLen  int
		startTS float64
		endTS   float64
	)

	flush := func() {
		if len(buf) == 0 {
			return
		}

		merged = append(merged, MergedSpan{Start: startTS, End: endTS, Text: strings.Join(buf, " ")})
		buf = nil
		bufLen = 0
	}

	for _, seg := range segments {
		text := strings.Join(strings.Fields(seg.Text), " ")
		if text == "" {
			continue
		}

		segStart := seg.Start
		segEnd := seg.End
		if segEnd < segStart {
			segEnd = segStart
		}

		extra := len(text)
		if len(buf) > 0 {
			extra++ // joining space
		}

		spanOK := true
		if maxSeconds > 0 && len(buf) > 0 {
			spanOK = (segEnd - startTS) <= maxSeconds
		}

		if len(buf) > 0 && (bufLen+extra > maxChars || !spanOK) {
			flush()
		}

		if len(buf) == 0 {
			startTS = segStart
			bufLen = len(text)
		} else {
			bufLen += extra
		}

		buf = append(buf, text)
		endTS = segEnd
	}

	flush()

	return merged
}
