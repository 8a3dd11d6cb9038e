package bundle

import (
	"fmt"
	"math"
	"strings"

	"github.com/pxh52013145/ragvideo/internal/media"
)

// TranscriptSRT derives the SubRip rendition embedded in a bundle. Segments
// are first coalesced with the standard merge windows so the SRT mirrors the
// chunking the RAG transcript document uses. A transcript with no usable
// segments falls back to a single cue carrying the full text.
func TranscriptSRT(tr media.Transcript) string {
	spans := media.MergeSegments(tr.Segments, media.DefaultMergeMaxChars, media.DefaultMergeMaxSeconds)

	if len(spans) == 0 {
		full := strings.TrimSpace(tr.FullText)
		if full == "" {
			return ""
		}

		return "1\n00:00:00,000 --> 00:00:00,000\n" + full + "\n"
	}

	var sb strings.Builder

	for i, span := range spans {
		fmt.Fprintf(&sb, "%d\n%s --> %s\n%s\n\n",
			i+1,
			srtTimestamp(span.Start),
			srtTimestamp(span.End),
			span.Text,
		)
	}

	return strings.TrimRight(sb.String(), "\n") + "\n"
}

// srtTimestamp formats seconds as "HH:MM:SS,mmm". Negative inputs clamp to
// zero.
func srtTimestamp(seconds float64) string {
	ms := int64(math.Round(seconds * 1000))
	if ms < 0 {
		ms = 0
	}

	hh := ms / 3_600_000
	mm := (ms % 3_600_000) / 60_000
	ss := (ms % 60_000) / 1_000
	mmm := ms % 1_000

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hh, mm, ss, mmm)
}
