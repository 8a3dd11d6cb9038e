package ingest

import (
	"context"

	"github.com/pxh52013145/ragvideo/internal/media"
)

// Request describes one ingestion job as submitted by the API.
type Request struct {
	VideoURL string         `json:"video_url"`
	Platform string         `json:"platform"`
	Quality  string         `json:"quality,omitempty"`
	Model    string         `json:"model_name,omitempty"`
	Provider string         `json:"provider_id,omitempty"`
	Format   []string       `json:"format,omitempty"`
	Extras   map[string]any `json:"extras,omitempty"`
}

// Meta renders the request as the generic map persisted in result/status
// documents and bundle metadata.
func (r Request) Meta() map[string]any {
	meta := map[string]any{
		"video_url": r.VideoURL,
		"platform":  r.Platform,
	}

	if r.Quality != "" {
		meta["quality"] = r.Quality
	}

	if r.Model != "" {
		meta["model_name"] = r.Model
	}

	if r.Provider != "" {
		meta["provider_id"] = r.Provider
	}

	return meta
}

// Source is the parsed video reference produced by the Parse stage.
type Source struct {
	Platform string
	VideoID  string
	URL      string
}

// Generator is the note-generation capability the pipeline drives. Each
// method is one pipeline stage; the pool checks cancellation between
// stages. Implementations live outside the sync core (downloader,
// transcriber, LLM) — tests use stubs.
type Generator interface {
	Parse(ctx context.Context, req Request) (Source, error)
	Download(ctx context.Context, src Source) (media.AudioMeta, error)
	Transcribe(ctx context.Context, audio media.AudioMeta) (media.Transcript, error)
	Summarize(ctx context.Context, audio media.AudioMeta, tr media.Transcript) (string, error)
	Format(ctx context.Context, markdown string) (string, error)
}
