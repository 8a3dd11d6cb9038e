package sync

import (
	"log/slog"
	"time"

	"github.com/pxh52013145/ragvideo/internal/dify"
	"github.com/pxh52013145/ragvideo/internal/store"
)

// Engine binds one profile's three sides together and carries the sync
// verbs. It is constructed per profile (typically per request): the registry
// may switch profiles between calls, and an Engine never outlives its
// profile resolution.
type Engine struct {
	local   *store.Store
	objects ObjectStore // nil when the object store is not configured
	rag     RagClient   // nil when RAG credentials are missing

	ragCfg  dify.Config
	profile string
	bucket  string

	snapshot *Snapshot // nil disables snapshot persistence

	mergeMaxChars   int
	mergeMaxSeconds float64

	now    func() time.Time
	logger *slog.Logger
}

// Options assembles an Engine.
type Options struct {
	Local    *store.Store
	Objects  ObjectStore
	Rag      RagClient
	RagCfg   dify.Config
	Profile  string
	Snapshot *Snapshot

	MergeMaxChars   int
	MergeMaxSeconds float64

	Now    func() time.Time
	Logger *slog.Logger
}

// NewEngine creates an Engine for the given profile.
func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	maxChars := opts.MergeMaxChars
	if maxChars == 0 {
		maxChars = 900
	}

	maxSeconds := opts.MergeMaxSeconds
	if maxSeconds == 0 {
		maxSeconds = 60
	}

	e := &Engine{
		local:           opts.Local,
		objects:         opts.Objects,
		rag:             opts.Rag,
		ragCfg:          opts.RagCfg,
		profile:         opts.Profile,
		snapshot:        opts.Snapshot,
		mergeMaxChars:   maxChars,
		mergeMaxSeconds: maxSeconds,
		now:             now,
		logger:          logger,
	}

	if e.objects != nil {
		e.bucket = e.objects.BucketName(e.profile)
	}

	return e
}

// Profile returns the profile this engine serves.
func (e *Engine) Profile() string {
	return e.profile
}

// Bucket returns the object-store bucket for this profile ("" when the
// store is not configured).
func (e *Engine) Bucket() string {
	return e.bucket
}
