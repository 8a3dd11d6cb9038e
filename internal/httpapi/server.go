package httpapi

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pxh52013145/ragvideo/internal/config"
	"github.com/pxh52013145/ragvideo/internal/dify"
	"github.com/pxh52013145/ragvideo/internal/ingest"
	"github.com/pxh52013145/ragvideo/internal/objstore"
	"github.com/pxh52013145/ragvideo/internal/profile"
	"github.com/pxh52013145/ragvideo/internal/store"
	syncpkg "github.com/pxh52013145/ragvideo/internal/sync"
)

// Server wires the sync core behind the HTTP surface. Engines are built per
// request so profile switches take effect immediately.
type Server struct {
	registry *profile.Registry
	local    *store.Store
	snapshot *syncpkg.Snapshot
	pool     *ingest.Pool
	logger   *slog.Logger

	// engineFn builds a per-request engine for the active profile. Tests
	// substitute a fixture engine.
	engineFn func() *syncpkg.Engine

	// chatFn builds the chat client for the active profile.
	chatFn func() *dify.Chat
}

// NewServer assembles the HTTP surface.
func NewServer(
	registry *profile.Registry,
	local *store.Store,
	snapshot *syncpkg.Snapshot,
	pool *ingest.Pool,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		registry: registry,
		local:    local,
		snapshot: snapshot,
		pool:     pool,
		logger:   logger,
	}

	s.engineFn = s.buildEngine
	s.chatFn = s.buildChat

	return s
}

// ResolveRagConfig layers the active profile over the DIFY_* environment
// defaults.
func ResolveRagConfig(prof profile.Profile) dify.Config {
	env := config.LoadRAGEnv()

	cfg := dify.Config{
		BaseURL:             env.BaseURL,
		DatasetID:           env.DatasetID,
		ServiceAPIKey:       env.ServiceAPIKey,
		AppAPIKey:           env.AppAPIKey,
		AppUser:             env.AppUser,
		IndexingTechnique:   env.IndexingTechnique,
		TimeoutSeconds:      env.TimeoutSeconds,
		NoteDatasetID:       prof.NoteDatasetID,
		TranscriptDatasetID: prof.TranscriptDatasetID,
	}

	if v := strings.TrimSpace(prof.BaseURL); v != "" {
		cfg.BaseURL = v
	}

	if v := strings.TrimSpace(prof.DatasetID); v != "" {
		cfg.DatasetID = v
	}

	if v := strings.TrimSpace(prof.ServiceAPIKey); v != "" {
		cfg.ServiceAPIKey = v
	}

	if v := strings.TrimSpace(prof.AppAPIKey); v != "" {
		cfg.AppAPIKey = v
	}

	if v := strings.TrimSpace(prof.AppUser); v != "" {
		cfg.AppUser = v
	}

	if v := strings.TrimSpace(prof.IndexingTechnique); v != "" {
		cfg.IndexingTechnique = v
	}

	if prof.TimeoutSeconds > 0 {
		cfg.TimeoutSeconds = prof.TimeoutSeconds
	}

	return cfg
}

// buildEngine resolves the active profile into an Engine. Unconfigured
// backends degrade to nil capabilities: the engine still serves local-only
// views.
func (s *Server) buildEngine() *syncpkg.Engine {
	name, prof := s.registry.Get()
	ragCfg := ResolveRagConfig(prof)

	var objects syncpkg.ObjectStore

	if client, err := objstore.New(objstoreConfig(), s.logger); err == nil {
		objects = client
	} else {
		s.logger.Debug("object store unavailable", slog.String("error", err.Error()))
	}

	var rag syncpkg.RagClient

	if strings.TrimSpace(ragCfg.ServiceAPIKey) != "" {
		rag = dify.NewKnowledge(ragCfg, nil, s.logger)
	}

	mergeChars, mergeSeconds := config.MergeLimits()

	return syncpkg.NewEngine(syncpkg.Options{
		Local:           s.local,
		Objects:         objects,
		Rag:             rag,
		RagCfg:          ragCfg,
		Profile:         name,
		Snapshot:        s.snapshot,
		MergeMaxChars:   mergeChars,
		MergeMaxSeconds: mergeSeconds,
		Now:             time.Now,
		Logger:          s.logger,
	})
}

func (s *Server) buildChat() *dify.Chat {
	_, prof := s.registry.Get()

	return dify.NewChat(ResolveRagConfig(prof), nil, s.logger)
}

func objstoreConfig() objstore.Config {
	env := config.LoadObjectStoreEnv()

	return objstore.Config{
		Endpoint:        env.Endpoint,
		AccessKey:       env.AccessKey,
		SecretKey:       env.SecretKey,
		Secure:          env.Secure,
		Region:          env.Region,
		BucketPrefix:    env.BucketPrefix,
		ObjectPrefix:    env.ObjectPrefix,
		TombstonePrefix: env.TombstonePrefix,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /sync/scan", s.handleScan)
	mux.HandleFunc("GET /sync/items", s.handleItems)
	mux.HandleFunc("POST /sync/push", s.handlePush)
	mux.HandleFunc("POST /sync/pull", s.handlePull)
	mux.HandleFunc("POST /sync/copy", s.handleCopy)
	mux.HandleFunc("POST /sync/delete_remote", s.handleDeleteRemote)

	mux.HandleFunc("GET /config", s.handleConfigGet)
	mux.HandleFunc("POST /config", s.handleConfigUpdate)

	mux.HandleFunc("GET /profiles", s.handleProfilesList)
	mux.HandleFunc("POST /profiles", s.handleProfileUpsert)
	mux.HandleFunc("POST /profiles/activate", s.handleProfileActivate)
	mux.HandleFunc("DELETE /profiles/{name}", s.handleProfileDelete)

	mux.HandleFunc("GET /app_schemes", s.handleSchemesList)
	mux.HandleFunc("POST /app_schemes", s.handleSchemeUpsert)
	mux.HandleFunc("POST /app_schemes/activate", s.handleSchemeActivate)
	mux.HandleFunc("DELETE /app_schemes/{name}", s.handleSchemeDelete)

	mux.HandleFunc("POST /tasks", s.handleTaskSubmit)
	mux.HandleFunc("GET /tasks/{id}/status", s.handleTaskStatus)
	mux.HandleFunc("POST /tasks/{id}/cancel", s.handleTaskCancel)
	mux.HandleFunc("DELETE /tasks/{id}", s.handleTaskDelete)

	mux.HandleFunc("POST /rag/chat", s.handleChat)
	mux.HandleFunc("POST /rag/retrieve", s.handleRetrieve)

	return s.logRequests(mux)
}

// logRequests is the access-log middleware.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		s.logger.Debug("request served",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}
