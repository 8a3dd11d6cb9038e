package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pxh52013145/ragvideo/internal/config"
	"github.com/pxh52013145/ragvideo/internal/dify"
	"github.com/pxh52013145/ragvideo/internal/httpapi"
	"github.com/pxh52013145/ragvideo/internal/ingest"
	"github.com/pxh52013145/ragvideo/internal/media"
	"github.com/pxh52013145/ragvideo/internal/store"
	syncpkg "github.com/pxh52013145/ragvideo/internal/sync"
)

// shutdownGrace bounds how long in-flight requests may drain on shutdown.
const shutdownGrace = 10 * time.Second

// indexingPreviewLimit caps how many documents the auto-ingest hook records
// into the task status.
const indexingPreviewLimit = 3

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP sync service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := buildDeps()
			if err != nil {
				return err
			}

			return runServe(cmd.Context(), deps)
		},
	}
}

func runServe(parent context.Context, deps *cliDeps) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	snapshot, err := syncpkg.OpenSnapshot(ctx, filepath.Join(config.DefaultConfigDir(), "sync.db"), deps.logger)
	if err != nil {
		return err
	}
	defer snapshot.Close()

	controller := ingest.NewController()
	pool := ingest.NewPool(deps.local, unavailableGenerator{}, controller,
		deps.cfg.Ingest.Workers, deps.cfg.Ingest.QueueSize, deps.logger)

	pool.OnSuccess = func(taskCtx context.Context, taskID string) {
		autoSyncOnGenerate(taskCtx, deps, snapshot, taskID)
	}

	server := httpapi.NewServer(deps.registry, deps.local, snapshot, pool, deps.logger)

	httpServer := &http.Server{
		Addr:              deps.cfg.Server.Listen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return pool.Run(gctx)
	})

	g.Go(func() error {
		// The watcher only feeds the store's generation counter; losing it
		// (e.g. inotify limits) must not take the server down.
		if watchErr := deps.local.Watch(gctx); watchErr != nil && !errors.Is(watchErr, context.Canceled) {
			deps.logger.Warn("store watcher stopped", slog.String("error", watchErr.Error()))
		}

		return nil
	})

	g.Go(func() error {
		deps.logger.Info("listening", slog.String("addr", httpServer.Addr))

		if serveErr := httpServer.ListenAndServe(); !errors.Is(serveErr, http.ErrServerClosed) {
			return serveErr
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		return httpServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

// autoSyncOnGenerate implements AUTO_MINIO_BUNDLE_ON_GENERATE and
// AUTO_DIFY_INGEST_ON_GENERATE: after a task reaches SUCCESS, push its
// bundle and/or upsert its RAG documents. "auto" enables a step only when
// its credentials resolve.
func autoSyncOnGenerate(ctx context.Context, deps *cliDeps, snapshot *syncpkg.Snapshot, taskID string) {
	_, prof := deps.registry.Get()
	ragCfg := httpapi.ResolveRagConfig(prof)

	bundleMode := config.AutoBundleMode()
	ingestMode := config.AutoIngestMode()

	objectsConfigured := config.LoadObjectStoreEnv().Endpoint != ""
	ragConfigured := strings.TrimSpace(ragCfg.ServiceAPIKey) != "" &&
		(ragCfg.ResolveNoteDataset() != "" || ragCfg.ResolveTranscriptDataset() != "")

	pushBundle := bundleMode == config.AutoOn || (bundleMode == config.AutoAuto && objectsConfigured)
	pushDify := ingestMode == config.AutoOn || (ingestMode == config.AutoAuto && ragConfigured)

	if !pushBundle && !pushDify {
		return
	}

	engine := deps.buildEngine(snapshot)

	result, err := engine.Push(ctx, syncpkg.PushRequest{
		ItemID:            taskID,
		IncludeNote:       true,
		IncludeTranscript: true,
		UpdateDify:        pushDify,
	})
	if err != nil {
		deps.logger.Warn("auto sync failed",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()),
		)

		return
	}

	if result.DifyError != "" {
		recordStatusExtra(deps, taskID, map[string]any{"dify_error": result.DifyError})
	}

	if pushDify {
		recordIndexingPreview(ctx, deps, ragCfg, taskID, result)
	}
}

// recordIndexingPreview polls the indexing status of the documents a push
// created and stores a compact preview into the task status file.
func recordIndexingPreview(ctx context.Context, deps *cliDeps, ragCfg dify.Config, taskID string, result *syncpkg.PushResult) {
	knowledge := dify.NewKnowledge(ragCfg, nil, deps.logger)

	var preview []dify.IndexingStatus

	for _, ref := range []*syncpkg.DocRef{result.DifyNote, result.DifyTranscript} {
		if ref == nil || ref.Batch == "" || len(preview) >= indexingPreviewLimit {
			continue
		}

		status, err := knowledge.GetBatchIndexingStatus(ctx, ref.DatasetID, ref.Batch)
		if err != nil {
			deps.logger.Debug("indexing status poll failed", slog.String("error", err.Error()))
			continue
		}

		for _, entry := range status.Data {
			if len(preview) >= indexingPreviewLimit {
				break
			}

			preview = append(preview, entry)
		}
	}

	if len(preview) > 0 {
		recordStatusExtra(deps, taskID, map[string]any{"dify_indexing": preview})
	}
}

// recordStatusExtra merges extra fields into the task's status file.
func recordStatusExtra(deps *cliDeps, taskID string, patch map[string]any) {
	path := filepath.Join(deps.local.TaskDir(taskID), taskID+".status.json")

	if err := store.AtomicMergeJSON(path, patch); err != nil {
		deps.logger.Warn("recording status extras failed",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()),
		)
	}
}

// unavailableGenerator is the placeholder wired when no note-generation
// backend is deployed with the service: submissions fail fast at the parse
// stage with an actionable message. The downloader/transcriber/LLM stack is
// an external collaborator that replaces this at assembly time.
type unavailableGenerator struct{}

func (unavailableGenerator) Parse(context.Context, ingest.Request) (ingest.Source, error) {
	return ingest.Source{}, errors.New("note generation backend not configured")
}

func (unavailableGenerator) Download(context.Context, ingest.Source) (media.AudioMeta, error) {
	return media.AudioMeta{}, errors.New("note generation backend not configured")
}

func (unavailableGenerator) Transcribe(context.Context, media.AudioMeta) (media.Transcript, error) {
	return media.Transcript{}, errors.New("note generation backend not configured")
}

func (unavailableGenerator) Summarize(context.Context, media.AudioMeta, media.Transcript) (string, error) {
	return "", errors.New("note generation backend not configured")
}

func (unavailableGenerator) Format(context.Context, string) (string, error) {
	return "", errors.New("note generation backend not configured")
}
