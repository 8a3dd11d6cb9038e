package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pxh52013145/ragvideo/internal/media"
	"github.com/pxh52013145/ragvideo/internal/store"
)

// ErrQueueFull is returned by Submit when the bounded queue is saturated.
var ErrQueueFull = errors.New("ingest: queue full")

// errCancelled aborts a job between stages.
var errCancelled = errors.New("ingest: task cancelled")

// job is one queued ingestion.
type job struct {
	taskID string
	req    Request
}

// Pool is the background ingestion worker pool: a bounded queue drained by
// a fixed number of workers. Completed tasks trigger the OnSuccess hook
// (used for auto push/ingest).
type Pool struct {
	store      *store.Store
	generator  Generator
	controller *Controller
	queue      chan job
	workers    int
	logger     *slog.Logger

	// OnSuccess runs after a task reaches SUCCESS, outside the stage loop.
	// Failures are logged, never propagated into the task outcome.
	OnSuccess func(ctx context.Context, taskID string)
}

// NewPool creates a Pool with the given worker count and queue bound.
func NewPool(st *store.Store, gen Generator, ctrl *Controller, workers, queueSize int, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}

	if workers <= 0 {
		workers = 1
	}

	if queueSize <= 0 {
		queueSize = 1
	}

	return &Pool{
		store:      st,
		generator:  gen,
		controller: ctrl,
		queue:      make(chan job, queueSize),
		workers:    workers,
		logger:     logger,
	}
}

// Run drains the queue until ctx is canceled. Start it once, typically in
// the server's errgroup.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < p.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case j := <-p.queue:
					p.process(gctx, j)
				}
			}
		})
	}

	return g.Wait()
}

// Submit enqueues a request and returns the new task id. The PENDING status
// file is written before the job is queued so status polls never 404.
func (p *Pool) Submit(req Request) (string, error) {
	taskID := uuid.NewString()

	p.controller.Ensure(taskID)

	if err := p.writeStatus(taskID, StatusPending, "", req); err != nil {
		p.controller.Cleanup(taskID)

		return "", err
	}

	select {
	case p.queue <- job{taskID: taskID, req: req}:
	default:
		p.controller.Cleanup(taskID)

		return "", ErrQueueFull
	}

	p.logger.Info("task queued", slog.String("task_id", taskID), slog.String("url", req.VideoURL))

	return taskID, nil
}

// Cancel flags a task. A task already in a terminal state keeps its
// recorded outcome; a queued or running one transitions to CANCELLED at the
// next stage boundary (for a queued task, when a worker picks it up and
// reaches the first one).
func (p *Pool) Cancel(taskID string) {
	p.controller.Cancel(taskID)
}

// process runs one job through the stage loop.
func (p *Pool) process(ctx context.Context, j job) {
	defer p.controller.Cleanup(j.taskID)

	err := p.runStages(ctx, j)

	switch {
	case err == nil:
		p.logger.Info("task complete", slog.String("task_id", j.taskID))

		if p.OnSuccess != nil {
			p.OnSuccess(ctx, j.taskID)
		}
	case errors.Is(err, errCancelled):
		p.logger.Info("task cancelled", slog.String("task_id", j.taskID))

		if writeErr := p.writeStatus(j.taskID, StatusCancelled, "", j.req); writeErr != nil {
			p.logger.Warn("writing cancelled status failed", slog.String("error", writeErr.Error()))
		}
	default:
		p.logger.Warn("task failed",
			slog.String("task_id", j.taskID),
			slog.String("error", err.Error()),
		)

		if writeErr := p.writeStatus(j.taskID, StatusFailed, err.Error(), j.req); writeErr != nil {
			p.logger.Warn("writing failed status failed", slog.String("error", writeErr.Error()))
		}
	}
}

// runStages drives the generator through the pipeline, checking the cancel
// flag at every stage boundary.
func (p *Pool) runStages(ctx context.Context, j job) error {
	advance := func(status TaskStatus) error {
		if p.controller.IsCancelled(j.taskID) {
			return errCancelled
		}

		return p.writeStatus(j.taskID, status, "", j.req)
	}

	if err := advance(StatusParsing); err != nil {
		return err
	}

	src, err := p.generator.Parse(ctx, j.req)
	if err != nil {
		return fmt.Errorf("parsing: %w", err)
	}

	if err := advance(StatusDownloading); err != nil {
		return err
	}

	audio, err := p.generator.Download(ctx, src)
	if err != nil {
		return fmt.Errorf("downloading: %w", err)
	}

	if err := advance(StatusTranscribing); err != nil {
		return err
	}

	transcript, err := p.generator.Transcribe(ctx, audio)
	if err != nil {
		return fmt.Errorf("transcribing: %w", err)
	}

	if err := advance(StatusSummarizing); err != nil {
		return err
	}

	markdown, err := p.generator.Summarize(ctx, audio, transcript)
	if err != nil {
		return fmt.Errorf("summarizing: %w", err)
	}

	if err := advance(StatusFormatting); err != nil {
		return err
	}

	markdown, err = p.generator.Format(ctx, markdown)
	if err != nil {
		return fmt.Errorf("formatting: %w", err)
	}

	if err := advance(StatusSaving); err != nil {
		return err
	}

	if err := p.saveResult(j, audio, transcript, markdown); err != nil {
		return err
	}

	return p.writeStatus(j.taskID, StatusSuccess, "", j.req)
}

// saveResult materializes the task artifacts and pins the sync identity.
func (p *Pool) saveResult(j job, audio media.AudioMeta, transcript media.Transcript, markdown string) error {
	taskDir := p.store.TaskDir(j.taskID)

	if err := store.WriteJSON(filepath.Join(taskDir, j.taskID+"_audio.json"), audio); err != nil {
		return err
	}

	if err := store.WriteJSON(filepath.Join(taskDir, j.taskID+"_transcript.json"), transcript); err != nil {
		return err
	}

	mdPath := filepath.Join(taskDir, j.taskID+"_markdown.md")
	if err := writeText(mdPath, markdown); err != nil {
		return err
	}

	meta, err := p.store.EnsureSyncMeta(j.taskID, audio.Platform, audio.VideoID, audio.Title, 0)
	if err != nil {
		return err
	}

	result := store.TaskResult{
		Markdown:   markdown,
		Transcript: &transcript,
		AudioMeta:  &audio,
		Request:    j.req.Meta(),
		Sync: &store.SyncRef{
			SourceKey:   meta.SourceKey,
			SyncID:      meta.SyncID,
			CreatedAtMS: meta.CreatedAtMS,
		},
	}

	return store.WriteJSON(filepath.Join(taskDir, j.taskID+".json"), result)
}

// writeText writes a small text artifact, creating the task directory.
func writeText(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ingest: creating %s: %w", filepath.Dir(path), err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("ingest: writing %s: %w", filepath.Base(path), err)
	}

	return nil
}

// writeStatus merges the stage into the task's status file.
func (p *Pool) writeStatus(taskID string, status TaskStatus, message string, req Request) error {
	path := filepath.Join(p.store.TaskDir(taskID), taskID+".status.json")

	patch := map[string]any{
		"status":   string(status),
		"progress": status.Progress(),
		"message":  message,
		"request":  req.Meta(),
	}

	if message == "" {
		patch["message"] = nil
	}

	return store.AtomicMergeJSON(path, patch)
}
