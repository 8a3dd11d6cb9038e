package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pxh52013145/ragvideo/internal/media"
	"github.com/pxh52013145/ragvideo/internal/store"
)

// stubGenerator returns canned values and can block or fail per stage.
type stubGenerator struct {
	mu sync.Mutex

	downloadErr   error
	transcribeErr error

	// blockDownload, when non-nil, is closed by the test to release the
	// Download stage; used to test mid-pipeline cancellation.
	blockDownload chan struct{}

	stages []string
}

func (g *stubGenerator) record(stage string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.stages = append(g.stages, stage)
}

func (g *stubGenerator) Parse(_ context.Context, req Request) (Source, error) {
	g.record("parse")
	return Source{Platform: "youtube", VideoID: "abc", URL: req.VideoURL}, nil
}

func (g *stubGenerator) Download(ctx context.Context, src Source) (media.AudioMeta, error) {
	g.record("download")

	if g.blockDownload != nil {
		select {
		case <-g.blockDownload:
		case <-ctx.Done():
			return media.AudioMeta{}, ctx.Err()
		}
	}

	if g.downloadErr != nil {
		return media.AudioMeta{}, g.downloadErr
	}

	return media.AudioMeta{Platform: src.Platform, VideoID: src.VideoID, Title: "Title"}, nil
}

func (g *stubGenerator) Transcribe(context.Context, media.AudioMeta) (media.Transcript, error) {
	g.record("transcribe")

	if g.transcribeErr != nil {
		return media.Transcript{}, g.transcribeErr
	}

	return media.Transcript{Segments: []media.Segment{{Start: 0, End: 1, Text: "hello"}}}, nil
}

func (g *stubGenerator) Summarize(context.Context, media.AudioMeta, media.Transcript) (string, error) {
	g.record("summarize")
	return "# summary", nil
}

func (g *stubGenerator) Format(_ context.Context, markdown string) (string, error) {
	g.record("format")
	return markdown + "\n", nil
}

type poolFixture struct {
	pool  *Pool
	store *store.Store
	gen   *stubGenerator
	ctrl  *Controller
}

func newPoolFixture(t *testing.T) *poolFixture {
	t.Helper()

	st := store.New(t.TempDir(), nil)
	gen := &stubGenerator{}
	ctrl := NewController()
	pool := NewPool(st, gen, ctrl, 1, 8, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = pool.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &poolFixture{pool: pool, store: st, gen: gen, ctrl: ctrl}
}

func readStatus(t *testing.T, st *store.Store, taskID string) store.TaskStatusFile {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(st.TaskDir(taskID), taskID+".status.json"))
	require.NoError(t, err)

	var status store.TaskStatusFile
	require.NoError(t, json.Unmarshal(data, &status))

	return status
}

func waitForTerminal(t *testing.T, st *store.Store, taskID string) store.TaskStatusFile {
	t.Helper()

	deadline := time.After(5 * time.Second)

	for {
		select {
		case <-deadline:
			t.Fatalf("task %s never reached a terminal state", taskID)
		case <-time.After(10 * time.Millisecond):
		}

		status := readStatus(t, st, taskID)
		if TaskStatus(status.Status).Terminal() {
			return status
		}
	}
}

func TestPoolRunsPipelineToSuccess(t *testing.T) {
	fx := newPoolFixture(t)

	taskID, err := fx.pool.Submit(Request{VideoURL: "https://youtu.be/abc", Platform: "youtube"})
	require.NoError(t, err)

	status := waitForTerminal(t, fx.store, taskID)
	assert.Equal(t, string(StatusSuccess), status.Status)
	assert.Equal(t, 100, status.Progress)

	// Artifacts exist and the item is loadable with a pinned identity.
	item, err := fx.store.Load(taskID)
	require.NoError(t, err)
	assert.True(t, item.HasNote())
	assert.True(t, item.HasTranscript())
	assert.NotEmpty(t, item.SourceKey)

	assert.Equal(t, []string{"parse", "download", "transcribe", "summarize", "format"}, fx.gen.stages)
}

func TestPoolRecordsFailure(t *testing.T) {
	fx := newPoolFixture(t)
	fx.gen.transcribeErr = errors.New("whisper exploded")

	taskID, err := fx.pool.Submit(Request{VideoURL: "u", Platform: "youtube"})
	require.NoError(t, err)

	status := waitForTerminal(t, fx.store, taskID)
	assert.Equal(t, string(StatusFailed), status.Status)
	assert.Contains(t, status.Message, "whisper exploded")
	assert.Equal(t, 0, status.Progress)
}

func TestPoolCancellationAtStageBoundary(t *testing.T) {
	fx := newPoolFixture(t)
	fx.gen.blockDownload = make(chan struct{})

	taskID, err := fx.pool.Submit(Request{VideoURL: "u", Platform: "youtube"})
	require.NoError(t, err)

	// Wait for the download stage to start, cancel, then release it.
	require.Eventually(t, func() bool {
		fx.gen.mu.Lock()
		defer fx.gen.mu.Unlock()
		return len(fx.gen.stages) >= 2
	}, 5*time.Second, 10*time.Millisecond)

	fx.pool.Cancel(taskID)
	close(fx.gen.blockDownload)

	status := waitForTerminal(t, fx.store, taskID)
	assert.Equal(t, string(StatusCancelled), status.Status)

	// The pipeline stopped at the next boundary: no transcribe ran.
	fx.gen.mu.Lock()
	defer fx.gen.mu.Unlock()
	assert.NotContains(t, fx.gen.stages, "transcribe")
}

func TestPoolOnSuccessHook(t *testing.T) {
	fx := newPoolFixture(t)

	var (
		mu       sync.Mutex
		hookTask string
	)

	fx.pool.OnSuccess = func(_ context.Context, taskID string) {
		mu.Lock()
		defer mu.Unlock()
		hookTask = taskID
	}

	taskID, err := fx.pool.Submit(Request{VideoURL: "u", Platform: "youtube"})
	require.NoError(t, err)

	waitForTerminal(t, fx.store, taskID)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return hookTask == taskID
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSubmitQueueFull(t *testing.T) {
	st := store.New(t.TempDir(), nil)
	pool := NewPool(st, &stubGenerator{}, NewController(), 1, 1, nil)

	// Pool not running: first submit fills the queue, second overflows.
	_, err := pool.Submit(Request{VideoURL: "a"})
	require.NoError(t, err)

	_, err = pool.Submit(Request{VideoURL: "b"})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestControllerLifecycle(t *testing.T) {
	c := NewController()

	assert.False(t, c.Ensure("t1"))
	assert.True(t, c.Ensure("t1"), "ensure is idempotent")
	assert.False(t, c.IsCancelled("t1"))

	c.Cancel("t1")
	assert.True(t, c.IsCancelled("t1"))

	// Double cancel is safe.
	c.Cancel("t1")

	c.Cleanup("t1")
	assert.False(t, c.IsCancelled("t1"))
	assert.Zero(t, c.Active())

	// Cancel on an unknown task registers it.
	c.Cancel("t2")
	assert.True(t, c.IsCancelled("t2"))
}

func TestStatusProgressTable(t *testing.T) {
	assert.Equal(t, 0, StatusPending.Progress())
	assert.Equal(t, 5, StatusParsing.Progress())
	assert.Equal(t, 20, StatusDownloading.Progress())
	assert.Equal(t, 55, StatusTranscribing.Progress())
	assert.Equal(t, 85, StatusSummarizing.Progress())
	assert.Equal(t, 92, StatusFormatting.Progress())
	assert.Equal(t, 97, StatusSaving.Progress())
	assert.Equal(t, 100, StatusSuccess.Progress())
	assert.Equal(t, 0, StatusFailed.Progress())

	assert.True(t, StatusSuccess.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusParsing.Terminal())
}
