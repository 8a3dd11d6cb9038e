package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Request pacing: Dify instances behind small reverse proxies throttle
// aggressive pagination, so all calls share one limiter.
const (
	requestsPerSecond = 10
	requestBurst      = 5
)

// Config carries the per-profile connection settings for both clients.
type Config struct {
	BaseURL             string
	DatasetID           string
	NoteDatasetID       string
	TranscriptDatasetID string
	ServiceAPIKey       string
	AppAPIKey           string
	AppUser             string
	IndexingTechnique   string
	TimeoutSeconds      float64
}

// ResolveNoteDataset returns the note dataset id, falling back to the shared
// dataset id.
func (c Config) ResolveNoteDataset() string {
	if id := NormalizeDatasetID(c.NoteDatasetID); id != "" {
		return id
	}

	return NormalizeDatasetID(c.DatasetID)
}

// ResolveTranscriptDataset returns the transcript dataset id, falling back
// to the shared dataset id.
func (c Config) ResolveTranscriptDataset() string {
	if id := NormalizeDatasetID(c.TranscriptDatasetID); id != "" {
		return id
	}

	return NormalizeDatasetID(c.DatasetID)
}

// NormalizeDatasetID accepts ids copied from URLs or paths: leading slashes
// and a "datasets/" prefix are stripped.
func NormalizeDatasetID(raw string) string {
	id := strings.TrimSpace(raw)
	id = strings.TrimLeft(id, "/")

	if rest, ok := strings.CutPrefix(id, "datasets/"); ok {
		id = strings.TrimSpace(rest)
	}

	return id
}

// v1BaseURL appends /v1 unless the base URL already ends with it.
func (c Config) v1BaseURL() string {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if strings.HasSuffix(base, "/v1") {
		return base
	}

	return base + "/v1"
}

// transport is the HTTP core shared by the knowledge and chat clients.
type transport struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

func newTransport(cfg Config, httpClient *http.Client, logger *slog.Logger) *transport {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		timeout := time.Duration(cfg.TimeoutSeconds * float64(time.Second))
		if timeout <= 0 {
			timeout = 60 * time.Second
		}

		httpClient = &http.Client{Timeout: timeout}
	}

	return &transport{
		baseURL:    cfg.v1BaseURL(),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(requestsPerSecond, requestBurst),
		logger:     logger,
	}
}

// do executes one authenticated JSON request and decodes the response into
// out (when non-nil). Non-2xx responses become *RagError.
func (t *transport) do(ctx context.Context, method, path, apiKey string, query url.Values, payload, out any) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("dify: waiting for rate limiter: %w", err)
	}

	reqURL := t.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var body io.Reader

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("dify: encoding request: %w", err)
		}

		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return fmt.Errorf("dify: creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	t.logger.Debug("dify request",
		slog.String("method", method),
		slog.String("path", path),
	)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("dify: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		respBody = []byte("(failed to read response body)")
	}

	if resp.StatusCode >= http.StatusBadRequest {
		t.logger.Warn("dify request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)

		return &RagError{
			StatusCode: resp.StatusCode,
			Message:    preview(respBody),
			Err:        classifyStatus(resp.StatusCode),
		}
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &RagError{
			StatusCode: resp.StatusCode,
			Message:    "response is not JSON: " + preview(respBody),
			Err:        ErrServerError,
		}
	}

	return nil
}
