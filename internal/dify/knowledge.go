package dify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Pagination caps for full-dataset listings.
const (
	listPageSize = 100
	maxListPages = 200
)

// Document is one knowledge dataset document.
type Document struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	IndexingStatus string `json:"indexing_status,omitempty"`
	WordCount      int    `json:"word_count,omitempty"`
	CreatedAt      int64  `json:"created_at,omitempty"`
}

// DocumentPage is one page of a dataset listing.
type DocumentPage struct {
	Data    []Document `json:"data"`
	HasMore bool       `json:"has_more"`
	Total   int        `json:"total"`
	Page    int        `json:"page"`
	Limit   int        `json:"limit"`
}

// DocumentResponse is returned by create/update-by-text.
type DocumentResponse struct {
	Document Document `json:"document"`
	Batch    string   `json:"batch"`
}

// IndexingStatus describes one document's indexing progress inside a batch.
type IndexingStatus struct {
	ID                   string `json:"id"`
	IndexingStatus       string `json:"indexing_status"`
	CompletedSegments    int    `json:"completed_segments"`
	TotalSegments        int    `json:"total_segments"`
	Error                string `json:"error,omitempty"`
	ProcessingStartedAt  any    `json:"processing_started_at,omitempty"`
	CompletedAt          any    `json:"completed_at,omitempty"`
	StoppedAt            any    `json:"stopped_at,omitempty"`
	DisabledAt           any    `json:"disabled_at,omitempty"`
	DisplayStatusSegment string `json:"display_status,omitempty"`
}

// IndexingStatusResponse is the batch indexing-status envelope.
type IndexingStatusResponse struct {
	Data []IndexingStatus `json:"data"`
}

// RetrievalRecord is one retrieved chunk.
type RetrievalRecord struct {
	Segment struct {
		Content    string `json:"content"`
		DocumentID string `json:"document_id"`
		Document   struct {
			Name string `json:"name"`
		} `json:"document"`
	} `json:"segment"`
	Score float64 `json:"score"`
}

// RetrieveResponse is the dataset retrieval envelope.
type RetrieveResponse struct {
	Records []RetrievalRecord `json:"records"`
}

// Knowledge is the dataset-facing client, authenticated with the profile's
// service API key.
type Knowledge struct {
	cfg Config
	t   *transport
}

// NewKnowledge creates a knowledge client. httpClient may be nil to use the
// profile timeout.
func NewKnowledge(cfg Config, httpClient *http.Client, logger *slog.Logger) *Knowledge {
	return &Knowledge{cfg: cfg, t: newTransport(cfg, httpClient, logger)}
}

// checkDataset validates credentials and the dataset id before a call.
func (k *Knowledge) checkDataset(datasetID string) error {
	if strings.TrimSpace(k.cfg.ServiceAPIKey) == "" {
		return fmt.Errorf("%w: service key", ErrMissingCredentials)
	}

	if strings.TrimSpace(datasetID) == "" {
		return ErrMissingDataset
	}

	return nil
}

// ListDocuments fetches one page of a dataset's documents.
func (k *Knowledge) ListDocuments(ctx context.Context, datasetID string, page, limit int) (*DocumentPage, error) {
	if err := k.checkDataset(datasetID); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))

	var out DocumentPage
	if err := k.t.do(ctx, http.MethodGet, "/datasets/"+datasetID+"/documents", k.cfg.ServiceAPIKey, query, nil, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// ListAllDocuments paginates until has_more is false, capped at maxListPages
// to bound pathological backends.
func (k *Knowledge) ListAllDocuments(ctx context.Context, datasetID string) ([]Document, error) {
	var all []Document

	for page := 1; page <= maxListPages; page++ {
		resp, err := k.ListDocuments(ctx, datasetID, page, listPageSize)
		if err != nil {
			return nil, err
		}

		all = append(all, resp.Data...)

		if !resp.HasMore {
			break
		}
	}

	return all, nil
}

// FindDocumentByName returns the first document whose name matches exactly,
// or nil when none does. Used for idempotent upserts.
func (k *Knowledge) FindDocumentByName(ctx context.Context, datasetID, name string) (*Document, error) {
	target := strings.TrimSpace(name)
	if target == "" {
		return nil, nil
	}

	docs, err := k.ListAllDocuments(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	for i := range docs {
		if strings.TrimSpace(docs[i].Name) == target {
			return &docs[i], nil
		}
	}

	return nil, nil
}

// CreateDocumentByText creates a new document. docLanguage defaults to
// "Chinese Simplified"; the profile's indexing technique is mandatory for
// knowledge indexing.
func (k *Knowledge) CreateDocumentByText(ctx context.Context, datasetID, name, text, docLanguage string) (*DocumentResponse, error) {
	if err := k.checkDataset(datasetID); err != nil {
		return nil, err
	}

	payload := map[string]any{
		"name":               name,
		"text":               text,
		"doc_language":       defaultLanguage(docLanguage),
		"indexing_technique": k.indexingTechnique(),
	}

	var out DocumentResponse
	if err := k.t.do(ctx, http.MethodPost, "/datasets/"+datasetID+"/document/create-by-text", k.cfg.ServiceAPIKey, nil, payload, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// UpdateDocumentByText replaces an existing document's name and text.
func (k *Knowledge) UpdateDocumentByText(ctx context.Context, datasetID, documentID, name, text, docLanguage string) (*DocumentResponse, error) {
	if err := k.checkDataset(datasetID); err != nil {
		return nil, err
	}

	payload := map[string]any{
		"name":         name,
		"text":         text,
		"doc_language": defaultLanguage(docLanguage),
	}

	var out DocumentResponse
	path := "/datasets/" + datasetID + "/documents/" + documentID + "/update-by-text"
	if err := k.t.do(ctx, http.MethodPost, path, k.cfg.ServiceAPIKey, nil, payload, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// DeleteDocument removes a document from the dataset.
func (k *Knowledge) DeleteDocument(ctx context.Context, datasetID, documentID string) error {
	if err := k.checkDataset(datasetID); err != nil {
		return err
	}

	return k.t.do(ctx, http.MethodDelete, "/datasets/"+datasetID+"/documents/"+documentID, k.cfg.ServiceAPIKey, nil, nil, nil)
}

// GetBatchIndexingStatus polls the indexing progress of a create/update
// batch.
func (k *Knowledge) GetBatchIndexingStatus(ctx context.Context, datasetID, batch string) (*IndexingStatusResponse, error) {
	if err := k.checkDataset(datasetID); err != nil {
		return nil, err
	}

	var out IndexingStatusResponse
	path := "/datasets/" + datasetID + "/documents/" + batch + "/indexing-status"
	if err := k.t.do(ctx, http.MethodGet, path, k.cfg.ServiceAPIKey, nil, nil, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// Retrieve runs a similarity search against the dataset.
func (k *Knowledge) Retrieve(ctx context.Context, datasetID, query string, topK int, scoreThreshold float64) (*RetrieveResponse, error) {
	if err := k.checkDataset(datasetID); err != nil {
		return nil, err
	}

	model := map[string]any{
		"search_method":    "semantic_search",
		"reranking_enable": false,
		"top_k":            topK,
	}

	if scoreThreshold > 0 {
		model["score_threshold_enabled"] = true
		model["score_threshold"] = scoreThreshold
	}

	payload := map[string]any{
		"query":           query,
		"retrieval_model": model,
	}

	var out RetrieveResponse
	if err := k.t.do(ctx, http.MethodPost, "/datasets/"+datasetID+"/retrieve", k.cfg.ServiceAPIKey, nil, payload, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

func (k *Knowledge) indexingTechnique() string {
	if t := strings.TrimSpace(k.cfg.IndexingTechnique); t != "" {
		return t
	}

	return "high_quality"
}

func defaultLanguage(docLanguage string) string {
	if l := strings.TrimSpace(docLanguage); l != "" {
		return l
	}

	return "Chinese Simplified"
}
