package dify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:           baseURL,
		DatasetID:         "ds-shared",
		ServiceAPIKey:     "svc-key",
		AppAPIKey:         "app-key",
		AppUser:           "ragvideo",
		IndexingTechnique: "high_quality",
		TimeoutSeconds:    5,
	}
}

func TestNormalizeDatasetID(t *testing.T) {
	assert.Equal(t, "abc", NormalizeDatasetID("abc"))
	assert.Equal(t, "abc", NormalizeDatasetID("/abc"))
	assert.Equal(t, "abc", NormalizeDatasetID("datasets/abc"))
	assert.Equal(t, "abc", NormalizeDatasetID("/datasets/abc"))
	assert.Equal(t, "", NormalizeDatasetID("   "))
}

func TestConfigDatasetResolution(t *testing.T) {
	cfg := Config{DatasetID: "shared", NoteDatasetID: "notes"}
	assert.Equal(t, "notes", cfg.ResolveNoteDataset())
	assert.Equal(t, "shared", cfg.ResolveTranscriptDataset())
}

func TestV1BaseURL(t *testing.T) {
	assert.Equal(t, "http://x/v1", Config{BaseURL: "http://x"}.v1BaseURL())
	assert.Equal(t, "http://x/v1", Config{BaseURL: "http://x/v1/"}.v1BaseURL())
}

func TestListDocumentsRequiresCredentials(t *testing.T) {
	k := NewKnowledge(Config{DatasetID: "x"}, nil, nil)

	_, err := k.ListDocuments(context.Background(), "x", 1, 100)
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestListDocumentsRequiresDataset(t *testing.T) {
	k := NewKnowledge(Config{ServiceAPIKey: "svc"}, nil, nil)

	_, err := k.ListDocuments(context.Background(), "", 1, 100)
	assert.ErrorIs(t, err, ErrMissingDataset)
}

func TestListAllDocumentsPaginates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer svc-key", r.Header.Get("Authorization"))

		page := r.URL.Query().Get("page")
		switch page {
		case "1":
			fmt.Fprint(w, `{"data":[{"id":"d1","name":"a"},{"id":"d2","name":"b"}],"has_more":true}`)
		case "2":
			fmt.Fprint(w, `{"data":[{"id":"d3","name":"c"}],"has_more":false}`)
		default:
			t.Fatalf("unexpected page %s", page)
		}
	}))
	defer srv.Close()

	k := NewKnowledge(testConfig(srv.URL), nil, nil)

	docs, err := k.ListAllDocuments(context.Background(), "ds-shared")
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "d3", docs[2].ID)
}

func TestCreateDocumentByTextPayload(t *testing.T) {
	var got map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/datasets/ds-shared/document/create-by-text", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"document":{"id":"doc-1","name":"n"},"batch":"b-1"}`)
	}))
	defer srv.Close()

	k := NewKnowledge(testConfig(srv.URL), nil, nil)

	resp, err := k.CreateDocumentByText(context.Background(), "ds-shared", "n", "body", "")
	require.NoError(t, err)

	assert.Equal(t, "doc-1", resp.Document.ID)
	assert.Equal(t, "b-1", resp.Batch)
	assert.Equal(t, "high_quality", got["indexing_technique"])
	assert.Equal(t, "Chinese Simplified", got["doc_language"])
}

func TestUpdateDocumentByTextPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/datasets/ds-shared/documents/doc-9/update-by-text", r.URL.Path)
		fmt.Fprint(w, `{"document":{"id":"doc-9"},"batch":"b-2"}`)
	}))
	defer srv.Close()

	k := NewKnowledge(testConfig(srv.URL), nil, nil)

	resp, err := k.UpdateDocumentByText(context.Background(), "ds-shared", "doc-9", "n", "body", "English")
	require.NoError(t, err)
	assert.Equal(t, "doc-9", resp.Document.ID)
}

func TestDeleteDocument(t *testing.T) {
	var method, path string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"result":"success"}`)
	}))
	defer srv.Close()

	k := NewKnowledge(testConfig(srv.URL), nil, nil)

	require.NoError(t, k.DeleteDocument(context.Background(), "ds-shared", "doc-1"))
	assert.Equal(t, http.MethodDelete, method)
	assert.Equal(t, "/v1/datasets/ds-shared/documents/doc-1", path)
}

func TestFindDocumentByName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"id":"d1","name":"A (note)"},{"id":"d2","name":"B (note)"}],"has_more":false}`)
	}))
	defer srv.Close()

	k := NewKnowledge(testConfig(srv.URL), nil, nil)

	doc, err := k.FindDocumentByName(context.Background(), "ds-shared", "B (note)")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "d2", doc.ID)

	missing, err := k.FindDocumentByName(context.Background(), "ds-shared", "zzz")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRagErrorClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"invalid key"}`)
	}))
	defer srv.Close()

	k := NewKnowledge(testConfig(srv.URL), nil, nil)

	_, err := k.ListDocuments(context.Background(), "ds-shared", 1, 100)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)

	var ragErr *RagError
	require.ErrorAs(t, err, &ragErr)
	assert.Equal(t, http.StatusUnauthorized, ragErr.StatusCode)
	assert.Contains(t, ragErr.Message, "invalid key")
}

func TestGetBatchIndexingStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/datasets/ds-shared/documents/b-1/indexing-status", r.URL.Path)
		fmt.Fprint(w, `{"data":[{"id":"doc-1","indexing_status":"completed","completed_segments":3,"total_segments":3}]}`)
	}))
	defer srv.Close()

	k := NewKnowledge(testConfig(srv.URL), nil, nil)

	resp, err := k.GetBatchIndexingStatus(context.Background(), "ds-shared", "b-1")
	require.NoError(t, err)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "completed", resp.Data[0].IndexingStatus)
}

func TestChatSend(t *testing.T) {
	var got map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat-messages", r.URL.Path)
		assert.Equal(t, "Bearer app-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"conversation_id":"c-1","message_id":"m-1","answer":"hi"}`)
	}))
	defer srv.Close()

	c := NewChat(testConfig(srv.URL), nil, nil)

	resp, err := c.Send(context.Background(), ChatRequest{Query: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Answer)
	assert.Equal(t, "blocking", got["response_mode"])
	assert.Equal(t, "ragvideo", got["user"])
}

func TestChatRequiresAppKey(t *testing.T) {
	c := NewChat(Config{}, nil, nil)

	_, err := c.Send(context.Background(), ChatRequest{Query: "x"})
	assert.ErrorIs(t, err, ErrMissingCredentials)
}
