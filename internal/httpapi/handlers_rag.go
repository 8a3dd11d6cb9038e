package httpapi

import (
	"net/http"

	"github.com/pxh52013145/ragvideo/internal/dify"
)

type chatBody struct {
	Query          string         `json:"query"`
	ConversationID string         `json:"conversation_id"`
	User           string         `json:"user"`
	ResponseMode   string         `json:"response_mode"`
	Inputs         map[string]any `json:"inputs"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body chatBody
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if body.Query == "" {
		writeErr(w, http.StatusBadRequest, "missing query")
		return
	}

	resp, err := s.chatFn().Send(r.Context(), dify.ChatRequest{
		Query:          body.Query,
		ConversationID: body.ConversationID,
		User:           body.User,
		ResponseMode:   body.ResponseMode,
		Inputs:         body.Inputs,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeOK(w, resp)
}

type retrieveBody struct {
	Query          string  `json:"query"`
	DatasetID      string  `json:"dataset_id"`
	TopK           int     `json:"top_k"`
	ScoreThreshold float64 `json:"score_threshold"`
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var body retrieveBody
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if body.Query == "" {
		writeErr(w, http.StatusBadRequest, "missing query")
		return
	}

	_, prof := s.registry.Get()
	cfg := ResolveRagConfig(prof)

	datasetID := dify.NormalizeDatasetID(body.DatasetID)
	if datasetID == "" {
		datasetID = cfg.ResolveNoteDataset()
	}

	topK := body.TopK
	if topK <= 0 {
		topK = 5
	}

	knowledge := dify.NewKnowledge(cfg, nil, s.logger)

	resp, err := knowledge.Retrieve(r.Context(), datasetID, body.Query, topK, body.ScoreThreshold)
	if err != nil {
		writeError(w, err)
		return
	}

	writeOK(w, resp)
}
