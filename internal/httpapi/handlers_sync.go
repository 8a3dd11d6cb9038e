package httpapi

import (
	"net/http"

	syncpkg "github.com/pxh52013145/ragvideo/internal/sync"
)

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	res, err := s.engineFn().Scan(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeOK(w, res)
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	engine := s.engineFn()

	items, err := engine.CachedItems(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeOK(w, map[string]any{
		"profile": engine.Profile(),
		"items":   items,
	})
}

type pushBody struct {
	ItemID            string `json:"item_id"`
	IncludeTranscript bool   `json:"include_transcript"`
	IncludeNote       bool   `json:"include_note"`
	UpdateDify        bool   `json:"update_dify"`
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	var body pushBody
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := s.engineFn().Push(r.Context(), syncpkg.PushRequest{
		ItemID:            body.ItemID,
		IncludeTranscript: body.IncludeTranscript,
		IncludeNote:       body.IncludeNote,
		UpdateDify:        body.UpdateDify,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeOK(w, res)
}

type pullBody struct {
	SourceKey string `json:"source_key"`
	Overwrite bool   `json:"overwrite"`
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	var body pullBody
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := s.engineFn().Pull(r.Context(), syncpkg.PullRequest{
		SourceKey: body.SourceKey,
		Overwrite: body.Overwrite,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeOK(w, res)
}

type copyBody struct {
	SourceKey         string `json:"source_key"`
	FromSide          string `json:"from_side"`
	IncludeTranscript *bool  `json:"include_transcript"`
	IncludeNote       *bool  `json:"include_note"`
	CreateDifyDocs    *bool  `json:"create_dify_docs"`
	NewCreatedAtMS    int64  `json:"new_created_at_ms"`
}

func (s *Server) handleCopy(w http.ResponseWriter, r *http.Request) {
	var body copyBody
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	// The include/create switches default to true, matching the uploader.
	req := syncpkg.CopyRequest{
		SourceKey:         body.SourceKey,
		FromSide:          body.FromSide,
		IncludeTranscript: body.IncludeTranscript == nil || *body.IncludeTranscript,
		IncludeNote:       body.IncludeNote == nil || *body.IncludeNote,
		CreateDifyDocs:    body.CreateDifyDocs == nil || *body.CreateDifyDocs,
		NewCreatedAtMS:    body.NewCreatedAtMS,
	}

	res, err := s.engineFn().Copy(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeOK(w, res)
}

type deleteRemoteBody struct {
	SourceKey                string `json:"source_key"`
	DeleteDify               *bool  `json:"delete_dify"`
	DifyNoteDocumentID       string `json:"dify_note_document_id"`
	DifyTranscriptDocumentID string `json:"dify_transcript_document_id"`
}

func (s *Server) handleDeleteRemote(w http.ResponseWriter, r *http.Request) {
	var body deleteRemoteBody
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := s.engineFn().DeleteRemote(r.Context(), syncpkg.DeleteRemoteRequest{
		SourceKey:            body.SourceKey,
		DeleteDify:           body.DeleteDify == nil || *body.DeleteDify,
		NoteDocumentID:       body.DifyNoteDocumentID,
		TranscriptDocumentID: body.DifyTranscriptDocumentID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeOK(w, res)
}
