package httpapi

import (
	"net/http"

	"github.com/pxh52013145/ragvideo/internal/profile"
)

// profilePatchBody mirrors profile.Patch with JSON pointer semantics:
// absent fields stay untouched.
type profilePatchBody struct {
	BaseURL             *string  `json:"base_url"`
	DatasetID           *string  `json:"dataset_id"`
	NoteDatasetID       *string  `json:"note_dataset_id"`
	TranscriptDatasetID *string  `json:"transcript_dataset_id"`
	ServiceAPIKey       *string  `json:"service_api_key"`
	AppAPIKey           *string  `json:"app_api_key"`
	AppUser             *string  `json:"app_user"`
	IndexingTechnique   *string  `json:"indexing_technique"`
	TimeoutSeconds      *float64 `json:"timeout_seconds"`
}

func (b profilePatchBody) patch() profile.Patch {
	return profile.Patch{
		BaseURL:             b.BaseURL,
		DatasetID:           b.DatasetID,
		NoteDatasetID:       b.NoteDatasetID,
		TranscriptDatasetID: b.TranscriptDatasetID,
		ServiceAPIKey:       b.ServiceAPIKey,
		AppAPIKey:           b.AppAPIKey,
		AppUser:             b.AppUser,
		IndexingTechnique:   b.IndexingTechnique,
		TimeoutSeconds:      b.TimeoutSeconds,
	}
}

func (s *Server) handleConfigGet(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, s.registry.GetSafe())
}

func (s *Server) handleConfigUpdate(w http.ResponseWriter, r *http.Request) {
	var body profilePatchBody
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if _, _, err := s.registry.Update(body.patch()); err != nil {
		writeError(w, err)
		return
	}

	writeOK(w, s.registry.GetSafe())
}

func (s *Server) handleProfilesList(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, map[string]any{
		"active_profile": s.registry.ActiveProfile(),
		"profiles":       s.registry.ProfilesSafe(),
	})
}

type profileUpsertBody struct {
	Name      string `json:"name"`
	CloneFrom string `json:"clone_from"`
	Activate  bool   `json:"activate"`
	profilePatchBody
}

func (s *Server) handleProfileUpsert(w http.ResponseWriter, r *http.Request) {
	var body profileUpsertBody
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if _, err := s.registry.UpsertProfile(body.Name, body.patch(), body.CloneFrom, body.Activate); err != nil {
		writeError(w, err)
		return
	}

	writeOK(w, map[string]any{
		"active_profile": s.registry.ActiveProfile(),
		"profiles":       s.registry.ProfilesSafe(),
	})
}

type nameBody struct {
	Name string `json:"name"`
}

func (s *Server) handleProfileActivate(w http.ResponseWriter, r *http.Request) {
	var body nameBody
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := s.registry.SetActiveProfile(body.Name); err != nil {
		writeError(w, err)
		return
	}

	writeOK(w, map[string]any{"active_profile": s.registry.ActiveProfile()})
}

func (s *Server) handleProfileDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.DeleteProfile(r.PathValue("name")); err != nil {
		writeError(w, err)
		return
	}

	writeOK(w, map[string]any{"active_profile": s.registry.ActiveProfile()})
}

func (s *Server) handleSchemesList(w http.ResponseWriter, _ *http.Request) {
	active, schemes := s.registry.SchemesSafe()

	writeOK(w, map[string]any{
		"active_profile": active,
		"schemes":        schemes,
	})
}

type schemeUpsertBody struct {
	Name      string  `json:"name"`
	AppAPIKey *string `json:"app_api_key"`
	Activate  bool    `json:"activate"`
}

func (s *Server) handleSchemeUpsert(w http.ResponseWriter, r *http.Request) {
	var body schemeUpsertBody
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := s.registry.UpsertAppScheme(body.Name, body.AppAPIKey, body.Activate); err != nil {
		writeError(w, err)
		return
	}

	active, schemes := s.registry.SchemesSafe()
	writeOK(w, map[string]any{"active_profile": active, "schemes": schemes})
}

func (s *Server) handleSchemeActivate(w http.ResponseWriter, r *http.Request) {
	var body nameBody
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := s.registry.SetActiveAppScheme(body.Name); err != nil {
		writeError(w, err)
		return
	}

	active, schemes := s.registry.SchemesSafe()
	writeOK(w, map[string]any{"active_profile": active, "schemes": schemes})
}

func (s *Server) handleSchemeDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.DeleteAppScheme(r.PathValue("name")); err != nil {
		writeError(w, err)
		return
	}

	active, schemes := s.registry.SchemesSafe()
	writeOK(w, map[string]any{"active_profile": active, "schemes": schemes})
}
