package profile

import (
	"sort"
	"strings"
)

// maskThreshold: keys at or below this length are fully masked; longer keys
// keep the first and last four characters.
const maskThreshold = 8

// MaskSecret renders a credential for display: "abcd****wxyz", or all stars
// for short keys, or "" when unset.
func MaskSecret(value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return ""
	}

	if len(v) <= maskThreshold {
		return strings.Repeat("*", len(v))
	}

	return v[:4] + strings.Repeat("*", len(v)-8) + v[len(v)-4:]
}

// SafeView is the credential-masked projection of the active profile.
type SafeView struct {
	ActiveProfile       string  `json:"active_profile"`
	ActiveAppScheme     string  `json:"active_app_scheme"`
	BaseURL             string  `json:"base_url"`
	DatasetID           string  `json:"dataset_id"`
	NoteDatasetID       string  `json:"note_dataset_id"`
	TranscriptDatasetID string  `json:"transcript_dataset_id"`
	IndexingTechnique   string  `json:"indexing_technique"`
	AppUser             string  `json:"app_user"`
	TimeoutSeconds      float64 `json:"timeout_seconds,omitempty"`
	ServiceAPIKeySet    bool    `json:"service_api_key_set"`
	AppAPIKeySet        bool    `json:"app_api_key_set"`
	ServiceAPIKeyMasked string  `json:"service_api_key_masked"`
	AppAPIKeyMasked     string  `json:"app_api_key_masked"`
	ConfigPath          string  `json:"config_path"`
}

// GetSafe returns the masked view of the active profile.
func (r *Registry) GetSafe() SafeView {
	active, cfg := r.Get()

	return SafeView{
		ActiveProfile:       active,
		ActiveAppScheme:     cfg.ActiveAppScheme,
		BaseURL:             cfg.BaseURL,
		DatasetID:           cfg.DatasetID,
		NoteDatasetID:       cfg.NoteDatasetID,
		TranscriptDatasetID: cfg.TranscriptDatasetID,
		IndexingTechnique:   cfg.IndexingTechnique,
		AppUser:             cfg.AppUser,
		TimeoutSeconds:      cfg.TimeoutSeconds,
		ServiceAPIKeySet:    strings.TrimSpace(cfg.ServiceAPIKey) != "",
		AppAPIKeySet:        strings.TrimSpace(cfg.AppAPIKey) != "",
		ServiceAPIKeyMasked: MaskSecret(cfg.ServiceAPIKey),
		AppAPIKeyMasked:     MaskSecret(cfg.AppAPIKey),
		ConfigPath:          r.path,
	}
}

// SafeProfile is one entry of the masked profile listing.
type SafeProfile struct {
	Name             string `json:"name"`
	Active           bool   `json:"active"`
	BaseURL          string `json:"base_url"`
	DatasetID        string `json:"dataset_id"`
	ServiceAPIKeySet bool   `json:"service_api_key_set"`
	AppAPIKeySet     bool   `json:"app_api_key_set"`
	ActiveAppScheme  string `json:"active_app_scheme"`
	SchemeCount      int    `json:"scheme_count"`
}

// ProfilesSafe lists every profile with credentials reduced to set-flags,
// sorted case-insensitively by name.
func (r *Registry) ProfilesSafe() []SafeProfile {
	active, profiles := r.ListProfiles()

	out := make([]SafeProfile, 0, len(profiles))

	for name, cfg := range profiles {
		out = append(out, SafeProfile{
			Name:             name,
			Active:           name == active,
			BaseURL:          cfg.BaseURL,
			DatasetID:        cfg.DatasetID,
			ServiceAPIKeySet: strings.TrimSpace(cfg.ServiceAPIKey) != "",
			AppAPIKeySet:     strings.TrimSpace(cfg.AppAPIKey) != "",
			ActiveAppScheme:  cfg.ActiveAppScheme,
			SchemeCount:      len(cfg.AppSchemes),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})

	return out
}

// SafeScheme is one entry of the masked scheme listing.
type SafeScheme struct {
	Name            string `json:"name"`
	Active          bool   `json:"active"`
	AppAPIKeySet    bool   `json:"app_api_key_set"`
	AppAPIKeyMasked string `json:"app_api_key_masked"`
}

// SchemesSafe lists the active profile's schemes with masked keys.
func (r *Registry) SchemesSafe() (activeProfile string, schemes []SafeScheme) {
	active, cfg := r.Get()

	out := make([]SafeScheme, 0, len(cfg.AppSchemes))

	for name, scheme := range cfg.AppSchemes {
		out = append(out, SafeScheme{
			Name:            name,
			Active:          name == cfg.ActiveAppScheme,
			AppAPIKeySet:    strings.TrimSpace(scheme.AppAPIKey) != "",
			AppAPIKeyMasked: MaskSecret(scheme.AppAPIKey),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})

	return active, out
}
