// Package profile implements the multi-profile configuration registry
// persisted as dify.json. Each profile owns one object-store bucket and one
// RAG workspace; nested app schemes hold selectable chat credentials. The
// profile named "default" is a template and must stay empty — writes
// targeting it fork into a derived profile during normalization.
package profile

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultProfile is the empty template profile name.
const DefaultProfile = "default"

// DefaultScheme is the empty placeholder app scheme every profile carries.
const DefaultScheme = "default"

// registryVersion is the persisted document version.
const registryVersion = 2

// Scheme is one selectable RAG app credential.
type Scheme struct {
	AppAPIKey string `json:"app_api_key,omitempty"`
}

// Profile is one isolated configuration unit.
type Profile struct {
	BaseURL             string  `json:"base_url,omitempty"`
	DatasetID           string  `json:"dataset_id,omitempty"`
	NoteDatasetID       string  `json:"note_dataset_id,omitempty"`
	TranscriptDatasetID string  `json:"transcript_dataset_id,omitempty"`
	ServiceAPIKey       string  `json:"service_api_key,omitempty"`
	AppUser             string  `json:"app_user,omitempty"`
	IndexingTechnique   string  `json:"indexing_technique,omitempty"`
	TimeoutSeconds      float64 `json:"timeout_seconds,omitempty"`

	AppSchemes      map[string]Scheme `json:"app_schemes,omitempty"`
	ActiveAppScheme string            `json:"active_app_scheme,omitempty"`

	// AppAPIKey mirrors the active scheme's key for readers that do not
	// understand schemes. Normalization keeps it synchronized.
	AppAPIKey string `json:"app_api_key,omitempty"`
}

// document is the on-disk registry shape (version 2).
type document struct {
	Version       int                `json:"version"`
	ActiveProfile string             `json:"active_profile"`
	Profiles      map[string]Profile `json:"profiles"`
}

// Patch is a partial profile update; nil fields are left untouched.
// AppAPIKey routes to the active app scheme, never to the profile directly.
type Patch struct {
	BaseURL             *string
	DatasetID           *string
	NoteDatasetID       *string
	TranscriptDatasetID *string
	ServiceAPIKey       *string
	AppAPIKey           *string
	AppUser             *string
	IndexingTechnique   *string
	TimeoutSeconds      *float64
}

// apply overlays the patch onto p. The app key is applied to the active
// scheme (creating it implicitly through normalization).
func (p *Profile) apply(patch Patch) {
	setIf := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}

	setIf(&p.BaseURL, patch.BaseURL)
	setIf(&p.DatasetID, patch.DatasetID)
	setIf(&p.NoteDatasetID, patch.NoteDatasetID)
	setIf(&p.TranscriptDatasetID, patch.TranscriptDatasetID)
	setIf(&p.ServiceAPIKey, patch.ServiceAPIKey)
	setIf(&p.AppUser, patch.AppUser)
	setIf(&p.IndexingTechnique, patch.IndexingTechnique)

	if patch.TimeoutSeconds != nil {
		p.TimeoutSeconds = *patch.TimeoutSeconds
	}

	if patch.AppAPIKey != nil {
		if p.AppSchemes == nil {
			p.AppSchemes = map[string]Scheme{}
		}

		active := strings.TrimSpace(p.ActiveAppScheme)
		if active == "" {
			active = DefaultScheme
		}

		scheme := p.AppSchemes[active]
		scheme.AppAPIKey = *patch.AppAPIKey
		p.AppSchemes[active] = scheme
	}
}

// normalizeProfile enforces the scheme invariants:
//  1. app_schemes["default"] exists and holds no key,
//  2. a legacy flat app_api_key is migrated into a non-default scheme,
//  3. active_app_scheme names an existing scheme,
//  4. the flat app_api_key mirrors the active scheme's key.
func normalizeProfile(p Profile) Profile {
	schemes := map[string]Scheme{}
	for name, scheme := range p.AppSchemes {
		n := strings.TrimSpace(name)
		if n == "" {
			continue
		}

		schemes[n] = scheme
	}

	legacyKey := strings.TrimSpace(p.AppAPIKey)

	if len(schemes) == 0 {
		schemes[DefaultScheme] = Scheme{}

		if legacyKey != "" {
			migrated := pickUniqueName(schemes, "main")
			schemes[migrated] = Scheme{AppAPIKey: legacyKey}
			p.ActiveAppScheme = migrated
		}
	} else if _, ok := schemes[DefaultScheme]; !ok {
		schemes[DefaultScheme] = Scheme{}
	}

	// A key stored under "default" (older versions) moves to a non-default
	// scheme so the template stays empty.
	if defaultKey := strings.TrimSpace(schemes[DefaultScheme].AppAPIKey); defaultKey != "" {
		target := ""

		for name, scheme := range schemes {
			if name == DefaultScheme {
				continue
			}

			if strings.TrimSpace(scheme.AppAPIKey) == defaultKey {
				target = name
				break
			}
		}

		if target == "" {
			target = pickUniqueName(schemes, "main")
			schemes[target] = Scheme{AppAPIKey: defaultKey}
		}

		schemes[DefaultScheme] = Scheme{}

		if active := strings.TrimSpace(p.ActiveAppScheme); active == "" || active == DefaultScheme {
			p.ActiveAppScheme = target
		}
	}

	active := strings.TrimSpace(p.ActiveAppScheme)
	if _, ok := schemes[active]; active == "" || !ok {
		active = DefaultScheme
	}

	// Hydrate the active scheme from the legacy mirror when it has no key
	// of its own.
	if legacyKey != "" && active != DefaultScheme {
		if scheme := schemes[active]; strings.TrimSpace(scheme.AppAPIKey) == "" {
			scheme.AppAPIKey = legacyKey
			schemes[active] = scheme
		}
	}

	p.AppSchemes = schemes
	p.ActiveAppScheme = active
	p.AppAPIKey = strings.TrimSpace(schemes[active].AppAPIKey)

	return p
}

// hasUserData reports whether a profile carries anything beyond the empty
// template: configuration values, credentials, extra schemes, or a
// non-default active scheme.
func hasUserData(p Profile) bool {
	if p.BaseURL != "" || p.DatasetID != "" || p.NoteDatasetID != "" ||
		p.TranscriptDatasetID != "" || p.ServiceAPIKey != "" ||
		p.IndexingTechnique != "" || p.AppUser != "" || p.TimeoutSeconds != 0 {
		return true
	}

	for name, scheme := range p.AppSchemes {
		if name != DefaultScheme {
			return true
		}

		if strings.TrimSpace(scheme.AppAPIKey) != "" {
			return true
		}
	}

	if active := strings.TrimSpace(p.ActiveAppScheme); active != "" && active != DefaultScheme {
		return true
	}

	return strings.TrimSpace(p.AppAPIKey) != ""
}

// pickUniqueName returns base, or base-2, base-3… until it does not collide.
func pickUniqueName[V any](existing map[string]V, base string) string {
	b := strings.TrimSpace(base)
	if b == "" {
		b = "main"
	}

	if _, ok := existing[b]; !ok {
		return b
	}

	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", b, i)
		if _, ok := existing[candidate]; !ok {
			return candidate
		}
	}
}

// deriveProfileName suggests a readable name for data migrated off the
// default template: "host-port-dataset8", degrading to "main".
func deriveProfileName(p Profile) string {
	base := "main"

	if raw := strings.TrimSpace(p.BaseURL); raw != "" {
		if u, err := url.Parse(raw); err == nil {
			if host := u.Hostname(); host != "" {
				base = strings.ReplaceAll(host, ":", "-")
				if port := u.Port(); port != "" {
					base = base + "-" + port
				}
			}
		}
	}

	if dataset := strings.TrimSpace(p.DatasetID); dataset != "" {
		if len(dataset) > 8 {
			dataset = dataset[:8]
		}

		base = base + "-" + dataset
	}

	return base
}
