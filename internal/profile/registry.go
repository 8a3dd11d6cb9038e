package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Sentinel errors.
var (
	ErrProfileNotFound = errors.New("profile: profile not found")
	ErrSchemeNotFound  = errors.New("profile: scheme not found")
	ErrEmptyName       = errors.New("profile: name cannot be empty")
	ErrDeleteDefault   = errors.New("profile: cannot delete the default template profile")
	ErrDeleteLast      = errors.New("profile: cannot delete the last entry")
)

// Registry persists and normalizes the profile document. It is an
// explicitly-passed handle, not a singleton; concurrent callers within one
// process serialize on the mutex, concurrent processes on rename atomicity.
type Registry struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// New creates a Registry backed by the JSON document at path.
func New(path string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{path: path, logger: logger}
}

// Path returns the backing file path.
func (r *Registry) Path() string {
	return r.path
}

// readState loads the raw document, accepting both the v2 shape and the
// legacy flat single-profile dict.
func (r *Registry) readState() (active string, profiles map[string]Profile) {
	profiles = map[string]Profile{}
	active = DefaultProfile

	data, err := os.ReadFile(r.path)
	if err != nil {
		return active, profiles
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err == nil && doc.Profiles != nil {
		for name, cfg := range doc.Profiles {
			if n := strings.TrimSpace(name); n != "" {
				profiles[n] = cfg
			}
		}

		if a := strings.TrimSpace(doc.ActiveProfile); a != "" {
			active = a
		}

		if len(profiles) == 0 {
			profiles[DefaultProfile] = Profile{}
			active = DefaultProfile
		} else if _, ok := profiles[active]; !ok {
			active = firstName(profiles)
		}

		return active, profiles
	}

	// Legacy format: a single flat config dict.
	var legacy Profile
	if err := json.Unmarshal(data, &legacy); err == nil {
		profiles[DefaultProfile] = legacy
	}

	return DefaultProfile, profiles
}

// normalizeState applies profile normalization, guarantees the default
// template, and migrates user data off the default into a derived profile.
// Returns whether anything changed.
func normalizeState(active string, profiles map[string]Profile) (string, map[string]Profile, bool) {
	changed := false

	normalized := make(map[string]Profile, len(profiles)+1)
	for name, cfg := range profiles {
		ncfg := normalizeProfile(cfg)
		normalized[name] = ncfg

		if !profileEqual(cfg, ncfg) {
			changed = true
		}
	}

	template := normalizeProfile(Profile{})

	if _, ok := normalized[DefaultProfile]; !ok {
		normalized[DefaultProfile] = template
		changed = true
	}

	if hasUserData(normalized[DefaultProfile]) {
		migrated := normalized[DefaultProfile]
		newName := pickUniqueName(normalized, deriveProfileName(migrated))

		normalized[newName] = migrated
		normalized[DefaultProfile] = template

		if active == DefaultProfile {
			active = newName
		}

		changed = true
	}

	if _, ok := normalized[active]; !ok {
		active = firstName(normalized)
		changed = true
	}

	return active, normalized, changed
}

// load returns the normalized state, persisting normalization results when
// the backing file already existed (first reads must not create files).
func (r *Registry) load() (string, map[string]Profile) {
	_, statErr := os.Stat(r.path)
	existed := statErr == nil

	active, profiles := r.readState()

	active, profiles, changed := normalizeState(active, profiles)
	if changed && existed {
		if err := r.write(active, profiles); err != nil {
			r.logger.Warn("persisting normalized registry failed", slog.String("error", err.Error()))
		}
	}

	return active, profiles
}

// write persists the document atomically.
func (r *Registry) write(active string, profiles map[string]Profile) error {
	if len(profiles) == 0 {
		profiles = map[string]Profile{DefaultProfile: normalizeProfile(Profile{})}
		active = DefaultProfile
	} else if _, ok := profiles[active]; !ok {
		active = firstName(profiles)
	}

	doc := document{
		Version:       registryVersion,
		ActiveProfile: active,
		Profiles:      profiles,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("profile: encoding registry: %w", err)
	}

	return atomicWriteFile(r.path, data)
}

// ActiveProfile returns the active profile name.
func (r *Registry) ActiveProfile() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	active, _ := r.load()

	return active
}

// Get returns the active profile's normalized configuration.
func (r *Registry) Get() (string, Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()

	active, profiles := r.load()

	return active, profiles[active]
}

// ListProfiles returns the active name and every normalized profile.
func (r *Registry) ListProfiles() (string, map[string]Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.load()
}

// Update patches the active profile. Patches landing on the default
// template fork into a derived profile; the returned name reflects where
// the data ended up.
func (r *Registry) Update(patch Patch) (string, Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	active, profiles := r.load()

	cfg := normalizeProfile(profiles[active])
	cfg.apply(patch)
	profiles[active] = normalizeProfile(cfg)

	active, profiles, _ = normalizeState(active, profiles)

	if err := r.write(active, profiles); err != nil {
		return "", Profile{}, err
	}

	r.logger.Info("profile updated", slog.String("profile", active))

	return active, profiles[active], nil
}

// SetActiveProfile switches the active profile.
func (r *Registry) SetActiveProfile(name string) error {
	target := strings.TrimSpace(name)
	if target == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	active, profiles := r.load()

	if _, ok := profiles[target]; !ok {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, target)
	}

	if target == active {
		return nil
	}

	return r.write(target, profiles)
}

// UpsertProfile creates or updates a named profile, optionally cloning from
// another profile and/or activating the result.
func (r *Registry) UpsertProfile(name string, patch Patch, cloneFrom string, activate bool) (Profile, error) {
	target := strings.TrimSpace(name)
	if target == "" {
		return Profile{}, ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	active, profiles := r.load()

	var base Profile

	if src := strings.TrimSpace(cloneFrom); src != "" {
		source, ok := profiles[src]
		if !ok {
			return Profile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, src)
		}

		base = source
	} else {
		base = profiles[target]
	}

	base = normalizeProfile(base)
	base.apply(patch)
	base = normalizeProfile(base)

	profiles[target] = base

	newActive := active
	if activate {
		newActive = target
	}

	newActive, profiles, _ = normalizeState(newActive, profiles)

	if err := r.write(newActive, profiles); err != nil {
		return Profile{}, err
	}

	return profiles[target], nil
}

// DeleteProfile removes a profile. The default template and the last
// remaining profile are protected.
func (r *Registry) DeleteProfile(name string) error {
	target := strings.TrimSpace(name)
	if target == "" {
		return ErrEmptyName
	}

	if target == DefaultProfile {
		return ErrDeleteDefault
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	active, profiles := r.load()

	if _, ok := profiles[target]; !ok {
		return nil
	}

	if len(profiles) <= 1 {
		return ErrDeleteLast
	}

	delete(profiles, target)

	if active == target {
		active = firstName(profiles)
	}

	return r.write(active, profiles)
}

// SetActiveAppScheme switches the active profile's chat credential scheme.
func (r *Registry) SetActiveAppScheme(name string) error {
	target := strings.TrimSpace(name)
	if target == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	active, profiles := r.load()

	cfg := normalizeProfile(profiles[active])
	if _, ok := cfg.AppSchemes[target]; !ok {
		return fmt.Errorf("%w: %s", ErrSchemeNotFound, target)
	}

	cfg.ActiveAppScheme = target
	profiles[active] = normalizeProfile(cfg)

	active, profiles, _ = normalizeState(active, profiles)

	return r.write(active, profiles)
}

// UpsertAppScheme creates or updates a scheme on the active profile.
// appAPIKey nil leaves the existing key in place.
func (r *Registry) UpsertAppScheme(name string, appAPIKey *string, activate bool) error {
	target := strings.TrimSpace(name)
	if target == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	active, profiles := r.load()

	cfg := normalizeProfile(profiles[active])

	scheme := cfg.AppSchemes[target]
	if appAPIKey != nil {
		scheme.AppAPIKey = *appAPIKey
	}

	cfg.AppSchemes[target] = scheme

	if activate {
		cfg.ActiveAppScheme = target
	}

	profiles[active] = normalizeProfile(cfg)

	active, profiles, _ = normalizeState(active, profiles)

	return r.write(active, profiles)
}

// DeleteAppScheme removes a scheme from the active profile; deleting the
// last scheme is rejected. Deleting an absent scheme is a no-op.
func (r *Registry) DeleteAppScheme(name string) error {
	target := strings.TrimSpace(name)
	if target == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	active, profiles := r.load()

	cfg := normalizeProfile(profiles[active])

	if _, ok := cfg.AppSchemes[target]; !ok {
		return nil
	}

	if len(cfg.AppSchemes) <= 1 {
		return ErrDeleteLast
	}

	delete(cfg.AppSchemes, target)

	if cfg.ActiveAppScheme == target {
		cfg.ActiveAppScheme = firstName(cfg.AppSchemes)
	}

	profiles[active] = normalizeProfile(cfg)

	active, profiles, _ = normalizeState(active, profiles)

	return r.write(active, profiles)
}

// Clear resets the registry to the empty template. No HTTP route or command
// calls it.
func (r *Registry) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.write(DefaultProfile, map[string]Profile{DefaultProfile: normalizeProfile(Profile{})})
}

// firstName returns the lexicographically smallest key for deterministic
// fallbacks.
func firstName[V any](m map[string]V) string {
	first := ""

	for name := range m {
		if first == "" || name < first {
			first = name
		}
	}

	return first
}

// profileEqual compares via canonical JSON; profiles are small and this
// keeps the comparison in lockstep with what gets persisted.
func profileEqual(a, b Profile) bool {
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)

	return errA == nil && errB == nil && string(aj) == string(bj)
}

// atomicWriteFile writes data via temp-file-then-rename, creating parent
// directories.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("profile: creating %s: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, ".dify-*.tmp")
	if err != nil {
		return fmt.Errorf("profile: creating temp file: %w", err)
	}

	tempPath := f.Name()

	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()

		return fmt.Errorf("profile: writing temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("profile: closing temp file: %w", err)
	}

	if err := os.Chmod(tempPath, 0o600); err != nil {
		return fmt.Errorf("profile: setting permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("profile: renaming temp file: %w", err)
	}

	succeeded = true

	return nil
}
