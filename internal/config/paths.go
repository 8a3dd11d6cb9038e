// Package config implements TOML configuration loading, environment
// resolution, and platform-specific path handling for the RAGVideo sync
// core.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Platform identifiers.
const (
	platformWindows = "windows"
	platformDarwin  = "darwin"
)

// Application directory name used across all platforms.
const appName = "RAGVideo"

// Persisted state file names inside the config directory.
const (
	configFileName   = "config.toml"
	registryFileName = "dify.json"
	historyFileName  = "rag_history.json"
)

// ConfigDirEnv overrides the platform config directory entirely.
const ConfigDirEnv = "RAGVIDEO_CONFIG_DIR"

// DefaultConfigDir returns the directory holding persisted state.
// RAGVIDEO_CONFIG_DIR wins when set. Otherwise: %APPDATA%\RAGVideo on
// Windows, ~/Library/Application Support/RAGVideo on macOS, and
// $XDG_CONFIG_HOME/RAGVideo (default ~/.config/RAGVideo) elsewhere.
func DefaultConfigDir() string {
	if custom := os.Getenv(ConfigDirEnv); custom != "" {
		return custom
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformWindows:
		if base := os.Getenv("APPDATA"); base != "" {
			return filepath.Join(base, appName)
		}

		return filepath.Join(home, "AppData", "Roaming", appName)
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName)
		}

		return filepath.Join(home, ".config", appName)
	}
}

// DefaultConfigPath returns the full path to the TOML config file.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// RegistryPath returns the path of the profile registry document
// (dify.json).
func RegistryPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, registryFileName)
}

// HistoryPath returns the path of the RAG chat history file. The history
// manager is a collaborator outside the sync core; the path lives here so
// every component agrees on the layout of the config directory.
func HistoryPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, historyFileName)
}

// DefaultNoteDir returns the default note output directory when the config
// file does not set one: <config dir>/note_results.
func DefaultNoteDir() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, "note_results")
}
