package config

import (
	"os"
	"strconv"
	"strings"
)

// Environment variable names recognized by the core.
const (
	EnvMinioEndpoint        = "MINIO_ENDPOINT"
	EnvMinioAccessKey       = "MINIO_ACCESS_KEY"
	EnvMinioSecretKey       = "MINIO_SECRET_KEY"
	EnvMinioSecure          = "MINIO_SECURE"
	EnvMinioRegion          = "MINIO_REGION"
	EnvMinioBucketPrefix    = "MINIO_BUCKET_PREFIX"
	EnvMinioObjectPrefix    = "MINIO_OBJECT_PREFIX"
	EnvMinioTombstonePrefix = "MINIO_TOMBSTONE_PREFIX"

	EnvDifyBaseURL           = "DIFY_BASE_URL"
	EnvDifyDatasetID         = "DIFY_DATASET_ID"
	EnvDifyServiceAPIKey     = "DIFY_SERVICE_API_KEY"
	EnvDifyAppAPIKey         = "DIFY_APP_API_KEY"
	EnvDifyAppUser           = "DIFY_APP_USER"
	EnvDifyIndexingTechnique = "DIFY_INDEXING_TECHNIQUE"
	EnvDifyTimeoutSeconds    = "DIFY_TIMEOUT_SECONDS"

	EnvAutoBundle = "AUTO_MINIO_BUNDLE_ON_GENERATE"
	EnvAutoIngest = "AUTO_DIFY_INGEST_ON_GENERATE"

	EnvMergeMaxChars   = "RAG_TRANSCRIPT_MERGE_MAX_CHARS"
	EnvMergeMaxSeconds = "RAG_TRANSCRIPT_MERGE_MAX_SECONDS"
)

// AutoMode is the tri-state value of the AUTO_* switches.
type AutoMode string

// Auto-sync modes. Auto enables the behavior only when the relevant
// credentials resolve at generation time.
const (
	AutoOff  AutoMode = "false"
	AutoOn   AutoMode = "true"
	AutoAuto AutoMode = "auto"
)

// ParseAutoMode maps an env value to an AutoMode. Unrecognized values fall
// back to Auto, the original service's default.
func ParseAutoMode(raw string) AutoMode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return AutoOn
	case "0", "false", "no", "n", "off":
		return AutoOff
	default:
		return AutoAuto
	}
}

// AutoBundleMode reads AUTO_MINIO_BUNDLE_ON_GENERATE.
func AutoBundleMode() AutoMode {
	return ParseAutoMode(os.Getenv(EnvAutoBundle))
}

// AutoIngestMode reads AUTO_DIFY_INGEST_ON_GENERATE.
func AutoIngestMode() AutoMode {
	return ParseAutoMode(os.Getenv(EnvAutoIngest))
}

// envBool parses the loose boolean convention shared by MINIO_SECURE and the
// AUTO_* switches.
func envBool(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// envOr returns the trimmed env value or fallback when unset/blank.
func envOr(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}

	return fallback
}

// MergeLimits returns the transcript merge windows, honoring the
// RAG_TRANSCRIPT_MERGE_* overrides.
func MergeLimits() (maxChars int, maxSeconds float64) {
	maxChars = 900
	maxSeconds = 60

	if raw := strings.TrimSpace(os.Getenv(EnvMergeMaxChars)); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			maxChars = n
		}
	}

	if raw := strings.TrimSpace(os.Getenv(EnvMergeMaxSeconds)); raw != "" {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			maxSeconds = f
		}
	}

	return maxChars, maxSeconds
}

// ObjectStoreEnv holds the object-store connection settings resolved from
// the environment.
type ObjectStoreEnv struct {
	Endpoint        string
	AccessKey       string
	SecretKey       string
	Secure          bool
	Region          string
	BucketPrefix    string
	ObjectPrefix    string
	TombstonePrefix string
}

// LoadObjectStoreEnv reads the MINIO_* variables, applying defaults for the
// prefixes. Credential presence is validated by the adapter, not here.
func LoadObjectStoreEnv() ObjectStoreEnv {
	objectPrefix := envOr(EnvMinioObjectPrefix, "bundles/")
	if !strings.HasSuffix(objectPrefix, "/") {
		objectPrefix += "/"
	}

	tombstonePrefix := envOr(EnvMinioTombstonePrefix, "tombstones/")
	if !strings.HasSuffix(tombstonePrefix, "/") {
		tombstonePrefix += "/"
	}

	return ObjectStoreEnv{
		Endpoint:        strings.TrimSpace(os.Getenv(EnvMinioEndpoint)),
		AccessKey:       strings.TrimSpace(os.Getenv(EnvMinioAccessKey)),
		SecretKey:       strings.TrimSpace(os.Getenv(EnvMinioSecretKey)),
		Secure:          envBool(EnvMinioSecure),
		Region:          strings.TrimSpace(os.Getenv(EnvMinioRegion)),
		BucketPrefix:    envOr(EnvMinioBucketPrefix, "ragvideo-"),
		ObjectPrefix:    objectPrefix,
		TombstonePrefix: tombstonePrefix,
	}
}

// RAGEnv holds the DIFY_* fallbacks applied beneath the active profile.
type RAGEnv struct {
	BaseURL           string
	DatasetID         string
	ServiceAPIKey     string
	AppAPIKey         string
	AppUser           string
	IndexingTechnique string
	TimeoutSeconds    float64
}

// LoadRAGEnv reads the DIFY_* variables with the original defaults.
func LoadRAGEnv() RAGEnv {
	timeout := 60.0
	if raw := strings.TrimSpace(os.Getenv(EnvDifyTimeoutSeconds)); raw != "" {
		if f, err := strconv.ParseFloat(raw, 64); err == nil && f > 0 {
			timeout = f
		}
	}

	return RAGEnv{
		BaseURL:           envOr(EnvDifyBaseURL, "http://localhost"),
		DatasetID:         strings.TrimSpace(os.Getenv(EnvDifyDatasetID)),
		ServiceAPIKey:     strings.TrimSpace(os.Getenv(EnvDifyServiceAPIKey)),
		AppAPIKey:         strings.TrimSpace(os.Getenv(EnvDifyAppAPIKey)),
		AppUser:           envOr(EnvDifyAppUser, "ragvideo"),
		IndexingTechnique: envOr(EnvDifyIndexingTechnique, "high_quality"),
		TimeoutSeconds:    timeout,
	}
}
