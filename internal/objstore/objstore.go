// Package objstore adapts a MinIO/S3 endpoint to the small capability set
// the sync core needs: ensure-bucket, put/get/stat/remove with user
// metadata. Buckets are partitioned per profile; object keys are derived
// from sync ids.
package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Sentinel errors.
var (
	// ErrNotConfigured indicates missing endpoint or credentials; surfaced
	// as a remote-configuration failure, not a transport error.
	ErrNotConfigured = errors.New("objstore: not configured")
)

// Config is the connection and layout configuration for one object store.
type Config struct {
	Endpoint        string
	AccessKey       string
	SecretKey       string
	Secure          bool
	Region          string
	BucketPrefix    string
	ObjectPrefix    string
	TombstonePrefix string
}

// validate checks that the store is reachable in principle.
func (c Config) validate() error {
	switch {
	case strings.TrimSpace(c.Endpoint) == "":
		return fmt.Errorf("%w: missing MINIO_ENDPOINT", ErrNotConfigured)
	case strings.TrimSpace(c.AccessKey) == "":
		return fmt.Errorf("%w: missing MINIO_ACCESS_KEY", ErrNotConfigured)
	case strings.TrimSpace(c.SecretKey) == "":
		return fmt.Errorf("%w: missing MINIO_SECRET_KEY", ErrNotConfigured)
	default:
		return nil
	}
}

// ObjectInfo is the subset of object state reconciliation relies on.
// Metadata keys are normalized to lowercase without the x-amz-meta- prefix.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	Metadata     map[string]string
}

// Client wraps a minio client with the per-profile key layout.
type Client struct {
	cfg    Config
	mc     *minio.Client
	logger *slog.Logger
}

// New builds a Client from cfg. Returns ErrNotConfigured when endpoint or
// credentials are absent so callers can degrade gracefully (scan without
// object-store hints).
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("objstore: creating client: %w", err)
	}

	return &Client{cfg: cfg, mc: mc, logger: logger}, nil
}

// BucketName returns the bucket for profileName (see bucket.go).
func (c *Client) BucketName(profileName string) string {
	return BucketName(profileName, c.cfg.BucketPrefix)
}

// BundleKey returns the object key of a bundle.
func (c *Client) BundleKey(syncID string) string {
	return c.cfg.ObjectPrefix + syncID + ".zip"
}

// TombstoneKey returns the object key of a tombstone.
func (c *Client) TombstoneKey(syncID string) string {
	return c.cfg.TombstonePrefix + syncID + ".json"
}

// EnsureBucket creates the bucket when it does not exist yet.
func (c *Client) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := c.mc.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("objstore: checking bucket %s: %w", bucket, err)
	}

	if exists {
		return nil
	}

	if err := c.mc.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: c.cfg.Region}); err != nil {
		return fmt.Errorf("objstore: creating bucket %s: %w", bucket, err)
	}

	c.logger.Info("bucket created", slog.String("bucket", bucket))

	return nil
}

// PutBytes uploads data under key with the given content type and user
// metadata.
func (c *Client) PutBytes(ctx context.Context, bucket, key string, data []byte, contentType string, metadata map[string]string) error {
	_, err := c.mc.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: metadata,
	})
	if err != nil {
		return fmt.Errorf("objstore: putting %s/%s: %w", bucket, key, err)
	}

	c.logger.Debug("object uploaded",
		slog.String("bucket", bucket),
		slog.String("key", key),
		slog.Int("bytes", len(data)),
	)

	return nil
}

// GetBytes downloads the full object at key.
func (c *Client) GetBytes(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := c.mc.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("objstore: getting %s/%s: %w", bucket, key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("objstore: reading %s/%s: %w", bucket, key, err)
	}

	return data, nil
}

// Stat returns the object's info, or nil when the object does not exist.
func (c *Client) Stat(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	info, err := c.mc.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("objstore: stat %s/%s: %w", bucket, key, err)
	}

	return &ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		LastModified: info.LastModified,
		Metadata:     normalizeMetadata(info.UserMetadata),
	}, nil
}

// RemoveObject deletes key; removing an absent object is not an error.
func (c *Client) RemoveObject(ctx context.Context, bucket, key string) error {
	if err := c.mc.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if isNotFound(err) {
			return nil
		}

		return fmt.Errorf("objstore: removing %s/%s: %w", bucket, key, err)
	}

	return nil
}

// isNotFound classifies the S3 error responses meaning "no such object" or
// "no such bucket".
func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)

	return resp.StatusCode == http.StatusNotFound ||
		resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket"
}

// normalizeMetadata lowercases keys and strips the x-amz-meta- prefix so
// callers address metadata the way they wrote it ("bundle-sha256").
func normalizeMetadata(raw map[string]string) map[string]string {
	if len(raw) == 0 {
		return nil
	}

	out := make(map[string]string, len(raw))

	for k, v := range raw {
		key := strings.ToLower(strings.TrimSpace(k))
		key = strings.TrimPrefix(key, "x-amz-meta-")

		if key == "" || strings.TrimSpace(v) == "" {
			continue
		}

		out[key] = strings.TrimSpace(v)
	}

	return out
}
