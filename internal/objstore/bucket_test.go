package objstore

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var validBucket = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func TestBucketNameBasic(t *testing.T) {
	name := BucketName("main", "ragvideo-")

	sum := sha1.Sum([]byte("main"))
	want := "ragvideo-main-" + hex.EncodeToString(sum[:])[:8]
	assert.Equal(t, want, name)
}

func TestBucketNameReproducible(t *testing.T) {
	assert.Equal(t, BucketName("Server A", "ragvideo-"), BucketName("Server A", "ragvideo-"))
}

func TestBucketNameSlugCollisionsStayDistinct(t *testing.T) {
	// Both slugify to empty/identical slugs but must map to distinct buckets.
	a := BucketName("笔记", "ragvideo-")
	b := BucketName("资料", "ragvideo-")
	assert.NotEqual(t, a, b)
}

func TestBucketNameCaseAndPunctuation(t *testing.T) {
	name := BucketName("My__Server!!", "ragvideo-")
	assert.True(t, validBucket.MatchString(name), "got %q", name)
	assert.True(t, strings.HasPrefix(name, "ragvideo-my-server"), "got %q", name)
}

func TestBucketNameLengthCap(t *testing.T) {
	long := strings.Repeat("profile-name-", 10)

	name := BucketName(long, "ragvideo-")
	assert.LessOrEqual(t, len(name), 63)
	assert.GreaterOrEqual(t, len(name), 3)
	assert.True(t, validBucket.MatchString(name), "got %q", name)
}

func TestBucketNameEmptyProfile(t *testing.T) {
	name := BucketName("", "ragvideo-")
	assert.Equal(t, "ragvideo-default", name)
}

func TestBucketNameValidCorpus(t *testing.T) {
	cases := []string{
		"default", "main", "a", "A B C", "...", "---", "中文名字",
		"host.example.com-8443", "UPPER", "x",
	}

	for _, c := range cases {
		name := BucketName(c, "ragvideo-")
		require.True(t, validBucket.MatchString(name), "profile %q → %q", c, name)
	}
}

func TestNormalizeMetadata(t *testing.T) {
	out := normalizeMetadata(map[string]string{
		"X-Amz-Meta-Bundle-Sha256": "abc",
		"Sync-Id":                  "def ",
		"empty":                    "  ",
	})

	assert.Equal(t, "abc", out["bundle-sha256"])
	assert.Equal(t, "def", out["sync-id"])
	assert.NotContains(t, out, "empty")
}

func TestConfigValidate(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = New(Config{Endpoint: "localhost:9000"}, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}
