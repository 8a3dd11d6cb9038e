package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeSourceKey(t *testing.T) {
	key := MakeSourceKey("bilibili", "BV1xx411c7mD", 1_700_000_000_000)
	assert.Equal(t, "bilibili:BV1xx411c7mD:1700000000000", key)
}

func TestMakeSourceKeyTrims(t *testing.T) {
	key := MakeSourceKey("  youtube ", " abc\t", 42)
	assert.Equal(t, "youtube:abc:42", key)
}

func TestComputeSyncIDDeterministic(t *testing.T) {
	key := MakeSourceKey("bilibili", "BV1xx411c7mD", 1_700_000_000_000)

	id1 := ComputeSyncID(key)
	id2 := ComputeSyncID(key)

	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 64)
	assert.Regexp(t, "^[0-9a-f]{64}$", id1)
}

func TestComputeSyncIDDiffersPerKey(t *testing.T) {
	a := ComputeSyncID("bilibili:a:1")
	b := ComputeSyncID("bilibili:a:2")
	assert.NotEqual(t, a, b)
}

func TestParseSourceKeyRoundTrip(t *testing.T) {
	platform, videoID, ms, err := ParseSourceKey("bilibili:BV1xx411c7mD:1700000000000")
	require.NoError(t, err)
	assert.Equal(t, "bilibili", platform)
	assert.Equal(t, "BV1xx411c7mD", videoID)
	assert.Equal(t, int64(1_700_000_000_000), ms)
}

func TestParseSourceKeyColonInVideoID(t *testing.T) {
	platform, videoID, ms, err := ParseSourceKey("youtube:ab:cd:99")
	require.NoError(t, err)
	assert.Equal(t, "youtube", platform)
	assert.Equal(t, "ab:cd", videoID)
	assert.Equal(t, int64(99), ms)
}

func TestParseSourceKeyInvalid(t *testing.T) {
	cases := []string{
		"",
		"bilibili",
		"bilibili:BV999",
		"bilibili:BV999:notanumber",
		"bilibili:BV999:-5",
		"bilibili::1700000000000",
		":BV999:1700000000000",
	}

	for _, c := range cases {
		_, _, _, err := ParseSourceKey(c)
		assert.Error(t, err, "case %q", c)
	}
}

func TestParseSyncTag(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   SyncTag
		ok     bool
		legacy bool
	}{
		{
			name:  "full tag",
			input: "My Video [bilibili:BV1xx411c7mD:1700000000000]",
			want: SyncTag{
				Title:       "My Video",
				Platform:    "bilibili",
				VideoID:     "BV1xx411c7mD",
				CreatedAtMS: 1_700_000_000_000,
			},
			ok: true,
		},
		{
			name:   "legacy tag without timestamp",
			input:  "Title [bilibili:BV999]",
			want:   SyncTag{Title: "Title", Platform: "bilibili", VideoID: "BV999"},
			ok:     true,
			legacy: true,
		},
		{
			name:  "title containing brackets",
			input: "Lecture [part 2] [youtube:abc:123]",
			want: SyncTag{
				Title:       "Lecture [part 2]",
				Platform:    "youtube",
				VideoID:     "abc",
				CreatedAtMS: 123,
			},
			ok: true,
		},
		{
			name:  "suffix left intact by caller",
			input: "T [bilibili:BV1:55] extra",
			want:  SyncTag{Title: "T", Platform: "bilibili", VideoID: "BV1", CreatedAtMS: 55},
			ok:    true,
		},
		{name: "no tag", input: "Just a title", ok: false},
		{name: "empty platform", input: "T [:vid:1]", ok: false},
		{name: "empty video id", input: "T [bilibili::1]", ok: false},
		{name: "empty string", input: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tag, ok := ParseSyncTag(tt.input)
			require.Equal(t, tt.ok, ok)

			if !tt.ok {
				return
			}

			assert.Equal(t, tt.want, tag)
			assert.Equal(t, tt.legacy, tag.Legacy())
		})
	}
}

func TestSyncTagSourceKey(t *testing.T) {
	tag, ok := ParseSyncTag("T [bilibili:BV1:1700000000000]")
	require.True(t, ok)
	assert.Equal(t, "bilibili:BV1:1700000000000", tag.SourceKey())

	legacy, ok := ParseSyncTag("T [bilibili:BV1]")
	require.True(t, ok)
	assert.Empty(t, legacy.SourceKey())
}

func TestDocumentName(t *testing.T) {
	name := DocumentName("My Video", "bilibili", "BV1", 1_700_000_000_000)
	assert.Equal(t, "My Video [bilibili:BV1:1700000000000]", name)
}

func TestDocumentNameFallbacks(t *testing.T) {
	name := DocumentName("   ", "youtube", "", 7)
	assert.Equal(t, "Untitled [youtube:unknown:7]", name)
}

func TestDocumentNameRoundTripsThroughTag(t *testing.T) {
	name := DocumentName("Deep Dive", "youtube", "abc", 424242) + NoteSuffix

	tag, ok := ParseSyncTag(name)
	require.True(t, ok)
	assert.Equal(t, "Deep Dive", tag.Title)
	assert.Equal(t, int64(424242), tag.CreatedAtMS)
}
