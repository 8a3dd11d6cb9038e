package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyMatrix(t *testing.T) {
	yes, no := boolPtr(true), boolPtr(false)

	tests := []struct {
		name string
		in   sides
		want Status
	}{
		{
			name: "tombstone without local is deleted",
			in:   sides{TombstoneExists: yes, RemoteHasNote: true},
			want: StatusDeleted,
		},
		{
			name: "tombstone with local files is local only",
			in:   sides{TombstoneExists: yes, HasLocal: true, LocalHasNote: true, RemoteHasNote: true},
			want: StatusLocalOnly,
		},
		{
			name: "remote docs without bundle object",
			in:   sides{RemoteHasNote: true, BundleExists: no, TombstoneExists: no},
			want: StatusDifyOnlyNoBundle,
		},
		{
			name: "unknown bundle state stays dify only",
			in:   sides{RemoteHasNote: true},
			want: StatusDifyOnly,
		},
		{
			name: "local only",
			in:   sides{HasLocal: true, LocalHasNote: true},
			want: StatusLocalOnly,
		},
		{
			name: "remote only with bundle",
			in:   sides{RemoteHasNote: true, RemoteHasTranscript: true, BundleExists: yes},
			want: StatusDifyOnly,
		},
		{
			name: "capability flags disagree",
			in: sides{
				HasLocal: true, LocalHasNote: true, LocalHasTranscript: false,
				RemoteHasNote: true, RemoteHasTranscript: true,
			},
			want: StatusPartial,
		},
		{
			name: "flags agree and hashes match",
			in: sides{
				HasLocal: true, LocalHasNote: true, RemoteHasNote: true,
				NoteSHA256Local: "aa", NoteSHA256Remote: "aa",
			},
			want: StatusSynced,
		},
		{
			name: "note hash mismatch is a conflict",
			in: sides{
				HasLocal: true, LocalHasNote: true, RemoteHasNote: true,
				NoteSHA256Local: "aa", NoteSHA256Remote: "bb",
			},
			want: StatusConflict,
		},
		{
			name: "transcript hash mismatch is a conflict",
			in: sides{
				HasLocal: true, LocalHasTranscript: true, RemoteHasTranscript: true,
				TranscriptSHA256Local: "aa", TranscriptSHA256Remote: "bb",
			},
			want: StatusConflict,
		},
		{
			name: "missing remote hash never conflicts",
			in: sides{
				HasLocal: true, LocalHasNote: true, RemoteHasNote: true,
				NoteSHA256Local: "aa",
			},
			want: StatusSynced,
		},
		{
			name: "hash mismatch on a partial item stays partial",
			in: sides{
				HasLocal: true, LocalHasNote: true, LocalHasTranscript: true,
				RemoteHasNote:   true,
				NoteSHA256Local: "aa", NoteSHA256Remote: "bb",
			},
			want: StatusPartial,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.in))
		})
	}
}
