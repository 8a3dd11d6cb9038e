package main

import (
	"github.com/spf13/cobra"

	syncpkg "github.com/pxh52013145/ragvideo/internal/sync"
)

func newCopyCmd() *cobra.Command {
	var (
		fromSide     string
		noNote       bool
		noTranscript bool
		noDify       bool
		createdAtMS  int64
	)

	cmd := &cobra.Command{
		Use:   "copy <source-key>",
		Short: "Duplicate an item under a fresh identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := buildDeps()
			if err != nil {
				return err
			}

			result, err := deps.buildEngine(nil).Copy(cmd.Context(), syncpkg.CopyRequest{
				SourceKey:         args[0],
				FromSide:          fromSide,
				IncludeNote:       !noNote,
				IncludeTranscript: !noTranscript,
				CreateDifyDocs:    !noDify,
				NewCreatedAtMS:    createdAtMS,
			})
			if err != nil {
				return err
			}

			return printResult(result)
		},
	}

	cmd.Flags().StringVar(&fromSide, "from", syncpkg.CopyFromLocal, "payload source: local or remote")
	cmd.Flags().BoolVar(&noNote, "no-note", false, "exclude the note markdown")
	cmd.Flags().BoolVar(&noTranscript, "no-transcript", false, "exclude the transcript")
	cmd.Flags().BoolVar(&noDify, "no-dify", false, "skip creating RAG documents")
	cmd.Flags().Int64Var(&createdAtMS, "created-at-ms", 0, "explicit created_at_ms for the copy (default: now)")

	return cmd
}
