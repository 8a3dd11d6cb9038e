package main

import (
	"github.com/spf13/cobra"

	syncpkg "github.com/pxh52013145/ragvideo/internal/sync"
)

func newRemoveCmd() *cobra.Command {
	var (
		keepDify        bool
		noteDocID       string
		transcriptDocID string
	)

	cmd := &cobra.Command{
		Use:     "rm <source-key>",
		Aliases: []string{"delete-remote"},
		Short:   "Tombstone an item's remote side",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := buildDeps()
			if err != nil {
				return err
			}

			result, err := deps.buildEngine(nil).DeleteRemote(cmd.Context(), syncpkg.DeleteRemoteRequest{
				SourceKey:            args[0],
				DeleteDify:           !keepDify,
				NoteDocumentID:       noteDocID,
				TranscriptDocumentID: transcriptDocID,
			})
			if err != nil {
				return err
			}

			return printResult(result)
		},
	}

	cmd.Flags().BoolVar(&keepDify, "keep-dify", false, "leave RAG documents in place")
	cmd.Flags().StringVar(&noteDocID, "note-doc", "", "RAG note document id to delete")
	cmd.Flags().StringVar(&transcriptDocID, "transcript-doc", "", "RAG transcript document id to delete")

	return cmd
}
