package main

import (
	"github.com/spf13/cobra"

	syncpkg "github.com/pxh52013145/ragvideo/internal/sync"
)

func newPushCmd() *cobra.Command {
	var (
		noNote       bool
		noTranscript bool
		updateDify   bool
	)

	cmd := &cobra.Command{
		Use:   "push <item-id>",
		Short: "Upload an item's bundle (and optionally its RAG documents)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := buildDeps()
			if err != nil {
				return err
			}

			result, err := deps.buildEngine(nil).Push(cmd.Context(), syncpkg.PushRequest{
				ItemID:            args[0],
				IncludeNote:       !noNote,
				IncludeTranscript: !noTranscript,
				UpdateDify:        updateDify,
			})
			if err != nil {
				return err
			}

			return printResult(result)
		},
	}

	cmd.Flags().BoolVar(&noNote, "no-note", false, "exclude the note markdown")
	cmd.Flags().BoolVar(&noTranscript, "no-transcript", false, "exclude the transcript")
	cmd.Flags().BoolVar(&updateDify, "dify", true, "also upsert the RAG documents")

	return cmd
}
