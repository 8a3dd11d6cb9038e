package main

import (
	"github.com/spf13/cobra"

	syncpkg "github.com/pxh52013145/ragvideo/internal/sync"
)

func newPullCmd() *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "pull <source-key>",
		Short: "Materialize a remote bundle as a local task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := buildDeps()
			if err != nil {
				return err
			}

			result, err := deps.buildEngine(nil).Pull(cmd.Context(), syncpkg.PullRequest{
				SourceKey: args[0],
				Overwrite: overwrite,
			})
			if err != nil {
				return err
			}

			return printResult(result)
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace existing non-empty local files")

	return cmd
}
